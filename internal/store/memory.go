// Package store provides the grant/application/user persistence behind the
// ticket engine: an in-memory implementation for tests and single-node use,
// and a sqlite-backed one for durable deployments. Both guarantee atomic
// find-and-update semantics for scope mutations.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/usherhq/usher/internal/core"
)

// Memory is an in-process store. All mutations run under one lock, which
// makes the atomic update methods trivially race-free.
type Memory struct {
	mu     sync.RWMutex
	apps   map[string]*core.Application
	grants map[string]*core.Grant
	users  map[string]*core.User
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		apps:   make(map[string]*core.Application),
		grants: make(map[string]*core.Grant),
		users:  make(map[string]*core.User),
	}
}

var _ core.GrantStore = (*Memory)(nil)
var _ core.UserStore = (*Memory)(nil)

func (m *Memory) FindApplication(_ context.Context, id string) (*core.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	app, ok := m.apps[id]
	if !ok {
		return nil, core.Errorf(core.KindNotFound, "application %q not found", id)
	}
	return cloneApplication(app), nil
}

func (m *Memory) InsertApplication(_ context.Context, app *core.Application) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	assigned := app.ID
	for n := 1; ; n++ {
		if _, taken := m.apps[assigned]; !taken {
			break
		}
		assigned = fmt.Sprintf("%s-%d", app.ID, n)
	}
	stored := cloneApplication(app)
	stored.ID = assigned
	m.apps[assigned] = stored
	return assigned, nil
}

func (m *Memory) AtomicUpdateApplication(_ context.Context, id string, update func(*core.Application) error) (*core.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.apps[id]
	if !ok {
		return nil, core.Errorf(core.KindNotFound, "application %q not found", id)
	}
	updated := cloneApplication(app)
	if err := update(updated); err != nil {
		return nil, err
	}
	updated.ID = id
	m.apps[id] = updated
	return cloneApplication(updated), nil
}

func (m *Memory) FindGrant(_ context.Context, id string) (*core.Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	grant, ok := m.grants[id]
	if !ok {
		return nil, core.Errorf(core.KindNotFound, "grant %q not found", id)
	}
	return cloneGrant(grant), nil
}

func (m *Memory) FindGrantByAppAndUser(_ context.Context, app, user string) (*core.Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, grant := range m.grants {
		if grant.App == app && grant.User == user {
			return cloneGrant(grant), nil
		}
	}
	return nil, core.Errorf(core.KindNotFound, "no grant for app %q and user %q", app, user)
}

func (m *Memory) InsertGrant(_ context.Context, grant *core.Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if grant.ID == "" {
		return core.E(core.KindInternal, "grant id not set")
	}
	if _, taken := m.grants[grant.ID]; taken {
		return core.Errorf(core.KindInternal, "grant %q already exists", grant.ID)
	}
	m.grants[grant.ID] = cloneGrant(grant)
	return nil
}

func (m *Memory) AtomicUpdateGrant(_ context.Context, id string, update func(*core.Grant) error) (*core.Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	grant, ok := m.grants[id]
	if !ok {
		return nil, core.Errorf(core.KindNotFound, "grant %q not found", id)
	}
	updated := cloneGrant(grant)
	if err := update(updated); err != nil {
		return nil, err
	}
	updated.ID = id
	m.grants[id] = updated
	return cloneGrant(updated), nil
}

func (m *Memory) DeleteExpiredGrants(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for id, grant := range m.grants {
		if grant.Expired(now) {
			delete(m.grants, id)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) UpsertUser(_ context.Context, user *core.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := *user
	m.users[userKey(user.Provider, user.Subject)] = &u
	return nil
}

func (m *Memory) FindUser(_ context.Context, provider, subject string) (*core.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[userKey(provider, subject)]
	if !ok {
		return nil, core.Errorf(core.KindNotFound, "user %s/%s not found", provider, subject)
	}
	u := *user
	return &u, nil
}

func userKey(provider, subject string) string {
	return provider + "\x00" + subject
}

func cloneApplication(app *core.Application) *core.Application {
	c := *app
	c.Scope = append([]string(nil), app.Scope...)
	return &c
}

func cloneGrant(grant *core.Grant) *core.Grant {
	c := *grant
	c.Scope = append([]string(nil), grant.Scope...)
	return &c
}
