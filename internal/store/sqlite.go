package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/usherhq/usher/internal/core"
)

// SQLite persists applications, grants and users in a sqlite database.
// Records are stored as JSON documents with the columns the queries need
// extracted alongside, matching the document-store contract the engine
// consumes. Atomic updates run in immediate transactions; sqlite's single
// writer makes the find-and-update race-free.
type SQLite struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS applications (
	id  TEXT PRIMARY KEY,
	doc TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS grants (
	id   TEXT PRIMARY KEY,
	app  TEXT NOT NULL,
	user TEXT NOT NULL,
	exp  INTEGER,
	doc  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS grants_app_user ON grants (app, user);
CREATE TABLE IF NOT EXISTS users (
	provider TEXT NOT NULL,
	subject  TEXT NOT NULL,
	doc      TEXT NOT NULL,
	PRIMARY KEY (provider, subject)
);
`

// NewSQLite opens (and if needed initializes) the database at path.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// sqlite allows one writer; more connections just queue on busy errors.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

var _ core.GrantStore = (*SQLite)(nil)
var _ core.UserStore = (*SQLite)(nil)

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) FindApplication(ctx context.Context, id string) (*core.Application, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM applications WHERE id = ?`, id).Scan(&doc)
	if err != nil {
		return nil, storeErr(err, "application %q not found", id)
	}
	var app core.Application
	if err := json.Unmarshal([]byte(doc), &app); err != nil {
		return nil, core.E(core.KindInternal, "corrupt application record", err)
	}
	return &app, nil
}

func (s *SQLite) InsertApplication(ctx context.Context, app *core.Application) (string, error) {
	assigned := ""
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		candidate := app.ID
		for n := 1; ; n++ {
			var one int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM applications WHERE id = ?`, candidate).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				break
			}
			if err != nil {
				return err
			}
			candidate = fmt.Sprintf("%s-%d", app.ID, n)
		}
		stored := cloneApplication(app)
		stored.ID = candidate
		doc, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO applications (id, doc) VALUES (?, ?)`, candidate, string(doc)); err != nil {
			return err
		}
		assigned = candidate
		return nil
	})
	if err != nil {
		return "", storeErr(err, "inserting application %q failed", app.ID)
	}
	return assigned, nil
}

func (s *SQLite) AtomicUpdateApplication(ctx context.Context, id string, update func(*core.Application) error) (*core.Application, error) {
	var updated *core.Application
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var doc string
		if err := tx.QueryRowContext(ctx, `SELECT doc FROM applications WHERE id = ?`, id).Scan(&doc); err != nil {
			return err
		}
		var app core.Application
		if err := json.Unmarshal([]byte(doc), &app); err != nil {
			return err
		}
		if err := update(&app); err != nil {
			return err
		}
		app.ID = id
		raw, err := json.Marshal(&app)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE applications SET doc = ? WHERE id = ?`, string(raw), id); err != nil {
			return err
		}
		updated = &app
		return nil
	})
	if err != nil {
		return nil, storeErr(err, "application %q not found", id)
	}
	return updated, nil
}

func (s *SQLite) FindGrant(ctx context.Context, id string) (*core.Grant, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM grants WHERE id = ?`, id).Scan(&doc)
	if err != nil {
		return nil, storeErr(err, "grant %q not found", id)
	}
	var grant core.Grant
	if err := json.Unmarshal([]byte(doc), &grant); err != nil {
		return nil, core.E(core.KindInternal, "corrupt grant record", err)
	}
	return &grant, nil
}

func (s *SQLite) FindGrantByAppAndUser(ctx context.Context, app, user string) (*core.Grant, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM grants WHERE app = ? AND user = ?`, app, user).Scan(&doc)
	if err != nil {
		return nil, storeErr(err, "no grant for app %q and user %q", app, user)
	}
	var grant core.Grant
	if err := json.Unmarshal([]byte(doc), &grant); err != nil {
		return nil, core.E(core.KindInternal, "corrupt grant record", err)
	}
	return &grant, nil
}

func (s *SQLite) InsertGrant(ctx context.Context, grant *core.Grant) error {
	if grant.ID == "" {
		return core.E(core.KindInternal, "grant id not set")
	}
	doc, err := json.Marshal(grant)
	if err != nil {
		return core.E(core.KindInternal, "encoding grant failed", err)
	}
	var exp sql.NullInt64
	if !grant.Exp.IsZero() {
		exp = sql.NullInt64{Int64: grant.Exp.UnixMilli(), Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO grants (id, app, user, exp, doc) VALUES (?, ?, ?, ?, ?)`,
		grant.ID, grant.App, grant.User, exp, string(doc))
	if err != nil {
		return storeErr(err, "inserting grant %q failed", grant.ID)
	}
	return nil
}

func (s *SQLite) AtomicUpdateGrant(ctx context.Context, id string, update func(*core.Grant) error) (*core.Grant, error) {
	var updated *core.Grant
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var doc string
		if err := tx.QueryRowContext(ctx, `SELECT doc FROM grants WHERE id = ?`, id).Scan(&doc); err != nil {
			return err
		}
		var grant core.Grant
		if err := json.Unmarshal([]byte(doc), &grant); err != nil {
			return err
		}
		if err := update(&grant); err != nil {
			return err
		}
		grant.ID = id
		raw, err := json.Marshal(&grant)
		if err != nil {
			return err
		}
		var exp sql.NullInt64
		if !grant.Exp.IsZero() {
			exp = sql.NullInt64{Int64: grant.Exp.UnixMilli(), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE grants SET doc = ?, exp = ? WHERE id = ?`, string(raw), exp, id); err != nil {
			return err
		}
		updated = &grant
		return nil
	})
	if err != nil {
		return nil, storeErr(err, "grant %q not found", id)
	}
	return updated, nil
}

func (s *SQLite) DeleteExpiredGrants(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM grants WHERE exp IS NOT NULL AND exp < ?`, now.UnixMilli())
	if err != nil {
		return 0, storeErr(err, "deleting expired grants failed")
	}
	return res.RowsAffected()
}

func (s *SQLite) UpsertUser(ctx context.Context, user *core.User) error {
	doc, err := json.Marshal(user)
	if err != nil {
		return core.E(core.KindInternal, "encoding user failed", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (provider, subject, doc) VALUES (?, ?, ?)
		 ON CONFLICT (provider, subject) DO UPDATE SET doc = excluded.doc`,
		user.Provider, user.Subject, string(doc))
	if err != nil {
		return storeErr(err, "upserting user failed")
	}
	return nil
}

func (s *SQLite) FindUser(ctx context.Context, provider, subject string) (*core.User, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM users WHERE provider = ? AND subject = ?`, provider, subject).Scan(&doc)
	if err != nil {
		return nil, storeErr(err, "user %s/%s not found", provider, subject)
	}
	var user core.User
	if err := json.Unmarshal([]byte(doc), &user); err != nil {
		return nil, core.E(core.KindInternal, "corrupt user record", err)
	}
	return &user, nil
}

func (s *SQLite) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// storeErr maps storage failures onto the service taxonomy: missing rows
// are NotFound, timeouts are Unavailable (retryable, never Unauthorized),
// our own taxonomy errors pass through, everything else is Internal.
func storeErr(err error, format string, args ...any) error {
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		return err
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return core.E(core.KindNotFound, fmt.Sprintf(format, args...), err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return core.E(core.KindUnavailable, "store timeout", err)
	default:
		return core.E(core.KindInternal, fmt.Sprintf(format, args...), err)
	}
}
