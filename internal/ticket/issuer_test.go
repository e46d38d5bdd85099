package ticket

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/usherhq/usher/internal/core"
	"github.com/usherhq/usher/internal/seal"
	"github.com/usherhq/usher/internal/store"
)

const testPassword = "0123456789abcdef0123456789abcdef"

type stubPerms struct {
	data map[string]any
}

func (s stubPerms) GetScopedData(_ context.Context, _ string, _ []string) (map[string]any, error) {
	return s.data, nil
}

func newTestIssuer(t *testing.T, perms core.PermissionData, opts Options) (*Issuer, *store.Memory) {
	t.Helper()
	codec, err := seal.New([]byte(testPassword))
	if err != nil {
		t.Fatalf("seal.New() error = %v", err)
	}
	mem := store.NewMemory()
	return NewIssuer(codec, mem, perms, opts), mem
}

func seedApp(t *testing.T, mem *store.Memory, app *core.Application) {
	t.Helper()
	if _, err := mem.InsertApplication(context.Background(), app); err != nil {
		t.Fatalf("InsertApplication() error = %v", err)
	}
}

func seedGrant(t *testing.T, mem *store.Memory, grant *core.Grant) {
	t.Helper()
	if err := mem.InsertGrant(context.Background(), grant); err != nil {
		t.Fatalf("InsertGrant() error = %v", err)
	}
}

func TestMintAppTicket(t *testing.T) {
	issuer, _ := newTestIssuer(t, nil, Options{AppTicketTTL: 30 * time.Minute})
	now := time.Now()

	app := &core.Application{ID: "news", Key: "k", Algorithm: "sha256", Scope: []string{"read", "admin:news"}}
	ticket, err := issuer.MintAppTicket(context.Background(), app, now)
	if err != nil {
		t.Fatalf("MintAppTicket() error = %v", err)
	}

	if ticket.App != "news" || ticket.User != "" || ticket.GrantID != "" {
		t.Errorf("ticket = %+v, want app ticket for news", ticket)
	}
	if diff := cmp.Diff(app.Scope, ticket.Scope); diff != "" {
		t.Errorf("scope mismatch (-want +got):\n%s", diff)
	}
	if got, want := ticket.ExpiresAt(), now.Add(30*time.Minute); got.Sub(want) > time.Second || want.Sub(got) > time.Second {
		t.Errorf("exp = %v, want ~%v", got, want)
	}
	if ticket.Key == "" || ticket.ID == "" {
		t.Error("ticket missing minted credential or sealed id")
	}

	parsed, err := issuer.ParseTicket(ticket.ID, now)
	if err != nil {
		t.Fatalf("ParseTicket() error = %v", err)
	}
	if parsed.Key != ticket.Key || parsed.App != ticket.App {
		t.Errorf("parsed = %+v, want same credential as minted", parsed)
	}
}

func TestRsvpExchange(t *testing.T) {
	issuer, mem := newTestIssuer(t, nil, Options{})
	ctx := context.Background()
	now := time.Now()

	app := &core.Application{ID: "news", Key: "k", Algorithm: "sha256", Scope: []string{"read", "write", "admin:news"}}
	seedApp(t, mem, app)
	grant := &core.Grant{ID: "g1", App: "news", User: "u1", Scope: []string{}}
	seedGrant(t, mem, grant)

	token, exp, err := issuer.GenerateRsvp(ctx, app, grant, now)
	if err != nil {
		t.Fatalf("GenerateRsvp() error = %v", err)
	}
	if exp.Before(now) {
		t.Fatalf("rsvp exp %v before now", exp)
	}

	ticket, err := issuer.ExchangeRsvp(ctx, "news", token, now)
	if err != nil {
		t.Fatalf("ExchangeRsvp() error = %v", err)
	}
	if ticket.User != "u1" || ticket.GrantID != "g1" {
		t.Errorf("ticket = %+v, want user u1 grant g1", ticket)
	}

	// admin scopes are never granted implicitly
	if diff := cmp.Diff([]string{"read", "write"}, ticket.Scope); diff != "" {
		t.Errorf("scope mismatch (-want +got):\n%s", diff)
	}
}

func TestRsvpExchangeRejections(t *testing.T) {
	issuer, mem := newTestIssuer(t, nil, Options{})
	ctx := context.Background()
	now := time.Now()

	app := &core.Application{ID: "news", Key: "k", Algorithm: "sha256", Scope: []string{"read"}}
	other := &core.Application{ID: "blog", Key: "k", Algorithm: "sha256", Scope: []string{"read"}}
	seedApp(t, mem, app)
	seedApp(t, mem, other)
	seedGrant(t, mem, &core.Grant{ID: "g1", App: "news", User: "u1", Scope: []string{}})

	token, _, err := issuer.GenerateRsvp(ctx, app, &core.Grant{ID: "g1", App: "news", User: "u1"}, now)
	if err != nil {
		t.Fatalf("GenerateRsvp() error = %v", err)
	}

	t.Run("wrong application", func(t *testing.T) {
		if _, err := issuer.ExchangeRsvp(ctx, "blog", token, now); !core.IsKind(err, core.KindUnauthorized) {
			t.Errorf("error = %v, want unauthorized", err)
		}
	})

	t.Run("expired rsvp", func(t *testing.T) {
		if _, err := issuer.ExchangeRsvp(ctx, "news", token, now.Add(2*time.Hour)); !core.IsKind(err, core.KindUnauthorized) {
			t.Errorf("error = %v, want unauthorized", err)
		}
	})

	t.Run("ticket is not an rsvp", func(t *testing.T) {
		appTicket, err := issuer.MintAppTicket(ctx, app, now)
		if err != nil {
			t.Fatalf("MintAppTicket() error = %v", err)
		}
		if _, err := issuer.ExchangeRsvp(ctx, "news", appTicket.ID, now); !core.IsKind(err, core.KindUnauthorized) {
			t.Errorf("error = %v, want unauthorized", err)
		}
	})

	t.Run("unknown grant", func(t *testing.T) {
		token, _, err := issuer.GenerateRsvp(ctx, app, &core.Grant{ID: "missing", App: "news"}, now)
		if err != nil {
			t.Fatalf("GenerateRsvp() error = %v", err)
		}
		if _, err := issuer.ExchangeRsvp(ctx, "news", token, now); !core.IsKind(err, core.KindUnauthorized) {
			t.Errorf("error = %v, want unauthorized", err)
		}
	})
}

func TestMintUserTicketDurations(t *testing.T) {
	issuer, _ := newTestIssuer(t, nil, Options{UserTicketTTL: time.Hour})
	ctx := context.Background()
	now := time.Now()

	t.Run("application override", func(t *testing.T) {
		app := &core.Application{
			ID: "news", Scope: []string{"read"},
			Settings: core.AppSettings{TicketDuration: 10 * time.Minute},
		}
		ticket, err := issuer.MintUserTicket(ctx, app, &core.Grant{ID: "g", App: "news", User: "u"}, now)
		if err != nil {
			t.Fatalf("MintUserTicket() error = %v", err)
		}
		if got, want := ticket.ExpiresAt(), now.Add(10*time.Minute); got.Sub(want) > time.Second {
			t.Errorf("exp = %v, want ~%v", got, want)
		}
	})

	t.Run("capped by grant expiration", func(t *testing.T) {
		app := &core.Application{ID: "news", Scope: []string{"read"}}
		grant := &core.Grant{ID: "g", App: "news", User: "u", Exp: now.Add(5 * time.Minute)}
		ticket, err := issuer.MintUserTicket(ctx, app, grant, now)
		if err != nil {
			t.Fatalf("MintUserTicket() error = %v", err)
		}
		// ticket expiries carry millisecond precision
		if got, want := ticket.Exp, grant.Exp.UnixMilli(); got != want {
			t.Errorf("exp = %d, want grant exp %d", got, want)
		}
	})

	t.Run("expired grant", func(t *testing.T) {
		app := &core.Application{ID: "news", Scope: []string{"read"}}
		grant := &core.Grant{ID: "g", App: "news", User: "u", Exp: now.Add(-time.Minute)}
		if _, err := issuer.MintUserTicket(ctx, app, grant, now); !core.IsKind(err, core.KindUnauthorized) {
			t.Errorf("error = %v, want unauthorized", err)
		}
	})
}

func TestMintUserTicketPrivateExt(t *testing.T) {
	perms := stubPerms{data: map[string]any{"read": map[string]any{"region": "eu"}}}
	issuer, _ := newTestIssuer(t, perms, Options{})
	now := time.Now()

	app := &core.Application{
		ID: "news", Scope: []string{"read"},
		Settings: core.AppSettings{IncludeScopeInPrivateExt: true},
	}
	ticket, err := issuer.MintUserTicket(context.Background(), app, &core.Grant{ID: "g", App: "news", User: "u"}, now)
	if err != nil {
		t.Fatalf("MintUserTicket() error = %v", err)
	}
	if ticket.Ext.Private == nil {
		t.Fatal("private ext not populated")
	}

	// the private ext must round-trip through the sealed id
	parsed, err := issuer.ParseTicket(ticket.ID, now)
	if err != nil {
		t.Fatalf("ParseTicket() error = %v", err)
	}
	if diff := cmp.Diff(ticket.Ext.Private, parsed.Ext.Private); diff != "" {
		t.Errorf("private ext mismatch (-want +got):\n%s", diff)
	}
}

func TestReissue(t *testing.T) {
	issuer, mem := newTestIssuer(t, nil, Options{})
	ctx := context.Background()
	now := time.Now()

	seedApp(t, mem, &core.Application{ID: "news", Key: "k", Algorithm: "sha256", Scope: []string{"read"}})
	seedGrant(t, mem, &core.Grant{ID: "g1", App: "news", User: "u1", Scope: []string{}})

	app, _ := mem.FindApplication(ctx, "news")
	grant, _ := mem.FindGrant(ctx, "g1")
	original, err := issuer.MintUserTicket(ctx, app, grant, now)
	if err != nil {
		t.Fatalf("MintUserTicket() error = %v", err)
	}

	// widen the application and the grant after minting; the admin scope
	// exists on the grant alone, yet survives reconciliation
	if _, err := mem.AtomicUpdateApplication(ctx, "news", func(a *core.Application) error {
		a.Scope = append(a.Scope, "write")
		return nil
	}); err != nil {
		t.Fatalf("AtomicUpdateApplication() error = %v", err)
	}
	if _, err := mem.AtomicUpdateGrant(ctx, "g1", func(g *core.Grant) error {
		g.Scope = append(g.Scope, "admin:news")
		return nil
	}); err != nil {
		t.Fatalf("AtomicUpdateGrant() error = %v", err)
	}

	reissued, err := issuer.Reissue(ctx, original, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Reissue() error = %v", err)
	}
	if diff := cmp.Diff([]string{"admin:news", "read", "write"}, reissued.Scope); diff != "" {
		t.Errorf("reissued scope mismatch (-want +got):\n%s", diff)
	}
	if reissued.Key == original.Key {
		t.Error("reissued ticket reuses the credential key")
	}
	if reissued.User != "u1" || reissued.GrantID != "g1" {
		t.Errorf("reissued = %+v, want same user and grant", reissued)
	}

	t.Run("expired ticket", func(t *testing.T) {
		if _, err := issuer.Reissue(ctx, original, now.Add(2*time.Hour)); !core.IsKind(err, core.KindUnauthorized) {
			t.Errorf("error = %v, want unauthorized", err)
		}
	})
}

func TestMintAnonymousTicketScope(t *testing.T) {
	issuer, mem := newTestIssuer(t, nil, Options{})
	ctx := context.Background()
	now := time.Now()

	// the application carries scopes well beyond anonymous access
	seedApp(t, mem, &core.Application{
		ID: "kiosk", Key: "k", Algorithm: "sha256",
		Scope:    []string{"anonymous", "read", "write"},
		Settings: core.AppSettings{AllowAnonymousUsers: true},
	})
	app, _ := mem.FindApplication(ctx, "kiosk")

	grant := core.NewAnonymousGrant("kiosk", core.NewAnonymousUserID(), now.Add(time.Hour))
	ticket, err := issuer.MintUserTicket(ctx, app, grant, now)
	if err != nil {
		t.Fatalf("MintUserTicket() error = %v", err)
	}

	// anonymous sessions never inherit the application's wider scope set
	if diff := cmp.Diff([]string{core.AnonymousScope}, ticket.Scope); diff != "" {
		t.Errorf("scope mismatch (-want +got):\n%s", diff)
	}
}

func TestReissueAnonymousTicket(t *testing.T) {
	issuer, mem := newTestIssuer(t, nil, Options{})
	ctx := context.Background()
	now := time.Now()

	seedApp(t, mem, &core.Application{
		ID: "news", Key: "k", Algorithm: "sha256", Scope: []string{"anonymous"},
		Settings: core.AppSettings{AllowAnonymousUsers: true},
	})
	app, _ := mem.FindApplication(ctx, "news")

	grant := core.NewAnonymousGrant("news", core.NewAnonymousUserID(), now.Add(time.Hour))
	original, err := issuer.MintUserTicket(ctx, app, grant, now)
	if err != nil {
		t.Fatalf("MintUserTicket() error = %v", err)
	}

	reissued, err := issuer.Reissue(ctx, original, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Reissue() error = %v", err)
	}
	if reissued.User != grant.User || reissued.GrantID != grant.ID {
		t.Errorf("reissued = %+v, want anonymous grant preserved", reissued)
	}
}

func TestCredentialLookups(t *testing.T) {
	issuer, mem := newTestIssuer(t, nil, Options{})
	ctx := context.Background()

	seedApp(t, mem, &core.Application{ID: "news", Key: "secret", Algorithm: "sha256", Scope: []string{"read"}})

	cred, err := issuer.AppCredentials()(ctx, "news")
	if err != nil {
		t.Fatalf("AppCredentials() error = %v", err)
	}
	if cred.Key != "secret" {
		t.Errorf("cred = %+v, want application key", cred)
	}

	if _, err := issuer.AppCredentials()(ctx, "ghost"); !core.IsKind(err, core.KindUnauthorized) {
		t.Errorf("unknown app error = %v, want unauthorized", err)
	}

	app, _ := mem.FindApplication(ctx, "news")
	ticket, err := issuer.MintAppTicket(ctx, app, time.Now())
	if err != nil {
		t.Fatalf("MintAppTicket() error = %v", err)
	}
	tcred, err := issuer.TicketCredentials()(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("TicketCredentials() error = %v", err)
	}
	if tcred.Key != ticket.Key {
		t.Errorf("ticket cred = %+v, want minted key", tcred)
	}

	if _, err := issuer.TicketCredentials()(ctx, "garbage"); !core.IsKind(err, core.KindUnauthorized) {
		t.Errorf("garbage id error = %v, want unauthorized", err)
	}
}
