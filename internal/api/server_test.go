package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/usherhq/usher/internal/api"
	"github.com/usherhq/usher/internal/audit"
	"github.com/usherhq/usher/internal/config"
	"github.com/usherhq/usher/internal/core"
	"github.com/usherhq/usher/internal/hawk"
	"github.com/usherhq/usher/internal/identity"
	"github.com/usherhq/usher/internal/seal"
	"github.com/usherhq/usher/internal/service"
	"github.com/usherhq/usher/internal/store"
	"github.com/usherhq/usher/internal/tasks"
	"github.com/usherhq/usher/internal/ticket"
	"github.com/usherhq/usher/pkg/client"
)

const (
	testPassword = "0123456789abcdef0123456789abcdef"
	consoleKey   = "console-key-console-key-console-key!"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()

	codec, err := seal.New([]byte(testPassword))
	if err != nil {
		t.Fatalf("seal.New() error = %v", err)
	}
	mem := store.NewMemory()
	issuer := ticket.NewIssuer(codec, mem, nil, ticket.Options{})

	verifiers, err := identity.BuildRegistry(context.Background(), []config.VerifierConfig{{
		Name: "static",
		Type: "static",
		Config: map[string]any{
			"identities": map[string]any{
				"tok-alice": map[string]any{"subject": "alice", "email": "alice@example.com"},
			},
		},
	}})
	if err != nil {
		t.Fatalf("BuildRegistry() error = %v", err)
	}

	svc := service.NewService(mem, mem, issuer, verifiers, audit.NewNoopAuditor())

	taskManager := tasks.NewManager()
	taskManager.Register("grants.sweep", 0, func(ctx context.Context) error {
		_, err := mem.DeleteExpiredGrants(ctx, time.Now())
		return err
	})

	srv := api.NewServer(svc, taskManager, api.Options{
		Skew:   time.Minute,
		Replay: hawk.NewReplayCache(2 * time.Minute),
	})
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	// the bootstrap console application holds the superadmin scope
	if _, err := mem.InsertApplication(context.Background(), &core.Application{
		ID:        "console",
		Key:       consoleKey,
		Algorithm: hawk.SHA256,
		Scope:     []string{"admin:*"},
	}); err != nil {
		t.Fatalf("InsertApplication() error = %v", err)
	}

	return ts, mem
}

func consoleClient(t *testing.T, ts *httptest.Server) *client.Client {
	t.Helper()
	c, err := client.NewClient(ts.URL, client.WithAppCredential("console", consoleKey, hawk.SHA256))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if _, err := c.AppTicket(context.Background()); err != nil {
		t.Fatalf("AppTicket() error = %v", err)
	}
	return c
}

func TestHealthAndAbout(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + api.HealthCheckRoute)
	if err != nil {
		t.Fatalf("GET %s: %v", api.HealthCheckRoute, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}

	c, _ := client.NewClient(ts.URL)
	info, err := c.Info(context.Background())
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if info.Service != "Usher" {
		t.Errorf("service = %q, want Usher", info.Service)
	}
}

func TestAppTicketRequiresValidSignature(t *testing.T) {
	ts, _ := newTestServer(t)
	ctx := context.Background()

	t.Run("no authorization header", func(t *testing.T) {
		resp, err := http.Post(ts.URL+api.AppTicketRoute, "application/json", nil)
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		c, err := client.NewClient(ts.URL, client.WithAppCredential("console", "wrong-key-wrong-key-wrong-key-wrong!", hawk.SHA256))
		if err != nil {
			t.Fatalf("NewClient() error = %v", err)
		}
		_, err = c.AppTicket(ctx)
		var apiErr client.APIError
		if !asAPIError(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
			t.Errorf("error = %v, want 401 api error", err)
		}
	})

	t.Run("unknown application", func(t *testing.T) {
		c, _ := client.NewClient(ts.URL, client.WithAppCredential("ghost", consoleKey, hawk.SHA256))
		_, err := c.AppTicket(ctx)
		var apiErr client.APIError
		if !asAPIError(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
			t.Errorf("error = %v, want 401 api error", err)
		}
	})

	t.Run("valid credential", func(t *testing.T) {
		c := consoleClient(t, ts)
		tk := c.Ticket()
		if tk == nil || tk.App != "console" || !slices.Contains(tk.Scope, "admin:*") {
			t.Errorf("ticket = %+v, want console app ticket", tk)
		}
	})
}

func TestFullDelegationFlow(t *testing.T) {
	ts, mem := newTestServer(t)
	ctx := context.Background()
	console := consoleClient(t, ts)

	// register the target application
	app, err := console.CreateApplication(ctx, service.CreateApplicationRequest{
		ID:    "news",
		Scope: []string{"read", "write"},
	})
	if err != nil {
		t.Fatalf("CreateApplication() error = %v", err)
	}

	// the news application logs a user in
	news, err := client.NewClient(ts.URL, client.WithAppCredential(app.ID, app.Key, app.Algorithm))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if _, err := news.AppTicket(ctx); err != nil {
		t.Fatalf("AppTicket() error = %v", err)
	}

	rsvp, err := news.IssueRsvp(ctx, client.IssueRsvpRequest{
		App:         "news",
		Provider:    "static",
		Attestation: "tok-alice",
		Email:       "alice@example.com",
	})
	if err != nil {
		t.Fatalf("IssueRsvp() error = %v", err)
	}

	userTicket, err := news.ExchangeRsvp(ctx, rsvp.Rsvp)
	if err != nil {
		t.Fatalf("ExchangeRsvp() error = %v", err)
	}
	if userTicket.User != "alice" {
		t.Fatalf("ticket user = %q, want alice", userTicket.User)
	}
	if !slices.Contains(userTicket.Scope, "read") || !slices.Contains(userTicket.Scope, "write") {
		t.Errorf("ticket scope = %v, want app scopes expanded", userTicket.Scope)
	}

	// a second exchange of the same rsvp against the wrong app fails
	if _, err := console.ExchangeRsvp(ctx, rsvp.Rsvp); err == nil {
		t.Error("rsvp accepted from the wrong application")
	}

	// promote alice to news administrator and reissue her ticket
	if _, err := console.GrantAdminScope(ctx, userTicket.GrantID, "admin:news"); err != nil {
		t.Fatalf("GrantAdminScope() error = %v", err)
	}

	alice, _ := client.NewClient(ts.URL, client.WithTicket(userTicket))
	reissued, err := alice.Reissue(ctx)
	if err != nil {
		t.Fatalf("Reissue() error = %v", err)
	}
	if !slices.Contains(reissued.Scope, "admin:news") {
		t.Errorf("reissued scope = %v, want admin:news after promotion", reissued.Scope)
	}

	// revoking removes it again on the next reissue
	if _, err := console.RevokeAdminScope(ctx, userTicket.GrantID, "admin:news"); err != nil {
		t.Fatalf("RevokeAdminScope() error = %v", err)
	}
	downgraded, err := alice.Reissue(ctx)
	if err != nil {
		t.Fatalf("Reissue() error = %v", err)
	}
	if slices.Contains(downgraded.Scope, "admin:news") {
		t.Errorf("scope = %v, want admin:news revoked", downgraded.Scope)
	}

	// the auto-created grant really exists in the store
	if _, err := mem.FindGrant(ctx, userTicket.GrantID); err != nil {
		t.Errorf("FindGrant(%q) error = %v", userTicket.GrantID, err)
	}
}

func TestAnonymousEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	ctx := context.Background()
	console := consoleClient(t, ts)

	if _, err := console.CreateApplication(ctx, service.CreateApplicationRequest{
		ID:       "kiosk",
		Scope:    []string{"anonymous", "browse"},
		Settings: core.AppSettings{AllowAnonymousUsers: true},
	}); err != nil {
		t.Fatalf("CreateApplication() error = %v", err)
	}

	c, _ := client.NewClient(ts.URL)

	t.Run("id only", func(t *testing.T) {
		session, err := c.Anonymous(ctx, "")
		if err != nil {
			t.Fatalf("Anonymous() error = %v", err)
		}
		if !core.ValidAnonymousUserID(session.ID) || session.Ticket != nil {
			t.Errorf("session = %+v, want bare id", session)
		}
	})

	t.Run("with allowing app", func(t *testing.T) {
		session, err := c.Anonymous(ctx, "kiosk")
		if err != nil {
			t.Fatalf("Anonymous() error = %v", err)
		}
		if session.Ticket == nil || !slices.Contains(session.Ticket.Scope, core.AnonymousScope) {
			t.Errorf("session = %+v, want anonymous ticket", session)
		}
		if session.Ticket != nil && slices.Contains(session.Ticket.Scope, "browse") {
			t.Errorf("ticket scope = %v, app scope leaked into anonymous session", session.Ticket.Scope)
		}
	})

	t.Run("with refusing app", func(t *testing.T) {
		_, err := c.Anonymous(ctx, "console")
		var apiErr client.APIError
		if !asAPIError(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
			t.Errorf("error = %v, want 401", err)
		}
	})

	t.Run("sets cookie", func(t *testing.T) {
		resp, err := http.Post(ts.URL+api.AnonymousRoute, "application/json", strings.NewReader("{}"))
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		defer resp.Body.Close()
		var found bool
		for _, c := range resp.Cookies() {
			if c.Name == api.AnonymousCookie && core.ValidAnonymousUserID(c.Value) {
				found = true
			}
		}
		if !found {
			t.Error("no anonymous cookie set")
		}
	})
}

func TestAdminAuthorization(t *testing.T) {
	ts, _ := newTestServer(t)
	ctx := context.Background()
	console := consoleClient(t, ts)

	// an application without admin scope cannot create applications
	app, err := console.CreateApplication(ctx, service.CreateApplicationRequest{ID: "news", Scope: []string{"read"}})
	if err != nil {
		t.Fatalf("CreateApplication() error = %v", err)
	}
	news, _ := client.NewClient(ts.URL, client.WithAppCredential(app.ID, app.Key, app.Algorithm))
	if _, err := news.AppTicket(ctx); err != nil {
		t.Fatalf("AppTicket() error = %v", err)
	}

	_, err = news.CreateApplication(ctx, service.CreateApplicationRequest{ID: "evil"})
	var apiErr client.APIError
	if !asAPIError(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("error = %v, want 403", err)
	}

	if _, err := news.ListTasks(ctx); err == nil {
		t.Error("task listing allowed without admin scope")
	}

	statuses, err := console.ListTasks(ctx)
	if err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}
	if len(statuses) != 1 || statuses[0].Name != "grants.sweep" {
		t.Errorf("tasks = %+v, want the registered sweep task", statuses)
	}

	if err := console.TriggerTask(ctx, "grants.sweep"); err != nil {
		t.Errorf("TriggerTask() error = %v", err)
	}
	if err := console.TriggerTask(ctx, "ghost"); err == nil {
		t.Error("triggering unknown task succeeded")
	}
}

func TestNonceReplayRejected(t *testing.T) {
	ts, _ := newTestServer(t)

	// sign one request manually and send it twice
	cred := &hawk.Credential{ID: "console", Key: consoleKey, Algorithm: hawk.SHA256}
	u := strings.TrimPrefix(ts.URL, "http://")
	host, port, _ := strings.Cut(u, ":")

	nonce, err := hawk.Nonce()
	if err != nil {
		t.Fatalf("Nonce() error = %v", err)
	}
	header, err := hawk.Sign(cred, hawk.RequestAttributes{
		Method:    "POST",
		Host:      host,
		Port:      port,
		Path:      api.AppTicketRoute,
		Timestamp: time.Now().Unix(),
		Nonce:     nonce,
	})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	send := func() int {
		req, _ := http.NewRequest("POST", ts.URL+api.AppTicketRoute, nil)
		req.Header.Set("Authorization", header)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("Do() error = %v", err)
		}
		defer resp.Body.Close()
		return resp.StatusCode
	}

	if status := send(); status != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", status)
	}
	if status := send(); status != http.StatusUnauthorized {
		t.Errorf("replayed request status = %d, want 401", status)
	}
}

func asAPIError(err error, target *client.APIError) bool {
	if err == nil {
		return false
	}
	e, ok := err.(client.APIError)
	if ok {
		*target = e
	}
	return ok
}
