package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/usherhq/usher/internal/core"
	"github.com/usherhq/usher/internal/scope"
)

type Config struct {
	Listen string `yaml:"listen"`

	// SealPassword protects every sealed ticket and rsvp. At least 32 bytes.
	SealPassword string `yaml:"seal_password"`

	// Skew is the tolerated clock difference during MAC verification.
	Skew time.Duration `yaml:"skew"`

	Tickets   TicketConfig      `yaml:"tickets"`
	Store     StoreConfig       `yaml:"store"`
	Audit     AuditConfig       `yaml:"audit"`
	Verifiers []VerifierConfig  `yaml:"verifiers"`
	Apps      []ApplicationSeed `yaml:"applications"`

	// Permissions maps scopes to payloads embedded in the private ext of
	// user tickets for applications with include_scope_in_private_ext.
	Permissions map[string]any `yaml:"permissions"`

	// SelfApp names the application whose app ticket this server keeps
	// refreshed for its own outbound calls. Optional.
	SelfApp string `yaml:"self_app"`
}

type TicketConfig struct {
	AppTTL  time.Duration `yaml:"app_ttl"`
	UserTTL time.Duration `yaml:"user_ttl"`
	RsvpTTL time.Duration `yaml:"rsvp_ttl"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Type string `yaml:"type"` // "memory" or "sqlite"
	Path string `yaml:"path"` // sqlite database file
}

// AuditConfig holds configuration for auditing.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Type    string `yaml:"type"` // e.g., "file", "memory"
}

// VerifierConfig holds configuration for an identity verifier.
type VerifierConfig struct {
	Name   string         `yaml:"name"`
	Type   string         `yaml:"type"`    // e.g., "oidc", "jwt", "static"
	Config map[string]any `yaml:",inline"` // Capture remaining fields
}

// ApplicationSeed is an application ensured to exist at startup. Seeds are
// a system path: their scope may carry the exact reserved admin forms.
type ApplicationSeed struct {
	ID        string   `yaml:"id"`
	Key       string   `yaml:"key"`
	Algorithm string   `yaml:"algorithm"`
	Scope     []string `yaml:"scope"`
	Delegate  bool     `yaml:"delegate"`

	TicketDuration             time.Duration `yaml:"ticket_duration"`
	AllowAnonymousUsers        bool          `yaml:"allow_anonymous_users"`
	DisallowAutoCreationGrants bool          `yaml:"disallow_auto_creation_grants"`
	IncludeScopeInPrivateExt   bool          `yaml:"include_scope_in_private_ext"`
}

// Application converts the seed into its runtime record.
func (s ApplicationSeed) Application() *core.Application {
	algorithm := s.Algorithm
	if algorithm == "" {
		algorithm = "sha256"
	}
	return &core.Application{
		ID:        s.ID,
		Key:       s.Key,
		Algorithm: algorithm,
		Scope:     append([]string(nil), s.Scope...),
		Delegate:  s.Delegate,
		Settings: core.AppSettings{
			TicketDuration:             s.TicketDuration,
			AllowAnonymousUsers:        s.AllowAnonymousUsers,
			DisallowAutoCreationGrants: s.DisallowAutoCreationGrants,
			IncludeScopeInPrivateExt:   s.IncludeScopeInPrivateExt,
		},
	}
}

// Load reads and parses the configuration file at the given path.
// It returns a Config struct or an error if loading/parsing/validation fails.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Skew <= 0 {
		c.Skew = time.Minute
	}
	if c.Store.Type == "" {
		c.Store.Type = "memory"
	}
}

func (c *Config) Validate() error {
	if len(c.SealPassword) < 32 {
		return fmt.Errorf("seal_password must be at least 32 bytes")
	}

	switch c.Store.Type {
	case "", "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store type sqlite requires 'path'")
		}
	default:
		return fmt.Errorf("unknown store type %q", c.Store.Type)
	}

	seenVerifiers := make(map[string]struct{})
	for idx, v := range c.Verifiers {
		if v.Name == "" {
			return fmt.Errorf("verifier at index %d has empty name", idx)
		}
		if _, dup := seenVerifiers[v.Name]; dup {
			return fmt.Errorf("duplicate verifier name %q", v.Name)
		}
		seenVerifiers[v.Name] = struct{}{}
	}

	seenApps := make(map[string]struct{})
	for idx, app := range c.Apps {
		if app.ID == "" {
			return fmt.Errorf("application seed at index %d has empty id", idx)
		}
		if _, dup := seenApps[app.ID]; dup {
			return fmt.Errorf("duplicate application seed %q", app.ID)
		}
		seenApps[app.ID] = struct{}{}
		if len(app.Key) < 32 {
			return fmt.Errorf("application seed %q key must be at least 32 bytes", app.ID)
		}
		if err := scope.ValidateSystem(app.Scope); err != nil {
			return fmt.Errorf("application seed %q scope: %w", app.ID, err)
		}
	}

	if c.SelfApp != "" {
		if _, ok := seenApps[c.SelfApp]; !ok {
			return fmt.Errorf("self_app %q is not among the application seeds", c.SelfApp)
		}
	}

	if c.Audit.Enabled && c.Audit.Type == "file" && c.Audit.Path == "" {
		return fmt.Errorf("file audit requires 'path'")
	}

	return nil
}
