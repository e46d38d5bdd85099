package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/usherhq/usher/internal/api"
	"github.com/usherhq/usher/internal/audit"
	"github.com/usherhq/usher/internal/config"
	"github.com/usherhq/usher/internal/core"
	"github.com/usherhq/usher/internal/hawk"
	"github.com/usherhq/usher/internal/identity"
	"github.com/usherhq/usher/internal/permissions"
	"github.com/usherhq/usher/internal/seal"
	"github.com/usherhq/usher/internal/service"
	"github.com/usherhq/usher/internal/store"
	"github.com/usherhq/usher/internal/tasks"
	"github.com/usherhq/usher/internal/ticket"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Usher ticket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.Listen
		}

		codec, err := seal.New([]byte(cfg.SealPassword))
		if err != nil {
			return fmt.Errorf("initializing seal codec: %w", err)
		}

		var (
			grants core.GrantStore
			users  core.UserStore
		)
		switch cfg.Store.Type {
		case "sqlite":
			st, err := store.NewSQLite(cmd.Context(), cfg.Store.Path)
			if err != nil {
				return fmt.Errorf("opening sqlite store: %w", err)
			}
			defer func() { _ = st.Close() }()
			grants, users = st, st
		default:
			m := store.NewMemory()
			grants, users = m, m
		}

		if err := seedApplications(cmd.Context(), grants, cfg.Apps); err != nil {
			return fmt.Errorf("seeding applications: %w", err)
		}

		log.Info().Msg("Initializing identity verifiers...")
		verifiers, err := identity.BuildRegistry(cmd.Context(), cfg.Verifiers)
		if err != nil {
			return fmt.Errorf("building verifier registry: %w", err)
		}

		auditor, err := buildAuditor(cfg.Audit)
		if err != nil {
			return fmt.Errorf("initializing auditor: %w", err)
		}
		defer func() { _ = auditor.Close() }()

		var perms core.PermissionData
		if len(cfg.Permissions) > 0 {
			perms = permissions.NewStatic(cfg.Permissions)
		}

		issuer := ticket.NewIssuer(codec, grants, perms, ticket.Options{
			AppTicketTTL:  cfg.Tickets.AppTTL,
			UserTicketTTL: cfg.Tickets.UserTTL,
			RsvpTTL:       cfg.Tickets.RsvpTTL,
		})
		svc := service.NewService(grants, users, issuer, verifiers, auditor)

		// Nonces must outlive the skew window on both sides.
		replay := hawk.NewReplayCache(2 * cfg.Skew)

		taskManager := tasks.NewManager()
		defer taskManager.Close()
		taskManager.Register("grants.sweep", time.Hour, func(ctx context.Context) error {
			n, err := grants.DeleteExpiredGrants(ctx, time.Now())
			if err != nil {
				return err
			}
			log.Debug().Int64("removed", n).Msg("swept expired grants")
			return nil
		})
		taskManager.Register("replay.prune", 5*time.Minute, func(ctx context.Context) error {
			replay.Prune(time.Now())
			return nil
		})

		srv := api.NewServer(svc, taskManager, api.Options{
			Skew:   cfg.Skew,
			Replay: replay,
		})

		keeperCtx, stopKeeper := context.WithCancel(context.Background())
		defer stopKeeper()
		var keeper *ticket.Keeper
		if cfg.SelfApp != "" {
			keeper = ticket.NewKeeper(func(ctx context.Context) (*core.Ticket, error) {
				app, err := grants.FindApplication(ctx, cfg.SelfApp)
				if err != nil {
					return nil, err
				}
				return issuer.MintAppTicket(ctx, app, time.Now())
			}, ticket.KeeperOptions{})
			keeper.Start(keeperCtx)
		}

		server := &http.Server{
			Addr:    addr,
			Handler: srv.Routes(),
		}

		go func() {
			log.Info().Msgf("Starting server on %s...", addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("Server crashed")
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info().Msg("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		stopKeeper()
		if keeper != nil {
			keeper.Wait()
		}

		log.Info().Msg("Server exited")
		return nil
	},
}

// seedApplications ensures each configured application exists with exactly
// the configured credential and scope. Seeds never get a suffixed id.
func seedApplications(ctx context.Context, grants core.GrantStore, seeds []config.ApplicationSeed) error {
	for _, seed := range seeds {
		app := seed.Application()
		_, err := grants.FindApplication(ctx, app.ID)
		switch {
		case err == nil:
			if _, err := grants.AtomicUpdateApplication(ctx, app.ID, func(existing *core.Application) error {
				*existing = *app
				return nil
			}); err != nil {
				return err
			}
		case core.IsKind(err, core.KindNotFound):
			if _, err := grants.InsertApplication(ctx, app); err != nil {
				return err
			}
			log.Info().Str("app", app.ID).Msg("seeded application")
		default:
			return err
		}
	}
	return nil
}

func buildAuditor(cfg config.AuditConfig) (core.Auditor, error) {
	if !cfg.Enabled {
		return audit.NewNoopAuditor(), nil
	}
	switch cfg.Type {
	case "file":
		return audit.NewFileAuditor(cfg.Path)
	case "memory":
		return audit.NewInMemoryAuditor(), nil
	default:
		return nil, fmt.Errorf("unknown auditor type %q", cfg.Type)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "address to listen on (overrides the config file)")
}
