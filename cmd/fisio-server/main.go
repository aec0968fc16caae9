package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fisiotrack/fisiotrack/internal/config"
	"github.com/fisiotrack/fisiotrack/internal/domain/identity"
	"github.com/fisiotrack/fisiotrack/internal/domain/profile"
	"github.com/fisiotrack/fisiotrack/internal/domain/provisioning"
	"github.com/fisiotrack/fisiotrack/internal/platform/auth"
	"github.com/fisiotrack/fisiotrack/internal/platform/db"
	"github.com/fisiotrack/fisiotrack/internal/platform/logging"
	"github.com/fisiotrack/fisiotrack/internal/platform/notification"
	"github.com/fisiotrack/fisiotrack/internal/platform/telemetry"
	"github.com/fisiotrack/fisiotrack/pkg/optional"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "fisio-server",
		Short:        "Physiotherapy tracking API server",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(therapistCmd())
	return root
}

func newLogger(cfg *config.Config) (zerolog.Logger, io.Closer) {
	return logging.New(logging.Options{
		Level:   cfg.LogLevel,
		Dev:     cfg.IsDev(),
		File:    cfg.LogFile,
		Service: "fisio-server",
	})
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, closer := newLogger(cfg)
			defer closer.Close()
			return runServer(cmd.Context(), cfg, logger)
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	metrics := telemetry.New()

	var (
		st  *stores
		inf *infra
	)
	if missing := cfg.MissingServices(); len(missing) > 0 {
		logger.Warn().Strs("missing", missing).Msg("starting in degraded mode")
	} else {
		var err error
		if st, err = openStores(ctx, cfg, logger); err != nil {
			return fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
		}
		defer st.close()
		if inf, err = openInfra(ctx, cfg, logger); err != nil {
			return err
		}
		defer inf.close()
	}

	a, err := newApp(cfg, st, inf, metrics, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Str("backend", cfg.StoreBackend).Msg("starting server")
		if err := a.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-quit:
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations (postgres backend)",
	}

	open := func(cmd *cobra.Command) (*db.Migrator, func(), error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		if cfg.StoreBackend != config.BackendPostgres {
			return nil, nil, fmt.Errorf("migrations apply to the %s backend only", config.BackendPostgres)
		}
		if cfg.DatabaseURL == "" {
			return nil, nil, errors.New("DATABASE_URL is required")
		}
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = cfg.MigrationsDir
		}
		pool, err := db.NewPool(cmd.Context(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, err
		}
		return db.NewMigrator(pool, dir), pool.Close, nil
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, done, err := open(cmd)
			if err != nil {
				return err
			}
			defer done()
			count, err := m.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, done, err := open(cmd)
			if err != nil {
				return err
			}
			defer done()
			statuses, err := m.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatuses(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printStatuses(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func therapistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "therapist",
		Short: "Manage therapist accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a therapist account with a password",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := therapistRequest(cmd)
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if missing := cfg.MissingServices(); len(missing) > 0 {
				return fmt.Errorf("missing configuration: %v", missing)
			}
			logger, closer := newLogger(cfg)
			defer closer.Close()

			st, err := openStores(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer st.close()

			uid, err := createTherapist(cmd.Context(), cfg, st, logger, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Therapist created: %s\n", uid)
			return nil
		},
	}
	createCmd.Flags().String("email", "", "Sign-in email")
	createCmd.Flags().String("name", "", "Display name")
	createCmd.Flags().String("password", "", "Initial password")
	cmd.AddCommand(createCmd)
	return cmd
}

func therapistRequest(cmd *cobra.Command) (provisioning.Request, error) {
	email, _ := cmd.Flags().GetString("email")
	name, _ := cmd.Flags().GetString("name")
	password, _ := cmd.Flags().GetString("password")
	if email == "" || name == "" || password == "" {
		return provisioning.Request{}, errors.New("--email, --name and --password are required")
	}
	return provisioning.Request{
		Email:    email,
		Nombre:   name,
		Rol:      auth.RoleTherapist,
		Password: optional.Some(password),
	}, nil
}

// createTherapist runs the self-registration path of provisioning, so the
// account, role claim and profile are written exactly as the API would.
func createTherapist(ctx context.Context, cfg *config.Config, st *stores, logger zerolog.Logger, req provisioning.Request) (string, error) {
	signer := auth.NewSigner([]byte(cfg.AuthSigningKey), cfg.AuthIssuer, cfg.AuthTokenTTL)
	revoked := auth.NewMemoryRevocationStore()
	defer revoked.Close()
	mailer := notification.NewMailer(notification.NewLogSender(logger), notification.NewTemplateEngine())

	identities := identity.NewService(st.accounts, st.resets, signer, revoked, mailer,
		identity.Options{ResetURL: cfg.PasswordResetURL, ResetTTL: cfg.PasswordResetTTL}, logger)
	profiles := profile.NewService(st.profiles, nil, nil, identities, cfg.PhoneRegion, logger)
	return provisioning.NewService(identities, profiles, nil, logger).CreateUser(ctx, nil, req)
}
