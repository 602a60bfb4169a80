// Command taskdesk serves the task management API and runs its maintenance
// commands.
//
// @title Taskdesk API
// @version 1.0
// @description Per-user task management with sessions and password reset.
// @contact.name API Support
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type 'Bearer YOUR_JWT_TOKEN' to authorize
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/user/taskdesk-go/auth"
	"github.com/user/taskdesk-go/config"
	"github.com/user/taskdesk-go/db"
	"github.com/user/taskdesk-go/mailer"
	"github.com/user/taskdesk-go/memstore"
	"github.com/user/taskdesk-go/metrics"
	"github.com/user/taskdesk-go/password"
	"github.com/user/taskdesk-go/resettoken"
	"github.com/user/taskdesk-go/server"
	"github.com/user/taskdesk-go/session"
	"github.com/user/taskdesk-go/tasks"
	"github.com/user/taskdesk-go/telemetry"
	"github.com/user/taskdesk-go/users"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg(".env file not loaded")
	}

	app := &cli.App{
		Name:   "taskdesk",
		Usage:  "task management API",
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "start the HTTP server",
				Action: serve,
			},
			{
				Name:  "migrate",
				Usage: "manage the database schema",
				Subcommands: []*cli.Command{
					{Name: "up", Usage: "apply all pending migrations", Action: migrate(db.MigrateUp)},
					{Name: "down", Usage: "roll back the latest migration", Action: migrate(db.MigrateDown)},
					{Name: "purge-tokens", Usage: "delete expired password reset tokens", Action: purgeTokens},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("taskdesk failed")
	}
}

func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	telemetry.SetupLogger(cfg.IsDevelopment())
	return cfg, nil
}

// stores holds the repositories selected by STORE_DRIVER.
type stores struct {
	users  users.Repository
	tasks  tasks.Repository
	tokens resettoken.Store
	ready  func(ctx context.Context) error
	close  func()
}

func openStores(cfg *config.AppConfig) (*stores, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Warn().Msg("using in-memory stores; data is lost on restart")
		mem := memstore.New()
		return &stores{
			users:  mem.Users,
			tasks:  mem.Tasks,
			tokens: mem.Tokens,
			close:  func() {},
		}, nil
	}

	version, err := db.RunMigrations(cfg.DB, db.MigrateUp)
	if err != nil {
		return nil, err
	}
	log.Info().Uint("version", version).Msg("database schema up to date")

	pool, err := db.NewPool(cfg.DB)
	if err != nil {
		return nil, err
	}
	return &stores{
		users:  users.NewPostgresRepository(pool),
		tasks:  tasks.NewPostgresRepository(pool),
		tokens: resettoken.NewPostgresStore(pool),
		ready:  pool.Ping,
		close:  pool.Close,
	}, nil
}

func newNotifier(cfg *config.AppConfig) resettoken.Notifier {
	if cfg.Mail.Host == "" {
		log.Warn().Msg("SMTP_HOST not set; reset links are written to the log")
		return mailer.LogNotifier{}
	}
	return mailer.NewSMTP(*cfg.Mail, cfg.Reset.TokenTTL)
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Error().Err(err).Msg("tracing shutdown failed")
		}
	}()

	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer st.close()

	m := metrics.New(prometheus.DefaultRegisterer)
	hasher := password.NewBcrypt(cfg.Auth.BcryptCost)
	authority := session.NewAuthority(*cfg.Auth)
	ledger := resettoken.NewLedger(st.tokens, st.users, hasher, newNotifier(cfg), *cfg.Reset).
		WithMetrics(m)

	handler := server.NewRouter(server.Deps{
		Server:    *cfg.Server,
		Authority: authority,
		Auth:      auth.NewHandlers(auth.NewService(st.users, hasher, authority), ledger, cfg.Auth.CookieSecure),
		Users:     users.NewHandlers(users.NewService(st.users)),
		Tasks:     tasks.NewHandlers(tasks.NewService(st.tasks)),
		Metrics:   m,
		Ready:     st.ready,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("store", cfg.StoreDriver).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	ledger.Wait()
	log.Info().Msg("server stopped gracefully")
	return nil
}

func migrate(direction db.MigrateDirection) cli.ActionFunc {
	return func(_ *cli.Context) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.StoreDriver == config.StoreDriverMemory {
			return errors.New("migrate requires STORE_DRIVER=postgres")
		}
		version, err := db.RunMigrations(cfg.DB, direction)
		if err != nil {
			return err
		}
		log.Info().Str("direction", string(direction)).Uint("version", version).Msg("migrations applied")
		return nil
	}
}

func purgeTokens(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.StoreDriver == config.StoreDriverMemory {
		return errors.New("purge-tokens requires STORE_DRIVER=postgres")
	}
	pool, err := db.NewPool(cfg.DB)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := resettoken.NewPostgresStore(pool)
	ledger := resettoken.NewLedger(store, users.NewPostgresRepository(pool), password.NewBcrypt(cfg.Auth.BcryptCost),
		mailer.LogNotifier{}, *cfg.Reset)
	n, err := ledger.Purge(c.Context)
	if err != nil {
		return err
	}
	log.Info().Int64("deleted", n).Msg("expired reset tokens purged")
	return nil
}
