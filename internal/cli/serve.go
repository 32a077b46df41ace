package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/peopledesk/starled/internal/api"
	"github.com/peopledesk/starled/internal/app/stars"
	"github.com/peopledesk/starled/internal/daemon"
	"github.com/peopledesk/starled/internal/domain"
	"github.com/peopledesk/starled/internal/infra/directory"
	"github.com/peopledesk/starled/internal/infra/postgres"
	"github.com/peopledesk/starled/internal/infra/sqlite"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("config", "c", "", "Path to config.toml")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the stars engine HTTP server",
	Long: `Start the stars engine: open the configured ledger store, apply
migrations, and serve the JSON API until interrupted.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := daemon.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, dir, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	quota := stars.NewTracker(store)
	redemption := stars.NewRedemption(store, dir, quota)
	aggregator := stars.NewAggregator(store, dir)

	server := api.NewServer(quota, redemption, aggregator, api.NewHeaderIdentity())
	server.SetRequestTimeout(cfg.RequestTimeout())
	if cfg.API.Metrics {
		server.EnableMetrics()
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Addr()).Info("stars engine listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

// openStore opens the configured ledger store and employee directory.
func openStore(ctx context.Context, cfg daemon.Config) (domain.LedgerStore, domain.EmployeeDirectory, func(), error) {
	var (
		store   domain.LedgerStore
		sqlDir  domain.EmployeeDirectory
		cleanup func()
	)

	switch cfg.Store.Driver {
	case "sqlite":
		db, err := sqlite.Open(cfg.Store.SQLiteDir)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		store, sqlDir, cleanup = db, db.Directory(), func() { db.Close() }
	case "postgres":
		pg, err := postgres.New(ctx, postgres.Config{
			DSN:      cfg.Store.PostgresDSN,
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		store, sqlDir, cleanup = pg, pg.Directory(), pg.Close
	default:
		return nil, nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	dir := sqlDir
	if cfg.Directory.Source == "static" {
		employees := make([]directory.Employee, 0, len(cfg.Directory.Static))
		for _, e := range cfg.Directory.Static {
			employees = append(employees, directory.Employee{
				ID:          e.ID,
				DisplayName: e.DisplayName,
				Department:  e.Department,
			})
		}
		dir = directory.NewStatic(employees)
	}
	return store, dir, cleanup, nil
}

func setupLogging(cfg daemon.LogConfig) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
}
