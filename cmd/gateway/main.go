package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	api "github.com/mind-engage/mindengage-adaptive/internal/api/http"
	"github.com/mind-engage/mindengage-adaptive/internal/assessment"
	auth "github.com/mind-engage/mindengage-adaptive/internal/auth/middleware"
	"github.com/mind-engage/mindengage-adaptive/internal/cache"
	"github.com/mind-engage/mindengage-adaptive/internal/config"
	"github.com/mind-engage/mindengage-adaptive/internal/db"
	"github.com/mind-engage/mindengage-adaptive/internal/engine"
	"github.com/mind-engage/mindengage-adaptive/internal/logging"
	"github.com/mind-engage/mindengage-adaptive/internal/metrics"
	"github.com/mind-engage/mindengage-adaptive/internal/oracle"
	syncx "github.com/mind-engage/mindengage-adaptive/internal/sync"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gateway",
		Short:         "Adaptive assessment session engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          func(cmd *cobra.Command, _ []string) error { return serve(cmd.Context()) },
	}
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  func(cmd *cobra.Command, _ []string) error { return serve(cmd.Context()) },
	})

	var driver, dsn string
	mig := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgDriver, cfgDSN, err := config.Database()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("driver") {
				driver = cfgDriver
			}
			if !cmd.Flags().Changed("dsn") {
				dsn = cfgDSN
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			dbh, err := db.Open(ctx, db.Driver(driver), dsn)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			defer dbh.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (db=%s)\n", driver)
			return nil
		},
	}
	mig.Flags().StringVar(&driver, "driver", "", "sqlite or postgres (default DB_DRIVER)")
	mig.Flags().StringVar(&dsn, "dsn", "", "database DSN (default DB_DSN)")
	root.AddCommand(mig)
	return root
}

func serve(parent context.Context) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Store + event log ---
	var (
		store  assessment.Store
		events syncx.Log
		dbh    *sql.DB
	)
	if cfg.DBDriver == "memory" {
		store = assessment.NewInMemoryStore()
		events = syncx.NewMemoryLog()
	} else {
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		dbh, err = db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN)
		cancel()
		if err != nil {
			return fmt.Errorf("db open: %w", err)
		}
		defer dbh.Close()
		store = assessment.NewSQLStore(dbh, cfg.DBDriver)
		events = syncx.NewEventRepo(dbh, string(cfg.Mode))
	}

	if cfg.Redis.Addr != "" {
		rc, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rc.Close()
		store = cache.NewCachedStore(store, cache.NewAssessmentCache(rc, cfg.Redis.TTL), logger)
	}

	// --- Oracle + engine ---
	m := metrics.New(prometheus.NewRegistry())
	oc, err := oracle.NewHTTPClient(oracle.Config{
		BaseURL:      cfg.Oracle.BaseURL,
		Timeout:      cfg.Oracle.Timeout,
		TokenURL:     cfg.Oracle.TokenURL,
		ClientID:     cfg.Oracle.ClientID,
		ClientSecret: cfg.Oracle.ClientSecret,
		RPS:          cfg.Oracle.RPS,
	}, oracle.WithMetrics(m), oracle.WithLogger(logger))
	if err != nil {
		return err
	}
	eng := engine.New(store, oc,
		engine.WithLogger(logger),
		engine.WithMetrics(m),
		engine.WithEvents(events),
		engine.WithSessionFloor(cfg.SessionFloor),
	)

	authSvc := auth.NewAuthService(cfg.AuthHMACSecret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logging.Middleware(logger), m.Middleware, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.EnableLocalAuth {
		r.Post("/auth/login", auth.LoginHandler(authSvc))
	}
	api.Mount(r, api.Deps{Store: store, Engine: eng, Auth: authSvc, Events: events, Log: logger})
	api.Health(r, func(r *http.Request) error {
		if dbh == nil {
			return nil
		}
		return dbh.PingContext(r.Context())
	})
	r.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("mode", string(cfg.Mode)),
			zap.String("db", cfg.DBDriver),
			zap.String("oracle", cfg.Oracle.BaseURL))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
