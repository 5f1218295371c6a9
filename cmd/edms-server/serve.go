package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/docflow/edms/pkg/api"
	"github.com/docflow/edms/pkg/audit"
	"github.com/docflow/edms/pkg/authn"
	"github.com/docflow/edms/pkg/config"
	"github.com/docflow/edms/pkg/documents"
	"github.com/docflow/edms/pkg/lifecycle"
	"github.com/docflow/edms/pkg/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runServe(cmd)
	},
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", ":8080", "Address to listen on (overrides server.listen)")
}

func runServe(cmd *cobra.Command) {
	logger := newLogger()

	cfg, err := loadConfig(cmd)
	if err != nil {
		glog.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(cfg.Database)
	if err != nil {
		glog.Fatalf("Failed to connect to database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		glog.Fatalf("Failed to get database handle: %v", err)
	}

	docStore := store.New(db)
	auditStore := audit.NewGormRecorder(db)
	if err := store.Migrate(ctx, store.NewMigrationLocker(db), docStore, auditStore); err != nil {
		glog.Fatalf("Failed to migrate database: %v", err)
	}

	resolver, err := newResolver(cfg, logger)
	if err != nil {
		glog.Fatalf("Failed to set up authentication: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []documents.Option{
		documents.WithRecorder(auditStore),
		documents.WithHistory(auditStore),
		documents.WithRetries(cfg.Lifecycle.CommitRetries),
		documents.WithLogger(logger),
		documents.WithMetrics(documents.NewMetrics(reg)),
	}
	if dir := cfg.Storage.ContentDir; dir != "" {
		var loader documents.ContentLoader = documents.FSLoader{
			FS:       os.DirFS(dir),
			MaxBytes: cfg.Storage.MaxContentBytes,
		}
		if n := cfg.Storage.ContentCacheEntries; n > 0 {
			loader = documents.NewCachingLoader(loader, n, cfg.Storage.ContentCacheTTL)
		}
		opts = append(opts, documents.WithContentLoader(loader))
		logger.Info("content diffs enabled", "contentDir", dir, "cacheEntries", cfg.Storage.ContentCacheEntries)
	}
	engine := lifecycle.NewEngine(lifecycle.WithRules(cfg.Lifecycle.Rules))
	svc := documents.NewService(docStore, engine, opts...)

	router := api.NewRouter(api.Config{
		Documents:      svc,
		Resolver:       resolver,
		AuditRecorder:  auditStore,
		AuditLister:    auditStore,
		Audit:          cfg.Audit,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Ping:           sqlDB.PingContext,
		Logger:         logger,
	})

	if cfg.Audit.Enabled {
		go audit.NewRetentionWorker(auditStore, cfg.Audit.RetentionDays, logger).Run(ctx)
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			glog.Fatalf("HTTP server error: %v", err)
		}
	}()

	logger.Info("edms server ready",
		"listen", cfg.Server.Listen,
		"database", cfg.Database.Type,
		"authMode", cfg.Auth.Mode,
		"commitRetries", cfg.Lifecycle.CommitRetries,
	)

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := sqlDB.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}
	logger.Info("edms server stopped")
}

func newResolver(cfg *config.Config, logger *slog.Logger) (authn.Resolver, error) {
	switch cfg.Auth.Mode {
	case config.AuthJWT:
		r, err := authn.NewJWTResolver(cfg.Auth.JWT, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("using JWT auth",
			"issuer", cfg.Auth.JWT.Issuer,
			"hasPublicKey", cfg.Auth.JWT.PublicKeyPath != "")
		return r, nil
	default:
		logger.Info("using header-based auth", "userHeader", authn.HeaderUser)
		return authn.HeaderResolver{}, nil
	}
}
