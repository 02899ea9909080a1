package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"reconbook/api/db"
	"reconbook/api/internal/app"
	"reconbook/api/internal/archive"
	"reconbook/api/internal/config"
	"reconbook/api/internal/export"
	"reconbook/api/internal/history"
	"reconbook/api/internal/kvstore"
	"reconbook/api/internal/search"
	"reconbook/api/internal/store"
	"reconbook/api/internal/vault"

	"go.uber.org/zap"
)

func newLogger(level string) (*zap.Logger, error) {
	atomicLevel, err := zap.ParseAtomicLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("parse LOG_LEVEL: %w", err)
	}
	logCfg := zap.NewProductionConfig()
	logCfg.Level = atomicLevel
	return logCfg.Build()
}

func migrate(ctx context.Context, conn *sql.DB, cfg config.Config) error {
	if strings.TrimSpace(cfg.MigrationsDir) != "" {
		return store.ApplyMigrations(ctx, conn, cfg.MigrationsDir)
	}
	return store.ApplyMigrationsFS(ctx, conn, db.Migrations())
}

func runMigrate(ctx context.Context, configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if cfg.StoreDriver != config.DriverPostgres {
		return fmt.Errorf("migrate requires STORE_DRIVER=postgres")
	}
	conn, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer conn.Close()
	return migrate(ctx, conn, cfg)
}

// components owns everything that has to be closed on shutdown.
type components struct {
	service *app.Service
	closers []func()
}

func (c *components) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*components, error) {
	c := &components{}
	deps := app.Deps{Logger: logger, Export: export.NewService()}

	var (
		memory   *store.MemoryStore
		postgres *store.PostgresStore
	)
	switch cfg.StoreDriver {
	case config.DriverMemory:
		logger.Warn("using in-memory store; data is lost on restart")
		memory = store.NewMemoryStore()
		deps.Records = memory
	default:
		conn, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return c, fmt.Errorf("database connection failed: %w", err)
		}
		c.closers = append(c.closers, func() { _ = conn.Close() })
		if err := migrate(ctx, conn, cfg); err != nil {
			return c, fmt.Errorf("migrations failed: %w", err)
		}
		postgres = store.NewPostgresStore(conn)
		deps.Records = postgres
	}

	switch cfg.ChecklistDriver() {
	case config.DriverRedis:
		logger.Info("using Redis for checklists")
		checklists, err := kvstore.NewChecklistStore(cfg.RedisURL)
		if err != nil {
			return c, fmt.Errorf("redis connection failed: %w", err)
		}
		c.closers = append(c.closers, func() { _ = checklists.Close() })
		deps.Checklists = checklists
	case config.DriverMemory:
		if memory == nil {
			memory = store.NewMemoryStore()
		}
		deps.Checklists = memory
	default:
		deps.Checklists = postgres
	}

	if cfg.VaultPassphrase != "" {
		v, err := vault.New(cfg.VaultPassphrase, cfg.VaultSalt)
		if err != nil {
			return c, fmt.Errorf("vault: %w", err)
		}
		deps.Vault = v
	} else {
		logger.Warn("VAULT_PASSPHRASE is not set; credentials are stored in plaintext")
	}

	if strings.TrimSpace(cfg.HistoryDir) != "" {
		recorder, err := history.Open(cfg.HistoryDir)
		if err != nil {
			return c, fmt.Errorf("open history repo: %w", err)
		}
		deps.History = recorder
	}

	var engine search.Engine
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		c.closers = append(c.closers, meili.Close)
		engine = meili
	}
	deps.Search = search.NewService(engine, search.NewStoreSearcher(deps.Records), logger)

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		minioArchive, err := archive.NewMinioArchive(ctx, archive.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return c, fmt.Errorf("minio archive: %w", err)
		}
		deps.Archive = minioArchive
	} else if strings.TrimSpace(cfg.ReportsDir) != "" {
		fileArchive, err := archive.NewFileArchive(cfg.ReportsDir)
		if err != nil {
			return c, fmt.Errorf("report archive: %w", err)
		}
		deps.Archive = fileArchive
	}

	c.service = app.New(deps)
	return c, nil
}

func runServe(ctx context.Context, configFile string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	c, err := build(ctx, cfg, logger)
	defer c.close()
	if err != nil {
		return err
	}
	if err := c.service.Bootstrap(ctx); err != nil {
		logger.Warn("search bootstrap failed; will retry on next restart", zap.Error(err))
	}

	httpServer := app.NewHTTPServer(c.service, cfg.CORSOrigin,
		app.WithLogger(logger),
		app.WithAPIToken(cfg.APIToken),
		app.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		app.WithTrustedProxies(cfg.TrustedProxies),
	)
	defer httpServer.Close()

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("reconbook API listening", zap.String("addr", cfg.Addr), zap.String("store", cfg.StoreDriver), zap.String("checklists", cfg.ChecklistDriver()))
		serverErrors <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
