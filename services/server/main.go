package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/qbit/internal/auth"
	"github.com/qbit/internal/config"
	"github.com/qbit/internal/core"
	"github.com/qbit/internal/handler"
	"github.com/qbit/internal/logger"
	"github.com/qbit/internal/model"
	"github.com/qbit/internal/startup"
	"github.com/qbit/internal/ws"
)

type flags struct {
	dev         bool
	migrate     bool
	storeDriver string
	devToken    string
}

func main() {
	logger.SetPrefix("server")
	var f flags
	pflag.BoolVar(&f.dev, "dev", false, "start with embedded PostgreSQL (no external DB required)")
	pflag.BoolVar(&f.migrate, "migrate", false, "apply database migrations and exit")
	pflag.StringVar(&f.storeDriver, "store", "", "claim/ban store: memory, redis or postgres (overrides STORE_DRIVER)")
	pflag.StringVar(&f.devToken, "dev-token", "", "with --dev, print a user token for this user id and continue")
	pflag.Parse()

	if err := run(f); err != nil {
		// the async logger may not drain before exit
		fmt.Fprintf(os.Stderr, "[server] ERROR: %v\n", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// run returns instead of exiting; deferred cleanup of embedded Postgres and
// the store always runs.
func run(f flags) error {
	logger.Info("starting qbit server")
	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)
	if f.storeDriver != "" {
		cfg.StoreDriver = f.storeDriver
	}

	if f.dev {
		embeddedDB, err := startEmbeddedPostgres(cfg)
		if err != nil {
			return fmt.Errorf("embedded postgres: %w", err)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
		if f.storeDriver == "" {
			cfg.StoreDriver = config.StorePostgres
		}
		if cfg.JWTSecret == "" && cfg.AuthServiceURL == "" {
			cfg.JWTSecret = "dev-secret"
			logger.Info("dev: JWT_SECRET not set, using an insecure development secret")
		}
	}
	if f.migrate {
		cfg.StoreDriver = config.StorePostgres
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := startup.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	if f.migrate && !f.dev {
		return nil
	}

	authn := authenticator(cfg)
	if f.dev && f.devToken != "" {
		if j, ok := authn.(*auth.JWTService); ok {
			tok, err := j.Issue(model.Identity{UserID: f.devToken, Name: f.devToken})
			if err != nil {
				logger.Errorf("dev token: %v", err)
			} else {
				logger.Infof("dev token for %s: %s", f.devToken, tok)
			}
		}
	}

	svc := core.NewService(store, core.Options{
		MaxUserConnections: cfg.MaxWSConnections,
		HeartbeatInterval:  cfg.HeartbeatInterval,
	})
	router, _ := handler.NewRouter(svc, handler.RouterConfig{
		Auth:               authn,
		AdminAPIKey:        cfg.AdminAPIKey,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		HeartbeatInterval:  cfg.HeartbeatInterval,
		WS: handler.WSConfig{
			DeviceAPIKey:         cfg.DeviceAPIKey,
			MaxDeviceConnections: cfg.MaxDeviceConnections,
			AllowedOrigins:       cfg.CORSAllowedOrigins,
			Device: ws.Options{
				SendBufSize:    cfg.WSSendBufferSize,
				WriteWait:      cfg.WSWriteTimeout,
				MaxMessageSize: cfg.WSMaxMessageSize,
			},
			User: ws.Options{
				SendBufSize:    cfg.WSSendBufferSize,
				WriteWait:      cfg.WSWriteTimeout,
				PongWait:       cfg.WSPongTimeout,
				MaxMessageSize: cfg.WSMaxMessageSize,
			},
		},
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	coreCtx, coreCancel := context.WithCancel(context.Background())
	defer coreCancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := svc.Run(coreCtx); err != nil {
			return fmt.Errorf("core: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Infof("server listening on %s", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("server shutdown: %v", err)
		}
		logger.Info("server stopped accepting connections")
		// sockets are hijacked and outlive Shutdown; the core closes them
		coreCancel()
		return nil
	})

	return g.Wait()
}

// authenticator prefers local JWT verification and falls back to the account service.
func authenticator(cfg *config.Config) auth.Authenticator {
	if cfg.JWTSecret != "" {
		return auth.NewJWTService(cfg.JWTSecret, 24*time.Hour)
	}
	if cfg.AuthServiceURL != "" {
		return auth.NewServiceClient(cfg.AuthServiceURL, nil)
	}
	logger.Errorf("neither JWT_SECRET nor AUTH_SERVICE_URL is set, every user request will be refused")
	return auth.NewServiceClient("http://127.0.0.1:0", nil)
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "qbit"
		password = "qbit_secret"
		database = "qbit"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
