package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"gorm.io/gorm"

	"github.com/atvirokodosprendimai/sciencemap/internal/adapters/db/postgres"
	sqliteadapter "github.com/atvirokodosprendimai/sciencemap/internal/adapters/db/sqlite"
	"github.com/atvirokodosprendimai/sciencemap/internal/adapters/db/store"
	httpadapter "github.com/atvirokodosprendimai/sciencemap/internal/adapters/http"
	rpcadapter "github.com/atvirokodosprendimai/sciencemap/internal/adapters/rpcjson"
	"github.com/atvirokodosprendimai/sciencemap/internal/application"
	"github.com/atvirokodosprendimai/sciencemap/internal/auth"
	"github.com/atvirokodosprendimai/sciencemap/internal/config"
	"github.com/atvirokodosprendimai/sciencemap/internal/observability"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:  "sciencemap",
		Usage: "Science catalog server and CLI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "TOML config file", Sources: cli.EnvVars("SCIENCEMAP_CONFIG")},
		},
		Commands: []*cli.Command{
			serverCommand(),
			authCommand(),
			elementsCommand(),
			relationsCommand(),
			usersCommand(),
			auditCommand(),
			exportCommand(),
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		log.Fatal().Err(err).Msg("sciencemap failed")
	}
}

func loadServerConfig(c *cli.Command) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return config.Config{}, err
	}
	if c.IsSet("addr") {
		cfg.Addr = c.String("addr")
	}
	if c.IsSet("rpc-socket") {
		cfg.RPCSocket = c.String("rpc-socket")
	}
	if c.IsSet("db-driver") {
		cfg.DB.Driver = c.String("db-driver")
	}
	if c.IsSet("db-dsn") {
		cfg.DB.DSN = c.String("db-dsn")
	}
	return cfg, cfg.Validate()
}

func databaseFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "db-driver", Usage: "sqlite or postgres"},
		&cli.StringFlag{Name: "db-dsn", Usage: "SQLite path or Postgres DSN"},
	}
}

func serverCommand() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Run HTTP and JSON-RPC servers",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "HTTP listen address"},
			&cli.StringFlag{Name: "rpc-socket", Usage: "JSON-RPC unix socket path"},
		}, databaseFlags()...),
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadServerConfig(c)
			if err != nil {
				return err
			}
			return runServer(ctx, cfg)
		},
	}
}

// openRepository opens and migrates the configured database.
func openRepository(ctx context.Context, cfg config.Config) (*store.Repository, func(), error) {
	var (
		db      *gorm.DB
		dialect store.Dialect
		err     error
	)
	switch cfg.DB.Driver {
	case "postgres":
		db, err = postgres.Open(ctx, cfg.DB.DSN)
		if err == nil {
			err = postgres.RunMigrations(ctx, db)
		}
		dialect = postgres.Dialect()
	default:
		db, err = sqliteadapter.Open(cfg.DB.DSN)
		if err == nil {
			err = sqliteadapter.RunMigrations(ctx, db)
		}
		dialect = sqliteadapter.Dialect()
	}
	closeDB := func() {
		if db == nil {
			return
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("open %s database: %w", cfg.DB.Driver, err)
	}
	return store.New(db, dialect), closeDB, nil
}

func newTokenManager(cfg config.AuthConfig, logger zerolog.Logger) (*auth.Manager, error) {
	secret := []byte(cfg.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
		logger.Warn().Msg("auth.secret not set; issued tokens will not survive a restart")
	}
	return auth.NewManager(auth.Config{
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
		Secret:   secret,
		Lifetime: cfg.TokenTTL,
	})
}

func runServer(ctx context.Context, cfg config.Config) error {
	logger := observability.InitLogger("sciencemap", observability.LogConfig{Level: cfg.Log.Level, Console: cfg.Log.Console})
	observability.RegisterMetrics()

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	repo, closeDB, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	tokens, err := newTokenManager(cfg.Auth, logger)
	if err != nil {
		return err
	}
	accounts := application.NewAccountService(repo, tokens)
	if err := accounts.BootstrapWriter(ctx, cfg.Auth.BootstrapUsername, cfg.Auth.BootstrapEmail, cfg.Auth.BootstrapPassword); err != nil {
		return err
	}
	catalog := application.NewCatalogService(repo,
		application.WithLogger(logger.With().Str("component", "catalog").Logger()),
		application.WithObserver(observability.MutationMetrics{}),
	)

	router := httpadapter.NewRouter(catalog, accounts, logger)
	srv := &http.Server{Addr: cfg.Addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	rpcSrv, err := rpcadapter.Start(cfg.RPCSocket, catalog, accounts, logger.With().Str("component", "rpc").Logger())
	if err != nil {
		return err
	}
	defer func() {
		_ = rpcSrv.Close()
	}()
	logger.Info().Str("socket", cfg.RPCSocket).Msg("json-rpc listening")

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("db", cfg.DB.Driver).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func jsonMarshal(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
