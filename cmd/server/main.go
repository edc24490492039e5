// Package main is the entry point for the Showdex API server.
//
// main only reads configuration, opens the store, picks the email sender
// and hands them to internal/server. Everything else lives in internal/.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	// Embedded zone database, so DISPLAY_TIMEZONE works in minimal images.
	_ "time/tzdata"

	"github.com/sakif/showdex/internal/config"
	"github.com/sakif/showdex/internal/metrics"
	"github.com/sakif/showdex/internal/notify"
	"github.com/sakif/showdex/internal/repository/mongodb"
	sqliteRepo "github.com/sakif/showdex/internal/repository/sqlite"
	"github.com/sakif/showdex/internal/server"
)

func main() {
	envFile := flag.String("env", ".env", "dotenv file to seed the environment from")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [-env file]\n\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
		fmt.Fprintln(flag.CommandLine.Output())
		fmt.Fprintln(flag.CommandLine.Output(), config.Usage())
	}
	flag.Parse()

	// === 1. CONFIGURATION AND LOGGING ===
	cfg, err := config.Load(*envFile)
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	if cfg.ExposeCodes && cfg.IsProduction() {
		logger.Warn("EXPOSE_CODES is set in production; verification codes will appear in API responses")
	}

	// === 2. STORE ===
	deps, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("failed to open store",
			slog.String("driver", cfg.Store.Driver),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// === 3. EMAIL ===
	if cfg.SMTP.Enabled() {
		deps.Sender = notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			FromName: cfg.SMTP.FromName,
		}, logger)
	} else {
		logger.Warn("SMTP_PASSWORD not set, account emails will only be logged")
		deps.Sender = notify.NewLogSender(logger)
	}
	deps.Metrics = metrics.New()

	// === 4. SERVER ===
	srv, err := server.New(server.Config{
		Port:            cfg.Port,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		CodeTTL:         cfg.CodeTTL,
		ExposeCodes:     cfg.ExposeCodes,
		Location:        cfg.Location(),
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, deps, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT or SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// openStore connects the configured backend and returns it as server
// dependencies, with Close set.
func openStore(cfg *config.Config, logger *slog.Logger) (server.Deps, error) {
	switch cfg.Store.Driver {
	case config.DriverMongo:
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		store, err := mongodb.Connect(ctx, cfg.Store.MongoURI, cfg.Store.MongoDatabase)
		if err != nil {
			return server.Deps{}, err
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			store.Close(ctx)
			return server.Deps{}, err
		}
		logger.Info("store ready", slog.String("driver", "mongo"), slog.String("database", cfg.Store.MongoDatabase))
		return server.Deps{Users: store.Users(), Shows: store.Shows(), Close: store.Close}, nil

	default:
		if dir := filepath.Dir(cfg.Store.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return server.Deps{}, fmt.Errorf("creating %s: %w", dir, err)
			}
		}
		db, err := sqliteRepo.New(cfg.Store.DBPath)
		if err != nil {
			return server.Deps{}, err
		}
		logger.Info("store ready", slog.String("driver", "sqlite"), slog.String("path", cfg.Store.DBPath))
		return server.Deps{
			Users: db.Users(),
			Shows: db.Shows(),
			Close: func(context.Context) error { return db.Close() },
		}, nil
	}
}
