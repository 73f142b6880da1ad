package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"tailscale.com/tsnet"

	"github.com/meltforce/liftlog"
	"github.com/meltforce/liftlog/internal/config"
	"github.com/meltforce/liftlog/internal/estimator"
	"github.com/meltforce/liftlog/internal/history"
	"github.com/meltforce/liftlog/internal/legacy"
	"github.com/meltforce/liftlog/internal/mcp"
	"github.com/meltforce/liftlog/internal/server"
	"github.com/meltforce/liftlog/internal/storage"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit")
	mcpStdio := flag.Bool("mcp", false, "serve MCP over stdio instead of HTTP")
	flag.Parse()

	// In MCP mode stdout belongs to the protocol.
	logOut := os.Stdout
	if *mcpStdio {
		logOut = os.Stderr
	}
	log := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log.Info("LiftLog starting", "version", Version)

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Open database and run migrations
	ctx := context.Background()
	db, err := storage.Open(ctx, cfg.Database.Path)
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.RunMigrations(liftlog.MigrationsFS); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}
	log.Info("migrations applied", "path", cfg.Database.Path)

	if *migrateOnly {
		log.Info("migrate-only: exiting")
		return
	}

	// One-time legacy import. Failures are logged inside the result and the
	// server starts regardless; the next run retries.
	if res := legacy.NewMigrator(db, log, cfg.Legacy.Path).Run(ctx); res.Migrated {
		log.Info("legacy data migrated", "rows", res.RowCount, "dropped", res.Dropped)
	}

	// Projections
	hist := history.NewStore(db, log)
	cache := estimator.NewCache(db, db, log)
	cache.Load(ctx)
	cache.RebuildAll(ctx)

	if *mcpStdio {
		log.Info("serving MCP over stdio")
		if err := mcpserver.ServeStdio(mcp.New(db, hist, cache, Version, log)); err != nil {
			log.Error("mcp server error", "error", err)
			os.Exit(1)
		}
		return
	}

	srv := server.New(db, hist, cache, cfg.Auth.APIKey, log)

	// Start server on tsnet or plain HTTP
	var listener net.Listener

	if cfg.Tailscale.Enabled {
		tsServer := &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			log.Error("tsnet start failed", "error", err)
			os.Exit(1)
		}
		defer tsServer.Close()

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			log.Error("tsnet listen failed", "error", err)
			os.Exit(1)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		log.Info("server starting", "addr", addr, "mode", "dev (no tailscale)")
	}

	httpSrv := &http.Server{Handler: srv}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	log.Info("server stopped")
}
