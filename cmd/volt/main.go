package main

import (
	"context"
	"errors"
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

	"github.com/voltbora/volt/internal/achievements"
	"github.com/voltbora/volt/internal/app"
	"github.com/voltbora/volt/internal/config"
	voltmcp "github.com/voltbora/volt/internal/mcp"
	"github.com/voltbora/volt/internal/metrics"
	"github.com/voltbora/volt/internal/server"
	"github.com/voltbora/volt/internal/storage"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit")
	migrationsPath := flag.String("migrations", "migrations", "path to migration files")
	mcpStdio := flag.Bool("mcp-stdio", false, "serve MCP over stdin/stdout instead of HTTP")
	mcpRemote := flag.String("mcp-remote", "", "with -mcp-stdio, forward tool calls to this Volt server URL")
	userID := flag.Int("user", 0, "with -mcp-stdio, user the tools act for")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(Version)
		return
	}

	// stdout carries the MCP protocol in stdio mode.
	logOut := os.Stdout
	if *mcpStdio {
		logOut = os.Stderr
	}
	log := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log.Info("Volt starting", "version", Version)

	if *mcpStdio && *mcpRemote != "" {
		runRemoteBridge(log, *mcpRemote, *userID)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if *migrateOnly {
		if !cfg.Database.Hosted() {
			log.Info("migrate-only: no hosted database configured")
			return
		}
		if err := storage.RunMigrations(cfg.Database.DSN(), *migrationsPath); err != nil {
			log.Error("migration failed", "error", err)
			os.Exit(1)
		}
		log.Info("migrate-only: migrations applied")
		return
	}

	ctx := context.Background()
	a, err := app.Open(ctx, cfg, log, app.Options{MigrationsPath: *migrationsPath})
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	mcpSrv := voltmcp.New(voltmcp.NewLocal(a.Trackers, a.History, cfg.Game.Location()), a.Catalog, Version, log)

	if *mcpStdio {
		err := mcpserver.ServeStdio(mcpSrv, mcpserver.WithStdioContextFunc(func(ctx context.Context) context.Context {
			return voltmcp.WithUserID(ctx, *userID)
		}))
		if err != nil {
			log.Error("mcp stdio server error", "error", err)
			os.Exit(1)
		}
		return
	}

	mcpHTTP := mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return voltmcp.WithUserID(ctx, server.UserID(r.Context()))
		}),
	)

	deps := server.Deps{
		Trackers:       a.Trackers,
		History:        a.History,
		Alpha:          a.Alpha,
		Metrics:        a.Metrics,
		MetricsHandler: metrics.Handler(a.Registry),
		MCP:            mcpHTTP,
		Location:       cfg.Game.Location(),
		HistoryLimit:   cfg.Game.HistoryLimit,
		APIKey:         cfg.Auth.APIKey,
		Log:            log,
	}
	if a.DB != nil {
		deps.Imports = a.DB
		deps.Health = a.DB
	}
	srv := server.New(deps)

	// Start server: tsnet or plain HTTP
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

		lc, err := tsServer.LocalClient()
		if err != nil {
			log.Error("tsnet local client failed", "error", err)
			os.Exit(1)
		}
		if a.DB != nil {
			srv.SetTailscale(lc, a.DB)
		} else {
			log.Warn("tailnet identity needs a hosted database, falling back to the user header")
		}

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
		log.Info("server starting", "addr", addr, "hosted", a.DB != nil)
	}

	httpSrv := &http.Server{Handler: srv, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// runRemoteBridge serves MCP over stdio, answering every tool call through the
// HTTP API of a running Volt server. The API key comes from VOLT_API_KEY.
func runRemoteBridge(log *slog.Logger, baseURL string, userID int) {
	client := voltmcp.NewHTTPClient(baseURL, os.Getenv("VOLT_API_KEY"))
	s := voltmcp.New(client, achievements.DefaultCatalog(), Version, log)
	log.Info("mcp bridge starting", "remote", baseURL, "user_id", userID)

	err := mcpserver.ServeStdio(s, mcpserver.WithStdioContextFunc(func(ctx context.Context) context.Context {
		return voltmcp.WithUserID(ctx, userID)
	}))
	if err != nil {
		log.Error("mcp bridge error", "error", err)
		os.Exit(1)
	}
}
