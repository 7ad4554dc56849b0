package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/edustack-labs/edustack/internal/auth"
	"github.com/edustack-labs/edustack/internal/chat"
	"github.com/edustack-labs/edustack/internal/chat/archive"
	"github.com/edustack-labs/edustack/internal/config"
	"github.com/edustack-labs/edustack/internal/httpapi"
	"github.com/edustack-labs/edustack/internal/llm"
	"github.com/edustack-labs/edustack/internal/monitor"
	"github.com/edustack-labs/edustack/internal/platform"
	"github.com/edustack-labs/edustack/internal/provision"
)

var (
	// Version is set via -ldflags at build time.
	Version = "dev"
	// Commit is set via -ldflags at build time.
	Commit = "unknown"
	// BuildTime is set via -ldflags at build time.
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	// Local development keeps secrets in a .env file; absence is fine.
	_ = godotenv.Load()

	switch os.Args[1] {
	case "serve":
		serveCmd(os.Args[2:])
	case "provision":
		provisionCmd(os.Args[2:])
	case "version":
		fmt.Printf("edustack %s (%s) %s\n", Version, Commit, BuildTime)
	default:
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `edustack

Usage:
  edustack serve [flags]
  edustack provision [flags]
  edustack version

Commands:
  serve       Run the chat and platform HTTP API.
  provision   Clean, apply, seed and verify the Postgres schema.
  version     Print build information.

`)
}

func newLogger(format string, level string, debug bool) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	if debug {
		lvl = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(strings.TrimSpace(format)) == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func serveCmd(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	port := fs.Int("port", 0, "Listen port (overrides config)")
	_ = fs.Parse(args)

	cfg, err := config.LoadOrDefault(filepath.Clean(*cfgPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.ApplyEnv()
	if *port != 0 {
		cfg.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogFormat, cfg.LogLevel, cfg.Debug)
	slog.SetDefault(log)

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		log.Error("llm provider init failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	archivePath := cfg.ArchivePath
	if strings.TrimSpace(archivePath) == "" {
		archivePath = config.DefaultArchivePath()
	}
	var arch *archive.Store
	if st, err := archive.Open(archivePath); err != nil {
		log.Warn("transcript archive unavailable", "path", archivePath, "error", err)
	} else {
		arch = st
		defer arch.Close()
	}

	chatSvc, err := chat.NewService(chat.Options{
		Logger:   log,
		Provider: provider,
		Archive:  arch,
		MaxTurns: cfg.EffectiveMaxTurns(),
	})
	if err != nil {
		log.Error("chat service init failed", "error", err)
		os.Exit(1)
	}
	defer chatSvc.Close()

	srvOpts := httpapi.Options{
		Logger:        log,
		Port:          cfg.EffectivePort(),
		Chat:          chatSvc,
		ProviderName:  provider.Name(),
		ProviderModel: provider.Model(),
		Archive:       arch,
		Monitor:       monitor.NewService(log),
		Version:       Version,
	}

	// Account endpoints come up only with both a database and a signing key.
	if strings.TrimSpace(cfg.DatabaseURL) != "" && strings.TrimSpace(cfg.SecretKey) != "" {
		connectCtx, connectCancel := context.WithTimeout(ctx, 15*time.Second)
		pool, err := platform.Connect(connectCtx, cfg.DatabaseURL)
		connectCancel()
		if err != nil {
			log.Error("database connect failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		tokens, err := auth.NewManager(cfg.SecretKey)
		if err != nil {
			log.Error("auth init failed", "error", err)
			os.Exit(1)
		}
		srvOpts.Tokens = tokens
		srvOpts.Users = platform.NewUsers(pool)
		srvOpts.Institutions = platform.NewInstitutions(pool)
		srvOpts.DBPing = pool.Ping
	} else {
		log.Warn("account endpoints disabled", "reason", "database_url or secret_key not configured")
	}

	srv, err := httpapi.New(srvOpts)
	if err != nil {
		log.Error("http server init failed", "error", err)
		os.Exit(1)
	}
	if err := srv.Start(ctx); err != nil {
		log.Error("http server start failed", "error", err)
		os.Exit(1)
	}
	defer srv.Close()

	// Graceful shutdown on SIGINT/SIGTERM.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
		log.Info("shutting down")
	case <-ctx.Done():
	}
}

func provisionCmd(args []string) {
	fs := flag.NewFlagSet("provision", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	dbURL := fs.String("database-url", "", "Postgres connection string (overrides config and DATABASE_URL)")
	schemaPath := fs.String("schema", "", "Schema SQL file (default: embedded schema)")
	confirm := fs.Bool("confirm", false, "Acknowledge that the target database will be wiped")
	logFormat := fs.String("log-format", "text", "Log format: json|text")
	logLevel := fs.String("log-level", "info", "Log level: debug|info|warn|error")
	timeout := fs.Duration("timeout", 5*time.Minute, "Overall provisioning timeout")
	_ = fs.Parse(args)

	log := newLogger(*logFormat, *logLevel, false)

	url := strings.TrimSpace(*dbURL)
	if url == "" {
		cfg, err := config.LoadOrDefault(filepath.Clean(*cfgPath))
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg.ApplyEnv()
		url = strings.TrimSpace(cfg.DatabaseURL)
	}
	if url == "" {
		fmt.Fprintln(os.Stderr, "no database url: pass -database-url or set DATABASE_URL")
		os.Exit(2)
	}
	if !*confirm {
		fmt.Fprintln(os.Stderr, "provisioning drops every object in the target schema; rerun with -confirm")
		os.Exit(2)
	}

	schemaSQL := ""
	if p := strings.TrimSpace(*schemaPath); p != "" {
		raw, err := os.ReadFile(filepath.Clean(p))
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read schema file: %v\n", err)
			os.Exit(1)
		}
		schemaSQL = string(raw)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := platform.Connect(ctx, url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database connect failed: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	runner, err := provision.NewPgRunner(pool)
	if err != nil {
		fmt.Fprintf(os.Stderr, "runner init failed: %v\n", err)
		os.Exit(1)
	}

	wf, err := provision.New(provision.Options{
		Logger:    log,
		Runner:    runner,
		SchemaSQL: schemaSQL,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "workflow init failed: %v\n", err)
		os.Exit(1)
	}

	if err := wf.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "provisioning failed (state %s): %v\n", wf.State(), err)
		os.Exit(1)
	}

	fmt.Printf("Database provisioned (state %s)\n", wf.State())
	for _, warn := range wf.Warnings() {
		fmt.Printf("  warning: %s\n", warn)
	}
}
