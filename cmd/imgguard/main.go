package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"imgguard/internal/app"
	"imgguard/internal/config"
)

var (
	configFile = flag.String("config", "", "config file path (built-in defaults when empty)")
	logLevel   = flag.String("log-level", "info", "log level")
)

func main() {
	flag.Parse()

	setupLogging(*logLevel)

	cfg, err := loadConfig(*configFile)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	builder := app.NewBuilder(cfg, slog.Default())
	if *configFile != "" {
		builder.WithConfigPath(*configFile)
	}

	server, err := builder.Build()
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := server.Start(ctx); err != nil {
		slog.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		slog.Error("failed to stop server", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the named file, or falls back to the embedded
// defaults plus environment overrides when no file is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, err
	}
	if err := config.LoadEnv(cfg); err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func setupLogging(level string) {
	lvl := logLevels[strings.ToLower(level)]
	if lvl == 0 {
		lvl = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})))
}
