package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bdobrica/Hikyaku/common/version"
	"github.com/bdobrica/Hikyaku/internal/hikyaku/app"
	"github.com/bdobrica/Hikyaku/internal/hikyaku/config"
)

func main() {
	fmt.Printf("Hikyaku\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.CheckBinary(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\nSet CLAUDE_BIN_PATH to the Claude Code CLI.\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	bot, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize Hikyaku: %v\n", err)
		os.Exit(1)
	}
	defer bot.Stop()

	if err := bot.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error running Hikyaku: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging configures the default slog handler from LOG_FORMAT and
// LOG_LEVEL.
func setupLogging() {
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if os.Getenv("LOG_FORMAT") == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}
