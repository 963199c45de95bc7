// Sayuri is a Matrix bot that manages an Instagram account through chat:
// guided login (with two-factor and challenge support), single unfollow or
// follower removal, and cancellable rate-limited bulk cleanups.
//
// Configuration comes from an optional YAML file plus environment variables
// (environment wins). A .env file in the working directory is loaded first.
//
// Required settings:
//
//	MATRIX_HOMESERVER     - Matrix homeserver URL (e.g. "https://matrix.org")
//	MATRIX_USER_ID        - bot's Matrix ID (e.g. "@sayuri:matrix.org")
//	MATRIX_ACCESS_TOKEN   - bot's Matrix access token
//
// Optional settings:
//
//	SAYURI_CONFIG         - path to sayuri.yaml (default: "./sayuri.yaml")
//	SAYURI_DB_PATH        - path to the SQLite database (default: "./sayuri.db")
//	MATRIX_ROOMS          - comma-separated room allowlist (default: any invited room)
//	SAYURI_NORMAL_DELAY   - delay after a successful action (default: 4s)
//	SAYURI_FAILURE_DELAY  - delay after a failed action (default: 2s)
//	SAYURI_MAX_PER_HOUR   - mutating-action cap per hour (default: 60)
//	LOG_LEVEL             - "debug", "info", "warn", "error" (default: "info")
//	LOG_FORMAT            - "text" or "json" (default: "text")
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/bdobrica/Sayuri/common/version"
	"github.com/bdobrica/Sayuri/internal/sayuri/app"
	"github.com/bdobrica/Sayuri/internal/sayuri/config"
	"github.com/bdobrica/Sayuri/internal/sayuri/matrix"
	"github.com/bdobrica/Sayuri/internal/sayuri/pacer"
)

func main() {
	fmt.Printf("Sayuri Instagram Assistant\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	// A missing .env is fine; explicit environment always takes precedence.
	if err := godotenv.Load(); err == nil {
		fmt.Println("Loaded environment from .env")
	}

	cfgPath := os.Getenv("SAYURI_CONFIG")
	if cfgPath == "" {
		cfgPath = "./sayuri.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg.LogLevel, cfg.LogFormat)

	sayuri, err := app.New(&app.Config{
		DatabasePath: cfg.DatabasePath,
		Matrix: matrix.Config{
			Homeserver:  cfg.Matrix.Homeserver,
			UserID:      cfg.Matrix.UserID,
			AccessToken: cfg.Matrix.AccessToken,
			Rooms:       cfg.Matrix.Rooms,
		},
		Pacer: pacer.Config{
			NormalDelay:  cfg.Pacer.NormalDelay.Std(),
			FailureDelay: cfg.Pacer.FailureDelay.Std(),
			MaxPerHour:   cfg.Pacer.MaxPerHour,
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize Sayuri: %v\n", err)
		os.Exit(1)
	}
	defer sayuri.Stop()

	if err := sayuri.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running Sayuri: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging configures the process-wide slog default.
func setupLogging(level, format string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
