// Command migrate applies, rolls back, or reports database migrations.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/responseable/onboarding/internal/config"
	"github.com/responseable/onboarding/pkg/database"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: migrate <up|down|version>")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	migrator, err := database.NewMigrator(cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to initialize migrator", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			slog.Error("Failed to close migrator", "error", err)
		}
	}()

	switch os.Args[1] {
	case "up":
		if err := migrator.Up(); err != nil {
			slog.Error("Migration failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Migrations applied")
	case "down":
		if err := migrator.Down(); err != nil {
			slog.Error("Rollback failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Rolled back one migration")
	case "version":
		version, dirty, err := migrator.Version()
		if err != nil {
			slog.Error("Failed to read migration version", "error", err)
			os.Exit(1)
		}
		fmt.Printf("version=%d dirty=%v\n", version, dirty)
	default:
		fmt.Fprintln(os.Stderr, "usage: migrate <up|down|version>")
		os.Exit(2)
	}
}
