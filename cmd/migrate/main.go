package main

// Apply, roll back, or inspect database migrations:
//   go run ./cmd/migrate [up|down|status]

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"autosurvey-backend/internal/shared/config"
	"autosurvey-backend/internal/shared/storage/db"
	"autosurvey-backend/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	closeLog, err := telemetry.Init(telemetry.Options{Level: cfg.LogLevel})
	if err != nil {
		log.Fatalf("init logging: %v", err)
	}
	defer func() { _ = closeLog() }()

	command := "up"
	if len(os.Args) > 1 {
		command = strings.ToLower(strings.TrimSpace(os.Args[1]))
	}
	run, err := migration(command)
	if err != nil {
		telemetry.Error("migrate.usage", map[string]any{"error": err})
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := db.OptionsFromEnv(db.DefaultMigrateOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		telemetry.Error("migrate.connect_failed", map[string]any{"error": err})
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := run(ctx, sqlDB); err != nil {
		telemetry.Error("migrate.failed", map[string]any{"command": command, "error": err})
		os.Exit(1)
	}
	telemetry.Info("migrate.done", map[string]any{"command": command})
}

type migrateFunc func(ctx context.Context, database *sql.DB) error

func migration(command string) (migrateFunc, error) {
	switch command {
	case "up":
		return db.RunMigrations, nil
	case "down":
		return db.RollbackMigration, nil
	case "status":
		return db.MigrationStatus, nil
	default:
		return nil, fmt.Errorf("unknown command %q (want up, down or status)", command)
	}
}
