// Command migrate applies the embedded schema migrations and exits. The API
// server in cmd/api runs the same migrations on start; this is for deploys
// that prefer a separate step.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/migrations"
	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/pkg/database"
	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/pkg/utilities"
)

func main() {
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()

	cfg, err := database.ConfigFromEnv()
	if err != nil {
		sugar.Fatalf("db config: %v", err)
	}
	sqlDB, err := database.Connect(cfg)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer sqlDB.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if err := database.Migrate(ctx, sqlDB, migrations.FS); err != nil {
		sugar.Fatalf("migrate: %v", err)
	}
	sugar.Info("migrations applied")
}
