package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/migrations"
	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/router"
	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/session"
	sessionrepo "github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/session/repo"
	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/todo"
	todorepo "github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/todo/repo"
	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/pkg/database"
	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/pkg/utilities"
)

func main() {
	// best-effort: real env wins when no .env exists
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-todo-go-stdlib")

	sessCfg, err := session.ConfigFromEnv()
	if err != nil {
		sugar.Fatalf("session config: %v", err)
	}
	cost, err := user.BcryptCostFromEnv()
	if err != nil {
		sugar.Fatalf("password config: %v", err)
	}
	nodeID, err := utilities.SnowflakeNodeFromEnv()
	if err != nil {
		sugar.Fatalf("id config: %v", err)
	}
	ids, err := utilities.NewIDGenerator(nodeID)
	if err != nil {
		sugar.Fatalf("id generator: %v", err)
	}

	dbCfg, err := database.ConfigFromEnv()
	if err != nil {
		sugar.Fatalf("db config: %v", err)
	}
	sqlDB, err := database.Connect(dbCfg)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer sqlDB.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, sqlDB, migrations.FS); err != nil {
		sugar.Fatalf("migrate: %v", err)
	}

	sqlxDB := sqlx.NewDb(sqlDB, "postgres")

	sessions := session.NewManager(sessionrepo.NewSessionRepo(sqlxDB), sessCfg.TTL, sugar)
	handler := router.RegisterRoutes(router.Deps{
		Logger:   sugar,
		DB:       sqlxDB,
		Users:    user.NewUserService(userrepo.NewUserRepo(sqlxDB), user.BcryptHasher{Cost: cost}, sugar),
		Sessions: sessions,
		Codec:    session.NewCookieCodec(sessCfg.Secret, sessCfg.CookieSecure),
		Todos:    todo.NewService(todorepo.NewTodoRepo(sqlxDB), ids, sugar),
	})

	go sessions.RunJanitor(ctx, sessCfg.SweepInterval)

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = "0.0.0.0:8431"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
