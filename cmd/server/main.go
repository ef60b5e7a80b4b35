package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/audience-mailer/internal/config"
	"github.com/ignite/audience-mailer/internal/httpapi"
	"github.com/ignite/audience-mailer/internal/notify"
	"github.com/ignite/audience-mailer/internal/provider"
	"github.com/ignite/audience-mailer/internal/repository/postgres"
	"github.com/ignite/audience-mailer/internal/service/expand"
	"github.com/ignite/audience-mailer/internal/service/merge"
	"github.com/ignite/audience-mailer/internal/service/reconcile"
	"github.com/ignite/audience-mailer/internal/service/suppression"
	"github.com/ignite/audience-mailer/internal/service/token"

	_ "github.com/lib/pq" // PostgreSQL driver
)

func main() {
	log.Println("Starting audience-mailer API server...")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	// The webhook endpoint is Mailgun-shaped regardless of the sending
	// driver, so signature verification always comes from the Mailgun
	// adapter. With no signing key configured it accepts everything.
	mg := provider.NewMailgun(cfg.Mailgun.APIKey, cfg.Mailgun.Domain, cfg.Mailgun.BaseURL, cfg.Mailgun.WebhookSigningKey)

	reconcileRepo := postgres.NewReconcileRepo(db)
	reconciler := reconcile.NewService(reconcileRepo)
	tokens := token.NewService(postgres.NewTokenRepo(db))
	blocker := suppression.NewService(postgres.NewSuppressionRepo(db))
	notifier := notify.NewAdminMailer(mg, cfg.AdminEmail, cfg.Provider.FromAddress)
	expander := expand.NewService(postgres.NewExpandRepo(db), blocker, notifier)
	merger := merge.NewService(postgres.NewMergeRepo(db))
	admin := postgres.NewAdminRepo(db)

	h := httpapi.NewHandlers(reconciler, mg, tokens, reconcileRepo, expander, merger, admin, cfg.Tracking.SigningKey)
	srv := httpapi.NewServer(h, cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("Server error: %v", err)
	case sig := <-stop:
		log.Printf("Received %s, shutting down...", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
