package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/ignite/audience-mailer/internal/config"
	"github.com/ignite/audience-mailer/internal/notify"
	"github.com/ignite/audience-mailer/internal/pkg/distlock"
	"github.com/ignite/audience-mailer/internal/provider"
	"github.com/ignite/audience-mailer/internal/repository/postgres"
	"github.com/ignite/audience-mailer/internal/service/dispatch"
	"github.com/ignite/audience-mailer/internal/service/reconcile"
	"github.com/ignite/audience-mailer/internal/service/suppression"
	"github.com/ignite/audience-mailer/internal/service/token"
	"github.com/ignite/audience-mailer/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
)

func buildSender(cfg *config.Config, mg *provider.Mailgun) (provider.Sender, error) {
	switch cfg.Provider.Driver {
	case "mailgun":
		return mg, nil
	case "smtp":
		return provider.NewSMTP(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password), nil
	case "ses":
		return provider.NewSES(cfg.SES.AccessKey, cfg.SES.SecretKey, cfg.SES.Region), nil
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.Provider.Driver)
	}
}

func main() {
	log.Println("Starting audience-mailer worker...")

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

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Printf("Redis unreachable (%v), falling back to PG advisory locks", err)
			redisClient = nil
		} else {
			log.Println("Connected to Redis")
		}
	}

	mg := provider.NewMailgun(cfg.Mailgun.APIKey, cfg.Mailgun.Domain, cfg.Mailgun.BaseURL, cfg.Mailgun.WebhookSigningKey)
	sender, err := buildSender(cfg, mg)
	if err != nil {
		log.Fatalf("Failed to build sender: %v", err)
	}
	log.Printf("Mail driver: %s (batch mode: %v)", sender.Name(), cfg.Provider.BatchMode)

	tokens := token.NewService(postgres.NewTokenRepo(db))
	notifier := notify.NewAdminMailer(sender, cfg.AdminEmail, cfg.Provider.FromAddress)
	dispatcher := dispatch.NewService(
		postgres.NewDispatchRepo(db),
		sender,
		tokens,
		notifier,
		dispatch.Config{
			BatchMode:    cfg.Provider.BatchMode,
			MaxPerRun:    cfg.Send.MaxPerRun,
			BatchSize:    cfg.Send.BatchSize,
			BatchDelay:   cfg.Send.BatchDelay(),
			Attempts:     cfg.Send.RetryAttempts,
			Backoff:      cfg.Send.RetryBackoff(),
			FromName:     cfg.Provider.FromName,
			FromEmail:    cfg.Provider.FromAddress,
			ReplyTo:      cfg.Provider.ReplyTo,
			TrackingBase: cfg.Tracking.BaseURL,
		},
	)

	maintenance := postgres.NewMaintenanceRepo(db)
	reconciler := reconcile.NewService(postgres.NewReconcileRepo(db))
	suppressor := suppression.NewService(postgres.NewSuppressionRepo(db))

	lockFor := func(name string, ttl time.Duration) distlock.DistLock {
		return distlock.NewLock(redisClient, db, name, ttl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := cron.New()

	schedule := func(spec string, job worker.Job, ttl time.Duration) {
		lock := lockFor(job.Name(), ttl)
		if _, err := c.AddFunc(spec, func() {
			worker.RunLocked(ctx, lock, job, ttl)
		}); err != nil {
			log.Fatalf("Failed to schedule %s: %v", job.Name(), err)
		}
	}

	schedule("* * * * *", worker.NewDispatchRunner(dispatcher), 10*time.Minute)
	schedule("30 * * * *", worker.NewRetentionCleanup(maintenance, cfg.Retention.Days), 30*time.Minute)
	schedule("15 * * * *", worker.NewDuplicateWatchdog(
		maintenance, sender, cfg.AdminEmail, cfg.Provider.FromAddress,
		cfg.Watchdog.Threshold, time.Duration(cfg.Watchdog.LookbackHours)*time.Hour,
	), 10*time.Minute)

	// Provider-event jobs only run against Mailgun's events API.
	if cfg.Mailgun.APIKey != "" {
		schedule("0 5 * * *", worker.NewDeliveryRepair(reconciler, mg, 24*time.Hour, false), time.Hour)
		schedule("30 5 * * *", worker.NewSuppressionSync(suppressor, mg, false), time.Hour)
	} else {
		log.Println("Mailgun API key not set, repair and suppression sync disabled")
	}

	c.Start()
	log.Println("Worker scheduler started")

	<-ctx.Done()
	log.Println("Shutting down, waiting for running jobs...")
	<-c.Stop().Done()
	log.Println("Worker stopped")
}
