package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"claimgate/internal/admission"
	"claimgate/internal/audit"
	claimhandler "claimgate/internal/claim/handler"
	"claimgate/internal/claim/models"
	claimservice "claimgate/internal/claim/service"
	claimstore "claimgate/internal/claim/store"
	"claimgate/internal/claimtoken"
	"claimgate/internal/content"
	"claimgate/internal/identity"
	"claimgate/internal/mailer"
	"claimgate/internal/platform/config"
	"claimgate/internal/platform/httpserver"
	"claimgate/internal/platform/kafka"
	"claimgate/internal/platform/logger"
	"claimgate/internal/platform/metrics"
	platformredis "claimgate/internal/platform/redis"
	"claimgate/internal/ratelimit"
	httptransport "claimgate/internal/transport/http"
)

// main wires dependencies and runs the server lifecycle. Store backends are
// selected by configuration: Postgres when POSTGRES_URL is set, in-memory
// otherwise; Redis and Kafka are optional in the same way.
func main() {
	cfg := config.FromEnv()
	log := logger.New(slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	var (
		db         *sql.DB
		claims     claimstore.Store
		memories   claimservice.ContentStore
		auditStore audit.Store
	)
	if cfg.PostgresURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		claims = claimstore.NewPostgresStore(db)
		memories = content.NewPostgresStore(db)
		auditStore = audit.NewPostgresStore(db)
		log.Info("using postgres stores")
	} else {
		claims = claimstore.NewInMemoryStore()
		memories = content.NewInMemoryStore()
		auditStore = audit.NewInMemoryStore()
		log.Warn("POSTGRES_URL not set, using in-memory stores")
	}

	var bucketStore ratelimit.BucketStore = ratelimit.NewInMemoryBucketStore()
	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		bucketStore = ratelimit.NewRedisBucketStore(redisClient.Client)
		log.Info("using redis rate-limit buckets")
	}

	auditOpts := []audit.Option{}
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka, log)
		if err != nil {
			return err
		}
		defer producer.Close()
		auditOpts = append(auditOpts, audit.WithFanOut(producer))
		log.Info("audit fan-out enabled", "topic", cfg.Kafka.Topic)
	}
	recorder := audit.NewRecorder(auditStore, log, auditOpts...)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	codec := claimtoken.NewCodec(cfg.ClaimSigningKey, "claimgate")
	verifiers := map[models.Source]admission.Verifier{
		models.SourceLPForm:     admission.NewRecaptchaVerifier(cfg.RecaptchaSecret, cfg.RecaptchaVerifyURL, nil),
		models.SourceStorefront: admission.NewStorefrontVerifier(cfg.StorefrontKey),
		models.SourceStripe:     admission.NewStripeVerifier(cfg.StripeWebhookSecret),
	}

	svc := claimservice.New(
		claims,
		memories,
		codec,
		mailer.NewLogDispatcher(log),
		verifiers,
		claimservice.Config{
			ClaimTokenTTL:   cfg.ClaimTokenTTL,
			EmailConfirmTTL: cfg.EmailConfirmTTL,
			GateWindow:      cfg.GateWindow,
			ClaimBaseURL:    cfg.ClaimBaseURL,
			Tenants:         cfg.Tenants,
		},
		claimservice.WithLogger(log),
		claimservice.WithMetrics(m),
		claimservice.WithAuditRecorder(recorder),
		claimservice.WithEmailChangeLimiter(ratelimit.NewLimiter(
			bucketStore, "email-change", 1, cfg.EmailChangeWindow, log)),
		claimservice.WithResendLimiter(ratelimit.NewLimiter(
			bucketStore, "resend", 3, cfg.EmailChangeWindow, log)),
	)

	idVerifier := identity.NewVerifier(cfg.IdentitySigningKey, cfg.IdentityIssuer)
	router := httptransport.NewRouter(httptransport.Deps{
		Claims:   claimhandler.New(svc, idVerifier, log),
		Logger:   log,
		Registry: registry,
		DB:       db,
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("claim gate listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
