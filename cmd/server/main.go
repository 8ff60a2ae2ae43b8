package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"brokergate/internal/audit"
	auditmem "brokergate/internal/audit/store/memory"
	auditpg "brokergate/internal/audit/store/postgres"
	"brokergate/internal/audit/outbox"
	"brokergate/internal/claims"
	"brokergate/internal/identity"
	"brokergate/internal/identity/sessions"
	jwttoken "brokergate/internal/jwt_token"
	"brokergate/internal/lifecycle"
	"brokergate/internal/platform/config"
	"brokergate/internal/platform/database"
	"brokergate/internal/platform/httpserver"
	"brokergate/internal/platform/logger"
	"brokergate/internal/platform/metrics"
	platformredis "brokergate/internal/platform/redis"
	"brokergate/internal/policies"
	"brokergate/internal/records"
	recordsmem "brokergate/internal/records/store/memory"
	recordspg "brokergate/internal/records/store/postgres"
	httptransport "brokergate/internal/transport/http"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Blueprint validation happens here: an invalid blueprint refuses to boot.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	claimBP, err := claims.NewBlueprint()
	if err != nil {
		log.Error("invalid claim blueprint", "error", err)
		os.Exit(1)
	}
	policyBP, err := policies.NewBlueprint()
	if err != nil {
		log.Error("invalid policy blueprint", "error", err)
		os.Exit(1)
	}
	registry, err := lifecycle.NewRegistry(claimBP, policyBP)
	if err != nil {
		log.Error("blueprint registry", "error", err)
		os.Exit(1)
	}

	var (
		recordStore records.Store
		txRunner    lifecycle.TxRunner
		auditStore  audit.Store
		outboxSrc   outbox.Source
	)
	if cfg.DatabaseURL != "" {
		db, err := database.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		recordStore = recordspg.New(db)
		txRunner = recordspg.NewTxRunner(db)
		pgAudit := auditpg.New(db)
		auditStore = pgAudit
		outboxSrc = pgAudit
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		recordStore = recordsmem.New()
		txRunner = recordsmem.NewTxRunner()
		auditStore = auditmem.New()
	}

	engineOpts := []lifecycle.Option{lifecycle.WithRecorder(metrics.New())}

	redisClient, err := platformredis.New(ctx, cfg.RedisURL)
	if err != nil {
		log.Error("redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		sessionStore := sessions.NewRedisStore(redisClient.Client)
		engineOpts = append(engineOpts, lifecycle.WithHooks(
			identity.NewDeactivationHook(sessionStore, log),
		))
	}

	publisher := audit.NewPublisher(auditStore)
	engine := lifecycle.NewEngine(registry, recordStore, publisher, txRunner, log, engineOpts...)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "brokergate", "brokergate-api")
	recordsHandler := httptransport.NewRecordsHandler(
		log, registry, engine, recordStore, publisher,
		jwttoken.NewJWTServiceAdapter(jwtService), cfg.AdminToken,
	)
	router := httptransport.NewRouter(log, recordsHandler)
	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting brokergate", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if len(cfg.KafkaBrokers) > 0 && outboxSrc != nil {
		producer, err := outbox.NewKafkaProducer(ctx, cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			log.Error("kafka", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		relay := outbox.NewRelay(outboxSrc, producer, log)
		g.Go(func() error {
			err := relay.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}
