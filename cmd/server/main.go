// Command server wires the brickvault issuance API: the ledger adapter (real
// EVM node or the in-memory dev ledger), the off-chain application store, the
// audit trail, and the HTTP surface. Business logic lives in the internal
// services; main only composes them.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"brickvault/internal/application/handler"
	"brickvault/internal/application/service"
	"brickvault/internal/application/store"
	"brickvault/internal/assetview"
	"brickvault/internal/content"
	jwttoken "brickvault/internal/jwt_token"
	"brickvault/internal/ledger"
	"brickvault/internal/ledger/evm"
	ledgermem "brickvault/internal/ledger/memory"
	"brickvault/internal/platform/config"
	"brickvault/internal/platform/httpserver"
	"brickvault/internal/platform/logger"
	"brickvault/internal/platform/metrics"
	platformredis "brickvault/internal/platform/redis"
	httptransport "brickvault/internal/transport/http"
	"brickvault/internal/yield"
	audit "brickvault/pkg/platform/audit"
	auditpublisher "brickvault/pkg/platform/audit/publisher"
	auditmem "brickvault/pkg/platform/audit/store/memory"
	auditpg "brickvault/pkg/platform/audit/store/postgres"
)

func main() {
	ctx := context.Background()
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	fatal := func(msg string, err error) {
		log.Error(msg, "error", err)
		os.Exit(1)
	}

	checks := map[string]httptransport.HealthChecker{}

	// Postgres backs the off-chain application record and the durable audit
	// trail. Without a DSN both fall back to in-memory stores (dev mode).
	var db *sql.DB
	if cfg.PostgresDSN != "" {
		var err error
		db, err = sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			fatal("open postgres", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			fatal("ping postgres", err)
		}
		for _, schema := range []string{store.Schema, auditpg.Schema} {
			if _, err := db.ExecContext(ctx, schema); err != nil {
				fatal("apply schema", err)
			}
		}
		checks["postgres"] = dbChecker{db}
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		fatal("connect redis", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		checks["redis"] = redisClient
	}

	var auditStore audit.Store
	if db != nil {
		auditStore = auditpg.New(db)
	} else {
		auditStore = auditmem.New()
	}
	auditOpts := []auditpublisher.Option{auditpublisher.WithLogger(log)}
	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := auditpublisher.NewKafkaSink(ctx, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			fatal("connect kafka", err)
		}
		defer sink.Close()
		auditOpts = append(auditOpts, auditpublisher.WithSink(sink))
	}
	auditor := auditpublisher.New(auditStore, auditOpts...)

	var chain ledger.Client
	if cfg.Chain.RPCURL == "" {
		mem := ledgermem.New()
		reviewer, publisher := ledgermem.SeedDevLedger(mem)
		log.Warn("no chain RPC configured, using in-memory dev ledger",
			"reviewer", reviewer.Hex(),
			"publisher", publisher.Hex())
		chain = mem
	} else {
		evmClient, err := evm.Dial(ctx, cfg.Chain, log)
		if err != nil {
			fatal("dial chain", err)
		}
		defer evmClient.Close()
		chain = evmClient
	}

	var appStore service.Store
	if db != nil {
		appStore = store.NewPostgres(db)
	} else {
		appStore = store.NewMemory()
	}

	var resolver content.Resolver
	httpResolver := content.NewHTTPResolver(cfg.Content)
	resolver = httpResolver
	if redisClient != nil {
		resolver = content.NewCachedResolver(httpResolver, redisClient, cfg.Redis.MetadataTTL, log)
	}

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "brickvault", "brickvault")
	validator := jwttoken.NewJWTServiceAdapter(jwtService)

	applications := service.New(appStore, chain,
		service.WithLogger(log),
		service.WithAuditPublisher(auditor),
		service.WithMetrics(m),
		service.WithMaxDocumentBytes(cfg.MaxDocumentBytes))
	properties := yield.New(chain,
		yield.WithLogger(log),
		yield.WithAuditPublisher(auditor),
		yield.WithMetrics(m))
	assets := assetview.New(chain, resolver,
		assetview.WithLogger(log),
		assetview.WithMetrics(m))

	yieldOpts := []yield.HandlerOption{}
	if cfg.Content.PublishURL != "" {
		yieldOpts = append(yieldOpts, yield.WithContentPublisher(httpResolver))
	}

	router := httptransport.NewRouter(checks,
		handler.New(applications, log, m, validator, cfg.MaxDocumentBytes),
		yield.NewHandler(properties, log, m, validator, yieldOpts...),
		assetview.NewHandler(assets, log, m),
	)

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fatal("graceful shutdown failed", err)
	}
}

type dbChecker struct {
	db *sql.DB
}

func (c dbChecker) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}
