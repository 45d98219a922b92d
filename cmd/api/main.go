package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rafaelviefe/intermediador-de-pagamentos/internal/config/env"
	"github.com/rafaelviefe/intermediador-de-pagamentos/internal/database"
	"github.com/rafaelviefe/intermediador-de-pagamentos/internal/health"
	redisrepo "github.com/rafaelviefe/intermediador-de-pagamentos/internal/repository/redis"
	"github.com/rafaelviefe/intermediador-de-pagamentos/internal/router"
	"github.com/rafaelviefe/intermediador-de-pagamentos/internal/service"
	"github.com/rafaelviefe/intermediador-de-pagamentos/internal/worker"
	"github.com/rafaelviefe/intermediador-de-pagamentos/libs"
)

func main() {
	if err := env.Load(); err != nil {
		log.Fatalf("Failed to load environment: %v", err)
	}
	env.ShowEnvValues()

	// The summary contract is a JSON number, not a quoted string.
	decimal.MarshalJSONWithoutQuotes = true

	rds, err := database.ConnectToRedisClient(env.Values.REDIS_ADDR)
	if err != nil {
		log.Fatalf("Failed to get Redis client: %v", err)
	}
	defer database.CloseRedisClient()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hostname, _ := os.Hostname()

	healthRepo := redisrepo.NewHealthRepository(rds, hostname)
	queueRepo := redisrepo.NewQueueRepository(rds)
	ledgerRepo := redisrepo.NewLedgerRepository(rds)

	monitor := health.NewMonitor(healthRepo, env.Values.HEALTH_URL_DEFAULT, env.Values.HEALTH_URL_FALLBACK)
	go monitor.Run(ctx)

	dispatcher := service.NewPaymentDispatcher(queueRepo, ledgerRepo, monitor, service.Config{
		DefaultProcessorURL:    env.Values.PAYMENT_PROCESSOR_URL_DEFAULT,
		FallbackProcessorURL:   env.Values.PAYMENT_PROCESSOR_URL_FALLBACK,
		FallbackRetryThreshold: env.Values.FALLBACK_RETRY_THRESHOLD,
		AmbiguousStatusPolicy:  service.AmbiguousStatusPolicy(env.Values.AMBIGUOUS_STATUS_POLICY),
		MaxInflightDispatches:  env.Values.DISPATCH_POOL_SIZE,
	})

	consumer := worker.NewQueueConsumer(queueRepo, dispatcher, monitor, env.Values.WORKER_POOL, env.Values.CONSUMER_BATCH_SIZE, env.Values.CONSUMER_FANOUT)
	consumer.Run(ctx)

	paymentHandler := router.NewPaymentHandler(dispatcher, ledgerRepo, queueRepo)
	mux := router.Routes(paymentHandler)

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", env.Values.SERVER_ADDR, env.Values.SERVER_PORT),
		Handler: mux,
	}

	libs.GracefulShutdown(server, 10*time.Second)
}
