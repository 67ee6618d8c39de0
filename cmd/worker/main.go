// Command worker runs a Parallelogram chunk-processing worker: it joins
// multicast discovery, serves map/filter/reduce chunk requests over TCP,
// and exposes a /metrics and /health endpoint for operators.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/loadshard/parallelogram/internal/audit"
	"github.com/loadshard/parallelogram/internal/config"
	"github.com/loadshard/parallelogram/internal/observability"
	"github.com/loadshard/parallelogram/internal/ops"
	"github.com/loadshard/parallelogram/internal/validation"
	"github.com/loadshard/parallelogram/internal/worker"
	"github.com/loadshard/parallelogram/internal/workerfuncs"
)

func main() {
	listenAddr := flag.String("listen-addr", ":9999", "TCP address the chunk server binds")
	groupAddr := flag.String("group-addr", "224.3.29.71:10000", "UDP multicast discovery group")
	observAddr := flag.String("observ-addr", "127.0.0.1:9998", "Observability server address")
	auditPath := flag.String("audit-path", "", "BoltDB path for the optional dispatch audit ledger (empty disables it)")
	flag.Parse()

	logger := observability.NewLogger("parallelogram-worker", "0.1.0", os.Stdout)
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker("0.1.0")

	if shutdown, err := observability.InitTracing(context.Background(), "parallelogram-worker"); err == nil {
		defer shutdown(context.Background())
	}

	logger.Info("parallelogram worker starting")

	cfg := config.DefaultConfig()
	cfg.ListenAddr = *listenAddr
	cfg.MulticastGroupAddr = *groupAddr

	if err := validation.ValidateAddr(cfg.ListenAddr); err != nil {
		logger.Fatal(err, "invalid listen address")
	}

	registry := ops.NewRegistry()
	workerfuncs.RegisterBuiltins(registry)

	var ledger *audit.Ledger
	if *auditPath != "" {
		l, err := audit.Open(*auditPath)
		if err != nil {
			logger.Error(err, "failed to open audit ledger, continuing without it")
		} else {
			ledger = l
			defer ledger.Close()
		}
	}

	srv := worker.NewServer(cfg, registry, logger, metrics)
	if err := srv.Start(); err != nil {
		logger.Fatal(err, "failed to start chunk server")
	}
	defer srv.Stop()

	healthChecker.RegisterCheck("chunk_listener", observability.DispatchListenerCheck(cfg.ListenAddr))
	healthChecker.RegisterCheck("discovery_responder", observability.DiscoveryResponderCheck(true, cfg.MulticastGroupAddr))
	healthChecker.RegisterCheck("audit_ledger", observability.AuditLedgerCheck(*auditPath, ledger != nil))

	go startObservabilityServer(*observAddr, metrics, healthChecker, logger)

	logger.Info("parallelogram worker listening on " + cfg.ListenAddr)
	logger.Info("press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down gracefully")
}

func startObservabilityServer(addr string, metrics *observability.Metrics, health *observability.HealthChecker, logger *observability.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", health.Handler())

	server := &http.Server{Addr: addr, Handler: mux}
	logger.Info("observability server listening on " + addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error(err, "observability server error")
	}
}
