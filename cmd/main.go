package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"gateway-service/internal"
	"gateway-service/internal/breaker"
	"gateway-service/internal/clock"
	"gateway-service/internal/config"
	"gateway-service/internal/forwarder"
	"gateway-service/internal/gatewaymetrics"
	"gateway-service/internal/handlers"
	"gateway-service/internal/ingress"
	_ "gateway-service/internal/logger"
	"gateway-service/internal/pipeline"
	"gateway-service/internal/ratelimit"
	"gateway-service/internal/routecost"
	"gateway-service/internal/routing"
	"gateway-service/internal/tier"
	"gateway-service/internal/upstream"
)

func main() {
	// Top-level panic recovery — mirrors ArgoCD's server.Run():
	//   defer func() {
	//       if r := recover(); r != nil {
	//           log.WithField("trace", string(debug.Stack())).Error("Recovered from panic: ", r)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("fatal panic in main",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			os.Exit(1)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env, err := config.LoadEnv()
	if err != nil {
		log.Fatalf("Failed to load environment config: %v", err)
	}

	slog.Info("starting gateway-service",
		"env", env.AppEnv,
		"log_level", env.LogLevel,
		"addr", env.Addr(),
	)

	upstreams, err := upstream.LoadFile(env.UpstreamsFile)
	if err != nil {
		log.Fatalf("Failed to load upstream table from %s: %v", env.UpstreamsFile, err)
	}
	routeCosts, err := routecost.LoadFile(env.RouteCostsFile)
	if err != nil {
		log.Fatalf("Failed to load route-cost table from %s: %v", env.RouteCostsFile, err)
	}

	clk := clock.Real{}

	limiter := ratelimit.NewRegistry(clk, ratelimit.Config{
		DefaultTier: tier.Name(env.DefaultTier),
		IdleTTL:     time.Duration(env.ClientTTL) * time.Second,
	})
	defer limiter.Close()

	breakers := breaker.NewRegistry(clk, breakerConfigs(upstreams), breaker.DefaultConfig())

	promReg := prometheus.NewRegistry()
	metrics := gatewaymetrics.NewStore(env.LatencyWindow, promReg)

	fw := forwarder.New()

	pl := pipeline.New(pipeline.Config{
		ClientHeader: env.ClientHeader,
		Routes:       routingTable(upstreams),
		RouteCosts:   routeCosts,
		Upstreams:    upstreams,
		Clock:        clk,
	}, limiter, breakers, metrics, fw)

	healthHandler := handlers.NewHealthHandler()
	ingressLimiter := ingress.NewWithClock(clk, ingress.DefaultConfig())
	defer ingressLimiter.Close()

	r := internal.NewRouter(internal.RouterConfig{
		Health:   healthHandler,
		Metrics:  handlers.NewMetricsHandler(metrics),
		Breakers: handlers.NewBreakerHandler(breakers),
		Clients:  handlers.NewClientHandler(limiter),
		Pipeline: pl,
		Ingress:  ingressLimiter,
	})

	adminSrv := internal.NewAdminServer(internal.AdminConfig{
		Addr:        env.AdminAddr,
		EnablePprof: !env.IsProduction(),
		Gatherer:    promReg,
	}, healthHandler)

	go func() {
		if err := adminSrv.Serve(); err != nil {
			slog.Error("admin server error", "error", err)
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-stopCh
		slog.Info("received shutdown signal", "signal", sig.String())
		healthHandler.SetUnavailable()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("admin server shutdown error", "error", err)
		}

		cancel()
	}()

	tlsCfg := resolveInboundTLS(env)

	internal.Run(ctx, env.Addr(), r, tlsCfg)
}

// breakerConfigs translates the upstream table's per-upstream thresholds
// into breaker.Config entries, falling back to breaker.DefaultConfig()
// field-by-field wherever an upstream entry left a threshold at zero.
func breakerConfigs(upstreams upstream.Table) map[string]breaker.Config {
	defaults := breaker.DefaultConfig()
	out := make(map[string]breaker.Config, len(upstreams))
	for name, e := range upstreams {
		cfg := defaults
		if e.FailureThreshold > 0 {
			cfg.FailureThreshold = e.FailureThreshold
		}
		if e.SuccessThreshold > 0 {
			cfg.SuccessThreshold = e.SuccessThreshold
		}
		if e.RecoveryTimeout > 0 {
			cfg.RecoveryTimeout = e.RecoveryTimeout
		}
		out[name] = cfg
	}
	return out
}

// routingTable builds the "/api/<name>/**" -> upstream mapping. With a
// single configured upstream, unprefixed "/api/**" traffic falls back
// to it; with more than one, callers must address a specific upstream
// by name in the path.
func routingTable(upstreams upstream.Table) routing.Table {
	t := routing.Table{}
	for name := range upstreams {
		t.Rules = append(t.Rules, routing.Rule{Prefix: "/api/" + name, Upstream: name})
	}
	if len(upstreams) == 1 {
		for name := range upstreams {
			t.Fallback = name
		}
	}
	return t
}

// resolveInboundTLS builds the inbound TLS config based on environment.
//
// Three modes (mirroring ArgoCD's CreateServerTLSConfig):
//
//	a) GATEWAY_TLS_CERT + GATEWAY_TLS_KEY set → load from files
//	b) Neither set + test mode → self-signed cert (ArgoCD's fallback)
//	c) Neither set + production → plaintext (behind Ingress/LB)
func resolveInboundTLS(env *config.Env) *internal.TLSConfig {
	if env.TLSCertFile != "" && env.TLSKeyFile != "" {
		slog.Info("inbound TLS: loading certificate from files",
			"cert", env.TLSCertFile, "key", env.TLSKeyFile)
		return &internal.TLSConfig{CertFile: env.TLSCertFile, KeyFile: env.TLSKeyFile}
	}

	if !env.IsProduction() {
		slog.Info("inbound TLS: self-signed cert for local dev (non-production)")
		return &internal.TLSConfig{SelfSignedIfMissing: true}
	}

	slog.Info("inbound TLS: disabled (expects TLS termination upstream)")
	return nil
}
