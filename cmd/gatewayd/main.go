// Package main starts the gonka inference gateway: the process that wires
// auth, quota, routing, sessions, and the usage ledger into one HTTP server
// in front of a pool of vLLM-compatible backends.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/gonka-ai/inference-gateway/internal/apierr"
	"github.com/gonka-ai/inference-gateway/internal/auth"
	"github.com/gonka-ai/inference-gateway/internal/cache"
	"github.com/gonka-ai/inference-gateway/internal/gwconfig"
	"github.com/gonka-ai/inference-gateway/internal/ledger"
	xglog "github.com/gonka-ai/inference-gateway/internal/log"
	"github.com/gonka-ai/inference-gateway/internal/pipeline"
	"github.com/gonka-ai/inference-gateway/internal/platform/httpx"
	"github.com/gonka-ai/inference-gateway/internal/ratelimit"
	"github.com/gonka-ai/inference-gateway/internal/registry"
	"github.com/gonka-ai/inference-gateway/internal/session"
	"github.com/gonka-ai/inference-gateway/internal/telemetry"
	"github.com/gonka-ai/inference-gateway/internal/tiering"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

const sessionJanitorInterval = 5 * time.Minute

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	xglog.Configure(xglog.Config{Level: "info", Service: "gonka-gateway", Version: version})
	logger := xglog.WithComponent("gatewayd")

	cfg := gwconfig.Load()
	xglog.Configure(xglog.Config{Level: cfg.LogLevel, Service: "gonka-gateway", Version: version})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatal().Err(err).Str("event", "startup.data_dir_failed").Msg("failed to create data directory")
	}

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.OTelExporter != "noop" && cfg.OTelExporter != "",
		ServiceName:    "gonka-gateway",
		ServiceVersion: version,
		Environment:    gwconfig.ParseString("GONKA_ENV", "production"),
		ExporterType:   cfg.OTelExporter,
		Endpoint:       cfg.OTelEndpoint,
		SamplingRate:   cfg.OTelSampleRate,
	})
	if err != nil {
		logger.Fatal().Err(err).Str("event", "startup.telemetry_failed").Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	authStore, err := auth.NewStore(cfg.APIKeysFile)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "startup.auth_store_failed").Msg("failed to load API key store")
	}
	if devKey, err := authStore.BootstrapIfEmpty(); err != nil {
		logger.Fatal().Err(err).Msg("failed to bootstrap API key store")
	} else if devKey != "" {
		logger.Warn().Str("event", "startup.dev_key_minted").Msg("started with no API keys configured; minted a development key (see auth store log line)")
	}

	reg, err := registry.New(cfg.ModelsFile)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "startup.registry_failed").Msg("failed to load model catalog")
	}
	if cfg.ModelsWatch {
		if err := reg.Watch(ctx); err != nil {
			logger.Warn().Err(err).Msg("model catalog hot-reload watcher failed to start")
		}
	}

	tier, err := tiering.Load(cfg.ModelsFile)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "startup.tiering_failed").Msg("failed to load tiering rules")
	}

	var backing cache.Cache
	if cfg.RedisAddr != "" {
		backing, err = cache.NewRedisCache(cache.RedisConfig{Addr: cfg.RedisAddr}, zerolog.Nop())
		if err != nil {
			logger.Warn().Err(err).Msg("redis session backing unavailable, falling back to in-memory-only sessions")
			backing = nil
		}
	}
	sessions := session.New(cfg.SessionTTL, cfg.SessionMaxHistory, backing)
	go sessions.RunJanitor(ctx, sessionJanitorInterval)

	ldg, err := ledger.Open(filepath.Join(cfg.DataDir, "usage.db"))
	if err != nil {
		logger.Fatal().Err(err).Str("event", "startup.ledger_failed").Msg("failed to open usage ledger")
	}
	defer func() {
		if err := ldg.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing usage ledger")
		}
	}()

	quota := ratelimit.NewLimiter()
	ingress := ratelimit.NewIngressLimiter(ratelimit.DefaultIngressConfig())

	p := &pipeline.Pipeline{
		Auth:            authStore,
		Quota:           quota,
		Registry:        reg,
		Tiering:         tier,
		Sessions:        sessions,
		Ledger:          ldg,
		StreamClient:    httpx.NewClient(0),
		NonStreamClient: httpx.NewClient(httpx.CompletionTimeout),
		VLLMURL:         cfg.VLLMURL,
		AdminKey:        cfg.AdminAPIKey,
	}

	router := chi.NewRouter()
	router.Use(apierr.Recoverer)
	router.Use(xglog.Middleware())
	router.Use(httprate.LimitByIP(600, time.Minute))
	router.Use(ingressMiddleware(ingress))
	router.Mount("/", p.Routes())
	router.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Host + ":" + fmt.Sprintf("%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().
			Str("event", "startup.listening").
			Str("addr", srv.Addr).
			Int("models", reg.Count()).
			Int("api_keys", authStore.Count()).
			Msg("gonka gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Str("event", "startup.listen_failed").Msg("server exited unexpectedly")
		}
	}()

	<-ctx.Done()
	logger.Info().Str("event", "shutdown.start").Msg("shutting down gonka gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Str("event", "shutdown.failed").Msg("graceful shutdown failed")
	}
}

// ingressMiddleware enforces the gateway's bespoke global+per-IP token
// bucket ahead of the per-principal quota check, rejecting floods before
// they ever reach auth. This runs alongside httprate's coarser per-IP
// window as a second, metrics-emitting layer grounded on the gateway's own
// ratelimit.IngressLimiter rather than a generic library default.
func ingressMiddleware(l *ratelimit.IngressLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ratelimit.GetClientIP(r)
			if !l.Allow(ip) {
				apierr.WriteKind(w, r, apierr.KindRateLimitExceeded, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
