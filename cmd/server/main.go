// Package main provides the shop assistant server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/chaintara/shopchat-linebot-go/internal/buffer"
	"github.com/chaintara/shopchat-linebot-go/internal/buildinfo"
	"github.com/chaintara/shopchat-linebot-go/internal/catalog"
	"github.com/chaintara/shopchat-linebot-go/internal/checkout"
	"github.com/chaintara/shopchat-linebot-go/internal/config"
	"github.com/chaintara/shopchat-linebot-go/internal/genai"
	"github.com/chaintara/shopchat-linebot-go/internal/guard"
	"github.com/chaintara/shopchat-linebot-go/internal/handoff"
	"github.com/chaintara/shopchat-linebot-go/internal/intent"
	"github.com/chaintara/shopchat-linebot-go/internal/kb"
	"github.com/chaintara/shopchat-linebot-go/internal/logger"
	"github.com/chaintara/shopchat-linebot-go/internal/mediastore"
	"github.com/chaintara/shopchat-linebot-go/internal/metrics"
	"github.com/chaintara/shopchat-linebot-go/internal/policy"
	"github.com/chaintara/shopchat-linebot-go/internal/ratelimit"
	"github.com/chaintara/shopchat-linebot-go/internal/router"
	"github.com/chaintara/shopchat-linebot-go/internal/sentry"
	"github.com/chaintara/shopchat-linebot-go/internal/session"
	"github.com/chaintara/shopchat-linebot-go/internal/storage"
	"github.com/chaintara/shopchat-linebot-go/internal/timeouts"
	"github.com/chaintara/shopchat-linebot-go/internal/webhook"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithOptions(cfg.LogLevel, os.Stdout, logger.Options{
		BetterStackToken:    cfg.BetterStackToken,
		BetterStackEndpoint: cfg.BetterStackEndpoint,
	})
	log.Info("Starting ShopChat LINE bot server")

	if err := sentry.Initialize(sentry.Config{
		Token:       cfg.SentryToken,
		Host:        cfg.SentryHost,
		Environment: cfg.SentryEnvironment,
		Release:     buildinfo.Release(),
	}); err != nil {
		log.WithError(err).Warn("Failed to initialize error tracking")
	}
	defer sentry.Flush(2 * time.Second)

	db, err := storage.New(cfg.SQLitePath())
	if err != nil {
		log.WithError(err).Error("Failed to open database")
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()
	log.WithField("path", cfg.SQLitePath()).Info("Database connected")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewBuildInfoCollector())
	m := metrics.New(registry)

	sessions := session.NewStore(db, log)
	catalogSvc := catalog.NewService(db, sessions, log)

	var importer *catalog.Importer
	if cfg.CatalogURL != "" {
		importer = catalog.NewImporter(db, cfg.CatalogURL, cfg.CatalogTimeout, log, m)
		log.WithField("url", cfg.CatalogURL).Info("Catalog importer enabled")
	}

	var media *mediastore.Store
	if cfg.HasMediaStore() {
		media, err = mediastore.New(context.Background(), mediastore.Config{
			Endpoint:    cfg.R2Endpoint,
			AccessKeyID: cfg.R2AccessKeyID,
			SecretKey:   cfg.R2SecretKey,
			Bucket:      cfg.R2BucketName,
		}, db, log)
		if err != nil {
			log.WithError(err).Warn("Failed to create media store; image archiving disabled")
		} else {
			log.WithField("bucket", cfg.R2BucketName).Info("Media store enabled")
		}
	}

	llmLayer := buildLLM(cfg, log, m)
	monitor := handoff.NewMonitor(db, cfg.Bot.AdminHandoffTimeout, cfg.AdminUserIDs, log, m)
	debouncer := buffer.New(db, buffer.Config{
		Window:     cfg.Bot.BufferWindow,
		MaxWait:    cfg.Bot.BufferMaxWait,
		MaxPending: cfg.Bot.BufferMaxPending,
	}, log, m)

	engine := router.New(router.Deps{
		Config:    cfg,
		DB:        db,
		Sessions:  sessions,
		Debouncer: debouncer,
		Dedupe: guard.NewDeliveryDedupe(db, guard.DedupeConfig{
			Window: cfg.Bot.DedupeWindow,
			Depth:  cfg.Bot.DedupeDepth,
		}, log, m),
		Gate:     guard.NewGatekeeper(db, cfg.Bot, log, m),
		Repeat:   guard.NewRepeatGuard(db, cfg.Bot, cfg.Templates.RepeatVariations, log, m),
		Handoff:  monitor,
		Cascade:  intent.NewDefaultCascade(log, catalogSvc, llmLayer),
		LLM:      llmLayer,
		Checkout: checkout.NewMachine(db, sessions, cfg.Checkout, log, m),
		KB:       kb.NewMatcher(db, cfg.Bot, cfg.Templates.KBHedgePrefix, log, m),
		Policy:   policy.NewGuard(db, cfg.Templates, nil, log, m),
		Catalog:  catalogSvc,
		Logger:   log,
		Metrics:  m,
		UserLimit: ratelimit.NewPerKeyLimiter(ratelimit.PerKeyLimiterConfig{
			MaxTokens:  cfg.Bot.UserRateLimitBurst,
			RefillRate: cfg.Bot.UserRateLimitRefillPerSec,
		}),
	})

	webhookHandler, err := webhook.NewHandler(webhook.HandlerConfig{
		Config:  cfg,
		Engine:  engine,
		Media:   media,
		Metrics: m,
		Logger:  log,
	})
	if err != nil {
		log.WithError(err).Error("Failed to create webhook handler")
		os.Exit(1)
	}
	log.Info("Webhook handler created")

	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(securityHeadersMiddleware())
	r.Use(loggingMiddleware(log))
	setupRoutes(r, cfg, webhookHandler, db, registry)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  timeouts.HTTPRead,
		WriteTimeout: timeouts.HTTPWrite,
		IdleTimeout:  timeouts.HTTPIdle,
	}

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	jobs, jobCtx := errgroup.WithContext(jobCtx)
	jobs.Go(func() error {
		bufferSweep(jobCtx, debouncer, engine, webhookHandler, cfg.Bot.BufferMaxWait, log)
		return nil
	})
	jobs.Go(func() error {
		handoffSweep(jobCtx, monitor, log)
		return nil
	})
	if importer != nil {
		jobs.Go(func() error {
			catalogRefresh(jobCtx, importer, cfg.CatalogRefreshInterval, log)
			return nil
		})
	}
	if media.Enabled() {
		jobs.Go(func() error {
			conversationExport(jobCtx, media, log)
			return nil
		})
	}
	jobs.Go(func() error {
		messageRetentionSweep(jobCtx, db, cfg.MessageRetention, log)
		return nil
	})

	go func() {
		log.WithField("port", cfg.Port).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Failed to start server")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	// In-flight webhook events finish before the jobs stop.
	if err := webhookHandler.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Timeout waiting for event processing")
	}

	cancelJobs()
	if err := jobs.Wait(); err != nil {
		log.WithError(err).Warn("Background job exited with error")
	}

	if err := db.Close(); err != nil {
		log.WithError(err).Error("Failed to close database")
	}

	_ = log.Shutdown(shutdownCtx)
	log.Info("Server stopped")
}

// buildLLM assembles the provider chain behind the cascade's last
// layer. Returns nil when no provider is configured; the cascade then
// falls through to the template fallback.
func buildLLM(cfg *config.Config, log *logger.Logger, m *metrics.Metrics) intent.Layer {
	if !cfg.HasLLMProvider() {
		log.Info("No LLM provider configured; cascade runs rule layers only")
		return nil
	}

	var providers []genai.Provider
	add := func(name string) {
		switch name {
		case "openai":
			if cfg.OpenAIAPIKey != "" {
				providers = append(providers, genai.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel, log, m))
			}
		case "gemini":
			if cfg.GeminiAPIKey != "" {
				p, err := genai.NewGeminiProvider(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel, log, m)
				if err != nil {
					log.WithError(err).Warn("Failed to create Gemini provider")
					return
				}
				providers = append(providers, p)
			}
		}
	}
	add(cfg.LLMPrimaryProvider)
	if cfg.LLMFallbackProvider != cfg.LLMPrimaryProvider {
		add(cfg.LLMFallbackProvider)
	}
	if len(providers) == 0 {
		return nil
	}

	chain := genai.NewChain(log, genai.DefaultRetryConfig(), providers...)
	limiter := ratelimit.NewLLMRateLimiter(
		cfg.Bot.LLMBurstTokens,
		cfg.Bot.LLMRefillPerHour,
		cfg.Bot.LLMDailyLimit,
		5*time.Minute,
	)
	log.WithField("providers", len(providers)).Info("LLM chain enabled")
	return intent.NewLLMLayer(genai.NewAdapter(chain), limiter, log)
}
