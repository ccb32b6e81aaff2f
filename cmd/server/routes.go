// Package main provides the shop assistant server entry point.
package main

import (
	"net/http"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chaintara/shopchat-linebot-go/internal/config"
	"github.com/chaintara/shopchat-linebot-go/internal/sentry"
	"github.com/chaintara/shopchat-linebot-go/internal/storage"
	"github.com/chaintara/shopchat-linebot-go/internal/webhook"
)

// setupRoutes configures all HTTP routes.
func setupRoutes(r *gin.Engine, cfg *config.Config, webhookHandler *webhook.Handler, db *storage.DB, registry *prometheus.Registry) {
	if sentry.IsEnabled() {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}

	// Liveness probe: process is up, nothing more. Never checks
	// dependencies.
	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	r.GET("/healthz", healthHandler)
	r.HEAD("/healthz", healthHandler)

	// Readiness probe: storage answers queries and the catalog has
	// something to sell from.
	readyHandler := func(c *gin.Context) {
		if err := db.Ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"reason": err.Error(),
			})
			return
		}

		productCount, _ := db.CountProducts(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"status":   "ready",
			"database": "connected",
			"catalog": gin.H{
				"products": productCount,
			},
		})
	}
	r.GET("/ready", readyHandler)
	r.HEAD("/ready", readyHandler)

	// LINE webhook callback endpoint.
	r.POST("/callback", webhookHandler.Handle)

	// Prometheus metrics, behind basic auth when a password is set.
	r.GET("/metrics",
		metricsAuthMiddleware(cfg.MetricsPassword != "", cfg.MetricsUsername, cfg.MetricsPassword),
		gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
}
