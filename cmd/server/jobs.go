// Package main provides the shop assistant server entry point.
package main

import (
	"context"
	"time"

	"github.com/chaintara/shopchat-linebot-go/internal/buffer"
	"github.com/chaintara/shopchat-linebot-go/internal/catalog"
	"github.com/chaintara/shopchat-linebot-go/internal/handoff"
	"github.com/chaintara/shopchat-linebot-go/internal/logger"
	"github.com/chaintara/shopchat-linebot-go/internal/mediastore"
	"github.com/chaintara/shopchat-linebot-go/internal/router"
	"github.com/chaintara/shopchat-linebot-go/internal/sentry"
	"github.com/chaintara/shopchat-linebot-go/internal/storage"
	"github.com/chaintara/shopchat-linebot-go/internal/webhook"
)

const (
	handoffSweepInterval   = time.Minute
	retentionSweepInterval = 12 * time.Hour
	exportInterval         = 24 * time.Hour
	catalogInitialDelay    = 10 * time.Second
	minBufferSweepInterval = time.Second
	maxBufferSweepInterval = 5 * time.Second
)

// bufferSweep flushes buffered message sets whose senders have gone
// quiet, runs the combined text through the pipeline, and pushes the
// reply. Without it a conversation that stops mid-thought would never
// get an answer.
func bufferSweep(ctx context.Context, debouncer *buffer.Debouncer, engine *router.Engine, h *webhook.Handler, maxWait time.Duration, log *logger.Logger) {
	log = log.WithModule("buffer_sweep")

	// Sweep a few times per window so flushes land close to the
	// debounce deadline rather than long after it.
	interval := maxWait / 4
	if interval < minBufferSweepInterval {
		interval = minBufferSweepInterval
	}
	if interval > maxBufferSweepInterval {
		interval = maxBufferSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			flushed, err := debouncer.FlushDue(ctx)
			if err != nil {
				log.WithError(err).Error("Failed to flush due buffers")
				continue
			}
			for _, conv := range flushed {
				reply, err := engine.HandleFlushed(ctx, conv)
				if err != nil {
					log.WithError(err).WithField("chat_id", conv.ChatID).Error("Failed to process flushed text")
					sentry.CaptureExceptionWithContext(ctx, err)
					continue
				}
				if reply == nil {
					continue
				}
				if err := h.Push(ctx, conv.ChatID, reply); err != nil {
					log.WithError(err).WithField("chat_id", conv.ChatID).Error("Failed to push flushed reply")
				}
			}
		}
	}
}

// handoffSweep resumes conversations whose admins have gone quiet past
// the takeover timeout.
func handoffSweep(ctx context.Context, monitor *handoff.Monitor, log *logger.Logger) {
	log = log.WithModule("handoff_sweep")

	ticker := time.NewTicker(handoffSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resumed, err := monitor.ExpireStale(ctx)
			if err != nil {
				log.WithError(err).Error("Failed to expire stale handoffs")
				continue
			}
			if resumed > 0 {
				log.WithField("resumed", resumed).Info("Resumed conversations after admin inactivity")
			}
		}
	}
}

// catalogRefresh re-imports the storefront catalog on a fixed cadence.
// The first run happens shortly after startup so a fresh deploy serves
// current prices without waiting a full interval.
func catalogRefresh(ctx context.Context, importer *catalog.Importer, interval time.Duration, log *logger.Logger) {
	log = log.WithModule("catalog_refresh")

	refresh := func() {
		count, err := importer.Refresh(ctx)
		if err != nil {
			log.WithError(err).Error("Catalog refresh failed")
			return
		}
		log.WithField("products", count).Info("Catalog refreshed")
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(catalogInitialDelay):
		refresh()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}

// conversationExport uploads a daily compressed transcript archive.
func conversationExport(ctx context.Context, media *mediastore.Store, log *logger.Logger) {
	log = log.WithModule("export")

	ticker := time.NewTicker(exportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			since := time.Now().Add(-exportInterval)
			key, err := media.ExportConversations(ctx, since)
			if err != nil {
				log.WithError(err).Error("Conversation export failed")
				continue
			}
			if key != "" {
				log.WithField("key", key).Info("Conversation export uploaded")
			}
		}
	}
}

// messageRetentionSweep deletes conversation rows past the retention
// window. Sessions and orders are kept; only the message log shrinks.
func messageRetentionSweep(ctx context.Context, db *storage.DB, retention time.Duration, log *logger.Logger) {
	log = log.WithModule("retention")

	ticker := time.NewTicker(retentionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-retention)
			deleted, err := db.DeleteMessagesBefore(ctx, cutoff)
			if err != nil {
				log.WithError(err).Error("Message retention sweep failed")
				continue
			}
			if deleted > 0 {
				log.WithField("deleted", deleted).Info("Old messages removed")
			}
		}
	}
}
