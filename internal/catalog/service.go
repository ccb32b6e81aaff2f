// Package catalog serves product data to the rest of the pipeline:
// code lookups for the intent cascade and checkout, name search for
// candidate lists, and a storefront importer that keeps the table
// fresh.
package catalog

import (
	"context"
	"time"

	"github.com/chaintara/shopchat-linebot-go/internal/logger"
	"github.com/chaintara/shopchat-linebot-go/internal/session"
	"github.com/chaintara/shopchat-linebot-go/internal/storage"
)

// Service is the product lookup layer.
type Service struct {
	db       *storage.DB
	sessions *session.Store
	log      *logger.Logger
	now      func() time.Time
}

// NewService creates a catalog service.
func NewService(db *storage.DB, sessions *session.Store, log *logger.Logger) *Service {
	return &Service{
		db:       db,
		sessions: sessions,
		log:      log.WithModule("catalog"),
		now:      time.Now,
	}
}

// GetByCode returns the product for a catalog code, or nil when the
// code is unknown.
func (s *Service) GetByCode(ctx context.Context, code string) (*storage.Product, error) {
	return s.db.GetProductByCode(ctx, code)
}

// Search returns in-stock products whose name contains the query.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]*storage.Product, error) {
	return s.db.SearchProducts(ctx, query, limit)
}

// TrackView remembers the product a conversation last looked at and
// stores the candidate list for "the second one" style references.
// Best-effort: a failed persist only loses the shortcut.
func (s *Service) TrackView(ctx context.Context, sess *storage.Session, products []*storage.Product) {
	if len(products) == 0 {
		return
	}
	sess.LastViewedProduct = products[0].Code

	if len(products) > 1 {
		codes := make([]any, len(products))
		for i, p := range products {
			codes[i] = p.Code
		}
		if sess.Slots == nil {
			sess.Slots = map[string]any{}
		}
		sess.Slots["last_product_candidates"] = codes
		sess.Slots["last_product_candidates_ts"] = float64(s.now().UnixMilli())
	}

	if err := s.sessions.Put(ctx, sess); err != nil {
		s.log.WithError(err).Errorf("failed to persist viewed product")
	}
}
