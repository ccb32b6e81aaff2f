package catalog

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/corpix/uarand"
	"golang.org/x/sync/singleflight"

	"github.com/chaintara/shopchat-linebot-go/internal/logger"
	"github.com/chaintara/shopchat-linebot-go/internal/metrics"
	"github.com/chaintara/shopchat-linebot-go/internal/sliceutil"
	"github.com/chaintara/shopchat-linebot-go/internal/storage"
)

const refreshKey = "catalog-refresh"

// Importer pulls the storefront product listing and upserts it into
// the product table. A nil Importer (no catalog URL configured) is a
// no-op.
type Importer struct {
	db         *storage.DB
	url        string
	httpClient *http.Client
	group      singleflight.Group
	log        *logger.Logger
	mtr        *metrics.Metrics
}

// NewImporter creates a storefront importer. Returns nil when url is
// empty so callers can wire it unconditionally.
func NewImporter(db *storage.DB, url string, timeout time.Duration, log *logger.Logger, mtr *metrics.Metrics) *Importer {
	if url == "" {
		return nil
	}
	return &Importer{
		db:  db,
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: log.WithModule("catalog.importer"),
		mtr: mtr,
	}
}

// Refresh fetches the storefront page and replaces the product table
// contents. Concurrent refreshes are collapsed into a single fetch.
func (im *Importer) Refresh(ctx context.Context) (int, error) {
	if im == nil {
		return 0, nil
	}

	result, err, shared := im.group.Do(refreshKey, func() (interface{}, error) {
		return im.refresh(ctx)
	})
	if shared && im.mtr != nil {
		im.mtr.RecordSingleflightDedup("catalog")
	}
	if err != nil {
		if im.mtr != nil {
			im.mtr.RecordCatalogRefresh("error")
		}
		return 0, err
	}
	if im.mtr != nil {
		im.mtr.RecordCatalogRefresh("ok")
	}
	return result.(int), nil
}

func (im *Importer) refresh(ctx context.Context) (int, error) {
	doc, err := im.fetchDocument(ctx)
	if err != nil {
		return 0, err
	}

	products := parseProducts(doc)
	if len(products) == 0 {
		return 0, fmt.Errorf("no products found at %s", im.url)
	}

	// Featured carousels repeat cards; the first occurrence wins.
	seen := make(map[string]struct{}, len(products))
	products = sliceutil.Filter(products, func(p *storage.Product) bool {
		if _, ok := seen[p.Code]; ok {
			return false
		}
		seen[p.Code] = struct{}{}
		return true
	})

	if err := im.db.UpsertProducts(ctx, products); err != nil {
		return 0, fmt.Errorf("failed to store products: %w", err)
	}

	im.log.WithField("count", len(products)).Infof("catalog refreshed")
	return len(products), nil
}

func (im *Importer) fetchDocument(ctx context.Context) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", im.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", uarand.GetRandom())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "th-TH,th;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Accept-Encoding", "gzip, deflate")

	resp, err := im.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status for %s: %d", im.url, resp.StatusCode)
	}

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress gzip: %w", err)
		}
		defer func() { _ = gzipReader.Close() }()
		reader = gzipReader
	}

	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// parseProducts extracts product cards from a storefront listing page.
// Cards without a code or a parseable price are skipped.
func parseProducts(doc *goquery.Document) []*storage.Product {
	var products []*storage.Product

	doc.Find(".product-card").Each(func(_ int, card *goquery.Selection) {
		code := strings.TrimSpace(card.AttrOr("data-code", ""))
		if code == "" {
			code = strings.TrimSpace(card.Find(".product-code").First().Text())
		}
		if code == "" {
			return
		}

		name := strings.TrimSpace(card.Find(".product-name").First().Text())
		if name == "" {
			name = code
		}

		price, ok := parsePrice(card.Find(".product-price").First().Text())
		if !ok {
			return
		}

		imageURL := card.Find("img").First().AttrOr("src", "")

		inStock := true
		if card.HasClass("out-of-stock") || card.Find(".out-of-stock").Length() > 0 {
			inStock = false
		}

		products = append(products, &storage.Product{
			Code:     code,
			Name:     name,
			Price:    price,
			ImageURL: imageURL,
			InStock:  inStock,
		})
	})

	return products
}

// parsePrice pulls the numeric amount out of a price label like
// "฿7,900" or "7900 บาท". Prices are whole baht.
func parsePrice(text string) (int, bool) {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' || r == '.' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	price, err := strconv.ParseFloat(b.String(), 64)
	if err != nil || price <= 0 {
		return 0, false
	}
	return int(math.Round(price)), true
}
