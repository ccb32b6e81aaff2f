package kb

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/go-ego/gse"
	bm25 "github.com/iwilltry42/bm25-go/bm25"

	"github.com/chaintara/shopchat-linebot-go/internal/logger"
	"github.com/chaintara/shopchat-linebot-go/internal/storage"
)

// IndexHit is one ranked entry from a partial-match search.
type IndexHit struct {
	Entry *storage.KBEntry
	Score float64
	Rank  int
}

// Index ranks knowledge entries against free-text queries with BM25.
// It backs the partial fallback that runs after rule matching misses.
type Index struct {
	mu      sync.RWMutex
	entries []*storage.KBEntry
	okapi   *bm25.BM25Okapi
	seg     gse.Segmenter
	segOK   bool
	log     *logger.Logger
}

// NewIndex creates an empty index. The segmenter dictionary load is
// best-effort: without it, tokenization falls back to character
// bigrams, which still rank Thai text usefully.
func NewIndex(log *logger.Logger) *Index {
	idx := &Index{log: log.WithModule("kb")}
	if err := idx.seg.LoadDict(); err != nil {
		idx.log.WithError(err).Warnf("segmenter dictionary unavailable, using bigram tokens only")
	} else {
		idx.segOK = true
	}
	return idx
}

// Rebuild replaces the indexed corpus. One document per entry, built
// from its answer and every matching term so a query can hit either.
func (idx *Index) Rebuild(entries []*storage.KBEntry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var kept []*storage.KBEntry
	var corpus []string
	for _, e := range entries {
		doc := entryDocument(e)
		if strings.TrimSpace(doc) == "" {
			continue
		}
		kept = append(kept, e)
		corpus = append(corpus, doc)
	}

	if len(corpus) == 0 {
		idx.entries = nil
		idx.okapi = nil
		return nil
	}

	// k1=1.5, b=0.75 are the standard BM25 parameters.
	okapi, err := bm25.NewBM25Okapi(corpus, idx.tokenize, 1.5, 0.75, nil)
	if err != nil {
		return fmt.Errorf("failed to build kb index: %w", err)
	}
	idx.entries = kept
	idx.okapi = okapi
	return nil
}

// Search returns the topN entries scoring above zero, best first.
func (idx *Index) Search(query string, topN int) ([]IndexHit, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.okapi == nil || strings.TrimSpace(query) == "" {
		return nil, nil
	}

	tokens := idx.tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	scores, err := idx.okapi.GetScores(tokens)
	if err != nil {
		return nil, fmt.Errorf("kb scoring failed: %w", err)
	}

	var hits []IndexHit
	for i, score := range scores {
		if score > 0 && i < len(idx.entries) {
			hits = append(hits, IndexHit{Entry: idx.entries[i], Score: score})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	for i := range hits {
		hits[i].Rank = i + 1
	}
	if topN > 0 && len(hits) > topN {
		hits = hits[:topN]
	}
	return hits, nil
}

func entryDocument(e *storage.KBEntry) string {
	parts := make([]string, 0, 1+len(e.Keywords)+len(e.RequireAll)+len(e.RequireAny))
	parts = append(parts, e.Keywords...)
	parts = append(parts, e.RequireAll...)
	parts = append(parts, e.RequireAny...)
	parts = append(parts, e.Answer)
	return strings.Join(parts, " ")
}

// tokenize lowercases and splits mixed Thai/Latin text. Latin and
// digit runs become whole words. Thai runs go through the segmenter
// when its dictionary loaded, and always contribute character bigrams,
// which carry the ranking for vocabulary the dictionary lacks.
func (idx *Index) tokenize(text string) []string {
	text = strings.ToLower(text)

	var tokens []string
	var word strings.Builder
	var thai []rune

	flushWord := func() {
		if word.Len() > 0 {
			tokens = append(tokens, word.String())
			word.Reset()
		}
	}
	flushThai := func() {
		if len(thai) == 0 {
			return
		}
		run := string(thai)
		if idx.segOK {
			for _, t := range idx.seg.Cut(run, true) {
				if len([]rune(t)) >= 2 {
					tokens = append(tokens, t)
				}
			}
		}
		for i := 0; i+1 < len(thai); i++ {
			tokens = append(tokens, string(thai[i:i+2]))
		}
		if len(thai) == 1 {
			tokens = append(tokens, run)
		}
		thai = thai[:0]
	}

	for _, r := range text {
		switch {
		case unicode.Is(unicode.Thai, r):
			flushWord()
			thai = append(thai, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			flushThai()
			word.WriteRune(r)
		default:
			flushWord()
			flushThai()
		}
	}
	flushWord()
	flushThai()
	return tokens
}
