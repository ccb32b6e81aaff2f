// Package kb answers frequent questions from merchant-authored
// knowledge entries before the conversation falls through to the LLM.
// Rule matching runs first (legacy all-keywords and advanced
// require/exclude rules), then a BM25 partial fallback over the same
// entries.
package kb

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/chaintara/shopchat-linebot-go/internal/config"
	"github.com/chaintara/shopchat-linebot-go/internal/logger"
	"github.com/chaintara/shopchat-linebot-go/internal/metrics"
	"github.com/chaintara/shopchat-linebot-go/internal/storage"
	"github.com/chaintara/shopchat-linebot-go/internal/stringutil"
)

// Match kinds, used as metric labels.
const (
	KindLegacy   = "legacy"
	KindAdvanced = "advanced"
	KindPartial  = "partial"
	KindPending  = "pending"
	KindMiss     = "miss"
)

// Content markers on stored message rows. PendingMarker tags a held
// fragment awaiting elaboration; ImageMarker rows are media
// placeholders and never join a retry.
const (
	PendingMarker = "[kb_pending]"
	ImageMarker   = "[image]"
)

// pendingPrompt asks the customer to elaborate instead of answering
// from a half-matched rule.
const pendingPrompt = "ขอรายละเอียดเพิ่มอีกนิดนะคะ เช่น รุ่นหรือรหัสสินค้าที่สนใจค่ะ"

// Keywords shorter than this never count as a match on their own.
const minKeywordRunes = 2

// The partial fallback needs enough query text to avoid spurious hits.
const minPartialQueryRunes = 4

const cacheTTL = 5 * time.Minute

// Result is the matcher's answer for one query.
type Result struct {
	Kind   string
	Answer string
	Entry  *storage.KBEntry
	// Pending is true when the query half-matched a rule and the
	// matcher held it for elaboration; Answer carries the prompt.
	Pending bool
}

// Matcher evaluates queries against the knowledge base.
type Matcher struct {
	db    *storage.DB
	cfg   config.BotConfig
	hedge string
	index *Index
	log   *logger.Logger
	mtr   *metrics.Metrics
	now   func() time.Time

	cacheMu  sync.Mutex
	entries  []*storage.KBEntry
	loadedAt time.Time
}

// NewMatcher creates a matcher. hedgePrefix is prepended to
// partial-match answers so they read as best-effort.
func NewMatcher(db *storage.DB, cfg config.BotConfig, hedgePrefix string, log *logger.Logger, mtr *metrics.Metrics) *Matcher {
	return &Matcher{
		db:    db,
		cfg:   cfg,
		hedge: hedgePrefix,
		index: NewIndex(log),
		log:   log.WithModule("kb"),
		mtr:   mtr,
		now:   time.Now,
	}
}

// Match answers a query. It never returns an error to the caller: a
// storage failure degrades to a miss so the pipeline can continue to
// the LLM.
func (m *Matcher) Match(ctx context.Context, userID, chatID, query string) *Result {
	entries := m.load(ctx)
	if len(entries) == 0 {
		return m.result(KindMiss, "", nil)
	}

	norm := normalizeQuery(query)
	if e, kind := m.exact(norm, entries); e != nil {
		return m.result(kind, e.Answer, e)
	}

	// A prior hold may complete this query.
	held, extras := m.heldFragments(ctx, userID, chatID)
	if len(held) > 0 {
		combined := normalizeQuery(strings.Join(append(held, query), " "))
		if e, _ := m.exact(combined, entries); e != nil {
			return m.result(KindPending, e.Answer, e)
		}
	}

	if m.pendingSignal(norm, entries) && extras < m.cfg.KBPendingMaxMessages {
		m.hold(ctx, userID, chatID, query)
		r := m.result(KindPending, pendingPrompt, nil)
		r.Pending = true
		return r
	}

	if len([]rune(norm)) >= minPartialQueryRunes {
		hits, err := m.index.Search(query, 1)
		if err != nil {
			m.log.WithError(err).Errorf("partial search failed")
		}
		if len(hits) > 0 && hits[0].Score >= m.cfg.KBPartialMinScore {
			return m.result(KindPartial, m.hedge+hits[0].Entry.Answer, hits[0].Entry)
		}
	}

	return m.result(KindMiss, "", nil)
}

// Refresh drops the cache so the next query reloads entries. Called
// after merchant edits.
func (m *Matcher) Refresh() {
	m.cacheMu.Lock()
	m.loadedAt = time.Time{}
	m.cacheMu.Unlock()
}

func (m *Matcher) load(ctx context.Context) []*storage.KBEntry {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	if m.entries != nil && m.now().Sub(m.loadedAt) < cacheTTL {
		return m.entries
	}

	entries, err := m.db.ListKBEntries(ctx)
	if err != nil {
		m.log.WithError(err).Errorf("failed to load kb entries, serving stale cache")
		return m.entries
	}
	if err := m.index.Rebuild(entries); err != nil {
		m.log.WithError(err).Errorf("failed to rebuild kb index")
	}
	m.entries = entries
	m.loadedAt = m.now()
	return m.entries
}

// exact runs rule matching: advanced rules first, then legacy
// all-keywords entries.
func (m *Matcher) exact(norm string, entries []*storage.KBEntry) (*storage.KBEntry, string) {
	for _, e := range entries {
		if e.Advanced && matchAdvanced(norm, e) {
			return e, KindAdvanced
		}
	}
	for _, e := range entries {
		if !e.Advanced && matchLegacy(norm, e) {
			return e, KindLegacy
		}
	}
	return nil, ""
}

func matchLegacy(norm string, e *storage.KBEntry) bool {
	if len(e.Keywords) == 0 {
		return false
	}
	for _, kw := range e.Keywords {
		kw = normalizeQuery(kw)
		if len([]rune(kw)) < minKeywordRunes || !strings.Contains(norm, kw) {
			return false
		}
	}
	return true
}

func matchAdvanced(norm string, e *storage.KBEntry) bool {
	if e.MinQueryLen > 0 && len([]rune(norm)) < e.MinQueryLen {
		return false
	}
	if containsAnyTerm(norm, e.ExcludeAny) {
		return false
	}
	if !containsAllTerms(norm, e.RequireAll) {
		return false
	}
	if len(e.RequireAny) > 0 && !containsAnyTerm(norm, e.RequireAny) {
		return false
	}
	return len(e.RequireAll) > 0 || len(e.RequireAny) > 0
}

// pendingSignal reports whether any advanced rule half-matched: at
// least one required term present, but the rule as a whole not
// satisfied (missing terms or a query below the rule's minimum
// length). Those queries are worth holding for elaboration instead of
// answering or falling through.
func (m *Matcher) pendingSignal(norm string, entries []*storage.KBEntry) bool {
	for _, e := range entries {
		if !e.Advanced || (len(e.RequireAll) == 0 && len(e.RequireAny) == 0) {
			continue
		}
		if containsAnyTerm(norm, e.ExcludeAny) {
			continue
		}
		someHit := containsAnyTerm(norm, e.RequireAll) || containsAnyTerm(norm, e.RequireAny)
		if someHit && !matchAdvanced(norm, e) {
			return true
		}
	}
	return false
}

// hold stores the query as a pending fragment for later retries.
func (m *Matcher) hold(ctx context.Context, userID, chatID, query string) {
	_, err := m.db.InsertMessage(ctx, &storage.Message{
		UserID:      userID,
		ChatID:      chatID,
		Role:        storage.RoleUser,
		Content:     PendingMarker + " " + query,
		BufferState: storage.BufferFlushed,
		CreatedAt:   m.now(),
	})
	if err != nil {
		m.log.WithError(err).Errorf("failed to hold pending kb fragment")
	}
}

// heldFragments collects pending fragments from the recent
// conversation, oldest first, plus the count of ordinary user messages
// seen since the oldest hold. The walk stops at assistant rows and at
// the pending window; image placeholders are skipped entirely.
func (m *Matcher) heldFragments(ctx context.Context, userID, chatID string) ([]string, int) {
	recent, err := m.db.RecentMessages(ctx, userID, chatID, 10)
	if err != nil {
		m.log.WithError(err).Errorf("failed to read recent messages for kb retry")
		return nil, 0
	}

	cutoff := m.now().Add(-m.cfg.KBPendingWindow)
	var fragments []string
	extras := 0
	for _, msg := range recent { // newest first
		if msg.Role == storage.RoleAssistant {
			break
		}
		if msg.CreatedAt.Before(cutoff) {
			break
		}
		if strings.HasPrefix(msg.Content, ImageMarker) {
			continue
		}
		if strings.HasPrefix(msg.Content, PendingMarker) {
			text := strings.TrimSpace(strings.TrimPrefix(msg.Content, PendingMarker))
			fragments = append([]string{text}, fragments...)
			continue
		}
		if msg.Role == storage.RoleUser {
			extras++
			if extras > m.cfg.KBPendingMaxMessages {
				return nil, extras
			}
		}
	}
	return fragments, extras
}

func (m *Matcher) result(kind, answer string, e *storage.KBEntry) *Result {
	if m.mtr != nil {
		m.mtr.RecordKBMatch(kind)
	}
	return &Result{Kind: kind, Answer: answer, Entry: e}
}

func containsAllTerms(norm string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(norm, normalizeQuery(t)) {
			return false
		}
	}
	return true
}

func containsAnyTerm(norm string, terms []string) bool {
	for _, t := range terms {
		if t != "" && strings.Contains(norm, normalizeQuery(t)) {
			return true
		}
	}
	return false
}

func normalizeQuery(s string) string {
	return stringutil.CollapseWhitespace(stringutil.NormalizeForMatch(s))
}
