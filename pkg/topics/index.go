package topics

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Config controls lookup behavior.
type Config struct {
	Fanout        int      // number of best-scoring entries whose tables are returned
	Threshold     float64  // minimum similarity for an entry to count as a match
	DefaultTables []string // fallback when nothing matches or the index is unavailable
}

// Match is one entry that scored above threshold.
type Match struct {
	Keyword string  `json:"keyword"`
	Score   float64 `json:"score"`
}

// Result is the outcome of a lookup.
type Result struct {
	Tables   []string `json:"tables"`
	Matches  []Match  `json:"matches,omitempty"`
	Fallback bool     `json:"fallback"` // default tables were returned
	Degraded bool     `json:"degraded"` // the index or embedder was unavailable
}

type indexedEntry struct {
	entry   Entry
	vectors [][]float32
}

// Index is an immutable similarity index over topic entries.
// A zero-entry or failed index still answers lookups with the default tables.
type Index struct {
	cfg      Config
	embedder Embedder
	entries  []indexedEntry
	ready    bool
	logger   *zap.Logger
}

// Build embeds every entry phrase once. When embedding fails the returned
// index is usable in degraded mode and the error is returned alongside it.
func Build(ctx context.Context, cfg Config, embedder Embedder, entries []Entry, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Fanout <= 0 {
		cfg.Fanout = 3
	}
	cfg.DefaultTables = append([]string(nil), cfg.DefaultTables...)

	idx := &Index{cfg: cfg, embedder: embedder, logger: logger.Named("topics")}
	if embedder == nil {
		return idx, fmt.Errorf("topic index: no embedder configured")
	}

	var phrases []string
	for _, e := range entries {
		phrases = append(phrases, e.Phrases()...)
	}
	if len(phrases) == 0 {
		idx.ready = true
		return idx, nil
	}

	vectors, err := embedder.Embed(ctx, phrases)
	if err != nil {
		idx.logger.Warn("Topic index unavailable, lookups will use default tables",
			zap.String("embedder", embedder.Name()),
			zap.Error(err))
		return idx, fmt.Errorf("topic index: embed %d phrases: %w", len(phrases), err)
	}
	if len(vectors) != len(phrases) {
		return idx, fmt.Errorf("topic index: embedder returned %d vectors for %d phrases", len(vectors), len(phrases))
	}

	pos := 0
	for _, e := range entries {
		n := len(e.Phrases())
		if n == 0 {
			continue
		}
		idx.entries = append(idx.entries, indexedEntry{
			entry:   Entry{Keyword: e.Keyword, Tables: append([]string(nil), e.Tables...), Related: append([]string(nil), e.Related...)},
			vectors: vectors[pos : pos+n],
		})
		pos += n
	}
	idx.ready = true

	idx.logger.Info("Topic index built",
		zap.String("embedder", embedder.Name()),
		zap.Int("entries", len(idx.entries)),
		zap.Int("phrases", len(phrases)))
	return idx, nil
}

// Len returns the number of indexed entries.
func (i *Index) Len() int { return len(i.entries) }

// DefaultTables returns a copy of the fallback table list.
func (i *Index) DefaultTables() []string {
	return append([]string(nil), i.cfg.DefaultTables...)
}

// Lookup returns the candidate tables for a question.
func (i *Index) Lookup(ctx context.Context, question string) []string {
	return i.Search(ctx, question).Tables
}

// Search scores every entry against question and returns the union of tables
// of the top Fanout matches, ordered by descending score. Ties keep entry order.
// It never fails: no match, no index, or an embedder error yields the defaults.
func (i *Index) Search(ctx context.Context, question string) Result {
	if !i.ready {
		i.logger.Warn("Topic lookup in degraded mode, using default tables")
		return Result{Tables: i.DefaultTables(), Fallback: true, Degraded: true}
	}
	if len(i.entries) == 0 || strings.TrimSpace(question) == "" {
		return Result{Tables: i.DefaultTables(), Fallback: true}
	}

	qv, err := i.embedder.Embed(ctx, []string{question})
	if err != nil || len(qv) != 1 {
		i.logger.Warn("Question embedding failed, using default tables",
			zap.String("embedder", i.embedder.Name()),
			zap.Error(err))
		return Result{Tables: i.DefaultTables(), Fallback: true, Degraded: true}
	}

	type scored struct {
		pos   int
		score float64
	}
	var hits []scored
	for pos, e := range i.entries {
		best := 0.0
		for _, v := range e.vectors {
			if s := Cosine(qv[0], v); s > best {
				best = s
			}
		}
		if best > 0 && best >= i.cfg.Threshold {
			hits = append(hits, scored{pos: pos, score: best})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })
	if len(hits) > i.cfg.Fanout {
		hits = hits[:i.cfg.Fanout]
	}

	var res Result
	seen := make(map[string]bool)
	for _, h := range hits {
		e := i.entries[h.pos].entry
		res.Matches = append(res.Matches, Match{Keyword: e.Keyword, Score: h.score})
		for _, t := range e.Tables {
			key := strings.ToLower(t)
			if seen[key] {
				continue
			}
			seen[key] = true
			res.Tables = append(res.Tables, t)
		}
	}

	if len(res.Tables) == 0 {
		res.Tables = i.DefaultTables()
		res.Fallback = true
	}
	return res
}
