// Package dedupe removes repeated and near-duplicate user stories.
//
// Two stories are near duplicates when the Jaccard similarity of their
// lowercase word sets exceeds the configured threshold. The first story of
// a duplicate group is kept; later ones are dropped.
package dedupe

import (
	"strings"

	"go.uber.org/zap"

	"github.com/AvishManiar21/user-story-automation/internal/backlog"
)

// DefaultThreshold is the similarity above which a story is dropped.
const DefaultThreshold = 0.6

// Deduper filters stories in order.
type Deduper struct {
	threshold float64
	logger    *zap.Logger
}

// New returns a Deduper. A threshold outside (0, 1] falls back to
// DefaultThreshold.
func New(threshold float64, logger *zap.Logger) *Deduper {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduper{threshold: threshold, logger: logger}
}

type accepted struct {
	text  string
	words map[string]struct{}
}

// Keep returns the indexes of texts that survive deduplication, in input
// order. Empty texts are always dropped.
func (d *Deduper) Keep(texts []string) []int {
	kept := make([]int, 0, len(texts))
	seen := make(map[string]struct{}, len(texts))
	var pool []accepted

	for i, raw := range texts {
		text := normalizeText(raw)
		if text == "" {
			d.logger.Debug("skipping empty story", zap.Int("index", i))
			continue
		}
		if _, dup := seen[text]; dup {
			d.logger.Debug("skipping duplicate story", zap.String("story", preview(text, 50)))
			continue
		}

		words := wordSet(text)
		duplicate := false
		for _, prev := range pool {
			if sim := jaccard(words, prev.words); sim > d.threshold {
				d.logger.Debug("skipping similar story",
					zap.Float64("similarity", sim),
					zap.String("new", preview(text, 60)),
					zap.String("existing", preview(prev.text, 60)))
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}

		seen[text] = struct{}{}
		pool = append(pool, accepted{text: text, words: words})
		kept = append(kept, i)
	}

	if dropped := len(texts) - len(kept); dropped > 0 {
		d.logger.Info("removed duplicate stories",
			zap.Int("dropped", dropped),
			zap.Int("kept", len(kept)))
	}
	return kept
}

// Apply filters items by the text extracted from each one.
func Apply[T any](d *Deduper, items []T, text func(T) string) []T {
	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = text(item)
	}
	idx := d.Keep(texts)
	out := make([]T, 0, len(idx))
	for _, i := range idx {
		out = append(out, items[i])
	}
	return out
}

// Epics deduplicates typed epics by their story text.
func (d *Deduper) Epics(epics []backlog.Epic) []backlog.Epic {
	return Apply(d, epics, func(e backlog.Epic) string { return e.UserStory })
}

// jaccard returns the similarity of two word sets. Either side being empty
// yields 0.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	overlap := 0
	for w := range a {
		if _, ok := b[w]; ok {
			overlap++
		}
	}
	union := len(a) + len(b) - overlap
	return float64(overlap) / float64(union)
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func wordSet(text string) map[string]struct{} {
	fields := strings.Fields(text)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
