package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	gitleaksconfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksregexp "github.com/zricethezav/gitleaks/v8/regexp"
	"go.uber.org/zap"
)

// Finding is one detected secret.
type Finding struct {
	RuleID string
	Line   int
	Match  string
}

// Summary describes the redactions applied to one text. It never holds the
// secret values.
type Summary struct {
	TotalSecrets int            `json:"total_secrets"`
	RuleCounts   map[string]int `json:"rule_counts"`
	Elapsed      time.Duration  `json:"elapsed"`
}

// Result is redacted text plus its summary.
type Result struct {
	Content string
	Summary Summary
}

// Redactor replaces secrets with [REDACTED:rule-id] markers.
type Redactor struct {
	allowlist *Allowlist
	logger    *zap.Logger
}

// NewRedactor returns a Redactor. allowlist may be nil.
func NewRedactor(allowlist *Allowlist, logger *zap.Logger) *Redactor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redactor{allowlist: allowlist, logger: logger}
}

// Detect scans text with the default gitleaks rules minus the allowlist.
func (r *Redactor) Detect(text string) ([]Finding, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("creating detector: %w", err)
	}
	if !r.allowlist.Empty() {
		applyAllowlist(&detector.Config, r.allowlist)
	}

	found := detector.DetectString(text)
	out := make([]Finding, 0, len(found))
	for _, f := range found {
		if f.Secret == "" {
			continue
		}
		out = append(out, Finding{RuleID: f.RuleID, Line: f.StartLine, Match: f.Secret})
	}
	return out, nil
}

// RedactText redacts every detected secret in text.
func (r *Redactor) RedactText(text string) (Result, error) {
	start := time.Now()
	findings, err := r.Detect(text)
	if err != nil {
		return Result{}, err
	}

	// Longest first so a secret that contains another is replaced whole.
	sort.SliceStable(findings, func(i, j int) bool {
		return len(findings[i].Match) > len(findings[j].Match)
	})

	counts := make(map[string]int)
	for _, f := range findings {
		if !strings.Contains(text, f.Match) {
			continue
		}
		text = strings.ReplaceAll(text, f.Match, fmt.Sprintf("[REDACTED:%s]", f.RuleID))
		counts[f.RuleID]++
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	return Result{
		Content: text,
		Summary: Summary{TotalSecrets: total, RuleCounts: counts, Elapsed: time.Since(start)},
	}, nil
}

// Redact returns text with secrets replaced. Detection failures are logged
// and the text is returned unchanged.
func (r *Redactor) Redact(text string) string {
	res, err := r.RedactText(text)
	if err != nil {
		r.logger.Error("secret detection failed, sending document unredacted", zap.Error(err))
		return text
	}
	if res.Summary.TotalSecrets > 0 {
		r.logger.Warn("redacted secrets from document",
			zap.Int("count", res.Summary.TotalSecrets),
			zap.Any("rules", res.Summary.RuleCounts))
	}
	return res.Content
}

func applyAllowlist(cfg *gitleaksconfig.Config, allowlist *Allowlist) {
	global := &gitleaksconfig.Allowlist{
		Description: "document allowlist",
		StopWords:   append([]string(nil), allowlist.StopWords...),
	}
	for _, pattern := range allowlist.Regexes {
		// Patterns are validated by LoadAllowlist; anything else is skipped.
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		global.Regexes = append(global.Regexes, (*gitleaksregexp.Regexp)(re))
	}
	cfg.Allowlists = append(cfg.Allowlists, global)
}
