// Package validator scans generated output for common model failure modes:
// invented numeric metrics, templated test text, missing source quotes,
// placeholder deliverables and count mismatches between stages.
//
// Every check is advisory. Functions return a Report and never modify or
// reject the output they inspect.
package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/AvishManiar21/user-story-automation/internal/backlog"
	"github.com/AvishManiar21/user-story-automation/internal/normalize"
)

// Report is the result of a validation pass.
type Report struct {
	Valid      bool     `json:"valid"`
	Issues     []string `json:"issues"`
	IssueCount int      `json:"issue_count"`
}

func newReport(issues []string) Report {
	if issues == nil {
		issues = []string{}
	}
	return Report{
		Valid:      len(issues) == 0,
		Issues:     issues,
		IssueCount: len(issues),
	}
}

// Merge combines reports, keeping issue order.
func Merge(reports ...Report) Report {
	var issues []string
	for _, r := range reports {
		issues = append(issues, r.Issues...)
	}
	return newReport(issues)
}

type metricPattern struct {
	re          *regexp.Regexp
	description string
}

var metricPatterns = []metricPattern{
	{regexp.MustCompile(`(?i)\d+%`), "Percentages (e.g., 90%, 95%)"},
	{regexp.MustCompile(`(?i)\d+\s*minutes?`), "Time in minutes (e.g., 30 minutes)"},
	{regexp.MustCompile(`(?i)\d+\s*seconds?`), "Time in seconds (e.g., 2 seconds)"},
	{regexp.MustCompile(`(?i)\d+\s*hours?`), "Time in hours (e.g., 2 hours)"},
	{regexp.MustCompile(`(?i)within\s+\d+`), "Time windows (e.g., within 5 minutes)"},
	{regexp.MustCompile(`(?i)does not exceed\s+\d+`), "Time limits (e.g., does not exceed 2 seconds)"},
	{regexp.MustCompile(`(?i)\d+\s*transmissions?`), "Count metrics (e.g., 30 transmissions)"},
	{regexp.MustCompile(`(?i)\d+\s*of\s+components?`), "Percentage-like (e.g., 80% of components)"},
}

// Template phrases are reported by their literal text.
var templatePhrases = []string{
	`Functionality works as specified`,
	`Verify that the system must`,
	`works as specified in the user story`,
	`Test cases will be defined`,
}

var templatePatterns = compileAll(templatePhrases)

var genericDeliverablePhrases = []string{
	`Deliverables:\s*TBD`,
	`No deliverables defined`,
	`Deliverables will be defined`,
}

var genericDeliverablePatterns = compileAll(genericDeliverablePhrases)

func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// sourceQuoteKeys are the fields accepted as traceability evidence.
var sourceQuoteKeys = []string{"source_basis", "source_quote", "sourceQuote"}

// Validate checks generated JSON text against the source document. An empty
// source flags every metric as potentially invented.
func Validate(output, source string) Report {
	var issues []string
	issues = append(issues, checkMetrics(output, source)...)
	issues = append(issues, checkTemplates(output)...)
	issues = append(issues, checkSourceQuotes(output)...)
	issues = append(issues, checkGenericDeliverables(output)...)
	issues = append(issues, checkTestCaseStructure(output)...)
	return newReport(issues)
}

func checkMetrics(output, source string) []string {
	var issues []string
	lowerSource := strings.ToLower(source)
	for _, p := range metricPatterns {
		for _, match := range p.re.FindAllString(output, -1) {
			switch {
			case source == "":
				issues = append(issues, fmt.Sprintf("Potential invented metric: '%s' (%s)", match, p.description))
			case !strings.Contains(lowerSource, strings.ToLower(match)):
				issues = append(issues, fmt.Sprintf("Invented metric found: '%s' (%s)", match, p.description))
			}
		}
	}
	return issues
}

func checkTemplates(output string) []string {
	var issues []string
	for i, re := range templatePatterns {
		if re.MatchString(output) {
			issues = append(issues, fmt.Sprintf("Template test case detected: '%s' - not concrete", templatePhrases[i]))
		}
	}
	return issues
}

func checkSourceQuotes(output string) []string {
	if !strings.Contains(output, `"`+backlog.KeyUserStories+`"`) && !strings.Contains(output, `"`+backlog.KeyEpics+`"`) {
		return nil
	}

	doc, ok := normalize.Parse(output, nil).(map[string]any)
	if !ok {
		if !strings.Contains(output, "source_basis") && !strings.Contains(output, "source_quote") {
			return []string{"Missing source quotes for traceability"}
		}
		return nil
	}

	stories, present := doc[backlog.KeyUserStories]
	if !present {
		stories = doc[backlog.KeyEpics]
	}
	list, _ := stories.([]any)

	var issues []string
	for i, item := range list {
		story, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if !hasAnyKey(story, sourceQuoteKeys) {
			issues = append(issues, fmt.Sprintf("Story %d missing source quote/basis for traceability", i+1))
		}
	}
	return issues
}

func hasAnyKey(m map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

func checkGenericDeliverables(output string) []string {
	var issues []string
	for i, re := range genericDeliverablePatterns {
		if re.MatchString(output) {
			issues = append(issues, fmt.Sprintf("Generic deliverable placeholder: '%s'", genericDeliverablePhrases[i]))
		}
	}
	return issues
}

func checkTestCaseStructure(output string) []string {
	if !strings.Contains(output, `"`+backlog.KeyTestCases+`"`) && !strings.Contains(output, `"`+backlog.KeyTestCasesAlt+`"`) {
		return nil
	}
	lower := strings.ToLower(output)
	if !strings.Contains(lower, "input") || !strings.Contains(lower, "expected") {
		return []string{"Test cases may be missing concrete input/output structure"}
	}
	return nil
}
