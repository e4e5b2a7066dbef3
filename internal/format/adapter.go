// Package format converts pipeline output into flat story records for
// presentation clients.
package format

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/AvishManiar21/user-story-automation/internal/backlog"
	"github.com/AvishManiar21/user-story-automation/internal/dedupe"
	"github.com/AvishManiar21/user-story-automation/internal/normalize"
)

const (
	errorTitle            = "Error processing stories"
	noDeliverablesText    = "Deliverables will be defined during sprint planning"
	noTestCasesText       = "Test cases will be defined during test planning"
	fallbackExpectation   = "Functionality works as specified in the user story"
	featureDeliverableKey = "Feature Implementation"
	soThat                = " so that "
)

var (
	titlePrefixes       = []string{"The system must ", "The system shall ", "Users can ", "The "}
	deliverablePrefixes = []string{"The system must ", "The system shall ", "The "}

	actionStopwords = wordSet("and", "the", "for", "with", "from", "to", "a", "an", "in", "on", "at", "by")
	plainStopwords  = wordSet("the", "system", "must", "shall", "can", "will", "and", "for", "with")

	requirementIDKeys   = []string{"requirementId", "requirementID", "requirement_id", "req_id"}
	testNameKeys        = []string{"name", "testCaseName", "test_case_name"}
	testDescriptionKeys = []string{"description", "testDescription"}
)

// Adapter builds presentation records from epic and test case documents.
type Adapter struct {
	deduper *dedupe.Deduper
	logger  *zap.Logger
}

// NewAdapter returns an Adapter. A nil deduper uses the default threshold.
func NewAdapter(deduper *dedupe.Deduper, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deduper == nil {
		deduper = dedupe.New(dedupe.DefaultThreshold, logger)
	}
	return &Adapter{deduper: deduper, logger: logger}
}

// ToPresentation converts the epic and test case documents into story
// records. Stories are deduplicated first. Any failure yields a single
// error record instead of an error.
func (a *Adapter) ToPresentation(epicsJSON, testCasesJSON, requirementsText string) []backlog.Story {
	stories, err := a.convert(epicsJSON, testCasesJSON)
	if err != nil {
		a.logger.Error("converting stories", zap.Error(err))
		return []backlog.Story{ErrorRecord(err)}
	}
	if len(stories) == 0 && strings.TrimSpace(requirementsText) != "" {
		a.logger.Warn("requirements produced no user stories")
	}
	return stories
}

// ErrorRecord is the single record returned when conversion fails.
func ErrorRecord(err error) backlog.Story {
	return backlog.Story{
		ID:               1,
		Title:            errorTitle,
		Description:      err.Error(),
		DefinitionOfDone: "-",
		TestCases:        "-",
	}
}

type testIndex struct {
	list   []json.RawMessage
	byName []field
}

func (a *Adapter) convert(epicsJSON, testCasesJSON string) ([]backlog.Story, error) {
	epicsDoc := normalize.Decode(epicsJSON, map[string]json.RawMessage{})
	testsDoc := normalize.Decode(testCasesJSON, map[string]json.RawMessage{})

	raw, _ := arrayItems(epicsDoc[backlog.KeyUserStories])
	if len(raw) == 0 {
		if epics, ok := arrayItems(epicsDoc[backlog.KeyEpics]); ok && len(epics) > 0 {
			a.logger.Debug("using Epics key for user stories")
			raw = epics
		}
	}

	epics := make([]backlog.Epic, 0, len(raw))
	for i, item := range raw {
		epic, err := backlog.DecodeEpic(item)
		if err != nil {
			return nil, fmt.Errorf("story %d: %w", i+1, err)
		}
		epics = append(epics, epic)
	}

	tests := indexTests(testsDoc)
	a.logger.Debug("converting stories",
		zap.Int("stories", len(epics)),
		zap.Int("test_cases", len(tests.list)),
		zap.Int("keyed_test_cases", len(tests.byName)))

	epics = a.deduper.Epics(epics)

	out := make([]backlog.Story, 0, len(epics))
	for idx, epic := range epics {
		out = append(out, backlog.Story{
			ID:               idx + 1,
			Title:            Title(epic.UserStory, idx),
			Description:      epic.UserStory,
			DefinitionOfDone: definitionOfDone(epic),
			TestCases:        a.testCasesFor(tests, epic.UserStory, idx),
		})
	}
	return out, nil
}

func indexTests(doc map[string]json.RawMessage) testIndex {
	var idx testIndex
	if list, ok := arrayItems(doc[backlog.KeyTestCases]); ok {
		idx.list = list
	}
	alt := doc[backlog.KeyTestCasesAlt]
	if fields, ok := objectFields(alt); ok {
		idx.byName = fields
	} else if list, ok := arrayItems(alt); ok && len(idx.list) == 0 {
		idx.list = list
	}
	return idx
}

// Title derives a short title-cased heading from a story sentence. Stories
// without text are named by position.
func Title(storyText string, idx int) string {
	if storyText == "" {
		return fmt.Sprintf("User Story %d", idx+1)
	}

	var words, meaningful []string
	if action, _, found := splitSoThat(storyText); found {
		action = strings.TrimSpace(stripAll(action, titlePrefixes))
		words = strings.Fields(action)
		meaningful = meaningfulWords(words, actionStopwords)
	} else {
		words = strings.Fields(storyText)
		meaningful = meaningfulWords(words, plainStopwords)
	}

	title := meaningful
	if len(title) == 0 {
		title = words[:min(4, len(words))]
	}

	out := make([]string, len(title))
	for i, w := range title {
		out[i] = capitalize(w)
	}
	return strings.Join(out, " ")
}

func meaningfulWords(words []string, stopwords map[string]struct{}) []string {
	var out []string
	for _, w := range words {
		clean := strings.TrimRight(w, ",;.")
		if _, stop := stopwords[strings.ToLower(clean)]; stop {
			continue
		}
		out = append(out, clean)
		if len(out) >= 5 {
			break
		}
	}
	return out
}

func definitionOfDone(epic backlog.Epic) string {
	var items []string
	for _, d := range epic.Defined() {
		items = append(items, fmt.Sprintf("• %s: %s", titleWords(strings.ReplaceAll(d.Name, "_", " ")), d.DefinitionOfDone))
	}

	if len(items) == 0 && epic.UserStory != "" {
		action, _, _ := splitSoThat(epic.UserStory)
		if action = strings.TrimSpace(stripAll(action, deliverablePrefixes)); action != "" {
			items = append(items, fmt.Sprintf("• %s: %s", featureDeliverableKey, action))
		}
	}

	if len(items) == 0 {
		return noDeliverablesText
	}
	return strings.Join(items, "\n")
}

func (a *Adapter) testCasesFor(tests testIndex, storyText string, idx int) string {
	if matched := matchTestList(tests.list, storyText, idx); len(matched) > 0 {
		a.logger.Debug("matched test cases", zap.Int("story", idx+1), zap.Int("count", len(matched)))
		return formatTests(matched)
	}

	if len(tests.byName) > 0 {
		if v, ok := lookup(tests.byName, fmt.Sprint(idx+1)); ok && truthy(v) {
			return indented(v)
		}
		lowerStory := strings.ToLower(storyText)
		for _, f := range tests.byName {
			value := strings.ToLower(text(f.Value))
			if strings.Contains(value, lowerStory) || strings.Contains(lowerStory, value) {
				if truthy(f.Value) && text(f.Value) != "-" {
					return indented(f.Value)
				}
				break
			}
		}
	}

	if storyText == "" {
		return noTestCasesText
	}
	action, _, _ := splitSoThat(storyText)
	return fmt.Sprintf("Test: Verify that %s\nExpected: %s", strings.ToLower(action), fallbackExpectation)
}

// matchTestList selects test cases by requirement id, or else by keywords
// from the story.
func matchTestList(list []json.RawMessage, storyText string, idx int) [][]field {
	if len(list) == 0 {
		return nil
	}

	var keywords []string
	for _, w := range strings.Fields(strings.ToLower(storyText)) {
		if len([]rune(w)) > 4 {
			keywords = append(keywords, w)
		}
		if len(keywords) == 3 {
			break
		}
	}

	var matched [][]field
	for _, raw := range list {
		fields, ok := objectFields(raw)
		if !ok {
			continue
		}
		if id, found := firstTruthy(fields, requirementIDKeys...); found {
			if n, isNum := number(id); isNum && n == float64(idx+1) {
				matched = append(matched, fields)
				continue
			}
		}
		if storyText == "" {
			continue
		}
		haystack := strings.ToLower(string(raw))
		for _, kw := range keywords {
			if strings.Contains(haystack, kw) {
				matched = append(matched, fields)
				break
			}
		}
	}
	return matched
}

func formatTests(tests [][]field) string {
	var lines []string
	for _, t := range tests {
		if raw, ok := lookup(t, "scenarios"); ok {
			if scenarios, isList := arrayItems(raw); isList && len(scenarios) > 0 {
				lines = append(lines, formatScenarios(scenarios)...)
				continue
			}
		}
		lines = append(lines, testLine(t))
	}
	return strings.Join(lines, "\n")
}

func testLine(t []field) string {
	name := "Test Case"
	if v, ok := firstTruthy(t, testNameKeys...); ok {
		name = text(v)
	}
	desc := ""
	if v, ok := firstTruthy(t, testDescriptionKeys...); ok {
		desc = text(v)
	}
	return fmt.Sprintf("%s: %s", name, desc)
}

func formatScenarios(scenarios []json.RawMessage) []string {
	lines := make([]string, 0, len(scenarios))
	for _, raw := range scenarios {
		fields, ok := objectFields(raw)
		if !ok {
			continue
		}
		if _, hasDesc := firstTruthy(fields, testDescriptionKeys...); hasDesc {
			lines = append(lines, testLine(fields))
			continue
		}
		name := "Test Case"
		if v, found := firstTruthy(fields, testNameKeys...); found {
			name = text(v)
		}
		input, _ := lookup(fields, "input")
		expected, _ := lookup(fields, "expected_output")
		lines = append(lines, fmt.Sprintf("%s: input %s, expected %s", name, orDash(text(input)), orDash(text(expected))))
	}
	return lines
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// splitSoThat splits a story sentence at the first " so that ", ignoring case.
func splitSoThat(s string) (action, benefit string, found bool) {
	i := strings.Index(strings.ToLower(s), soThat)
	if i < 0 {
		return s, "", false
	}
	return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+len(soThat):]), true
}

func stripAll(s string, phrases []string) string {
	for _, p := range phrases {
		s = strings.ReplaceAll(s, p, "")
	}
	return s
}

func wordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(w string) string {
	r := []rune(strings.ToLower(w))
	if len(r) == 0 {
		return w
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// titleWords upper-cases every letter that follows a non-letter and
// lower-cases the others.
func titleWords(s string) string {
	r := []rune(s)
	prevLetter := false
	for i, c := range r {
		if unicode.IsLetter(c) {
			if prevLetter {
				r[i] = unicode.ToLower(c)
			} else {
				r[i] = unicode.ToUpper(c)
			}
			prevLetter = true
		} else {
			prevLetter = false
		}
	}
	return string(r)
}
