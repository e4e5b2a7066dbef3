// Package backlog defines the entities produced by one pipeline run.
//
// The JSON tags follow the key names the extraction prompts ask the model
// for. Epics are read with DecodeEpic, which settles the deliverable key
// variants the model drifts between; callers choose the epic list key.
package backlog

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/AvishManiar21/user-story-automation/internal/normalize"
)

// Confidence levels attached to extracted requirements.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Key names used by the epic and test case documents.
const (
	KeyUserStories  = "User Stories"
	KeyEpics        = "Epics"
	KeyUserStory    = "User Story"
	KeyDeliverables = "Deliverables"
	KeyTestCases    = "testCases"
	KeyTestCasesAlt = "Test Cases"
	KeyRequirements = "requirements"
)

// ErrNotObject is returned when an epic is not a JSON object.
var ErrNotObject = errors.New("not a JSON object")

// dodKeys are the deliverable fields that may carry a definition of done,
// in order of preference.
var dodKeys = []string{"definition_of_done", "definitionOfDone", "description", "criteria"}

// Requirement is a functional requirement grounded in a source quote.
type Requirement struct {
	ID          int    `json:"id"`
	Statement   string `json:"statement"`
	SourceQuote string `json:"source_quote"`
	Confidence  string `json:"confidence"`
}

// Level returns the confidence as one of the Confidence constants, or ""
// when the model gave none or something else.
func (r Requirement) Level() string {
	switch c := strings.ToLower(strings.TrimSpace(r.Confidence)); c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return c
	}
	return ""
}

// Weak returns the ids of requirements rated low or not rated at all.
func Weak(reqs []Requirement) []int {
	var ids []int
	for _, r := range reqs {
		if l := r.Level(); l == "" || l == ConfidenceLow {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// RequirementSet is the document produced by requirement extraction.
type RequirementSet struct {
	Requirements []Requirement `json:"requirements"`
}

// Deliverable is a named work artifact. An empty DefinitionOfDone means the
// model gave none, or gave "TBD".
type Deliverable struct {
	Name             string
	DefinitionOfDone string
}

// Epic is a single user story plus its deliverables in document order.
type Epic struct {
	UserStory    string
	SourceBasis  string
	Deliverables []Deliverable
}

// Defined returns the deliverables that carry a definition of done.
func (e Epic) Defined() []Deliverable {
	var out []Deliverable
	for _, d := range e.Deliverables {
		if d.DefinitionOfDone != "" {
			out = append(out, d)
		}
	}
	return out
}

// DecodeEpic reads one epic object. The story text is trimmed. A
// "Deliverables" value that is not an object yields no deliverables.
func DecodeEpic(raw []byte) (Epic, error) {
	fields, ok := normalize.Fields(raw)
	if !ok {
		return Epic{}, ErrNotObject
	}

	var e Epic
	if v, ok := normalize.Lookup(fields, KeyUserStory); ok {
		e.UserStory = strings.TrimSpace(normalize.Text(v))
	}
	if v, ok := normalize.Lookup(fields, "source_basis"); ok {
		e.SourceBasis = normalize.Text(v)
	}
	if v, ok := normalize.Lookup(fields, KeyDeliverables); ok {
		e.Deliverables, _ = DecodeDeliverables(v)
	}
	return e, nil
}

// DecodeDeliverables reads a deliverables object in document order. Each
// value may be a plain string or an object holding the definition of done
// under any of several keys; an object with none of them is kept as its
// compact JSON. A "User Story" member is skipped. It reports false when raw
// is not an object.
func DecodeDeliverables(raw []byte) ([]Deliverable, bool) {
	fields, ok := normalize.Fields(raw)
	if !ok {
		return nil, false
	}
	out := make([]Deliverable, 0, len(fields))
	for _, f := range fields {
		if f.Key == KeyUserStory {
			continue
		}
		out = append(out, Deliverable{Name: f.Key, DefinitionOfDone: definitionOfDone(f.Value)})
	}
	return out, true
}

func definitionOfDone(v json.RawMessage) string {
	dod := normalize.Text(v)
	if fields, isObject := normalize.Fields(v); isObject {
		if raw, found := normalize.FirstTruthy(fields, dodKeys...); found {
			dod = normalize.Text(raw)
		}
	} else {
		dod = strings.TrimSpace(dod)
	}

	if t := strings.TrimSpace(dod); t == "" || strings.EqualFold(t, "TBD") {
		return ""
	}
	return dod
}

// Scenario is one concrete test case.
type Scenario struct {
	Name           string         `json:"name"`
	Input          map[string]any `json:"input"`
	ExpectedOutput map[string]any `json:"expected_output"`
}

// TestCaseGroup holds the scenarios for one requirement.
type TestCaseGroup struct {
	RequirementID int        `json:"requirement_id"`
	Scenarios     []Scenario `json:"scenarios"`
}

// TestCaseSet is the document produced by test case generation.
type TestCaseSet struct {
	TestCases []TestCaseGroup `json:"testCases"`
}

// Story is the flat presentation record handed to clients.
type Story struct {
	ID               int    `json:"id"`
	Title            string `json:"title"`
	Description      string `json:"description"`
	DefinitionOfDone string `json:"definitionOfDone"`
	TestCases        string `json:"testCases"`
}
