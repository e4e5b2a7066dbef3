package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvishManiar21/user-story-automation/internal/backlog"
	"github.com/AvishManiar21/user-story-automation/internal/dedupe"
)

func newTestAdapter() *Adapter {
	return NewAdapter(dedupe.New(dedupe.DefaultThreshold, nil), nil)
}

func TestTitle(t *testing.T) {
	tests := []struct {
		name  string
		story string
		idx   int
		want  string
	}{
		{
			name:  "action clause with prefix removed",
			story: "The system must send alerts so that users are notified",
			want:  "Send Alerts",
		},
		{
			name:  "stopwords and punctuation dropped, five words max",
			story: "The system must log temperature, humidity and pressure readings every hour so that trends are visible",
			want:  "Log Temperature Humidity Pressure Readings",
		},
		{
			name:  "without benefit clause",
			story: "Users can export reports to CSV",
			want:  "Users Export Reports To Csv",
		},
		{
			name:  "only stopwords falls back to raw words",
			story: "The system must and so that nothing",
			want:  "And",
		},
		{
			name:  "benefit clause is case-insensitive",
			story: "The system must rotate logs So That disks stay free",
			want:  "Rotate Logs",
		},
		{
			name: "empty story named by position",
			idx:  2,
			want: "User Story 3",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Title(tt.story, tt.idx))
		})
	}
}

func TestToPresentation_DefinitionOfDone(t *testing.T) {
	epics := `{"User Stories": [
		{"User Story": "The system must read sensors so that data is collected",
		 "Deliverables": {
			"sensor_reader": {"definition_of_done": "Reads all sensors"},
			"Alert_API": "Sends alert",
			"User Story": "redundant",
			"docs": "TBD",
			"notes": {"criteria": ""}
		 }},
		{"User Story": "The system must archive data so that history is kept"},
		{"Deliverables": {}}
	]}`

	stories := newTestAdapter().ToPresentation(epics, "{}", "")
	require.Len(t, stories, 2)

	assert.Equal(t, "• Sensor Reader: Reads all sensors\n• Alert Api: Sends alert\n• Notes: {\"criteria\":\"\"}",
		stories[0].DefinitionOfDone)
	assert.Equal(t, "• Feature Implementation: archive data", stories[1].DefinitionOfDone)
}

func TestDefinitionOfDone_NoText(t *testing.T) {
	assert.Equal(t, noDeliverablesText, definitionOfDone(backlog.Epic{}))
}

func TestToPresentation_TestCasesByRequirementID(t *testing.T) {
	epics := `{"User Stories": [
		{"User Story": "The system must send alerts so that users are notified"},
		{"User Story": "The system must archive data so that history is kept"}
	]}`
	tests := `{"testCases": [
		{"requirement_id": 1, "name": "Alert fires", "description": "Threshold crossing triggers alert"},
		{"requirementId": 2, "name": "Archive", "description": "Data archived nightly"}
	]}`

	stories := newTestAdapter().ToPresentation(epics, tests, "")
	require.Len(t, stories, 2)
	assert.Equal(t, "Alert fires: Threshold crossing triggers alert", stories[0].TestCases)
	assert.Equal(t, "Archive: Data archived nightly", stories[1].TestCases)
}

func TestToPresentation_TestCasesByKeyword(t *testing.T) {
	epics := `{"User Stories": [{"User Story": "Operators receive humidity warnings"}]}`
	tests := `{"testCases": [
		{"testCaseName": "Humidity spike", "testDescription": "Warn above limit"},
		{"name": "Unrelated"}
	]}`

	stories := newTestAdapter().ToPresentation(epics, tests, "")
	require.Len(t, stories, 1)
	assert.Equal(t, "Humidity spike: Warn above limit", stories[0].TestCases)
}

func TestToPresentation_Scenarios(t *testing.T) {
	epics := `{"User Stories": [{"User Story": "The system must raise heat alerts so that crews react"}]}`
	tests := "```json\n" + `{"testCases": [{"requirement_id": 1, "scenarios": [
		{"name": "High temp", "input": {"temp": 45}, "expected_output": {"alert": true}},
		{"name": "Normal temp", "input": {"temp": 20}, "expected_output": {"alert": false}}
	]}]}` + "\n```"

	stories := newTestAdapter().ToPresentation(epics, tests, "")
	require.Len(t, stories, 1)
	assert.Equal(t,
		"High temp: input {\"temp\":45}, expected {\"alert\":true}\nNormal temp: input {\"temp\":20}, expected {\"alert\":false}",
		stories[0].TestCases)
}

func TestToPresentation_KeyedTestCases(t *testing.T) {
	epics := `{"User Stories": [
		{"User Story": "The system must send alerts so that users are notified"},
		{"User Story": "The system must archive data so that history is kept"},
		{"User Story": "The system must export CSV files"}
	]}`
	tests := `{"Test Cases": {
		"1": {"steps": "raise temperature"},
		"2": "Check archive contents",
		"other": "The system must export CSV files"
	}}`

	stories := newTestAdapter().ToPresentation(epics, tests, "")
	require.Len(t, stories, 3)
	assert.Equal(t, "{\n  \"steps\": \"raise temperature\"\n}", stories[0].TestCases)
	assert.Equal(t, "Check archive contents", stories[1].TestCases)
	assert.Equal(t, "The system must export CSV files", stories[2].TestCases)
}

func TestToPresentation_GenericTestFallback(t *testing.T) {
	epics := `{"User Stories": [{"User Story": "The system must archive data so that history is kept"}]}`

	stories := newTestAdapter().ToPresentation(epics, "not json", "")
	require.Len(t, stories, 1)
	assert.Equal(t,
		"Test: Verify that the system must archive data\nExpected: Functionality works as specified in the user story",
		stories[0].TestCases)
}

func TestToPresentation_EpicsKeyAndDedupe(t *testing.T) {
	epics := `{"Epics": [
		{"User Story": "The system must send alerts so that users are notified"},
		{"User Story": "The system must send alerts so that operators are notified"},
		{"User Story": "The system must store readings so that trends are visible"}
	]}`

	stories := newTestAdapter().ToPresentation(epics, "{}", "1. alerts")
	require.Len(t, stories, 2)
	assert.Equal(t, 1, stories[0].ID)
	assert.Equal(t, 2, stories[1].ID)
	assert.Equal(t, "The system must store readings so that trends are visible", stories[1].Description)
	assert.Equal(t, "Store Readings", stories[1].Title)
}

func TestToPresentation_EmptyAndInvalid(t *testing.T) {
	a := newTestAdapter()

	assert.Empty(t, a.ToPresentation("garbage", "{}", ""))
	assert.Empty(t, a.ToPresentation(`{"User Stories": []}`, "{}", ""))

	got := a.ToPresentation(`{"User Stories": ["just text"]}`, "{}", "")
	require.Len(t, got, 1)
	assert.Equal(t, errorTitle, got[0].Title)
	assert.Equal(t, 1, got[0].ID)
	assert.Contains(t, got[0].Description, "not a JSON object")
	assert.Equal(t, "-", got[0].DefinitionOfDone)
	assert.Equal(t, "-", got[0].TestCases)
}

func TestTitleWords(t *testing.T) {
	assert.Equal(t, "Sensor Reader", titleWords("sensor reader"))
	assert.Equal(t, "Api-V2 Gateway", titleWords("API-v2 gateway"))
}
