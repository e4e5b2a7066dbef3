package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	epicsDoc = `{"User Stories": [{"User Story": "The system must log data so that history is kept"}]}`
	testsDoc = `{"testCases": [{"requirement_id": 1, "scenarios": []}]}`
)

func TestCombine_JSONRequirements(t *testing.T) {
	data, err := Combine(`{"requirements": [{"id": 1, "statement": "Log data"}]}`, epicsDoc, testsDoc)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Len(t, doc, 3)
	assert.JSONEq(t, `[{"id": 1, "statement": "Log data"}]`, string(doc["requirements"]))

	s := string(data)
	assert.Less(t, strings.Index(s, `"requirements"`), strings.Index(s, `"User Stories"`))
	assert.Less(t, strings.Index(s, `"User Stories"`), strings.Index(s, `"testCases"`))
	assert.Contains(t, s, "\n    \"requirements\"")
}

func TestCombine_TextRequirements(t *testing.T) {
	data, err := Combine("Requirements:\n1. Log data \n2. Send alerts", epicsDoc, testsDoc)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, []any{"1. Log data", "2. Send alerts"}, doc["Requirements"])
}

func TestCombine_LaterKeysWin(t *testing.T) {
	data, err := Combine(`{"requirements": []}`, `{"shared": 1, "a": true}`, `{"shared": 2}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"requirements": [], "shared": 2, "a": true}`, string(data))
}

func TestCombine_InvalidStageOutput(t *testing.T) {
	_, err := Combine("reqs", "not json", testsDoc)
	assert.ErrorContains(t, err, "epics")

	_, err = Combine("reqs", epicsDoc, "[1, 2]")
	assert.ErrorContains(t, err, "test cases")
}

func TestWriter_Save(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "json_output")
	w := NewWriter(dir)

	path, err := w.Save("/uploads/station requirements.docx", `{"requirements": []}`, epicsDoc, testsDoc)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "station requirements.txt"), path)

	first, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(first))

	_, err = w.Save("station requirements.docx", `{"requirements": [{"id": 1}]}`, epicsDoc, testsDoc)
	require.NoError(t, err)
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, string(first), string(second))
}
