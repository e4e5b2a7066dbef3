package format

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/AvishManiar21/user-story-automation/internal/normalize"
)

type field = normalize.Field

var (
	lookup      = normalize.Lookup
	firstTruthy = normalize.FirstTruthy
	truthy      = normalize.Truthy
	text        = normalize.Text
)

func objectFields(raw json.RawMessage) ([]field, bool) {
	return normalize.Fields(raw)
}

func arrayItems(raw json.RawMessage) ([]json.RawMessage, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return nil, false
	}
	return items, true
}

// indented renders a JSON value for display: strings unquoted, containers
// indented by two spaces with key order kept.
func indented(v json.RawMessage) string {
	s := strings.TrimSpace(string(v))
	if s == "" || s[0] != '{' && s[0] != '[' {
		return text(v)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, v, "", "  "); err != nil {
		return s
	}
	return buf.String()
}

func number(v json.RawMessage) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
	return f, err == nil
}
