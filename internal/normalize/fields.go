package normalize

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Field is one member of a JSON object.
type Field struct {
	Key   string
	Value json.RawMessage
}

// Fields lists the members of a JSON object in document order. It reports
// false when raw is not a well-formed object.
func Fields(raw []byte) ([]Field, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, false
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, false
	}

	var out []Field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, ok := tok.(string)
		if !ok {
			return nil, false
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, false
		}
		out = append(out, Field{Key: key, Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return nil, false
	}
	return out, true
}

// OrderedObject recovers a JSON object from model output like Decode and
// returns its members in document order. It returns nil when raw holds no
// object.
func OrderedObject(raw string) []Field {
	obj := Decode(raw, json.RawMessage(nil))
	fields, ok := Fields(obj)
	if !ok {
		return nil
	}
	return fields
}

// Lookup returns the value of key in fields.
func Lookup(fields []Field, key string) (json.RawMessage, bool) {
	for _, f := range fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// FirstTruthy returns the first present, truthy value among keys, in the
// order the keys are given.
func FirstTruthy(fields []Field, keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := Lookup(fields, k); ok && Truthy(v) {
			return v, true
		}
	}
	return nil, false
}

// Truthy reports whether v is anything other than null, false, zero or an
// empty string, array or object.
func Truthy(v json.RawMessage) bool {
	s := strings.TrimSpace(string(v))
	switch s {
	case "", "null", "false", `""`:
		return false
	}
	switch s[0] {
	case '{', '[':
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			return false
		}
		switch t := decoded.(type) {
		case map[string]any:
			return len(t) > 0
		case []any:
			return len(t) > 0
		}
	case '"':
		var str string
		return json.Unmarshal(v, &str) == nil && str != ""
	default:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f != 0
		}
	}
	return true
}

// Text renders a JSON value as plain text: strings unquoted, null as empty,
// everything else as compact JSON.
func Text(v json.RawMessage) string {
	s := strings.TrimSpace(string(v))
	if s == "" || s == "null" {
		return ""
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(v, &str); err == nil {
			return str
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err == nil {
		return buf.String()
	}
	return s
}
