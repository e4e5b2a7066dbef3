// Package output writes the combined result file of a run.
package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AvishManiar21/user-story-automation/internal/backlog"
	"github.com/AvishManiar21/user-story-automation/internal/normalize"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Writer saves combined results under a directory.
type Writer struct {
	dir string
}

// NewWriter returns a Writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Path returns the result path for a source document: the document's base
// name with a .txt extension.
func (w *Writer) Path(documentPath string) string {
	base := filepath.Base(documentPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(w.dir, name+".txt")
}

// Save writes requirements, epics and test cases as one JSON object and
// returns the file path. An existing file is overwritten.
func (w *Writer) Save(documentPath, requirements, epicsJSON, testCasesJSON string) (string, error) {
	data, err := Combine(requirements, epicsJSON, testCasesJSON)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(w.dir, dirPerm); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	path := w.Path(documentPath)
	if err := os.WriteFile(path, data, filePerm); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// Combine merges the three stage outputs into one indented JSON object.
// JSON requirements contribute their "requirements" member; plain text
// requirements are keyed by their first line with the remaining lines as
// values. Epic and test case members follow in document order, later keys
// replacing earlier ones.
func Combine(requirements, epicsJSON, testCasesJSON string) ([]byte, error) {
	var fields []normalize.Field

	reqField, err := requirementsField(requirements)
	if err != nil {
		return nil, err
	}
	fields = append(fields, reqField)

	epics := normalize.OrderedObject(epicsJSON)
	if epics == nil {
		return nil, errors.New("epics output is not a JSON object")
	}
	tests := normalize.OrderedObject(testCasesJSON)
	if tests == nil {
		return nil, errors.New("test cases output is not a JSON object")
	}
	fields = merge(fields, epics)
	fields = merge(fields, tests)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(f.Value)
	}
	buf.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "    "); err != nil {
		return nil, fmt.Errorf("encoding combined output: %w", err)
	}
	return out.Bytes(), nil
}

func requirementsField(requirements string) (normalize.Field, error) {
	for _, f := range normalize.OrderedObject(requirements) {
		if f.Key == backlog.KeyRequirements {
			return f, nil
		}
	}

	lines := strings.Split(strings.TrimSpace(requirements), "\n")
	key := strings.TrimRight(strings.TrimSpace(lines[0]), ":")
	values := make([]string, 0, len(lines)-1)
	for _, l := range lines[1:] {
		values = append(values, strings.TrimSpace(l))
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return normalize.Field{}, err
	}
	return normalize.Field{Key: key, Value: raw}, nil
}

func merge(fields, more []normalize.Field) []normalize.Field {
	for _, m := range more {
		replaced := false
		for i := range fields {
			if fields[i].Key == m.Key {
				fields[i].Value = m.Value
				replaced = true
				break
			}
		}
		if !replaced {
			fields = append(fields, m)
		}
	}
	return fields
}
