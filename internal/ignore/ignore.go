// Package ignore reads .storyignore files that keep documents in the watch
// folder from being processed.
//
// Each non-blank line is a doublestar glob matched case-insensitively
// against the document's slash-separated path relative to the watched
// folder. Lines starting with # are comments. A leading ! re-includes names
// an earlier rule excluded; the last matching rule wins.
package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultFile is the ignore file looked up in a watched folder.
const DefaultFile = ".storyignore"

type rule struct {
	glob    string
	include bool
}

// Matcher reports whether a document is excluded. A nil Matcher excludes
// nothing.
type Matcher struct {
	rules []rule
}

// Load reads DefaultFile in dir. A missing file yields an empty Matcher.
func Load(dir string) (*Matcher, error) {
	f, err := os.Open(filepath.Join(dir, DefaultFile))
	if errors.Is(err, fs.ErrNotExist) {
		return &Matcher{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", DefaultFile, err)
	}
	return m, nil
}

// Parse builds a Matcher from ignore file contents. Malformed globs are
// skipped.
func Parse(r io.Reader) (*Matcher, error) {
	m := &Matcher{}
	seen := make(map[rule]bool)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		ru, ok := parseRule(sc.Text())
		if !ok || seen[ru] {
			continue
		}
		seen[ru] = true
		m.rules = append(m.rules, ru)
	}
	return m, sc.Err()
}

func parseRule(line string) (rule, bool) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] == '#' {
		return rule{}, false
	}
	var r rule
	if line[0] == '!' {
		r.include = true
		line = line[1:]
	}
	// Anchoring has no meaning relative to a single folder.
	r.glob = strings.ToLower(strings.Trim(line, "/"))
	if r.glob == "" || !doublestar.ValidatePattern(r.glob) {
		return rule{}, false
	}
	return r, true
}

// Match reports whether name is excluded. name is a path relative to the
// watched folder; rules without a slash also match its base name.
func (m *Matcher) Match(name string) bool {
	if m == nil {
		return false
	}
	name = strings.ToLower(filepath.ToSlash(name))
	base := name[strings.LastIndex(name, "/")+1:]

	excluded := false
	for _, r := range m.rules {
		target := name
		if !strings.Contains(r.glob, "/") {
			target = base
		}
		if ok, _ := doublestar.Match(r.glob, target); ok {
			excluded = !r.include
		}
	}
	return excluded
}

// Len returns the number of rules.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.rules)
}
