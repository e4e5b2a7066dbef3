// Package integration records stories that were accepted into a backlog.
//
// Each integration is written once to a timestamped JSON file and, when a
// publisher is configured, announced as an event.
package integration

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// TimestampLayout is the layout used in record file names and in the
// integrated_at field.
const TimestampLayout = "20060102_150405"

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

var (
	// ErrAlreadyIntegrated is returned when a record for the same name
	// already exists. Records are never overwritten.
	ErrAlreadyIntegrated = errors.New("story already integrated")

	// ErrNoStory is returned when the story payload is missing.
	ErrNoStory = errors.New("story data not provided")

	// ErrNoStories is returned when the batch payload is missing.
	ErrNoStories = errors.New("stories data not provided")
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// StoryRecord is the file written for a single integrated story.
type StoryRecord struct {
	StoryID      any             `json:"story_id"`
	IntegratedAt string          `json:"integrated_at"`
	Story        json.RawMessage `json:"story"`
}

// BatchRecord is the file written when a set of stories is integrated.
type BatchRecord struct {
	IntegratedAt string          `json:"integrated_at"`
	TotalStories int             `json:"total_stories"`
	StoryIDs     []any           `json:"story_ids"`
	Stories      json.RawMessage `json:"stories"`
}

// Store writes integration records under a directory.
type Store struct {
	dir string
	now func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock sets the time source used for record timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string, opts ...StoreOption) *Store {
	s := &Store{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the record directory.
func (s *Store) Dir() string {
	return s.dir
}

// SaveStory writes integrated_story_{id}_{timestamp}.json and returns its path.
func (s *Store) SaveStory(storyID any, story json.RawMessage) (string, StoryRecord, error) {
	if isEmpty(story) {
		return "", StoryRecord{}, ErrNoStory
	}
	ts := s.now().Format(TimestampLayout)
	rec := StoryRecord{StoryID: storyID, IntegratedAt: ts, Story: story}
	name := fmt.Sprintf("integrated_story_%s_%s.json", safeID(storyID), ts)
	path, err := s.write(name, rec)
	return path, rec, err
}

// SaveAll writes integrated_all_stories_{timestamp}.json and returns its path.
func (s *Store) SaveAll(storyIDs []any, stories json.RawMessage) (string, BatchRecord, error) {
	if isEmpty(stories) {
		return "", BatchRecord{}, ErrNoStories
	}
	if storyIDs == nil {
		storyIDs = []any{}
	}
	ts := s.now().Format(TimestampLayout)
	rec := BatchRecord{
		IntegratedAt: ts,
		TotalStories: countStories(stories),
		StoryIDs:     storyIDs,
		Stories:      stories,
	}
	path, err := s.write(fmt.Sprintf("integrated_all_stories_%s.json", ts), rec)
	return path, rec, err
}

func (s *Store) write(name string, rec any) (string, error) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding record: %w", err)
	}
	if err := os.MkdirAll(s.dir, dirPerm); err != nil {
		return "", fmt.Errorf("creating integration directory: %w", err)
	}

	path := filepath.Join(s.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrAlreadyIntegrated, name)
		}
		return "", fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", path, err)
	}
	return path, nil
}

func safeID(id any) string {
	var s string
	switch v := id.(type) {
	case nil:
		s = "unknown"
	case string:
		s = v
	case float64:
		s = fmt.Sprintf("%g", v)
	default:
		s = fmt.Sprint(v)
	}
	s = unsafeName.ReplaceAllString(s, "_")
	if s == "" || s == "." || s == ".." {
		return "unknown"
	}
	return s
}

func isEmpty(raw json.RawMessage) bool {
	switch string(raw) {
	case "", "null", "{}", "[]", `""`:
		return true
	}
	return false
}

func countStories(raw json.RawMessage) int {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		return len(list)
	}
	return 1
}
