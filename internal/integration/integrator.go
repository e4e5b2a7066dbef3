package integration

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Integrator saves integration records and announces them.
type Integrator struct {
	store     *Store
	publisher Publisher
	logger    *zap.Logger
}

// NewIntegrator returns an Integrator. A nil publisher disables events.
func NewIntegrator(store *Store, publisher Publisher, logger *zap.Logger) *Integrator {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Integrator{store: store, publisher: publisher, logger: logger}
}

// Receipt is returned for a successful integration.
type Receipt struct {
	Message    string
	File       string
	StoryIDs   []any
	Integrated string
}

// Story integrates one story.
func (i *Integrator) Story(ctx context.Context, storyID any, story json.RawMessage) (*Receipt, error) {
	path, rec, err := i.store.SaveStory(storyID, story)
	if err != nil {
		return nil, err
	}
	i.logger.Info("story integrated",
		zap.Any("story_id", storyID),
		zap.String("file", path))

	i.announce(ctx, Event{Kind: KindStory, StoryIDs: []any{storyID}, File: path, Timestamp: rec.IntegratedAt})
	return &Receipt{
		Message:    fmt.Sprintf("Story %v integrated successfully", displayID(storyID)),
		File:       path,
		StoryIDs:   []any{storyID},
		Integrated: rec.IntegratedAt,
	}, nil
}

// All integrates a set of stories.
func (i *Integrator) All(ctx context.Context, storyIDs []any, stories json.RawMessage) (*Receipt, error) {
	path, rec, err := i.store.SaveAll(storyIDs, stories)
	if err != nil {
		return nil, err
	}
	i.logger.Info("stories integrated",
		zap.Int("count", len(rec.StoryIDs)),
		zap.Int("total_stories", rec.TotalStories),
		zap.String("file", path))

	i.announce(ctx, Event{Kind: KindAll, StoryIDs: rec.StoryIDs, File: path, Timestamp: rec.IntegratedAt})
	return &Receipt{
		Message:    fmt.Sprintf("All %d stories integrated successfully", len(rec.StoryIDs)),
		File:       path,
		StoryIDs:   rec.StoryIDs,
		Integrated: rec.IntegratedAt,
	}, nil
}

// announce never fails the integration; the record is already on disk.
func (i *Integrator) announce(ctx context.Context, ev Event) {
	if err := i.publisher.Publish(ctx, ev); err != nil {
		i.logger.Warn("failed to publish integration event",
			zap.String("kind", ev.Kind),
			zap.Error(err))
	}
}

func displayID(id any) any {
	if f, ok := id.(float64); ok && f == float64(int64(f)) {
		return int64(f)
	}
	if id == nil {
		return "unknown"
	}
	return id
}
