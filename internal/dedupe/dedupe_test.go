package dedupe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/AvishManiar21/user-story-automation/internal/backlog"
)

func epic(text string) backlog.Epic {
	return backlog.Epic{UserStory: text}
}

func texts(epics []backlog.Epic) []string {
	out := make([]string, len(epics))
	for i, e := range epics {
		out[i] = e.UserStory
	}
	return out
}

func similarity(a, b string) float64 {
	return jaccard(wordSet(normalizeText(a)), wordSet(normalizeText(b)))
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "log data", "log data", 1},
		{"case and space insensitive", "  Log Data ", "log data", 1},
		{"disjoint", "log data", "send alerts", 0},
		{"half overlap", "a b c", "b c d", 0.5},
		{"empty side", "", "log data", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, similarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestDeduper_Epics(t *testing.T) {
	d := New(DefaultThreshold, nil)

	in := []backlog.Epic{
		epic("The system must send alerts so that users are notified"),
		epic("The system must send alerts so that operators are notified"),
		epic("The system must log temperature readings"),
		epic("  THE SYSTEM MUST LOG TEMPERATURE READINGS "),
		epic(""),
		{Deliverables: []backlog.Deliverable{{Name: "Reader"}}},
	}

	got := d.Epics(in)
	assert.Equal(t, []string{
		"The system must send alerts so that users are notified",
		"The system must log temperature readings",
	}, texts(got))
}

func TestDeduper_FirstSeenWins(t *testing.T) {
	d := New(0.6, nil)
	got := d.Keep([]string{"b c d e", "a b c d e", "b c d e"})
	assert.Equal(t, []int{0}, got)
}

func TestDeduper_Idempotent(t *testing.T) {
	d := New(0.6, nil)
	in := []backlog.Epic{
		epic("The system must collect wind speed so that storms are tracked"),
		epic("The system must collect wind speed so that storms can be tracked"),
		epic("The system must archive daily summaries"),
		epic("Users can export reports as CSV"),
	}

	once := d.Epics(in)
	twice := d.Epics(once)
	assert.Equal(t, texts(once), texts(twice))
	assert.Len(t, once, 3)
}

func TestDeduper_ThresholdIsStrict(t *testing.T) {
	// 0.5 similarity is not above a 0.5 cutoff.
	assert.Equal(t, []int{0, 1}, New(0.5, nil).Keep([]string{"a b c", "b c d"}))
	assert.Equal(t, []int{0}, New(0.4, nil).Keep([]string{"a b c", "b c d"}))
}

func TestNew_InvalidThreshold(t *testing.T) {
	assert.Equal(t, DefaultThreshold, New(0, nil).threshold)
	assert.Equal(t, DefaultThreshold, New(1.5, nil).threshold)
	assert.Equal(t, 0.8, New(0.8, nil).threshold)
}

func TestDeduper_EpicsKeepFirstSpelling(t *testing.T) {
	d := New(DefaultThreshold, nil)
	got := d.Epics([]backlog.Epic{
		epic("The system must store readings"),
		epic("the system must store readings"),
		epic("The system must display a dashboard"),
	})
	require.Len(t, got, 2)
	assert.Equal(t, "The system must store readings", got[0].UserStory)
	assert.Equal(t, "The system must display a dashboard", got[1].UserStory)
}

func TestDeduper_LogsDrops(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	d := New(DefaultThreshold, zap.New(core))

	d.Keep([]string{"send alerts", "send alerts", ""})

	assert.Equal(t, 1, logs.FilterMessage("skipping duplicate story").Len())
	assert.Equal(t, 1, logs.FilterMessage("skipping empty story").Len())
	summary := logs.FilterMessage("removed duplicate stories").All()
	require.Len(t, summary, 1)
	assert.Equal(t, int64(2), summary[0].ContextMap()["dropped"])
}
