package validator

import (
	"fmt"

	"github.com/AvishManiar21/user-story-automation/internal/backlog"
	"github.com/AvishManiar21/user-story-automation/internal/normalize"
)

// CompletenessReport compares requirement and story counts.
type CompletenessReport struct {
	Report
	RequirementCount int `json:"requirement_count"`
	StoryCount       int `json:"story_count"`
}

// ValidateCompleteness checks that every requirement produced a user story.
// A mismatch is reported only when at least one requirement exists.
func ValidateCompleteness(requirementsJSON, epicsJSON string) CompletenessReport {
	reqDoc, ok := normalize.Parse(requirementsJSON, nil).(map[string]any)
	if !ok {
		return completenessError("requirements are not a JSON object")
	}
	epicDoc, ok := normalize.Parse(epicsJSON, nil).(map[string]any)
	if !ok {
		return completenessError("user stories are not a JSON object")
	}

	reqCount := listLen(reqDoc[backlog.KeyRequirements])

	stories, present := epicDoc[backlog.KeyUserStories]
	if !present {
		stories = epicDoc[backlog.KeyEpics]
	}
	return compareCounts(reqCount, listLen(stories))
}

func compareCounts(requirements, stories int) CompletenessReport {
	return CompletenessReport{
		Report:           newReport(countMismatch(requirements, stories)),
		RequirementCount: requirements,
		StoryCount:       stories,
	}
}

func countMismatch(requirements, stories int) []string {
	if requirements > 0 && stories != requirements {
		return []string{fmt.Sprintf(
			"Completeness mismatch: %d requirements but %d user stories. Expected %d stories.",
			requirements, stories, requirements)}
	}
	return nil
}

func completenessError(reason string) CompletenessReport {
	r := newReport([]string{"Error validating completeness: " + reason})
	return CompletenessReport{Report: r}
}

func listLen(v any) int {
	list, ok := v.([]any)
	if !ok {
		return 0
	}
	return len(list)
}
