package validator

import (
	"fmt"

	"github.com/AvishManiar21/user-story-automation/internal/backlog"
	"github.com/AvishManiar21/user-story-automation/internal/normalize"
)

// MinScenariosPerRequirement is the expected lower bound of test scenarios
// per requirement.
const MinScenariosPerRequirement = 2

// ValidateTestCoverage checks the test case document against the
// requirement count: one group per requirement, each with at least
// MinScenariosPerRequirement scenarios. Documents in another shape are not
// checked.
func ValidateTestCoverage(testCasesJSON string, requirementCount int) Report {
	set := normalize.Decode(testCasesJSON, backlog.TestCaseSet{})
	if len(set.TestCases) == 0 {
		return newReport(nil)
	}

	var issues []string
	if requirementCount > 0 && len(set.TestCases) != requirementCount {
		issues = append(issues, fmt.Sprintf(
			"Test coverage mismatch: %d requirements but %d test case groups.",
			requirementCount, len(set.TestCases)))
	}
	for i, group := range set.TestCases {
		if len(group.Scenarios) < MinScenariosPerRequirement {
			id := group.RequirementID
			if id == 0 {
				id = i + 1
			}
			issues = append(issues, fmt.Sprintf(
				"Requirement %d has %d test scenarios, expected at least %d",
				id, len(group.Scenarios), MinScenariosPerRequirement))
		}
	}
	return newReport(issues)
}
