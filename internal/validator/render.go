package validator

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const ruleWidth = 60

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	passStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	issueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226"))

	ruleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238"))
)

// Render formats a report for the terminal.
func Render(title string, r Report) string {
	if title == "" {
		title = "Validation Report"
	}
	rule := ruleStyle.Render(strings.Repeat("=", ruleWidth))

	var b strings.Builder
	b.WriteString("\n" + rule + "\n")
	b.WriteString(titleStyle.Render(title) + "\n")
	b.WriteString(rule + "\n")

	if r.Valid {
		b.WriteString(passStyle.Render("VALIDATION PASSED") + "\n")
	} else {
		b.WriteString(failStyle.Render(fmt.Sprintf("VALIDATION FAILED (%d issues)", r.IssueCount)) + "\n")
		b.WriteString("\nIssues found:\n")
		for i, issue := range r.Issues {
			b.WriteString(issueStyle.Render(fmt.Sprintf("  %d. %s", i+1, issue)) + "\n")
		}
	}

	b.WriteString(rule + "\n")
	return b.String()
}
