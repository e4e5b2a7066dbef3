package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AvishManiar21/user-story-automation/internal/document"
	"github.com/AvishManiar21/user-story-automation/internal/validator"
)

var validateSource string

// errValidationFailed makes a failed report exit non-zero.
var errValidationFailed = errors.New("validation failed")

var validateCmd = &cobra.Command{
	Use:   "validate <output-file>",
	Short: "Check generated output against its source document",
	Long: `Check a generated JSON or text file for invented metrics, template test
cases, generic deliverables and missing source quotes.

Without --source every metric is reported as potentially invented.

Examples:
  storyctl validate json_output/requirements.txt --source requirements.docx`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateSource, "source", "", "source document the output was generated from")
}

func runValidate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", args[0], err)
	}

	var source string
	if validateSource != "" {
		source, err = document.ExtractText(validateSource)
		if err != nil {
			return err
		}
	}

	report := validator.Validate(string(data), source)
	fmt.Fprint(cmd.OutOrStdout(), validator.Render("Validation Report", report))
	if !report.Valid {
		return errValidationFailed
	}
	return nil
}
