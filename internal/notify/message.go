package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/dgnsrekt/tbbo-ingest/internal/pipeline"
)

const maxListedErrors = 3

// FormatSuccessMessage creates a success notification body.
func FormatSuccessMessage(result *pipeline.Result) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Files: %d\n", result.Total))
	sb.WriteString(fmt.Sprintf("Ingested: %d\n", result.Complete-result.Skipped))
	sb.WriteString(fmt.Sprintf("Already complete: %d\n", result.Skipped))
	sb.WriteString(fmt.Sprintf("Batches: %d\n", result.Batches))
	sb.WriteString(fmt.Sprintf("Records: %d\n", result.Records))
	sb.WriteString(fmt.Sprintf("Duration: %s", result.Duration.Round(time.Second)))

	return sb.String()
}

// FormatFailureMessage creates a failure notification body.
func FormatFailureMessage(result *pipeline.Result, err error) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Files: %d\n", result.Total))
	sb.WriteString(fmt.Sprintf("Complete: %d\n", result.Complete))
	sb.WriteString(fmt.Sprintf("Failed: %d\n", result.Failed))
	if result.Interrupted > 0 || result.Pending > 0 {
		sb.WriteString(fmt.Sprintf("Interrupted: %d\n", result.Interrupted))
		sb.WriteString(fmt.Sprintf("Pending: %d\n", result.Pending))
	}
	sb.WriteString(fmt.Sprintf("Records: %d\n", result.Records))
	sb.WriteString(fmt.Sprintf("Duration: %s", result.Duration.Round(time.Second)))

	if err != nil {
		sb.WriteString(fmt.Sprintf("\n\nError: %v", err))
	}

	errs := result.Errors()
	if len(errs) > 0 {
		sb.WriteString("\n\nErrors:\n")
		limit := min(len(errs), maxListedErrors)
		for i := 0; i < limit; i++ {
			sb.WriteString(fmt.Sprintf("- %s\n", errs[i]))
		}
		if len(errs) > maxListedErrors {
			sb.WriteString(fmt.Sprintf("... and %d more errors", len(errs)-maxListedErrors))
		}
	}

	return sb.String()
}
