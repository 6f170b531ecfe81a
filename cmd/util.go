package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rs/zerolog/log"

	"github.com/pagopa/interop-platform-state/internal/validation"
)

var (
	bold  = color.New(color.Bold).SprintFunc()
	faint = color.New(color.Faint).SprintFunc()
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()

	yellow = color.New(color.FgYellow).SprintFunc()

	greenCheck = green("✔")
	redCross   = red("✖")
)

// BeQuietError is returned by commands that already reported their failure.
type BeQuietError struct{}

func (BeQuietError) Error() string {
	return "command failed"
}

// logError reports a failed remote call together with its correlation ID.
func logError(err error, correlationID, msg string) error {
	event := log.Error().Err(err)
	if correlationID != "" {
		event = event.Str("correlation_id", correlationID)
	}
	event.Msgf("%s %s", redCross, msg)
	return BeQuietError{}
}

func logSuccess(format string, args ...any) {
	log.Info().Msgf("%s %s", greenCheck, fmt.Sprintf(format, args...))
}

func applyTableFormat(t table.Writer) {
	s := table.StyleRounded
	s.Format.Header = text.FormatDefault
	t.SetStyle(s)
}

func stepIcon(status validation.StepStatus) string {
	switch status {
	case validation.StatusPassed:
		return greenCheck
	case validation.StatusFailed:
		return redCross
	default:
		return faint("-")
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
