package tracker

import "strings"

// Highlight is the display class of a log line.
type Highlight string

const (
	HighlightSuccess Highlight = "success"
	HighlightFailed  Highlight = "failed"
	HighlightError   Highlight = "error"
	HighlightStep    Highlight = "step"
	HighlightInfo    Highlight = "info"
)

// Classify picks a highlight for a raw log line by keyword. It is a
// presentation helper and has no effect on tracked status.
func Classify(message string) Highlight {
	switch {
	case strings.Contains(message, "SUCCESS"):
		return HighlightSuccess
	case strings.Contains(message, "FAILED"):
		return HighlightFailed
	case strings.Contains(message, "ERROR"):
		return HighlightError
	case strings.Contains(message, "STEP"):
		return HighlightStep
	}
	return HighlightInfo
}
