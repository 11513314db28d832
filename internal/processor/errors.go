package processor

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRecord marks an unreadable or malformed input record.
	ErrRecord = errors.New("record error")
	// ErrCompanion marks a companion message that could not be read.
	ErrCompanion = errors.New("companion error")
	// ErrTemplate marks a missing or unusable template.
	ErrTemplate = errors.New("template error")
	// ErrPublish marks a failure writing or renaming the artifact.
	ErrPublish = errors.New("publish error")
)

// Wrap tags err with marker and an operation/message detail so callers can
// classify it with errors.Is or Kind.
func Wrap(marker error, operation, message string, err error) error {
	if marker == nil {
		marker = ErrRecord
	}
	detail := buildDetail(operation, message)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns a short label for the marker carried by err, or "unknown".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRecord):
		return "record"
	case errors.Is(err, ErrCompanion):
		return "companion"
	case errors.Is(err, ErrTemplate):
		return "template"
	case errors.Is(err, ErrPublish):
		return "publish"
	default:
		return "unknown"
	}
}

func buildDetail(operation, message string) string {
	parts := make([]string, 0, 2)
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "processing failure"
	}
	return strings.Join(parts, ": ")
}
