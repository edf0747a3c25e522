package services

import (
	"errors"
	"fmt"
	"strings"

	"carousel/internal/catalog"
)

var (
	ErrAuth          = errors.New("authentication failure")
	ErrExpired       = errors.New("source expired")
	ErrTransient     = errors.New("transient failure")
	ErrScheduler     = errors.New("scheduler failure")
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
)

// Wrap builds an error message that includes pipeline context while tagging it
// with the provided marker for later status classification. The marker should
// be one of the exported sentinel errors above.
func Wrap(marker error, step, operation, message string, err error) error {
	detail := buildDetail(step, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether a processing failure may be handed back to the
// queue. Authentication failures, vanished sources, and malformed inputs are
// final; everything else is assumed to be transient.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrAuth),
		errors.Is(err, ErrExpired),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrConfiguration):
		return false
	}
	return true
}

// FailureStatus maps a non-retryable processing error to the terminal
// selection status the worker should persist.
func FailureStatus(err error) catalog.SelectionStatus {
	if errors.Is(err, ErrExpired) {
		return catalog.SelectionExpired
	}
	return catalog.SelectionFailed
}

func buildDetail(step, operation, message string) string {
	parts := make([]string, 0, 3)
	if step = strings.TrimSpace(step); step != "" {
		parts = append(parts, step)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
