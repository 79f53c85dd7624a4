package models

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a recorded failure.
type ErrorKind string

const (
	KindNone             ErrorKind = ""
	KindConfiguration    ErrorKind = "ConfigurationError"
	KindExternalTool     ErrorKind = "ExternalToolError"
	KindFormatConversion ErrorKind = "FormatConversionError"
	KindScoring          ErrorKind = "ScoringError"
	KindToolTimeout      ErrorKind = "ToolTimeout"
	KindCancelled        ErrorKind = "Cancelled"
)

// JobError carries the failure kind of a job or scoring pair.
type JobError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *JobError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *JobError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError wraps err with a kind. A nil err yields nil.
func NewError(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &JobError{Kind: kind, Op: op, Err: err}
}

// Errorf builds a JobError from a format string.
func Errorf(kind ErrorKind, op, format string, args ...any) error {
	return &JobError{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the kind of err. Context errors map to ToolTimeout and
// Cancelled; anything unclassified is an external tool failure.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var je *JobError
	if errors.As(err, &je) {
		return je.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindToolTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	}
	return KindExternalTool
}

// Reason strips the kind prefix so the metadata row holds only the explanation.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var je *JobError
	if errors.As(err, &je) && je.Err != nil {
		if je.Op == "" {
			return je.Err.Error()
		}
		return je.Op + ": " + je.Err.Error()
	}
	return err.Error()
}
