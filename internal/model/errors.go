package model

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across components. Callers classify failures with
// errors.Is and wrap details with fmt.Errorf("...: %w", err).
var (
	ErrBusy      = errors.New("busy")
	ErrNotFound  = errors.New("not_found")
	ErrCancelled = errors.New("cancelled")
	ErrTimeout   = errors.New("timeout")
	ErrResolver  = errors.New("resolver: no dependencies resolved")
	ErrUpstream  = errors.New("upstream error")
)

// ParseError reports that one input file could not be parsed. Parser
// failures become per-file warnings on the report; they fail the scan only
// when no other file parsed.
type ParseError struct {
	File   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.File, e.Reason)
}

// NewParseError builds a ParseError for the given file.
func NewParseError(file, format string, args ...interface{}) *ParseError {
	return &ParseError{File: file, Reason: fmt.Sprintf(format, args...)}
}
