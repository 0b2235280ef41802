package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures
type ErrorKind string

const (
	KindTransient ErrorKind = "transient"
	KindUpstream  ErrorKind = "upstream"
	KindSchema    ErrorKind = "schema"
	KindParse     ErrorKind = "parse"
	KindFatal     ErrorKind = "fatal"
)

// Sentinel errors, matched with errors.Is against a *PipelineError
var (
	ErrTransient = errors.New("transient error")
	ErrUpstream  = errors.New("upstream error")
	ErrSchema    = errors.New("schema error")
	ErrParse     = errors.New("parse error")
	ErrFatal     = errors.New("fatal error")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindTransient:
		return ErrTransient
	case KindUpstream:
		return ErrUpstream
	case KindSchema:
		return ErrSchema
	case KindParse:
		return ErrParse
	case KindFatal:
		return ErrFatal
	}
	return nil
}

// PipelineError carries the failure kind and the series/year or race it concerns
type PipelineError struct {
	Kind    ErrorKind
	Series  Series
	Year    int
	RaceID  int64
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	msg := string(e.Kind)
	switch {
	case e.Series != "" && e.Year != 0:
		msg += fmt.Sprintf(": %s/%d", e.Series, e.Year)
	case e.Series != "":
		msg += ": " + string(e.Series)
	}
	if e.RaceID != 0 {
		msg += fmt.Sprintf(": race %d", e.RaceID)
	}
	msg += ": " + e.Message
	if e.Err != nil {
		msg += " (" + e.Err.Error() + ")"
	}
	return msg
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error for the kind
func (e *PipelineError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// Retryable reports whether the failure may succeed on another attempt
func (e *PipelineError) Retryable() bool {
	return e.Kind == KindTransient
}

// NewPipelineError creates a new pipeline error
func NewPipelineError(kind ErrorKind, series Series, year int, message string, err error) *PipelineError {
	return &PipelineError{
		Kind:    kind,
		Series:  series,
		Year:    year,
		Message: message,
		Err:     err,
	}
}

// NewRecordError creates a record-level (schema or parse) error
func NewRecordError(kind ErrorKind, series Series, raceID int64, message string, err error) *PipelineError {
	return &PipelineError{
		Kind:    kind,
		Series:  series,
		RaceID:  raceID,
		Message: message,
		Err:     err,
	}
}

// KindOf extracts the kind of err, or "" when err is not a pipeline error
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
