// Package compiler turns a parsed script into BPF instructions: the
// emitter described in the external interface contract.
package compiler

import (
	"fmt"

	"github.com/pkg/errors"
)

// SemanticsError reports a compile-time failure tied to a specific
// expression number (the original source's "Line", counted per top-level
// and nested expression rather than by raw source line).
type SemanticsError struct {
	Line    uint32
	Message string
}

func (e *SemanticsError) Error() string {
	return fmt.Sprintf("%s (expression %d)", e.Message, e.Line)
}

func semanticsError(line uint32, format string, args ...any) error {
	return &SemanticsError{Line: line, Message: fmt.Sprintf(format, args...)}
}

// Sentinel errors for the remaining closed kinds from the external
// interface contract's error design. Syntax errors are returned directly
// by package parser as *parser.SyntaxError. This package wraps
// ErrIntegerConversion and ErrInternal with errors.Wrap so callers can
// still match with errors.Is while getting the call-site context. Type
// lookup and BTF conversion failures come from package types as its own
// sentinels (types.ErrInvalidTypeID, types.ErrInvalidTypeName,
// types.ErrNoConversion); ErrInvalidTypeID, ErrInvalidTypeName and
// ErrNoConversion below are not returned by this package.
var (
	ErrIntegerConversion = errors.New("error converting integer")
	ErrInvalidTypeID     = errors.New("no type with that id")
	ErrInvalidTypeName   = errors.New("no type with that name")
	ErrNoConversion      = errors.New("type conversion not implemented")
	ErrInternal          = errors.New("internal error occurred that shouldn't be possible")
)
