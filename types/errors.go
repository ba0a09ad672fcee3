package types

import "github.com/pkg/errors"

// Sentinel errors returned by the type database. Wrap with errors.Wrap
// at call sites that have more context (field name, source line); callers
// should still be able to match these with errors.Is.
var (
	ErrInvalidTypeID   = errors.New("invalid type id")
	ErrInvalidTypeName = errors.New("invalid type name")
)
