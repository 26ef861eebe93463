package engine

import "errors"

// ErrUnknownField is returned when a query names a field that never received a vector.
var ErrUnknownField = errors.New("unknown field")

// ErrFieldExists is returned by RestoreField for a field that is already populated.
var ErrFieldExists = errors.New("field already exists")
