package common

import (
	"fmt"
)

var (
	ErrDataTypeNotSupported = fmt.Errorf("data type not supported")
	ErrDataTypeMismatch     = fmt.Errorf("data type mismatch")
	ErrBuilderNotExpanded   = fmt.Errorf("builder must be expanded")
	ErrListTooLong          = fmt.Errorf("list array cannot contain more than 2^31 - 1 elements")
	ErrBinaryDataTooLarge   = fmt.Errorf("binary array cannot contain more than 2^31 - 1 bytes")
	ErrInvalidByteWidth     = fmt.Errorf("value does not match fixed byte width")
	ErrValueOutOfTypeBounds = fmt.Errorf("value is out of possible range of values for the type")
	ErrInvariantViolation   = fmt.Errorf("implementation error (invariant violation)")
)
