package safetensors

import (
	"fmt"
	"math"
	"slices"
)

// DType is a safetensors element type as it appears in the header.
type DType string

const (
	BOOL DType = "BOOL"
	U8   DType = "U8"
	I8   DType = "I8"
	I16  DType = "I16"
	F16  DType = "F16"
	BF16 DType = "BF16"
	I32  DType = "I32"
	F32  DType = "F32"
	I64  DType = "I64"
	F64  DType = "F64"
)

// Size returns the width of one element in bytes, or 0 for unknown types.
func (d DType) Size() int64 {
	switch d {
	case BOOL, U8, I8:
		return 1
	case I16, F16, BF16:
		return 2
	case I32, F32:
		return 4
	case I64, F64:
		return 8
	default:
		return 0
	}
}

func (d DType) Valid() bool {
	return d.Size() > 0
}

func (d DType) String() string {
	return string(d)
}

// NumElements returns the product of shape. A scalar has one element.
func NumElements(shape []int64) int64 {
	n := int64(1)
	for _, dim := range shape {
		n *= dim
	}
	return n
}

// ByteSize returns the number of data bytes a tensor of the given type and shape occupies.
func ByteSize(dtype DType, shape []int64) (int64, error) {
	if !dtype.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownDType, dtype)
	}

	for _, dim := range shape {
		if dim < 0 {
			return 0, fmt.Errorf("negative dimension in shape %v", shape)
		}
	}

	if slices.Contains(shape, 0) {
		return 0, nil
	}

	n := dtype.Size()
	for _, dim := range shape {
		if n > math.MaxInt64/dim {
			return 0, fmt.Errorf("shape %v of %s overflows int64 bytes", shape, dtype)
		}
		n *= dim
	}

	return n, nil
}
