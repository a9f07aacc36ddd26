package convert

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"slices"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/x448/float16"

	"github.com/fluxlora/loraconv/fs/safetensors"
)

var ErrUnsupportedDType = errors.New("unsupported tensor storage")

// torch is a tensor view over a gopickle storage. Data is gathered through
// the view's offset and strides when written, so views sharing one storage
// are serialized independently.
type torch struct {
	storage pytorch.StorageInterface
	dtype   safetensors.DType
	offset  int
	shape   []int
	stride  []int
}

func newTorch(t *pytorch.Tensor) (*torch, error) {
	dtype, err := storageDType(t.Source)
	if err != nil {
		return nil, err
	}

	stride := t.Stride
	if len(stride) != len(t.Size) {
		stride = contiguousStride(t.Size)
	}

	tt := &torch{
		storage: t.Source,
		dtype:   dtype,
		offset:  t.StorageOffset,
		shape:   slices.Clone(t.Size),
		stride:  slices.Clone(stride),
	}

	if err := tt.checkBounds(); err != nil {
		return nil, err
	}

	return tt, nil
}

func storageDType(s pytorch.StorageInterface) (safetensors.DType, error) {
	switch s.(type) {
	case *pytorch.FloatStorage:
		return safetensors.F32, nil
	case *pytorch.HalfStorage:
		return safetensors.F16, nil
	case *pytorch.BFloat16Storage:
		return safetensors.BF16, nil
	case *pytorch.DoubleStorage:
		return safetensors.F64, nil
	case *pytorch.LongStorage:
		return safetensors.I64, nil
	case *pytorch.IntStorage:
		return safetensors.I32, nil
	case *pytorch.ShortStorage:
		return safetensors.I16, nil
	case *pytorch.CharStorage:
		return safetensors.I8, nil
	case *pytorch.ByteStorage:
		return safetensors.U8, nil
	case *pytorch.BoolStorage:
		return safetensors.BOOL, nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedDType, s)
	}
}

func storageLen(s pytorch.StorageInterface) int {
	switch s := s.(type) {
	case *pytorch.FloatStorage:
		return len(s.Data)
	case *pytorch.HalfStorage:
		return len(s.Data)
	case *pytorch.BFloat16Storage:
		return len(s.Data)
	case *pytorch.DoubleStorage:
		return len(s.Data)
	case *pytorch.LongStorage:
		return len(s.Data)
	case *pytorch.IntStorage:
		return len(s.Data)
	case *pytorch.ShortStorage:
		return len(s.Data)
	case *pytorch.CharStorage:
		return len(s.Data)
	case *pytorch.ByteStorage:
		return len(s.Data)
	case *pytorch.BoolStorage:
		return len(s.Data)
	default:
		return 0
	}
}

func contiguousStride(shape []int) []int {
	stride := make([]int, len(shape))
	n := 1
	for i := len(shape) - 1; i >= 0; i-- {
		stride[i] = n
		n *= shape[i]
	}
	return stride
}

func (t *torch) numel() int {
	n := 1
	for _, dim := range t.shape {
		n *= dim
	}
	return n
}

// checkBounds verifies the furthest element the view addresses is inside the storage.
func (t *torch) checkBounds() error {
	if t.offset < 0 {
		return fmt.Errorf("negative storage offset %d", t.offset)
	}

	if t.numel() == 0 {
		return nil
	}

	last := t.offset
	for i, dim := range t.shape {
		if dim < 0 || t.stride[i] < 0 {
			return fmt.Errorf("invalid view shape %v stride %v", t.shape, t.stride)
		}
		last += (dim - 1) * t.stride[i]
	}

	if n := storageLen(t.storage); last >= n {
		return fmt.Errorf("view shape %v stride %v offset %d exceeds storage of %d elements", t.shape, t.stride, t.offset, n)
	}

	return nil
}

// indices returns the storage index of every element of the view in row-major order.
func (t *torch) indices() []int {
	n := t.numel()
	idx := make([]int, 0, n)
	if n == 0 {
		return idx
	}

	if slices.Equal(t.stride, contiguousStride(t.shape)) {
		for i := range n {
			idx = append(idx, t.offset+i)
		}
		return idx
	}

	pos := make([]int, len(t.shape))
	for range n {
		at := t.offset
		for d, p := range pos {
			at += p * t.stride[d]
		}
		idx = append(idx, at)

		for d := len(pos) - 1; d >= 0; d-- {
			pos[d]++
			if pos[d] < t.shape[d] {
				break
			}
			pos[d] = 0
		}
	}

	return idx
}

func gather[T any](data []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, at := range idx {
		out[i] = data[at]
	}
	return out
}

func (t *torch) DType() safetensors.DType { return t.dtype }

func (t *torch) Shape() []int64 {
	shape := make([]int64, len(t.shape))
	for i, dim := range t.shape {
		shape[i] = int64(dim)
	}
	return shape
}

func (t *torch) Size() int64 {
	return int64(t.numel()) * t.dtype.Size()
}

// WriteTo writes the view's elements as little-endian bytes in the storage's own dtype.
func (t *torch) WriteTo(w io.Writer) (int64, error) {
	idx := t.indices()

	var b bytes.Buffer
	b.Grow(int(t.Size()))

	var err error
	switch s := t.storage.(type) {
	case *pytorch.FloatStorage:
		err = binary.Write(&b, binary.LittleEndian, gather(s.Data, idx))
	case *pytorch.HalfStorage:
		f32s := gather(s.Data, idx)
		u16s := make([]uint16, len(f32s))
		for i := range f32s {
			u16s[i] = float16.Fromfloat32(f32s[i]).Bits()
		}
		err = binary.Write(&b, binary.LittleEndian, u16s)
	case *pytorch.BFloat16Storage:
		_, err = b.Write(bfloat16.EncodeFloat32(gather(s.Data, idx)))
	case *pytorch.DoubleStorage:
		err = binary.Write(&b, binary.LittleEndian, gather(s.Data, idx))
	case *pytorch.LongStorage:
		err = binary.Write(&b, binary.LittleEndian, gather(s.Data, idx))
	case *pytorch.IntStorage:
		err = binary.Write(&b, binary.LittleEndian, gather(s.Data, idx))
	case *pytorch.ShortStorage:
		err = binary.Write(&b, binary.LittleEndian, gather(s.Data, idx))
	case *pytorch.CharStorage:
		err = binary.Write(&b, binary.LittleEndian, gather(s.Data, idx))
	case *pytorch.ByteStorage:
		_, err = b.Write(gather(s.Data, idx))
	case *pytorch.BoolStorage:
		err = binary.Write(&b, binary.LittleEndian, gather(s.Data, idx))
	default:
		err = fmt.Errorf("%w: %T", ErrUnsupportedDType, s)
	}

	if err != nil {
		return 0, err
	}

	return b.WriteTo(w)
}
