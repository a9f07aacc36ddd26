package safetensors

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
)

var ErrUnknownDType = errors.New("unknown safetensors dtype")

// Tensor is anything that can be stored in a safetensors container.
// WriteTo must write exactly Size bytes in little-endian row-major order.
type Tensor interface {
	DType() DType
	Shape() []int64
	Size() int64
	io.WriterTo
}

type header struct {
	DType   DType    `json:"dtype"`
	Shape   []int64  `json:"shape"`
	Offsets [2]int64 `json:"data_offsets"`
}

// Write serializes tensors as a safetensors container. Tensors are laid out
// in sorted name order. The JSON header is padded with spaces so the data
// section starts on an 8 byte boundary.
func Write(w io.Writer, tensors map[string]Tensor, metadata map[string]string) error {
	names := slices.Sorted(maps.Keys(tensors))

	hdr := make(map[string]any, len(names)+1)
	if len(metadata) > 0 {
		hdr["__metadata__"] = metadata
	}

	var offset int64
	for _, name := range names {
		if name == "__metadata__" {
			return errors.New("tensor name __metadata__ is reserved")
		}

		t := tensors[name]
		size, err := ByteSize(t.DType(), t.Shape())
		if err != nil {
			return fmt.Errorf("tensor %q: %w", name, err)
		}

		if size != t.Size() {
			return fmt.Errorf("tensor %q: size %d does not match %s%v (%d bytes)", name, t.Size(), t.DType(), t.Shape(), size)
		}

		shape := t.Shape()
		if shape == nil {
			shape = []int64{}
		}

		hdr[name] = header{
			DType:   t.DType(),
			Shape:   shape,
			Offsets: [2]int64{offset, offset + size},
		}
		offset += size
	}

	bts, err := json.Marshal(hdr)
	if err != nil {
		return err
	}

	if pad := len(bts) % 8; pad != 0 {
		bts = append(bts, bytes.Repeat([]byte{' '}, 8-pad)...)
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(bts))); err != nil {
		return err
	}

	if _, err := w.Write(bts); err != nil {
		return err
	}

	for _, name := range names {
		t := tensors[name]
		n, err := t.WriteTo(w)
		if err != nil {
			return fmt.Errorf("tensor %q: %w", name, err)
		}

		if n != t.Size() {
			return fmt.Errorf("tensor %q: wrote %d bytes, expected %d", name, n, t.Size())
		}
	}

	return nil
}

// WriteFile writes tensors to a new file at path. The file is removed if
// writing fails part way through.
func WriteFile(path string, tensors map[string]Tensor, metadata map[string]string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	return Write(f, tensors, metadata)
}

// Raw is an in-memory tensor backed by little-endian bytes.
type Raw struct {
	dtype DType
	shape []int64
	data  []byte
}

func NewRaw(dtype DType, shape []int64, data []byte) *Raw {
	return &Raw{dtype: dtype, shape: shape, data: data}
}

func (r *Raw) DType() DType   { return r.dtype }
func (r *Raw) Shape() []int64 { return slices.Clone(r.shape) }
func (r *Raw) Size() int64    { return int64(len(r.data)) }
func (r *Raw) Bytes() []byte  { return r.data }

func (r *Raw) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(r.data)
	return int64(n), err
}
