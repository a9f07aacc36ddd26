// Package safetensors reads and writes safetensors containers: an 8 byte
// little-endian header length, a JSON header describing every tensor, then
// the raw tensor data.
package safetensors

import (
	"cmp"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

// TensorInfo is one entry of a container's header. It satisfies [Tensor] so
// entries read from one container can be written to another.
//
// Its zero value is not valid. Use [File.Tensors] to get valid tensors.
type TensorInfo struct {
	name   string
	dtype  DType
	shape  []int64
	r      io.ReaderAt
	offset int64
	size   int64
}

func (t *TensorInfo) Name() string   { return t.name }
func (t *TensorInfo) DType() DType   { return t.dtype }
func (t *TensorInfo) Shape() []int64 { return slices.Clone(t.shape) }
func (t *TensorInfo) Size() int64    { return t.size }

// Reader returns the tensor's data section.
func (t *TensorInfo) Reader() io.Reader {
	return io.NewSectionReader(t.r, t.offset, t.size)
}

func (t *TensorInfo) WriteTo(w io.Writer) (int64, error) {
	return io.Copy(w, t.Reader())
}

// File is a parsed safetensors container.
type File struct {
	Metadata map[string]string

	tensors []*TensorInfo
	closer  io.Closer
}

// Tensors returns the tensors in the order their data appears in the container.
func (f *File) Tensors() []*TensorInfo {
	return f.tensors
}

// Tensor returns the named tensor or nil.
func (f *File) Tensor(name string) *TensorInfo {
	for _, t := range f.tensors {
		if t.name == name {
			return t
		}
	}
	return nil
}

// Names returns every tensor name in sorted order.
func (f *File) Names() []string {
	names := make([]string, len(f.tensors))
	for i, t := range f.tensors {
		names[i] = t.name
	}
	slices.Sort(names)
	return names
}

func (f *File) Close() error {
	if f.closer != nil {
		return f.closer.Close()
	}
	return nil
}

// Open parses the container at path. The returned File keeps the file open
// until Close so tensor data can be read lazily.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	st, err := Read(f, fi.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	st.closer = f
	return st, nil
}

// Read parses a container of the given total size from r.
func Read(r io.ReaderAt, size int64) (*File, error) {
	var buf [8]byte
	if _, err := r.ReadAt(buf[:], 0); err != nil {
		return nil, fmt.Errorf("reading header size: %w", err)
	}

	n := int64(binary.LittleEndian.Uint64(buf[:]))
	if n <= 0 || 8+n > size {
		return nil, fmt.Errorf("invalid header size %d for %d byte file", n, size)
	}

	data := make([]byte, n)
	if _, err := r.ReadAt(data, 8); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	var raws map[string]json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}

	endOfHeader := 8 + n

	f := File{tensors: make([]*TensorInfo, 0, len(raws))}
	for name, raw := range raws {
		if name == "__metadata__" {
			if err := json.Unmarshal(raw, &f.Metadata); err != nil {
				return nil, fmt.Errorf("parsing metadata: %w", err)
			}
			continue
		}

		var v header
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("error unmarshalling tensor %q: %w", name, err)
		}

		want, err := ByteSize(v.DType, v.Shape)
		if err != nil {
			return nil, fmt.Errorf("tensor %q: %w", name, err)
		}

		begin := endOfHeader + v.Offsets[0]
		end := endOfHeader + v.Offsets[1]
		if err := checkBeginEnd(size, begin, end); err != nil {
			return nil, fmt.Errorf("tensor %q: %w", name, err)
		}

		if end-begin != want {
			return nil, fmt.Errorf("tensor %q: %d bytes for %s%v, expected %d", name, end-begin, v.DType, v.Shape, want)
		}

		f.tensors = append(f.tensors, &TensorInfo{
			name:   name,
			dtype:  v.DType,
			shape:  v.Shape,
			r:      r,
			offset: begin,
			size:   end - begin,
		})
	}

	slices.SortFunc(f.tensors, func(a, b *TensorInfo) int {
		return cmp.Or(cmp.Compare(a.offset, b.offset), strings.Compare(a.name, b.name))
	})

	return &f, nil
}

func checkBeginEnd(size, begin, end int64) error {
	if begin < 0 {
		return fmt.Errorf("begin must not be negative: %d", begin)
	}
	if end < 0 {
		return fmt.Errorf("end must not be negative: %d", end)
	}
	if end < begin {
		return fmt.Errorf("end must be >= begin: %d < %d", end, begin)
	}
	if end > size {
		return fmt.Errorf("end must be <= size: %d > %d", end, size)
	}
	return nil
}
