package convert

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/fluxlora/loraconv/fs/safetensors"
)

func writeBytes(t *testing.T, tt *torch) []byte {
	t.Helper()

	var b bytes.Buffer
	n, err := tt.WriteTo(&b)
	if err != nil {
		t.Fatal(err)
	}

	if n != tt.Size() {
		t.Fatalf("wrote %d bytes, Size() = %d", n, tt.Size())
	}

	return b.Bytes()
}

func TestTorchFloat(t *testing.T) {
	tt, err := newTorch(&pytorch.Tensor{
		Source: &pytorch.FloatStorage{Data: []float32{1, 2, 3, 4, 5, 6}},
		Size:   []int{2, 3},
		Stride: []int{3, 1},
	})
	require.NoError(t, err)

	assert.Equal(t, safetensors.F32, tt.DType())
	assert.Equal(t, []int64{2, 3}, tt.Shape())
	assert.Equal(t, int64(24), tt.Size())

	got := make([]float32, 6)
	require.NoError(t, binary.Read(bytes.NewReader(writeBytes(t, tt)), binary.LittleEndian, got))
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, got)
}

func TestTorchStridedView(t *testing.T) {
	// transpose of a 2x3 matrix and a view starting at an offset
	storage := &pytorch.LongStorage{Data: []int64{0, 1, 2, 3, 4, 5, 6, 7}}

	transposed, err := newTorch(&pytorch.Tensor{
		Source: storage,
		Size:   []int{3, 2},
		Stride: []int{1, 3},
	})
	require.NoError(t, err)

	got := make([]int64, 6)
	require.NoError(t, binary.Read(bytes.NewReader(writeBytes(t, transposed)), binary.LittleEndian, got))
	assert.Equal(t, []int64{0, 3, 1, 4, 2, 5}, got)

	row, err := newTorch(&pytorch.Tensor{
		Source:        storage,
		StorageOffset: 5,
		Size:          []int{3},
		Stride:        []int{1},
	})
	require.NoError(t, err)

	got = make([]int64, 3)
	require.NoError(t, binary.Read(bytes.NewReader(writeBytes(t, row)), binary.LittleEndian, got))
	assert.Equal(t, []int64{5, 6, 7}, got)
}

func TestTorchHalf(t *testing.T) {
	tt, err := newTorch(&pytorch.Tensor{
		Source: &pytorch.HalfStorage{Data: []float32{0.5, -2, 65504}},
		Size:   []int{3},
	})
	require.NoError(t, err)
	assert.Equal(t, safetensors.F16, tt.DType())

	data := writeBytes(t, tt)
	require.Len(t, data, 6)
	for i, want := range []float32{0.5, -2, 65504} {
		got := float16.Frombits(binary.LittleEndian.Uint16(data[2*i:])).Float32()
		assert.Equal(t, want, got)
	}
}

func TestTorchBFloat16(t *testing.T) {
	tt, err := newTorch(&pytorch.Tensor{
		Source: &pytorch.BFloat16Storage{Data: []float32{1, -0.5, 256}},
		Size:   []int{1, 3},
	})
	require.NoError(t, err)
	assert.Equal(t, safetensors.BF16, tt.DType())

	data := writeBytes(t, tt)
	assert.Equal(t, []float32{1, -0.5, 256}, bfloat16.DecodeFloat32(data))
}

func TestTorchScalarAndBool(t *testing.T) {
	scalar, err := newTorch(&pytorch.Tensor{
		Source:        &pytorch.DoubleStorage{Data: []float64{math.Pi, 16}},
		StorageOffset: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{}, scalar.Shape())
	assert.Equal(t, math.Float64bits(16), binary.LittleEndian.Uint64(writeBytes(t, scalar)))

	mask, err := newTorch(&pytorch.Tensor{
		Source: &pytorch.BoolStorage{Data: []bool{true, false, true}},
		Size:   []int{3},
	})
	require.NoError(t, err)
	assert.Equal(t, safetensors.BOOL, mask.DType())
	assert.Equal(t, []byte{1, 0, 1}, writeBytes(t, mask))
}

func TestTorchOutOfBounds(t *testing.T) {
	_, err := newTorch(&pytorch.Tensor{
		Source: &pytorch.FloatStorage{Data: []float32{1, 2, 3}},
		Size:   []int{2, 2},
	})
	assert.Error(t, err)

	_, err = newTorch(&pytorch.Tensor{
		Source:        &pytorch.FloatStorage{Data: []float32{1, 2, 3}},
		StorageOffset: 2,
		Size:          []int{2},
	})
	assert.Error(t, err)
}

func TestTorchEmpty(t *testing.T) {
	tt, err := newTorch(&pytorch.Tensor{
		Source: &pytorch.FloatStorage{},
		Size:   []int{0, 16},
	})
	require.NoError(t, err)
	assert.Zero(t, tt.Size())
	assert.Empty(t, writeBytes(t, tt))
}
