package convert

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"strconv"
	"testing"
)

// torchEntry is one float32 tensor of a test state dict.
type torchEntry struct {
	name  string
	shape []int
	data  []float32
}

type pickler struct {
	bytes.Buffer
}

func (p *pickler) str(s string) {
	p.WriteByte('X') // BINUNICODE
	binary.Write(p, binary.LittleEndian, uint32(len(s)))
	p.WriteString(s)
}

func (p *pickler) int(n int) {
	if n >= 0 && n < 256 {
		p.WriteByte('K') // BININT1
		p.WriteByte(byte(n))
		return
	}
	p.WriteByte('J') // BININT
	binary.Write(p, binary.LittleEndian, int32(n))
}

func (p *pickler) global(module, name string) {
	p.WriteString("c" + module + "\n" + name + "\n")
}

func (p *pickler) ints(ns []int) {
	if len(ns) == 0 {
		p.WriteByte(')') // EMPTY_TUPLE
		return
	}
	p.WriteByte('(') // MARK
	for _, n := range ns {
		p.int(n)
	}
	p.WriteByte('t') // TUPLE
}

func (p *pickler) orderedDict() {
	p.global("collections", "OrderedDict")
	p.WriteByte(')')
	p.WriteByte('R') // REDUCE
}

// writeTorchFile writes entries the way torch.save writes a state dict: a zip
// archive holding data.pkl and one storage record per tensor.
func writeTorchFile(t *testing.T, path string, entries []torchEntry) {
	t.Helper()

	var p pickler
	p.WriteString("\x80\x02") // PROTO 2
	p.orderedDict()
	p.WriteByte('(')
	for i, e := range entries {
		p.str(e.name)
		p.global("torch._utils", "_rebuild_tensor_v2")
		p.WriteByte('(')
		{
			p.WriteByte('(')
			p.str("storage")
			p.global("torch", "FloatStorage")
			p.str(strconv.Itoa(i))
			p.str("cpu")
			p.int(len(e.data))
			p.WriteByte('t')
			p.WriteByte('Q') // BINPERSID
		}
		p.int(0)
		p.ints(e.shape)
		p.ints(contiguousStride(e.shape))
		p.WriteByte(0x89) // NEWFALSE
		p.orderedDict()
		p.WriteByte('t')
		p.WriteByte('R')
	}
	p.WriteByte('u') // SETITEMS
	p.WriteByte('.') // STOP

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	write := func(name string, data []byte) {
		// torch.save stores records uncompressed
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatal(err)
		}
	}

	write("archive/data.pkl", p.Bytes())
	for i, e := range entries {
		data := make([]byte, 4*len(e.data))
		for j, v := range e.data {
			binary.LittleEndian.PutUint32(data[4*j:], math.Float32bits(v))
		}
		write("archive/data/"+strconv.Itoa(i), data)
	}
	write("archive/version", []byte("3\n"))

	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}
