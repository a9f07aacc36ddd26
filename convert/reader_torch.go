package convert

import (
	"fmt"
	"log/slog"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
)

// LoadTorch reads a state dict saved with torch.save. Both the zip and the
// legacy pickle formats are supported. Keys keep the order they were saved in.
func LoadTorch(path string) (*StateDict, error) {
	pt, err := pytorch.Load(path)
	if err != nil {
		return nil, fmt.Errorf("unpickling %s: %w", path, err)
	}

	sd := NewStateDict()
	add := func(k, v any) error {
		name, ok := k.(string)
		if !ok {
			return fmt.Errorf("%s: non-string key %v (%T)", path, k, k)
		}

		t, ok := v.(*pytorch.Tensor)
		if !ok {
			return fmt.Errorf("%s: %q is %T, not a tensor", path, name, v)
		}

		tt, err := newTorch(t)
		if err != nil {
			return fmt.Errorf("%s: %q: %w", path, name, err)
		}

		slog.Debug("loaded tensor", "name", name, "dtype", tt.DType(), "shape", tt.Shape())
		sd.Set(name, tt)
		return nil
	}

	switch d := pt.(type) {
	case *types.Dict:
		for _, k := range d.Keys() {
			if err := add(k, d.MustGet(k)); err != nil {
				return nil, err
			}
		}
	case *types.OrderedDict:
		for e := d.List.Front(); e != nil; e = e.Next() {
			entry := e.Value.(*types.OrderedDictEntry)
			if err := add(entry.Key, entry.Value); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("%s: expected a state dict, got %T", path, pt)
	}

	return sd, nil
}
