package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/sync/errgroup"

	"github.com/fluxlora/loraconv/fs/safetensors"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported input format")
	ErrCollision         = errors.New("destination key collision")
	ErrUnrecognized      = errors.New("unrecognized source key")
	ErrOutputClash       = errors.New("output path clash")
)

// StateDict maps parameter names to tensors in insertion order. Setting an
// existing name replaces its tensor and keeps its position.
type StateDict = orderedmap.OrderedMap[string, safetensors.Tensor]

func NewStateDict() *StateDict {
	return orderedmap.New[string, safetensors.Tensor]()
}

// legacyExts are the torch.save suffixes accepted as input.
var legacyExts = []string{".pt", ".pth", ".bin"}

const containerExt = ".safetensors"

type Options struct {
	// Strict fails a conversion that has destination key collisions or
	// unrecognized source keys instead of reporting them.
	Strict bool
	// MappingExt replaces the container's extension to name the mapping document.
	MappingExt string
}

// Converter renames every tensor of a state dict with a Translator. All
// conversions made with one Converter share the Translator's cache.
type Converter struct {
	t    *Translator
	opts Options
}

func New(t *Translator, opts Options) *Converter {
	if opts.MappingExt == "" {
		opts.MappingExt = ".json"
	}
	return &Converter{t: t, opts: opts}
}

func (c *Converter) Translator() *Translator { return c.t }

// Collision is a destination key produced by more than one source key. The
// tensor of the last source wins.
type Collision struct {
	Key     string
	Sources []string
}

type Report struct {
	Input   string
	Output  string
	Mapping string

	// Skipped is set when the input was already a safetensors container.
	Skipped bool

	// Tensors is the number of source tensors, Written the number of
	// destination tensors. They differ only when keys collide.
	Tensors int
	Written int

	Unrecognized []string
	Collisions   []Collision
}

// Shrunk reports whether collisions dropped tensors.
func (r *Report) Shrunk() bool {
	return r.Written < r.Tensors
}

// Convert translates every key of sd. Source order is kept. When two source
// keys translate to the same name the later tensor replaces the earlier one;
// in strict mode that, or any unrecognized key, is an error.
func (c *Converter) Convert(sd *StateDict) (*StateDict, *Report, error) {
	out := NewStateDict()
	report := Report{Tensors: sd.Len()}

	sources := make(map[string][]string, sd.Len())
	for pair := sd.Oldest(); pair != nil; pair = pair.Next() {
		if !c.t.Recognized(pair.Key) {
			report.Unrecognized = append(report.Unrecognized, pair.Key)
		}

		name := c.t.Translate(pair.Key)
		sources[name] = append(sources[name], pair.Key)
		out.Set(name, pair.Value)
	}

	for pair := out.Oldest(); pair != nil; pair = pair.Next() {
		if srcs := sources[pair.Key]; len(srcs) > 1 {
			report.Collisions = append(report.Collisions, Collision{Key: pair.Key, Sources: srcs})
		}
	}
	report.Written = out.Len()

	for _, k := range report.Unrecognized {
		slog.Warn("unrecognized key, name kept", "key", k)
	}

	for _, col := range report.Collisions {
		slog.Warn("destination key collision, last tensor kept", "key", col.Key, "sources", col.Sources)
	}

	if c.opts.Strict {
		if len(report.Collisions) > 0 {
			col := report.Collisions[0]
			return nil, &report, fmt.Errorf("%w: %q from %s", ErrCollision, col.Key, strings.Join(col.Sources, ", "))
		}

		if len(report.Unrecognized) > 0 {
			return nil, &report, fmt.Errorf("%w: %q", ErrUnrecognized, report.Unrecognized[0])
		}
	}

	return out, &report, nil
}

// OutputPath returns the default container path for input.
func OutputPath(input string) string {
	return replaceExt(input, containerExt)
}

// MappingPath returns where the key mapping document for the container at output is written.
func (c *Converter) MappingPath(output string) string {
	return replaceExt(output, c.opts.MappingExt)
}

func replaceExt(p, ext string) string {
	return strings.TrimSuffix(p, filepath.Ext(p)) + ext
}

// ConvertFile converts the torch state dict at input to a safetensors
// container at output, or next to input when output is empty. Afterwards the
// whole translation cache, including keys of earlier conversions, is written
// as the mapping document. Inputs that already are safetensors containers
// are skipped without error.
func (c *Converter) ConvertFile(ctx context.Context, input, output string) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(input))
	if ext == containerExt {
		slog.Info("input is already in safetensors format", "input", input)
		return &Report{Input: input, Skipped: true}, nil
	}

	if !slices.Contains(legacyExts, ext) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, input)
	}

	if output == "" {
		output = OutputPath(input)
	}

	mapping := c.MappingPath(output)
	if filepath.Clean(mapping) == filepath.Clean(output) {
		return nil, fmt.Errorf("%w: mapping document would overwrite %s", ErrOutputClash, output)
	}

	sd, err := LoadTorch(input)
	if err != nil {
		return nil, err
	}

	out, report, err := c.Convert(sd)
	if report != nil {
		report.Input = input
	}
	if err != nil {
		return report, fmt.Errorf("%s: %w", input, err)
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return report, err
	}

	tensors := make(map[string]safetensors.Tensor, out.Len())
	for pair := out.Oldest(); pair != nil; pair = pair.Next() {
		tensors[pair.Key] = pair.Value
	}

	if err := safetensors.WriteFile(output, tensors, map[string]string{"format": "pt"}); err != nil {
		return report, fmt.Errorf("writing %s: %w", output, err)
	}
	report.Output = output

	if err := c.t.Cache().WriteFile(mapping); err != nil {
		return report, fmt.Errorf("writing %s: %w", mapping, err)
	}
	report.Mapping = mapping

	slog.Info("converted", "input", input, "output", output, "tensors", report.Written, "mapping", mapping)
	return report, nil
}

// ConvertDir converts every torch state dict directly inside dir into outDir,
// or dir itself when outDir is empty. At most parallel files are converted
// at once. Reports are returned in file name order.
func (c *Converter) ConvertDir(ctx context.Context, dir, outDir string, parallel int) ([]*Report, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	if outDir == "" {
		outDir = dir
	}

	var inputs []string
	for _, e := range entries {
		if e.Type().IsRegular() && slices.Contains(legacyExts, strings.ToLower(filepath.Ext(e.Name()))) {
			inputs = append(inputs, filepath.Join(dir, e.Name()))
		}
	}

	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no %s files in %s", ErrUnsupportedFormat, strings.Join(legacyExts, "/"), dir)
	}

	outputs := make([]string, len(inputs))
	seen := make(map[string]string, len(inputs))
	for i, input := range inputs {
		outputs[i] = filepath.Join(outDir, filepath.Base(OutputPath(input)))
		if other, ok := seen[outputs[i]]; ok {
			return nil, fmt.Errorf("%w: %s and %s would both be written to %s", ErrOutputClash, other, input, outputs[i])
		}
		seen[outputs[i]] = input
	}

	reports := make([]*Report, len(inputs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallel, 1))
	for i, input := range inputs {
		g.Go(func() error {
			report, err := c.ConvertFile(ctx, input, outputs[i])
			reports[i] = report
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return reports, err
	}

	return reports, nil
}
