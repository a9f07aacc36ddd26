package convert

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

var ErrInvalidRules = errors.New("invalid rules")

// indexPlaceholder is substituted with the block index captured from the source key.
const indexPlaceholder = "{index}"

// Replacement is a literal substring rewrite.
type Replacement struct {
	From string `toml:"from"`
	To   string `toml:"to"`
}

// Topology describes one family of block keys. A key belongs to the topology
// when it starts with Prefix. The block index is the Index-th segment of the
// key split on "_". Each rewrite replaces Prefix+index+"_"+From with To, where
// To may reference the index as {index}.
type Topology struct {
	Name     string        `toml:"name"`
	Prefix   string        `toml:"prefix"`
	Index    int           `toml:"index"`
	Rewrites []Replacement `toml:"rewrite"`
}

// source returns the literal substring rewrite r replaces for block index.
func (tp Topology) source(index string, r Replacement) string {
	return tp.Prefix + index + "_" + r.From
}

// RuleSet is the full declarative rewrite table.
//
// Roles are checked in order and only the first marker found in a key is
// rewritten. Roles apply to keys of a recognized topology. Normalize applies
// to every key as a final pass.
type RuleSet struct {
	Topologies []Topology    `toml:"topology"`
	Roles      []Replacement `toml:"role"`
	Normalize  []Replacement `toml:"normalize"`
}

// DefaultRules maps slider (kohya style) Flux LoRA keys to the diffusers
// names used by ostris ai-toolkit.
func DefaultRules() RuleSet {
	return RuleSet{
		Topologies: []Topology{
			{
				Name:   "single_transformer_blocks",
				Prefix: "lora_unet_single_transformer_blocks_",
				Index:  5,
				Rewrites: []Replacement{
					{"attn_to_", "transformer.single_transformer_blocks.{index}.attn.to_"},
					{"attn_add_", "transformer.single_transformer_blocks.{index}.attn.add_"},
				},
			},
			{
				Name:   "transformer_blocks",
				Prefix: "lora_unet_transformer_blocks_",
				Index:  4,
				Rewrites: []Replacement{
					{"attn_to_", "transformer.transformer_blocks.{index}.attn.to_"},
					{"attn_add_", "transformer.transformer_blocks.{index}.attn.add_"},
				},
			},
		},
		Roles: []Replacement{
			{"lora_up", "lora_B"},
			{"lora_down", "lora_A"},
		},
		Normalize: []Replacement{
			{"to_out_0", "to_out"},
		},
	}
}

// LoadRules reads a TOML rule file. A topology without an explicit index
// uses the number of "_" separators in its prefix, which is the position of
// the segment that directly follows it.
//
//	[[topology]]
//	name = "transformer_blocks"
//	prefix = "lora_unet_transformer_blocks_"
//
//	[[topology.rewrite]]
//	from = "attn_to_"
//	to = "transformer.transformer_blocks.{index}.attn.to_"
func LoadRules(path string) (RuleSet, error) {
	var rs RuleSet
	md, err := toml.DecodeFile(path, &rs)
	if err != nil {
		return RuleSet{}, fmt.Errorf("%w: %s: %w", ErrInvalidRules, path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return RuleSet{}, fmt.Errorf("%w: %s: unknown keys %v", ErrInvalidRules, path, undecoded)
	}

	for i := range rs.Topologies {
		if rs.Topologies[i].Index == 0 {
			rs.Topologies[i].Index = strings.Count(rs.Topologies[i].Prefix, "_")
		}
	}

	if err := rs.Validate(); err != nil {
		return RuleSet{}, fmt.Errorf("%s: %w", path, err)
	}

	return rs, nil
}

func (rs RuleSet) Validate() error {
	var errs []error
	prefixes := make(map[string]string)
	for i, tp := range rs.Topologies {
		name := cmp.Or(tp.Name, fmt.Sprintf("topology %d", i))
		switch {
		case tp.Prefix == "":
			errs = append(errs, fmt.Errorf("%s: empty prefix", name))
		case tp.Index < 1:
			errs = append(errs, fmt.Errorf("%s: index must be positive, got %d", name, tp.Index))
		case len(tp.Rewrites) == 0:
			errs = append(errs, fmt.Errorf("%s: no rewrites", name))
		}

		if other, ok := prefixes[tp.Prefix]; ok {
			errs = append(errs, fmt.Errorf("%s: prefix %q already used by %s", name, tp.Prefix, other))
		}
		prefixes[tp.Prefix] = name

		for _, r := range tp.Rewrites {
			if r.From == "" {
				errs = append(errs, fmt.Errorf("%s: rewrite with empty from", name))
			}
			if !strings.Contains(r.To, indexPlaceholder) {
				errs = append(errs, fmt.Errorf("%s: rewrite %q does not reference %s", name, r.From, indexPlaceholder))
			}
		}
	}

	for _, r := range slices.Concat(rs.Roles, rs.Normalize) {
		if r.From == "" {
			errs = append(errs, errors.New("role or normalize rule with empty from"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRules, errors.Join(errs...))
	}

	return nil
}

// Match returns the most specific topology whose prefix starts key.
func (rs RuleSet) Match(key string) (Topology, bool) {
	var match Topology
	var ok bool
	for _, tp := range rs.Topologies {
		if strings.HasPrefix(key, tp.Prefix) && (!ok || len(tp.Prefix) > len(match.Prefix)) {
			match, ok = tp, true
		}
	}

	return match, ok
}
