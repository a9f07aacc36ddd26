package convert

import (
	"strings"

	"github.com/fluxlora/loraconv/logutil"
)

// Translator maps source parameter keys to destination keys using a RuleSet.
// Every translation is memoized in its Cache, so a key is resolved once and
// later lookups, from this or any other Translator sharing the Cache, return
// the identical string.
type Translator struct {
	rules RuleSet
	cache *Cache
}

// NewTranslator validates rules and returns a Translator backed by cache.
// A nil cache gets a fresh one.
func NewTranslator(rules RuleSet, cache *Cache) (*Translator, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}

	if cache == nil {
		cache = NewCache()
	}

	return &Translator{rules: rules, cache: cache}, nil
}

func (t *Translator) Rules() RuleSet { return t.rules }
func (t *Translator) Cache() *Cache  { return t.cache }

// Recognized reports whether key belongs to one of the rule set's topologies.
func (t *Translator) Recognized(key string) bool {
	_, ok := t.rules.Match(key)
	return ok
}

// Translate returns the destination key for key. Keys outside every topology
// only receive the normalize pass. Translate never fails.
func (t *Translator) Translate(key string) string {
	name, hit := t.cache.resolve(key, t.rewrite)
	if !hit {
		logutil.Trace("translated key", "from", key, "to", name)
	}
	return name
}

func (t *Translator) rewrite(key string) string {
	name := key
	if tp, ok := t.rules.Match(key); ok {
		var index string
		if parts := strings.Split(key, "_"); tp.Index < len(parts) {
			index = parts[tp.Index]
		}

		for _, role := range t.rules.Roles {
			if strings.Contains(key, role.From) {
				name = strings.ReplaceAll(name, role.From, role.To)
				break
			}
		}

		for _, r := range tp.Rewrites {
			name = strings.ReplaceAll(name, tp.source(index, r), strings.ReplaceAll(r.To, indexPlaceholder, index))
		}
	}

	for _, r := range t.rules.Normalize {
		name = strings.ReplaceAll(name, r.From, r.To)
	}

	return name
}
