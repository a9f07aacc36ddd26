package convert

import (
	"bytes"
	"encoding/json"
	"os"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Cache memoizes key translations and doubles as the audit log of every
// translation made with it. Entries are kept in first-seen order and are
// never changed or removed once set.
//
// A Cache is safe for concurrent use.
type Cache struct {
	mu sync.Mutex
	m  *orderedmap.OrderedMap[string, string]
}

func NewCache() *Cache {
	return &Cache{m: orderedmap.New[string, string]()}
}

func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m.Get(key)
}

// resolve returns the cached value for key, computing and storing it with fn
// on a miss. fn runs with the lock held so a key is never computed twice.
func (c *Cache) resolve(key string, fn func(string) string) (value string, hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.m.Get(key); ok {
		return v, true
	}

	v := fn(key)
	c.m.Set(key, v)
	return v, false
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m.Len()
}

// Keys returns the source keys in the order they were first translated.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.m.Len())
	for pair := c.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// MarshalJSON encodes the cache as a JSON object of source to destination
// keys in first-seen order.
func (c *Cache) MarshalJSON() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m.MarshalJSON()
}

// WriteFile writes the cache as an indented JSON document.
func (c *Cache) WriteFile(path string) error {
	bts, err := c.MarshalJSON()
	if err != nil {
		return err
	}

	var b bytes.Buffer
	if err := json.Indent(&b, bts, "", "  "); err != nil {
		return err
	}
	b.WriteByte('\n')

	return os.WriteFile(path, b.Bytes(), 0o644)
}
