package factory

import (
	"encoding/json"
	"sync"

	"golang.org/x/sync/singleflight"

	"agentforge/internal/domain"
)

// cache memoizes resolved configurations by (template name, variables).
// Concurrent identical requests are coalesced into a single in-flight
// computation whose result fans out to all waiters.
type cache struct {
	mu      sync.RWMutex
	entries map[string]*domain.ResolvedAgentConfig
	group   singleflight.Group
}

func newCache() *cache {
	return &cache{entries: map[string]*domain.ResolvedAgentConfig{}}
}

func (c *cache) get(key string) (*domain.ResolvedAgentConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.entries[key]
	return cfg, ok
}

func (c *cache) compute(key string, fn func() (*domain.ResolvedAgentConfig, error)) (*domain.ResolvedAgentConfig, error) {
	v, err, _ := c.group.Do(key, func() (any, error) {
		cfg, err := fn()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = cfg
		c.mu.Unlock()
		return cfg, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.ResolvedAgentConfig), nil
}

// cacheKey derives a stable key from the template name and the variable
// map. json.Marshal writes map keys in sorted order, so equal maps always
// produce equal keys. Unencodable variable values (ok=false) bypass the
// cache.
func cacheKey(name string, vars map[string]any) (string, bool) {
	if len(vars) == 0 {
		return name + "\x00{}", true
	}
	encoded, err := json.Marshal(vars)
	if err != nil {
		return "", false
	}
	return name + "\x00" + string(encoded), true
}
