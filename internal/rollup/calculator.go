package rollup

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	json "github.com/goccy/go-json"

	"costing/internal/cache"
	"costing/internal/core"
)

// Calculator memoizes Compute on a hash of the form.
type Calculator struct {
	cache *cache.LRUCache[core.RollupResult]
}

// NewCalculator returns a calculator that keeps up to size results for ttl.
func NewCalculator(size int, ttl time.Duration) *Calculator {
	return &Calculator{cache: cache.NewLRUCache[core.RollupResult](size, ttl)}
}

// Cache exposes the underlying cache for registration with a cache.Manager.
func (c *Calculator) Cache() *cache.LRUCache[core.RollupResult] {
	return c.cache
}

// Compute returns the rollup for form, from cache when an identical form was
// seen recently.
func (c *Calculator) Compute(form core.CostingForm) core.RollupResult {
	key, ok := formKey(form)
	if !ok {
		return Compute(form)
	}
	if r, hit := c.cache.Get(key); hit {
		return r
	}
	r := Compute(form)
	c.cache.Set(key, r)
	return r
}

func formKey(form core.CostingForm) (string, bool) {
	b, err := json.Marshal(form)
	if err != nil {
		return "", false
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), true
}
