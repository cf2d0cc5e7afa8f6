package model

import "fmt"

// LayerCache stores rotated keys and unrotated values for one transformer
// layer during autoregressive generation. Without it every step recomputes
// K and V for the whole history; with it only the new positions are
// computed, which changes the per-token cost but not a single output bit:
// cached and uncached generation produce identical sequences for a fixed
// random source.
type LayerCache struct {
	k      []float32 // (maxLen, dim) rows, rotated
	v      []float32 // (maxLen, dim) rows
	length int       // number of cached positions
	maxLen int
	dim    int
}

// Cache bundles the per-layer caches for one generation session. It is
// created per call and discarded with the session; it is not safe for
// concurrent use.
type Cache struct {
	Layers []*LayerCache
}

// NewCache allocates caches for every layer of a model with the given
// configuration.
func NewCache(cfg Config) *Cache {
	layers := make([]*LayerCache, cfg.NumLayers)
	for i := range layers {
		layers[i] = &LayerCache{
			k:      make([]float32, cfg.MaxSeqLen*cfg.Dim),
			v:      make([]float32, cfg.MaxSeqLen*cfg.Dim),
			maxLen: cfg.MaxSeqLen,
			dim:    cfg.Dim,
		}
	}
	return &Cache{Layers: layers}
}

// Len returns the number of positions currently cached. All layers advance
// in lockstep.
func (c *Cache) Len() int {
	if len(c.Layers) == 0 {
		return 0
	}
	return c.Layers[0].length
}

// Reset empties the cache without releasing its buffers. Used when the
// context window slides and cached positions no longer line up.
func (c *Cache) Reset() {
	for _, lc := range c.Layers {
		lc.length = 0
	}
}

// Len returns the number of cached positions in this layer.
func (lc *LayerCache) Len() int {
	return lc.length
}

// Append stores the key and value rows for the next position.
func (lc *LayerCache) Append(key, value []float32) error {
	if len(key) != lc.dim || len(value) != lc.dim {
		return fmt.Errorf("kv cache: row width %d/%d, expected %d", len(key), len(value), lc.dim)
	}
	if lc.length >= lc.maxLen {
		return fmt.Errorf("kv cache: overflow at position %d (capacity %d)", lc.length, lc.maxLen)
	}
	offset := lc.length * lc.dim
	copy(lc.k[offset:offset+lc.dim], key)
	copy(lc.v[offset:offset+lc.dim], value)
	lc.length++
	return nil
}

// Key returns the cached key row for a position, sharing storage.
func (lc *LayerCache) Key(pos int) []float32 {
	return lc.k[pos*lc.dim : (pos+1)*lc.dim]
}

// Value returns the cached value row for a position, sharing storage.
func (lc *LayerCache) Value(pos int) []float32 {
	return lc.v[pos*lc.dim : (pos+1)*lc.dim]
}
