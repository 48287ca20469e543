package catalog

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/openrasters/coverageview/internal/observability"
	"github.com/openrasters/coverageview/internal/raster"
	"github.com/openrasters/coverageview/internal/view"
)

// Cached wraps a Catalog with an LRU of parsed definitions and dimension
// collections. Invalidate evicts one view, typically driven by the Kafka
// invalidation runner.
type Cached struct {
	inner Catalog
	views *lru.Cache[string, *view.Definition]
	dims  *lru.Cache[string, []raster.SampleDimension]
}

func NewCached(inner Catalog, size int) (*Cached, error) {
	if size <= 0 {
		size = 256
	}
	vc, err := lru.New[string, *view.Definition](size)
	if err != nil {
		return nil, fmt.Errorf("view lru: %w", err)
	}
	dc, err := lru.New[string, []raster.SampleDimension](size)
	if err != nil {
		return nil, fmt.Errorf("dims lru: %w", err)
	}
	return &Cached{inner: inner, views: vc, dims: dc}, nil
}

func (c *Cached) View(ctx context.Context, name string) (*view.Definition, error) {
	key := NormalizeName(name)
	if def, ok := c.views.Get(key); ok {
		observability.IncCatalogHit()
		return def, nil
	}
	observability.IncCatalogMiss()
	def, err := c.inner.View(ctx, name)
	if err != nil {
		return nil, err
	}
	c.views.Add(key, def)
	return def, nil
}

func (c *Cached) Dimensions(ctx context.Context, name string) ([]raster.SampleDimension, error) {
	key := NormalizeName(name)
	if dims, ok := c.dims.Get(key); ok {
		observability.IncCatalogHit()
		return dims, nil
	}
	observability.IncCatalogMiss()
	dims, err := c.inner.Dimensions(ctx, name)
	if err != nil {
		return nil, err
	}
	c.dims.Add(key, dims)
	return dims, nil
}

// Invalidate drops the cached entries for one view.
func (c *Cached) Invalidate(name string) {
	key := NormalizeName(name)
	c.views.Remove(key)
	c.dims.Remove(key)
}
