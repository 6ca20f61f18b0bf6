package kernel

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"vesiclegt/pkg/volume"
)

// DefaultCacheSize bounds the number of distinct ball shapes a Provider keeps.
// A session normally sees a handful of shapes, so eviction is rare.
const DefaultCacheSize = 64

// Provider hands out boolean ball masks and keeps one per distinct shape.
// A Provider is not safe for concurrent use.
type Provider struct {
	balls *lru.Cache[volume.Shape, *volume.Mask]

	// misses counts the masks built since the provider was created
	misses int
}

// Option configures a Provider
type Option func(*providerOptions)

type providerOptions struct {
	cacheSize int
}

// WithCacheSize sets the maximum number of cached ball shapes.
// The least recently used shape is evicted once the limit is reached.
func WithCacheSize(n int) Option {
	return func(o *providerOptions) {
		o.cacheSize = n
	}
}

// NewProvider creates a Provider with an empty cache
func NewProvider(opts ...Option) (*Provider, error) {
	o := providerOptions{cacheSize: DefaultCacheSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cacheSize < 1 {
		return nil, fmt.Errorf("ball cache size must be positive, got %d", o.cacheSize)
	}

	balls, err := lru.New[volume.Shape, *volume.Mask](o.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("error creating ball cache: %w", err)
	}
	return &Provider{balls: balls}, nil
}

// Ball returns the solid sphere mask for shape, building and caching it on
// first use. The returned mask is shared with the cache and must not be
// modified.
func (p *Provider) Ball(shape volume.Shape) (*volume.Mask, error) {
	if err := checkShape(shape); err != nil {
		return nil, err
	}
	if ball, ok := p.balls.Get(shape); ok {
		return ball, nil
	}

	ball := nearestBall(shape)
	p.balls.Add(shape, ball)
	p.misses++
	return ball, nil
}

// CacheLen returns the number of cached ball shapes
func (p *Provider) CacheLen() int {
	return p.balls.Len()
}

// Built returns how many masks the provider has constructed
func (p *Provider) Built() int {
	return p.misses
}
