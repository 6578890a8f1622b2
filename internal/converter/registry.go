package converter

import (
	"context"
	"sync"

	"pdf-markdown-service/internal/entity"
)

// Registry caches one backend per mode for the lifetime of the process, so
// repeated conversions don't pay engine initialization again. Lazy creation
// is serialized: two concurrent first calls for a mode build one backend.
type Registry struct {
	mu      sync.Mutex
	factory func(entity.Mode) Backend
	byMode  map[entity.Mode]Backend
}

func NewRegistry(factory func(entity.Mode) Backend) *Registry {
	return &Registry{
		factory: factory,
		byMode:  make(map[entity.Mode]Backend),
	}
}

// Backend returns the cached backend for mode, creating it on first use.
func (r *Registry) Backend(mode entity.Mode) Backend {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.byMode[mode]
	if !ok {
		b = r.factory(mode)
		r.byMode[mode] = b
	}
	return b
}

// Convert runs a conversion through the cached backend for mode.
func (r *Registry) Convert(ctx context.Context, filePath string, mode entity.Mode) (string, error) {
	return r.Backend(mode).Convert(ctx, filePath)
}
