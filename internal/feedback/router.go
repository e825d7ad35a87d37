package feedback

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hubenschmidt/mock-interview/client/internal/metrics"
)

// Router is a generic backend dispatcher that maps engine names to backend implementations.
// It provides O(1) lookup by name with a configurable fallback default.
type Router[T any] struct {
	backends map[string]T
	fallback string
}

// NewRouter creates a router with the given backends and a fallback engine name
// used when the requested engine is not found.
func NewRouter[T any](backends map[string]T, fallback string) *Router[T] {
	return &Router[T]{backends: backends, fallback: fallback}
}

// Route returns the backend for the given engine name, falling back to the default.
func (r *Router[T]) Route(engine string) (T, error) {
	if backend, ok := r.backends[engine]; ok {
		return backend, nil
	}
	if backend, ok := r.backends[r.fallback]; ok {
		return backend, nil
	}
	var zero T
	return zero, fmt.Errorf("no backend for engine %q", engine)
}

// Engines returns the registered engine names, sorted.
func (r *Router[T]) Engines() []string {
	names := make([]string, 0, len(r.backends))
	for k := range r.backends {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// EngineRouter is a Requester bound to one configured engine.
type EngineRouter struct {
	*Router[Requester]
	engine string
}

func NewEngineRouter(backends map[string]Requester, engine, fallback string) *EngineRouter {
	return &EngineRouter{Router: NewRouter(backends, fallback), engine: engine}
}

func (r *EngineRouter) RequestFeedback(ctx context.Context, question, response string) (Result, error) {
	backend, err := r.Route(r.engine)
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	result, err := backend.RequestFeedback(ctx, question, response)
	metrics.FeedbackDuration.Observe(time.Since(start).Seconds())
	return result, err
}
