package telescope

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
)

// ErrNotFound is returned for unknown telescope ids.
var ErrNotFound = errors.New("telescope not found")

// Registry holds the fleet. Telescopes are added before Run; lookups are
// read-only afterwards, so a plain map suffices.
type Registry struct {
	logger *log.Logger
	byID   map[string]*Telescope
}

func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{logger: logger, byID: make(map[string]*Telescope)}
}

func (r *Registry) Add(t *Telescope) {
	r.byID[t.ID()] = t
}

func (r *Registry) Get(id string) (*Telescope, error) {
	t, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

// List returns the fleet ordered by id.
func (r *Registry) List() []*Telescope {
	out := make([]*Telescope, 0, len(r.byID))
	for _, t := range r.byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Run starts every telescope pipeline and blocks until ctx is canceled.
// A faulted telescope stays registered so its status remains queryable,
// and the rest of the fleet keeps running.
func (r *Registry) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, t := range r.List() {
		wg.Add(1)
		go func(t *Telescope) {
			defer wg.Done()
			if err := t.Run(ctx); err != nil && ctx.Err() == nil {
				r.logger.Printf("telescope %s stopped: %v", t.ID(), err)
			}
		}(t)
	}
	wg.Wait()
}
