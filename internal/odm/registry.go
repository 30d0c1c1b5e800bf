package odm

import (
	"fmt"
	"sync"
)

// Registry — модели одной логической базы в порядке создания.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	models map[string]*Model
}

func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*Model)}
}

// Add регистрирует модель; имя должно быть уникальным.
func (r *Registry) Add(m *Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.models[m.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateModel, m.Name())
	}
	r.order = append(r.order, m.Name())
	r.models[m.Name()] = m
	return nil
}

func (r *Registry) Get(name string) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	return m, ok
}

// List — модели в порядке регистрации.
func (r *Registry) List() []*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Model, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.models[name])
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
