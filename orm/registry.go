package orm

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// Registry maps "app.model" labels and Go types to model metadata.
type Registry struct {
	mu      sync.RWMutex
	byLabel map[string]*Model
	byType  map[reflect.Type]*Model
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byLabel: make(map[string]*Model),
		byType:  make(map[reflect.Type]*Model),
	}
}

// Register validates and adds models. Registering a label twice fails.
func (r *Registry) Register(models ...*Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range models {
		if err := m.Validate(); err != nil {
			return err
		}
		label := m.Label()
		if _, exists := r.byLabel[label]; exists {
			return fmt.Errorf("%w: %s registered twice", ErrInvalidModel, label)
		}
		r.byLabel[label] = m
		if m.Type != nil {
			r.byType[m.Type] = m
		}
	}
	return nil
}

// MustRegister is Register for package-level setup; it panics on error.
func (r *Registry) MustRegister(models ...*Model) *Registry {
	if err := r.Register(models...); err != nil {
		panic(err)
	}
	return r
}

// Get looks a model up by label, case-insensitively.
func (r *Registry) Get(label string) (*Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.byLabel[strings.ToLower(label)]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownModel, label)
}

// ModelOf returns the model of an instance, a Ref or a *Record.
func (r *Registry) ModelOf(obj any) (*Model, bool) {
	switch v := obj.(type) {
	case *Record:
		return v.Model, v.Model != nil
	case Ref:
		return v.Model, v.Model != nil
	case nil:
		return nil, false
	}
	t := reflect.TypeOf(obj)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return r.ModelFor(t)
}

// ModelFor returns the model backed by struct type t.
func (r *Registry) ModelFor(t reflect.Type) (*Model, bool) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byType[t]
	return m, ok
}

// Target resolves the related model of a relation field.
func (r *Registry) Target(f Field) (*Model, error) {
	if !f.IsRelation() {
		return nil, fmt.Errorf("%w: %s is not a relation", ErrInvalidModel, f.Name)
	}
	return r.Get(f.Target)
}

// Models returns every registered model sorted by label.
func (r *Registry) Models() []*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Model, 0, len(r.byLabel))
	for _, m := range r.byLabel {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label() < out[j].Label() })
	return out
}
