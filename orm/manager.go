package orm

import (
	"context"
	"fmt"
	"sync"

	"github.com/hengadev/serializers/internal/access"
	"github.com/hengadev/serializers/primitive"
)

// Manager is the lookup contract used when references are reverted.
type Manager interface {
	// Get returns the instance of m whose primary key is pk.
	Get(ctx context.Context, m *Model, pk any) (any, error)
	// GetByNaturalKey returns the instance of m identified by key.
	GetByNaturalKey(ctx context.Context, m *Model, key []any) (any, error)
}

// Saver persists reverted objects.
type Saver interface {
	Save(ctx context.Context, obj *DeserializedObject) error
}

// MemoryStore is an in-process Manager and Saver keyed by model label.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]any
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]any)}
}

// Add stores instances of m and makes the store m's manager when m has none.
func (s *MemoryStore) Add(m *Model, objs ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[m.Label()] = append(s.objects[m.Label()], objs...)
	if m.Manager == nil {
		m.Manager = s
	}
}

// All returns the stored instances of m as a Collection.
func (s *MemoryStore) All(m *Model) QuerySet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]any, len(s.objects[m.Label()]))
	copy(items, s.objects[m.Label()])
	return QuerySet{Model: m, Items: items}
}

func (s *MemoryStore) Get(_ context.Context, m *Model, pk any) (any, error) {
	want, _ := primitive.Normalize(pk)
	return s.find(m, fmt.Sprintf("pk=%v", pk), func(obj any) bool {
		got, err := m.PKOf(obj)
		if err != nil {
			return false
		}
		got, _ = primitive.Normalize(got)
		return sameKey(got, want)
	})
}

func (s *MemoryStore) GetByNaturalKey(_ context.Context, m *Model, key []any) (any, error) {
	return s.find(m, fmt.Sprintf("natural key %v", key), func(obj any) bool {
		got, err := m.NaturalKeyOf(obj)
		if err != nil || len(got) != len(key) {
			return false
		}
		for i := range got {
			a, _ := primitive.Normalize(got[i])
			b, _ := primitive.Normalize(key[i])
			if !sameKey(a, b) {
				return false
			}
		}
		return true
	})
}

// Save stores the object, replacing one with the same primary key. Relations
// kept apart by Build are written back onto Record instances.
func (s *MemoryStore) Save(_ context.Context, d *DeserializedObject) error {
	if rec, ok := d.Object.(*Record); ok {
		for name, value := range d.Relations {
			rec.Values[name] = value
		}
		for name, items := range d.ManyToMany {
			rec.Values[name] = items
		}
	} else {
		for name, value := range d.Relations {
			// struct models without a matching attribute keep the relation on d
			_ = access.Set(d.Object, name, value)
		}
	}
	pk := d.PK()
	s.mu.Lock()
	defer s.mu.Unlock()
	label := d.Model.Label()
	for i, existing := range s.objects[label] {
		got, err := d.Model.PKOf(existing)
		if err == nil && pk != nil && sameKey(normalized(got), normalized(pk)) {
			s.objects[label][i] = d.Object
			return nil
		}
	}
	s.objects[label] = append(s.objects[label], d.Object)
	if d.Model.Manager == nil {
		d.Model.Manager = s
	}
	return nil
}

func (s *MemoryStore) find(m *Model, desc string, match func(any) bool) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found any
	for _, obj := range s.objects[m.Label()] {
		if !match(obj) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: %s %s", ErrMultipleResults, m.Label(), desc)
		}
		found = obj
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, m.Label(), desc)
	}
	return found, nil
}

func normalized(v any) any {
	n, _ := primitive.Normalize(v)
	return n
}

// sameKey compares normalised key parts, treating numeric strings and
// integers as equal since parsed input often carries keys as text.
func sameKey(a, b any) bool {
	if a == b {
		return true
	}
	return a != nil && b != nil && fmt.Sprint(a) == fmt.Sprint(b)
}
