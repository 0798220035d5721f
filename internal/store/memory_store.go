package store

import (
	"context"
	"sync"

	"github.com/davidahmann/coitrack/pkg/types"
)

// table keeps records in insertion order.
type table[T any] struct {
	order []string
	items map[string]T
}

func newTable[T any]() *table[T] {
	return &table[T]{items: make(map[string]T)}
}

func (t *table[T]) put(id string, v T) {
	if _, ok := t.items[id]; !ok {
		t.order = append(t.order, id)
	}
	t.items[id] = v
}

func (t *table[T]) get(id string) (T, bool) {
	v, ok := t.items[id]
	return v, ok
}

func (t *table[T]) delete(id string) bool {
	if _, ok := t.items[id]; !ok {
		return false
	}
	delete(t.items, id)
	for i, existing := range t.order {
		if existing == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

func (t *table[T]) list() []T {
	out := make([]T, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.items[id])
	}
	return out
}

type InMemoryStore struct {
	mu sync.Mutex

	documents *table[types.Document]
	vendors   *table[types.Vendor]
	buildings *table[types.Building]
	templates *table[types.Template]
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		documents: newTable[types.Document](),
		vendors:   newTable[types.Vendor](),
		buildings: newTable[types.Building](),
		templates: newTable[types.Template](),
	}
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) PutDocument(_ context.Context, doc types.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents.put(doc.ID, doc.Clone())
	return nil
}

func (s *InMemoryStore) GetDocument(_ context.Context, id string) (types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents.get(id)
	if !ok {
		return types.Document{}, ErrNotFound
	}
	return doc.Clone(), nil
}

func (s *InMemoryStore) ListDocuments(_ context.Context, q DocumentQuery) ([]types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []types.Document{}
	for _, doc := range s.documents.list() {
		if q.Matches(doc) {
			out = append(out, doc.Clone())
		}
	}
	return out, nil
}

func (s *InMemoryStore) PutVendor(_ context.Context, vendor types.Vendor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vendors.put(vendor.ID, vendor)
	return nil
}

func (s *InMemoryStore) GetVendor(_ context.Context, id string) (types.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vendor, ok := s.vendors.get(id)
	if !ok {
		return types.Vendor{}, ErrNotFound
	}
	return vendor, nil
}

func (s *InMemoryStore) ListVendors(_ context.Context) ([]types.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vendors.list(), nil
}

func (s *InMemoryStore) DeleteVendor(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.vendors.delete(id) {
		return ErrNotFound
	}
	return nil
}

func (s *InMemoryStore) PutBuilding(_ context.Context, building types.Building) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buildings.put(building.ID, building)
	return nil
}

func (s *InMemoryStore) GetBuilding(_ context.Context, id string) (types.Building, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	building, ok := s.buildings.get(id)
	if !ok {
		return types.Building{}, ErrNotFound
	}
	return building, nil
}

func (s *InMemoryStore) ListBuildings(_ context.Context) ([]types.Building, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildings.list(), nil
}

func (s *InMemoryStore) DeleteBuilding(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.buildings.delete(id) {
		return ErrNotFound
	}
	return nil
}

func (s *InMemoryStore) PutTemplate(_ context.Context, tpl types.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates.put(tpl.ID, tpl.Clone())
	return nil
}

func (s *InMemoryStore) GetTemplate(_ context.Context, id string) (types.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tpl, ok := s.templates.get(id)
	if !ok {
		return types.Template{}, ErrNotFound
	}
	return tpl.Clone(), nil
}

func (s *InMemoryStore) ListTemplates(_ context.Context) ([]types.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Template, 0, len(s.templates.order))
	for _, tpl := range s.templates.list() {
		out = append(out, tpl.Clone())
	}
	return out, nil
}

func (s *InMemoryStore) DeleteTemplate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.templates.delete(id) {
		return ErrNotFound
	}
	return nil
}
