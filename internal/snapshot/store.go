// Package snapshot keeps the field values each entity had when it was last
// synchronized with storage.
package snapshot

import "reflect"

// Data maps field names to values.
type Data map[string]any

// Option configures a Store.
type Option func(*Store)

// WithReferences keeps the values for which isRef returns true as they are
// instead of copying them. Entity pointers held by associations must be
// kept this way, they are compared by instance.
func WithReferences(isRef func(v any) bool) Option {
	return func(s *Store) {
		s.isRef = isRef
	}
}

// Store holds one snapshot per entity instance. It is not safe for
// concurrent use.
type Store struct {
	data  map[any]Data
	isRef func(v any) bool
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{data: make(map[any]Data)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// clone copies d. Slices, maps and pointers to values are copied so that
// changes made through the entity do not leak into the snapshot.
func (s *Store) clone(d Data) Data {
	if d == nil {
		return nil
	}
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = s.copyValue(v)
	}
	return out
}

func (s *Store) copyValue(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return v
		}
		cp := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(cp, rv)
		return cp.Interface()
	case reflect.Map:
		if rv.IsNil() {
			return v
		}
		cp := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			cp.SetMapIndex(iter.Key(), iter.Value())
		}
		return cp.Interface()
	case reflect.Pointer:
		if rv.IsNil() || (s.isRef != nil && s.isRef(v)) {
			return v
		}
		cp := reflect.New(rv.Type().Elem())
		cp.Elem().Set(rv.Elem())
		return cp.Interface()
	}
	return v
}

// Capture stores a copy of data for entity, replacing any previous snapshot.
func (s *Store) Capture(entity any, data Data) {
	s.data[entity] = s.clone(data)
}

// Get returns a copy of the snapshot of entity.
func (s *Store) Get(entity any) (Data, bool) {
	d, ok := s.data[entity]
	if !ok {
		return nil, false
	}
	return s.clone(d), true
}

// Has reports whether entity has a snapshot.
func (s *Store) Has(entity any) bool {
	_, ok := s.data[entity]
	return ok
}

// Field returns one snapshot value.
func (s *Store) Field(entity any, field string) (any, bool) {
	d, ok := s.data[entity]
	if !ok {
		return nil, false
	}
	v, ok := d[field]
	return v, ok
}

// SetField updates one value of an existing snapshot, creating the
// snapshot if entity has none.
func (s *Store) SetField(entity any, field string, value any) {
	d, ok := s.data[entity]
	if !ok {
		d = make(Data)
		s.data[entity] = d
	}
	d[field] = s.copyValue(value)
}

// Remove drops the snapshot of entity.
func (s *Store) Remove(entity any) {
	delete(s.data, entity)
}

// Clear drops every snapshot.
func (s *Store) Clear() {
	s.data = make(map[any]Data)
}

// Len returns the number of snapshots held.
func (s *Store) Len() int {
	return len(s.data)
}
