// Package identitymap indexes managed entity instances by hierarchy root and
// identity hash, guaranteeing one in-memory instance per stored identity.
package identitymap

import "sort"

// Key addresses one identity: the root class of the entity's hierarchy and
// the identity hash of its identifier.
type Key struct {
	Root string
	Hash string
}

// Valid reports whether the key can be indexed.
func (k Key) Valid() bool {
	return k.Root != "" && k.Hash != ""
}

type entry struct {
	entity any
	seq    uint64
}

// Registry maps identities to entity instances. Entities are compared by
// identity, so they must be pointers. A Registry is not safe for
// concurrent use.
type Registry struct {
	byKey    map[string]map[string]entry
	byEntity map[any]Key
	seq      uint64
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byKey:    make(map[string]map[string]entry),
		byEntity: make(map[any]Key),
	}
}

// Register indexes entity under key. It returns false when the key is
// invalid, when another entity already holds the key, or when entity is
// already registered.
func (r *Registry) Register(key Key, entity any) bool {
	if !key.Valid() || entity == nil {
		return false
	}
	if _, ok := r.byEntity[entity]; ok {
		return false
	}
	root := r.byKey[key.Root]
	if root == nil {
		root = make(map[string]entry)
		r.byKey[key.Root] = root
	}
	if _, taken := root[key.Hash]; taken {
		return false
	}
	r.seq++
	root[key.Hash] = entry{entity: entity, seq: r.seq}
	r.byEntity[entity] = key
	return true
}

// Lookup returns the entity registered under root and hash.
func (r *Registry) Lookup(root, hash string) (any, bool) {
	e, ok := r.byKey[root][hash]
	if !ok {
		return nil, false
	}
	return e.entity, true
}

// Remove drops entity from the registry, returning false if it was not
// registered.
func (r *Registry) Remove(entity any) bool {
	key, ok := r.byEntity[entity]
	if !ok {
		return false
	}
	delete(r.byEntity, entity)
	root := r.byKey[key.Root]
	delete(root, key.Hash)
	if len(root) == 0 {
		delete(r.byKey, key.Root)
	}
	return true
}

// IsRegistered reports whether entity is indexed.
func (r *Registry) IsRegistered(entity any) bool {
	_, ok := r.byEntity[entity]
	return ok
}

// KeyOf returns the key entity is registered under.
func (r *Registry) KeyOf(entity any) (Key, bool) {
	k, ok := r.byEntity[entity]
	return k, ok
}

// Size returns the number of registered entities.
func (r *Registry) Size() int {
	return len(r.byEntity)
}

// Entities lists the entities of one root in registration order. An empty
// root lists every entity.
func (r *Registry) Entities(root string) []any {
	var entries []entry
	if root == "" {
		for _, m := range r.byKey {
			for _, e := range m {
				entries = append(entries, e)
			}
		}
	} else {
		for _, e := range r.byKey[root] {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]any, len(entries))
	for i, e := range entries {
		out[i] = e.entity
	}
	return out
}

// RemoveAll drops every entity of root and returns them in registration order.
func (r *Registry) RemoveAll(root string) []any {
	removed := r.Entities(root)
	for _, e := range removed {
		r.Remove(e)
	}
	return removed
}

// Clear drops every entity.
func (r *Registry) Clear() {
	r.byKey = make(map[string]map[string]entry)
	r.byEntity = make(map[any]Key)
}
