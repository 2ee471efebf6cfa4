package unitofwork

import (
	"fmt"

	"github.com/goliatone/go-unitofwork/metadata"
)

// CreateOrUpdateManaged registers a freshly loaded row. row is keyed by
// column or field name; a discriminator column selects the concrete class
// of inheritance hierarchies.
//
// When the identity is already managed, the existing instance is returned
// and row values are merged only into fields without local changes. The
// snapshot always takes the stored values. Otherwise a new instance is
// filled, registered and snapshotted.
func (u *UnitOfWork) CreateOrUpdateManaged(class string, row map[string]any) (any, error) {
	c, err := u.metadata.Class(class)
	if err != nil {
		return nil, err
	}
	if c, err = u.concreteClass(c, row); err != nil {
		return nil, err
	}

	// scratch converts row values to the field types before they are compared.
	scratch := c.NewInstance()
	for _, id := range c.Identifier {
		f, _ := c.Field(id)
		if v, ok := rowValue(row, f.Column, f.Name); ok {
			if err := c.Set(scratch, id, v); err != nil {
				return nil, err
			}
		}
	}
	key, err := u.keyOf(c, scratch)
	if err != nil {
		return nil, err
	}
	if !key.Valid() {
		return nil, missingIdentityError(errorContext{entity: c.Name}, "row for %s has no identifier", c.Name)
	}

	if existing, ok := u.identities.Lookup(key.Root, key.Hash); ok {
		if ec, err := u.classOf(existing); err == nil && ec.Name != c.Name {
			c, scratch = ec, ec.NewInstance()
		}
		return existing, u.merge(c, existing, scratch, row)
	}

	if err := fill(c, scratch, row); err != nil {
		return nil, err
	}
	if !u.identities.Register(key, scratch) {
		return nil, duplicateIdentityError(u.errorContext(c, scratch))
	}
	u.states[scratch] = StateManaged
	if err := u.capture(scratch, false); err != nil {
		return nil, err
	}
	return scratch, nil
}

// SetOriginalField overwrites one field of the snapshot of entity.
func (u *UnitOfWork) SetOriginalField(entity any, field string, value any) {
	u.snapshots.SetField(entity, field, value)
}

func (u *UnitOfWork) concreteClass(c *metadata.ClassMetadata, row map[string]any) (*metadata.ClassMetadata, error) {
	if c.Inheritance == metadata.InheritanceNone {
		return c, nil
	}
	root, err := u.metadata.Class(c.RootName)
	if err != nil {
		return nil, err
	}
	raw, ok := row[root.DiscriminatorColumn]
	if !ok || raw == nil {
		return c, nil
	}
	value := fmt.Sprint(raw)
	if b, isBytes := raw.([]byte); isBytes {
		value = string(b)
	}
	name, ok := root.DiscriminatorMap[value]
	if !ok {
		return nil, invalidStateError(errorContext{entity: root.Name},
			"unknown discriminator value %q for %s", value, root.Name)
	}
	return u.metadata.Class(name)
}

// fill sets every field present in row.
func fill(c *metadata.ClassMetadata, entity any, row map[string]any) error {
	for _, f := range c.Fields {
		if v, ok := rowValue(row, f.Column, f.Name); ok {
			if err := c.Set(entity, f.Name, v); err != nil {
				return err
			}
		}
	}
	for _, a := range c.Associations {
		if v, ok := row[a.Name]; ok {
			if err := c.Set(entity, a.Name, v); err != nil {
				return err
			}
		}
		if a.Kind == metadata.OwningToOne && a.JoinField != "" {
			if v, ok := row[a.JoinColumn]; ok {
				if err := c.Set(entity, a.JoinField, v); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// merge refreshes existing from row. scratch receives the converted row
// values; fields whose current value differs from the snapshot keep it.
func (u *UnitOfWork) merge(c *metadata.ClassMetadata, existing, scratch any, row map[string]any) error {
	if err := fill(c, scratch, row); err != nil {
		return err
	}
	for _, f := range c.Fields {
		if _, ok := rowValue(row, f.Column, f.Name); !ok {
			continue
		}
		stored := c.MustGet(scratch, f.Name)
		snap, _ := u.snapshots.Field(existing, f.Name)
		if sameValue(c.MustGet(existing, f.Name), snap) {
			if err := c.Set(existing, f.Name, stored); err != nil {
				return err
			}
		}
		u.snapshots.SetField(existing, f.Name, stored)
	}
	for _, a := range c.Associations {
		if _, ok := row[a.Name]; !ok || !a.IsToOne() {
			continue
		}
		stored := c.MustGet(scratch, a.Name)
		if metadata.IsNil(stored) {
			stored = nil
		}
		snap, _ := u.snapshots.Field(existing, a.Name)
		if sameEntity(c.MustGet(existing, a.Name), snap) {
			if err := c.Set(existing, a.Name, stored); err != nil {
				return err
			}
		}
		u.snapshots.SetField(existing, a.Name, stored)
	}
	return nil
}

func rowValue(row map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if k == "" {
			continue
		}
		if v, ok := row[k]; ok {
			return v, true
		}
	}
	return nil, false
}
