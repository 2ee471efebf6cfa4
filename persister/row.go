package persister

import (
	"fmt"

	"github.com/goliatone/go-unitofwork/internal/identitymap"
	"github.com/goliatone/go-unitofwork/metadata"
)

// row builds column values for one table of a class. owns reports whether
// a field or association declared in the named class lives in the table.
type row struct {
	provider metadata.Provider
	class    *metadata.ClassMetadata
	owns     func(declaredIn string) bool
}

func allColumns(string) bool { return true }

func declaredBy(class string) func(string) bool {
	return func(declaredIn string) bool { return declaredIn == class }
}

// insertValues returns every column of the table. Identifier columns are
// left out while absent so storage can generate them.
func (r row) insertValues(entity any) (map[string]any, error) {
	values := make(map[string]any, len(r.class.Fields)+len(r.class.Associations))
	for _, f := range r.class.Fields {
		if !f.ID && !r.owns(f.DeclaredIn) {
			continue
		}
		v, err := r.class.Get(entity, f.Name)
		if err != nil {
			return nil, err
		}
		if f.ID && identitymap.IsAbsent(v) {
			continue
		}
		values[f.Column] = v
	}
	for _, a := range r.class.Associations {
		if a.Kind != metadata.OwningToOne || !r.owns(a.DeclaredIn) {
			continue
		}
		fk, err := r.foreignKey(entity, a)
		if err != nil {
			return nil, err
		}
		values[a.JoinColumn] = fk
	}
	return values, nil
}

// updateValues returns the columns of the table touched by changes.
func (r row) updateValues(entity any, changes ChangeSet) (map[string]any, error) {
	values := make(map[string]any, len(changes))
	for name, ch := range changes {
		if f, ok := r.class.Field(name); ok {
			if r.owns(f.DeclaredIn) || f.ID {
				values[f.Column] = ch.New
			}
			continue
		}
		a, ok := r.class.Association(name)
		if !ok || a.Kind != metadata.OwningToOne || !r.owns(a.DeclaredIn) {
			continue
		}
		fk, err := r.foreignKey(entity, a)
		if err != nil {
			return nil, err
		}
		values[a.JoinColumn] = fk
	}
	return values, nil
}

func (r row) foreignKey(entity any, a metadata.AssociationMapping) (any, error) {
	raw, err := r.class.Get(entity, a.Name)
	if err != nil {
		return nil, err
	}
	if metadata.IsNil(raw) {
		return r.joinFieldValue(entity, a)
	}
	return identifierOf(r.provider, raw)
}

// joinFieldValue reads the scalar mirror of a foreign key, so a reference
// can be written by identifier without loading the related entity.
func (r row) joinFieldValue(entity any, a metadata.AssociationMapping) (any, error) {
	if a.JoinField == "" {
		return nil, nil
	}
	v, err := r.class.Get(entity, a.JoinField)
	if err != nil {
		return nil, err
	}
	if identitymap.IsAbsent(v) {
		return nil, nil
	}
	return v, nil
}

// identifierOf returns the single identifier value of entity, or nil when
// it has not been assigned yet.
func identifierOf(provider metadata.Provider, entity any) (any, error) {
	class, err := provider.ClassFor(entity)
	if err != nil {
		return nil, err
	}
	ids, err := class.IdentifierValues(entity)
	if err != nil {
		return nil, err
	}
	if len(ids) != 1 {
		return nil, fmt.Errorf("%s: references need a single identifier, got %d", class.Name, len(ids))
	}
	if identitymap.IsAbsent(ids[0]) {
		return nil, nil
	}
	return ids[0], nil
}

type condition struct {
	column string
	value  any
}

// identifierConditions locates the stored row of entity. A changed
// identifier is matched by its previous value.
func identifierConditions(class *metadata.ClassMetadata, entity any, changes ChangeSet) ([]condition, error) {
	conds := make([]condition, 0, len(class.Identifier))
	for _, name := range class.Identifier {
		f, _ := class.Field(name)
		v, err := class.Get(entity, name)
		if err != nil {
			return nil, err
		}
		if ch, ok := changes[name]; ok {
			v = ch.Old
		}
		if identitymap.IsAbsent(v) {
			return nil, fmt.Errorf("%s: identifier %s is not assigned", class.Name, name)
		}
		conds = append(conds, condition{column: f.Column, value: v})
	}
	return conds, nil
}
