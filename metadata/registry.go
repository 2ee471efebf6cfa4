package metadata

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// Provider resolves class metadata by name or by entity instance.
type Provider interface {
	Class(name string) (*ClassMetadata, error)
	ClassFor(entity any) (*ClassMetadata, error)
}

// Registry holds class metadata keyed by class name. Lookups are safe for
// concurrent use; registrations are serialized.
type Registry struct {
	mu      sync.Mutex
	classes *xsync.MapOf[string, *ClassMetadata]
	types   *xsync.MapOf[reflect.Type, string]
	bound   *xsync.MapOf[string, reflect.Type]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		classes: xsync.NewMapOf[string, *ClassMetadata](),
		types:   xsync.NewMapOf[reflect.Type, string](),
		bound:   xsync.NewMapOf[string, reflect.Type](),
	}
}

var _ Provider = (*Registry)(nil)

// Bind associates a class name with the struct type of sample without
// registering a mapping. Drivers that read mappings from files use the
// binding to find the Go type behind a class name.
func (r *Registry) Bind(name string, sample any) error {
	typ, err := structType(sample)
	if err != nil {
		return mappingError(name, err)
	}
	if prev, ok := r.bound.Load(name); ok && prev != typ {
		return mappingErrorf(name, "class %s already bound to %s", name, prev)
	}
	r.bound.Store(name, typ)
	r.types.Store(typ, name)
	return nil
}

// BoundType returns the struct type bound to name.
func (r *Registry) BoundType(name string) (reflect.Type, bool) {
	return r.bound.Load(name)
}

// NameOf returns the class name bound to entity's type.
func (r *Registry) NameOf(entity any) (string, bool) {
	typ, err := structType(entity)
	if err != nil {
		return "", false
	}
	return r.types.Load(typ)
}

// Class returns the registered metadata for name.
func (r *Registry) Class(name string) (*ClassMetadata, error) {
	if c, ok := r.classes.Load(name); ok {
		return c, nil
	}
	return nil, mappingErrorf(name, "class %s is not mapped", name)
}

// ClassFor returns the metadata of entity's concrete type.
func (r *Registry) ClassFor(entity any) (*ClassMetadata, error) {
	name, ok := r.NameOf(entity)
	if !ok {
		return nil, mappingErrorf(fmt.Sprintf("%T", entity), "type %T is not mapped", entity)
	}
	return r.Class(name)
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.classes.Load(name)
	return ok
}

// ClassNames lists registered classes in lexical order.
func (r *Registry) ClassNames() []string {
	names := make([]string, 0, r.classes.Size())
	r.classes.Range(func(name string, _ *ClassMetadata) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// Register completes class with defaults, inherits from its parent and
// stores it. sample is a pointer to (or value of) the entity struct; it may
// be nil when the name was bound with Bind. Parents must be registered
// before their subclasses.
func (r *Registry) Register(sample any, class ClassMetadata) (*ClassMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	typ, err := r.resolveType(sample, class.Name)
	if err != nil {
		return nil, err
	}
	if class.Name == "" {
		class.Name = typ.Name()
	}
	if r.Has(class.Name) {
		return nil, mappingErrorf(class.Name, "class %s is already mapped", class.Name)
	}
	class.Type = typ
	class.accessor = newAccessor(typ)

	var parent *ClassMetadata
	if class.Parent != "" {
		p, ok := r.classes.Load(class.Parent)
		if !ok {
			return nil, mappingErrorf(class.Name, "parent %s of %s is not mapped", class.Parent, class.Name)
		}
		parent = p
		inherit(&class, parent)
	} else {
		class.RootName = class.Name
		if class.Table == "" {
			class.Table = TableName(class.Name)
		}
	}

	if err := complete(&class); err != nil {
		return nil, err
	}

	stored := &class
	r.classes.Store(class.Name, stored)
	r.types.Store(typ, class.Name)
	r.bound.Store(class.Name, typ)

	if class.Inheritance != InheritanceNone {
		r.linkHierarchy(stored)
	}
	return stored, nil
}

func (r *Registry) resolveType(sample any, name string) (reflect.Type, error) {
	if sample != nil {
		typ, err := structType(sample)
		if err != nil {
			return nil, mappingError(name, err)
		}
		return typ, nil
	}
	if typ, ok := r.bound.Load(name); ok {
		return typ, nil
	}
	return nil, mappingErrorf(name, "no Go type bound to class %q", name)
}

func inherit(class *ClassMetadata, parent *ClassMetadata) {
	class.RootName = parent.RootName
	class.Inheritance = parent.Inheritance
	class.DiscriminatorColumn = parent.DiscriminatorColumn
	class.Generator = parent.Generator
	if len(class.Identifier) == 0 {
		class.Identifier = append([]string(nil), parent.Identifier...)
	}

	switch parent.Inheritance {
	case InheritanceSingleTable:
		class.Table = parent.Table
	default:
		if class.Table == "" {
			class.Table = TableName(class.Name)
		}
	}

	own := class.Fields
	class.Fields = make([]FieldMapping, 0, len(parent.Fields)+len(own))
	class.Fields = append(class.Fields, parent.Fields...)
	for _, f := range own {
		if f.DeclaredIn == "" {
			f.DeclaredIn = class.Name
		}
		class.Fields = append(class.Fields, f)
	}

	ownAssoc := class.Associations
	class.Associations = make([]AssociationMapping, 0, len(parent.Associations)+len(ownAssoc))
	class.Associations = append(class.Associations, parent.Associations...)
	for _, a := range ownAssoc {
		if a.DeclaredIn == "" {
			a.DeclaredIn = class.Name
		}
		class.Associations = append(class.Associations, a)
	}
}

func complete(class *ClassMetadata) error {
	if len(class.Identifier) == 0 {
		for _, f := range class.Fields {
			if f.ID {
				class.Identifier = append(class.Identifier, f.Name)
			}
		}
	}
	if len(class.Identifier) == 0 {
		return mappingErrorf(class.Name, "class %s has no identifier", class.Name)
	}
	if class.Generator != GeneratorAssigned && len(class.Identifier) > 1 {
		return mappingErrorf(class.Name, "class %s: generated identifiers cannot be composite", class.Name)
	}

	seen := make(map[string]bool, len(class.Fields))
	for i := range class.Fields {
		f := &class.Fields[i]
		if seen[f.Name] {
			return mappingErrorf(class.Name, "field %s is mapped twice", f.Name)
		}
		seen[f.Name] = true
		if !class.accessor.has(f.Name) {
			return mappingErrorf(class.Name, "type %s has no field %s", class.Type, f.Name)
		}
		if f.Column == "" {
			f.Column = ColumnName(f.Name)
		}
		if f.DeclaredIn == "" {
			f.DeclaredIn = class.Name
		}
		f.ID = class.IsIdentifier(f.Name)
	}
	for _, id := range class.Identifier {
		if !seen[id] {
			return mappingErrorf(class.Name, "identifier %s is not a mapped field", id)
		}
	}

	for i := range class.Associations {
		a := &class.Associations[i]
		if seen[a.Name] {
			return mappingErrorf(class.Name, "field %s is mapped twice", a.Name)
		}
		seen[a.Name] = true
		if !class.accessor.has(a.Name) {
			return mappingErrorf(class.Name, "type %s has no field %s", class.Type, a.Name)
		}
		if a.Target == "" {
			return mappingErrorf(class.Name, "association %s has no target", a.Name)
		}
		if a.DeclaredIn == "" {
			a.DeclaredIn = class.Name
		}
		switch a.Kind {
		case OwningToOne:
			if a.JoinColumn == "" {
				a.JoinColumn = ColumnName(a.Name) + "_id"
			}
			if a.JoinField != "" && !class.accessor.has(a.JoinField) {
				return mappingErrorf(class.Name, "join field %s of %s does not exist", a.JoinField, a.Name)
			}
		case InverseToOne, InverseToMany:
			if a.MappedBy == "" {
				return mappingErrorf(class.Name, "inverse association %s needs mappedBy", a.Name)
			}
		}
		if a.UsesJoinTable() {
			jt := JoinTable{}
			if a.JoinTable != nil {
				jt = *a.JoinTable
			}
			if jt.Name == "" {
				jt.Name = JoinTableName(a.DeclaredIn, a.Name)
			}
			if jt.JoinColumn == "" {
				jt.JoinColumn = ForeignKeyName(a.DeclaredIn)
			}
			if jt.InverseJoinColumn == "" {
				jt.InverseJoinColumn = ForeignKeyName(a.Target)
			}
			a.JoinTable = &jt
		}
	}

	if class.Inheritance != InheritanceNone {
		if class.DiscriminatorColumn == "" {
			class.DiscriminatorColumn = "dtype"
		}
		if class.DiscriminatorValue == "" {
			class.DiscriminatorValue = class.Name
		}
	}
	return nil
}

// linkHierarchy records class in the discriminator map of its root and in
// the subclass list of every ancestor. Stored metadata is replaced rather
// than mutated so concurrent readers never observe a partial update.
func (r *Registry) linkHierarchy(class *ClassMetadata) {
	root, _ := r.classes.Load(class.RootName)
	next := *root
	next.DiscriminatorMap = make(map[string]string, len(root.DiscriminatorMap)+1)
	for k, v := range root.DiscriminatorMap {
		next.DiscriminatorMap[k] = v
	}
	next.DiscriminatorMap[class.DiscriminatorValue] = class.Name
	r.classes.Store(next.Name, &next)

	for parentName := class.Parent; parentName != ""; {
		p, ok := r.classes.Load(parentName)
		if !ok {
			return
		}
		updated := *p
		updated.Subclasses = append(append([]string(nil), p.Subclasses...), class.Name)
		r.classes.Store(updated.Name, &updated)
		parentName = updated.Parent
	}
}

// IsSubclassOf reports whether class descends from ancestor.
func (r *Registry) IsSubclassOf(class, ancestor string) bool {
	for name := class; name != ""; {
		c, ok := r.classes.Load(name)
		if !ok {
			return false
		}
		if c.Parent == ancestor {
			return true
		}
		name = c.Parent
	}
	return false
}

func structType(sample any) (reflect.Type, error) {
	if sample == nil {
		return nil, fmt.Errorf("nil entity")
	}
	typ := reflect.TypeOf(sample)
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("entity must be a struct or pointer to struct, got %T", sample)
	}
	return typ, nil
}
