package metadata

import (
	"fmt"
	"reflect"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// AssociationKind tags the shape of an association. Every consumer dispatches
// on it with a single switch.
type AssociationKind int

const (
	// OwningToOne holds the foreign key (one-to-one owning side or many-to-one).
	OwningToOne AssociationKind = iota
	// InverseToOne mirrors an OwningToOne on the other entity.
	InverseToOne
	// OwningToMany is a unidirectional one-to-many stored in a join table.
	OwningToMany
	// InverseToMany mirrors a many-to-one (mappedBy).
	InverseToMany
	// ManyToMany is owning when MappedBy is empty.
	ManyToMany
)

func (k AssociationKind) String() string {
	switch k {
	case OwningToOne:
		return "owning_to_one"
	case InverseToOne:
		return "inverse_to_one"
	case OwningToMany:
		return "owning_to_many"
	case InverseToMany:
		return "inverse_to_many"
	case ManyToMany:
		return "many_to_many"
	default:
		return "unknown"
	}
}

// Cascade is a set of operations propagated along an association.
type Cascade uint8

const (
	CascadeSave Cascade = 1 << iota
	CascadeDelete

	CascadeNone Cascade = 0
	CascadeAll          = CascadeSave | CascadeDelete
)

// Has reports whether every operation in op is part of c.
func (c Cascade) Has(op Cascade) bool {
	return op != 0 && c&op == op
}

// GeneratorType selects how identifiers are produced.
type GeneratorType int

const (
	// GeneratorAssigned leaves identifiers to the application.
	GeneratorAssigned GeneratorType = iota
	// GeneratorUUID assigns a random UUID before the insert.
	GeneratorUUID
	// GeneratorIdentity lets storage assign the identifier on insert.
	GeneratorIdentity
)

func (g GeneratorType) String() string {
	switch g {
	case GeneratorAssigned:
		return "assigned"
	case GeneratorUUID:
		return "uuid"
	case GeneratorIdentity:
		return "identity"
	default:
		return "unknown"
	}
}

// ParseGenerator maps a mapping-file strategy name to a GeneratorType.
func ParseGenerator(s string) (GeneratorType, error) {
	switch s {
	case "", "assigned", "none", "NONE":
		return GeneratorAssigned, nil
	case "uuid", "UUID":
		return GeneratorUUID, nil
	case "identity", "auto", "IDENTITY", "AUTO":
		return GeneratorIdentity, nil
	}
	return GeneratorAssigned, fmt.Errorf("unknown generator strategy %q", s)
}

// InheritanceType describes how a hierarchy maps onto tables.
type InheritanceType int

const (
	InheritanceNone InheritanceType = iota
	InheritanceSingleTable
	InheritanceJoined
)

// ParseInheritance maps a mapping-file inheritance name to an InheritanceType.
func ParseInheritance(s string) (InheritanceType, error) {
	switch s {
	case "", "none":
		return InheritanceNone, nil
	case "singleTable", "single_table", "SINGLE_TABLE":
		return InheritanceSingleTable, nil
	case "joined", "JOINED":
		return InheritanceJoined, nil
	}
	return InheritanceNone, fmt.Errorf("unknown inheritance type %q", s)
}

// FieldMapping maps one scalar struct field onto a column.
type FieldMapping struct {
	// Name is the Go struct field name.
	Name   string
	Column string
	ID     bool
	// Rules are checked against new values during change-set computation.
	Rules []validation.Rule
	// DeclaredIn is the class that declares the field. Filled on registration.
	DeclaredIn string
}

// JoinTable describes the link table of an owning collection.
type JoinTable struct {
	Name string
	// JoinColumn references the owning entity.
	JoinColumn string
	// InverseJoinColumn references the target entity.
	InverseJoinColumn string
}

// AssociationMapping maps a struct field holding related entities.
type AssociationMapping struct {
	Name     string
	Target   string
	Kind     AssociationKind
	MappedBy string
	// JoinColumn is the foreign key column of an OwningToOne.
	JoinColumn string
	// JoinField optionally names a scalar field mirroring the foreign key.
	JoinField string
	JoinTable *JoinTable
	Cascade   Cascade
	// DeclaredIn is the class that declares the association. Filled on registration.
	DeclaredIn string
}

// IsOwningSide reports whether the association carries the foreign key or join rows.
func (a AssociationMapping) IsOwningSide() bool {
	switch a.Kind {
	case OwningToOne, OwningToMany:
		return true
	case ManyToMany:
		return a.MappedBy == ""
	default:
		return false
	}
}

// IsToOne reports whether the field holds a single entity pointer.
func (a AssociationMapping) IsToOne() bool {
	switch a.Kind {
	case OwningToOne, InverseToOne:
		return true
	default:
		return false
	}
}

// IsCollection reports whether the field holds a slice of entity pointers.
func (a AssociationMapping) IsCollection() bool {
	return !a.IsToOne()
}

// UsesJoinTable reports whether the association is persisted as link rows.
func (a AssociationMapping) UsesJoinTable() bool {
	return a.IsCollection() && a.IsOwningSide()
}

// ClassMetadata is the mapping of one entity type.
type ClassMetadata struct {
	Name string
	// Type is the struct type (not the pointer) backing the entity.
	Type  reflect.Type
	Table string

	// Parent names the mapped superclass, empty for roots.
	Parent     string
	RootName   string
	Subclasses []string

	Inheritance         InheritanceType
	DiscriminatorColumn string
	DiscriminatorValue  string
	// DiscriminatorMap maps discriminator values to class names. Root only.
	DiscriminatorMap map[string]string

	Fields       []FieldMapping
	Identifier   []string
	Generator    GeneratorType
	Associations []AssociationMapping

	accessor *accessor
}

// FieldNames lists scalar fields followed by association fields, in mapping order.
func (c *ClassMetadata) FieldNames() []string {
	names := make([]string, 0, len(c.Fields)+len(c.Associations))
	for _, f := range c.Fields {
		names = append(names, f.Name)
	}
	for _, a := range c.Associations {
		names = append(names, a.Name)
	}
	return names
}

// Field returns the scalar mapping for name.
func (c *ClassMetadata) Field(name string) (FieldMapping, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldMapping{}, false
}

// Association returns the association mapping for name.
func (c *ClassMetadata) Association(name string) (AssociationMapping, bool) {
	for _, a := range c.Associations {
		if a.Name == name {
			return a, true
		}
	}
	return AssociationMapping{}, false
}

// HasAssociation reports whether name is an association field.
func (c *ClassMetadata) HasAssociation(name string) bool {
	_, ok := c.Association(name)
	return ok
}

// IsIdentifier reports whether name is part of the primary key.
func (c *ClassMetadata) IsIdentifier(name string) bool {
	for _, id := range c.Identifier {
		if id == name {
			return true
		}
	}
	return false
}

// IsIdentifierAssignedByApplication reports whether identifiers come from the caller.
func (c *ClassMetadata) IsIdentifierAssignedByApplication() bool {
	return c.Generator == GeneratorAssigned
}

// IsPostInsertGenerator reports whether storage assigns the identifier on insert.
func (c *ClassMetadata) IsPostInsertGenerator() bool {
	return c.Generator == GeneratorIdentity
}

// IsRoot reports whether the class is the root of its hierarchy.
func (c *ClassMetadata) IsRoot() bool {
	return c.Parent == ""
}

// SingleIdentifier returns the only identifier field name.
func (c *ClassMetadata) SingleIdentifier() (string, error) {
	if len(c.Identifier) != 1 {
		return "", fmt.Errorf("class %s has a composite or missing identifier", c.Name)
	}
	return c.Identifier[0], nil
}

// ColumnFor returns the column of a scalar field.
func (c *ClassMetadata) ColumnFor(field string) string {
	if f, ok := c.Field(field); ok {
		return f.Column
	}
	return ""
}
