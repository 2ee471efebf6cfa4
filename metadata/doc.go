// Package metadata describes how entity structs map onto storage.
//
// # Overview
//
// A ClassMetadata value carries everything the unit of work needs to know about
// one entity type: its scalar fields and columns, identifier fields and
// generator strategy, associations to other classes, and its place in an
// inheritance hierarchy. Field values are read and written through a
// reflection accessor built once per class, so callers never deal with
// loosely typed maps.
//
// # Registering Classes
//
// Classes are registered in code:
//
//	reg := metadata.NewRegistry()
//	_, err := reg.Register(&Customer{}, metadata.ClassMetadata{
//		Table:      "customers",
//		Identifier: []string{"ID"},
//		Generator:  metadata.GeneratorIdentity,
//		Fields: []metadata.FieldMapping{
//			{Name: "ID"},
//			{Name: "Name", Rules: []validation.Rule{validation.Required}},
//		},
//		Associations: []metadata.AssociationMapping{
//			{Name: "Orders", Target: "Order", Kind: metadata.InverseToMany, MappedBy: "Customer", Cascade: metadata.CascadeAll},
//		},
//	})
//
// or loaded from YAML mapping files through a Factory:
//
//	reg.Bind("Customer", &Customer{})
//	driver, _ := metadata.NewYAMLDriver("mappings/")
//	factory, _ := metadata.NewFactory(reg, cacheinfra.DefaultConfig(), metadata.WithDriver(driver))
//	class, err := factory.ClassFor(customer)
//
// Missing columns, tables and join tables get snake_case defaults derived
// from Go names.
//
// # Associations
//
// AssociationKind is a closed set. The owning side of an association holds
// the foreign key (OwningToOne) or the join rows (OwningToMany, owning
// ManyToMany); inverse sides are never written.
//
// # Inheritance
//
// Subclasses embed their parent struct and name it in Parent. Single table
// hierarchies share the root table and are told apart by a discriminator
// column; joined hierarchies keep one table per class holding the fields
// the class declares.
package metadata
