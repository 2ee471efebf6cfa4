package unitofwork

import (
	"testing"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/goliatone/go-unitofwork/metadata"
	"github.com/goliatone/go-unitofwork/pkg/testsupport"
)

type customer struct {
	ID     int64
	Name   string
	Orders []*order
}

type order struct {
	ID         int64
	Total      float64
	CustomerID int64
	Customer   *customer
}

type node struct {
	ID   string
	Next *node
}

type category struct {
	ID       int64
	Name     string
	ParentID int64
	Parent   *category
}

type profile struct {
	ID    int64
	Email *string
}

type tag struct {
	ID    string
	Label string
}

type post struct {
	ID    string
	Title string
	Tags  []*tag
}

type vehicle struct {
	ID     string
	Wheels int
}

type truck struct {
	vehicle
	Payload int
}

func newTestRegistry(t *testing.T) *metadata.Registry {
	t.Helper()
	reg := metadata.NewRegistry()
	must := func(_ *metadata.ClassMetadata, err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	must(reg.Register(&customer{}, metadata.ClassMetadata{
		Name: "Customer", Identifier: []string{"ID"}, Generator: metadata.GeneratorIdentity,
		Fields: []metadata.FieldMapping{
			{Name: "ID"},
			{Name: "Name", Rules: []validation.Rule{validation.Required}},
		},
		Associations: []metadata.AssociationMapping{
			{Name: "Orders", Target: "Order", Kind: metadata.InverseToMany, MappedBy: "Customer", Cascade: metadata.CascadeAll},
		},
	}))
	must(reg.Register(&order{}, metadata.ClassMetadata{
		Name: "Order", Table: "orders", Identifier: []string{"ID"}, Generator: metadata.GeneratorIdentity,
		Fields: []metadata.FieldMapping{
			{Name: "ID"},
			{Name: "Total", Rules: []validation.Rule{validation.Min(0.0)}},
		},
		Associations: []metadata.AssociationMapping{
			{Name: "Customer", Target: "Customer", Kind: metadata.OwningToOne, JoinField: "CustomerID", Cascade: metadata.CascadeSave},
		},
	}))
	must(reg.Register(&node{}, metadata.ClassMetadata{
		Name: "Node", Identifier: []string{"ID"}, Generator: metadata.GeneratorAssigned,
		Fields: []metadata.FieldMapping{{Name: "ID"}},
		Associations: []metadata.AssociationMapping{
			{Name: "Next", Target: "Node", Kind: metadata.OwningToOne, Cascade: metadata.CascadeAll},
		},
	}))
	must(reg.Register(&category{}, metadata.ClassMetadata{
		Name: "Category", Identifier: []string{"ID"}, Generator: metadata.GeneratorIdentity,
		Fields: []metadata.FieldMapping{{Name: "ID"}, {Name: "Name"}},
		Associations: []metadata.AssociationMapping{
			{Name: "Parent", Target: "Category", Kind: metadata.OwningToOne, JoinField: "ParentID", Cascade: metadata.CascadeSave},
		},
	}))
	must(reg.Register(&profile{}, metadata.ClassMetadata{
		Name: "Profile", Identifier: []string{"ID"}, Generator: metadata.GeneratorAssigned,
		Fields: []metadata.FieldMapping{{Name: "ID"}, {Name: "Email"}},
	}))
	must(reg.Register(&tag{}, metadata.ClassMetadata{
		Name: "Tag", Identifier: []string{"ID"}, Generator: metadata.GeneratorUUID,
		Fields: []metadata.FieldMapping{{Name: "ID"}, {Name: "Label"}},
	}))
	must(reg.Register(&post{}, metadata.ClassMetadata{
		Name: "Post", Identifier: []string{"ID"}, Generator: metadata.GeneratorUUID,
		Fields: []metadata.FieldMapping{{Name: "ID"}, {Name: "Title"}},
		Associations: []metadata.AssociationMapping{
			{Name: "Tags", Target: "Tag", Kind: metadata.ManyToMany, Cascade: metadata.CascadeSave},
		},
	}))
	must(reg.Register(&vehicle{}, metadata.ClassMetadata{
		Name: "Vehicle", Inheritance: metadata.InheritanceSingleTable, DiscriminatorColumn: "kind",
		Identifier: []string{"ID"}, Generator: metadata.GeneratorAssigned,
		Fields: []metadata.FieldMapping{{Name: "ID"}, {Name: "Wheels"}},
	}))
	must(reg.Register(&truck{}, metadata.ClassMetadata{
		Name: "Truck", Parent: "Vehicle", DiscriminatorValue: "truck",
		Fields: []metadata.FieldMapping{{Name: "Payload"}},
	}))
	return reg
}

func newTestUnitOfWork(t *testing.T, opts ...Option) (*UnitOfWork, *testsupport.Recorder) {
	t.Helper()
	reg := newTestRegistry(t)
	rec := testsupport.NewRecorder(reg)
	return New(reg, rec, opts...), rec
}

func manualDirtyChecking() Option {
	cfg := DefaultConfig()
	cfg.AutomaticDirtyChecking = false
	return WithConfig(cfg)
}

func hydrate(t *testing.T, u *UnitOfWork, class string, row map[string]any) any {
	t.Helper()
	e, err := u.CreateOrUpdateManaged(class, row)
	if err != nil {
		t.Fatalf("hydrate %s: %v", class, err)
	}
	return e
}

func assertLog(t *testing.T, rec *testsupport.Recorder, expected ...string) {
	t.Helper()
	got := rec.Log()
	if len(got) != len(expected) {
		t.Fatalf("expected writes %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("expected writes %v, got %v", expected, got)
		}
	}
}
