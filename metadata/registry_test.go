package metadata

import (
	"reflect"
	"testing"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type testCustomer struct {
	ID     int64
	Name   string
	Orders []*testOrder
}

type testOrder struct {
	ID         int64
	Total      float64
	CustomerID int64
	Customer   *testCustomer
	PlacedAt   time.Time
	Note       *string
}

type testPerson struct {
	ID   string
	Name string
}

type testEmployee struct {
	testPerson
	Salary int
}

type testManager struct {
	testEmployee
	Reports []*testEmployee
}

func registerShop(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	if _, err := reg.Register(&testCustomer{}, ClassMetadata{
		Name:       "Customer",
		Identifier: []string{"ID"},
		Generator:  GeneratorIdentity,
		Fields: []FieldMapping{
			{Name: "ID"},
			{Name: "Name", Rules: []validation.Rule{validation.Required}},
		},
		Associations: []AssociationMapping{
			{Name: "Orders", Target: "Order", Kind: InverseToMany, MappedBy: "Customer", Cascade: CascadeAll},
		},
	}); err != nil {
		t.Fatalf("register customer: %v", err)
	}
	if _, err := reg.Register(&testOrder{}, ClassMetadata{
		Name:       "Order",
		Table:      "orders",
		Identifier: []string{"ID"},
		Generator:  GeneratorIdentity,
		Fields: []FieldMapping{
			{Name: "ID"},
			{Name: "Total"},
			{Name: "CustomerID"},
			{Name: "PlacedAt"},
			{Name: "Note"},
		},
		Associations: []AssociationMapping{
			{Name: "Customer", Target: "Customer", Kind: OwningToOne, JoinField: "CustomerID", Cascade: CascadeSave},
		},
	}); err != nil {
		t.Fatalf("register order: %v", err)
	}
	return reg
}

func TestRegistry_RegisterDefaults(t *testing.T) {
	reg := registerShop(t)

	customer, err := reg.Class("Customer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if customer.Table != "customers" {
		t.Errorf("expected default table customers, got %q", customer.Table)
	}
	if customer.RootName != "Customer" {
		t.Errorf("expected root Customer, got %q", customer.RootName)
	}
	if !customer.IsPostInsertGenerator() || customer.IsIdentifierAssignedByApplication() {
		t.Errorf("expected identity generator, got %s", customer.Generator)
	}
	if got := customer.ColumnFor("Name"); got != "name" {
		t.Errorf("expected column name, got %q", got)
	}
	if f, _ := customer.Field("ID"); !f.ID {
		t.Error("expected ID field to be flagged as identifier")
	}

	order, err := reg.ClassFor(&testOrder{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assoc, ok := order.Association("Customer")
	if !ok {
		t.Fatal("expected Customer association")
	}
	if assoc.JoinColumn != "customer_id" {
		t.Errorf("expected join column customer_id, got %q", assoc.JoinColumn)
	}
	if !assoc.IsOwningSide() || !assoc.IsToOne() {
		t.Errorf("expected owning to-one association, got %s", assoc.Kind)
	}

	want := []string{"ID", "Total", "CustomerID", "PlacedAt", "Note", "Customer"}
	if got := order.FieldNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected field names %v, got %v", want, got)
	}

	if got := reg.ClassNames(); !reflect.DeepEqual(got, []string{"Customer", "Order"}) {
		t.Errorf("unexpected class names %v", got)
	}
}

func TestRegistry_RegisterErrors(t *testing.T) {
	tests := []struct {
		name   string
		sample any
		class  ClassMetadata
	}{
		{
			name:   "no identifier",
			sample: &testPerson{},
			class:  ClassMetadata{Fields: []FieldMapping{{Name: "Name"}}},
		},
		{
			name:   "unknown field",
			sample: &testPerson{},
			class:  ClassMetadata{Identifier: []string{"ID"}, Fields: []FieldMapping{{Name: "ID"}, {Name: "Missing"}}},
		},
		{
			name:   "identifier not mapped",
			sample: &testPerson{},
			class:  ClassMetadata{Identifier: []string{"ID"}, Fields: []FieldMapping{{Name: "Name"}}},
		},
		{
			name:   "inverse without mappedBy",
			sample: &testCustomer{},
			class: ClassMetadata{
				Identifier:   []string{"ID"},
				Fields:       []FieldMapping{{Name: "ID"}},
				Associations: []AssociationMapping{{Name: "Orders", Target: "Order", Kind: InverseToMany}},
			},
		},
		{
			name:   "composite generated identifier",
			sample: &testPerson{},
			class: ClassMetadata{
				Identifier: []string{"ID", "Name"},
				Generator:  GeneratorUUID,
				Fields:     []FieldMapping{{Name: "ID"}, {Name: "Name"}},
			},
		},
		{
			name:   "unknown parent",
			sample: &testEmployee{},
			class:  ClassMetadata{Parent: "Nope"},
		},
		{
			name:   "not a struct",
			sample: new(int),
			class:  ClassMetadata{Name: "Int"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			_, err := reg.Register(tt.sample, tt.class)
			if err == nil {
				t.Fatal("expected registration error")
			}
			if !IsMappingError(err) {
				t.Errorf("expected mapping error, got %v", err)
			}
		})
	}
}

func TestRegistry_DuplicateClass(t *testing.T) {
	reg := registerShop(t)
	_, err := reg.Register(&testCustomer{}, ClassMetadata{
		Name:       "Customer",
		Identifier: []string{"ID"},
		Fields:     []FieldMapping{{Name: "ID"}},
	})
	if !IsMappingError(err) {
		t.Fatalf("expected mapping error for duplicate class, got %v", err)
	}
}

func registerStaff(t *testing.T, inheritance InheritanceType) *Registry {
	t.Helper()
	reg := NewRegistry()
	steps := []struct {
		sample any
		class  ClassMetadata
	}{
		{&testPerson{}, ClassMetadata{
			Name:        "Person",
			Inheritance: inheritance,
			Identifier:  []string{"ID"},
			Generator:   GeneratorUUID,
			Fields:      []FieldMapping{{Name: "ID"}, {Name: "Name"}},
		}},
		{&testEmployee{}, ClassMetadata{
			Name:   "Employee",
			Parent: "Person",
			Fields: []FieldMapping{{Name: "Salary"}},
		}},
		{&testManager{}, ClassMetadata{
			Name:   "Manager",
			Parent: "Employee",
			Associations: []AssociationMapping{
				{Name: "Reports", Target: "Employee", Kind: ManyToMany},
			},
		}},
	}
	for _, s := range steps {
		if _, err := reg.Register(s.sample, s.class); err != nil {
			t.Fatalf("register %s: %v", s.class.Name, err)
		}
	}
	return reg
}

func TestRegistry_SingleTableInheritance(t *testing.T) {
	reg := registerStaff(t, InheritanceSingleTable)

	person, _ := reg.Class("Person")
	manager, _ := reg.Class("Manager")

	if manager.Table != person.Table {
		t.Errorf("expected shared table %q, got %q", person.Table, manager.Table)
	}
	if manager.RootName != "Person" {
		t.Errorf("expected root Person, got %q", manager.RootName)
	}
	if manager.Generator != GeneratorUUID {
		t.Errorf("expected inherited generator, got %s", manager.Generator)
	}
	if person.DiscriminatorColumn != "dtype" {
		t.Errorf("expected default discriminator column, got %q", person.DiscriminatorColumn)
	}
	wantMap := map[string]string{"Person": "Person", "Employee": "Employee", "Manager": "Manager"}
	if !reflect.DeepEqual(person.DiscriminatorMap, wantMap) {
		t.Errorf("unexpected discriminator map %v", person.DiscriminatorMap)
	}
	if !reflect.DeepEqual(person.Subclasses, []string{"Employee", "Manager"}) {
		t.Errorf("unexpected subclasses %v", person.Subclasses)
	}
	if !reg.IsSubclassOf("Manager", "Person") || reg.IsSubclassOf("Person", "Manager") {
		t.Error("unexpected subclass relation")
	}

	f, ok := manager.Field("Name")
	if !ok || f.DeclaredIn != "Person" {
		t.Errorf("expected Name declared in Person, got %+v", f)
	}
	salary, _ := manager.Field("Salary")
	if salary.DeclaredIn != "Employee" {
		t.Errorf("expected Salary declared in Employee, got %q", salary.DeclaredIn)
	}
}

func TestRegistry_JoinedInheritance(t *testing.T) {
	reg := registerStaff(t, InheritanceJoined)

	manager, _ := reg.Class("Manager")
	if manager.Table != "managers" {
		t.Errorf("expected own table for joined subclass, got %q", manager.Table)
	}
	reports, _ := manager.Association("Reports")
	if reports.JoinTable == nil {
		t.Fatal("expected default join table")
	}
	want := JoinTable{Name: "manager_reports", JoinColumn: "manager_id", InverseJoinColumn: "employee_id"}
	if *reports.JoinTable != want {
		t.Errorf("expected join table %+v, got %+v", want, *reports.JoinTable)
	}
}

func TestClassMetadata_GetSet(t *testing.T) {
	reg := registerShop(t)
	order, _ := reg.Class("Order")

	o := &testOrder{Total: 10}
	if err := order.Set(o, "ID", int32(7)); err != nil {
		t.Fatalf("set converted id: %v", err)
	}
	if o.ID != 7 {
		t.Errorf("expected ID 7, got %d", o.ID)
	}

	if err := order.Set(o, "Note", "gift"); err != nil {
		t.Fatalf("set pointer field: %v", err)
	}
	if o.Note == nil || *o.Note != "gift" {
		t.Errorf("expected note to be set, got %v", o.Note)
	}

	if err := order.Set(o, "Note", nil); err != nil {
		t.Fatalf("reset pointer field: %v", err)
	}
	if o.Note != nil {
		t.Error("expected note to be reset")
	}

	if err := order.Set(o, "Total", "ten"); err == nil {
		t.Error("expected error assigning string to float field")
	}
	if err := order.Set(o, "Missing", 1); !IsMappingError(err) {
		t.Errorf("expected mapping error for unknown field, got %v", err)
	}

	ids, err := order.IdentifierValues(o)
	if err != nil || !reflect.DeepEqual(ids, []any{int64(7)}) {
		t.Errorf("unexpected identifier values %v (%v)", ids, err)
	}

	if _, err := order.Get(&testCustomer{}, "Total"); err == nil {
		t.Error("expected error reading field from wrong type")
	}
}

func TestClassMetadata_PromotedFields(t *testing.T) {
	reg := registerStaff(t, InheritanceJoined)
	manager, _ := reg.Class("Manager")

	m := &testManager{}
	if err := manager.Set(m, "Name", "Grace"); err != nil {
		t.Fatalf("set promoted field: %v", err)
	}
	if m.Name != "Grace" {
		t.Errorf("expected promoted Name to be set, got %q", m.Name)
	}

	inst, ok := manager.NewInstance().(*testManager)
	if !ok || inst == nil {
		t.Fatalf("expected *testManager instance, got %T", manager.NewInstance())
	}
}

func TestEntities(t *testing.T) {
	a, b := &testOrder{ID: 1}, &testOrder{ID: 2}
	var none *testOrder

	tests := []struct {
		name string
		raw  any
		want int
	}{
		{"nil", nil, 0},
		{"typed nil pointer", none, 0},
		{"pointer", a, 1},
		{"slice with nils", []*testOrder{a, nil, b}, 2},
		{"nil slice", []*testOrder(nil), 0},
		{"scalar", 42, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Entities(tt.raw); len(got) != tt.want {
				t.Errorf("expected %d entities, got %d", tt.want, len(got))
			}
		})
	}

	if !IsNil(none) || IsNil(a) || !IsNil(nil) {
		t.Error("unexpected IsNil result")
	}
}

func TestNaming(t *testing.T) {
	tests := map[string]string{
		"CustomerID":   "customer_id",
		"HTTPServer":   "http_server",
		"Line2":        "line_2",
		"placed_at":    "placed_at",
		"main.Invoice": "main_invoice",
		"":             "",
	}
	for in, want := range tests {
		if got := ColumnName(in); got != want {
			t.Errorf("ColumnName(%q) = %q, want %q", in, got, want)
		}
	}

	tables := map[string]string{
		"shop.OrderLine": "order_lines",
		"Customer":       "customers",
		"*Category":      "categories",
		"Person":         "people",
	}
	for in, want := range tables {
		if got := TableName(in); got != want {
			t.Errorf("TableName(%q) = %q, want %q", in, got, want)
		}
	}
	if got := JoinTableName("Post", "Tags"); got != "post_tags" {
		t.Errorf("JoinTableName = %q", got)
	}
	if got := ForeignKeyName("OrderLine"); got != "order_line_id" {
		t.Errorf("ForeignKeyName = %q", got)
	}
}

func TestParseCascade(t *testing.T) {
	c, err := ParseCascade("persist", "remove")
	if err != nil || c != CascadeAll {
		t.Errorf("expected CascadeAll, got %v (%v)", c, err)
	}
	if c, _ := ParseCascade("save"); !c.Has(CascadeSave) || c.Has(CascadeDelete) {
		t.Errorf("unexpected cascade %v", c)
	}
	if _, err := ParseCascade("refresh"); err == nil {
		t.Error("expected error for unknown cascade")
	}
	if CascadeAll.Has(CascadeNone) {
		t.Error("expected empty cascade set never to match")
	}
}
