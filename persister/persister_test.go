package persister

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	"github.com/goliatone/go-unitofwork/metadata"
)

type customer struct {
	ID   int64
	Name string
}

type order struct {
	ID         int64
	Total      float64
	CustomerID int64
	Customer   *customer
}

type vehicle struct {
	ID     string
	Wheels int
}

type truck struct {
	vehicle
	Payload int
}

type tag struct {
	ID    int64
	Label string
}

type post struct {
	ID    int64
	Title string
	Tags  []*tag
}

const schema = `
CREATE TABLE customers (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL);
CREATE TABLE orders (id INTEGER PRIMARY KEY AUTOINCREMENT, total REAL, customer_id INTEGER REFERENCES customers(id));
CREATE TABLE vehicles (id TEXT PRIMARY KEY, kind TEXT NOT NULL, wheels INTEGER, payload INTEGER);
CREATE TABLE fleet (id TEXT PRIMARY KEY, kind TEXT NOT NULL, wheels INTEGER);
CREATE TABLE fleet_trucks (id TEXT PRIMARY KEY REFERENCES fleet(id), payload INTEGER);
CREATE TABLE tags (id INTEGER PRIMARY KEY AUTOINCREMENT, label TEXT);
CREATE TABLE posts (id INTEGER PRIMARY KEY AUTOINCREMENT, title TEXT);
CREATE TABLE post_tags (post_id INTEGER NOT NULL, tag_id INTEGER NOT NULL, PRIMARY KEY (post_id, tag_id));
`

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(context.Background(), stmt); err != nil {
			t.Fatalf("schema: %v", err)
		}
	}
	return db
}

func newTestRegistry(t *testing.T, vehicles metadata.InheritanceType) *metadata.Registry {
	t.Helper()
	reg := metadata.NewRegistry()
	must := func(_ *metadata.ClassMetadata, err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	must(reg.Register(&customer{}, metadata.ClassMetadata{
		Name: "Customer", Table: "customers", Generator: metadata.GeneratorIdentity,
		Identifier: []string{"ID"},
		Fields:     []metadata.FieldMapping{{Name: "ID"}, {Name: "Name"}},
	}))
	must(reg.Register(&order{}, metadata.ClassMetadata{
		Name: "Order", Table: "orders", Generator: metadata.GeneratorIdentity,
		Identifier: []string{"ID"},
		Fields:     []metadata.FieldMapping{{Name: "ID"}, {Name: "Total"}},
		Associations: []metadata.AssociationMapping{
			{Name: "Customer", Target: "Customer", Kind: metadata.OwningToOne, JoinField: "CustomerID"},
		},
	}))

	table := "vehicles"
	if vehicles == metadata.InheritanceJoined {
		table = "fleet"
	}
	must(reg.Register(&vehicle{}, metadata.ClassMetadata{
		Name: "Vehicle", Table: table, Inheritance: vehicles, DiscriminatorColumn: "kind",
		Identifier: []string{"ID"}, Generator: metadata.GeneratorUUID,
		Fields: []metadata.FieldMapping{{Name: "ID"}, {Name: "Wheels"}},
	}))
	truckTable := ""
	if vehicles == metadata.InheritanceJoined {
		truckTable = "fleet_trucks"
	}
	must(reg.Register(&truck{}, metadata.ClassMetadata{
		Name: "Truck", Parent: "Vehicle", Table: truckTable, DiscriminatorValue: "truck",
		Fields: []metadata.FieldMapping{{Name: "Payload"}},
	}))

	must(reg.Register(&tag{}, metadata.ClassMetadata{
		Name: "Tag", Table: "tags", Generator: metadata.GeneratorIdentity,
		Identifier: []string{"ID"},
		Fields:     []metadata.FieldMapping{{Name: "ID"}, {Name: "Label"}},
	}))
	must(reg.Register(&post{}, metadata.ClassMetadata{
		Name: "Post", Table: "posts", Generator: metadata.GeneratorIdentity,
		Identifier: []string{"ID"},
		Fields:     []metadata.FieldMapping{{Name: "ID"}, {Name: "Title"}},
		Associations: []metadata.AssociationMapping{
			{Name: "Tags", Target: "Tag", Kind: metadata.ManyToMany},
		},
	}))
	return reg
}

func countRows(t *testing.T, db *bun.DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := db.QueryRowContext(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("count %q: %v", query, err)
	}
	return n
}

func classOf(t *testing.T, reg *metadata.Registry, name string) *metadata.ClassMetadata {
	t.Helper()
	c, err := reg.Class(name)
	if err != nil {
		t.Fatalf("class %s: %v", name, err)
	}
	return c
}

func TestStandardPersister_InsertUpdateDelete(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	reg := newTestRegistry(t, metadata.InheritanceSingleTable)

	customers := NewStandardPersister(db, reg, classOf(t, reg, "Customer"))
	orders := NewStandardPersister(db, reg, classOf(t, reg, "Order"))

	c := &customer{Name: "Ana"}
	id, err := customers.Insert(ctx, c)
	if err != nil {
		t.Fatalf("insert customer: %v", err)
	}
	genID, ok := id.(int64)
	if !ok || genID == 0 {
		t.Fatalf("expected generated int64 id, got %#v", id)
	}
	c.ID = genID

	o := &order{Total: 10, Customer: c}
	oid, err := orders.Insert(ctx, o)
	if err != nil {
		t.Fatalf("insert order: %v", err)
	}
	o.ID = oid.(int64)

	if n := countRows(t, db, "SELECT COUNT(*) FROM orders WHERE customer_id = ? AND total = 10", c.ID); n != 1 {
		t.Errorf("expected order row referencing customer, got %d", n)
	}

	c.Name = "Bea"
	if err := customers.Update(ctx, c, ChangeSet{"Name": {Old: "Ana", New: "Bea"}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM customers WHERE name = 'Bea'"); n != 1 {
		t.Errorf("expected updated name, got %d rows", n)
	}

	if err := customers.Update(ctx, c, ChangeSet{}); err != nil {
		t.Errorf("expected empty change set to be a no-op, got %v", err)
	}

	o.Customer = nil
	if err := orders.Update(ctx, o, ChangeSet{"Customer": {Old: c, New: nil}}); err != nil {
		t.Fatalf("update association: %v", err)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM orders WHERE customer_id IS NULL"); n != 1 {
		t.Errorf("expected cleared foreign key, got %d rows", n)
	}

	if err := orders.Delete(ctx, o); err != nil {
		t.Fatalf("delete order: %v", err)
	}
	if err := customers.Delete(ctx, c); err != nil {
		t.Fatalf("delete customer: %v", err)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM customers"); n != 0 {
		t.Errorf("expected no customers, got %d", n)
	}

	if err := customers.Delete(ctx, &customer{}); err == nil {
		t.Error("expected delete without identifier to fail")
	}
}

func TestStandardPersister_SingleTableDiscriminator(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	reg := newTestRegistry(t, metadata.InheritanceSingleTable)

	tr := &truck{vehicle: vehicle{ID: "t-1", Wheels: 6}, Payload: 12}
	p := NewStandardPersister(db, reg, classOf(t, reg, "Truck"))
	id, err := p.Insert(ctx, tr)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id != nil {
		t.Errorf("expected no generated id for pre-assigned identifier, got %v", id)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM vehicles WHERE id = 't-1' AND kind = 'truck' AND payload = 12"); n != 1 {
		t.Errorf("expected discriminated row, got %d", n)
	}
}

func TestJoinedPersister(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	reg := newTestRegistry(t, metadata.InheritanceJoined)

	p := NewJoinedPersister(db, reg, classOf(t, reg, "Truck"))
	tr := &truck{vehicle: vehicle{ID: "t-9", Wheels: 18}, Payload: 30}

	if _, err := p.Insert(ctx, tr); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM fleet WHERE id = 't-9' AND kind = 'truck' AND wheels = 18"); n != 1 {
		t.Errorf("expected root row, got %d", n)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM fleet_trucks WHERE id = 't-9' AND payload = 30"); n != 1 {
		t.Errorf("expected subclass row, got %d", n)
	}

	tr.Payload = 40
	if err := p.Update(ctx, tr, ChangeSet{"Payload": {Old: 30, New: 40}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM fleet_trucks WHERE payload = 40"); n != 1 {
		t.Errorf("expected updated subclass row, got %d", n)
	}

	if err := p.Delete(ctx, tr); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM fleet") + countRows(t, db, "SELECT COUNT(*) FROM fleet_trucks"); n != 0 {
		t.Errorf("expected all rows removed, got %d", n)
	}
}

func TestManyToManyPersister(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	reg := newTestRegistry(t, metadata.InheritanceSingleTable)
	postClass := classOf(t, reg, "Post")
	tags, _ := postClass.Association("Tags")

	p := &post{ID: 1, Title: "hello"}
	a, b := &tag{ID: 10}, &tag{ID: 11}

	m2m := NewManyToManyPersister(db, reg)
	if err := m2m.Sync(ctx, p, tags, []any{a, b}, nil); err != nil {
		t.Fatalf("sync insert: %v", err)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM post_tags WHERE post_id = 1"); n != 2 {
		t.Errorf("expected 2 join rows, got %d", n)
	}

	if err := m2m.Sync(ctx, p, tags, nil, []any{a}); err != nil {
		t.Fatalf("sync remove: %v", err)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM post_tags WHERE tag_id = 11"); n != 1 {
		t.Errorf("expected remaining row for tag 11, got %d", n)
	}

	if err := m2m.DeleteRows(ctx, p, tags); err != nil {
		t.Fatalf("delete rows: %v", err)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM post_tags"); n != 0 {
		t.Errorf("expected empty join table, got %d", n)
	}

	if err := m2m.Sync(ctx, p, tags, []any{&tag{}}, nil); err == nil {
		t.Error("expected error for unidentified target")
	}
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	reg := newTestRegistry(t, metadata.InheritanceSingleTable)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	txCtx := WithTx(ctx, tx)
	if got, ok := TxFrom(txCtx); !ok || got == nil {
		t.Fatal("expected transaction in context")
	}

	p := NewStandardPersister(nil, reg, classOf(t, reg, "Customer"))
	if _, err := p.Insert(txCtx, &customer{Name: "Ana"}); err != nil {
		t.Fatalf("insert in tx: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM customers"); n != 0 {
		t.Errorf("expected rollback to discard insert, got %d rows", n)
	}

	if _, err := p.Insert(ctx, &customer{Name: "Bea"}); err == nil {
		t.Error("expected error without database handle or transaction")
	}
	if _, ok := TxFrom(WithTx(ctx, nil)); ok {
		t.Error("expected nil transaction to be ignored")
	}
}

func TestDispatcher(t *testing.T) {
	reg := newTestRegistry(t, metadata.InheritanceJoined)
	d := NewDispatcher(nil, reg)

	p, _ := d.PersisterFor(classOf(t, reg, "Truck"))
	if _, ok := p.(*JoinedPersister); !ok {
		t.Errorf("expected joined persister, got %T", p)
	}
	again, _ := d.PersisterFor(classOf(t, reg, "Truck"))
	if again != p {
		t.Error("expected persister to be reused")
	}

	p, _ = d.PersisterFor(classOf(t, reg, "Customer"))
	if _, ok := p.(*StandardPersister); !ok {
		t.Errorf("expected standard persister, got %T", p)
	}

	custom := &StandardPersister{}
	d.Register("Customer", custom)
	if p, _ := d.PersisterFor(classOf(t, reg, "Customer")); p != custom {
		t.Error("expected registered override")
	}

	postClass := classOf(t, reg, "Post")
	tags, _ := postClass.Association("Tags")
	cp, _ := d.CollectionPersisterFor(postClass, tags)
	if _, ok := cp.(*ManyToManyPersister); !ok {
		t.Errorf("expected join table persister, got %T", cp)
	}
	override := &ManyToManyPersister{}
	d.RegisterCollection("Post", "Tags", override)
	if cp, _ := d.CollectionPersisterFor(postClass, tags); cp != override {
		t.Error("expected collection override")
	}
}
