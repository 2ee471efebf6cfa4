package identitymap

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
)

type customer struct {
	ID   int
	Name string
}

func TestHash(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	n := int64(42)
	var nilPtr *int64
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	tests := []struct {
		name   string
		values []any
		want   string
	}{
		{name: "no values", values: nil, want: ""},
		{name: "single int", values: []any{7}, want: "7"},
		{name: "numeric types hash alike", values: []any{int64(7)}, want: "7"},
		{name: "composite", values: []any{"acme", 3}, want: "acme 3"},
		{name: "composite escapes separator", values: []any{"a b", "c"}, want: `a\ b c`},
		{name: "composite escapes backslash", values: []any{`a\`, "b"}, want: `a\\ b`},
		{name: "single component kept as is", values: []any{"a b"}, want: "a b"},
		{name: "pointer dereferenced", values: []any{&n}, want: "42"},
		{name: "uuid uses String", values: []any{id}, want: "6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
		{name: "time in UTC", values: []any{when}, want: "2024-03-01T11:00:00Z"},
		{name: "bytes as hex", values: []any{[]byte{0xca, 0xfe}}, want: "cafe"},
		{name: "zero component is absent", values: []any{"acme", 0}, want: ""},
		{name: "nil component is absent", values: []any{nil}, want: ""},
		{name: "nil pointer is absent", values: []any{nilPtr}, want: ""},
		{name: "empty string is absent", values: []any{""}, want: ""},
		{name: "nil uuid is absent", values: []any{uuid.Nil}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Hash(tt.values...); got != tt.want {
				t.Errorf("Hash(%v) = %q, want %q", tt.values, got, tt.want)
			}
		})
	}

	if Hash("a b", "c") == Hash("a", "b c") {
		t.Error("expected composite identifiers with embedded separators not to collide")
	}
}

func TestRegistry_RegisterLookupRemove(t *testing.T) {
	r := New()
	a := &customer{ID: 1}
	key := Key{Root: "Customer", Hash: Hash(a.ID)}

	if !r.Register(key, a) {
		t.Fatal("expected first registration to succeed")
	}
	if !r.IsRegistered(a) {
		t.Error("expected entity to be registered")
	}
	got, ok := r.Lookup("Customer", "1")
	if !ok || got != a {
		t.Errorf("expected lookup to return the same instance, got %v", got)
	}
	if k, _ := r.KeyOf(a); k != key {
		t.Errorf("expected key %v, got %v", key, k)
	}

	if !r.Remove(a) {
		t.Error("expected remove to succeed")
	}
	if r.Remove(a) {
		t.Error("expected second remove to report false")
	}
	if _, ok := r.Lookup("Customer", "1"); ok {
		t.Error("expected lookup miss after remove")
	}
	if r.Size() != 0 {
		t.Errorf("expected empty registry, got %d", r.Size())
	}
}

func TestRegistry_RejectsDuplicatesAndInvalidKeys(t *testing.T) {
	r := New()
	a := &customer{ID: 1, Name: "Ana"}
	b := &customer{ID: 1, Name: "Ana"}

	if !r.Register(Key{"Customer", "1"}, a) {
		t.Fatal("expected registration to succeed")
	}
	if r.Register(Key{"Customer", "1"}, b) {
		t.Error("expected equal but distinct instance to be rejected")
	}
	if r.Register(Key{"Customer", "2"}, a) {
		t.Error("expected already registered instance to be rejected")
	}
	if r.Register(Key{"Customer", ""}, b) {
		t.Error("expected empty hash to be rejected")
	}
	if r.Register(Key{"", "3"}, b) {
		t.Error("expected empty root to be rejected")
	}
	if !r.Register(Key{"Vendor", "1"}, b) {
		t.Error("expected same hash under another root to succeed")
	}
}

func TestRegistry_EntitiesOrderAndClear(t *testing.T) {
	r := New()
	c1, c2, c3 := &customer{ID: 1}, &customer{ID: 2}, &customer{ID: 3}
	v1 := &customer{ID: 9}

	r.Register(Key{"Customer", "2"}, c2)
	r.Register(Key{"Vendor", "9"}, v1)
	r.Register(Key{"Customer", "1"}, c1)
	r.Register(Key{"Customer", "3"}, c3)

	if got, want := r.Entities("Customer"), []any{c2, c1, c3}; !reflect.DeepEqual(got, want) {
		t.Errorf("expected registration order %v, got %v", want, got)
	}
	if got := r.Entities(""); len(got) != 4 || got[1] != v1 {
		t.Errorf("unexpected global order %v", got)
	}

	removed := r.RemoveAll("Customer")
	if len(removed) != 3 {
		t.Errorf("expected 3 removed, got %d", len(removed))
	}
	if r.IsRegistered(c1) || !r.IsRegistered(v1) {
		t.Error("expected only customers to be removed")
	}

	r.Clear()
	if r.Size() != 0 || r.IsRegistered(v1) {
		t.Error("expected clear to drop everything")
	}
}
