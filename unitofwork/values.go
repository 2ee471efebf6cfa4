package unitofwork

import (
	"bytes"
	"reflect"
	"time"

	"github.com/goliatone/go-unitofwork/metadata"
)

// sameValue compares scalar field values. Pointers are compared by the
// values they point to, nil is only equal to nil.
func sameValue(a, b any) bool {
	aNil, bNil := metadata.IsNil(a), metadata.IsNil(b)
	if aNil || bNil {
		return aNil == bNil
	}

	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	if av.Kind() == reflect.Pointer && bv.Kind() == reflect.Pointer {
		return sameValue(av.Elem().Interface(), bv.Elem().Interface())
	}
	if av.Type() != bv.Type() {
		return false
	}

	switch x := a.(type) {
	case time.Time:
		return x.Equal(b.(time.Time))
	case []byte:
		return bytes.Equal(x, b.([]byte))
	}
	if av.Comparable() && bv.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// sameEntity compares association values by instance identity.
func sameEntity(a, b any) bool {
	aNil, bNil := metadata.IsNil(a), metadata.IsNil(b)
	if aNil || bNil {
		return aNil == bNil
	}
	return a == b
}

// diffCollection returns the members added to and removed from a
// collection, compared by instance identity.
func diffCollection(old, current []any) (inserted, removed []any) {
	before := make(map[any]struct{}, len(old))
	for _, e := range old {
		before[e] = struct{}{}
	}
	after := make(map[any]struct{}, len(current))
	for _, e := range current {
		after[e] = struct{}{}
		if _, ok := before[e]; !ok {
			inserted = append(inserted, e)
		}
	}
	for _, e := range old {
		if _, ok := after[e]; !ok {
			removed = append(removed, e)
		}
	}
	return inserted, removed
}
