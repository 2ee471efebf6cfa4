package metadata

import (
	"fmt"
	"reflect"
)

type accessor struct {
	typ    reflect.Type
	fields map[string][]int
}

func newAccessor(typ reflect.Type) *accessor {
	a := &accessor{typ: typ, fields: make(map[string][]int)}
	for _, f := range reflect.VisibleFields(typ) {
		if !f.IsExported() {
			continue
		}
		if _, seen := a.fields[f.Name]; seen {
			continue
		}
		a.fields[f.Name] = f.Index
	}
	return a
}

func (a *accessor) has(name string) bool {
	_, ok := a.fields[name]
	return ok
}

func (a *accessor) value(entity any, name string) (reflect.Value, error) {
	idx, ok := a.fields[name]
	if !ok {
		return reflect.Value{}, fmt.Errorf("type %s has no field %q", a.typ, name)
	}
	rv := reflect.ValueOf(entity)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return reflect.Value{}, fmt.Errorf("entity must be a non-nil pointer, got %T", entity)
	}
	rv = rv.Elem()
	if rv.Type() != a.typ {
		return reflect.Value{}, fmt.Errorf("entity %T is not a %s", entity, a.typ)
	}
	// FieldByIndexErr refuses to step through nil embedded pointers.
	return rv.FieldByIndexErr(idx)
}

// Get reads a mapped field from entity.
func (c *ClassMetadata) Get(entity any, field string) (any, error) {
	v, err := c.accessor.value(entity, field)
	if err != nil {
		return nil, mappingError(c.Name, err)
	}
	return v.Interface(), nil
}

// MustGet is Get for fields known to exist on the class.
func (c *ClassMetadata) MustGet(entity any, field string) any {
	v, err := c.Get(entity, field)
	if err != nil {
		panic(err)
	}
	return v
}

// Set writes value into a mapped field of entity, converting between
// convertible types (int64 from a driver into an int field, for example).
// A nil value resets the field to its zero value.
func (c *ClassMetadata) Set(entity any, field string, value any) error {
	v, err := c.accessor.value(entity, field)
	if err != nil {
		return mappingError(c.Name, err)
	}
	if !v.CanSet() {
		return mappingError(c.Name, fmt.Errorf("field %q is not settable", field))
	}
	if value == nil {
		v.Set(reflect.Zero(v.Type()))
		return nil
	}

	src := reflect.ValueOf(value)
	switch {
	case src.Type().AssignableTo(v.Type()):
		v.Set(src)
	case v.Kind() == reflect.Pointer && src.Type().ConvertibleTo(v.Type().Elem()):
		p := reflect.New(v.Type().Elem())
		p.Elem().Set(src.Convert(v.Type().Elem()))
		v.Set(p)
	case src.Kind() == reflect.Pointer && !src.IsNil() && src.Elem().Type().ConvertibleTo(v.Type()):
		v.Set(src.Elem().Convert(v.Type()))
	case convertible(src.Type(), v.Type()):
		v.Set(src.Convert(v.Type()))
	default:
		return mappingError(c.Name, fmt.Errorf("cannot assign %T to field %q of type %s", value, field, v.Type()))
	}
	return nil
}

// convertible excludes the numeric to string conversion reflect allows,
// which would turn 65 into "A".
func convertible(from, to reflect.Type) bool {
	if !from.ConvertibleTo(to) {
		return false
	}
	if to.Kind() == reflect.String && from.Kind() != reflect.String {
		return from.Kind() == reflect.Slice && from.Elem().Kind() == reflect.Uint8
	}
	return true
}

// NewInstance allocates a zero entity of the class.
func (c *ClassMetadata) NewInstance() any {
	return reflect.New(c.Type).Interface()
}

// IdentifierValues returns the identifier components of entity in mapping order.
func (c *ClassMetadata) IdentifierValues(entity any) ([]any, error) {
	values := make([]any, 0, len(c.Identifier))
	for _, name := range c.Identifier {
		v, err := c.Get(entity, name)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// Related returns the non-nil entities referenced by the association field.
func (c *ClassMetadata) Related(entity any, assoc AssociationMapping) []any {
	raw, err := c.Get(entity, assoc.Name)
	if err != nil || raw == nil {
		return nil
	}
	return Entities(raw)
}

// Entities flattens an association value into its non-nil entity pointers.
// A single pointer yields at most one element; slices and arrays yield one
// element per non-nil item.
func Entities(raw any) []any {
	if raw == nil {
		return nil
	}
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return []any{rv.Interface()}
	case reflect.Slice, reflect.Array:
		out := make([]any, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			item := rv.Index(i)
			if (item.Kind() == reflect.Pointer || item.Kind() == reflect.Interface) && item.IsNil() {
				continue
			}
			out = append(out, item.Interface())
		}
		return out
	default:
		return nil
	}
}

// IsNil reports whether v is nil or a typed nil pointer, map, slice or interface.
func IsNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
