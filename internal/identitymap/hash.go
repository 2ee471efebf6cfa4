package identitymap

import (
	"encoding/hex"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Separator joins identifier components in an identity hash.
const Separator = " "

// Hash serializes identifier components into an identity hash. It returns
// the empty string when values is empty or any component is absent (nil or
// the zero value of its type), since such identifiers cannot be indexed.
//
// Serialization ignores the concrete numeric type so an int64 read from an
// entity and an int passed by a caller produce the same hash.
//
// Components of a composite identifier are escaped before joining, so
// ("a b", "c") and ("a", "b c") hash differently. A single component is
// used as is.
func Hash(values ...any) string {
	if len(values) == 0 {
		return ""
	}
	parts := make([]string, len(values))
	for i, v := range values {
		s, ok := serialize(v)
		if !ok {
			return ""
		}
		if len(values) > 1 {
			s = componentEscaper.Replace(s)
		}
		parts[i] = s
	}
	return strings.Join(parts, Separator)
}

var componentEscaper = strings.NewReplacer(`\`, `\\`, Separator, `\`+Separator)

// IsAbsent reports whether an identifier component has not been assigned.
func IsAbsent(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return true
		}
		rv = rv.Elem()
	}
	return rv.IsZero()
}

func serialize(v any) (string, bool) {
	if IsAbsent(v) {
		return "", false
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}
	v = rv.Interface()

	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return hex.EncodeToString(t), true
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano), true
	case fmt.Stringer:
		return t.String(), true
	}

	switch rv.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return fmt.Sprintf("%v", v), true
	case reflect.Array, reflect.Slice:
		parts := make([]string, rv.Len())
		for i := range parts {
			s, ok := serialize(rv.Index(i).Interface())
			if !ok {
				return "", false
			}
			parts[i] = s
		}
		return "[" + strings.Join(parts, ",") + "]", true
	case reflect.Struct:
		rt := rv.Type()
		parts := make([]string, 0, rv.NumField())
		for i := 0; i < rv.NumField(); i++ {
			if !rt.Field(i).IsExported() {
				continue
			}
			s, _ := serialize(rv.Field(i).Interface())
			parts = append(parts, rt.Field(i).Name+":"+s)
		}
		return "{" + strings.Join(parts, ",") + "}", true
	}
	return fmt.Sprintf("%v", v), true
}
