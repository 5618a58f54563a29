package serviceclient

import (
	"fmt"
	"reflect"
	"strings"
)

// extractID pulls the identifier out of an entity by convention: a field
// named ID or json-tagged "id". Returns "" when the entity has neither.
func extractID(v any) string {
	f, ok := fieldByConvention(v, "ID", "id")
	if !ok {
		return ""
	}

	switch f.Kind() {
	case reflect.String:
		return f.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fmt.Sprintf("%d", f.Int())
	}
	if s, ok := f.Interface().(fmt.Stringer); ok {
		return s.String()
	}
	return ""
}

// extractVersion pulls the optimistic-concurrency version out of an entity.
// Zero means the entity carries no version and version checks are skipped.
func extractVersion(v any) int {
	f, ok := fieldByConvention(v, "Version", "version")
	if !ok {
		return 0
	}

	switch f.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(f.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(f.Uint())
	}
	return 0
}

func fieldByConvention(v any, name, tag string) (reflect.Value, bool) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Value{}, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		if sf.Name == name || jsonName(sf.Tag.Get("json")) == tag {
			return rv.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func jsonName(tag string) string {
	if tag == "" || tag == "-" {
		return ""
	}
	if i := strings.IndexByte(tag, ','); i >= 0 {
		return tag[:i]
	}
	return tag
}
