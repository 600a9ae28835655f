package omitnilpointers

import (
	"reflect"
)

// OmitNilPointers drops nil entries from fields and dereferences the
// remaining pointers, so the result can be written as a redis hash.
func OmitNilPointers(fields map[string]any) map[string]any {
	omitted := make(map[string]any, len(fields))
	for key, value := range fields {
		if value == nil {
			continue
		}

		v := reflect.ValueOf(value)
		for v.Kind() == reflect.Ptr {
			if v.IsNil() {
				break
			}
			v = v.Elem()
		}

		if v.Kind() == reflect.Ptr {
			continue
		}

		omitted[key] = v.Interface()
	}

	return omitted
}
