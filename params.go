package tagcache

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/unkn0wn-root/tagcache/internal/util"
)

// NormalizeParam turns a key parameter into its key fragment:
//
//	nil (or a nil pointer)  "null"
//	integer slice           SHA-1 of the sorted ids, so order does not matter
//	float32/float64         shortest plain decimal, no exponent
//	fmt.Stringer            String()
//	anything else           fmt.Sprint
func NormalizeParam(p any) string {
	switch v := p.(type) {
	case nil:
		return "null"
	case string:
		return v
	case []int:
		return util.HashIDs(widen(v))
	case []int8:
		return util.HashIDs(widen(v))
	case []int16:
		return util.HashIDs(widen(v))
	case []int32:
		return util.HashIDs(widen(v))
	case []int64:
		return util.HashIDs(v)
	case []uint:
		return util.HashUIDs(widenU(v))
	case []uint16:
		return util.HashUIDs(widenU(v))
	case []uint32:
		return util.HashUIDs(widenU(v))
	case []uint64:
		return util.HashUIDs(v)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		if isNilPointer(v) {
			return "null"
		}
		return v.String()
	}
	if isNilPointer(p) {
		return "null"
	}
	return fmt.Sprint(p)
}

func widen[T ~int | ~int8 | ~int16 | ~int32](s []T) []int64 {
	out := make([]int64, len(s))
	for i, v := range s {
		out[i] = int64(v)
	}
	return out
}

func widenU[T ~uint | ~uint16 | ~uint32](s []T) []uint64 {
	out := make([]uint64, len(s))
	for i, v := range s {
		out[i] = uint64(v)
	}
	return out
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// isAbsent reports whether v is the "nothing to cache" value: nil, or a nil
// pointer, map, slice, interface, channel or func.
func isAbsent[V any](v V) bool {
	rv := reflect.ValueOf(any(v))
	if !rv.IsValid() {
		return true
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func:
		return rv.IsNil()
	}
	return false
}
