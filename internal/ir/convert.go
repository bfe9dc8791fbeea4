package ir

import (
	"fmt"
	"math"
	"reflect"
	"time"
)

// FromGo converts a Go value into an IRValue.
//
// Supported: nil, IRValue (passed through), strings, signed and unsigned
// integers, finite floats, bools, time.Time, named types whose underlying
// kind is one of the above, and slices/arrays of any supported element.
// []byte is rejected; bytes never appear as literals.
func FromGo(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case IRValue:
		return val, nil
	case string:
		return IRString(val), nil
	case bool:
		return IRBool(val), nil
	case int:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case int32:
		return IRInt(val), nil
	case float64:
		return fromFloat(val)
	case time.Time:
		return NewIRTime(val), nil
	case *time.Time:
		if val == nil {
			return IRNull{}, nil
		}
		return NewIRTime(*val), nil
	case []byte:
		return nil, fmt.Errorf("unsupported literal type []byte")
	}
	return fromReflect(reflect.ValueOf(v))
}

func fromReflect(rv reflect.Value) (IRValue, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return IRNull{}, nil
		}
		return FromGo(rv.Elem().Interface())
	case reflect.String:
		return IRString(rv.String()), nil
	case reflect.Bool:
		return IRBool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return IRInt(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("unsigned value %d overflows int64", u)
		}
		return IRInt(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		return fromFloat(rv.Float())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return IRArray{}, nil
		}
		arr := make(IRArray, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elem, err := FromGo(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = elem
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unsupported literal type %s", rv.Type())
	}
}

func fromFloat(f float64) (IRValue, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite float %v is not a valid literal", f)
	}
	return IRFloat(f), nil
}

// ToGo converts an IRValue into the Go value handed to a database driver.
// Arrays become []any; use ToGoSlice when a typed slice is required.
func ToGo(v IRValue) any {
	switch val := v.(type) {
	case nil, IRNull:
		return nil
	case IRString:
		return string(val)
	case IRInt:
		return int64(val)
	case IRFloat:
		return float64(val)
	case IRBool:
		return bool(val)
	case IRTime:
		return val.Time()
	case IRArray:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToGo(elem)
		}
		return out
	case IRObject:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToGo(elem)
		}
		return out
	default:
		return nil
	}
}

// ToGoSlice converts a homogeneous IRArray into a typed slice
// ([]string, []int64, []float64, []bool or []time.Time). Drivers that bind
// arrays as a single parameter need the typed form. Mixed or empty arrays
// fall back to []any.
func ToGoSlice(arr IRArray) any {
	if len(arr) == 0 {
		return []any{}
	}
	switch arr[0].(type) {
	case IRString:
		return typedSlice[IRString, string](arr, func(v IRString) string { return string(v) })
	case IRInt:
		return typedSlice[IRInt, int64](arr, func(v IRInt) int64 { return int64(v) })
	case IRFloat:
		return typedSlice[IRFloat, float64](arr, func(v IRFloat) float64 { return float64(v) })
	case IRBool:
		return typedSlice[IRBool, bool](arr, func(v IRBool) bool { return bool(v) })
	case IRTime:
		return typedSlice[IRTime, time.Time](arr, IRTime.Time)
	}
	return ToGo(arr)
}

func typedSlice[V IRValue, T any](arr IRArray, conv func(V) T) any {
	out := make([]T, len(arr))
	for i, elem := range arr {
		v, ok := elem.(V)
		if !ok {
			return ToGo(arr)
		}
		out[i] = conv(v)
	}
	return out
}
