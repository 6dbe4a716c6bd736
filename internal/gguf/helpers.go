package gguf

import (
	"fmt"

	"github.com/samcharles93/strata/internal/ordered"
)

// KV is the decoded metadata table in file order.
type KV = ordered.Map[string, Value]

func GetString(kv *KV, key string) (string, bool) {
	v, ok := kv.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.Value.(string)
	return s, ok
}

func GetBool(kv *KV, key string) (bool, bool) {
	v, ok := kv.Get(key)
	if !ok {
		return false, false
	}
	b, ok := v.Value.(bool)
	return b, ok
}

func GetUint64(kv *KV, key string) (uint64, bool) {
	v, ok := kv.Get(key)
	if !ok {
		return 0, false
	}
	return asUint64(v.Value)
}

func GetInt64(kv *KV, key string) (int64, bool) {
	v, ok := kv.Get(key)
	if !ok {
		return 0, false
	}
	switch t := v.Value.(type) {
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint32:
		return int64(t), true
	default:
		return 0, false
	}
}

func GetFloat64(kv *KV, key string) (float64, bool) {
	v, ok := kv.Get(key)
	if !ok {
		return 0, false
	}
	switch t := v.Value.(type) {
	case float32:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

// GetArray retrieves a slice of type T from the key-value pairs.
// It checks that the value exists, is an array, and that all elements can be asserted to type T.
func GetArray[T any](kv *KV, key string) ([]T, bool) {
	v, ok := kv.Get(key)
	if !ok {
		return nil, false
	}
	arr, ok := v.Value.(ArrayValue)
	if !ok {
		return nil, false
	}

	out := make([]T, 0, len(arr.Values))
	for _, item := range arr.Values {
		tItem, ok := item.(T)
		if !ok {
			return nil, false
		}
		out = append(out, tItem)
	}
	return out, true
}

// FormatValue renders a metadata value on one line. Arrays are summarised
// by element type and length.
func FormatValue(v Value) string {
	switch val := v.Value.(type) {
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case ArrayValue:
		return fmt.Sprintf("array(%s) len=%d", val.ElemType.String(), len(val.Values))
	default:
		return fmt.Sprintf("%v", val)
	}
}

func asUint64(v any) (uint64, bool) {
	switch t := v.(type) {
	case uint8:
		return uint64(t), true
	case uint16:
		return uint64(t), true
	case uint32:
		return uint64(t), true
	case uint64:
		return t, true
	case int32:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	case int64:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	default:
		return 0, false
	}
}
