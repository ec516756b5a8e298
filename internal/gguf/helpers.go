package gguf

import (
	"fmt"
	"slices"
)

func GetString(kv map[string]Value, key string) (string, bool) {
	v, ok := kv[key]
	if !ok {
		return "", false
	}
	s, ok := v.Value.(string)
	return s, ok
}

func GetUint64(kv map[string]Value, key string) (uint64, bool) {
	v, ok := kv[key]
	if !ok {
		return 0, false
	}
	switch t := v.Value.(type) {
	case uint8:
		return uint64(t), true
	case uint16:
		return uint64(t), true
	case uint32:
		return uint64(t), true
	case uint64:
		return t, true
	case int8:
		return nonNegative(int64(t))
	case int16:
		return nonNegative(int64(t))
	case int32:
		return nonNegative(int64(t))
	case int64:
		return nonNegative(t)
	default:
		return 0, false
	}
}

func nonNegative(v int64) (uint64, bool) {
	if v < 0 {
		return 0, false
	}
	return uint64(v), true
}

// GetArray returns the elements of an array value as []T. It fails when the
// key is missing, is not an array, was skipped during parsing, or holds an
// element of another type.
func GetArray[T any](kv map[string]Value, key string) ([]T, bool) {
	v, ok := kv[key]
	if !ok {
		return nil, false
	}
	arr, ok := v.Value.(ArrayValue)
	if !ok || (arr.Values == nil && arr.Len > 0) {
		return nil, false
	}
	out := make([]T, 0, len(arr.Values))
	for _, item := range arr.Values {
		t, ok := item.(T)
		if !ok {
			return nil, false
		}
		out = append(out, t)
	}
	return out, true
}

func MustGetString(kv map[string]Value, key string) (string, error) {
	if s, ok := GetString(kv, key); ok {
		return s, nil
	}
	return "", fmt.Errorf("missing or invalid %s", key)
}

func sortedKeys(kv map[string]Value) []string {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Describe renders a value for display, eliding long strings and arrays.
func Describe(v Value) string {
	switch t := v.Value.(type) {
	case string:
		if len(t) > 80 {
			return fmt.Sprintf("%q... (%d bytes)", t[:80], len(t))
		}
		return fmt.Sprintf("%q", t)
	case ArrayValue:
		return fmt.Sprintf("[%s x %d]", t.ElemType, t.Len)
	default:
		return fmt.Sprint(t)
	}
}
