// Package record maps upstream Web API payloads onto store entities. Records are the
// decoded JSON objects exactly as the API returns them; every mapper is explicit about
// which fields are required and what an absent optional field becomes.
package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Record is one decoded JSON object. Numbers are json.Number when decoded with UseNumber;
// Go numeric types are accepted too.
type Record map[string]any

// ValidationError reports a record that cannot be mapped. It is fatal to that record only.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("field %q: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func missing(field string) error {
	return &ValidationError{Field: field, Reason: "required field missing"}
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Reason: "invalid value", Err: err}
}

// Has reports whether key is present and not null.
func (r Record) Has(key string) bool {
	v, ok := r[key]
	return ok && v != nil
}

// Int64 returns a required integer field.
func (r Record) Int64(key string) (int64, error) {
	v, ok := r[key]
	if !ok || v == nil {
		return 0, missing(key)
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, invalid(key, err)
	}
	return n, nil
}

// Int returns a required integer field that must fit in an int32.
func (r Record) Int(key string) (int, error) {
	n, err := r.Int64(key)
	if err != nil {
		return 0, err
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, invalid(key, fmt.Errorf("%d out of range", n))
	}
	return int(n), nil
}

// OptInt returns an optional integer field; absent or null yields nil.
func (r Record) OptInt(key string) (*int, error) {
	if !r.Has(key) {
		return nil, nil
	}
	n, err := r.Int(key)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// Uint64 returns a required non-negative integer field.
func (r Record) Uint64(key string) (uint64, error) {
	v, ok := r[key]
	if !ok || v == nil {
		return 0, missing(key)
	}
	n, err := toUint64(v)
	if err != nil {
		return 0, invalid(key, err)
	}
	return n, nil
}

// OptUint32 returns an optional field that must fit in 32 unsigned bits.
func (r Record) OptUint32(key string) (*uint32, error) {
	if !r.Has(key) {
		return nil, nil
	}
	n, err := r.Uint64(key)
	if err != nil {
		return nil, err
	}
	if n > math.MaxUint32 {
		return nil, invalid(key, fmt.Errorf("%d does not fit in 32 bits", n))
	}
	v := uint32(n)
	return &v, nil
}

// Bool returns a required boolean field. 0/1 integers are accepted.
func (r Record) Bool(key string) (bool, error) {
	v, ok := r[key]
	if !ok || v == nil {
		return false, missing(key)
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	default:
		n, err := toInt64(v)
		if err != nil || (n != 0 && n != 1) {
			return false, invalid(key, fmt.Errorf("not a boolean: %v", v))
		}
		return n == 1, nil
	}
}

// String returns a string field, "" when absent.
func (r Record) String(key string) (string, error) {
	v, ok := r[key]
	if !ok || v == nil {
		return "", nil
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case json.Number:
		return s.String(), nil
	default:
		return "", invalid(key, fmt.Errorf("not a string: %T", v))
	}
}

// Records returns a list of nested objects; absent yields nil.
func (r Record) Records(key string) ([]Record, error) {
	v, ok := r[key]
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		if typed, ok := v.([]Record); ok {
			return typed, nil
		}
		return nil, invalid(key, fmt.Errorf("not a list: %T", v))
	}
	out := make([]Record, 0, len(list))
	for i, item := range list {
		switch obj := item.(type) {
		case map[string]any:
			out = append(out, Record(obj))
		case Record:
			out = append(out, obj)
		default:
			return nil, invalid(fmt.Sprintf("%s[%d]", key, i), fmt.Errorf("not an object: %T", item))
		}
	}
	return out, nil
}

// Raw re-serializes a nested value without interpreting it; absent yields nil.
func (r Record) Raw(key string) ([]byte, error) {
	if !r.Has(key) {
		return nil, nil
	}
	b, err := json.Marshal(r[key])
	if err != nil {
		return nil, invalid(key, err)
	}
	return b, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		return strconv.ParseInt(n.String(), 10, 64)
	case string:
		return strconv.ParseInt(n, 10, 64)
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint32:
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) || n > math.MaxInt64 || n < math.MinInt64 {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unsupported number type %T", v)
	}
}

func toUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case json.Number:
		return strconv.ParseUint(n.String(), 10, 64)
	case string:
		return strconv.ParseUint(n, 10, 64)
	case uint64:
		return n, nil
	case uint32:
		return uint64(n), nil
	default:
		i, err := toInt64(v)
		if err != nil {
			return 0, err
		}
		if i < 0 {
			return 0, fmt.Errorf("%d is negative", i)
		}
		return uint64(i), nil
	}
}
