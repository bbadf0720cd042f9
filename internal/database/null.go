package database

import (
	"bytes"
	"database/sql"
	"encoding/json"
)

// Optional distinguishes "not supplied" from a supplied zero value
type Optional[T any] struct {
	Value T
	Set   bool
}

// Some returns a present Optional holding v
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

// Get returns the value and whether it was supplied
func (o Optional[T]) Get() (T, bool) {
	return o.Value, o.Set
}

// UnmarshalJSON marks the value present. A JSON null leaves it absent.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		o.Value, o.Set = zero, false
		return nil
	}
	if err := json.Unmarshal(data, &o.Value); err != nil {
		return err
	}
	o.Set = true
	return nil
}

// MarshalJSON writes null for an absent value
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// optionalToNull converts a string Optional to a nullable column value
func optionalToNull(o Optional[string]) sql.NullString {
	return sql.NullString{String: o.Value, Valid: o.Set}
}

// nullToOptional converts a nullable column value to an Optional
func nullToOptional(n sql.NullString) Optional[string] {
	if n.Valid {
		return Some(n.String)
	}
	return Optional[string]{}
}

// nullStringValue converts a sql.NullString to a string (empty if not valid)
func nullStringValue(n sql.NullString) string {
	if n.Valid {
		return n.String
	}
	return ""
}
