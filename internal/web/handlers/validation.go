package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fstr/pereval/internal/database"
)

// submittedAtLayouts are tried in order; layouts without a zone are UTC.
// The mobile client sends "2006-01-02 15:04:05".
var submittedAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseSubmittedAt parses a client timestamp. An empty string yields the
// zero time, which the store replaces with the current time.
func ParseSubmittedAt(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range submittedAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &database.ValidationError{Field: "submitted_at", Message: fmt.Sprintf("unrecognized timestamp %q", s)}
}

// parseElevation accepts a JSON integer or an integer string
func parseElevation(n json.Number) (int64, error) {
	if n == "" {
		return 0, &database.ValidationError{Field: "coordinate.elevation", Message: "is required"}
	}
	v, err := n.Int64()
	if err != nil {
		return 0, &database.ValidationError{Field: "coordinate.elevation", Message: "must be an integer"}
	}
	return v, nil
}

// decodeError turns a JSON decoding failure into a validation error naming
// the offending field where the decoder reports one
func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return &database.ValidationError{Field: typeErr.Field, Message: "has the wrong type"}
	}
	return &database.ValidationError{Field: "body", Message: err.Error()}
}
