package profile

import (
	"context"
	"errors"
	"maps"
	"strings"
)

// ErrEmpty is returned when no profile fields are configured
var ErrEmpty = errors.New("profile has no fields")

// Static serves a fixed set of form values
type Static struct {
	fields map[string]string
}

// NewStatic copies fields, lowercasing the keys
func NewStatic(fields map[string]string) *Static {
	s := &Static{fields: make(map[string]string, len(fields))}
	for k, v := range fields {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			s.fields[k] = v
		}
	}
	return s
}

// Fields implements core.ProfileProvider. Callers get their own copy.
func (s *Static) Fields(_ context.Context) (map[string]string, error) {
	if len(s.fields) == 0 {
		return nil, ErrEmpty
	}
	return maps.Clone(s.fields), nil
}
