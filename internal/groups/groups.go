// Package groups resolves group ids, prefixes and regex patterns into groups.
package groups

import (
	"context"
	"fmt"
	"strings"

	"editgate/internal/domain"
)

type Mode string

const (
	ModeRegex  Mode = "regex"
	ModePrefix Mode = "prefix"
	ModeID     Mode = "id"
)

// Query is one group lookup. Only one of Regex, Prefix and ID is set.
type Query struct {
	Regex     string
	Prefix    string
	ID        string
	Signatory string
}

// ForPattern shapes a pattern lookup: the legacy regex form for "a|b" unions,
// the prefix form otherwise.
func ForPattern(pattern, signatory string) Query {
	if strings.Contains(pattern, "|") {
		return Query{Regex: pattern, Signatory: signatory}
	}
	return Query{Prefix: pattern, Signatory: signatory}
}

// ForID shapes a literal id lookup.
func ForID(id string) Query {
	return Query{ID: id}
}

func (q Query) Mode() Mode {
	switch {
	case q.Regex != "":
		return ModeRegex
	case q.ID != "":
		return ModeID
	default:
		return ModePrefix
	}
}

// Pattern returns the value of the active selector.
func (q Query) Pattern() string {
	switch q.Mode() {
	case ModeRegex:
		return q.Regex
	case ModeID:
		return q.ID
	default:
		return q.Prefix
	}
}

// Key identifies equal queries for request-level dedup.
func (q Query) Key() string {
	return string(q.Mode()) + "\x00" + q.Pattern() + "\x00" + q.Signatory
}

func (q Query) String() string {
	s := fmt.Sprintf("%s=%s", q.Mode(), q.Pattern())
	if q.Signatory != "" {
		s += " signatory=" + q.Signatory
	}
	return s
}

// Lookup fetches the groups matching a query. Implementations must not cache
// across calls.
type Lookup interface {
	Groups(ctx context.Context, q Query) ([]domain.Group, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, q Query) ([]domain.Group, error)

func (f LookupFunc) Groups(ctx context.Context, q Query) ([]domain.Group, error) {
	return f(ctx, q)
}

// LookupError is a failed remote lookup.
type LookupError struct {
	Query Query
	Err   error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("group lookup %s failed: %v", e.Query, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// IDs returns the group ids in order.
func IDs(gs []domain.Group) []string {
	ids := make([]string, 0, len(gs))
	for _, g := range gs {
		ids = append(ids, g.ID)
	}
	return ids
}
