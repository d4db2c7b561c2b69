package enums

import (
	"fmt"
	"slices"
	"strings"
)

// members is the closed value set of one Postgres enum.
type members[T ~string] []T

func (m members[T]) has(v T) bool {
	return slices.Contains(m, v)
}

// parse matches raw against the set after fold, which may be nil.
func (m members[T]) parse(kind, raw string, fold func(string) string) (T, error) {
	candidate := raw
	if fold != nil {
		candidate = fold(raw)
	}
	if v := T(candidate); m.has(v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}

func lower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func upper(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
