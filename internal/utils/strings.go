package utils

import (
	"strings"
)

// NormalizeSpace collapses repeated whitespace into a single space.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeSeat trims and upper-cases a seat label ("a1 " -> "A1").
func NormalizeSeat(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// SplitSeatList splits comma/semicolon separated seat strings into cleaned slices.
func SplitSeatList(raw string) []string {
	out := []string{}
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	})
	for _, p := range parts {
		if p = NormalizeSeat(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DedupeSeats drops empty labels and keeps the first occurrence of each seat.
func DedupeSeats(seats []string) []string {
	seen := make(map[string]struct{}, len(seats))
	out := make([]string, 0, len(seats))
	for _, s := range seats {
		s = NormalizeSeat(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
