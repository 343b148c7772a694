// Package normalization maps free-form operator input (YAML values, env vars,
// flags) onto typed enumerations.
package normalization

import (
	"fmt"
	"slices"
	"strings"
)

// Enum resolves case-insensitive spellings and aliases to values of T.
type Enum[T comparable] struct {
	name     string
	fallback T
	values   map[string]T
	accepted []string
}

// NewEnum builds an Enum named name. Keys of spellings are folded to lower case;
// fallback is what Or returns for unknown input.
func NewEnum[T comparable](name string, spellings map[string]T, fallback T) *Enum[T] {
	e := &Enum[T]{
		name:     name,
		fallback: fallback,
		values:   make(map[string]T, len(spellings)),
	}
	for spelling, v := range spellings {
		key := fold(spelling)
		e.values[key] = v
		e.accepted = append(e.accepted, key)
	}
	slices.Sort(e.accepted)
	return e
}

// Lookup resolves raw without falling back.
func (e *Enum[T]) Lookup(raw string) (T, bool) {
	v, ok := e.values[fold(raw)]
	return v, ok
}

// Or resolves raw, returning the fallback for unknown spellings.
func (e *Enum[T]) Or(raw string) T {
	if v, ok := e.Lookup(raw); ok {
		return v
	}
	return e.fallback
}

// Parse resolves raw or returns an error listing the accepted spellings.
func (e *Enum[T]) Parse(raw string) (T, error) {
	if v, ok := e.Lookup(raw); ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("unknown %s %q (accepted: %s)", e.name, raw, strings.Join(e.accepted, ", "))
}

// Accepted lists every recognised spelling in sorted order.
func (e *Enum[T]) Accepted() []string {
	return slices.Clone(e.accepted)
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
