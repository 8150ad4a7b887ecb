// Package validator holds the small checks recipes, inputs and template
// metadata are validated with. Every check names the offending field through
// its description argument.
package validator

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
)

// All returns the first non-nil error.
func All(errs ...error) error {
	return cmp.Or(errs...)
}

type Validatable interface {
	Validate() error
}

// Each validates items in order and prefixes the first failure with its
// position.
func Each[T Validatable](items []T) error {
	for i := range items {
		if err := items[i].Validate(); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

// Map runs check on every item, describing each as description[i].
func Map[T any](items []T, check func(item T, description string) error, description string) error {
	for i, item := range items {
		if err := check(item, fmt.Sprintf("%s[%d]", description, i)); err != nil {
			return err
		}
	}
	return nil
}

// MapDict checks entries in key order so the first reported error is stable.
func MapDict[T any](items map[string]T, check func(key string, item T) error, description string) error {
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if err := check(key, items[key]); err != nil {
			return fmt.Errorf("%s[%q]: %w", description, key, err)
		}
	}
	return nil
}

func NotEmpty(field, description string) error {
	if len(field) == 0 {
		return fmt.Errorf("%s must not be empty", description)
	}
	return nil
}

func NoDuplicates[T comparable](values []T, description string) error {
	seen := make(map[T]bool, len(values))
	for _, val := range values {
		if seen[val] {
			return fmt.Errorf("%s contains duplicate value: %v", description, val)
		}
		seen[val] = true
	}
	return nil
}

func MatchesAllowed[T comparable](field T, allowed []T, description string) error {
	if slices.Contains(allowed, field) {
		return nil
	}
	return fmt.Errorf("%s must be one of %v, got %v", description, allowed, field)
}

var templateSyntax = regexp.MustCompile(`\{[{%#]`)

// HasNoJinja rejects text that would be interpreted by the template engine:
// an expression, statement or comment opener.
func HasNoJinja(field string, description string) error {
	if templateSyntax.MatchString(field) {
		return fmt.Errorf("%s must not contain jinja templating", description)
	}
	return nil
}

var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Identifier accepts names usable as template variables and C++ identifiers.
func Identifier(field string, description string) error {
	if !identifierRe.MatchString(field) {
		return fmt.Errorf("%s must be an identifier, got %q", description, field)
	}
	return nil
}
