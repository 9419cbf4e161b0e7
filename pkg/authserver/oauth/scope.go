// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"slices"
	"strings"

	"github.com/ory/fosite"
)

// ParseScope splits a space-delimited scope parameter. Repeated spaces and
// surrounding whitespace are ignored; an empty string yields nil.
func ParseScope(raw string) []string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// JoinScope renders a scope list as the space-delimited wire form.
func JoinScope(scope []string) string {
	return strings.Join(scope, " ")
}

// IsSubset reports whether every entry of sub is present in set.
// The empty list is a subset of everything.
func IsSubset(sub, set []string) bool {
	return fosite.Arguments(set).Has(sub...)
}

// Intersect returns the entries of ordered that also appear in other,
// keeping the order of ordered and dropping duplicates.
func Intersect(ordered, other []string) []string {
	allowed := fosite.Arguments(other)
	result := make([]string, 0, len(ordered))
	for _, s := range ordered {
		if allowed.Has(s) && !slices.Contains(result, s) {
			result = append(result, s)
		}
	}
	return result
}

// IsProperSubset reports whether sub ⊂ set and sub != set.
func IsProperSubset(sub, set []string) bool {
	return IsSubset(sub, set) && !IsSubset(set, sub)
}

// Union returns the distinct entries of all lists in first-seen order.
func Union(lists ...[]string) []string {
	var result []string
	for _, list := range lists {
		for _, s := range list {
			if !slices.Contains(result, s) {
				result = append(result, s)
			}
		}
	}
	return result
}
