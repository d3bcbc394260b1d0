// Package auth - scopes.go defines the fixed permission vocabulary carried by access tokens
// and the helpers used to normalize requested scope strings and check granted scopes.
package auth

import (
	"strings"
)

// Scope represents a permission/scope type
type Scope string

const (
	// Webhook scopes
	ScopeReadWebhooks   Scope = "read:webhooks"
	ScopeWriteWebhooks  Scope = "write:webhooks"
	ScopeDeleteWebhooks Scope = "delete:webhooks"

	// ScopeCall allows invoking a webhook. Tokens carrying it never expire.
	ScopeCall Scope = "call"

	// ScopeWildcard expands to every scope when requested.
	ScopeWildcard = "*"
)

// AllScopes returns all valid scopes in canonical order
func AllScopes() []Scope {
	return []Scope{
		ScopeReadWebhooks,
		ScopeWriteWebhooks,
		ScopeDeleteWebhooks,
		ScopeCall,
	}
}

// ValidScopes returns a map of valid scope strings
func ValidScopes() map[string]bool {
	validScopes := make(map[string]bool)
	for _, scope := range AllScopes() {
		validScopes[string(scope)] = true
	}
	return validScopes
}

// NormalizeScope reduces a requested, space separated scope string to the granted set.
// A "*" anywhere in the request expands to every scope. Unknown scopes are dropped
// without error and duplicates are removed. The result may be empty.
func NormalizeScope(requested string) string {
	fields := strings.Fields(requested)

	for _, f := range fields {
		if f == ScopeWildcard {
			return JoinScopes(AllScopes())
		}
	}

	valid := ValidScopes()
	seen := make(map[string]bool, len(fields))
	granted := make([]string, 0, len(fields))
	for _, f := range fields {
		if !valid[f] || seen[f] {
			continue
		}
		seen[f] = true
		granted = append(granted, f)
	}

	return strings.Join(granted, " ")
}

// ParseScopes splits a space separated scope string into its members
func ParseScopes(scope string) []string {
	return strings.Fields(scope)
}

// JoinScopes renders scopes as a single space separated string
func JoinScopes(scopes []Scope) string {
	parts := make([]string, len(scopes))
	for i, s := range scopes {
		parts[i] = string(s)
	}
	return strings.Join(parts, " ")
}

// NarrowScope returns the members of requested that are also present in granted.
// An empty request keeps the full granted set.
func NarrowScope(granted, requested string) string {
	requested = NormalizeScope(requested)
	if requested == "" {
		return granted
	}

	have := make(map[string]bool)
	for _, s := range ParseScopes(granted) {
		have[s] = true
	}

	kept := make([]string, 0)
	for _, s := range ParseScopes(requested) {
		if have[s] {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, " ")
}

// HasScope checks if a token carries a required scope.
// Scopes are independent: write does not imply read, and there is no admin wildcard.
func HasScope(userScopes []string, required Scope) bool {
	for _, scope := range userScopes {
		if scope == string(required) {
			return true
		}
	}
	return false
}

// MissingScopes returns the entries of required that userScopes lacks, in order.
func MissingScopes(userScopes []string, required []Scope) []Scope {
	var missing []Scope
	for _, r := range required {
		if !HasScope(userScopes, r) {
			missing = append(missing, r)
		}
	}
	return missing
}
