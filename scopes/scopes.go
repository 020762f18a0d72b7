package scopes

import "strings"

// inheritance maps a granted scope to the scopes it implies. Both bare and
// mcp-prefixed hierarchies are covered; tool scopes (prefix "tool:") never
// inherit.
var inheritance = map[string][]string{
	"admin":     {"write", "read"},
	"write":     {"read"},
	"mcp:admin": {"mcp:write", "mcp:read"},
	"mcp:write": {"mcp:read"},
}

// ParseScopes splits a space-delimited scope string into tokens, dropping
// empties. Idempotent with ScopesToString.
func ParseScopes(s string) []string {
	return strings.Fields(s)
}

// ScopesToString joins scopes into a space-delimited string.
func ScopesToString(scopes []string) string {
	return strings.Join(scopes, " ")
}

// HasScopeWithInheritance reports whether the granted scopes satisfy the
// required scope, either directly or through the inheritance table.
func HasScopeWithInheritance(granted []string, required string) bool {
	for _, scope := range granted {
		if scope == required {
			return true
		}
		for _, implied := range inheritance[scope] {
			if implied == required {
				return true
			}
		}
	}
	return false
}

// CheckResult is the outcome of a scope check.
type CheckResult struct {
	Allowed bool
	Missing []string
	Message string
}

// CheckScopes verifies that every required scope is satisfied under
// inheritance.
func CheckScopes(granted, required []string) CheckResult {
	var missing []string
	for _, scope := range required {
		if !HasScopeWithInheritance(granted, scope) {
			missing = append(missing, scope)
		}
	}
	if len(missing) > 0 {
		return CheckResult{
			Missing: missing,
			Message: "missing required scopes: " + ScopesToString(missing),
		}
	}
	return CheckResult{Allowed: true, Message: "access granted"}
}
