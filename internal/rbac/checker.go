package rbac

import (
	"context"
	"strings"
)

// Policy maps a role to its granted permissions. A grant may be "*" or end
// in "*" to cover every permission with that prefix, e.g. "attempt:*".
type Policy map[string][]string

var defaultPolicy = Policy(RolePermissions)

// Allows reports whether role holds perm.
func (p Policy) Allows(role, perm string) bool {
	if role == "" {
		return false
	}
	for _, g := range p[role] {
		if grants(g, perm) {
			return true
		}
	}
	return false
}

// AllowsAny reports whether role holds at least one of perms.
func (p Policy) AllowsAny(role string, perms ...string) bool {
	for _, perm := range perms {
		if p.Allows(role, perm) {
			return true
		}
	}
	return false
}

func grants(grant, perm string) bool {
	if grant == "*" || grant == perm {
		return true
	}
	prefix, wild := strings.CutSuffix(grant, "*")
	return wild && strings.HasPrefix(perm, prefix)
}

type roleKey struct{}

// WithRole stores the caller's role; the JWT middleware sets it.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

func RoleFromContext(ctx context.Context) string {
	s, _ := ctx.Value(roleKey{}).(string)
	return s
}
