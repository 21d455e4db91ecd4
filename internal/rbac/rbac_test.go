package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPolicy(t *testing.T) {
	p := defaultPolicy
	assert.True(t, p.Allows(RoleStudent, "session:play"))
	assert.False(t, p.Allows(RoleStudent, "assessment:create"))
	assert.False(t, p.Allows(RoleStudent, "attempt:view-all"))
	assert.True(t, p.Allows(RoleFaculty, "attempt:view-all"))
	assert.False(t, p.Allows(RoleFaculty, "session:play"))
	assert.True(t, p.Allows(RoleAdmin, "anything:at-all"))
	assert.False(t, p.Allows("guest", "assessment:view"))
	assert.False(t, p.Allows("", "assessment:view"))
}

func TestWildcardSuffix(t *testing.T) {
	p := Policy{"ops": {"attempt:*"}}
	assert.True(t, p.Allows("ops", "attempt:view-all"))
	assert.False(t, p.Allows("ops", "assessment:view"))
	assert.True(t, p.AllowsAny("ops", "assessment:view", "attempt:view-own"))
	assert.False(t, p.AllowsAny("ops", "assessment:view", "events:view"))
}

func noContent(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }

func serve(h http.Handler, role string) int {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if role != "" {
		req = req.WithContext(WithRole(req.Context(), role))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRequire(t *testing.T) {
	h := Require("session:play")(http.HandlerFunc(noContent))
	assert.Equal(t, http.StatusForbidden, serve(h, ""))
	assert.Equal(t, http.StatusForbidden, serve(h, RoleFaculty))
	assert.Equal(t, http.StatusNoContent, serve(h, RoleStudent))

	h = RequireAny("attempt:view-own", "attempt:view-all")(http.HandlerFunc(noContent))
	assert.Equal(t, http.StatusNoContent, serve(h, RoleStudent))
	assert.Equal(t, http.StatusNoContent, serve(h, RoleFaculty))
	assert.Equal(t, http.StatusForbidden, serve(h, "guest"))
}

func TestRequireOwnerOr(t *testing.T) {
	owner := false
	h := RequireOwnerOr("students:upsert", func(*http.Request) bool { return owner })(http.HandlerFunc(noContent))

	assert.Equal(t, http.StatusForbidden, serve(h, RoleStudent))
	assert.Equal(t, http.StatusNoContent, serve(h, RoleFaculty), "permission suffices")
	owner = true
	assert.Equal(t, http.StatusNoContent, serve(h, RoleStudent), "ownership suffices")
}
