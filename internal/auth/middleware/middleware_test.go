package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-adaptive/internal/assessment"
	"github.com/mind-engage/mindengage-adaptive/internal/rbac"
)

func TestLoginIssuesVerifiableToken(t *testing.T) {
	a := NewAuthService("test-secret")
	rec := httptest.NewRecorder()
	body := `{"username":"s1","password":"s1","role":"student","full_name":"Ada"}`
	LoginHandler(a)(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "access_token")

	rec = httptest.NewRecorder()
	LoginHandler(a)(rec, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"username":"s1","password":"nope","role":"student"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	LoginHandler(a)(rec, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"username":"root","password":"root","role":"admin"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "admin tokens are not minted by dev login")
}

func TestJWTMiddlewareSetsSubjectAndRole(t *testing.T) {
	a := NewAuthService("test-secret")
	tok, err := a.IssueJWT("s1", rbac.RoleStudent, "Ada")
	require.NoError(t, err)

	var sub, role, name string
	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub = SubjectFromContext(r.Context())
		role = rbac.RoleFromContext(r.Context())
		name = NameFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s1", sub)
	assert.Equal(t, rbac.RoleStudent, role)
	assert.Equal(t, "Ada", name)
}

func TestJWTMiddlewareRejects(t *testing.T) {
	a := NewAuthService("test-secret")
	other := NewAuthService("another-secret")
	forged, err := other.IssueJWT("s1", rbac.RoleAdmin, "")
	require.NoError(t, err)

	expired := NewAuthService("test-secret")
	expired.now = func() time.Time { return time.Now().Add(-24 * time.Hour) }
	old, err := expired.IssueJWT("s1", rbac.RoleStudent, "")
	require.NoError(t, err)

	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	for name, header := range map[string]string{
		"missing": "",
		"scheme":  "Basic abc",
		"forged":  "Bearer " + forged,
		"expired": "Bearer " + old,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
	}
}

func TestEnsureStudentRegistersOnce(t *testing.T) {
	store := assessment.NewInMemoryStore()
	h := EnsureStudent(store, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	ctx := rbac.WithRole(WithSubject(context.Background(), "s9"), rbac.RoleStudent)
	ctx = withName(ctx, "Grace")
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))

	st, err := store.GetStudent(context.Background(), "s9")
	require.NoError(t, err)
	assert.Equal(t, "Grace", st.FullName)

	fctx := rbac.WithRole(WithSubject(context.Background(), "f1"), rbac.RoleFaculty)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil).WithContext(fctx))
	_, err = store.GetStudent(context.Background(), "f1")
	assert.ErrorIs(t, err, assessment.ErrNotFound)
}
