package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mind-engage/mindengage-adaptive/internal/assessment"
	authmw "github.com/mind-engage/mindengage-adaptive/internal/auth/middleware"
	"github.com/mind-engage/mindengage-adaptive/internal/engine"
	"github.com/mind-engage/mindengage-adaptive/internal/oracle/oracletest"
	"github.com/mind-engage/mindengage-adaptive/internal/rbac"
	syncx "github.com/mind-engage/mindengage-adaptive/internal/sync"
)

type apiHarness struct {
	srv    *httptest.Server
	auth   *authmw.AuthService
	store  assessment.Store
}

func newAPI(t *testing.T, setup ...func(*oracletest.Fake)) *apiHarness {
	t.Helper()
	log := zaptest.NewLogger(t)
	store := assessment.NewInMemoryStore()
	fake := oracletest.New()
	for _, fn := range setup {
		fn(fake)
	}
	events := syncx.NewMemoryLog()
	eng := engine.New(store, fake, engine.WithLogger(log), engine.WithEvents(events), engine.WithSeed(1, 2))
	a := authmw.NewAuthService("handler-test-secret")

	r := chi.NewRouter()
	r.Post("/auth/login", authmw.LoginHandler(a))
	Mount(r, Deps{Store: store, Engine: eng, Auth: a, Events: events, Log: log})
	Health(r, nil)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &apiHarness{srv: srv, auth: a, store: store}
}

func (h *apiHarness) token(t *testing.T, sub, role string) string {
	t.Helper()
	tok, err := h.auth.IssueJWT(sub, role, strings.ToUpper(sub))
	require.NoError(t, err)
	return tok
}

func (h *apiHarness) do(t *testing.T, tok, method, path, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil && res.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

const draftJSON = `{
  "code": "ALG-1",
  "title": "Algebra basics",
  "duration_sec": 600,
  "pass_score": 50,
  "questions": [
    {"id": "q1", "text": "1+1", "options": ["1","2"], "correct_option": 1, "difficulty": "medium"},
    {"id": "q2", "text": "2+2", "options": ["4","5"], "correct_option": 0, "difficulty": 3},
    {"id": "q3", "text": "3+3", "options": ["5","6","7"], "correct_option": 1, "difficulty": "hard"}
  ]
}`

func (h *apiHarness) createAssessment(t *testing.T) string {
	t.Helper()
	var created struct {
		ID   string `json:"id"`
		Code string `json:"code"`
	}
	code := h.do(t, h.token(t, "prof", rbac.RoleFaculty), http.MethodPost, "/assessments", draftJSON, &created)
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, "ALG-1", created.Code)
	return created.ID
}

func TestHealth(t *testing.T) {
	h := newAPI(t)
	assert.Equal(t, http.StatusOK, h.do(t, "", http.MethodGet, "/healthz", "", nil))
	assert.Equal(t, http.StatusOK, h.do(t, "", http.MethodGet, "/readyz", "", nil))
}

func TestReadyzReportsDependencyFailure(t *testing.T) {
	r := chi.NewRouter()
	Health(r, func(*http.Request) error { return errors.New("db down") })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "db down")
}

func TestAuthoringRequiresFaculty(t *testing.T) {
	h := newAPI(t)
	assert.Equal(t, http.StatusUnauthorized, h.do(t, "", http.MethodPost, "/assessments", draftJSON, nil))
	assert.Equal(t, http.StatusForbidden,
		h.do(t, h.token(t, "s1", rbac.RoleStudent), http.MethodPost, "/assessments", draftJSON, nil))

	fac := h.token(t, "prof", rbac.RoleFaculty)
	assert.Equal(t, http.StatusBadRequest, h.do(t, fac, http.MethodPost, "/assessments", `{"code":"X"}`, nil))
	h.createAssessment(t)
	assert.Equal(t, http.StatusConflict, h.do(t, fac, http.MethodPost, "/assessments", draftJSON, nil))
}

func TestGetAssessmentStripsKeyForStudents(t *testing.T) {
	h := newAPI(t)
	id := h.createAssessment(t)

	var raw map[string]any
	require.Equal(t, http.StatusOK, h.do(t, h.token(t, "s1", rbac.RoleStudent), http.MethodGet, "/assessments/"+id, "", &raw))
	qs := raw["questions"].([]any)
	require.Len(t, qs, 3)
	for _, q := range qs {
		assert.NotContains(t, q.(map[string]any), "correct_option")
	}

	raw = nil
	require.Equal(t, http.StatusOK, h.do(t, h.token(t, "prof", rbac.RoleFaculty), http.MethodGet, "/assessments/"+id, "", &raw))
	assert.Contains(t, raw["questions"].([]any)[0].(map[string]any), "correct_option")

	assert.Equal(t, http.StatusNotFound,
		h.do(t, h.token(t, "prof", rbac.RoleFaculty), http.MethodGet, "/assessments/missing", "", nil))
}

func TestAdaptiveSessionOverHTTP(t *testing.T) {
	h := newAPI(t)
	id := h.createAssessment(t)
	stu := h.token(t, "s1", rbac.RoleStudent)

	var sess engine.Session
	require.Equal(t, http.StatusOK, h.do(t, stu, http.MethodGet, "/assessments/code/ALG-1/start", "", &sess))
	assert.Equal(t, id, sess.AssessmentID)
	assert.Equal(t, engine.ModeAdaptive, sess.Mode)
	assert.Equal(t, 3, sess.TotalQuestions)

	st, err := h.store.GetStudent(t.Context(), "s1")
	require.NoError(t, err, "student is registered on first request")
	assert.Equal(t, "S1", st.FullName)

	answered := 0
	for {
		var next engine.NextResult
		require.Equal(t, http.StatusOK, h.do(t, stu, http.MethodGet, "/sessions/"+id+"/next", "", &next))
		if next.Done {
			assert.Equal(t, engine.ReasonExhausted, next.Reason)
			break
		}
		require.NotNil(t, next.Question)
		body := `{"question_id":"` + next.Question.ID + `","selected_option":"1"}`
		var g engine.Grade
		require.Equal(t, http.StatusOK, h.do(t, stu, http.MethodPost, "/sessions/"+id+"/answers", body, &g))
		answered++
		assert.Equal(t, answered, g.Answered)

		assert.Equal(t, http.StatusConflict,
			h.do(t, stu, http.MethodPost, "/sessions/"+id+"/answers", body, nil), "second answer to the same question")
	}
	assert.Equal(t, 3, answered)

	var res engine.Result
	require.Equal(t, http.StatusOK, h.do(t, stu, http.MethodPost, "/sessions/"+id+"/complete", "", &res))
	assert.Equal(t, 3, res.Answered)
	assert.False(t, res.AlreadyCompleted)

	// q1 and q3 have option 1 correct.
	assert.Equal(t, 2, res.Correct)
	assert.InDelta(t, 66.67, res.Score, 0.01)
	assert.True(t, res.Passed)

	require.Equal(t, http.StatusOK, h.do(t, stu, http.MethodPost, "/sessions/"+id+"/complete", "", &res))
	assert.True(t, res.AlreadyCompleted)

	var after engine.NextResult
	require.Equal(t, http.StatusOK, h.do(t, stu, http.MethodGet, "/sessions/"+id+"/next", "", &after))
	assert.True(t, after.Done)
	assert.Equal(t, engine.ReasonCompleted, after.Reason)
	assert.Equal(t, http.StatusForbidden, h.do(t, stu, http.MethodGet, "/assessments/code/ALG-1/start", "", nil))
	assert.Equal(t, http.StatusForbidden,
		h.do(t, stu, http.MethodPost, "/sessions/"+id+"/answers", `{"question_id":"q1","selected_option":1}`, nil))

	var view engine.AttemptView
	require.Equal(t, http.StatusOK, h.do(t, stu, http.MethodGet, "/sessions/"+id, "", &view))
	assert.Equal(t, assessment.StatusCompleted, view.Status)

	var rows []resultRow
	require.Equal(t, http.StatusOK,
		h.do(t, h.token(t, "prof", rbac.RoleFaculty), http.MethodGet, "/assessments/"+id+"/results", "", &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "s1", rows[0].StudentID)
	assert.Equal(t, "S1", rows[0].StudentName)
	assert.Equal(t, http.StatusForbidden, h.do(t, stu, http.MethodGet, "/assessments/"+id+"/results", "", nil))
}

func TestSubmitAnswerValidation(t *testing.T) {
	h := newAPI(t)
	id := h.createAssessment(t)
	stu := h.token(t, "s1", rbac.RoleStudent)

	assert.Equal(t, http.StatusBadRequest, h.do(t, stu, http.MethodPost, "/sessions/"+id+"/answers", `{`, nil))
	assert.Equal(t, http.StatusBadRequest, h.do(t, stu, http.MethodPost, "/sessions/"+id+"/answers", `{"question_id":"q1"}`, nil))
	assert.Equal(t, http.StatusNotFound,
		h.do(t, stu, http.MethodPost, "/sessions/"+id+"/answers", `{"question_id":"q1","selected_option":1}`, nil),
		"no attempt yet")

	var next engine.NextResult
	require.Equal(t, http.StatusOK, h.do(t, stu, http.MethodGet, "/sessions/"+id+"/next", "", &next))
	require.NotNil(t, next.Question)
	unserved := "q1"
	if next.Question.ID == "q1" {
		unserved = "q2"
	}
	assert.Equal(t, http.StatusConflict,
		h.do(t, stu, http.MethodPost, "/sessions/"+id+"/answers", `{"question_id":"`+unserved+`","selected_option":1}`, nil),
		"answering a question that was never served")
	assert.Equal(t, http.StatusBadRequest,
		h.do(t, stu, http.MethodPost, "/sessions/"+id+"/answers", `{"question_id":"`+next.Question.ID+`","selected_option":"abc"}`, nil))
	var g engine.Grade
	require.Equal(t, http.StatusOK,
		h.do(t, stu, http.MethodPost, "/sessions/"+id+"/answers", `{"question_id":"`+next.Question.ID+`","selected_option":7}`, &g))
	assert.False(t, g.Correct, "an index naming no option is recorded as wrong")
}

func TestNextQuestionOracleDown(t *testing.T) {
	h := newAPI(t, func(f *oracletest.Fake) { f.NextErr = errors.New("connection refused") })
	id := h.createAssessment(t)

	req, err := http.NewRequest(http.MethodGet, h.srv.URL+"/sessions/"+id+"/next", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+h.token(t, "s1", rbac.RoleStudent))
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Equal(t, "1", res.Header.Get("Retry-After"))
	var body errorBody
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.True(t, body.Retryable)
}

func TestSelectFormOverHTTP(t *testing.T) {
	h := newAPI(t)
	id := h.createAssessment(t)
	stu := h.token(t, "s1", rbac.RoleStudent)

	var f engine.Form
	require.Equal(t, http.StatusOK, h.do(t, stu, http.MethodPost, "/sessions/"+id+"/form", `{"target_count":2}`, &f))
	assert.Len(t, f.Questions, 2)
	assert.False(t, f.Cached)

	var again engine.Form
	require.Equal(t, http.StatusOK, h.do(t, stu, http.MethodPost, "/sessions/"+id+"/form", "", &again))
	assert.True(t, again.Cached)
	assert.Equal(t, f.Questions, again.Questions)
}

func TestListAttemptsScopedToCaller(t *testing.T) {
	h := newAPI(t)
	id := h.createAssessment(t)
	for _, s := range []string{"s1", "s2"} {
		require.Equal(t, http.StatusOK,
			h.do(t, h.token(t, s, rbac.RoleStudent), http.MethodGet, "/assessments/code/ALG-1/start", "", nil))
	}

	var mine []assessment.Attempt
	require.Equal(t, http.StatusOK,
		h.do(t, h.token(t, "s1", rbac.RoleStudent), http.MethodGet, "/attempts?student_id=s2", "", &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, "s1", mine[0].StudentID)

	var all []assessment.Attempt
	require.Equal(t, http.StatusOK,
		h.do(t, h.token(t, "prof", rbac.RoleFaculty), http.MethodGet, "/attempts?assessment_id="+id, "", &all))
	assert.Len(t, all, 2)

	assert.Equal(t, http.StatusBadRequest,
		h.do(t, h.token(t, "prof", rbac.RoleFaculty), http.MethodGet, "/attempts?status=bogus", "", nil))
}

func TestUpsertStudent(t *testing.T) {
	h := newAPI(t)
	stu := h.token(t, "s1", rbac.RoleStudent)

	assert.Equal(t, http.StatusOK,
		h.do(t, stu, http.MethodPut, "/students/s1", `{"full_name":"Ada Lovelace"}`, nil))
	st, err := h.store.GetStudent(t.Context(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", st.FullName)

	assert.Equal(t, http.StatusForbidden,
		h.do(t, stu, http.MethodPut, "/students/s2", `{"full_name":"Mallory"}`, nil))
	assert.Equal(t, http.StatusOK,
		h.do(t, h.token(t, "prof", rbac.RoleFaculty), http.MethodPut, "/students/s2", `{"full_name":"Bob"}`, nil))
	assert.Equal(t, http.StatusBadRequest,
		h.do(t, h.token(t, "prof", rbac.RoleFaculty), http.MethodPut, "/students/s3", `{}`, nil))
}

func TestEventsFeed(t *testing.T) {
	h := newAPI(t)
	h.createAssessment(t)
	require.Equal(t, http.StatusOK,
		h.do(t, h.token(t, "s1", rbac.RoleStudent), http.MethodGet, "/assessments/code/ALG-1/start", "", nil))

	var evs []syncx.Event
	require.Equal(t, http.StatusOK,
		h.do(t, h.token(t, "prof", rbac.RoleFaculty), http.MethodGet, "/events?after=0", "", &evs))
	require.NotEmpty(t, evs)
	assert.Equal(t, syncx.TypeAttemptStarted, evs[0].Type)

	assert.Equal(t, http.StatusBadRequest,
		h.do(t, h.token(t, "prof", rbac.RoleFaculty), http.MethodGet, "/events?after=-1", "", nil))
	assert.Equal(t, http.StatusForbidden,
		h.do(t, h.token(t, "s1", rbac.RoleStudent), http.MethodGet, "/events", "", nil))
}
