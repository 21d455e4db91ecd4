package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-adaptive/internal/assessment"
	authmw "github.com/mind-engage/mindengage-adaptive/internal/auth/middleware"
	"github.com/mind-engage/mindengage-adaptive/internal/rbac"
)

// GET /attempts?assessment_id=...&student_id=...&status=...&limit=50&offset=0&sort=score+desc
// Without attempt:view-all the student filter is forced to the caller.
func ListAttemptsHandler(store assessment.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := assessment.AttemptListOpts{
			AssessmentID: strings.TrimSpace(q.Get("assessment_id")),
			StudentID:    strings.TrimSpace(q.Get("student_id")),
			Status:       assessment.Status(strings.TrimSpace(q.Get("status"))),
			Sort:         strings.TrimSpace(q.Get("sort")),
			Limit:        parseIntDefault(q.Get("limit"), 50),
			Offset:       parseIntDefault(q.Get("offset"), 0),
		}
		switch opts.Status {
		case "", assessment.StatusInProgress, assessment.StatusCompleted:
		default:
			badRequest(w, "status must be in_progress or completed")
			return
		}
		if !rbac.Can(r.Context(), "attempt:view-all") {
			opts.StudentID = authmw.SubjectFromContext(r.Context())
		}
		list, err := store.ListAttempts(r.Context(), opts)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}

type resultRow struct {
	AttemptID    string     `json:"attempt_id"`
	StudentID    string     `json:"student_id"`
	StudentName  string     `json:"student_name,omitempty"`
	Score        float64    `json:"score"`
	Passed       bool       `json:"passed"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	TimeSpentSec int64      `json:"time_spent_seconds"`
}

// GET /assessments/{assessmentID}/results  completed attempts, best first
func ResultsHandler(store assessment.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, "assessmentID")
		if _, err := store.GetAssessment(ctx, id); err != nil {
			respondError(w, r, log, err)
			return
		}
		list, err := store.ListAttempts(ctx, assessment.AttemptListOpts{
			AssessmentID: id,
			Status:       assessment.StatusCompleted,
			Sort:         "score desc",
			Limit:        parseIntDefault(r.URL.Query().Get("limit"), 100),
			Offset:       parseIntDefault(r.URL.Query().Get("offset"), 0),
		})
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		names := map[string]string{}
		out := make([]resultRow, 0, len(list))
		for _, a := range list {
			name, ok := names[a.StudentID]
			if !ok {
				st, err := store.GetStudent(ctx, a.StudentID)
				if err != nil && !errors.Is(err, assessment.ErrNotFound) {
					respondError(w, r, log, err)
					return
				}
				name = st.FullName
				names[a.StudentID] = name
			}
			row := resultRow{
				AttemptID:    a.ID,
				StudentID:    a.StudentID,
				StudentName:  name,
				Passed:       a.Passed,
				StartedAt:    a.StartedAt,
				EndedAt:      a.EndedAt,
				TimeSpentSec: int64(a.TimeSpent() / time.Second),
			}
			if a.Score != nil {
				row.Score = *a.Score
			}
			out = append(out, row)
		}
		respondJSON(w, http.StatusOK, out)
	}
}
