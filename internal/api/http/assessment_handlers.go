package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-adaptive/internal/assessment"
	authmw "github.com/mind-engage/mindengage-adaptive/internal/auth/middleware"
	"github.com/mind-engage/mindengage-adaptive/internal/rbac"
)

// POST /assessments  body: assessment.Draft
func CreateAssessmentHandler(store assessment.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var d assessment.Draft
		if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
			badRequest(w, "bad json")
			return
		}
		a, err := assessment.Build(d, authmw.SubjectFromContext(r.Context()), time.Now().UTC())
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		if err := store.PutAssessment(r.Context(), a); err != nil {
			respondError(w, r, log, err)
			return
		}
		log.Info("assessment created",
			zap.String("assessment_id", a.ID),
			zap.String("code", a.Code),
			zap.Int("questions", len(a.Questions)))
		respondJSON(w, http.StatusCreated, map[string]any{
			"id":              a.ID,
			"code":            a.Code,
			"total_questions": len(a.Questions),
		})
	}
}

// publicAssessment is the bank as shown to students: no answer key.
type publicAssessment struct {
	ID                 string                      `json:"id"`
	Code               string                      `json:"code"`
	Title              string                      `json:"title"`
	Description        string                      `json:"description,omitempty"`
	Level              string                      `json:"level,omitempty"`
	DurationSec        int                         `json:"duration_sec"`
	PassScore          float64                     `json:"pass_score"`
	QuestionsToAttempt int                         `json:"questions_to_attempt,omitempty"`
	Questions          []assessment.PublicQuestion `json:"questions"`
}

// GET /assessments/{assessmentID}
func GetAssessmentHandler(store assessment.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := store.GetAssessment(r.Context(), chi.URLParam(r, "assessmentID"))
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		if rbac.Can(r.Context(), "assessment:view-key") {
			respondJSON(w, http.StatusOK, a)
			return
		}
		pub := publicAssessment{
			ID:                 a.ID,
			Code:               a.Code,
			Title:              a.Title,
			Description:        a.Description,
			Level:              a.Level,
			DurationSec:        a.DurationSec,
			PassScore:          a.PassScore,
			QuestionsToAttempt: a.QuestionsToAttempt,
			Questions:          make([]assessment.PublicQuestion, 0, len(a.Questions)),
		}
		for _, q := range a.Questions {
			pub.Questions = append(pub.Questions, q.Public())
		}
		respondJSON(w, http.StatusOK, pub)
	}
}

// GET /assessments?q=...&mine=1&limit=50&offset=0
func ListAssessmentsHandler(store assessment.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := assessment.ListOpts{
			Q:      strings.TrimSpace(r.URL.Query().Get("q")),
			Limit:  parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset: parseIntDefault(r.URL.Query().Get("offset"), 0),
		}
		if r.URL.Query().Get("mine") == "1" {
			opts.CreatedBy = authmw.SubjectFromContext(r.Context())
		}
		list, err := store.ListAssessments(r.Context(), opts)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}
