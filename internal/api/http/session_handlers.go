package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	authmw "github.com/mind-engage/mindengage-adaptive/internal/auth/middleware"
	"github.com/mind-engage/mindengage-adaptive/internal/engine"
)

// Session routes act on the caller's own attempt; the student id is the
// token subject.

// GET /assessments/code/{code}/start
func StartByCodeHandler(eng *engine.Engine, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := strings.TrimSpace(chi.URLParam(r, "code"))
		s, err := eng.StartByCode(r.Context(), authmw.SubjectFromContext(r.Context()), code)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, s)
	}
}

// GET /sessions/{assessmentID}/next
func NextQuestionHandler(eng *engine.Engine, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := eng.NextQuestion(r.Context(), authmw.SubjectFromContext(r.Context()), chi.URLParam(r, "assessmentID"))
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}

// POST /sessions/{assessmentID}/answers  {"question_id": "...", "selected_option": 2}
func SubmitAnswerHandler(eng *engine.Engine, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			QuestionID     string `json:"question_id"`
			SelectedOption any    `json:"selected_option"`
		}
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&req); err != nil {
			badRequest(w, "bad json")
			return
		}
		if req.QuestionID == "" || req.SelectedOption == nil {
			badRequest(w, "question_id and selected_option required")
			return
		}
		g, err := eng.SubmitAnswer(r.Context(), authmw.SubjectFromContext(r.Context()),
			chi.URLParam(r, "assessmentID"), req.QuestionID, req.SelectedOption)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, g)
	}
}

// POST /sessions/{assessmentID}/complete
func CompleteHandler(eng *engine.Engine, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := eng.Complete(r.Context(), authmw.SubjectFromContext(r.Context()), chi.URLParam(r, "assessmentID"))
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}

// POST /sessions/{assessmentID}/form  {"target_count": 10}
func SelectFormHandler(eng *engine.Engine, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TargetCount int `json:"target_count"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			badRequest(w, "bad json")
			return
		}
		f, err := eng.SelectForm(r.Context(), chi.URLParam(r, "assessmentID"),
			authmw.SubjectFromContext(r.Context()), req.TargetCount)
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, f)
	}
}

// GET /sessions/{assessmentID}
func AttemptHandler(eng *engine.Engine, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := eng.Attempt(r.Context(), authmw.SubjectFromContext(r.Context()), chi.URLParam(r, "assessmentID"))
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, v)
	}
}
