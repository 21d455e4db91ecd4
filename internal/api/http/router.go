package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-adaptive/internal/assessment"
	authmw "github.com/mind-engage/mindengage-adaptive/internal/auth/middleware"
	"github.com/mind-engage/mindengage-adaptive/internal/engine"
	"github.com/mind-engage/mindengage-adaptive/internal/rbac"
	syncx "github.com/mind-engage/mindengage-adaptive/internal/sync"
)

type Deps struct {
	Store  assessment.Store
	Engine *engine.Engine
	Auth   *authmw.AuthService
	Events syncx.Log
	Log    *zap.Logger
}

// Mount registers the protected API on r (JWT → role in context → RBAC).
func Mount(r chi.Router, d Deps) {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	r.Group(func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(d.Auth))
		pr.Use(authmw.EnsureStudent(d.Store, log))

		// Faculty: authoring and results
		pr.With(rbac.Require("assessment:create")).
			Post("/assessments", CreateAssessmentHandler(d.Store, log))
		pr.With(rbac.Require("assessment:view")).
			Get("/assessments", ListAssessmentsHandler(d.Store, log))
		pr.With(rbac.Require("assessment:view")).
			Get("/assessments/{assessmentID}", GetAssessmentHandler(d.Store, log))
		pr.With(rbac.Require("attempt:view-all")).
			Get("/assessments/{assessmentID}/results", ResultsHandler(d.Store, log))
		pr.With(rbac.RequireOwnerOr("students:upsert", ownsStudentRecord)).
			Put("/students/{studentID}", UpsertStudentHandler(d.Store, log))

		// Student flow
		pr.With(rbac.Require("session:start")).
			Get("/assessments/code/{code}/start", StartByCodeHandler(d.Engine, log))
		pr.Route("/sessions/{assessmentID}", func(sr chi.Router) {
			sr.Use(rbac.Require("session:play"))
			sr.Get("/", AttemptHandler(d.Engine, log))
			sr.Get("/next", NextQuestionHandler(d.Engine, log))
			sr.Post("/answers", SubmitAnswerHandler(d.Engine, log))
			sr.Post("/complete", CompleteHandler(d.Engine, log))
			sr.Post("/form", SelectFormHandler(d.Engine, log))
		})

		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts", ListAttemptsHandler(d.Store, log))
		if d.Events != nil {
			pr.With(rbac.Require("events:view")).
				Get("/events", ListEventsHandler(d.Events, log))
		}
	})
}

// Health mounts liveness and readiness probes. ready may be nil.
func Health(r chi.Router, ready func(r *http.Request) error) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r); err != nil {
				respondJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error(), Retryable: true})
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
}

// ownsStudentRecord admits a caller writing their own student record.
func ownsStudentRecord(r *http.Request) bool {
	ctx := r.Context()
	sub := authmw.SubjectFromContext(ctx)
	return sub != "" && sub == strings.TrimSpace(chi.URLParam(r, "studentID")) && rbac.Can(ctx, "students:upsert-self")
}
