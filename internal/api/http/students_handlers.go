package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-adaptive/internal/assessment"
)

// PUT /students/{studentID}  {"full_name": "...", "email": "..."}
func UpsertStudentHandler(store assessment.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "studentID"))
		var req struct {
			FullName string `json:"full_name"`
			Email    string `json:"email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "bad json")
			return
		}
		st := assessment.Student{ID: id, FullName: strings.TrimSpace(req.FullName), Email: strings.TrimSpace(req.Email)}
		if st.ID == "" || st.FullName == "" {
			badRequest(w, "student id and full_name required")
			return
		}
		if err := store.PutStudent(r.Context(), st); err != nil {
			respondError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, st)
	}
}
