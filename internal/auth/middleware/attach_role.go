package auth

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-adaptive/internal/assessment"
	"github.com/mind-engage/mindengage-adaptive/internal/rbac"
)

// EnsureStudent registers the authenticated student on first sight so the
// engine can resolve them. Other roles pass through untouched.
func EnsureStudent(store assessment.Store, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sub := SubjectFromContext(ctx)
			if sub == "" || rbac.RoleFromContext(ctx) != rbac.RoleStudent {
				next.ServeHTTP(w, r)
				return
			}
			_, err := store.GetStudent(ctx, sub)
			switch {
			case err == nil:
			case errors.Is(err, assessment.ErrNotFound):
				if err := store.PutStudent(ctx, assessment.Student{ID: sub, FullName: NameFromContext(ctx)}); err != nil {
					log.Error("register student", zap.String("student_id", sub), zap.Error(err))
					http.Error(w, "internal error", http.StatusInternalServerError)
					return
				}
			default:
				log.Error("lookup student", zap.String("student_id", sub), zap.Error(err))
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
