package http

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	syncx "github.com/mind-engage/mindengage-adaptive/internal/sync"
)

// GET /events?after=0&limit=100  session event log, oldest first
func ListEventsHandler(events syncx.Log, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var after int64
		if s := r.URL.Query().Get("after"); s != "" {
			v, err := strconv.ParseInt(s, 10, 64)
			if err != nil || v < 0 {
				badRequest(w, "after must be a non-negative integer")
				return
			}
			after = v
		}
		list, err := events.Since(r.Context(), after, parseIntDefault(r.URL.Query().Get("limit"), 100))
		if err != nil {
			respondError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}
