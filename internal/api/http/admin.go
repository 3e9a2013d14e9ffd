package http

import (
	"net/http"
	"strconv"

	"github.com/mind-engage/coursehub/internal/apperr"
	"github.com/mind-engage/coursehub/internal/audit"
)

// AuditSearchHandler serves GET /admin/audit?type=&limit=, newest first.
func AuditSearchHandler(repo *audit.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, apperr.Validation("limit must be an integer"))
				return
			}
			limit = n
		}
		out, err := repo.List(r.Context(), r.URL.Query().Get("type"), limit)
		if err != nil {
			writeError(w, apperr.Storage("search audit log", err))
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}
