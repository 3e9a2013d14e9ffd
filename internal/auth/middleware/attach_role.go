package auth

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/mind-engage/coursehub/internal/db"
	"github.com/mind-engage/coursehub/internal/logger"
	"github.com/mind-engage/coursehub/internal/rbac"
)

// AttachRoleFromDB replaces the claimed role with the one stored for the
// subject, so role changes apply before old tokens expire. A deleted user is
// rejected, and so is one that has been suspended or is no longer approved. allowClaimFallback keeps the claimed role when the lookup itself
// fails (offline mode); otherwise such requests are refused.
func AttachRoleFromDB(d *db.DB, allowClaimFallback bool, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			id, ok := UserID(r)
			if !ok {
				unauthorized(w, "invalid subject")
				return
			}

			var role, approval, account string
			err := d.QueryRowContext(ctx,
				`SELECT role, approval_status, account_status FROM users WHERE id = $1`, id,
			).Scan(&role, &approval, &account)
			switch {
			case err == nil:
				if msg := blocked(approval, account); msg != "" {
					writeErr(w, http.StatusForbidden, "forbidden", msg)
					return
				}
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, role)))
			case errors.Is(err, sql.ErrNoRows):
				unauthorized(w, "unknown user")
			default:
				log.Warn("role lookup failed", "user_id", id, "error", err)
				if allowClaimFallback && rbac.RoleFromContext(ctx) != "" {
					next.ServeHTTP(w, r)
					return
				}
				writeErr(w, http.StatusServiceUnavailable, "storage_unavailable", "storage unavailable")
			}
		})
	}
}
