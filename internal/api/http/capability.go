package http

import (
	"context"
	"net/http"

	"github.com/mind-engage/coursehub/internal/apperr"
	authmw "github.com/mind-engage/coursehub/internal/auth/middleware"
	"github.com/mind-engage/coursehub/internal/rbac"
)

// EditCheck reports whether a user may edit the object with the given id;
// see rbac.Capabilities.
type EditCheck func(ctx context.Context, userID, id int64) (bool, error)

// canEdit grants admins everything and asks check for everyone else.
func canEdit(r *http.Request, check EditCheck, id int64) (bool, error) {
	if rbac.RoleFromContext(r.Context()) == rbac.RoleAdmin {
		return true, nil
	}
	uid, ok := authmw.UserID(r)
	if !ok {
		return false, nil
	}
	return check(r.Context(), uid, id)
}

// RequireEditor guards routes whose URL names the object being edited.
func RequireEditor(check EditCheck, param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := idParam(r, param)
			if err != nil {
				writeError(w, err)
				return
			}
			ok, err := canEdit(r, check, id)
			if err != nil {
				writeError(w, apperr.Storage("check edit access", err))
				return
			}
			if !ok {
				writeError(w, apperr.Forbidden("not allowed to edit this %s", param[:len(param)-2]))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CheckInstructorHandler answers {"can_edit": bool} for the URL object.
func CheckInstructorHandler(check EditCheck, param string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, param)
		if err != nil {
			writeError(w, err)
			return
		}
		ok, err := canEdit(r, check, id)
		if err != nil {
			writeError(w, apperr.Storage("check edit access", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"can_edit": ok})
	}
}
