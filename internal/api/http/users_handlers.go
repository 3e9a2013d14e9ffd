package http

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/mind-engage/coursehub/internal/apperr"
	authmw "github.com/mind-engage/coursehub/internal/auth/middleware"
	"github.com/mind-engage/coursehub/internal/users"
)

// ListUsersHandler serves GET /users?role=&approval_status=&account_status=.
func ListUsersHandler(svc *users.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		out, err := svc.List(r.Context(), users.Filter{
			Role:           q.Get("role"),
			ApprovalStatus: q.Get("approval_status"),
			AccountStatus:  q.Get("account_status"),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func GetUserHandler(svc *users.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "userID")
		if err != nil {
			writeError(w, err)
			return
		}
		u, err := svc.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

// RegisterHandler serves the public POST /auth/register.
func RegisterHandler(svc *users.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in users.Registration
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, err)
			return
		}
		u, err := svc.Register(r.Context(), in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, u)
	}
}

func ProfileHandler(svc *users.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := authmw.UserID(r)
		if !ok {
			writeError(w, apperr.Forbidden("unknown caller"))
			return
		}
		u, err := svc.Get(r.Context(), uid)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

func UpdateProfileHandler(svc *users.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := authmw.UserID(r)
		if !ok {
			writeError(w, apperr.Forbidden("unknown caller"))
			return
		}
		var in users.ProfileUpdate
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, err)
			return
		}
		u, err := svc.UpdateProfile(r.Context(), uid, in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

// BulkUpsertUsersHandler accepts a JSON array body, or a multipart file=
// holding either JSON or CSV (header: full_name,email[,role,phone,password]).
func BulkUpsertUsersHandler(svc *users.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rows []users.UpsertRow
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			f, _, err := r.FormFile("file")
			if err != nil {
				writeError(w, apperr.Validation("file required"))
				return
			}
			defer f.Close()
			if rows, err = parseUserFile(f); err != nil {
				writeError(w, err)
				return
			}
		} else if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			writeError(w, apperr.Validation("expected JSON array or multipart file"))
			return
		}
		if len(rows) == 0 {
			writeJSON(w, http.StatusOK, map[string]int{"inserted": 0, "updated": 0})
			return
		}

		ins, upd, err := svc.BulkUpsert(r.Context(), rows)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"inserted": ins, "updated": upd})
	}
}

// parseUserFile sniffs JSON vs CSV by the first byte.
func parseUserFile(f io.ReadSeeker) ([]users.UpsertRow, error) {
	buf := make([]byte, 1)
	if _, err := f.Read(buf); err != nil {
		return nil, apperr.Validation("empty file")
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, apperr.Validation("unreadable file")
	}
	var rows []users.UpsertRow
	if buf[0] == '[' {
		if err := json.NewDecoder(f).Decode(&rows); err != nil {
			return nil, apperr.Validation("bad json")
		}
		return rows, nil
	}
	rows, err := parseCSV(f)
	if err != nil {
		return nil, apperr.Validation("bad csv: %v", err)
	}
	return rows, nil
}

func parseCSV(r io.Reader) ([]users.UpsertRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	hdr, err := cr.Read()
	if err != nil {
		return nil, err
	}
	idx := map[string]int{}
	for i, h := range hdr {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, k := range []string{"full_name", "email"} {
		if _, ok := idx[k]; !ok {
			return nil, errors.New("missing column: " + k)
		}
	}
	col := func(rec []string, name string) string {
		if i, ok := idx[name]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}
	var rows []users.UpsertRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := users.UpsertRow{
			FullName: col(rec, "full_name"),
			Email:    col(rec, "email"),
			Role:     col(rec, "role"),
			Password: col(rec, "password"),
		}
		if p := col(rec, "phone"); p != "" {
			row.Phone = &p
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func ChangePasswordHandler(svc *users.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := authmw.UserID(r)
		if !ok {
			writeError(w, apperr.Forbidden("unknown caller"))
			return
		}
		var req users.PasswordChange
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		if err := svc.ChangePassword(r.Context(), uid, req); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// UpdateUserRoleHandler serves PATCH /admin/users/{userID}/role {"role": "..."}.
func UpdateUserRoleHandler(svc *users.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "userID")
		if err != nil {
			writeError(w, err)
			return
		}
		var req struct {
			Role string `json:"role"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		adminID, _ := authmw.UserID(r)
		u, err := svc.SetRole(r.Context(), adminID, id, req.Role)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

// UpdateUserStatusHandler serves PATCH /admin/users/{userID}/status
// {"approval_status": "...", "account_status": "...", "notes": "..."}.
func UpdateUserStatusHandler(svc *users.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "userID")
		if err != nil {
			writeError(w, err)
			return
		}
		var in users.StatusChange
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, err)
			return
		}
		adminID, _ := authmw.UserID(r)
		u, err := svc.SetStatus(r.Context(), adminID, id, in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}
