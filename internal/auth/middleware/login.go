package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/coursehub/internal/db"
	"github.com/mind-engage/coursehub/internal/logger"
	"github.com/mind-engage/coursehub/internal/users"
)

var ErrUnknownUser = errors.New("auth: unknown user")

type Credential struct {
	UserID         int64
	Role           string
	PasswordHash   string
	ApprovalStatus string
	AccountStatus  string
}

type CredentialStore interface {
	// LookupByEmail returns ErrUnknownUser when no account matches.
	LookupByEmail(ctx context.Context, email string) (Credential, error)
}

type SQLCredentials struct{ db *db.DB }

func NewSQLCredentials(d *db.DB) *SQLCredentials { return &SQLCredentials{db: d} }

func (s *SQLCredentials) LookupByEmail(ctx context.Context, email string) (Credential, error) {
	var c Credential
	err := s.db.QueryRowContext(ctx,
		`SELECT id, role, password_hash, approval_status, account_status FROM users WHERE LOWER(email) = LOWER($1)`, email,
	).Scan(&c.UserID, &c.Role, &c.PasswordHash, &c.ApprovalStatus, &c.AccountStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return Credential{}, ErrUnknownUser
	}
	return c, err
}

// LoginHandler serves POST /auth/login {"email": "...", "password": "..."}.
func LoginHandler(a *AuthService, creds CredentialStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, "validation_failed", "bad json")
			return
		}
		email := strings.TrimSpace(req.Email)
		if email == "" || req.Password == "" {
			writeErr(w, http.StatusBadRequest, "validation_failed", "email and password are required")
			return
		}

		c, err := creds.LookupByEmail(r.Context(), email)
		switch {
		case errors.Is(err, ErrUnknownUser):
			unauthorized(w, "invalid credentials")
			return
		case err != nil:
			log.Error("credential lookup failed", "error", err)
			writeErr(w, http.StatusServiceUnavailable, "storage_unavailable", "storage unavailable")
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(req.Password)) != nil {
			unauthorized(w, "invalid credentials")
			return
		}
		if msg := blocked(c.ApprovalStatus, c.AccountStatus); msg != "" {
			writeErr(w, http.StatusForbidden, "forbidden", msg)
			return
		}

		tok, err := a.IssueJWT(c.UserID, c.Role)
		if err != nil {
			log.Error("issue token failed", "user_id", c.UserID, "error", err)
			writeErr(w, http.StatusInternalServerError, "internal", "issue token")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": tok,
			"token_type":   "Bearer",
			"user_id":      c.UserID,
			"role":         c.Role,
		})
	}
}

// blocked explains why an account may not sign in, or returns "".
func blocked(approval, account string) string {
	switch {
	case approval == users.ApprovalPending:
		return "account pending approval"
	case approval != users.ApprovalApproved:
		return "account not approved"
	case account != users.AccountActive:
		return "account suspended"
	}
	return ""
}
