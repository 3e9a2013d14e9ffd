// Package users manages accounts: self-registration, profiles, listing, bulk
// import, password changes and the admin role and status changes.
package users

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/coursehub/internal/apperr"
	"github.com/mind-engage/coursehub/internal/audit"
	"github.com/mind-engage/coursehub/internal/db"
	"github.com/mind-engage/coursehub/internal/logger"
	"github.com/mind-engage/coursehub/internal/rbac"
	"github.com/mind-engage/coursehub/internal/validation"
)

// Approval and account states stored on users.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"

	AccountActive    = "active"
	AccountSuspended = "suspended"
)

type User struct {
	ID             int64     `json:"user_id"`
	FullName       string    `json:"full_name"`
	Email          string    `json:"email"`
	Username       *string   `json:"username"`
	Phone          *string   `json:"phone"`
	Role           string    `json:"role"`
	ApprovalStatus string    `json:"approval_status"`
	AccountStatus  string    `json:"account_status"`
	CreatedAt      time.Time `json:"created_at"`
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Role           string
	ApprovalStatus string
	AccountStatus  string
}

// Registration is a self-service sign-up. Admin accounts cannot be
// requested this way.
type Registration struct {
	FirstName string  `json:"first_name" validate:"required,max=120"`
	LastName  string  `json:"last_name" validate:"required,max=120"`
	Username  string  `json:"username" validate:"required,min=3,max=64,alphanum"`
	Email     string  `json:"email" validate:"required,email,max=255"`
	Phone     *string `json:"phone" validate:"omitempty,max=64"`
	Password  string  `json:"password" validate:"required,min=8,max=72"`
	Role      string  `json:"role" validate:"required,oneof=learner instructor"`
}

// ProfileUpdate changes the caller's own contact details. Nil fields are
// left alone; at least one must be set.
type ProfileUpdate struct {
	FullName *string `json:"full_name" validate:"omitempty,min=1,max=255"`
	Email    *string `json:"email" validate:"omitempty,email,max=255"`
	Phone    *string `json:"phone" validate:"omitempty,max=64"`
}

// StatusChange is an admin decision on an account. Nil fields are left
// alone; at least one must be set.
type StatusChange struct {
	ApprovalStatus *string `json:"approval_status" validate:"omitempty,oneof=pending approved rejected"`
	AccountStatus  *string `json:"account_status" validate:"omitempty,oneof=active suspended"`
	Notes          string  `json:"notes" validate:"max=1000"`
}

// UpsertRow is one account of a bulk import, matched by email. Password is
// required for new accounts and optional for existing ones.
type UpsertRow struct {
	FullName string  `json:"full_name" validate:"required,max=255"`
	Email    string  `json:"email" validate:"required,email,max=255"`
	Phone    *string `json:"phone"`
	Role     string  `json:"role" validate:"omitempty,oneof=learner instructor admin"`
	Password string  `json:"password"`
}

type PasswordChange struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

type Service struct {
	db     *db.DB
	events audit.Appender
	log    *logger.Logger
	cost   int
	now    func() time.Time
}

func NewService(d *db.DB, events audit.Appender, log *logger.Logger) *Service {
	if events == nil {
		events = audit.Discard{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{db: d, events: events, log: log, cost: 12, now: time.Now}
}

const userColumns = `SELECT id, full_name, email, username, phone, role, approval_status, account_status, created_at FROM users`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var (
		u               User
		username, phone sql.NullString
		created         int64
	)
	if err := row.Scan(&u.ID, &u.FullName, &u.Email, &username, &phone, &u.Role,
		&u.ApprovalStatus, &u.AccountStatus, &created); err != nil {
		return User{}, err
	}
	if username.Valid {
		u.Username = &username.String
	}
	if phone.Valid {
		u.Phone = &phone.String
	}
	u.CreatedAt = time.Unix(created, 0).UTC()
	return u, nil
}

// List returns users ordered by name, narrowed by f.
func (s *Service) List(ctx context.Context, f Filter) ([]User, error) {
	if f.Role != "" && !rbac.ValidRole(f.Role) {
		return nil, apperr.Validation("unknown role %q", f.Role)
	}
	if f.ApprovalStatus != "" && !oneOf(f.ApprovalStatus, ApprovalPending, ApprovalApproved, ApprovalRejected) {
		return nil, apperr.Validation("unknown approval_status %q", f.ApprovalStatus)
	}
	if f.AccountStatus != "" && !oneOf(f.AccountStatus, AccountActive, AccountSuspended) {
		return nil, apperr.Validation("unknown account_status %q", f.AccountStatus)
	}
	var (
		conds []string
		args  []any
	)
	for _, c := range []struct{ col, v string }{
		{"role", f.Role}, {"approval_status", f.ApprovalStatus}, {"account_status", f.AccountStatus},
	} {
		if c.v == "" {
			continue
		}
		args = append(args, c.v)
		conds = append(conds, c.col+" = $"+strconv.Itoa(len(args)))
	}
	q := userColumns
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	rows, err := s.db.QueryContext(ctx, q+" ORDER BY full_name, id", args...)
	if err != nil {
		return nil, apperr.Storage("list users", err)
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, apperr.Storage("list users", err)
		}
		out = append(out, u)
	}
	return out, apperr.Storage("list users", rows.Err())
}

func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.get(ctx, s.db, id)
}

func (s *Service) get(ctx context.Context, q db.Querier, id int64) (User, error) {
	u, err := scanUser(q.QueryRowContext(ctx, userColumns+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, apperr.NotFound("user %d not found", id)
	}
	return u, apperr.Storage("load user", err)
}

// Register creates a learner or instructor account. Learners can sign in at
// once; instructors wait for an admin to approve them.
func (s *Service) Register(ctx context.Context, in Registration) (User, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Role = strings.ToLower(strings.TrimSpace(in.Role))
	if err := validation.Struct(in); err != nil {
		return User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return User{}, apperr.Validation("%v", err)
	}
	approval := ApprovalApproved
	if in.Role == rbac.RoleInstructor {
		approval = ApprovalPending
	}

	var id int64
	err = db.WithTx(ctx, s.db, nil, func(tx *db.Tx) error {
		var taken int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE username = $1 OR email = $2`,
			in.Username, in.Email).Scan(&taken); err != nil {
			return err
		}
		if taken > 0 {
			return apperr.Conflict("username or email already registered")
		}
		var err error
		id, err = tx.InsertID(ctx,
			`INSERT INTO users (full_name, email, username, phone, role, password_hash, approval_status, account_status, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			in.FirstName+" "+in.LastName, in.Email, in.Username, in.Phone, in.Role, string(hash),
			approval, AccountActive, s.now().Unix())
		if err != nil {
			return err
		}
		return ensureRoleRow(ctx, tx, id, in.Role)
	})
	switch {
	case err == nil:
	case db.IsUniqueViolation(err):
		// lost a race with another sign-up for the same name
		return User{}, apperr.Conflict("username or email already registered")
	case apperr.KindOf(err) == apperr.KindConflict:
		return User{}, err
	default:
		s.log.Error("register user failed", "username", in.Username, "error", err)
		return User{}, apperr.Storage("register user", err)
	}

	s.record(ctx, audit.UserRegistered, id, map[string]any{"role": in.Role, "approval_status": approval})
	return s.Get(ctx, id)
}

// UpdateProfile changes the caller's name, email or phone.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, in ProfileUpdate) (User, error) {
	if in.FullName != nil {
		v := strings.TrimSpace(*in.FullName)
		in.FullName = &v
	}
	if in.Email != nil {
		v := strings.ToLower(strings.TrimSpace(*in.Email))
		in.Email = &v
	}
	if err := validation.Struct(in); err != nil {
		return User{}, err
	}
	var (
		sets []string
		args []any
	)
	for _, f := range []struct {
		col string
		v   *string
	}{{"full_name", in.FullName}, {"email", in.Email}, {"phone", in.Phone}} {
		if f.v == nil {
			continue
		}
		args = append(args, *f.v)
		sets = append(sets, f.col+" = $"+strconv.Itoa(len(args)))
	}
	if len(sets) == 0 {
		return User{}, apperr.Validation("nothing to update")
	}
	args = append(args, userID)
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = $`+strconv.Itoa(len(args)), args...)
	if db.IsUniqueViolation(err) {
		return User{}, apperr.Conflict("email already registered")
	}
	if err != nil {
		return User{}, apperr.Storage("update profile", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return User{}, apperr.NotFound("user %d not found", userID)
	}
	return s.Get(ctx, userID)
}

// SetStatus records an admin's approval or account decision. Admins cannot
// change their own status.
func (s *Service) SetStatus(ctx context.Context, adminID, userID int64, in StatusChange) (User, error) {
	if in.ApprovalStatus != nil {
		v := strings.ToLower(strings.TrimSpace(*in.ApprovalStatus))
		in.ApprovalStatus = &v
	}
	if in.AccountStatus != nil {
		v := strings.ToLower(strings.TrimSpace(*in.AccountStatus))
		in.AccountStatus = &v
	}
	if err := validation.Struct(in); err != nil {
		return User{}, err
	}
	if in.ApprovalStatus == nil && in.AccountStatus == nil {
		return User{}, apperr.Validation("approval_status or account_status is required")
	}
	if adminID == userID {
		return User{}, apperr.Validation("admins cannot change their own status")
	}

	var prev User
	err := db.WithTx(ctx, s.db, nil, func(tx *db.Tx) error {
		var err error
		if prev, err = s.get(ctx, tx, userID); err != nil {
			return err
		}
		approval, account := prev.ApprovalStatus, prev.AccountStatus
		if in.ApprovalStatus != nil {
			approval = *in.ApprovalStatus
		}
		if in.AccountStatus != nil {
			account = *in.AccountStatus
		}
		_, err = tx.ExecContext(ctx, `UPDATE users SET approval_status = $1, account_status = $2 WHERE id = $3`,
			approval, account, userID)
		return err
	})
	if err != nil {
		if k := apperr.KindOf(err); k != apperr.KindStorageUnavailable {
			return User{}, err
		}
		s.log.Error("set user status failed", "user_id", userID, "error", err)
		return User{}, apperr.Storage("set user status", err)
	}

	u, err := s.Get(ctx, userID)
	if err != nil {
		return User{}, err
	}
	s.record(ctx, audit.UserStatusChanged, userID, map[string]any{
		"admin_id":      adminID,
		"from_approval": prev.ApprovalStatus,
		"to_approval":   u.ApprovalStatus,
		"from_account":  prev.AccountStatus,
		"to_account":    u.AccountStatus,
		"notes":         in.Notes,
	})
	return u, nil
}

// BulkUpsert inserts or updates accounts by email in one transaction. Any
// invalid row rejects the whole batch.
func (s *Service) BulkUpsert(ctx context.Context, rows []UpsertRow) (inserted, updated int, err error) {
	hashes := make([]string, len(rows))
	for i := range rows {
		r := &rows[i]
		r.Email = strings.ToLower(strings.TrimSpace(r.Email))
		r.FullName = strings.TrimSpace(r.FullName)
		r.Role = strings.ToLower(strings.TrimSpace(r.Role))
		if err := validation.Struct(*r); err != nil {
			return 0, 0, apperr.Validation("row %d: %s", i+1, apperr.MessageOf(err))
		}
		if r.Password != "" {
			b, err := bcrypt.GenerateFromPassword([]byte(r.Password), s.cost)
			if err != nil {
				return 0, 0, apperr.Validation("row %d: %v", i+1, err)
			}
			hashes[i] = string(b)
		}
	}

	now := s.now().Unix()
	err = db.WithTx(ctx, s.db, nil, func(tx *db.Tx) error {
		for i, r := range rows {
			var (
				id   int64
				role string
			)
			err := tx.QueryRowContext(ctx, `SELECT id, role FROM users WHERE email = $1`, r.Email).Scan(&id, &role)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				if hashes[i] == "" {
					return apperr.Validation("row %d: password required for new user %s", i+1, r.Email)
				}
				if r.Role == "" {
					r.Role = rbac.RoleLearner
				}
				id, err = tx.InsertID(ctx,
					`INSERT INTO users (full_name, email, phone, role, password_hash, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
					r.FullName, r.Email, r.Phone, r.Role, hashes[i], now)
				if err != nil {
					return err
				}
				inserted++
			case err != nil:
				return err
			default:
				if r.Role == "" {
					r.Role = role
				}
				if hashes[i] != "" {
					_, err = tx.ExecContext(ctx,
						`UPDATE users SET full_name = $1, phone = $2, role = $3, password_hash = $4 WHERE id = $5`,
						r.FullName, r.Phone, r.Role, hashes[i], id)
				} else {
					_, err = tx.ExecContext(ctx,
						`UPDATE users SET full_name = $1, phone = $2, role = $3 WHERE id = $4`,
						r.FullName, r.Phone, r.Role, id)
				}
				if err != nil {
					return err
				}
				updated++
			}
			if err := ensureRoleRow(ctx, tx, id, r.Role); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error("bulk upsert users failed", "rows", len(rows), "error", err)
		return 0, 0, apperr.Storage("upsert users", err)
	}
	return inserted, updated, nil
}

// ChangePassword replaces the caller's password after checking the old one.
func (s *Service) ChangePassword(ctx context.Context, userID int64, req PasswordChange) error {
	if err := validation.Struct(req); err != nil {
		return err
	}
	var stored string
	err := s.db.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE id = $1`, userID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("user %d not found", userID)
	}
	if err != nil {
		return apperr.Storage("load user", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(stored), []byte(req.OldPassword)) != nil {
		return apperr.Forbidden("incorrect old password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.cost)
	if err != nil {
		return apperr.Validation("%v", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, string(hash), userID)
	return apperr.Storage("update password", err)
}

// SetRole changes a user's role. The last admin cannot be demoted.
func (s *Service) SetRole(ctx context.Context, adminID, userID int64, role string) (User, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if !rbac.ValidRole(role) {
		return User{}, apperr.Validation("role must be one of [learner instructor admin]")
	}

	var prev User
	err := db.WithTx(ctx, s.db, nil, func(tx *db.Tx) error {
		var err error
		if prev, err = s.get(ctx, tx, userID); err != nil {
			return err
		}
		if prev.Role == rbac.RoleAdmin && role != rbac.RoleAdmin {
			var admins int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role = $1`, rbac.RoleAdmin).Scan(&admins); err != nil {
				return err
			}
			if admins <= 1 {
				return apperr.Validation("cannot demote the last admin")
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE users SET role = $1 WHERE id = $2`, role, userID); err != nil {
			return err
		}
		return ensureRoleRow(ctx, tx, userID, role)
	})
	if err != nil {
		if k := apperr.KindOf(err); k != apperr.KindStorageUnavailable {
			return User{}, err
		}
		s.log.Error("set role failed", "user_id", userID, "error", err)
		return User{}, apperr.Storage("set role", err)
	}

	s.record(ctx, audit.UserRoleChanged, userID, map[string]any{
		"admin_id": adminID, "from_role": prev.Role, "to_role": role,
	})
	return s.Get(ctx, userID)
}

func (s *Service) record(ctx context.Context, typ string, userID int64, data any) {
	e, err := audit.NewEvent(typ, "user:"+strconv.FormatInt(userID, 10), data)
	if err == nil {
		err = s.events.Append(ctx, e)
	}
	if err != nil {
		s.log.Warn("audit append failed", "type", typ, "user_id", userID, "error", err)
	}
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

var roleTables = map[string]string{
	rbac.RoleLearner:    "learners",
	rbac.RoleInstructor: "instructors",
	rbac.RoleAdmin:      "admins",
}

// ensureRoleRow makes sure the role-specific profile row exists.
func ensureRoleRow(ctx context.Context, tx *db.Tx, userID int64, role string) error {
	table := roleTables[role]
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO `+table+` (user_id) VALUES ($1)`, userID)
	return err
}
