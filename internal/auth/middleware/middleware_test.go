package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/coursehub/internal/db"
	"github.com/mind-engage/coursehub/internal/logger"
	"github.com/mind-engage/coursehub/internal/rbac"
)

func seeded(t *testing.T) *db.DB {
	t.Helper()
	ctx := context.Background()
	d, err := db.OpenMemory(ctx, t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	_, err = db.SeedDemo(ctx, d)
	require.NoError(t, err)
	return d
}

func login(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIssueAndParse(t *testing.T) {
	a := NewAuthService("s3cret")
	tok, err := a.IssueJWT(42, rbac.RoleInstructor)
	require.NoError(t, err)

	c, err := a.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "42", c.Subject)
	assert.Equal(t, rbac.RoleInstructor, c.Role)

	_, err = NewAuthService("other").Parse(tok)
	assert.Error(t, err)

	expired := NewAuthService("s3cret")
	expired.now = func() time.Time { return time.Now().Add(-24 * time.Hour) }
	old, err := expired.IssueJWT(42, rbac.RoleInstructor)
	require.NoError(t, err)
	_, err = a.Parse(old)
	assert.Error(t, err)
}

func TestLoginHandler(t *testing.T) {
	d := seeded(t)
	a := NewAuthService("s3cret")
	h := LoginHandler(a, NewSQLCredentials(d), logger.Nop())

	rec := login(t, h, `{"email":"Instructor@CourseHub.local","password":"`+db.DemoPassword+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		AccessToken string `json:"access_token"`
		Role        string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, rbac.RoleInstructor, out.Role)
	c, err := a.Parse(out.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleInstructor, c.Role)

	assert.Equal(t, http.StatusUnauthorized, login(t, h, `{"email":"instructor@coursehub.local","password":"nope"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, login(t, h, `{"email":"ghost@coursehub.local","password":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, login(t, h, `{"email":""}`).Code)
	assert.Equal(t, http.StatusBadRequest, login(t, h, `{`).Code)
}

func TestLoginRefusesBlockedAccounts(t *testing.T) {
	d := seeded(t)
	h := LoginHandler(NewAuthService("s3cret"), NewSQLCredentials(d), logger.Nop())
	body := `{"email":"instructor@coursehub.local","password":"` + db.DemoPassword + `"}`
	ctx := context.Background()

	for _, c := range []struct{ approval, account, msg string }{
		{"pending", "active", "account pending approval"},
		{"rejected", "active", "account not approved"},
		{"approved", "suspended", "account suspended"},
	} {
		_, err := d.ExecContext(ctx, `UPDATE users SET approval_status = $1, account_status = $2 WHERE email = $3`,
			c.approval, c.account, "instructor@coursehub.local")
		require.NoError(t, err)
		rec := login(t, h, body)
		assert.Equal(t, http.StatusForbidden, rec.Code, c.msg)
		assert.Contains(t, rec.Body.String(), c.msg)
	}
}

func TestJWTMiddlewareAndAttachRole(t *testing.T) {
	d := seeded(t)
	a := NewAuthService("s3cret")

	var learnerID int64
	require.NoError(t, d.QueryRowContext(context.Background(), `SELECT user_id FROM learners`).Scan(&learnerID))

	var gotRole string
	var gotID int64
	h := JWTMiddleware(a)(AttachRoleFromDB(d, false, logger.Nop())(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			gotRole = rbac.RoleFromContext(r.Context())
			gotID, _ = UserID(r)
		})))

	serve := func(token string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, serve(""))
	assert.Equal(t, http.StatusUnauthorized, serve("garbage"))

	// a token claiming admin still gets the stored role
	tok, err := a.IssueJWT(learnerID, rbac.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, serve(tok))
	assert.Equal(t, rbac.RoleLearner, gotRole)
	assert.Equal(t, learnerID, gotID)

	ghost, err := a.IssueJWT(9999, rbac.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(ghost))

	// suspension applies to tokens issued before it
	_, err = d.ExecContext(context.Background(), `UPDATE users SET account_status = $1 WHERE id = $2`, "suspended", learnerID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, serve(tok))
}
