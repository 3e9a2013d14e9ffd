package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/coursehub/internal/db"
)

func TestCheckerPermissions(t *testing.T) {
	c := NewChecker(nil)

	assert.True(t, c.Has(RoleLearner, PermQuizView))
	assert.False(t, c.Has(RoleLearner, PermQuestionWrite))
	assert.True(t, c.Has(RoleInstructor, PermQuestionWrite))
	assert.True(t, c.Has(RoleInstructor, PermQuestionView))
	assert.False(t, c.Has(RoleInstructor, PermCourseApprove))
	assert.True(t, c.Has(RoleAdmin, PermUsersSetRole))
	assert.True(t, c.Has(RoleAdmin, PermUsersSetStatus))
	assert.False(t, c.Has(RoleInstructor, PermUsersSetStatus))
	assert.True(t, c.Has(RoleLearner, PermProfile))
	assert.False(t, c.Has("guest", PermCourseView))
	assert.True(t, c.Any(RoleLearner, PermReportView, PermCourseView))
}

func TestRequire(t *testing.T) {
	h := Require(PermReportView)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for role, want := range map[string]int{
		"":             http.StatusForbidden,
		RoleLearner:    http.StatusForbidden,
		RoleInstructor: http.StatusNoContent,
		RoleAdmin:      http.StatusNoContent,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithRole(req.Context(), role))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, role)
		if want == http.StatusForbidden {
			assert.JSONEq(t, `{"error":"forbidden","message":"missing permission report:view"}`, rec.Body.String())
		}
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := WithSubject(WithRole(context.Background(), RoleAdmin), "7")
	assert.Equal(t, RoleAdmin, RoleFromContext(ctx))
	assert.Equal(t, "7", SubjectFromContext(ctx))
	assert.Empty(t, RoleFromContext(context.Background()))
}

func TestCapabilities(t *testing.T) {
	ctx := context.Background()
	d, err := db.OpenMemory(ctx, t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	_, err = db.SeedDemo(ctx, d)
	require.NoError(t, err)

	id := func(q string) int64 {
		var v int64
		require.NoError(t, d.QueryRowContext(ctx, q).Scan(&v))
		return v
	}
	instructor := id(`SELECT user_id FROM instructors`)
	learner := id(`SELECT user_id FROM learners`)
	course := id(`SELECT id FROM courses`)
	lesson := id(`SELECT MIN(id) FROM lessons`)
	assignment := id(`SELECT assignment_id FROM quizzes`)
	quiz := id(`SELECT id FROM quizzes`)
	question := id(`SELECT MIN(id) FROM questions`)

	caps := NewCapabilities(d)
	checks := []func(context.Context, int64, int64) (bool, error){
		caps.CanEditCourse, caps.CanEditLesson, caps.CanEditAssignment, caps.CanEditQuiz, caps.CanEditQuestion,
	}
	targets := []int64{course, lesson, assignment, quiz, question}
	for i, check := range checks {
		ok, err := check(ctx, instructor, targets[i])
		require.NoError(t, err)
		assert.True(t, ok, i)

		ok, err = check(ctx, learner, targets[i])
		require.NoError(t, err)
		assert.False(t, ok, i)

		ok, err = check(ctx, instructor, 9999)
		require.NoError(t, err)
		assert.False(t, ok, i)
	}
}
