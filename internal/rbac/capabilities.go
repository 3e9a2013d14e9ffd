package rbac

import (
	"context"

	"github.com/mind-engage/coursehub/internal/db"
)

// Capabilities answers "may this instructor edit X" with one join per
// question. Being a designer of the owning course is the only grant; admins
// are handled by the caller.
type Capabilities struct{ db *db.DB }

func NewCapabilities(d *db.DB) *Capabilities { return &Capabilities{db: d} }

func (c *Capabilities) CanEditCourse(ctx context.Context, userID, courseID int64) (bool, error) {
	return c.exists(ctx, `
		SELECT COUNT(*) FROM course_designers cd
		WHERE cd.instructor_id = $1 AND cd.course_id = $2`, userID, courseID)
}

func (c *Capabilities) CanEditLesson(ctx context.Context, userID, lessonID int64) (bool, error) {
	return c.exists(ctx, `
		SELECT COUNT(*) FROM lessons l
		JOIN modules m ON m.id = l.module_id
		JOIN course_designers cd ON cd.course_id = m.course_id
		WHERE cd.instructor_id = $1 AND l.id = $2`, userID, lessonID)
}

func (c *Capabilities) CanEditAssignment(ctx context.Context, userID, assignmentID int64) (bool, error) {
	return c.exists(ctx, `
		SELECT COUNT(*) FROM assignments a
		JOIN lessons l ON l.id = a.lesson_id
		JOIN modules m ON m.id = l.module_id
		JOIN course_designers cd ON cd.course_id = m.course_id
		WHERE cd.instructor_id = $1 AND a.id = $2`, userID, assignmentID)
}

func (c *Capabilities) CanEditQuiz(ctx context.Context, userID, quizID int64) (bool, error) {
	return c.exists(ctx, `
		SELECT COUNT(*) FROM quizzes q
		JOIN assignments a ON a.id = q.assignment_id
		JOIN lessons l ON l.id = a.lesson_id
		JOIN modules m ON m.id = l.module_id
		JOIN course_designers cd ON cd.course_id = m.course_id
		WHERE cd.instructor_id = $1 AND q.id = $2`, userID, quizID)
}

func (c *Capabilities) CanEditQuestion(ctx context.Context, userID, questionID int64) (bool, error) {
	return c.exists(ctx, `
		SELECT COUNT(*) FROM questions qs
		JOIN quizzes q ON q.id = qs.quiz_id
		JOIN assignments a ON a.id = q.assignment_id
		JOIN lessons l ON l.id = a.lesson_id
		JOIN modules m ON m.id = l.module_id
		JOIN course_designers cd ON cd.course_id = m.course_id
		WHERE cd.instructor_id = $1 AND qs.id = $2`, userID, questionID)
}

func (c *Capabilities) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}
