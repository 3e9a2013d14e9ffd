package curriculum

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/mind-engage/coursehub/internal/apperr"
	"github.com/mind-engage/coursehub/internal/db"
)

type SQLStore struct {
	db  *db.DB
	now func() time.Time
}

func NewSQLStore(d *db.DB) *SQLStore {
	return &SQLStore{db: d, now: time.Now}
}

// One row per lesson x assignment; COUNT(DISTINCT) folds the question fan-out.
const moduleLessonRowsSQL = `
SELECT l.id, l.module_id, l.title, l.order_num, l.duration, mat.url,
       a.id, a.title, a.start_at, a.due_at,
       q.id, a.title, q.total_score, q.passing_score, q.duration, COUNT(DISTINCT qs.id),
       e.id, e.title, e.description
FROM lessons l
LEFT JOIN materials mat ON mat.lesson_id = l.id
LEFT JOIN assignments a ON a.lesson_id = l.id
LEFT JOIN quizzes q ON q.assignment_id = a.id
LEFT JOIN questions qs ON qs.quiz_id = q.id
LEFT JOIN exercises e ON e.assignment_id = a.id
WHERE l.module_id = $1
GROUP BY l.id, l.module_id, l.title, l.order_num, l.duration, mat.url,
         a.id, a.title, a.start_at, a.due_at,
         q.id, q.total_score, q.passing_score, q.duration,
         e.id, e.title, e.description
ORDER BY l.order_num ASC, l.id ASC, a.id ASC`

func (s *SQLStore) ModuleLessonRows(ctx context.Context, moduleID int64) ([]LessonRow, error) {
	rows, err := s.db.QueryContext(ctx, moduleLessonRowsSQL, moduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LessonRow
	for rows.Next() {
		var (
			r              LessonRow
			start, due     sql.NullInt64
			quizID         sql.NullInt64
			quizTitle      sql.NullString
			total, passing sql.NullFloat64
			quizDuration   sql.NullInt64
		)
		if err := rows.Scan(
			&r.LessonID, &r.ModuleID, &r.LessonTitle, &r.LessonOrder, &r.DurationMin, &r.MaterialURL,
			&r.AssignmentID, &r.AssignmentTitle, &start, &due,
			&quizID, &quizTitle, &total, &passing, &quizDuration, &r.QuestionCount,
			&r.ExerciseID, &r.ExerciseTitle, &r.ExerciseDescription,
		); err != nil {
			return nil, err
		}
		r.StartAt = unixPtr(start)
		r.DueAt = unixPtr(due)
		if quizID.Valid {
			id := quizID.Int64
			r.QuizID = &id
			r.QuizTitle = &quizTitle.String
			r.QuizTotalScore = &total.Float64
			r.QuizPassingScore = &passing.Float64
			d := int(quizDuration.Int64)
			r.QuizDurationMin = &d
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) ModulesByCourse(ctx context.Context, courseID int64) ([]ModuleSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.course_id, m.title, m.order_num, COUNT(DISTINCT l.id), COUNT(DISTINCT q.id)
		FROM modules m
		LEFT JOIN lessons l ON l.module_id = m.id
		LEFT JOIN assignments a ON a.lesson_id = l.id
		LEFT JOIN quizzes q ON q.assignment_id = a.id
		WHERE m.course_id = $1
		GROUP BY m.id, m.course_id, m.title, m.order_num
		ORDER BY m.order_num ASC, m.id ASC`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ModuleSummary{}
	for rows.Next() {
		var m ModuleSummary
		if err := rows.Scan(&m.ID, &m.CourseID, &m.Title, &m.Order, &m.LessonCount, &m.QuizCount); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

const courseSelectSQL = `
SELECT c.id, c.title, c.description, c.category_id, cat.name, c.approval_status, c.course_status,
       c.created_at, c.updated_at, COUNT(DISTINCT e.learner_id), COUNT(DISTINCT d.instructor_id)
FROM courses c
LEFT JOIN categories cat ON cat.id = c.category_id
LEFT JOIN enrollments e ON e.course_id = c.id
LEFT JOIN course_designers d ON d.course_id = c.id`

const courseGroupSQL = `
GROUP BY c.id, c.title, c.description, c.category_id, cat.name, c.approval_status, c.course_status,
         c.created_at, c.updated_at`

func (s *SQLStore) ListCourses(ctx context.Context, f CourseFilter) ([]Course, error) {
	var where []string
	var args []any
	if f.CategoryID > 0 {
		args = append(args, f.CategoryID)
		where = append(where, "c.category_id = $"+strconv.Itoa(len(args)))
	}
	if f.ApprovalStatus != "" {
		args = append(args, f.ApprovalStatus)
		where = append(where, "c.approval_status = $"+strconv.Itoa(len(args)))
	}
	if f.CourseStatus != "" {
		args = append(args, f.CourseStatus)
		where = append(where, "c.course_status = $"+strconv.Itoa(len(args)))
	}
	q := courseSelectSQL
	if len(where) > 0 {
		q += "\nWHERE " + strings.Join(where, " AND ")
	}
	q += courseGroupSQL + "\nORDER BY c.created_at DESC, c.id DESC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Course{}
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetCourse(ctx context.Context, courseID int64) (Course, error) {
	return getCourse(ctx, s.db, courseID)
}

func getCourse(ctx context.Context, q db.Querier, courseID int64) (Course, error) {
	row := q.QueryRowContext(ctx, courseSelectSQL+"\nWHERE c.id = $1"+courseGroupSQL, courseID)
	c, err := scanCourse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Course{}, apperr.NotFound("course %d not found", courseID)
	}
	return c, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCourse(sc scanner) (Course, error) {
	var (
		c       Course
		created int64
		updated sql.NullInt64
	)
	if err := sc.Scan(&c.ID, &c.Title, &c.Description, &c.CategoryID, &c.CategoryName,
		&c.ApprovalStatus, &c.CourseStatus, &created, &updated, &c.LearnerCount, &c.InstructorCount); err != nil {
		return Course{}, err
	}
	c.CreatedAt = time.Unix(created, 0).UTC()
	c.UpdatedAt = unixPtr(updated)
	return c, nil
}

func (s *SQLStore) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, parent_id FROM categories ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Category{}
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.ParentID); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateCourse(ctx context.Context, in NewCourse) (Course, error) {
	var out Course
	err := db.WithTx(ctx, s.db, nil, func(tx *db.Tx) error {
		if in.CategoryID != nil {
			err := mustExist(ctx, tx, `SELECT COUNT(1) FROM categories WHERE id = $1`, *in.CategoryID)
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("category %d not found", *in.CategoryID)
			}
			if err != nil {
				return err
			}
		}
		if in.InstructorID != nil {
			err := mustExist(ctx, tx, `SELECT COUNT(1) FROM instructors WHERE user_id = $1`, *in.InstructorID)
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("instructor %d not found", *in.InstructorID)
			}
			if err != nil {
				return err
			}
		}
		var desc *string
		if in.Description != "" {
			desc = &in.Description
		}
		now := s.now().Unix()
		id, err := tx.InsertID(ctx,
			`INSERT INTO courses (title, description, category_id, approval_status, course_status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			in.Title, desc, in.CategoryID, ApprovalPending, StatusDraft, now, nil)
		if err != nil {
			return err
		}
		if in.InstructorID != nil {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO course_designers (course_id, instructor_id, assigned_at) VALUES ($1, $2, $3)`,
				id, *in.InstructorID, now); err != nil {
				return err
			}
		}
		out, err = getCourse(ctx, tx, id)
		return err
	})
	return out, err
}

// mustExist returns sql.ErrNoRows when the COUNT query yields zero.
func mustExist(ctx context.Context, q db.Querier, query string, args ...any) error {
	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *SQLStore) UpdateCourseStatus(ctx context.Context, u CourseStatusUpdate) (Course, error) {
	sets := []string{"updated_at = $1"}
	args := []any{s.now().Unix()}
	if u.ApprovalStatus != "" {
		args = append(args, u.ApprovalStatus)
		sets = append(sets, "approval_status = $"+strconv.Itoa(len(args)))
	}
	if u.CourseStatus != "" {
		args = append(args, u.CourseStatus)
		sets = append(sets, "course_status = $"+strconv.Itoa(len(args)))
	}
	args = append(args, u.CourseID)
	res, err := s.db.ExecContext(ctx,
		"UPDATE courses SET "+strings.Join(sets, ", ")+" WHERE id = $"+strconv.Itoa(len(args)), args...)
	if err != nil {
		return Course{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Course{}, apperr.NotFound("course %d not found", u.CourseID)
	}
	return s.GetCourse(ctx, u.CourseID)
}

func (s *SQLStore) ActiveLearners(ctx context.Context, courseID int64, status string) ([]Learner, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.full_name, u.email, e.enrolled_at, e.progress, e.status
		FROM enrollments e
		JOIN users u ON u.id = e.learner_id
		WHERE e.course_id = $1 AND e.status = $2
		ORDER BY u.full_name, u.id`, courseID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Learner{}
	for rows.Next() {
		var l Learner
		var enrolled int64
		if err := rows.Scan(&l.UserID, &l.FullName, &l.Email, &enrolled, &l.Progress, &l.Status); err != nil {
			return nil, err
		}
		l.EnrolledAt = time.Unix(enrolled, 0).UTC()
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQLStore) QuizPerformance(ctx context.Context, courseID int64, minScore float64) ([]QuizPerformance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.email, u.full_name, q.id, a.title, q.total_score, MAX(t.score), COUNT(t.id)
		FROM quiz_attempts t
		JOIN quizzes q ON q.id = t.quiz_id
		JOIN assignments a ON a.id = q.assignment_id
		JOIN lessons l ON l.id = a.lesson_id
		JOIN modules m ON m.id = l.module_id
		JOIN users u ON u.id = t.learner_id
		WHERE m.course_id = $1
		GROUP BY u.id, u.email, u.full_name, q.id, a.title, q.total_score
		HAVING MAX(t.score) >= $2
		ORDER BY u.full_name, u.id, q.id`, courseID, minScore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []QuizPerformance{}
	for rows.Next() {
		var p QuizPerformance
		if err := rows.Scan(&p.UserID, &p.Email, &p.FullName, &p.QuizID, &p.QuizTitle,
			&p.TotalScore, &p.BestScore, &p.AttemptCount); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLStore) QuizStatistics(ctx context.Context, assignmentID int64, minQuestions int) ([]QuizStats, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assignments WHERE id = $1`, assignmentID).Scan(&n); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, apperr.NotFound("assignment %d not found", assignmentID)
	}

	// question and attempt aggregates come from separate subqueries so the
	// two sets never multiply each other
	rows, err := s.db.QueryContext(ctx, `
		SELECT q.id, q.assignment_id, a.title, q.total_score, q.passing_score,
		       COALESCE(qc.n, 0),
		       COALESCE(st.attempts, 0), COALESCE(st.learners, 0),
		       st.avg_score, st.max_score, st.min_score, COALESCE(st.passed, 0)
		FROM quizzes q
		JOIN assignments a ON a.id = q.assignment_id
		LEFT JOIN (
			SELECT quiz_id, COUNT(*) AS n FROM questions GROUP BY quiz_id
		) qc ON qc.quiz_id = q.id
		LEFT JOIN (
			SELECT t.quiz_id, COUNT(*) AS attempts, COUNT(DISTINCT t.learner_id) AS learners,
			       AVG(t.score) AS avg_score, MAX(t.score) AS max_score, MIN(t.score) AS min_score,
			       SUM(CASE WHEN t.score >= q3.passing_score THEN 1 ELSE 0 END) AS passed
			FROM quiz_attempts t
			JOIN quizzes q3 ON q3.id = t.quiz_id
			GROUP BY t.quiz_id
		) st ON st.quiz_id = q.id
		WHERE q.assignment_id = $1 AND COALESCE(qc.n, 0) >= $2
		ORDER BY q.id`, assignmentID, minQuestions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []QuizStats{}
	for rows.Next() {
		var (
			st          QuizStats
			avg, hi, lo sql.NullFloat64
		)
		if err := rows.Scan(&st.QuizID, &st.AssignmentID, &st.Title, &st.TotalScore, &st.PassingScore,
			&st.QuestionCount, &st.AttemptCount, &st.LearnerCount, &avg, &hi, &lo, &st.PassedAttempts); err != nil {
			return nil, err
		}
		st.AverageScore, st.HighestScore, st.LowestScore = floatPtr(avg), floatPtr(hi), floatPtr(lo)
		out = append(out, st)
	}
	return out, rows.Err()
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func unixPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}
