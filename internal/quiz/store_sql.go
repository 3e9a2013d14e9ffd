package quiz

import (
	"context"
	"database/sql"
	"errors"
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

const quizSelectSQL = `
SELECT q.id, q.assignment_id, a.lesson_id, l.module_id, m.course_id, a.title,
       q.total_score, q.passing_score, q.duration, a.start_at, a.due_at
FROM quizzes q
JOIN assignments a ON a.id = q.assignment_id
JOIN lessons l ON l.id = a.lesson_id
JOIN modules m ON m.id = l.module_id`

const questionSelectSQL = `
SELECT qs.id, qs.quiz_id, a.title, qs.content, qs.score, qs.created_at
FROM questions qs
JOIN quizzes q ON q.id = qs.quiz_id
JOIN assignments a ON a.id = q.assignment_id`

const optionSelectSQL = `
SELECT o.question_id, o.label, o.option_text, o.is_correct
FROM question_options o
JOIN questions qs ON qs.id = o.question_id`

func (s *SQLStore) GetQuiz(ctx context.Context, quizID int64) (Quiz, error) {
	var (
		q          Quiz
		start, due int64
	)
	err := s.db.QueryRowContext(ctx, quizSelectSQL+"\nWHERE q.id = $1", quizID).Scan(
		&q.ID, &q.AssignmentID, &q.LessonID, &q.ModuleID, &q.CourseID, &q.Title,
		&q.TotalScore, &q.PassingScore, &q.DurationMin, &start, &due)
	if errors.Is(err, sql.ErrNoRows) {
		return Quiz{}, apperr.NotFound("quiz %d not found", quizID)
	}
	if err != nil {
		return Quiz{}, err
	}
	q.StartAt = time.Unix(start, 0).UTC()
	q.DueAt = time.Unix(due, 0).UTC()
	return q, nil
}

func (s *SQLStore) GetQuestion(ctx context.Context, questionID int64) (Question, error) {
	qs, err := s.questions(ctx, "\nWHERE qs.id = $1", "\nORDER BY qs.id", questionID)
	if err != nil {
		return Question{}, err
	}
	if len(qs) == 0 {
		return Question{}, apperr.NotFound("question %d not found", questionID)
	}
	return qs[0], nil
}

func (s *SQLStore) ListQuestions(ctx context.Context, quizID int64) ([]Question, error) {
	return s.questions(ctx, "\nWHERE qs.quiz_id = $1", "\nORDER BY qs.id ASC", quizID)
}

func (s *SQLStore) ListAllQuestions(ctx context.Context) ([]Question, error) {
	return s.questions(ctx, "", "\nORDER BY qs.id DESC")
}

// ListDesignerQuestions lists the questions of courses the instructor
// designs. The filter names only qs so the option query can reuse it.
func (s *SQLStore) ListDesignerQuestions(ctx context.Context, instructorID int64) ([]Question, error) {
	const where = `
WHERE qs.quiz_id IN (
	SELECT q2.id FROM quizzes q2
	JOIN assignments a2 ON a2.id = q2.assignment_id
	JOIN lessons l2 ON l2.id = a2.lesson_id
	JOIN modules m2 ON m2.id = l2.module_id
	JOIN course_designers cd ON cd.course_id = m2.course_id
	WHERE cd.instructor_id = $1)`
	return s.questions(ctx, where, "\nORDER BY qs.id DESC", instructorID)
}

// questions loads question rows, then their options with the same filter.
// The first result set is closed before the second query runs.
func (s *SQLStore) questions(ctx context.Context, where, order string, args ...any) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, questionSelectSQL+where+order, args...)
	if err != nil {
		return nil, err
	}
	out := []Question{}
	index := map[int64]int{}
	for rows.Next() {
		var q Question
		var created int64
		if err := rows.Scan(&q.ID, &q.QuizID, &q.QuizTitle, &q.Content, &q.Points, &created); err != nil {
			rows.Close()
			return nil, err
		}
		q.CreatedAt = time.Unix(created, 0).UTC()
		q.Options = []Option{}
		index[q.ID] = len(out)
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if len(out) == 0 {
		return out, nil
	}

	orows, err := s.db.QueryContext(ctx, optionSelectSQL+where+"\nORDER BY o.question_id, o.position", args...)
	if err != nil {
		return nil, err
	}
	defer orows.Close()
	for orows.Next() {
		var (
			qid     int64
			o       Option
			correct bool
		)
		if err := orows.Scan(&qid, &o.ID, &o.Text, &correct); err != nil {
			return nil, err
		}
		i, ok := index[qid]
		if !ok {
			continue
		}
		out[i].Options = append(out[i].Options, o)
		if correct {
			out[i].CorrectOptionID = o.ID
		}
	}
	return out, orows.Err()
}

func (s *SQLStore) QuizzesByCourse(ctx context.Context, courseID int64) ([]Overview, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT q.id, q.assignment_id, a.lesson_id, l.module_id, m.course_id, a.title,
		       q.total_score, q.passing_score, q.duration, a.start_at, a.due_at,
		       l.title, m.title, COUNT(qs.id), COALESCE(SUM(qs.score), 0)
		FROM quizzes q
		JOIN assignments a ON a.id = q.assignment_id
		JOIN lessons l ON l.id = a.lesson_id
		JOIN modules m ON m.id = l.module_id
		LEFT JOIN questions qs ON qs.quiz_id = q.id
		WHERE m.course_id = $1
		GROUP BY q.id, q.assignment_id, a.lesson_id, l.module_id, m.course_id, a.title,
		         q.total_score, q.passing_score, q.duration, a.start_at, a.due_at,
		         l.title, m.title, m.order_num, l.order_num
		ORDER BY m.order_num, l.order_num, q.id`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Overview{}
	for rows.Next() {
		var (
			o          Overview
			start, due int64
		)
		if err := rows.Scan(&o.ID, &o.AssignmentID, &o.LessonID, &o.ModuleID, &o.CourseID, &o.Title,
			&o.TotalScore, &o.PassingScore, &o.DurationMin, &start, &due,
			&o.LessonTitle, &o.ModuleTitle, &o.QuestionCount, &o.AssignedScore); err != nil {
			return nil, err
		}
		o.StartAt = time.Unix(start, 0).UTC()
		o.DueAt = time.Unix(due, 0).UTC()
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *SQLStore) LessonModule(ctx context.Context, lessonID int64) (int64, error) {
	var moduleID int64
	err := s.db.QueryRowContext(ctx, `SELECT module_id FROM lessons WHERE id = $1`, lessonID).Scan(&moduleID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.NotFound("lesson %d not found", lessonID)
	}
	return moduleID, err
}

func (s *SQLStore) WithinTx(ctx context.Context, fn func(Tx) error) error {
	return db.WithTx(ctx, s.db, nil, func(tx *db.Tx) error {
		return fn(&sqlTx{tx: tx, now: s.now})
	})
}

type sqlTx struct {
	tx  *db.Tx
	now func() time.Time
}

// classify turns trigger rejections into quota errors and leaves the rest
// for the service to wrap.
func classify(err error) error {
	if db.IsQuotaViolation(err) {
		return &apperr.Error{Kind: apperr.KindQuotaExceeded, Message: db.QuotaViolationMessage, Err: err}
	}
	return err
}

func (t *sqlTx) ScoreSum(ctx context.Context, quizID, excludeID int64) (float64, error) {
	var sum float64
	err := t.tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(score), 0) FROM questions WHERE quiz_id = $1 AND id <> $2`,
		quizID, excludeID).Scan(&sum)
	return sum, err
}

func (t *sqlTx) InsertQuestion(ctx context.Context, quizID int64, content string, points float64) (int64, error) {
	id, err := t.tx.InsertID(ctx,
		`INSERT INTO questions (quiz_id, content, score, created_at) VALUES ($1, $2, $3, $4)`,
		quizID, content, points, t.now().Unix())
	return id, classify(err)
}

func (t *sqlTx) UpdateQuestion(ctx context.Context, questionID int64, content string, points float64) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE questions SET content = $1, score = $2 WHERE id = $3`, content, points, questionID)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("question %d not found", questionID)
	}
	return nil
}

func (t *sqlTx) InsertOption(ctx context.Context, questionID int64, o StoredOption) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO question_options (question_id, position, label, option_text, is_correct)
		 VALUES ($1, $2, $3, $4, $5)`,
		questionID, o.Position, o.Label, o.Text, o.Correct)
	return err
}

func (t *sqlTx) DeleteOptions(ctx context.Context, questionID int64) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM question_options WHERE question_id = $1`, questionID)
	return err
}

func (t *sqlTx) DeleteQuestion(ctx context.Context, questionID int64) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM questions WHERE id = $1`, questionID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (t *sqlTx) InsertAssignment(ctx context.Context, lessonID int64, title string, startAt, dueAt time.Time) (int64, error) {
	return t.tx.InsertID(ctx,
		`INSERT INTO assignments (lesson_id, title, start_at, due_at) VALUES ($1, $2, $3, $4)`,
		lessonID, title, startAt.Unix(), dueAt.Unix())
}

func (t *sqlTx) InsertQuiz(ctx context.Context, assignmentID int64, totalScore, passingScore float64, durationMin int) (int64, error) {
	return t.tx.InsertID(ctx,
		`INSERT INTO quizzes (assignment_id, total_score, passing_score, duration) VALUES ($1, $2, $3, $4)`,
		assignmentID, totalScore, passingScore, durationMin)
}

func (t *sqlTx) UpdateQuiz(ctx context.Context, q Quiz) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE quizzes SET total_score = $1, passing_score = $2, duration = $3 WHERE id = $4`,
		q.TotalScore, q.PassingScore, q.DurationMin, q.ID)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("quiz %d not found", q.ID)
	}
	_, err = t.tx.ExecContext(ctx,
		`UPDATE assignments SET title = $1, start_at = $2, due_at = $3 WHERE id = $4`,
		q.Title, q.StartAt.Unix(), q.DueAt.Unix(), q.AssignmentID)
	return err
}
