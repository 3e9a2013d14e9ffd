package quiz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/coursehub/internal/apperr"
	"github.com/mind-engage/coursehub/internal/db"
)

func openSeeded(t *testing.T) (*SQLStore, *db.DB) {
	t.Helper()
	ctx := context.Background()
	d, err := db.OpenMemory(ctx, t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	_, err = db.SeedDemo(ctx, d)
	require.NoError(t, err)
	return NewSQLStore(d), d
}

func scalar(t *testing.T, d *db.DB, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, d.QueryRowContext(context.Background(), query, args...).Scan(&n))
	return n
}

// newQuiz creates an empty 100-point quiz on the first seeded lesson.
func newQuiz(t *testing.T, svc *Service, d *db.DB) Quiz {
	t.Helper()
	start := time.Date(2024, 10, 1, 9, 0, 0, 0, time.UTC)
	qz, err := svc.CreateQuiz(context.Background(), NewQuiz{
		LessonID:     scalar(t, d, `SELECT MIN(id) FROM lessons`),
		Title:        "Joins Checkpoint",
		TotalScore:   100,
		PassingScore: 50,
		DurationMin:  30,
		StartAt:      start,
		DueAt:        start.Add(48 * time.Hour),
	})
	require.NoError(t, err)
	return qz
}

func TestSQLStore_SeededQuestions(t *testing.T) {
	store, d := openSeeded(t)
	ctx := context.Background()
	quizID := scalar(t, d, `SELECT id FROM quizzes`)

	qs, err := NewService(store).Questions(ctx, quizID)
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, "SQL Basics Quiz", qs[0].QuizTitle)
	assert.Equal(t, "B", qs[0].CorrectOptionID)
	assert.Equal(t, "C", qs[1].CorrectOptionID)
	require.Len(t, qs[0].Options, OptionCount)
	assert.Equal(t, []string{"A", "B", "C", "D"}, []string{
		qs[0].Options[0].ID, qs[0].Options[1].ID, qs[0].Options[2].ID, qs[0].Options[3].ID,
	})

	all, err := store.ListAllQuestions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Greater(t, all[0].ID, all[1].ID)
}

func TestSQLStore_DesignerQuestions(t *testing.T) {
	store, d := openSeeded(t)
	ctx := context.Background()
	designer := scalar(t, d, `SELECT instructor_id FROM course_designers`)

	mine, err := store.ListDesignerQuestions(ctx, designer)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Greater(t, mine[0].ID, mine[1].ID)
	assert.Len(t, mine[0].Options, OptionCount)
	assert.NotEmpty(t, mine[0].CorrectOptionID)

	others, err := store.ListDesignerQuestions(ctx, designer+1000)
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestSQLStore_AddQuestionQuota(t *testing.T) {
	store, d := openSeeded(t)
	svc := NewService(store)
	ctx := context.Background()
	qz := newQuiz(t, svc, d)

	in := validInput()
	for _, p := range []float64{50, 40} {
		in.Points = p
		_, err := svc.AddQuestion(ctx, qz.ID, in)
		require.NoError(t, err)
	}

	in.Points = 15
	_, err := svc.AddQuestion(ctx, qz.ID, in)
	assert.Equal(t, apperr.KindQuotaExceeded, apperr.KindOf(err))
	assert.EqualValues(t, 2, scalar(t, d, `SELECT COUNT(*) FROM questions WHERE quiz_id = $1`, qz.ID))

	in.Points = 10
	q, err := svc.AddQuestion(ctx, qz.ID, in)
	require.NoError(t, err)
	assert.EqualValues(t, 3, scalar(t, d, `SELECT COUNT(*) FROM questions WHERE quiz_id = $1`, qz.ID))
	assert.EqualValues(t, OptionCount, scalar(t, d, `SELECT COUNT(*) FROM question_options WHERE question_id = $1`, q.ID))
	assert.Equal(t, "Joins Checkpoint", q.QuizTitle)
}

func TestSQLStore_UpdateQuestionQuota(t *testing.T) {
	store, d := openSeeded(t)
	svc := NewService(store)
	ctx := context.Background()
	qz := newQuiz(t, svc, d)

	in := validInput()
	in.Points = 20
	target, err := svc.AddQuestion(ctx, qz.ID, in)
	require.NoError(t, err)
	in.Points = 80
	_, err = svc.AddQuestion(ctx, qz.ID, in)
	require.NoError(t, err)

	in.Points = 20
	_, err = svc.UpdateQuestion(ctx, target.ID, in)
	require.NoError(t, err)

	in.Points = 21
	_, err = svc.UpdateQuestion(ctx, target.ID, in)
	assert.Equal(t, apperr.KindQuotaExceeded, apperr.KindOf(err))

	in.Points = 19
	in.CorrectOptionID = "A"
	got, err := svc.UpdateQuestion(ctx, target.ID, in)
	require.NoError(t, err)
	assert.Equal(t, 19.0, got.Points)
	assert.Equal(t, "A", got.CorrectOptionID)
	assert.EqualValues(t, OptionCount, scalar(t, d, `SELECT COUNT(*) FROM question_options WHERE question_id = $1`, target.ID))
}

func TestSQLStore_DeleteTwice(t *testing.T) {
	store, d := openSeeded(t)
	svc := NewService(store)
	ctx := context.Background()
	qid := scalar(t, d, `SELECT MIN(id) FROM questions`)

	require.NoError(t, svc.DeleteQuestion(ctx, qid))
	assert.Zero(t, scalar(t, d, `SELECT COUNT(*) FROM questions WHERE id = $1`, qid))
	assert.Zero(t, scalar(t, d, `SELECT COUNT(*) FROM question_options WHERE question_id = $1`, qid))

	err := svc.DeleteQuestion(ctx, qid)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestSQLStore_FourthOptionFaultRollsBack(t *testing.T) {
	store, d := openSeeded(t)
	svc := NewService(store)
	ctx := context.Background()
	qz := newQuiz(t, svc, d)

	_, err := d.ExecContext(ctx, `
		CREATE TRIGGER fail_fourth_option BEFORE INSERT ON question_options
		WHEN NEW.position = 3 AND NEW.option_text = '__fail__'
		BEGIN SELECT RAISE(ABORT, 'simulated storage fault'); END`)
	require.NoError(t, err)

	before := scalar(t, d, `SELECT COUNT(*) FROM question_options`)
	in := validInput()
	in.Options[3].Text = "__fail__"
	_, err = svc.AddQuestion(ctx, qz.ID, in)
	require.Error(t, err)
	assert.Equal(t, apperr.KindStorageUnavailable, apperr.KindOf(err))

	assert.Zero(t, scalar(t, d, `SELECT COUNT(*) FROM questions WHERE quiz_id = $1`, qz.ID))
	assert.Equal(t, before, scalar(t, d, `SELECT COUNT(*) FROM question_options`))
}

func TestSQLStore_TriggerIsAuthoritative(t *testing.T) {
	store, d := openSeeded(t)
	ctx := context.Background()
	quizID := scalar(t, d, `SELECT id FROM quizzes`)

	// seeded quiz is already full; skip the pre-check and go straight to the write
	err := store.WithinTx(ctx, func(tx Tx) error {
		_, err := tx.InsertQuestion(ctx, quizID, "overflow", 1)
		return err
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindQuotaExceeded, apperr.KindOf(err))
	assert.True(t, db.IsQuotaViolation(err))
	assert.EqualValues(t, 2, scalar(t, d, `SELECT COUNT(*) FROM questions WHERE quiz_id = $1`, quizID))
}

func TestSQLStore_CreateAndUpdateQuiz(t *testing.T) {
	store, d := openSeeded(t)
	svc := NewService(store)
	ctx := context.Background()
	qz := newQuiz(t, svc, d)

	assert.Equal(t, "Joins Checkpoint", qz.Title)
	assert.Equal(t, 100.0, qz.TotalScore)
	assert.Equal(t, time.Date(2024, 10, 1, 9, 0, 0, 0, time.UTC), qz.StartAt)
	assert.NotZero(t, qz.ModuleID)

	in := validInput()
	in.Points = 40
	_, err := svc.AddQuestion(ctx, qz.ID, in)
	require.NoError(t, err)

	upd := QuizUpdate{
		Title: "Joins Checkpoint (revised)", TotalScore: 30, PassingScore: 20, DurationMin: 20,
		StartAt: qz.StartAt, DueAt: qz.DueAt,
	}
	_, err = svc.UpdateQuiz(ctx, qz.ID, upd)
	assert.Equal(t, apperr.KindQuotaExceeded, apperr.KindOf(err))

	upd.TotalScore = 40
	got, err := svc.UpdateQuiz(ctx, qz.ID, upd)
	require.NoError(t, err)
	assert.Equal(t, "Joins Checkpoint (revised)", got.Title)
	assert.Equal(t, 40.0, got.TotalScore)

	_, err = svc.UpdateQuiz(ctx, 4242, upd)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = svc.CreateQuiz(ctx, NewQuiz{
		LessonID: 4242, Title: "Orphan", TotalScore: 10, PassingScore: 5, DurationMin: 5,
		StartAt: qz.StartAt, DueAt: qz.DueAt,
	})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	list, err := svc.QuizzesByCourse(ctx, qz.CourseID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	var found bool
	for _, o := range list {
		if o.ID == qz.ID {
			found = true
			assert.Equal(t, 1, o.QuestionCount)
			assert.Equal(t, 40.0, o.AssignedScore)
		}
	}
	assert.True(t, found)
}

// interleavedStore lets another writer add a question inside the quiz update,
// after the ceiling check has read the current sum.
type interleavedStore struct {
	*SQLStore
	points float64
}

func (s interleavedStore) WithinTx(ctx context.Context, fn func(Tx) error) error {
	return s.SQLStore.WithinTx(ctx, func(tx Tx) error {
		return fn(interleavedTx{Tx: tx, points: s.points})
	})
}

type interleavedTx struct {
	Tx
	points float64
}

func (t interleavedTx) UpdateQuiz(ctx context.Context, q Quiz) error {
	if _, err := t.Tx.InsertQuestion(ctx, q.ID, "added concurrently", t.points); err != nil {
		return err
	}
	return t.Tx.UpdateQuiz(ctx, q)
}

func TestSQLStore_LoweredCeilingRacingAnAdd(t *testing.T) {
	store, d := openSeeded(t)
	ctx := context.Background()
	qz := newQuiz(t, NewService(store), d)

	in := validInput()
	in.Points = 40
	_, err := NewService(store).AddQuestion(ctx, qz.ID, in)
	require.NoError(t, err)

	svc := NewService(interleavedStore{SQLStore: store, points: 10})
	_, err = svc.UpdateQuiz(ctx, qz.ID, QuizUpdate{
		Title: qz.Title, TotalScore: 45, PassingScore: 20, DurationMin: 30,
		StartAt: qz.StartAt, DueAt: qz.DueAt,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindQuotaExceeded, apperr.KindOf(err))

	got, err := store.GetQuiz(ctx, qz.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, got.TotalScore)
	assert.EqualValues(t, 1, scalar(t, d, `SELECT COUNT(*) FROM questions WHERE quiz_id = $1`, qz.ID))
}
