package quiz_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/coursehub/internal/apperr"
	"github.com/mind-engage/coursehub/internal/audit"
	"github.com/mind-engage/coursehub/internal/memstore"
	"github.com/mind-engage/coursehub/internal/quiz"
)

func question(points float64) quiz.QuestionInput {
	return quiz.QuestionInput{
		Content: "Which keyword removes duplicate rows?",
		Options: []quiz.Option{
			{Text: "UNIQUE"}, {Text: "DISTINCT"}, {Text: "SINGLE"}, {Text: "ONLY"},
		},
		CorrectOptionID: "B",
		Points:          points,
	}
}

// seed adds questions with the given points and returns their ids.
func seed(t *testing.T, svc *quiz.Service, quizID int64, points ...float64) []int64 {
	t.Helper()
	ids := make([]int64, 0, len(points))
	for _, p := range points {
		q, err := svc.AddQuestion(context.Background(), quizID, question(p))
		require.NoError(t, err)
		ids = append(ids, q.ID)
	}
	return ids
}

type recordingInvalidator struct {
	mu  sync.Mutex
	ids []int64
}

func (r *recordingInvalidator) Invalidate(_ context.Context, moduleID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, moduleID)
	return nil
}

func TestAddQuestion_QuotaInvariant(t *testing.T) {
	store, ids := memstore.Demo()
	svc := quiz.NewService(store)
	ctx := context.Background()
	seed(t, svc, ids.QuizID, 50, 40)

	_, err := svc.AddQuestion(ctx, ids.QuizID, question(15))
	require.Error(t, err)
	assert.Equal(t, apperr.KindQuotaExceeded, apperr.KindOf(err))
	assert.Contains(t, apperr.MessageOf(err), "ceiling is 100")
	assert.Contains(t, apperr.MessageOf(err), "105")
	assert.Equal(t, 2, store.QuestionCount(ids.QuizID))

	q, err := svc.AddQuestion(ctx, ids.QuizID, question(10))
	require.NoError(t, err)
	assert.Equal(t, 3, store.QuestionCount(ids.QuizID))
	assert.Equal(t, 10.0, q.Points)
	assert.Equal(t, "SQL Basics Quiz", q.QuizTitle)
	assert.Equal(t, "B", q.CorrectOptionID)
	require.Len(t, q.Options, quiz.OptionCount)
	assert.Equal(t, "A", q.Options[0].ID)
	assert.Equal(t, "DISTINCT", q.Options[1].Text)
}

func TestUpdateQuestion_QuotaInvariant(t *testing.T) {
	store, ids := memstore.Demo()
	svc := quiz.NewService(store)
	ctx := context.Background()
	qid := seed(t, svc, ids.QuizID, 20, 80)[0]

	_, err := svc.UpdateQuestion(ctx, qid, question(20))
	require.NoError(t, err)

	_, err = svc.UpdateQuestion(ctx, qid, question(21))
	assert.Equal(t, apperr.KindQuotaExceeded, apperr.KindOf(err))
	got, err := svc.Question(ctx, qid)
	require.NoError(t, err)
	assert.Equal(t, 20.0, got.Points)

	in := question(19)
	in.Content = "Rewritten"
	in.CorrectOptionID = "D"
	got, err = svc.UpdateQuestion(ctx, qid, in)
	require.NoError(t, err)
	assert.Equal(t, 19.0, got.Points)
	assert.Equal(t, "Rewritten", got.Content)
	assert.Equal(t, "D", got.CorrectOptionID)
	assert.Equal(t, quiz.OptionCount, store.OptionCount(qid))
}

// countingStore records whether the service touched storage at all.
type countingStore struct {
	quiz.Store
	calls int
}

func (c *countingStore) GetQuiz(ctx context.Context, id int64) (quiz.Quiz, error) {
	c.calls++
	return c.Store.GetQuiz(ctx, id)
}

func (c *countingStore) GetQuestion(ctx context.Context, id int64) (quiz.Question, error) {
	c.calls++
	return c.Store.GetQuestion(ctx, id)
}

func (c *countingStore) WithinTx(ctx context.Context, fn func(quiz.Tx) error) error {
	c.calls++
	return c.Store.WithinTx(ctx, fn)
}

func TestAddQuestion_WrongCorrectOptionFailsBeforeIO(t *testing.T) {
	mem, ids := memstore.Demo()
	store := &countingStore{Store: mem}
	svc := quiz.NewService(store)

	in := question(5)
	in.CorrectOptionID = "E"
	_, err := svc.AddQuestion(context.Background(), ids.QuizID, in)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Zero(t, store.calls)

	_, err = svc.UpdateQuestion(context.Background(), 1, in)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Zero(t, store.calls)
}

func TestDeleteQuestion_Twice(t *testing.T) {
	store, ids := memstore.Demo()
	svc := quiz.NewService(store)
	ctx := context.Background()
	qid := seed(t, svc, ids.QuizID, 10)[0]
	require.Equal(t, quiz.OptionCount, store.OptionCount(qid))

	require.NoError(t, svc.DeleteQuestion(ctx, qid))
	assert.Equal(t, 0, store.QuestionCount(ids.QuizID))
	assert.Equal(t, 0, store.OptionCount(qid))

	err := svc.DeleteQuestion(ctx, qid)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestMissingRowsAreNotFound(t *testing.T) {
	store, _ := memstore.Demo()
	svc := quiz.NewService(store)
	ctx := context.Background()

	_, err := svc.AddQuestion(ctx, 999, question(1))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	_, err = svc.UpdateQuestion(ctx, 999, question(1))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	_, err = svc.Questions(ctx, 999)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

// faultyStore fails the nth InsertOption of every transaction.
type faultyStore struct {
	quiz.Store
	failAt int
}

var errDiskFull = errors.New("disk full")

func (f *faultyStore) WithinTx(ctx context.Context, fn func(quiz.Tx) error) error {
	return f.Store.WithinTx(ctx, func(tx quiz.Tx) error {
		return fn(&faultyTx{Tx: tx, failAt: f.failAt})
	})
}

type faultyTx struct {
	quiz.Tx
	failAt, n int
}

func (t *faultyTx) InsertOption(ctx context.Context, questionID int64, o quiz.StoredOption) error {
	t.n++
	if t.n == t.failAt {
		return errDiskFull
	}
	return t.Tx.InsertOption(ctx, questionID, o)
}

func TestAddQuestion_PartialFailureLeavesNothing(t *testing.T) {
	mem, ids := memstore.Demo()
	events := &audit.Memory{}
	svc := quiz.NewService(&faultyStore{Store: mem, failAt: 4}, quiz.WithAudit(events))

	_, err := svc.AddQuestion(context.Background(), ids.QuizID, question(10))
	require.Error(t, err)
	assert.Equal(t, apperr.KindStorageUnavailable, apperr.KindOf(err))
	assert.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, 0, mem.QuestionCount(ids.QuizID))

	all, err := mem.ListAllQuestions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, events.Events())
}

func TestUpdateQuestion_PartialFailureKeepsOldOptions(t *testing.T) {
	mem, ids := memstore.Demo()
	qid := seed(t, quiz.NewService(mem), ids.QuizID, 10)[0]
	svc := quiz.NewService(&faultyStore{Store: mem, failAt: 4})

	in := question(12)
	in.Content = "changed"
	_, err := svc.UpdateQuestion(context.Background(), qid, in)
	require.Error(t, err)

	got, err := mem.GetQuestion(context.Background(), qid)
	require.NoError(t, err)
	assert.Equal(t, 10.0, got.Points)
	assert.Equal(t, "Which keyword removes duplicate rows?", got.Content)
	assert.Len(t, got.Options, quiz.OptionCount)
}

// staleStore hides committed questions from the pre-check, the way a
// concurrent writer would between the check and the insert.
type staleStore struct{ quiz.Store }

func (s staleStore) WithinTx(ctx context.Context, fn func(quiz.Tx) error) error {
	return s.Store.WithinTx(ctx, func(tx quiz.Tx) error { return fn(staleTx{tx}) })
}

type staleTx struct{ quiz.Tx }

func (staleTx) ScoreSum(context.Context, int64, int64) (float64, error) { return 0, nil }

func TestStorageCheckWinsOverPreCheck(t *testing.T) {
	mem, ids := memstore.Demo()
	seed(t, quiz.NewService(mem), ids.QuizID, 95)
	svc := quiz.NewService(staleStore{mem})

	_, err := svc.AddQuestion(context.Background(), ids.QuizID, question(10))
	require.Error(t, err)
	assert.Equal(t, apperr.KindQuotaExceeded, apperr.KindOf(err))
	assert.Contains(t, apperr.MessageOf(err), "concurrent write")
	assert.Equal(t, 1, mem.QuestionCount(ids.QuizID))
}

func TestConcurrentAddsNeverExceedCeiling(t *testing.T) {
	mem, ids := memstore.Demo()
	svc := quiz.NewService(mem)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddQuestion(context.Background(), ids.QuizID, question(15))
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			assert.Equal(t, apperr.KindQuotaExceeded, apperr.KindOf(err))
		}()
	}
	wg.Wait()
	assert.Equal(t, 6, accepted)
	assert.Equal(t, 6, mem.QuestionCount(ids.QuizID))
}

func TestWritesInvalidateModuleAndRecordEvents(t *testing.T) {
	mem, ids := memstore.Demo()
	events := &audit.Memory{}
	inv := &recordingInvalidator{}
	svc := quiz.NewService(mem, quiz.WithAudit(events), quiz.WithModuleInvalidator(inv))
	ctx := context.Background()

	q, err := svc.AddQuestion(ctx, ids.QuizID, question(10))
	require.NoError(t, err)
	_, err = svc.UpdateQuestion(ctx, q.ID, question(12))
	require.NoError(t, err)
	require.NoError(t, svc.DeleteQuestion(ctx, q.ID))

	assert.Equal(t, []int64{ids.ModuleID, ids.ModuleID, ids.ModuleID}, inv.ids)
	evs := events.Events()
	require.Len(t, evs, 3)
	assert.Equal(t, audit.QuestionAdded, evs[0].Type)
	assert.Equal(t, audit.QuestionUpdated, evs[1].Type)
	assert.Equal(t, audit.QuestionDeleted, evs[2].Type)
	assert.Contains(t, evs[1].DataJSON, `"to_points":12`)
}

type failingAppender struct{}

func (failingAppender) Append(context.Context, audit.Event) error { return errors.New("log offline") }

func TestAuditFailureDoesNotFailWrite(t *testing.T) {
	mem, ids := memstore.Demo()
	svc := quiz.NewService(mem, quiz.WithAudit(failingAppender{}))

	_, err := svc.AddQuestion(context.Background(), ids.QuizID, question(10))
	require.NoError(t, err)
	assert.Equal(t, 1, mem.QuestionCount(ids.QuizID))
}

func TestQuestionListings(t *testing.T) {
	mem, ids := memstore.Demo()
	svc := quiz.NewService(mem)
	ctx := context.Background()
	qids := seed(t, svc, ids.QuizID, 10, 20)

	byQuiz, err := svc.Questions(ctx, ids.QuizID)
	require.NoError(t, err)
	require.Len(t, byQuiz, 2)
	assert.Equal(t, qids[0], byQuiz[0].ID)

	all, err := svc.AllQuestions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, qids[1], all[0].ID)

	none, err := svc.DesignerQuestions(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, none)
	mem.AddDesigner(ids.CourseID, 42)
	mine, err := svc.DesignerQuestions(ctx, 42)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, qids[1], mine[0].ID)

	over, err := svc.QuizzesByCourse(ctx, ids.CourseID)
	require.NoError(t, err)
	require.Len(t, over, 1)
	assert.Equal(t, 2, over[0].QuestionCount)
	assert.Equal(t, 30.0, over[0].AssignedScore)
}
