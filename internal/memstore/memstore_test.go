package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/coursehub/internal/apperr"
	"github.com/mind-engage/coursehub/internal/curriculum"
	"github.com/mind-engage/coursehub/internal/quiz"
)

func TestModuleLessonRowsFeedTheTransform(t *testing.T) {
	s, ids := Demo()
	ctx := context.Background()

	rows, err := s.ModuleLessonRows(ctx, ids.ModuleID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Introduction to SQL", rows[0].LessonTitle)
	assert.Nil(t, rows[1].AssignmentID)

	lessons := curriculum.BuildLessons(rows)
	require.Len(t, lessons, 2)
	a := lessons[0].Assignments[0]
	require.NotNil(t, a.Quiz)
	require.NotNil(t, a.Exercise)
	assert.Equal(t, ids.QuizID, a.Quiz.ID)
	assert.Equal(t, 0, a.Quiz.QuestionCount)
	assert.Empty(t, lessons[1].Assignments)

	empty, err := s.ModuleLessonRows(ctx, 999)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestWithinTxDiscardsWorkOnError(t *testing.T) {
	s, ids := Demo()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(tx quiz.Tx) error {
		id, err := tx.InsertQuestion(ctx, ids.QuizID, "q", 10)
		require.NoError(t, err)
		require.NoError(t, tx.InsertOption(ctx, id, quiz.StoredOption{Position: 0, Label: "A", Text: "x"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.QuestionCount(ids.QuizID))
}

func TestWithinTxHonoursCancellation(t *testing.T) {
	s, ids := Demo()
	ctx, cancel := context.WithCancel(context.Background())

	err := s.WithinTx(ctx, func(tx quiz.Tx) error {
		_, err := tx.InsertQuestion(ctx, ids.QuizID, "q", 10)
		cancel()
		return err
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s.QuestionCount(ids.QuizID))
}

func TestCeilingIsCheckedOnWrite(t *testing.T) {
	s, ids := Demo()
	ctx := context.Background()

	var qid int64
	require.NoError(t, s.WithinTx(ctx, func(tx quiz.Tx) error {
		var err error
		qid, err = tx.InsertQuestion(ctx, ids.QuizID, "q", 100)
		return err
	}))

	err := s.WithinTx(ctx, func(tx quiz.Tx) error {
		_, err := tx.InsertQuestion(ctx, ids.QuizID, "one more", 0.5)
		return err
	})
	assert.Equal(t, apperr.KindQuotaExceeded, apperr.KindOf(err))

	err = s.WithinTx(ctx, func(tx quiz.Tx) error {
		return tx.UpdateQuestion(ctx, qid, "q", 100)
	})
	assert.NoError(t, err)

	err = s.WithinTx(ctx, func(tx quiz.Tx) error {
		return tx.UpdateQuestion(ctx, qid, "q", 101)
	})
	assert.Equal(t, apperr.KindQuotaExceeded, apperr.KindOf(err))

	qz, err := s.GetQuiz(ctx, ids.QuizID)
	require.NoError(t, err)
	qz.TotalScore = 99
	err = s.WithinTx(ctx, func(tx quiz.Tx) error { return tx.UpdateQuiz(ctx, qz) })
	assert.Equal(t, apperr.KindQuotaExceeded, apperr.KindOf(err))
	got, err := s.GetQuiz(ctx, ids.QuizID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, got.TotalScore)
}

func TestLookupsReportNotFound(t *testing.T) {
	s, _ := Demo()
	ctx := context.Background()

	_, err := s.GetQuiz(ctx, 404)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	_, err = s.GetQuestion(ctx, 404)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	_, err = s.LessonModule(ctx, 404)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestQuizzesByCourse(t *testing.T) {
	s, ids := Demo()
	ctx := context.Background()

	list, err := s.QuizzesByCourse(ctx, ids.CourseID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "SQL Basics Quiz", list[0].Title)
	assert.Equal(t, "SQL Fundamentals", list[0].ModuleTitle)
	assert.Equal(t, ids.LessonID, list[0].LessonID)

	none, err := s.QuizzesByCourse(ctx, 77)
	require.NoError(t, err)
	assert.Empty(t, none)
}
