package curriculum

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func lessonRow(id int64, order int) LessonRow {
	return LessonRow{LessonID: id, ModuleID: 1, LessonTitle: "lesson", LessonOrder: order, DurationMin: 10}
}

func withAssignment(r LessonRow, id int64) LessonRow {
	r.AssignmentID = ptr(id)
	r.AssignmentTitle = ptr("assignment")
	r.StartAt = ptr(time.Unix(1000, 0).UTC())
	r.DueAt = ptr(time.Unix(2000, 0).UTC())
	return r
}

func withQuiz(r LessonRow, id int64, questions int) LessonRow {
	r.QuizID = ptr(id)
	r.QuizTitle = ptr("quiz")
	r.QuizTotalScore = ptr(100.0)
	r.QuizPassingScore = ptr(60.0)
	r.QuizDurationMin = ptr(30)
	r.QuestionCount = questions
	return r
}

func withExercise(r LessonRow, id int64) LessonRow {
	r.ExerciseID = ptr(id)
	r.ExerciseTitle = ptr("exercise")
	r.ExerciseDescription = ptr("do the thing")
	return r
}

func TestBuildLessons_NoDuplicateAssignments(t *testing.T) {
	base := withAssignment(lessonRow(1, 1), 10)
	rows := []LessonRow{
		base,
		withQuiz(base, 100, 3),
		withExercise(base, 200),
		withAssignment(lessonRow(1, 1), 11),
		base,
	}

	lessons := BuildLessons(rows)
	require.Len(t, lessons, 1)
	require.Len(t, lessons[0].Assignments, 2)

	a := lessons[0].Assignments[0]
	assert.Equal(t, int64(10), a.ID)
	require.NotNil(t, a.Quiz)
	assert.Equal(t, int64(100), a.Quiz.ID)
	assert.Equal(t, 3, a.Quiz.QuestionCount)
	require.NotNil(t, a.Exercise)
	assert.Equal(t, int64(200), a.Exercise.ID)
	assert.Equal(t, int64(11), lessons[0].Assignments[1].ID)
}

func TestBuildLessons_PreservesFirstSeenOrder(t *testing.T) {
	rows := []LessonRow{
		lessonRow(3, 1),
		withAssignment(lessonRow(1, 2), 5),
		lessonRow(2, 3),
		withAssignment(lessonRow(3, 1), 6),
		withAssignment(lessonRow(1, 2), 7),
	}
	lessons := BuildLessons(rows)

	var ids []int64
	for _, l := range lessons {
		ids = append(ids, l.ID)
	}
	assert.Equal(t, []int64{3, 1, 2}, ids)
	assert.Equal(t, int64(6), lessons[0].Assignments[0].ID)
	assert.Len(t, lessons[1].Assignments, 2)
}

func TestBuildLessons_AbsentQuizAndExercise(t *testing.T) {
	rows := []LessonRow{
		withAssignment(lessonRow(1, 1), 10),
		withAssignment(lessonRow(1, 1), 11),
		lessonRow(2, 2),
	}
	lessons := BuildLessons(rows)
	require.Len(t, lessons, 2)
	for _, a := range lessons[0].Assignments {
		assert.Nil(t, a.Quiz)
		assert.Nil(t, a.Exercise)
	}

	// no assignments: empty list, never null
	require.NotNil(t, lessons[1].Assignments)
	assert.Empty(t, lessons[1].Assignments)
	b, err := json.Marshal(lessons[1])
	require.NoError(t, err)
	assert.Contains(t, string(b), `"assignments":[]`)

	b, err = json.Marshal(lessons[0].Assignments[0])
	require.NoError(t, err)
	assert.Contains(t, string(b), `"quiz":null`)
	assert.Contains(t, string(b), `"exercise":null`)
}

func TestBuildLessons_QuizOnLaterRowAttachesToEarlierAssignment(t *testing.T) {
	first := withAssignment(lessonRow(1, 1), 10)
	other := withAssignment(lessonRow(1, 1), 11)
	rows := []LessonRow{first, other, withQuiz(first, 100, 1)}

	lessons := BuildLessons(rows)
	require.Len(t, lessons[0].Assignments, 2)
	require.NotNil(t, lessons[0].Assignments[0].Quiz)
	assert.Nil(t, lessons[0].Assignments[1].Quiz)
}

func TestBuildLessons_CopiesLessonAttributes(t *testing.T) {
	r := lessonRow(4, 9)
	r.MaterialURL = ptr("https://example.org/slides.pdf")
	lessons := BuildLessons([]LessonRow{withAssignment(r, 1)})

	l := lessons[0]
	assert.Equal(t, 9, l.Order)
	assert.Equal(t, 10, l.DurationMin)
	assert.Equal(t, "https://example.org/slides.pdf", *l.MaterialURL)
	assert.Equal(t, time.Unix(2000, 0).UTC(), l.Assignments[0].DueAt)
}

func TestBuildLessons_Empty(t *testing.T) {
	lessons := BuildLessons(nil)
	require.NotNil(t, lessons)
	assert.Empty(t, lessons)
}
