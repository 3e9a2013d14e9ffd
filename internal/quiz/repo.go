package quiz

import (
	"context"
	"time"
)

// Store is the storage collaborator of the quiz service. Lookups of missing
// rows return apperr not_found errors.
type Store interface {
	GetQuiz(ctx context.Context, quizID int64) (Quiz, error)
	GetQuestion(ctx context.Context, questionID int64) (Question, error)
	ListQuestions(ctx context.Context, quizID int64) ([]Question, error)
	ListAllQuestions(ctx context.Context) ([]Question, error)
	// ListDesignerQuestions lists questions in courses the instructor designs.
	ListDesignerQuestions(ctx context.Context, instructorID int64) ([]Question, error)
	QuizzesByCourse(ctx context.Context, courseID int64) ([]Overview, error)
	// LessonModule returns the module a lesson belongs to.
	LessonModule(ctx context.Context, lessonID int64) (int64, error)

	// WithinTx runs fn in one transaction, committing only if fn returns nil.
	WithinTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the write side. Implementations re-check the score ceiling on
// InsertQuestion, UpdateQuestion and UpdateQuiz and report a violation as an
// apperr quota_exceeded error.
type Tx interface {
	// ScoreSum totals the points of a quiz's questions, skipping excludeID.
	ScoreSum(ctx context.Context, quizID, excludeID int64) (float64, error)
	InsertQuestion(ctx context.Context, quizID int64, content string, points float64) (int64, error)
	UpdateQuestion(ctx context.Context, questionID int64, content string, points float64) error
	InsertOption(ctx context.Context, questionID int64, o StoredOption) error
	DeleteOptions(ctx context.Context, questionID int64) error
	// DeleteQuestion reports whether a row was removed.
	DeleteQuestion(ctx context.Context, questionID int64) (bool, error)

	InsertAssignment(ctx context.Context, lessonID int64, title string, startAt, dueAt time.Time) (int64, error)
	InsertQuiz(ctx context.Context, assignmentID int64, totalScore, passingScore float64, durationMin int) (int64, error)
	UpdateQuiz(ctx context.Context, q Quiz) error
}

// ModuleInvalidator drops cached module details.
type ModuleInvalidator interface {
	Invalidate(ctx context.Context, moduleID int64) error
}
