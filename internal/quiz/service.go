package quiz

import (
	"context"
	"strconv"

	"github.com/mind-engage/coursehub/internal/apperr"
	"github.com/mind-engage/coursehub/internal/audit"
	"github.com/mind-engage/coursehub/internal/logger"
)

// scoreEpsilon absorbs float rounding when summing question points.
const scoreEpsilon = 1e-9

type Service struct {
	store   Store
	events  audit.Appender
	modules ModuleInvalidator
	log     *logger.Logger
}

type ServiceOption func(*Service)

func WithAudit(a audit.Appender) ServiceOption { return func(s *Service) { s.events = a } }

func WithModuleInvalidator(m ModuleInvalidator) ServiceOption {
	return func(s *Service) { s.modules = m }
}

func WithLogger(l *logger.Logger) ServiceOption { return func(s *Service) { s.log = l } }

func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{store: store, events: audit.Discard{}, log: logger.Nop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AddQuestion validates a question, checks the quiz's score ceiling and
// writes the question with its four options in one transaction.
func (s *Service) AddQuestion(ctx context.Context, quizID int64, in QuestionInput) (Question, error) {
	d, err := normalizeQuestion(in)
	if err != nil {
		return Question{}, err
	}
	qz, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return Question{}, apperr.Storage("load quiz", err)
	}

	var (
		id int64
		q  quotaCheck
	)
	err = s.store.WithinTx(ctx, func(tx Tx) error {
		if err := q.run(ctx, tx, qz, 0, d.Points); err != nil {
			return err
		}
		var err error
		if id, err = tx.InsertQuestion(ctx, quizID, d.Content, d.Points); err != nil {
			return err
		}
		return insertOptions(ctx, tx, id, d.Options)
	})
	if err != nil {
		return Question{}, s.writeFailed("add question", qz, q, err)
	}

	out, err := s.store.GetQuestion(ctx, id)
	if err != nil {
		return Question{}, apperr.Storage("reload question", err)
	}
	s.afterWrite(ctx, qz, audit.QuestionAdded, out.ID, map[string]any{
		"quiz_id": qz.ID, "points": out.Points,
	})
	return out, nil
}

// UpdateQuestion replaces content, points and all four options of a question.
// The ceiling check counts every other question of the quiz plus the new
// points.
func (s *Service) UpdateQuestion(ctx context.Context, questionID int64, in QuestionInput) (Question, error) {
	d, err := normalizeQuestion(in)
	if err != nil {
		return Question{}, err
	}
	prev, err := s.store.GetQuestion(ctx, questionID)
	if err != nil {
		return Question{}, apperr.Storage("load question", err)
	}
	qz, err := s.store.GetQuiz(ctx, prev.QuizID)
	if err != nil {
		return Question{}, apperr.Storage("load quiz", err)
	}

	var q quotaCheck
	err = s.store.WithinTx(ctx, func(tx Tx) error {
		if err := q.run(ctx, tx, qz, questionID, d.Points); err != nil {
			return err
		}
		if err := tx.UpdateQuestion(ctx, questionID, d.Content, d.Points); err != nil {
			return err
		}
		if err := tx.DeleteOptions(ctx, questionID); err != nil {
			return err
		}
		return insertOptions(ctx, tx, questionID, d.Options)
	})
	if err != nil {
		return Question{}, s.writeFailed("update question", qz, q, err)
	}

	out, err := s.store.GetQuestion(ctx, questionID)
	if err != nil {
		return Question{}, apperr.Storage("reload question", err)
	}
	s.afterWrite(ctx, qz, audit.QuestionUpdated, out.ID, map[string]any{
		"quiz_id": qz.ID, "from_points": prev.Points, "to_points": out.Points,
	})
	return out, nil
}

// DeleteQuestion removes a question and its options. A second delete of the
// same id is not_found.
func (s *Service) DeleteQuestion(ctx context.Context, questionID int64) error {
	prev, err := s.store.GetQuestion(ctx, questionID)
	if err != nil {
		return apperr.Storage("load question", err)
	}
	qz, err := s.store.GetQuiz(ctx, prev.QuizID)
	if err != nil {
		return apperr.Storage("load quiz", err)
	}

	err = s.store.WithinTx(ctx, func(tx Tx) error {
		if err := tx.DeleteOptions(ctx, questionID); err != nil {
			return err
		}
		removed, err := tx.DeleteQuestion(ctx, questionID)
		if err != nil {
			return err
		}
		if !removed {
			// lost a race with another delete
			return apperr.NotFound("question %d not found", questionID)
		}
		return nil
	})
	if err != nil {
		return s.writeFailed("delete question", qz, quotaCheck{}, err)
	}
	s.afterWrite(ctx, qz, audit.QuestionDeleted, questionID, map[string]any{
		"quiz_id": qz.ID, "points": prev.Points,
	})
	return nil
}

func (s *Service) Question(ctx context.Context, questionID int64) (Question, error) {
	q, err := s.store.GetQuestion(ctx, questionID)
	return q, apperr.Storage("load question", err)
}

// Questions lists the questions of an existing quiz, oldest first.
func (s *Service) Questions(ctx context.Context, quizID int64) ([]Question, error) {
	if _, err := s.store.GetQuiz(ctx, quizID); err != nil {
		return nil, apperr.Storage("load quiz", err)
	}
	qs, err := s.store.ListQuestions(ctx, quizID)
	return qs, apperr.Storage("list questions", err)
}

// AllQuestions lists every question, newest first.
func (s *Service) AllQuestions(ctx context.Context) ([]Question, error) {
	qs, err := s.store.ListAllQuestions(ctx)
	return qs, apperr.Storage("list questions", err)
}

// DesignerQuestions lists the questions of the courses an instructor
// designs, newest first.
func (s *Service) DesignerQuestions(ctx context.Context, instructorID int64) ([]Question, error) {
	qs, err := s.store.ListDesignerQuestions(ctx, instructorID)
	return qs, apperr.Storage("list questions", err)
}

func (s *Service) Quiz(ctx context.Context, quizID int64) (Quiz, error) {
	q, err := s.store.GetQuiz(ctx, quizID)
	return q, apperr.Storage("load quiz", err)
}

func (s *Service) QuizzesByCourse(ctx context.Context, courseID int64) ([]Overview, error) {
	qs, err := s.store.QuizzesByCourse(ctx, courseID)
	return qs, apperr.Storage("list quizzes", err)
}

// CreateQuiz creates the assignment and its quiz under a lesson.
func (s *Service) CreateQuiz(ctx context.Context, in NewQuiz) (Quiz, error) {
	in, err := normalizeNewQuiz(in)
	if err != nil {
		return Quiz{}, err
	}
	if _, err := s.store.LessonModule(ctx, in.LessonID); err != nil {
		return Quiz{}, apperr.Storage("load lesson", err)
	}

	var quizID int64
	err = s.store.WithinTx(ctx, func(tx Tx) error {
		asgID, err := tx.InsertAssignment(ctx, in.LessonID, in.Title, in.StartAt, in.DueAt)
		if err != nil {
			return err
		}
		quizID, err = tx.InsertQuiz(ctx, asgID, in.TotalScore, in.PassingScore, in.DurationMin)
		return err
	})
	if err != nil {
		s.log.Error("create quiz failed", "lesson_id", in.LessonID, "error", err)
		return Quiz{}, apperr.Storage("create quiz", err)
	}

	qz, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return Quiz{}, apperr.Storage("reload quiz", err)
	}
	s.invalidate(ctx, qz.ModuleID)
	s.record(ctx, audit.QuizCreated, "quiz:"+strconv.FormatInt(qz.ID, 10), map[string]any{
		"lesson_id": qz.LessonID, "total_score": qz.TotalScore,
	})
	return qz, nil
}

// UpdateQuiz changes a quiz and its assignment. The ceiling may not drop
// below the points already assigned to its questions.
func (s *Service) UpdateQuiz(ctx context.Context, quizID int64, in QuizUpdate) (Quiz, error) {
	in, err := normalizeQuizUpdate(in)
	if err != nil {
		return Quiz{}, err
	}
	prev, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return Quiz{}, apperr.Storage("load quiz", err)
	}

	next := prev
	next.Title = in.Title
	next.TotalScore = in.TotalScore
	next.PassingScore = in.PassingScore
	next.DurationMin = in.DurationMin
	next.StartAt = in.StartAt
	next.DueAt = in.DueAt

	err = s.store.WithinTx(ctx, func(tx Tx) error {
		used, err := tx.ScoreSum(ctx, quizID, 0)
		if err != nil {
			return err
		}
		if used > next.TotalScore+scoreEpsilon {
			return apperr.QuotaExceeded("quiz %d: questions already assign %g points, above the new total score %g",
				quizID, used, next.TotalScore)
		}
		return tx.UpdateQuiz(ctx, next)
	})
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindQuotaExceeded:
			s.log.Info("update quiz rejected", "quiz_id", quizID, "ceiling", next.TotalScore, "error", err)
			return Quiz{}, err
		case apperr.KindNotFound, apperr.KindValidation, apperr.KindForbidden:
			return Quiz{}, err
		}
		s.log.Error("update quiz failed", "quiz_id", quizID, "error", err)
		return Quiz{}, apperr.Storage("update quiz", err)
	}

	out, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return Quiz{}, apperr.Storage("reload quiz", err)
	}
	s.invalidate(ctx, out.ModuleID)
	s.record(ctx, audit.QuizUpdated, "quiz:"+strconv.FormatInt(out.ID, 10), map[string]any{
		"from_total_score": prev.TotalScore, "to_total_score": out.TotalScore,
	})
	return out, nil
}

// quotaCheck is the application-side ceiling check; it remembers what it saw
// so a later storage rejection can be reported with the same numbers.
type quotaCheck struct {
	ran       bool
	rejected  bool
	attempted float64
}

func (q *quotaCheck) run(ctx context.Context, tx Tx, qz Quiz, excludeID int64, points float64) error {
	used, err := tx.ScoreSum(ctx, qz.ID, excludeID)
	if err != nil {
		return err
	}
	q.ran = true
	q.attempted = used + points
	if q.attempted > qz.TotalScore+scoreEpsilon {
		q.rejected = true
		return apperr.QuotaExceeded("quiz %d: total score ceiling is %g, questions would sum to %g",
			qz.ID, qz.TotalScore, q.attempted)
	}
	return nil
}

func insertOptions(ctx context.Context, tx Tx, questionID int64, opts []StoredOption) error {
	for _, o := range opts {
		if err := tx.InsertOption(ctx, questionID, o); err != nil {
			return err
		}
	}
	return nil
}

// writeFailed classifies a failed question transaction. A quota error that
// the application check did not raise came from storage and wins.
func (s *Service) writeFailed(op string, qz Quiz, q quotaCheck, err error) error {
	switch apperr.KindOf(err) {
	case apperr.KindQuotaExceeded:
		if q.rejected {
			s.log.Info(op+" rejected", "quiz_id", qz.ID, "ceiling", qz.TotalScore, "attempted", q.attempted)
			return err
		}
		s.log.Warn(op+" rejected by storage check", "quiz_id", qz.ID, "ceiling", qz.TotalScore, "error", err)
		if q.ran {
			return &apperr.Error{
				Kind: apperr.KindQuotaExceeded,
				Message: "quiz " + strconv.FormatInt(qz.ID, 10) + ": total score ceiling is " + fmtScore(qz.TotalScore) +
					", a concurrent write left no room for " + fmtScore(q.attempted),
				Err: err,
			}
		}
		return err
	case apperr.KindNotFound, apperr.KindValidation, apperr.KindForbidden:
		return err
	default:
		s.log.Error(op+" failed", "quiz_id", qz.ID, "error", err)
		return apperr.Storage(op, err)
	}
}

func fmtScore(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (s *Service) afterWrite(ctx context.Context, qz Quiz, typ string, questionID int64, data map[string]any) {
	s.invalidate(ctx, qz.ModuleID)
	s.record(ctx, typ, "question:"+strconv.FormatInt(questionID, 10), data)
}

func (s *Service) invalidate(ctx context.Context, moduleID int64) {
	if s.modules == nil {
		return
	}
	if err := s.modules.Invalidate(ctx, moduleID); err != nil {
		s.log.Warn("module cache invalidation failed", "module_id", moduleID, "error", err)
	}
}

func (s *Service) record(ctx context.Context, typ, key string, data any) {
	e, err := audit.NewEvent(typ, key, data)
	if err == nil {
		err = s.events.Append(ctx, e)
	}
	if err != nil {
		s.log.Warn("audit append failed", "type", typ, "key", key, "error", err)
	}
}
