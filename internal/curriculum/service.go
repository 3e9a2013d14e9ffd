package curriculum

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/mind-engage/coursehub/internal/apperr"
	"github.com/mind-engage/coursehub/internal/audit"
	"github.com/mind-engage/coursehub/internal/logger"
	"github.com/mind-engage/coursehub/internal/validation"
)

type Service struct {
	store  Store
	cache  DetailsCache
	events audit.Appender
	log    *logger.Logger
}

type Option func(*Service)

func WithCache(c DetailsCache) Option { return func(s *Service) { s.cache = c } }

func WithAudit(a audit.Appender) Option { return func(s *Service) { s.events = a } }

func WithLogger(l *logger.Logger) Option { return func(s *Service) { s.log = l } }

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, events: audit.Discard{}, log: logger.Nop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ModuleDetails returns the lessons of a module with their assignments,
// quizzes and exercises nested. An unknown module has no lessons.
func (s *Service) ModuleDetails(ctx context.Context, moduleID int64) ([]Lesson, error) {
	var (
		version int64
		cached  bool
	)
	if s.cache != nil {
		lessons, v, ok, err := s.cache.Get(ctx, moduleID)
		switch {
		case err != nil:
			s.log.Warn("module cache read failed", "module_id", moduleID, "error", err)
		case ok:
			return lessons, nil
		default:
			version, cached = v, true
		}
	}

	rows, err := s.store.ModuleLessonRows(ctx, moduleID)
	if err != nil {
		s.log.Error("module details query failed", "module_id", moduleID, "error", err)
		return nil, apperr.Storage("load module details", err)
	}
	lessons := BuildLessons(rows)

	if cached {
		if err := s.cache.Set(ctx, moduleID, version, lessons); err != nil {
			s.log.Warn("module cache write failed", "module_id", moduleID, "error", err)
		}
	}
	return lessons, nil
}

func (s *Service) ModulesByCourse(ctx context.Context, courseID int64) ([]ModuleSummary, error) {
	if _, err := s.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}
	mods, err := s.store.ModulesByCourse(ctx, courseID)
	return mods, apperr.Storage("list modules", err)
}

func (s *Service) ListCourses(ctx context.Context, f CourseFilter) ([]Course, error) {
	f.ApprovalStatus = strings.TrimSpace(f.ApprovalStatus)
	f.CourseStatus = strings.TrimSpace(f.CourseStatus)
	if f.ApprovalStatus != "" && !oneOf(f.ApprovalStatus, ApprovalPending, ApprovalApproved, ApprovalRejected) {
		return nil, apperr.Validation("unknown approval status %q", f.ApprovalStatus)
	}
	if f.CourseStatus != "" && !oneOf(f.CourseStatus, StatusDraft, StatusPublished, StatusArchived) {
		return nil, apperr.Validation("unknown course status %q", f.CourseStatus)
	}
	courses, err := s.store.ListCourses(ctx, f)
	return courses, apperr.Storage("list courses", err)
}

func (s *Service) GetCourse(ctx context.Context, courseID int64) (Course, error) {
	c, err := s.store.GetCourse(ctx, courseID)
	return c, apperr.Storage("get course", err)
}

func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	cats, err := s.store.ListCategories(ctx)
	return cats, apperr.Storage("list categories", err)
}

// CreateCourse adds a draft course awaiting approval, optionally assigning
// its first instructor.
func (s *Service) CreateCourse(ctx context.Context, in NewCourse) (Course, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := validation.Struct(in); err != nil {
		return Course{}, err
	}
	c, err := s.store.CreateCourse(ctx, in)
	if err != nil {
		return Course{}, apperr.Storage("create course", err)
	}
	s.record(ctx, audit.CourseCreated, c.ID, map[string]any{
		"title":         c.Title,
		"instructor_id": in.InstructorID,
	})
	return c, nil
}

// UpdateCourseStatus is the admin approval/publication action.
func (s *Service) UpdateCourseStatus(ctx context.Context, u CourseStatusUpdate) (Course, error) {
	u.ApprovalStatus = strings.TrimSpace(u.ApprovalStatus)
	u.CourseStatus = strings.TrimSpace(u.CourseStatus)
	if err := validation.Struct(u); err != nil {
		return Course{}, err
	}
	if u.ApprovalStatus == "" && u.CourseStatus == "" {
		return Course{}, apperr.Validation("approval_status or course_status is required")
	}
	before, err := s.GetCourse(ctx, u.CourseID)
	if err != nil {
		return Course{}, err
	}
	c, err := s.store.UpdateCourseStatus(ctx, u)
	if err != nil {
		return Course{}, apperr.Storage("update course status", err)
	}
	s.record(ctx, audit.CourseStatusChanged, c.ID, map[string]any{
		"admin_id":             u.AdminID,
		"from_approval_status": before.ApprovalStatus,
		"to_approval_status":   c.ApprovalStatus,
		"from_course_status":   before.CourseStatus,
		"to_course_status":     c.CourseStatus,
		"notes":                u.Notes,
	})
	return c, nil
}

// ActiveLearners lists enrolments of a course with the given status
// ("active" when empty).
func (s *Service) ActiveLearners(ctx context.Context, courseID int64, status string) ([]Learner, error) {
	if status = strings.TrimSpace(status); status == "" {
		status = "active"
	}
	if _, err := s.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}
	ls, err := s.store.ActiveLearners(ctx, courseID, status)
	return ls, apperr.Storage("list learners", err)
}

// QuizPerformance reports each learner's best attempt per quiz of a course,
// keeping rows whose best score reaches minScore.
func (s *Service) QuizPerformance(ctx context.Context, courseID int64, minScore float64) ([]QuizPerformance, error) {
	if math.IsNaN(minScore) || math.IsInf(minScore, 0) || minScore < 0 {
		return nil, apperr.Validation("min_score must be a finite, non-negative number")
	}
	if _, err := s.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}
	rows, err := s.store.QuizPerformance(ctx, courseID, minScore)
	return rows, apperr.Storage("quiz performance", err)
}

// QuizStatistics summarizes the quiz of an assignment when it has at least
// minQuestions questions.
func (s *Service) QuizStatistics(ctx context.Context, assignmentID int64, minQuestions int) ([]QuizStats, error) {
	if minQuestions < 0 {
		return nil, apperr.Validation("min_questions must not be negative")
	}
	out, err := s.store.QuizStatistics(ctx, assignmentID, minQuestions)
	return out, apperr.Storage("quiz statistics", err)
}

func (s *Service) record(ctx context.Context, typ string, courseID int64, data any) {
	e, err := audit.NewEvent(typ, "course:"+strconv.FormatInt(courseID, 10), data)
	if err == nil {
		err = s.events.Append(ctx, e)
	}
	if err != nil {
		s.log.Warn("audit append failed", "type", typ, "course_id", courseID, "error", err)
	}
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
