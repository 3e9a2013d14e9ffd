package curriculum

import "context"

// ModuleReader is the read side the module-details view needs.
type ModuleReader interface {
	// ModuleLessonRows returns join rows sorted by lesson order, then
	// assignment id. An unknown module yields no rows.
	ModuleLessonRows(ctx context.Context, moduleID int64) ([]LessonRow, error)
}

type Store interface {
	ModuleReader

	ModulesByCourse(ctx context.Context, courseID int64) ([]ModuleSummary, error)

	ListCourses(ctx context.Context, f CourseFilter) ([]Course, error)
	GetCourse(ctx context.Context, courseID int64) (Course, error) // not_found when absent
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCourse(ctx context.Context, c NewCourse) (Course, error)
	UpdateCourseStatus(ctx context.Context, u CourseStatusUpdate) (Course, error)

	ActiveLearners(ctx context.Context, courseID int64, status string) ([]Learner, error)
	QuizPerformance(ctx context.Context, courseID int64, minScore float64) ([]QuizPerformance, error)
	// QuizStatistics returns not_found for an unknown assignment.
	QuizStatistics(ctx context.Context, assignmentID int64, minQuestions int) ([]QuizStats, error)
}

// DetailsCache holds built module details. Implementations must be safe for
// concurrent use.
//
// Every Invalidate bumps the module's version. On a miss Get reports the
// current version, and Set stores only while the module is still at that
// version, so details loaded before an invalidation are never cached.
type DetailsCache interface {
	Get(ctx context.Context, moduleID int64) (lessons []Lesson, version int64, hit bool, err error)
	Set(ctx context.Context, moduleID, version int64, lessons []Lesson) error
	Invalidate(ctx context.Context, moduleID int64) error
}
