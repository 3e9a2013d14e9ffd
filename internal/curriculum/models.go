package curriculum

import "time"

// LessonRow is one row of the module-details join: a lesson, optionally one
// of its assignments, and that assignment's quiz or exercise. Nullable
// columns are pointers.
type LessonRow struct {
	LessonID    int64
	ModuleID    int64
	LessonTitle string
	LessonOrder int
	DurationMin int
	MaterialURL *string

	AssignmentID    *int64
	AssignmentTitle *string
	StartAt         *time.Time
	DueAt           *time.Time

	QuizID           *int64
	QuizTitle        *string
	QuizTotalScore   *float64
	QuizPassingScore *float64
	QuizDurationMin  *int
	QuestionCount    int

	ExerciseID          *int64
	ExerciseTitle       *string
	ExerciseDescription *string
}

type Lesson struct {
	ID          int64        `json:"lesson_id"`
	ModuleID    int64        `json:"module_id"`
	Title       string       `json:"title"`
	Order       int          `json:"order"`
	DurationMin int          `json:"duration_min"`
	MaterialURL *string      `json:"material_url"`
	Assignments []Assignment `json:"assignments"`
}

type Assignment struct {
	ID       int64            `json:"assignment_id"`
	Title    string           `json:"title"`
	StartAt  time.Time        `json:"start_at"`
	DueAt    time.Time        `json:"due_at"`
	Quiz     *QuizSummary     `json:"quiz"`
	Exercise *ExerciseSummary `json:"exercise"`
}

type QuizSummary struct {
	ID            int64   `json:"quiz_id"`
	Title         string  `json:"title"`
	TotalScore    float64 `json:"total_score"`
	PassingScore  float64 `json:"passing_score"`
	DurationMin   int     `json:"duration_min"`
	QuestionCount int     `json:"question_count"`
}

type ExerciseSummary struct {
	ID          int64   `json:"exercise_id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
}

type ModuleSummary struct {
	ID          int64  `json:"module_id"`
	CourseID    int64  `json:"course_id"`
	Title       string `json:"title"`
	Order       int    `json:"order"`
	LessonCount int    `json:"lesson_count"`
	QuizCount   int    `json:"quiz_count"`
}

// Course approval and publication states.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"

	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

type Course struct {
	ID              int64      `json:"course_id"`
	Title           string     `json:"title"`
	Description     *string    `json:"description"`
	CategoryID      *int64     `json:"category_id"`
	CategoryName    *string    `json:"category_name"`
	ApprovalStatus  string     `json:"approval_status"`
	CourseStatus    string     `json:"course_status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at"`
	LearnerCount    int        `json:"learner_count"`
	InstructorCount int        `json:"instructor_count"`
}

// CourseFilter narrows ListCourses. Zero values match everything.
type CourseFilter struct {
	CategoryID     int64
	ApprovalStatus string
	CourseStatus   string
}

type NewCourse struct {
	Title        string `json:"title" validate:"required,max=255"`
	Description  string `json:"description"`
	CategoryID   *int64 `json:"category_id"`
	InstructorID *int64 `json:"instructor_id"`
}

// CourseStatusUpdate changes approval and/or publication state. Empty fields
// are left as they are; at least one must be set.
type CourseStatusUpdate struct {
	CourseID       int64  `json:"-"`
	AdminID        int64  `json:"-"`
	ApprovalStatus string `json:"approval_status" validate:"omitempty,oneof=pending approved rejected"`
	CourseStatus   string `json:"course_status" validate:"omitempty,oneof=draft published archived"`
	Notes          string `json:"notes" validate:"max=1000"`
}

type Category struct {
	ID       int64  `json:"category_id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id"`
}

type Learner struct {
	UserID     int64     `json:"user_id"`
	FullName   string    `json:"full_name"`
	Email      string    `json:"email"`
	EnrolledAt time.Time `json:"enrolled_at"`
	Progress   float64   `json:"progress"`
	Status     string    `json:"status"`
}

type QuizPerformance struct {
	UserID       int64   `json:"user_id"`
	Email        string  `json:"email"`
	FullName     string  `json:"full_name"`
	QuizID       int64   `json:"quiz_id"`
	QuizTitle    string  `json:"quiz_title"`
	TotalScore   float64 `json:"total_score"`
	BestScore    float64 `json:"best_score"`
	AttemptCount int     `json:"attempt_count"`
}

// QuizStats summarizes the attempts made on one quiz.
type QuizStats struct {
	QuizID         int64    `json:"quiz_id"`
	AssignmentID   int64    `json:"assignment_id"`
	Title          string   `json:"title"`
	TotalScore     float64  `json:"total_score"`
	PassingScore   float64  `json:"passing_score"`
	QuestionCount  int      `json:"question_count"`
	AttemptCount   int      `json:"attempt_count"`
	LearnerCount   int      `json:"learner_count"`
	AverageScore   *float64 `json:"average_score"`
	HighestScore   *float64 `json:"highest_score"`
	LowestScore    *float64 `json:"lowest_score"`
	PassedAttempts int      `json:"passed_attempts"`
}
