package quiz

import "time"

// OptionCount is the fixed number of options of every question.
const OptionCount = 4

// Quiz is the graded part of an assignment; its title, start and due dates
// live on the assignment.
type Quiz struct {
	ID           int64     `json:"quiz_id"`
	AssignmentID int64     `json:"assignment_id"`
	LessonID     int64     `json:"lesson_id"`
	ModuleID     int64     `json:"module_id"`
	CourseID     int64     `json:"course_id"`
	Title        string    `json:"title"`
	TotalScore   float64   `json:"total_score"`
	PassingScore float64   `json:"passing_score"`
	DurationMin  int       `json:"duration_min"`
	StartAt      time.Time `json:"start_at"`
	DueAt        time.Time `json:"due_at"`
}

// Overview is a quiz as listed for a course.
type Overview struct {
	Quiz
	LessonTitle   string  `json:"lesson_title"`
	ModuleTitle   string  `json:"module_title"`
	QuestionCount int     `json:"question_count"`
	AssignedScore float64 `json:"assigned_score"`
}

type Option struct {
	ID   string `json:"id"`
	Text string `json:"text" validate:"required"`
}

type Question struct {
	ID              int64     `json:"question_id"`
	QuizID          int64     `json:"quiz_id"`
	QuizTitle       string    `json:"quiz_title"`
	Content         string    `json:"content"`
	Points          float64   `json:"points"`
	Options         []Option  `json:"options"`
	CorrectOptionID string    `json:"correct_option_id"`
	CreatedAt       time.Time `json:"created_at"`
}

// QuestionInput is the payload of AddQuestion and UpdateQuestion. Option ids
// are optional; when given they only locate the correct option; stored
// options are always labelled A..D by position.
type QuestionInput struct {
	Content         string   `json:"content" validate:"required"`
	Options         []Option `json:"options" validate:"len=4,dive"`
	CorrectOptionID string   `json:"correct_option_id" validate:"required"`
	Points          float64  `json:"points" validate:"gt=0"`
}

// StoredOption is an option row as written to storage.
type StoredOption struct {
	Position int
	Label    string
	Text     string
	Correct  bool
}

type NewQuiz struct {
	LessonID     int64     `json:"lesson_id" validate:"gt=0"`
	Title        string    `json:"title" validate:"required,max=255"`
	TotalScore   float64   `json:"total_score" validate:"gt=0"`
	PassingScore float64   `json:"passing_score" validate:"gte=0"`
	DurationMin  int       `json:"duration_min" validate:"gt=0"`
	StartAt      time.Time `json:"start_at"`
	DueAt        time.Time `json:"due_at"`
}

type QuizUpdate struct {
	Title        string    `json:"title" validate:"required,max=255"`
	TotalScore   float64   `json:"total_score" validate:"gt=0"`
	PassingScore float64   `json:"passing_score" validate:"gte=0"`
	DurationMin  int       `json:"duration_min" validate:"gt=0"`
	StartAt      time.Time `json:"start_at"`
	DueAt        time.Time `json:"due_at"`
}
