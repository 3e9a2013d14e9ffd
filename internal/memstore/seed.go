package memstore

import "time"

// DemoIDs names the rows created by Demo.
type DemoIDs struct {
	CourseID   int64
	ModuleID   int64
	LessonID   int64
	QuizID     int64
	ExerciseID int64
}

// Demo builds a one-module course: a lesson with a 100-point quiz and an
// exercise on the same assignment, and a second lesson with no work.
func Demo() (*Store, DemoIDs) {
	s := New()
	start := time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)
	material := "https://example.org/sql-intro.pdf"

	ids := DemoIDs{CourseID: 1}
	ids.ModuleID = s.AddModule(ids.CourseID, "SQL Fundamentals", 1)
	ids.LessonID = s.AddLesson(ids.ModuleID, "Introduction to SQL", 1, 20, &material)
	asg := s.AddAssignment(ids.LessonID, "SQL Basics Quiz", start, start.Add(7*24*time.Hour))
	ids.QuizID = s.AddQuiz(asg, 100, 60, 30)
	ids.ExerciseID = s.AddExercise(asg, "Hands-on SELECT", nil)
	s.AddLesson(ids.ModuleID, "Filtering with WHERE", 2, 25, nil)
	return s, ids
}
