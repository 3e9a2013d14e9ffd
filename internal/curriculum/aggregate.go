package curriculum

// BuildLessons folds join rows into lessons. Lessons keep the order of their
// first row, assignments keep the order of their first row within a lesson,
// and a quiz or exercise attaches to its assignment whichever row carries it.
// Rows are not assumed to be sorted or grouped.
func BuildLessons(rows []LessonRow) []Lesson {
	lessons := make([]Lesson, 0)
	lessonAt := make(map[int64]int)
	assignmentAt := make(map[int64]map[int64]int)

	for _, r := range rows {
		li, ok := lessonAt[r.LessonID]
		if !ok {
			li = len(lessons)
			lessonAt[r.LessonID] = li
			assignmentAt[r.LessonID] = make(map[int64]int)
			lessons = append(lessons, Lesson{
				ID:          r.LessonID,
				ModuleID:    r.ModuleID,
				Title:       r.LessonTitle,
				Order:       r.LessonOrder,
				DurationMin: r.DurationMin,
				MaterialURL: r.MaterialURL,
				Assignments: []Assignment{},
			})
		}
		if r.AssignmentID == nil {
			continue
		}

		lesson := &lessons[li]
		ai, ok := assignmentAt[r.LessonID][*r.AssignmentID]
		if !ok {
			ai = len(lesson.Assignments)
			assignmentAt[r.LessonID][*r.AssignmentID] = ai
			lesson.Assignments = append(lesson.Assignments, newAssignment(r))
		}

		a := &lesson.Assignments[ai]
		if a.Quiz == nil && r.QuizID != nil {
			a.Quiz = &QuizSummary{
				ID:            *r.QuizID,
				Title:         deref(r.QuizTitle),
				TotalScore:    deref(r.QuizTotalScore),
				PassingScore:  deref(r.QuizPassingScore),
				DurationMin:   deref(r.QuizDurationMin),
				QuestionCount: r.QuestionCount,
			}
		}
		if a.Exercise == nil && r.ExerciseID != nil {
			a.Exercise = &ExerciseSummary{
				ID:          *r.ExerciseID,
				Title:       deref(r.ExerciseTitle),
				Description: r.ExerciseDescription,
			}
		}
	}
	return lessons
}

func newAssignment(r LessonRow) Assignment {
	a := Assignment{ID: *r.AssignmentID, Title: deref(r.AssignmentTitle)}
	if r.StartAt != nil {
		a.StartAt = *r.StartAt
	}
	if r.DueAt != nil {
		a.DueAt = *r.DueAt
	}
	return a
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
