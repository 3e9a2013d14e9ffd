// Package memstore is an in-process twin of the SQL stores: it serves the
// module-details rows and the quiz read/write contract, enforces the same
// score ceiling as the database triggers, and makes transactions atomic by
// working on a copy.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mind-engage/coursehub/internal/apperr"
	"github.com/mind-engage/coursehub/internal/curriculum"
	"github.com/mind-engage/coursehub/internal/quiz"
)

const scoreEpsilon = 1e-9

type module struct {
	id, courseID int64
	title        string
	order        int
}

type lesson struct {
	id, moduleID int64
	title        string
	order        int
	duration     int
	material     *string
}

type assignment struct {
	id, lessonID int64
	title        string
	start, due   time.Time
}

type quizRow struct {
	id, assignmentID int64
	total, passing   float64
	duration         int
}

type exercise struct {
	id, assignmentID int64
	title            string
	description      *string
}

type question struct {
	id, quizID int64
	content    string
	points     float64
	created    time.Time
	options    []quiz.StoredOption
}

type data struct {
	nextID      int64
	modules     map[int64]module
	lessons     map[int64]lesson
	assignments map[int64]assignment
	quizzes     map[int64]quizRow
	exercises   map[int64]exercise
	questions   map[int64]question
	designers   map[int64]map[int64]bool
}

func (d *data) id() int64 {
	d.nextID++
	return d.nextID
}

func (d *data) clone() *data {
	c := &data{
		nextID:      d.nextID,
		modules:     make(map[int64]module, len(d.modules)),
		lessons:     make(map[int64]lesson, len(d.lessons)),
		assignments: make(map[int64]assignment, len(d.assignments)),
		quizzes:     make(map[int64]quizRow, len(d.quizzes)),
		exercises:   make(map[int64]exercise, len(d.exercises)),
		questions:   make(map[int64]question, len(d.questions)),
		designers:   make(map[int64]map[int64]bool, len(d.designers)),
	}
	for k, v := range d.modules {
		c.modules[k] = v
	}
	for k, v := range d.lessons {
		c.lessons[k] = v
	}
	for k, v := range d.assignments {
		c.assignments[k] = v
	}
	for k, v := range d.quizzes {
		c.quizzes[k] = v
	}
	for k, v := range d.exercises {
		c.exercises[k] = v
	}
	for k, v := range d.questions {
		v.options = append([]quiz.StoredOption(nil), v.options...)
		c.questions[k] = v
	}
	for k, v := range d.designers {
		set := make(map[int64]bool, len(v))
		for u := range v {
			set[u] = true
		}
		c.designers[k] = set
	}
	return c
}

type Store struct {
	mu  sync.RWMutex
	d   *data
	now func() time.Time
}

func New() *Store {
	return &Store{
		d: &data{
			modules:     map[int64]module{},
			lessons:     map[int64]lesson{},
			assignments: map[int64]assignment{},
			quizzes:     map[int64]quizRow{},
			exercises:   map[int64]exercise{},
			questions:   map[int64]question{},
			designers:   map[int64]map[int64]bool{},
		},
		now: time.Now,
	}
}

var (
	_ quiz.Store              = (*Store)(nil)
	_ curriculum.ModuleReader = (*Store)(nil)
)

// Builders. They panic on dangling parents; they are for fixtures.

func (s *Store) AddModule(courseID int64, title string, order int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.d.id()
	s.d.modules[id] = module{id: id, courseID: courseID, title: title, order: order}
	return id
}

// AddDesigner makes an instructor a designer of a course.
func (s *Store) AddDesigner(courseID, instructorID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.d.designers[courseID] == nil {
		s.d.designers[courseID] = map[int64]bool{}
	}
	s.d.designers[courseID][instructorID] = true
}

func (s *Store) AddLesson(moduleID int64, title string, order, durationMin int, material *string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.d.modules[moduleID]; !ok {
		panic("memstore: unknown module")
	}
	id := s.d.id()
	s.d.lessons[id] = lesson{id: id, moduleID: moduleID, title: title, order: order, duration: durationMin, material: material}
	return id
}

func (s *Store) AddAssignment(lessonID int64, title string, start, due time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.d.lessons[lessonID]; !ok {
		panic("memstore: unknown lesson")
	}
	id := s.d.id()
	s.d.assignments[id] = assignment{id: id, lessonID: lessonID, title: title, start: start, due: due}
	return id
}

func (s *Store) AddQuiz(assignmentID int64, total, passing float64, durationMin int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.d.assignments[assignmentID]; !ok {
		panic("memstore: unknown assignment")
	}
	id := s.d.id()
	s.d.quizzes[id] = quizRow{id: id, assignmentID: assignmentID, total: total, passing: passing, duration: durationMin}
	return id
}

func (s *Store) AddExercise(assignmentID int64, title string, description *string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.d.assignments[assignmentID]; !ok {
		panic("memstore: unknown assignment")
	}
	id := s.d.id()
	s.d.exercises[id] = exercise{id: id, assignmentID: assignmentID, title: title, description: description}
	return id
}

// QuestionCount and OptionCount expose row counts for assertions.
func (s *Store) QuestionCount(quizID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, q := range s.d.questions {
		if q.quizID == quizID {
			n++
		}
	}
	return n
}

func (s *Store) OptionCount(questionID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.d.questions[questionID].options)
}

// Reads

func (s *Store) ModuleLessonRows(ctx context.Context, moduleID int64) ([]curriculum.LessonRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var lessons []lesson
	for _, l := range s.d.lessons {
		if l.moduleID == moduleID {
			lessons = append(lessons, l)
		}
	}
	sort.Slice(lessons, func(i, j int) bool {
		if lessons[i].order != lessons[j].order {
			return lessons[i].order < lessons[j].order
		}
		return lessons[i].id < lessons[j].id
	})

	var rows []curriculum.LessonRow
	for _, l := range lessons {
		base := curriculum.LessonRow{
			LessonID:    l.id,
			ModuleID:    l.moduleID,
			LessonTitle: l.title,
			LessonOrder: l.order,
			DurationMin: l.duration,
			MaterialURL: l.material,
		}
		asgs := s.d.assignmentsOf(l.id)
		if len(asgs) == 0 {
			rows = append(rows, base)
			continue
		}
		for _, a := range asgs {
			r := base
			id, title, start, due := a.id, a.title, a.start, a.due
			r.AssignmentID, r.AssignmentTitle, r.StartAt, r.DueAt = &id, &title, &start, &due
			if qz, ok := s.d.quizOf(a.id); ok {
				qid, total, passing, dur := qz.id, qz.total, qz.passing, qz.duration
				r.QuizID, r.QuizTitle = &qid, &title
				r.QuizTotalScore, r.QuizPassingScore, r.QuizDurationMin = &total, &passing, &dur
				r.QuestionCount = s.d.questionCount(qz.id)
			}
			for _, e := range s.d.exercises {
				if e.assignmentID == a.id {
					eid, et := e.id, e.title
					r.ExerciseID, r.ExerciseTitle, r.ExerciseDescription = &eid, &et, e.description
				}
			}
			rows = append(rows, r)
		}
	}
	return rows, nil
}

func (d *data) assignmentsOf(lessonID int64) []assignment {
	var out []assignment
	for _, a := range d.assignments {
		if a.lessonID == lessonID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (d *data) quizOf(assignmentID int64) (quizRow, bool) {
	for _, q := range d.quizzes {
		if q.assignmentID == assignmentID {
			return q, true
		}
	}
	return quizRow{}, false
}

func (d *data) questionCount(quizID int64) int {
	n := 0
	for _, q := range d.questions {
		if q.quizID == quizID {
			n++
		}
	}
	return n
}

func (d *data) scoreSum(quizID, excludeID int64) float64 {
	var sum float64
	for _, q := range d.questions {
		if q.quizID == quizID && q.id != excludeID {
			sum += q.points
		}
	}
	return sum
}

func (d *data) quiz(quizID int64) (quiz.Quiz, error) {
	qz, ok := d.quizzes[quizID]
	if !ok {
		return quiz.Quiz{}, apperr.NotFound("quiz %d not found", quizID)
	}
	a := d.assignments[qz.assignmentID]
	l := d.lessons[a.lessonID]
	m := d.modules[l.moduleID]
	return quiz.Quiz{
		ID:           qz.id,
		AssignmentID: a.id,
		LessonID:     l.id,
		ModuleID:     m.id,
		CourseID:     m.courseID,
		Title:        a.title,
		TotalScore:   qz.total,
		PassingScore: qz.passing,
		DurationMin:  qz.duration,
		StartAt:      a.start,
		DueAt:        a.due,
	}, nil
}

func (d *data) question(q question) quiz.Question {
	out := quiz.Question{
		ID:        q.id,
		QuizID:    q.quizID,
		QuizTitle: d.assignments[d.quizzes[q.quizID].assignmentID].title,
		Content:   q.content,
		Points:    q.points,
		Options:   make([]quiz.Option, 0, len(q.options)),
		CreatedAt: q.created,
	}
	opts := append([]quiz.StoredOption(nil), q.options...)
	sort.Slice(opts, func(i, j int) bool { return opts[i].Position < opts[j].Position })
	for _, o := range opts {
		out.Options = append(out.Options, quiz.Option{ID: o.Label, Text: o.Text})
		if o.Correct {
			out.CorrectOptionID = o.Label
		}
	}
	return out
}

func (s *Store) GetQuiz(_ context.Context, quizID int64) (quiz.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.d.quiz(quizID)
}

func (s *Store) GetQuestion(_ context.Context, questionID int64) (quiz.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.d.questions[questionID]
	if !ok {
		return quiz.Question{}, apperr.NotFound("question %d not found", questionID)
	}
	return s.d.question(q), nil
}

func (s *Store) ListQuestions(_ context.Context, quizID int64) ([]quiz.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []quiz.Question{}
	for _, q := range s.d.questions {
		if q.quizID == quizID {
			out = append(out, s.d.question(q))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListAllQuestions(_ context.Context) ([]quiz.Question, error) {
	return s.newestFirst(func(quiz.Question) bool { return true }), nil
}

func (s *Store) ListDesignerQuestions(_ context.Context, instructorID int64) ([]quiz.Question, error) {
	return s.newestFirst(func(q quiz.Question) bool {
		qz, err := s.d.quiz(q.QuizID)
		return err == nil && s.d.designers[qz.CourseID][instructorID]
	}), nil
}

func (s *Store) newestFirst(keep func(quiz.Question) bool) []quiz.Question {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []quiz.Question{}
	for _, q := range s.d.questions {
		if v := s.d.question(q); keep(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (s *Store) QuizzesByCourse(_ context.Context, courseID int64) ([]quiz.Overview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []quiz.Overview{}
	for id := range s.d.quizzes {
		qz, _ := s.d.quiz(id)
		if qz.CourseID != courseID {
			continue
		}
		out = append(out, quiz.Overview{
			Quiz:          qz,
			LessonTitle:   s.d.lessons[qz.LessonID].title,
			ModuleTitle:   s.d.modules[qz.ModuleID].title,
			QuestionCount: s.d.questionCount(id),
			AssignedScore: s.d.scoreSum(id, 0),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		mi, mj := s.d.modules[out[i].ModuleID].order, s.d.modules[out[j].ModuleID].order
		if mi != mj {
			return mi < mj
		}
		li, lj := s.d.lessons[out[i].LessonID].order, s.d.lessons[out[j].LessonID].order
		if li != lj {
			return li < lj
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) LessonModule(_ context.Context, lessonID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.d.lessons[lessonID]
	if !ok {
		return 0, apperr.NotFound("lesson %d not found", lessonID)
	}
	return l.moduleID, nil
}

// WithinTx runs fn against a private copy and swaps it in on success.
// Writers are serialised; readers see the last committed state.
func (s *Store) WithinTx(ctx context.Context, fn func(quiz.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.d.clone()
	if err := fn(&tx{d: work, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.d = work
	return nil
}

type tx struct {
	d   *data
	now func() time.Time
}

func (t *tx) ScoreSum(ctx context.Context, quizID, excludeID int64) (float64, error) {
	return t.d.scoreSum(quizID, excludeID), ctx.Err()
}

// checkCeiling mirrors the database trigger.
func (t *tx) checkCeiling(quizID, excludeID int64, points float64) error {
	qz, ok := t.d.quizzes[quizID]
	if !ok {
		return apperr.NotFound("quiz %d not found", quizID)
	}
	if t.d.scoreSum(quizID, excludeID)+points > qz.total+scoreEpsilon {
		return apperr.QuotaExceeded("quiz total score exceeded")
	}
	return nil
}

func (t *tx) InsertQuestion(ctx context.Context, quizID int64, content string, points float64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := t.checkCeiling(quizID, 0, points); err != nil {
		return 0, err
	}
	id := t.d.id()
	t.d.questions[id] = question{id: id, quizID: quizID, content: content, points: points, created: t.now().UTC()}
	return id, nil
}

func (t *tx) UpdateQuestion(ctx context.Context, questionID int64, content string, points float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q, ok := t.d.questions[questionID]
	if !ok {
		return apperr.NotFound("question %d not found", questionID)
	}
	if err := t.checkCeiling(q.quizID, questionID, points); err != nil {
		return err
	}
	q.content, q.points = content, points
	t.d.questions[questionID] = q
	return nil
}

func (t *tx) InsertOption(ctx context.Context, questionID int64, o quiz.StoredOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q, ok := t.d.questions[questionID]
	if !ok {
		return apperr.NotFound("question %d not found", questionID)
	}
	q.options = append(q.options, o)
	t.d.questions[questionID] = q
	return nil
}

func (t *tx) DeleteOptions(ctx context.Context, questionID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if q, ok := t.d.questions[questionID]; ok {
		q.options = nil
		t.d.questions[questionID] = q
	}
	return nil
}

func (t *tx) DeleteQuestion(ctx context.Context, questionID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	q, ok := t.d.questions[questionID]
	if !ok {
		return false, nil
	}
	if len(q.options) > 0 {
		return false, apperr.New(apperr.KindStorageUnavailable, "question %d still has options", questionID)
	}
	delete(t.d.questions, questionID)
	return true, nil
}

func (t *tx) InsertAssignment(ctx context.Context, lessonID int64, title string, startAt, dueAt time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if _, ok := t.d.lessons[lessonID]; !ok {
		return 0, apperr.NotFound("lesson %d not found", lessonID)
	}
	id := t.d.id()
	t.d.assignments[id] = assignment{id: id, lessonID: lessonID, title: title, start: startAt, due: dueAt}
	return id, nil
}

func (t *tx) InsertQuiz(ctx context.Context, assignmentID int64, totalScore, passingScore float64, durationMin int) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if _, ok := t.d.quizOf(assignmentID); ok {
		return 0, apperr.New(apperr.KindStorageUnavailable, "assignment %d already has a quiz", assignmentID)
	}
	id := t.d.id()
	t.d.quizzes[id] = quizRow{id: id, assignmentID: assignmentID, total: totalScore, passing: passingScore, duration: durationMin}
	return id, nil
}

func (t *tx) UpdateQuiz(ctx context.Context, q quiz.Quiz) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row, ok := t.d.quizzes[q.ID]
	if !ok {
		return apperr.NotFound("quiz %d not found", q.ID)
	}
	if t.d.scoreSum(q.ID, 0) > q.TotalScore+scoreEpsilon {
		return apperr.QuotaExceeded("quiz total score exceeded")
	}
	row.total, row.passing, row.duration = q.TotalScore, q.PassingScore, q.DurationMin
	t.d.quizzes[q.ID] = row
	a := t.d.assignments[row.assignmentID]
	a.title, a.start, a.due = q.Title, q.StartAt, q.DueAt
	t.d.assignments[row.assignmentID] = a
	return nil
}
