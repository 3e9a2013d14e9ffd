package quiz

import (
	"math"
	"strings"
	"time"

	"github.com/mind-engage/coursehub/internal/apperr"
	"github.com/mind-engage/coursehub/internal/validation"
)

var positionalLabels = [OptionCount]string{"A", "B", "C", "D"}

// draft is a validated question ready to be written.
type draft struct {
	Content string
	Points  float64
	Options []StoredOption
}

// normalizeQuestion trims and checks a question payload. It performs no I/O.
func normalizeQuestion(in QuestionInput) (draft, error) {
	in.Content = strings.TrimSpace(in.Content)
	in.CorrectOptionID = strings.TrimSpace(in.CorrectOptionID)
	opts := make([]Option, len(in.Options))
	for i, o := range in.Options {
		opts[i] = Option{ID: strings.TrimSpace(o.ID), Text: strings.TrimSpace(o.Text)}
	}
	in.Options = opts

	if err := validation.Struct(in); err != nil {
		return draft{}, err
	}
	if math.IsInf(in.Points, 0) {
		return draft{}, apperr.Validation("points must be a finite number")
	}

	labels := positionalLabels
	supplied := 0
	for _, o := range in.Options {
		if o.ID != "" {
			supplied++
		}
	}
	switch supplied {
	case 0:
	case OptionCount:
		seen := make(map[string]bool, OptionCount)
		for i, o := range in.Options {
			if seen[o.ID] {
				return draft{}, apperr.Validation("option id %q is used twice", o.ID)
			}
			seen[o.ID] = true
			labels[i] = o.ID
		}
	default:
		return draft{}, apperr.Validation("either every option or no option must carry an id")
	}

	correct := -1
	for i, l := range labels {
		if l == in.CorrectOptionID {
			correct = i
		}
	}
	if correct < 0 {
		return draft{}, apperr.Validation("correct_option_id %q matches none of the options", in.CorrectOptionID)
	}

	d := draft{Content: in.Content, Points: in.Points, Options: make([]StoredOption, OptionCount)}
	for i, o := range in.Options {
		d.Options[i] = StoredOption{
			Position: i,
			Label:    positionalLabels[i],
			Text:     o.Text,
			Correct:  i == correct,
		}
	}
	return d, nil
}

func validateSchedule(total, passing float64, start, due time.Time) error {
	if passing > total {
		return apperr.Validation("passing_score %g must not exceed total_score %g", passing, total)
	}
	if start.IsZero() || due.IsZero() {
		return apperr.Validation("start_at and due_at are required")
	}
	if !due.After(start) {
		return apperr.Validation("due_at must be after start_at")
	}
	return nil
}

func normalizeNewQuiz(in NewQuiz) (NewQuiz, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validation.Struct(in); err != nil {
		return in, err
	}
	return in, validateSchedule(in.TotalScore, in.PassingScore, in.StartAt, in.DueAt)
}

func normalizeQuizUpdate(in QuizUpdate) (QuizUpdate, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validation.Struct(in); err != nil {
		return in, err
	}
	return in, validateSchedule(in.TotalScore, in.PassingScore, in.StartAt, in.DueAt)
}
