package http

import (
	"net/http"

	"github.com/mind-engage/coursehub/internal/apperr"
	authmw "github.com/mind-engage/coursehub/internal/auth/middleware"
	"github.com/mind-engage/coursehub/internal/quiz"
	"github.com/mind-engage/coursehub/internal/rbac"
)

// CreateQuizHandler creates a quiz under the lesson named in the body.
// Non-admins must be able to edit that lesson.
func CreateQuizHandler(svc *quiz.Service, canEditLesson EditCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in quiz.NewQuiz
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, err)
			return
		}
		if rbac.RoleFromContext(r.Context()) != rbac.RoleAdmin {
			uid, _ := authmw.UserID(r)
			ok, err := canEditLesson(r.Context(), uid, in.LessonID)
			if err != nil {
				writeError(w, apperr.Storage("check lesson access", err))
				return
			}
			if !ok {
				writeError(w, apperr.Forbidden("not a designer of lesson %d", in.LessonID))
				return
			}
		}
		qz, err := svc.CreateQuiz(r.Context(), in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, qz)
	}
}

func UpdateQuizHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "quizID")
		if err != nil {
			writeError(w, err)
			return
		}
		var in quiz.QuizUpdate
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, err)
			return
		}
		qz, err := svc.UpdateQuiz(r.Context(), id, in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, qz)
	}
}

func QuizzesByCourseHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "courseID")
		if err != nil {
			writeError(w, err)
			return
		}
		out, err := svc.QuizzesByCourse(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func QuizQuestionsHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "quizID")
		if err != nil {
			writeError(w, err)
			return
		}
		out, err := svc.Questions(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func AddQuestionHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "quizID")
		if err != nil {
			writeError(w, err)
			return
		}
		var in quiz.QuestionInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, err)
			return
		}
		q, err := svc.AddQuestion(r.Context(), id, in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, q)
	}
}

// AllQuestionsHandler lists every question for admins and only the
// questions of designed courses for everyone else.
func AllQuestionsHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			out []quiz.Question
			err error
		)
		if rbac.RoleFromContext(r.Context()) == rbac.RoleAdmin {
			out, err = svc.AllQuestions(r.Context())
		} else {
			uid, ok := authmw.UserID(r)
			if !ok {
				writeError(w, apperr.Forbidden("no user in request"))
				return
			}
			out, err = svc.DesignerQuestions(r.Context(), uid)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func GetQuestionHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "questionID")
		if err != nil {
			writeError(w, err)
			return
		}
		q, err := svc.Question(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

func UpdateQuestionHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "questionID")
		if err != nil {
			writeError(w, err)
			return
		}
		var in quiz.QuestionInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, err)
			return
		}
		q, err := svc.UpdateQuestion(r.Context(), id, in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

func DeleteQuestionHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "questionID")
		if err != nil {
			writeError(w, err)
			return
		}
		if err := svc.DeleteQuestion(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
