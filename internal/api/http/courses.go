package http

import (
	"math"
	"net/http"

	"github.com/mind-engage/coursehub/internal/apperr"
	authmw "github.com/mind-engage/coursehub/internal/auth/middleware"
	"github.com/mind-engage/coursehub/internal/curriculum"
	"github.com/mind-engage/coursehub/internal/rbac"
)

// Handlers only; routes are mounted in cmd/gateway.

func ListCoursesHandler(svc *curriculum.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cat, err := queryInt(r, "category_id")
		if err != nil {
			writeError(w, err)
			return
		}
		q := r.URL.Query()
		out, err := svc.ListCourses(r.Context(), curriculum.CourseFilter{
			CategoryID:     cat,
			ApprovalStatus: q.Get("approval_status"),
			CourseStatus:   q.Get("course_status"),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func GetCourseHandler(svc *curriculum.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "courseID")
		if err != nil {
			writeError(w, err)
			return
		}
		c, err := svc.GetCourse(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

// CreateCourseHandler creates a pending draft course. An instructor always
// becomes its designer; admins may name one.
func CreateCourseHandler(svc *curriculum.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in curriculum.NewCourse
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, err)
			return
		}
		if rbac.RoleFromContext(r.Context()) == rbac.RoleInstructor {
			uid, _ := authmw.UserID(r)
			in.InstructorID = &uid
		}
		c, err := svc.CreateCourse(r.Context(), in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	}
}

func UpdateCourseStatusHandler(svc *curriculum.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "courseID")
		if err != nil {
			writeError(w, err)
			return
		}
		var in curriculum.CourseStatusUpdate
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, err)
			return
		}
		in.CourseID = id
		in.AdminID, _ = authmw.UserID(r)
		c, err := svc.UpdateCourseStatus(r.Context(), in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func ModulesByCourseHandler(svc *curriculum.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "courseID")
		if err != nil {
			writeError(w, err)
			return
		}
		out, err := svc.ModulesByCourse(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// ModuleDetailsHandler serves the nested lesson tree of a module.
func ModuleDetailsHandler(svc *curriculum.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "moduleID")
		if err != nil {
			writeError(w, err)
			return
		}
		out, err := svc.ModuleDetails(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"module_id": id, "lessons": out})
	}
}

func ListCategoriesHandler(svc *curriculum.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := svc.ListCategories(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func ActiveLearnersHandler(svc *curriculum.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "courseID")
		if err != nil {
			writeError(w, err)
			return
		}
		out, err := svc.ActiveLearners(r.Context(), id, r.URL.Query().Get("status"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func QuizPerformanceHandler(svc *curriculum.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "courseID")
		if err != nil {
			writeError(w, err)
			return
		}
		minScore, err := queryFloat(r, "min_score")
		if err != nil {
			writeError(w, err)
			return
		}
		out, err := svc.QuizPerformance(r.Context(), id, minScore)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// QuizStatisticsHandler serves GET /assignments/{assignmentID}/statistics?min_questions=N.
func QuizStatisticsHandler(svc *curriculum.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "assignmentID")
		if err != nil {
			writeError(w, err)
			return
		}
		minQuestions, err := queryInt(r, "min_questions")
		if err != nil {
			writeError(w, err)
			return
		}
		if minQuestions > math.MaxInt32 {
			writeError(w, apperr.Validation("min_questions is too large"))
			return
		}
		out, err := svc.QuizStatistics(r.Context(), id, int(minQuestions))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}
