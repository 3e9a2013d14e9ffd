package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	api "github.com/mind-engage/coursehub/internal/api/http"
	auth "github.com/mind-engage/coursehub/internal/auth/middleware"
	"github.com/mind-engage/coursehub/internal/config"
	"github.com/mind-engage/coursehub/internal/logger"
	"github.com/mind-engage/coursehub/internal/rbac"
)

func (a *app) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logger.RequestLogger(a.log), middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.cfg.CORSOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", api.HealthzHandler())
	r.Get("/readyz", api.ReadyzHandler(a.ready))

	// Local login (on by default; ENABLE_LOCAL_AUTH=false turns it off)
	if a.cfg.EnableLocalAuth {
		r.Post("/auth/login", auth.LoginHandler(a.auth, auth.NewSQLCredentials(a.db), a.log))
		r.Post("/auth/register", api.RegisterHandler(a.users))
	}

	// Protected API (JWT → stored role → RBAC → designer checks)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(a.auth))
		pr.Use(auth.AttachRoleFromDB(a.db, a.cfg.Mode == config.ModeOffline, a.log))

		courseEditor := api.RequireEditor(a.caps.CanEditCourse, "courseID")
		quizEditor := api.RequireEditor(a.caps.CanEditQuiz, "quizID")
		questionEditor := api.RequireEditor(a.caps.CanEditQuestion, "questionID")

		// Catalog
		pr.With(rbac.Require(rbac.PermCourseView)).Get("/courses", api.ListCoursesHandler(a.curriculum))
		pr.With(rbac.Require(rbac.PermCourseCreate)).Post("/courses", api.CreateCourseHandler(a.curriculum))
		pr.With(rbac.Require(rbac.PermCourseView)).Get("/courses/{courseID}", api.GetCourseHandler(a.curriculum))
		pr.With(rbac.Require(rbac.PermModuleView)).Get("/courses/{courseID}/modules", api.ModulesByCourseHandler(a.curriculum))
		pr.With(rbac.Require(rbac.PermQuizView)).Get("/courses/{courseID}/quizzes", api.QuizzesByCourseHandler(a.quizzes))
		pr.With(rbac.Require(rbac.PermCourseView)).
			Get("/courses/{courseID}/check-instructor", api.CheckInstructorHandler(a.caps.CanEditCourse, "courseID"))
		pr.With(rbac.Require(rbac.PermCourseView)).Get("/categories", api.ListCategoriesHandler(a.curriculum))
		pr.With(rbac.Require(rbac.PermModuleView)).Get("/modules/{moduleID}/details", api.ModuleDetailsHandler(a.curriculum))

		// Reports (designers and admins)
		pr.With(rbac.Require(rbac.PermReportView), courseEditor).
			Get("/courses/{courseID}/learners", api.ActiveLearnersHandler(a.curriculum))
		pr.With(rbac.Require(rbac.PermReportView), courseEditor).
			Get("/courses/{courseID}/performance", api.QuizPerformanceHandler(a.curriculum))
		pr.With(rbac.Require(rbac.PermReportView), api.RequireEditor(a.caps.CanEditAssignment, "assignmentID")).
			Get("/assignments/{assignmentID}/statistics", api.QuizStatisticsHandler(a.curriculum))

		// Quiz authoring
		pr.With(rbac.Require(rbac.PermQuizCreate)).Post("/quizzes", api.CreateQuizHandler(a.quizzes, a.caps.CanEditLesson))
		pr.With(rbac.Require(rbac.PermQuizUpdate), quizEditor).Put("/quizzes/{quizID}", api.UpdateQuizHandler(a.quizzes))
		pr.With(rbac.Require(rbac.PermQuizView)).
			Get("/quizzes/{quizID}/check-instructor", api.CheckInstructorHandler(a.caps.CanEditQuiz, "quizID"))
		pr.With(rbac.Require(rbac.PermQuestionView), quizEditor).
			Get("/quizzes/{quizID}/questions", api.QuizQuestionsHandler(a.quizzes))
		pr.With(rbac.Require(rbac.PermQuestionWrite), quizEditor).
			Post("/quizzes/{quizID}/questions", api.AddQuestionHandler(a.quizzes))
		pr.With(rbac.Require(rbac.PermQuestionView)).Get("/questions", api.AllQuestionsHandler(a.quizzes))
		pr.With(rbac.Require(rbac.PermQuestionView), questionEditor).
			Get("/questions/{questionID}", api.GetQuestionHandler(a.quizzes))
		pr.With(rbac.Require(rbac.PermQuestionWrite), questionEditor).
			Put("/questions/{questionID}", api.UpdateQuestionHandler(a.quizzes))
		pr.With(rbac.Require(rbac.PermQuestionWrite), questionEditor).
			Delete("/questions/{questionID}", api.DeleteQuestionHandler(a.quizzes))

		// Users
		pr.With(rbac.Require(rbac.PermProfile)).Get("/users/me", api.ProfileHandler(a.users))
		pr.With(rbac.Require(rbac.PermProfile)).Put("/users/me", api.UpdateProfileHandler(a.users))
		pr.With(rbac.Require(rbac.PermUsersList)).Get("/users", api.ListUsersHandler(a.users))
		pr.With(rbac.Require(rbac.PermUsersList)).Get("/users/{userID}", api.GetUserHandler(a.users))
		pr.With(rbac.Require(rbac.PermUsersUpsert)).Post("/users/bulk", api.BulkUpsertUsersHandler(a.users))
		pr.With(rbac.Require(rbac.PermChangePassword)).Post("/users/change-password", api.ChangePasswordHandler(a.users))

		a.mountAdminRoutes(pr)
	})
	return r
}

// mountAdminRoutes wires the governance endpoints under /admin.
func (a *app) mountAdminRoutes(pr chi.Router) {
	pr.Route("/admin", func(ar chi.Router) {
		ar.With(rbac.Require(rbac.PermCourseApprove)).
			Patch("/courses/{courseID}/status", api.UpdateCourseStatusHandler(a.curriculum))
		ar.With(rbac.Require(rbac.PermUsersSetRole)).
			Patch("/users/{userID}/role", api.UpdateUserRoleHandler(a.users))
		ar.With(rbac.Require(rbac.PermUsersSetStatus)).
			Patch("/users/{userID}/status", api.UpdateUserStatusHandler(a.users))
		ar.With(rbac.Require(rbac.PermAuditView)).
			Get("/audit", api.AuditSearchHandler(a.events))
	})
}
