package rbac

// Roles carried in tokens and stored in users.role.
const (
	RoleLearner    = "learner"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

// Permissions checked by the router.
const (
	PermCourseView     = "course:view"
	PermCourseCreate   = "course:create"
	PermCourseApprove  = "course:approve"
	PermModuleView     = "module:view"
	PermQuizView       = "quiz:view"
	PermQuizCreate     = "quiz:create"
	PermQuizUpdate     = "quiz:update"
	PermQuestionView   = "question:view"
	PermQuestionWrite  = "question:write"
	PermReportView     = "report:view"
	PermUsersList      = "users:list"
	PermUsersUpsert    = "users:bulk_upsert"
	PermUsersSetRole   = "users:set_role"
	PermUsersSetStatus = "users:set_status"
	PermChangePassword = "user:change_password"
	PermProfile        = "user:profile"
	PermAuditView      = "audit:view"
)

var RolePermissions = map[string][]string{
	RoleLearner: {
		PermCourseView,
		PermModuleView,
		PermQuizView,
		PermChangePassword,
		PermProfile,
	},
	RoleInstructor: {
		PermCourseView,
		PermCourseCreate,
		PermModuleView,
		PermQuizView,
		PermQuizCreate,
		PermQuizUpdate,
		"question:*",
		PermReportView,
		PermUsersList,
		PermChangePassword,
		PermProfile,
	},
	RoleAdmin: {
		"*",
	},
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	_, ok := RolePermissions[role]
	return ok
}
