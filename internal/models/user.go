package models

// UserRole is the role carried in the access token issued by the school API.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleTeacher    UserRole = "TEACHER"
	RoleStudent    UserRole = "STUDENT"
)

// RuleManagerRoles may change warning rules, start detection runs and read run history.
func RuleManagerRoles() []UserRole {
	return []UserRole{RoleAdmin, RoleSuperAdmin}
}

// AlertStaffRoles may read warning data and work alerts through their lifecycle.
func AlertStaffRoles() []UserRole {
	return append(RuleManagerRoles(), RoleTeacher)
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
