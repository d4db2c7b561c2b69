package enums

// UserRole is the platform role carried in access tokens.
type UserRole string

const (
	UserRoleStudent UserRole = "student"
	UserRoleTrainer UserRole = "trainer"
	UserRoleAdmin   UserRole = "admin"
)

var userRoles = members[UserRole]{UserRoleStudent, UserRoleTrainer, UserRoleAdmin}

func (r UserRole) IsValid() bool { return userRoles.has(r) }

func ParseUserRole(value string) (UserRole, error) {
	return userRoles.parse("user role", value, lower)
}
