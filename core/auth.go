package core

const (
	RoleAdmin      = "admin"
	RoleCounselor  = "counselor"
	RoleTeacher    = "teacher"
	RoleAccountant = "accountant"
	RoleStudent    = "student"
)

var AllRoles = []string{RoleAdmin, RoleCounselor, RoleTeacher, RoleAccountant, RoleStudent}

// Principal is the authenticated caller of an operation.
type Principal struct {
	ID        string
	Email     string
	StudentID string
	Roles     []string
}

func (p Principal) HasAnyRole(roles ...string) bool {
	for _, want := range roles {
		for _, r := range p.Roles {
			if r == want {
				return true
			}
		}
	}
	return false
}

func IsValidRole(role string) bool {
	for _, r := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}
