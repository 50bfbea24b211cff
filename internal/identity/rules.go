package identity

import "typingschool/identity/internal/auth"

// ImpersonationRule names who may log in as which kind of user.
type ImpersonationRule struct {
	Actors auth.Requirement
	Target auth.Role
}

var (
	AdminAsSchoolAdmin = ImpersonationRule{
		Actors: auth.RequireRole(auth.RoleAdmin),
		Target: auth.RoleSchoolAdmin,
	}
	StaffAsInstructor = ImpersonationRule{
		Actors: auth.RequireAnyRole(auth.RoleAdmin, auth.RoleSchoolAdmin),
		Target: auth.RoleInstructor,
	}
	StaffAsStudent = ImpersonationRule{
		Actors: auth.RequireAnyRole(auth.RoleAdmin, auth.RoleSchoolAdmin),
		Target: auth.RoleStudent,
	}
	InstructorAsStudent = ImpersonationRule{
		Actors: auth.RequireRole(auth.RoleInstructor),
		Target: auth.RoleStudent,
	}
)
