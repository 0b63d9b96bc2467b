package rbac

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

func (r Role) Valid() bool { return r == RoleStudent || r == RoleTeacher }

// ParseRole accepts only the known roles.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}

// Default policy. Route guards use RequireRole; permissions scope what a
// guarded handler returns.
var RolePermissions = map[Role][]string{
	RoleStudent: {
		"exam:view",
		"attempt:create",
		"attempt:save",
		"attempt:submit",
		"attempt:view-own",
	},
	RoleTeacher: {
		"exam:*",
		"question:create",
		"asset:upload",
		"event:view",
		"attempt:create",
		"attempt:save",
		"attempt:submit",
		"attempt:view-own",
		"attempt:view-all",
	},
}
