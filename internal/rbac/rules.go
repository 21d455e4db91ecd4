package rbac

const (
	RoleStudent = "student"
	RoleFaculty = "faculty"
	RoleAdmin   = "admin"
)

// Default policy.
var RolePermissions = map[string][]string{
	RoleStudent: {
		"assessment:view",
		"session:start",
		"session:play",
		"attempt:view-own",
		"students:upsert-self",
	},
	RoleFaculty: {
		"assessment:create",
		"assessment:view",
		"assessment:view-key",
		"attempt:view-all",
		"students:upsert",
		"events:view",
	},
	RoleAdmin: {
		"*", // everything
	},
}
