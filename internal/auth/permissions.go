package auth

const (
	PermUserRead   = "user:read"
	PermUserWrite  = "user:write"
	PermUserDelete = "user:delete"
)

// BuiltinPermissions is the catalog seeded at startup so roles can be
// wired to well-known capabilities immediately.
var BuiltinPermissions = []Permission{
	{Name: PermUserRead, Resource: "user", Action: "read"},
	{Name: PermUserWrite, Resource: "user", Action: "write"},
	{Name: PermUserDelete, Resource: "user", Action: "delete"},
}
