package rbac

// Role constants
const (
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// Permission constants
const (
	PermViewLedger   = "view_ledger"
	PermViewWallet   = "view_wallet"
	PermControlLoops = "control_loops"
)

// RolePermissions defines what each role can do.
var RolePermissions = map[string][]string{
	RoleOperator: {
		PermViewLedger, PermViewWallet, PermControlLoops,
	},
	RoleViewer: {
		PermViewLedger,
		// Viewer CANNOT: PermViewWallet, PermControlLoops
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// MovesValue reports whether the permission can lead to transfers (operator-only).
func MovesValue(permission string) bool {
	return permission == PermControlLoops
}
