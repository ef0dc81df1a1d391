package auth

import "hrassist/internal/domain/identity"

const (
	PermChatUse           = "chat.use"
	PermLeaveRead         = "leave.read"
	PermLeaveWrite        = "leave.write"
	PermLeaveApprove      = "leave.approve"
	PermNotificationsRead = "notifications.read"
	PermPolicyRead        = "policy.read"
	PermPolicyWrite       = "policy.write"
	PermDatasetWrite      = "dataset.write"
	PermAuditRead         = "audit.read"
)

// AllPermissions is every permission a route can require. ADMIN holds all of them.
var AllPermissions = []string{
	PermChatUse,
	PermLeaveRead,
	PermLeaveWrite,
	PermLeaveApprove,
	PermNotificationsRead,
	PermPolicyRead,
	PermPolicyWrite,
	PermDatasetWrite,
	PermAuditRead,
}

var RolePermissions = map[identity.Role][]string{
	identity.RoleStaff: {
		PermChatUse,
		PermLeaveRead,
		PermLeaveWrite,
		PermNotificationsRead,
		PermPolicyRead,
	},
	identity.RoleAdmin: AllPermissions,
}

func HasPermission(role identity.Role, permission string) bool {
	for _, perm := range RolePermissions[role] {
		if perm == permission {
			return true
		}
	}
	return false
}
