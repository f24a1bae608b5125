package domain

import dErrors "painchain/pkg/domain-errors"

// Role is a tenant-scoped access level. Roles are not global: the same user
// cannot belong to two tenants, so a role always binds to exactly one tenant.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// ParseRole validates a role string at trust boundaries.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
		return Role(s), nil
	}
	return "", dErrors.New(dErrors.CodeBadRequest, "invalid role: "+s)
}

func (r Role) String() string { return string(r) }

// CanManageInvitations reports whether the role may create or revoke
// invitations for its tenant.
func (r Role) CanManageInvitations() bool {
	return r == RoleOwner || r == RoleAdmin
}
