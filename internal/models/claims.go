package models

import "github.com/golang-jwt/jwt/v5"

// User roles
const (
	RoleAdmin    = "admin"
	RoleProvider = "provider"
	RoleCustomer = "customer"
)

// Application permissions
const (
	// Admin permissions
	PermissionReadAdmin  = "admin:read"
	PermissionWriteAdmin = "admin:write"

	// Customer permissions
	PermissionEstimateRead   = "estimate:read"
	PermissionEstimateWrite  = "estimate:write"
	PermissionInvoiceRead    = "invoice:read"
	PermissionInvoiceApprove = "invoice:approve"
	PermissionDisputeOpen    = "dispute:open"

	// Provider permissions
	PermissionInvoiceWrite = "invoice:write"
	PermissionPayoutWrite  = "payout:write"

	// Admin decision permissions
	PermissionDisputeResolve = "dispute:resolve"
)

type UserClaims struct {
	jwt.RegisteredClaims
	UserID      uint     `json:"user_id"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// HasPermission checks if the claims include a specific permission
func (c *UserClaims) HasPermission(permission string) bool {
	for _, p := range c.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// GetDefaultPermissions returns default permissions based on role
func GetDefaultPermissions(role string) []string {
	switch role {
	case RoleAdmin:
		return []string{
			PermissionReadAdmin,
			PermissionWriteAdmin,
			PermissionEstimateRead,
			PermissionInvoiceRead,
			PermissionDisputeResolve,
			PermissionPayoutWrite,
		}
	case RoleProvider:
		return []string{
			PermissionEstimateRead,
			PermissionEstimateWrite,
			PermissionInvoiceRead,
			PermissionInvoiceWrite,
			PermissionPayoutWrite,
		}
	case RoleCustomer:
		return []string{
			PermissionEstimateRead,
			PermissionInvoiceRead,
			PermissionInvoiceApprove,
			PermissionDisputeOpen,
		}
	default:
		return []string{}
	}
}
