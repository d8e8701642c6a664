package models

// Permission constants
const (
	// Bill permissions
	PermissionBillWrite = "bill:write"
	PermissionBillRead  = "bill:read"

	// Payment permissions
	PermissionPaymentWrite = "payment:write"
	PermissionPaymentRead  = "payment:read"

	// Partner permissions
	PermissionPartnerRead  = "partner:read"
	PermissionPartnerWrite = "partner:write"
)

// GetDefaultPermissions returns default permissions based on role
func GetDefaultPermissions(role string) []string {
	switch role {
	case RoleAdmin:
		return []string{
			PermissionBillWrite,
			PermissionBillRead,
			PermissionPaymentWrite,
			PermissionPaymentRead,
			PermissionPartnerRead,
			PermissionPartnerWrite,
		}
	case RolePartner:
		return []string{
			PermissionBillWrite,
			PermissionBillRead,
			PermissionPaymentWrite,
			PermissionPaymentRead,
			PermissionPartnerRead,
			PermissionPartnerWrite,
		}
	case RoleUser:
		return []string{
			PermissionBillRead,
			PermissionPaymentWrite,
			PermissionPaymentRead,
		}
	default:
		return []string{}
	}
}
