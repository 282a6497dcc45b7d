package models

// Permissions an API key may carry. Keys are scoped to marketplace
// resources; "*" is reserved for admins.
const (
	PermProductsRead       = "products.read"
	PermProductsWrite      = "products.write"
	PermReservationsRead   = "reservations.read"
	PermReservationsWrite  = "reservations.write"
	PermMessagesRead       = "messages.read"
	PermMessagesWrite      = "messages.write"
	PermTransactionsRead   = "transactions.read"
	PermNotificationsRead  = "notifications.read"
	PermUploadsWrite       = "uploads.write"
	PermSecurityEventsRead = "security_events.read"

	PermAll = "*"
)

var validPermissions = map[string]bool{
	PermProductsRead:       true,
	PermProductsWrite:      true,
	PermReservationsRead:   true,
	PermReservationsWrite:  true,
	PermMessagesRead:       true,
	PermMessagesWrite:      true,
	PermTransactionsRead:   true,
	PermNotificationsRead:  true,
	PermUploadsWrite:       true,
	PermSecurityEventsRead: true,
	PermAll:                true,
}

var adminOnlyPermissions = map[string]bool{
	PermSecurityEventsRead: true,
	PermAll:                true,
}

// ValidatePermissions returns ErrBadRequest when perms is empty or contains
// an unknown entry.
func ValidatePermissions(perms []string) error {
	if len(perms) == 0 {
		return ErrBadRequest
	}
	for _, p := range perms {
		if !validPermissions[p] {
			return ErrBadRequest
		}
	}
	return nil
}

// CanRoleGrant checks if a user's role allows them to attach perm to a key.
func CanRoleGrant(role, perm string) bool {
	if adminOnlyPermissions[perm] {
		return role == RoleAdmin
	}
	return true
}

// HasPermission checks if perms contains required, honouring the wildcard.
func HasPermission(perms []string, required string) bool {
	for _, p := range perms {
		if p == PermAll || p == required {
			return true
		}
	}
	return false
}
