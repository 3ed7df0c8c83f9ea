package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

var (
	ErrUnauthenticated  = errors.New("not authenticated")
	ErrPermissionDenied = errors.New("permission denied")
)

// Role is the kind of caller a token was issued to.
type Role string

const (
	// RoleFrontend is the chat front-end acting on behalf of its users.
	RoleFrontend Role = "frontend"
	// RoleBilling is the payment integration.
	RoleBilling Role = "billing"
	RoleAdmin   Role = "admin"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := RolePermissions[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Permission represents an authorized action
type Permission string

const (
	PermAccountsWrite Permission = "accounts:write"
	PermAccountsRead  Permission = "accounts:read"
	PermRoomsCreate   Permission = "rooms:create"
	PermRoomsJoin     Permission = "rooms:join"
	PermRoomsRead     Permission = "rooms:read"
	PermRoomsDelete   Permission = "rooms:delete"
	PermBillingTier   Permission = "billing:tier"
	PermWishesWrite   Permission = "wishes:write"
	PermWishesRead    Permission = "wishes:read"
	PermDeliveriesRun Permission = "deliveries:run"
)

// RolePermissions maps roles to allowed permissions
var RolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermAccountsWrite,
		PermAccountsRead,
		PermRoomsCreate,
		PermRoomsJoin,
		PermRoomsRead,
		PermRoomsDelete,
		PermBillingTier,
		PermWishesWrite,
		PermWishesRead,
		PermDeliveriesRun,
	},
	RoleFrontend: {
		PermAccountsWrite,
		PermAccountsRead,
		PermRoomsCreate,
		PermRoomsJoin,
		PermRoomsRead,
		PermRoomsDelete,
		PermWishesWrite,
		PermWishesRead,
	},
	RoleBilling: {
		PermRoomsRead,
		PermBillingTier,
	},
}

// HasPermission checks if a role has a specific permission
func HasPermission(role Role, perm Permission) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	return slices.Contains(perms, perm)
}

// RequirePermission checks authorization and returns an error if not authorized
func RequirePermission(ctx context.Context, perm Permission) error {
	principal := PrincipalFromContext(ctx)
	if principal == nil {
		return ErrUnauthenticated
	}

	if !HasPermission(principal.Role, perm) {
		return fmt.Errorf("%w: %s requires %s", ErrPermissionDenied, principal.Role, perm)
	}

	return nil
}
