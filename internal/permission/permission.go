// Package permission evaluates role and per-user capability grants.
package permission

import (
	"slices"

	"scoopos/backend/internal/domain"
)

var all = []domain.Permission{
	domain.PermPOSAccess,
	domain.PermPOSDiscount,
	domain.PermProductsView,
	domain.PermProductsEdit,
	domain.PermPromotionsView,
	domain.PermPromotionsEdit,
	domain.PermSalesView,
	domain.PermSalesCancel,
	domain.PermReportsView,
	domain.PermUsersManage,
	domain.PermAuditView,
}

// roleDefaults is built once and never mutated. ADMIN is absent on purpose:
// it is granted everything in HasPermission.
var roleDefaults = map[domain.Role]map[domain.Permission]struct{}{
	domain.RoleCashier: setOf(
		domain.PermPOSAccess,
		domain.PermProductsView,
		domain.PermPromotionsView,
		domain.PermSalesView,
	),
}

var known = setOf(all...)

func setOf(perms ...domain.Permission) map[domain.Permission]struct{} {
	set := make(map[domain.Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// All returns every enumerated permission in a stable order.
func All() []domain.Permission {
	return slices.Clone(all)
}

func Valid(p domain.Permission) bool {
	_, ok := known[p]
	return ok
}

func ValidRole(role domain.Role) bool {
	return role == domain.RoleAdmin || role == domain.RoleCashier
}

// RoleDefaults lists the baseline grants of a role in enumeration order.
func RoleDefaults(role domain.Role) []domain.Permission {
	if role == domain.RoleAdmin {
		return All()
	}
	grants := roleDefaults[role]
	result := make([]domain.Permission, 0, len(grants))
	for _, p := range all {
		if _, ok := grants[p]; ok {
			result = append(result, p)
		}
	}
	return result
}

// EffectivePermissions is the user's explicit set when one is stored,
// otherwise the role defaults.
func EffectivePermissions(user domain.User) []domain.Permission {
	if user.Permissions != nil {
		return slices.Clone(user.Permissions)
	}
	return RoleDefaults(user.Role)
}

// HasPermission never fails: inactive users hold nothing, ADMIN holds
// everything, and unknown strings simply miss.
func HasPermission(user domain.User, p domain.Permission) bool {
	if !user.Active {
		return false
	}
	if user.Role == domain.RoleAdmin {
		return true
	}
	if user.Permissions != nil {
		return slices.Contains(user.Permissions, p)
	}
	_, ok := roleDefaults[user.Role][p]
	return ok
}

// Require turns a failed HasPermission into an AuthorizationDenied failure.
func Require(user domain.User, p domain.Permission) error {
	if HasPermission(user, p) {
		return nil
	}
	return domain.Fail(domain.KindAuthorizationDenied, string(p), "permission %s required", p)
}

// Granted lists what the user can actually do, for session responses.
func Granted(user domain.User) []domain.Permission {
	result := make([]domain.Permission, 0, len(all))
	for _, p := range all {
		if HasPermission(user, p) {
			result = append(result, p)
		}
	}
	return result
}

// Normalize validates an override set and removes duplicates while keeping
// enumeration order. A nil input stays nil.
func Normalize(perms []domain.Permission) ([]domain.Permission, error) {
	if perms == nil {
		return nil, nil
	}
	seen := make(map[domain.Permission]struct{}, len(perms))
	for _, p := range perms {
		if !Valid(p) {
			return nil, domain.Fail(domain.KindInvalidRequest, "permissions", "unknown permission %q", p)
		}
		seen[p] = struct{}{}
	}
	result := make([]domain.Permission, 0, len(seen))
	for _, p := range all {
		if _, ok := seen[p]; ok {
			result = append(result, p)
		}
	}
	return result, nil
}
