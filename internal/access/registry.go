package access

import (
	"context"
	"fmt"
	"strings"
)

// Registry provides validated role catalog operations and permission
// resolution on top of a RoleStore.
type Registry struct {
	store RoleStore
}

// NewRegistry constructs the role registry.
func NewRegistry(store RoleStore) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: role store is required", ErrInvalidInput)
	}
	return &Registry{store: store}, nil
}

// CreateRole registers a role with a deduplicated permission set.
func (r *Registry) CreateRole(ctx context.Context, name, displayName string, permissions []string) (*Role, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role := &Role{
		Name:        name,
		DisplayName: strings.TrimSpace(displayName),
		Permissions: dedupeStrings(permissions),
	}
	if err := r.store.CreateRole(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// Get returns one role.
func (r *Registry) Get(ctx context.Context, id string) (*Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return r.store.GetRole(ctx, id)
}

// List returns the full role catalog.
func (r *Registry) List(ctx context.Context) ([]*Role, error) {
	return r.store.ListRoles(ctx)
}

// SetPermissions replaces a role's permission set.
func (r *Registry) SetPermissions(ctx context.Context, roleID string, permissions []string) (*Role, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return r.store.SetRolePermissions(ctx, roleID, dedupeStrings(permissions))
}

// PermissionsFor resolves the union of permissions across the given roles.
// A permission present in any role is granted; duplicates collapse.
func (r *Registry) PermissionsFor(ctx context.Context, roleIDs []string) ([]string, error) {
	ids := dedupeStrings(roleIDs)
	if len(ids) == 0 {
		return nil, nil
	}
	perms, err := r.store.PermissionsForRoles(ctx, ids)
	if err != nil {
		return nil, err
	}
	return dedupeStrings(perms), nil
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
