// internal/gateway/actuator.go
package gateway

import (
	"context"
	"fmt"

	beltsync "github.com/giziti/beltbot/internal/sync"
)

// Actuator applies rank roles through the gateway session. It only
// attempts roles the guild actually has; granting an unconfigured rank
// fails fast instead of sending a frame the platform will reject.
type Actuator struct {
	client     *Client
	configured map[string]bool
}

// NewActuator wraps a gateway client with the set of rank role names
// configured on the platform.
func NewActuator(client *Client, roleNames []string) *Actuator {
	configured := make(map[string]bool, len(roleNames))
	for _, name := range roleNames {
		configured[name] = true
	}
	return &Actuator{client: client, configured: configured}
}

// GrantRole assigns the named rank role to the identity.
func (a *Actuator) GrantRole(ctx context.Context, identity, roleName string) error {
	if !a.configured[roleName] {
		return fmt.Errorf("%w: %s", beltsync.ErrRoleNotConfigured, roleName)
	}
	return a.client.send(ctx, outboundFrame{
		Type:     "grant_role",
		Identity: identity,
		Role:     roleName,
	})
}

// RevokeRoles strips the named rank roles from the identity. Roles the
// guild never configured are skipped; there is nothing to revoke.
func (a *Actuator) RevokeRoles(ctx context.Context, identity string, roleNames []string) error {
	var present []string
	for _, name := range roleNames {
		if a.configured[name] {
			present = append(present, name)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return a.client.send(ctx, outboundFrame{
		Type:     "revoke_roles",
		Identity: identity,
		Roles:    present,
	})
}
