// Package auth resolves actor capabilities from project stakeholder
// assignments and the configured role catalog.
package auth

import (
	"context"
	"time"

	"slipway/internal/config"
	"slipway/internal/fault"
	"slipway/internal/repo"
)

type Checker struct {
	Repo    repo.Repo
	Config  *config.Config
	Timeout time.Duration
}

// Require fails closed: an unknown actor, a lookup error, or a lookup that
// exceeds the configured timeout all surface as AuthorizationError.
func (c Checker) Require(ctx context.Context, projectID, actorID, capability string) error {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	roles, err := c.Repo.RolesForActor(ctx, projectID, actorID)
	if err != nil {
		return fault.AuthorizationError{ActorID: actorID, Capability: capability}
	}
	for _, role := range roles {
		if c.Config.RoleHasCapability(role, capability) {
			return nil
		}
	}
	return fault.AuthorizationError{ActorID: actorID, Capability: capability}
}

// HasRole reports whether the actor holds the given role on the project.
func (c Checker) HasRole(ctx context.Context, projectID, actorID, role string) (bool, error) {
	roles, err := c.Repo.RolesForActor(ctx, projectID, actorID)
	if err != nil {
		return false, err
	}
	for _, r := range roles {
		if r == role {
			return true, nil
		}
	}
	return false, nil
}
