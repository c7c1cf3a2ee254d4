package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"slipway/internal/domain"
	"slipway/internal/fault"
)

// The connection pool is capped at one connection, so every lookup made
// inside an assignment's transaction must go through that transaction.
// A deadline turns a pool wait into a failure instead of a hang.
func TestAssignStakeholderCompletesUnderDeadline(t *testing.T) {
	env := newTestEnv(t)
	extra := env.register(t, "Quinn Ashby", "quinn@yard.test")

	ctx, cancel := context.WithTimeout(env.Ctx, 5*time.Second)
	defer cancel()

	a, err := env.Engine.AssignStakeholder(ctx, env.Project.ID, extra.ID, domain.RoleTeamMember, env.PM.ID)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if a.StakeholderID != extra.ID || a.Role != domain.RoleTeamMember {
		t.Fatalf("unexpected assignment: %+v", a)
	}

	// The missing-stakeholder check runs inside the same transaction.
	_, err = env.Engine.AssignStakeholder(ctx, env.Project.ID, "no-such-stakeholder", domain.RoleTeamMember, env.PM.ID)
	var nf fault.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError for unknown stakeholder, got %v", err)
	}

	_, err = env.Engine.AssignStakeholder(ctx, env.Project.ID, extra.ID, domain.RoleTeamMember, env.PM.ID)
	var conflict fault.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError for duplicate assignment, got %v", err)
	}

	if ctx.Err() != nil {
		t.Fatalf("assignments did not complete within the deadline: %v", ctx.Err())
	}
}
