package engine

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"slipway/internal/config"
	"slipway/internal/domain"
	"slipway/internal/fault"
)

func (e *Engine) RegisterStakeholder(ctx context.Context, fullName, email string) (domain.Stakeholder, error) {
	if fullName == "" {
		return domain.Stakeholder{}, fault.Validationf("stakeholder name is required")
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return domain.Stakeholder{}, fault.Validationf("invalid email %q", email)
	}
	s := domain.Stakeholder{
		ID:        uuid.NewString(),
		FullName:  fullName,
		Email:     email,
		IsActive:  true,
		CreatedAt: e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Stakeholder{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertStakeholder(ctx, tx, s); err != nil {
		return domain.Stakeholder{}, err
	}
	return s, tx.Commit()
}

func (e *Engine) DeactivateStakeholder(ctx context.Context, stakeholderID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SetStakeholderActive(ctx, tx, stakeholderID, false); err != nil {
		return err
	}
	return tx.Commit()
}

// AssignStakeholder grants a role on a project. The first assignment on a
// fresh project is allowed without a capability check so the project can be
// bootstrapped; after that the actor needs stakeholder-edit capability.
func (e *Engine) AssignStakeholder(ctx context.Context, projectID, stakeholderID, role, actorID string) (domain.ProjectStakeholder, error) {
	if _, ok := e.Config.Roles[role]; !ok {
		return domain.ProjectStakeholder{}, fault.Validationf("unknown role %q", role)
	}
	existing, err := e.Repo.ListProjectStakeholders(ctx, projectID)
	if err != nil {
		return domain.ProjectStakeholder{}, err
	}
	if len(existing) > 0 {
		if err := e.Auth.Require(ctx, projectID, actorID, config.CapStakeholderEdit); err != nil {
			return domain.ProjectStakeholder{}, err
		}
	}
	var a domain.ProjectStakeholder
	err = e.write(ctx, projectID, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetProjectTx(ctx, tx, projectID); err != nil {
			return err
		}
		if _, err := e.Repo.GetStakeholderTx(ctx, tx, stakeholderID); err != nil {
			return err
		}
		for _, cur := range existing {
			if cur.StakeholderID == stakeholderID && cur.Role == role {
				return fault.Conflictf("stakeholder %s already holds role %s on project %s", stakeholderID, role, projectID)
			}
		}
		a = domain.ProjectStakeholder{
			ID:            uuid.NewString(),
			ProjectID:     projectID,
			StakeholderID: stakeholderID,
			Role:          role,
			AssignedAt:    e.timestamp(),
		}
		return e.Repo.AssignStakeholder(ctx, tx, a)
	})
	return a, err
}

func (e *Engine) UnassignStakeholder(ctx context.Context, projectID, stakeholderID, role, actorID string) error {
	if err := e.Auth.Require(ctx, projectID, actorID, config.CapStakeholderEdit); err != nil {
		return err
	}
	return e.write(ctx, projectID, func(tx *sql.Tx) error {
		return e.Repo.UnassignStakeholder(ctx, tx, projectID, stakeholderID, role)
	})
}
