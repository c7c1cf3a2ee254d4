package config_test

import (
	"testing"

	"slipway/internal/config"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if !cfg.RoleHasCapability("baseline_approver", config.CapBaselineApprove) {
		t.Fatalf("approver role must carry baseline.approve")
	}
	if cfg.RoleHasCapability("team_member", config.CapBaselineApprove) {
		t.Fatalf("team members must not approve baselines")
	}
	if cfg.RoleHasCapability("no_such_role", config.CapBaselineView) {
		t.Fatalf("unknown roles grant nothing")
	}
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	raw := []byte(`
roles:
  lead_project_manager:
    capabilities: [hierarchy.edit, stage.update, change.submit, baseline.view, stakeholder.edit, scope.signoff]
  baseline_approver:
    capabilities: [baseline.approve, baseline.view]
notifications:
  baseline_visibility_roles: [lead_project_manager, baseline_approver]
  stage_blocked_roles: [lead_project_manager]
workflow:
  ledger_retries: 5
`)
	cfg, err := config.FromYAML(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !cfg.RoleHasCapability("lead_project_manager", config.CapScopeSignoff) {
		t.Fatalf("yaml-granted capability not applied")
	}
	if cfg.Workflow.LedgerRetries != 5 {
		t.Fatalf("ledger retries: want 5, got %d", cfg.Workflow.LedgerRetries)
	}
	// Unset workflow values keep their defaults.
	if cfg.Workflow.CapabilityTimeout <= 0 {
		t.Fatalf("capability timeout must default to a positive value")
	}
}

func TestValidateRejectsUnknownRoleReferences(t *testing.T) {
	raw := []byte(`
roles:
  lead_project_manager:
    capabilities: [hierarchy.edit]
notifications:
  baseline_visibility_roles: [ghost_role]
`)
	if _, err := config.FromYAML(raw); err == nil {
		t.Fatalf("expected error for unknown role reference")
	}
}
