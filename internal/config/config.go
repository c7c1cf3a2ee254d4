package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Capabilities checked by the engine. Roles map onto these via the catalog.
const (
	CapHierarchyEdit   = "hierarchy.edit"
	CapStageUpdate     = "stage.update"
	CapChangeSubmit    = "change.submit"
	CapBaselineApprove = "baseline.approve"
	CapBaselineView    = "baseline.view"
	CapScopeSignoff    = "scope.signoff"
	CapStakeholderEdit = "stakeholder.edit"
)

// Config models slipway.yml.
type Config struct {
	Roles map[string]Role `yaml:"roles"`

	Notifications struct {
		// Roles that receive baseline_set / baseline_change broadcasts.
		BaselineVisibilityRoles []string `yaml:"baseline_visibility_roles"`
		// Roles that receive stage_blocked notifications.
		StageBlockedRoles []string `yaml:"stage_blocked_roles"`
	} `yaml:"notifications"`

	Workflow struct {
		// Bound on capability lookups; lookups that exceed it fail closed.
		CapabilityTimeout time.Duration `yaml:"capability_timeout"`
		// Ledger sequence races are retried this many times before
		// surfacing a ConcurrencyError.
		LedgerRetries int `yaml:"ledger_retries"`
	} `yaml:"workflow"`
}

type Role struct {
	Description  string   `yaml:"description"`
	Capabilities []string `yaml:"capabilities"`
}

// Default returns the built-in role catalog and routing rules.
func Default() *Config {
	cfg := &Config{
		Roles: map[string]Role{
			"lead_project_manager": {
				Description: "Runs the fabrication schedule day to day",
				Capabilities: []string{
					CapHierarchyEdit, CapStageUpdate, CapChangeSubmit,
					CapBaselineView, CapStakeholderEdit,
				},
			},
			"baseline_approver": {
				Description:  "May approve or reject baseline change requests",
				Capabilities: []string{CapBaselineApprove, CapBaselineView},
			},
			"owner_representative": {
				Description:  "Vessel owner's representative; signs off scope changes",
				Capabilities: []string{CapScopeSignoff, CapBaselineView},
			},
			"procurement_lead": {
				Description:  "Material and supplier coordination",
				Capabilities: []string{CapBaselineView},
			},
			"qa_classification_officer": {
				Description:  "Class society / QA oversight",
				Capabilities: []string{CapBaselineView},
			},
			"team_member": {
				Description:  "Reports stage progress",
				Capabilities: []string{CapStageUpdate},
			},
		},
	}
	cfg.Notifications.BaselineVisibilityRoles = []string{
		"lead_project_manager", "baseline_approver", "owner_representative",
		"procurement_lead", "qa_classification_officer",
	}
	cfg.Notifications.StageBlockedRoles = []string{
		"procurement_lead", "lead_project_manager",
	}
	cfg.Workflow.CapabilityTimeout = 2 * time.Second
	cfg.Workflow.LedgerRetries = 3
	return cfg
}

// Path returns the config path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "slipway.yml")
}

// Load reads config from the workspace, falling back to defaults when the
// file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates raw config bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the catalog is internally consistent.
func (c *Config) Validate() error {
	if len(c.Roles) == 0 {
		return fmt.Errorf("config.roles is required")
	}
	for name, role := range c.Roles {
		for _, cap := range role.Capabilities {
			if cap == "" {
				return fmt.Errorf("role %s has an empty capability", name)
			}
		}
	}
	for _, r := range c.Notifications.BaselineVisibilityRoles {
		if _, ok := c.Roles[r]; !ok {
			return fmt.Errorf("baseline_visibility_roles references unknown role %s", r)
		}
	}
	for _, r := range c.Notifications.StageBlockedRoles {
		if _, ok := c.Roles[r]; !ok {
			return fmt.Errorf("stage_blocked_roles references unknown role %s", r)
		}
	}
	if c.Workflow.CapabilityTimeout <= 0 {
		c.Workflow.CapabilityTimeout = 2 * time.Second
	}
	if c.Workflow.LedgerRetries <= 0 {
		c.Workflow.LedgerRetries = 3
	}
	return nil
}

// RoleHasCapability reports whether a role grants a capability.
func (c *Config) RoleHasCapability(role, capability string) bool {
	r, ok := c.Roles[role]
	if !ok {
		return false
	}
	for _, cap := range r.Capabilities {
		if cap == capability {
			return true
		}
	}
	return false
}
