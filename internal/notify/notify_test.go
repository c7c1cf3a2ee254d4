package notify

import (
	"testing"
	"time"

	"slipway/internal/config"
	"slipway/internal/domain"
)

func testAssignments() []domain.ProjectStakeholder {
	return []domain.ProjectStakeholder{
		{ProjectID: "p1", StakeholderID: "pm", Role: domain.RoleLeadProjectManager},
		{ProjectID: "p1", StakeholderID: "arne", Role: domain.RoleBaselineApprover},
		{ProjectID: "p1", StakeholderID: "odile", Role: domain.RoleOwnerRep},
		// Same person holding a second qualifying role.
		{ProjectID: "p1", StakeholderID: "pm", Role: domain.RoleProcurementLead},
	}
}

func testEntry() domain.AuditEntry {
	return domain.AuditEntry{
		ID:         "entry-1",
		ProjectID:  "p1",
		ChangedBy:  "pm",
		ChangeType: domain.ChangeDelay,
		Reason:     "weather hold",
		OccurredAt: "2026-03-01T00:00:00Z",
	}
}

func TestFanOutFiltersByRole(t *testing.T) {
	d := &Dispatcher{
		Config: config.Default(),
		Now:    func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) },
	}
	records := d.fanOut(testEntry(), testAssignments(), domain.NotifyStageBlocked,
		[]string{domain.RoleProcurementLead}, "steel missing")
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	n := records[0]
	if n.StakeholderID != "pm" || n.Type != domain.NotifyStageBlocked || n.Comments != "steel missing" {
		t.Fatalf("unexpected record: %+v", n)
	}
	if n.AuditEntryID != "entry-1" || n.NotifiedAt != "2026-03-01T00:00:00Z" {
		t.Fatalf("entry linkage missing: %+v", n)
	}
}

func TestFanOutNilFilterReachesEveryoneOnce(t *testing.T) {
	d := &Dispatcher{Config: config.Default()}
	records := d.fanOut(testEntry(), testAssignments(), domain.NotifyChangeRequestSubmitted, nil, "")
	if len(records) != 3 {
		t.Fatalf("expected one record per stakeholder, got %d", len(records))
	}
	seen := map[string]int{}
	for _, n := range records {
		seen[n.StakeholderID]++
	}
	if seen["pm"] != 1 {
		t.Fatalf("dual-role stakeholder must get exactly one record, got %d", seen["pm"])
	}
}

func TestSubmissionEntryDerivationIsStable(t *testing.T) {
	// The submission entry must derive the same records whenever it is
	// dispatched, including replays after the request has been resolved.
	// Derivation therefore depends only on the entry, not on the request's
	// current status.
	d := &Dispatcher{Config: config.Default()}
	entry := testEntry()
	crID := "cr-1"
	entry.ChangeRequestID = &crID

	for _, pass := range []string{"at submit", "on replay after resolution"} {
		records := d.forChangeRequest(entry, "", testAssignments())
		if len(records) != 3 {
			t.Fatalf("%s: expected 3 records, got %d", pass, len(records))
		}
		for _, n := range records {
			if n.Type != domain.NotifyChangeRequestSubmitted {
				t.Fatalf("%s: submission entry derived %s", pass, n.Type)
			}
		}
	}
}

func TestApprovedScopeChangeDerivation(t *testing.T) {
	d := &Dispatcher{Config: config.Default()}
	entry := testEntry()
	crID, approver, baselineID := "cr-1", "arne", "b-2"
	entry.ChangeRequestID = &crID
	entry.ApprovedBy = &approver
	entry.BaselineID = &baselineID
	entry.ChangeType = domain.ChangeScopeChange
	entry.Reason = "owner added a deck crane"
	records := d.forChangeRequest(entry, "crane spec reviewed", testAssignments())

	byType := map[string][]string{}
	for _, n := range records {
		byType[n.Type] = append(byType[n.Type], n.StakeholderID)
	}
	if len(byType[domain.NotifyChangeRequestApproved]) != 3 {
		t.Fatalf("approval should reach all stakeholders: %v", byType)
	}
	if len(byType[domain.NotifyBaselineChange]) == 0 {
		t.Fatalf("approved non-initial change must announce the new baseline: %v", byType)
	}
	signoff := byType[domain.NotifyScopeSignoff]
	if len(signoff) != 1 || signoff[0] != "odile" {
		t.Fatalf("sign-off confirmation must go to the owner representative only: %v", signoff)
	}
	for _, n := range records {
		if n.Type == domain.NotifyScopeSignoff && n.Comments != "crane spec reviewed" {
			t.Fatalf("sign-off comment not carried: %q", n.Comments)
		}
	}
	if len(byType[domain.NotifyDelay]) != 0 {
		t.Fatalf("scope change must not produce delay notifications: %v", byType)
	}
}

func TestRejectedDerivation(t *testing.T) {
	d := &Dispatcher{Config: config.Default()}
	entry := testEntry()
	crID, approver := "cr-2", "arne"
	entry.ChangeRequestID = &crID
	entry.ApprovedBy = &approver
	entry.ReviewerComments = "absorb within float"
	records := d.forChangeRequest(entry, "", testAssignments())
	if len(records) != 3 {
		t.Fatalf("rejection should reach all stakeholders once, got %d", len(records))
	}
	for _, n := range records {
		if n.Type != domain.NotifyChangeRequestRejected {
			t.Fatalf("unexpected type %s", n.Type)
		}
		if n.Comments != "absorb within float" {
			t.Fatalf("reviewer comments not carried: %q", n.Comments)
		}
	}
}
