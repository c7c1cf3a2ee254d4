package engine_test

import (
	"errors"
	"testing"

	"slipway/internal/domain"
	"slipway/internal/engine"
	"slipway/internal/fault"
)

func submitScopeChange(t *testing.T, env *testEnv) domain.ChangeRequest {
	t.Helper()
	cr, err := env.Engine.SubmitChangeRequest(env.Ctx, engine.SubmitChangeInput{
		ProjectID:   env.Project.ID,
		ChangeType:  domain.ChangeScopeChange,
		Reason:      "owner added a deck crane",
		RequestedBy: env.PM.ID,
		ApproverID:  env.Approver.ID,
	})
	if err != nil {
		t.Fatalf("submit scope change: %v", err)
	}
	return cr
}

func TestScopeChangeRequiresOwnerSignoff(t *testing.T) {
	env := newTestEnv(t)
	phase := env.addPhase(t, "Outfitting")
	env.addStage(t, phase.ID, "Deck machinery", "2026-05-01", "2026-05-20")
	if _, err := env.Engine.SetInitialBaseline(env.Ctx, env.Project.ID, env.Approver.ID, ""); err != nil {
		t.Fatalf("initial baseline: %v", err)
	}

	cr := submitScopeChange(t, env)

	// Approval is blocked until the owner representative signs off.
	_, err := env.Engine.ResolveChangeRequest(env.Ctx, engine.ResolveChangeInput{
		ProjectID:       env.Project.ID,
		ChangeRequestID: cr.ID,
		Decision:        "approve",
		ActorID:         env.Approver.ID,
	})
	var cerr fault.ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected conflict before sign-off, got %v", err)
	}

	// Only scope.signoff holders may sign.
	_, err = env.Engine.RecordOwnerSignoff(env.Ctx, env.Project.ID, cr.ID, env.PM.ID, "")
	var aerr fault.AuthorizationError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected authorization error for pm sign-off, got %v", err)
	}

	signed, err := env.Engine.RecordOwnerSignoff(env.Ctx, env.Project.ID, cr.ID, env.Owner.ID, "crane spec reviewed")
	if err != nil {
		t.Fatalf("owner sign-off: %v", err)
	}
	if signed.OwnerSignoffBy == nil || *signed.OwnerSignoffBy != env.Owner.ID {
		t.Fatalf("sign-off not recorded: %+v", signed)
	}

	// Sign-off is one-shot.
	_, err = env.Engine.RecordOwnerSignoff(env.Ctx, env.Project.ID, cr.ID, env.Owner.ID, "")
	if !errors.As(err, &cerr) {
		t.Fatalf("expected conflict on second sign-off, got %v", err)
	}

	resolved, err := env.Engine.ResolveChangeRequest(env.Ctx, engine.ResolveChangeInput{
		ProjectID:       env.Project.ID,
		ChangeRequestID: cr.ID,
		Decision:        "approve",
		ActorID:         env.Approver.ID,
	})
	if err != nil {
		t.Fatalf("approve after sign-off: %v", err)
	}
	if resolved.Status != domain.ChangeApproved {
		t.Fatalf("expected approved, got %s", resolved.Status)
	}

	// Sign-off applies to scope changes only.
	other, err := env.Engine.SubmitChangeRequest(env.Ctx, engine.SubmitChangeInput{
		ProjectID:   env.Project.ID,
		ChangeType:  domain.ChangeOther,
		Reason:      "replan paint sequence",
		RequestedBy: env.PM.ID,
		ApproverID:  env.Approver.ID,
	})
	if err != nil {
		t.Fatalf("submit other: %v", err)
	}
	_, err = env.Engine.RecordOwnerSignoff(env.Ctx, env.Project.ID, other.ID, env.Owner.ID, "")
	if !errors.As(err, &cerr) {
		t.Fatalf("expected conflict signing a non-scope change, got %v", err)
	}

	// The owner representative got a scope sign-off notification on approval.
	notifs, err := env.Engine.ListNotifications(env.Ctx, env.Project.ID, env.Owner.ID)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	found := false
	for _, n := range notifs {
		if n.Type == domain.NotifyScopeSignoff {
			found = true
			if n.Comments != "crane spec reviewed" {
				t.Fatalf("sign-off comment not carried: %q", n.Comments)
			}
		}
	}
	if !found {
		t.Fatalf("expected scope sign-off notification for owner representative")
	}
}

func TestResolutionRules(t *testing.T) {
	env := newTestEnv(t)
	phase := env.addPhase(t, "Steel Cutting")
	env.addStage(t, phase.ID, "Plate cutting", "2026-03-01", "2026-03-10")
	if _, err := env.Engine.SetInitialBaseline(env.Ctx, env.Project.ID, env.Approver.ID, ""); err != nil {
		t.Fatalf("initial baseline: %v", err)
	}

	// Unknown change type.
	_, err := env.Engine.SubmitChangeRequest(env.Ctx, engine.SubmitChangeInput{
		ProjectID:   env.Project.ID,
		ChangeType:  "rework",
		Reason:      "x",
		RequestedBy: env.PM.ID,
		ApproverID:  env.Approver.ID,
	})
	var verr fault.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error for unknown type, got %v", err)
	}

	// The designated approver must actually hold approval capability.
	_, err = env.Engine.SubmitChangeRequest(env.Ctx, engine.SubmitChangeInput{
		ProjectID:   env.Project.ID,
		ChangeType:  domain.ChangeDelay,
		Reason:      "x",
		RequestedBy: env.PM.ID,
		ApproverID:  env.Proc.ID,
	})
	var aerr fault.AuthorizationError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected authorization error for non-approver designee, got %v", err)
	}

	cr, err := env.Engine.SubmitChangeRequest(env.Ctx, engine.SubmitChangeInput{
		ProjectID:          env.Project.ID,
		ChangeType:         domain.ChangeDelay,
		Reason:             "weather hold",
		ScheduleImpactDays: intp(4),
		RequestedBy:        env.PM.ID,
		ApproverID:         env.Approver.ID,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Only the designated approver may resolve.
	_, err = env.Engine.ResolveChangeRequest(env.Ctx, engine.ResolveChangeInput{
		ProjectID: env.Project.ID, ChangeRequestID: cr.ID,
		Decision: "reject", ActorID: env.PM.ID,
	})
	if !errors.As(err, &aerr) {
		t.Fatalf("expected authorization error for wrong resolver, got %v", err)
	}

	// Bad decision string.
	_, err = env.Engine.ResolveChangeRequest(env.Ctx, engine.ResolveChangeInput{
		ProjectID: env.Project.ID, ChangeRequestID: cr.ID,
		Decision: "defer", ActorID: env.Approver.ID,
	})
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error for bad decision, got %v", err)
	}

	rejected, err := env.Engine.ResolveChangeRequest(env.Ctx, engine.ResolveChangeInput{
		ProjectID: env.Project.ID, ChangeRequestID: cr.ID,
		Decision: "reject", ReviewerComments: "absorb within float", ActorID: env.Approver.ID,
	})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != domain.ChangeRejected || rejected.ReviewerComments != "absorb within float" {
		t.Fatalf("unexpected rejection: %+v", rejected)
	}

	// Rejection never touches the baseline history.
	baselines, err := env.Engine.ListBaselines(env.Ctx, env.Project.ID)
	if err != nil {
		t.Fatalf("list baselines: %v", err)
	}
	if len(baselines) != 1 {
		t.Fatalf("rejection must not create a baseline, got %d versions", len(baselines))
	}

	// Terminal requests stay terminal.
	var cerr fault.ConflictError
	_, err = env.Engine.ResolveChangeRequest(env.Ctx, engine.ResolveChangeInput{
		ProjectID: env.Project.ID, ChangeRequestID: cr.ID,
		Decision: "approve", ActorID: env.Approver.ID,
	})
	if !errors.As(err, &cerr) {
		t.Fatalf("expected conflict resolving twice, got %v", err)
	}

	// Rejection was broadcast to every active assignment.
	notifs, err := env.Engine.ListNotifications(env.Ctx, env.Project.ID, "")
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	rejectedCount := 0
	for _, n := range notifs {
		if n.Type == domain.NotifyChangeRequestRejected {
			rejectedCount++
		}
	}
	if rejectedCount != 4 {
		t.Fatalf("expected 4 rejection notifications, got %d", rejectedCount)
	}
}

func TestNotificationReplayIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	phase := env.addPhase(t, "Steel Cutting")
	env.addStage(t, phase.ID, "Plate cutting", "2026-03-01", "2026-03-10")
	if _, err := env.Engine.SetInitialBaseline(env.Ctx, env.Project.ID, env.Approver.ID, ""); err != nil {
		t.Fatalf("initial baseline: %v", err)
	}
	cr, err := env.Engine.SubmitChangeRequest(env.Ctx, engine.SubmitChangeInput{
		ProjectID:   env.Project.ID,
		ChangeType:  domain.ChangeDelay,
		Reason:      "late steel delivery",
		RequestedBy: env.PM.ID,
		ApproverID:  env.Approver.ID,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.ResolveChangeRequest(env.Ctx, engine.ResolveChangeInput{
		ProjectID: env.Project.ID, ChangeRequestID: cr.ID,
		Decision: "approve", ActorID: env.Approver.ID,
	}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	before, err := env.Engine.ListNotifications(env.Ctx, env.Project.ID, "")
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(before) == 0 {
		t.Fatalf("expected notifications after approval")
	}

	entries, err := env.Engine.ListAuditEntries(env.Ctx, env.Project.ID)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if err := env.Dispatcher.Replay(env.Ctx, entries); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if err := env.Dispatcher.Replay(env.Ctx, entries); err != nil {
		t.Fatalf("second replay: %v", err)
	}

	after, err := env.Engine.ListNotifications(env.Ctx, env.Project.ID, "")
	if err != nil {
		t.Fatalf("list notifications after replay: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("replay created duplicates: %d -> %d", len(before), len(after))
	}
}

func TestStageBlockedNotifiesProcurementAndManagement(t *testing.T) {
	env := newTestEnv(t)
	phase := env.addPhase(t, "Block Assembly")
	s := env.addStage(t, phase.ID, "Panel line", "2026-03-01", "2026-03-15")

	if _, err := env.Engine.UpdateStageProgress(env.Ctx, engine.StageProgressInput{
		ProjectID: env.Project.ID, StageID: s.ID,
		Status:   strp(domain.StageBlocked),
		Comments: strp("steel delivery missed"),
		ActorID:  env.PM.ID,
	}); err != nil {
		t.Fatalf("block stage: %v", err)
	}

	notifs, err := env.Engine.ListNotifications(env.Ctx, env.Project.ID, "")
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	recipients := map[string]bool{}
	for _, n := range notifs {
		if n.Type != domain.NotifyStageBlocked {
			t.Fatalf("unexpected notification type %s", n.Type)
		}
		if n.Comments != "steel delivery missed" {
			t.Fatalf("blocked reason not carried: %q", n.Comments)
		}
		recipients[n.StakeholderID] = true
	}
	if len(recipients) != 2 || !recipients[env.Proc.ID] || !recipients[env.PM.ID] {
		t.Fatalf("expected procurement and pm only, got %v", recipients)
	}

	// Reporting while already blocked is not a new transition.
	if _, err := env.Engine.UpdateStageProgress(env.Ctx, engine.StageProgressInput{
		ProjectID: env.Project.ID, StageID: s.ID,
		Comments: strp("still waiting"),
		ActorID:  env.PM.ID,
	}); err != nil {
		t.Fatalf("update while blocked: %v", err)
	}
	entries, err := env.Engine.ListAuditEntries(env.Ctx, env.Project.ID)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected a single blocked entry, got %d", len(entries))
	}
}
