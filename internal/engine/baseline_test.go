package engine_test

import (
	"errors"
	"testing"

	"slipway/internal/domain"
	"slipway/internal/engine"
	"slipway/internal/fault"
)

func TestInitialBaselineSnapshotsPlan(t *testing.T) {
	env := newTestEnv(t)
	phase := env.addPhase(t, "Steel Cutting")
	s1 := env.addStage(t, phase.ID, "Plate cutting", "2026-03-01", "2026-03-10")
	s2 := env.addStage(t, phase.ID, "Profile cutting", "2026-03-10", "2026-03-20")

	// Only baseline approvers may set it.
	_, err := env.Engine.SetInitialBaseline(env.Ctx, env.Project.ID, env.PM.ID, "")
	var aerr fault.AuthorizationError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected authorization error for non-approver, got %v", err)
	}

	b, err := env.Engine.SetInitialBaseline(env.Ctx, env.Project.ID, env.Approver.ID, "kickoff plan")
	if err != nil {
		t.Fatalf("set initial baseline: %v", err)
	}
	if b.VersionNumber != 1 || !b.IsActive || b.ChangeRequestID != nil {
		t.Fatalf("unexpected baseline: %+v", b)
	}

	// Direct baseline setting is one-shot.
	_, err = env.Engine.SetInitialBaseline(env.Ctx, env.Project.ID, env.Approver.ID, "")
	var cerr fault.ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected conflict on second initial baseline, got %v", err)
	}

	// Planned dates were frozen onto the stages.
	got, err := env.Engine.GetStage(env.Ctx, s1.ID)
	if err != nil {
		t.Fatalf("get stage: %v", err)
	}
	if got.BaselineStart == nil || *got.BaselineStart != "2026-03-01" ||
		got.BaselineEnd == nil || *got.BaselineEnd != "2026-03-10" {
		t.Fatalf("baseline dates not copied: %+v", got)
	}
	if got.BaselineDurationDays == nil || *got.BaselineDurationDays != 9 {
		t.Fatalf("expected baseline duration 9, got %v", got.BaselineDurationDays)
	}

	snaps, err := env.Engine.ListBaselineSnapshots(env.Ctx, b.ID)
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("expected snapshots for both stages, got %d", len(snaps))
	}

	for _, id := range []string{s1.ID, s2.ID} {
		d, err := env.Engine.ComputeDeviation(env.Ctx, id)
		if err != nil {
			t.Fatalf("deviation: %v", err)
		}
		if d.Status == nil || *d.Status != domain.DeviationOnBaseline || *d.DeviationDays != 0 {
			t.Fatalf("expected on_baseline for untouched stage, got %+v", d)
		}
	}
}

func TestDelayApprovalActivatesNewVersion(t *testing.T) {
	env := newTestEnv(t)
	phase := env.addPhase(t, "Block Assembly")
	s := env.addStage(t, phase.ID, "Grand block join", "2026-03-01", "2026-03-10")

	if _, err := env.Engine.SetInitialBaseline(env.Ctx, env.Project.ID, env.Approver.ID, ""); err != nil {
		t.Fatalf("initial baseline: %v", err)
	}

	// Slip the plan by two days: deviation shows until a new baseline lands.
	if _, err := env.Engine.UpdateStagePlan(env.Ctx, engine.UpdateStagePlanInput{
		ProjectID:  env.Project.ID,
		StageID:    s.ID,
		PlannedEnd: strp("2026-03-12"),
		ActorID:    env.PM.ID,
	}); err != nil {
		t.Fatalf("update plan: %v", err)
	}
	d, err := env.Engine.ComputeDeviation(env.Ctx, s.ID)
	if err != nil {
		t.Fatalf("deviation: %v", err)
	}
	if d.Status == nil || *d.Status != domain.DeviationDelayed || *d.DeviationDays != 2 {
		t.Fatalf("expected delayed by 2, got %+v", d)
	}

	cr, err := env.Engine.SubmitChangeRequest(env.Ctx, engine.SubmitChangeInput{
		ProjectID:          env.Project.ID,
		ChangeType:         domain.ChangeDelay,
		Reason:             "crane outage pushed the block join",
		ScheduleImpactDays: intp(2),
		RequestedBy:        env.PM.ID,
		ApproverID:         env.Approver.ID,
	})
	if err != nil {
		t.Fatalf("submit change: %v", err)
	}
	if cr.Status != domain.ChangePending {
		t.Fatalf("expected pending, got %s", cr.Status)
	}

	resolved, err := env.Engine.ResolveChangeRequest(env.Ctx, engine.ResolveChangeInput{
		ProjectID:       env.Project.ID,
		ChangeRequestID: cr.ID,
		Decision:        "approve",
		ActorID:         env.Approver.ID,
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if resolved.Status != domain.ChangeApproved || resolved.ResolvedAt == nil {
		t.Fatalf("unexpected resolved request: %+v", resolved)
	}

	baselines, err := env.Engine.ListBaselines(env.Ctx, env.Project.ID)
	if err != nil {
		t.Fatalf("list baselines: %v", err)
	}
	if len(baselines) != 2 {
		t.Fatalf("expected 2 baseline versions, got %d", len(baselines))
	}
	if baselines[0].VersionNumber != 1 || baselines[0].IsActive {
		t.Fatalf("v1 should be inactive: %+v", baselines[0])
	}
	if baselines[1].VersionNumber != 2 || !baselines[1].IsActive {
		t.Fatalf("v2 should be active: %+v", baselines[1])
	}
	if baselines[1].ChangeRequestID == nil || *baselines[1].ChangeRequestID != cr.ID {
		t.Fatalf("v2 should carry the change request id")
	}

	// The new baseline absorbs the slip.
	d, err = env.Engine.ComputeDeviation(env.Ctx, s.ID)
	if err != nil {
		t.Fatalf("deviation after rebaseline: %v", err)
	}
	if d.Status == nil || *d.Status != domain.DeviationOnBaseline || *d.DeviationDays != 0 {
		t.Fatalf("expected on_baseline after rebaseline, got %+v", d)
	}

	// Gap-free ledger: initial baseline, submission, approval.
	entries, err := env.Engine.ListAuditEntries(env.Ctx, env.Project.ID)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 ledger entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.SequenceNumber != int64(i+1) {
			t.Fatalf("sequence gap at %d: got %d", i, e.SequenceNumber)
		}
	}
	approval := entries[2]
	if approval.ApprovedBy == nil || *approval.ApprovedBy != env.Approver.ID {
		t.Fatalf("approval entry missing approver: %+v", approval)
	}
	if approval.ScheduleImpactDays == nil || *approval.ScheduleImpactDays != 2 {
		t.Fatalf("approval entry missing impact: %+v", approval)
	}
	if approval.BaselineID == nil {
		t.Fatalf("approval entry missing baseline id")
	}
	if err := env.Engine.Ledger.Verify(env.Ctx, env.Engine.DB, env.Project.ID); err != nil {
		t.Fatalf("ledger verify: %v", err)
	}

	// Visibility roles got a baseline_change and a delay_notification.
	notifs, err := env.Engine.ListNotifications(env.Ctx, env.Project.ID, "")
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	byType := map[string]int{}
	for _, n := range notifs {
		byType[n.Type]++
	}
	if byType[domain.NotifyBaselineChange] == 0 {
		t.Fatalf("expected baseline_change notifications, got %v", byType)
	}
	if byType[domain.NotifyDelay] == 0 {
		t.Fatalf("expected delay notifications, got %v", byType)
	}
}

func TestBaselineReportSummary(t *testing.T) {
	env := newTestEnv(t)
	phase := env.addPhase(t, "Outfitting")
	ahead := env.addStage(t, phase.ID, "Piping", "2026-04-01", "2026-04-20")
	delayed := env.addStage(t, phase.ID, "Cabling", "2026-04-01", "2026-04-15")
	noData := env.addStage(t, phase.ID, "Insulation", "", "")

	if _, err := env.Engine.SetInitialBaseline(env.Ctx, env.Project.ID, env.Approver.ID, ""); err != nil {
		t.Fatalf("initial baseline: %v", err)
	}
	if _, err := env.Engine.UpdateStagePlan(env.Ctx, engine.UpdateStagePlanInput{
		ProjectID: env.Project.ID, StageID: ahead.ID,
		PlannedEnd: strp("2026-04-18"), ActorID: env.PM.ID,
	}); err != nil {
		t.Fatalf("pull in piping: %v", err)
	}
	if _, err := env.Engine.UpdateStagePlan(env.Ctx, engine.UpdateStagePlanInput{
		ProjectID: env.Project.ID, StageID: delayed.ID,
		PlannedEnd: strp("2026-04-17"), ActorID: env.PM.ID,
	}); err != nil {
		t.Fatalf("slip cabling: %v", err)
	}

	report, err := env.Engine.GetBaselineReport(env.Ctx, env.Project.ID)
	if err != nil {
		t.Fatalf("baseline report: %v", err)
	}
	if report.Active == nil || report.Active.VersionNumber != 1 {
		t.Fatalf("expected active v1, got %+v", report.Active)
	}
	if len(report.History) != 1 {
		t.Fatalf("expected 1 version in history, got %d", len(report.History))
	}
	sum := report.Summary
	if sum.Ahead != 1 || sum.Delayed != 1 || sum.NoData != 1 || sum.OnBaseline != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	// Re-reading must not change anything.
	again, err := env.Engine.GetBaselineReport(env.Ctx, env.Project.ID)
	if err != nil {
		t.Fatalf("baseline report again: %v", err)
	}
	if again.Summary != sum {
		t.Fatalf("report not stable: %+v vs %+v", again.Summary, sum)
	}
	_ = noData

	g, err := env.Engine.GetGantt(env.Ctx, env.Project.ID)
	if err != nil {
		t.Fatalf("gantt: %v", err)
	}
	if len(g.Phases) != 1 || len(g.Phases[0].Stages) != 3 {
		t.Fatalf("unexpected gantt shape")
	}
	if g.Summary != sum {
		t.Fatalf("gantt summary mismatch: %+v vs %+v", g.Summary, sum)
	}
}
