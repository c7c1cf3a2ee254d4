package engine_test

import (
	"errors"
	"testing"

	"slipway/internal/domain"
	"slipway/internal/engine"
	"slipway/internal/fault"
)

func TestProgressValidation(t *testing.T) {
	env := newTestEnv(t)
	phase := env.addPhase(t, "Steel Cutting")
	s := env.addStage(t, phase.ID, "Plate cutting", "2026-03-01", "2026-03-10")

	var verr fault.ValidationError
	cases := []engine.StageProgressInput{
		{Status: strp("paused")},
		{ProgressPct: f64p(120)},
		{ProgressPct: f64p(-1)},
		{Status: strp(domain.StageCompleted), ProgressPct: f64p(80)},
		{ActualEnd: strp("2026-03-09")},
		{ActualStart: strp("2026-03-09"), ActualEnd: strp("2026-03-05")},
	}
	for i, in := range cases {
		in.ProjectID = env.Project.ID
		in.StageID = s.ID
		in.ActorID = env.PM.ID
		if _, err := env.Engine.UpdateStageProgress(env.Ctx, in); !errors.As(err, &verr) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}

	got, err := env.Engine.UpdateStageProgress(env.Ctx, engine.StageProgressInput{
		ProjectID:   env.Project.ID,
		StageID:     s.ID,
		Status:      strp(domain.StageCompleted),
		ProgressPct: f64p(100),
		ActualStart: strp("2026-03-02"),
		ActualEnd:   strp("2026-03-09"),
		ActorID:     env.PM.ID,
	})
	if err != nil {
		t.Fatalf("complete stage: %v", err)
	}
	if got.ActualDurationDays == nil || *got.ActualDurationDays != 7 {
		t.Fatalf("expected actual duration 7, got %v", got.ActualDurationDays)
	}

	// Only stage.update holders may report progress.
	_, err = env.Engine.UpdateStageProgress(env.Ctx, engine.StageProgressInput{
		ProjectID: env.Project.ID, StageID: s.ID,
		ProgressPct: f64p(99), ActorID: env.Owner.ID,
	})
	var aerr fault.AuthorizationError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

func TestProgressAggregation(t *testing.T) {
	env := newTestEnv(t)
	cutting := env.addPhase(t, "Steel Cutting")
	assembly := env.addPhase(t, "Block Assembly")
	a := env.addStage(t, cutting.ID, "Plates", "2026-03-01", "2026-03-10")
	b := env.addStage(t, cutting.ID, "Profiles", "2026-03-01", "2026-03-10")
	env.addStage(t, assembly.ID, "Panels", "2026-03-10", "2026-04-10")

	report := func(stageID string, pct float64, status string) {
		t.Helper()
		in := engine.StageProgressInput{
			ProjectID: env.Project.ID, StageID: stageID,
			ProgressPct: &pct, ActorID: env.PM.ID,
		}
		if status != "" {
			in.Status = &status
		}
		if _, err := env.Engine.UpdateStageProgress(env.Ctx, in); err != nil {
			t.Fatalf("report %s: %v", stageID, err)
		}
	}
	report(a.ID, 100, domain.StageCompleted)
	report(b.ID, 50, domain.StageInProgress)

	phases, err := env.Engine.ListPhases(env.Ctx, env.Project.ID)
	if err != nil {
		t.Fatalf("list phases: %v", err)
	}
	for _, p := range phases {
		switch p.ID {
		case cutting.ID:
			if p.ProgressPct != 75 {
				t.Fatalf("cutting pct: want 75, got %v", p.ProgressPct)
			}
		case assembly.ID:
			if p.ProgressPct != 0 {
				t.Fatalf("assembly pct: want 0, got %v", p.ProgressPct)
			}
		}
	}

	// Phases weigh equally regardless of stage count.
	project, err := env.Engine.GetProject(env.Ctx, env.Project.ID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if project.ProgressPct != 37.5 {
		t.Fatalf("project pct: want 37.5, got %v", project.ProgressPct)
	}
	if project.PlannedDurationDays != 9+9+31 {
		t.Fatalf("planned duration total: want 49, got %d", project.PlannedDurationDays)
	}
}

func TestStageUpdateHistory(t *testing.T) {
	env := newTestEnv(t)
	phase := env.addPhase(t, "Outfitting")
	s := env.addStage(t, phase.ID, "Piping", "2026-04-01", "2026-04-20")

	if _, err := env.Engine.UpdateStageProgress(env.Ctx, engine.StageProgressInput{
		ProjectID: env.Project.ID, StageID: s.ID,
		Status: strp(domain.StageInProgress), ProgressPct: f64p(20),
		ActorID: env.PM.ID,
	}); err != nil {
		t.Fatalf("first report: %v", err)
	}
	if _, err := env.Engine.UpdateStageProgress(env.Ctx, engine.StageProgressInput{
		ProjectID: env.Project.ID, StageID: s.ID,
		ProgressPct: f64p(45), Comments: strp("spools 1-8 fitted"),
		ActorID: env.PM.ID,
	}); err != nil {
		t.Fatalf("second report: %v", err)
	}

	updates, err := env.Engine.ListStageUpdates(env.Ctx, s.ID)
	if err != nil {
		t.Fatalf("list updates: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(updates))
	}
	first, second := updates[0], updates[1]
	if first.PreviousStatus != domain.StageNotStarted || first.NewStatus != domain.StageInProgress {
		t.Fatalf("unexpected first transition: %+v", first)
	}
	if first.PreviousPct != 0 || first.NewPct != 20 {
		t.Fatalf("unexpected first pcts: %+v", first)
	}
	if second.PreviousPct != 20 || second.NewPct != 45 {
		t.Fatalf("unexpected second pcts: %+v", second)
	}
	if second.Comments != "spools 1-8 fitted" {
		t.Fatalf("comments not recorded: %+v", second)
	}
}
