package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"slipway/internal/app"
	"slipway/internal/config"
	"slipway/internal/db"
	"slipway/internal/domain"
	"slipway/internal/engine"
	"slipway/internal/migrate"
	"slipway/internal/repo"
	slipwaysdk "slipway/sdk/go"
)

const testSecret = "test-secret"

type testServer struct {
	URL      string
	Engine   *engine.Engine
	Project  domain.Project
	PM       domain.Stakeholder
	Approver domain.Stakeholder
	close    func()
}

func (s *testServer) Close() { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	r := repo.Repo{DB: conn}
	e, d, metrics := app.Wire(&r, cfg, zerolog.Nop(), true)

	ctx := context.Background()
	pm, err := e.RegisterStakeholder(ctx, "Paula Marsh", "paula@yard.test")
	if err != nil {
		t.Fatalf("register pm: %v", err)
	}
	approver, err := e.RegisterStakeholder(ctx, "Arne Berg", "arne@yard.test")
	if err != nil {
		t.Fatalf("register approver: %v", err)
	}
	p, err := e.CreateProject(ctx, engine.CreateProjectInput{Name: "Hull 42", ActorID: pm.ID})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := e.AssignStakeholder(ctx, p.ID, pm.ID, domain.RoleLeadProjectManager, pm.ID); err != nil {
		t.Fatalf("assign pm: %v", err)
	}
	if _, err := e.AssignStakeholder(ctx, p.ID, approver.ID, domain.RoleBaselineApprover, pm.ID); err != nil {
		t.Fatalf("assign approver: %v", err)
	}

	handler, err := New(Config{
		Engine:     e,
		Dispatcher: d,
		Metrics:    metrics,
		BasePath:   "/v0",
		Auth: AuthConfig{
			JWTSecret:              testSecret,
			AllowLegacyActorHeader: true,
			Logger:                 zerolog.Nop(),
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)

	ts := &testServer{
		URL:      "http://" + ln.Addr().String(),
		Engine:   e,
		Project:  p,
		PM:       pm,
		Approver: approver,
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func (s *testServer) clientFor(actorID string) *slipwaysdk.Client {
	c := slipwaysdk.New(s.URL, s.Project.ID)
	c.ActorID = actorID
	return c
}

func signToken(t *testing.T, subject, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestChangeControlFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	pm := ts.clientFor(ts.PM.ID)
	approver := ts.clientFor(ts.Approver.ID)

	phase, err := pm.AddPhase(ctx, "Steel Cutting", nil, nil)
	if err != nil {
		t.Fatalf("add phase: %v", err)
	}
	stage, err := pm.AddStage(ctx, phase.ID, "Plate cutting", strp("2026-03-01"), strp("2026-03-10"))
	if err != nil {
		t.Fatalf("add stage: %v", err)
	}

	if _, err := approver.SetInitialBaseline(ctx, "kickoff"); err != nil {
		t.Fatalf("initial baseline: %v", err)
	}
	// Non-approvers get a 403 from the same endpoint.
	_, err = pm.SetInitialBaseline(ctx, "again")
	assertStatus(t, err, http.StatusForbidden)

	// Slip the plan, then run the delay through change control.
	status := "in_progress"
	pct := 30.0
	if _, err := pm.ReportProgress(ctx, stage.ID, &status, &pct, strp("2026-03-02"), nil, nil); err != nil {
		t.Fatalf("report progress: %v", err)
	}
	impact := 3
	cr, err := pm.SubmitChange(ctx, "delay", "crane outage", ts.Approver.ID, &impact)
	if err != nil {
		t.Fatalf("submit change: %v", err)
	}
	if cr.Status != "pending" {
		t.Fatalf("expected pending, got %s", cr.Status)
	}
	resolved, err := approver.ResolveChange(ctx, cr.ID, "approve", "accepted")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if resolved.Status != "approved" {
		t.Fatalf("expected approved, got %s", resolved.Status)
	}

	baselines, err := pm.ListBaselines(ctx)
	if err != nil {
		t.Fatalf("list baselines: %v", err)
	}
	if len(baselines) != 2 || !baselines[1].IsActive || baselines[1].VersionNumber != 2 {
		t.Fatalf("expected active v2, got %+v", baselines)
	}
	snaps, err := pm.BaselineSnapshots(ctx, baselines[1].ID)
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snaps))
	}

	entries, err := pm.AuditEntries(ctx)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	for i, e := range entries {
		if e.SequenceNumber != int64(i+1) {
			t.Fatalf("sequence gap at %d: %d", i, e.SequenceNumber)
		}
	}

	d, err := pm.StageDeviation(ctx, stage.ID)
	if err != nil {
		t.Fatalf("deviation: %v", err)
	}
	if d.Status == nil || *d.Status != "on_baseline" {
		t.Fatalf("expected on_baseline, got %+v", d)
	}

	notifs, err := pm.Notifications(ctx, ts.Approver.ID)
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(notifs) == 0 {
		t.Fatalf("expected notifications for the approver")
	}
}

func TestDependencyCycleMapsToConflict(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	pm := ts.clientFor(ts.PM.ID)

	phase, err := pm.AddPhase(ctx, "Assembly", nil, nil)
	if err != nil {
		t.Fatalf("add phase: %v", err)
	}
	a, err := pm.AddStage(ctx, phase.ID, "A", nil, nil)
	if err != nil {
		t.Fatalf("stage a: %v", err)
	}
	b, err := pm.AddStage(ctx, phase.ID, "B", nil, nil)
	if err != nil {
		t.Fatalf("stage b: %v", err)
	}
	if _, err := pm.AddDependency(ctx, a.ID, b.ID); err != nil {
		t.Fatalf("a->b: %v", err)
	}
	_, err = pm.AddDependency(ctx, b.ID, a.ID)
	assertStatus(t, err, http.StatusConflict)
}

func TestAuthModes(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	// No credentials at all.
	anon := slipwaysdk.New(ts.URL, ts.Project.ID)
	_, err := anon.AddPhase(ctx, "Nope", nil, nil)
	assertStatus(t, err, http.StatusUnauthorized)

	// Valid bearer token.
	authed := slipwaysdk.New(ts.URL, ts.Project.ID)
	authed.BearerToken = signToken(t, ts.PM.ID, testSecret)
	if _, err := authed.AddPhase(ctx, "Via JWT", nil, nil); err != nil {
		t.Fatalf("jwt request: %v", err)
	}

	// Token signed with the wrong secret.
	forged := slipwaysdk.New(ts.URL, ts.Project.ID)
	forged.BearerToken = signToken(t, ts.PM.ID, "wrong-secret")
	_, err = forged.AddPhase(ctx, "Forged", nil, nil)
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestHealthAndMetricsUnauthenticated(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/v0/health", "/metrics"} {
		res, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		io.Copy(io.Discard, res.Body)
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, res.StatusCode)
		}
	}
}

func assertStatus(t *testing.T, err error, want int) {
	t.Helper()
	var apiErr *slipwaysdk.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected api error with status %d, got %v", want, err)
	}
	if apiErr.StatusCode != want {
		t.Fatalf("expected status %d, got %d (%s)", want, apiErr.StatusCode, apiErr.Body)
	}
}

func strp(s string) *string { return &s }
