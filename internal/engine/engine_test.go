package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"stratline/internal/answers"
	"stratline/internal/catalog"
	"stratline/internal/db"
	"stratline/internal/domain"
	"stratline/internal/engine"
	"stratline/internal/migrate"
	"stratline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cat := catalog.Default()
	eng := engine.New(conn, cat, answers.NewStore(cat))
	eng.Now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func TestMutationsAppendEvents(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Engine.RecordOutput(env.Ctx, "market-landscape", "target_market", "Mid-market ops", "tester"); err != nil {
		t.Fatalf("record output: %v", err)
	}
	if err := env.Engine.CompleteModule(env.Ctx, "market-landscape", "tester"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "", "", "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 2 {
		t.Fatalf("got %d events, want 2", len(evts))
	}
	if evts[0].Type != "module.completed" || evts[1].Type != "answer.output.recorded" {
		t.Fatalf("unexpected event types: %s, %s", evts[0].Type, evts[1].Type)
	}
	if evts[0].ActorID != "tester" {
		t.Fatalf("actor lost: %+v", evts[0])
	}
}

func TestFailedMutationAppendsNoEvent(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Engine.RecordOutput(env.Ctx, "no-such-module", "x", "v", "tester"); err == nil {
		t.Fatalf("expected error")
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 0 {
		t.Fatalf("failed mutation logged an event: %+v", evts)
	}
}

func TestSnapshotRoundTripReproducesDerivedOutputs(t *testing.T) {
	env := newTestEnv(t)
	e := env.Engine
	ctx := env.Ctx

	if err := e.RecordOutput(ctx, "customer-definition", "willingness_to_pay", "Low", "tester"); err != nil {
		t.Fatal(err)
	}
	if err := e.RecordOutput(ctx, "positioning", "positioning", "Premium Brand", "tester"); err != nil {
		t.Fatal(err)
	}
	if err := e.RecordOutput(ctx, "positioning", "price_elasticity", "High", "tester"); err != nil {
		t.Fatal(err)
	}
	if err := e.RecordResponse(ctx, "positioning", domain.ResponseSynthesis,
		"Premium holds because audits are mandatory and the data shows it.", "tester"); err != nil {
		t.Fatal(err)
	}
	if err := e.CompleteModule(ctx, "positioning", "tester"); err != nil {
		t.Fatal(err)
	}
	if err := e.SaveSnapshot(ctx, "check", "tester"); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	wantWarnings := e.CheckDependencies("positioning")
	wantViolations := e.EvaluateModuleRules("positioning")
	wantValuation := e.Valuation()
	wantTrajectory := e.Trajectory()
	if len(wantWarnings) == 0 || len(wantViolations) == 0 {
		t.Fatalf("fixture should produce warnings and violations: %v %v", wantWarnings, wantViolations)
	}

	// Restore into a fresh store backed by the same database.
	restored := engine.New(e.DB, e.Catalog, answers.NewStore(e.Catalog))
	if err := restored.LoadSnapshot(ctx, "check", "tester"); err != nil {
		t.Fatalf("load snapshot: %v", err)
	}

	gotWarnings := restored.CheckDependencies("positioning")
	if len(gotWarnings) != len(wantWarnings) || gotWarnings[0] != wantWarnings[0] {
		t.Fatalf("warnings diverged: %v vs %v", gotWarnings, wantWarnings)
	}
	gotViolations := restored.EvaluateModuleRules("positioning")
	if len(gotViolations) != len(wantViolations) || gotViolations[0] != wantViolations[0] {
		t.Fatalf("violations diverged: %v vs %v", gotViolations, wantViolations)
	}
	if got := restored.Valuation(); got != wantValuation {
		t.Fatalf("valuation diverged: %+v vs %+v", got, wantValuation)
	}
	gotTrajectory := restored.Trajectory()
	if len(gotTrajectory) != len(wantTrajectory) || gotTrajectory[0] != wantTrajectory[0] {
		t.Fatalf("trajectory diverged: %v vs %v", gotTrajectory, wantTrajectory)
	}
}

func TestLoadMissingSnapshot(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Engine.LoadSnapshot(env.Ctx, "ghost", "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAdjustCredibilityLogsReason(t *testing.T) {
	env := newTestEnv(t)
	cred, err := env.Engine.AdjustCredibility(env.Ctx, -5, "challenge.failed", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if cred != 95 {
		t.Fatalf("credibility = %d, want 95", cred)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 1, "credibility.adjusted", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 1 {
		t.Fatalf("credibility event missing")
	}
}
