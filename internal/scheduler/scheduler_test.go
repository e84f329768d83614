package scheduler_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"stratline/internal/answers"
	"stratline/internal/catalog"
	"stratline/internal/engine"
	"stratline/internal/scheduler"
)

func newScheduler(t *testing.T) (*scheduler.Scheduler, engine.Engine) {
	t.Helper()
	cat := catalog.Default()
	store := answers.NewStore(cat)
	eng := engine.New(nil, cat, store)
	s := scheduler.New(eng, scheduler.DefaultConfig())
	s.Now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	s.Rand = func() float64 { return 0 } // always below the trigger probability
	s.Pick = func(n int) int { return 0 }
	return s, eng
}

func TestNoCompletedModuleNeverTriggers(t *testing.T) {
	s, _ := newScheduler(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if err := s.Poll(ctx); err != nil {
			t.Fatalf("poll: %v", err)
		}
	}
	if s.Current() != nil {
		t.Fatalf("challenge triggered with nothing completed")
	}
	if got := s.State(); got != scheduler.StateIdle {
		t.Fatalf("state = %s, want idle", got)
	}
}

func TestTriggerAgainstCompletedModule(t *testing.T) {
	s, eng := newScheduler(t)
	ctx := context.Background()
	if err := eng.CompleteModule(ctx, "market-landscape", "tester"); err != nil {
		t.Fatal(err)
	}
	if got := s.State(); got != scheduler.StateEligible {
		t.Fatalf("state = %s, want eligible", got)
	}
	if err := s.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	c := s.Current()
	if c == nil {
		t.Fatalf("expected a visible challenge")
	}
	if c.ModuleID != "market-landscape" || c.Question == "" {
		t.Fatalf("unexpected challenge: %+v", c)
	}
	if got := s.State(); got != scheduler.StateVisible {
		t.Fatalf("state = %s, want visible", got)
	}

	// A tick landing while visible is a no-op.
	before := *c
	if err := s.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	if after := s.Current(); after == nil || *after != before {
		t.Fatalf("visible challenge disturbed by poll: %+v", after)
	}
}

func TestRandGateBlocksTrigger(t *testing.T) {
	s, eng := newScheduler(t)
	ctx := context.Background()
	if err := eng.CompleteModule(ctx, "market-landscape", "tester"); err != nil {
		t.Fatal(err)
	}
	s.Rand = func() float64 { return 0.99 }
	if err := s.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	if s.Current() != nil {
		t.Fatalf("trigger fired despite losing the roll")
	}
}

func TestCooldownBlocksRetrigger(t *testing.T) {
	s, eng := newScheduler(t)
	ctx := context.Background()
	if err := eng.CompleteModule(ctx, "market-landscape", "tester"); err != nil {
		t.Fatal(err)
	}
	if err := s.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Dismiss(ctx, "tester"); err != nil {
		t.Fatal(err)
	}
	// Cooldown has not elapsed, so the next poll stays quiet.
	if err := s.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	if s.Current() != nil {
		t.Fatalf("retriggered inside cooldown")
	}
	// Advance past the cooldown window.
	s.Now = func() time.Time { return time.Date(2026, 3, 1, 9, 31, 0, 0, time.UTC) }
	if err := s.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	if s.Current() == nil {
		t.Fatalf("expected retrigger after cooldown")
	}
}

func TestShortResponseCostsCredibility(t *testing.T) {
	s, eng := newScheduler(t)
	ctx := context.Background()
	if err := eng.CompleteModule(ctx, "market-landscape", "tester"); err != nil {
		t.Fatal(err)
	}
	if err := s.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	before := eng.Store.Credibility
	c, err := s.Respond(ctx, "   too short   ", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil {
		t.Fatalf("expected the challenge back")
	}
	cfg := scheduler.DefaultConfig()
	if got := eng.Store.Credibility; got != before-cfg.FailPenalty {
		t.Fatalf("credibility = %d, want %d", got, before-cfg.FailPenalty)
	}
	if s.Current() != nil {
		t.Fatalf("challenge still visible after resolution")
	}
}

func TestWellFormedResponseRecordsAnswer(t *testing.T) {
	s, eng := newScheduler(t)
	ctx := context.Background()
	if err := eng.CompleteModule(ctx, "market-landscape", "tester"); err != nil {
		t.Fatal(err)
	}
	if err := s.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	before := eng.Store.Credibility
	text := "The pricing assumption breaks first; I would call five churned accounts this week."
	if _, err := s.Respond(ctx, text, "tester"); err != nil {
		t.Fatal(err)
	}
	if eng.Store.Credibility != before {
		t.Fatalf("well-formed response was penalized")
	}
	out := eng.Store.Modules["market-landscape"]
	if !strings.Contains(out.Responses["challenge"], "pricing assumption") {
		t.Fatalf("response not recorded: %v", out.Responses)
	}
}

func TestDoubleResolutionIsNoOp(t *testing.T) {
	s, eng := newScheduler(t)
	ctx := context.Background()
	if err := eng.CompleteModule(ctx, "market-landscape", "tester"); err != nil {
		t.Fatal(err)
	}
	if err := s.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Dismiss(ctx, "tester"); err != nil {
		t.Fatal(err)
	}
	after := eng.Store.Credibility

	// Second dismissal and a late respond both find nothing to resolve.
	c, err := s.Dismiss(ctx, "tester")
	if err != nil || c != nil {
		t.Fatalf("second dismiss took effect: %+v %v", c, err)
	}
	c, err = s.Respond(ctx, "x", "tester")
	if err != nil || c != nil {
		t.Fatalf("late respond took effect: %+v %v", c, err)
	}
	if eng.Store.Credibility != after {
		t.Fatalf("credibility changed on no-op resolution")
	}
}

func TestDismissCostsLessThanFailure(t *testing.T) {
	cfg := scheduler.DefaultConfig()
	if cfg.DismissPenalty >= cfg.FailPenalty {
		t.Fatalf("dismiss penalty %d should be below fail penalty %d", cfg.DismissPenalty, cfg.FailPenalty)
	}
	s, eng := newScheduler(t)
	ctx := context.Background()
	if err := eng.CompleteModule(ctx, "market-landscape", "tester"); err != nil {
		t.Fatal(err)
	}
	if err := s.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	before := eng.Store.Credibility
	if _, err := s.Dismiss(ctx, "tester"); err != nil {
		t.Fatal(err)
	}
	if got := eng.Store.Credibility; got != before-cfg.DismissPenalty {
		t.Fatalf("credibility = %d, want %d", got, before-cfg.DismissPenalty)
	}
}

// The polling loop shares the store with request handlers and the
// autosave timer; ticks must be safe to run while answers are still
// being recorded. Run under the race detector.
func TestPollSafeDuringMutation(t *testing.T) {
	s, eng := newScheduler(t)
	s.Rand = func() float64 { return 1 } // gate closed, every tick scans candidates
	ctx := context.Background()
	if err := eng.CompleteModule(ctx, "go-to-market", "tester"); err != nil {
		t.Fatal(err)
	}

	const iterations = 200
	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			if err := s.Poll(ctx); err != nil {
				t.Errorf("poll: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			if err := eng.RecordOutput(ctx, "market-landscape", "target_market", "Mid-market ops teams", "tester"); err != nil {
				t.Errorf("record output: %v", err)
				return
			}
			if err := eng.CompleteModule(ctx, "market-landscape", "tester"); err != nil {
				t.Errorf("complete module: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			if _, err := eng.Store.ToJSON(); err != nil {
				t.Errorf("serialize: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			eng.Valuation()
			eng.InvalidatedModules()
		}
	}()
	wg.Wait()

	if s.Current() != nil {
		t.Fatalf("closed gate still triggered a challenge")
	}
	if !eng.Store.Modules["market-landscape"].Completed {
		t.Fatalf("mutations lost during concurrent polling")
	}
}
