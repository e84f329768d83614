package engine_test

import (
	"testing"

	"stratline/internal/answers"
	"stratline/internal/catalog"
	"stratline/internal/domain"
	"stratline/internal/engine"
)

func TestEmptyStoreBaseline(t *testing.T) {
	cat, st := newStore(t)
	v := engine.Valuation(cat, st)
	if v.QualityIndex != 0 || v.QuizIndex != 0 {
		t.Fatalf("empty store should have zero indices: %+v", v)
	}
	if v.Valuation != engine.MinValuation {
		t.Fatalf("empty store valuation = %f, want %f", v.Valuation, engine.MinValuation)
	}
	if v.CAC != engine.MaxCAC {
		t.Fatalf("empty store cac = %f, want %f", v.CAC, engine.MaxCAC)
	}
	if pts := engine.Trajectory(cat, st); len(pts) != 0 {
		t.Fatalf("empty store trajectory not empty: %v", pts)
	}
}

func TestBetterAnswersRaiseValuationAndLowerCAC(t *testing.T) {
	cat, st := newStore(t)
	if err := st.SetResponse("market-landscape", domain.ResponseSynthesis, "meh"); err != nil {
		t.Fatal(err)
	}
	weak := engine.Valuation(cat, st)

	if err := st.SetResponse("market-landscape", domain.ResponseSynthesis,
		"If the segment keeps paying because audits are mandatory, then margin holds; we will measure cost per closed deal against the evidence from 12 interviews and track data on churn monthly."); err != nil {
		t.Fatal(err)
	}
	strong := engine.Valuation(cat, st)

	if strong.QualityIndex <= weak.QualityIndex {
		t.Fatalf("quality index did not rise: %f <= %f", strong.QualityIndex, weak.QualityIndex)
	}
	if strong.Valuation <= weak.Valuation {
		t.Fatalf("valuation did not rise: %f <= %f", strong.Valuation, weak.Valuation)
	}
	if strong.CAC >= weak.CAC {
		t.Fatalf("cac did not fall: %f >= %f", strong.CAC, weak.CAC)
	}
}

func TestQuizIndexAggregatesAcrossModules(t *testing.T) {
	cat, st := newStore(t)
	if err := st.SetQuizResult("market-landscape", 2, 2, false); err != nil {
		t.Fatal(err)
	}
	if err := st.SetQuizResult("positioning", 0, 1, true); err != nil {
		t.Fatal(err)
	}
	v := engine.Valuation(cat, st)
	want := 2.0 / 3.0
	if diff := v.QuizIndex - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("quiz index = %f, want %f", v.QuizIndex, want)
	}
}

func TestTrajectoryPrefixStability(t *testing.T) {
	cat, st := newStore(t)
	if err := st.SetResponse("market-landscape", domain.ResponseSynthesis, "Margin holds because audits are mandatory."); err != nil {
		t.Fatal(err)
	}
	if err := st.SetCompleted("market-landscape", true); err != nil {
		t.Fatal(err)
	}
	first := engine.Trajectory(cat, st)
	if len(first) != 1 {
		t.Fatalf("expected one point, got %v", first)
	}

	// Completing a later module adds a point without moving the first.
	if err := st.SetResponse("customer-definition", domain.ResponseSynthesis, "Budget owners sign because the mandate names them."); err != nil {
		t.Fatal(err)
	}
	if err := st.SetCompleted("customer-definition", true); err != nil {
		t.Fatal(err)
	}
	second := engine.Trajectory(cat, st)
	if len(second) != 2 {
		t.Fatalf("expected two points, got %v", second)
	}
	if second[0] != first[0] {
		t.Fatalf("prefix moved: %+v vs %+v", second[0], first[0])
	}
	if second[0].Label != "Market Landscape" || second[1].Label != "Customer Definition" {
		t.Fatalf("points out of catalog order: %v", second)
	}
}

// The index walks follow catalog order, so a fully-populated store must
// produce bit-identical metrics on every recomputation.
func TestValuationIsDeterministic(t *testing.T) {
	cat := catalog.Default()
	st := answers.Demo(cat)

	first := engine.Valuation(cat, st)
	for i := 0; i < 50; i++ {
		if got := engine.Valuation(cat, st); got != first {
			t.Fatalf("valuation varied across calls: %+v vs %+v", got, first)
		}
	}

	firstSeries := engine.Trajectory(cat, st)
	for i := 0; i < 50; i++ {
		got := engine.Trajectory(cat, st)
		if len(got) != len(firstSeries) {
			t.Fatalf("trajectory length varied: %d vs %d", len(got), len(firstSeries))
		}
		for j := range got {
			if got[j] != firstSeries[j] {
				t.Fatalf("trajectory point %d varied: %+v vs %+v", j, got[j], firstSeries[j])
			}
		}
	}
}

func TestDemoDataIsCoherent(t *testing.T) {
	cat := catalog.Default()
	st := answers.Demo(cat)

	if inv := engine.InvalidatedModules(cat, st); len(inv) != 0 {
		t.Fatalf("demo data trips its own dependencies: %v", inv)
	}
	for _, m := range cat.Ordered() {
		m := m
		out := st.Modules[m.ID]
		if msgs := engine.EvaluateRules(out, &m); len(msgs) != 0 {
			t.Fatalf("demo data violates rules in %s: %v", m.ID, msgs)
		}
	}
	v := engine.Valuation(cat, st)
	if v.QualityIndex <= 0 || v.QuizIndex != 1 {
		t.Fatalf("demo metrics look wrong: %+v", v)
	}
	if pts := engine.Trajectory(cat, st); len(pts) != len(cat.Modules) {
		t.Fatalf("demo trajectory has %d points, want %d", len(pts), len(cat.Modules))
	}
}
