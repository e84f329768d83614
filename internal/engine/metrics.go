package engine

import (
	"math"
	"strings"

	"stratline/internal/answers"
	"stratline/internal/catalog"
	"stratline/internal/domain"
)

// Bounds for the illustrative financial projections. The numbers are
// directional teaching aids, not a financial model.
const (
	MinValuation   = 250_000.0
	MaxValuation   = 5_000_000.0
	MaxCAC         = 1200.0
	MinCAC         = 150.0
	TrajectoryBase = 10_000.0
)

// signalTerms are the causal and quantitative markers the text-quality
// heuristic rewards.
var signalTerms = []string{
	"because", "if", "then", "%", "measure", "data",
	"evidence", "cost", "margin",
}

// responseWalkOrder fixes the iteration order over a module's response
// slots so the floating-point sums below come out identical on every
// call.
var responseWalkOrder = []string{
	domain.ResponseChallenge,
	domain.ResponseAdversarial,
	domain.ResponseSynthesis,
	domain.ResponseWeekAhead,
}

// Valuation derives the headline metrics from the full store snapshot.
// Pure and total: no caching, recomputed on every read. qualityIndex and
// quizIndex are 0..1 scalars; valuation rises and CAC falls as they do.
func Valuation(cat *catalog.Catalog, st *answers.Store) domain.Valuation {
	q := qualityIndex(cat, st)
	quiz := quizIndex(cat, st)
	blend := 0.6*q + 0.4*quiz
	return domain.Valuation{
		Valuation:    MinValuation + (MaxValuation-MinValuation)*blend,
		CAC:          MaxCAC - (MaxCAC-MinCAC)*blend,
		QualityIndex: q,
		QuizIndex:    quiz,
	}
}

// Trajectory walks modules in catalog order and emits one point per
// completed module. A point's profit depends only on that module's own
// recorded text, so completing a later module never moves earlier points.
func Trajectory(cat *catalog.Catalog, st *answers.Store) []domain.TrajectoryPoint {
	var series []domain.TrajectoryPoint
	for _, m := range cat.Ordered() {
		out, ok := st.Modules[m.ID]
		if !ok || !out.Completed {
			continue
		}
		series = append(series, domain.TrajectoryPoint{
			Label:  m.Title,
			Profit: math.Round(TrajectoryBase * float64(m.Ordinal) * (0.5 + moduleQuality(out))),
		})
	}
	return series
}

// qualityIndex averages the text-quality heuristic over every recorded
// free-text answer: module responses, thesis ledger lines, and pushback
// responses. The walk follows catalog order throughout. Empty store
// scores 0.
func qualityIndex(cat *catalog.Catalog, st *answers.Store) float64 {
	var sum float64
	var n int
	for _, m := range cat.Ordered() {
		out, ok := st.Modules[m.ID]
		if !ok {
			continue
		}
		for _, kind := range responseWalkOrder {
			if text, ok := out.Responses[kind]; ok {
				sum += textQuality(text)
				n++
			}
		}
	}
	for _, line := range st.ThesisLines {
		sum += textQuality(line)
		n++
	}
	for _, p := range cat.Pushbacks {
		if resp, ok := st.Pushbacks[p.ID]; ok {
			sum += textQuality(resp)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// quizIndex is the fraction of correct quiz answers across all modules.
func quizIndex(cat *catalog.Catalog, st *answers.Store) float64 {
	var correct, total int
	for _, m := range cat.Ordered() {
		out, ok := st.Modules[m.ID]
		if !ok || out.Quiz == nil {
			continue
		}
		correct += out.Quiz.Correct
		total += out.Quiz.Total
	}
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total)
}

// moduleQuality is the per-module quality signal feeding the trajectory.
// It reads only the module's own responses so the series prefix stays
// stable as later modules complete.
func moduleQuality(out *domain.ModuleOutput) float64 {
	if len(out.Responses) == 0 {
		return 0
	}
	var sum float64
	for _, kind := range responseWalkOrder {
		if text, ok := out.Responses[kind]; ok {
			sum += textQuality(text)
		}
	}
	return sum / float64(len(out.Responses))
}

// textQuality maps one free-text answer to [0,1]. Length contributes up
// to 0.6 (saturating at 240 characters); each distinct signal term found
// adds 0.1, capped at 0.4.
func textQuality(text string) float64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	lengthPart := math.Min(float64(len(trimmed))/240.0, 1.0) * 0.6
	lowered := strings.ToLower(trimmed)
	var signalPart float64
	for _, term := range signalTerms {
		if strings.Contains(lowered, term) {
			signalPart += 0.1
		}
	}
	if signalPart > 0.4 {
		signalPart = 0.4
	}
	return lengthPart + signalPart
}
