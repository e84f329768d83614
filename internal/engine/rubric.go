package engine

import (
	"math"
	"regexp"
	"strings"

	"stratline/internal/domain"
)

// Rubric weights; they sum to 1.
const (
	weightSpecificity     = 0.20
	weightFalsifiability  = 0.20
	weightTradeoffClarity = 0.25
	weightEvidenceLinkage = 0.20
	weightRiskHonesty     = 0.15
)

// vagueTerms is the buzzword lexicon penalized by the specificity dimension.
var vagueTerms = []string{
	"better", "more", "less", "improve", "growth", "scale",
	"leverage", "synergy", "optimize", "efficient", "robust",
}

var (
	ifThenRe    = regexp.MustCompile(`(?i)\bif\b.*\bthen\b`)
	timeBoundRe = regexp.MustCompile(`(?i)\b(by|within|in)\s+\d+\s*(day|week|month|quarter|year)s?\b`)
	quarterRe   = regexp.MustCompile(`(?i)\bq[1-4]\b`)
	thresholdRe = regexp.MustCompile(`\d+(\.\d+)?\s*%|\b\d+(\.\d+)?x\b|[<>]=?\s*\d+`)
	riskLangRe  = regexp.MustCompile(`(?i)risk|fail|counter`)
	notDoingRe  = regexp.MustCompile(`(?i)not doing|won't|will not|instead of|we are not|we're not`)
	wordRe      = regexp.MustCompile(`[a-zA-Z]+`)
)

// ScoreStrategyNote scores a free-text strategy note against the structural
// rubric. The scoring is syntactic: it rewards testable, specific,
// tradeoff-aware writing, not correctness of content. Deterministic and
// pure; an absent or empty-thesis note scores zero everywhere.
func ScoreStrategyNote(note *domain.StrategyNote) domain.NoteScore {
	if note == nil || strings.TrimSpace(note.Thesis) == "" {
		return domain.NoteScore{}
	}
	b := domain.ScoreBreakdown{
		Specificity:     scoreSpecificity(note),
		Falsifiability:  scoreFalsifiability(note),
		TradeoffClarity: scoreTradeoffClarity(note),
		EvidenceLinkage: scoreEvidenceLinkage(note),
		RiskHonesty:     scoreRiskHonesty(note),
	}
	composite := weightSpecificity*float64(b.Specificity) +
		weightFalsifiability*float64(b.Falsifiability) +
		weightTradeoffClarity*float64(b.TradeoffClarity) +
		weightEvidenceLinkage*float64(b.EvidenceLinkage) +
		weightRiskHonesty*float64(b.RiskHonesty)
	return domain.NoteScore{
		Score:     clamp(int(math.Round(composite))),
		Breakdown: b,
	}
}

func scoreSpecificity(note *domain.StrategyNote) int {
	text := strings.ToLower(note.Thesis + " " + note.Decision)
	words := wordRe.FindAllString(text, -1)
	score := 100
	for _, w := range words {
		for _, term := range vagueTerms {
			if w == term {
				score -= 25
				break
			}
		}
	}
	if len(strings.TrimSpace(note.Thesis)) < 30 {
		score -= 30
	}
	return clamp(score)
}

func scoreFalsifiability(note *domain.StrategyNote) int {
	text := note.Thesis + " " + note.Decision
	matches := 0
	if ifThenRe.MatchString(text) {
		matches++
	}
	matches += len(timeBoundRe.FindAllString(text, -1))
	matches += len(quarterRe.FindAllString(text, -1))
	matches += len(thresholdRe.FindAllString(text, -1))
	return clamp(40 + 20*matches)
}

// Two or more bullets only score when at least one names what is being
// given up; padding the list with vague bullets scores worse than one
// honest bullet.
func scoreTradeoffClarity(note *domain.StrategyNote) int {
	bullets := nonEmpty(note.Tradeoffs)
	if len(bullets) >= 2 {
		for _, b := range bullets {
			if notDoingRe.MatchString(b) {
				return 100
			}
		}
		return 0
	}
	if len(bullets) == 1 {
		return 50
	}
	return 0
}

func scoreEvidenceLinkage(note *domain.StrategyNote) int {
	bullets := nonEmpty(note.Evidence)
	score := 25 * len(bullets)
	joined := strings.ToLower(strings.Join(bullets, " "))
	score += 25 * strings.Count(joined, "because")
	return clamp(score)
}

// Same tiering as tradeoff clarity: multiple bullets must carry actual
// risk or failure language somewhere to count.
func scoreRiskHonesty(note *domain.StrategyNote) int {
	bullets := nonEmpty(note.Risks)
	if len(bullets) >= 2 {
		for _, b := range bullets {
			if riskLangRe.MatchString(b) {
				return 100
			}
		}
		return 0
	}
	if len(bullets) == 1 {
		return 50
	}
	return 0
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
