package server

import (
	"stratline/internal/answers"
	"stratline/internal/catalog"
	"stratline/internal/domain"
	"stratline/internal/scheduler"
)

// Request payloads

type SetValueRequest struct {
	Value any `json:"value"`
}

type SetResponseRequest struct {
	Text string `json:"text"`
}

type QuizResultRequest struct {
	Correct    int  `json:"correct"`
	Total      int  `json:"total"`
	ConceptGap bool `json:"concept_gap,omitempty"`
}

type ThesisLineRequest struct {
	Line string `json:"line"`
}

type PushbackRequest struct {
	Response string `json:"response"`
}

type ChallengeResponseRequest struct {
	Text string `json:"text"`
}

// Response payloads

type ModuleSummary struct {
	ID        string `json:"id"`
	Ordinal   int    `json:"ordinal"`
	Pillar    string `json:"pillar"`
	Title     string `json:"title"`
	HasQuiz   bool   `json:"has_quiz"`
	Challenge bool   `json:"has_challenge"`
	Completed bool   `json:"completed"`
}

type StoreResponse struct {
	Modules     map[string]*domain.ModuleOutput `json:"modules"`
	ThesisLines []string                        `json:"thesis_lines,omitempty"`
	Pushbacks   map[string]string               `json:"pushbacks,omitempty"`
	Credibility int                             `json:"credibility"`
}

type WarningsResponse struct {
	Warnings []domain.Warning `json:"warnings"`
}

type ViolationsResponse struct {
	Violations []string `json:"violations"`
}

type InvalidatedResponse struct {
	Modules map[string][]domain.Warning `json:"modules"`
}

type CredibilityResponse struct {
	Credibility int `json:"credibility"`
}

type ChallengeView struct {
	State     string               `json:"state" enum:"idle,eligible,visible"`
	Challenge *scheduler.Challenge `json:"challenge,omitempty"`
}

type ChallengeResolution struct {
	Resolved    bool                 `json:"resolved"`
	Challenge   *scheduler.Challenge `json:"challenge,omitempty"`
	Credibility int                  `json:"credibility"`
}

func moduleSummaries(cat *catalog.Catalog, st *answers.Store) []ModuleSummary {
	snap := st.Clone()
	var out []ModuleSummary
	for _, m := range cat.Ordered() {
		completed := false
		if rec, ok := snap.Modules[m.ID]; ok {
			completed = rec.Completed
		}
		out = append(out, ModuleSummary{
			ID:        m.ID,
			Ordinal:   m.Ordinal,
			Pillar:    m.Pillar,
			Title:     m.Title,
			HasQuiz:   m.Quiz != nil,
			Challenge: m.Challenge != "",
			Completed: completed,
		})
	}
	return out
}

// storeResponse serializes a cloned snapshot so handlers never hand the
// live maps to the encoder.
func storeResponse(st *answers.Store) StoreResponse {
	snap := st.Clone()
	return StoreResponse{
		Modules:     snap.Modules,
		ThesisLines: snap.ThesisLines,
		Pushbacks:   snap.Pushbacks,
		Credibility: snap.Credibility,
	}
}
