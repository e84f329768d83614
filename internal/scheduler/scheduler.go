package scheduler

import (
	"context"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"stratline/internal/catalog"
	"stratline/internal/domain"
	"stratline/internal/engine"
	"stratline/internal/events"
)

// Scheduler states reported by State.
const (
	StateIdle     = "idle"
	StateEligible = "eligible"
	StateVisible  = "visible"
)

type Config struct {
	PollInterval       time.Duration
	Cooldown           time.Duration
	TriggerProbability float64
	MinResponseChars   int
	FailPenalty        int
	DismissPenalty     int
}

func DefaultConfig() Config {
	return Config{
		PollInterval:       60 * time.Second,
		Cooldown:           30 * time.Minute,
		TriggerProbability: 0.05,
		MinResponseChars:   20,
		FailPenalty:        5,
		DismissPenalty:     2,
	}
}

// Challenge is the currently visible prompt.
type Challenge struct {
	ModuleID    string `json:"module_id"`
	ModuleTitle string `json:"module_title"`
	Question    string `json:"question"`
}

// Scheduler surfaces random challenge prompts against completed modules.
// While a challenge is visible no further triggers fire; resolving it
// (respond or dismiss) is idempotent, only the first attempt takes
// effect.
type Scheduler struct {
	mu  sync.Mutex
	cfg Config
	eng engine.Engine

	// Injectable for tests.
	Now  func() time.Time
	Rand func() float64
	Pick func(n int) int

	last time.Time
	cur  *Challenge
	stop chan struct{}
}

func New(eng engine.Engine, cfg Config) *Scheduler {
	return &Scheduler{
		cfg:  cfg,
		eng:  eng,
		Now:  time.Now,
		Rand: rand.Float64,
		Pick: rand.Intn,
	}
}

// Start launches the polling loop. Stop or ctx cancellation tears it
// down; no poll fires after either.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return
	}
	s.stop = make(chan struct{})
	stop := s.stop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				if err := s.Poll(ctx); err != nil {
					log.Printf("scheduler: poll: %v", err)
				}
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

// Poll runs one scheduling tick. A tick that lands while a challenge is
// visible, during cooldown, or before any module completes is a no-op.
// The zero last-trigger time counts as an elapsed cooldown.
func (s *Scheduler) Poll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur != nil {
		return nil
	}
	now := s.Now()
	if !s.last.IsZero() && now.Sub(s.last) < s.cfg.Cooldown {
		return nil
	}
	candidates := s.candidates()
	if len(candidates) == 0 {
		return nil
	}
	if s.Rand() >= s.cfg.TriggerProbability {
		return nil
	}

	m := candidates[s.Pick(len(candidates))]
	s.cur = &Challenge{
		ModuleID:    m.ID,
		ModuleTitle: m.Title,
		Question:    m.Challenge,
	}
	s.last = now
	return s.eng.LogEvent(ctx, "challenge.triggered", "module", m.ID, "scheduler", events.EventPayload{
		"question": m.Challenge,
	})
}

// candidates lists completed modules that carry a challenge question.
// Caller holds the lock.
func (s *Scheduler) candidates() []*catalog.Module {
	var out []*catalog.Module
	for _, id := range s.eng.Store.CompletedModules() {
		if m, ok := s.eng.Catalog.Module(id); ok && m.Challenge != "" {
			out = append(out, m)
		}
	}
	return out
}

// Current returns the visible challenge, or nil.
func (s *Scheduler) Current() *Challenge {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return nil
	}
	c := *s.cur
	return &c
}

// State reports the scheduler phase: visible while a challenge is shown,
// eligible once cooldown has elapsed and a candidate module exists,
// otherwise idle.
func (s *Scheduler) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil {
		return StateVisible
	}
	if len(s.candidates()) == 0 {
		return StateIdle
	}
	if !s.last.IsZero() && s.Now().Sub(s.last) < s.cfg.Cooldown {
		return StateIdle
	}
	return StateEligible
}

// Respond resolves the visible challenge with the learner's answer. A
// response under the minimum length counts as a failed attempt and costs
// credibility. Returns the resolved challenge, or nil if none was
// visible (a concurrent resolution already took it).
func (s *Scheduler) Respond(ctx context.Context, text, actorID string) (*Challenge, error) {
	s.mu.Lock()
	c := s.cur
	s.cur = nil
	s.mu.Unlock()
	if c == nil {
		return nil, nil
	}

	if countNonSpace(text) < s.cfg.MinResponseChars {
		if _, err := s.eng.AdjustCredibility(ctx, -s.cfg.FailPenalty, "challenge.failed", actorID); err != nil {
			return c, err
		}
		if err := s.eng.LogEvent(ctx, "challenge.failed", "module", c.ModuleID, actorID, nil); err != nil {
			return c, err
		}
		return c, nil
	}
	if err := s.eng.RecordResponse(ctx, c.ModuleID, domain.ResponseChallenge, text, actorID); err != nil {
		return c, err
	}
	return c, s.eng.LogEvent(ctx, "challenge.answered", "module", c.ModuleID, actorID, nil)
}

// Dismiss resolves the visible challenge without answering, at a smaller
// credibility cost than a failed attempt. Nil challenge means nothing
// was visible.
func (s *Scheduler) Dismiss(ctx context.Context, actorID string) (*Challenge, error) {
	s.mu.Lock()
	c := s.cur
	s.cur = nil
	s.mu.Unlock()
	if c == nil {
		return nil, nil
	}
	if _, err := s.eng.AdjustCredibility(ctx, -s.cfg.DismissPenalty, "challenge.dismissed", actorID); err != nil {
		return c, err
	}
	return c, s.eng.LogEvent(ctx, "challenge.dismissed", "module", c.ModuleID, actorID, nil)
}

func countNonSpace(s string) int {
	n := 0
	for _, r := range s {
		if !strings.ContainsRune(" \t\n\r", r) {
			n++
		}
	}
	return n
}
