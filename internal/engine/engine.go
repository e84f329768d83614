package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"stratline/internal/answers"
	"stratline/internal/catalog"
	"stratline/internal/domain"
	"stratline/internal/events"
	"stratline/internal/repo"
)

// Engine bundles the catalog, the answer store, and the persistence sink.
// All derivations are pure functions of the store snapshot; the mutators
// below are the only writers and append to the event log as they go.
type Engine struct {
	Catalog *catalog.Catalog
	Store   *answers.Store
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Now     func() time.Time

	// OnMutate, when set, is invoked after every successful mutation.
	// The autosave debouncer hangs off this.
	OnMutate func()
}

func New(db *sql.DB, cat *catalog.Catalog, store *answers.Store) Engine {
	return Engine{
		Catalog: cat,
		Store:   store,
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Events:  events.Writer{DB: db},
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) mutated(ctx context.Context, evtType, entityKind, entityID, actorID string, payload events.EventPayload) error {
	if e.DB != nil {
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		if err := e.Events.Append(ctx, tx, evtType, entityKind, entityID, actorID, payload); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	if e.OnMutate != nil {
		e.OnMutate()
	}
	return nil
}

// LogEvent appends an event without a store mutation. Used by the
// scheduler for trigger events that change no answers.
func (e Engine) LogEvent(ctx context.Context, evtType, entityKind, entityID, actorID string, payload events.EventPayload) error {
	if e.DB == nil {
		return nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, evtType, entityKind, entityID, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordOutput records a required-output value for a module.
func (e Engine) RecordOutput(ctx context.Context, moduleID, outputID string, value any, actorID string) error {
	if err := e.Store.SetOutputValue(moduleID, outputID, value); err != nil {
		return err
	}
	return e.mutated(ctx, "answer.output.recorded", "module", moduleID, actorID, events.EventPayload{"output": outputID})
}

// RecordWorksheetField records one worksheet field value.
func (e Engine) RecordWorksheetField(ctx context.Context, moduleID, worksheetID, fieldID string, value any, actorID string) error {
	if err := e.Store.SetWorksheetField(moduleID, worksheetID, fieldID, value); err != nil {
		return err
	}
	return e.mutated(ctx, "answer.field.recorded", "module", moduleID, actorID, events.EventPayload{"worksheet": worksheetID, "field": fieldID})
}

// CompleteWorksheet marks a worksheet done.
func (e Engine) CompleteWorksheet(ctx context.Context, moduleID, worksheetID, actorID string) error {
	if err := e.Store.CompleteWorksheet(moduleID, worksheetID); err != nil {
		return err
	}
	return e.mutated(ctx, "worksheet.completed", "module", moduleID, actorID, events.EventPayload{"worksheet": worksheetID})
}

// RecordResponse records one of the fixed free-text responses.
func (e Engine) RecordResponse(ctx context.Context, moduleID, kind, text, actorID string) error {
	if err := e.Store.SetResponse(moduleID, kind, text); err != nil {
		return err
	}
	return e.mutated(ctx, "answer.response.recorded", "module", moduleID, actorID, events.EventPayload{"kind": kind})
}

// RecordQuizResult records a quiz attempt.
func (e Engine) RecordQuizResult(ctx context.Context, moduleID string, correct, total int, conceptGap bool, actorID string) error {
	if err := e.Store.SetQuizResult(moduleID, correct, total, conceptGap); err != nil {
		return err
	}
	return e.mutated(ctx, "quiz.recorded", "module", moduleID, actorID, events.EventPayload{
		"correct": correct, "total": total, "concept_gap": conceptGap,
	})
}

// CompleteModule marks a module completed.
func (e Engine) CompleteModule(ctx context.Context, moduleID, actorID string) error {
	if err := e.Store.SetCompleted(moduleID, true); err != nil {
		return err
	}
	return e.mutated(ctx, "module.completed", "module", moduleID, actorID, nil)
}

// AppendThesisLine appends to the thesis ledger.
func (e Engine) AppendThesisLine(ctx context.Context, line, actorID string) error {
	if err := e.Store.AppendThesisLine(line); err != nil {
		return err
	}
	return e.mutated(ctx, "ledger.thesis.appended", "ledger", "thesis", actorID, nil)
}

// RecordPushback records a boardroom-pushback response.
func (e Engine) RecordPushback(ctx context.Context, id, response, actorID string) error {
	if err := e.Store.SetPushback(id, response); err != nil {
		return err
	}
	return e.mutated(ctx, "ledger.pushback.recorded", "ledger", id, actorID, nil)
}

// AdjustCredibility applies a signed delta and logs the reason.
func (e Engine) AdjustCredibility(ctx context.Context, delta int, reason, actorID string) (int, error) {
	cred := e.Store.AdjustCredibility(delta)
	err := e.mutated(ctx, "credibility.adjusted", "ledger", "credibility", actorID, events.EventPayload{
		"delta": delta, "credibility": cred, "reason": reason,
	})
	return cred, err
}

// SaveSnapshot serializes the store into the persistence sink under id.
func (e Engine) SaveSnapshot(ctx context.Context, id, actorID string) error {
	if e.DB == nil {
		return errors.New("no database attached")
	}
	data, err := e.Store.ToJSON()
	if err != nil {
		return fmt.Errorf("serialize store: %w", err)
	}
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.SaveSnapshot(ctx, id, string(data), now); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "snapshot.saved", "snapshot", id, actorID, events.EventPayload{"bytes": len(data)}); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadSnapshot replaces the store's contents from a persisted snapshot.
func (e Engine) LoadSnapshot(ctx context.Context, id, actorID string) error {
	if e.DB == nil {
		return errors.New("no database attached")
	}
	snap, err := e.Repo.GetSnapshot(ctx, id)
	if err != nil {
		return err
	}
	if err := e.Store.RestoreJSON([]byte(snap.Data)); err != nil {
		return err
	}
	return e.mutated(ctx, "snapshot.loaded", "snapshot", id, actorID, nil)
}

// Derivations below run against a cloned snapshot of the store so they
// never observe a mutation in flight.

// CheckDependencies reports failing upstream assumptions for a module.
func (e Engine) CheckDependencies(moduleID string) []domain.Warning {
	return CheckDependencies(e.Catalog, e.Store.Clone(), moduleID)
}

// InvalidatedModules reports completed modules with a violated upstream edge.
func (e Engine) InvalidatedModules() map[string][]domain.Warning {
	return InvalidatedModules(e.Catalog, e.Store.Clone())
}

// EvaluateModuleRules runs the module's declared consistency rules.
func (e Engine) EvaluateModuleRules(moduleID string) []string {
	m, ok := e.Catalog.Module(moduleID)
	if !ok {
		return nil
	}
	out, ok := e.Store.Clone().Modules[moduleID]
	if !ok {
		return nil
	}
	return EvaluateRules(out, m)
}

// Valuation recomputes the derived metrics from the current snapshot.
func (e Engine) Valuation() domain.Valuation {
	return Valuation(e.Catalog, e.Store.Clone())
}

// Trajectory recomputes the profit-trajectory series.
func (e Engine) Trajectory() []domain.TrajectoryPoint {
	return Trajectory(e.Catalog, e.Store.Clone())
}
