package answers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"stratline/internal/catalog"
	"stratline/internal/domain"
)

const (
	// StartingCredibility is the initial credibility score; deltas are
	// clamped to [0, MaxCredibility].
	StartingCredibility = 100
	MaxCredibility      = 100

	// MaxThesisLines bounds the thesis ledger; appending beyond it drops
	// the oldest line.
	MaxThesisLines = 12
)

var (
	ErrUnknownModule    = errors.New("unknown module")
	ErrUnknownWorksheet = errors.New("unknown worksheet")
	ErrUnknownField     = errors.New("unknown field")
	ErrUnknownResponse  = errors.New("unknown response kind")
	ErrUnknownPushback  = errors.New("unknown pushback")
)

// FieldTypeError reports a value that does not conform to the schema type
// declared for a field. The store is left unchanged when it is returned.
type FieldTypeError struct {
	FieldID string
	Want    catalog.FieldType
	Got     string
}

func (e FieldTypeError) Error() string {
	return fmt.Sprintf("field %s expects %s, got %s", e.FieldID, e.Want, e.Got)
}

var responseKinds = map[string]bool{
	domain.ResponseChallenge:   true,
	domain.ResponseAdversarial: true,
	domain.ResponseSynthesis:   true,
	domain.ResponseWeekAhead:   true,
}

// Store is the mutable aggregate of all recorded answers. It is mutated
// only through the narrow operations below, each of which holds the
// store lock, so the API server, the challenge scheduler, and the
// autosave flusher can share one store. Concurrent readers go through
// Clone, ModuleAnswers, or the locked accessors; the exported fields are
// safe to read directly only when nothing else touches the store.
type Store struct {
	mu  sync.RWMutex
	cat *catalog.Catalog
	Now func() time.Time

	Modules     map[string]*domain.ModuleOutput
	ThesisLines []string
	Pushbacks   map[string]string
	Credibility int
}

// NewStore returns an empty store bound to a catalog.
func NewStore(cat *catalog.Catalog) *Store {
	return &Store{
		cat:         cat,
		Now:         time.Now,
		Modules:     map[string]*domain.ModuleOutput{},
		Pushbacks:   map[string]string{},
		Credibility: StartingCredibility,
	}
}

// Catalog returns the catalog this store validates against.
func (s *Store) Catalog() *catalog.Catalog { return s.cat }

func (s *Store) now() string {
	if s.Now == nil {
		return time.Now().UTC().Format(time.RFC3339)
	}
	return s.Now().UTC().Format(time.RFC3339)
}

// Output returns the module's answer record, creating it lazily. The
// returned pointer is live; concurrent readers should use ModuleAnswers
// instead.
func (s *Store) Output(moduleID string) (*domain.ModuleOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output(moduleID)
}

// output is Output without the lock; every mutator below goes through it
// while already holding the write lock.
func (s *Store) output(moduleID string) (*domain.ModuleOutput, error) {
	if _, ok := s.cat.Module(moduleID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, moduleID)
	}
	out, ok := s.Modules[moduleID]
	if !ok {
		out = &domain.ModuleOutput{
			ModuleID:   moduleID,
			Outputs:    map[string]any{},
			Worksheets: map[string]*domain.WorksheetAnswers{},
			Responses:  map[string]string{},
		}
		s.Modules[moduleID] = out
	}
	return out, nil
}

// ModuleAnswers returns a deep copy of the module's answer record, safe
// to hold while the store keeps mutating.
func (s *Store) ModuleAnswers(moduleID string) (*domain.ModuleOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, err := s.output(moduleID)
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

// SetOutputValue records a required-output value after schema type checking.
func (s *Store) SetOutputValue(moduleID, outputID string, value any) error {
	m, ok := s.cat.Module(moduleID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModule, moduleID)
	}
	def, ok := m.Output(outputID)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownField, moduleID, outputID)
	}
	v, err := coerce(def.ID, def.Type, def.Options, value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out, err := s.output(moduleID)
	if err != nil {
		return err
	}
	out.Outputs[outputID] = v
	out.UpdatedAt = s.now()
	return nil
}

// SetWorksheetField records one worksheet field value.
func (s *Store) SetWorksheetField(moduleID, worksheetID, fieldID string, value any) error {
	m, ok := s.cat.Module(moduleID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModule, moduleID)
	}
	ws, ok := m.Worksheet(worksheetID)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownWorksheet, moduleID, worksheetID)
	}
	def, ok := ws.Field(fieldID)
	if !ok {
		return fmt.Errorf("%w: %s.%s.%s", ErrUnknownField, moduleID, worksheetID, fieldID)
	}
	v, err := coerce(def.ID, def.Type, def.Options, value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out, err := s.output(moduleID)
	if err != nil {
		return err
	}
	wa, ok := out.Worksheets[worksheetID]
	if !ok {
		wa = &domain.WorksheetAnswers{Fields: map[string]any{}}
		out.Worksheets[worksheetID] = wa
	}
	wa.Fields[fieldID] = v
	out.UpdatedAt = s.now()
	return nil
}

// CompleteWorksheet marks a worksheet done.
func (s *Store) CompleteWorksheet(moduleID, worksheetID string) error {
	m, ok := s.cat.Module(moduleID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModule, moduleID)
	}
	if _, ok := m.Worksheet(worksheetID); !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownWorksheet, moduleID, worksheetID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out, err := s.output(moduleID)
	if err != nil {
		return err
	}
	wa, ok := out.Worksheets[worksheetID]
	if !ok {
		wa = &domain.WorksheetAnswers{Fields: map[string]any{}}
		out.Worksheets[worksheetID] = wa
	}
	wa.Completed = true
	out.UpdatedAt = s.now()
	return nil
}

// SetResponse records one of the fixed free-text responses.
func (s *Store) SetResponse(moduleID, kind, text string) error {
	if !responseKinds[kind] {
		return fmt.Errorf("%w: %s", ErrUnknownResponse, kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out, err := s.output(moduleID)
	if err != nil {
		return err
	}
	out.Responses[kind] = text
	out.UpdatedAt = s.now()
	return nil
}

// SetQuizResult records a quiz attempt.
func (s *Store) SetQuizResult(moduleID string, correct, total int, conceptGap bool) error {
	if total <= 0 || correct < 0 || correct > total {
		return fmt.Errorf("quiz result %d/%d out of range", correct, total)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out, err := s.output(moduleID)
	if err != nil {
		return err
	}
	out.Quiz = &domain.QuizResult{Correct: correct, Total: total, ConceptGap: conceptGap}
	out.UpdatedAt = s.now()
	return nil
}

// SetCompleted flips the module's completion flag.
func (s *Store) SetCompleted(moduleID string, completed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, err := s.output(moduleID)
	if err != nil {
		return err
	}
	out.Completed = completed
	out.UpdatedAt = s.now()
	return nil
}

// AppendThesisLine appends to the bounded thesis ledger.
func (s *Store) AppendThesisLine(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return fmt.Errorf("thesis line is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ThesisLines = append(s.ThesisLines, line)
	if len(s.ThesisLines) > MaxThesisLines {
		s.ThesisLines = s.ThesisLines[len(s.ThesisLines)-MaxThesisLines:]
	}
	return nil
}

// SetPushback records a response to one of the catalog's pushback prompts.
func (s *Store) SetPushback(id, response string) error {
	known := false
	for _, p := range s.cat.Pushbacks {
		if p.ID == id {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownPushback, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Pushbacks[id] = response
	return nil
}

// AdjustCredibility applies a signed delta and returns the clamped result.
func (s *Store) AdjustCredibility(delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Credibility += delta
	if s.Credibility < 0 {
		s.Credibility = 0
	}
	if s.Credibility > MaxCredibility {
		s.Credibility = MaxCredibility
	}
	return s.Credibility
}

// CredibilityScore returns the current credibility under the read lock.
func (s *Store) CredibilityScore() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Credibility
}

// CompletedModules returns ids of completed modules in catalog order.
func (s *Store) CompletedModules() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for _, m := range s.cat.Ordered() {
		if out, ok := s.Modules[m.ID]; ok && out.Completed {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// Clone deep-copies the store's data so derivations can run against a
// stable snapshot while mutations continue on the original.
func (s *Store) Clone() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := NewStore(s.cat)
	c.Now = s.Now
	for id, out := range s.Modules {
		c.Modules[id] = out.Clone()
	}
	c.ThesisLines = append([]string(nil), s.ThesisLines...)
	for k, v := range s.Pushbacks {
		c.Pushbacks[k] = v
	}
	c.Credibility = s.Credibility
	return c
}

type storeJSON struct {
	Modules     map[string]*domain.ModuleOutput `json:"modules"`
	ThesisLines []string                        `json:"thesis_lines,omitempty"`
	Pushbacks   map[string]string               `json:"pushbacks,omitempty"`
	Credibility int                             `json:"credibility"`
}

// ToJSON serializes the store's data for the persistence sink.
func (s *Store) ToJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(storeJSON{
		Modules:     s.Modules,
		ThesisLines: s.ThesisLines,
		Pushbacks:   s.Pushbacks,
		Credibility: s.Credibility,
	})
}

// RestoreJSON replaces the store's data from a serialized snapshot.
func (s *Store) RestoreJSON(data []byte) error {
	var snap storeJSON
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}
	if snap.Modules == nil {
		snap.Modules = map[string]*domain.ModuleOutput{}
	}
	if snap.Pushbacks == nil {
		snap.Pushbacks = map[string]string{}
	}
	for id, out := range snap.Modules {
		if out.Outputs == nil {
			out.Outputs = map[string]any{}
		}
		if out.Worksheets == nil {
			out.Worksheets = map[string]*domain.WorksheetAnswers{}
		}
		if out.Responses == nil {
			out.Responses = map[string]string{}
		}
		out.ModuleID = id
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Modules = snap.Modules
	s.ThesisLines = snap.ThesisLines
	s.Pushbacks = snap.Pushbacks
	s.Credibility = snap.Credibility
	return nil
}

// coerce validates a raw value against the declared type. Numbers arriving
// via JSON are float64; ints are accepted for direct callers.
func coerce(fieldID string, ft catalog.FieldType, options []string, value any) (any, error) {
	switch ft {
	case catalog.FieldText:
		v, ok := value.(string)
		if !ok {
			return nil, FieldTypeError{FieldID: fieldID, Want: ft, Got: typeName(value)}
		}
		return v, nil
	case catalog.FieldNumber:
		switch n := value.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return nil, FieldTypeError{FieldID: fieldID, Want: ft, Got: typeName(value)}
			}
			return f, nil
		default:
			return nil, FieldTypeError{FieldID: fieldID, Want: ft, Got: typeName(value)}
		}
	case catalog.FieldSelect:
		v, ok := value.(string)
		if !ok {
			return nil, FieldTypeError{FieldID: fieldID, Want: ft, Got: typeName(value)}
		}
		for _, opt := range options {
			if opt == v {
				return v, nil
			}
		}
		return nil, FieldTypeError{FieldID: fieldID, Want: ft, Got: fmt.Sprintf("%q (not an option)", v)}
	default:
		return nil, FieldTypeError{FieldID: fieldID, Want: ft, Got: typeName(value)}
	}
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
