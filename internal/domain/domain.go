package domain

// Free-text response slots every module carries.
const (
	ResponseChallenge   = "challenge"
	ResponseAdversarial = "adversarial"
	ResponseSynthesis   = "synthesis"
	ResponseWeekAhead   = "week_ahead"
)

// WorksheetAnswers holds the recorded values for one worksheet.
type WorksheetAnswers struct {
	Fields    map[string]any `json:"fields"`
	Completed bool           `json:"completed"`
}

// QuizResult records one quiz attempt. ConceptGap flags a conceptually
// incomplete understanding despite a correct score.
type QuizResult struct {
	Correct    int  `json:"correct"`
	Total      int  `json:"total"`
	ConceptGap bool `json:"concept_gap"`
}

// ModuleOutput is the mutable answer record for one module. Created lazily
// on first interaction, overwritten but never deleted.
type ModuleOutput struct {
	ModuleID   string                       `json:"module_id"`
	Completed  bool                         `json:"completed"`
	Outputs    map[string]any               `json:"outputs,omitempty"`
	Worksheets map[string]*WorksheetAnswers `json:"worksheets,omitempty"`
	Responses  map[string]string            `json:"responses,omitempty"`
	Quiz       *QuizResult                  `json:"quiz,omitempty"`
	UpdatedAt  string                       `json:"updated_at" format:"date-time"`
}

// Clone returns a deep copy that stays stable while the original keeps
// mutating.
func (o *ModuleOutput) Clone() *ModuleOutput {
	if o == nil {
		return nil
	}
	c := *o
	c.Outputs = make(map[string]any, len(o.Outputs))
	for k, v := range o.Outputs {
		c.Outputs[k] = v
	}
	c.Worksheets = make(map[string]*WorksheetAnswers, len(o.Worksheets))
	for k, ws := range o.Worksheets {
		w := &WorksheetAnswers{Completed: ws.Completed, Fields: make(map[string]any, len(ws.Fields))}
		for fk, fv := range ws.Fields {
			w.Fields[fk] = fv
		}
		c.Worksheets[k] = w
	}
	c.Responses = make(map[string]string, len(o.Responses))
	for k, v := range o.Responses {
		c.Responses[k] = v
	}
	if o.Quiz != nil {
		q := *o.Quiz
		c.Quiz = &q
	}
	return &c
}

// StrategyNote is the free-text note scored by the rubric engine.
type StrategyNote struct {
	Thesis    string   `json:"thesis"`
	Evidence  []string `json:"evidence,omitempty"`
	Tradeoffs []string `json:"tradeoffs,omitempty"`
	Risks     []string `json:"risks,omitempty"`
	Decision  string   `json:"decision,omitempty"`
}

// ScoreBreakdown is the per-dimension rubric result, each 0..100.
type ScoreBreakdown struct {
	Specificity     int `json:"specificity"`
	Falsifiability  int `json:"falsifiability"`
	TradeoffClarity int `json:"tradeoff_clarity"`
	EvidenceLinkage int `json:"evidence_linkage"`
	RiskHonesty     int `json:"risk_honesty"`
}

// NoteScore is the rubric composite plus its breakdown.
type NoteScore struct {
	Score     int            `json:"score"`
	Breakdown ScoreBreakdown `json:"breakdown"`
}

// Warning flags a module whose recorded answers rest on an upstream
// assumption that no longer holds.
type Warning struct {
	ModuleID string `json:"module_id"`
	Upstream string `json:"upstream_module_id"`
	Message  string `json:"message"`
}

// Valuation is the directional metrics bundle. Values are illustrative,
// not a financial model.
type Valuation struct {
	Valuation    float64 `json:"valuation"`
	CAC          float64 `json:"cac"`
	QualityIndex float64 `json:"quality_index"`
	QuizIndex    float64 `json:"quiz_index"`
}

// TrajectoryPoint is one point of the profit-trajectory series.
type TrajectoryPoint struct {
	Label  string  `json:"label"`
	Profit float64 `json:"profit"`
}

// Event is one entry of the append-only activity log.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Snapshot is a persisted serialization of the answer store.
type Snapshot struct {
	ID        string `json:"id"`
	Data      string `json:"data_json"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// SnapshotInfo is the listing view of a snapshot.
type SnapshotInfo struct {
	ID        string `json:"id"`
	Bytes     int    `json:"bytes"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}
