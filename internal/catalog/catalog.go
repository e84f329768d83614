package catalog

import (
	"fmt"
	"sort"
)

// FieldType enumerates the value types a schema field may declare.
type FieldType string

const (
	FieldText   FieldType = "text"
	FieldNumber FieldType = "number"
	FieldSelect FieldType = "select"
)

// RuleKind is the closed set of consistency-rule conditions. Unknown kinds
// are rejected at load time; see Validate.
type RuleKind string

const (
	RulePremiumElasticity          RuleKind = "premium-elasticity"
	RuleNoDifferentiationHighPrice RuleKind = "no-differentiation-high-price"
	RuleAllHigh                    RuleKind = "all-high"
	RuleAllHighCopyability         RuleKind = "all-high-copyability"
	RuleConsistency                RuleKind = "consistency"
)

// PredicateKind is the closed set of dependency predicates.
type PredicateKind string

const (
	PredicateEquals  PredicateKind = "equals"
	PredicateClass   PredicateKind = "class"
	PredicatePresent PredicateKind = "present"
)

type OutputDef struct {
	ID      string    `yaml:"id" json:"id"`
	Label   string    `yaml:"label" json:"label"`
	Type    FieldType `yaml:"type" json:"type"`
	Options []string  `yaml:"options,omitempty" json:"options,omitempty"`
}

type FieldDef struct {
	ID      string    `yaml:"id" json:"id"`
	Label   string    `yaml:"label" json:"label"`
	Type    FieldType `yaml:"type" json:"type"`
	Options []string  `yaml:"options,omitempty" json:"options,omitempty"`
}

type WorksheetDef struct {
	ID     string     `yaml:"id" json:"id"`
	Title  string     `yaml:"title" json:"title"`
	Fields []FieldDef `yaml:"fields" json:"fields"`
}

type QuizQuestion struct {
	Prompt    string   `yaml:"prompt" json:"prompt"`
	Options   []string `yaml:"options" json:"options"`
	Answer    int      `yaml:"answer" json:"answer"`
	Rationale string   `yaml:"rationale,omitempty" json:"rationale,omitempty"`
}

type Quiz struct {
	Questions []QuizQuestion `yaml:"questions" json:"questions"`
}

// Rule declares a consistency check over a module's own fields.
type Rule struct {
	Kind    RuleKind `yaml:"kind" json:"kind"`
	Field1  string   `yaml:"field1" json:"field1"`
	Field2  string   `yaml:"field2,omitempty" json:"field2,omitempty"`
	Message string   `yaml:"message" json:"message"`
}

// Dependency declares that a module's validity assumes an upstream module's
// field satisfies a predicate.
type Dependency struct {
	Module    string        `yaml:"module" json:"module"`
	Field     string        `yaml:"field" json:"field"`
	Predicate PredicateKind `yaml:"predicate" json:"predicate"`
	Value     string        `yaml:"value,omitempty" json:"value,omitempty"`
	Message   string        `yaml:"message" json:"message"`
}

type Module struct {
	ID         string         `yaml:"id" json:"id"`
	Ordinal    int            `yaml:"ordinal" json:"ordinal"`
	Pillar     string         `yaml:"pillar" json:"pillar"`
	Title      string         `yaml:"title" json:"title"`
	Outputs    []OutputDef    `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	Worksheets []WorksheetDef `yaml:"worksheets,omitempty" json:"worksheets,omitempty"`
	Quiz       *Quiz          `yaml:"quiz,omitempty" json:"quiz,omitempty"`
	Challenge  string         `yaml:"challenge,omitempty" json:"challenge,omitempty"`
	Rules      []Rule         `yaml:"rules,omitempty" json:"rules,omitempty"`
	DependsOn  []Dependency   `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
}

// Pushback is one of the fixed boardroom-pushback prompts.
type Pushback struct {
	ID     string `yaml:"id" json:"id"`
	Prompt string `yaml:"prompt" json:"prompt"`
}

// Catalog models the full curriculum content file.
type Catalog struct {
	Name      string     `yaml:"name" json:"name"`
	Modules   []Module   `yaml:"modules" json:"modules"`
	Pushbacks []Pushback `yaml:"pushbacks,omitempty" json:"pushbacks,omitempty"`
}

// Module returns the module with the given id.
func (c *Catalog) Module(id string) (*Module, bool) {
	for i := range c.Modules {
		if c.Modules[i].ID == id {
			return &c.Modules[i], true
		}
	}
	return nil, false
}

// Ordered returns modules sorted by ordinal.
func (c *Catalog) Ordered() []Module {
	out := make([]Module, len(c.Modules))
	copy(out, c.Modules)
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out
}

// Output returns the required-output definition with the given id.
func (m *Module) Output(id string) (OutputDef, bool) {
	for _, o := range m.Outputs {
		if o.ID == id {
			return o, true
		}
	}
	return OutputDef{}, false
}

// Worksheet returns the worksheet definition with the given id.
func (m *Module) Worksheet(id string) (WorksheetDef, bool) {
	for _, w := range m.Worksheets {
		if w.ID == id {
			return w, true
		}
	}
	return WorksheetDef{}, false
}

// Field returns a field definition within a worksheet.
func (w WorksheetDef) Field(id string) (FieldDef, bool) {
	for _, f := range w.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return FieldDef{}, false
}

// classTokens maps each semantic value class to the substrings that place
// a value in it. Matching is case-insensitive containment.
var classTokens = map[string][]string{
	"premium":  {"premium", "high"},
	"low-cost": {"low", "value", "budget"},
	"niche":    {"niche", "specialist"},
}

// ClassTokens returns the match tokens for a semantic value class.
func ClassTokens(name string) ([]string, bool) {
	tokens, ok := classTokens[name]
	return tokens, ok
}

var ruleKinds = map[RuleKind]bool{
	RulePremiumElasticity:          true,
	RuleNoDifferentiationHighPrice: true,
	RuleAllHigh:                    true,
	RuleAllHighCopyability:         true,
	RuleConsistency:                true,
}

var predicateKinds = map[PredicateKind]bool{
	PredicateEquals:  true,
	PredicateClass:   true,
	PredicatePresent: true,
}

// Validate ensures the catalog meets required structure. Rule and predicate
// kinds are checked against the closed sets so a typo in authored content
// fails here instead of silently never firing.
func (c *Catalog) Validate() error {
	if len(c.Modules) == 0 {
		return fmt.Errorf("catalog has no modules")
	}
	seen := map[string]bool{}
	ordinals := map[int]bool{}
	for _, m := range c.Modules {
		if m.ID == "" {
			return fmt.Errorf("module with empty id")
		}
		if seen[m.ID] {
			return fmt.Errorf("duplicate module id %s", m.ID)
		}
		seen[m.ID] = true
		if ordinals[m.Ordinal] {
			return fmt.Errorf("module %s reuses ordinal %d", m.ID, m.Ordinal)
		}
		ordinals[m.Ordinal] = true
		if err := validateFields(m); err != nil {
			return fmt.Errorf("module %s: %w", m.ID, err)
		}
	}
	for _, m := range c.Modules {
		for _, r := range m.Rules {
			if !ruleKinds[r.Kind] {
				return fmt.Errorf("module %s declares unknown rule kind %q", m.ID, r.Kind)
			}
			if r.Field1 == "" {
				return fmt.Errorf("module %s rule %s missing field1", m.ID, r.Kind)
			}
			if r.Message == "" {
				return fmt.Errorf("module %s rule %s missing message", m.ID, r.Kind)
			}
		}
		for _, d := range m.DependsOn {
			if !predicateKinds[d.Predicate] {
				return fmt.Errorf("module %s declares unknown predicate %q", m.ID, d.Predicate)
			}
			if !seen[d.Module] {
				return fmt.Errorf("module %s depends on unknown module %s", m.ID, d.Module)
			}
			if d.Module == m.ID {
				return fmt.Errorf("module %s depends on itself", m.ID)
			}
			if d.Field == "" {
				return fmt.Errorf("module %s dependency on %s missing field", m.ID, d.Module)
			}
		}
	}
	for _, p := range c.Pushbacks {
		if p.ID == "" || p.Prompt == "" {
			return fmt.Errorf("pushback entries require id and prompt")
		}
	}
	return nil
}

func validateFields(m Module) error {
	check := func(id string, ft FieldType, options []string) error {
		switch ft {
		case FieldText, FieldNumber:
			return nil
		case FieldSelect:
			if len(options) == 0 {
				return fmt.Errorf("select field %s has no options", id)
			}
			return nil
		default:
			return fmt.Errorf("field %s has unknown type %q", id, ft)
		}
	}
	for _, o := range m.Outputs {
		if o.ID == "" {
			return fmt.Errorf("output with empty id")
		}
		if err := check(o.ID, o.Type, o.Options); err != nil {
			return err
		}
	}
	for _, w := range m.Worksheets {
		if w.ID == "" {
			return fmt.Errorf("worksheet with empty id")
		}
		for _, f := range w.Fields {
			if f.ID == "" {
				return fmt.Errorf("worksheet %s has field with empty id", w.ID)
			}
			if err := check(f.ID, f.Type, f.Options); err != nil {
				return err
			}
		}
	}
	if m.Quiz != nil {
		for i, q := range m.Quiz.Questions {
			if len(q.Options) < 2 {
				return fmt.Errorf("quiz question %d needs at least two options", i)
			}
			if q.Answer < 0 || q.Answer >= len(q.Options) {
				return fmt.Errorf("quiz question %d answer index out of range", i)
			}
		}
	}
	return nil
}
