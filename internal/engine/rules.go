package engine

import (
	"strings"

	"stratline/internal/catalog"
	"stratline/internal/domain"
)

// AllHighThreshold is the number of distinct "high" values a worksheet may
// carry before the all-high conditions fire. Preserved as-is; see the
// catalog authors before changing it.
const AllHighThreshold = 2

// EvaluateRules runs the module's declared consistency rules against its
// recorded values and returns advisory messages. Field references resolve
// against the module's worksheets in declared order first, then its
// required outputs. Rules with unresolvable references are skipped;
// unknown kinds are a no-op (the catalog rejects them at load time, but
// snapshots replayed against newer content stay quiet).
func EvaluateRules(out *domain.ModuleOutput, m *catalog.Module) []string {
	if out == nil || m == nil {
		return nil
	}
	var messages []string
	for _, r := range m.Rules {
		if violated(out, m.Worksheets, r) {
			messages = append(messages, r.Message)
		}
	}
	return messages
}

func violated(out *domain.ModuleOutput, worksheets []catalog.WorksheetDef, r catalog.Rule) bool {
	switch r.Kind {
	case catalog.RulePremiumElasticity:
		v1, ok1 := ruleValue(out, worksheets, r.Field1)
		v2, ok2 := ruleValue(out, worksheets, r.Field2)
		return ok1 && ok2 && v1 == "Premium Brand" && v2 == "High"
	case catalog.RuleNoDifferentiationHighPrice:
		v1, ok := ruleValue(out, worksheets, r.Field1)
		if !ok || v1 != "High" {
			return false
		}
		v2, ok := ruleValue(out, worksheets, r.Field2)
		return !ok || strings.TrimSpace(v2) == ""
	case catalog.RuleAllHigh, catalog.RuleAllHighCopyability:
		ws, ok := out.Worksheets[r.Field1]
		if !ok {
			return false
		}
		count := 0
		for _, v := range ws.Fields {
			if strings.Contains(strings.ToLower(stringify(v)), "high") {
				count++
			}
		}
		return count > AllHighThreshold
	case catalog.RuleConsistency:
		v1, ok1 := ruleValue(out, worksheets, r.Field1)
		v2, ok2 := ruleValue(out, worksheets, r.Field2)
		if !ok1 || !ok2 {
			return false
		}
		l1, l2 := strings.ToLower(v1), strings.ToLower(v2)
		return strings.Contains(l1, "premium") &&
			(strings.Contains(l2, "none") || strings.Contains(l2, "low"))
	default:
		return false
	}
}

// ruleValue resolves a rule field reference: worksheets in the order the
// catalog declares them, then required outputs. Walking the declared
// order keeps resolution deterministic when two worksheets share a field
// id.
func ruleValue(out *domain.ModuleOutput, worksheets []catalog.WorksheetDef, fieldID string) (string, bool) {
	if fieldID == "" {
		return "", false
	}
	for _, def := range worksheets {
		wa, ok := out.Worksheets[def.ID]
		if !ok {
			continue
		}
		if v, ok := wa.Fields[fieldID]; ok {
			return stringify(v), true
		}
	}
	if v, ok := out.Outputs[fieldID]; ok {
		return stringify(v), true
	}
	return "", false
}
