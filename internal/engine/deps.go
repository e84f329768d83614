package engine

import (
	"fmt"
	"strconv"
	"strings"

	"stratline/internal/answers"
	"stratline/internal/catalog"
	"stratline/internal/domain"
)

// CheckDependencies evaluates every declared upstream edge of the module
// against the current store. A failed predicate yields a warning; an
// upstream module with no recorded value for the field is unresolved and
// yields nothing. Nothing is mutated; warnings disappear on their own once
// the upstream value is corrected.
func CheckDependencies(cat *catalog.Catalog, st *answers.Store, moduleID string) []domain.Warning {
	m, ok := cat.Module(moduleID)
	if !ok {
		return nil
	}
	var warnings []domain.Warning
	for _, dep := range m.DependsOn {
		violated, ok := evaluateEdge(cat, st, dep)
		if !ok || !violated {
			continue
		}
		msg := dep.Message
		if msg == "" {
			msg = fmt.Sprintf("assumption on %s.%s no longer holds", dep.Module, dep.Field)
		}
		warnings = append(warnings, domain.Warning{
			ModuleID: moduleID,
			Upstream: dep.Module,
			Message:  msg,
		})
	}
	return warnings
}

// InvalidatedModules aggregates, across completed modules, those with at
// least one violated upstream edge.
func InvalidatedModules(cat *catalog.Catalog, st *answers.Store) map[string][]domain.Warning {
	invalidated := map[string][]domain.Warning{}
	for _, m := range cat.Ordered() {
		out, ok := st.Modules[m.ID]
		if !ok || !out.Completed {
			continue
		}
		if ws := CheckDependencies(cat, st, m.ID); len(ws) > 0 {
			invalidated[m.ID] = ws
		}
	}
	return invalidated
}

// evaluateEdge returns (violated, resolved). An unresolved edge (missing
// upstream output, missing field value, or a malformed declaration) is
// skipped rather than treated as a violation.
func evaluateEdge(cat *catalog.Catalog, st *answers.Store, dep catalog.Dependency) (bool, bool) {
	out, ok := st.Modules[dep.Module]
	if !ok {
		return false, false
	}
	up, ok := cat.Module(dep.Module)
	if !ok {
		return false, false
	}
	value, ok := fieldValue(out, up.Worksheets, dep.Field)
	if !ok {
		return false, false
	}
	switch dep.Predicate {
	case catalog.PredicateEquals:
		return !strings.EqualFold(strings.TrimSpace(value), strings.TrimSpace(dep.Value)), true
	case catalog.PredicateClass:
		tokens, ok := catalog.ClassTokens(strings.ToLower(dep.Value))
		if !ok {
			return false, false
		}
		lowered := strings.ToLower(value)
		for _, tok := range tokens {
			if strings.Contains(lowered, tok) {
				return false, true
			}
		}
		return true, true
	case catalog.PredicatePresent:
		return strings.TrimSpace(value) == "", true
	default:
		return false, false
	}
}

// fieldValue resolves a field id against a module's outputs first, then
// its worksheets in declared order, returning the string form of the
// recorded value.
func fieldValue(out *domain.ModuleOutput, worksheets []catalog.WorksheetDef, fieldID string) (string, bool) {
	if v, ok := out.Outputs[fieldID]; ok {
		return stringify(v), true
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
	return "", false
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
