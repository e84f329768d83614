package catalog_test

import (
	"strings"
	"testing"

	"stratline/internal/catalog"
)

func TestDefaultCatalogLoads(t *testing.T) {
	cat := catalog.Default()
	if len(cat.Modules) == 0 {
		t.Fatalf("default catalog has no modules")
	}
	ordered := cat.Ordered()
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Ordinal <= ordered[i-1].Ordinal {
			t.Fatalf("modules not ordered: %d after %d", ordered[i].Ordinal, ordered[i-1].Ordinal)
		}
	}
	if _, ok := cat.Module("positioning"); !ok {
		t.Fatalf("positioning module missing")
	}
}

func TestUnknownRuleKindRejected(t *testing.T) {
	yaml := `
name: test
modules:
  - id: m1
    ordinal: 1
    pillar: p
    title: One
    outputs:
      - {id: o1, label: O1, type: text}
    rules:
      - {kind: totally-made-up, field1: o1, message: nope}
`
	_, err := catalog.FromYAML([]byte(yaml))
	if err == nil {
		t.Fatalf("expected error for unknown rule kind")
	}
	if !strings.Contains(err.Error(), "unknown rule kind") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUnknownPredicateRejected(t *testing.T) {
	yaml := `
name: test
modules:
  - id: m1
    ordinal: 1
    pillar: p
    title: One
    outputs:
      - {id: o1, label: O1, type: text}
  - id: m2
    ordinal: 2
    pillar: p
    title: Two
    depends_on:
      - {module: m1, field: o1, predicate: vibes, message: nope}
`
	_, err := catalog.FromYAML([]byte(yaml))
	if err == nil {
		t.Fatalf("expected error for unknown predicate")
	}
	if !strings.Contains(err.Error(), "unknown predicate") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSelfDependencyRejected(t *testing.T) {
	yaml := `
name: test
modules:
  - id: m1
    ordinal: 1
    pillar: p
    title: One
    outputs:
      - {id: o1, label: O1, type: text}
    depends_on:
      - {module: m1, field: o1, predicate: present, message: nope}
`
	if _, err := catalog.FromYAML([]byte(yaml)); err == nil {
		t.Fatalf("expected error for self dependency")
	}
}

func TestSelectFieldNeedsOptions(t *testing.T) {
	yaml := `
name: test
modules:
  - id: m1
    ordinal: 1
    pillar: p
    title: One
    outputs:
      - {id: o1, label: O1, type: select}
`
	if _, err := catalog.FromYAML([]byte(yaml)); err == nil {
		t.Fatalf("expected error for select without options")
	}
}
