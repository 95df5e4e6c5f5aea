// Package rules holds the compiled decision-table representation produced
// by the Criteria Compiler and the CEL-backed evaluation engine that runs
// against it.
package rules

// Operator is a condition's comparison kind.
type Operator string

const (
	OpEquals      Operator = "=="
	OpNotEquals   Operator = "!="
	OpGreaterEq   Operator = ">="
	OpLessEq      Operator = "<="
	OpGreaterThan Operator = ">"
	OpLessThan    Operator = "<"
)

// Condition is a single field comparison within a rule row.
type Condition struct {
	Operator Operator
	Value    any
}

// Rule is one decision-table row: every condition must hold (AND) for the
// row to match, in which case Output is returned.
type Rule struct {
	Conditions map[string]Condition
	Output     bool
}

// DecisionTable is the normalized output of the Criteria Compiler: an
// ordered list of rule rows evaluated under "first" hit policy.
type DecisionTable struct {
	HitPolicy string
	Rules     []Rule
	// fieldNames is the deduplicated set of fields referenced anywhere in
	// Rules, used to default absent context fields to null before
	// evaluation (spec §4.2: "missing field in context is treated as null").
	fieldNames []string
}

// Empty reports whether the table has no rules (spec: "compiled-but-empty
// table evaluates to false").
func (t *DecisionTable) Empty() bool {
	return t == nil || len(t.Rules) == 0
}

// FieldNames returns the fields referenced by the table's conditions.
func (t *DecisionTable) FieldNames() []string {
	return t.fieldNames
}

// NewDecisionTable builds a table and derives its field-name index.
func NewDecisionTable(rules []Rule) *DecisionTable {
	seen := map[string]struct{}{}
	names := make([]string, 0)
	for _, r := range rules {
		for field := range r.Conditions {
			if _, ok := seen[field]; !ok {
				seen[field] = struct{}{}
				names = append(names, field)
			}
		}
	}
	return &DecisionTable{
		HitPolicy:  "first",
		Rules:      rules,
		fieldNames: names,
	}
}
