// Package criteria compiles the human-readable criteria DSL (spec §4.1)
// into a normalized rules.DecisionTable.
package criteria

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nickflorez-ai/arla-engine/internal/rules"
)

// CompileError is raised when a criteria string cannot be compiled. It is
// tagged with the source file path so the Configuration Registry can report
// a useful fatal-startup message (spec §4.1, §4.3).
type CompileError struct {
	SourcePath string
	Line       string
	Err        error
}

func (e *CompileError) Error() string {
	if e.Line != "" {
		return fmt.Sprintf("criteria: %s: line %q: %v", e.SourcePath, e.Line, e.Err)
	}
	return fmt.Sprintf("criteria: %s: %v", e.SourcePath, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

const (
	headerAll = "Matches all of the following rules:"
	headerAny = "Matches any of the following rules:"
)

var (
	numericValue = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	fieldNonWord = regexp.MustCompile(`[\s\-]+`)

	reIsNotSet = regexp.MustCompile(`^(.+?)\s+is not set$`)
	reIsNot    = regexp.MustCompile(`^(.+?)\s+is not\s+(.+)$`)
	reIs       = regexp.MustCompile(`^(.+?)\s+is\s+(.+)$`)
	reCompare  = regexp.MustCompile(`^(.+?)\s*(>=|<=|>|<)\s*(.+)$`)
)

// NormalizeField lowercases a field name and collapses whitespace/hyphens
// to underscores. Applied identically at criteria-compile time and at
// evaluation-context construction time (spec §4.1, §4.6) so lookups join.
func NormalizeField(name string) string {
	name = strings.TrimSpace(name)
	name = fieldNonWord.ReplaceAllString(name, "_")
	return strings.ToLower(name)
}

// normalizeValue converts a criteria-literal right-hand side into its typed
// form: boolean, number, or uppercased/underscored string.
func normalizeValue(raw string) any {
	raw = strings.TrimSpace(raw)
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	if numericValue.MatchString(raw) {
		f, err := strconv.ParseFloat(raw, 64)
		if err == nil {
			return f
		}
	}
	normalized := fieldNonWord.ReplaceAllString(raw, "_")
	return strings.ToUpper(normalized)
}

// Compile parses a criteria string into a decision table. sourcePath is
// used only to tag compile errors.
func Compile(criteria string, sourcePath string) (*rules.DecisionTable, error) {
	trimmed := strings.TrimSpace(criteria)
	if trimmed == "" {
		return rules.NewDecisionTable(nil), nil
	}

	lines := splitNonEmptyLines(criteria)

	switch strings.TrimSpace(lines[0]) {
	case headerAll:
		body := lines[1:]
		if len(body) == 0 {
			return nil, &CompileError{SourcePath: sourcePath, Line: lines[0], Err: fmt.Errorf("%q header has no following rule lines", headerAll)}
		}
		conditions := map[string]rules.Condition{}
		for _, line := range body {
			field, cond, err := parseLine(strings.TrimSpace(line))
			if err != nil {
				return nil, &CompileError{SourcePath: sourcePath, Line: line, Err: err}
			}
			conditions[field] = cond
		}
		return rules.NewDecisionTable([]rules.Rule{{Conditions: conditions, Output: true}}), nil

	case headerAny:
		body := lines[1:]
		if len(body) == 0 {
			return nil, &CompileError{SourcePath: sourcePath, Line: lines[0], Err: fmt.Errorf("%q header has no following rule lines", headerAny)}
		}
		rows := make([]rules.Rule, 0, len(body))
		for _, line := range body {
			field, cond, err := parseLine(strings.TrimSpace(line))
			if err != nil {
				return nil, &CompileError{SourcePath: sourcePath, Line: line, Err: err}
			}
			rows = append(rows, rules.Rule{Conditions: map[string]rules.Condition{field: cond}, Output: true})
		}
		return rules.NewDecisionTable(rows), nil

	default:
		// No header: each non-empty line is its own OR'd rule row. For the
		// common single-line case this degenerates to one rule.
		rows := make([]rules.Rule, 0, len(lines))
		for _, line := range lines {
			field, cond, err := parseLine(strings.TrimSpace(line))
			if err != nil {
				return nil, &CompileError{SourcePath: sourcePath, Line: line, Err: err}
			}
			rows = append(rows, rules.Rule{Conditions: map[string]rules.Condition{field: cond}, Output: true})
		}
		return rules.NewDecisionTable(rows), nil
	}
}

func splitNonEmptyLines(criteria string) []string {
	raw := strings.Split(criteria, "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, l)
	}
	return out
}

// parseLine parses a single grammar line into a normalized field and
// condition. Unrecognized lines are a hard compile error (spec §9 Open
// Question, resolved in SPEC_FULL.md §C).
func parseLine(line string) (string, rules.Condition, error) {
	if m := reIsNotSet.FindStringSubmatch(line); m != nil {
		return NormalizeField(m[1]), rules.Condition{Operator: rules.OpEquals, Value: nil}, nil
	}
	if m := reCompare.FindStringSubmatch(line); m != nil {
		field, op, rhs := m[1], m[2], strings.TrimSpace(m[3])
		if !numericValue.MatchString(rhs) {
			return "", rules.Condition{}, fmt.Errorf("non-numeric right-hand side %q for comparison operator %q", rhs, op)
		}
		f, err := strconv.ParseFloat(rhs, 64)
		if err != nil {
			return "", rules.Condition{}, fmt.Errorf("invalid numeric value %q: %w", rhs, err)
		}
		var operator rules.Operator
		switch op {
		case ">=":
			operator = rules.OpGreaterEq
		case "<=":
			operator = rules.OpLessEq
		case ">":
			operator = rules.OpGreaterThan
		case "<":
			operator = rules.OpLessThan
		}
		return NormalizeField(field), rules.Condition{Operator: operator, Value: f}, nil
	}
	if m := reIsNot.FindStringSubmatch(line); m != nil {
		return NormalizeField(m[1]), rules.Condition{Operator: rules.OpNotEquals, Value: normalizeValue(m[2])}, nil
	}
	if m := reIs.FindStringSubmatch(line); m != nil {
		return NormalizeField(m[1]), rules.Condition{Operator: rules.OpEquals, Value: normalizeValue(m[2])}, nil
	}
	return "", rules.Condition{}, fmt.Errorf("unrecognized criteria line")
}
