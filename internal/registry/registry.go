// Package registry implements the Configuration Registry (spec §4.3): it
// loads the section/question descriptor tree, compiles each question's
// criteria, and installs the compiled decision into the Rules Engine.
package registry

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/nickflorez-ai/arla-engine/internal/criteria"
	"github.com/nickflorez-ai/arla-engine/internal/domain"
	"github.com/nickflorez-ai/arla-engine/internal/rules"
)

// Registry is the read-only, fully loaded configuration: three O(1) on-read
// indexes built once at startup (spec §4.3). Partial startup is forbidden —
// Load either returns a complete Registry or a fatal error.
type Registry struct {
	byID           map[string]*domain.Question
	byLevel        map[domain.EntityLevel][]*domain.Question
	sectionsSorted []domain.Section
}

// Load scans rootPath for sections/*.yaml and questions/**/*.yaml, compiles
// every question's criteria via internal/criteria, and installs each
// resulting table into engine under "question:<id>". Any error here is
// fatal to the caller (spec §4.3: "missing required field, criteria
// compile error, rule install failure" all abort startup).
func Load(rootPath string, engine *rules.Engine, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sections, err := loadSections(rootPath)
	if err != nil {
		return nil, err
	}

	defaults, err := loadQuestionDefaults(rootPath)
	if err != nil {
		return nil, err
	}

	questions, err := loadQuestions(rootPath, defaults)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*domain.Question, len(questions))
	for _, q := range questions {
		if _, dup := byID[q.ID]; dup {
			return nil, &ValidationError{File: q.SourcePath, Field: "id", Err: fmt.Errorf("%w: %s", ErrDuplicateQuestionID, q.ID)}
		}
		byID[q.ID] = q

		table, err := criteria.Compile(q.Criteria, q.SourcePath)
		if err != nil {
			return nil, err
		}
		if err := engine.Compile(q.RuleID(), table); err != nil {
			return nil, err
		}
	}

	sectionSequence := make(map[string]int, len(sections))
	for _, s := range sections {
		sectionSequence[s.ID] = s.Sequence
	}

	byLevel := make(map[domain.EntityLevel][]*domain.Question)
	for _, q := range questions {
		byLevel[q.Level] = append(byLevel[q.Level], q)
	}
	for level, list := range byLevel {
		sorted := list
		sort.SliceStable(sorted, func(i, j int) bool {
			si, sj := sectionSequence[sorted[i].Section], sectionSequence[sorted[j].Section]
			if si != sj {
				return si < sj
			}
			return sorted[i].Ordinal < sorted[j].Ordinal
		})
		byLevel[level] = sorted
	}

	sectionsSorted := append([]domain.Section(nil), sections...)
	sort.SliceStable(sectionsSorted, func(i, j int) bool {
		return sectionsSorted[i].Sequence < sectionsSorted[j].Sequence
	})

	logger.Info("registry: loaded configuration", "sections", len(sectionsSorted), "questions", len(byID))

	return &Registry{
		byID:           byID,
		byLevel:        byLevel,
		sectionsSorted: sectionsSorted,
	}, nil
}

// Question returns a question by id.
func (r *Registry) Question(id string) (*domain.Question, error) {
	q, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrQuestionNotFound, id)
	}
	return q, nil
}

// QuestionsForLevel returns the questions applicable to an entity level,
// pre-sorted by section sequence then ordinal.
func (r *Registry) QuestionsForLevel(level domain.EntityLevel) []*domain.Question {
	return r.byLevel[level]
}

// Sections returns all sections ordered by sequence.
func (r *Registry) Sections() []domain.Section {
	return r.sectionsSorted
}

// QuestionCount reports how many questions are registered, used by the
// process readiness check alongside Engine.RulesCount (SPEC_FULL.md §C).
func (r *Registry) QuestionCount() int {
	return len(r.byID)
}
