// Package domain holds the shared data model for the question-evaluation
// pipeline: sections, questions, entities, loan state and the response
// shapes assembled for a request.
package domain

import "time"

// EntityLevel is the scope a question applies to.
type EntityLevel string

const (
	LevelProposal        EntityLevel = "PROPOSAL"
	LevelBorrower         EntityLevel = "BORROWER"
	LevelJob               EntityLevel = "JOB"
	LevelAsset             EntityLevel = "ASSET"
	LevelLiability         EntityLevel = "LIABILITY"
	LevelProperty          EntityLevel = "PROPERTY"
	LevelRealEstateOwned    EntityLevel = "REAL_ESTATE_OWNED"
)

// EntityLevels is the fixed evaluation order used by the Question Evaluator (spec §4.6).
var EntityLevels = []EntityLevel{
	LevelProposal,
	LevelBorrower,
	LevelJob,
	LevelAsset,
	LevelLiability,
	LevelProperty,
	LevelRealEstateOwned,
}

// Singleton reports whether a level is treated as a single null-entity slot.
func (l EntityLevel) Singleton() bool {
	return l == LevelProposal || l == LevelProperty
}

// Flexibility describes how strictly the conversational layer must match answers.
type Flexibility string

const (
	FlexibilityExact         Flexibility = "exact"
	FlexibilityConversational Flexibility = "conversational"
	FlexibilityInferred      Flexibility = "inferred"
	FlexibilityOptional      Flexibility = "optional"
)

// InputKind is the conversational prompt's expected answer shape.
type InputKind string

// FormField maps a question answer onto a system-of-record column.
type FormField struct {
	Order       int    `yaml:"order" json:"order"`
	Label       string `yaml:"label" json:"label"`
	AccessField string `yaml:"access_field" json:"accessField"`
	Prepopulate bool   `yaml:"prepopulate" json:"prepopulate"`
}

// Section is a logical grouping of questions, ordered by Sequence.
type Section struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Sequence    int    `yaml:"sequence" json:"sequence"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// Question is a single conversational prompt bound to a compiled rule.
type Question struct {
	ID              string        `yaml:"id" json:"id"`
	Name            string        `yaml:"name" json:"name"`
	Section         string        `yaml:"section" json:"section"`
	Ordinal         int           `yaml:"ordinal" json:"ordinal"`
	Level           EntityLevel   `yaml:"level" json:"level"`
	Instructions    string        `yaml:"instructions" json:"instructions"`
	InputKind       InputKind     `yaml:"type" json:"type"`
	FormFields      []FormField   `yaml:"form_fields" json:"formFields"`
	Criteria        string        `yaml:"criteria" json:"-"`
	Flexibility     Flexibility   `yaml:"flexibility" json:"flexibility"`
	Options         []string      `yaml:"options" json:"options,omitempty"`
	CanCombineWith  []string      `yaml:"can_combine_with" json:"canCombineWith,omitempty"`
	ExtractionHints []string      `yaml:"extraction_hints" json:"extractionHints,omitempty"`

	// AlwaysApplicable is derived at load time: true when Criteria is empty.
	AlwaysApplicable bool `yaml:"-" json:"-"`
	// SourcePath is the YAML file this question was loaded from, used in error messages.
	SourcePath string `yaml:"-" json:"-"`
}

// RuleID is the identifier the question's compiled criteria is registered under.
func (q *Question) RuleID() string {
	return "question:" + q.ID
}

// EntityRef is an instance of a borrower, job, asset, liability, or owned property.
type EntityRef struct {
	Pid         string            `json:"pid"`
	DisplayName string            `json:"displayName"`
	Fields      map[string]any    `json:"fields"`
}

// EntityLists groups the five typed entity populations of a LoanState.
type EntityLists struct {
	Borrowers       []EntityRef `json:"borrowers"`
	Jobs            []EntityRef `json:"jobs"`
	Assets          []EntityRef `json:"assets"`
	Liabilities     []EntityRef `json:"liabilities"`
	RealEstateOwned []EntityRef `json:"realEstateOwned"`
}

// ForLevel returns the entity slots applicable to a level. Singleton levels
// (PROPOSAL, PROPERTY) return a single nil-fields slot representing the
// null entity.
func (e *EntityLists) ForLevel(level EntityLevel) []EntityRef {
	switch level {
	case LevelProposal, LevelProperty:
		return []EntityRef{{}}
	case LevelBorrower:
		return e.Borrowers
	case LevelJob:
		return e.Jobs
	case LevelAsset:
		return e.Assets
	case LevelLiability:
		return e.Liabilities
	case LevelRealEstateOwned:
		return e.RealEstateOwned
	default:
		return nil
	}
}

// LoanState is the full per-proposal working set.
type LoanState struct {
	ProposalPid string         `json:"proposalPid"`
	Version     int64          `json:"version"`
	LoadedAt    time.Time      `json:"loadedAt"`
	Fields      map[string]any `json:"fields"`
	Entities    EntityLists    `json:"entities"`
	Answered    map[string]struct{} `json:"-"`
}

// IsAnswered reports whether a question id is in the answered set.
func (s *LoanState) IsAnswered(questionID string) bool {
	_, ok := s.Answered[questionID]
	return ok
}

// AnsweredSlice returns Answered as a sorted-free slice for wire transport.
func (s *LoanState) AnsweredSlice() []string {
	out := make([]string, 0, len(s.Answered))
	for id := range s.Answered {
		out = append(out, id)
	}
	return out
}

// AnsweredFromSlice rebuilds the answered set from a wire sequence.
func AnsweredFromSlice(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

// QueueItem is a question instantiated against a specific entity.
type QueueItem struct {
	QuestionID        string      `json:"questionId"`
	EntityPid         string      `json:"entityPid,omitempty"`
	EntityDisplayName string      `json:"entityDisplayName,omitempty"`
	Section           string      `json:"-"`
	Ordinal           int         `json:"-"`
	Level             EntityLevel `json:"-"`
	RenderedText      string      `json:"renderedText"`
	InputKind         InputKind   `json:"inputKind"`
	Options           []string    `json:"options,omitempty"`
	AccessField       string      `json:"accessField"`
	Flexibility       Flexibility `json:"flexibility"`
	CanCombineWith    []string    `json:"-"`
}

// SectionStatus is a section's aggregate progress state.
type SectionStatus string

const (
	SectionPending    SectionStatus = "pending"
	SectionInProgress SectionStatus = "in_progress"
	SectionComplete   SectionStatus = "complete"
)

// SectionProgress carries per-section counters for a response.
type SectionProgress struct {
	SectionID string        `json:"sectionId"`
	Name      string        `json:"name"`
	Total     int           `json:"total"`
	Answered  int           `json:"answered"`
	Status    SectionStatus `json:"status"`
}

// QuestionQueueResponse is the shape returned by GetQuestions and SubmitAnswer.
type QuestionQueueResponse struct {
	Queue            []QueueItem       `json:"queue"`
	Sections         []SectionProgress `json:"sections"`
	CanAskTogether   [][]string        `json:"canAskTogether"`
	NextRecommended  string            `json:"nextRecommended"`
	StateVersion     int64             `json:"stateVersion"`
}
