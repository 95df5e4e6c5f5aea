// Package loanstate implements the State Loader (spec §4.4): resolving a
// proposalPid into a fully populated domain.LoanState by reading the
// system of record.
package loanstate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nickflorez-ai/arla-engine/internal/criteria"
	"github.com/nickflorez-ai/arla-engine/internal/domain"
	"github.com/nickflorez-ai/arla-engine/internal/sor/postgres"
)

// Loader resolves proposalPid -> domain.LoanState from the system of
// record.
type Loader struct {
	sor *postgres.Client
}

// NewLoader builds a Loader over a system-of-record client.
func NewLoader(sor *postgres.Client) *Loader {
	return &Loader{sor: sor}
}

// Load runs the four-step resolution in spec §4.4: proposal, then deal
// borrowers, then (in parallel) the four child collections plus the
// property row, then the answered-question set.
func (l *Loader) Load(ctx context.Context, proposalPid string) (*domain.LoanState, error) {
	proposal, err := l.sor.FetchProposal(ctx, proposalPid)
	if err != nil {
		return nil, err
	}

	borrowerRows, err := l.sor.FetchBorrowers(ctx, proposal.DealPid)
	if err != nil {
		return nil, fmt.Errorf("loanstate: fetch borrowers: %w", err)
	}

	borrowerPids := make([]string, 0, len(borrowerRows))
	borrowers := make([]domain.EntityRef, 0, len(borrowerRows))
	for _, b := range borrowerRows {
		borrowerPids = append(borrowerPids, b.Pid)
		borrowers = append(borrowers, domain.EntityRef{
			Pid:         b.Pid,
			DisplayName: displayName(b.FirstName, b.LastName),
			Fields:      normalizeFields(b.Fields),
		})
	}

	children, err := l.sor.FetchChildCollections(ctx, proposal.DealPid, borrowerPids)
	if err != nil {
		return nil, fmt.Errorf("loanstate: fetch child collections: %w", err)
	}

	answeredIDs, err := l.sor.FetchAnsweredQuestionIDs(ctx, proposal.DealPid)
	if err != nil {
		return nil, fmt.Errorf("loanstate: fetch answered questions: %w", err)
	}

	fields := normalizeFields(proposal.LoanFields)
	for k, v := range normalizeFields(children.property) {
		fields["property_"+k] = v
	}

	return &domain.LoanState{
		ProposalPid: proposalPid,
		Version:     time.Now().UnixNano(),
		LoadedAt:    time.Now(),
		Fields:      fields,
		Entities: domain.EntityLists{
			Borrowers:       borrowers,
			Jobs:            withNormalizedFields(children.jobs),
			Assets:          withNormalizedFields(children.assets),
			Liabilities:     withNormalizedFields(children.liabilities),
			RealEstateOwned: withNormalizedFields(children.realEstateOwned),
		},
		Answered: domain.AnsweredFromSlice(answeredIDs),
	}, nil
}

// displayName composes "first last", trimmed, falling back to a
// placeholder when both are empty (spec §4.4 normalization).
func displayName(first, last string) string {
	name := strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
	if name == "" {
		return "Unnamed borrower"
	}
	return name
}

// normalizeFields applies the same field-name normalization used by the
// Criteria Compiler (lowercase, whitespace/hyphen -> underscore) so that
// evaluation-context lookups join against compiled criteria field names
// (spec §4.1: "applied identically at load-context construction time").
func normalizeFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[criteria.NormalizeField(k)] = v
	}
	return out
}

func withNormalizedFields(entities []domain.EntityRef) []domain.EntityRef {
	out := make([]domain.EntityRef, len(entities))
	for i, e := range entities {
		out[i] = domain.EntityRef{Pid: e.Pid, DisplayName: e.DisplayName, Fields: normalizeFields(e.Fields)}
	}
	return out
}
