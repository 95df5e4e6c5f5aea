// Package queuebuilder implements the Queue Builder and Answer Handler
// (spec §4.7): assembling the sorted, grouped response the transport layer
// returns, and applying a submitted answer end to end.
package queuebuilder

import (
	"sort"

	"github.com/nickflorez-ai/arla-engine/internal/domain"
	"github.com/nickflorez-ai/arla-engine/internal/registry"
)

// Build sorts the Evaluator's unordered queue items, computes per-section
// progress, groups consecutive combinable items, and assembles the
// response returned to the caller (spec §4.7 "Queue Builder").
func Build(reg *registry.Registry, items []domain.QueueItem, state *domain.LoanState) domain.QuestionQueueResponse {
	sectionSequence := make(map[string]int, len(reg.Sections()))
	for _, s := range reg.Sections() {
		sectionSequence[s.ID] = s.Sequence
	}

	sorted := append([]domain.QueueItem(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		si, sj := sectionSequence[sorted[i].Section], sectionSequence[sorted[j].Section]
		if si != sj {
			return si < sj
		}
		if sorted[i].Ordinal != sorted[j].Ordinal {
			return sorted[i].Ordinal < sorted[j].Ordinal
		}
		return sorted[i].EntityPid < sorted[j].EntityPid
	})

	return domain.QuestionQueueResponse{
		Queue:           sorted,
		Sections:        sectionProgress(reg, sorted, state),
		CanAskTogether:  canAskTogetherGroups(sorted),
		NextRecommended: nextRecommended(sorted),
		StateVersion:    state.Version,
	}
}

// sectionProgress computes total/answered/status per section (spec §4.7).
func sectionProgress(reg *registry.Registry, queue []domain.QueueItem, state *domain.LoanState) []domain.SectionProgress {
	totalBySection := map[string]int{}
	answeredBySection := map[string]int{}
	for _, level := range domain.EntityLevels {
		// Non-singleton levels count once per already-loaded entity so
		// "total" reflects this proposal's actual fan-out.
		slots := len(state.Entities.ForLevel(level))
		for _, q := range reg.QuestionsForLevel(level) {
			totalBySection[q.Section] += slots
			if state.IsAnswered(q.ID) {
				answeredBySection[q.Section] += slots
			}
		}
	}

	out := make([]domain.SectionProgress, 0, len(reg.Sections()))
	for _, s := range reg.Sections() {
		total := totalBySection[s.ID]
		answered := answeredBySection[s.ID]
		status := domain.SectionInProgress
		switch {
		case total > 0 && answered == total:
			status = domain.SectionComplete
		case answered == 0:
			status = domain.SectionPending
		}
		out = append(out, domain.SectionProgress{
			SectionID: s.ID,
			Name:      s.Name,
			Total:     total,
			Answered:  answered,
			Status:    status,
		})
	}
	return out
}

// canAskTogetherGroups scans the ordered queue for runs of consecutive
// items sharing section, entity level, and flexibility, where each item
// lists the previous item's question id in its canCombineWith (spec §4.7).
func canAskTogetherGroups(queue []domain.QueueItem) [][]string {
	var groups [][]string
	var current []string

	flush := func() {
		if len(current) >= 2 {
			groups = append(groups, current)
		}
		current = nil
	}

	for i, item := range queue {
		if i == 0 {
			current = []string{item.QuestionID}
			continue
		}
		prev := queue[i-1]
		if item.Section == prev.Section && item.Level == prev.Level && item.Flexibility == prev.Flexibility && contains(item.CanCombineWith, prev.QuestionID) {
			current = append(current, item.QuestionID)
			continue
		}
		flush()
		current = []string{item.QuestionID}
	}
	flush()
	return groups
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

func nextRecommended(queue []domain.QueueItem) string {
	if len(queue) == 0 {
		return ""
	}
	return queue[0].QuestionID
}
