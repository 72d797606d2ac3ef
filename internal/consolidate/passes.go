package consolidate

import (
	"sort"
	"time"

	"github.com/a-kowalski/mindkeep/internal/fact"
)

// Archival policy: weak, stale, net-contradicted facts go inactive.
const (
	ArchiveConfidenceThreshold = 0.3
	ArchiveStaleAfter          = 30 * 24 * time.Hour
)

// MergeDuplicates partitions active facts by (learning_type, key) and folds
// each multi-record group into a single survivor. Returns the records it
// changed; groups of size one are untouched, so the pass is idempotent:
// after one run every loser is inactive and no group can exceed size one.
func MergeDuplicates(facts []*fact.Fact) []*fact.Fact {
	type identity struct {
		learningType fact.LearningType
		key          string
	}

	groups := make(map[identity][]*fact.Fact)
	var order []identity
	for _, f := range facts {
		if !f.IsActive {
			continue
		}
		id := identity{f.Type, f.Key}
		if _, seen := groups[id]; !seen {
			order = append(order, id)
		}
		groups[id] = append(groups[id], f)
	}

	var changed []*fact.Fact
	for _, id := range order {
		group := groups[id]
		if len(group) < 2 {
			continue
		}

		// Survivor: highest confidence, earliest creation on ties.
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].Confidence == group[j].Confidence {
				return group[i].CreatedAt.Before(group[j].CreatedAt)
			}
			return group[i].Confidence > group[j].Confidence
		})

		survivor := group[0]
		for _, loser := range group[1:] {
			survivor.Absorb(loser)
			loser.SupersedeWith(survivor.ID)
			changed = append(changed, loser)
		}
		survivor.FinishMerge()
		changed = append(changed, survivor)
	}

	return changed
}

// ShouldArchive reports whether a fact meets every archival condition:
// still active, weak confidence, stale beyond the window, and contradicted
// more often than reinforced.
func ShouldArchive(f *fact.Fact, now time.Time) bool {
	return f.IsActive &&
		f.Confidence < ArchiveConfidenceThreshold &&
		now.Sub(f.LastObserved) > ArchiveStaleAfter &&
		f.TimesContradicted > f.TimesReinforced
}

// ArchiveStale deactivates facts meeting the archival conditions and returns
// the records it changed. Confidence and counters are never touched here.
func ArchiveStale(facts []*fact.Fact, now time.Time) []*fact.Fact {
	var changed []*fact.Fact
	for _, f := range facts {
		if ShouldArchive(f, now) {
			f.IsActive = false
			f.UpdatedAt = now
			changed = append(changed, f)
		}
	}
	return changed
}
