package fact

import (
	"fmt"
	"time"
)

// Evidence dynamics. These constants are hand-tuned policy, preserved for
// behavioral compatibility; see DESIGN.md before changing them.
const (
	// ReinforcementGrowth multiplies confidence on an unweighted reinforce.
	ReinforcementGrowth = 1.1
	// MaxObservationWeight caps how much of confidence a single observed
	// confidence can replace.
	MaxObservationWeight = 0.5
	// ContradictionPenalty is subtracted from confidence per contradiction.
	ContradictionPenalty = 0.2
	// ContradictionFloor is the minimum confidence after a contradiction.
	// Contradiction alone never drives trust to zero.
	ContradictionFloor = 0.1
	// ObservationBonusCap bounds the validation-score observation bonus.
	ObservationBonusCap = 0.2
	// DeactivationMargin: once contradictions exceed reinforcements by more
	// than this, the fact goes permanently inactive.
	DeactivationMargin = 2
)

// ErrSuperseded is returned when evidence is applied to a superseded record.
// Callers that respect lifecycle flags never hit this.
var ErrSuperseded = fmt.Errorf("fact is superseded and cannot accept evidence")

// Reinforce records a confirmation of the fact without a fresh confidence
// estimate: confidence grows multiplicatively with diminishing returns near
// the ceiling.
func (f *Fact) Reinforce() error {
	return f.reinforce(nil)
}

// ReinforceWithConfidence records a confirmation carrying the analyzer's own
// confidence estimate, blended in with a weight that grows with the fact's
// reinforcement history (capped at half).
func (f *Fact) ReinforceWithConfidence(observed float64) error {
	return f.reinforce(&observed)
}

func (f *Fact) reinforce(observed *float64) error {
	if f.SupersededBy != nil {
		return ErrSuperseded
	}

	now := time.Now().UTC()
	f.TimesReinforced++
	f.TimesObserved++
	f.LastReinforced = now
	f.LastObserved = now

	if observed != nil {
		weight := float64(f.TimesReinforced) / 10.0
		if weight > MaxObservationWeight {
			weight = MaxObservationWeight
		}
		f.Confidence = weight*(*observed) + (1-weight)*f.Confidence
	} else {
		f.Confidence = f.Confidence * ReinforcementGrowth
	}
	if f.Confidence > 1.0 {
		f.Confidence = 1.0
	}

	f.ValidationScore = f.calculateValidationScore()
	f.UpdatedAt = now
	return nil
}

// Contradict records evidence against the fact. Confidence drops by a fixed
// penalty, floored above zero; a fact sufficiently net-contradicted is
// deactivated, and deactivation is sticky.
func (f *Fact) Contradict() error {
	if f.SupersededBy != nil {
		return ErrSuperseded
	}

	now := time.Now().UTC()
	f.TimesContradicted++
	f.TimesObserved++
	f.LastObserved = now

	f.Confidence -= ContradictionPenalty
	if f.Confidence < ContradictionFloor {
		f.Confidence = ContradictionFloor
	}

	f.ValidationScore = f.calculateValidationScore()

	if f.TimesContradicted > f.TimesReinforced+DeactivationMargin {
		f.IsActive = false
	}

	f.UpdatedAt = now
	return nil
}

// calculateValidationScore derives how well-corroborated the fact is from its
// evidence counters alone. Confidence never feeds into it.
func (f *Fact) calculateValidationScore() float64 {
	totalFeedback := f.TimesReinforced + f.TimesContradicted
	if totalFeedback == 0 {
		return 0.0
	}

	reinforcementRatio := float64(f.TimesReinforced) / float64(totalFeedback)

	observationBonus := float64(f.TimesObserved) / 10.0
	if observationBonus > ObservationBonusCap {
		observationBonus = ObservationBonusCap
	}

	score := reinforcementRatio + observationBonus
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// Absorb folds another record's evidence counters into this one additively,
// adopting the other's last-observed time when it is newer. Evidence is
// conserved: post-merge totals equal the sum across the group.
func (f *Fact) Absorb(other *Fact) {
	f.TimesObserved += other.TimesObserved
	f.TimesReinforced += other.TimesReinforced
	f.TimesContradicted += other.TimesContradicted
	if other.LastObserved.After(f.LastObserved) {
		f.LastObserved = other.LastObserved
	}
	f.UpdatedAt = time.Now().UTC()
}

// FinishMerge applies the post-fold survivor boost (the same diminishing
// growth as an unweighted reinforce) and refreshes the validation score.
func (f *Fact) FinishMerge() {
	f.Confidence = f.Confidence * ReinforcementGrowth
	if f.Confidence > 1.0 {
		f.Confidence = 1.0
	}
	f.ValidationScore = f.calculateValidationScore()
	f.UpdatedAt = time.Now().UTC()
}

// SupersedeWith marks the fact as replaced by another record. Superseded
// records are always inactive.
func (f *Fact) SupersedeWith(survivorID string) {
	f.IsActive = false
	f.SupersededBy = &survivorID
	f.UpdatedAt = time.Now().UTC()
}
