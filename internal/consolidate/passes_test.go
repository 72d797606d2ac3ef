package consolidate

import (
	"testing"
	"time"

	"github.com/a-kowalski/mindkeep/internal/fact"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeFact(id string, learningType fact.LearningType, key string, confidence float64) *fact.Fact {
	now := time.Now().UTC()
	return &fact.Fact{
		ID:           id,
		UserID:       "user-1",
		Type:         learningType,
		Key:          key,
		Value:        "v-" + id,
		Confidence:   confidence,
		IsActive:     true,
		LastObserved: now,
		CreatedAt:    now,
	}
}

func TestMergeDuplicatesFoldsEvidence(t *testing.T) {
	strong := activeFact("strong", fact.PersonalFact, "city", 0.9)
	strong.TimesObserved = 1
	strong.TimesReinforced = 1

	weak := activeFact("weak", fact.PersonalFact, "city", 0.6)
	weak.TimesObserved = 2
	weak.TimesReinforced = 1
	weak.TimesContradicted = 1

	unrelated := activeFact("solo", fact.TopicInterest, "topic", 0.6)

	changed := MergeDuplicates([]*fact.Fact{weak, strong, unrelated})
	require.Len(t, changed, 2)

	// Evidence is conserved across the group.
	assert.Equal(t, 3, strong.TimesObserved)
	assert.Equal(t, 2, strong.TimesReinforced)
	assert.Equal(t, 1, strong.TimesContradicted)
	assert.InDelta(t, 0.99, strong.Confidence, 1e-9)
	assert.True(t, strong.IsActive)

	assert.False(t, weak.IsActive)
	require.NotNil(t, weak.SupersededBy)
	assert.Equal(t, "strong", *weak.SupersededBy)

	// Singleton groups are never touched.
	assert.Nil(t, unrelated.SupersededBy)
	assert.True(t, unrelated.IsActive)
}

func TestMergeDuplicatesIdempotent(t *testing.T) {
	a := activeFact("a", fact.PersonalFact, "city", 0.9)
	b := activeFact("b", fact.PersonalFact, "city", 0.6)
	c := activeFact("c", fact.PersonalFact, "city", 0.5)

	first := MergeDuplicates([]*fact.Fact{a, b, c})
	assert.Len(t, first, 3)

	// Second run sees one active record per identity; nothing changes.
	second := MergeDuplicates([]*fact.Fact{a, b, c})
	assert.Empty(t, second)
	assert.InDelta(t, 0.99, a.Confidence, 1e-9, "no double boost")
}

func TestMergeDuplicatesTieBreaksOnCreation(t *testing.T) {
	older := activeFact("older", fact.PersonalFact, "city", 0.8)
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	newer := activeFact("newer", fact.PersonalFact, "city", 0.8)

	MergeDuplicates([]*fact.Fact{newer, older})

	assert.True(t, older.IsActive)
	assert.False(t, newer.IsActive)
	require.NotNil(t, newer.SupersededBy)
	assert.Equal(t, "older", *newer.SupersededBy)
}

func TestShouldArchiveRequiresEveryCondition(t *testing.T) {
	now := time.Now().UTC()

	candidate := activeFact("f", fact.TopicInterest, "topic", 0.2)
	candidate.LastObserved = now.Add(-31 * 24 * time.Hour)
	candidate.TimesContradicted = 2
	candidate.TimesReinforced = 1
	assert.True(t, ShouldArchive(candidate, now))

	// Recently observed: stays.
	recent := activeFact("f", fact.TopicInterest, "topic", 0.2)
	recent.LastObserved = now.Add(-5 * 24 * time.Hour)
	recent.TimesContradicted = 2
	recent.TimesReinforced = 1
	assert.False(t, ShouldArchive(recent, now))

	// Confident: stays.
	confident := activeFact("f", fact.TopicInterest, "topic", 0.8)
	confident.LastObserved = now.Add(-31 * 24 * time.Hour)
	confident.TimesContradicted = 2
	confident.TimesReinforced = 1
	assert.False(t, ShouldArchive(confident, now))

	// Net-reinforced: stays.
	supported := activeFact("f", fact.TopicInterest, "topic", 0.2)
	supported.LastObserved = now.Add(-31 * 24 * time.Hour)
	supported.TimesContradicted = 1
	supported.TimesReinforced = 1
	assert.False(t, ShouldArchive(supported, now))

	// Already inactive: not a candidate.
	inactive := activeFact("f", fact.TopicInterest, "topic", 0.2)
	inactive.IsActive = false
	inactive.LastObserved = now.Add(-31 * 24 * time.Hour)
	inactive.TimesContradicted = 2
	assert.False(t, ShouldArchive(inactive, now))
}

func TestArchiveStaleDeactivatesWithoutTouchingEvidence(t *testing.T) {
	now := time.Now().UTC()
	doomed := activeFact("doomed", fact.TopicInterest, "topic", 0.2)
	doomed.LastObserved = now.Add(-31 * 24 * time.Hour)
	doomed.TimesContradicted = 3
	doomed.TimesReinforced = 1

	keeper := activeFact("keeper", fact.PersonalFact, "city", 0.9)

	changed := ArchiveStale([]*fact.Fact{doomed, keeper}, now)
	require.Len(t, changed, 1)

	assert.False(t, doomed.IsActive)
	assert.InDelta(t, 0.2, doomed.Confidence, 1e-9)
	assert.Equal(t, 3, doomed.TimesContradicted)
	assert.Nil(t, doomed.SupersededBy, "archival is not supersession")
	assert.True(t, keeper.IsActive)
}
