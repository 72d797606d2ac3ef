package relevance

import (
	"testing"
	"time"

	"github.com/a-kowalski/mindkeep/internal/fact"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractKeywords(t *testing.T) {
	keywords := ExtractKeywords("Tell me about the jazz clubs in my city")
	assert.Equal(t, []string{"tell", "about", "jazz", "clubs", "city"}, keywords)

	// Duplicates collapse, case folds.
	keywords = ExtractKeywords("Jazz jazz JAZZ")
	assert.Equal(t, []string{"jazz"}, keywords)

	// Stop words and short tokens only.
	assert.Empty(t, ExtractKeywords("it is my as to"))
	assert.Empty(t, ExtractKeywords(""))
}

func TestScoreBounds(t *testing.T) {
	now := time.Now().UTC()

	// Best case: full keyword match, fresh, certain, bonused type.
	best := &fact.Fact{
		Type:         fact.PersonalFact,
		Key:          "city",
		Value:        "Berlin",
		Confidence:   1.0,
		LastObserved: now,
	}
	assert.Equal(t, 1.0, Score(best, []string{"berlin"}, now))

	// Worst case: no match, stale beyond the window, zero confidence.
	worst := &fact.Fact{
		Type:         fact.TopicInterest,
		Key:          "topic",
		Value:        "gardening",
		Confidence:   0.0,
		LastObserved: now.Add(-45 * 24 * time.Hour),
	}
	assert.Equal(t, 0.0, Score(worst, []string{"quantum"}, now))
}

func TestScoreRecencyDecay(t *testing.T) {
	now := time.Now().UTC()
	f := &fact.Fact{
		Type:       fact.TopicInterest,
		Key:        "topic",
		Value:      "jazz",
		Confidence: 0.5,
	}

	f.LastObserved = now.Add(-15 * 24 * time.Hour)
	halfway := Score(f, nil, now)
	// recency 0.5*0.2 + confidence 0.5*0.2
	assert.InDelta(t, 0.2, halfway, 1e-9)

	f.LastObserved = now.Add(-60 * 24 * time.Hour)
	stale := Score(f, nil, now)
	assert.InDelta(t, 0.1, stale, 1e-9)
}

func TestTopKRanksByQueryMatch(t *testing.T) {
	now := time.Now().UTC()
	jazz := &fact.Fact{
		ID: "jazz", Type: fact.TopicInterest, Key: "topic", Value: "jazz",
		Confidence: 0.6, LastObserved: now, IsActive: true,
	}
	cars := &fact.Fact{
		ID: "cars", Type: fact.TopicInterest, Key: "topic", Value: "cars",
		Confidence: 0.6, LastObserved: now, IsActive: true,
	}

	results := TopK([]*fact.Fact{cars, jazz}, "any good jazz records lately?", 5, now)
	require.Len(t, results, 2)
	assert.Equal(t, "jazz", results[0].Fact.ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestTopKCutoffAndLimit(t *testing.T) {
	now := time.Now().UTC()

	// Scores exactly at the cutoff are dropped: stale, no match, 0.5 conf
	// topic fact scores 0.1.
	borderline := &fact.Fact{
		ID: "old", Type: fact.TopicInterest, Key: "topic", Value: "gardening",
		Confidence: 0.5, LastObserved: now.Add(-40 * 24 * time.Hour),
	}
	fresh := &fact.Fact{
		ID: "fresh", Type: fact.PersonalFact, Key: "city", Value: "Berlin",
		Confidence: 0.9, LastObserved: now,
	}

	results := TopK([]*fact.Fact{borderline, fresh}, "what is the weather", 5, now)
	require.Len(t, results, 1)
	assert.Equal(t, "fresh", results[0].Fact.ID)

	// Limit trims after ranking.
	results = TopK([]*fact.Fact{fresh, fresh, fresh}, "berlin", 2, now)
	assert.Len(t, results, 2)
}

func TestTopKTieBreaksOnRecency(t *testing.T) {
	now := time.Now().UTC()
	// Both beyond the recency window: recency terms are zero, scores tie
	// exactly, and only last-observed separates them.
	older := &fact.Fact{
		ID: "older", Type: fact.TopicInterest, Key: "topic", Value: "jazz",
		Confidence: 0.6, LastObserved: now.Add(-40 * 24 * time.Hour),
	}
	newer := &fact.Fact{
		ID: "newer", Type: fact.TopicInterest, Key: "topic", Value: "jazz",
		Confidence: 0.6, LastObserved: now.Add(-35 * 24 * time.Hour),
	}

	results := TopK([]*fact.Fact{older, newer}, "jazz", 5, now)
	require.Len(t, results, 2)
	assert.Equal(t, "newer", results[0].Fact.ID)
}
