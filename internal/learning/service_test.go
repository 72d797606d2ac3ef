package learning

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/a-kowalski/mindkeep/internal/analysis"
	"github.com/a-kowalski/mindkeep/internal/config"
	"github.com/a-kowalski/mindkeep/internal/consolidate"
	"github.com/a-kowalski/mindkeep/internal/conversation"
	"github.com/a-kowalski/mindkeep/internal/fact"
	"github.com/a-kowalski/mindkeep/internal/logging"
	"github.com/a-kowalski/mindkeep/internal/profile"
	"github.com/a-kowalski/mindkeep/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)



type fakeAnalyzer struct {
	result *analysis.Result
	err    error
	calls  int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, turns []conversation.Turn) (*analysis.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func setupTestDB(t *testing.T) *storage.DB {
	t.Helper()
	cfg := &config.Config{
		DBPath: filepath.Join(t.TempDir(), "test.sqlite3"),
	}

	db, err := storage.NewDB(cfg)
	require.NoError(t, err, "Failed to create test database")
	t.Cleanup(func() { db.Close() })

	return db
}

func newTestService(t *testing.T, db *storage.DB, analyzer analysis.Analyzer) *Service {
	t.Helper()
	consolidator := consolidate.NewConsolidator(db, consolidate.Thresholds{
		RecentMessages: 1000,
		ActiveFacts:    1000,
	}, logging.NewNop())

	svc := NewService(db, analyzer, nil, consolidator, Options{
		Enabled:        true,
		UpdateInterval: 2,
	}, logging.NewNop())
	svc.dispatch = func(fn func()) { fn() }
	return svc
}

func turnPair(content string) []conversation.Turn {
	return []conversation.Turn{
		{MessageType: conversation.UserTurn, Content: content},
		{MessageType: conversation.AssistantTurn, Content: "noted"},
	}
}

func fullResult() *analysis.Result {
	formality := 0.9
	return &analysis.Result{
		PersonalFacts:            map[string]string{"city": "Berlin"},
		CommunicationPreferences: map[string]string{"tone": "casual"},
		TopicsOfInterest:         []string{"jazz", "cars"},
		ExpertiseAreas:           []string{"golang"},
		FormalityScore:           &formality,
		PreferredResponseLength:  "short",
	}
}

func TestProcessNewTurnsStoresAndTracksMetrics(t *testing.T) {
	db := setupTestDB(t)
	analyzer := &fakeAnalyzer{result: &analysis.Result{}}
	svc := newTestService(t, db, analyzer)

	err := svc.ProcessNewTurns(context.Background(), "user-1", []conversation.Turn{
		{MessageType: conversation.UserTurn, Content: "hello there"},
	})
	require.NoError(t, err)

	turns := conversation.NewStore(db)
	count, err := turns.CountByUser("user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	prof, err := profile.NewStore(db).Get("user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, prof.TotalMessages)
	assert.InDelta(t, 0.2*11, prof.AvgMessageLength, 1e-9)

	// Odd message count: no analysis cycle yet.
	assert.Zero(t, analyzer.calls)
}

func TestLearningUpdateCreatesFactsAndProfile(t *testing.T) {
	db := setupTestDB(t)
	analyzer := &fakeAnalyzer{result: fullResult()}
	svc := newTestService(t, db, analyzer)

	require.NoError(t, svc.ProcessNewTurns(context.Background(), "user-1", turnPair("I live in Berlin and love jazz")))
	assert.Equal(t, 1, analyzer.calls, "interval of 2 reached")

	facts := fact.NewStore(db)

	city, err := facts.ActiveByIdentity("user-1", fact.PersonalFact, "city")
	require.NoError(t, err)
	assert.Equal(t, "Berlin", city.Value)
	assert.Equal(t, 0.8, city.Confidence)
	require.NotNil(t, city.SourceConversationID)

	tone, err := facts.ActiveByIdentity("user-1", fact.CommunicationPreference, "tone")
	require.NoError(t, err)
	assert.Equal(t, 0.7, tone.Confidence)

	// Distinct topics coexist as separate records under the shared key.
	jazz, err := facts.ActiveByIdentityValue("user-1", fact.TopicInterest, "topic", "jazz")
	require.NoError(t, err)
	assert.Equal(t, 0.6, jazz.Confidence)
	_, err = facts.ActiveByIdentityValue("user-1", fact.TopicInterest, "topic", "cars")
	require.NoError(t, err)

	prof, err := profile.NewStore(db).Get("user-1")
	require.NoError(t, err)
	assert.Equal(t, "Berlin", prof.PersonalFacts["city"])
	assert.True(t, prof.TopicsOfInterest.Contains("jazz"))
	assert.True(t, prof.ExpertiseAreas.Contains("golang"))
	assert.InDelta(t, 0.3*0.9+0.7*0.5, prof.FormalityScore, 1e-9)
	assert.Equal(t, "short", prof.PreferredResponseLength)
}

func TestLearningUpdateReinforcesInsteadOfDuplicating(t *testing.T) {
	db := setupTestDB(t)
	analyzer := &fakeAnalyzer{result: fullResult()}
	svc := newTestService(t, db, analyzer)

	require.NoError(t, svc.ProcessNewTurns(context.Background(), "user-1", turnPair("first batch")))
	require.NoError(t, svc.ProcessNewTurns(context.Background(), "user-1", turnPair("second batch")))
	assert.Equal(t, 2, analyzer.calls)

	facts := fact.NewStore(db)

	city, err := facts.ActiveByIdentity("user-1", fact.PersonalFact, "city")
	require.NoError(t, err)
	assert.Equal(t, 1, city.TimesReinforced)
	assert.Equal(t, 2, city.TimesObserved)
	// Observed confidence equals current confidence; the blend is a no-op.
	assert.InDelta(t, 0.8, city.Confidence, 1e-9)

	// Still exactly one record per identity and per topic value.
	active, err := facts.ActiveByUser("user-1")
	require.NoError(t, err)
	assert.Len(t, active, 5)
}

func TestLearningUpdateAbortsOnAnalyzerFailure(t *testing.T) {
	db := setupTestDB(t)
	analyzer := &fakeAnalyzer{err: fmt.Errorf("provider unreachable")}
	svc := newTestService(t, db, analyzer)
	svc.opts.Enabled = false // seed turns without triggering

	require.NoError(t, svc.ProcessNewTurns(context.Background(), "user-1", turnPair("hello")))
	svc.opts.Enabled = true

	err := svc.RunLearningUpdate(context.Background(), "user-1")
	require.Error(t, err)

	facts := fact.NewStore(db)
	count, err := facts.CountActive("user-1")
	require.NoError(t, err)
	assert.Zero(t, count, "nothing committed")
}

func TestLearningUpdateTreatsMalformedAsEmpty(t *testing.T) {
	db := setupTestDB(t)
	analyzer := &fakeAnalyzer{err: fmt.Errorf("%w: no JSON object in response", analysis.ErrMalformed)}
	svc := newTestService(t, db, analyzer)
	svc.opts.Enabled = false
	require.NoError(t, svc.ProcessNewTurns(context.Background(), "user-1", turnPair("hello")))
	svc.opts.Enabled = true

	err := svc.RunLearningUpdate(context.Background(), "user-1")
	assert.NoError(t, err, "malformed output is an empty cycle, not a failure")

	count, err := fact.NewStore(db).CountActive("user-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRunLearningUpdateNoHistory(t *testing.T) {
	db := setupTestDB(t)
	analyzer := &fakeAnalyzer{result: fullResult()}
	svc := newTestService(t, db, analyzer)

	require.NoError(t, svc.RunLearningUpdate(context.Background(), "user-1"))
	assert.Zero(t, analyzer.calls)
}

func TestRecordFeedback(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db, &fakeAnalyzer{result: &analysis.Result{}})

	require.NoError(t, svc.RecordFeedback("user-1", "msg-42", true, "great answer"))

	facts := fact.NewStore(db)
	f, err := facts.ActiveByIdentity("user-1", fact.Feedback, "response_feedback_msg-42")
	require.NoError(t, err)
	assert.Equal(t, "helpful", f.Value)
	assert.Equal(t, 0.9, f.Confidence)
	assert.Equal(t, "great answer", f.Context)
	assert.Equal(t, "user_feedback", f.ExtractionMethod)

	require.NoError(t, svc.RecordFeedback("user-1", "msg-43", false, ""))
	f, err = facts.ActiveByIdentity("user-1", fact.Feedback, "response_feedback_msg-43")
	require.NoError(t, err)
	assert.Equal(t, "unhelpful", f.Value)
}

func TestResetProfileDeletesLearnedState(t *testing.T) {
	db := setupTestDB(t)
	analyzer := &fakeAnalyzer{result: fullResult()}
	svc := newTestService(t, db, analyzer)

	require.NoError(t, svc.ProcessNewTurns(context.Background(), "user-1", turnPair("learn about me")))

	deletedFacts, deletedSummaries, err := svc.ResetProfile(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), deletedFacts)
	assert.Equal(t, int64(0), deletedSummaries)

	prof, err := profile.NewStore(db).Get("user-1")
	require.NoError(t, err)
	assert.Empty(t, prof.PersonalFacts)
	assert.Zero(t, prof.TopicsOfInterest.Len())
	assert.Equal(t, 0.5, prof.FormalityScore)

	// Conversation history survives a reset.
	count, err := conversation.NewStore(db).CountByUser("user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSingleFlightDropsSecondTrigger(t *testing.T) {
	flight := newSingleFlight()

	require.True(t, flight.tryAcquire("user-1"))
	assert.False(t, flight.tryAcquire("user-1"))
	assert.True(t, flight.tryAcquire("user-2"), "users are independent")

	flight.release("user-1")
	assert.True(t, flight.tryAcquire("user-1"))
}

func TestGetLearningSummaryAndStats(t *testing.T) {
	db := setupTestDB(t)
	analyzer := &fakeAnalyzer{result: fullResult()}
	svc := newTestService(t, db, analyzer)

	require.NoError(t, svc.ProcessNewTurns(context.Background(), "user-1", turnPair("I live in Berlin")))

	summary, err := svc.GetLearningSummary("user-1")
	require.NoError(t, err)
	assert.Equal(t, "Berlin", summary.PersonalFacts["city"])
	assert.Equal(t, 2, summary.TotalMessages)
	assert.Equal(t, 1, summary.FactsByType[fact.PersonalFact].Count)
	assert.Equal(t, 2, summary.FactsByType[fact.TopicInterest].Count)
	assert.InDelta(t, 0.8, summary.FactsByType[fact.PersonalFact].AvgConfidence, 1e-9)

	stats, err := svc.GetStats("user-1")
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalFacts)
	assert.Equal(t, 5, stats.ActiveFacts)
	assert.Equal(t, 0, stats.HighConfidenceFacts, "fresh defaults sit at or below the strict 0.8 bar")
	assert.Equal(t, 2, stats.Conversations)
	assert.False(t, stats.ConsolidationRecommended)

	// A strongly confirmed fact clears the bar.
	require.NoError(t, fact.NewStore(db).Create(&fact.Fact{
		UserID: "user-1", Type: fact.PersonalFact, Key: "name", Value: "Alex",
		Confidence: 0.9,
	}))

	stats, err = svc.GetStats("user-1")
	require.NoError(t, err)
	assert.Equal(t, 6, stats.TotalFacts)
	assert.Equal(t, 1, stats.HighConfidenceFacts, "only the 0.9 fact clears the strict 0.8 bar")
}

func TestGetRelevantContext(t *testing.T) {
	db := setupTestDB(t)
	analyzer := &fakeAnalyzer{result: fullResult()}
	svc := newTestService(t, db, analyzer)

	require.NoError(t, svc.ProcessNewTurns(context.Background(), "user-1", turnPair("I live in Berlin and love jazz")))

	memoryContext := svc.GetRelevantContext("user-1", "any jazz recommendations?")
	assert.Contains(t, memoryContext, "Personal facts: city: Berlin")
	assert.Contains(t, memoryContext, "Communication preferences: tone: casual")
	assert.Contains(t, memoryContext, "topic: jazz")

	// Unknown user yields nothing at all.
	assert.Equal(t, "", svc.GetRelevantContext("stranger", "anything"))
}
