package learning

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/a-kowalski/mindkeep/internal/analysis"
	"github.com/a-kowalski/mindkeep/internal/consolidate"
	"github.com/a-kowalski/mindkeep/internal/conversation"
	"github.com/a-kowalski/mindkeep/internal/fact"
	"github.com/a-kowalski/mindkeep/internal/llm"
	"github.com/a-kowalski/mindkeep/internal/memctx"
	"github.com/a-kowalski/mindkeep/internal/profile"
	"github.com/a-kowalski/mindkeep/internal/relevance"
	"github.com/a-kowalski/mindkeep/internal/storage"
	"github.com/a-kowalski/mindkeep/internal/summary"
	"go.uber.org/zap"
)

// Options configures the learning service's trigger policy.
type Options struct {
	// Enabled gates all learning side effects.
	Enabled bool
	// UpdateInterval runs a learning-update cycle every N total messages.
	UpdateInterval int
	// AnalysisWindow is how many trailing turns feed the analyzer.
	AnalysisWindow int
	// AnalysisTimeout bounds one analyzer invocation.
	AnalysisTimeout time.Duration
}

// Service orchestrates the learning pipeline: per-message profile metrics,
// periodic analysis with create-or-reinforce fact updates, and consolidation
// dispatch. All evidence-affecting work for one user is serialized through a
// per-user single-flight guard.
type Service struct {
	db           *storage.DB
	facts        *fact.Store
	profiles     *profile.Store
	turns        *conversation.Store
	summaries    *summary.Store
	analyzer     analysis.Analyzer
	provider     llm.Provider
	consolidator *consolidate.Consolidator
	ctxBuilder   *memctx.Builder
	opts         Options
	logger       *zap.Logger

	flight *singleFlight

	// dispatch runs background work off the caller's critical path.
	// Overridable in tests to run synchronously.
	dispatch func(fn func())
}

// NewService wires the learning orchestrator.
func NewService(
	db *storage.DB,
	analyzer analysis.Analyzer,
	provider llm.Provider,
	consolidator *consolidate.Consolidator,
	opts Options,
	logger *zap.Logger,
) *Service {
	if opts.UpdateInterval <= 0 {
		opts.UpdateInterval = 10
	}
	if opts.AnalysisWindow <= 0 {
		opts.AnalysisWindow = 20
	}
	if opts.AnalysisTimeout <= 0 {
		opts.AnalysisTimeout = time.Minute
	}
	return &Service{
		db:           db,
		facts:        fact.NewStore(db),
		profiles:     profile.NewStore(db),
		turns:        conversation.NewStore(db),
		summaries:    summary.NewStore(db),
		analyzer:     analyzer,
		provider:     provider,
		consolidator: consolidator,
		ctxBuilder:   memctx.NewBuilder(db, logger),
		opts:         opts,
		logger:       logger,
		flight:       newSingleFlight(),
		dispatch:     func(fn func()) { go fn() },
	}
}

// ProcessNewTurns persists a batch of conversation turns, updates the cheap
// per-message profile metrics inline, and dispatches any triggered learning
// or consolidation work off the critical path. Trigger failures are logged,
// never returned: learning is a side effect of the conversation, not a
// dependency of it.
func (s *Service) ProcessNewTurns(ctx context.Context, userID string, turns []conversation.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	for i := range turns {
		turns[i].UserID = userID
		if err := s.turns.Append(&turns[i]); err != nil {
			return fmt.Errorf("failed to store turn: %w", err)
		}
	}

	prof, err := s.profiles.GetOrCreate(userID)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}

	prof.RecordInteraction(len(turns))
	prof.UpdateMessageMetrics(turns)
	if err := s.profiles.Update(prof); err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	if !s.opts.Enabled {
		return nil
	}

	if prof.TotalMessages%s.opts.UpdateInterval == 0 {
		s.dispatch(func() {
			if err := s.RunLearningUpdate(context.Background(), userID); err != nil {
				s.logger.Error("learning update failed",
					zap.String("user_id", userID), zap.Error(err))
			}
		})
	}

	shouldConsolidate, err := s.consolidator.ShouldConsolidate(userID)
	if err != nil {
		s.logger.Error("consolidation check failed",
			zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	if shouldConsolidate {
		s.dispatch(func() {
			if _, err := s.TriggerConsolidation(context.Background(), userID); err != nil {
				s.logger.Error("consolidation failed",
					zap.String("user_id", userID), zap.Error(err))
			}
		})
	}

	return nil
}

// RunLearningUpdate performs one analysis cycle: call the analyzer on the
// recent window, then commit profile and fact updates in one transaction.
// An analyzer failure aborts the cycle with nothing committed; the next
// periodic trigger is the retry mechanism.
func (s *Service) RunLearningUpdate(ctx context.Context, userID string) error {
	if !s.flight.tryAcquire(userID) {
		// Another cycle is already in flight for this user; drop, don't queue.
		return nil
	}
	defer s.flight.release(userID)

	window, err := s.turns.RecentByUser(userID, s.opts.AnalysisWindow)
	if err != nil {
		return fmt.Errorf("failed to load conversation window: %w", err)
	}
	if len(window) == 0 {
		return nil
	}

	analysisCtx, cancel := context.WithTimeout(ctx, s.opts.AnalysisTimeout)
	defer cancel()

	result, err := s.analyzer.Analyze(analysisCtx, window)
	if err != nil {
		if errors.Is(err, analysis.ErrMalformed) {
			// Nothing learned this cycle; not a failure worth surfacing.
			s.logger.Warn("discarding malformed analysis output",
				zap.String("user_id", userID), zap.Error(err))
			return nil
		}
		return fmt.Errorf("analysis failed: %w", err)
	}
	if result.IsEmpty() {
		return nil
	}

	var sourceID *string
	if last := window[len(window)-1]; last.ID != "" {
		id := last.ID
		sourceID = &id
	}

	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		txProfiles := s.profiles.WithTx(tx)
		prof, err := txProfiles.GetOrCreate(userID)
		if err != nil {
			return err
		}
		prof.ApplyAnalysis(result)
		if err := txProfiles.Update(prof); err != nil {
			return err
		}

		return s.storeLearnedFacts(tx, userID, result, sourceID)
	})
}

// storeLearnedFacts applies create-or-reinforce semantics for every fact the
// analysis reported.
func (s *Service) storeLearnedFacts(tx *sql.Tx, userID string, result *analysis.Result, sourceID *string) error {
	txFacts := s.facts.WithTx(tx)

	for key, value := range result.PersonalFacts {
		err := s.upsertFact(txFacts, userID, fact.PersonalFact, key, value,
			"Learned from conversation analysis", sourceID)
		if err != nil {
			return err
		}
	}
	for key, value := range result.CommunicationPreferences {
		err := s.upsertFact(txFacts, userID, fact.CommunicationPreference, key, value,
			"Inferred communication preference", sourceID)
		if err != nil {
			return err
		}
	}
	for _, topic := range result.TopicsOfInterest {
		err := s.upsertFact(txFacts, userID, fact.TopicInterest, "topic", topic,
			"Topic mentioned in conversation", sourceID)
		if err != nil {
			return err
		}
	}
	for _, area := range result.ExpertiseAreas {
		err := s.upsertFact(txFacts, userID, fact.ExpertiseArea, "area", area,
			"Expertise shown in conversation", sourceID)
		if err != nil {
			return err
		}
	}
	return nil
}

// upsertFact reinforces the existing active fact for the identity, or creates
// a new one. Set-like types (topics, expertise) share a key across distinct
// values, so their lookup must match on the value too; otherwise every new
// topic would overwrite the last.
func (s *Service) upsertFact(store *fact.Store, userID string, learningType fact.LearningType, key, value string, context string, sourceID *string) error {
	valueScoped := learningType == fact.TopicInterest || learningType == fact.ExpertiseArea

	var existing *fact.Fact
	var err error
	if valueScoped {
		existing, err = store.ActiveByIdentityValue(userID, learningType, key, value)
	} else {
		existing, err = store.ActiveByIdentity(userID, learningType, key)
	}
	if err != nil && err != fact.ErrNotFound {
		return err
	}

	if existing != nil {
		if err := existing.ReinforceWithConfidence(learningType.DefaultConfidence()); err != nil {
			return err
		}
		if !valueScoped {
			existing.Value = value
		}
		return store.Update(existing)
	}

	return store.Create(&fact.Fact{
		UserID:               userID,
		Type:                 learningType,
		Key:                  key,
		Value:                value,
		Context:              context,
		SourceConversationID: sourceID,
	})
}

// TriggerConsolidation runs one consolidation cycle for the user under the
// single-flight guard. A trigger arriving while one runs is dropped and
// returns a nil report.
func (s *Service) TriggerConsolidation(ctx context.Context, userID string) (*consolidate.Report, error) {
	if !s.flight.tryAcquire(userID) {
		return nil, nil
	}
	defer s.flight.release(userID)

	return s.consolidator.Consolidate(ctx, userID)
}

// GetRelevantContext renders the memory context string for the next prompt.
// Never fails; storage trouble degrades the context instead.
func (s *Service) GetRelevantContext(userID, query string) string {
	return s.ctxBuilder.Build(userID, query)
}

// RelevantFacts returns the query-scored active facts without formatting.
func (s *Service) RelevantFacts(userID, query string, limit int) ([]relevance.Scored, error) {
	return s.ctxBuilder.RelevantFacts(userID, query, limit)
}

// RecordFeedback stores explicit user feedback on a response as a fact
// record, so repeated signals reinforce like any other evidence.
func (s *Service) RecordFeedback(userID, messageID string, helpful bool, text string) error {
	value := "helpful"
	if !helpful {
		value = "unhelpful"
	}
	return s.facts.Create(&fact.Fact{
		UserID:           userID,
		Type:             fact.Feedback,
		Key:              "response_feedback_" + messageID,
		Value:            value,
		Context:          text,
		ExtractionMethod: "user_feedback",
	})
}

// CreateNarrativeSummary generates a free-text summary of the recent
// conversation through the text-generation provider and stores it. Requires
// a configured provider and a meaningful amount of history.
func (s *Service) CreateNarrativeSummary(ctx context.Context, userID string, messageCount int) error {
	if s.provider == nil {
		return fmt.Errorf("no text-generation provider configured")
	}
	if messageCount <= 0 {
		messageCount = 50
	}

	turns, err := s.turns.RecentByUser(userID, messageCount)
	if err != nil {
		return err
	}
	if len(turns) < consolidate.SummaryMinMessages {
		return fmt.Errorf("not enough conversation history to summarize")
	}

	var sb strings.Builder
	for _, turn := range turns {
		speaker := "User"
		if turn.MessageType == conversation.AssistantTurn {
			speaker = "Assistant"
		}
		fmt.Fprintf(&sb, "%s: %s\n", speaker, turn.Content)
	}

	prompt := fmt.Sprintf(`Please provide a concise summary of this conversation, highlighting:
1. Main topics discussed
2. Key information shared by the user
3. Any notable preferences or patterns

Conversation:
%s

Provide a structured summary in 2-3 paragraphs.`, sb.String())

	text, err := s.provider.Complete(ctx,
		"You are a helpful assistant that creates concise conversation summaries.", prompt)
	if err != nil {
		return fmt.Errorf("summary generation failed: %w", err)
	}

	return s.summaries.Create(&summary.Summary{
		UserID:          userID,
		Text:            text,
		StartTime:       turns[0].Timestamp,
		EndTime:         turns[len(turns)-1].Timestamp,
		MessageCount:    len(turns),
		SummaryType:     "manual",
		ConfidenceScore: 0.5,
	})
}

// ResetProfile hard-resets everything learned about the user: fact records
// and summaries are deleted, the profile's aggregates and metrics return to
// their initial values. Conversation history is retained.
func (s *Service) ResetProfile(ctx context.Context, userID string) (deletedFacts, deletedSummaries int64, err error) {
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		deletedFacts, err = s.facts.WithTx(tx).DeleteByUser(userID)
		if err != nil {
			return err
		}
		deletedSummaries, err = s.summaries.WithTx(tx).DeleteByUser(userID)
		if err != nil {
			return err
		}

		txProfiles := s.profiles.WithTx(tx)
		prof, err := txProfiles.Get(userID)
		if err == profile.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		prof.Reset()
		return txProfiles.Update(prof)
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to reset profile: %w", err)
	}

	s.logger.Info("profile reset",
		zap.String("user_id", userID),
		zap.Int64("deleted_facts", deletedFacts),
		zap.Int64("deleted_summaries", deletedSummaries),
	)
	return deletedFacts, deletedSummaries, nil
}
