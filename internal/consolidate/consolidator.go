package consolidate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/a-kowalski/mindkeep/internal/conversation"
	"github.com/a-kowalski/mindkeep/internal/fact"
	"github.com/a-kowalski/mindkeep/internal/storage"
	"github.com/a-kowalski/mindkeep/internal/summary"
	"go.uber.org/zap"
)

// Summary policy.
const (
	// SummaryMinMessages is the minimum window size worth summarizing.
	SummaryMinMessages = 10
	// SummaryWindow is how far back the recent-summary window reaches.
	SummaryWindow = 24 * time.Hour
	// SummaryGuardWindow prevents stacking a second summary over a window
	// that was already covered (slightly wider than the window itself).
	SummaryGuardWindow = 25 * time.Hour
	// summaryConfidence is the fixed confidence of a statistical summary.
	summaryConfidence = 0.7
)

// Thresholds holds the volume/staleness trigger configuration.
type Thresholds struct {
	// RecentMessages triggers consolidation when more messages than this
	// arrived in the last 24 hours.
	RecentMessages int
	// ActiveFacts triggers consolidation when the active fact count
	// exceeds it.
	ActiveFacts int
}

// Report summarizes one consolidation run.
type Report struct {
	UserID         string        `json:"user_id"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
	Merged         int           `json:"merged"`
	Archived       int           `json:"archived"`
	SummaryCreated bool          `json:"summary_created"`
}

// Consolidator runs the maintenance cycle: recent summary, duplicate merge,
// then stale archival, all inside one transaction so a failed pass leaves
// no partial state visible.
type Consolidator struct {
	db         *storage.DB
	facts      *fact.Store
	turns      *conversation.Store
	summaries  *summary.Store
	thresholds Thresholds
	logger     *zap.Logger
}

// NewConsolidator wires a consolidator over the shared database.
func NewConsolidator(db *storage.DB, thresholds Thresholds, logger *zap.Logger) *Consolidator {
	return &Consolidator{
		db:         db,
		facts:      fact.NewStore(db),
		turns:      conversation.NewStore(db),
		summaries:  summary.NewStore(db),
		thresholds: thresholds,
		logger:     logger,
	}
}

// ShouldConsolidate checks the volume and staleness triggers for a user.
func (c *Consolidator) ShouldConsolidate(userID string) (bool, error) {
	recentMessages, err := c.turns.CountSince(userID, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		return false, fmt.Errorf("failed to count recent messages: %w", err)
	}
	if recentMessages > c.thresholds.RecentMessages {
		return true, nil
	}

	activeFacts, err := c.facts.CountActive(userID)
	if err != nil {
		return false, fmt.Errorf("failed to count active facts: %w", err)
	}
	return activeFacts > c.thresholds.ActiveFacts, nil
}

// Consolidate runs the full cycle for one user. Safe to re-run: the summary
// is guarded by a recency check and the merge/archival passes are no-ops on
// an already-settled store.
func (c *Consolidator) Consolidate(ctx context.Context, userID string) (*Report, error) {
	report := &Report{
		UserID:    userID,
		StartedAt: time.Now().UTC(),
	}

	err := c.db.WithTx(ctx, func(tx *sql.Tx) error {
		created, err := c.createRecentSummary(tx, userID)
		if err != nil {
			return fmt.Errorf("summary pass failed: %w", err)
		}
		report.SummaryCreated = created

		txFacts := c.facts.WithTx(tx)
		active, err := txFacts.ActiveByUser(userID)
		if err != nil {
			return fmt.Errorf("failed to load active facts: %w", err)
		}

		merged := MergeDuplicates(active)
		for _, f := range merged {
			if err := txFacts.Update(f); err != nil {
				return fmt.Errorf("merge pass failed: %w", err)
			}
		}
		report.Merged = len(merged)

		archived := ArchiveStale(active, time.Now().UTC())
		for _, f := range archived {
			if err := txFacts.Update(f); err != nil {
				return fmt.Errorf("archival pass failed: %w", err)
			}
		}
		report.Archived = len(archived)

		return nil
	})
	if err != nil {
		return nil, err
	}

	report.Duration = time.Since(report.StartedAt)
	c.logger.Info("memory consolidation completed",
		zap.String("user_id", userID),
		zap.Int("merged", report.Merged),
		zap.Int("archived", report.Archived),
		zap.Bool("summary_created", report.SummaryCreated),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// createRecentSummary compacts the last day of conversation into a summary
// record, skipping small windows and windows already covered.
func (c *Consolidator) createRecentSummary(tx *sql.Tx, userID string) (bool, error) {
	now := time.Now().UTC()
	txTurns := c.turns.WithTx(tx)
	txSummaries := c.summaries.WithTx(tx)

	recent, err := txTurns.Since(userID, now.Add(-SummaryWindow))
	if err != nil {
		return false, err
	}
	if len(recent) < SummaryMinMessages {
		return false, nil
	}

	covered, err := txSummaries.ExistsCovering(userID, now.Add(-SummaryGuardWindow))
	if err != nil {
		return false, err
	}
	if covered {
		return false, nil
	}

	topics := map[string]struct{}{}
	totalWords := 0
	for _, turn := range recent {
		totalWords += len(strings.Fields(turn.Content))
		for _, topic := range turn.Topics {
			topics[topic] = struct{}{}
		}
	}

	keyTopics := make([]string, 0, len(topics))
	for topic := range topics {
		keyTopics = append(keyTopics, topic)
	}

	text := fmt.Sprintf(
		"Conversation session with %d messages covering %d topics. Average message length: %d words.",
		len(recent), len(topics), totalWords/len(recent),
	)

	sum := &summary.Summary{
		UserID:          userID,
		Title:           fmt.Sprintf("Session from %s", recent[0].Timestamp.Format("2006-01-02 15:04")),
		Text:            text,
		KeyTopics:       keyTopics,
		StartTime:       recent[0].Timestamp,
		EndTime:         recent[len(recent)-1].Timestamp,
		MessageCount:    len(recent),
		SummaryType:     "automatic",
		ConfidenceScore: summaryConfidence,
	}
	if err := txSummaries.Create(sum); err != nil {
		return false, err
	}
	return true, nil
}
