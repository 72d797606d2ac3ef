// Package memctx renders learned memory into the compact context string
// injected into a conversational prompt.
package memctx

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/a-kowalski/mindkeep/internal/fact"
	"github.com/a-kowalski/mindkeep/internal/profile"
	"github.com/a-kowalski/mindkeep/internal/relevance"
	"github.com/a-kowalski/mindkeep/internal/storage"
	"github.com/a-kowalski/mindkeep/internal/tokens"
	"go.uber.org/zap"
)

// DefaultRelevantFacts caps how many query-matched facts get injected.
const DefaultRelevantFacts = 3

// MaxContextTokens bounds the rendered context. Relevant facts are shed
// lowest score first until the string fits.
const MaxContextTokens = 150

// Builder assembles memory context strings from stored profiles and facts.
type Builder struct {
	profiles *profile.Store
	facts    *fact.Store
	logger   *zap.Logger
}

// NewBuilder returns a context builder over the given database.
func NewBuilder(db *storage.DB, logger *zap.Logger) *Builder {
	return &Builder{
		profiles: profile.NewStore(db),
		facts:    fact.NewStore(db),
		logger:   logger,
	}
}

// Build renders the memory context for a user. The three segments, each
// omitted when empty, are joined with " | ":
//
//	Personal facts: name: Alex; city: Berlin
//	Relevant context: jazz; guitar
//	Communication preferences: tone: casual
//
// A user with no profile and no facts yields the empty string. The query is
// optional; without one the relevant-context segment is skipped.
//
// This sits on the synchronous prompt path, so load failures never surface
// to the caller: they are logged and the context degrades to whatever could
// still be assembled, down to the empty string.
func (b *Builder) Build(userID, query string) string {
	prof, err := b.profiles.Get(userID)
	if err != nil && err != profile.ErrNotFound {
		b.logger.Warn("memory context degraded, profile unavailable",
			zap.String("user_id", userID), zap.Error(err))
		prof = nil
	}

	var relevant []string
	if query != "" {
		facts, err := b.facts.ActiveByUser(userID)
		if err != nil {
			b.logger.Warn("memory context degraded, facts unavailable",
				zap.String("user_id", userID), zap.Error(err))
		}
		scored := relevance.TopK(facts, query, DefaultRelevantFacts, time.Now().UTC())
		for _, s := range scored {
			relevant = append(relevant, s.Fact.Key+": "+s.Fact.Value)
		}
	}

	context := render(prof, relevant)
	for tokens.Estimate(context) > MaxContextTokens && len(relevant) > 0 {
		relevant = relevant[:len(relevant)-1]
		context = render(prof, relevant)
	}
	return context
}

func render(prof *profile.Profile, relevant []string) string {
	var parts []string

	if prof != nil && len(prof.PersonalFacts) > 0 {
		parts = append(parts, "Personal facts: "+joinMap(prof.PersonalFacts))
	}
	if len(relevant) > 0 {
		parts = append(parts, "Relevant context: "+strings.Join(relevant, "; "))
	}
	if prof != nil && len(prof.CommunicationPreferences) > 0 {
		parts = append(parts, "Communication preferences: "+joinMap(prof.CommunicationPreferences))
	}

	return strings.Join(parts, " | ")
}

// RelevantFacts returns the scored facts for a query without formatting,
// for callers that want structured retrieval rather than a prompt string.
func (b *Builder) RelevantFacts(userID, query string, limit int) ([]relevance.Scored, error) {
	if limit <= 0 {
		limit = DefaultRelevantFacts
	}
	facts, err := b.facts.ActiveByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load facts: %w", err)
	}
	return relevance.TopK(facts, query, limit, time.Now().UTC()), nil
}

// joinMap renders a map as "k: v; k: v" with keys sorted for stable output.
func joinMap(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, key := range keys {
		pairs[i] = key + ": " + m[key]
	}
	return strings.Join(pairs, "; ")
}
