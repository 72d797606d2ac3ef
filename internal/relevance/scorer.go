package relevance

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/a-kowalski/mindkeep/internal/fact"
)

// Scoring weights, fixed by design rather than configurable per call.
const (
	keywordWeight    = 0.6
	recencyWeight    = 0.2
	confidenceWeight = 0.2
	typeBonus        = 0.1

	// RecencyWindowDays is the linear decay horizon for the recency term.
	RecencyWindowDays = 30

	// MinScore is the retrieval cutoff: facts scoring at or below it are
	// never returned.
	MinScore = 0.1
)

var wordPattern = regexp.MustCompile(`\b[a-zA-Z]{3,}\b`)

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {}, "being": {},
	"have": {}, "has": {}, "had": {}, "do": {}, "does": {}, "did": {},
	"will": {}, "would": {}, "could": {}, "should": {}, "may": {}, "might": {},
	"must": {}, "can": {}, "this": {}, "that": {}, "these": {}, "those": {},
	"i": {}, "me": {}, "my": {}, "myself": {}, "we": {}, "us": {}, "our": {},
	"you": {}, "your": {}, "he": {}, "him": {}, "his": {}, "she": {}, "her": {},
	"it": {}, "its": {}, "they": {}, "them": {}, "their": {},
}

// ExtractKeywords tokenizes a query into deduplicated lowercase alphabetic
// keywords of length >= 3, with stop words removed. Order is deterministic.
func ExtractKeywords(text string) []string {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)

	seen := make(map[string]struct{}, len(words))
	var keywords []string
	for _, word := range words {
		if _, stop := stopWords[word]; stop {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		keywords = append(keywords, word)
	}
	return keywords
}

// Score rates how relevant a fact is to a query at the given instant.
// Always in [0, 1].
func Score(f *fact.Fact, keywords []string, now time.Time) float64 {
	score := 0.0

	// Keyword overlap against the fact's own text.
	if len(keywords) > 0 {
		haystack := strings.ToLower(f.Key + " " + f.Value + " " + f.Context)
		matches := 0
		for _, keyword := range keywords {
			if strings.Contains(haystack, keyword) {
				matches++
			}
		}
		score += float64(matches) / float64(len(keywords)) * keywordWeight
	}

	// Linear recency decay to zero over the window.
	daysSince := now.Sub(f.LastObserved).Hours() / 24
	recency := 1 - daysSince/RecencyWindowDays
	if recency < 0 {
		recency = 0
	}
	score += recency * recencyWeight

	score += f.Confidence * confidenceWeight

	// Stated facts and preferences outrank incidental topic mentions.
	if f.Type == fact.PersonalFact || f.Type == fact.CommunicationPreference {
		score += typeBonus
	}

	if score > 1.0 {
		score = 1.0
	}
	if score < 0 {
		score = 0
	}
	return score
}

// Scored pairs a fact with its relevance score.
type Scored struct {
	Fact  *fact.Fact
	Score float64
}

// TopK scores the candidate facts against the query and returns the best k,
// dropping anything at or below the retrieval cutoff. Ties break on
// last-observed time, more recent first.
func TopK(facts []*fact.Fact, query string, k int, now time.Time) []Scored {
	keywords := ExtractKeywords(query)

	results := make([]Scored, 0, len(facts))
	for _, f := range facts {
		score := Score(f, keywords, now)
		if score <= MinScore {
			continue
		}
		results = append(results, Scored{Fact: f, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].Fact.LastObserved.After(results[j].Fact.LastObserved)
		}
		return results[i].Score > results[j].Score
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results
}
