package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/a-kowalski/mindkeep/internal/conversation"
	"github.com/a-kowalski/mindkeep/internal/llm"
)

// ErrMalformed marks analyzer output that could not be parsed. Callers treat
// it as an empty result, not a failure worth retry semantics.
var ErrMalformed = fmt.Errorf("malformed analysis output")

const analysisSystemPrompt = "You are an AI assistant that analyzes conversations " +
	"to extract learning data about the user. Always respond with valid JSON."

const analysisPromptTemplate = `Analyze this conversation to extract what can be
learned about the user: personal facts, communication preferences, topics of
interest, and areas of expertise. Only include information the user actually
revealed; do not guess.

Conversation to analyze:
%s

Respond with a JSON object of this exact shape:
{
    "personal_facts": {"key": "value"},
    "communication_preferences": {"preference": "value"},
    "topics_of_interest": ["topic1", "topic2"],
    "expertise_areas": ["area1", "area2"],
    "formality_score": 0.5,
    "preferred_response_length": "medium"
}`

// analysisWindow bounds how many trailing turns go into the prompt.
const analysisWindow = 10

// LLMAnalyzer implements Analyzer over a text-generation provider.
type LLMAnalyzer struct {
	provider llm.Provider
}

// NewLLMAnalyzer creates an analyzer backed by the given provider.
func NewLLMAnalyzer(provider llm.Provider) *LLMAnalyzer {
	return &LLMAnalyzer{provider: provider}
}

// Analyze sends the trailing window of turns to the provider and parses the
// structured result. Transport errors propagate; unparsable content returns
// ErrMalformed.
func (a *LLMAnalyzer) Analyze(ctx context.Context, turns []conversation.Turn) (*Result, error) {
	if len(turns) == 0 {
		return &Result{}, nil
	}

	if len(turns) > analysisWindow {
		turns = turns[len(turns)-analysisWindow:]
	}

	var sb strings.Builder
	for _, turn := range turns {
		speaker := "User"
		if turn.MessageType == conversation.AssistantTurn {
			speaker = "Assistant"
		}
		fmt.Fprintf(&sb, "%s: %s\n", speaker, turn.Content)
	}

	prompt := fmt.Sprintf(analysisPromptTemplate, sb.String())

	content, err := a.provider.Complete(ctx, analysisSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("analysis request failed: %w", err)
	}

	return parseResult(content)
}

// parseResult extracts the JSON object from the model's response, tolerating
// code fences and surrounding prose.
func parseResult(content string) (*Result, error) {
	jsonStart := strings.Index(content, "{")
	jsonEnd := strings.LastIndex(content, "}")
	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrMalformed)
	}
	jsonStr := content[jsonStart : jsonEnd+1]

	// Values under the fact/preference maps are not reliably strings, so
	// decode loosely first and stringify.
	var raw struct {
		PersonalFacts            map[string]interface{} `json:"personal_facts"`
		CommunicationPreferences map[string]interface{} `json:"communication_preferences"`
		TopicsOfInterest         []string               `json:"topics_of_interest"`
		ExpertiseAreas           []string               `json:"expertise_areas"`
		FormalityScore           *float64               `json:"formality_score"`
		PreferredResponseLength  string                 `json:"preferred_response_length"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	result := &Result{
		PersonalFacts:            stringifyMap(raw.PersonalFacts),
		CommunicationPreferences: stringifyMap(raw.CommunicationPreferences),
		TopicsOfInterest:         raw.TopicsOfInterest,
		ExpertiseAreas:           raw.ExpertiseAreas,
	}

	if raw.FormalityScore != nil {
		score := *raw.FormalityScore
		if score >= 0 && score <= 1 {
			result.FormalityScore = &score
		}
	}

	switch raw.PreferredResponseLength {
	case "short", "medium", "long":
		result.PreferredResponseLength = raw.PreferredResponseLength
	}

	return result, nil
}

func stringifyMap(m map[string]interface{}) map[string]string {
	if len(m) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(m))
	for key, value := range m {
		switch v := value.(type) {
		case string:
			out[key] = v
		case nil:
			// skip nulls
		default:
			out[key] = fmt.Sprint(v)
		}
	}
	return out
}
