package analysis

import (
	"context"
	"fmt"
	"testing"

	"github.com/a-kowalski/mindkeep/internal/conversation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	response string
	err      error
	prompts  []string
}

func (p *fakeProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	p.prompts = append(p.prompts, prompt)
	if p.err != nil {
		return "", p.err
	}
	return p.response, nil
}

func (p *fakeProvider) Model() string { return "fake" }

func TestParseResultPlainJSON(t *testing.T) {
	result, err := parseResult(`{
		"personal_facts": {"city": "Berlin", "age": 34},
		"communication_preferences": {"tone": "casual"},
		"topics_of_interest": ["jazz"],
		"expertise_areas": [],
		"formality_score": 0.4,
		"preferred_response_length": "short"
	}`)
	require.NoError(t, err)

	assert.Equal(t, "Berlin", result.PersonalFacts["city"])
	assert.Equal(t, "34", result.PersonalFacts["age"], "non-string values stringify")
	assert.Equal(t, "casual", result.CommunicationPreferences["tone"])
	assert.Equal(t, []string{"jazz"}, result.TopicsOfInterest)
	require.NotNil(t, result.FormalityScore)
	assert.Equal(t, 0.4, *result.FormalityScore)
	assert.Equal(t, "short", result.PreferredResponseLength)
}

func TestParseResultToleratesFencesAndProse(t *testing.T) {
	result, err := parseResult("Here is what I learned:\n```json\n" +
		`{"topics_of_interest": ["cycling"]}` + "\n```\nHope that helps!")
	require.NoError(t, err)
	assert.Equal(t, []string{"cycling"}, result.TopicsOfInterest)
}

func TestParseResultRejectsNonJSON(t *testing.T) {
	_, err := parseResult("I could not find anything to learn.")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = parseResult(`{"personal_facts": `)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseResultDropsInvalidEnumValues(t *testing.T) {
	result, err := parseResult(`{
		"formality_score": 3.5,
		"preferred_response_length": "verbose"
	}`)
	require.NoError(t, err)
	assert.Nil(t, result.FormalityScore, "out-of-range score discarded")
	assert.Equal(t, "", result.PreferredResponseLength, "unknown enum discarded")
	assert.True(t, result.IsEmpty())
}

func TestAnalyzeWindowsTrailingTurns(t *testing.T) {
	provider := &fakeProvider{response: `{"topics_of_interest": ["jazz"]}`}
	analyzer := NewLLMAnalyzer(provider)

	turns := make([]conversation.Turn, 0, 15)
	for i := 0; i < 15; i++ {
		turns = append(turns, conversation.Turn{
			MessageType: conversation.UserTurn,
			Content:     fmt.Sprintf("message %d", i),
		})
	}

	result, err := analyzer.Analyze(context.Background(), turns)
	require.NoError(t, err)
	assert.Equal(t, []string{"jazz"}, result.TopicsOfInterest)

	require.Len(t, provider.prompts, 1)
	assert.NotContains(t, provider.prompts[0], "message 4", "outside the window")
	assert.Contains(t, provider.prompts[0], "message 5")
	assert.Contains(t, provider.prompts[0], "message 14")
}

func TestAnalyzeEmptyWindow(t *testing.T) {
	provider := &fakeProvider{response: "ignored"}
	analyzer := NewLLMAnalyzer(provider)

	result, err := analyzer.Analyze(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, result.IsEmpty())
	assert.Empty(t, provider.prompts, "no provider call for an empty window")
}

func TestAnalyzePropagatesTransportErrors(t *testing.T) {
	provider := &fakeProvider{err: fmt.Errorf("connection refused")}
	analyzer := NewLLMAnalyzer(provider)

	_, err := analyzer.Analyze(context.Background(), []conversation.Turn{
		{MessageType: conversation.UserTurn, Content: "hello"},
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformed)
}
