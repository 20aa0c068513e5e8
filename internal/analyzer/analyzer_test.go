package analyzer

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastinnovation/fastchat/internal/chatstore"
	"github.com/fastinnovation/fastchat/internal/log"
)

type stubGenerator struct {
	responses []string
	err       error
	prompts   []string
}

func (s *stubGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "", errors.New("stub: no response configured")
	}
	resp := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return resp, nil
}

type stubStore struct {
	messages    []*chatstore.Message
	listErr     error
	summaryArgs []string
	analyses    []map[string]any
	writeErr    error
}

func (s *stubStore) ListConversation(ctx context.Context, conversationID uuid.UUID) iter.Seq2[*chatstore.Message, error] {
	return func(yield func(*chatstore.Message, error) bool) {
		if s.listErr != nil {
			yield(nil, s.listErr)
			return
		}
		for _, msg := range s.messages {
			if !yield(msg, nil) {
				return
			}
		}
	}
}

func (s *stubStore) WriteSummary(ctx context.Context, conversationID uuid.UUID, text, modelUsed string, messageCount int) (*chatstore.Summary, error) {
	if s.writeErr != nil {
		return nil, s.writeErr
	}
	s.summaryArgs = append(s.summaryArgs, text)
	return &chatstore.Summary{ConversationID: conversationID, Text: text, ModelUsed: modelUsed, MessageCount: messageCount}, nil
}

func (s *stubStore) WriteAnalysis(ctx context.Context, conversationID uuid.UUID, data map[string]any, modelUsed string) (*chatstore.Analysis, error) {
	if s.writeErr != nil {
		return nil, s.writeErr
	}
	s.analyses = append(s.analyses, data)
	return &chatstore.Analysis{ConversationID: conversationID, Data: data, ModelUsed: modelUsed}, nil
}

func twoTurns() []*chatstore.Message {
	return []*chatstore.Message{
		{Role: chatstore.RoleUser, Content: "I need help with my invoice"},
		{Role: chatstore.RoleAssistant, Content: "Sure, what is the invoice number?"},
	}
}

const insightJSON = `{
	"main_intent": "resolve an invoice problem",
	"topics": [{"topic": "billing", "sentiment": "Negative", "importance": 5}],
	"user_satisfaction": 4,
	"key_questions": ["why was I charged twice"],
	"action_items": ["refund the duplicate charge"],
	"conversation_type": "support"
}`

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, &stubStore{}, "m", nil)
	assert.Error(t, err)

	_, err = New(&stubGenerator{}, nil, "m", nil)
	assert.Error(t, err)
}

func TestSummarize_Success(t *testing.T) {
	gen := &stubGenerator{responses: []string{"  The user asked about an invoice.  "}}
	store := &stubStore{messages: twoTurns()}
	a, err := New(gen, store, "gemini-2.5-flash", log.NewNop())
	require.NoError(t, err)

	summary, err := a.Summarize(context.Background(), uuid.New())
	require.NoError(t, err)

	assert.Equal(t, "The user asked about an invoice.", summary.Text)
	assert.Equal(t, "gemini-2.5-flash", summary.ModelUsed)
	assert.Equal(t, 2, summary.MessageCount)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "user: I need help with my invoice")
	assert.Contains(t, gen.prompts[0], "assistant: Sure, what is the invoice number?")
}

func TestSummarize_EmptyConversation(t *testing.T) {
	a, err := New(&stubGenerator{responses: []string{"x"}}, &stubStore{}, "m", log.NewNop())
	require.NoError(t, err)

	_, err = a.Summarize(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrEmptyConversation)
}

func TestSummarize_GeneratorFailure(t *testing.T) {
	gen := &stubGenerator{err: errors.New("quota exceeded")}
	a, err := New(gen, &stubStore{messages: twoTurns()}, "m", log.NewNop())
	require.NoError(t, err)

	_, err = a.Summarize(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestAnalyze_Success(t *testing.T) {
	gen := &stubGenerator{responses: []string{insightJSON}}
	a, err := New(gen, &stubStore{}, "gemini-2.5-flash", log.NewNop())
	require.NoError(t, err)

	insight, err := a.Analyze(context.Background(), "The user reported a duplicate invoice charge and asked for a refund.")
	require.NoError(t, err)

	assert.Equal(t, "resolve an invoice problem", insight.MainIntent)
	require.Len(t, insight.Topics, 1)
	assert.Equal(t, "billing", insight.Topics[0].Topic)
	assert.Equal(t, "negative", insight.Topics[0].Sentiment)
	assert.Equal(t, 5, insight.Topics[0].Importance)
	assert.Equal(t, 4, insight.UserSatisfaction)
	assert.Equal(t, "support", insight.ConversationType)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "duplicate invoice charge")
}

func TestAnalyze_ShortSummary(t *testing.T) {
	a, err := New(&stubGenerator{}, &stubStore{}, "m", log.NewNop())
	require.NoError(t, err)

	_, err = a.Analyze(context.Background(), "   hi   ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too short")
}

func TestAnalyze_CodeFencedResponse(t *testing.T) {
	gen := &stubGenerator{responses: []string{"```json\n" + insightJSON + "\n```"}}
	a, err := New(gen, &stubStore{}, "m", log.NewNop())
	require.NoError(t, err)

	insight, err := a.Analyze(context.Background(), "A long enough conversation summary.")
	require.NoError(t, err)
	assert.Equal(t, "support", insight.ConversationType)
}

func TestAnalyze_MalformedResponse(t *testing.T) {
	gen := &stubGenerator{responses: []string{"I think the conversation went well!"}}
	a, err := New(gen, &stubStore{}, "m", log.NewNop())
	require.NoError(t, err)

	_, err = a.Analyze(context.Background(), "A long enough conversation summary.")
	assert.Error(t, err)
}

func TestRun_PersistsSummaryAndAnalysis(t *testing.T) {
	gen := &stubGenerator{responses: []string{
		"The user reported a duplicate invoice charge and asked for a refund.",
		insightJSON,
	}}
	store := &stubStore{messages: twoTurns()}
	a, err := New(gen, store, "gemini-2.5-flash", log.NewNop())
	require.NoError(t, err)

	insight, err := a.Run(context.Background(), uuid.New())
	require.NoError(t, err)

	assert.Equal(t, "support", insight.ConversationType)
	require.Len(t, store.summaryArgs, 1)
	require.Len(t, store.analyses, 1)
	assert.Equal(t, "resolve an invoice problem", store.analyses[0]["main_intent"])
	assert.Equal(t, 2, store.analyses[0]["message_count"])
}

func TestRun_EmptyConversation(t *testing.T) {
	a, err := New(&stubGenerator{responses: []string{"x"}}, &stubStore{}, "m", log.NewNop())
	require.NoError(t, err)

	_, err = a.Run(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrEmptyConversation)
}

func TestInsightClamp(t *testing.T) {
	insight, err := parseInsight(`{
		"main_intent": "x",
		"topics": [{"topic": "a", "sentiment": "ecstatic", "importance": 9}],
		"user_satisfaction": 12,
		"conversation_type": "inquiry"
	}`)
	require.NoError(t, err)
	assert.Equal(t, 5, insight.UserSatisfaction)
	assert.Equal(t, "neutral", insight.Topics[0].Sentiment)
	assert.Equal(t, 5, insight.Topics[0].Importance)

	insight, err = parseInsight(`{"main_intent": "", "topics": null, "user_satisfaction": 0}`)
	require.NoError(t, err)
	assert.Equal(t, 1, insight.UserSatisfaction)
}
