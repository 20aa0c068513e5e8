// Package analyzer derives summaries and structured insights from
// conversation history using a generative model, persisting results
// through the chat store.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/fastinnovation/fastchat/internal/chatstore"
)

// ErrEmptyConversation indicates there is nothing to analyze yet.
var ErrEmptyConversation = errors.New("conversation has no messages")

// minSummaryLength guards Analyze against summaries too short to carry
// any signal.
const minSummaryLength = 10

// Generator produces text from a prompt. Satisfied by the Gemini-backed
// generator; tests substitute a stub.
type Generator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// ConversationStore is the persistence surface the analyzer needs.
// *chatstore.Store satisfies it.
type ConversationStore interface {
	ListConversation(ctx context.Context, conversationID uuid.UUID) iter.Seq2[*chatstore.Message, error]
	WriteSummary(ctx context.Context, conversationID uuid.UUID, text, modelUsed string, messageCount int) (*chatstore.Summary, error)
	WriteAnalysis(ctx context.Context, conversationID uuid.UUID, data map[string]any, modelUsed string) (*chatstore.Analysis, error)
}

// TopicSentiment is one topic discussed in a conversation, with the
// user's attitude toward it.
type TopicSentiment struct {
	Topic string `json:"topic"`
	// Sentiment is one of positive, negative, neutral, mixed.
	Sentiment string `json:"sentiment"`
	// Importance from 1 (incidental) to 5 (central).
	Importance int `json:"importance"`
}

// Insight is the structured result of analyzing a conversation summary.
type Insight struct {
	// MainIntent is the user's main goal in the conversation.
	MainIntent string           `json:"main_intent"`
	Topics     []TopicSentiment `json:"topics"`
	// UserSatisfaction is an estimated score from 1 to 5.
	UserSatisfaction int `json:"user_satisfaction"`
	// KeyQuestions the user asked.
	KeyQuestions []string `json:"key_questions"`
	// ActionItems or next steps identified in the conversation.
	ActionItems []string `json:"action_items"`
	// ConversationType categorizes the exchange: inquiry, support,
	// feedback, complaint, or similar.
	ConversationType string `json:"conversation_type"`
}

var validSentiments = map[string]bool{
	"positive": true,
	"negative": true,
	"neutral":  true,
	"mixed":    true,
}

// clamp forces model output back into the documented ranges. Models
// occasionally return scores outside 1..5 or invent sentiment labels.
func (i *Insight) clamp() {
	i.UserSatisfaction = clampScore(i.UserSatisfaction)
	for idx := range i.Topics {
		i.Topics[idx].Importance = clampScore(i.Topics[idx].Importance)
		s := strings.ToLower(strings.TrimSpace(i.Topics[idx].Sentiment))
		if !validSentiments[s] {
			s = "neutral"
		}
		i.Topics[idx].Sentiment = s
	}
}

func clampScore(n int) int {
	if n < 1 {
		return 1
	}
	if n > 5 {
		return 5
	}
	return n
}

// Analyzer generates and persists conversation summaries and insights.
type Analyzer struct {
	gen    Generator
	store  ConversationStore
	model  string
	logger *slog.Logger
}

// New creates an Analyzer. model is recorded with persisted results.
func New(gen Generator, store ConversationStore, model string, logger *slog.Logger) (*Analyzer, error) {
	if gen == nil {
		return nil, errors.New("generator is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{gen: gen, store: store, model: model, logger: logger}, nil
}

// Summarize generates a summary of the full conversation and stores it,
// replacing any previous summary.
func (a *Analyzer) Summarize(ctx context.Context, conversationID uuid.UUID) (*chatstore.Summary, error) {
	transcript, count, err := a.transcript(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(
		"Summarize the following conversation in one short paragraph. "+
			"Focus on what the user wanted and what was resolved.\n\n%s", transcript)
	text, err := a.gen.GenerateText(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generating summary: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("model returned empty summary")
	}

	summary, err := a.store.WriteSummary(ctx, conversationID, text, a.model, count)
	if err != nil {
		return nil, fmt.Errorf("persisting summary: %w", err)
	}
	a.logger.Debug("summarized conversation", "conversation", conversationID, "messages", count)
	return summary, nil
}

// Analyze extracts a structured insight from a conversation summary.
// It does not persist anything; Run couples generation with storage.
func (a *Analyzer) Analyze(ctx context.Context, summary string) (*Insight, error) {
	if len(strings.TrimSpace(summary)) < minSummaryLength {
		return nil, errors.New("summary is too short or empty")
	}

	prompt := fmt.Sprintf(
		"You are an expert conversation analyst. Analyze the following conversation "+
			"summary and extract structured insights.\n\n"+
			"CONVERSATION SUMMARY:\n%s\n\n"+
			"Identify the user's main intent, the key topics with their sentiment "+
			"(positive, negative, neutral or mixed) and importance (1-5), estimated "+
			"user satisfaction (1-5), key questions asked, action items, and the "+
			"conversation type (inquiry, support, feedback, complaint, etc).\n\n"+
			"Respond with JSON only, no prose, matching this shape: "+
			`{"main_intent": string, "topics": [{"topic": string, "sentiment": string, `+
			`"importance": number}], "user_satisfaction": number, "key_questions": [string], `+
			`"action_items": [string], "conversation_type": string}`, summary)
	text, err := a.gen.GenerateText(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generating analysis: %w", err)
	}
	return parseInsight(text)
}

// Run summarizes the conversation, analyzes the summary, and persists
// both results. The summary replaces any previous one; the analysis is
// appended to the conversation's analysis history.
func (a *Analyzer) Run(ctx context.Context, conversationID uuid.UUID) (*Insight, error) {
	summary, err := a.Summarize(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	insight, err := a.Analyze(ctx, summary.Text)
	if err != nil {
		return nil, err
	}

	data := map[string]any{
		"main_intent":       insight.MainIntent,
		"topics":            insight.Topics,
		"user_satisfaction": insight.UserSatisfaction,
		"key_questions":     insight.KeyQuestions,
		"action_items":      insight.ActionItems,
		"conversation_type": insight.ConversationType,
		"message_count":     summary.MessageCount,
	}
	if _, err := a.store.WriteAnalysis(ctx, conversationID, data, a.model); err != nil {
		return nil, fmt.Errorf("persisting analysis: %w", err)
	}
	a.logger.Debug("analyzed conversation",
		"conversation", conversationID, "type", insight.ConversationType)
	return insight, nil
}

// transcript renders the conversation as role-prefixed lines.
func (a *Analyzer) transcript(ctx context.Context, conversationID uuid.UUID) (string, int, error) {
	var b strings.Builder
	count := 0
	for msg, err := range a.store.ListConversation(ctx, conversationID) {
		if err != nil {
			return "", 0, fmt.Errorf("reading conversation: %w", err)
		}
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
		count++
	}
	if count == 0 {
		return "", 0, ErrEmptyConversation
	}
	return b.String(), count, nil
}

// parseInsight decodes model output, tolerating markdown code fences.
func parseInsight(text string) (*Insight, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var insight Insight
	if err := json.Unmarshal([]byte(text), &insight); err != nil {
		return nil, fmt.Errorf("decoding model analysis: %w", err)
	}
	insight.clamp()
	return &insight, nil
}
