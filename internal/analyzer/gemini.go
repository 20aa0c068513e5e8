package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

// GeminiGenerator backs Generator with the Gemini API. The underlying
// client reads GEMINI_API_KEY from the environment.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

var (
	geminiOnce sync.Once
	geminiGen  *GeminiGenerator
	geminiErr  error
)

// DefaultGemini returns the process-wide Gemini generator, creating it
// on first call. Later calls ignore model and return the same instance.
func DefaultGemini(ctx context.Context, model string) (*GeminiGenerator, error) {
	geminiOnce.Do(func() {
		geminiGen, geminiErr = NewGemini(ctx, model)
	})
	return geminiGen, geminiErr
}

// NewGemini creates a Gemini-backed generator.
func NewGemini(ctx context.Context, model string) (*GeminiGenerator, error) {
	if model == "" {
		return nil, errors.New("model name is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

// GenerateText runs one generation call and returns the text output.
func (g *GeminiGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.2),
	})
	if err != nil {
		return "", fmt.Errorf("gemini generation: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("gemini returned no text")
	}
	return text, nil
}
