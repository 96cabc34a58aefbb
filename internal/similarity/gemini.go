package similarity

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-1.5-flash"

// GeminiGenerator answers prompts with Google's Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

// NewGeminiGenerator creates a generator. Low temperature keeps verdicts stable.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiGenerator{
		client: client,
		model:  model,
		config: &genai.GenerateContentConfig{
			Temperature:      genai.Ptr[float32](0.3),
			TopK:             genai.Ptr[float32](40),
			TopP:             genai.Ptr[float32](0.95),
			MaxOutputTokens:  1024,
			ResponseMIMEType: "application/json",
		},
	}, nil
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), g.config)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("GenAI returned no text")
	}
	return text, nil
}

// Model returns the configured model name.
func (g *GeminiGenerator) Model() string {
	return g.model
}
