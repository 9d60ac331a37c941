package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"medilens.app/analysis-server/internal/prompt"
)

const defaultGeminiModel = "gemini-1.5-flash-latest"

// analysisTemperature keeps the model near-deterministic; reproducibility
// matters for a medical-adjacent report.
const analysisTemperature = float32(0.1)

// GeminiClient implements ModelClient on the Gemini API, constraining the
// reply to the selected schema via structured output.
type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiClient{client: client, model: model}, nil
}

func (c *GeminiClient) Close() {
	if c.client != nil {
		if err := c.client.Close(); err != nil {
			log.Printf("Error closing GenAI client: %v", err)
		}
	}
}

func (c *GeminiClient) GenerateStructured(ctx context.Context, instruction string, schema *prompt.Schema, image ImagePayload) (json.RawMessage, error) {
	model := c.client.GenerativeModel(c.model)

	temp := analysisTemperature
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:      &temp,
		ResponseMIMEType: "application/json",
		ResponseSchema:   toGenAISchema(schema),
	}

	resp, err := model.GenerateContent(ctx,
		genai.Text(instruction),
		genai.Blob{MIMEType: image.MIMEType, Data: image.Data},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini GenerateContent: %v", ErrModelInvocation, err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: gemini response had no candidates", ErrModelInvocation)
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			out.WriteString(string(txt))
		} else {
			log.Printf("Gemini response part was not text: %T", part)
		}
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("%w: gemini response was empty", ErrModelInvocation)
	}
	return json.RawMessage(out.String()), nil
}

func toGenAISchema(s *prompt.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Description: s.Description,
		Enum:        s.Enum,
		Required:    s.Required,
		Items:       toGenAISchema(s.Items),
	}
	switch s.Type {
	case prompt.TypeObject:
		out.Type = genai.TypeObject
	case prompt.TypeArray:
		out.Type = genai.TypeArray
	case prompt.TypeInteger:
		out.Type = genai.TypeInteger
	default:
		out.Type = genai.TypeString
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, child := range s.Properties {
			out.Properties[name] = toGenAISchema(child)
		}
	}
	return out
}
