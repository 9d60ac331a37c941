package core

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"medilens.app/analysis-server/internal/prompt"
)

const defaultOpenAIModel = "gpt-4o-mini"

const openAIMaxTokens = 2048

// OpenAIClient implements ModelClient on the OpenAI chat-completions API.
// OpenAI's JSON mode does not take a response schema directly, so the schema
// is rendered into the system prompt and the reply is validated downstream
// exactly like the Gemini path.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIClient{client: openai.NewClient(apiKey), model: model}
}

func (c *OpenAIClient) GenerateStructured(ctx context.Context, instruction string, schema *prompt.Schema, image ImagePayload) (json.RawMessage, error) {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal schema: %v", ErrModelInvocation, err)
	}

	system := instruction +
		"\n\nYour reply must be a single JSON object conforming to this JSON schema:\n" +
		string(schemaJSON)

	imageURL := "data:" + image.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(image.Data)

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: analysisTemperature,
		MaxTokens:   openAIMaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: "Analyze the attached document."},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: imageURL, Detail: openai.ImageURLDetailAuto},
					},
				},
			},
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: openai chat completion: %v", ErrModelInvocation, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("%w: openai response was empty", ErrModelInvocation)
	}
	return json.RawMessage(resp.Choices[0].Message.Content), nil
}
