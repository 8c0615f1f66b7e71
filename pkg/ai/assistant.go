// Package ai talks to the language model behind the daily plan and the
// email drafting procedures.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"democrm-backend/pkg/models"
	"democrm-backend/pkg/utils"

	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrNoCompletion is returned when the model answers with no content
	ErrNoCompletion = errors.New("model returned no completion")
	// ErrInvalidDraft is returned when a generated email is not a valid {subject, body}
	ErrInvalidDraft = errors.New("model returned an invalid email draft")
)

// Assistant is the language model surface used by the handlers
type Assistant interface {
	// Complete sends a single user message and returns the reply text
	Complete(ctx context.Context, prompt string) (string, error)
	// CompleteJSON sends a system and a user message and constrains the reply
	// to the given JSON schema.
	CompleteJSON(ctx context.Context, system, user, schemaName string, schema json.RawMessage) (string, error)
}

// OpenAIAssistant implements Assistant with the OpenAI chat completions API
type OpenAIAssistant struct {
	client *openai.Client
	model  string
}

// NewOpenAIAssistant 创建 OpenAI 客户端；baseURL 为空时使用官方地址
func NewOpenAIAssistant(apiKey, model, baseURL string) *OpenAIAssistant {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAIAssistant{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (a *OpenAIAssistant) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create completion: %w", err)
	}
	return firstChoice(resp)
}

func (a *OpenAIAssistant) CompleteJSON(ctx context.Context, system, user, schemaName string, schema json.RawMessage) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   schemaName,
				Schema: schema,
				Strict: true,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create structured completion: %w", err)
	}
	return firstChoice(resp)
}

func firstChoice(resp openai.ChatCompletionResponse) (string, error) {
	if len(resp.Choices) == 0 {
		return "", ErrNoCompletion
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", ErrNoCompletion
	}
	return content, nil
}

// ParseEmailDraft decodes and validates the model's structured reply.
// Both subject and body must be non-empty.
func ParseEmailDraft(raw string) (*models.EmailDraft, error) {
	var draft models.EmailDraft
	if err := json.Unmarshal([]byte(raw), &draft); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}
	if err := utils.ValidateStruct(draft); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}
	return &draft, nil
}
