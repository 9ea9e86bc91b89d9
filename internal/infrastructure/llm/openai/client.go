package openai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cwhealth/policy-qa/internal/core/domain"
	"github.com/cwhealth/policy-qa/internal/infrastructure/resilience"
)

// chatAPI is the slice of the OpenAI client the generator needs; tests
// substitute a scripted implementation.
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client generates policy answers through an OpenAI-compatible chat
// completion endpoint. Implements the answer generator port; every call
// goes through the generation breaker.
type Client struct {
	api     chatAPI
	model   string
	breaker *resilience.Breaker
}

func New(apiKey, baseURL, model string, breaker *resilience.Breaker) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(cfg),
		model:   model,
		breaker: breaker,
	}
}

// NewWithAPI wires a custom chat backend; used by tests.
func NewWithAPI(api chatAPI, model string, breaker *resilience.Breaker) *Client {
	return &Client{api: api, model: model, breaker: breaker}
}

func (c *Client) Complete(ctx context.Context, question string, contexts []domain.RetrievedDocument, instructions []string) (domain.Completion, error) {
	request := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildSystemPrompt(contexts, instructions)},
			{Role: openai.ChatMessageRoleUser, Content: question},
		},
		Temperature: 0.1,
	}

	var response openai.ChatCompletionResponse
	call := func(ctx context.Context) error {
		var err error
		response, err = c.api.CreateChatCompletion(ctx, request)
		return err
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return domain.Completion{}, c.mapError(err)
	}

	if len(response.Choices) == 0 {
		return domain.Completion{}, domain.WrapError(domain.ErrGenerationUnavailable, "complete",
			fmt.Errorf("empty choice list"))
	}
	text := response.Choices[0].Message.Content
	return domain.Completion{
		Text:      text,
		Citations: parseCitations(text),
	}, nil
}
