package gateway

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/quantumflow/aichat/pkg/chat"
)

// ProviderAPI is the subset of the OpenAI client the gateway uses; it keeps
// the provider easy to stub in tests.
type ProviderAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateImage(ctx context.Context, req openai.ImageRequest) (openai.ImageResponse, error)
}

// Config selects the provider endpoint and credentials.
type Config struct {
	BaseURL string
	APIKey  string
}

// OpenAIClient is the production gateway implementation.
type OpenAIClient struct {
	api ProviderAPI
}

var _ Client = (*OpenAIClient)(nil)

// NewOpenAIClient builds a gateway against the configured OpenAI-compatible
// endpoint.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{api: openai.NewClientWithConfig(clientCfg)}
}

// NewFromProvider wraps an existing provider implementation; used by tests.
func NewFromProvider(api ProviderAPI) *OpenAIClient {
	return &OpenAIClient{api: api}
}

func (c *OpenAIClient) Complete(ctx context.Context, history []chat.Message, opts CompleteOptions) (chat.Message, error) {
	opts = opts.withDefaults()

	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: SystemPreamble,
	})
	for _, m := range history {
		// Image entries have no textual content to replay to the provider.
		if m.IsImage() {
			continue
		}
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       opts.Model,
		Messages:    msgs,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return chat.Message{}, errors.WithMessage(ErrUpstream, err.Error())
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return chat.Message{}, ErrEmptyResponse
	}

	usage := &chat.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	return chat.NewAssistantMessage(resp.Choices[0].Message.Content, resp.Model, usage), nil
}

func (c *OpenAIClient) GenerateImage(ctx context.Context, prompt, size string) (chat.Message, error) {
	if size == "" {
		size = DefaultImageSize
	}
	resp, err := c.api.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Size:           size,
		N:              1,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return chat.Message{}, errors.WithMessage(ErrUpstream, err.Error())
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return chat.Message{}, ErrEmptyResponse
	}
	return chat.NewImageMessage(prompt, "data:image/png;base64,"+resp.Data[0].B64JSON, size), nil
}
