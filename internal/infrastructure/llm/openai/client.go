package openai

import (
	"context"
	"fmt"
	"math"
	"strings"

	gopenai "github.com/sashabaranov/go-openai"

	"github.com/mkovalev/crypto-investigator/internal/infrastructure/resilience"
)

// Client wraps the OpenAI-compatible API behind the embedding and chat ports.
// All provider calls go through the resilience executor so retries and the
// per-operation circuit breakers apply uniformly.
type Client struct {
	api        *gopenai.Client
	chatModel  string
	embedModel string
	executor   *resilience.Executor
}

func New(apiKey, baseURL, chatModel, embedModel string, executor *resilience.Executor) *Client {
	cfg := gopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &Client{
		api:        gopenai.NewClientWithConfig(cfg),
		chatModel:  chatModel,
		embedModel: embedModel,
		executor:   executor,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp gopenai.EmbeddingResponse
	err := e.client.executor.Execute(ctx, "embed", func(ctx context.Context) error {
		var callErr error
		resp, callErr = e.client.api.CreateEmbeddings(ctx, gopenai.EmbeddingRequestStrings{
			Input: texts,
			Model: gopenai.EmbeddingModel(e.client.embedModel),
		})
		return callErr
	}, classifyProviderError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("embed", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: requested %d, got %d", len(texts), len(resp.Data))
	}
	vectors := make([][]float32, len(resp.Data))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

type ChatModel struct {
	client *Client
}

func NewChatModel(client *Client) *ChatModel {
	return &ChatModel{client: client}
}

func (c *ChatModel) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32, maxTokens int) (string, error) {
	// The request struct marshals Temperature with omitempty, so an exact 0
	// would silently fall back to the provider default instead of asking for
	// deterministic output. Substitute the smallest non-zero value.
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	var resp gopenai.ChatCompletionResponse
	err := c.client.executor.Execute(ctx, "chat_completion", func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.client.api.CreateChatCompletion(ctx, gopenai.ChatCompletionRequest{
			Model:       c.client.chatModel,
			Temperature: temperature,
			MaxTokens:   maxTokens,
			Messages: []gopenai.ChatCompletionMessage{
				{Role: gopenai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: gopenai.ChatMessageRoleUser, Content: userPrompt},
			},
		})
		return callErr
	}, classifyProviderError)
	if err != nil {
		return "", wrapTemporaryIfNeeded("chat_completion", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
