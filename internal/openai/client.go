// Package openai provides a unified client for OpenAI API access
// with support for both Azure OpenAI (primary) and OpenAI platform (fallback)
package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"clientreports/internal/apperrors"
	"clientreports/internal/config"
	"clientreports/internal/sanitizer"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

const (
	summaryMaxTokens   = 200
	summaryTemperature = 0.2
	summaryInputLimit  = 6000
)

const summarySystemPrompt = "You summarize business emails for an account manager. " +
	"Write two or three plain sentences covering who wrote, what they need and any dates or commitments. " +
	"Do not mention AI, models or tooling."

// Client wraps OpenAI client with Azure OpenAI support and fallback capability
type Client struct {
	primary      *openai.Client
	fallback     *openai.Client
	useAzure     bool
	gptModel     string
	embedModel   openai.EmbeddingModel
	dimensions   int
	timeout      time.Duration
	providerName string
	logger       zerolog.Logger
}

// NewClient creates a new OpenAI client with Azure as primary and OpenAI as fallback
func NewClient(cfg *config.Config, logger zerolog.Logger) (*Client, error) {
	client := &Client{
		dimensions: cfg.EmbeddingDimensions,
		timeout:    time.Duration(cfg.OpenAITimeout) * time.Second,
		logger:     logger.With().Str("component", "openai").Logger(),
	}
	if client.timeout <= 0 {
		client.timeout = 60 * time.Second
	}

	if cfg.UseAzureOpenAI() {
		azureConfig := openai.DefaultAzureConfig(cfg.AzureOpenAIKey, cfg.AzureOpenAIEndpoint)
		client.primary = openai.NewClientWithConfig(azureConfig)
		client.useAzure = true
		client.gptModel = cfg.AzureOpenAIGPTDeployment
		client.embedModel = openai.EmbeddingModel(cfg.AzureOpenAIEmbeddingDeployment)
		client.providerName = "Azure OpenAI"
	}

	if cfg.HasOpenAIFallback() {
		client.fallback = openai.NewClient(cfg.OpenAIKey)

		if !client.useAzure {
			// Use OpenAI as primary since Azure is not configured
			client.primary = client.fallback
			client.fallback = nil
			client.gptModel = string(openai.GPT4oMini)
			client.embedModel = openai.SmallEmbedding3
			client.providerName = "OpenAI"
		}
	}

	if client.primary == nil {
		return nil, fmt.Errorf("no OpenAI provider configured: set AZURE_OPENAI_ENDPOINT + AZURE_OPENAI_KEY or OPENAI_API_KEY")
	}

	client.logger.Info().
		Str("provider", client.providerName).
		Bool("fallback", client.fallback != nil).
		Str("embedding_model", string(client.embedModel)).
		Msg("OpenAI client configured")

	return client, nil
}

// CreateEmbeddings generates embeddings for the given texts
func (c *Client) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.EmbeddingRequest{
		Input:      texts,
		Model:      c.embedModel,
		Dimensions: c.dimensions,
	}
	resp, err := c.primary.CreateEmbeddings(ctx, req)
	if err != nil && c.fallback != nil {
		c.logger.Warn().Err(err).Msg("Primary embedding provider failed, trying fallback")
		req.Model = openai.SmallEmbedding3
		resp, err = c.fallback.CreateEmbeddings(ctx, req)
		if err != nil {
			return nil, apperrors.EmbeddingAPI("create embeddings", fmt.Errorf("both providers failed: %w", err))
		}
	} else if err != nil {
		return nil, apperrors.EmbeddingAPI("create embeddings", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, apperrors.EmbeddingAPI("create embeddings",
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
	}

	embeddings := make([][]float32, len(resp.Data))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(embeddings) {
			return nil, apperrors.EmbeddingAPI("create embeddings", fmt.Errorf("embedding index %d out of range", data.Index))
		}
		embeddings[data.Index] = data.Embedding
	}

	return embeddings, nil
}

// Embed generates the embedding of a single text
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.CreateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// Summarize produces a short client-safe summary of one email
func (c *Client) Summarize(ctx context.Context, subject, body string) (string, error) {
	input := fmt.Sprintf("Subject: %s\n\n%s", subject, strings.TrimSpace(body))
	input = sanitizer.Truncate(input, summaryInputLimit)

	resp, err := c.CreateChatCompletion(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: summarySystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: input},
	}, summaryMaxTokens, summaryTemperature)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.EmbeddingAPI("summarize", fmt.Errorf("empty completion"))
	}

	return sanitizer.SanitizeContent(strings.TrimSpace(resp.Choices[0].Message.Content)), nil
}

// CreateChatCompletion generates a chat completion
func (c *Client) CreateChatCompletion(ctx context.Context, messages []openai.ChatCompletionMessage, maxTokens int, temperature float32) (*openai.ChatCompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       c.gptModel,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	resp, err := c.primary.CreateChatCompletion(ctx, req)
	if err != nil && c.fallback != nil {
		// Try fallback provider with OpenAI model name
		c.logger.Warn().Err(err).Msg("Primary chat provider failed, trying fallback")
		req.Model = string(openai.GPT4oMini)
		resp, err = c.fallback.CreateChatCompletion(ctx, req)
		if err != nil {
			return nil, apperrors.EmbeddingAPI("chat completion", fmt.Errorf("both providers failed: %w", err))
		}
	} else if err != nil {
		return nil, apperrors.EmbeddingAPI("chat completion", err)
	}

	return &resp, nil
}

// GetProviderName returns the current primary provider name
func (c *Client) GetProviderName() string {
	return c.providerName
}

// GetEmbeddingModel returns the embedding model/deployment name being used
func (c *Client) GetEmbeddingModel() string {
	return string(c.embedModel)
}
