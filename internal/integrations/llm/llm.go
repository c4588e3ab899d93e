package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"tokasu/internal/config"
	"tokasu/internal/domain"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"
const defaultOpenAIModel = "gpt-4o-mini"
const defaultOpenAIURL = "https://api.openai.com/v1/chat/completions"

// Completer sends one prompt to a text-completion model and returns the raw
// response text. Transport and API failures wrap domain.ErrClassifierUnreachable.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// NewCompleter builds the completer for cfg.LLMProvider. The offline
// provider returns nil: every classification then takes the fallback path.
func NewCompleter(cfg Config) Completer {
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		model := cfg.LLMModel
		if model == "" {
			model = defaultOpenAIModel
		}
		url := cfg.LLMBaseURL
		if url == "" {
			url = defaultOpenAIURL
		}
		return &OpenAICompleter{APIKey: cfg.OpenAIAPIKey, Model: model, URL: url, Client: externalHTTPClient}
	case config.ProviderOffline:
		return nil
	default:
		model := cfg.LLMModel
		if model == "" {
			model = defaultAnthropicModel
		}
		return NewAnthropicCompleter(cfg.AnthropicAPIKey, model, cfg.LLMBaseURL, int64(cfg.LLMMaxTokens))
	}
}

// --- Anthropic ---

type AnthropicCompleter struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

func NewAnthropicCompleter(apiKey, model, baseURL string, maxTokens int64) *AnthropicCompleter {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(externalHTTPClient),
		// The orchestrator falls back instead of retrying.
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	return &AnthropicCompleter{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (a *AnthropicCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	log.Printf("llm classify provider=anthropic model=%s prompt_size=%d", a.model, len(prompt))
	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		log.Printf("llm anthropic error: %v", err)
		return "", fmt.Errorf("%w: Anthropic API error: %w", domain.ErrClassifierUnreachable, err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("%w: no text content in Anthropic response", domain.ErrMalformedResponse)
	}
	log.Printf("llm anthropic response size=%d tokens_in=%d tokens_out=%d", text.Len(), message.Usage.InputTokens, message.Usage.OutputTokens)
	return text.String(), nil
}

// --- OpenAI ---

type OpenAICompleter struct {
	APIKey string
	Model  string
	URL    string
	Client *http.Client
}

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (o *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	log.Printf("llm classify provider=openai model=%s prompt_size=%d", o.Model, len(prompt))
	bodyBytes, err := json.Marshal(openAIRequest{
		Model:    o.Model,
		Messages: []openAIMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.URL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.APIKey)

	client := o.Client
	if client == nil {
		client = externalHTTPClient
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Printf("llm openai error: %v", err)
		return "", fmt.Errorf("%w: OpenAI API error: %w", domain.ErrClassifierUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %w", domain.ErrClassifierUnreachable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("llm openai status=%d", resp.StatusCode)
		return "", fmt.Errorf("%w: OpenAI API status %d", domain.ErrClassifierUnreachable, resp.StatusCode)
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(respBody, &openAIResp); err != nil {
		return "", fmt.Errorf("%w: parsing OpenAI response: %w", domain.ErrMalformedResponse, err)
	}
	if openAIResp.Error != nil {
		log.Printf("llm openai api error: %s", openAIResp.Error.Message)
		return "", fmt.Errorf("%w: OpenAI API error: %s", domain.ErrClassifierUnreachable, openAIResp.Error.Message)
	}
	if len(openAIResp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in OpenAI response", domain.ErrMalformedResponse)
	}

	content := openAIResp.Choices[0].Message.Content
	if openAIResp.Usage != nil {
		log.Printf("llm openai response size=%d tokens_in=%d tokens_out=%d", len(content), openAIResp.Usage.PromptTokens, openAIResp.Usage.CompletionTokens)
	}
	return content, nil
}
