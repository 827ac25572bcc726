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

	"berichtsheft/internal/config"
	"berichtsheft/internal/httpx"
)

const (
	defaultAnthropicModel = "claude-sonnet-4-5-20250929"
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultGroqModel      = "llama-3.1-8b-instant"

	openAIBaseURL = "https://api.openai.com/v1"
	groqBaseURL   = "https://api.groq.com/openai/v1"
)

// Generator turns a free-text activity description into a short
// Berichtsheft summary via the configured provider. Groq speaks the
// OpenAI chat-completions dialect, so both share one code path with
// different base URLs.
type Generator struct {
	cfg        config.Config
	httpClient *http.Client

	// Overridable for tests.
	OpenAIBaseURL string
	GroqBaseURL   string
}

func NewGenerator(cfg config.Config) *Generator {
	return &Generator{
		cfg:           cfg,
		httpClient:    httpx.Client(),
		OpenAIBaseURL: openAIBaseURL,
		GroqBaseURL:   groqBaseURL,
	}
}

// Summarize renders the configured prompt with the description and asks
// the provider for the summary text.
func (g *Generator) Summarize(ctx context.Context, description string) (string, error) {
	if strings.TrimSpace(description) == "" {
		return "", fmt.Errorf("empty description")
	}
	prompt := strings.ReplaceAll(g.cfg.AIPrompt, "{DESCRIPTION}", description)

	switch g.cfg.AIProvider {
	case "anthropic":
		return g.callAnthropic(ctx, prompt)
	case "openai":
		model := g.cfg.AIModel
		if model == "" {
			model = defaultOpenAIModel
		}
		log.Printf("llm summarize provider=openai model=%s chars=%d", model, len(description))
		return g.chatCompletions(ctx, g.OpenAIBaseURL, g.cfg.OpenAIAPIKey, model, prompt)
	case "groq":
		model := g.cfg.AIModel
		if model == "" {
			model = defaultGroqModel
		}
		log.Printf("llm summarize provider=groq model=%s chars=%d", model, len(description))
		return g.chatCompletions(ctx, g.GroqBaseURL, g.cfg.GroqAPIKey, model, prompt)
	default:
		return "", fmt.Errorf("no AI provider configured")
	}
}

func (g *Generator) callAnthropic(ctx context.Context, prompt string) (string, error) {
	model := g.cfg.AIModel
	if model == "" {
		model = defaultAnthropicModel
	}
	log.Printf("llm summarize provider=anthropic model=%s", model)

	client := anthropic.NewClient(option.WithAPIKey(g.cfg.AnthropicAPIKey))
	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		log.Printf("llm anthropic error: %v", err)
		return "", fmt.Errorf("Anthropic API error: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", fmt.Errorf("no text content in Anthropic response")
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (g *Generator) chatCompletions(ctx context.Context, baseURL, apiKey, model, prompt string) (string, error) {
	if apiKey == "" {
		return "", fmt.Errorf("no API key configured")
	}

	bodyBytes, err := json.Marshal(chatRequest{
		Model:     model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: 1024,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", strings.TrimRight(baseURL, "/")+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completions: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("provider error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
