package ai

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultGroqBaseURL   = "https://api.groq.com/openai/v1"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
)

// OpenAICompatChat calls an OpenAI-compatible /chat/completions endpoint.
// Groq and OpenAI both speak this dialect.
type OpenAICompatChat struct {
	service    Service
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAICompatChat builds a chat provider. baseURL includes the /v1 prefix.
func NewOpenAICompatChat(service Service, baseURL, apiKey, model string, timeout time.Duration) *OpenAICompatChat {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAICompatChat{
		service:    service,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		model:      strings.TrimSpace(model),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewGroqChat is the primary fast provider.
func NewGroqChat(apiKey, model string, timeout time.Duration) *OpenAICompatChat {
	return NewOpenAICompatChat(ServiceGroq, DefaultGroqBaseURL, apiKey, model, timeout)
}

// NewOpenAIChat is the legacy hosted provider.
func NewOpenAIChat(baseURL, apiKey, model string, timeout time.Duration) *OpenAICompatChat {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	return NewOpenAICompatChat(ServiceOpenAI, baseURL, apiKey, model, timeout)
}

func (c *OpenAICompatChat) Service() Service { return c.service }

// Chat implements ChatProvider.
func (c *OpenAICompatChat) Chat(ctx context.Context, messages []Message) (ChatResponse, error) {
	if c.model == "" {
		return ChatResponse{}, &ProviderError{Service: c.service, Message: "model not configured"}
	}
	req, err := newJSONRequest(ctx, c.baseURL+"/chat/completions", oaiChatRequest{
		Model:       c.model,
		Messages:    toOAIMessages(messages),
		Temperature: 0.4,
	})
	if err != nil {
		return ChatResponse{}, transportError(c.service, err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	var out oaiChatResponse
	if err := doJSON(c.httpClient, c.service, req, &out); err != nil {
		return ChatResponse{}, err
	}
	if len(out.Choices) == 0 {
		return ChatResponse{}, malformedError(c.service, "response has no choices")
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return ChatResponse{}, malformedError(c.service, "empty completion")
	}
	res := ChatResponse{Message: text}
	if out.Usage != nil {
		res.Usage = &Usage{PromptTokens: out.Usage.PromptTokens, CompletionTokens: out.Usage.CompletionTokens}
	}
	return res, nil
}

func toOAIMessages(messages []Message) []oaiMessage {
	out := make([]oaiMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, oaiMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiChatRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	Temperature float64      `json:"temperature"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message oaiMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}
