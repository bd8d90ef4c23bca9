package ai

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaBaseURL = "http://127.0.0.1:11434"

// OllamaChat calls a self-hosted Ollama /api/chat endpoint.
type OllamaChat struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaChat constructs the self-hosted provider.
func NewOllamaChat(baseURL, model string, timeout time.Duration) *OllamaChat {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OllamaChat{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      strings.TrimSpace(model),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *OllamaChat) Service() Service { return ServiceOllama }

// Chat implements ChatProvider.
func (c *OllamaChat) Chat(ctx context.Context, messages []Message) (ChatResponse, error) {
	if c.model == "" {
		return ChatResponse{}, &ProviderError{Service: ServiceOllama, Message: "model not configured"}
	}
	chatMessages := make([]ollamaChatMessage, 0, len(messages))
	for _, m := range messages {
		chatMessages = append(chatMessages, ollamaChatMessage{Role: m.Role, Content: m.Content})
	}
	req, err := newJSONRequest(ctx, c.baseURL+"/api/chat", ollamaChatRequest{
		Model:    c.model,
		Messages: chatMessages,
		Stream:   false,
	})
	if err != nil {
		return ChatResponse{}, transportError(ServiceOllama, err)
	}
	var out ollamaChatResponse
	if err := doJSON(c.httpClient, ServiceOllama, req, &out); err != nil {
		return ChatResponse{}, err
	}
	text := strings.TrimSpace(out.Message.Content)
	if text == "" {
		return ChatResponse{}, malformedError(ServiceOllama, "empty response")
	}
	res := ChatResponse{Message: text}
	if out.PromptEvalCount > 0 || out.EvalCount > 0 {
		res.Usage = &Usage{PromptTokens: out.PromptEvalCount, CompletionTokens: out.EvalCount}
	}
	return res, nil
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatResponse struct {
	Message         ollamaChatMessage `json:"message"`
	PromptEvalCount int               `json:"prompt_eval_count"`
	EvalCount       int               `json:"eval_count"`
}
