package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiChat is the secondary hosted provider, backed by the Google GenAI SDK.
type GeminiChat struct {
	client *genai.Client
	model  string
}

// NewGeminiChat constructs a Gemini chat provider with the given API key.
// An empty baseURL uses the SDK's default endpoint.
func NewGeminiChat(ctx context.Context, baseURL, apiKey, model string, timeout time.Duration) (*GeminiChat, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key required")
	}
	model = strings.TrimPrefix(strings.TrimSpace(model), "models/")
	if model == "" {
		return nil, errors.New("gemini model required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
		HTTPOptions: genai.HTTPOptions{
			BaseURL: strings.TrimSpace(baseURL),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("init genai client: %w", err)
	}
	return &GeminiChat{client: client, model: model}, nil
}

func (c *GeminiChat) Service() Service { return ServiceGemini }

// Chat implements ChatProvider. System messages become the system instruction.
func (c *GeminiChat) Chat(ctx context.Context, messages []Message) (ChatResponse, error) {
	var system []string
	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		default:
			role := genai.RoleUser
			if m.Role == RoleAssistant {
				role = genai.RoleModel
			}
			contents = append(contents, &genai.Content{
				Role:  role,
				Parts: []*genai.Part{{Text: m.Content}},
			})
		}
	}
	cfg := &genai.GenerateContentConfig{}
	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}}}
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return ChatResponse{}, geminiError(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ChatResponse{}, malformedError(ServiceGemini, "response has no candidates")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Text == "" {
			continue
		}
		b.WriteString(part.Text)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return ChatResponse{}, malformedError(ServiceGemini, "empty response")
	}
	res := ChatResponse{Message: text}
	if meta := resp.UsageMetadata; meta != nil {
		res.Usage = &Usage{
			PromptTokens:     int(meta.PromptTokenCount),
			CompletionTokens: int(meta.CandidatesTokenCount),
		}
	}
	return res, nil
}

func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{Service: ServiceGemini, Status: apiErr.Code, Message: apiErr.Message, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &ProviderError{Service: ServiceGemini, Status: apiErrPtr.Code, Message: apiErrPtr.Message, Err: err}
	}
	return transportError(ServiceGemini, err)
}
