package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Service identifies which vendor (or local fallback) produced a result.
type Service string

const (
	ServiceGroq           Service = "groq"
	ServiceOllama         Service = "ollama"
	ServiceGemini         Service = "gemini"
	ServiceOpenAI         Service = "openai"
	ServiceRuleBased      Service = "rule-based"
	ServiceHuggingFace    Service = "huggingface"
	ServiceGoogleAIStudio Service = "google-ai-studio"
	ServiceGateway        Service = "gateway"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Usage is token accounting as reported by the vendor.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// ChatResponse is the result of a single chat completion.
type ChatResponse struct {
	Message string `json:"message"`
	Usage   *Usage `json:"usage,omitempty"`
}

// ChatProvider is implemented by every networked language-model vendor.
// Implementations make exactly one HTTP attempt per call.
type ChatProvider interface {
	Service() Service
	Chat(ctx context.Context, messages []Message) (ChatResponse, error)
}

// ProviderError reports a failed vendor call. Status is 0 when no HTTP
// response was received.
type ProviderError struct {
	Service Service
	Status  int
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s api error (%d): %s", e.Service, e.Status, msg)
	}
	return fmt.Sprintf("%s api error: %s", e.Service, msg)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// AsProviderError unwraps err into a ProviderError when possible.
func AsProviderError(err error) (*ProviderError, bool) {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}

func transportError(service Service, err error) error {
	return &ProviderError{Service: service, Err: err}
}

func malformedError(service Service, format string, args ...any) error {
	return &ProviderError{Service: service, Status: http.StatusBadGateway, Message: fmt.Sprintf(format, args...)}
}

// responseError builds a ProviderError from a non-2xx vendor response,
// keeping the vendor-supplied message when one of the common shapes is present.
func responseError(service Service, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return &ProviderError{Service: service, Status: resp.StatusCode, Message: vendorMessage(raw, resp.Status)}
}

func vendorMessage(raw []byte, fallback string) string {
	var shaped struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Detail  string          `json:"detail"`
	}
	if err := json.Unmarshal(raw, &shaped); err == nil {
		if len(shaped.Error) > 0 {
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(shaped.Error, &nested) == nil && nested.Message != "" {
				return nested.Message
			}
			var flat string
			if json.Unmarshal(shaped.Error, &flat) == nil && flat != "" {
				return flat
			}
		}
		if shaped.Message != "" {
			return shaped.Message
		}
		if shaped.Detail != "" {
			return shaped.Detail
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" && len(text) < 300 && !strings.HasPrefix(text, "<") {
		return text
	}
	return fallback
}

func newJSONRequest(ctx context.Context, url string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// doJSON performs one request and decodes a JSON body into out.
func doJSON(client *http.Client, service Service, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return transportError(service, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(service, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return malformedError(service, "decode response: %v", err)
	}
	return nil
}
