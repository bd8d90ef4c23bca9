package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type geminiWireRequest struct {
	Contents []struct {
		Role  string `json:"role"`
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
	SystemInstruction *struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"systemInstruction"`
}

func newGeminiTestServer(t *testing.T, status int, body string, got *geminiWireRequest, apiKey *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "models/gemini-test:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if apiKey != nil {
			*apiKey = r.Header.Get("x-goog-api-key")
		}
		if got != nil {
			if err := json.NewDecoder(r.Body).Decode(got); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGeminiChatSuccess(t *testing.T) {
	var got geminiWireRequest
	var key string
	srv := newGeminiTestServer(t, http.StatusOK,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"Two invoices "},{"text":"are overdue."}]}}],`+
			`"usageMetadata":{"promptTokenCount":21,"candidatesTokenCount":6,"totalTokenCount":27}}`,
		&got, &key)

	c, err := NewGeminiChat(context.Background(), srv.URL+"/", "gm-key", "models/gemini-test", time.Second)
	if err != nil {
		t.Fatalf("new gemini: %v", err)
	}
	res, err := c.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "You are a business assistant."},
		{Role: RoleUser, Content: "What is overdue?"},
		{Role: RoleAssistant, Content: "Checking."},
		{Role: RoleUser, Content: "Thanks"},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if res.Message != "Two invoices are overdue." {
		t.Fatalf("unexpected message %q", res.Message)
	}
	if res.Usage == nil || res.Usage.PromptTokens != 21 || res.Usage.CompletionTokens != 6 {
		t.Fatalf("unexpected usage %+v", res.Usage)
	}
	if key != "gm-key" {
		t.Fatalf("api key header = %q", key)
	}
	if got.SystemInstruction == nil || len(got.SystemInstruction.Parts) != 1 ||
		got.SystemInstruction.Parts[0].Text != "You are a business assistant." {
		t.Fatalf("system instruction not mapped: %+v", got.SystemInstruction)
	}
	if len(got.Contents) != 3 {
		t.Fatalf("expected 3 contents without the system message, got %d", len(got.Contents))
	}
	if got.Contents[0].Role != "user" || got.Contents[1].Role != "model" || got.Contents[1].Parts[0].Text != "Checking." {
		t.Fatalf("unexpected roles %+v", got.Contents)
	}
}

func TestGeminiChatVendorError(t *testing.T) {
	srv := newGeminiTestServer(t, http.StatusTooManyRequests,
		`{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`, nil, nil)

	c, err := NewGeminiChat(context.Background(), srv.URL+"/", "gm-key", "gemini-test", time.Second)
	if err != nil {
		t.Fatalf("new gemini: %v", err)
	}
	_, err = c.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	perr, ok := AsProviderError(err)
	if !ok {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.Service != ServiceGemini || perr.Status != http.StatusTooManyRequests {
		t.Fatalf("unexpected provider error %+v", perr)
	}
	if !strings.Contains(perr.Error(), "gemini api error (429)") {
		t.Fatalf("unexpected error text %q", perr.Error())
	}
}

func TestGeminiChatNoCandidates(t *testing.T) {
	srv := newGeminiTestServer(t, http.StatusOK, `{"candidates":[]}`, nil, nil)
	c, err := NewGeminiChat(context.Background(), srv.URL+"/", "gm-key", "gemini-test", time.Second)
	if err != nil {
		t.Fatalf("new gemini: %v", err)
	}
	_, err = c.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if perr, ok := AsProviderError(err); !ok || perr.Service != ServiceGemini {
		t.Fatalf("expected gemini ProviderError, got %v", err)
	}
}

func TestNewGeminiChatRequiresKeyAndModel(t *testing.T) {
	if _, err := NewGeminiChat(context.Background(), "", " ", "gemini-test", time.Second); err == nil {
		t.Fatalf("expected error without api key")
	}
	if _, err := NewGeminiChat(context.Background(), "", "k", "models/", time.Second); err == nil {
		t.Fatalf("expected error without model")
	}
}
