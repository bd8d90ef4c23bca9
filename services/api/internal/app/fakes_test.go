package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"bizassist/pkg/ai"
	"bizassist/pkg/domain"
	"bizassist/pkg/queue"
	"bizassist/pkg/store"
)

type fakeProvider struct {
	service ai.Service
	reply   string
	err     error

	mu       sync.Mutex
	calls    int
	messages []ai.Message
}

func (p *fakeProvider) Service() ai.Service { return p.service }

func (p *fakeProvider) Chat(_ context.Context, messages []ai.Message) (ai.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.messages = messages
	if p.err != nil {
		return ai.ChatResponse{}, p.err
	}
	return ai.ChatResponse{Message: p.reply, Usage: &ai.Usage{PromptTokens: 12, CompletionTokens: 7}}, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func failing(service ai.Service, status int) *fakeProvider {
	return &fakeProvider{service: service, err: &ai.ProviderError{Service: service, Status: status, Message: "boom"}}
}

type recordingSink struct {
	mu   sync.Mutex
	jobs []queue.LogJob
}

func (s *recordingSink) Send(job queue.LogJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
}

func (s *recordingSink) kinds() []queue.JobKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]queue.JobKind, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Kind)
	}
	return out
}

// brokenStore fails the overdue invoice query.
type brokenStore struct {
	store.Store
}

func (brokenStore) OverdueInvoices(context.Context, string, time.Time, int) ([]domain.Invoice, error) {
	return nil, errors.New("connection reset")
}

type fakeImages struct {
	service ai.Service
	result  ai.ImageResult
	err     error
	prompt  string
}

func (f *fakeImages) Service() ai.Service { return f.service }

func (f *fakeImages) GenerateImage(_ context.Context, req ai.ImageRequest) (ai.ImageResult, error) {
	f.prompt = req.Prompt
	return f.result, f.err
}

type memoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memoryObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = buf.Bytes()
	return nil
}

func (m *memoryObjects) PresignGet(_ context.Context, key string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("https://objects.test/%s?expires=%d", key, int(expiry.Seconds())), nil
}

func (m *memoryObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

type fakeGateway struct {
	speech  ai.Speech
	forward json.RawMessage
	path    string
}

func (g *fakeGateway) BaseURL() string { return "http://gateway.test" }

func (g *fakeGateway) SpeechToText(_ context.Context, audioURL, _ string) (ai.Transcription, error) {
	return ai.Transcription{Text: "transcribed " + audioURL}, nil
}

func (g *fakeGateway) TextToSpeech(context.Context, string, string, float64) (ai.Speech, error) {
	return g.speech, nil
}

func (g *fakeGateway) Forward(_ context.Context, path string, _ any) (json.RawMessage, error) {
	g.path = path
	return g.forward, nil
}

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func newTestApp(t *testing.T, cfg Config) *App {
	t.Helper()
	if cfg.Store == nil {
		cfg.Store = store.NewMemoryStore()
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return testNow }
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a
}

func identity(tenantID string) domain.Identity {
	return domain.Identity{TenantID: tenantID, UserID: "user-" + tenantID, Modules: []string{domain.ModuleAI}}
}
