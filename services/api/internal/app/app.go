package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bizassist/internal/sealer"
	"bizassist/internal/tenantauth"
	"bizassist/pkg/ai"
	"bizassist/pkg/cache"
	"bizassist/pkg/queue"
	"bizassist/pkg/storage"
	"bizassist/pkg/store"

	"golang.org/x/oauth2"
)

// ResponseCache is the exact-message answer cache.
type ResponseCache interface {
	Get(ctx context.Context, tenantID, message string) (cache.CachedResponse, bool, error)
	Set(ctx context.Context, tenantID, message string, resp cache.CachedResponse) error
}

// LogSink accepts best-effort log jobs. Send must not block.
type LogSink interface {
	Send(job queue.LogJob)
}

// Gateway is the external AI gateway for speech and vision.
type Gateway interface {
	BaseURL() string
	SpeechToText(ctx context.Context, audioURL, language string) (ai.Transcription, error)
	TextToSpeech(ctx context.Context, text, voice string, speed float64) (ai.Speech, error)
	Forward(ctx context.Context, path string, payload any) (json.RawMessage, error)
}

// SufficiencyPolicy is the signal-count threshold table of the sufficiency check.
type SufficiencyPolicy struct {
	High   int
	Medium int
}

// DefaultSufficiency is high at three signals and medium at one.
var DefaultSufficiency = SufficiencyPolicy{High: 3, Medium: 1}

// TelephonyConfig shapes the voice responses of the call webhook.
type TelephonyConfig struct {
	GatherActionURL string
	Voice           string
	Language        string
}

// Config holds the collaborators of the core application. Only Store is
// required; every other collaborator disables its feature when nil.
type Config struct {
	Store store.Store

	// ChatProviders are tried in order. The rule-based responder always follows.
	ChatProviders []ai.ChatProvider
	Cache         ResponseCache
	Logs          LogSink
	Sufficiency   SufficiencyPolicy

	HuggingFaceImages ai.ImageGenerator
	OpenAIImages      ai.ImageGenerator
	GoogleImageModel  string
	GoogleBaseURL     string

	Gateway       Gateway
	Objects       storage.ObjectStore
	PresignExpiry time.Duration

	Sealer *sealer.Sealer
	OAuth  *oauth2.Config
	State  *tenantauth.StateSigner

	Telephony TelephonyConfig

	Now func() time.Time
}

// App is the core application service of the business assistant API.
type App struct {
	store       store.Store
	providers   []ai.ChatProvider
	cache       ResponseCache
	logs        LogSink
	sufficiency SufficiencyPolicy

	hfImages     ai.ImageGenerator
	openaiImages ai.ImageGenerator
	googleModel  string
	googleBase   string

	gateway       Gateway
	objects       storage.ObjectStore
	presignExpiry time.Duration

	sealer *sealer.Sealer
	oauth  *oauth2.Config
	state  *tenantauth.StateSigner

	telephony TelephonyConfig

	now func() time.Time
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	policy := cfg.Sufficiency
	if policy.High <= 0 && policy.Medium <= 0 {
		policy = DefaultSufficiency
	}
	if policy.Medium <= 0 {
		policy.Medium = 1
	}
	if policy.High < policy.Medium {
		return nil, fmt.Errorf("sufficiency high threshold %d below medium %d", policy.High, policy.Medium)
	}
	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	telephony := cfg.Telephony
	if telephony.Voice == "" {
		telephony.Voice = "Polly.Joanna"
	}
	if telephony.Language == "" {
		telephony.Language = "en-US"
	}
	providers := make([]ai.ChatProvider, 0, len(cfg.ChatProviders))
	for _, p := range cfg.ChatProviders {
		if p != nil {
			providers = append(providers, p)
		}
	}
	return &App{
		store:         cfg.Store,
		providers:     providers,
		cache:         cfg.Cache,
		logs:          cfg.Logs,
		sufficiency:   policy,
		hfImages:      cfg.HuggingFaceImages,
		openaiImages:  cfg.OpenAIImages,
		googleModel:   cfg.GoogleImageModel,
		googleBase:    cfg.GoogleBaseURL,
		gateway:       cfg.Gateway,
		objects:       cfg.Objects,
		presignExpiry: expiry,
		sealer:        cfg.Sealer,
		oauth:         cfg.OAuth,
		state:         cfg.State,
		telephony:     telephony,
		now:           now,
	}, nil
}

// ChatServices lists the configured chat providers in fallback order.
func (a *App) ChatServices() []ai.Service {
	out := make([]ai.Service, 0, len(a.providers)+1)
	for _, p := range a.providers {
		out = append(out, p.Service())
	}
	return append(out, ai.ServiceRuleBased)
}

func (a *App) send(job queue.LogJob) {
	if a.logs == nil {
		return
	}
	a.logs.Send(job)
}
