package app

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"bizassist/internal/util"
	"bizassist/pkg/ai"
	"bizassist/pkg/domain"
	"bizassist/pkg/queue"
	"bizassist/pkg/storage"
)

const ProviderAuto = "auto"

type ImageInput struct {
	Prompt     string
	Style      string
	Size       string
	Provider   string
	SaveAsLogo bool
}

type ImageOutput struct {
	ImageURL      string `json:"imageUrl"`
	RevisedPrompt string `json:"revisedPrompt"`
	Service       string `json:"service"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	LogoID        string `json:"logoId,omitempty"`
}

var errNoImageProvider = &ConfigurationError{
	Setting: "image provider",
	Message: "no image generation provider is configured",
	Hint:    "Connect Google AI Studio under AI integrations, or configure a Hugging Face or OpenAI key.",
	SetupInstructions: []string{
		"Open AI integrations and connect Google AI Studio with an API key or Google sign-in.",
		"Or set HUGGINGFACE_API_TOKEN for the API service.",
		"Or set OPENAI_API_KEY for the API service.",
	},
}

// GenerateImage renders a prompt with the selected provider, or with the first
// configured one for "auto". Binary results are stored and returned as URLs.
func (a *App) GenerateImage(ctx context.Context, id domain.Identity, in ImageInput) (ImageOutput, error) {
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return ImageOutput{}, invalid("prompt", "prompt is required")
	}
	style := strings.ToLower(strings.TrimSpace(in.Style))
	if style != "" {
		adjectives, ok := imageStyles[style]
		if !ok {
			return ImageOutput{}, invalid("style", "unknown style "+in.Style)
		}
		prompt = prompt + ", " + adjectives
	}
	width, height, err := ai.ParseSize(in.Size)
	if err != nil {
		return ImageOutput{}, invalid("size", err.Error())
	}

	gen, err := a.imageGenerator(ctx, id.TenantID, strings.ToLower(strings.TrimSpace(in.Provider)))
	if err != nil {
		return ImageOutput{}, err
	}
	result, err := gen.GenerateImage(ctx, ai.ImageRequest{Prompt: prompt, Style: style, Size: in.Size})
	if err != nil {
		return ImageOutput{}, err
	}

	out := ImageOutput{
		ImageURL:      result.ImageURL,
		RevisedPrompt: orDefault(result.RevisedPrompt, prompt),
		Service:       string(gen.Service()),
		Width:         width,
		Height:        height,
	}
	var storageKey string
	if len(result.Data) > 0 {
		out.ImageURL, storageKey, err = a.storeMedia(ctx, id.TenantID, "images", result.Data, result.ContentType)
		if err != nil {
			return ImageOutput{}, err
		}
	}
	if in.SaveAsLogo {
		logo, err := a.store.SaveLogo(ctx, domain.Logo{
			TenantID:   id.TenantID,
			Prompt:     strings.TrimSpace(in.Prompt),
			Style:      style,
			ImageURL:   out.ImageURL,
			StorageKey: storageKey,
			Service:    out.Service,
		})
		if err != nil {
			return ImageOutput{}, err
		}
		out.LogoID = logo.ID
	}
	a.logOperation(id, out.Service, "image")
	return out, nil
}

// imageGenerator resolves provider, which is auto, empty or a vendor name.
func (a *App) imageGenerator(ctx context.Context, tenantID, provider string) (ai.ImageGenerator, error) {
	switch provider {
	case "", ProviderAuto:
		google, ok, err := a.googleImages(ctx, tenantID)
		if err != nil {
			util.LoggerFromContext(ctx).Warn("google ai studio unavailable for auto image provider", "err", err)
		} else if ok {
			return google, nil
		}
		if a.hfImages != nil {
			return a.hfImages, nil
		}
		if a.openaiImages != nil {
			return a.openaiImages, nil
		}
		return nil, errNoImageProvider
	case string(ai.ServiceGoogleAIStudio):
		google, ok, err := a.googleImages(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &ConfigurationError{
				Setting: "google-ai-studio",
				Message: "Google AI Studio is not connected for this account",
				Hint:    "Connect Google AI Studio under AI integrations.",
				SetupInstructions: []string{
					"Create an API key at https://aistudio.google.com/app/apikey, or sign in with Google.",
					"Open AI integrations and connect Google AI Studio.",
				},
			}
		}
		return google, nil
	case string(ai.ServiceHuggingFace):
		if a.hfImages == nil {
			return nil, &ConfigurationError{
				Setting: "huggingface",
				Message: "Hugging Face is not configured",
				Hint:    "Set HUGGINGFACE_API_TOKEN for the API service.",
				SetupInstructions: []string{
					"Create an access token at https://huggingface.co/settings/tokens.",
					"Set HUGGINGFACE_API_TOKEN and restart the API service.",
				},
			}
		}
		return a.hfImages, nil
	case string(ai.ServiceOpenAI):
		if a.openaiImages == nil {
			return nil, &ConfigurationError{
				Setting: "openai",
				Message: "OpenAI is not configured",
				Hint:    "Set OPENAI_API_KEY for the API service.",
				SetupInstructions: []string{
					"Create an API key at https://platform.openai.com/api-keys.",
					"Set OPENAI_API_KEY and restart the API service.",
				},
			}
		}
		return a.openaiImages, nil
	default:
		return nil, invalid("provider", "unknown provider "+provider)
	}
}

// storeMedia uploads data and returns a presigned URL. Without object
// storage the bytes are inlined as a data URL.
func (a *App) storeMedia(ctx context.Context, tenantID, kind string, data []byte, contentType string) (string, string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if a.objects == nil {
		return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), "", nil
	}
	key := storage.ObjectKey(tenantID, kind, storage.ExtForContentType(contentType))
	url, err := storage.PutBytes(ctx, a.objects, key, data, contentType, a.presignExpiry)
	if err != nil {
		return "", "", fmt.Errorf("store generated media: %w", err)
	}
	return url, key, nil
}

func (a *App) logOperation(id domain.Identity, service, operation string) {
	a.send(queue.LogJob{
		ID:        util.NewID(),
		Kind:      queue.KindUsage,
		TenantID:  id.TenantID,
		UserID:    id.UserID,
		Service:   service,
		Operation: operation,
		CreatedAt: a.now().UTC(),
	})
}
