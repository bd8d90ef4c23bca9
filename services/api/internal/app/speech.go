package app

import (
	"context"
	"encoding/json"
	"strings"

	"bizassist/pkg/ai"
	"bizassist/pkg/domain"
)

type SpeechToTextInput struct {
	AudioURL string
	Language string
}

type TextToSpeechInput struct {
	Text  string
	Voice string
	Speed float64
}

type TextToSpeechOutput struct {
	AudioURL        string  `json:"audioUrl"`
	DurationSeconds float64 `json:"durationSeconds"`
}

func (a *App) SpeechToText(ctx context.Context, id domain.Identity, in SpeechToTextInput) (ai.Transcription, error) {
	if strings.TrimSpace(in.AudioURL) == "" {
		return ai.Transcription{}, invalid("audioUrl", "audioUrl is required")
	}
	if a.gateway == nil {
		return ai.Transcription{}, errGatewayNotConfigured
	}
	out, err := a.gateway.SpeechToText(ctx, strings.TrimSpace(in.AudioURL), strings.TrimSpace(in.Language))
	if err != nil {
		return ai.Transcription{}, err
	}
	a.logOperation(id, string(ai.ServiceGateway), "speech-to-text")
	return out, nil
}

// TextToSpeech synthesizes text. Audio returned inline by the gateway is
// stored and served through a presigned URL.
func (a *App) TextToSpeech(ctx context.Context, id domain.Identity, in TextToSpeechInput) (TextToSpeechOutput, error) {
	if strings.TrimSpace(in.Text) == "" {
		return TextToSpeechOutput{}, invalid("text", "text is required")
	}
	if in.Speed < 0 || in.Speed > 4 {
		return TextToSpeechOutput{}, invalid("speed", "speed must be between 0 and 4")
	}
	if a.gateway == nil {
		return TextToSpeechOutput{}, errGatewayNotConfigured
	}
	speech, err := a.gateway.TextToSpeech(ctx, in.Text, strings.TrimSpace(in.Voice), in.Speed)
	if err != nil {
		return TextToSpeechOutput{}, err
	}
	out := TextToSpeechOutput{AudioURL: speech.AudioURL, DurationSeconds: speech.DurationSeconds}
	if len(speech.Data) > 0 {
		out.AudioURL, _, err = a.storeMedia(ctx, id.TenantID, "audio", speech.Data, speech.ContentType)
		if err != nil {
			return TextToSpeechOutput{}, err
		}
	}
	a.logOperation(id, string(ai.ServiceGateway), "text-to-speech")
	return out, nil
}

// ImageToText forwards payload unchanged and returns the vendor-shaped JSON.
func (a *App) ImageToText(ctx context.Context, id domain.Identity, payload json.RawMessage) (json.RawMessage, error) {
	return a.forward(ctx, id, "/image-to-text", "image-to-text", payload)
}

func (a *App) ImageToImage(ctx context.Context, id domain.Identity, payload json.RawMessage) (json.RawMessage, error) {
	return a.forward(ctx, id, "/image-to-image", "image-to-image", payload)
}

func (a *App) forward(ctx context.Context, id domain.Identity, path, operation string, payload json.RawMessage) (json.RawMessage, error) {
	if len(payload) == 0 || !json.Valid(payload) {
		return nil, invalid("body", "a JSON object is required")
	}
	if a.gateway == nil {
		return nil, errGatewayNotConfigured
	}
	out, err := a.gateway.Forward(ctx, path, payload)
	if err != nil {
		return nil, err
	}
	a.logOperation(id, string(ai.ServiceGateway), operation)
	return out, nil
}
