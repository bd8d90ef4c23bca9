package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// GatewayClient talks to the external AI gateway that fronts speech and
// vision models. Paths are relative to the gateway base URL.
type GatewayClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewGatewayClient(baseURL, apiKey string, timeout time.Duration) *GatewayClient {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &GatewayClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the configured gateway root.
func (c *GatewayClient) BaseURL() string { return c.baseURL }

type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type Transcription struct {
	Text     string              `json:"text"`
	Segments []TranscriptSegment `json:"segments,omitempty"`
}

// SpeechToText transcribes the audio at audioURL.
func (c *GatewayClient) SpeechToText(ctx context.Context, audioURL, language string) (Transcription, error) {
	req, err := c.newRequest(ctx, "/speech-to-text", map[string]any{
		"audioUrl": audioURL,
		"language": language,
	})
	if err != nil {
		return Transcription{}, err
	}
	var out Transcription
	if err := doJSON(c.httpClient, ServiceGateway, req, &out); err != nil {
		return Transcription{}, err
	}
	return out, nil
}

// Speech is either a hosted audio URL or raw audio bytes.
type Speech struct {
	AudioURL        string
	Data            []byte
	ContentType     string
	DurationSeconds float64
}

// TextToSpeech synthesizes text. The gateway answers with JSON
// {audioUrl, durationSeconds} or with the audio itself.
func (c *GatewayClient) TextToSpeech(ctx context.Context, text, voice string, speed float64) (Speech, error) {
	payload := map[string]any{"text": text}
	if voice != "" {
		payload["voice"] = voice
	}
	if speed > 0 {
		payload["speed"] = speed
	}
	req, err := c.newRequest(ctx, "/text-to-speech", payload)
	if err != nil {
		return Speech{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Speech{}, transportError(ServiceGateway, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Speech{}, responseError(ServiceGateway, resp)
	}
	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "audio/") {
		data, err := io.ReadAll(io.LimitReader(resp.Body, 50<<20))
		if err != nil {
			return Speech{}, transportError(ServiceGateway, err)
		}
		duration, _ := strconv.ParseFloat(resp.Header.Get("X-Audio-Duration"), 64)
		return Speech{Data: data, ContentType: contentType, DurationSeconds: duration}, nil
	}
	var out struct {
		AudioURL        string  `json:"audioUrl"`
		DurationSeconds float64 `json:"durationSeconds"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Speech{}, malformedError(ServiceGateway, "decode response: %v", err)
	}
	if out.AudioURL == "" {
		return Speech{}, malformedError(ServiceGateway, "response missing audioUrl")
	}
	return Speech{AudioURL: out.AudioURL, DurationSeconds: out.DurationSeconds}, nil
}

// Forward posts payload to path and returns the vendor-shaped JSON unchanged.
func (c *GatewayClient) Forward(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, path, payload)
	if err != nil {
		return nil, err
	}
	var out json.RawMessage
	if err := doJSON(c.httpClient, ServiceGateway, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GatewayClient) newRequest(ctx context.Context, path string, payload any) (*http.Request, error) {
	req, err := newJSONRequest(ctx, c.baseURL+"/"+strings.TrimLeft(path, "/"), payload)
	if err != nil {
		return nil, transportError(ServiceGateway, err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}
