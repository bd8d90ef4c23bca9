package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultGoogleAIBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GoogleImages calls the Google AI Studio Imagen :predict endpoint.
// Authentication is either an API key or an HTTP client that already
// carries OAuth credentials.
type GoogleImages struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// GoogleImagesOption customises a GoogleImages client.
type GoogleImagesOption func(*GoogleImages)

// WithGoogleBaseURL overrides the API base URL.
func WithGoogleBaseURL(baseURL string) GoogleImagesOption {
	return func(g *GoogleImages) {
		if strings.TrimSpace(baseURL) != "" {
			g.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
		}
	}
}

// NewGoogleImagesWithKey authenticates with a per-tenant API key.
func NewGoogleImagesWithKey(apiKey, model string, opts ...GoogleImagesOption) (*GoogleImages, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("google ai studio api key required")
	}
	return newGoogleImages(apiKey, model, &http.Client{Timeout: 120 * time.Second}, opts), nil
}

// NewGoogleImagesWithClient authenticates through client, typically an
// oauth2 client that injects and refreshes bearer tokens.
func NewGoogleImagesWithClient(client *http.Client, model string, opts ...GoogleImagesOption) *GoogleImages {
	return newGoogleImages("", model, client, opts)
}

func newGoogleImages(apiKey, model string, client *http.Client, opts []GoogleImagesOption) *GoogleImages {
	model = strings.TrimPrefix(strings.TrimSpace(model), "models/")
	if model == "" {
		model = "imagen-3.0-generate-002"
	}
	g := &GoogleImages{
		apiKey:     apiKey,
		baseURL:    defaultGoogleAIBaseURL,
		model:      model,
		httpClient: client,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

func (c *GoogleImages) Service() Service { return ServiceGoogleAIStudio }

func (c *GoogleImages) GenerateImage(ctx context.Context, in ImageRequest) (ImageResult, error) {
	width, height, err := ParseSize(in.Size)
	if err != nil {
		return ImageResult{}, err
	}
	url := fmt.Sprintf("%s/models/%s:predict", c.baseURL, c.model)
	req, err := newJSONRequest(ctx, url, predictRequest{
		Instances:  []predictInstance{{Prompt: in.Prompt}},
		Parameters: predictParameters{SampleCount: 1, AspectRatio: aspectRatio(width, height), EnhancePrompt: true},
	})
	if err != nil {
		return ImageResult{}, transportError(ServiceGoogleAIStudio, err)
	}
	if c.apiKey != "" {
		req.Header.Set("x-goog-api-key", c.apiKey)
	}
	var out predictResponse
	if err := doJSON(c.httpClient, ServiceGoogleAIStudio, req, &out); err != nil {
		return ImageResult{}, err
	}
	if len(out.Predictions) == 0 || out.Predictions[0].BytesBase64Encoded == "" {
		return ImageResult{}, malformedError(ServiceGoogleAIStudio, "response has no image (prompt may have been filtered)")
	}
	pred := out.Predictions[0]
	data, err := base64.StdEncoding.DecodeString(pred.BytesBase64Encoded)
	if err != nil {
		return ImageResult{}, malformedError(ServiceGoogleAIStudio, "decode image: %v", err)
	}
	contentType := pred.MimeType
	if contentType == "" {
		contentType = "image/png"
	}
	revised := strings.TrimSpace(pred.Prompt)
	if revised == "" {
		revised = in.Prompt
	}
	return ImageResult{Data: data, ContentType: contentType, RevisedPrompt: revised}, nil
}

type predictInstance struct {
	Prompt string `json:"prompt"`
}

type predictParameters struct {
	SampleCount   int    `json:"sampleCount"`
	AspectRatio   string `json:"aspectRatio,omitempty"`
	EnhancePrompt bool   `json:"enhancePrompt"`
}

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParameters `json:"parameters"`
}

type predictResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
		MimeType           string `json:"mimeType"`
		Prompt             string `json:"prompt"`
	} `json:"predictions"`
}
