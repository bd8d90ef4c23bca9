package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ImageRequest describes a text-to-image generation.
type ImageRequest struct {
	Prompt string
	Style  string
	Size   string
}

// ImageResult carries either a hosted URL or raw image bytes.
type ImageResult struct {
	ImageURL      string
	Data          []byte
	ContentType   string
	RevisedPrompt string
}

// ImageGenerator is implemented by text-to-image vendors.
type ImageGenerator interface {
	Service() Service
	GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error)
}

// ParseSize parses "WIDTHxHEIGHT". Empty input yields 1024x1024.
func ParseSize(size string) (int, int, error) {
	size = strings.TrimSpace(strings.ToLower(size))
	if size == "" {
		return 1024, 1024, nil
	}
	w, h, ok := strings.Cut(size, "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid size %q", size)
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return 0, 0, fmt.Errorf("invalid size %q", size)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return 0, 0, fmt.Errorf("invalid size %q", size)
	}
	return width, height, nil
}

// aspectRatio reduces a size to one of the ratios Imagen accepts.
func aspectRatio(width, height int) string {
	switch {
	case width == height:
		return "1:1"
	case width*9 == height*16:
		return "16:9"
	case width*16 == height*9:
		return "9:16"
	case width*3 == height*4:
		return "4:3"
	case width*4 == height*3:
		return "3:4"
	case width > height:
		return "16:9"
	default:
		return "9:16"
	}
}

const defaultHuggingFaceBaseURL = "https://router.huggingface.co/hf-inference/models"

// HuggingFaceImages calls the Hugging Face inference API, which returns image bytes.
type HuggingFaceImages struct {
	baseURL    string
	token      string
	model      string
	httpClient *http.Client
}

func NewHuggingFaceImages(baseURL, token, model string, timeout time.Duration) *HuggingFaceImages {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultHuggingFaceBaseURL
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HuggingFaceImages{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
		model:      strings.Trim(strings.TrimSpace(model), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *HuggingFaceImages) Service() Service { return ServiceHuggingFace }

func (c *HuggingFaceImages) GenerateImage(ctx context.Context, in ImageRequest) (ImageResult, error) {
	width, height, err := ParseSize(in.Size)
	if err != nil {
		return ImageResult{}, err
	}
	req, err := newJSONRequest(ctx, c.baseURL+"/"+c.model, hfImageRequest{
		Inputs:     in.Prompt,
		Parameters: hfImageParameters{Width: width, Height: height},
	})
	if err != nil {
		return ImageResult{}, transportError(ServiceHuggingFace, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "image/png")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ImageResult{}, transportError(ServiceHuggingFace, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ImageResult{}, responseError(ServiceHuggingFace, resp)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return ImageResult{}, malformedError(ServiceHuggingFace, "unexpected content type %q", contentType)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return ImageResult{}, transportError(ServiceHuggingFace, err)
	}
	if len(data) == 0 {
		return ImageResult{}, malformedError(ServiceHuggingFace, "empty image")
	}
	return ImageResult{Data: data, ContentType: contentType, RevisedPrompt: in.Prompt}, nil
}

type hfImageRequest struct {
	Inputs     string            `json:"inputs"`
	Parameters hfImageParameters `json:"parameters"`
}

type hfImageParameters struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// OpenAIImages calls /images/generations.
type OpenAIImages struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewOpenAIImages(baseURL, apiKey, model string, timeout time.Duration) *OpenAIImages {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIImages{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		model:      strings.TrimSpace(model),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *OpenAIImages) Service() Service { return ServiceOpenAI }

func (c *OpenAIImages) GenerateImage(ctx context.Context, in ImageRequest) (ImageResult, error) {
	size := strings.TrimSpace(in.Size)
	if size == "" {
		size = "1024x1024"
	}
	req, err := newJSONRequest(ctx, c.baseURL+"/images/generations", oaiImageRequest{
		Model:  c.model,
		Prompt: in.Prompt,
		Size:   size,
		N:      1,
	})
	if err != nil {
		return ImageResult{}, transportError(ServiceOpenAI, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	var out oaiImageResponse
	if err := doJSON(c.httpClient, ServiceOpenAI, req, &out); err != nil {
		return ImageResult{}, err
	}
	if len(out.Data) == 0 {
		return ImageResult{}, malformedError(ServiceOpenAI, "response has no images")
	}
	img := out.Data[0]
	res := ImageResult{ImageURL: img.URL, RevisedPrompt: img.RevisedPrompt}
	if res.RevisedPrompt == "" {
		res.RevisedPrompt = in.Prompt
	}
	if res.ImageURL == "" && img.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(img.B64JSON)
		if err != nil {
			return ImageResult{}, malformedError(ServiceOpenAI, "decode image: %v", err)
		}
		res.Data = data
		res.ContentType = "image/png"
	}
	if res.ImageURL == "" && len(res.Data) == 0 {
		return ImageResult{}, malformedError(ServiceOpenAI, "image missing url and data")
	}
	return res, nil
}

type oaiImageRequest struct {
	Model  string `json:"model,omitempty"`
	Prompt string `json:"prompt"`
	Size   string `json:"size"`
	N      int    `json:"n"`
}

type oaiImageResponse struct {
	Data []struct {
		URL           string `json:"url"`
		B64JSON       string `json:"b64_json"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}
