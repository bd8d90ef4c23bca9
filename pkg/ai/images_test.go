package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHuggingFaceImagesReturnsBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stabilityai/sdxl" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer hf-token" {
			t.Fatalf("missing token")
		}
		var req hfImageRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Parameters.Width != 512 || req.Parameters.Height != 512 {
			t.Fatalf("unexpected parameters %+v", req.Parameters)
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer srv.Close()

	c := NewHuggingFaceImages(srv.URL, "hf-token", "stabilityai/sdxl", time.Second)
	res, err := c.GenerateImage(context.Background(), ImageRequest{Prompt: "a lighthouse", Size: "512x512"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(res.Data) != 4 || res.ContentType != "image/png" || res.RevisedPrompt != "a lighthouse" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestHuggingFaceImagesRejectsJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"estimated_time": 20}`))
	}))
	defer srv.Close()

	c := NewHuggingFaceImages(srv.URL, "t", "m", time.Second)
	if _, err := c.GenerateImage(context.Background(), ImageRequest{Prompt: "x"}); err == nil {
		t.Fatalf("expected error for non-image response")
	}
}

func TestGoogleImagesWithKey(t *testing.T) {
	png := base64.StdEncoding.EncodeToString([]byte("img"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/imagen-test:predict" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "g-key" {
			t.Fatalf("missing api key header")
		}
		var req predictRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Parameters.AspectRatio != "16:9" {
			t.Fatalf("unexpected aspect ratio %q", req.Parameters.AspectRatio)
		}
		_, _ = w.Write([]byte(`{"predictions":[{"bytesBase64Encoded":"` + png + `","mimeType":"image/png","prompt":"a bright lighthouse"}]}`))
	}))
	defer srv.Close()

	c, err := NewGoogleImagesWithKey("g-key", "models/imagen-test", WithGoogleBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	res, err := c.GenerateImage(context.Background(), ImageRequest{Prompt: "lighthouse", Size: "1792x1008"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if string(res.Data) != "img" || res.RevisedPrompt != "a bright lighthouse" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestGoogleImagesFilteredPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewGoogleImagesWithClient(srv.Client(), "", WithGoogleBaseURL(srv.URL))
	_, err := c.GenerateImage(context.Background(), ImageRequest{Prompt: "x"})
	if _, ok := AsProviderError(err); !ok {
		t.Fatalf("expected ProviderError, got %v", err)
	}
}

func TestOpenAIImagesURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"url":"https://cdn.example/img.png","revised_prompt":"a calm lighthouse"}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIImages(srv.URL, "k", "dall-e-3", time.Second)
	res, err := c.GenerateImage(context.Background(), ImageRequest{Prompt: "lighthouse"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.ImageURL != "https://cdn.example/img.png" || res.RevisedPrompt != "a calm lighthouse" {
		t.Fatalf("unexpected result %+v", res)
	}
}
