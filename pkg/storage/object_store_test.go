package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

type memoryStore struct {
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func (m *memoryStore) Put(_ context.Context, key string, r io.Reader, size int64, contentType string) error {
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *memoryStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://objects.local/" + key + "?sig=1", nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func TestPutBytesUploadsAndPresigns(t *testing.T) {
	store := &memoryStore{objects: map[string][]byte{}, types: map[string]string{}}
	url, err := PutBytes(context.Background(), store, "t1/logos/a.png", []byte("png"), "image/png", time.Hour)
	if err != nil {
		t.Fatalf("put bytes: %v", err)
	}
	if !bytes.Equal(store.objects["t1/logos/a.png"], []byte("png")) || store.types["t1/logos/a.png"] != "image/png" {
		t.Fatalf("object not stored: %+v", store.objects)
	}
	if url != "https://objects.local/t1/logos/a.png?sig=1" {
		t.Fatalf("unexpected url %q", url)
	}
}

func TestPutBytesPropagatesPutError(t *testing.T) {
	store := &memoryStore{objects: map[string][]byte{}, types: map[string]string{}, putErr: errors.New("bucket gone")}
	if _, err := PutBytes(context.Background(), store, "k", []byte("x"), "image/png", time.Hour); err == nil {
		t.Fatalf("expected error")
	}
}

func TestObjectKeyIsTenantScoped(t *testing.T) {
	a := ObjectKey("tenant-1", "logos", ".png")
	b := ObjectKey("tenant-1", "logos", "png")
	if !strings.HasPrefix(a, "tenant-1/logos/") || !strings.HasSuffix(a, ".png") {
		t.Fatalf("unexpected key %q", a)
	}
	if a == b {
		t.Fatalf("expected unique keys, got %q twice", a)
	}
	if strings.Contains(ObjectKey("t", "audio", ""), ".") {
		t.Fatalf("expected no extension")
	}
}

func TestExtForContentType(t *testing.T) {
	cases := map[string]string{
		"image/png":                "png",
		"IMAGE/JPEG":               "jpg",
		"audio/mpeg; charset=x":    "mp3",
		"application/octet-stream": "bin",
	}
	for in, want := range cases {
		if got := ExtForContentType(in); got != want {
			t.Fatalf("ExtForContentType(%q) = %q, want %q", in, got, want)
		}
	}
}
