package sources_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"scanmaster/internal/imageref"
	"scanmaster/internal/queue"
	"scanmaster/internal/services"
	"scanmaster/internal/sources"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 3, 3))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestResolveFileSourceUsesBytesDirectly(t *testing.T) {
	data := pngBytes(t)
	item := queue.NewFileItem("scan.png", "", data)

	payload, err := sources.NewResolver().Resolve(context.Background(), *item)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if payload.Name != "scan.png" || payload.MIMEType != "image/png" || !bytes.Equal(payload.Data, data) {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestResolveReferenceSources(t *testing.T) {
	data := pngBytes(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))
	defer server.Close()

	tests := []struct {
		name string
		ref  string
	}{
		{"data uri", imageref.DataURI("image/png", data)},
		{"bare base64", base64.StdEncoding.EncodeToString(data)},
		{"http url", server.URL + "/sample.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := queue.NewRefItem("AI_Sample_1234.png", tt.ref)
			payload, err := sources.NewResolver().Resolve(context.Background(), *item)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if payload.Name != "AI_Sample_1234.png" {
				t.Fatalf("payload must carry display name, got %q", payload.Name)
			}
			if payload.MIMEType != "image/png" {
				t.Fatalf("unexpected mime %q", payload.MIMEType)
			}
			if !bytes.Equal(payload.Data, data) {
				t.Fatal("payload bytes differ from source")
			}
		})
	}

	failures := []string{
		server.URL + "/missing.png",
		"blob:http://localhost/123",
		"data:image/png;base64,@@@",
		"not-a-reference",
	}
	for _, ref := range failures {
		item := queue.NewRefItem("x.png", ref)
		if _, err := sources.NewResolver().Resolve(context.Background(), *item); !errors.Is(err, services.ErrPayload) {
			t.Fatalf("%s: expected payload error, got %v", ref, err)
		}
	}
}

func TestResolveEnforcesSizeLimit(t *testing.T) {
	data := pngBytes(t)
	item := queue.NewRefItem("x.png", imageref.DataURI("image/png", data))
	_, err := sources.NewResolver(sources.WithMaxBytes(8)).Resolve(context.Background(), *item)
	if !errors.Is(err, services.ErrPayload) {
		t.Fatalf("expected payload error, got %v", err)
	}
}

func TestDetectMIMEFallsBackToExtension(t *testing.T) {
	if got := sources.DetectMIME("photo.webp", []byte("????")); got != "image/webp" {
		t.Fatalf("expected extension based mime, got %q", got)
	}
	if got := sources.DetectMIME("blob", []byte("????")); got != imageref.DefaultMIMEType {
		t.Fatalf("expected default mime, got %q", got)
	}
}
