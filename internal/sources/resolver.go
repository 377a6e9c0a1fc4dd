package sources

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"scanmaster/internal/imageref"
	"scanmaster/internal/queue"
	"scanmaster/internal/scanapi"
	"scanmaster/internal/services"
)

const (
	stageName          = "sources"
	defaultFetchLimit  = 10 * 1000 * 1000
	defaultHTTPTimeout = 30 * time.Second
)

// Resolver materializes item sources.
type Resolver struct {
	client   *http.Client
	maxBytes int64
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithHTTPClient overrides the client used to fetch URL references.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) {
		if client != nil {
			r.client = client
		}
	}
}

// WithMaxBytes caps the size of fetched or decoded payloads.
func WithMaxBytes(limit int64) Option {
	return func(r *Resolver) {
		if limit > 0 {
			r.maxBytes = limit
		}
	}
}

// NewResolver constructs a Resolver.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		client:   &http.Client{Timeout: defaultHTTPTimeout},
		maxBytes: defaultFetchLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the uploadable payload for an item.
func (r *Resolver) Resolve(ctx context.Context, item queue.Item) (scanapi.Payload, error) {
	if item.Source.IsFile() {
		mimeType := strings.TrimSpace(item.Source.MIMEType)
		if mimeType == "" {
			mimeType = DetectMIME(item.Name, item.Source.Data)
		}
		return scanapi.Payload{Name: item.Name, MIMEType: mimeType, Data: item.Source.Data}, nil
	}

	ref := strings.TrimSpace(item.Source.Ref)
	if ref == "" {
		return scanapi.Payload{}, services.Wrap(services.ErrPayload, stageName, "resolve", "Item has no image source", nil)
	}
	data, mimeType, err := r.Load(ctx, ref)
	if err != nil {
		return scanapi.Payload{}, err
	}
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = DetectMIME(item.Name, data)
	}
	return scanapi.Payload{Name: item.Name, MIMEType: mimeType, Data: data}, nil
}

// Load returns the bytes behind an image reference: data URIs and bare
// base64 are decoded, URLs fetched. The MIME type is empty when unknown.
func (r *Resolver) Load(ctx context.Context, ref string) ([]byte, string, error) {
	ref = strings.TrimSpace(ref)
	var (
		data     []byte
		mimeType string
		err      error
	)
	switch imageref.Classify(ref) {
	case imageref.KindData:
		mimeType, data, err = imageref.ParseDataURI(ref)
		if err != nil {
			return nil, "", services.Wrap(services.ErrPayload, stageName, "decode", "Invalid embedded image", err)
		}
	case imageref.KindBase64:
		data, err = imageref.DecodeBase64(ref)
		if err != nil {
			return nil, "", services.Wrap(services.ErrPayload, stageName, "decode", "Invalid embedded image", err)
		}
	case imageref.KindURL:
		data, mimeType, err = r.fetch(ctx, ref)
		if err != nil {
			return nil, "", err
		}
	default:
		return nil, "", services.Wrap(services.ErrPayload, stageName, "resolve", fmt.Sprintf("Unsupported image reference %q", ref), nil)
	}

	if len(data) == 0 {
		return nil, "", services.Wrap(services.ErrPayload, stageName, "resolve", "Image source is empty", nil)
	}
	if int64(len(data)) > r.maxBytes {
		return nil, "", services.Wrap(services.ErrPayload, stageName, "resolve", "Image source exceeds size limit", nil)
	}
	return data, mimeType, nil
}

func (r *Resolver) fetch(ctx context.Context, ref string) ([]byte, string, error) {
	if strings.HasPrefix(strings.ToLower(ref), "blob:") {
		return nil, "", services.Wrap(services.ErrPayload, stageName, "fetch", "Browser blob references cannot be fetched", nil)
	}
	if strings.HasPrefix(ref, "//") {
		ref = "https:" + ref
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, "", services.Wrap(services.ErrPayload, stageName, "fetch", "Invalid image URL", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", services.Wrap(services.ErrPayload, stageName, "fetch", "Failed to fetch image", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, "", services.Wrap(services.ErrPayload, stageName, "fetch", fmt.Sprintf("Failed to fetch image: HTTP %d", resp.StatusCode), nil)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return nil, "", services.Wrap(services.ErrPayload, stageName, "fetch", "Failed to read image", err)
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return data, mediaType, nil
}

// DetectMIME sniffs data, falling back to the file extension and finally to JPEG.
func DetectMIME(name string, data []byte) string {
	if detected := http.DetectContentType(data); strings.HasPrefix(detected, "image/") {
		return detected
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); strings.HasPrefix(byExt, "image/") {
		return byExt
	}
	return imageref.DefaultMIMEType
}
