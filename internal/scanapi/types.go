package scanapi

import (
	"context"
	"encoding/json"
	"time"

	"scanmaster/internal/imageref"
)

// CodeSuccess is the envelope code for a successful call.
const CodeSuccess = 200

// Envelope is the response wrapper shared by every backend endpoint.
type Envelope[T any] struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      T      `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// Success wraps data in a success envelope.
func Success[T any](data T) Envelope[T] {
	return Envelope[T]{Code: CodeSuccess, Message: "success", Data: data, Timestamp: time.Now().UnixMilli()}
}

// Failure builds an error envelope.
func Failure(code int, message string) Envelope[any] {
	return Envelope[any]{Code: code, Message: message, Timestamp: time.Now().UnixMilli()}
}

// Payload is an uploadable image.
type Payload struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Boundary is a detected document region in source pixel coordinates.
type Boundary struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// BackendResult is one processed output as returned by the backend. Fields
// hold normalized, displayable references.
type BackendResult struct {
	Original string
	Preview  string
	Cropped  string
}

// wireResult accepts both naming styles the backend uses.
type wireResult struct {
	Img          imageref.Value `json:"img"`
	PredictImg   imageref.Value `json:"predict_img"`
	PreviewImage imageref.Value `json:"previewImage"`
	CropImg      imageref.Value `json:"crop_img"`
	CroppedImage imageref.Value `json:"croppedImage"`
}

// WireResult is the JSON shape written by backends speaking this protocol.
type WireResult struct {
	Img        any `json:"img,omitempty"`
	PredictImg any `json:"predict_img"`
	CropImg    any `json:"crop_img"`
}

func (w wireResult) resolve(baseURL string) BackendResult {
	preview := w.PredictImg
	if preview.IsZero() {
		preview = w.PreviewImage
	}
	cropped := w.CropImg
	if cropped.IsZero() {
		cropped = w.CroppedImage
	}
	return BackendResult{
		Original: w.Img.Resolve(baseURL),
		Preview:  preview.Resolve(baseURL),
		Cropped:  cropped.Resolve(baseURL),
	}
}

// uploadData accepts the remote reference as a bare string or {"path": "..."}.
type uploadData struct {
	Ref string
}

func (u *uploadData) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		u.Ref = s
		return nil
	}
	var obj struct {
		Path string `json:"path"`
		Ref  string `json:"ref"`
		URL  string `json:"url"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	switch {
	case obj.Path != "":
		u.Ref = obj.Path
	case obj.Ref != "":
		u.Ref = obj.Ref
	default:
		u.Ref = obj.URL
	}
	return nil
}

// PredictRequest is the body of predict_crop and detect calls.
type PredictRequest struct {
	Images []string `json:"images"`
}

// CropRequest is the body of the crop call.
type CropRequest struct {
	Image    string   `json:"image"`
	Boundary Boundary `json:"boundary"`
}

// Client is the scan backend surface the workflow depends on.
type Client interface {
	Upload(ctx context.Context, payload Payload) (string, error)
	PredictAndCrop(ctx context.Context, refs []string) ([]BackendResult, error)
	Detect(ctx context.Context, ref string) (Boundary, error)
	Crop(ctx context.Context, ref string, boundary Boundary) ([]BackendResult, error)
}

// HealthChecker is implemented by clients that can check backend liveness.
type HealthChecker interface {
	Health(ctx context.Context) error
}
