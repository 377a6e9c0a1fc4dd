package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"scanmaster/internal/imageref"
	"scanmaster/internal/logging"
	"scanmaster/internal/scanapi"
)

var (
	errSimulated   = errors.New(SimulatedFailureMessage)
	errBadRequest  = errors.New("bad request")
	errUnsupported = errors.New("unsupported image")
)

var blobRoutes = map[string]BlobKind{
	"uploads":  BlobUpload,
	"previews": BlobPreview,
	"crops":    BlobCrop,
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.db.PingContext(r.Context()); err != nil {
		writeFailure(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeData(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.fail(w, r, "stats", err)
		return
	}
	writeData(w, stats)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := s.simulate(r.Context()); err != nil {
		s.fail(w, r, "upload", err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+uploadHeadroom)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.fail(w, r, "upload", fmt.Errorf("%w: multipart field \"file\" is required: %w", errBadRequest, err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.maxUpload+1))
	if err != nil {
		s.fail(w, r, "upload", fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if int64(len(data)) > s.maxUpload {
		writeFailure(w, http.StatusRequestEntityTooLarge, "File too large")
		return
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		s.fail(w, r, "upload", fmt.Errorf("%w: %v", errUnsupported, err))
		return
	}

	mimeType := imageref.SniffImageType(data)
	id, err := s.store.Put(r.Context(), Blob{
		Kind:     BlobUpload,
		Name:     filepath.Base(header.Filename),
		MIMEType: mimeType,
		Data:     data,
	})
	if err != nil {
		s.fail(w, r, "upload", err)
		return
	}
	writeData(w, map[string]string{"path": "/uploads/" + id})
}

func (s *Server) handlePredictCrop(w http.ResponseWriter, r *http.Request) {
	var req scanapi.PredictRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, "predict_crop", err)
		return
	}
	if len(req.Images) == 0 {
		s.fail(w, r, "predict_crop", fmt.Errorf("%w: images are required", errBadRequest))
		return
	}
	if err := s.simulate(r.Context()); err != nil {
		s.fail(w, r, "predict_crop", err)
		return
	}

	results := make([]scanapi.WireResult, 0, len(req.Images))
	for _, ref := range req.Images {
		src, sourceID, err := s.loadImage(r.Context(), ref)
		if err != nil {
			s.fail(w, r, "predict_crop", err)
			return
		}
		result, err := s.process(r.Context(), ref, sourceID, src, s.boundaryFor(src.Bounds()))
		if err != nil {
			s.fail(w, r, "predict_crop", err)
			return
		}
		results = append(results, result)
	}
	writeData(w, results)
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req scanapi.PredictRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, "detect", err)
		return
	}
	if len(req.Images) != 1 {
		s.fail(w, r, "detect", fmt.Errorf("%w: exactly one image is required", errBadRequest))
		return
	}
	if err := s.simulate(r.Context()); err != nil {
		s.fail(w, r, "detect", err)
		return
	}
	src, _, err := s.loadImage(r.Context(), req.Images[0])
	if err != nil {
		s.fail(w, r, "detect", err)
		return
	}
	writeData(w, s.boundaryFor(src.Bounds()))
}

func (s *Server) handleCrop(w http.ResponseWriter, r *http.Request) {
	var req scanapi.CropRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, "crop", err)
		return
	}
	if strings.TrimSpace(req.Image) == "" {
		s.fail(w, r, "crop", fmt.Errorf("%w: image is required", errBadRequest))
		return
	}
	if err := s.simulate(r.Context()); err != nil {
		s.fail(w, r, "crop", err)
		return
	}
	src, sourceID, err := s.loadImage(r.Context(), req.Image)
	if err != nil {
		s.fail(w, r, "crop", err)
		return
	}
	result, err := s.process(r.Context(), req.Image, sourceID, src, req.Boundary)
	if err != nil {
		s.fail(w, r, "crop", err)
		return
	}
	writeData(w, []scanapi.WireResult{result})
}

// process crops src to boundary and stores the preview and crop. The crop is
// returned as bare base64 and the preview as a server path.
func (s *Server) process(ctx context.Context, ref, sourceID string, src image.Image, boundary scanapi.Boundary) (scanapi.WireResult, error) {
	cropped, err := cropImage(src, boundary)
	if err != nil {
		return scanapi.WireResult{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	preview, err := previewImage(src, boundary)
	if err != nil {
		return scanapi.WireResult{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	cropBytes, err := encodeJPEG(cropped, s.quality)
	if err != nil {
		return scanapi.WireResult{}, err
	}
	previewBytes, err := encodeJPEG(preview, s.quality)
	if err != nil {
		return scanapi.WireResult{}, err
	}

	previewID, err := s.store.Put(ctx, Blob{Kind: BlobPreview, MIMEType: "image/jpeg", Data: previewBytes, SourceID: sourceID})
	if err != nil {
		return scanapi.WireResult{}, err
	}
	if _, err := s.store.Put(ctx, Blob{Kind: BlobCrop, MIMEType: "image/jpeg", Data: cropBytes, SourceID: sourceID}); err != nil {
		return scanapi.WireResult{}, err
	}
	return scanapi.WireResult{
		Img:        ref,
		PredictImg: "/previews/" + previewID,
		CropImg:    base64.StdEncoding.EncodeToString(cropBytes),
	}, nil
}

// loadImage resolves a reference issued by this backend, or an inline data
// URI or base64 payload, and decodes it.
func (s *Server) loadImage(ctx context.Context, ref string) (image.Image, string, error) {
	ref = strings.TrimSpace(ref)
	var (
		data     []byte
		sourceID string
		err      error
	)
	switch imageref.Classify(ref) {
	case imageref.KindData:
		_, data, err = imageref.ParseDataURI(ref)
	case imageref.KindBase64:
		data, err = imageref.DecodeBase64(ref)
	default:
		var blob Blob
		blob, err = s.lookup(ctx, ref)
		data = blob.Data
		sourceID = blob.ID
	}
	if err != nil {
		return nil, "", err
	}
	img, _, err := decodeImage(data)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", errUnsupported, err)
	}
	return img, sourceID, nil
}

func (s *Server) lookup(ctx context.Context, ref string) (Blob, error) {
	path := ref
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		path = u.Path
	}
	route, id, ok := strings.Cut(strings.Trim(path, "/"), "/")
	kind, known := blobRoutes[route]
	if !ok || !known || id == "" || strings.Contains(id, "/") {
		return Blob{}, fmt.Errorf("%w: %q", ErrBlobNotFound, ref)
	}
	blob, err := s.store.Get(ctx, kind, id)
	if err != nil {
		return Blob{}, fmt.Errorf("%w: %q", err, ref)
	}
	return blob, nil
}

func (s *Server) blobHandler(kind BlobKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		blob, err := s.store.Get(r.Context(), kind, r.PathValue("id"))
		if err != nil {
			s.fail(w, r, "serve "+string(kind), err)
			return
		}
		serveBytes(w, blob.MIMEType, blob.Data)
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status, message := failureStatus(err)
	logger := logging.WithContext(r.Context(), s.logger)
	if status >= http.StatusInternalServerError {
		logger.Warn("backend call failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "backend_call_failed"),
			logging.String("operation", operation),
			logging.Int("status", status),
		)
	} else {
		logger.Debug("backend call rejected",
			logging.Error(err),
			logging.String("operation", operation),
			logging.Int("status", status),
		)
	}
	writeFailure(w, status, message)
}

func failureStatus(err error) (int, string) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, errSimulated):
		return http.StatusInternalServerError, SimulatedFailureMessage
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge, "File too large"
	case errors.Is(err, ErrBlobNotFound):
		return http.StatusNotFound, "Image not found"
	case errors.Is(err, errUnsupported):
		return http.StatusUnprocessableEntity, "Unsupported image format"
	case errors.Is(err, errBadRequest), errors.Is(err, imageref.ErrNotDataURI):
		return http.StatusBadRequest, strings.TrimPrefix(err.Error(), errBadRequest.Error()+": ")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "Request cancelled"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}
