package daemon

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"

	"scanmaster/internal/services"
	"scanmaster/internal/session"
)

const (
	uploadField       = "files"
	maxUploadFiles    = 50
	multipartMemory   = 32 << 20
	multipartHeadroom = 1 << 20
)

// readUploads parses a multipart request into session files. Each part is
// capped at maxFile bytes.
func readUploads(w http.ResponseWriter, r *http.Request, maxFile int64) ([]session.File, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFile*maxUploadFiles+multipartHeadroom)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, services.Wrap(services.ErrValidation, "api", "parse upload", "Expected a multipart form with image files", err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File[uploadField]
	if len(headers) == 0 {
		return nil, services.Wrap(services.ErrValidation, "api", "parse upload", fmt.Sprintf("No %q parts in request", uploadField), nil)
	}
	if len(headers) > maxUploadFiles {
		return nil, services.Wrap(services.ErrValidation, "api", "parse upload", fmt.Sprintf("At most %d files per request", maxUploadFiles), nil)
	}

	files := make([]session.File, 0, len(headers))
	for _, header := range headers {
		file, err := readPart(header, maxFile)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, nil
}

func readPart(header *multipart.FileHeader, maxFile int64) (session.File, error) {
	name := filepath.Base(strings.TrimSpace(header.Filename))
	if header.Size > maxFile {
		msg := fmt.Sprintf("File %q exceeds %s", name, units.HumanSize(float64(maxFile)))
		return session.File{}, services.Wrap(services.ErrValidation, "api", "read upload", msg, nil)
	}
	part, err := header.Open()
	if err != nil {
		return session.File{}, services.Wrap(services.ErrValidation, "api", "read upload", fmt.Sprintf("Cannot read %q", name), err)
	}
	defer part.Close()

	data, err := io.ReadAll(io.LimitReader(part, maxFile+1))
	if err != nil {
		return session.File{}, services.Wrap(services.ErrValidation, "api", "read upload", fmt.Sprintf("Cannot read %q", name), err)
	}
	if int64(len(data)) > maxFile {
		msg := fmt.Sprintf("File %q exceeds %s", name, units.HumanSize(float64(maxFile)))
		return session.File{}, services.Wrap(services.ErrValidation, "api", "read upload", msg, nil)
	}

	mimeType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return session.File{}, services.Wrap(services.ErrValidation, "api", "read upload", fmt.Sprintf("File %q is not an image (%s)", name, mimeType), nil)
	}
	return session.File{Name: name, MIMEType: mimeType, Data: data}, nil
}
