package queue

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle of a work item.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusUploading Status = "uploading"
	StatusDetecting Status = "detecting"
	StatusCropping  Status = "cropping"
	StatusCropped   Status = "cropped"
	StatusError     Status = "error"
)

// DefaultFailureMessage is recorded when a failure carries no message of its own.
const DefaultFailureMessage = "Unknown error"

var allStatuses = []Status{
	StatusIdle,
	StatusUploading,
	StatusDetecting,
	StatusCropping,
	StatusCropped,
	StatusError,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusUploading: {},
	StatusDetecting: {},
	StatusCropping:  {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessingStatus reports whether a status reflects an in-flight operation.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsTerminal reports whether the status ends a processing attempt.
func (s Status) IsTerminal() bool {
	return s == StatusCropped || s == StatusError
}

// Source is the immutable payload an item was created from: either raw file
// bytes or an image reference (URL, data URI, or bare base64). Data must not be
// mutated once the item is registered.
type Source struct {
	Data     []byte
	FileName string
	MIMEType string
	Ref      string
}

// IsFile reports whether the source carries raw file bytes.
func (s Source) IsFile() bool {
	return len(s.Data) > 0
}

func (s Source) equal(other Source) bool {
	return s.FileName == other.FileName &&
		s.MIMEType == other.MIMEType &&
		s.Ref == other.Ref &&
		bytes.Equal(s.Data, other.Data)
}

// Result is one processed output for an item. Preview is the detection overlay,
// Cropped the final crop, Original an optional backend echo of the input.
type Result struct {
	Original string
	Preview  string
	Cropped  string
}

// Item represents one image moving through the processing pipeline.
type Item struct {
	ID           string
	Name         string
	Source       Source
	Status       Status
	RemoteRef    string
	Results      []Result
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewFileItem creates an idle item backed by uploaded file bytes.
func NewFileItem(name, mimeType string, data []byte) *Item {
	return newItem(name, Source{Data: data, FileName: name, MIMEType: mimeType})
}

// NewRefItem creates an idle item backed by an image reference.
func NewRefItem(name, ref string) *Item {
	return newItem(name, Source{Ref: ref})
}

func newItem(name string, source Source) *Item {
	now := time.Now().UTC()
	return &Item{
		ID:        uuid.NewString(),
		Name:      name,
		Source:    source,
		Status:    StatusIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a copy whose Results slice is independent of the receiver.
// Source bytes are shared.
func (i Item) Clone() Item {
	cp := i
	if i.Results != nil {
		cp.Results = append([]Result(nil), i.Results...)
	}
	return cp
}

// IsProcessing returns true when the status reflects an in-flight operation.
func (i Item) IsProcessing() bool {
	return IsProcessingStatus(i.Status)
}

// Validate checks that results and error message agree with the status.
func (i Item) Validate() error {
	if _, ok := statusSet[i.Status]; !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvariant, i.Status)
	}
	hasResults := len(i.Results) > 0
	if hasResults != (i.Status == StatusCropped) {
		return fmt.Errorf("%w: %d results with status %s", ErrInvariant, len(i.Results), i.Status)
	}
	hasError := i.ErrorMessage != ""
	if hasError != (i.Status == StatusError) {
		return fmt.Errorf("%w: error message %q with status %s", ErrInvariant, i.ErrorMessage, i.Status)
	}
	return nil
}

// BeginUpload moves an idle item into uploading.
func (i *Item) BeginUpload() error {
	return i.transition(StatusUploading, StatusIdle)
}

// BeginDetect records the backend reference and moves the item into detecting.
func (i *Item) BeginDetect(remoteRef string) error {
	if err := i.transition(StatusDetecting, StatusUploading); err != nil {
		return err
	}
	i.RemoteRef = remoteRef
	return nil
}

// BeginCrop moves a detected item into cropping. Only the separate detect and
// crop producer uses this step.
func (i *Item) BeginCrop() error {
	return i.transition(StatusCropping, StatusDetecting)
}

// Complete stores results and marks the item cropped. At least one result is required.
func (i *Item) Complete(results []Result) error {
	if len(results) == 0 {
		return fmt.Errorf("%w: complete requires at least one result", ErrInvariant)
	}
	if err := i.transition(StatusCropped, StatusDetecting, StatusCropping); err != nil {
		return err
	}
	i.Results = append([]Result(nil), results...)
	i.ErrorMessage = ""
	return nil
}

// Fail marks an in-flight item as errored with the given message.
func (i *Item) Fail(message string) error {
	if err := i.transition(StatusError, StatusUploading, StatusDetecting, StatusCropping); err != nil {
		return err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = DefaultFailureMessage
	}
	i.ErrorMessage = message
	i.Results = nil
	return nil
}

// ResetForRetry returns an errored item to idle, clearing the previous attempt.
func (i *Item) ResetForRetry() error {
	if err := i.transition(StatusIdle, StatusError); err != nil {
		return err
	}
	i.ErrorMessage = ""
	i.Results = nil
	i.RemoteRef = ""
	return nil
}

func (i *Item) transition(to Status, from ...Status) error {
	for _, allowed := range from {
		if i.Status == allowed {
			i.Status = to
			i.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, i.Status, to)
}

// Stats describes aggregated registry counts.
type Stats struct {
	Total     int
	Idle      int
	Active    int
	Cropped   int
	Failed    int
	ByStatus  map[Status]int
	Attempted int
}

// Progress returns the share of attempted items that finished cropped, as a
// rounded percentage. Idle items are not counted.
func (s Stats) Progress() int {
	if s.Attempted == 0 {
		return 0
	}
	return (s.Cropped*100 + s.Attempted/2) / s.Attempted
}
