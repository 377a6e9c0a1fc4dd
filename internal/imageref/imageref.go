package imageref

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Kind identifies how a reference value should be interpreted.
type Kind string

const (
	KindURL    Kind = "url"
	KindData   Kind = "data"
	KindBase64 Kind = "base64"
	KindPath   Kind = "path"
)

// DefaultMIMEType is used when decoded bytes do not identify an image format.
const DefaultMIMEType = "image/jpeg"

// ErrNotDataURI reports a value that is not a base64 data URI.
var ErrNotDataURI = errors.New("not a base64 data URI")

// Ref is a tagged image reference.
type Ref struct {
	Kind  Kind   `json:"kind"`
	Value string `json:"value"`
}

// Resolve returns the displayable form of a tagged reference.
func (r Ref) Resolve(baseURL string) string {
	value := strings.TrimSpace(r.Value)
	switch r.Kind {
	case KindData, KindURL:
		return value
	case KindBase64:
		return wrapBase64(value)
	case KindPath:
		return resolvePath(value, baseURL)
	default:
		return Normalize(value, baseURL)
	}
}

// Value is a reference decoded from JSON that may be either a plain string or
// a tagged {"kind","value"} object.
type Value struct {
	Ref    Ref
	Tagged bool
}

// UnmarshalJSON accepts a string or a tagged object.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*v = Value{}
		return nil
	}
	if strings.HasPrefix(trimmed, "{") {
		var ref Ref
		if err := json.Unmarshal(data, &ref); err != nil {
			return fmt.Errorf("decode tagged reference: %w", err)
		}
		*v = Value{Ref: ref, Tagged: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode reference: %w", err)
	}
	*v = Value{Ref: Ref{Value: s}}
	return nil
}

// MarshalJSON writes tagged references as objects and plain ones as strings.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Tagged {
		return json.Marshal(v.Ref)
	}
	return json.Marshal(v.Ref.Value)
}

// IsZero reports whether no reference was supplied.
func (v Value) IsZero() bool {
	return strings.TrimSpace(v.Ref.Value) == ""
}

// Resolve normalizes the value, trusting the tag when present.
func (v Value) Resolve(baseURL string) string {
	if v.IsZero() {
		return ""
	}
	if v.Tagged {
		return v.Ref.Resolve(baseURL)
	}
	return Normalize(v.Ref.Value, baseURL)
}

// Classify guesses the kind of an untagged reference.
func Classify(value string) Kind {
	value = strings.TrimSpace(value)
	lower := strings.ToLower(value)
	switch {
	case strings.HasPrefix(lower, "data:"):
		return KindData
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"),
		strings.HasPrefix(lower, "blob:"), strings.HasPrefix(value, "//"):
		return KindURL
	case strings.HasPrefix(value, jpegBase64Prefix) && looksLikeBase64(value):
		return KindBase64
	case strings.HasPrefix(value, "/"), strings.HasPrefix(value, "./"), strings.HasPrefix(value, "../"):
		return KindPath
	case looksLikeBase64(value):
		return KindBase64
	default:
		return KindPath
	}
}

// Normalize converts an untagged reference into a displayable one.
func Normalize(value, baseURL string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	switch Classify(value) {
	case KindBase64:
		return wrapBase64(value)
	case KindPath:
		return resolvePath(value, baseURL)
	default:
		return value
	}
}

// DataURI encodes data as a base64 data URI.
func DataURI(mimeType string, data []byte) string {
	if strings.TrimSpace(mimeType) == "" {
		mimeType = SniffImageType(data)
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURI decodes a base64 data URI into its MIME type and bytes.
func ParseDataURI(value string) (string, []byte, error) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(strings.ToLower(value), "data:") {
		return "", nil, ErrNotDataURI
	}
	header, payload, ok := strings.Cut(value[len("data:"):], ",")
	if !ok {
		return "", nil, ErrNotDataURI
	}
	params := strings.Split(header, ";")
	mimeType := strings.TrimSpace(params[0])
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}
	if !isBase64 {
		decoded, err := url.PathUnescape(payload)
		if err != nil {
			return "", nil, fmt.Errorf("decode data URI: %w", err)
		}
		return mimeType, []byte(decoded), nil
	}
	data, err := DecodeBase64(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URI: %w", err)
	}
	if mimeType == "" {
		mimeType = SniffImageType(data)
	}
	return mimeType, data, nil
}

// DecodeBase64 accepts padded or unpadded, standard or URL-safe base64.
func DecodeBase64(value string) ([]byte, error) {
	value = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, value)
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding,
	} {
		if data, err := enc.DecodeString(value); err == nil {
			return data, nil
		}
	}
	return nil, errors.New("invalid base64 payload")
}

// SniffImageType returns the image MIME type of data, or DefaultMIMEType when
// the bytes are not a recognised image.
func SniffImageType(data []byte) string {
	detected := http.DetectContentType(data)
	if strings.HasPrefix(detected, "image/") {
		return detected
	}
	return DefaultMIMEType
}

func wrapBase64(value string) string {
	data, err := DecodeBase64(value)
	mimeType := DefaultMIMEType
	if err == nil {
		mimeType = SniffImageType(data)
	}
	return "data:" + mimeType + ";base64," + strings.TrimSpace(value)
}

func resolvePath(value, baseURL string) string {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || base.Host == "" {
		return value
	}
	ref, err := url.Parse(value)
	if err != nil {
		return value
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	return base.ResolveReference(ref).String()
}

// jpegBase64Prefix is how base64-encoded JPEG data begins; it would otherwise
// read as an absolute path.
const jpegBase64Prefix = "/9j/"

// minBase64Len keeps short tokens such as file names out of the base64 branch.
const minBase64Len = 64

func looksLikeBase64(value string) bool {
	if len(value) < minBase64Len {
		return false
	}
	for _, r := range value {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '+', r == '/', r == '=', r == '-', r == '_':
		case r == '\n', r == '\r':
		default:
			return false
		}
	}
	_, err := DecodeBase64(value)
	return err == nil
}
