package generator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"scanmaster/internal/config"
	"scanmaster/internal/imageref"
	"scanmaster/internal/logging"
	"scanmaster/internal/services"
)

const (
	stageName      = "generator"
	defaultModel   = "gemini-2.5-flash-image"
	defaultTimeout = 60 * time.Second
)

// Provider returns an image reference for a freshly generated sample.
type Provider interface {
	Generate(ctx context.Context) (string, error)
}

var scenes = []string{
	"a crumpled receipt on a wooden table",
	"an old handwritten letter on a dark desk",
	"a business card on a textured surface",
	"a sketch on a napkin on a cafe table",
	"an id card on a blue background",
}

// Scenes returns the document scenes prompts are drawn from.
func Scenes() []string {
	return append([]string(nil), scenes...)
}

// Prompt builds the generation prompt for a scene.
func Prompt(scene string) string {
	return fmt.Sprintf("Generate a realistic top-down photo of %s. The document should be clearly visible "+
		"but slightly angled or with non-uniform lighting to simulate a real scan scenario. Do not add text overlays.", scene)
}

// Gemini generates samples through the Gemini API.
type Gemini struct {
	apiKey  string
	model   string
	timeout time.Duration
	pick    func(n int) int
	logger  *slog.Logger
}

// NewGemini builds a provider from the [generator] section.
func NewGemini(cfg config.Generator, logger *slog.Logger) *Gemini {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Gemini{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		model:   model,
		timeout: timeout,
		pick:    rand.IntN,
		logger:  logging.NewComponentLogger(logger, "generator"),
	}
}

// Generate asks Gemini for a sample document photo and returns it as a data URI.
func (g *Gemini) Generate(ctx context.Context) (string, error) {
	if g.apiKey == "" {
		return "", services.Wrap(services.ErrConfiguration, stageName, "generate", "API Key is missing. Cannot generate sample.", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, stageName, "generate", "Failed to create Gemini client", err)
	}
	defer client.Close()

	scene := scenes[g.pick(len(scenes))]
	model := client.GenerativeModel(g.model)

	started := time.Now()
	resp, err := model.GenerateContent(ctx, genai.Text(Prompt(scene)))
	if err != nil {
		return "", services.Wrap(services.ErrTransport, stageName, "generate", "Gemini request failed", err)
	}
	ref, err := ImageFromResponse(resp)
	if err != nil {
		return "", err
	}
	g.logger.Info("sample generated",
		logging.String(logging.FieldEventType, "sample_generated"),
		logging.String("scene", scene),
		logging.String("model", g.model),
		logging.Duration("elapsed", time.Since(started)),
	)
	return ref, nil
}

// ImageFromResponse returns the first inline image of the first candidate as a data URI.
func ImageFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp != nil && len(resp.Candidates) > 0 {
		candidate := resp.Candidates[0]
		if candidate != nil && candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if blob, ok := part.(genai.Blob); ok && len(blob.Data) > 0 {
					return imageref.DataURI(blob.MIMEType, blob.Data), nil
				}
			}
		}
	}
	return "", services.Wrap(services.ErrNoResults, stageName, "generate", "No image generated from AI response.", nil)
}
