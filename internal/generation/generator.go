package generation

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"caption-service/internal/config"
	"caption-service/internal/logger"
)

var (
	// ErrTransport means the generation capability could not be reached or answered with an error status.
	ErrTransport = errors.New("generation transport failure")
	// ErrEmptyResponse means the capability answered but produced no text.
	ErrEmptyResponse = errors.New("generation returned no content")
)

// Request is one text generation call, optionally grounded on a JPEG image.
type Request struct {
	Model     string
	System    string
	User      string
	ImageJPEG []byte
	MaxTokens int
}

// Generator is the remote "generate text (with image)" capability.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// New builds the Generator selected by configuration.
func New(cfg *config.Config, log *logger.Logger) (Generator, error) {
	switch cfg.GenerationProvider {
	case config.GenerationProviderOllama:
		return NewOllamaClient(cfg.GenerationBaseURL, cfg.GenerationTimeout, log)
	case config.GenerationProviderOpenAI:
		return NewOpenAIClient(cfg.GenerationBaseURL, cfg.GenerationAPIKey, cfg.GenerationTimeout, log), nil
	default:
		return nil, errors.Errorf("unsupported generation provider %q", cfg.GenerationProvider)
	}
}

// withDefaultTimeout adds a deadline when the caller did not set one.
func withDefaultTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline || timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
