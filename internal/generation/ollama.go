package generation

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/pkg/errors"

	"caption-service/internal/logger"
)

// chatAPI is the subset of the Ollama client used here.
type chatAPI interface {
	Chat(ctx context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error
}

// OllamaClient talks to an Ollama server through its chat endpoint.
type OllamaClient struct {
	client  chatAPI
	timeout time.Duration
	log     *logger.Logger
}

// NewOllamaClient creates a client for the server at rawURL. Any path on the
// URL (for example /api/chat) is ignored.
func NewOllamaClient(rawURL string, timeout time.Duration, log *logger.Logger) (*OllamaClient, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, errors.Errorf("invalid ollama URL %q", rawURL)
	}
	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}
	if log == nil {
		log = logger.Nop()
	}
	return &OllamaClient{
		client:  api.NewClient(base, http.DefaultClient),
		timeout: timeout,
		log:     log.With("service", "OllamaClient"),
	}, nil
}

func (c *OllamaClient) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := withDefaultTimeout(ctx, c.timeout)
	defer cancel()

	var messages []api.Message
	if req.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.System})
	}
	user := api.Message{Role: "user", Content: req.User}
	if len(req.ImageJPEG) > 0 {
		user.Images = []api.ImageData{api.ImageData(req.ImageJPEG)}
	}
	messages = append(messages, user)

	stream := false
	chatReq := &api.ChatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   &stream,
	}
	if req.MaxTokens > 0 {
		chatReq.Options = map[string]any{"num_predict": req.MaxTokens}
	}

	var content strings.Builder
	err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		c.log.Error("ollama chat failed", "model", req.Model, "error", err)
		return "", errors.Wrap(ErrTransport, err.Error())
	}

	out := content.String()
	if strings.TrimSpace(out) == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}
