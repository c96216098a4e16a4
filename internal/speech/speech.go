package speech

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"caption-service/internal/config"
	"caption-service/internal/logger"
)

var (
	ErrEmptyText = errors.New("text is required for speech synthesis")
	ErrTransport = errors.New("speech synthesis transport failure")
)

// One MPEG-1 Layer 3 frame header followed by silence.
const silentMP3Hex = "FFFB902064000000000000000000000000000000000000000000000000000000"

// SilentMP3 returns a minimal valid MP3 containing silence.
func SilentMP3() []byte {
	b, _ := hex.DecodeString(silentMP3Hex)
	return b
}

// Synthesizer converts text into audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format,omitempty"`
}

// Client calls an OpenAI-compatible /audio/speech endpoint. With no base URL
// configured it returns silent audio instead of failing.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	voice      string
	format     string
	httpClient *http.Client
	log        *logger.Logger
}

func NewClient(cfg *config.Config, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.TTSBaseURL, "/"),
		apiKey:     cfg.TTSAPIKey,
		model:      cfg.TTSModel,
		voice:      cfg.TTSVoice,
		format:     cfg.TTSFormat,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		log:        log.With("service", "SpeechClient"),
	}
}

func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if c.baseURL == "" {
		c.log.Debug("no TTS endpoint configured, returning silent audio")
		return SilentMP3(), nil
	}

	payload, err := json.Marshal(speechRequest{
		Model:          c.model,
		Input:          text,
		Voice:          c.voice,
		ResponseFormat: c.format,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal speech request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/speech", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "create speech request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("speech request failed", "error", err)
		return nil, errors.Wrap(ErrTransport, err.Error())
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(ErrTransport, "read speech response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Error("speech endpoint returned error", "status", resp.StatusCode, "body", string(audio))
		return nil, errors.Wrapf(ErrTransport, "status %d", resp.StatusCode)
	}
	if len(audio) == 0 {
		return nil, errors.Wrap(ErrTransport, "empty audio")
	}
	return audio, nil
}
