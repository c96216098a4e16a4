package storage

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"caption-service/internal/config"
	"caption-service/internal/logger"
	"caption-service/internal/metrics"
)

// ErrAssetNotFound is returned when no asset exists under a key.
var ErrAssetNotFound = errors.New("asset not found")

// ErrInvalidKey is returned for keys that are empty or escape the store root.
var ErrInvalidKey = errors.New("invalid asset key")

const (
	ImagePrefix = "images/"
	AudioPrefix = "audio/"
)

// AssetInfo describes one stored asset.
type AssetInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// AssetStore persists binary assets under opaque keys.
type AssetStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]AssetInfo, error)
}

// NewImageKey returns a fresh random key for a normalized JPEG.
func NewImageKey() string {
	return ImagePrefix + uuid.NewString() + ".jpg"
}

// NewAudioKey returns a fresh random key for an audio clip in the given format.
func NewAudioKey(format string) string {
	if format == "" {
		format = "mp3"
	}
	return AudioPrefix + uuid.NewString() + "." + format
}

// AudioContentType maps a synthesis format to its MIME type.
func AudioContentType(format string) string {
	switch format {
	case "wav":
		return "audio/wav"
	case "opus":
		return "audio/opus"
	case "aac":
		return "audio/aac"
	case "flac":
		return "audio/flac"
	default:
		return "audio/mpeg"
	}
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return ErrInvalidKey
	}
	if clean := path.Clean(key); clean != key || clean == "." || strings.HasPrefix(clean, "../") || clean == ".." {
		return ErrInvalidKey
	}
	return nil
}

// New builds the asset store selected by ASSET_BACKEND, wrapped with metrics.
func New(cfg *config.Config, log *logger.Logger, m *metrics.Metrics) (AssetStore, error) {
	switch cfg.AssetBackend {
	case config.AssetBackendLocal:
		store, err := NewLocalStore(cfg.LocalAssetDir, log)
		if err != nil {
			return nil, err
		}
		return NewInstrumented(store, config.AssetBackendLocal, m), nil
	case config.AssetBackendMinio:
		client, err := NewMinioClient(cfg, log)
		if err != nil {
			return nil, errors.Wrap(err, "connect minio")
		}
		return NewInstrumented(NewMinioStore(client, cfg.MinioBucket, log), config.AssetBackendMinio, m), nil
	default:
		return nil, errors.Errorf("unsupported asset backend %q", cfg.AssetBackend)
	}
}
