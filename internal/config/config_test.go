package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper(values map[string]any) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for k, val := range values {
		v.Set(k, val)
	}
	return v
}

func TestFromViperDefaults(t *testing.T) {
	v := newTestViper(map[string]any{
		"DB_DRIVER":           "sqlite",
		"GENERATION_BASE_URL": "http://localhost:11434",
		"CAPTION_MODEL":       "qwen2.5vl",
	})

	cfg, err := fromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, 50_000_000, cfg.MaxImagePixels)
	assert.Equal(t, AssetBackendLocal, cfg.AssetBackend)
	assert.Equal(t, 1024, cfg.GenerationMaxTokens)
	assert.Equal(t, 5*time.Minute, cfg.GenerationTimeout)
	assert.Equal(t, "qwen2.5vl", cfg.BBoxModel, "box model falls back to the caption model")
	require.NotNil(t, cfg.Location)
	_, offset := time.Date(2025, 1, 1, 0, 0, 0, 0, cfg.Location).Zone()
	assert.Equal(t, 8*3600, offset)
}

func TestValidateRejectsIncompleteSections(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
		want   string
	}{
		{
			name:   "postgres without host",
			values: map[string]any{"GENERATION_BASE_URL": "http://x"},
			want:   "database configuration is incomplete",
		},
		{
			name: "minio without credentials",
			values: map[string]any{
				"DB_DRIVER": "sqlite", "ASSET_BACKEND": "minio", "GENERATION_BASE_URL": "http://x",
			},
			want: "minio configuration is incomplete",
		},
		{
			name:   "missing generation endpoint",
			values: map[string]any{"DB_DRIVER": "sqlite"},
			want:   "GENERATION_BASE_URL is required",
		},
		{
			name: "non-positive pixel limit",
			values: map[string]any{
				"DB_DRIVER": "sqlite", "GENERATION_BASE_URL": "http://x", "MAX_IMAGE_PIXELS": 0,
			},
			want: "MAX_IMAGE_PIXELS must be positive",
		},
		{
			name: "unknown provider",
			values: map[string]any{
				"DB_DRIVER": "sqlite", "GENERATION_PROVIDER": "bard", "GENERATION_BASE_URL": "http://x",
			},
			want: "unsupported GENERATION_PROVIDER",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fromViper(newTestViper(tt.values))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseTimezone(t *testing.T) {
	loc, err := ParseTimezone("-05:30")
	require.NoError(t, err)
	_, offset := time.Date(2025, 6, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, -(5*3600 + 30*60), offset)

	loc, err = ParseTimezone("")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, err = ParseTimezone("Mars/Olympus")
	assert.Error(t, err)
}
