package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	AssetBackendLocal = "local"
	AssetBackendMinio = "minio"

	GenerationProviderOllama = "ollama"
	GenerationProviderOpenAI = "openai"
)

// Config holds all configuration values from environment.
type Config struct {
	AppPort        string
	MaxUploadBytes int
	MaxImagePixels int

	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	SQLitePath string

	// Asset storage
	AssetBackend   string
	LocalAssetDir  string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioSSL       bool

	// Generation capability
	GenerationProvider  string
	GenerationBaseURL   string
	GenerationAPIKey    string
	CaptionModel        string
	BBoxModel           string
	GenerationMaxTokens int
	GenerationTimeout   time.Duration

	// Speech synthesis
	TTSBaseURL string
	TTSAPIKey  string
	TTSModel   string
	TTSVoice   string
	TTSFormat  string

	DefaultTimezone   string
	Location          *time.Location
	LogMode           string
	OrphanGracePeriod time.Duration
	SettingsCacheTTL  time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("MAX_UPLOAD_BYTES", 20<<20)
	v.SetDefault("MAX_IMAGE_PIXELS", 50_000_000)
	v.SetDefault("DB_DRIVER", DBDriverPostgres)
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("SQLITE_PATH", "captions.db")
	v.SetDefault("ASSET_BACKEND", AssetBackendLocal)
	v.SetDefault("LOCAL_ASSET_DIR", "./uploads")
	v.SetDefault("MINIO_SSL", false)
	v.SetDefault("GENERATION_PROVIDER", GenerationProviderOpenAI)
	v.SetDefault("GENERATION_MAX_TOKENS", 1024)
	v.SetDefault("GENERATION_TIMEOUT", 5*time.Minute)
	v.SetDefault("TTS_MODEL", "kokoro")
	v.SetDefault("TTS_VOICE", "af_heart")
	v.SetDefault("TTS_FORMAT", "mp3")
	v.SetDefault("DEFAULT_TIMEZONE", "+08:00")
	v.SetDefault("LOG_MODE", "dev")
	v.SetDefault("ORPHAN_GRACE_PERIOD", 24*time.Hour)
	v.SetDefault("SETTINGS_CACHE_TTL", time.Minute)
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		AppPort:        v.GetString("APP_PORT"),
		MaxUploadBytes: v.GetInt("MAX_UPLOAD_BYTES"),
		MaxImagePixels: v.GetInt("MAX_IMAGE_PIXELS"),

		DBDriver:   strings.ToLower(v.GetString("DB_DRIVER")),
		DBHost:     v.GetString("DB_HOST"),
		DBPort:     v.GetString("DB_PORT"),
		DBUser:     v.GetString("DB_USER"),
		DBPassword: v.GetString("DB_PASSWORD"),
		DBName:     v.GetString("DB_NAME"),
		SQLitePath: v.GetString("SQLITE_PATH"),

		AssetBackend:   strings.ToLower(v.GetString("ASSET_BACKEND")),
		LocalAssetDir:  v.GetString("LOCAL_ASSET_DIR"),
		MinioEndpoint:  v.GetString("MINIO_ENDPOINT"),
		MinioAccessKey: v.GetString("MINIO_ACCESS_KEY"),
		MinioSecretKey: v.GetString("MINIO_SECRET_KEY"),
		MinioBucket:    v.GetString("MINIO_BUCKET"),
		MinioSSL:       v.GetBool("MINIO_SSL"),

		GenerationProvider:  strings.ToLower(v.GetString("GENERATION_PROVIDER")),
		GenerationBaseURL:   v.GetString("GENERATION_BASE_URL"),
		GenerationAPIKey:    v.GetString("GENERATION_API_KEY"),
		CaptionModel:        v.GetString("CAPTION_MODEL"),
		BBoxModel:           v.GetString("BBOX_MODEL"),
		GenerationMaxTokens: v.GetInt("GENERATION_MAX_TOKENS"),
		GenerationTimeout:   v.GetDuration("GENERATION_TIMEOUT"),

		TTSBaseURL: v.GetString("TTS_BASE_URL"),
		TTSAPIKey:  v.GetString("TTS_API_KEY"),
		TTSModel:   v.GetString("TTS_MODEL"),
		TTSVoice:   v.GetString("TTS_VOICE"),
		TTSFormat:  v.GetString("TTS_FORMAT"),

		DefaultTimezone:   v.GetString("DEFAULT_TIMEZONE"),
		LogMode:           v.GetString("LOG_MODE"),
		OrphanGracePeriod: v.GetDuration("ORPHAN_GRACE_PERIOD"),
		SettingsCacheTTL:  v.GetDuration("SETTINGS_CACHE_TTL"),
	}
	if cfg.BBoxModel == "" {
		cfg.BBoxModel = cfg.CaptionModel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every section needed by the selected backends is present.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DBDriverPostgres:
		if c.DBHost == "" || c.DBUser == "" || c.DBName == "" {
			return fmt.Errorf("database configuration is incomplete")
		}
	case DBDriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}

	switch c.AssetBackend {
	case AssetBackendLocal:
		if c.LocalAssetDir == "" {
			return fmt.Errorf("LOCAL_ASSET_DIR is required for the local asset backend")
		}
	case AssetBackendMinio:
		if c.MinioEndpoint == "" || c.MinioAccessKey == "" || c.MinioSecretKey == "" || c.MinioBucket == "" {
			return fmt.Errorf("minio configuration is incomplete")
		}
	default:
		return fmt.Errorf("unsupported ASSET_BACKEND %q", c.AssetBackend)
	}

	if c.GenerationProvider != GenerationProviderOllama && c.GenerationProvider != GenerationProviderOpenAI {
		return fmt.Errorf("unsupported GENERATION_PROVIDER %q", c.GenerationProvider)
	}
	if c.GenerationBaseURL == "" {
		return fmt.Errorf("GENERATION_BASE_URL is required")
	}
	if c.MaxImagePixels <= 0 {
		return fmt.Errorf("MAX_IMAGE_PIXELS must be positive")
	}

	loc, err := ParseTimezone(c.DefaultTimezone)
	if err != nil {
		return fmt.Errorf("invalid DEFAULT_TIMEZONE: %v", err)
	}
	c.Location = loc
	return nil
}

// ParseTimezone accepts either an IANA zone name or a fixed "+HH:MM" offset.
func ParseTimezone(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC, nil
	}
	if tz[0] == '+' || tz[0] == '-' {
		t, err := time.Parse("-07:00", tz)
		if err != nil {
			return nil, err
		}
		_, offset := t.Zone()
		return time.FixedZone(tz, offset), nil
	}
	return time.LoadLocation(tz)
}

// ConnectDatabase initializes a GORM database connection for the configured driver.
func ConnectDatabase(cfg *Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}
	switch cfg.DBDriver {
	case DBDriverSQLite:
		return gorm.Open(sqlite.Open(cfg.SQLitePath), gormCfg)
	default:
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)
		return gorm.Open(postgres.Open(dsn), gormCfg)
	}
}
