// Package bootstrap loads the served application's configuration and wires
// the calendar service, its store and the HTTP server.
package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"nameday/internal/nameday"
	"nameday/internal/nameday/store"
	"nameday/internal/observability"
)

// Environment keys read by LoadConfig.
const (
	keyAPIKey         = "NAMEDAY_API_KEY"
	keyKVURL          = "KV_REST_API_URL"
	keyKVToken        = "KV_REST_API_TOKEN"
	keyKVKey          = "NAMEDAY_KV_KEY"
	keyDataPath       = "NAMEDAY_DATA"
	keyStore          = "NAMEDAY_STORE"
	keySQLitePath     = "NAMEDAY_SQLITE"
	keyPort           = "PORT"
	keyListenFD       = "NAMEDAY_LISTEN_FD"
	keyLogLevel       = "NAMEDAY_LOG_LEVEL"
	keyLogFormat      = "NAMEDAY_LOG_FORMAT"
	keyOrigins        = "NAMEDAY_CORS_ORIGINS"
	keyWikipediaURL   = "NAMEDAY_WIKIPEDIA_URL"
	keyWikipediaPage  = "NAMEDAY_WIKIPEDIA_PAGE"
	keyFetchTimeout   = "NAMEDAY_FETCH_TIMEOUT"
	keyShutdownPeriod = "NAMEDAY_SHUTDOWN_TIMEOUT"
	keyTraceExporter  = "NAMEDAY_TRACE_EXPORTER"
	keyOTLPEndpoint   = "NAMEDAY_OTLP_ENDPOINT"
	keyZipkinEndpoint = "NAMEDAY_ZIPKIN_ENDPOINT"
	keyTraceSample    = "NAMEDAY_TRACE_SAMPLE_RATE"
)

// DefaultEnvFile is read when present; process environment wins over it.
const DefaultEnvFile = ".env"

// Config holds the served application's settings.
type Config struct {
	APIKey          string
	Store           string
	DataPath        string
	SQLitePath      string
	KVURL           string
	KVToken         string
	KVKey           string
	Port            int
	ListenFD        int
	LogLevel        string
	LogFormat       string
	AllowedOrigins  []string
	WikipediaURL    string
	WikipediaPage   string
	FetchTimeout    time.Duration
	ShutdownTimeout time.Duration
	Tracing         observability.TracingConfig
}

// Addr is the bind address used when no listener is inherited.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// StoreConfig returns the store selection for store.Open.
func (c Config) StoreConfig() store.Config {
	return store.Config{
		Kind:       c.Store,
		DataPath:   c.DataPath,
		SQLitePath: c.SQLitePath,
		KVURL:      c.KVURL,
		KVToken:    c.KVToken,
		KVKey:      c.KVKey,
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(keyStore, store.KindAuto)
	v.SetDefault(keyDataPath, store.DefaultFileName)
	v.SetDefault(keySQLitePath, "namedays.db")
	v.SetDefault(keyKVKey, store.DefaultKVKey)
	v.SetDefault(keyPort, 8000)
	v.SetDefault(keyListenFD, 0)
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLogFormat, "text")
	v.SetDefault(keyWikipediaURL, nameday.DefaultAPIURL)
	v.SetDefault(keyWikipediaPage, nameday.DefaultPageTitle)
	v.SetDefault(keyFetchTimeout, 30*time.Second)
	v.SetDefault(keyShutdownPeriod, 10*time.Second)
	v.SetDefault(keyTraceSample, 1.0)
	v.AutomaticEnv()
	return v
}

// LoadConfig reads defaults, then envFile (dotenv syntax, optional), then the
// process environment. An empty envFile skips the file.
func LoadConfig(envFile string) (Config, error) {
	v := newViper()
	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
			return Config{}, fmt.Errorf("read %s: %w", envFile, err)
		}
	}

	cfg := Config{
		APIKey:          v.GetString(keyAPIKey),
		Store:           strings.ToLower(v.GetString(keyStore)),
		DataPath:        v.GetString(keyDataPath),
		SQLitePath:      v.GetString(keySQLitePath),
		KVURL:           v.GetString(keyKVURL),
		KVToken:         v.GetString(keyKVToken),
		KVKey:           v.GetString(keyKVKey),
		Port:            v.GetInt(keyPort),
		ListenFD:        v.GetInt(keyListenFD),
		LogLevel:        v.GetString(keyLogLevel),
		LogFormat:       v.GetString(keyLogFormat),
		AllowedOrigins:  splitList(v.GetString(keyOrigins)),
		WikipediaURL:    v.GetString(keyWikipediaURL),
		WikipediaPage:   v.GetString(keyWikipediaPage),
		FetchTimeout:    v.GetDuration(keyFetchTimeout),
		ShutdownTimeout: v.GetDuration(keyShutdownPeriod),
		Tracing: observability.TracingConfig{
			Exporter:       v.GetString(keyTraceExporter),
			OTLPEndpoint:   v.GetString(keyOTLPEndpoint),
			ZipkinEndpoint: v.GetString(keyZipkinEndpoint),
			SampleRate:     v.GetFloat64(keyTraceSample),
			ServiceName:    "nameday",
		},
	}
	return cfg, cfg.Validate()
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%s must be between 0 and 65535, got %d", keyPort, c.Port)
	}
	if c.ListenFD < 0 {
		return fmt.Errorf("%s must not be negative, got %d", keyListenFD, c.ListenFD)
	}
	switch c.Store {
	case store.KindAuto, store.KindFile, store.KindKV, store.KindSQLite:
	default:
		return fmt.Errorf("%s must be one of auto, file, kv, sqlite, got %q", keyStore, c.Store)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("%s must be positive", keyFetchTimeout)
	}
	return nil
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
