// Package config loads the daemon configuration from a .env file, the
// process environment and an optional config file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	SerializerJSON = "json"
	SerializerCBOR = "cbor"
)

type Config struct {
	AppConfig AppConfig

	// Methods maps public method names to "service::Member" targets.
	// Empty means the built-in method table.
	Methods map[string]string

	// Translations is the message catalog applied to fault data.
	Translations map[string]string
}

// Translation is one catalog entry in the config file.
type Translation struct {
	From string `mapstructure:"from"`
	To   string `mapstructure:"to"`
}

type AppConfig struct {
	Name        string
	Env         string
	ListenAddr  string
	LogFormat   string
	LogLevel    string
	Serializer  string
	RateLimit   float64
	RateBurst   int
	CORSOrigins []string
	NatsURL     string
	NatsSubject string

	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Only enable it behind a proxy that overwrites them.
	TrustProxyHeaders bool
}

var (
	ErrInvalidSerializer = errors.New("config: SERIALIZER must be json or cbor")
	ErrInvalidLogFormat  = errors.New("config: LOG_FORMAT must be text or json")
	ErrInvalidRateLimit  = errors.New("config: RATE_LIMIT must be >= 0 and RATE_BURST >= 1 when limiting")
	ErrMissingListenAddr = errors.New("config: LISTEN_ADDR must not be empty")
	ErrMissingSubject    = errors.New("config: NATS_SUBJECT must not be empty when NATS_URL is set")
	ErrInvalidMethod     = errors.New("config: METHODS entries must have the form name=service::Member")
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "rpcserved")
	v.SetDefault("ENV", "local")
	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("LOG_LEVEL", "INFO")
	v.SetDefault("SERIALIZER", SerializerJSON)
	v.SetDefault("RATE_LIMIT", 0)
	v.SetDefault("RATE_BURST", 20)
	v.SetDefault("NATS_SUBJECT", "rpc")
	v.SetDefault("TRUST_PROXY_HEADERS", false)
}

// Read loads .env (if present) into the environment, then resolves every
// key from, in order of precedence, the environment, configPath and the
// defaults. configPath may be empty. The file type follows its extension.
func Read(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	cfg := &Config{
		AppConfig: AppConfig{
			Name:        v.GetString("APP_NAME"),
			Env:         v.GetString("ENV"),
			ListenAddr:  v.GetString("LISTEN_ADDR"),
			LogFormat:   strings.ToLower(v.GetString("LOG_FORMAT")),
			LogLevel:    v.GetString("LOG_LEVEL"),
			Serializer:  strings.ToLower(v.GetString("SERIALIZER")),
			RateLimit:   v.GetFloat64("RATE_LIMIT"),
			RateBurst:   v.GetInt("RATE_BURST"),
			CORSOrigins: splitList(v.GetStringSlice("CORS_ORIGINS")),
			NatsURL:     v.GetString("NATS_URL"),
			NatsSubject: v.GetString("NATS_SUBJECT"),

			TrustProxyHeaders: v.GetBool("TRUST_PROXY_HEADERS"),
		},
	}

	// Viper lower-cases map keys, so methods and translations are lists.
	methods, err := parseMethods(splitList(v.GetStringSlice("METHODS")))
	if err != nil {
		return nil, err
	}
	cfg.Methods = methods

	var translations []Translation
	if err := v.UnmarshalKey("translations", &translations); err != nil {
		return nil, fmt.Errorf("config: translations: %w", err)
	}
	if len(translations) > 0 {
		cfg.Translations = make(map[string]string, len(translations))
		for _, t := range translations {
			cfg.Translations[t.From] = t.To
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	a := c.AppConfig
	switch a.Serializer {
	case SerializerJSON, SerializerCBOR:
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidSerializer, a.Serializer)
	}
	switch a.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidLogFormat, a.LogFormat)
	}
	if a.RateLimit < 0 || (a.RateLimit > 0 && a.RateBurst < 1) {
		return ErrInvalidRateLimit
	}
	if a.ListenAddr == "" {
		return ErrMissingListenAddr
	}
	if a.NatsURL != "" && a.NatsSubject == "" {
		return ErrMissingSubject
	}
	return nil
}

// parseMethods turns "name=target" entries into a method table. Targets
// are checked later, when the registry is built.
func parseMethods(entries []string) (map[string]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	methods := make(map[string]string, len(entries))
	for _, entry := range entries {
		name, target, ok := strings.Cut(entry, "=")
		name, target = strings.TrimSpace(name), strings.TrimSpace(target)
		if !ok || name == "" || target == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidMethod, entry)
		}
		methods[name] = target
	}
	return methods, nil
}

// splitList accepts both list values from a config file and a
// comma-separated environment variable.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
