// Package config loads the settings shared by the run and serve commands
// from flags, ARBOR_* environment variables and an optional config file,
// in that order of precedence.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "ARBOR"

// Config holds the process-level settings.
type Config struct {
	Addr     string `mapstructure:"addr"`
	Store    string `mapstructure:"store"`
	LogLevel string `mapstructure:"log-level"`
	LogDir   string `mapstructure:"log-dir"`
	Strict   bool   `mapstructure:"strict"`

	LockTTL time.Duration `mapstructure:"lock-ttl"`
	IdleTTL time.Duration `mapstructure:"idle-ttl"`

	// EncryptionKey is a base64 AES-256 key; empty disables encryption.
	EncryptionKey string   `mapstructure:"encryption-key"`
	PIIFields     []string `mapstructure:"pii-fields"`

	RedisPassword string `mapstructure:"redis-password"`
	RedisDB       int    `mapstructure:"redis-db"`

	// Model endpoints for llm/vlm names other than "mock".
	LLMURL    string `mapstructure:"llm-url"`
	LLMAPIKey string `mapstructure:"llm-api-key"`
	OllamaURL string `mapstructure:"ollama-url"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		Addr:     ":8080",
		Store:    "memory",
		LogLevel: "info",
		LockTTL:  30 * time.Second,
		IdleTTL:  30 * time.Minute,
	}
}

// Key returns the decoded encryption key, or nil when none is set.
func (c Config) Key() ([]byte, error) {
	if c.EncryptionKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key: want 32 bytes, got %d", len(key))
	}
	return key, nil
}

// RegisterFlags declares the flags Load understands.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "Path to a config file (yaml, json or toml)")
	fs.String("addr", d.Addr, "Address the HTTP server listens on")
	fs.String("store", d.Store, "Artifact store: memory, a directory, file://, redis://host:port, mem://, s3://, gs:// or azblob://")
	fs.String("log-level", d.LogLevel, "Log level (debug, info, warn, error)")
	fs.String("log-dir", "", "Write JSON logs to this directory instead of stderr")
	fs.Bool("strict", false, "Return node errors instead of recovering")
	fs.Duration("lock-ttl", d.LockTTL, "Expiry of distributed session locks")
	fs.Duration("idle-ttl", d.IdleTTL, "How long an idle session stays cached")
	fs.String("encryption-key", "", "Base64 AES-256 key sealing every artifact")
	fs.StringSlice("pii-fields", nil, "Regular expressions naming state fields to mask at rest")
	fs.String("redis-password", "", "Redis password")
	fs.Int("redis-db", 0, "Redis database")
	fs.String("llm-url", "", "OpenAI compatible endpoint serving bare model names (default: OPENAI_BASE_URL)")
	fs.String("llm-api-key", "", "API key for the OpenAI compatible endpoint (default: OPENAI_API_KEY)")
	fs.String("ollama-url", "", "Ollama server for ollama/<model> names")
}

// Load resolves the configuration from fs, the environment and the file
// named by --config. A missing config file is not an error.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return Config{}, err
	}

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config %s: %w", file, err)
			}
		}
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}
