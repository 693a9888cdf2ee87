// Package config loads runtime settings from defaults, an optional
// metaphor.yaml, a .env file and METAPHOR_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "METAPHOR"

type Config struct {
	Source struct {
		URL     string
		PerPage int
		RPS     float64
	}
	Cache struct {
		TTL time.Duration
	}
	Redis struct {
		Addr string
	}
	Badger struct {
		Path string
	}
	Gemini struct {
		APIKey  string
		Model   string
		BaseURL string
		RPS     float64
	}
	Chat struct {
		MaxContext      int
		Apology         string
		NoAnswer        string
		ConnectionError string
	}
	Theme struct {
		Dark bool
	}
	Server struct {
		Addr  string
		RPS   float64
		Burst int
	}
	Worker struct {
		MaxAttempts int
		Backoff     time.Duration
	}
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("source.url", "https://metaphorspace.com/wp-json/wp/v2/posts")
	v.SetDefault("source.per_page", 10)
	v.SetDefault("source.rps", 2.0)
	v.SetDefault("cache.ttl", 24*time.Hour)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("badger.path", defaultBadgerPath())
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-pro")
	v.SetDefault("gemini.base_url", "")
	v.SetDefault("gemini.rps", 1.0)
	v.SetDefault("chat.max_context", 500)
	v.SetDefault("chat.apology", "")
	v.SetDefault("chat.no_answer", "")
	v.SetDefault("chat.connection_error", "")
	v.SetDefault("theme.dark", true)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.rps", 5.0)
	v.SetDefault("server.burst", 10)
	v.SetDefault("worker.max_attempts", 3)
	v.SetDefault("worker.backoff", 200*time.Millisecond)
}

func defaultBadgerPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./.metaphor/data"
	}
	return filepath.Join(home, ".metaphor", "data")
}

// New returns a viper instance with defaults, config search paths and
// environment binding in place. A .env file in the working directory is
// loaded into the environment first; a missing one is fine.
func New() *viper.Viper {
	_ = godotenv.Load()

	v := viper.New()
	SetDefaults(v)

	v.SetConfigName("metaphor")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".metaphor"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file if there is one and decodes every key.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	c := &Config{}
	c.Source.URL = v.GetString("source.url")
	c.Source.PerPage = v.GetInt("source.per_page")
	c.Source.RPS = v.GetFloat64("source.rps")
	c.Cache.TTL = v.GetDuration("cache.ttl")
	c.Redis.Addr = v.GetString("redis.addr")
	c.Badger.Path = v.GetString("badger.path")
	c.Gemini.APIKey = v.GetString("gemini.api_key")
	c.Gemini.Model = v.GetString("gemini.model")
	c.Gemini.BaseURL = v.GetString("gemini.base_url")
	c.Gemini.RPS = v.GetFloat64("gemini.rps")
	c.Chat.MaxContext = v.GetInt("chat.max_context")
	c.Chat.Apology = v.GetString("chat.apology")
	c.Chat.NoAnswer = v.GetString("chat.no_answer")
	c.Chat.ConnectionError = v.GetString("chat.connection_error")
	c.Theme.Dark = v.GetBool("theme.dark")
	c.Server.Addr = v.GetString("server.addr")
	c.Server.RPS = v.GetFloat64("server.rps")
	c.Server.Burst = v.GetInt("server.burst")
	c.Worker.MaxAttempts = v.GetInt("worker.max_attempts")
	c.Worker.Backoff = v.GetDuration("worker.backoff")

	if c.Source.PerPage <= 0 {
		return nil, fmt.Errorf("source.per_page must be positive, got %d", c.Source.PerPage)
	}
	return c, nil
}
