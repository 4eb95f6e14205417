package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	ContractStaged = "staged"
	ContractNested = "nested"

	ProviderBackend = "backend"
	ProviderOpenAI  = "openai"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Database DatabaseConfig `mapstructure:"database"`
	Prompts  PromptsConfig  `mapstructure:"prompts"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	SecureCookies  bool     `mapstructure:"secure_cookies"`
}

// UpstreamConfig describes the remote shopping API the assistant talks to.
type UpstreamConfig struct {
	// Provider selects who answers chat turns: the shopping backend or an
	// OpenAI-compatible model called directly.
	Provider     string        `mapstructure:"provider"`
	Contract     string        `mapstructure:"contract"`
	BaseURL      string        `mapstructure:"base_url"`
	ChatPath     string        `mapstructure:"chat_path"`
	StreamPath   string        `mapstructure:"stream_path"`
	InitPath     string        `mapstructure:"init_path"`
	HealthPath   string        `mapstructure:"health_path"`
	OptionsPath  string        `mapstructure:"options_path"`
	ProductsPath string        `mapstructure:"products_path"`
	APIKey       string        `mapstructure:"api_key"`
	TopK         int           `mapstructure:"top_k"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Streaming    bool          `mapstructure:"streaming"`
	OAuth        OAuthConfig   `mapstructure:"oauth"`
}

// OAuthConfig enables the client-credentials flow against the upstream API
// when ClientID is set.
type OAuthConfig struct {
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	TokenURL     string   `mapstructure:"token_url"`
	Scopes       []string `mapstructure:"scopes"`
}

type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	// Driver is one of memory, file or redis.
	Driver            string          `mapstructure:"driver"`
	Dir               string          `mapstructure:"dir"`
	RedisURL          string          `mapstructure:"redis_url"`
	Key               string          `mapstructure:"key"`
	TTL               time.Duration   `mapstructure:"ttl"`
	RetryDelays       []time.Duration `mapstructure:"retry_delays"`
	DefaultCategories []string        `mapstructure:"default_categories"`
}

type DatabaseConfig struct {
	// URL is a postgres:// URL or a SQLite file path.
	URL string `mapstructure:"url"`
}

type PromptsConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load reads .env, then an optional YAML file, then ASSISTANT_* environment
// variables, in increasing order of precedence.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("assistant")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("ASSISTANT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Upstream.Contract {
	case ContractStaged, ContractNested:
	default:
		return fmt.Errorf("upstream.contract must be %q or %q, got %q", ContractStaged, ContractNested, c.Upstream.Contract)
	}
	switch c.Upstream.Provider {
	case ProviderBackend, ProviderOpenAI:
	default:
		return fmt.Errorf("upstream.provider must be %q or %q, got %q", ProviderBackend, ProviderOpenAI, c.Upstream.Provider)
	}
	switch c.Cache.Driver {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("unknown cache.driver %q", c.Cache.Driver)
	}
	if c.Cache.Driver == "redis" && c.Cache.RedisURL == "" {
		return errors.New("cache.redis_url is required for the redis cache driver")
	}
	return nil
}

// Warnings lists settings that are legal but will make some calls fail.
func (c *Config) Warnings() []string {
	var out []string
	if c.Upstream.Provider == ProviderOpenAI && c.LLM.APIKey == "" {
		out = append(out, "llm.api_key is not set; chat calls will fail until provided")
	}
	if c.Upstream.Provider == ProviderBackend && c.Upstream.BaseURL == "" {
		out = append(out, "upstream.base_url is not set; chat and init calls will fail")
	}
	return out
}

func (c *Config) Address() string {
	return ":" + c.Server.Port
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.secure_cookies", false)

	v.SetDefault("upstream.provider", ProviderBackend)
	v.SetDefault("upstream.contract", ContractStaged)
	v.SetDefault("upstream.base_url", "http://localhost:8000")
	v.SetDefault("upstream.chat_path", "/api/chat/anthropic")
	v.SetDefault("upstream.stream_path", "/api/chat/anthropic/stream")
	v.SetDefault("upstream.init_path", "/api/init")
	v.SetDefault("upstream.health_path", "/health")
	v.SetDefault("upstream.options_path", "/api/meta/options")
	v.SetDefault("upstream.products_path", "/api/products")
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.top_k", 20)
	v.SetDefault("upstream.timeout", 60*time.Second)
	v.SetDefault("upstream.streaming", true)
	v.SetDefault("upstream.oauth.client_id", "")
	v.SetDefault("upstream.oauth.client_secret", "")
	v.SetDefault("upstream.oauth.token_url", "")
	v.SetDefault("upstream.oauth.scopes", []string{})

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	// Zero temperature and max tokens fall back to the prompt set style.
	v.SetDefault("llm.temperature", 0)
	v.SetDefault("llm.max_tokens", 0)
	v.SetDefault("llm.timeout", 60*time.Second)

	v.SetDefault("cache.driver", "file")
	v.SetDefault("cache.dir", "data/cache")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.key", "chatbot_init_data")
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("cache.retry_delays", []time.Duration{time.Second, 2 * time.Second, 4 * time.Second})
	v.SetDefault("cache.default_categories", []string{"car", "backpack"})

	v.SetDefault("database.url", "data/assistant.db")

	v.SetDefault("prompts.path", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}
