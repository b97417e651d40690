package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the research agent
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Research  ResearchConfig  `mapstructure:"research"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Messaging MessagingConfig `mapstructure:"messaging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	LogLevel string `mapstructure:"log_level"`
	LogDir   string `mapstructure:"log_dir"`
	LogFile  string `mapstructure:"log_file"`
}

func (g GeneralConfig) Validate() error {
	switch strings.ToLower(strings.TrimSpace(g.LogLevel)) {
	case "debug", "info", "warn", "warning", "error", "critical":
		return nil
	default:
		return fmt.Errorf("general.log_level %q is not one of debug, info, warning, error, critical", g.LogLevel)
	}
}

// ResearchConfig locates the research folder that backs the knowledge base.
type ResearchConfig struct {
	Folder string `mapstructure:"folder"`
}

func (r ResearchConfig) Validate() error {
	if strings.TrimSpace(r.Folder) == "" {
		return fmt.Errorf("research.folder required")
	}
	return nil
}

// LLMConfig contains inference and embedding provider settings
type LLMConfig struct {
	Inferer        string        `mapstructure:"inferer"` // openai
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	Model          string        `mapstructure:"model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	Temperature    float64       `mapstructure:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	MaxRetries     int           `mapstructure:"max_retries"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

func (l LLMConfig) Validate() error {
	if strings.TrimSpace(l.Model) == "" {
		return fmt.Errorf("llm.model required")
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0, 2]")
	}
	if l.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries cannot be negative")
	}
	return nil
}

// SourcesConfig contains search source configurations
type SourcesConfig struct {
	WebSearch WebSearchConfig `mapstructure:"web_search"`
}

// WebSearchConfig contains web search settings
type WebSearchConfig struct {
	Provider     string        `mapstructure:"provider"` // serper, brave
	BraveAPIKey  string        `mapstructure:"brave_api_key"`
	SerperAPIKey string        `mapstructure:"serper_api_key"`
	Endpoint     string        `mapstructure:"endpoint"`
	MaxResults   int           `mapstructure:"max_results"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Retries      int           `mapstructure:"retries"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

func (w WebSearchConfig) Validate() error {
	switch w.Provider {
	case "serper", "brave":
	default:
		return fmt.Errorf("sources.web_search.provider %q unsupported", w.Provider)
	}
	if w.MaxResults <= 0 {
		return fmt.Errorf("sources.web_search.max_results must be > 0")
	}
	if w.Retries < 0 {
		return fmt.Errorf("sources.web_search.retries cannot be negative")
	}
	return nil
}

// CrawlerConfig controls how URLs are fetched and persisted.
type CrawlerConfig struct {
	Fetcher     string            `mapstructure:"fetcher"` // chromedp, http
	Timeout     time.Duration     `mapstructure:"timeout"`
	MaxChars    int               `mapstructure:"max_chars"`
	Concurrency int               `mapstructure:"concurrency"`
	UserAgent   string            `mapstructure:"user_agent"`
	CrawlPolicy CrawlPolicyConfig `mapstructure:"crawl_policy"`
}

func (c CrawlerConfig) Validate() error {
	switch c.Fetcher {
	case "chromedp", "http":
	default:
		return fmt.Errorf("crawler.fetcher %q unsupported", c.Fetcher)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	return c.CrawlPolicy.Validate()
}

// KnowledgeConfig controls chunking, embeddings and retrieval.
type KnowledgeConfig struct {
	Embeddings       string `mapstructure:"embeddings"` // openai, none
	ChunkSize        int    `mapstructure:"chunk_size"`
	ChunkOverlap     int    `mapstructure:"chunk_overlap"`
	TopK             int    `mapstructure:"top_k"`
	RebuildOnStartup bool   `mapstructure:"rebuild_on_startup"`
}

func (k KnowledgeConfig) Validate() error {
	switch k.Embeddings {
	case "openai", "none":
	default:
		return fmt.Errorf("knowledge.embeddings %q unsupported", k.Embeddings)
	}
	if k.ChunkSize <= 0 {
		return fmt.Errorf("knowledge.chunk_size must be > 0")
	}
	if k.ChunkOverlap < 0 || k.ChunkOverlap >= k.ChunkSize {
		return fmt.Errorf("knowledge.chunk_overlap must be within [0, chunk_size)")
	}
	if k.TopK <= 0 {
		return fmt.Errorf("knowledge.top_k must be > 0")
	}
	return nil
}

// StorageConfig contains storage settings
type StorageConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

func (r RedisConfig) Validate() error {
	if !r.Enabled {
		return nil
	}
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// MessagingConfig names the Redis streams used by the listen loop.
type MessagingConfig struct {
	InboxStream  string        `mapstructure:"inbox_stream"`
	OutboxStream string        `mapstructure:"outbox_stream"`
	Group        string        `mapstructure:"group"`
	Consumer     string        `mapstructure:"consumer"`
	Block        time.Duration `mapstructure:"block"`
}

func (m MessagingConfig) Validate() error {
	if strings.TrimSpace(m.InboxStream) == "" || strings.TrimSpace(m.OutboxStream) == "" {
		return fmt.Errorf("messaging.inbox_stream and messaging.outbox_stream required")
	}
	if m.InboxStream == m.OutboxStream {
		return fmt.Errorf("messaging inbox and outbox streams must differ")
	}
	if strings.TrimSpace(m.Group) == "" {
		return fmt.Errorf("messaging.group required")
	}
	return nil
}

// TelemetryConfig contains metrics settings
type TelemetryConfig struct {
	MetricsAddr string `mapstructure:"metrics_addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "debug")
	v.SetDefault("general.log_dir", filepath.Join("workspace", "logs"))
	v.SetDefault("general.log_file", "researcher.log")
	v.SetDefault("research.folder", filepath.Join("workspace", "researcher"))
	// empty defaults let AutomaticEnv reach keys that Unmarshal would skip
	for _, key := range []string{
		"llm.api_key", "llm.base_url",
		"sources.web_search.serper_api_key", "sources.web_search.brave_api_key", "sources.web_search.endpoint",
		"storage.redis.password", "messaging.consumer", "telemetry.metrics_addr",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("llm.inferer", "openai")
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.embedding_model", "text-embedding-3-small")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.timeout", 120*time.Second)
	v.SetDefault("sources.web_search.provider", "serper")
	v.SetDefault("sources.web_search.max_results", 10)
	v.SetDefault("sources.web_search.timeout", 15*time.Second)
	v.SetDefault("sources.web_search.retries", 2)
	v.SetDefault("sources.web_search.cache_ttl", 6*time.Hour)
	v.SetDefault("crawler.fetcher", "chromedp")
	v.SetDefault("crawler.timeout", 15*time.Second)
	v.SetDefault("crawler.max_chars", 20000)
	v.SetDefault("crawler.concurrency", 4)
	v.SetDefault("crawler.user_agent", "ResearcherAgent/1.0")
	v.SetDefault("knowledge.embeddings", "openai")
	v.SetDefault("knowledge.chunk_size", 1000)
	v.SetDefault("knowledge.chunk_overlap", 200)
	v.SetDefault("knowledge.top_k", 5)
	v.SetDefault("knowledge.rebuild_on_startup", true)
	v.SetDefault("storage.redis.enabled", false)
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.timeout", 5*time.Second)
	v.SetDefault("messaging.inbox_stream", "researcher.inbox")
	v.SetDefault("messaging.outbox_stream", "researcher.outbox")
	v.SetDefault("messaging.group", "researcher")
	v.SetDefault("messaging.block", 5*time.Second)
}

// LoadConfig loads config from file, environment (RESEARCHER_*) and defaults.
// An empty path searches the usual locations; a missing file there is not an error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("config")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)
			v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("RESEARCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	cfg.Crawler.CrawlPolicy = cfg.Crawler.CrawlPolicy.Normalize()

	for _, validator := range []interface{ Validate() error }{
		cfg.General,
		cfg.Research,
		cfg.LLM,
		cfg.Sources.WebSearch,
		cfg.Crawler,
		cfg.Knowledge,
		cfg.Storage.Redis,
		cfg.Messaging,
	} {
		if err := validator.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}
