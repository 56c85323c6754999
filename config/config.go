package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the advisory service
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Index     IndexConfig     `mapstructure:"index"`
	Client    ClientConfig    `mapstructure:"client"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// StorageConfig groups the durable backends
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig describes the history database connection
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds a postgres connection string, preferring the explicit URL.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// RedisConfig describes the optional retrieval cache. Addr empty disables it.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LLMConfig contains completion/embedding provider settings
type LLMConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	ChatModel      string        `mapstructure:"chat_model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	Temperature    float64       `mapstructure:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// SearchConfig contains external web search settings
type SearchConfig struct {
	Provider        string        `mapstructure:"provider"` // brave or serper
	APIKey          string        `mapstructure:"api_key"`
	MaxResults      int           `mapstructure:"max_results"`
	MinSnippetChars int           `mapstructure:"min_snippet_chars"`
	MinDelay        time.Duration `mapstructure:"min_delay"`
	MaxDelay        time.Duration `mapstructure:"max_delay"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`
	FetchMaxChars   int           `mapstructure:"fetch_max_chars"`
}

// RetrievalConfig tunes the retrieval gateway
type RetrievalConfig struct {
	MaxResults       int           `mapstructure:"max_results"`
	MinContentChars  int           `mapstructure:"min_content_chars"`
	DedupPrefixChars int           `mapstructure:"dedup_prefix_chars"`
	LocalThreshold   int           `mapstructure:"local_threshold"`
	QueryLimit       int           `mapstructure:"query_limit"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
}

// IndexConfig describes the local document index
type IndexConfig struct {
	CorpusPath  string `mapstructure:"corpus_path"`
	RebuildCron string `mapstructure:"rebuild_cron"`
	EmbedBatch  int    `mapstructure:"embed_batch"`
}

// ClientConfig is used by the terminal chat client
type ClientConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoadConfig reads configuration from file and environment. An empty path
// searches the usual locations.
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("server.address", ":8081")
	viper.SetDefault("storage.redis.timeout", "2s")
	viper.SetDefault("llm.base_url", "https://api.openai.com/v1")
	viper.SetDefault("llm.chat_model", "gpt-4o-mini")
	viper.SetDefault("llm.embedding_model", "text-embedding-3-small")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.max_tokens", 2048)
	viper.SetDefault("llm.timeout", "60s")
	viper.SetDefault("search.provider", "brave")
	viper.SetDefault("search.max_results", 5)
	viper.SetDefault("search.min_snippet_chars", 50)
	viper.SetDefault("search.min_delay", "3s")
	viper.SetDefault("search.max_delay", "6s")
	viper.SetDefault("search.fetch_timeout", "15s")
	viper.SetDefault("search.fetch_max_chars", 20000)
	viper.SetDefault("retrieval.max_results", 5)
	viper.SetDefault("retrieval.min_content_chars", 30)
	viper.SetDefault("retrieval.dedup_prefix_chars", 100)
	viper.SetDefault("retrieval.local_threshold", 2)
	viper.SetDefault("retrieval.query_limit", 3)
	viper.SetDefault("retrieval.cache_ttl", "10m")
	viper.SetDefault("index.corpus_path", "./data/krx_bond_listing_guide.jsonl")
	viper.SetDefault("index.embed_batch", 16)
	viper.SetDefault("client.base_url", "http://localhost:8081")
	viper.SetDefault("client.timeout", "5m")

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("ADVISOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// config file is optional; env and defaults may be enough
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// MustLoad is LoadConfig with a panic on failure, for CLI entrypoints.
func MustLoad(path string) *Config {
	cfg, err := LoadConfig(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
