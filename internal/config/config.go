package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Classify   ClassifyConfig   `yaml:"classify" mapstructure:"classify"`
	DocText    DocTextConfig    `yaml:"doctext" mapstructure:"doctext"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Registry   RegistryConfig   `yaml:"registry" mapstructure:"registry"`
	Verify     VerifyConfig     `yaml:"verify" mapstructure:"verify"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	ExtractModel  string `yaml:"extract_model" mapstructure:"extract_model"`
	ClassifyModel string `yaml:"classify_model" mapstructure:"classify_model"`
}

// ExtractionConfig configures section extraction calls.
type ExtractionConfig struct {
	Temperature       float64       `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens         int64         `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs       int           `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxTextChars      int           `yaml:"max_text_chars" mapstructure:"max_text_chars"`
	DefaultType       string        `yaml:"default_type" mapstructure:"default_type"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	MaxConcurrent     int           `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	Retry             RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Circuit           CircuitConfig `yaml:"circuit" mapstructure:"circuit"`
}

// RetryConfig configures transport retries.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
}

// CircuitConfig configures the model endpoint circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ClassifyConfig configures document classification calls.
type ClassifyConfig struct {
	TimeoutSecs  int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxTextChars int `yaml:"max_text_chars" mapstructure:"max_text_chars"`
}

// DocTextConfig configures text acquisition from document files.
type DocTextConfig struct {
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MinChars      int    `yaml:"min_chars" mapstructure:"min_chars"`
	MistralKey    string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string `yaml:"mistral_ocr_model" mapstructure:"mistral_ocr_model"`
}

// FetchConfig configures downloads of remote (ftp, http) documents.
type FetchConfig struct {
	TempDir     string      `yaml:"temp_dir" mapstructure:"temp_dir"`
	TimeoutSecs int         `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retry       RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// RegistryConfig points at an optional schema override file.
type RegistryConfig struct {
	SchemaFile string `yaml:"schema_file" mapstructure:"schema_file"`
}

// VerifyConfig points at an optional check list override file.
type VerifyConfig struct {
	ChecklistFile string `yaml:"checklist_file" mapstructure:"checklist_file"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. With an empty path
// config.yaml in the working directory is used when present; an explicit
// path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	v.SetConfigType("yaml")

	// Environment
	v.SetEnvPrefix("DOCVERIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.extract_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.classify_model", "claude-haiku-4-5-20251001")
	v.SetDefault("extraction.temperature", 0.0)
	v.SetDefault("extraction.max_tokens", 2048)
	v.SetDefault("extraction.timeout_secs", 60)
	v.SetDefault("extraction.max_text_chars", 12000)
	v.SetDefault("extraction.default_type", "commercial_invoice")
	v.SetDefault("extraction.requests_per_second", 4)
	v.SetDefault("extraction.max_concurrent", 4)
	v.SetDefault("extraction.retry.max_attempts", 2)
	v.SetDefault("extraction.retry.initial_backoff_ms", 500)
	v.SetDefault("extraction.circuit.failure_threshold", 5)
	v.SetDefault("extraction.circuit.reset_timeout_secs", 30)
	v.SetDefault("classify.timeout_secs", 20)
	v.SetDefault("classify.max_text_chars", 3000)
	v.SetDefault("doctext.pdftotext_path", "pdftotext")
	v.SetDefault("doctext.min_chars", 100)
	v.SetDefault("doctext.mistral_api_key", "")
	v.SetDefault("doctext.mistral_ocr_model", "mistral-ocr-latest")
	v.SetDefault("fetch.temp_dir", "")
	v.SetDefault("fetch.timeout_secs", 120)
	v.SetDefault("fetch.retry.max_attempts", 3)
	v.SetDefault("fetch.retry.initial_backoff_ms", 1000)
	v.SetDefault("registry.schema_file", "")
	v.SetDefault("verify.checklist_file", "")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "docverify.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Every problem is
// reported, one per line.
func (c *Config) Validate(mode string) error {
	var problems []string
	needModel := func() {
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if c.Extraction.MaxConcurrent < 1 || c.Extraction.MaxConcurrent > 32 {
			problems = append(problems, "extraction.max_concurrent must be between 1 and 32")
		}
		if c.Extraction.Temperature < 0 || c.Extraction.Temperature > 1 {
			problems = append(problems, "extraction.temperature must be between 0 and 1")
		}
	}
	needStore := func() {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}

	switch mode {
	case "extract":
		needModel()
		needStore()
	case "serve":
		needModel()
		needStore()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "verify", "report", "migrate":
		needStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s:\n%s", mode, strings.Join(problems, "\n"))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
