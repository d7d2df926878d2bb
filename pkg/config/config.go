package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for data-sense-ai.
// Configuration comes from config.yaml with environment variable overrides.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// SessionKey signs the conversation cookie used for follow-up questions.
	SessionKey string `yaml:"-" env:"SESSION_KEY"` // Secret - not in YAML

	Datasource DatasourceConfig `yaml:"datasource"`
	LLM        LLMConfig        `yaml:"llm"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Topics     TopicsConfig     `yaml:"topics"`
	Knowledge  KnowledgeConfig  `yaml:"knowledge"`
	Debug      DebugConfig      `yaml:"debug"`
}

// DatasourceConfig describes the read-only warehouse connection.
type DatasourceConfig struct {
	// Type selects the adapter: "mssql" or "postgres".
	Type     string `yaml:"type" env:"DATASOURCE_TYPE" env-default:"mssql"`
	Host     string `yaml:"host" env:"DATASOURCE_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"DATASOURCE_PORT" env-default:"1433"`
	Database string `yaml:"database" env:"DATASOURCE_DATABASE" env-default:""`
	User     string `yaml:"user" env:"DATASOURCE_USER" env-default:""`
	Password string `yaml:"-" env:"DATASOURCE_PASSWORD"` // Secret - not in YAML

	// AuthMethod is SQL Server specific: "sql" or "service_principal".
	AuthMethod   string `yaml:"auth_method" env:"DATASOURCE_AUTH_METHOD" env-default:"sql"`
	TenantID     string `yaml:"tenant_id" env:"DATASOURCE_TENANT_ID" env-default:""`
	ClientID     string `yaml:"client_id" env:"DATASOURCE_CLIENT_ID" env-default:""`
	ClientSecret string `yaml:"-" env:"DATASOURCE_CLIENT_SECRET"` // Secret - not in YAML

	Encrypt                bool   `yaml:"encrypt" env:"DATASOURCE_ENCRYPT" env-default:"true"`
	TrustServerCertificate bool   `yaml:"trust_server_certificate" env:"DATASOURCE_TRUST_SERVER_CERTIFICATE" env-default:"false"`
	SSLMode                string `yaml:"ssl_mode" env:"DATASOURCE_SSL_MODE" env-default:"require"`
	ConnectionTimeoutSec   int    `yaml:"connection_timeout_seconds" env:"DATASOURCE_CONNECTION_TIMEOUT_SECONDS" env-default:"30"`
}

// Map returns the datasource settings in the generic form consumed by adapter factories.
func (d *DatasourceConfig) Map() map[string]any {
	m := map[string]any{
		"host":                     d.Host,
		"port":                     d.Port,
		"database":                 d.Database,
		"user":                     d.User,
		"password":                 d.Password,
		"encrypt":                  d.Encrypt,
		"trust_server_certificate": d.TrustServerCertificate,
		"ssl_mode":                 d.SSLMode,
		"connection_timeout":       d.ConnectionTimeoutSec,
	}
	if d.Type == "mssql" {
		m["auth_method"] = d.AuthMethod
		if d.AuthMethod == "service_principal" {
			m["tenant_id"] = d.TenantID
			m["client_id"] = d.ClientID
			m["client_secret"] = d.ClientSecret
		}
	}
	return m
}

// LLMConfig configures the hosted generation model.
type LLMConfig struct {
	// Provider is "openai", "azure" or "anthropic".
	Provider string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	// Endpoint is the base URL (OpenAI-compatible servers) or the Azure resource URL.
	Endpoint   string `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model      string `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o"`
	APIVersion string `yaml:"api_version" env:"LLM_API_VERSION" env-default:"2024-06-01"`
	APIKey     string `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML

	Temperature float64       `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0"`
	MaxTokens   int           `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"2048"`
	Timeout     time.Duration `yaml:"timeout" env:"LLM_TIMEOUT" env-default:"60s"`
	MaxRetries  int           `yaml:"max_retries" env:"LLM_MAX_RETRIES" env-default:"3"`
	RetryDelay  time.Duration `yaml:"retry_delay" env:"LLM_RETRY_DELAY" env-default:"1s"`

	// Circuit breaker: trip after N consecutive transport failures.
	BreakerThreshold  int           `yaml:"breaker_threshold" env:"LLM_BREAKER_THRESHOLD" env-default:"5"`
	BreakerResetAfter time.Duration `yaml:"breaker_reset_after" env:"LLM_BREAKER_RESET_AFTER" env-default:"30s"`

	EmbeddingModel string `yaml:"embedding_model" env:"LLM_EMBEDDING_MODEL" env-default:"text-embedding-3-small"`
}

// PipelineConfig bounds the correction loop and query execution.
type PipelineConfig struct {
	Dialect          string        `yaml:"dialect" env:"PIPELINE_DIALECT" env-default:""` // derived from datasource type when empty
	MaxAttempts      int           `yaml:"max_attempts" env:"PIPELINE_MAX_ATTEMPTS" env-default:"3"`
	SampleRows       int           `yaml:"sample_rows" env:"PIPELINE_SAMPLE_ROWS" env-default:"3"`
	MaxRows          int           `yaml:"max_rows" env:"PIPELINE_MAX_ROWS" env-default:"1000"`
	DisplayRows      int           `yaml:"display_rows" env:"PIPELINE_DISPLAY_ROWS" env-default:"30"`
	ExecuteTimeout   time.Duration `yaml:"execute_timeout" env:"PIPELINE_EXECUTE_TIMEOUT" env-default:"30s"`
	RequestTimeout   time.Duration `yaml:"request_timeout" env:"PIPELINE_REQUEST_TIMEOUT" env-default:"3m"`
	CatalogTimeout   time.Duration `yaml:"catalog_timeout" env:"PIPELINE_CATALOG_TIMEOUT" env-default:"2m"`
	CacheTTL         time.Duration `yaml:"cache_ttl" env:"PIPELINE_CACHE_TTL" env-default:"1h"`
	MaxConcurrent    int           `yaml:"max_concurrent" env:"PIPELINE_MAX_CONCURRENT" env-default:"8"`
	ConversationTTL  time.Duration `yaml:"conversation_ttl" env:"PIPELINE_CONVERSATION_TTL" env-default:"24h"`
}

// TopicsConfig controls candidate-table shortlisting.
type TopicsConfig struct {
	// Embedder is "lexical" (local, default) or "openai".
	Embedder  string  `yaml:"embedder" env:"TOPICS_EMBEDDER" env-default:"lexical"`
	Fanout    int     `yaml:"fanout" env:"TOPICS_FANOUT" env-default:"3"`
	Threshold float64 `yaml:"threshold" env:"TOPICS_THRESHOLD" env-default:"0.2"`
	// DefaultTablesStr is a comma-separated list used when nothing matches.
	DefaultTablesStr string   `yaml:"default_tables" env:"TOPICS_DEFAULT_TABLES" env-default:"dim_date,dim_member,dim_branch,fact_member_relationship"`
	DefaultTables    []string `yaml:"-"`
}

// KnowledgeConfig points at the externally maintained YAML records.
type KnowledgeConfig struct {
	TopicsPath   string `yaml:"topics_path" env:"KNOWLEDGE_TOPICS_PATH" env-default:"knowledge/topics.yaml"`
	RulesPath    string `yaml:"rules_path" env:"KNOWLEDGE_RULES_PATH" env-default:"knowledge/rules.yaml"`
	TemporalPath string `yaml:"temporal_path" env:"KNOWLEDGE_TEMPORAL_PATH" env-default:"knowledge/temporal.yaml"`
}

// DebugConfig holds inspection-only outputs.
type DebugConfig struct {
	// CatalogCachePath receives a JSON snapshot after every catalog build. Empty disables it.
	CatalogCachePath string `yaml:"catalog_cache_path" env:"DEBUG_CATALOG_CACHE_PATH" env-default:""`
}

// Load reads config.yaml from the working directory with environment overrides.
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile reads the given YAML file with environment overrides.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.parseComplexFields()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() {
	c.Topics.DefaultTables = splitList(c.Topics.DefaultTablesStr)
	if c.Datasource.Type == "postgres" && c.Datasource.Port == 1433 {
		c.Datasource.Port = 5432
	}
	if c.Pipeline.Dialect == "" {
		c.Pipeline.Dialect = DialectFor(c.Datasource.Type)
	}
}

// Validate checks values that have no safe fallback.
func (c *Config) Validate() error {
	switch c.Datasource.Type {
	case "mssql", "postgres":
	default:
		return fmt.Errorf("unsupported datasource type %q (must be mssql or postgres)", c.Datasource.Type)
	}
	switch c.LLM.Provider {
	case "openai", "azure", "anthropic":
	default:
		return fmt.Errorf("unsupported llm provider %q (must be openai, azure or anthropic)", c.LLM.Provider)
	}
	switch c.Topics.Embedder {
	case "lexical", "openai":
	default:
		return fmt.Errorf("unsupported topics embedder %q (must be lexical or openai)", c.Topics.Embedder)
	}
	if c.Pipeline.MaxAttempts < 1 {
		return fmt.Errorf("pipeline.max_attempts must be at least 1, got %d", c.Pipeline.MaxAttempts)
	}
	if c.Topics.Fanout < 1 {
		return fmt.Errorf("topics.fanout must be at least 1, got %d", c.Topics.Fanout)
	}
	if len(c.Topics.DefaultTables) == 0 {
		return fmt.Errorf("topics.default_tables must name at least one table")
	}
	return nil
}

// DialectFor maps a datasource type to the SQL dialect named in prompts.
func DialectFor(dsType string) string {
	switch dsType {
	case "postgres":
		return "PostgreSQL"
	default:
		return "Microsoft SQL Server (T-SQL)"
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
