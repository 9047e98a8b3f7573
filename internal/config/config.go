package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Log       LogConfig       `mapstructure:"log" validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" validate:"required"`
	Session   SessionConfig   `mapstructure:"session" validate:"required"`
	LLM       LLMConfig       `mapstructure:"llm" validate:"required"`
	Source    SourceConfig    `mapstructure:"source" validate:"required"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// SchedulerConfig contains settings shared by the generation and refinement
// schedulers. Each scheduler gets its own MaxConcurrent slots.
type SchedulerConfig struct {
	MaxConcurrent int `mapstructure:"max_concurrent" validate:"required,gt=0,lte=64"`
	// MaxTurns caps refinement rounds per item.
	MaxTurns int `mapstructure:"max_turns" validate:"required,gt=0"`
}

// SessionConfig contains session metrics persistence settings.
type SessionConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	Provider string `mapstructure:"provider" validate:"required,oneof=gemini openai anthropic echo"`
	APIKey   string `mapstructure:"api_key" validate:"required_unless=Provider echo"`
	Model    string `mapstructure:"model"`
	// BaseURL overrides the provider endpoint (OpenAI-compatible gateways).
	BaseURL         string  `mapstructure:"base_url" validate:"omitempty,url"`
	CostPer1KTokens float64 `mapstructure:"cost_per_1k_tokens" validate:"gte=0"`
	// MaxRetries is the number of retries after a failed model call.
	MaxRetries        int `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelaySeconds int `mapstructure:"retry_delay_seconds" validate:"gte=0,lte=60"`
}

// SourceConfig selects where unread items come from.
type SourceConfig struct {
	Kind string `mapstructure:"kind" validate:"required,oneof=sqlite postgres file"`
	// DSN is the database connection string for sqlite and postgres.
	DSN string `mapstructure:"dsn" validate:"required_unless=Kind file"`
	// Path is the YAML mailbox for the file source.
	Path string `mapstructure:"path" validate:"required_if=Kind file"`
}
