package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the case gateway service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Durable store configuration
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"` // postgres or memory
	DatabaseURL string `envconfig:"DATABASE_URL" default:""`

	// Streaming transcription provider
	TranscriptionProvider string `envconfig:"TRANSCRIPTION_PROVIDER" default:"assemblyai"` // assemblyai or deepgram

	// AssemblyAI realtime API configuration
	AssemblyAIAPIKey  string `envconfig:"ASSEMBLY_AI_API_KEY" default:""`
	AssemblyAIBaseURL string `envconfig:"ASSEMBLY_AI_BASE_URL" default:"wss://api.assemblyai.com/v2/realtime/ws"`

	// Deepgram STT API configuration
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"` // nova-2, enhanced, base
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`  // Language code (en, es, fr, etc.)

	// OpenAI language-model configuration. Analysis is disabled when the key
	// is empty; the relay and REST surfaces keep working without it.
	OpenAIAPIKey      string  `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIModel       string  `envconfig:"OPENAI_MODEL" default:"gpt-4o"`
	OpenAIFormatModel string  `envconfig:"OPENAI_FORMAT_MODEL" default:"gpt-4o-mini"`
	OpenAITemperature float64 `envconfig:"OPENAI_TEMPERATURE" default:"0.1"`
	OpenAIMaxTokens   int     `envconfig:"OPENAI_MAX_TOKENS" default:"16384"`

	// Audio configuration. Frames are mono signed-16-bit little-endian PCM.
	SampleRate         int `envconfig:"SAMPLE_RATE" default:"16000"`
	FrameSamples       int `envconfig:"FRAME_SAMPLES" default:"4000"` // 250ms at 16kHz
	SilenceThresholdMs int `envconfig:"SILENCE_THRESHOLD_MS" default:"20000"`

	// Relay session configuration
	ProviderCloseTimeout time.Duration `envconfig:"PROVIDER_CLOSE_TIMEOUT" default:"5s"`   // bound on provider teardown
	ChunkRetryBackoff    time.Duration `envconfig:"CHUNK_RETRY_BACKOFF" default:"100ms"`   // backoff before the single retry
	MaxUploadBytes       int64         `envconfig:"MAX_UPLOAD_BYTES" default:"10485760"`   // 10MB document upload cap

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`         // Maximum reconnection attempts
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"`           // Reconnection backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// FrameBytes returns the expected size of one decoded audio frame.
func (c *Config) FrameBytes() int {
	return c.FrameSamples * 2
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.TranscriptionProvider {
	case "assemblyai":
		if c.AssemblyAIAPIKey == "" {
			return fmt.Errorf("ASSEMBLY_AI_API_KEY is required when TRANSCRIPTION_PROVIDER=assemblyai")
		}
	case "deepgram":
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required when TRANSCRIPTION_PROVIDER=deepgram")
		}
	default:
		return fmt.Errorf("unknown TRANSCRIPTION_PROVIDER %q", c.TranscriptionProvider)
	}

	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.FrameSamples <= 0 {
		return fmt.Errorf("FRAME_SAMPLES must be positive")
	}

	return nil
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
