package config

import (
	"os"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	os.Setenv("ASSEMBLY_AI_API_KEY", "test-assembly-key")
	os.Setenv("STORE_DRIVER", "memory")
	t.Cleanup(func() {
		os.Unsetenv("ASSEMBLY_AI_API_KEY")
		os.Unsetenv("STORE_DRIVER")
	})
}

func TestLoad(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.AssemblyAIAPIKey != "test-assembly-key" {
		t.Errorf("Expected AssemblyAIAPIKey 'test-assembly-key', got '%s'", cfg.AssemblyAIAPIKey)
	}

	if cfg.StoreDriver != "memory" {
		t.Errorf("Expected StoreDriver 'memory', got '%s'", cfg.StoreDriver)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	os.Unsetenv("ASSEMBLY_AI_API_KEY")
	os.Setenv("TRANSCRIPTION_PROVIDER", "assemblyai")
	defer os.Unsetenv("TRANSCRIPTION_PROVIDER")

	_, err := LoadFromEnv()
	if err == nil {
		t.Error("Expected error when AssemblyAI key is missing")
	}
}

func TestLoad_DeepgramProvider(t *testing.T) {
	os.Setenv("TRANSCRIPTION_PROVIDER", "deepgram")
	os.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")
	os.Setenv("STORE_DRIVER", "memory")
	defer os.Unsetenv("TRANSCRIPTION_PROVIDER")
	defer os.Unsetenv("DEEPGRAM_API_KEY")
	defer os.Unsetenv("STORE_DRIVER")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.DeepgramAPIKey != "test-deepgram-key" {
		t.Errorf("Expected DeepgramAPIKey 'test-deepgram-key', got '%s'", cfg.DeepgramAPIKey)
	}

	if cfg.DeepgramModel != "nova-2" {
		t.Errorf("Expected default DeepgramModel 'nova-2', got '%s'", cfg.DeepgramModel)
	}
}

func TestLoad_DeepgramMissingKey(t *testing.T) {
	os.Setenv("TRANSCRIPTION_PROVIDER", "deepgram")
	os.Unsetenv("DEEPGRAM_API_KEY")
	os.Setenv("STORE_DRIVER", "memory")
	defer os.Unsetenv("TRANSCRIPTION_PROVIDER")
	defer os.Unsetenv("STORE_DRIVER")

	_, err := LoadFromEnv()
	if err == nil {
		t.Error("Expected error when Deepgram key is missing")
	}
}

func TestLoad_PostgresRequiresURL(t *testing.T) {
	os.Setenv("ASSEMBLY_AI_API_KEY", "test-assembly-key")
	os.Setenv("STORE_DRIVER", "postgres")
	os.Unsetenv("DATABASE_URL")
	defer os.Unsetenv("ASSEMBLY_AI_API_KEY")
	defer os.Unsetenv("STORE_DRIVER")

	_, err := LoadFromEnv()
	if err == nil {
		t.Error("Expected error when DATABASE_URL is missing for postgres driver")
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check defaults
	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}

	if cfg.TranscriptionProvider != "assemblyai" {
		t.Errorf("Expected default TranscriptionProvider 'assemblyai', got '%s'", cfg.TranscriptionProvider)
	}

	if cfg.SampleRate != 16000 {
		t.Errorf("Expected default SampleRate 16000, got %d", cfg.SampleRate)
	}

	if cfg.FrameSamples != 4000 {
		t.Errorf("Expected default FrameSamples 4000, got %d", cfg.FrameSamples)
	}

	if cfg.FrameBytes() != 8000 {
		t.Errorf("Expected FrameBytes 8000, got %d", cfg.FrameBytes())
	}

	if cfg.SilenceThresholdMs != 20000 {
		t.Errorf("Expected default SilenceThresholdMs 20000, got %d", cfg.SilenceThresholdMs)
	}

	if cfg.ProviderCloseTimeout != 5*time.Second {
		t.Errorf("Expected default ProviderCloseTimeout 5s, got %v", cfg.ProviderCloseTimeout)
	}

	if cfg.MaxUploadBytes != 10485760 {
		t.Errorf("Expected default MaxUploadBytes 10485760, got %d", cfg.MaxUploadBytes)
	}

	if cfg.OpenAIModel != "gpt-4o" {
		t.Errorf("Expected default OpenAIModel 'gpt-4o', got '%s'", cfg.OpenAIModel)
	}

	if cfg.OpenAIFormatModel != "gpt-4o-mini" {
		t.Errorf("Expected default OpenAIFormatModel 'gpt-4o-mini', got '%s'", cfg.OpenAIFormatModel)
	}
}

func TestLoad_UnknownProvider(t *testing.T) {
	os.Setenv("TRANSCRIPTION_PROVIDER", "whisperx")
	os.Setenv("STORE_DRIVER", "memory")
	defer os.Unsetenv("TRANSCRIPTION_PROVIDER")
	defer os.Unsetenv("STORE_DRIVER")

	_, err := LoadFromEnv()
	if err == nil {
		t.Error("Expected error for unknown transcription provider")
	}
}

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_KEY", "test-value")
	defer os.Unsetenv("TEST_KEY")

	value := GetEnv("TEST_KEY", "default")
	if value != "test-value" {
		t.Errorf("Expected 'test-value', got '%s'", value)
	}

	value = GetEnv("NON_EXISTENT_KEY", "default")
	if value != "default" {
		t.Errorf("Expected 'default', got '%s'", value)
	}
}

func TestConfig_ResilienceDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check resilience defaults
	if cfg.CircuitBreakerMaxFailures != 5 {
		t.Errorf("Expected default CircuitBreakerMaxFailures 5, got %d", cfg.CircuitBreakerMaxFailures)
	}

	if cfg.CircuitBreakerResetTimeout != 30 {
		t.Errorf("Expected default CircuitBreakerResetTimeout 30, got %d", cfg.CircuitBreakerResetTimeout)
	}

	if cfg.ChunkRetryBackoff != 100*time.Millisecond {
		t.Errorf("Expected default ChunkRetryBackoff 100ms, got %v", cfg.ChunkRetryBackoff)
	}

	if cfg.ReconnectMaxAttempts != 5 {
		t.Errorf("Expected default ReconnectMaxAttempts 5, got %d", cfg.ReconnectMaxAttempts)
	}

	if cfg.ReconnectBackoff != 1000 {
		t.Errorf("Expected default ReconnectBackoff 1000, got %d", cfg.ReconnectBackoff)
	}
}

func TestConfig_ObservabilityDefaults(t *testing.T) {
	setRequiredEnv(t)
	// Clear LOG_LEVEL to ensure we get the default
	os.Unsetenv("LOG_LEVEL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check observability defaults
	// The default should be "info" (lowercase) as defined in config.go
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default LogLevel 'info', got '%s'", cfg.LogLevel)
	}

	if cfg.LogPretty {
		t.Error("Expected default LogPretty false, got true")
	}

	if !cfg.MetricsEnabled {
		t.Error("Expected default MetricsEnabled true, got false")
	}
}
