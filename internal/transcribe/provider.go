package transcribe

import (
	"fmt"

	"github.com/casefileai/case-gateway/internal/config"
)

// NewProvider selects the configured transcription provider.
func NewProvider(cfg *config.Config) (Provider, error) {
	switch cfg.TranscriptionProvider {
	case "assemblyai":
		return NewAssemblyAIProvider(cfg), nil
	case "deepgram":
		return NewDeepgramProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", cfg.TranscriptionProvider)
	}
}
