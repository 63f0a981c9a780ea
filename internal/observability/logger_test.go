package observability

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestWithSession(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf).With().Str("correlation_id", "corr-1").Logger()

	logger := WithSession(base, "dep-1")
	logger.Info().Msg("session started")

	out := buf.String()
	if !strings.Contains(out, `"deposition_id":"dep-1"`) {
		t.Errorf("Expected deposition_id field in log output, got %s", out)
	}
	if !strings.Contains(out, `"correlation_id":"corr-1"`) {
		t.Errorf("Expected correlation_id to carry through, got %s", out)
	}
}

func TestNewCorrelationID(t *testing.T) {
	a := NewCorrelationID()
	b := NewCorrelationID()
	if a == "" || b == "" {
		t.Fatal("Expected non-empty correlation ids")
	}
	if a == b {
		t.Errorf("Expected distinct correlation ids, got %q twice", a)
	}
}
