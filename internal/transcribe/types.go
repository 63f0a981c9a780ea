package transcribe

import "context"

// Kind distinguishes transcript event kinds.
type Kind int

const (
	// KindPartial is a provisional transcript superseded by the next final.
	KindPartial Kind = iota
	// KindFinal is a transcript segment the provider will not revise.
	KindFinal
)

func (k Kind) String() string {
	if k == KindFinal {
		return "final"
	}
	return "partial"
}

// Event is one unit of output from the transcription service. Events for one
// stream arrive in capture order. A non-nil Err is session-fatal: the stream
// emits no further events after it.
type Event struct {
	Kind Kind
	Text string
	Err  error
}

// StreamConfig configures one transcription stream.
type StreamConfig struct {
	// SampleRate of the incoming PCM audio in Hz.
	SampleRate int
	// SilenceThresholdMs is how long the provider waits before ending an
	// utterance and emitting a final.
	SilenceThresholdMs int
}

// Stream is one live transcription session: audio frames in, transcript
// events out. The event sequence is lazy, unbounded and non-restartable; it
// is consumed by exactly one relay session.
type Stream interface {
	// Send forwards one audio frame (little-endian s16 mono PCM).
	Send(frame []byte) error

	// Events returns the transcript event sequence. The channel is closed
	// when the provider ends the session or after a fatal error event.
	Events() <-chan Event

	// SessionID returns the provider-assigned session id, if any.
	SessionID() string

	// Close ends the session. It is bounded by ctx and idempotent.
	Close(ctx context.Context) error
}

// Provider opens streaming transcription sessions.
type Provider interface {
	// Connect opens a new stream. Name identifies the provider in logs,
	// metrics and readiness output.
	Connect(ctx context.Context, cfg StreamConfig) (Stream, error)
	Name() string
}
