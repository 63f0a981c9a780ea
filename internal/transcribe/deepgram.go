package transcribe

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/casefileai/case-gateway/internal/config"
	"github.com/casefileai/case-gateway/internal/observability"
	"github.com/casefileai/case-gateway/internal/resilience"
)

// deepgramCallbackHandler implements the LiveMessageCallback interface.
// It embeds the default handler and overrides only the methods we need.
type deepgramCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	onMessage func(*msginterfaces.MessageResponse)
	onError   func(*msginterfaces.ErrorResponse) error
}

func (h *deepgramCallbackHandler) Message(message *msginterfaces.MessageResponse) error {
	h.onMessage(message)
	return nil
}

func (h *deepgramCallbackHandler) Error(errorResponse *msginterfaces.ErrorResponse) error {
	if h.onError != nil {
		return h.onError(errorResponse)
	}
	return h.DefaultCallbackHandler.Error(errorResponse)
}

// DeepgramProvider opens streaming transcription sessions against Deepgram's
// live API.
type DeepgramProvider struct {
	cfg    *config.Config
	logger zerolog.Logger
}

// NewDeepgramProvider creates a Deepgram streaming provider
func NewDeepgramProvider(cfg *config.Config) *DeepgramProvider {
	return &DeepgramProvider{
		cfg:    cfg,
		logger: observability.GetLogger().With().Str("component", "deepgram").Logger(),
	}
}

// Name identifies the provider in logs and readiness output
func (p *DeepgramProvider) Name() string { return "deepgram" }

// Connect opens a live transcription connection
func (p *DeepgramProvider) Connect(ctx context.Context, cfg StreamConfig) (Stream, error) {
	streamCtx, cancel := context.WithCancel(context.Background())

	s := &deepgramStream{
		provider: p,
		cfg:      cfg,
		events:   make(chan Event, 100),
		ctx:      streamCtx,
		cancel:   cancel,
		circuitBreaker: resilience.NewCircuitBreaker(
			"deepgram",
			p.cfg.CircuitBreakerMaxFailures,
			time.Duration(p.cfg.CircuitBreakerResetTimeout)*time.Second,
		),
		logger: p.logger,
	}

	if err := s.connect(); err != nil {
		cancel()
		return nil, err
	}

	p.logger.Info().
		Str("model", p.cfg.DeepgramModel).
		Str("language", p.cfg.DeepgramLanguage).
		Int("sample_rate", cfg.SampleRate).
		Msg("Deepgram streaming session started")

	return s, nil
}

type deepgramStream struct {
	provider *DeepgramProvider
	cfg      StreamConfig

	mu       sync.RWMutex
	client   *listenClient.WSCallback
	isActive bool

	events     chan Event
	eventsOnce sync.Once
	closeOnce  sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	circuitBreaker *resilience.CircuitBreaker
	logger         zerolog.Logger
}

// connect establishes the SDK connection; also used for reconnects.
func (s *deepgramStream) connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isActive {
		return fmt.Errorf("deepgram stream is already active")
	}

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          s.provider.cfg.DeepgramModel,
		Language:       s.provider.cfg.DeepgramLanguage,
		Punctuate:      true,
		InterimResults: true,
		UtteranceEndMs: strconv.Itoa(s.cfg.SilenceThresholdMs),
		Encoding:       "linear16", // little-endian signed 16-bit PCM
		Channels:       1,
		SampleRate:     s.cfg.SampleRate,
	}

	callback := &deepgramCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		onMessage:              s.handleMessage,
		onError:                s.handleError,
	}

	client, err := listenClient.NewWSUsingCallback(
		s.ctx,
		s.provider.cfg.DeepgramAPIKey,
		nil, // ClientOptions - nil uses defaults
		tOptions,
		callback,
	)
	if err != nil {
		return fmt.Errorf("failed to create Deepgram client: %w", err)
	}

	s.client = client
	s.isActive = true
	s.circuitBreaker.RecordResult(true)
	observability.UpdateCircuitBreakerState("deepgram", int(s.circuitBreaker.GetState()))

	return nil
}

// handleMessage converts Deepgram transcription results into events
func (s *deepgramStream) handleMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil {
		return
	}

	switch msg.Type {
	case "Results", "Message":
		if len(msg.Channel.Alternatives) == 0 {
			return
		}
		alt := msg.Channel.Alternatives[0]
		if alt.Transcript == "" {
			return
		}

		kind := KindPartial
		if msg.IsFinal {
			kind = KindFinal
		}

		select {
		case s.events <- Event{Kind: kind, Text: alt.Transcript}:
		default:
			s.logger.Warn().Msg("Event channel full, dropping transcription")
		}

	case "Metadata", "SpeechStarted", "UtteranceEnd":
		s.logger.Debug().Str("type", msg.Type).Msg("Deepgram lifecycle message")

	default:
		s.logger.Debug().Str("type", msg.Type).Msg("Ignoring Deepgram message")
	}
}

// handleError marks the stream inactive and tries a bounded reconnect before
// surfacing a fatal event.
func (s *deepgramStream) handleError(errorResponse *msginterfaces.ErrorResponse) error {
	s.logger.Warn().Interface("error", errorResponse).Msg("Deepgram error")

	s.circuitBreaker.RecordResult(false)
	observability.UpdateCircuitBreakerState("deepgram", int(s.circuitBreaker.GetState()))
	observability.IncrementCircuitBreakerFailures("deepgram")

	select {
	case <-s.ctx.Done():
		return nil
	default:
	}

	s.mu.Lock()
	s.isActive = false
	s.mu.Unlock()

	go s.attemptReconnect(errorResponse.Description)
	return nil
}

func (s *deepgramStream) attemptReconnect(cause string) {
	reconnectConfig := &resilience.ReconnectConfig{
		MaxAttempts: s.provider.cfg.ReconnectMaxAttempts,
		Backoff:     time.Duration(s.provider.cfg.ReconnectBackoff) * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}

	err := resilience.Reconnect(s.ctx, s.connect, reconnectConfig)
	if err == nil {
		s.logger.Info().Msg("Deepgram stream reconnected")
		return
	}

	if s.ctx.Err() != nil {
		return // Stream was closed while reconnecting
	}

	// Unrecoverable: surface as a session-fatal event and end the sequence
	select {
	case s.events <- Event{Err: fmt.Errorf("deepgram connection failed: %s: %w", cause, err)}:
	default:
	}
	s.eventsOnce.Do(func() { close(s.events) })
}

// Send forwards one audio frame, protected by the circuit breaker
func (s *deepgramStream) Send(frame []byte) error {
	err := s.circuitBreaker.Call(func() error {
		s.mu.RLock()
		active := s.isActive
		client := s.client
		s.mu.RUnlock()

		if !active || client == nil {
			return fmt.Errorf("deepgram stream is not active")
		}

		if _, err := client.Write(frame); err != nil {
			return fmt.Errorf("failed to send audio to Deepgram: %w", err)
		}
		return nil
	})

	observability.UpdateCircuitBreakerState("deepgram", int(s.circuitBreaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures("deepgram")
	}
	return err
}

func (s *deepgramStream) Events() <-chan Event {
	return s.events
}

// SessionID is not exposed by the Deepgram live API
func (s *deepgramStream) SessionID() string { return "" }

// Close finishes the session; bounded by ctx
func (s *deepgramStream) Close(ctx context.Context) error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.cancel() // Stop reconnection attempts

		s.mu.Lock()
		client := s.client
		active := s.isActive
		s.isActive = false
		s.mu.Unlock()

		if active && client != nil {
			done := make(chan struct{})
			go func() {
				client.Finish()
				close(done)
			}()
			select {
			case <-done:
			case <-ctx.Done():
				closeErr = ctx.Err()
			}
		}

		s.eventsOnce.Do(func() { close(s.events) })
		s.logger.Info().Msg("Deepgram streaming session closed")
	})
	return closeErr
}
