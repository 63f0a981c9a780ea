package transcribe

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/casefileai/case-gateway/internal/config"
	"github.com/casefileai/case-gateway/internal/observability"
)

// AssemblyAI realtime message types
const (
	aaiSessionBegins     = "SessionBegins"
	aaiPartialTranscript = "PartialTranscript"
	aaiFinalTranscript   = "FinalTranscript"
	aaiSessionTerminated = "SessionTerminated"
)

// aaiInbound is the envelope for messages from the realtime API
type aaiInbound struct {
	MessageType string `json:"message_type"`
	SessionID   string `json:"session_id,omitempty"`
	Text        string `json:"text,omitempty"`
	Error       string `json:"error,omitempty"`
}

// aaiAudioMessage carries one base64-encoded audio frame
type aaiAudioMessage struct {
	AudioData string `json:"audio_data"`
}

// aaiConfigMessage updates session configuration after SessionBegins
type aaiConfigMessage struct {
	EndUtteranceSilenceThreshold int `json:"end_utterance_silence_threshold"`
}

// aaiTerminateMessage requests a graceful session end
type aaiTerminateMessage struct {
	TerminateSession bool `json:"terminate_session"`
}

// AssemblyAIProvider opens realtime transcription sessions against the
// AssemblyAI v2 streaming WebSocket API.
type AssemblyAIProvider struct {
	apiKey  string
	baseURL string
	logger  zerolog.Logger
}

// NewAssemblyAIProvider creates an AssemblyAI realtime provider
func NewAssemblyAIProvider(cfg *config.Config) *AssemblyAIProvider {
	return &AssemblyAIProvider{
		apiKey:  cfg.AssemblyAIAPIKey,
		baseURL: cfg.AssemblyAIBaseURL,
		logger:  observability.GetLogger().With().Str("component", "assemblyai").Logger(),
	}
}

// Name identifies the provider in logs and readiness output
func (p *AssemblyAIProvider) Name() string { return "assemblyai" }

// Connect dials the realtime endpoint, waits for SessionBegins and applies
// the utterance silence threshold.
func (p *AssemblyAIProvider) Connect(ctx context.Context, cfg StreamConfig) (Stream, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid AssemblyAI base URL: %w", err)
	}
	q := u.Query()
	q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", p.apiKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to AssemblyAI (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect to AssemblyAI: %w", err)
	}

	s := &assemblyAIStream{
		conn:       conn,
		events:     make(chan Event, 100),
		terminated: make(chan struct{}),
		done:       make(chan struct{}),
		logger:     p.logger,
	}

	// The first message is SessionBegins; fail the connect if the handshake
	// doesn't complete before the context deadline.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	} else {
		_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	}
	var begin aaiInbound
	if err := conn.ReadJSON(&begin); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read session handshake: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	if begin.Error != "" {
		conn.Close()
		return nil, fmt.Errorf("AssemblyAI rejected session: %s", begin.Error)
	}
	if begin.MessageType != aaiSessionBegins {
		conn.Close()
		return nil, fmt.Errorf("unexpected handshake message type %q", begin.MessageType)
	}
	s.sessionID = begin.SessionID

	if cfg.SilenceThresholdMs > 0 {
		if err := s.writeJSON(aaiConfigMessage{EndUtteranceSilenceThreshold: cfg.SilenceThresholdMs}); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to configure silence threshold: %w", err)
		}
	}

	p.logger.Info().
		Str("session_id", s.sessionID).
		Int("sample_rate", cfg.SampleRate).
		Msg("AssemblyAI realtime session started")

	go s.readLoop()

	return s, nil
}

type assemblyAIStream struct {
	conn       *websocket.Conn
	sessionID  string
	events     chan Event
	terminated chan struct{}
	done       chan struct{}
	closeOnce  sync.Once
	writeMu    sync.Mutex
	logger     zerolog.Logger
}

func (s *assemblyAIStream) writeJSON(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

// Send forwards one audio frame as a base64 audio_data message
func (s *assemblyAIStream) Send(frame []byte) error {
	select {
	case <-s.done:
		return fmt.Errorf("stream is closed")
	default:
	}

	msg := aaiAudioMessage{AudioData: base64.StdEncoding.EncodeToString(frame)}
	if err := s.writeJSON(msg); err != nil {
		return fmt.Errorf("failed to send audio to AssemblyAI: %w", err)
	}
	return nil
}

func (s *assemblyAIStream) Events() <-chan Event {
	return s.events
}

func (s *assemblyAIStream) SessionID() string {
	return s.sessionID
}

// readLoop decodes inbound messages into transcript events until the session
// terminates or the connection fails.
func (s *assemblyAIStream) readLoop() {
	defer close(s.events)

	for {
		var msg aaiInbound
		if err := s.conn.ReadJSON(&msg); err != nil {
			select {
			case <-s.done:
				// Closed locally; not an error
			default:
				s.emit(Event{Err: fmt.Errorf("AssemblyAI connection lost: %w", err)})
			}
			return
		}

		if msg.Error != "" {
			s.emit(Event{Err: fmt.Errorf("AssemblyAI error: %s", msg.Error)})
			return
		}

		switch msg.MessageType {
		case aaiPartialTranscript:
			if msg.Text != "" {
				s.emit(Event{Kind: KindPartial, Text: msg.Text})
			}
		case aaiFinalTranscript:
			if msg.Text != "" {
				s.emit(Event{Kind: KindFinal, Text: msg.Text})
			}
		case aaiSessionTerminated:
			close(s.terminated)
			return
		default:
			s.logger.Debug().Str("message_type", msg.MessageType).Msg("Ignoring AssemblyAI message")
		}
	}
}

func (s *assemblyAIStream) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// Close requests a graceful terminate and waits for acknowledgement, bounded
// by ctx. Safe to call more than once.
func (s *assemblyAIStream) Close(ctx context.Context) error {
	var closeErr error
	s.closeOnce.Do(func() {
		if err := s.writeJSON(aaiTerminateMessage{TerminateSession: true}); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to send terminate_session")
		} else {
			select {
			case <-s.terminated:
			case <-ctx.Done():
				s.logger.Warn().Msg("Timed out waiting for session termination")
				closeErr = ctx.Err()
			}
		}

		close(s.done)
		if err := s.conn.Close(); err != nil && closeErr == nil {
			closeErr = err
		}

		s.logger.Info().Str("session_id", s.sessionID).Msg("AssemblyAI realtime session closed")
	})
	return closeErr
}
