package relay

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/casefileai/case-gateway/internal/ai"
	"github.com/casefileai/case-gateway/internal/audio"
	"github.com/casefileai/case-gateway/internal/config"
	"github.com/casefileai/case-gateway/internal/domain"
	"github.com/casefileai/case-gateway/internal/observability"
	"github.com/casefileai/case-gateway/internal/resilience"
	"github.com/casefileai/case-gateway/internal/store"
	"github.com/casefileai/case-gateway/internal/transcribe"
)

// sender delivers one server message to the client. Implementations must be
// safe for concurrent use.
type sender interface {
	Send(v interface{}) error
}

type sessionState int

const (
	stateActive sessionState = iota
	stateClosing
	stateCompleted
	stateErrored
)

func (s sessionState) String() string {
	switch s {
	case stateActive:
		return "active"
	case stateClosing:
		return "closing"
	case stateCompleted:
		return "completed"
	default:
		return "errored"
	}
}

// Manager creates recording sessions. One Manager serves all transport
// connections; sessions themselves are independent.
type Manager struct {
	cfg      *config.Config
	store    store.Store
	provider transcribe.Provider
	acc      *Accumulator
	registry *Registry
}

// NewManager wires the relay against its collaborators. analyzer may be nil
// to disable transcript analysis.
func NewManager(cfg *config.Config, st store.Store, provider transcribe.Provider, analyzer ai.Analyzer, registry *Registry) *Manager {
	return &Manager{
		cfg:      cfg,
		store:    st,
		provider: provider,
		acc:      NewAccumulator(st, analyzer),
		registry: registry,
	}
}

// Registry returns the session registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Start creates the durable recording record, opens a transcription stream
// and binds a new session. On failure no session exists: a failed record
// create leaves nothing behind, a failed provider connect marks the record
// as errored.
func (m *Manager) Start(ctx context.Context, conn sender, req StartRecording, logger zerolog.Logger) (*Session, error) {
	dep, err := m.store.CreateAudioDeposition(ctx, domain.AudioDeposition{
		CaseID:              req.CaseID,
		WitnessName:         req.WitnessName,
		DepositionConductor: req.DepositionConductor,
		OpposingCounsel:     req.OpposingCounsel,
		DepositionGoals:     req.DepositionGoals,
		Status:              domain.StatusRecording,
	})
	if err != nil {
		observability.RecordError("record_create", "store")
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}

	stream, err := m.provider.Connect(ctx, transcribe.StreamConfig{
		SampleRate:         m.cfg.SampleRate,
		SilenceThresholdMs: m.cfg.SilenceThresholdMs,
	})
	if err != nil {
		m.markErrored(dep.ID, err.Error())
		observability.RecordError("provider_connect", "transcribe")
		return nil, fmt.Errorf("failed to connect to transcription service: %w", err)
	}

	if sid := stream.SessionID(); sid != "" {
		update := domain.AudioDepositionUpdate{ProviderSessionID: &sid}
		if err := m.store.UpdateAudioDeposition(ctx, dep.ID, update); err != nil {
			logger.Warn().Err(err).Msg("Failed to persist provider session id")
		}
	}

	appendCtx, appendCancel := context.WithCancel(context.Background())

	s := &Session{
		depositionID: dep.ID,
		dep:          dep,
		conn:         conn,
		store:        m.store,
		stream:       stream,
		acc:          m.acc,
		registry:     m.registry,
		metrics:      observability.NewSessionMetrics(dep.ID),
		logger:       observability.WithSession(logger, dep.ID),
		closeTimeout: m.cfg.ProviderCloseTimeout,
		retryBackoff: m.cfg.ChunkRetryBackoff,
		state:        stateActive,
		appendCh:     make(chan appendJob, 100),
		appendDone:   make(chan struct{}),
		appendCtx:    appendCtx,
		appendCancel: appendCancel,
		eventDone:    make(chan struct{}),
		quit:         make(chan struct{}),
	}

	s.metrics.RecordSessionStart()
	m.registry.add(dep.ID, s)

	go s.appendLoop()
	go s.eventLoop()

	s.logger.Info().
		Str("case_id", dep.CaseID).
		Str("witness_name", dep.WitnessName).
		Str("provider", m.provider.Name()).
		Msg("Recording session started")

	return s, nil
}

func (m *Manager) markErrored(depositionID, msg string) {
	status := domain.StatusError
	update := domain.AudioDepositionUpdate{Status: &status, ErrorMessage: &msg}
	if err := m.store.UpdateAudioDeposition(context.Background(), depositionID, update); err != nil {
		logger := observability.GetLogger()
		logger.Error().Err(err).
			Str("deposition_id", depositionID).
			Msg("Failed to mark recording as errored")
	}
}

type appendJob struct {
	data       []byte
	capturedAt time.Time
}

// Session is the live binding between one transport connection, one audio
// deposition record and one transcription stream.
type Session struct {
	depositionID string
	dep          *domain.AudioDeposition
	conn         sender
	store        store.Store
	stream       transcribe.Stream
	acc          *Accumulator
	registry     *Registry
	metrics      *observability.SessionMetrics
	logger       zerolog.Logger
	closeTimeout time.Duration
	retryBackoff time.Duration

	mu    sync.Mutex
	state sessionState

	appendCh     chan appendJob
	appendDone   chan struct{}
	appendCtx    context.Context
	appendCancel context.CancelFunc
	eventDone    chan struct{}
	quit         chan struct{}
	finalizeOnce sync.Once
	analysisBusy atomic.Bool
}

// DepositionID returns the durable record id bound to this session.
func (s *Session) DepositionID() string {
	return s.depositionID
}

// Terminal reports whether the session has reached a terminal state.
func (s *Session) Terminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateCompleted || s.state == stateErrored
}

// HandleChunk relays one audio frame: queues it for the durable chunk
// sequence and forwards it to the transcription stream. Chunks arriving
// after stop was requested are silently dropped.
func (s *Session) HandleChunk(frame []byte) {
	s.mu.Lock()
	active := s.state == stateActive
	s.mu.Unlock()
	if !active {
		return
	}

	s.metrics.RecordAudioChunk(len(frame))

	if e := s.logger.Debug(); e.Enabled() {
		if samples, err := audio.BytesToSamples(frame); err == nil {
			e.Float64("rms", audio.CalculateRMS(samples)).Int("bytes", len(frame)).Msg("Audio frame received")
		}
	}

	select {
	case s.appendCh <- appendJob{data: frame, capturedAt: time.Now().UTC()}:
	default:
		s.logger.Warn().Msg("Append queue full, dropping audio chunk")
		s.metrics.RecordError("append_queue_full", "relay")
	}

	// Transcription is advisory: a failed forward does not end the session
	if err := s.stream.Send(frame); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to forward audio frame to transcription service")
		s.metrics.RecordError("provider_send", "transcribe")
	} else {
		s.metrics.RecordProviderBytes(len(frame))
	}
}

// Stop drains pending appends and closes the transcription stream, each
// within a bounded timeout, then marks the recording completed. Calling it
// again, or after the session is already terminal, is a no-op.
func (s *Session) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.state != stateActive {
		s.mu.Unlock()
		return
	}
	s.state = stateClosing
	s.mu.Unlock()

	close(s.appendCh)
	drain := time.NewTimer(s.closeTimeout)
	select {
	case <-s.appendDone:
		drain.Stop()
	case <-drain.C:
		// A hung store must not wedge the connection's read loop
		s.logger.Warn().Msg("Timed out draining audio chunk queue")
		s.metrics.RecordError("append_drain_timeout", "store")
		s.appendCancel()
	}

	closeCtx, cancel := context.WithTimeout(ctx, s.closeTimeout)
	defer cancel()
	if err := s.stream.Close(closeCtx); err != nil {
		s.logger.Warn().Err(err).Msg("Transcription stream close failed")
	}

	select {
	case <-s.eventDone:
	case <-closeCtx.Done():
	}

	s.finalize(stateCompleted, "")
}

// appendLoop serializes durable chunk appends so arrival order is preserved.
func (s *Session) appendLoop() {
	defer close(s.appendDone)
	for {
		select {
		case job, ok := <-s.appendCh:
			if !ok {
				return
			}
			s.persistChunk(job)
		case <-s.quit:
			for {
				select {
				case job, ok := <-s.appendCh:
					if !ok {
						return
					}
					s.persistChunk(job)
				default:
					return
				}
			}
		}
	}
}

func (s *Session) persistChunk(job appendJob) {
	chunk := domain.AudioChunk{Data: job.data, Timestamp: job.capturedAt}

	attempt := 0
	err := resilience.Retry(func() error {
		attempt++
		if attempt > 1 {
			s.metrics.RecordChunkRetry()
		}
		return s.store.AppendAudioChunk(s.appendCtx, s.depositionID, chunk)
	}, &resilience.RetryConfig{
		MaxAttempts:       2,
		InitialBackoff:    s.retryBackoff,
		MaxBackoff:        s.retryBackoff,
		BackoffMultiplier: 1.0,
	}, nil)

	if err != nil {
		// One dropped chunk is surfaced but never ends the session
		s.logger.Warn().Err(err).Msg("Failed to persist audio chunk after retry")
		s.metrics.RecordError("chunk_append", "store")
		s.send(newError("failed to store an audio chunk"))
	}
}

// eventLoop consumes the transcription stream for the session's lifetime.
func (s *Session) eventLoop() {
	defer close(s.eventDone)
	for ev := range s.stream.Events() {
		if ev.Err != nil {
			s.failProvider(ev.Err)
			return
		}

		switch ev.Kind {
		case transcribe.KindPartial:
			s.metrics.RecordTranscriptEvent("partial")
			s.send(newPartialTranscript(ev.Text))

		case transcribe.KindFinal:
			s.metrics.RecordTranscriptEvent("final")
			s.send(newFinalTranscript(ev.Text))

			updated, err := s.acc.AppendFinal(context.Background(), s.depositionID, ev.Text)
			if err != nil {
				s.logger.Warn().Err(err).Msg("Failed to append final transcript segment")
				s.metrics.RecordError("transcript_append", "store")
				continue
			}
			s.maybeAnalyze(updated)
		}
	}
}

// maybeAnalyze triggers best-effort analysis of the updated transcript. At
// most one analysis call is in flight per session; extra finals skip the
// trigger rather than queue.
func (s *Session) maybeAnalyze(transcript string) {
	if !s.acc.AnalysisEnabled() {
		return
	}
	if !s.analysisBusy.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer s.analysisBusy.Store(false)

		s.metrics.RecordAnalysisStart()
		result, err := s.acc.Analyze(context.Background(), s.dep, transcript)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Transcript analysis failed")
			s.metrics.RecordAnalysisEnd(false)
			return
		}
		s.metrics.RecordAnalysisEnd(true)
		s.send(newAnalysis(result))
	}()
}

// failProvider handles an unrecoverable transcription-service error.
func (s *Session) failProvider(err error) {
	s.mu.Lock()
	if s.state == stateCompleted || s.state == stateErrored {
		s.mu.Unlock()
		return
	}
	s.state = stateErrored
	s.mu.Unlock()

	s.logger.Error().Err(err).Msg("Transcription service failed")
	s.metrics.RecordError("provider_fatal", "transcribe")
	s.send(newError(err.Error()))

	closeCtx, cancel := context.WithTimeout(context.Background(), s.closeTimeout)
	defer cancel()
	if cerr := s.stream.Close(closeCtx); cerr != nil {
		s.logger.Warn().Err(cerr).Msg("Transcription stream close failed")
	}

	s.finalize(stateErrored, err.Error())
}

// finalize persists the terminal status and releases the session binding.
// It runs exactly once regardless of which path ends the session.
func (s *Session) finalize(final sessionState, errMsg string) {
	s.finalizeOnce.Do(func() {
		s.mu.Lock()
		s.state = final
		s.mu.Unlock()

		status := domain.StatusCompleted
		outcome := "completed"
		update := domain.AudioDepositionUpdate{}
		if final == stateErrored {
			status = domain.StatusError
			outcome = "errored"
			update.ErrorMessage = &errMsg
		}
		update.Status = &status

		if err := s.store.UpdateAudioDeposition(context.Background(), s.depositionID, update); err != nil {
			s.logger.Error().Err(err).Msg("Failed to persist final recording status")
			s.metrics.RecordError("status_update", "store")
		}

		s.registry.remove(s.depositionID)
		s.metrics.RecordSessionEnd(outcome)
		s.appendCancel()
		close(s.quit)

		s.logger.Info().Str("outcome", outcome).Msg("Recording session ended")
	})
}

func (s *Session) send(v interface{}) {
	if err := s.conn.Send(v); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to send message to client")
	}
}
