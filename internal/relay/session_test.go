package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/casefileai/case-gateway/internal/ai"
	"github.com/casefileai/case-gateway/internal/config"
	"github.com/casefileai/case-gateway/internal/domain"
	"github.com/casefileai/case-gateway/internal/store"
	"github.com/casefileai/case-gateway/internal/transcribe"
)

func testConfig() *config.Config {
	return &config.Config{
		SampleRate:           16000,
		FrameSamples:         4000,
		SilenceThresholdMs:   20000,
		ProviderCloseTimeout: 2 * time.Second,
		ChunkRetryBackoff:    time.Millisecond,
	}
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []interface{}
}

func (f *fakeSender) Send(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, v)
	return nil
}

func (f *fakeSender) messages() []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]interface{}(nil), f.msgs...)
}

func (f *fakeSender) errorMessages() []errorMessage {
	var out []errorMessage
	for _, m := range f.messages() {
		if em, ok := m.(errorMessage); ok {
			out = append(out, em)
		}
	}
	return out
}

type fakeStream struct {
	mu     sync.Mutex
	sent   [][]byte
	events chan transcribe.Event
	once   sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan transcribe.Event, 16)}
}

func (f *fakeStream) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]byte(nil), frame...))
	return nil
}

func (f *fakeStream) Events() <-chan transcribe.Event { return f.events }

func (f *fakeStream) SessionID() string { return "fake-provider-session" }

func (f *fakeStream) Close(ctx context.Context) error {
	f.once.Do(func() { close(f.events) })
	return nil
}

func (f *fakeStream) emit(ev transcribe.Event) { f.events <- ev }

func (f *fakeStream) sentFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

type fakeProvider struct {
	stream     *fakeStream
	connectErr error
}

func (p *fakeProvider) Connect(ctx context.Context, cfg transcribe.StreamConfig) (transcribe.Stream, error) {
	if p.connectErr != nil {
		return nil, p.connectErr
	}
	return p.stream, nil
}

func (p *fakeProvider) Name() string { return "fake" }

// flakyStore fails AppendAudioChunk a configured number of times.
type flakyStore struct {
	*store.MemoryStore
	mu       sync.Mutex
	failures int
	attempts int
}

func (s *flakyStore) AppendAudioChunk(ctx context.Context, id string, chunk domain.AudioChunk) error {
	s.mu.Lock()
	s.attempts++
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()
	if fail {
		return errors.New("store temporarily unavailable")
	}
	return s.MemoryStore.AppendAudioChunk(ctx, id, chunk)
}

func (s *flakyStore) attemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// blockingStore hangs AppendAudioChunk until the caller's context is done.
type blockingStore struct {
	*store.MemoryStore
}

func (s *blockingStore) AppendAudioChunk(ctx context.Context, id string, chunk domain.AudioChunk) error {
	<-ctx.Done()
	return ctx.Err()
}

type fakeAnalyzer struct {
	mu      sync.Mutex
	calls   int
	failErr error
}

func (a *fakeAnalyzer) AnalyzeDeposition(ctx context.Context, witnessName string, date time.Time, transcript string, documents []ai.DocumentInput) (*ai.DepositionAnalysisResult, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	if a.failErr != nil {
		return nil, a.failErr
	}
	return &ai.DepositionAnalysisResult{
		SuggestedQuestions: []string{"What time did you arrive?"},
	}, nil
}

func (a *fakeAnalyzer) AnalyzeDocuments(ctx context.Context, documents []ai.DocumentInput, goals string) (*ai.DocumentAnalysisResult, error) {
	return &ai.DocumentAnalysisResult{}, nil
}

func (a *fakeAnalyzer) FormatTranscript(ctx context.Context, dep *domain.AudioDeposition) ([]domain.SpeakerTurn, error) {
	return nil, nil
}

func (a *fakeAnalyzer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func startTestSession(t *testing.T, st store.Store, stream *fakeStream, analyzer ai.Analyzer) (*Manager, *Session, *fakeSender) {
	t.Helper()
	m := NewManager(testConfig(), st, &fakeProvider{stream: stream}, analyzer, NewRegistry())
	sender := &fakeSender{}
	s, err := m.Start(context.Background(), sender, StartRecording{
		CaseID:      "case-1",
		WitnessName: "Dr. Reed",
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}
	return m, s, sender
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestStartCreatesOneRecordingSession(t *testing.T) {
	st := store.NewMemoryStore()
	m, s, _ := startTestSession(t, st, newFakeStream(), nil)

	deps, err := st.ListAudioDepositions(context.Background(), "case-1")
	if err != nil {
		t.Fatalf("Failed to list audio depositions: %v", err)
	}
	if len(deps) != 1 {
		t.Fatalf("Expected exactly 1 audio deposition, got %d", len(deps))
	}
	if deps[0].Status != domain.StatusRecording {
		t.Errorf("Expected status %q, got %q", domain.StatusRecording, deps[0].Status)
	}
	if deps[0].ProviderSessionID != "fake-provider-session" {
		t.Errorf("Expected provider session id to be persisted, got %q", deps[0].ProviderSessionID)
	}
	if m.Registry().Len() != 1 {
		t.Errorf("Expected 1 registered session, got %d", m.Registry().Len())
	}
	if m.Registry().Get(s.DepositionID()) != s {
		t.Error("Expected registry to hold the started session")
	}

	s.Stop(context.Background())
}

func TestStartFailsWhenRecordCreateFails(t *testing.T) {
	st := store.NewMemoryStore()
	m := NewManager(testConfig(), failingCreateStore{st}, &fakeProvider{stream: newFakeStream()}, nil, NewRegistry())

	_, err := m.Start(context.Background(), &fakeSender{}, StartRecording{
		CaseID:      "case-1",
		WitnessName: "Dr. Reed",
	}, zerolog.Nop())
	if err == nil {
		t.Fatal("Expected error when record creation fails")
	}
	if m.Registry().Len() != 0 {
		t.Errorf("Expected no registered session, got %d", m.Registry().Len())
	}
}

type failingCreateStore struct {
	store.Store
}

func (s failingCreateStore) CreateAudioDeposition(ctx context.Context, d domain.AudioDeposition) (*domain.AudioDeposition, error) {
	return nil, errors.New("store unavailable")
}

func TestStartFailsWhenProviderConnectFails(t *testing.T) {
	st := store.NewMemoryStore()
	m := NewManager(testConfig(), st, &fakeProvider{connectErr: errors.New("dial refused")}, nil, NewRegistry())

	_, err := m.Start(context.Background(), &fakeSender{}, StartRecording{
		CaseID:      "case-1",
		WitnessName: "Dr. Reed",
	}, zerolog.Nop())
	if err == nil {
		t.Fatal("Expected error when provider connect fails")
	}

	deps, _ := st.ListAudioDepositions(context.Background(), "case-1")
	if len(deps) != 1 {
		t.Fatalf("Expected the record to exist, got %d", len(deps))
	}
	if deps[0].Status != domain.StatusError {
		t.Errorf("Expected status %q, got %q", domain.StatusError, deps[0].Status)
	}
	if deps[0].ErrorMessage == "" {
		t.Error("Expected an error message on the record")
	}
	if m.Registry().Len() != 0 {
		t.Errorf("Expected no registered session, got %d", m.Registry().Len())
	}
}

func TestChunksAppendInOrderAndForward(t *testing.T) {
	st := store.NewMemoryStore()
	stream := newFakeStream()
	m, s, _ := startTestSession(t, st, stream, nil)

	frames := make([][]byte, 3)
	for i := range frames {
		frame := make([]byte, 8000)
		frame[0] = byte(i + 1)
		frames[i] = frame
		s.HandleChunk(frame)
	}

	s.Stop(context.Background())

	dep, err := st.GetAudioDeposition(context.Background(), s.DepositionID())
	if err != nil {
		t.Fatalf("Failed to get audio deposition: %v", err)
	}
	if dep.Status != domain.StatusCompleted {
		t.Errorf("Expected status %q, got %q", domain.StatusCompleted, dep.Status)
	}
	if len(dep.AudioChunks) != 3 {
		t.Fatalf("Expected 3 durable chunks, got %d", len(dep.AudioChunks))
	}
	for i, chunk := range dep.AudioChunks {
		if len(chunk.Data) != 8000 {
			t.Errorf("Expected chunk %d to be 8000 bytes, got %d", i, len(chunk.Data))
		}
		if chunk.Data[0] != byte(i+1) {
			t.Errorf("Expected chunks in arrival order, got marker %d at %d", chunk.Data[0], i)
		}
		if chunk.Timestamp.IsZero() {
			t.Errorf("Expected chunk %d to carry a capture timestamp", i)
		}
	}

	sent := stream.sentFrames()
	if len(sent) != 3 {
		t.Fatalf("Expected 3 frames forwarded to the provider, got %d", len(sent))
	}
	for i, frame := range sent {
		if frame[0] != byte(i+1) {
			t.Errorf("Expected provider frames in order, got marker %d at %d", frame[0], i)
		}
	}

	if m.Registry().Len() != 0 {
		t.Errorf("Expected registry to be empty after stop, got %d", m.Registry().Len())
	}
}

func TestStopIsIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	_, s, sender := startTestSession(t, st, newFakeStream(), nil)

	s.Stop(context.Background())
	s.Stop(context.Background())
	s.Stop(context.Background())

	dep, err := st.GetAudioDeposition(context.Background(), s.DepositionID())
	if err != nil {
		t.Fatalf("Failed to get audio deposition: %v", err)
	}
	if dep.Status != domain.StatusCompleted {
		t.Errorf("Expected status %q, got %q", domain.StatusCompleted, dep.Status)
	}
	if len(sender.errorMessages()) != 0 {
		t.Errorf("Expected no error events for repeated stop, got %v", sender.errorMessages())
	}
}

func TestChunksAfterStopAreDropped(t *testing.T) {
	st := store.NewMemoryStore()
	stream := newFakeStream()
	_, s, sender := startTestSession(t, st, stream, nil)

	s.HandleChunk(make([]byte, 8000))
	s.Stop(context.Background())
	s.HandleChunk(make([]byte, 8000))
	s.HandleChunk(make([]byte, 8000))

	dep, err := st.GetAudioDeposition(context.Background(), s.DepositionID())
	if err != nil {
		t.Fatalf("Failed to get audio deposition: %v", err)
	}
	if len(dep.AudioChunks) != 1 {
		t.Errorf("Expected 1 durable chunk, got %d", len(dep.AudioChunks))
	}
	if len(stream.sentFrames()) != 1 {
		t.Errorf("Expected 1 forwarded frame, got %d", len(stream.sentFrames()))
	}
	if len(sender.errorMessages()) != 0 {
		t.Errorf("Expected dropped chunks to be silent, got %v", sender.errorMessages())
	}
}

func TestFinalSegmentsAccumulateInOrder(t *testing.T) {
	st := store.NewMemoryStore()
	stream := newFakeStream()
	_, s, sender := startTestSession(t, st, stream, nil)

	stream.emit(transcribe.Event{Kind: transcribe.KindPartial, Text: "hel"})
	stream.emit(transcribe.Event{Kind: transcribe.KindFinal, Text: "hello"})
	stream.emit(transcribe.Event{Kind: transcribe.KindPartial, Text: "wor"})
	stream.emit(transcribe.Event{Kind: transcribe.KindFinal, Text: "world"})

	s.Stop(context.Background())

	dep, err := st.GetAudioDeposition(context.Background(), s.DepositionID())
	if err != nil {
		t.Fatalf("Failed to get audio deposition: %v", err)
	}
	if dep.Transcript != "hello world" {
		t.Errorf("Expected transcript 'hello world', got %q", dep.Transcript)
	}

	var partials, finals []string
	for _, m := range sender.messages() {
		if tm, ok := m.(transcriptMessage); ok {
			switch tm.Type {
			case typePartialTranscript:
				partials = append(partials, tm.Transcript)
			case typeFinalTranscript:
				finals = append(finals, tm.Transcript)
			}
		}
	}
	if len(partials) != 2 {
		t.Errorf("Expected 2 partial events relayed, got %d", len(partials))
	}
	if len(finals) != 2 || finals[0] != "hello" || finals[1] != "world" {
		t.Errorf("Expected final events in order, got %v", finals)
	}
}

func TestProviderFatalErrorsSession(t *testing.T) {
	st := store.NewMemoryStore()
	stream := newFakeStream()
	m, s, sender := startTestSession(t, st, stream, nil)

	stream.emit(transcribe.Event{Err: errors.New("provider connection lost")})

	waitFor(t, 2*time.Second, s.Terminal, "Session never reached a terminal state")
	waitFor(t, 2*time.Second, func() bool { return m.Registry().Len() == 0 },
		"Session was never removed from the registry")

	dep, err := st.GetAudioDeposition(context.Background(), s.DepositionID())
	if err != nil {
		t.Fatalf("Failed to get audio deposition: %v", err)
	}
	if dep.Status != domain.StatusError {
		t.Errorf("Expected status %q, got %q", domain.StatusError, dep.Status)
	}
	if dep.ErrorMessage != "provider connection lost" {
		t.Errorf("Expected provider message on the record, got %q", dep.ErrorMessage)
	}

	errs := sender.errorMessages()
	if len(errs) != 1 || errs[0].Message != "provider connection lost" {
		t.Errorf("Expected one error event with the provider message, got %v", errs)
	}

	// A later stop is a no-op
	s.Stop(context.Background())
	dep, _ = st.GetAudioDeposition(context.Background(), s.DepositionID())
	if dep.Status != domain.StatusError {
		t.Errorf("Expected status to stay %q, got %q", domain.StatusError, dep.Status)
	}
}

func TestChunkAppendRetriesOnceThenSucceeds(t *testing.T) {
	st := &flakyStore{MemoryStore: store.NewMemoryStore(), failures: 1}
	_, s, sender := startTestSession(t, st, newFakeStream(), nil)

	s.HandleChunk(make([]byte, 8000))
	s.Stop(context.Background())

	if st.attemptCount() != 2 {
		t.Errorf("Expected 2 append attempts, got %d", st.attemptCount())
	}

	dep, err := st.GetAudioDeposition(context.Background(), s.DepositionID())
	if err != nil {
		t.Fatalf("Failed to get audio deposition: %v", err)
	}
	if len(dep.AudioChunks) != 1 {
		t.Errorf("Expected the chunk to be persisted on retry, got %d chunks", len(dep.AudioChunks))
	}
	if len(sender.errorMessages()) != 0 {
		t.Errorf("Expected no error event when the retry succeeds, got %v", sender.errorMessages())
	}
}

func TestChunkAppendFailureIsNonFatal(t *testing.T) {
	st := &flakyStore{MemoryStore: store.NewMemoryStore(), failures: 2}
	_, s, sender := startTestSession(t, st, newFakeStream(), nil)

	s.HandleChunk(make([]byte, 8000))
	s.Stop(context.Background())

	if st.attemptCount() != 2 {
		t.Errorf("Expected exactly one retry (2 attempts), got %d", st.attemptCount())
	}
	if len(sender.errorMessages()) != 1 {
		t.Fatalf("Expected one non-fatal error event, got %d", len(sender.errorMessages()))
	}

	dep, err := st.GetAudioDeposition(context.Background(), s.DepositionID())
	if err != nil {
		t.Fatalf("Failed to get audio deposition: %v", err)
	}
	if dep.Status != domain.StatusCompleted {
		t.Errorf("Expected a dropped chunk to leave the session completable, got status %q", dep.Status)
	}
	if len(dep.AudioChunks) != 0 {
		t.Errorf("Expected the failed chunk to be dropped, got %d chunks", len(dep.AudioChunks))
	}
}

func TestStopReturnsWhenStoreHangs(t *testing.T) {
	cfg := testConfig()
	cfg.ProviderCloseTimeout = 50 * time.Millisecond

	st := &blockingStore{MemoryStore: store.NewMemoryStore()}
	m := NewManager(cfg, st, &fakeProvider{stream: newFakeStream()}, nil, NewRegistry())
	sender := &fakeSender{}
	s, err := m.Start(context.Background(), sender, StartRecording{
		CaseID:      "case-1",
		WitnessName: "Dr. Reed",
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to start session: %v", err)
	}

	s.HandleChunk(make([]byte, 8000))

	done := make(chan struct{})
	go func() {
		s.Stop(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return while the store was hung")
	}

	if !s.Terminal() {
		t.Error("Expected session to be terminal after stop")
	}
	if m.Registry().Len() != 0 {
		t.Errorf("Expected empty registry after stop, got %d sessions", m.Registry().Len())
	}
}

func TestFinalTriggersAnalysis(t *testing.T) {
	st := store.NewMemoryStore()
	stream := newFakeStream()
	analyzer := &fakeAnalyzer{}
	_, s, sender := startTestSession(t, st, stream, analyzer)

	stream.emit(transcribe.Event{Kind: transcribe.KindFinal, Text: "I arrived at nine."})

	waitFor(t, 2*time.Second, func() bool {
		for _, m := range sender.messages() {
			if _, ok := m.(analysisMessage); ok {
				return true
			}
		}
		return false
	}, "Analysis result was never relayed")

	s.Stop(context.Background())

	if analyzer.callCount() == 0 {
		t.Error("Expected the analyzer to be invoked")
	}
}

func TestAnalysisFailureIsSwallowed(t *testing.T) {
	st := store.NewMemoryStore()
	stream := newFakeStream()
	analyzer := &fakeAnalyzer{failErr: errors.New("rate limited")}
	_, s, sender := startTestSession(t, st, stream, analyzer)

	stream.emit(transcribe.Event{Kind: transcribe.KindFinal, Text: "hello"})
	s.Stop(context.Background())

	waitFor(t, 2*time.Second, func() bool { return analyzer.callCount() > 0 },
		"Analyzer was never invoked")

	dep, err := st.GetAudioDeposition(context.Background(), s.DepositionID())
	if err != nil {
		t.Fatalf("Failed to get audio deposition: %v", err)
	}
	if dep.Status != domain.StatusCompleted {
		t.Errorf("Expected analysis failure to stay non-fatal, got status %q", dep.Status)
	}
	if dep.Transcript != "hello" {
		t.Errorf("Expected transcript %q, got %q", "hello", dep.Transcript)
	}
	for _, em := range sender.errorMessages() {
		if em.Message == "rate limited" {
			t.Error("Expected analysis failure to be swallowed, got an error event")
		}
	}
}

func TestAccumulatorAppendFinal(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	c, err := st.CreateCase(ctx, domain.Case{Title: "t", UserID: "u"})
	if err != nil {
		t.Fatalf("Failed to create case: %v", err)
	}
	dep, err := st.CreateAudioDeposition(ctx, domain.AudioDeposition{
		CaseID: c.ID, WitnessName: "w", Status: domain.StatusRecording,
	})
	if err != nil {
		t.Fatalf("Failed to create audio deposition: %v", err)
	}

	acc := NewAccumulator(st, nil)
	if acc.AnalysisEnabled() {
		t.Error("Expected analysis to be disabled without an analyzer")
	}

	first, err := acc.AppendFinal(ctx, dep.ID, "hello")
	if err != nil {
		t.Fatalf("Failed to append first segment: %v", err)
	}
	if first != "hello" {
		t.Errorf("Expected 'hello', got %q", first)
	}

	second, err := acc.AppendFinal(ctx, dep.ID, "world")
	if err != nil {
		t.Fatalf("Failed to append second segment: %v", err)
	}
	if second != "hello world" {
		t.Errorf("Expected 'hello world', got %q", second)
	}

	if _, err := acc.AppendFinal(ctx, "missing", "x"); err == nil {
		t.Error("Expected error appending to a missing deposition")
	}
}
