package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/casefileai/case-gateway/internal/domain"
)

// MemoryStore is an in-memory Store. Used for tests and for running the
// gateway without a database (STORE_DRIVER=memory).
type MemoryStore struct {
	mu sync.RWMutex

	cases              map[string]domain.Case
	documents          map[string]domain.Document
	depositions        map[string]domain.Deposition
	depositionAnalyses map[string]domain.DepositionAnalysis // keyed by deposition id
	documentAnalyses   map[string]domain.DocumentAnalysis
	audioDepositions   map[string]domain.AudioDeposition
	chats              map[string]domain.Chat
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cases:              make(map[string]domain.Case),
		documents:          make(map[string]domain.Document),
		depositions:        make(map[string]domain.Deposition),
		depositionAnalyses: make(map[string]domain.DepositionAnalysis),
		documentAnalyses:   make(map[string]domain.DocumentAnalysis),
		audioDepositions:   make(map[string]domain.AudioDeposition),
		chats:              make(map[string]domain.Chat),
	}
}

func newID() string { return uuid.New().String() }

// Cases

func (s *MemoryStore) ListCases(ctx context.Context, userID string) ([]domain.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.Case{}
	for _, c := range s.cases {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetCase(ctx context.Context, id string) (*domain.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cases[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *MemoryStore) CreateCase(ctx context.Context, c domain.Case) (*domain.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = newID()
	c.CreatedAt = time.Now().UTC()
	s.cases[c.ID] = c
	return &c, nil
}

// Documents

func (s *MemoryStore) ListDocuments(ctx context.Context, caseID string) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.Document{}
	for _, d := range s.documents {
		if d.CaseID == caseID {
			d.Content = nil
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.documents[id]
	if !ok {
		return nil, ErrNotFound
	}
	d.Content = nil
	return &d, nil
}

func (s *MemoryStore) GetDocumentWithContent(ctx context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.documents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (s *MemoryStore) CreateDocument(ctx context.Context, d domain.Document) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d.ID = newID()
	d.CreatedAt = time.Now().UTC()
	s.documents[d.ID] = d

	created := d
	created.Content = nil
	return &created, nil
}

func (s *MemoryStore) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[id]; !ok {
		return ErrNotFound
	}
	delete(s.documents, id)
	return nil
}

// Depositions

func (s *MemoryStore) ListDepositions(ctx context.Context, caseID string) ([]domain.Deposition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.Deposition{}
	for _, d := range s.depositions {
		if d.CaseID == caseID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetDeposition(ctx context.Context, id string) (*domain.Deposition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.depositions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (s *MemoryStore) CreateDeposition(ctx context.Context, d domain.Deposition) (*domain.Deposition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d.ID = newID()
	d.CreatedAt = time.Now().UTC()
	s.depositions[d.ID] = d
	return &d, nil
}

func (s *MemoryStore) UpdateDeposition(ctx context.Context, d domain.Deposition) (*domain.Deposition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.depositions[d.ID]
	if !ok {
		return nil, ErrNotFound
	}
	d.CreatedAt = existing.CreatedAt
	s.depositions[d.ID] = d
	return &d, nil
}

func (s *MemoryStore) DeleteDeposition(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.depositions[id]; !ok {
		return ErrNotFound
	}
	delete(s.depositions, id)
	return nil
}

// Deposition analyses

func (s *MemoryStore) GetDepositionAnalysis(ctx context.Context, depositionID string) (*domain.DepositionAnalysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.depositionAnalyses[depositionID]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (s *MemoryStore) CreateDepositionAnalysis(ctx context.Context, a domain.DepositionAnalysis) (*domain.DepositionAnalysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a.ID = newID()
	a.CreatedAt = time.Now().UTC()
	s.depositionAnalyses[a.DepositionID] = a
	return &a, nil
}

// Document analyses

func (s *MemoryStore) GetDocumentAnalysis(ctx context.Context, documentID string) (*domain.DocumentAnalysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.documentAnalyses {
		if a.DocumentID == documentID {
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListDocumentAnalyses(ctx context.Context, caseID string) ([]domain.DocumentAnalysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.DocumentAnalysis{}
	for _, a := range s.documentAnalyses {
		if a.CaseID == caseID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateDocumentAnalysis(ctx context.Context, a domain.DocumentAnalysis) (*domain.DocumentAnalysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a.ID = newID()
	a.CreatedAt = time.Now().UTC()
	s.documentAnalyses[a.ID] = a
	return &a, nil
}

// Audio depositions

func (s *MemoryStore) CreateAudioDeposition(ctx context.Context, d domain.AudioDeposition) (*domain.AudioDeposition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d.ID = newID()
	d.CreatedAt = time.Now().UTC()
	if d.Date.IsZero() {
		d.Date = d.CreatedAt
	}
	s.audioDepositions[d.ID] = d
	return &d, nil
}

func (s *MemoryStore) GetAudioDeposition(ctx context.Context, id string) (*domain.AudioDeposition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.audioDepositions[id]
	if !ok {
		return nil, ErrNotFound
	}
	d.AudioChunks = append([]domain.AudioChunk(nil), d.AudioChunks...)
	return &d, nil
}

func (s *MemoryStore) ListAudioDepositions(ctx context.Context, caseID string) ([]domain.AudioDeposition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.AudioDeposition{}
	for _, d := range s.audioDepositions {
		if d.CaseID == caseID {
			d.AudioChunks = nil // chunk payloads are not listed
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *MemoryStore) AppendAudioChunk(ctx context.Context, id string, chunk domain.AudioChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.audioDepositions[id]
	if !ok {
		return ErrNotFound
	}
	d.AudioChunks = append(d.AudioChunks, chunk)
	s.audioDepositions[id] = d
	return nil
}

func (s *MemoryStore) AppendTranscript(ctx context.Context, id string, segment string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.audioDepositions[id]
	if !ok {
		return "", ErrNotFound
	}
	d.Transcript = domain.MergeTranscript(d.Transcript, segment)
	s.audioDepositions[id] = d
	return d.Transcript, nil
}

func (s *MemoryStore) UpdateAudioDeposition(ctx context.Context, id string, update domain.AudioDepositionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.audioDepositions[id]
	if !ok {
		return ErrNotFound
	}
	if update.Status != nil {
		d.Status = *update.Status
	}
	if update.ErrorMessage != nil {
		d.ErrorMessage = *update.ErrorMessage
	}
	if update.ProviderSessionID != nil {
		d.ProviderSessionID = *update.ProviderSessionID
	}
	s.audioDepositions[id] = d
	return nil
}

// Chats

func (s *MemoryStore) ListChats(ctx context.Context, caseID string) ([]domain.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.Chat{}
	for _, c := range s.chats {
		if c.CaseID == caseID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetChat(ctx context.Context, id string) (*domain.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chats[id]
	if !ok {
		return nil, ErrNotFound
	}
	c.Messages = append([]domain.ChatMessage(nil), c.Messages...)
	return &c, nil
}

func (s *MemoryStore) CreateChat(ctx context.Context, c domain.Chat) (*domain.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = newID()
	c.CreatedAt = time.Now().UTC()
	if c.Messages == nil {
		c.Messages = []domain.ChatMessage{}
	}
	s.chats[c.ID] = c
	return &c, nil
}

func (s *MemoryStore) AppendChatMessage(ctx context.Context, chatID string, msg domain.ChatMessage) (*domain.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok {
		return nil, ErrNotFound
	}
	msg.ID = newID()
	msg.CreatedAt = time.Now().UTC()
	c.Messages = append(c.Messages, msg)
	s.chats[chatID] = c
	return &c, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() {}
