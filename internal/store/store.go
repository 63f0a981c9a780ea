package store

import (
	"context"
	"errors"

	"github.com/casefileai/case-gateway/internal/domain"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the durable document store consumed by the REST API, the relay
// and the analysis service. Implementations guarantee identifier uniqueness
// and, for audio depositions, ordered chunk appends and append-only
// transcript accumulation.
type Store interface {
	// Cases
	ListCases(ctx context.Context, userID string) ([]domain.Case, error)
	GetCase(ctx context.Context, id string) (*domain.Case, error)
	CreateCase(ctx context.Context, c domain.Case) (*domain.Case, error)

	// Documents. List and Get omit content; GetDocumentWithContent includes it.
	ListDocuments(ctx context.Context, caseID string) ([]domain.Document, error)
	GetDocument(ctx context.Context, id string) (*domain.Document, error)
	GetDocumentWithContent(ctx context.Context, id string) (*domain.Document, error)
	CreateDocument(ctx context.Context, d domain.Document) (*domain.Document, error)
	DeleteDocument(ctx context.Context, id string) error

	// Depositions
	ListDepositions(ctx context.Context, caseID string) ([]domain.Deposition, error)
	GetDeposition(ctx context.Context, id string) (*domain.Deposition, error)
	CreateDeposition(ctx context.Context, d domain.Deposition) (*domain.Deposition, error)
	UpdateDeposition(ctx context.Context, d domain.Deposition) (*domain.Deposition, error)
	DeleteDeposition(ctx context.Context, id string) error

	// Deposition analyses
	GetDepositionAnalysis(ctx context.Context, depositionID string) (*domain.DepositionAnalysis, error)
	CreateDepositionAnalysis(ctx context.Context, a domain.DepositionAnalysis) (*domain.DepositionAnalysis, error)

	// Document analyses
	GetDocumentAnalysis(ctx context.Context, documentID string) (*domain.DocumentAnalysis, error)
	ListDocumentAnalyses(ctx context.Context, caseID string) ([]domain.DocumentAnalysis, error)
	CreateDocumentAnalysis(ctx context.Context, a domain.DocumentAnalysis) (*domain.DocumentAnalysis, error)

	// Audio depositions
	CreateAudioDeposition(ctx context.Context, d domain.AudioDeposition) (*domain.AudioDeposition, error)
	GetAudioDeposition(ctx context.Context, id string) (*domain.AudioDeposition, error)
	ListAudioDepositions(ctx context.Context, caseID string) ([]domain.AudioDeposition, error)
	// AppendAudioChunk appends one chunk; appends for one deposition preserve
	// call order.
	AppendAudioChunk(ctx context.Context, id string, chunk domain.AudioChunk) error
	// AppendTranscript merges a final segment into the stored transcript per
	// domain.MergeTranscript and returns the updated transcript.
	AppendTranscript(ctx context.Context, id string, segment string) (string, error)
	UpdateAudioDeposition(ctx context.Context, id string, update domain.AudioDepositionUpdate) error

	// Chats
	ListChats(ctx context.Context, caseID string) ([]domain.Chat, error)
	GetChat(ctx context.Context, id string) (*domain.Chat, error)
	CreateChat(ctx context.Context, c domain.Chat) (*domain.Chat, error)
	AppendChatMessage(ctx context.Context, chatID string, msg domain.ChatMessage) (*domain.Chat, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
	Close()
}
