package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/casefileai/case-gateway/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore is the pgx-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database and applies the schema.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// Cases

func (s *PostgresStore) ListCases(ctx context.Context, userID string) ([]domain.Case, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, description, user_id, created_at FROM cases WHERE user_id = $1 ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	defer rows.Close()

	out := []domain.Case{}
	for rows.Next() {
		var c domain.Case
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.UserID, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetCase(ctx context.Context, id string) (*domain.Case, error) {
	var c domain.Case
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, description, user_id, created_at FROM cases WHERE id = $1`,
		id).Scan(&c.ID, &c.Title, &c.Description, &c.UserID, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *PostgresStore) CreateCase(ctx context.Context, c domain.Case) (*domain.Case, error) {
	c.ID = newID()
	c.CreatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cases (id, title, description, user_id, created_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.Title, c.Description, c.UserID, c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create case: %w", err)
	}
	return &c, nil
}

// Documents

func (s *PostgresStore) ListDocuments(ctx context.Context, caseID string) ([]domain.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, case_id, name, type, created_at FROM documents WHERE case_id = $1 ORDER BY created_at DESC`,
		caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	out := []domain.Document{}
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.CaseID, &d.Name, &d.Type, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	var d domain.Document
	err := s.pool.QueryRow(ctx,
		`SELECT id, case_id, name, type, created_at FROM documents WHERE id = $1`,
		id).Scan(&d.ID, &d.CaseID, &d.Name, &d.Type, &d.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

func (s *PostgresStore) GetDocumentWithContent(ctx context.Context, id string) (*domain.Document, error) {
	var d domain.Document
	err := s.pool.QueryRow(ctx,
		`SELECT id, case_id, name, type, content, created_at FROM documents WHERE id = $1`,
		id).Scan(&d.ID, &d.CaseID, &d.Name, &d.Type, &d.Content, &d.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, d domain.Document) (*domain.Document, error) {
	d.ID = newID()
	d.CreatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, case_id, name, type, content, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.CaseID, d.Name, d.Type, d.Content, d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	d.Content = nil
	return &d, nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Depositions

func (s *PostgresStore) ListDepositions(ctx context.Context, caseID string) ([]domain.Deposition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, case_id, witness_name, date, transcript, created_at FROM depositions WHERE case_id = $1 ORDER BY date DESC`,
		caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list depositions: %w", err)
	}
	defer rows.Close()

	out := []domain.Deposition{}
	for rows.Next() {
		var d domain.Deposition
		if err := rows.Scan(&d.ID, &d.CaseID, &d.WitnessName, &d.Date, &d.Transcript, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetDeposition(ctx context.Context, id string) (*domain.Deposition, error) {
	var d domain.Deposition
	err := s.pool.QueryRow(ctx,
		`SELECT id, case_id, witness_name, date, transcript, created_at FROM depositions WHERE id = $1`,
		id).Scan(&d.ID, &d.CaseID, &d.WitnessName, &d.Date, &d.Transcript, &d.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

func (s *PostgresStore) CreateDeposition(ctx context.Context, d domain.Deposition) (*domain.Deposition, error) {
	d.ID = newID()
	d.CreatedAt = time.Now().UTC()
	if d.Date.IsZero() {
		d.Date = d.CreatedAt
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO depositions (id, case_id, witness_name, date, transcript, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.CaseID, d.WitnessName, d.Date, d.Transcript, d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create deposition: %w", err)
	}
	return &d, nil
}

func (s *PostgresStore) UpdateDeposition(ctx context.Context, d domain.Deposition) (*domain.Deposition, error) {
	err := s.pool.QueryRow(ctx,
		`UPDATE depositions SET witness_name = $2, date = $3, transcript = $4 WHERE id = $1 RETURNING case_id, created_at`,
		d.ID, d.WitnessName, d.Date, d.Transcript).Scan(&d.CaseID, &d.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

func (s *PostgresStore) DeleteDeposition(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM depositions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete deposition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Deposition analyses

func (s *PostgresStore) GetDepositionAnalysis(ctx context.Context, depositionID string) (*domain.DepositionAnalysis, error) {
	var a domain.DepositionAnalysis
	err := s.pool.QueryRow(ctx,
		`SELECT id, deposition_id, discrepancies, suggested_questions, created_at FROM deposition_analyses WHERE deposition_id = $1`,
		depositionID).Scan(&a.ID, &a.DepositionID, &a.Discrepancies, &a.SuggestedQuestions, &a.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (s *PostgresStore) CreateDepositionAnalysis(ctx context.Context, a domain.DepositionAnalysis) (*domain.DepositionAnalysis, error) {
	a.ID = newID()
	a.CreatedAt = time.Now().UTC()
	if a.Discrepancies == nil {
		a.Discrepancies = []domain.Discrepancy{}
	}
	if a.SuggestedQuestions == nil {
		a.SuggestedQuestions = []string{}
	}
	// One analysis per deposition; a rerun replaces the previous result
	_, err := s.pool.Exec(ctx,
		`INSERT INTO deposition_analyses (id, deposition_id, discrepancies, suggested_questions, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (deposition_id) DO UPDATE
		 SET discrepancies = EXCLUDED.discrepancies,
		     suggested_questions = EXCLUDED.suggested_questions,
		     created_at = EXCLUDED.created_at`,
		a.ID, a.DepositionID, a.Discrepancies, a.SuggestedQuestions, a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create deposition analysis: %w", err)
	}
	return &a, nil
}

// Document analyses

func (s *PostgresStore) GetDocumentAnalysis(ctx context.Context, documentID string) (*domain.DocumentAnalysis, error) {
	var a domain.DocumentAnalysis
	err := s.pool.QueryRow(ctx,
		`SELECT id, case_id, COALESCE(document_id::text, ''), goals, key_evidence, suggested_inquiries, potential_weaknesses, created_at
		 FROM document_analyses WHERE document_id = $1`,
		documentID).Scan(&a.ID, &a.CaseID, &a.DocumentID, &a.Goals, &a.KeyEvidence, &a.SuggestedInquiries, &a.PotentialWeaknesses, &a.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (s *PostgresStore) ListDocumentAnalyses(ctx context.Context, caseID string) ([]domain.DocumentAnalysis, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, case_id, COALESCE(document_id::text, ''), goals, key_evidence, suggested_inquiries, potential_weaknesses, created_at
		 FROM document_analyses WHERE case_id = $1 ORDER BY created_at DESC`,
		caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list document analyses: %w", err)
	}
	defer rows.Close()

	out := []domain.DocumentAnalysis{}
	for rows.Next() {
		var a domain.DocumentAnalysis
		if err := rows.Scan(&a.ID, &a.CaseID, &a.DocumentID, &a.Goals, &a.KeyEvidence, &a.SuggestedInquiries, &a.PotentialWeaknesses, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateDocumentAnalysis(ctx context.Context, a domain.DocumentAnalysis) (*domain.DocumentAnalysis, error) {
	a.ID = newID()
	a.CreatedAt = time.Now().UTC()
	var documentID interface{}
	if a.DocumentID != "" {
		documentID = a.DocumentID
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO document_analyses (id, case_id, document_id, goals, key_evidence, suggested_inquiries, potential_weaknesses, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.CaseID, documentID, a.Goals, a.KeyEvidence, a.SuggestedInquiries, a.PotentialWeaknesses, a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create document analysis: %w", err)
	}
	return &a, nil
}

// Audio depositions

func (s *PostgresStore) CreateAudioDeposition(ctx context.Context, d domain.AudioDeposition) (*domain.AudioDeposition, error) {
	d.ID = newID()
	d.CreatedAt = time.Now().UTC()
	if d.Date.IsZero() {
		d.Date = d.CreatedAt
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audio_depositions (id, case_id, witness_name, deposition_conductor, opposing_counsel, deposition_goals, date, transcript, status, error_message, provider_session_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		d.ID, d.CaseID, d.WitnessName, d.DepositionConductor, d.OpposingCounsel, d.DepositionGoals,
		d.Date, d.Transcript, string(d.Status), d.ErrorMessage, d.ProviderSessionID, d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio deposition: %w", err)
	}
	return &d, nil
}

func (s *PostgresStore) GetAudioDeposition(ctx context.Context, id string) (*domain.AudioDeposition, error) {
	var d domain.AudioDeposition
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT id, case_id, witness_name, deposition_conductor, opposing_counsel, deposition_goals, date, transcript, status, error_message, provider_session_id, created_at
		 FROM audio_depositions WHERE id = $1`,
		id).Scan(&d.ID, &d.CaseID, &d.WitnessName, &d.DepositionConductor, &d.OpposingCounsel, &d.DepositionGoals,
		&d.Date, &d.Transcript, &status, &d.ErrorMessage, &d.ProviderSessionID, &d.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	d.Status = domain.RecordingStatus(status)

	rows, err := s.pool.Query(ctx,
		`SELECT data, captured_at FROM audio_chunks WHERE deposition_id = $1 ORDER BY seq`,
		id)
	if err != nil {
		return nil, fmt.Errorf("failed to load audio chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var chunk domain.AudioChunk
		if err := rows.Scan(&chunk.Data, &chunk.Timestamp); err != nil {
			return nil, err
		}
		d.AudioChunks = append(d.AudioChunks, chunk)
	}
	return &d, rows.Err()
}

func (s *PostgresStore) ListAudioDepositions(ctx context.Context, caseID string) ([]domain.AudioDeposition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, case_id, witness_name, deposition_conductor, opposing_counsel, deposition_goals, date, transcript, status, error_message, provider_session_id, created_at
		 FROM audio_depositions WHERE case_id = $1 ORDER BY date DESC`,
		caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audio depositions: %w", err)
	}
	defer rows.Close()

	out := []domain.AudioDeposition{}
	for rows.Next() {
		var d domain.AudioDeposition
		var status string
		if err := rows.Scan(&d.ID, &d.CaseID, &d.WitnessName, &d.DepositionConductor, &d.OpposingCounsel, &d.DepositionGoals,
			&d.Date, &d.Transcript, &status, &d.ErrorMessage, &d.ProviderSessionID, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.Status = domain.RecordingStatus(status)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AppendAudioChunk(ctx context.Context, id string, chunk domain.AudioChunk) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO audio_chunks (deposition_id, data, captured_at)
		 SELECT $1, $2, $3 WHERE EXISTS (SELECT 1 FROM audio_depositions WHERE id = $1)`,
		id, chunk.Data, chunk.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append audio chunk: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AppendTranscript(ctx context.Context, id string, segment string) (string, error) {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		var transcript string
		err := s.pool.QueryRow(ctx, `SELECT transcript FROM audio_depositions WHERE id = $1`, id).Scan(&transcript)
		if err != nil {
			return "", notFound(err)
		}
		return transcript, nil
	}

	var transcript string
	err := s.pool.QueryRow(ctx,
		`UPDATE audio_depositions
		 SET transcript = CASE WHEN transcript = '' THEN $2 ELSE transcript || ' ' || $2 END
		 WHERE id = $1
		 RETURNING transcript`,
		id, segment).Scan(&transcript)
	if err != nil {
		return "", notFound(err)
	}
	return transcript, nil
}

func (s *PostgresStore) UpdateAudioDeposition(ctx context.Context, id string, update domain.AudioDepositionUpdate) error {
	sets := []string{}
	args := []interface{}{id}

	if update.Status != nil {
		args = append(args, string(*update.Status))
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if update.ErrorMessage != nil {
		args = append(args, *update.ErrorMessage)
		sets = append(sets, fmt.Sprintf("error_message = $%d", len(args)))
	}
	if update.ProviderSessionID != nil {
		args = append(args, *update.ProviderSessionID)
		sets = append(sets, fmt.Sprintf("provider_session_id = $%d", len(args)))
	}
	if len(sets) == 0 {
		return nil
	}

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE audio_depositions SET %s WHERE id = $1`, strings.Join(sets, ", ")),
		args...)
	if err != nil {
		return fmt.Errorf("failed to update audio deposition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Chats

func (s *PostgresStore) ListChats(ctx context.Context, caseID string) ([]domain.Chat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, case_id, title, messages, file_ids, created_at FROM chats WHERE case_id = $1 ORDER BY created_at DESC`,
		caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	out := []domain.Chat{}
	for rows.Next() {
		var c domain.Chat
		if err := rows.Scan(&c.ID, &c.CaseID, &c.Title, &c.Messages, &c.FileIDs, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetChat(ctx context.Context, id string) (*domain.Chat, error) {
	var c domain.Chat
	err := s.pool.QueryRow(ctx,
		`SELECT id, case_id, title, messages, file_ids, created_at FROM chats WHERE id = $1`,
		id).Scan(&c.ID, &c.CaseID, &c.Title, &c.Messages, &c.FileIDs, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *PostgresStore) CreateChat(ctx context.Context, c domain.Chat) (*domain.Chat, error) {
	c.ID = newID()
	c.CreatedAt = time.Now().UTC()
	if c.Messages == nil {
		c.Messages = []domain.ChatMessage{}
	}
	if c.FileIDs == nil {
		c.FileIDs = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chats (id, case_id, title, messages, file_ids, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.CaseID, c.Title, c.Messages, c.FileIDs, c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) AppendChatMessage(ctx context.Context, chatID string, msg domain.ChatMessage) (*domain.Chat, error) {
	msg.ID = newID()
	msg.CreatedAt = time.Now().UTC()

	var c domain.Chat
	err := s.pool.QueryRow(ctx,
		`UPDATE chats SET messages = messages || $2::jsonb WHERE id = $1
		 RETURNING id, case_id, title, messages, file_ids, created_at`,
		chatID, []domain.ChatMessage{msg}).Scan(&c.ID, &c.CaseID, &c.Title, &c.Messages, &c.FileIDs, &c.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
