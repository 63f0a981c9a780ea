package domain

import "time"

// RecordingStatus is the lifecycle status of an audio deposition.
type RecordingStatus string

const (
	StatusRecording RecordingStatus = "recording"
	StatusCompleted RecordingStatus = "completed"
	StatusError     RecordingStatus = "error"
)

// Case is the root entity. Documents, depositions and chats all belong to a case.
type Case struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	UserID      string    `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Document is an uploaded discovery document. Content is omitted from list
// and detail responses and only populated for downloads.
type Document struct {
	ID        string    `json:"id"`
	CaseID    string    `json:"case_id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"` // pdf, doc, docx, txt
	Content   []byte    `json:"content,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Deposition is a manually recorded (pasted) deposition transcript.
type Deposition struct {
	ID          string    `json:"id"`
	CaseID      string    `json:"case_id"`
	WitnessName string    `json:"witness_name"`
	Date        time.Time `json:"date"`
	Transcript  string    `json:"transcript,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DocumentReference points a discrepancy back at a discovery document.
type DocumentReference struct {
	DocumentID string `json:"document_id"`
	Excerpt    string `json:"excerpt"`
}

// Discrepancy is one testimony/document conflict found by the analyzer.
type Discrepancy struct {
	TestimonyExcerpt  string            `json:"testimony_excerpt"`
	DocumentReference DocumentReference `json:"document_reference"`
	Explanation       string            `json:"explanation"`
}

// DepositionAnalysis is the model output for one deposition.
type DepositionAnalysis struct {
	ID                 string        `json:"id"`
	DepositionID       string        `json:"deposition_id"`
	Discrepancies      []Discrepancy `json:"discrepancies"`
	SuggestedQuestions []string      `json:"suggested_questions"`
	CreatedAt          time.Time     `json:"created_at"`
}

// KeyEvidence is one piece of evidence surfaced by document analysis.
type KeyEvidence struct {
	Document     string `json:"document"`
	Excerpt      string `json:"excerpt"`
	Relevance    string `json:"relevance"`
	SupportsGoal bool   `json:"supports_goals"`
}

// SuggestedInquiry is a line of deposition questioning suggested by the model.
type SuggestedInquiry struct {
	Topic             string   `json:"topic"`
	Rationale         string   `json:"rationale"`
	SpecificQuestions []string `json:"specific_questions"`
}

// PotentialWeakness flags a weak point in the case theory.
type PotentialWeakness struct {
	Issue              string `json:"issue"`
	Explanation        string `json:"explanation"`
	MitigationStrategy string `json:"mitigation_strategy"`
}

// DocumentAnalysis is the model output for a set of documents against goals.
type DocumentAnalysis struct {
	ID                  string              `json:"id"`
	CaseID              string              `json:"case_id"`
	DocumentID          string              `json:"document_id,omitempty"`
	Goals               string              `json:"goals"`
	KeyEvidence         []KeyEvidence       `json:"key_evidence"`
	SuggestedInquiries  []SuggestedInquiry  `json:"suggested_inquiries"`
	PotentialWeaknesses []PotentialWeakness `json:"potential_weaknesses"`
	CreatedAt           time.Time           `json:"created_at"`
}

// ChatMessage is one turn in a case chat.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // user or assistant
	Content   string    `json:"content"`
	FileIDs   []string  `json:"file_ids,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Chat is a conversation thread scoped to a case.
type Chat struct {
	ID        string        `json:"id"`
	CaseID    string        `json:"case_id"`
	Title     string        `json:"title"`
	Messages  []ChatMessage `json:"messages"`
	FileIDs   []string      `json:"file_ids,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// AudioChunk is one captured audio frame with its server-assigned timestamp.
type AudioChunk struct {
	Data      []byte    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// AudioDeposition identifies one live recording session. The transcript is
// append-only while the session is active and read-only history afterwards.
type AudioDeposition struct {
	ID                  string          `json:"id"`
	CaseID              string          `json:"case_id"`
	WitnessName         string          `json:"witness_name"`
	DepositionConductor string          `json:"deposition_conductor,omitempty"`
	OpposingCounsel     string          `json:"opposing_counsel,omitempty"`
	DepositionGoals     string          `json:"deposition_goals,omitempty"`
	Date                time.Time       `json:"date"`
	AudioChunks         []AudioChunk    `json:"audio_chunks,omitempty"`
	Transcript          string          `json:"transcript"`
	Status              RecordingStatus `json:"status"`
	ErrorMessage        string          `json:"error_message,omitempty"`
	ProviderSessionID   string          `json:"provider_session_id,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

// AudioDepositionUpdate is a partial update applied to an audio deposition.
// Nil fields are left unchanged.
type AudioDepositionUpdate struct {
	Status            *RecordingStatus
	ErrorMessage      *string
	ProviderSessionID *string
}

// SpeakerTurn is one attributed utterance in a formatted transcript.
type SpeakerTurn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}
