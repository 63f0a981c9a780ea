package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/casefileai/case-gateway/internal/config"
	"github.com/casefileai/case-gateway/internal/domain"
	"github.com/casefileai/case-gateway/internal/observability"
)

// DocumentInput is one discovery document handed to the model as context.
type DocumentInput struct {
	Name    string
	Content string
}

// DepositionAnalysisResult is the parsed model output for a deposition.
type DepositionAnalysisResult struct {
	Discrepancies      []domain.Discrepancy `json:"discrepancies"`
	SuggestedQuestions []string             `json:"suggested_questions"`
}

// DocumentAnalysisResult is the parsed model output for a document set.
type DocumentAnalysisResult struct {
	KeyEvidence         []domain.KeyEvidence       `json:"key_evidence"`
	SuggestedInquiries  []domain.SuggestedInquiry  `json:"suggested_inquiries"`
	PotentialWeaknesses []domain.PotentialWeakness `json:"potential_weaknesses"`
}

// Analyzer runs model-backed analysis over transcripts and documents.
// Implementations must be safe for concurrent use.
type Analyzer interface {
	AnalyzeDeposition(ctx context.Context, witnessName string, date time.Time, transcript string, documents []DocumentInput) (*DepositionAnalysisResult, error)
	AnalyzeDocuments(ctx context.Context, documents []DocumentInput, goals string) (*DocumentAnalysisResult, error)
	FormatTranscript(ctx context.Context, dep *domain.AudioDeposition) ([]domain.SpeakerTurn, error)
}

const depositionSystemPrompt = `You are an expert legal analyst. Analyze the provided deposition transcript and compare it with the discovery documents to:
1. Identify any discrepancies between the testimony and the documents
2. Suggest follow-up questions based on potential inconsistencies or areas that need clarification
Format your response as JSON with the following structure:
{
  "discrepancies": [
    {
      "testimony_excerpt": "...",
      "document_reference": { "document_id": "...", "excerpt": "..." },
      "explanation": "..."
    }
  ],
  "suggested_questions": ["..."]
}

Begin your response with a single { character, and then produce a complete JSON object that can be directly parsed.`

const documentsSystemPrompt = `You are an expert legal analyst. Analyze the provided documents in the context of the specified goals to:
1. Identify key evidence that supports or contradicts the goals
2. Suggest lines of inquiry for depositions
3. Highlight potential weaknesses or areas needing further investigation
Format your response as JSON with the following structure:
{
  "key_evidence": [
    {
      "document": "...",
      "excerpt": "...",
      "relevance": "...",
      "supports_goals": boolean
    }
  ],
  "suggested_inquiries": [
    {
      "topic": "...",
      "rationale": "...",
      "specific_questions": ["..."]
    }
  ],
  "potential_weaknesses": [
    {
      "issue": "...",
      "explanation": "...",
      "mitigation_strategy": "..."
    }
  ]
}`

const formatSystemPrompt = "You are a helpful assistant that analyzes deposition transcripts and formats them into structured JSON data."

// OpenAIAnalyzer is the go-openai backed Analyzer.
type OpenAIAnalyzer struct {
	client      *openai.Client
	model       string
	formatModel string
	temperature float32
	maxTokens   int
}

// NewOpenAIAnalyzer creates an analyzer from config.
func NewOpenAIAnalyzer(cfg *config.Config) *OpenAIAnalyzer {
	return &OpenAIAnalyzer{
		client:      openai.NewClient(cfg.OpenAIAPIKey),
		model:       cfg.OpenAIModel,
		formatModel: cfg.OpenAIFormatModel,
		temperature: float32(cfg.OpenAITemperature),
		maxTokens:   cfg.OpenAIMaxTokens,
	}
}

func documentsContext(documents []DocumentInput) string {
	parts := make([]string, 0, len(documents))
	for _, doc := range documents {
		parts = append(parts, fmt.Sprintf("Document: %s\nContent: %s", doc.Name, doc.Content))
	}
	return strings.Join(parts, "\n\n")
}

// stripCodeFence removes a leading ```json fence the model sometimes wraps
// its output in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func (a *OpenAIAnalyzer) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty response from model %s", req.Model)
	}
	return resp.Choices[0].Message.Content, nil
}

func (a *OpenAIAnalyzer) AnalyzeDeposition(ctx context.Context, witnessName string, date time.Time, transcript string, documents []DocumentInput) (*DepositionAnalysisResult, error) {
	logger := observability.GetLogger()

	userPrompt := fmt.Sprintf(
		"Discovery Documents:\n%s\n\nThe following is the deposition transcript. The deposition was offered by %s on %s:\n%s",
		documentsContext(documents), witnessName, date.Format("2006-01-02"), transcript)

	content, err := a.complete(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: depositionSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return nil, err
	}

	result := &DepositionAnalysisResult{
		Discrepancies:      []domain.Discrepancy{},
		SuggestedQuestions: []string{},
	}
	if err := json.Unmarshal([]byte(stripCodeFence(content)), result); err != nil {
		// Unparseable output degrades to an empty analysis
		logger.Warn().Err(err).Msg("Failed to parse deposition analysis response")
		return &DepositionAnalysisResult{
			Discrepancies:      []domain.Discrepancy{},
			SuggestedQuestions: []string{},
		}, nil
	}
	return result, nil
}

func (a *OpenAIAnalyzer) AnalyzeDocuments(ctx context.Context, documents []DocumentInput, goals string) (*DocumentAnalysisResult, error) {
	logger := observability.GetLogger()

	userPrompt := fmt.Sprintf("Goals:\n%s\n\nDocuments:\n%s", goals, documentsContext(documents))

	content, err := a.complete(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: documentsSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return nil, err
	}

	result := &DocumentAnalysisResult{
		KeyEvidence:         []domain.KeyEvidence{},
		SuggestedInquiries:  []domain.SuggestedInquiry{},
		PotentialWeaknesses: []domain.PotentialWeakness{},
	}
	if err := json.Unmarshal([]byte(stripCodeFence(content)), result); err != nil {
		logger.Warn().Err(err).Msg("Failed to parse document analysis response")
		return &DocumentAnalysisResult{
			KeyEvidence:         []domain.KeyEvidence{},
			SuggestedInquiries:  []domain.SuggestedInquiry{},
			PotentialWeaknesses: []domain.PotentialWeakness{},
		}, nil
	}
	return result, nil
}

func (a *OpenAIAnalyzer) FormatTranscript(ctx context.Context, dep *domain.AudioDeposition) ([]domain.SpeakerTurn, error) {
	prompt := fmt.Sprintf(`Analyze the following deposition transcript and format it into a JSON array of turns, where each turn represents a single utterance.
For each turn, identify the speaker (either the witness, %q, the attorney conducting the deposition, %q, or the opposing counsel, %q)
based on the content and context of what was said.

Format the response as a JSON array of objects, where each object has:
- speaker: The name of the person speaking
- text: The text that was spoken

Here's the transcript to analyze:

<BEGIN TRANSCRIPT>

%s

<END TRANSCRIPT>

Respond with ONLY the JSON array, no other text.`,
		dep.WitnessName, dep.DepositionConductor, dep.OpposingCounsel, dep.Transcript)

	content, err := a.complete(ctx, openai.ChatCompletionRequest{
		Model: a.formatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: formatSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, err
	}

	return parseSpeakerTurns(stripCodeFence(content))
}

// parseSpeakerTurns accepts either a bare JSON array or an object wrapping
// one (json_object response mode forces a top-level object).
func parseSpeakerTurns(s string) ([]domain.SpeakerTurn, error) {
	var turns []domain.SpeakerTurn
	if err := json.Unmarshal([]byte(s), &turns); err == nil {
		return turns, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse transcript turns: %w", err)
	}
	for _, raw := range wrapped {
		if err := json.Unmarshal(raw, &turns); err == nil {
			return turns, nil
		}
	}
	return nil, fmt.Errorf("no turn array found in model response")
}
