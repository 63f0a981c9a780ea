package relay

import (
	"context"
	"fmt"

	"github.com/casefileai/case-gateway/internal/ai"
	"github.com/casefileai/case-gateway/internal/domain"
	"github.com/casefileai/case-gateway/internal/store"
)

// Accumulator owns the transcript merge rule and the downstream analysis
// trigger. It is separate from the session state machine so both can be
// tested without transport plumbing.
type Accumulator struct {
	store    store.Store
	analyzer ai.Analyzer // nil disables analysis
}

// NewAccumulator creates an accumulator. A nil analyzer disables the
// analysis trigger; transcripts still accumulate.
func NewAccumulator(st store.Store, analyzer ai.Analyzer) *Accumulator {
	return &Accumulator{store: st, analyzer: analyzer}
}

// AppendFinal appends one final transcript segment to the durable record and
// returns the updated transcript. Finals are appended in arrival order and
// never overwrite earlier segments.
func (a *Accumulator) AppendFinal(ctx context.Context, depositionID, segment string) (string, error) {
	transcript, err := a.store.AppendTranscript(ctx, depositionID, segment)
	if err != nil {
		return "", fmt.Errorf("failed to append transcript segment: %w", err)
	}
	return transcript, nil
}

// AnalysisEnabled reports whether a language-model analyzer is configured.
func (a *Accumulator) AnalysisEnabled() bool {
	return a.analyzer != nil
}

// Analyze runs discrepancy analysis over the updated transcript and the
// case's discovery documents. Best-effort: callers log and swallow failures.
func (a *Accumulator) Analyze(ctx context.Context, dep *domain.AudioDeposition, transcript string) (*ai.DepositionAnalysisResult, error) {
	if a.analyzer == nil {
		return nil, fmt.Errorf("analysis is not configured")
	}

	docs, err := a.store.ListDocuments(ctx, dep.CaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list case documents: %w", err)
	}

	inputs := make([]ai.DocumentInput, 0, len(docs))
	for _, doc := range docs {
		full, err := a.store.GetDocumentWithContent(ctx, doc.ID)
		if err != nil {
			continue
		}
		inputs = append(inputs, ai.DocumentInput{Name: full.Name, Content: string(full.Content)})
	}

	return a.analyzer.AnalyzeDeposition(ctx, dep.WitnessName, dep.Date, transcript, inputs)
}
