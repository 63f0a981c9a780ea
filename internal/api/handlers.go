package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/casefileai/case-gateway/internal/ai"
	"github.com/casefileai/case-gateway/internal/domain"
	"github.com/casefileai/case-gateway/internal/observability"
	"github.com/casefileai/case-gateway/internal/store"
)

var allowedDocumentTypes = map[string]bool{
	"pdf":  true,
	"doc":  true,
	"docx": true,
	"txt":  true,
}

// Handler serves the REST surface over the durable store. analyzer may be
// nil, which disables the analysis endpoints with a 503.
type Handler struct {
	store          store.Store
	analyzer       ai.Analyzer
	maxUploadBytes int64
}

// NewHandler creates the REST handler.
func NewHandler(st store.Store, analyzer ai.Analyzer, maxUploadBytes int64) *Handler {
	return &Handler{store: st, analyzer: analyzer, maxUploadBytes: maxUploadBytes}
}

// Routes mounts all REST endpoints on a fresh router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/cases", func(r chi.Router) {
		r.Get("/", h.listCases)
		r.Post("/", h.createCase)
		r.Get("/{id}", h.getCase)
	})

	r.Route("/documents", func(r chi.Router) {
		r.Get("/", h.listDocuments)
		r.Post("/", h.createDocument)
		r.Post("/upload", h.uploadDocument)
		r.Get("/{id}", h.getDocument)
		r.Delete("/{id}", h.deleteDocument)
		r.Get("/{id}/download", h.downloadDocument)
	})

	r.Route("/depositions", func(r chi.Router) {
		r.Get("/", h.listDepositions)
		r.Post("/", h.createDeposition)
		r.Get("/{id}", h.getDeposition)
		r.Put("/{id}", h.updateDeposition)
		r.Delete("/{id}", h.deleteDeposition)
	})

	r.Route("/deposition-analyses", func(r chi.Router) {
		r.Post("/", h.createDepositionAnalysis)
		r.Get("/{depositionId}", h.getDepositionAnalysis)
	})

	r.Route("/document-analyses", func(r chi.Router) {
		r.Get("/", h.listDocumentAnalyses)
		r.Post("/", h.createDocumentAnalysis)
		r.Post("/analyze", h.analyzeDocuments)
		r.Get("/{documentId}", h.getDocumentAnalysis)
	})

	r.Route("/audio-depositions", func(r chi.Router) {
		r.Get("/", h.listAudioDepositions)
		r.Get("/{id}", h.getAudioDeposition)
		r.Post("/{id}/analyze", h.analyzeAudioDeposition)
	})

	r.Route("/chats", func(r chi.Router) {
		r.Get("/", h.listChats)
		r.Post("/", h.createChat)
		r.Get("/{id}", h.getChat)
		r.Post("/{id}/messages", h.appendChatMessage)
	})

	return r
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			logger := observability.GetLogger()
			logger.Error().Err(err).Msg("Failed to encode response")
		}
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondStoreError maps ErrNotFound to 404 and everything else to 500.
func respondStoreError(w http.ResponseWriter, err error, notFoundMsg, failMsg string) {
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, notFoundMsg)
		return
	}
	logger := observability.GetLogger()
	logger.Error().Err(err).Msg(failMsg)
	respondError(w, http.StatusInternalServerError, failMsg)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// Cases

func (h *Handler) listCases(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "userId is required")
		return
	}
	cases, err := h.store.ListCases(r.Context(), userID)
	if err != nil {
		respondStoreError(w, err, "", "Failed to get cases")
		return
	}
	respondJSON(w, http.StatusOK, cases)
}

func (h *Handler) getCase(w http.ResponseWriter, r *http.Request) {
	c, err := h.store.GetCase(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err, "Case not found", "Failed to get case")
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handler) createCase(w http.ResponseWriter, r *http.Request) {
	var c domain.Case
	if !decodeBody(w, r, &c) {
		return
	}
	if c.Title == "" || c.UserID == "" {
		respondError(w, http.StatusBadRequest, "title and user_id are required")
		return
	}
	created, err := h.store.CreateCase(r.Context(), c)
	if err != nil {
		respondStoreError(w, err, "", "Failed to create case")
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// Documents

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	caseID := r.URL.Query().Get("caseId")
	if caseID == "" {
		respondError(w, http.StatusBadRequest, "caseId is required")
		return
	}
	docs, err := h.store.ListDocuments(r.Context(), caseID)
	if err != nil {
		respondStoreError(w, err, "", "Failed to get documents")
		return
	}
	respondJSON(w, http.StatusOK, docs)
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err, "Document not found", "Failed to get document")
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

func (h *Handler) createDocument(w http.ResponseWriter, r *http.Request) {
	var doc domain.Document
	if !decodeBody(w, r, &doc) {
		return
	}
	if doc.CaseID == "" || doc.Name == "" {
		respondError(w, http.StatusBadRequest, "case_id and name are required")
		return
	}
	if !allowedDocumentTypes[doc.Type] {
		respondError(w, http.StatusBadRequest, "Invalid file type")
		return
	}
	created, err := h.store.CreateDocument(r.Context(), doc)
	if err != nil {
		respondStoreError(w, err, "", "Failed to create document")
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *Handler) uploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "File too large or malformed upload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(header.Filename), "."))
	if !allowedDocumentTypes[ext] {
		respondError(w, http.StatusBadRequest, "Invalid file type")
		return
	}

	caseID := r.FormValue("caseId")
	if caseID == "" {
		respondError(w, http.StatusBadRequest, "caseId is required")
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	created, err := h.store.CreateDocument(r.Context(), domain.Document{
		CaseID:  caseID,
		Name:    header.Filename,
		Type:    ext,
		Content: content,
	})
	if err != nil {
		respondStoreError(w, err, "", "Failed to upload document")
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *Handler) downloadDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.GetDocumentWithContent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err, "Document not found", "Failed to download document")
		return
	}

	w.Header().Set("Content-Type", "application/"+doc.Type)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Content)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc.Content); err != nil {
		logger := observability.GetLogger()
		logger.Warn().Err(err).Msg("Failed to write document content")
	}
}

func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteDocument(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondStoreError(w, err, "Document not found", "Failed to delete document")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Depositions

func (h *Handler) listDepositions(w http.ResponseWriter, r *http.Request) {
	caseID := r.URL.Query().Get("caseId")
	if caseID == "" {
		respondError(w, http.StatusBadRequest, "caseId is required")
		return
	}
	deps, err := h.store.ListDepositions(r.Context(), caseID)
	if err != nil {
		respondStoreError(w, err, "", "Failed to get depositions")
		return
	}
	respondJSON(w, http.StatusOK, deps)
}

func (h *Handler) getDeposition(w http.ResponseWriter, r *http.Request) {
	dep, err := h.store.GetDeposition(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err, "Deposition not found", "Failed to get deposition")
		return
	}
	respondJSON(w, http.StatusOK, dep)
}

func (h *Handler) createDeposition(w http.ResponseWriter, r *http.Request) {
	var dep domain.Deposition
	if !decodeBody(w, r, &dep) {
		return
	}
	if dep.CaseID == "" || dep.WitnessName == "" {
		respondError(w, http.StatusBadRequest, "case_id and witness_name are required")
		return
	}
	created, err := h.store.CreateDeposition(r.Context(), dep)
	if err != nil {
		respondStoreError(w, err, "", "Failed to create deposition")
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *Handler) updateDeposition(w http.ResponseWriter, r *http.Request) {
	var dep domain.Deposition
	if !decodeBody(w, r, &dep) {
		return
	}
	dep.ID = chi.URLParam(r, "id")
	updated, err := h.store.UpdateDeposition(r.Context(), dep)
	if err != nil {
		respondStoreError(w, err, "Deposition not found", "Failed to update deposition")
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteDeposition(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteDeposition(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondStoreError(w, err, "Deposition not found", "Failed to delete deposition")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Deposition analyses

func (h *Handler) getDepositionAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, err := h.store.GetDepositionAnalysis(r.Context(), chi.URLParam(r, "depositionId"))
	if err != nil {
		respondStoreError(w, err, "Deposition analysis not found", "Failed to get deposition analysis")
		return
	}
	respondJSON(w, http.StatusOK, analysis)
}

func (h *Handler) createDepositionAnalysis(w http.ResponseWriter, r *http.Request) {
	var analysis domain.DepositionAnalysis
	if !decodeBody(w, r, &analysis) {
		return
	}
	if analysis.DepositionID == "" {
		respondError(w, http.StatusBadRequest, "deposition_id is required")
		return
	}
	created, err := h.store.CreateDepositionAnalysis(r.Context(), analysis)
	if err != nil {
		respondStoreError(w, err, "", "Failed to create deposition analysis")
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// Document analyses

func (h *Handler) getDocumentAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, err := h.store.GetDocumentAnalysis(r.Context(), chi.URLParam(r, "documentId"))
	if err != nil {
		respondStoreError(w, err, "Document analysis not found", "Failed to get document analysis")
		return
	}
	respondJSON(w, http.StatusOK, analysis)
}

func (h *Handler) listDocumentAnalyses(w http.ResponseWriter, r *http.Request) {
	caseID := r.URL.Query().Get("caseId")
	if caseID == "" {
		respondError(w, http.StatusBadRequest, "caseId is required")
		return
	}
	analyses, err := h.store.ListDocumentAnalyses(r.Context(), caseID)
	if err != nil {
		respondStoreError(w, err, "", "Failed to get document analyses")
		return
	}
	respondJSON(w, http.StatusOK, analyses)
}

func (h *Handler) createDocumentAnalysis(w http.ResponseWriter, r *http.Request) {
	var analysis domain.DocumentAnalysis
	if !decodeBody(w, r, &analysis) {
		return
	}
	if analysis.CaseID == "" {
		respondError(w, http.StatusBadRequest, "case_id is required")
		return
	}
	created, err := h.store.CreateDocumentAnalysis(r.Context(), analysis)
	if err != nil {
		respondStoreError(w, err, "", "Failed to create document analysis")
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// analyzeDocuments runs model analysis over a case's documents against the
// stated goals and stores the result. With no document_ids the whole case's
// document set is analyzed.
func (h *Handler) analyzeDocuments(w http.ResponseWriter, r *http.Request) {
	if h.analyzer == nil {
		respondError(w, http.StatusServiceUnavailable, "Analysis is not configured")
		return
	}

	var req struct {
		CaseID      string   `json:"case_id"`
		DocumentIDs []string `json:"document_ids"`
		Goals       string   `json:"goals"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CaseID == "" || req.Goals == "" {
		respondError(w, http.StatusBadRequest, "case_id and goals are required")
		return
	}

	ids := req.DocumentIDs
	if len(ids) == 0 {
		docs, err := h.store.ListDocuments(r.Context(), req.CaseID)
		if err != nil {
			respondStoreError(w, err, "", "Failed to list case documents")
			return
		}
		for _, doc := range docs {
			ids = append(ids, doc.ID)
		}
	}
	if len(ids) == 0 {
		respondError(w, http.StatusBadRequest, "Case has no documents to analyze")
		return
	}

	inputs := make([]ai.DocumentInput, 0, len(ids))
	for _, id := range ids {
		doc, err := h.store.GetDocumentWithContent(r.Context(), id)
		if err != nil {
			respondStoreError(w, err, "Document not found", "Failed to load document")
			return
		}
		inputs = append(inputs, ai.DocumentInput{Name: doc.Name, Content: string(doc.Content)})
	}

	result, err := h.analyzer.AnalyzeDocuments(r.Context(), inputs, req.Goals)
	if err != nil {
		logger := observability.GetLogger()
		logger.Error().Err(err).Msg("Failed to analyze documents")
		respondError(w, http.StatusInternalServerError, "Failed to analyze documents")
		return
	}

	created, err := h.store.CreateDocumentAnalysis(r.Context(), domain.DocumentAnalysis{
		CaseID:              req.CaseID,
		Goals:               req.Goals,
		KeyEvidence:         result.KeyEvidence,
		SuggestedInquiries:  result.SuggestedInquiries,
		PotentialWeaknesses: result.PotentialWeaknesses,
	})
	if err != nil {
		respondStoreError(w, err, "", "Failed to store document analysis")
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// Audio depositions

func (h *Handler) listAudioDepositions(w http.ResponseWriter, r *http.Request) {
	caseID := r.URL.Query().Get("caseId")
	if caseID == "" {
		respondError(w, http.StatusBadRequest, "caseId is required")
		return
	}
	deps, err := h.store.ListAudioDepositions(r.Context(), caseID)
	if err != nil {
		respondStoreError(w, err, "", "Failed to get audio depositions")
		return
	}
	respondJSON(w, http.StatusOK, deps)
}

func (h *Handler) getAudioDeposition(w http.ResponseWriter, r *http.Request) {
	dep, err := h.store.GetAudioDeposition(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err, "Audio deposition not found", "Failed to get audio deposition")
		return
	}
	respondJSON(w, http.StatusOK, dep)
}

// analyzeAudioDeposition formats the accumulated transcript into attributed
// speaker turns.
func (h *Handler) analyzeAudioDeposition(w http.ResponseWriter, r *http.Request) {
	if h.analyzer == nil {
		respondError(w, http.StatusServiceUnavailable, "Analysis is not configured")
		return
	}

	dep, err := h.store.GetAudioDeposition(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err, "Audio deposition not found", "Failed to get audio deposition")
		return
	}
	if dep.Transcript == "" {
		respondError(w, http.StatusBadRequest, "Deposition has no transcript")
		return
	}

	turns, err := h.analyzer.FormatTranscript(r.Context(), dep)
	if err != nil {
		logger := observability.GetLogger()
		logger.Error().Err(err).Msg("Failed to format transcript")
		respondError(w, http.StatusInternalServerError, "Failed to analyze deposition")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"deposition_id": dep.ID,
		"turns":         turns,
	})
}

// Chats

func (h *Handler) listChats(w http.ResponseWriter, r *http.Request) {
	caseID := r.URL.Query().Get("caseId")
	if caseID == "" {
		respondError(w, http.StatusBadRequest, "caseId is required")
		return
	}
	chats, err := h.store.ListChats(r.Context(), caseID)
	if err != nil {
		respondStoreError(w, err, "", "Failed to get chats")
		return
	}
	respondJSON(w, http.StatusOK, chats)
}

func (h *Handler) getChat(w http.ResponseWriter, r *http.Request) {
	chat, err := h.store.GetChat(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err, "Chat not found", "Failed to get chat")
		return
	}
	respondJSON(w, http.StatusOK, chat)
}

func (h *Handler) createChat(w http.ResponseWriter, r *http.Request) {
	var chat domain.Chat
	if !decodeBody(w, r, &chat) {
		return
	}
	if chat.CaseID == "" {
		respondError(w, http.StatusBadRequest, "case_id is required")
		return
	}
	created, err := h.store.CreateChat(r.Context(), chat)
	if err != nil {
		respondStoreError(w, err, "", "Failed to create chat")
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *Handler) appendChatMessage(w http.ResponseWriter, r *http.Request) {
	var msg domain.ChatMessage
	if !decodeBody(w, r, &msg) {
		return
	}
	if msg.Role == "" || msg.Content == "" {
		respondError(w, http.StatusBadRequest, "role and content are required")
		return
	}
	updated, err := h.store.AppendChatMessage(r.Context(), chi.URLParam(r, "id"), msg)
	if err != nil {
		respondStoreError(w, err, "Chat not found", "Failed to append chat message")
		return
	}
	respondJSON(w, http.StatusOK, updated)
}
