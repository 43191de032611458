package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/models"
)

// maxUploadBytes caps ingested file size at 32 MiB.
const maxUploadBytes = 32 << 20

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("query request", zap.String("query", req.Query), zap.Int64("conversation_id", req.ConversationID))
	result, err := s.engine.Ask(r.Context(), &req)
	if err != nil {
		s.logger.Error("query failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

// sseEvent writes one Server-Sent Event with a JSON payload and flushes.
func sseEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func (s *Server) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	emit := func(token string) error {
		return sseEvent(w, flusher, "token", map[string]string{"token": token})
	}
	result, err := s.engine.AskStream(r.Context(), &req, emit)
	if err != nil {
		s.logger.Error("streaming query failed", zap.Error(err))
		_ = sseEvent(w, flusher, "error", map[string]string{"error": err.Error()})
		return
	}
	if !result.Completed {
		s.logger.Debug("client disconnected mid-stream, turn not persisted",
			zap.Int64("conversation_id", result.ConversationID))
		return
	}
	_ = sseEvent(w, flusher, "done", result)
}

// conversationIDParam reads the optional conversation_id value, resolving or
// creating the conversation.
func (s *Server) ensureConversation(r *http.Request, raw string) (int64, error) {
	var id int64
	if raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid conversation_id: %q", raw)
		}
		id = parsed
	}
	return s.engine.EnsureConversation(r.Context(), id)
}

func (s *Server) handleIngestFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()
	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read upload")
		return
	}

	extracted, err := s.extractor.ExtractBytes(content, filepath.Ext(header.Filename))
	if err != nil {
		if errors.Is(err, ingest.ErrUnsupportedType) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("extraction failed", zap.String("filename", header.Filename), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	conversationID, err := s.ensureConversation(r, r.FormValue("conversation_id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	count, err := s.ingestor.IngestExtracted(r.Context(), conversationID, header.Filename, extracted)
	if err != nil {
		s.logger.Error("ingestion failed", zap.String("filename", header.Filename), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"conversation_id": conversationID,
		"source":          header.Filename,
		"chunks":          count,
	})
}

type urlIngestRequest struct {
	URL            string `json:"url"`
	ConversationID int64  `json:"conversation_id,omitempty"`
}

func (s *Server) handleIngestURL(w http.ResponseWriter, r *http.Request) {
	var req urlIngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		s.respondError(w, http.StatusBadRequest, "url is required")
		return
	}
	text, err := ingest.FetchURL(r.Context(), req.URL)
	if err != nil {
		s.logger.Error("URL fetch failed", zap.String("url", req.URL), zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	conversationID, err := s.engine.EnsureConversation(r.Context(), req.ConversationID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	count, err := s.ingestor.IngestText(r.Context(), conversationID, req.URL, text)
	if err != nil {
		s.logger.Error("ingestion failed", zap.String("url", req.URL), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"conversation_id": conversationID,
		"source":          req.URL,
		"chunks":          count,
	})
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	// Body is optional.
	_ = json.NewDecoder(r.Body).Decode(&body)
	convo, err := s.storage.CreateConversation(r.Context(), body.Title)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, convo)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convos, err := s.storage.ListConversations(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if convos == nil {
		convos = []*models.Conversation{}
	}
	s.respondJSON(w, http.StatusOK, convos)
}

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	convo, err := s.storage.GetConversation(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "conversation not found")
		return
	}
	messages, err := s.storage.ListMessages(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if messages == nil {
		messages = []*models.Message{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"conversation": convo,
		"messages":     messages,
	})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	if err := s.storage.DeleteConversation(r.Context(), id); err != nil {
		s.respondError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err := s.chunks.DeletePartition(r.Context(), id); err != nil {
		s.logger.Error("failed to delete chunk partition", zap.Int64("conversation_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"status": "deleted", "conversation_id": id})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
