package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/hubenschmidt/go-resurface/core"
	"github.com/hubenschmidt/go-resurface/engine"
)

const defaultRecallLimit = 10

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}

func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, err)
		return
	}

	note, links, err := s.engine.CreateAndLink(r.Context(), req.Content)
	if err != nil {
		s.writeError(w, err, note.ID)
		return
	}

	related, err := s.engine.Related(r.Context(), note.ID, 0)
	if err != nil {
		s.writeError(w, err, note.ID)
		return
	}

	writeJSON(w, http.StatusCreated, NoteResponse{
		ID:           note.ID,
		Content:      note.Content,
		CreatedAt:    note.CreatedAt,
		LinksCreated: len(links),
		RelatedNotes: toRelatedInfo(related),
	})
}

func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	note, err := s.engine.GetNote(r.Context(), id)
	if err != nil {
		s.writeError(w, err, "")
		return
	}

	related, err := s.engine.Related(r.Context(), id, 0)
	if err != nil {
		s.writeError(w, err, "")
		return
	}

	writeJSON(w, http.StatusOK, NoteResponse{
		ID:           note.ID,
		Content:      note.Content,
		CreatedAt:    note.CreatedAt,
		RelatedNotes: toRelatedInfo(related),
	})
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	minStrength, err := floatParam(r, "min_strength", 0)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	related, err := s.engine.Related(r.Context(), r.PathValue("id"), minStrength)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, RelatedResponse{RelatedNotes: toRelatedInfo(related)})
}

func (s *Server) handleRelink(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	links, err := s.engine.Relink(r.Context(), id)
	if err != nil {
		s.writeError(w, err, "")
		return
	}

	related, err := s.engine.Related(r.Context(), id, 0)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, RelinkResponse{LinksCreated: len(links), RelatedNotes: toRelatedInfo(related)})
}

func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	var req RecallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, err)
		return
	}
	limit := defaultRecallLimit
	if req.Limit != nil {
		limit = *req.Limit
	}

	clusters, err := s.engine.Recall(r.Context(), req.Query, limit)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, toRecallResponse(clusters))
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	minStrength, err := floatParam(r, "min_strength", engine.DefaultGraphMinStrength)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	g, err := s.engine.Graph(r.Context(), r.URL.Query().Get("query"), minStrength)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, toGraphResponse(g))
}

func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	batch := 0
	if v := r.URL.Query().Get("batch"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, err)
			return
		}
		batch = n
	}

	res, err := s.engine.EmbedPending(r.Context(), batch)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Metrics())
}

func floatParam(r *http.Request, name string, def float64) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.ParseFloat(v, 64)
}

// statusFor maps an engine error kind to an HTTP status. Timeouts are
// checked first since they also carry a provider or store kind.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, core.ErrEmbeddingProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error, noteID string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), NoteID: noteID})
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
