package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/hyperjump/semindex/internal/embedding"
	"github.com/hyperjump/semindex/internal/models"
	"github.com/hyperjump/semindex/internal/vector"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Hello World"})
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	var items []models.InsertItem
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	s.logger.Debug("insert request", zap.Int("items", len(items)))
	res, err := s.svc.Insert(r.Context(), items)
	if err != nil {
		s.logger.Error("insert failed", zap.Error(err))
		s.respondError(w, errorStatus(err), err.Error())
		return
	}
	if res.NoOp {
		s.respondNoOp(w, "No data to insert", res.Count)
		return
	}
	s.respondEnvelope(w, "Insert data success", res.Count)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var ids []int64
	if err := json.NewDecoder(r.Body).Decode(&ids); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	s.logger.Debug("delete request", zap.Int("ids", len(ids)))
	res, err := s.svc.Delete(r.Context(), ids)
	if err != nil {
		s.logger.Error("delete failed", zap.Error(err))
		s.respondError(w, errorStatus(err), err.Error())
		return
	}
	if res.NoOp {
		s.respondNoOp(w, "No data to delete", res.Count)
		return
	}
	s.respondEnvelope(w, "Delete data success", res.Count)
}

func (s *Server) handleDataAmount(w http.ResponseWriter, r *http.Request) {
	s.respondEnvelope(w, "Get data amount success", s.svc.Count())
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	query := models.SearchQuery{Query: params.Get("query")}
	if v := params.Get("top_k"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil || k <= 0 {
			s.respondError(w, http.StatusBadRequest, "top_k must be a positive integer")
			return
		}
		query.TopK = k
	}
	if v := params.Get("use_query"); v != "" {
		use, err := strconv.ParseBool(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "use_query must be a boolean")
			return
		}
		query.UseQuery = &use
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("top_k", query.TopK))

	hits, err := s.svc.Search(r.Context(), query)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, errorStatus(err), err.Error())
		return
	}
	s.respondEnvelope(w, "Search data success", hits)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.svc.Export(r.Context())
	if err != nil {
		s.logger.Error("export failed", zap.Error(err))
		s.respondError(w, errorStatus(err), err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="index.snap"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	limit := s.config.MaxImportBytes
	if limit <= 0 {
		limit = defaultMaxImportBytes
	}
	body := http.MaxBytesReader(w, r.Body, limit)
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "snapshot exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
			return
		}
		s.respondError(w, http.StatusBadRequest, "failed to read snapshot: "+err.Error())
		return
	}
	res, err := s.svc.Import(r.Context(), data)
	if err != nil {
		s.logger.Error("import failed", zap.Error(err))
		s.respondError(w, errorStatus(err), err.Error())
		return
	}
	s.respondEnvelope(w, "Import data success", res.Count)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Clear(r.Context())
	if err != nil {
		s.logger.Error("clear failed", zap.Error(err))
		s.respondError(w, errorStatus(err), err.Error())
		return
	}
	s.respondEnvelope(w, "Clear data success", res.Count)
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.Checkpoint(r.Context())
	if err != nil {
		s.logger.Error("checkpoint failed", zap.Error(err))
		s.respondError(w, errorStatus(err), err.Error())
		return
	}
	s.respondEnvelope(w, "Checkpoint success", models.CheckpointInfo{
		ID:        info.ID,
		Size:      info.Size,
		CreatedAt: info.CreatedAt,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Status(r.Context())
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := models.StatusReport{Index: st}
	if s.scheduler != nil {
		resp.Jobs = s.scheduler.Status()
	}
	s.respondEnvelope(w, "Get status success", resp)
}

// errorStatus maps service errors to HTTP status codes. Checkpoint failures and
// anything unrecognized are server errors.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, vector.ErrInvalidArgument), errors.Is(err, vector.ErrCorruptSnapshot):
		return http.StatusBadRequest
	case errors.Is(err, embedding.ErrEncoding):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondEnvelope(w http.ResponseWriter, message string, data any) {
	s.respondJSON(w, http.StatusOK, models.Envelope{Message: message, Status: http.StatusOK, Data: data})
}

// respondNoOp answers an empty batch: HTTP 200 carrying status 400 in the envelope.
func (s *Server) respondNoOp(w http.ResponseWriter, message string, count int) {
	s.respondJSON(w, http.StatusOK, models.Envelope{Message: message, Status: http.StatusBadRequest, Data: count, NoOp: true})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, models.Envelope{Message: message, Status: status})
}
