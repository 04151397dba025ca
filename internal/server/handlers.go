package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/bertlib/internal/embedding"
	"github.com/hyperjump/bertlib/internal/models"
	"github.com/hyperjump/bertlib/internal/vector"
	"github.com/hyperjump/bertlib/internal/worker"
)

const (
	defaultSimilarThreshold = 0.4
	// workerCallTimeout bounds one embedding call once it is detached from the client.
	workerCallTimeout = 60 * time.Second
)

// workerContext carries the request id but not the client's cancellation: a call
// abandoned mid-response discards the shared worker, so only workerCallTimeout ends it.
func workerContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx := context.WithoutCancel(r.Context())
	if id := middleware.GetReqID(r.Context()); id != "" {
		ctx = embedding.WithRequestID(ctx, id)
	}
	return context.WithTimeout(ctx, workerCallTimeout)
}

func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	var req models.EncodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("encode request",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Int("batch", len(req.Sentences)),
	)
	ctx, cancel := workerContext(r)
	defer cancel()
	start := time.Now()
	embeddings, err := s.embedder.EmbedBatch(ctx, req.Sentences)
	if err != nil {
		s.respondEmbedError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.EncodeResponse{
		Dimensions: s.embedder.Dimensions(),
		Embeddings: embeddings,
		QueryTime:  time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	var req models.SimilarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	enc := models.EncodeRequest{Sentences: req.Sentences}
	if err := enc.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	threshold := defaultSimilarThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	ctx, cancel := workerContext(r)
	defer cancel()
	embeddings, err := s.embedder.EmbedBatch(ctx, req.Sentences)
	if err != nil {
		s.respondEmbedError(w, r, err)
		return
	}
	resp := models.SimilarResponse{Threshold: threshold, Pairs: []models.SimilarPair{}}
	for _, row := range vector.Neighbours(embeddings, threshold) {
		for _, p := range row {
			resp.Pairs = append(resp.Pairs, models.SimilarPair{
				Sentence: req.Sentences[p.I],
				Other:    req.Sentences[p.J],
				Score:    p.Score,
			})
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handlePing doubles x; it only proves the API is reachable.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	x, err := strconv.Atoi(r.URL.Query().Get("x"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "x must be an integer")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"result": 2 * x})
}

// handlePingSentences logs each sentence it receives and echoes the batch back.
func (s *Server) handlePingSentences(w http.ResponseWriter, r *http.Request) {
	var req models.EncodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for i, sentence := range req.Sentences {
		s.logger.Info("ping sentence", zap.Int("index", i), zap.String("sentence", sentence))
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(req.Sentences),
		"sentences": req.Sentences,
	})
}

func (s *Server) handleWorkerStatus(w http.ResponseWriter, r *http.Request) {
	if s.worker == nil {
		s.respondError(w, http.StatusNotImplemented, "worker control not enabled")
		return
	}
	resp := map[string]interface{}{
		"worker":     s.worker.Status(),
		"dimensions": s.embedder.Dimensions(),
	}
	if s.cache != nil {
		cacheInfo := map[string]interface{}{}
		if n, err := s.cache.Count(r.Context()); err == nil {
			cacheInfo["embeddings"] = n
		} else {
			s.logger.Warn("status: cache count failed", zap.Error(err))
		}
		if size, err := s.cache.DiskUsage(); err == nil {
			cacheInfo["disk_usage_bytes"] = size
		}
		resp["cache"] = cacheInfo
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWorkerRestart(w http.ResponseWriter, r *http.Request) {
	if s.worker == nil {
		s.respondError(w, http.StatusNotImplemented, "worker control not enabled")
		return
	}
	ctx, cancel := workerContext(r)
	defer cancel()
	if err := s.worker.Restart(ctx); err != nil {
		s.logger.Error("worker restart failed", zap.Error(err))
		s.respondEmbedError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"status": "restarted", "worker": s.worker.Status()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.worker != nil && !s.worker.Status().Running {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "worker": "not running"})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondEmbedError maps the worker error taxonomy onto HTTP status codes.
func (s *Server) respondEmbedError(w http.ResponseWriter, r *http.Request, err error) {
	kind := worker.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case worker.KindUninitialized, worker.KindSpawn:
		status = http.StatusServiceUnavailable
	case worker.KindInvalidInput:
		status = http.StatusBadRequest
	case worker.KindCancelled:
		status = http.StatusGatewayTimeout
	case worker.KindTransport, worker.KindProtocol:
		status = http.StatusBadGateway
	case worker.KindAlreadyRunning:
		status = http.StatusConflict
	}
	reqID := middleware.GetReqID(r.Context())
	s.logger.Error("embedding failed",
		zap.String("request_id", reqID),
		zap.Stringer("kind", kind),
		zap.Error(err),
	)
	s.respondJSON(w, status, map[string]string{
		"error":      err.Error(),
		"kind":       kind.String(),
		"request_id": reqID,
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
