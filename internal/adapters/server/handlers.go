package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/mikey/insight-pipeline/internal/core"
	"github.com/mikey/insight-pipeline/internal/pipeline"
)

type insightsRequest struct {
	Provider   string `json:"provider"`
	MaxResults int    `json:"maxResults"`
}

type insightsResponse struct {
	Insights []core.InsightRecord `json:"insights"`
	Count    int                  `json:"count"`
}

type historyResponse struct {
	Batches []core.StoredInsights `json:"batches"`
	Count   int                   `json:"count"`
}

type messagesResponse struct {
	Messages []core.AIReadableMessage `json:"messages"`
	Summary  core.MessageSummary      `json:"summary"`
	Count    int                      `json:"count"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleInsights(w http.ResponseWriter, r *http.Request) {
	var body insightsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	provider, err := core.ParseProvider(body.Provider)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "unknown provider")
		return
	}
	user := userIdentity(r)
	if user == "" {
		s.writeError(w, r, http.StatusBadRequest, "missing "+headerUserEmail+" header")
		return
	}
	token := bearerToken(r)
	if token == "" {
		s.writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}

	records, err := s.service.GetOrCompute(r.Context(), core.InsightRequest{
		UserIdentity: user,
		Provider:     provider,
		Token:        token,
		MaxResults:   body.MaxResults,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, insightsResponse{Insights: records, Count: len(records)})
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	provider, err := core.ParseProvider(r.URL.Query().Get("provider"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "unknown provider")
		return
	}
	user := userIdentity(r)
	if user == "" {
		s.writeError(w, r, http.StatusBadRequest, "missing "+headerUserEmail+" header")
		return
	}

	batches, err := s.service.History(r.Context(), user, provider, queryInt(r, "limit"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, historyResponse{Batches: batches, Count: len(batches)})
}

func (s *HTTPServer) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	provider, err := core.ParseProvider(r.URL.Query().Get("provider"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "unknown provider")
		return
	}
	user := userIdentity(r)
	if user == "" {
		s.writeError(w, r, http.StatusBadRequest, "missing "+headerUserEmail+" header")
		return
	}

	if err := s.service.Invalidate(r.Context(), core.CacheKey{UserIdentity: user, Provider: provider}); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleMessages(w http.ResponseWriter, r *http.Request) {
	provider, err := core.ParseProvider(r.URL.Query().Get("provider"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "unknown provider")
		return
	}
	token := bearerToken(r)
	if token == "" {
		s.writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}

	msgs, err := s.messages.Messages(r.Context(), core.InsightRequest{
		UserIdentity: userIdentity(r),
		Provider:     provider,
		Token:        token,
		MaxResults:   queryInt(r, "maxResults"),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	summary := pipeline.Summarize(msgs)
	msgs = pipeline.FilterByType(msgs, core.MessageType(r.URL.Query().Get("type")))
	s.writeJSON(w, r, http.StatusOK, messagesResponse{Messages: msgs, Summary: summary, Count: len(msgs)})
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrUnknownProvider):
		s.writeError(w, r, http.StatusBadRequest, "unknown provider")
	case errors.Is(err, core.ErrNoStore):
		s.writeError(w, r, http.StatusNotFound, "insight history is not enabled")
	case errors.Is(err, core.ErrAllSourcesFailed):
		s.logger.Error("All insight sources failed",
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.Error(err))
		s.writeError(w, r, http.StatusBadGateway, "insight sources unavailable")
	default:
		s.logger.Error("Request failed",
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.Error(err))
		s.writeError(w, r, http.StatusBadGateway, "upstream request failed")
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.writeJSON(w, r, status, errorResponse{Error: msg, RequestID: RequestIDFrom(r.Context())})
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response",
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.Error(err))
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}

func userIdentity(r *http.Request) string {
	return strings.ToLower(strings.TrimSpace(r.Header.Get(headerUserEmail)))
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
