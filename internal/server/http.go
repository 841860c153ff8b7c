package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/voice-archive-bot/internal/audio"
	"github.com/skypro1111/voice-archive-bot/internal/config"
	"github.com/skypro1111/voice-archive-bot/internal/metrics"
	"github.com/skypro1111/voice-archive-bot/internal/session"
	"github.com/skypro1111/voice-archive-bot/internal/transcription"
	"github.com/skypro1111/voice-archive-bot/internal/vad"
)

const serviceName = "voice-archive-bot"

// Components are the parts of the running bot the admin API reports on.
// Everything but Sessions and Dispatcher is optional.
type Components struct {
	Sessions    *session.Manager
	Dispatcher  *Dispatcher
	Chunker     *audio.Chunker
	Transcriber *transcription.Transcriber
	Gate        *vad.Processor
	Recognizer  transcription.Recognizer
}

// recognizerStats is implemented by recognizers that keep request counters
type recognizerStats interface {
	GetStats() transcription.ClientStats
}

// HTTPServer provides HTTP API endpoints for monitoring and management
type HTTPServer struct {
	server     *http.Server
	router     *httprouter.Router
	logger     *slog.Logger
	config     *config.Config
	components Components
	metrics    *metrics.Metrics
	startTime  time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config, components Components, m *metrics.Metrics) (*HTTPServer, error) {
	if appConfig == nil {
		return nil, fmt.Errorf("application config is required")
	}
	if components.Sessions == nil || components.Dispatcher == nil {
		return nil, fmt.Errorf("sessions and dispatcher are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	h := &HTTPServer{
		router:     httprouter.New(),
		logger:     logger,
		config:     appConfig,
		components: components,
		metrics:    m,
		startTime:  time.Now(),
	}
	h.setupRoutes()

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      h.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h, nil
}

// Handler returns the routed handler
func (h *HTTPServer) Handler() http.Handler {
	return h.router
}

func (h *HTTPServer) setupRoutes() {
	h.router.GET("/", h.withMetrics("/", h.handleRoot))
	h.router.GET("/health", h.withMetrics("/health", h.handleHealth))
	h.router.GET("/sessions", h.withMetrics("/sessions", h.handleSessions))
	h.router.GET("/sessions/:user_id", h.withMetrics("/sessions/:user_id", h.handleSessionDetail))
	h.router.GET("/config", h.withMetrics("/config", h.handleConfig))
	h.router.GET("/stats", h.withMetrics("/stats", h.handleStats))
	h.router.PUT("/vad/threshold", h.withMetrics("/vad/threshold", h.handleVADThreshold))

	// no request metrics for the metrics endpoint itself
	h.router.Handler(http.MethodGet, "/metrics", promhttp.Handler())
}

// withMetrics wraps a handler with request metrics
func (h *HTTPServer) withMetrics(endpoint string, handler httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r, ps)

		duration := time.Since(startTime).Seconds()
		h.metrics.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(ww.statusCode), duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server", slog.String("address", h.server.Addr))

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")
	return h.server.Shutdown(ctx)
}

func (h *HTTPServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("Failed to encode response", slog.String("error", err.Error()))
	}
}

func (h *HTTPServer) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	dispatch := h.components.Dispatcher.GetStatistics()

	components := map[string]any{
		"dispatcher": map[string]any{
			"status":           "running",
			"active_users":     dispatch.ActiveUsers,
			"events_received":  dispatch.EventsReceived,
			"events_processed": dispatch.EventsProcessed,
			"queue_size":       dispatch.QueueSize,
		},
		"sessions": map[string]any{
			"status": "running",
			"active": h.components.Sessions.GetActiveSessionCount(),
		},
	}
	if h.components.Transcriber != nil {
		stats := h.components.Transcriber.GetStats()
		components["transcription"] = map[string]any{
			"status":          "running",
			"provider":        h.config.Transcription.Provider,
			"recordings":      stats.Recordings,
			"failed_segments": stats.FailedSegments,
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]any{
			"name":    serviceName,
			"version": "1.0.0",
		},
		"components": components,
	})
}

func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sessions := h.components.Sessions.GetAllSessions()

	h.writeJSON(w, http.StatusOK, map[string]any{
		"total_sessions": len(sessions),
		"by_state":       session.CountByState(sessions),
		"timestamp":      time.Now().UTC(),
		"sessions":       sessions,
	})
}

func (h *HTTPServer) handleSessionDetail(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, err := strconv.ParseInt(ps.ByName("user_id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	info, ok := h.components.Sessions.GetSession(userID)
	if !ok {
		h.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	h.writeJSON(w, http.StatusOK, info)
}

// handleConfig returns the configuration without secrets
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	c := h.config

	h.writeJSON(w, http.StatusOK, map[string]any{
		"telegram": map[string]any{
			"poll_timeout":  c.Telegram.PollTimeout,
			"admin_forward": c.Telegram.AdminChatID != 0,
			"debug":         c.Telegram.Debug,
		},
		"dispatch": c.Dispatch,
		"audio":    c.Audio,
		"vad":      h.vadConfig(),
		"transcription": map[string]any{
			"provider":       c.Transcription.Provider,
			"endpoint":       c.Transcription.Endpoint,
			"model":          c.Transcription.Model,
			"timeout":        c.Transcription.Timeout,
			"max_retries":    c.Transcription.MaxRetries,
			"max_concurrent": c.Transcription.MaxConcurrent,
			"output_format":  c.Transcription.OutputFormat,
		},
		"storage": map[string]any{
			"scheme":        c.Storage.Scheme,
			"port":          c.Storage.Port,
			"timeout":       c.Storage.Timeout,
			"keep_declined": c.Storage.KeepDeclined,
		},
		"dialog":  c.Dialog,
		"logging": c.Logging,
	})
}

func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	stats := map[string]any{
		"uptime":     time.Since(h.startTime).String(),
		"timestamp":  time.Now().UTC(),
		"dispatcher": h.components.Dispatcher.GetStatistics(),
		"sessions": map[string]any{
			"active_count": h.components.Sessions.GetActiveSessionCount(),
			"by_state":     h.components.Sessions.CountByState(),
		},
	}
	if h.components.Chunker != nil {
		stats["audio"] = h.components.Chunker.GetStats()
	}
	if h.components.Transcriber != nil {
		stats["transcription"] = h.components.Transcriber.GetStats()
	}
	if h.components.Gate != nil {
		stats["vad"] = h.components.Gate.GetStats()
	}
	if rs, ok := h.components.Recognizer.(recognizerStats); ok {
		stats["recognizer"] = rs.GetStats()
	}

	h.writeJSON(w, http.StatusOK, stats)
}

// vadConfig reports the silence gate settings in effect, which may differ
// from the file once the threshold is changed at runtime
func (h *HTTPServer) vadConfig() map[string]any {
	c := h.config.VAD
	out := map[string]any{
		"enabled":         c.Enabled,
		"threshold":       c.Threshold,
		"window_size":     c.WindowSize,
		"min_voice_ratio": c.MinVoiceRatio,
	}
	if gate := h.components.Gate; gate != nil {
		out["threshold"] = gate.GetThreshold()
		out["window_size"] = gate.GetWindowSize()
	}
	return out
}

// handleVADThreshold changes the silence gate threshold without a restart
func (h *HTTPServer) handleVADThreshold(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	gate := h.components.Gate
	if gate == nil {
		h.writeError(w, http.StatusConflict, "silence gate is disabled")
		return
	}

	var req struct {
		Threshold *float32 `json:"threshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Threshold == nil {
		h.writeError(w, http.StatusBadRequest, "expected {\"threshold\": <0..1>}")
		return
	}

	previous := gate.GetThreshold()
	if err := gate.UpdateThreshold(*req.Threshold); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info("Silence gate threshold updated",
		slog.Float64("previous", float64(previous)),
		slog.Float64("threshold", float64(*req.Threshold)),
	)

	h.writeJSON(w, http.StatusOK, map[string]any{
		"previous":  previous,
		"threshold": gate.GetThreshold(),
	})
}

func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"service": serviceName,
		"version": "1.0.0",
		"endpoints": map[string]string{
			"GET /":                   "API documentation",
			"GET /health":             "Service health check",
			"GET /sessions":           "List all user sessions",
			"GET /sessions/{user_id}": "Get one user session",
			"GET /config":             "Get service configuration",
			"GET /stats":              "Get service statistics",
			"PUT /vad/threshold":      "Change the silence gate threshold",
			"GET /metrics":            "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	})
}
