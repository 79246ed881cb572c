//
//
package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/autoland/lander/internal/audit"
	"github.com/autoland/lander/internal/auth"
	"github.com/autoland/lander/internal/bus"
	"github.com/autoland/lander/internal/lander"
	"github.com/autoland/lander/internal/logging"
)

// maxEventBody bounds an injected event payload.
const maxEventBody = 64 << 10

// Version is reported by the capabilities endpoint.
const Version = "1.0.0"

const apiV1 = "/api/v1"

// RegisterRoutes registers all v1 endpoints and /metrics.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	s.handle(mux, apiV1+"/health", s.handleHealth)
	s.handle(mux, apiV1+"/capabilities", s.protect(s.handleCapabilities, auth.ScopeRead))
	s.handle(mux, apiV1+"/lander", s.protect(s.handleLander, auth.ScopeRead))
	s.handle(mux, apiV1+"/telemetry", s.protect(s.handleTelemetry, auth.ScopeTelemetry))
	s.handle(mux, apiV1+"/events/{topic}", s.protect(s.handleInject, auth.ScopeInject))

	if s.deps.Collector != nil {
		mux.Handle("/metrics", s.deps.Collector.Handler())
	}
}

// handle registers h under pattern, instrumented when a collector is present.
func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	if s.deps.Collector == nil {
		mux.HandleFunc(pattern, h)
		return
	}
	mux.Handle(pattern, s.deps.Collector.Middleware(pattern, h))
}

// protect wraps h in authentication and scope checks when auth is configured.
func (s *Server) protect(h http.HandlerFunc, scopes ...string) http.HandlerFunc {
	if s.deps.Auth == nil {
		return h
	}
	return s.deps.Auth.RequireAuth(s.deps.Auth.RequireScope(scopes...)(h))
}

func methodAllowed(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
		"Only "+method+" method is allowed", nil)
	return false
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r, http.MethodGet) {
		return
	}

	health := map[string]interface{}{
		"status":  "ok",
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
		"version": Version,
	}
	if s.deps.Status != nil {
		health["state"] = s.deps.Status.Status().State
	}
	WriteSuccess(w, health)
}

// handleCapabilities handles GET /capabilities
func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r, http.MethodGet) {
		return
	}

	WriteSuccess(w, map[string]interface{}{
		"telemetry":     []string{"sse"},
		"inboundTopics": bus.InboundTopics(),
		"commandTopic":  bus.TopicCommand,
		"states":        lander.States(),
		"transitions":   lander.TransitionTable(),
		"version":       Version,
	})
}

// handleLander handles GET /lander
func (s *Server) handleLander(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r, http.MethodGet) {
		return
	}
	if s.deps.Status == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Arbiter not available", nil)
		return
	}
	WriteSuccess(w, s.deps.Status.Status())
}

// handleTelemetry handles GET /telemetry
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r, http.MethodGet) {
		return
	}
	if s.deps.Telemetry == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Telemetry not available", nil)
		return
	}

	if err := s.deps.Telemetry.Subscribe(r.Context(), w, r); err != nil {
		s.log.Warn(r.Context(), "telemetry stream ended", logging.Err(err))
	}
}

// handleInject handles POST /events/{topic}. Only inbound topics are accepted; the
// command topic belongs to the arbiter.
func (s *Server) handleInject(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r, http.MethodPost) {
		return
	}
	if s.deps.Events == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Event bus not available", nil)
		return
	}

	topic := r.PathValue("topic")
	if !bus.IsInbound(topic) {
		WriteAPIError(w, NewAPIError("NOT_FOUND", "Unknown inbound topic", http.StatusNotFound,
			map[string]interface{}{"topic": topic, "allowed": bus.InboundTopics()}))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "BAD_REQUEST", "Payload too large", nil)
			return
		}
		WriteAPIError(w, ErrBadRequest)
		return
	}

	entry := audit.Entry{Action: audit.ActionInject, Params: map[string]any{"topic": topic}}

	payload, err := bus.Decode(topic, body)
	if err == nil {
		err = s.deps.Events.Publish(topic, payload)
	}
	if err != nil {
		s.recordInject(r, entry, err)
		WriteAPIError(w, err)
		return
	}

	entry.Outcome = "accepted"
	s.recordInject(r, entry, nil)
	WriteAccepted(w, map[string]string{"topic": topic})
}

func (s *Server) recordInject(r *http.Request, e audit.Entry, err error) {
	if s.deps.Audit == nil {
		return
	}
	if err != nil {
		s.deps.Audit.RecordError(r.Context(), e, err)
		return
	}
	s.deps.Audit.Record(r.Context(), e)
}
