package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/cwhealth/policy-qa/internal/core/domain"
	"github.com/cwhealth/policy-qa/internal/core/ports"
)

type Options struct {
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
	QueueWait      time.Duration
	MetricsHandler http.Handler
}

type Router struct {
	answerer ports.PolicyAnswerer
	breakers ports.BreakerReporter
	opts     Options
}

func NewRouter(answerer ports.PolicyAnswerer, breakers ports.BreakerReporter, opts Options) *Router {
	return &Router{
		answerer: answerer,
		breakers: breakers,
		opts:     opts,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/answer", rt.answer)
	mux.HandleFunc("/v1/diagnostics/breakers", rt.breakerDiagnostics)
	if rt.opts.MetricsHandler != nil {
		mux.Handle("/metrics", rt.opts.MetricsHandler)
	}

	var handler http.Handler = mux
	if rt.opts.MaxInFlight > 0 {
		handler = backpressureMiddleware(handler, rt.opts.MaxInFlight, rt.opts.QueueWait)
	}
	if rt.opts.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) answer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Question string `json:"question"`
		Filter   struct {
			AppliesTo string `json:"applies_to"`
		} `json:"filter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	result, err := rt.answerer.Answer(r.Context(), req.Question, domain.SearchFilter{
		AppliesTo: req.Filter.AppliesTo,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) breakerDiagnostics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	snapshots := []domain.BreakerSnapshot{}
	if rt.breakers != nil {
		snapshots = rt.breakers.Snapshots()
	}
	writeJSON(w, http.StatusOK, map[string]any{"breakers": snapshots})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
