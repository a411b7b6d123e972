package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// StartMetricsHTTP starts a lightweight HTTP server that exposes /metrics
// in Prometheus text exposition format. It runs in the background and
// shuts down when the server context is cancelled.
//
// Bind address is :9702 by default — configurable via Config.MetricsAddr.
func (s *Server) StartMetricsHTTP() {
	addr := s.cfg.MetricsAddr
	if addr == "" {
		return // metrics endpoint disabled
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics HTTP listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics HTTP error", "err", err)
		}
	}()

	go func() {
		<-s.ctx.Done()
		_ = srv.Close()
	}()
}

// handleMetrics writes all metrics in Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := s.metrics
	uptime := time.Since(m.startTime).Seconds()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Helper for gauge/counter lines.
	// Write errors to http.ResponseWriter are non-actionable; suppress errcheck.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}
	writeFloat := func(name, help, mtype string, value float64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %f\n", name, value)
	}

	writeFloat("duel_uptime_seconds", "Server uptime in seconds.", "gauge", uptime)

	write("duel_connections_active", "Current active websocket connections.", "gauge",
		m.ActiveConnections.Load())
	write("duel_connections_total", "Lifetime websocket connections accepted.", "counter",
		m.TotalConnections.Load())
	write("duel_disconnects_total", "Total client disconnects.", "counter",
		m.TotalDisconnects.Load())

	write("duel_auth_success_total", "Successful authentication attempts.", "counter",
		m.SuccessfulAuths.Load())
	write("duel_auth_failed_total", "Failed authentication attempts.", "counter",
		m.FailedAuths.Load())

	write("duel_queue_joins_total", "Queue join requests accepted.", "counter",
		m.QueueJoins.Load())
	write("duel_queue_cancels_total", "Queue cancel requests processed.", "counter",
		m.QueueCancels.Load())

	write("duel_matches_started_total", "Duel sessions created.", "counter",
		m.MatchesStarted.Load())
	write("duel_matches_completed_total", "Duel sessions finished by both players.", "counter",
		m.MatchesCompleted.Load())
	write("duel_matches_tied_total", "Completed sessions with equal accuracy.", "counter",
		m.TiedMatches.Load())
	write("duel_matches_abandoned_total", "Sessions terminated by the disconnect grace timer.", "counter",
		m.MatchesAbandoned.Load())
	write("duel_fetch_failures_total", "Question fetches that timed out or errored.", "counter",
		m.FetchFailures.Load())

	write("duel_answers_relayed_total", "Answer events relayed as ghost progress.", "counter",
		m.AnswersRelayed.Load())
	write("duel_finishes_accepted_total", "Finish events accepted by a session.", "counter",
		m.FinishesAccepted.Load())
	write("duel_events_dropped_total", "Events dropped on a full client send buffer.", "counter",
		m.EventsDropped.Load())
	write("duel_events_rejected_total", "Events rejected by the gateway.", "counter",
		m.EventsRejected.Load())
}
