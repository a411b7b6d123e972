package server

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks server runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Connection counters
	TotalConnections  atomic.Int64 // lifetime websocket connections accepted
	ActiveConnections atomic.Int64 // current active websocket connections
	FailedAuths       atomic.Int64 // failed authentication attempts
	SuccessfulAuths   atomic.Int64 // successful authentication attempts
	TotalDisconnects  atomic.Int64 // total client disconnects (clean + unclean)

	// Queue counters
	QueueJoins   atomic.Int64 // join_queue requests accepted
	QueueCancels atomic.Int64 // cancel_queue requests processed

	// Match counters
	MatchesStarted   atomic.Int64 // sessions created after a successful pairing
	MatchesCompleted atomic.Int64 // sessions finished by both players
	TiedMatches      atomic.Int64 // completed sessions with equal accuracy
	MatchesAbandoned atomic.Int64 // sessions terminated by the disconnect grace timer
	FetchFailures    atomic.Int64 // question fetches that timed out or errored

	// Event counters
	AnswersRelayed   atomic.Int64 // answer events relayed as ghost progress
	FinishesAccepted atomic.Int64 // finish events accepted by a session
	EventsDropped    atomic.Int64 // events dropped on a full client send buffer
	EventsRejected   atomic.Int64 // events rejected (unknown match, bad payload)
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// MatchStarted records a newly created duel session.
func (m *Metrics) MatchStarted() { m.MatchesStarted.Add(1) }

// MatchCompleted records a session finished by both players.
func (m *Metrics) MatchCompleted(tie bool) {
	m.MatchesCompleted.Add(1)
	if tie {
		m.TiedMatches.Add(1)
	}
}

// MatchAbandoned records a session terminated by the grace timer.
func (m *Metrics) MatchAbandoned() { m.MatchesAbandoned.Add(1) }

// FetchFailed records a failed question fetch.
func (m *Metrics) FetchFailed() { m.FetchFailures.Add(1) }

// Snapshot returns a point-in-time view of all metrics as a serializable struct.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
	SuccessfulAuths   int64 `json:"successful_auths"`
	FailedAuths       int64 `json:"failed_auths"`
	TotalDisconnects  int64 `json:"total_disconnects"`

	QueueJoins   int64 `json:"queue_joins"`
	QueueCancels int64 `json:"queue_cancels"`

	MatchesStarted   int64 `json:"matches_started"`
	MatchesCompleted int64 `json:"matches_completed"`
	TiedMatches      int64 `json:"tied_matches"`
	MatchesAbandoned int64 `json:"matches_abandoned"`
	FetchFailures    int64 `json:"fetch_failures"`

	AnswersRelayed   int64 `json:"answers_relayed"`
	FinishesAccepted int64 `json:"finishes_accepted"`
	EventsDropped    int64 `json:"events_dropped"`
	EventsRejected   int64 `json:"events_rejected"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:            uptime.Truncate(time.Second).String(),
		UptimeSeconds:     int64(uptime.Seconds()),
		ActiveConnections: m.ActiveConnections.Load(),
		TotalConnections:  m.TotalConnections.Load(),
		SuccessfulAuths:   m.SuccessfulAuths.Load(),
		FailedAuths:       m.FailedAuths.Load(),
		TotalDisconnects:  m.TotalDisconnects.Load(),
		QueueJoins:        m.QueueJoins.Load(),
		QueueCancels:      m.QueueCancels.Load(),
		MatchesStarted:    m.MatchesStarted.Load(),
		MatchesCompleted:  m.MatchesCompleted.Load(),
		TiedMatches:       m.TiedMatches.Load(),
		MatchesAbandoned:  m.MatchesAbandoned.Load(),
		FetchFailures:     m.FetchFailures.Load(),
		AnswersRelayed:    m.AnswersRelayed.Load(),
		FinishesAccepted:  m.FinishesAccepted.Load(),
		EventsDropped:     m.EventsDropped.Load(),
		EventsRejected:    m.EventsRejected.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"connections", s.ActiveConnections,
		"total_connections", s.TotalConnections,
		"queue_joins", s.QueueJoins,
		"matches_started", s.MatchesStarted,
		"matches_completed", s.MatchesCompleted,
		"matches_abandoned", s.MatchesAbandoned,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}
