package duel

import (
	"sync"
	"time"

	"github.com/Samarth-Pai/hackcrypt-final-sub000/pkg/model"
	"github.com/Samarth-Pai/hackcrypt-final-sub000/pkg/protocol"
)

// State is a duel session's lifecycle state.
type State int

const (
	StateInProgress State = iota // accepting progress and finish reports
	StateCompleted               // both players finished, result computed
	StateAbandoned               // a player disconnected mid-match, no reward
)

func (s State) String() string {
	switch s {
	case StateInProgress:
		return "in_progress"
	case StateCompleted:
		return "completed"
	case StateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Session is the authoritative state machine for one paired match. All
// mutable fields are guarded by mu; concurrent reports from the two players
// are the expected common case.
type Session struct {
	matchID   string
	players   [2]int64
	questions []model.Question
	createdAt time.Time

	mu       sync.Mutex
	state    State
	closed   bool
	progress map[int64]float64
	accuracy map[int64]float64
	finished map[int64]bool
	answers  map[int64][]protocol.AnswerLogEntry
}

// Outcome is the immutable snapshot handed to the finalizer when both
// players have finished.
type Outcome struct {
	MatchID          string
	Players          [2]int64
	AccuracyByPlayer map[int64]float64
	AnswersByPlayer  map[int64][]protocol.AnswerLogEntry
}

// NewSession creates a session for two distinct players over an immutable
// question list. The session starts accepting reports immediately.
func NewSession(matchID string, players [2]int64, questions []model.Question) *Session {
	s := &Session{
		matchID:   matchID,
		players:   players,
		questions: questions,
		createdAt: time.Now(),
		state:     StateInProgress,
		progress:  make(map[int64]float64, 2),
		accuracy:  make(map[int64]float64, 2),
		finished:  make(map[int64]bool, 2),
		answers:   make(map[int64][]protocol.AnswerLogEntry, 2),
	}
	s.progress[players[0]] = 0
	s.progress[players[1]] = 0
	return s
}

// MatchID returns the session's unique match identifier.
func (s *Session) MatchID() string { return s.matchID }

// Players returns both player IDs in pairing order.
func (s *Session) Players() [2]int64 { return s.players }

// Questions returns the session's immutable question list.
func (s *Session) Questions() []model.Question { return s.questions }

// HasPlayer reports whether userID is one of the session's two players.
func (s *Session) HasPlayer(userID int64) bool {
	return s.players[0] == userID || s.players[1] == userID
}

// Opponent returns the other player's ID. The caller must ensure userID is
// a session player.
func (s *Session) Opponent(userID int64) int64 {
	if s.players[0] == userID {
		return s.players[1]
	}
	return s.players[0]
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Progress returns a player's stored progress fraction.
func (s *Session) Progress(userID int64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress[userID]
}

// ReportProgress records a player's progress fraction, clamped to [0,1].
// Stored progress is monotonically non-decreasing; a later report with a
// lower value leaves the stored value unchanged. Returns the stored value
// and whether the report was accepted (i.e. the session is still live and
// userID is a player).
func (s *Session) ReportProgress(userID int64, fraction float64) (stored float64, ok bool) {
	if !s.HasPlayer(userID) {
		return 0, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.progress[userID], false
	}

	fraction = clamp01(fraction)
	if fraction > s.progress[userID] {
		s.progress[userID] = fraction
	}
	return s.progress[userID], true
}

// RecordAnswer appends an entry to a player's answer log. The log is capped
// at the question count; extra reports are dropped.
func (s *Session) RecordAnswer(userID int64, entry protocol.AnswerLogEntry) {
	if !s.HasPlayer(userID) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.answers[userID]) >= len(s.questions) {
		return
	}
	s.answers[userID] = append(s.answers[userID], entry)
}

// ReportFinish records a player's final accuracy (clamped to [0,1]) exactly
// once; a duplicate finish from the same player is a no-op and keeps the
// first value. When the second player finishes, the session transitions to
// Completed and onComplete is invoked with the outcome snapshot before the
// session lock is released, guaranteeing the result is computed exactly
// once. Returns whether this report completed the session.
func (s *Session) ReportFinish(userID int64, accuracy float64, onComplete func(*Outcome)) (completed bool, accepted bool) {
	if !s.HasPlayer(userID) {
		return false, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.finished[userID] {
		return false, false
	}

	s.accuracy[userID] = clamp01(accuracy)
	s.finished[userID] = true
	s.progress[userID] = 1

	if len(s.finished) < 2 {
		return false, true
	}

	s.state = StateCompleted
	s.closed = true
	if onComplete != nil {
		onComplete(s.outcomeLocked())
	}
	return true, true
}

// Abandon marks the session Abandoned. It is terminal: no reward is issued
// and no late reconnect can resurrect the match. Returns false if the
// session already reached a terminal state.
func (s *Session) Abandon() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.state = StateAbandoned
	s.closed = true
	return true
}

// outcomeLocked builds the finalizer snapshot. Caller must hold mu.
func (s *Session) outcomeLocked() *Outcome {
	acc := make(map[int64]float64, 2)
	for id, a := range s.accuracy {
		acc[id] = a
	}
	ans := make(map[int64][]protocol.AnswerLogEntry, 2)
	for id, log := range s.answers {
		ans[id] = append([]protocol.AnswerLogEntry(nil), log...)
	}
	return &Outcome{
		MatchID:          s.matchID,
		Players:          s.players,
		AccuracyByPlayer: acc,
		AnswersByPlayer:  ans,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
