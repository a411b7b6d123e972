// Package duel implements the real-time duel matchmaking and session
// coordinator: the queue that pairs waiting users, the per-match session
// state machines, the registry of active sessions, and result finalization.
package duel

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Samarth-Pai/hackcrypt-final-sub000/pkg/model"
	"github.com/Samarth-Pai/hackcrypt-final-sub000/pkg/protocol"
)

var ErrUnknownMatch = errors.New("duel: unknown match")
var ErrNotInMatch = errors.New("duel: user is not a player in this match")

// QuestionSource supplies the ordered question list for a new duel.
type QuestionSource interface {
	FetchQuestions(ctx context.Context, subject string, count int, accuracyEstimate float64) ([]model.Question, error)
}

// AccuracyEstimator supplies a player's historical accuracy, when known.
type AccuracyEstimator interface {
	AccuracyEstimate(userID int64) (estimate float64, ok bool)
}

// Notifier delivers outbound events to a user's connection. Delivery is
// fire-and-forget: a dropped ghost update is cosmetic, and the gateway
// retries the terminal result broadcast on its own.
type Notifier interface {
	Notify(userID int64, ev *protocol.Event)
}

// Presence reports whether a user currently has a live connection. Used to
// tolerate brief reconnects before abandoning a match.
type Presence interface {
	IsOnline(userID int64) bool
}

// Stats receives match lifecycle notifications for metrics.
type Stats interface {
	MatchStarted()
	MatchCompleted(tie bool)
	MatchAbandoned()
	FetchFailed()
}

// noopStats is used when no Stats collaborator is supplied.
type noopStats struct{}

func (noopStats) MatchStarted()       {}
func (noopStats) MatchCompleted(bool) {}
func (noopStats) MatchAbandoned()     {}
func (noopStats) FetchFailed()        {}

// Config holds coordinator tunables.
type Config struct {
	Subject         string        // subject for question selection
	QuestionCount   int           // questions per duel
	DefaultAccuracy float64       // accuracy estimate when no history exists
	WinBonusXP      int64         // fixed XP bonus for the winner
	FetchTimeout    time.Duration // bound on the synchronous question fetch
	AbandonGrace    time.Duration // grace period before a disconnect abandons a match
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Subject:         "general",
		QuestionCount:   5,
		DefaultAccuracy: 0.65,
		WinBonusXP:      50,
		FetchTimeout:    5 * time.Second,
		AbandonGrace:    15 * time.Second,
	}
}

// Dependencies holds the coordinator's external collaborators.
// Questions, Rewards, and Notifier are required; Matches, Estimator, and
// Presence may be nil.
type Dependencies struct {
	Questions QuestionSource
	Rewards   RewardSink
	Matches   MatchRecorder
	Estimator AccuracyEstimator
	Notifier  Notifier
	Presence  Presence
	Stats     Stats
}

// Coordinator owns the matchmaking queue, the session registry, and the
// finalizer. It is constructor-injected rather than process-global so tests
// can instantiate isolated instances.
type Coordinator struct {
	cfg       Config
	queue     *Queue
	registry  *Registry
	finalizer *Finalizer
	questions QuestionSource
	estimator AccuracyEstimator
	notifier  Notifier
	presence  Presence
	stats     Stats
}

// NewCoordinator creates a coordinator from config and collaborators.
func NewCoordinator(cfg Config, deps Dependencies) *Coordinator {
	stats := deps.Stats
	if stats == nil {
		stats = noopStats{}
	}
	return &Coordinator{
		cfg:       cfg,
		queue:     NewQueue(),
		registry:  NewRegistry(),
		finalizer: NewFinalizer(deps.Rewards, deps.Matches, cfg.WinBonusXP),
		questions: deps.Questions,
		estimator: deps.Estimator,
		notifier:  deps.Notifier,
		presence:  deps.Presence,
		stats:     stats,
	}
}

// Queue returns the matchmaking queue.
func (c *Coordinator) Queue() *Queue { return c.queue }

// Registry returns the session registry.
func (c *Coordinator) Registry() *Registry { return c.registry }

// JoinQueue enqueues a user. If the join completes a pair, the match is
// created synchronously: the question fetch runs with a bounded timeout in
// the caller's goroutine before match_found is sent.
func (c *Coordinator) JoinQueue(userID int64) {
	pair, paired := c.queue.Join(userID)
	if !paired {
		slog.Debug("user queued", "user", userID, "queue_len", c.queue.Len())
		return
	}
	c.startMatch(pair)
}

// CancelQueue removes a user from the queue if present.
func (c *Coordinator) CancelQueue(userID int64) {
	if c.queue.Cancel(userID) {
		slog.Debug("user left queue", "user", userID)
	}
}

// startMatch fetches questions and creates a registered session for a pair.
// On fetch failure or timeout both players are told to retry; no half-formed
// session is left in the registry.
func (c *Coordinator) startMatch(pair [2]int64) {
	estimate := c.accuracyEstimate(pair)

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.FetchTimeout)
	defer cancel()

	questions, err := c.questions.FetchQuestions(ctx, c.cfg.Subject, c.cfg.QuestionCount, estimate)
	if err == nil && len(questions) == 0 {
		err = errors.New("duel: no questions available")
	}
	if err != nil {
		c.stats.FetchFailed()
		slog.Warn("question fetch failed, aborting pairing",
			"players", pair, "err", err)
		retry := &protocol.Event{QueueRetry: &protocol.QueueRetryEvent{
			Reason: "question fetch failed, please rejoin the queue",
		}}
		c.notifier.Notify(pair[0], retry)
		c.notifier.Notify(pair[1], retry)
		return
	}

	matchID := uuid.NewString()
	session := NewSession(matchID, pair, questions)
	c.registry.Register(session)

	found := &protocol.Event{MatchFound: &protocol.MatchFoundEvent{
		MatchID:   matchID,
		Players:   []int64{pair[0], pair[1]},
		Questions: clientQuestions(questions),
	}}
	c.notifier.Notify(pair[0], found)
	c.notifier.Notify(pair[1], found)

	c.stats.MatchStarted()
	slog.Info("match started", "match", matchID,
		"player_a", pair[0], "player_b", pair[1], "questions", len(questions))

	// A disconnect that lands during the question fetch finds neither a
	// queue entry nor a registered session, so its Disconnect call armed no
	// grace timer. Re-check presence now that the session is registered and
	// arm the timer for anyone already gone.
	if c.presence != nil {
		for _, id := range pair {
			if !c.presence.IsOnline(id) {
				c.scheduleAbandon(session, id)
			}
		}
	}
}

// accuracyEstimate averages the known historical accuracies of the pair,
// falling back to the configured default when neither has history.
func (c *Coordinator) accuracyEstimate(pair [2]int64) float64 {
	if c.estimator == nil {
		return c.cfg.DefaultAccuracy
	}
	var sum float64
	var n int
	for _, id := range pair {
		if est, ok := c.estimator.AccuracyEstimate(id); ok {
			sum += est
			n++
		}
	}
	if n == 0 {
		return c.cfg.DefaultAccuracy
	}
	return sum / float64(n)
}

// HandleAnswer processes an inbound answer event: records the answer log
// entry, applies the monotonic progress update, and relays the new fraction
// to the opponent only.
func (c *Coordinator) HandleAnswer(userID int64, ev *protocol.AnswerEvent) error {
	session := c.registry.Get(ev.MatchID)
	if session == nil {
		return ErrUnknownMatch
	}
	if !session.HasPlayer(userID) {
		return ErrNotInMatch
	}

	session.RecordAnswer(userID, protocol.AnswerLogEntry{
		QuestionID:     ev.QuestionID,
		SelectedOption: ev.SelectedOption,
	})

	stored, ok := session.ReportProgress(userID, ev.Progress)
	if !ok {
		return nil // session reached a terminal state concurrently
	}

	c.notifier.Notify(session.Opponent(userID), &protocol.Event{
		GhostProgress: &protocol.GhostProgressEvent{
			MatchID:    ev.MatchID,
			FromPlayer: userID,
			Progress:   stored,
		},
	})
	return nil
}

// HandleFinish processes an inbound finish event. When it is the second
// finish, the finalizer runs and the result is broadcast to both players
// before the session lock is released; the session is evicted atomically
// with that computation. A duplicate finish is silently ignored.
func (c *Coordinator) HandleFinish(userID int64, ev *protocol.FinishEvent) error {
	session := c.registry.Get(ev.MatchID)
	if session == nil {
		return ErrUnknownMatch
	}
	if !session.HasPlayer(userID) {
		return ErrNotInMatch
	}

	completed, accepted := session.ReportFinish(userID, ev.Accuracy, func(o *Outcome) {
		result := c.finalizer.Finalize(o)
		c.registry.Evict(o.MatchID)

		event := &protocol.Event{MatchResult: &protocol.MatchResultEvent{
			MatchID:          result.MatchID,
			WinnerID:         result.WinnerID,
			AccuracyByPlayer: result.AccuracyByPlayer,
			WinBonusXP:       result.WinBonusXP,
			AnswersByPlayer:  result.AnswersByPlayer,
		}}
		c.notifier.Notify(o.Players[0], event)
		c.notifier.Notify(o.Players[1], event)

		c.stats.MatchCompleted(result.WinnerID == nil)
		if result.WinnerID != nil {
			slog.Info("match completed", "match", o.MatchID, "winner", *result.WinnerID)
		} else {
			slog.Info("match completed in a tie", "match", o.MatchID)
		}
	})

	if !accepted {
		slog.Debug("duplicate or late finish ignored", "match", ev.MatchID, "user", userID)
	} else if !completed {
		slog.Debug("first finish recorded", "match", ev.MatchID, "user", userID)
	}
	return nil
}

// Disconnect handles a user losing their connection: any queue entry is
// removed immediately, and each in-progress match the user is part of is
// abandoned after the grace period unless the user reconnects.
func (c *Coordinator) Disconnect(userID int64) {
	c.queue.Cancel(userID)

	for _, session := range c.registry.ByPlayer(userID) {
		if session.State() != StateInProgress {
			continue
		}
		c.scheduleAbandon(session, userID)
	}
}

// scheduleAbandon arms the grace timer for a disconnected player. The
// session is abandoned when the timer fires unless the player is back
// online by then.
func (c *Coordinator) scheduleAbandon(session *Session, userID int64) {
	time.AfterFunc(c.cfg.AbandonGrace, func() {
		if c.presence != nil && c.presence.IsOnline(userID) {
			return // reconnected within the grace period
		}
		c.abandon(session)
	})
}

// abandon marks a session abandoned, evicts it, and notifies the remaining
// player. No reward is issued and no retry is attempted.
func (c *Coordinator) abandon(session *Session) {
	if !session.Abandon() {
		return // already completed or abandoned
	}
	c.registry.Evict(session.MatchID())

	event := &protocol.Event{MatchAbandoned: &protocol.MatchAbandonedEvent{
		MatchID: session.MatchID(),
	}}
	players := session.Players()
	c.notifier.Notify(players[0], event)
	c.notifier.Notify(players[1], event)

	c.stats.MatchAbandoned()
	slog.Info("match abandoned", "match", session.MatchID())
}

func clientQuestions(questions []model.Question) []protocol.QuestionInfo {
	infos := make([]protocol.QuestionInfo, len(questions))
	for i, q := range questions {
		infos[i] = protocol.QuestionInfo{
			ID:      q.ID,
			Subject: q.Subject,
			Prompt:  q.Prompt,
			Options: q.Options,
		}
	}
	return infos
}
