package duel

import (
	"log/slog"
	"time"

	"github.com/Samarth-Pai/hackcrypt-final-sub000/pkg/model"
	"github.com/Samarth-Pai/hackcrypt-final-sub000/pkg/protocol"
)

// RewardSink persists reward mutations to the external user store.
type RewardSink interface {
	ApplyMatchReward(winnerID int64, xpDelta int64, streakDelta int64) error
}

// MatchRecorder persists completed match outcomes for out-of-band
// reconciliation of failed reward mutations.
type MatchRecorder interface {
	RecordMatch(rec model.MatchRecord) error
}

// MatchResult is the computed outcome of a completed duel.
type MatchResult struct {
	MatchID          string
	WinnerID         *int64 // nil = tie
	AccuracyByPlayer map[int64]float64
	WinBonusXP       int64
	AnswersByPlayer  map[int64][]protocol.AnswerLogEntry
}

// Finalizer computes the winner of a completed session and issues the
// reward mutation. It performs no idempotency check of its own: the session
// state machine guarantees it is called at most once per session.
type Finalizer struct {
	rewards RewardSink
	matches MatchRecorder
	bonusXP int64
}

// NewFinalizer creates a finalizer. matches may be nil to skip history.
func NewFinalizer(rewards RewardSink, matches MatchRecorder, bonusXP int64) *Finalizer {
	return &Finalizer{rewards: rewards, matches: matches, bonusXP: bonusXP}
}

// Finalize compares the two players' accuracies and returns the result.
// Strictly greater accuracy wins; equal accuracy is a tie with no reward.
// A failed reward mutation is logged and recorded, never fatal: the duel
// outcome does not depend on reward persistence succeeding.
func (f *Finalizer) Finalize(o *Outcome) MatchResult {
	a, b := o.Players[0], o.Players[1]
	accA, accB := o.AccuracyByPlayer[a], o.AccuracyByPlayer[b]

	res := MatchResult{
		MatchID:          o.MatchID,
		AccuracyByPlayer: o.AccuracyByPlayer,
		AnswersByPlayer:  o.AnswersByPlayer,
	}

	switch {
	case accA > accB:
		res.WinnerID = &a
	case accB > accA:
		res.WinnerID = &b
	}

	rewardApplied := false
	if res.WinnerID != nil {
		res.WinBonusXP = f.bonusXP
		if err := f.rewards.ApplyMatchReward(*res.WinnerID, f.bonusXP, 1); err != nil {
			slog.Error("reward mutation failed, leaving for reconciliation",
				"match", o.MatchID, "winner", *res.WinnerID, "err", err)
		} else {
			rewardApplied = true
		}
	}

	if f.matches != nil {
		var winnerID int64
		if res.WinnerID != nil {
			winnerID = *res.WinnerID
		}
		rec := model.MatchRecord{
			MatchID:       o.MatchID,
			PlayerA:       a,
			PlayerB:       b,
			AccuracyA:     accA,
			AccuracyB:     accB,
			WinnerID:      winnerID,
			WinBonusXP:    res.WinBonusXP,
			RewardApplied: rewardApplied || res.WinnerID == nil,
			CreatedAt:     time.Now().UTC(),
		}
		if err := f.matches.RecordMatch(rec); err != nil {
			slog.Error("failed to record match history", "match", o.MatchID, "err", err)
		}
	}

	return res
}
