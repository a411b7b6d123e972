package duel

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Samarth-Pai/hackcrypt-final-sub000/pkg/model"
)

type fakeRewardSink struct {
	calls []rewardCall
	err   error
}

type rewardCall struct {
	winnerID    int64
	xpDelta     int64
	streakDelta int64
}

func (f *fakeRewardSink) ApplyMatchReward(winnerID, xpDelta, streakDelta int64) error {
	f.calls = append(f.calls, rewardCall{winnerID, xpDelta, streakDelta})
	return f.err
}

type fakeMatchRecorder struct {
	records []model.MatchRecord
	err     error
}

func (f *fakeMatchRecorder) RecordMatch(rec model.MatchRecord) error {
	f.records = append(f.records, rec)
	return f.err
}

func TestFinalizeWinner(t *testing.T) {
	t.Parallel()

	rewards := &fakeRewardSink{}
	matches := &fakeMatchRecorder{}
	f := NewFinalizer(rewards, matches, 50)

	res := f.Finalize(&Outcome{
		MatchID:          "m1",
		Players:          [2]int64{1, 2},
		AccuracyByPlayer: map[int64]float64{1: 0.8, 2: 0.6},
	})

	if res.WinnerID == nil || *res.WinnerID != 1 {
		t.Fatalf("winner: want 1 got %v", res.WinnerID)
	}
	if res.WinBonusXP != 50 {
		t.Fatalf("win bonus: want 50 got %d", res.WinBonusXP)
	}

	wantCalls := []rewardCall{{winnerID: 1, xpDelta: 50, streakDelta: 1}}
	if diff := cmp.Diff(wantCalls, rewards.calls, cmp.AllowUnexported(rewardCall{})); diff != "" {
		t.Fatalf("reward calls mismatch (-want +got):\n%s", diff)
	}

	if len(matches.records) != 1 {
		t.Fatalf("match records: want 1 got %d", len(matches.records))
	}
	rec := matches.records[0]
	if rec.WinnerID != 1 || !rec.RewardApplied || rec.AccuracyA != 0.8 || rec.AccuracyB != 0.6 {
		t.Fatalf("unexpected match record: %+v", rec)
	}
}

func TestFinalizeTieAwardsNothing(t *testing.T) {
	t.Parallel()

	rewards := &fakeRewardSink{}
	matches := &fakeMatchRecorder{}
	f := NewFinalizer(rewards, matches, 50)

	res := f.Finalize(&Outcome{
		MatchID:          "m1",
		Players:          [2]int64{1, 2},
		AccuracyByPlayer: map[int64]float64{1: 0.7, 2: 0.7},
	})

	if res.WinnerID != nil {
		t.Fatalf("tie must have nil winner, got %v", *res.WinnerID)
	}
	if res.WinBonusXP != 0 {
		t.Fatalf("tie must award no XP, got %d", res.WinBonusXP)
	}
	if len(rewards.calls) != 0 {
		t.Fatalf("tie must not mutate rewards, got %v", rewards.calls)
	}
	if len(matches.records) != 1 || matches.records[0].WinnerID != 0 {
		t.Fatalf("tie should still be recorded with winner 0: %+v", matches.records)
	}
}

func TestFinalizeRewardFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	rewards := &fakeRewardSink{err: errors.New("store down")}
	matches := &fakeMatchRecorder{}
	f := NewFinalizer(rewards, matches, 50)

	res := f.Finalize(&Outcome{
		MatchID:          "m1",
		Players:          [2]int64{1, 2},
		AccuracyByPlayer: map[int64]float64{1: 0.9, 2: 0.1},
	})

	// The result still names the winner; only persistence failed.
	if res.WinnerID == nil || *res.WinnerID != 1 {
		t.Fatalf("winner: want 1 got %v", res.WinnerID)
	}
	if len(matches.records) != 1 {
		t.Fatalf("match records: want 1 got %d", len(matches.records))
	}
	if matches.records[0].RewardApplied {
		t.Fatalf("record must flag the unapplied reward for reconciliation")
	}
}

func TestFinalizeNilRecorder(t *testing.T) {
	t.Parallel()

	f := NewFinalizer(&fakeRewardSink{}, nil, 50)
	res := f.Finalize(&Outcome{
		MatchID:          "m1",
		Players:          [2]int64{1, 2},
		AccuracyByPlayer: map[int64]float64{1: 0.2, 2: 0.4},
	})
	if res.WinnerID == nil || *res.WinnerID != 2 {
		t.Fatalf("winner: want 2 got %v", res.WinnerID)
	}
}
