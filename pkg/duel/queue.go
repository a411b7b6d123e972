package duel

import (
	"sync"
	"time"
)

// queueEntry is one user waiting for an opponent.
type queueEntry struct {
	userID   int64
	joinedAt time.Time
}

// Queue is the FIFO matchmaking queue. A single mutex is the only mutation
// point, so insertion order is total and two concurrent joins can never both
// observe size==1 and pair independently.
type Queue struct {
	mu      sync.Mutex
	entries []queueEntry
	queued  map[int64]bool // membership set for idempotent joins
}

// NewQueue creates an empty matchmaking queue.
func NewQueue() *Queue {
	return &Queue{
		queued: make(map[int64]bool),
	}
}

// Join adds a user to the queue. A second join from an already-queued user
// is a no-op. If the join brings the queue to two or more entries, the two
// longest-waiting users are removed and returned as a pair.
func (q *Queue) Join(userID int64) (pair [2]int64, paired bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.queued[userID] {
		q.queued[userID] = true
		q.entries = append(q.entries, queueEntry{userID: userID, joinedAt: time.Now()})
	}

	if len(q.entries) < 2 {
		return pair, false
	}

	a, b := q.entries[0], q.entries[1]
	q.entries = q.entries[2:]
	delete(q.queued, a.userID)
	delete(q.queued, b.userID)
	return [2]int64{a.userID, b.userID}, true
}

// Cancel removes a user from the queue if present. A cancel for a non-queued
// user is silently ignored.
func (q *Queue) Cancel(userID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.queued[userID] {
		return false
	}
	delete(q.queued, userID)
	for i, e := range q.entries {
		if e.userID == userID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports whether a user is currently queued.
func (q *Queue) Contains(userID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queued[userID]
}

// Len returns the number of waiting users.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
