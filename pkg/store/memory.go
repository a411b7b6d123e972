package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/Samarth-Pai/hackcrypt-final-sub000/pkg/model"
)

// MemoryStore provides an in-memory DataStore implementation for tests.
// It mirrors SQLite behavior for validation and error handling.
type MemoryStore struct {
	mu sync.RWMutex

	now func() time.Time

	nextUserID     int64
	nextQuestionID int64

	usersByID       map[int64]*model.User
	usersByUsername map[string]*model.User
	tokensByHash    map[string]*memoryToken
	questionsByID   map[int64]*model.Question
	matches         []model.MatchRecord
}

type memoryToken struct {
	hash      string
	userID    int64
	expiresAt time.Time
	createdAt time.Time
}

// NewMemory creates a MemoryStore using time.Now().UTC().
func NewMemory() *MemoryStore {
	return NewMemoryWithClock(func() time.Time { return time.Now().UTC() })
}

// NewMemoryWithClock creates a MemoryStore with a custom clock.
func NewMemoryWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{
		now:             now,
		nextUserID:      1,
		nextQuestionID:  1,
		usersByID:       make(map[int64]*model.User),
		usersByUsername: make(map[string]*model.User),
		tokensByHash:    make(map[string]*memoryToken),
		questionsByID:   make(map[int64]*model.Question),
	}
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

// ZeroTime returns the zero time value (used for no-expiry tokens).
func (s *MemoryStore) ZeroTime() time.Time {
	return time.Time{}
}

// ---- Users ----

// CreateUser creates a new user and returns it with the assigned ID.
func (s *MemoryStore) CreateUser(username string) (*model.User, error) {
	if err := model.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByUsername[username]; exists {
		return nil, fmt.Errorf("store: create user: username %q already exists", username)
	}

	u := &model.User{
		ID:        s.nextUserID,
		Username:  username,
		CreatedAt: s.now(),
	}
	s.nextUserID++
	s.usersByID[u.ID] = u
	s.usersByUsername[u.Username] = u
	return copyUser(u), nil
}

// GetUserByUsername retrieves a user by username.
func (s *MemoryStore) GetUserByUsername(username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyUser(s.usersByUsername[username]), nil
}

// GetUserByID retrieves a user by ID.
func (s *MemoryStore) GetUserByID(id int64) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyUser(s.usersByID[id]), nil
}

// ListUsers returns all users ordered by ID.
func (s *MemoryStore) ListUsers() ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]model.User, 0, len(s.usersByID))
	for _, u := range s.usersByID {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// ApplyMatchReward adds xpDelta and streakDelta to a user's totals.
func (s *MemoryStore) ApplyMatchReward(winnerID int64, xpDelta int64, streakDelta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.usersByID[winnerID]
	if !ok {
		return fmt.Errorf("store: apply reward: user %d not found", winnerID)
	}
	u.XP += xpDelta
	u.Streak += streakDelta
	return nil
}

// ---- Tokens ----

// CreateToken stores a new session token (hash only) bound to a user.
func (s *MemoryStore) CreateToken(hash string, userID int64, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tokensByHash[hash]; exists {
		return fmt.Errorf("store: create token: hash already exists")
	}
	s.tokensByHash[hash] = &memoryToken{
		hash:      hash,
		userID:    userID,
		expiresAt: expiresAt,
		createdAt: s.now(),
	}
	return nil
}

// GetUserByTokenHash resolves a token hash to its user. Unknown and expired
// tokens both return (nil, nil).
func (s *MemoryStore) GetUserByTokenHash(hash string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.tokensByHash[hash]
	if !ok {
		return nil, nil
	}
	if !tok.expiresAt.IsZero() && s.now().After(tok.expiresAt) {
		return nil, nil
	}
	return copyUser(s.usersByID[tok.userID]), nil
}

// ---- Questions ----

// CreateQuestion inserts a question into the bank.
func (s *MemoryStore) CreateQuestion(q *model.Question) error {
	if err := q.Validate(); err != nil {
		return fmt.Errorf("store: create question: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *q
	stored.ID = s.nextQuestionID
	stored.Options = append([]string(nil), q.Options...)
	stored.CreatedAt = s.now()
	s.nextQuestionID++
	s.questionsByID[stored.ID] = &stored
	q.ID = stored.ID
	q.CreatedAt = stored.CreatedAt
	return nil
}

// FetchQuestions returns up to count questions for a subject, preferring
// those whose difficulty is closest to the accuracy estimate.
func (s *MemoryStore) FetchQuestions(ctx context.Context, subject string, count int, accuracyEstimate float64) ([]model.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("store: fetch questions: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var candidates []model.Question
	for _, q := range s.questionsByID {
		if q.Subject == subject {
			candidates = append(candidates, *q)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		di := math.Abs(candidates[i].Difficulty - accuracyEstimate)
		dj := math.Abs(candidates[j].Difficulty - accuracyEstimate)
		if di != dj {
			return di < dj
		}
		return candidates[i].ID < candidates[j].ID
	})
	if len(candidates) > count {
		candidates = candidates[:count]
	}
	return candidates, nil
}

// ListQuestions returns the whole question bank ordered by subject, then ID.
func (s *MemoryStore) ListQuestions() ([]model.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	questions := make([]model.Question, 0, len(s.questionsByID))
	for _, q := range s.questionsByID {
		questions = append(questions, *q)
	}
	sort.Slice(questions, func(i, j int) bool {
		if questions[i].Subject != questions[j].Subject {
			return questions[i].Subject < questions[j].Subject
		}
		return questions[i].ID < questions[j].ID
	})
	return questions, nil
}

// ---- Matches ----

// RecordMatch persists a completed match outcome.
func (s *MemoryStore) RecordMatch(rec model.MatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.matches {
		if existing.MatchID == rec.MatchID {
			return fmt.Errorf("store: record match: match %s already recorded", rec.MatchID)
		}
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	s.matches = append(s.matches, rec)
	return nil
}

// ListMatches returns the most recent matches, newest first.
func (s *MemoryStore) ListMatches(limit int) ([]model.MatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var records []model.MatchRecord
	for i := len(s.matches) - 1; i >= 0 && len(records) < limit; i-- {
		records = append(records, s.matches[i])
	}
	return records, nil
}

// AccuracyEstimate returns a user's mean accuracy over their most recent
// matches. ok is false when the user has no match history.
func (s *MemoryStore) AccuracyEstimate(userID int64) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum float64
	var n int
	for i := len(s.matches) - 1; i >= 0 && n < accuracyEstimateWindow; i-- {
		rec := s.matches[i]
		switch userID {
		case rec.PlayerA:
			sum += rec.AccuracyA
			n++
		case rec.PlayerB:
			sum += rec.AccuracyB
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func copyUser(u *model.User) *model.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
