package store

import (
	"context"
	"time"

	"github.com/Samarth-Pai/hackcrypt-final-sub000/pkg/model"
)

// DataStore defines the persistence interface for all coordinator entities.
// Implementations include the default SQLite store and an in-memory store
// for testing.
type DataStore interface {
	// Close closes the underlying storage connection.
	Close() error

	// ZeroTime returns the zero time value (used for no-expiry tokens).
	ZeroTime() time.Time

	// ---- Users ----

	// CreateUser creates a new user and returns it with the assigned ID.
	CreateUser(username string) (*model.User, error)

	// GetUserByUsername retrieves a user by username. Returns (nil, nil) if not found.
	GetUserByUsername(username string) (*model.User, error)

	// GetUserByID retrieves a user by ID. Returns (nil, nil) if not found.
	GetUserByID(id int64) (*model.User, error)

	// ListUsers returns all users.
	ListUsers() ([]model.User, error)

	// ApplyMatchReward adds xpDelta and streakDelta to a user's totals.
	ApplyMatchReward(winnerID int64, xpDelta int64, streakDelta int64) error

	// ---- Tokens ----

	// CreateToken stores a new session token (hash only) bound to a user.
	CreateToken(hash string, userID int64, expiresAt time.Time) error

	// GetUserByTokenHash resolves a token hash to its user. Returns
	// (nil, nil) when the token is unknown or expired.
	GetUserByTokenHash(hash string) (*model.User, error)

	// ---- Questions ----

	// CreateQuestion inserts a question into the bank.
	CreateQuestion(q *model.Question) error

	// FetchQuestions returns up to count questions for a subject whose
	// difficulty is closest to the accuracy estimate.
	FetchQuestions(ctx context.Context, subject string, count int, accuracyEstimate float64) ([]model.Question, error)

	// ListQuestions returns the whole question bank.
	ListQuestions() ([]model.Question, error)

	// ---- Matches ----

	// RecordMatch persists a completed match outcome.
	RecordMatch(rec model.MatchRecord) error

	// ListMatches returns the most recent matches, newest first.
	ListMatches(limit int) ([]model.MatchRecord, error)

	// AccuracyEstimate returns a user's mean accuracy over recent matches.
	// ok is false when the user has no match history.
	AccuracyEstimate(userID int64) (estimate float64, ok bool)
}

// Compile-time checks: both implementations satisfy DataStore.
var _ DataStore = (*Store)(nil)
var _ DataStore = (*MemoryStore)(nil)
