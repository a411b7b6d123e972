// Package store provides SQLite-backed persistence for users, session
// tokens, the question bank, and match history.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Samarth-Pai/hackcrypt-final-sub000/pkg/model"
)

const dbTimeLayout = "2006-01-02 15:04:05"

// accuracyEstimateWindow bounds how many recent matches feed the estimate.
const accuracyEstimateWindow = 10

// Store provides database access for all coordinator entities.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}

	ctx := context.Background()

	// Enable WAL mode for better concurrent read performance
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: enable FK: %w", err)
	}
	// Set busy timeout to avoid "database is locked" under concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set busy_timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ZeroTime returns the zero time value (used for no-expiry tokens).
func (s *Store) ZeroTime() time.Time {
	return time.Time{}
}

func (s *Store) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		username   TEXT    NOT NULL UNIQUE CHECK(length(username) > 0 AND length(username) <= 32),
		xp         INTEGER NOT NULL DEFAULT 0,
		streak     INTEGER NOT NULL DEFAULT 0,
		created_at TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS tokens (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		hash       TEXT    NOT NULL UNIQUE,
		user_id    INTEGER NOT NULL,
		expires_at TEXT,
		created_at TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS questions (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		subject       TEXT    NOT NULL DEFAULT 'general',
		prompt        TEXT    NOT NULL,
		options       TEXT    NOT NULL,
		correct_index INTEGER NOT NULL DEFAULT 0,
		difficulty    REAL    NOT NULL DEFAULT 0.5,
		created_at    TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS matches (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		match_id       TEXT    NOT NULL UNIQUE,
		player_a       INTEGER NOT NULL,
		player_b       INTEGER NOT NULL,
		accuracy_a     REAL    NOT NULL,
		accuracy_b     REAL    NOT NULL,
		winner_id      INTEGER NOT NULL DEFAULT 0,
		win_bonus_xp   INTEGER NOT NULL DEFAULT 0,
		reward_applied INTEGER NOT NULL DEFAULT 0,
		created_at     TEXT    NOT NULL DEFAULT (datetime('now'))
	);
	`
	ctx := context.Background()
	if err := s.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := s.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version      int
		statements   []string
		ignoreErrors bool
	}{
		{
			version:    1,
			statements: []string{schema},
		},
		{
			version: 2,
			statements: []string{
				"CREATE INDEX IF NOT EXISTS idx_questions_subject ON questions(subject)",
				"CREATE INDEX IF NOT EXISTS idx_matches_players ON matches(player_a, player_b)",
			},
			ignoreErrors: true,
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if err := s.execMigration(ctx, stmt, m.ignoreErrors); err != nil {
				return err
			}
		}
		if err := s.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("store: create schema_migrations: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("store: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("store: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (s *Store) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("store: read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", version); err != nil {
		return fmt.Errorf("store: update schema version: %w", err)
	}
	return nil
}

func (s *Store) execMigration(ctx context.Context, stmt string, ignoreErrors bool) error {
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		if ignoreErrors {
			return nil
		}
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

func formatDBTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

func parseDBTime(value string) (time.Time, error) {
	return time.ParseInLocation(dbTimeLayout, value, time.UTC)
}

// ---- Users ----

// CreateUser creates a new user and returns it with the assigned ID.
// It validates the username format before inserting.
func (s *Store) CreateUser(username string) (*model.User, error) {
	if err := model.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}
	res, err := s.db.ExecContext(context.Background(),
		"INSERT INTO users (username) VALUES (?)", username)
	if err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}
	id, _ := res.LastInsertId()
	return &model.User{
		ID:        id,
		Username:  username,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (s *Store) scanUser(row *sql.Row) (*model.User, error) {
	u := &model.User{}
	var createdAt string
	err := row.Scan(&u.ID, &u.Username, &u.XP, &u.Streak, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt, err = parseDBTime(createdAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetUserByUsername retrieves a user by username.
func (s *Store) GetUserByUsername(username string) (*model.User, error) {
	row := s.db.QueryRowContext(context.Background(),
		"SELECT id, username, xp, streak, created_at FROM users WHERE username = ?", username)
	u, err := s.scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("store: get user: %w", err)
	}
	return u, nil
}

// GetUserByID retrieves a user by ID.
func (s *Store) GetUserByID(id int64) (*model.User, error) {
	row := s.db.QueryRowContext(context.Background(),
		"SELECT id, username, xp, streak, created_at FROM users WHERE id = ?", id)
	u, err := s.scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("store: get user: %w", err)
	}
	return u, nil
}

// ListUsers returns all users.
func (s *Store) ListUsers() ([]model.User, error) {
	rows, err := s.db.QueryContext(context.Background(),
		"SELECT id, username, xp, streak, created_at FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []model.User
	for rows.Next() {
		var u model.User
		var createdAt string
		if err := rows.Scan(&u.ID, &u.Username, &u.XP, &u.Streak, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan user: %w", err)
		}
		u.CreatedAt, err = parseDBTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("store: scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ApplyMatchReward adds xpDelta and streakDelta to a user's totals.
func (s *Store) ApplyMatchReward(winnerID int64, xpDelta int64, streakDelta int64) error {
	res, err := s.db.ExecContext(context.Background(),
		"UPDATE users SET xp = xp + ?, streak = streak + ? WHERE id = ?",
		xpDelta, streakDelta, winnerID)
	if err != nil {
		return fmt.Errorf("store: apply reward: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: apply reward: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("store: apply reward: user %d not found", winnerID)
	}
	return nil
}

// ---- Tokens ----

// CreateToken stores a new session token (hash only) bound to a user.
func (s *Store) CreateToken(hash string, userID int64, expiresAt time.Time) error {
	var expStr *string
	if !expiresAt.IsZero() {
		es := formatDBTime(expiresAt)
		expStr = &es
	}
	_, err := s.db.ExecContext(context.Background(),
		"INSERT INTO tokens (hash, user_id, expires_at) VALUES (?, ?, ?)",
		hash, userID, expStr)
	if err != nil {
		return fmt.Errorf("store: create token: %w", err)
	}
	return nil
}

// GetUserByTokenHash resolves a token hash to its user. Unknown and expired
// tokens both return (nil, nil).
func (s *Store) GetUserByTokenHash(hash string) (*model.User, error) {
	row := s.db.QueryRowContext(context.Background(), `
		SELECT u.id, u.username, u.xp, u.streak, u.created_at
		FROM tokens t JOIN users u ON u.id = t.user_id
		WHERE t.hash = ? AND (t.expires_at IS NULL OR t.expires_at > datetime('now'))`,
		hash)
	u, err := s.scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("store: get user by token: %w", err)
	}
	return u, nil
}

// ---- Questions ----

// CreateQuestion inserts a question into the bank. Options are stored as a
// JSON array.
func (s *Store) CreateQuestion(q *model.Question) error {
	if err := q.Validate(); err != nil {
		return fmt.Errorf("store: create question: %w", err)
	}
	opts, err := json.Marshal(q.Options)
	if err != nil {
		return fmt.Errorf("store: create question: %w", err)
	}
	res, err := s.db.ExecContext(context.Background(),
		"INSERT INTO questions (subject, prompt, options, correct_index, difficulty) VALUES (?, ?, ?, ?, ?)",
		q.Subject, q.Prompt, string(opts), q.CorrectIndex, q.Difficulty)
	if err != nil {
		return fmt.Errorf("store: create question: %w", err)
	}
	q.ID, _ = res.LastInsertId()
	q.CreatedAt = time.Now().UTC()
	return nil
}

func scanQuestion(scan func(dest ...any) error) (model.Question, error) {
	var q model.Question
	var opts, createdAt string
	if err := scan(&q.ID, &q.Subject, &q.Prompt, &opts, &q.CorrectIndex, &q.Difficulty, &createdAt); err != nil {
		return q, err
	}
	if err := json.Unmarshal([]byte(opts), &q.Options); err != nil {
		return q, err
	}
	var err error
	q.CreatedAt, err = parseDBTime(createdAt)
	return q, err
}

// FetchQuestions returns up to count questions for a subject, preferring
// those whose difficulty is closest to the accuracy estimate. Ties are
// broken randomly so repeated duels do not always see the same items.
func (s *Store) FetchQuestions(ctx context.Context, subject string, count int, accuracyEstimate float64) ([]model.Question, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject, prompt, options, correct_index, difficulty, created_at
		FROM questions WHERE subject = ?
		ORDER BY ABS(difficulty - ?), RANDOM() LIMIT ?`,
		subject, accuracyEstimate, count)
	if err != nil {
		return nil, fmt.Errorf("store: fetch questions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("store: scan question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ListQuestions returns the whole question bank.
func (s *Store) ListQuestions() ([]model.Question, error) {
	rows, err := s.db.QueryContext(context.Background(),
		"SELECT id, subject, prompt, options, correct_index, difficulty, created_at FROM questions ORDER BY subject, id")
	if err != nil {
		return nil, fmt.Errorf("store: list questions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("store: scan question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ---- Matches ----

// RecordMatch persists a completed match outcome.
func (s *Store) RecordMatch(rec model.MatchRecord) error {
	applied := 0
	if rec.RewardApplied {
		applied = 1
	}
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO matches (match_id, player_a, player_b, accuracy_a, accuracy_b, winner_id, win_bonus_xp, reward_applied)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.MatchID, rec.PlayerA, rec.PlayerB, rec.AccuracyA, rec.AccuracyB,
		rec.WinnerID, rec.WinBonusXP, applied)
	if err != nil {
		return fmt.Errorf("store: record match: %w", err)
	}
	return nil
}

// ListMatches returns the most recent matches, newest first.
func (s *Store) ListMatches(limit int) ([]model.MatchRecord, error) {
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT match_id, player_a, player_b, accuracy_a, accuracy_b, winner_id, win_bonus_xp, reward_applied, created_at
		FROM matches ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list matches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.MatchRecord
	for rows.Next() {
		var rec model.MatchRecord
		var applied int
		var createdAt string
		if err := rows.Scan(&rec.MatchID, &rec.PlayerA, &rec.PlayerB, &rec.AccuracyA,
			&rec.AccuracyB, &rec.WinnerID, &rec.WinBonusXP, &applied, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan match: %w", err)
		}
		rec.RewardApplied = applied != 0
		rec.CreatedAt, err = parseDBTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("store: scan match: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// AccuracyEstimate returns a user's mean accuracy over their most recent
// matches. ok is false when the user has no match history.
func (s *Store) AccuracyEstimate(userID int64) (float64, bool) {
	var estimate sql.NullFloat64
	err := s.db.QueryRowContext(context.Background(), `
		SELECT AVG(acc) FROM (
			SELECT CASE WHEN player_a = ? THEN accuracy_a ELSE accuracy_b END AS acc
			FROM matches WHERE player_a = ? OR player_b = ?
			ORDER BY id DESC LIMIT ?
		)`,
		userID, userID, userID, accuracyEstimateWindow).Scan(&estimate)
	if err != nil || !estimate.Valid {
		return 0, false
	}
	return estimate.Float64, true
}
