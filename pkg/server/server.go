// Package server implements the duel coordinator server: the websocket
// gateway, configuration, metrics, and process lifecycle.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Samarth-Pai/hackcrypt-final-sub000/pkg/crypto"
	"github.com/Samarth-Pai/hackcrypt-final-sub000/pkg/duel"
	"github.com/Samarth-Pai/hackcrypt-final-sub000/pkg/store"
)

// Config holds server configuration.
type Config struct {
	ListenAddr    string // HTTP bind address for the websocket endpoint (e.g. ":9700")
	MetricsAddr   string // HTTP bind address for /metrics endpoint (empty = disabled)
	DBPath        string // SQLite database path
	QuestionsFile string // YAML file defining questions to import on startup
	AllowOpen     bool   // allow first-seen usernames to join without a token
	JoinPassword  string // optional password required for token-less joins

	Subject         string        // subject for duel question selection
	QuestionCount   int           // questions per duel
	DefaultAccuracy float64       // accuracy estimate for players with no history
	WinBonusXP      int64         // fixed XP bonus for the duel winner
	FetchTimeout    time.Duration // bound on the question fetch during pairing
	AbandonGrace    time.Duration // grace period before a disconnect abandons a match

	// CLI-only actions (run and exit)
	ExportQuestions bool   // export the question bank as YAML and exit
	IssueTokenFor   string // issue a session token for a username and exit
}

// Dependencies holds external dependencies for the server.
// Server assumes ownership of Store and will Close() it on shutdown.
type Dependencies struct {
	Store store.DataStore
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	d := duel.DefaultConfig()
	return Config{
		ListenAddr:      ":9700",
		MetricsAddr:     ":9702",
		DBPath:          "duels.db",
		Subject:         d.Subject,
		QuestionCount:   d.QuestionCount,
		DefaultAccuracy: d.DefaultAccuracy,
		WinBonusXP:      d.WinBonusXP,
		FetchTimeout:    d.FetchTimeout,
		AbandonGrace:    d.AbandonGrace,
	}
}

// Server is the main duel coordinator server.
type Server struct {
	cfg     Config
	store   store.DataStore
	gateway *Gateway
	coord   *duel.Coordinator
	metrics *Metrics
	httpSrv *http.Server
	ctx     context.Context
	cancel  context.CancelFunc

	// Argon2id digest of Config.JoinPassword, computed once at startup.
	// Both nil when no join password is configured.
	passSalt []byte
	passHash []byte
}

// New creates a new Server instance with an isolated coordinator, so tests
// can run multiple servers without cross-test leakage.
func New(cfg Config, deps Dependencies) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		store:   deps.Store,
		metrics: NewMetrics(),
		ctx:     ctx,
		cancel:  cancel,
	}
	if cfg.JoinPassword != "" {
		salt, err := crypto.GenerateSalt()
		if err != nil {
			cancel()
			return nil, fmt.Errorf("server: generate password salt: %w", err)
		}
		s.passSalt = salt
		s.passHash = crypto.HashPassword(cfg.JoinPassword, salt)
	}
	s.gateway = newGateway(s)
	s.coord = duel.NewCoordinator(duel.Config{
		Subject:         cfg.Subject,
		QuestionCount:   cfg.QuestionCount,
		DefaultAccuracy: cfg.DefaultAccuracy,
		WinBonusXP:      cfg.WinBonusXP,
		FetchTimeout:    cfg.FetchTimeout,
		AbandonGrace:    cfg.AbandonGrace,
	}, duel.Dependencies{
		Questions: deps.Store,
		Rewards:   deps.Store,
		Matches:   deps.Store,
		Estimator: deps.Store,
		Notifier:  s.gateway,
		Presence:  s.gateway,
		Stats:     s.metrics,
	})
	return s, nil
}

// Coordinator returns the duel coordinator.
func (s *Server) Coordinator() *duel.Coordinator {
	return s.coord
}

// Gateway returns the connection gateway.
func (s *Server) Gateway() *Gateway {
	return s.gateway
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}
