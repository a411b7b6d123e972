package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Samarth-Pai/hackcrypt-final-sub000/pkg/crypto"
	"github.com/Samarth-Pai/hackcrypt-final-sub000/pkg/store"
)

// Run starts the server and blocks until shutdown signal.
func (s *Server) Run() error {
	if s.store == nil {
		return fmt.Errorf("server: missing store dependency")
	}
	st := s.store
	defer func() { _ = st.Close() }()

	// Load questions from YAML config if provided
	if s.cfg.QuestionsFile != "" {
		if err := LoadQuestionsFromYAML(s.cfg.QuestionsFile, st); err != nil {
			slog.Error("failed to load questions config", "err", err)
		}
	}

	// An empty question bank means every pairing will fail its fetch.
	questions, err := st.ListQuestions()
	if err != nil {
		return fmt.Errorf("server: list questions: %w", err)
	}
	if len(questions) == 0 {
		slog.Warn("question bank is empty, duels cannot start until questions are imported")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.gateway.HandleWS)

	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.httpSrv = srv

	go func() {
		slog.Info("gateway listening", "addr", s.cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("gateway HTTP error", "err", err)
		}
	}()

	slog.Info("duel server running",
		"listen", s.cfg.ListenAddr,
		"questions", len(questions),
		"open_registration", s.cfg.AllowOpen,
	)

	// Start Prometheus metrics HTTP endpoint
	s.StartMetricsHTTP()

	// Start periodic metrics logging (every 60s)
	s.metrics.StartPeriodicLog(60*time.Second, s.ctx.Done())

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	s.Shutdown()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() {
	s.cancel()
	if s.httpSrv != nil {
		_ = s.httpSrv.Close()
	}
	s.gateway.closeAll()
}

// IssueToken creates a session token for the named user, creating the user
// if it does not exist yet. The raw token is returned exactly once; only its
// hash is stored.
func IssueToken(st store.DataStore, username string) (string, error) {
	user, err := st.GetUserByUsername(username)
	if err != nil {
		return "", fmt.Errorf("server: lookup user: %w", err)
	}
	if user == nil {
		user, err = st.CreateUser(username)
		if err != nil {
			return "", fmt.Errorf("server: create user: %w", err)
		}
	}

	rawToken, err := crypto.GenerateToken()
	if err != nil {
		return "", fmt.Errorf("server: generate token: %w", err)
	}
	if err := st.CreateToken(crypto.HashToken(rawToken), user.ID, st.ZeroTime()); err != nil {
		return "", fmt.Errorf("server: store token: %w", err)
	}
	return rawToken, nil
}
