package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/Samarth-Pai/hackcrypt-final-sub000/pkg/logging"
	"github.com/Samarth-Pai/hackcrypt-final-sub000/pkg/server"
	"github.com/Samarth-Pai/hackcrypt-final-sub000/pkg/store"
	"github.com/Samarth-Pai/hackcrypt-final-sub000/pkg/version"
)

func main() {
	cfg := server.DefaultConfig()

	flag.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "HTTP bind address for the websocket endpoint")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database file path")
	flag.BoolVar(&cfg.AllowOpen, "open", false, "Allow first-seen usernames to join without a token (open server)")
	flag.StringVar(&cfg.JoinPassword, "join-password", "", "Password required for token-less joins (open server only)")
	flag.StringVar(&cfg.QuestionsFile, "questions-file", "", "YAML file defining questions to import on startup")
	flag.StringVar(&cfg.Subject, "subject", cfg.Subject, "Subject used for duel question selection")
	flag.IntVar(&cfg.QuestionCount, "question-count", cfg.QuestionCount, "Number of questions per duel")
	flag.Int64Var(&cfg.WinBonusXP, "win-bonus", cfg.WinBonusXP, "Fixed XP bonus awarded to the duel winner")
	flag.DurationVar(&cfg.FetchTimeout, "fetch-timeout", cfg.FetchTimeout, "Bound on the question fetch during pairing")
	flag.DurationVar(&cfg.AbandonGrace, "abandon-grace", cfg.AbandonGrace, "Grace period before a disconnect abandons a match")
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "HTTP bind address for Prometheus /metrics (empty to disable)")
	flag.BoolVar(&cfg.ExportQuestions, "export-questions", false, "Export the question bank as YAML and exit")
	flag.StringVar(&cfg.IssueTokenFor, "issue-token", "", "Issue a session token for the given username and exit")

	logLevel := flag.String("log-level", "info", "Log level: "+logging.LevelNames())
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Full())
		return
	}

	// Configure structured logging
	if err := logging.Setup(logging.Options{
		Level:  *logLevel,
		Format: *logFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	// Handle CLI-only actions (run and exit)
	if cfg.ExportQuestions || cfg.IssueTokenFor != "" {
		st, err := store.New(cfg.DBPath)
		if err != nil {
			slog.Error("open database", "err", err)
			os.Exit(1)
		}
		defer st.Close()

		if cfg.ExportQuestions {
			data, err := server.ExportQuestionsYAML(st)
			if err != nil {
				slog.Error("export questions", "err", err)
				os.Exit(1)
			}
			fmt.Print(string(data))
		}
		if cfg.IssueTokenFor != "" {
			token, err := server.IssueToken(st, cfg.IssueTokenFor)
			if err != nil {
				slog.Error("issue token", "err", err)
				os.Exit(1)
			}
			fmt.Printf("token for %s: %s\n", cfg.IssueTokenFor, token)
		}
		return
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		slog.Error("open database", "err", err)
		os.Exit(1)
	}

	slog.Info("starting duel server", "version", version.String())

	srv, err := server.New(cfg, server.Dependencies{Store: st})
	if err != nil {
		slog.Error("server init", "err", err)
		os.Exit(1)
	}
	if err := srv.Run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
