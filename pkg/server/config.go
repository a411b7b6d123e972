package server

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/Samarth-Pai/hackcrypt-final-sub000/pkg/model"
	"github.com/Samarth-Pai/hackcrypt-final-sub000/pkg/store"
	"gopkg.in/yaml.v3"
)

// QuestionYAML represents a question in YAML config. Difficulty is a
// pointer so an omitted field gets the same 0.5 default the database
// schema uses, rather than reading as 0 (hardest).
type QuestionYAML struct {
	Subject      string   `yaml:"subject"`
	Prompt       string   `yaml:"prompt"`
	Options      []string `yaml:"options"`
	CorrectIndex int      `yaml:"correct_index"`
	Difficulty   *float64 `yaml:"difficulty,omitempty"`
}

// defaultDifficulty matches the questions table column default.
const defaultDifficulty = 0.5

// QuestionsConfig is the top-level YAML config for the question bank.
type QuestionsConfig struct {
	Questions []QuestionYAML `yaml:"questions"`
}

// UserYAML represents a user in YAML export.
type UserYAML struct {
	ID        int64  `yaml:"id"`
	Username  string `yaml:"username"`
	XP        int64  `yaml:"xp"`
	Streak    int64  `yaml:"streak"`
	CreatedAt string `yaml:"created_at"`
}

// UsersExport is the top-level YAML for user export.
type UsersExport struct {
	Users []UserYAML `yaml:"users"`
}

// LoadQuestionsFromYAML reads a questions YAML file and inserts new questions
// into the store.
func LoadQuestionsFromYAML(path string, st store.DataStore) error {
	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI config
	if err != nil {
		return fmt.Errorf("read questions config: %w", err)
	}
	return ImportQuestionsFromYAML(data, st)
}

// ImportQuestionsFromYAML parses YAML data and inserts new questions into the
// store. Questions whose subject and prompt already exist are skipped, so the
// import can be re-run against the same file.
func ImportQuestionsFromYAML(data []byte, st store.DataStore) error {
	var cfg QuestionsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse questions config: %w", err)
	}

	existing, err := st.ListQuestions()
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, q := range existing {
		seen[q.Subject+"\x00"+q.Prompt] = true
	}

	imported := 0
	for _, qy := range cfg.Questions {
		if seen[qy.Subject+"\x00"+qy.Prompt] {
			continue
		}
		difficulty := defaultDifficulty
		if qy.Difficulty != nil {
			difficulty = *qy.Difficulty
		}
		q := &model.Question{
			Subject:      qy.Subject,
			Prompt:       qy.Prompt,
			Options:      qy.Options,
			CorrectIndex: qy.CorrectIndex,
			Difficulty:   difficulty,
		}
		if err := q.Validate(); err != nil {
			slog.Error("skipping invalid question from config", "prompt", qy.Prompt, "err", err)
			continue
		}
		if err := st.CreateQuestion(q); err != nil {
			slog.Error("failed to create question from config", "prompt", qy.Prompt, "err", err)
			continue
		}
		seen[qy.Subject+"\x00"+qy.Prompt] = true
		imported++
	}

	slog.Info("imported questions from YAML", "count", imported, "total", len(cfg.Questions))
	return nil
}

// ExportQuestionsYAML exports the whole question bank as YAML.
func ExportQuestionsYAML(st store.DataStore) ([]byte, error) {
	questions, err := st.ListQuestions()
	if err != nil {
		return nil, err
	}

	cfg := QuestionsConfig{}
	for _, q := range questions {
		difficulty := q.Difficulty
		cfg.Questions = append(cfg.Questions, QuestionYAML{
			Subject:      q.Subject,
			Prompt:       q.Prompt,
			Options:      q.Options,
			CorrectIndex: q.CorrectIndex,
			Difficulty:   &difficulty,
		})
	}
	return yaml.Marshal(&cfg)
}

// ExportUsersYAML exports all users as YAML.
func ExportUsersYAML(st store.DataStore) ([]byte, error) {
	users, err := st.ListUsers()
	if err != nil {
		return nil, err
	}

	export := UsersExport{}
	for _, u := range users {
		export.Users = append(export.Users, UserYAML{
			ID:        u.ID,
			Username:  u.Username,
			XP:        u.XP,
			Streak:    u.Streak,
			CreatedAt: u.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}
	return yaml.Marshal(&export)
}
