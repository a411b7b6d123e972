package server

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/Samarth-Pai/hackcrypt-final-sub000/pkg/store"
)

const questionsYAML = `
questions:
  - subject: math
    prompt: "What is 2+2?"
    options: ["3", "4", "5", "6"]
    correct_index: 1
    difficulty: 0.9
  - subject: history
    prompt: "Year of the moon landing?"
    options: ["1965", "1969"]
    correct_index: 1
    difficulty: 0.6
`

func TestImportQuestionsFromYAML(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	if err := ImportQuestionsFromYAML([]byte(questionsYAML), st); err != nil {
		t.Fatalf("ImportQuestionsFromYAML: %v", err)
	}

	questions, err := st.ListQuestions()
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("imported questions: want 2 got %d", len(questions))
	}

	// Re-importing the same file is a no-op.
	if err := ImportQuestionsFromYAML([]byte(questionsYAML), st); err != nil {
		t.Fatalf("second import: %v", err)
	}
	questions, err = st.ListQuestions()
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("re-import duplicated questions: want 2 got %d", len(questions))
	}
}

func TestImportQuestionsDefaultDifficulty(t *testing.T) {
	t.Parallel()

	const noDifficulty = `
questions:
  - subject: math
    prompt: "What is 2+2?"
    options: ["3", "4"]
    correct_index: 1
`
	st := store.NewMemory()
	if err := ImportQuestionsFromYAML([]byte(noDifficulty), st); err != nil {
		t.Fatalf("ImportQuestionsFromYAML: %v", err)
	}
	questions, err := st.ListQuestions()
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(questions) != 1 {
		t.Fatalf("want 1 question got %d", len(questions))
	}
	if got := questions[0].Difficulty; got != defaultDifficulty {
		t.Fatalf("omitted difficulty: want %v got %v", defaultDifficulty, got)
	}
}

func TestImportQuestionsSkipsInvalid(t *testing.T) {
	t.Parallel()

	const mixed = `
questions:
  - subject: math
    prompt: "Valid?"
    options: ["yes", "no"]
    correct_index: 0
  - subject: math
    prompt: "Only one option"
    options: ["oops"]
    correct_index: 0
`
	st := store.NewMemory()
	if err := ImportQuestionsFromYAML([]byte(mixed), st); err != nil {
		t.Fatalf("ImportQuestionsFromYAML: %v", err)
	}
	questions, err := st.ListQuestions()
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(questions) != 1 {
		t.Fatalf("want 1 valid question imported, got %d", len(questions))
	}
}

func TestImportQuestionsBadYAML(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	if err := ImportQuestionsFromYAML([]byte("questions: ["), st); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestExportQuestionsRoundTrip(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	if err := ImportQuestionsFromYAML([]byte(questionsYAML), st); err != nil {
		t.Fatalf("ImportQuestionsFromYAML: %v", err)
	}

	data, err := ExportQuestionsYAML(st)
	if err != nil {
		t.Fatalf("ExportQuestionsYAML: %v", err)
	}

	var got QuestionsConfig
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}

	var want QuestionsConfig
	if err := yaml.Unmarshal([]byte(questionsYAML), &want); err != nil {
		t.Fatalf("unmarshal source: %v", err)
	}
	// Export orders by subject; match that.
	want.Questions[0], want.Questions[1] = want.Questions[1], want.Questions[0]

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("export mismatch (-want +got):\n%s", diff)
	}
}

func TestExportUsersYAML(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	u, err := st.CreateUser("alice")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := st.ApplyMatchReward(u.ID, 50, 1); err != nil {
		t.Fatalf("ApplyMatchReward: %v", err)
	}

	data, err := ExportUsersYAML(st)
	if err != nil {
		t.Fatalf("ExportUsersYAML: %v", err)
	}

	var export UsersExport
	if err := yaml.Unmarshal(data, &export); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if len(export.Users) != 1 {
		t.Fatalf("exported users: want 1 got %d", len(export.Users))
	}
	if export.Users[0].Username != "alice" || export.Users[0].XP != 50 || export.Users[0].Streak != 1 {
		t.Fatalf("unexpected export: %+v", export.Users[0])
	}
}
