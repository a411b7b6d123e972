package model

import (
	"strings"
	"testing"
	"time"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"valid simple", "alice", nil},
		{"valid with numbers", "user123", nil},
		{"valid with underscore", "my_user", nil},
		{"valid with hyphen", "my-user", nil},
		{"valid mixed", "A-b_3", nil},
		{"valid max length", strings.Repeat("a", MaxUsernameLength), nil},
		{"empty", "", ErrUsernameEmpty},
		{"too long", strings.Repeat("a", MaxUsernameLength+1), ErrUsernameTooLong},
		{"way too long", strings.Repeat("x", 65), ErrUsernameTooLong},
		{"contains space", "has space", ErrUsernameInvalidChars},
		{"contains dot", "user.name", ErrUsernameInvalidChars},
		{"contains @", "user@name", ErrUsernameInvalidChars},
		{"sql quote", "' OR '1'='1", ErrUsernameInvalidChars},
		{"tab character", "user\tname", ErrUsernameInvalidChars},
		{"newline", "user\nname", ErrUsernameInvalidChars},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.input)
			if err != tt.wantErr {
				t.Errorf("ValidateUsername(%q) = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestQuestionValidate(t *testing.T) {
	valid := Question{
		Subject:      "math",
		Prompt:       "2+2?",
		Options:      []string{"3", "4"},
		CorrectIndex: 1,
		Difficulty:   0.9,
	}

	tests := []struct {
		name    string
		mutate  func(q *Question)
		wantErr error
	}{
		{"valid", func(*Question) {}, nil},
		{"empty prompt", func(q *Question) { q.Prompt = "" }, ErrQuestionEmptyPrompt},
		{"no options", func(q *Question) { q.Options = nil }, ErrQuestionOptionCount},
		{"one option", func(q *Question) { q.Options = []string{"4"} }, ErrQuestionOptionCount},
		{"negative correct index", func(q *Question) { q.CorrectIndex = -1 }, ErrQuestionBadCorrect},
		{"correct index past end", func(q *Question) { q.CorrectIndex = 2 }, ErrQuestionBadCorrect},
		{"difficulty below range", func(q *Question) { q.Difficulty = -0.1 }, ErrQuestionBadDifficulty},
		{"difficulty above range", func(q *Question) { q.Difficulty = 1.1 }, ErrQuestionBadDifficulty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := valid
			tt.mutate(&q)
			if err := q.Validate(); err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTokenIsExpired(t *testing.T) {
	tests := []struct {
		name  string
		token Token
		want  bool
	}{
		{"no expiry", Token{}, false},
		{"future expiry", Token{ExpiresAt: time.Now().Add(time.Hour)}, false},
		{"past expiry", Token{ExpiresAt: time.Now().Add(-time.Hour)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.token.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}
