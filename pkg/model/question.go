package model

import (
	"errors"
	"time"
)

var ErrQuestionEmptyPrompt = errors.New("question prompt must not be empty")
var ErrQuestionOptionCount = errors.New("question must have at least 2 options")
var ErrQuestionBadCorrect = errors.New("question correct index out of range")
var ErrQuestionBadDifficulty = errors.New("question difficulty must be in [0,1]")

// Question is a single quiz item. Difficulty is the expected fraction of
// players that answer it correctly, so harder questions have lower values.
type Question struct {
	ID           int64     `json:"id"`
	Subject      string    `json:"subject"`
	Prompt       string    `json:"prompt"`
	Options      []string  `json:"options"`
	CorrectIndex int       `json:"correct_index"`
	Difficulty   float64   `json:"difficulty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Validate checks question fields before insertion.
func (q *Question) Validate() error {
	if q.Prompt == "" {
		return ErrQuestionEmptyPrompt
	}
	if len(q.Options) < 2 {
		return ErrQuestionOptionCount
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return ErrQuestionBadCorrect
	}
	if q.Difficulty < 0 || q.Difficulty > 1 {
		return ErrQuestionBadDifficulty
	}
	return nil
}
