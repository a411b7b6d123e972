package protocol

// Event wraps all messages exchanged over the duel websocket.
type Event struct {
	// Only one of these fields should be set.
	AuthRequest    *AuthRequest         `json:"auth_request,omitempty"`
	AuthResponse   *AuthResponse        `json:"auth_response,omitempty"`
	JoinQueue      *JoinQueueRequest    `json:"join_queue,omitempty"`
	CancelQueue    *CancelQueueRequest  `json:"cancel_queue,omitempty"`
	Answer         *AnswerEvent         `json:"answer,omitempty"`
	Finish         *FinishEvent         `json:"finish,omitempty"`
	MatchFound     *MatchFoundEvent     `json:"match_found,omitempty"`
	GhostProgress  *GhostProgressEvent  `json:"ghost_progress,omitempty"`
	MatchResult    *MatchResultEvent    `json:"match_result,omitempty"`
	MatchAbandoned *MatchAbandonedEvent `json:"match_abandoned,omitempty"`
	QueueRetry     *QueueRetryEvent     `json:"queue_retry,omitempty"`
	ErrorResponse  *ErrorResponse       `json:"error_response,omitempty"`
	Ping           *Ping                `json:"ping,omitempty"`
	Pong           *Pong                `json:"pong,omitempty"`
}

// ----- Auth -----

type AuthRequest struct {
	Token    string `json:"token"` // empty = token-less join (if server allows)
	Username string `json:"username"`
	Password string `json:"password,omitempty"` // join password for token-less joins, if the server requires one
}

type AuthResponse struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	XP        int64  `json:"xp"`
	Streak    int64  `json:"streak"`
	AutoToken string `json:"auto_token,omitempty"` // set when server issued a token for this user
}

// ----- Queue -----

type JoinQueueRequest struct{}

type CancelQueueRequest struct{}

// QueueRetryEvent tells a queued player that pairing failed upstream and
// they should rejoin (or were re-enqueued).
type QueueRetryEvent struct {
	Reason     string `json:"reason"`
	Reenqueued bool   `json:"reenqueued"`
}

// ----- Duel -----

// QuestionInfo is the client-visible form of a question. The correct answer
// index is never sent mid-match.
type QuestionInfo struct {
	ID      int64    `json:"id"`
	Subject string   `json:"subject"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

type MatchFoundEvent struct {
	MatchID   string         `json:"match_id"`
	Players   []int64        `json:"players"` // both player user IDs, pairing order
	Questions []QuestionInfo `json:"questions"`
}

// AnswerEvent reports a player's progress after answering a question.
// Progress is the fraction of the quiz completed in [0,1].
type AnswerEvent struct {
	MatchID        string  `json:"match_id"`
	Progress       float64 `json:"progress"`
	QuestionID     int64   `json:"question_id"`
	SelectedOption int     `json:"selected_option"`
}

type FinishEvent struct {
	MatchID        string  `json:"match_id"`
	Accuracy       float64 `json:"accuracy"`
	TotalQuestions int     `json:"total_questions"`
}

// GhostProgressEvent is sent to a player's opponent only; a player never
// receives an echo of their own progress.
type GhostProgressEvent struct {
	MatchID    string  `json:"match_id"`
	FromPlayer int64   `json:"from_player"`
	Progress   float64 `json:"progress"`
}

// AnswerLogEntry is one submitted answer in the per-player answer log.
type AnswerLogEntry struct {
	QuestionID     int64 `json:"question_id"`
	SelectedOption int   `json:"selected_option"`
}

type MatchResultEvent struct {
	MatchID          string                     `json:"match_id"`
	WinnerID         *int64                     `json:"winner_id"` // nil = tie
	AccuracyByPlayer map[int64]float64          `json:"accuracy_by_player"`
	WinBonusXP       int64                      `json:"win_bonus_xp"`
	AnswersByPlayer  map[int64][]AnswerLogEntry `json:"answers_by_player,omitempty"`
}

type MatchAbandonedEvent struct {
	MatchID string `json:"match_id"`
}

// ----- Generic -----

type ErrorResponse struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

type Ping struct {
	Timestamp int64 `json:"timestamp"`
}

type Pong struct {
	Timestamp int64 `json:"timestamp"`
}
