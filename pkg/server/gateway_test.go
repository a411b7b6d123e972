package server

import (
	"fmt"
	"testing"
	"time"

	"github.com/Samarth-Pai/hackcrypt-final-sub000/pkg/crypto"
	"github.com/Samarth-Pai/hackcrypt-final-sub000/pkg/model"
	"github.com/Samarth-Pai/hackcrypt-final-sub000/pkg/protocol"
	"github.com/Samarth-Pai/hackcrypt-final-sub000/pkg/store"
)

func newTestServer(t *testing.T) (*Server, store.DataStore) {
	t.Helper()
	st := store.NewMemory()
	cfg := DefaultConfig()
	cfg.AllowOpen = true
	cfg.AbandonGrace = 10 * time.Millisecond
	srv, err := New(cfg, Dependencies{Store: st})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv, st
}

// newTestClient builds a registered client whose outbound events can be read
// from the send channel directly; no websocket connection is involved.
func newTestClient(g *Gateway, userID int64, username string) *client {
	c := &client{
		userID:   userID,
		username: username,
		send:     make(chan *protocol.Event, sendBuffer),
		done:     make(chan struct{}),
	}
	g.mu.Lock()
	g.clients[userID] = c
	g.mu.Unlock()
	return c
}

func seedTestQuestions(t *testing.T, st store.DataStore, subject string, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		q := &model.Question{
			Subject:      subject,
			Prompt:       fmt.Sprintf("%s question %d", subject, i+1),
			Options:      []string{"a", "b", "c", "d"},
			CorrectIndex: 0,
			Difficulty:   0.5,
		}
		if err := st.CreateQuestion(q); err != nil {
			t.Fatalf("failed to seed question: %v", err)
		}
	}
}

func recvEvent(t *testing.T, c *client) *protocol.Event {
	t.Helper()
	select {
	case ev := <-c.send:
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event for user %d", c.userID)
		return nil
	}
}

func recvUntil[T any](t *testing.T, c *client, sel func(*protocol.Event) *T) *T {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-c.send:
			if v := sel(ev); v != nil {
				return v
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event for user %d", c.userID)
			return nil
		}
	}
}

func TestAuthenticateByToken(t *testing.T) {
	t.Parallel()

	srv, st := newTestServer(t)
	u, err := st.CreateUser("alice")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	raw, err := crypto.GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if err := st.CreateToken(crypto.HashToken(raw), u.ID, st.ZeroTime()); err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	got, autoToken, _, _ := srv.gateway.authenticate(&protocol.AuthRequest{Token: raw})
	if got == nil || got.ID != u.ID {
		t.Fatalf("authenticate: want user %d got %v", u.ID, got)
	}
	if autoToken != "" {
		t.Fatalf("token auth must not auto-issue another token")
	}

	if got, _, code, _ := srv.gateway.authenticate(&protocol.AuthRequest{Token: "bogus"}); got != nil || code != codeAuthFailed {
		t.Fatalf("bad token: want rejection with codeAuthFailed, got user=%v code=%d", got, code)
	}
}

func TestAuthenticateOpenMode(t *testing.T) {
	t.Parallel()

	srv, st := newTestServer(t)

	// First-seen username is created on the fly with an auto-issued token.
	got, autoToken, _, _ := srv.gateway.authenticate(&protocol.AuthRequest{Username: "bob"})
	if got == nil || got.Username != "bob" {
		t.Fatalf("open auth: want created user, got %v", got)
	}
	if autoToken == "" {
		t.Fatalf("open auth: expected auto-issued token")
	}

	// The auto-issued token identifies the same user on reconnect.
	again, _, _, _ := srv.gateway.authenticate(&protocol.AuthRequest{Token: autoToken})
	if again == nil || again.ID != got.ID {
		t.Fatalf("reconnect with auto token: want user %d got %v", got.ID, again)
	}

	if u, _ := st.GetUserByUsername("bob"); u == nil {
		t.Fatalf("open auth did not persist the user")
	}

	if got, _, code, _ := srv.gateway.authenticate(&protocol.AuthRequest{Username: "no spaces!"}); got != nil || code != codeAuthFailed {
		t.Fatalf("invalid username: want rejection, got user=%v code=%d", got, code)
	}
}

func TestAuthenticateClosedMode(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	cfg := DefaultConfig()
	cfg.AllowOpen = false
	srv, err := New(cfg, Dependencies{Store: st})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, _, code, _ := srv.gateway.authenticate(&protocol.AuthRequest{Username: "carol"})
	if got != nil || code != codeAuthFailed {
		t.Fatalf("token-less join on closed server: want rejection, got user=%v code=%d", got, code)
	}
}

func TestAuthenticateJoinPassword(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	cfg := DefaultConfig()
	cfg.AllowOpen = true
	cfg.JoinPassword = "letmein"
	srv, err := New(cfg, Dependencies{Store: st})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got, _, code, _ := srv.gateway.authenticate(&protocol.AuthRequest{Username: "dave"}); got != nil || code != codeAuthFailed {
		t.Fatalf("missing password: want rejection, got user=%v code=%d", got, code)
	}
	if got, _, code, _ := srv.gateway.authenticate(&protocol.AuthRequest{Username: "dave", Password: "wrong"}); got != nil || code != codeAuthFailed {
		t.Fatalf("wrong password: want rejection, got user=%v code=%d", got, code)
	}
	got, _, _, _ := srv.gateway.authenticate(&protocol.AuthRequest{Username: "dave", Password: "letmein"})
	if got == nil || got.Username != "dave" {
		t.Fatalf("correct password: want user, got %v", got)
	}
}

func TestDispatchDuelFlow(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	g := srv.gateway
	c1 := newTestClient(g, 1, "alice")
	c2 := newTestClient(g, 2, "bob")

	seedTestQuestions(t, srv.store, "general", 5)

	g.dispatch(c1, &protocol.Event{JoinQueue: &protocol.JoinQueueRequest{}})
	g.dispatch(c2, &protocol.Event{JoinQueue: &protocol.JoinQueueRequest{}})

	found1 := recvUntil(t, c1, func(e *protocol.Event) *protocol.MatchFoundEvent { return e.MatchFound })
	found2 := recvUntil(t, c2, func(e *protocol.Event) *protocol.MatchFoundEvent { return e.MatchFound })
	if found1.MatchID != found2.MatchID {
		t.Fatalf("players got different matches: %s vs %s", found1.MatchID, found2.MatchID)
	}

	g.dispatch(c1, &protocol.Event{Answer: &protocol.AnswerEvent{
		MatchID: found1.MatchID, Progress: 0.2, QuestionID: found1.Questions[0].ID,
	}})
	ghost := recvUntil(t, c2, func(e *protocol.Event) *protocol.GhostProgressEvent { return e.GhostProgress })
	if ghost.FromPlayer != 1 || ghost.Progress != 0.2 {
		t.Fatalf("unexpected ghost progress: %+v", ghost)
	}

	g.dispatch(c1, &protocol.Event{Finish: &protocol.FinishEvent{MatchID: found1.MatchID, Accuracy: 0.8}})
	g.dispatch(c2, &protocol.Event{Finish: &protocol.FinishEvent{MatchID: found1.MatchID, Accuracy: 0.6}})

	res1 := recvUntil(t, c1, func(e *protocol.Event) *protocol.MatchResultEvent { return e.MatchResult })
	if res1.WinnerID == nil || *res1.WinnerID != 1 || res1.WinBonusXP != 50 {
		t.Fatalf("unexpected result: %+v", res1)
	}

	if got := srv.metrics.QueueJoins.Load(); got != 2 {
		t.Fatalf("QueueJoins: want 2 got %d", got)
	}
	if got := srv.metrics.MatchesStarted.Load(); got != 1 {
		t.Fatalf("MatchesStarted: want 1 got %d", got)
	}
	if got := srv.metrics.MatchesCompleted.Load(); got != 1 {
		t.Fatalf("MatchesCompleted: want 1 got %d", got)
	}
	if got := srv.metrics.FinishesAccepted.Load(); got != 2 {
		t.Fatalf("FinishesAccepted: want 2 got %d", got)
	}
}

func TestDispatchRejectsUnknownMatch(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	g := srv.gateway
	c := newTestClient(g, 1, "alice")

	g.dispatch(c, &protocol.Event{Answer: &protocol.AnswerEvent{MatchID: "nope", Progress: 0.5}})

	errResp := recvUntil(t, c, func(e *protocol.Event) *protocol.ErrorResponse { return e.ErrorResponse })
	if errResp.Code != codeUnknownMatch {
		t.Fatalf("error code: want %d got %d", codeUnknownMatch, errResp.Code)
	}
	if got := srv.metrics.EventsRejected.Load(); got != 1 {
		t.Fatalf("EventsRejected: want 1 got %d", got)
	}
}

func TestDispatchPing(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	c := newTestClient(srv.gateway, 1, "alice")

	srv.gateway.dispatch(c, &protocol.Event{Ping: &protocol.Ping{Timestamp: 42}})
	ev := recvEvent(t, c)
	if ev.Pong == nil || ev.Pong.Timestamp != 42 {
		t.Fatalf("expected pong echoing timestamp 42, got %+v", ev)
	}
}

func TestNotifyOfflineUserDropsEvent(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	srv.gateway.Notify(99, &protocol.Event{Pong: &protocol.Pong{}})
	if got := srv.metrics.EventsDropped.Load(); got != 1 {
		t.Fatalf("EventsDropped: want 1 got %d", got)
	}
}

func TestNotifyOfflineResultReplayedOnReconnect(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	g := srv.gateway

	g.Notify(7, &protocol.Event{MatchResult: &protocol.MatchResultEvent{MatchID: "m1"}})
	if got := srv.metrics.EventsDropped.Load(); got != 0 {
		t.Fatalf("terminal event for an offline user counted as dropped: %d", got)
	}

	c := &client{
		userID: 7,
		send:   make(chan *protocol.Event, sendBuffer),
		done:   make(chan struct{}),
	}
	g.register(c)

	res := recvUntil(t, c, func(e *protocol.Event) *protocol.MatchResultEvent { return e.MatchResult })
	if res.MatchID != "m1" {
		t.Fatalf("replayed result match: want m1 got %s", res.MatchID)
	}

	g.mu.Lock()
	backlog := len(g.pending[7])
	g.mu.Unlock()
	if backlog != 0 {
		t.Fatalf("pending backlog not cleared after replay: %d", backlog)
	}
}

func TestNotifyFullBufferDropsNonTerminal(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	c := newTestClient(srv.gateway, 1, "alice")

	for i := 0; i < sendBuffer; i++ {
		srv.gateway.Notify(1, &protocol.Event{Pong: &protocol.Pong{}})
	}
	if got := srv.metrics.EventsDropped.Load(); got != 0 {
		t.Fatalf("events dropped while buffer had room: %d", got)
	}

	srv.gateway.Notify(1, &protocol.Event{Pong: &protocol.Pong{}})
	if got := srv.metrics.EventsDropped.Load(); got != 1 {
		t.Fatalf("EventsDropped: want 1 got %d", got)
	}

	// A terminal event is never dropped; it waits for the reader.
	srv.gateway.Notify(1, &protocol.Event{MatchResult: &protocol.MatchResultEvent{MatchID: "m1"}})
	drained := 0
	for drained < sendBuffer {
		recvEvent(t, c)
		drained++
	}
	res := recvUntil(t, c, func(e *protocol.Event) *protocol.MatchResultEvent { return e.MatchResult })
	if res.MatchID != "m1" {
		t.Fatalf("terminal event lost, got %+v", res)
	}
}

func TestIsOnline(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	g := srv.gateway

	if g.IsOnline(1) {
		t.Fatalf("user should be offline")
	}
	c := newTestClient(g, 1, "alice")
	if !g.IsOnline(1) {
		t.Fatalf("user should be online")
	}
	g.unregister(c)
	if g.IsOnline(1) {
		t.Fatalf("user should be offline after unregister")
	}
}
