package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Samarth-Pai/hackcrypt-final-sub000/pkg/crypto"
	"github.com/Samarth-Pai/hackcrypt-final-sub000/pkg/duel"
	"github.com/Samarth-Pai/hackcrypt-final-sub000/pkg/model"
	"github.com/Samarth-Pai/hackcrypt-final-sub000/pkg/protocol"
)

// Error codes sent in error_response events.
const (
	codeAuthFirst    = 1  // first message must be auth_request
	codeAuthFailed   = 2  // bad token / invalid username
	codeInternal     = 3  // internal error
	codeUnknownMatch = 20 // matchID not in the registry
	codeNotInMatch   = 21 // sender is not a player in that match
	codeBadEvent     = 22 // event missing required payload
)

const authTimeout = 10 * time.Second

// sendBuffer is the per-client outbound event buffer. Non-terminal events
// are dropped when it is full; terminal events block until delivered or the
// connection dies.
const sendBuffer = 64

// client is one authenticated websocket connection. Outbound events go
// through the send channel and a single writer goroutine, so concurrent
// notifies never interleave writes on the connection.
type client struct {
	userID   int64
	username string
	conn     *websocket.Conn
	send     chan *protocol.Event
	done     chan struct{}
	once     sync.Once
}

// close shuts the client down exactly once.
func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// writer drains the send channel onto the connection.
func (c *client) writer() {
	for {
		select {
		case ev := <-c.send:
			if err := protocol.WriteEvent(c.conn, ev); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// Gateway authenticates inbound websocket connections, maps them to stable
// user identities, and relays events between connections and the
// coordinator. It implements duel.Notifier and duel.Presence.
type Gateway struct {
	server   *Server
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[int64]*client           // userID -> active connection
	pending map[int64][]*protocol.Event // terminal events awaiting reconnect
}

func newGateway(s *Server) *Gateway {
	return &Gateway{
		server: s,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(_ *http.Request) bool { return true },
		},
		clients: make(map[int64]*client),
		pending: make(map[int64][]*protocol.Event),
	}
}

// Notify delivers an event to a user's connection. Non-terminal events are
// fire-and-forget: a missed ghost_progress update is cosmetic. Terminal
// events (match_result, match_abandoned) are delivered at-least-once: the
// send blocks until the writer takes it or the connection dies, and when
// the user has no connection at all the event is held and replayed on the
// next successful auth. A user can be in at most one match, so the held
// backlog stays tiny.
func (g *Gateway) Notify(userID int64, ev *protocol.Event) {
	g.mu.RLock()
	c := g.clients[userID]
	g.mu.RUnlock()
	if c == nil {
		if ev.MatchResult != nil || ev.MatchAbandoned != nil {
			g.mu.Lock()
			g.pending[userID] = append(g.pending[userID], ev)
			g.mu.Unlock()
			return
		}
		g.server.metrics.EventsDropped.Add(1)
		return
	}

	if ev.MatchResult != nil || ev.MatchAbandoned != nil {
		go func() {
			select {
			case c.send <- ev:
			case <-c.done:
			}
		}()
		return
	}

	select {
	case c.send <- ev:
	case <-c.done:
	default:
		g.server.metrics.EventsDropped.Add(1)
	}
}

// IsOnline reports whether a user currently has a live connection.
func (g *Gateway) IsOnline(userID int64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.clients[userID]
	return ok
}

// ClientCount returns the number of authenticated connections.
func (g *Gateway) ClientCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// register binds a connection to a user, replacing (and closing) any
// previous connection for the same user. Terminal events held while the
// user was offline are queued to the new connection.
func (g *Gateway) register(c *client) {
	g.mu.Lock()
	prev := g.clients[c.userID]
	g.clients[c.userID] = c
	pending := g.pending[c.userID]
	delete(g.pending, c.userID)
	g.mu.Unlock()
	if prev != nil {
		prev.close()
	}
	for _, ev := range pending {
		go func(ev *protocol.Event) {
			select {
			case c.send <- ev:
			case <-c.done:
			}
		}(ev)
	}
}

// unregister removes a client if it is still the user's active connection.
func (g *Gateway) unregister(c *client) {
	g.mu.Lock()
	if g.clients[c.userID] == c {
		delete(g.clients, c.userID)
	}
	g.mu.Unlock()
}

// closeAll closes every active client connection. Used during shutdown.
func (g *Gateway) closeAll() {
	g.mu.Lock()
	clients := make([]*client, 0, len(g.clients))
	for _, c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

// HandleWS upgrades an HTTP request to a websocket connection and runs the
// connection lifecycle: auth handshake, event loop, disconnect cleanup.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	go g.serveConn(conn, r.RemoteAddr)
}

// serveConn handles a single connection lifecycle.
func (g *Gateway) serveConn(conn *websocket.Conn, remoteAddr string) {
	defer func() { _ = conn.Close() }()

	m := g.server.metrics
	m.TotalConnections.Add(1)
	m.ActiveConnections.Add(1)
	defer m.ActiveConnections.Add(-1)
	slog.Debug("new connection", "remote", remoteAddr)

	conn.SetReadLimit(protocol.MaxEventSize)

	// First message must be auth_request
	_ = conn.SetReadDeadline(time.Now().Add(authTimeout))
	ev, err := protocol.ReadEvent(conn)
	if err != nil {
		slog.Debug("auth read failed", "remote", remoteAddr, "err", err)
		return
	}
	_ = conn.SetReadDeadline(time.Time{}) // clear deadline

	if ev.AuthRequest == nil {
		sendError(conn, codeAuthFirst, "first message must be auth_request")
		return
	}

	user, autoToken, errCode, errMsg := g.authenticate(ev.AuthRequest)
	if user == nil {
		m.FailedAuths.Add(1)
		sendError(conn, errCode, errMsg)
		return
	}

	c := &client{
		userID:   user.ID,
		username: user.Username,
		conn:     conn,
		send:     make(chan *protocol.Event, sendBuffer),
		done:     make(chan struct{}),
	}
	g.register(c)
	go c.writer()

	defer func() {
		g.unregister(c)
		c.close()
		g.server.coord.Disconnect(user.ID)
		m.TotalDisconnects.Add(1)
		slog.Info("client disconnected", "user", user.Username)
	}()

	g.Notify(user.ID, &protocol.Event{AuthResponse: &protocol.AuthResponse{
		UserID:    user.ID,
		Username:  user.Username,
		XP:        user.XP,
		Streak:    user.Streak,
		AutoToken: autoToken,
	}})

	slog.Info("client authenticated", "user", user.Username, "remote", remoteAddr)
	m.SuccessfulAuths.Add(1)

	// Event loop
	for {
		select {
		case <-g.server.ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		ev, err := protocol.ReadEvent(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("read error", "user", user.Username, "err", err)
			}
			return
		}

		g.dispatch(c, ev)
	}
}

// authenticate resolves an auth request to a user. With AllowOpen, a valid
// unseen username is created on the fly with an auto-issued token.
func (g *Gateway) authenticate(req *protocol.AuthRequest) (user *model.User, autoToken string, errCode int32, errMsg string) {
	st := g.server.store

	if req.Token != "" {
		u, err := st.GetUserByTokenHash(crypto.HashToken(req.Token))
		if err != nil {
			return nil, "", codeInternal, "internal error"
		}
		if u == nil {
			return nil, "", codeAuthFailed, "authentication failed: invalid or expired token"
		}
		return u, "", 0, ""
	}

	// Token-less join
	if !g.server.cfg.AllowOpen {
		return nil, "", codeAuthFailed, "authentication failed: token required"
	}
	if g.server.passHash != nil && !crypto.VerifyPassword(req.Password, g.server.passSalt, g.server.passHash) {
		return nil, "", codeAuthFailed, "authentication failed: wrong join password"
	}
	if err := model.ValidateUsername(req.Username); err != nil {
		return nil, "", codeAuthFailed, "invalid username: "+err.Error()
	}

	u, err := st.GetUserByUsername(req.Username)
	if err != nil {
		return nil, "", codeInternal, "internal error"
	}
	if u == nil {
		u, err = st.CreateUser(req.Username)
		if err != nil {
			return nil, "", codeInternal, "failed to create user: "+err.Error()
		}
	}

	// Issue a personal token for identification on the next connect
	raw, err := crypto.GenerateToken()
	if err == nil {
		if err := st.CreateToken(crypto.HashToken(raw), u.ID, st.ZeroTime()); err == nil {
			autoToken = raw
			slog.Debug("auto-issued token for token-less user", "user", u.Username)
		}
	}

	return u, autoToken, 0, ""
}

// dispatch routes an inbound event to the coordinator.
func (g *Gateway) dispatch(c *client, ev *protocol.Event) {
	m := g.server.metrics
	coord := g.server.coord

	switch {
	case ev.JoinQueue != nil:
		m.QueueJoins.Add(1)
		coord.JoinQueue(c.userID)

	case ev.CancelQueue != nil:
		m.QueueCancels.Add(1)
		coord.CancelQueue(c.userID)

	case ev.Answer != nil:
		if err := coord.HandleAnswer(c.userID, ev.Answer); err != nil {
			g.rejectMatchEvent(c, ev.Answer.MatchID, err)
			return
		}
		m.AnswersRelayed.Add(1)

	case ev.Finish != nil:
		if err := coord.HandleFinish(c.userID, ev.Finish); err != nil {
			g.rejectMatchEvent(c, ev.Finish.MatchID, err)
			return
		}
		m.FinishesAccepted.Add(1)

	case ev.Ping != nil:
		g.Notify(c.userID, &protocol.Event{Pong: &protocol.Pong{Timestamp: ev.Ping.Timestamp}})

	default:
		g.Notify(c.userID, &protocol.Event{ErrorResponse: &protocol.ErrorResponse{
			Code: codeBadEvent, Message: "unrecognized event",
		}})
	}
}

// rejectMatchEvent logs and reports a rejected answer/finish without
// mutating any state.
func (g *Gateway) rejectMatchEvent(c *client, matchID string, err error) {
	g.server.metrics.EventsRejected.Add(1)
	slog.Warn("rejected match event", "user", c.username, "match", matchID, "err", err)

	code := int32(codeInternal)
	switch err {
	case duel.ErrUnknownMatch:
		code = codeUnknownMatch
	case duel.ErrNotInMatch:
		code = codeNotInMatch
	}
	g.Notify(c.userID, &protocol.Event{ErrorResponse: &protocol.ErrorResponse{
		Code: code, Message: err.Error(),
	}})
}

func sendError(conn *websocket.Conn, code int32, message string) {
	_ = protocol.WriteEvent(conn, &protocol.Event{
		ErrorResponse: &protocol.ErrorResponse{Code: code, Message: message},
	})
}
