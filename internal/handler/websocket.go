package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"agent-lounge/internal/hub"
	"agent-lounge/internal/lounge"
	"agent-lounge/internal/protocol"
	"agent-lounge/internal/throttle"
	"agent-lounge/internal/vote"
)

// Application close codes sent before dropping a rejected connection.
const (
	CloseBadRole      = 4001
	CloseMissingToken = 4002
	CloseInvalidToken = 4003
	CloseBanned       = 4004
)

type WebSocketHandler struct {
	Lounge *lounge.Lounge
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsWriter serializes writes; the hub and the read loop both deliver frames.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) Write(message []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteMessage(websocket.TextMessage, message)
}

func (w *wsWriter) Close() error {
	return w.conn.Close()
}

func (h *WebSocketHandler) Serve(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	closeWith := func(code int, reason string) {
		deadline := time.Now().Add(time.Second)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), deadline)
		_ = ws.Close()
	}

	session := &hub.Session{Writer: &wsWriter{conn: ws}}
	switch c.Query("role") {
	case "spectator":
		session.Role = hub.RoleSpectator
	case "agent", "":
		token := c.Query("token")
		if token == "" {
			closeWith(CloseMissingToken, "missing token")
			return
		}
		agent, ok := h.Lounge.Authenticate(token)
		if !ok {
			closeWith(CloseInvalidToken, "invalid token")
			return
		}
		session.Role = hub.RoleAgent
		session.AgentID = agent.ID
		session.DisplayName = agent.DisplayName
	default:
		closeWith(CloseBadRole, "unknown role")
		return
	}

	if err := h.Lounge.Connect(session); err != nil {
		if errors.Is(err, lounge.ErrBanned) {
			closeWith(CloseBanned, "banned")
		} else {
			closeWith(websocket.ClosePolicyViolation, err.Error())
		}
		return
	}
	defer func() {
		h.Lounge.Disconnect(session)
		_ = ws.Close()
	}()

	ws.SetReadLimit(1024 * 1024)
	const pongWait = 60 * time.Second
	const writeWait = 10 * time.Second
	pingPeriod := (pongWait * 9) / 10

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	var closeOnce sync.Once
	closeDone := func() {
		closeOnce.Do(func() {
			close(done)
		})
	}
	defer closeDone()

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				deadline := time.Now().Add(writeWait)
				if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					_ = ws.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var msg protocol.Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = session.Writer.Write(protocol.Error("bad_frame", "frame is not valid JSON"))
			continue
		}

		if msg.Type == protocol.TypePing {
			_ = session.Writer.Write(protocol.Pong())
			continue
		}
		if session.Role != hub.RoleAgent {
			_ = session.Writer.Write(protocol.Error("read_only", "spectators cannot send"))
			continue
		}

		if err := h.dispatch(session, msg); err != nil {
			_ = session.Writer.Write(protocol.Error(errorCode(err), err.Error()))
		}
	}
}

func (h *WebSocketHandler) dispatch(session *hub.Session, msg protocol.Inbound) error {
	switch msg.Type {
	case protocol.TypeMessage:
		return h.Lounge.SendMessage(session, msg.Room, msg.Content)
	case protocol.TypeJoin:
		return h.Lounge.Join(session, msg.Room)
	case protocol.TypeLeave:
		return h.Lounge.Leave(session, msg.Room)
	case protocol.TypeVoteKick:
		return h.Lounge.StartVoteKick(session, msg.TargetID, msg.Reason)
	case protocol.TypeVote:
		return h.Lounge.CastVote(session, msg.VoteID, msg.Choice)
	default:
		return errors.New("unknown frame type " + msg.Type)
	}
}

func errorCode(err error) string {
	var rateErr *throttle.RateError
	switch {
	case errors.As(err, &rateErr):
		return "rate_limited"
	case errors.Is(err, lounge.ErrNotPassed), errors.Is(err, vote.ErrNotPassed):
		return "not_passed"
	case errors.Is(err, lounge.ErrNotMember):
		return "not_member"
	case errors.Is(err, lounge.ErrInvalidRoomName):
		return "invalid_room"
	case errors.Is(err, lounge.ErrEmptyMessage), errors.Is(err, lounge.ErrMessageTooLong):
		return "invalid_message"
	case errors.Is(err, lounge.ErrUnknownAgent):
		return "unknown_agent"
	case errors.Is(err, vote.ErrVoteActive),
		errors.Is(err, vote.ErrTargetCooldown),
		errors.Is(err, vote.ErrSelfVote),
		errors.Is(err, vote.ErrInvalidReason),
		errors.Is(err, vote.ErrNoActiveVote),
		errors.Is(err, vote.ErrTargetBallot),
		errors.Is(err, vote.ErrAlreadyVoted),
		errors.Is(err, vote.ErrInvalidChoice):
		return "vote_rejected"
	default:
		return "bad_request"
	}
}
