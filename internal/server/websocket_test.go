package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"agent-lounge/internal/handler"
	"agent-lounge/internal/registry"
)

func dialWS(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial %s: %v", query, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame map[string]any
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return frame
}

// readUntil skips frames until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, eventType string) map[string]any {
	t.Helper()
	for i := 0; i < 20; i++ {
		frame := readFrame(t, conn)
		if frame["type"] == eventType {
			return frame
		}
	}
	t.Fatalf("never received %q", eventType)
	return nil
}

func passTestAgent(t *testing.T, deps Deps, name string) string {
	t.Helper()
	agent, token, err := deps.Lounge.RegisterAgent(name, registry.Profile{})
	if err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}
	problems, _, err := deps.Lounge.IssueChallenge(agent.ID)
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}
	answers := make([]int, len(problems))
	for i, p := range problems {
		answers[i] = p.Answer
	}
	sub, err := deps.Lounge.SubmitChallenge(agent.ID, answers)
	if err != nil || !sub.Passed {
		t.Fatalf("SubmitChallenge: passed=%v err=%v", sub.Passed, err)
	}
	return token
}

func TestWebSocketPingPong(t *testing.T) {
	gin.SetMode(gin.TestMode)
	deps := newTestDeps(t)
	srv := httptest.NewServer(NewRouter(deps))
	defer srv.Close()

	token := passTestAgent(t, deps, "ada")
	conn := dialWS(t, srv, "?token="+token)

	welcome := readFrame(t, conn)
	if welcome["type"] != "connected" || welcome["role"] != "agent" {
		t.Fatalf("unexpected welcome: %v", welcome)
	}

	if err := conn.WriteJSON(map[string]any{"type": "ping"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if frame := readUntil(t, conn, "pong"); frame["timestamp"] == nil {
		t.Fatalf("pong missing timestamp: %v", frame)
	}
}

func TestWebSocketRejectsBadCredentials(t *testing.T) {
	gin.SetMode(gin.TestMode)
	deps := newTestDeps(t)
	srv := httptest.NewServer(NewRouter(deps))
	defer srv.Close()

	cases := []struct {
		query string
		code  int
	}{
		{"", handler.CloseMissingToken},
		{"?token=bogus", handler.CloseInvalidToken},
		{"?role=gremlin", handler.CloseBadRole},
	}
	for _, tc := range cases {
		conn := dialWS(t, srv, tc.query)
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err := conn.ReadMessage()
		closeErr, ok := err.(*websocket.CloseError)
		if !ok || closeErr.Code != tc.code {
			t.Fatalf("query %q: expected close %d, got %v", tc.query, tc.code, err)
		}
	}
}

func TestWebSocketChatFlow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	deps := newTestDeps(t)
	srv := httptest.NewServer(NewRouter(deps))
	defer srv.Close()

	adaToken := passTestAgent(t, deps, "ada")
	bobToken := passTestAgent(t, deps, "bob")

	ada := dialWS(t, srv, "?token="+adaToken)
	readUntil(t, ada, "connected")
	bob := dialWS(t, srv, "?token="+bobToken)
	readUntil(t, bob, "connected")
	readUntil(t, ada, "agent_joined")

	if err := ada.WriteJSON(map[string]any{"type": "message", "room": "general", "content": "hello"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	frame := readUntil(t, bob, "message")
	msg, _ := frame["message"].(map[string]any)
	if msg["content"] != "hello" || msg["room"] != "general" {
		t.Fatalf("wrong message: %v", msg)
	}
}

func TestWebSocketSpectatorIsReadOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	deps := newTestDeps(t)
	srv := httptest.NewServer(NewRouter(deps))
	defer srv.Close()

	spec := dialWS(t, srv, "?role=spectator")
	welcome := readFrame(t, spec)
	if welcome["role"] != "spectator" {
		t.Fatalf("unexpected welcome: %v", welcome)
	}

	if err := spec.WriteJSON(map[string]any{"type": "message", "room": "general", "content": "hi"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	frame := readUntil(t, spec, "error")
	if frame["code"] != "read_only" {
		t.Fatalf("expected read_only, got %v", frame)
	}
}
