package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"agent-lounge/internal/auth"
	"agent-lounge/internal/hub"
	"agent-lounge/internal/lounge"
	"agent-lounge/internal/registry"
	"agent-lounge/internal/rooms"
	"agent-lounge/internal/store"
	"agent-lounge/internal/throttle"
	"agent-lounge/internal/vote"
)

const testAdminPassword = "hunter2-but-longer"

func newTestDeps(t *testing.T) Deps {
	t.Helper()

	reg := registry.New(registry.Config{
		Questions:     3,
		Threshold:     3,
		TimeBudget:    10 * time.Second,
		MaxNameLength: 64,
	})
	thr := throttle.New(throttle.Config{MaxConsecutive: 100})
	votes := vote.New(vote.Config{
		Quorum:          3,
		Duration:        time.Minute,
		TargetCooldown:  10 * time.Minute,
		Grace:           time.Minute,
		MaxReasonLength: 200,
	})
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	l := lounge.New(lounge.Config{
		RecentLimit:       50,
		MaxMessageLength:  4000,
		MaxRoomNameLength: 50,
		KickBan:           10 * time.Minute,
	}, log, reg, rooms.New("general"), thr, votes, hub.New(), store.NewMemory())

	hash, err := auth.HashPassword(testAdminPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	return Deps{
		Lounge:            l,
		TokenConfig:       auth.TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"},
		AdminPasswordHash: hash,
	}
}

func doJSON(t *testing.T, r http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestRegisterAndChallengeFlow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	deps := newTestDeps(t)
	r := NewRouter(deps)

	w, resp := doJSON(t, r, http.MethodPost, "/v1/agents", "", map[string]any{"name": "ada"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	token, _ := resp["token"].(string)
	if token == "" {
		t.Fatal("no token in registration response")
	}
	agentInfo, _ := resp["agent"].(map[string]any)
	agentID, _ := agentInfo["id"].(string)
	if agentInfo["status"] != "unchallenged" {
		t.Fatalf("expected unchallenged, got %v", agentInfo["status"])
	}

	// Duplicate name is refused.
	w, _ = doJSON(t, r, http.MethodPost, "/v1/agents", "", map[string]any{"name": "ada"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}

	// A wrong submission does not pass.
	w, _ = doJSON(t, r, http.MethodPost, "/v1/challenge", token, map[string]any{})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w, resp = doJSON(t, r, http.MethodPost, "/v1/challenge/submit", token, map[string]any{"answers": []int{999999, 999999, 999999}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if passed, _ := resp["passed"].(bool); passed {
		t.Fatal("wrong answers should not pass")
	}

	// Submitting again without a fresh issuance is refused.
	w, _ = doJSON(t, r, http.MethodPost, "/v1/challenge/submit", token, map[string]any{"answers": []int{999999, 999999, 999999}})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}

	// Reissue and answer correctly.
	problems, _, err := deps.Lounge.IssueChallenge(agentID)
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}
	answers := make([]int, len(problems))
	for i, p := range problems {
		answers[i] = p.Answer
	}
	w, resp = doJSON(t, r, http.MethodPost, "/v1/challenge/submit", token, map[string]any{"answers": answers})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if passed, _ := resp["passed"].(bool); !passed {
		t.Fatalf("correct answers did not pass: %s", w.Body.String())
	}

	// Status is now terminal.
	w, _ = doJSON(t, r, http.MethodPost, "/v1/challenge", token, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 after pass, got %d", w.Code)
	}

	w, resp = doJSON(t, r, http.MethodGet, "/v1/me", token, nil)
	if w.Code != http.StatusOK || resp["status"] != "passed" {
		t.Fatalf("expected passed in /v1/me, got %d: %s", w.Code, w.Body.String())
	}

	// Both attempts show up in the submission history, answers withheld.
	w, resp = doJSON(t, r, http.MethodGet, "/v1/me/submissions", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	subs, _ := resp["submissions"].([]any)
	if len(subs) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(subs))
	}
	first, _ := subs[0].(map[string]any)
	last, _ := subs[1].(map[string]any)
	if passed, _ := first["passed"].(bool); passed {
		t.Fatalf("first attempt recorded as passed: %v", first)
	}
	if passed, _ := last["passed"].(bool); !passed {
		t.Fatalf("second attempt not recorded as passed: %v", last)
	}
	if _, leaked := last["answers"]; leaked {
		t.Fatal("submission history leaked answers")
	}
}

func TestChallengeRequiresToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(newTestDeps(t))

	w, _ := doJSON(t, r, http.MethodPost, "/v1/challenge", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	w, _ = doJSON(t, r, http.MethodPost, "/v1/challenge", "bogus-token", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestPublicEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(newTestDeps(t))

	w, resp := doJSON(t, r, http.MethodGet, "/v1/rooms", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	roomList, _ := resp["rooms"].([]any)
	if len(roomList) != 1 {
		t.Fatalf("expected the default room, got %v", resp["rooms"])
	}

	w, _ = doJSON(t, r, http.MethodGet, "/v1/agents", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w, _ = doJSON(t, r, http.MethodGet, "/v1/vote", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with no active vote, got %d", w.Code)
	}

	w, _ = doJSON(t, r, http.MethodGet, "/v1/messages/search?q=", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty query, got %d", w.Code)
	}
}

func TestAdminFlow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(newTestDeps(t))

	w, _ := doJSON(t, r, http.MethodPost, "/v1/admin/login", "", map[string]any{"password": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	w, resp := doJSON(t, r, http.MethodPost, "/v1/admin/login", "", map[string]any{"password": testAdminPassword})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	adminToken, _ := resp["token"].(string)
	if adminToken == "" {
		t.Fatal("no admin token")
	}

	// Admin routes refuse missing credentials.
	w, _ = doJSON(t, r, http.MethodPost, "/v1/admin/rooms", "", map[string]any{"name": "ops"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	w, _ = doJSON(t, r, http.MethodPost, "/v1/admin/rooms", adminToken, map[string]any{"name": "ops", "description": "operations"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	w, _ = doJSON(t, r, http.MethodPut, "/v1/admin/rooms/ops", adminToken, map[string]any{"description": "ops chatter"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w, _ = doJSON(t, r, http.MethodDelete, "/v1/admin/rooms/general", adminToken, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 deleting default room, got %d", w.Code)
	}
	w, _ = doJSON(t, r, http.MethodDelete, "/v1/admin/rooms/ops", adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}
