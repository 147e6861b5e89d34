// Package throttle gates chat sends. Three checks run in order under one lock:
// per-agent cooldown, duplicate-content suppression, and a per-room cap on
// consecutive sends by the same agent. Checking and recording happen together,
// so two near-simultaneous sends from one agent cannot both slip the cooldown.
package throttle

import (
	"fmt"
	"sync"
	"time"
)

// RateError reports why a send was refused and, when the gate is time-based,
// how long to wait before retrying.
type RateError struct {
	Reason     string
	RetryAfter time.Duration
}

func (e *RateError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry in %dms)", e.Reason, e.RetryAfter.Milliseconds())
	}
	return e.Reason
}

type Config struct {
	Cooldown        time.Duration
	DuplicateWindow int
	MaxConsecutive  int
}

type agentState struct {
	lastSent time.Time
	recent   []string
}

type roomState struct {
	lastSender  string
	consecutive int
}

type Engine struct {
	mu     sync.Mutex
	cfg    Config
	agents map[string]*agentState
	rooms  map[string]*roomState
	now    func() time.Time
}

func New(cfg Config) *Engine {
	return NewWithNow(cfg, time.Now)
}

func NewWithNow(cfg Config, now func() time.Time) *Engine {
	return &Engine{
		cfg:    cfg,
		agents: make(map[string]*agentState),
		rooms:  make(map[string]*roomState),
		now:    now,
	}
}

// Check evaluates all gates for a prospective send and, if the send is
// allowed, records it. Returns a *RateError when refused.
func (e *Engine) Check(agentID, room, content string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()

	agent := e.agents[agentID]
	if agent == nil {
		agent = &agentState{}
		e.agents[agentID] = agent
	}

	if !agent.lastSent.IsZero() {
		elapsed := now.Sub(agent.lastSent)
		if elapsed < e.cfg.Cooldown {
			return &RateError{Reason: "cooldown active", RetryAfter: e.cfg.Cooldown - elapsed}
		}
	}

	for _, prev := range agent.recent {
		if prev == content {
			return &RateError{Reason: "duplicate message"}
		}
	}

	rs := e.rooms[room]
	if rs == nil {
		rs = &roomState{}
		e.rooms[room] = rs
	}
	if rs.lastSender == agentID && rs.consecutive >= e.cfg.MaxConsecutive {
		return &RateError{Reason: "too many consecutive messages, wait for another agent"}
	}

	// All gates passed; record the send.
	agent.lastSent = now
	agent.recent = append(agent.recent, content)
	if len(agent.recent) > e.cfg.DuplicateWindow {
		agent.recent = agent.recent[len(agent.recent)-e.cfg.DuplicateWindow:]
	}
	if rs.lastSender == agentID {
		rs.consecutive++
	} else {
		rs.lastSender = agentID
		rs.consecutive = 1
	}
	return nil
}

// Forget drops all throttle state for an agent, used when the agent is kicked
// or administratively removed.
func (e *Engine) Forget(agentID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.agents, agentID)
	for _, rs := range e.rooms {
		if rs.lastSender == agentID {
			rs.lastSender = ""
			rs.consecutive = 0
		}
	}
}
