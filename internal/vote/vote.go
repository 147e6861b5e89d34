// Package vote runs the community vote-kick protocol. At most one session is
// active at a time. The target's start-cooldown begins the moment a vote
// starts, whatever the eventual outcome, so a failed vote still shields the
// target from immediate re-targeting.
package vote

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"agent-lounge/internal/model"
)

var (
	ErrNotPassed      = errors.New("initiator has not passed the challenge")
	ErrSelfVote       = errors.New("cannot start a vote against yourself")
	ErrVoteActive     = errors.New("another vote is already active")
	ErrTargetCooldown = errors.New("target is under vote cooldown")
	ErrInvalidReason  = errors.New("reason is empty or too long")
	ErrNoActiveVote   = errors.New("no matching active vote")
	ErrTargetBallot   = errors.New("the target cannot vote")
	ErrAlreadyVoted   = errors.New("already voted")
	ErrInvalidChoice  = errors.New("choice must be kick or keep")
)

type Config struct {
	Quorum          int
	Duration        time.Duration
	TargetCooldown  time.Duration
	Grace           time.Duration
	MaxReasonLength int
}

type Outcome struct {
	Result model.VoteResult
	Kick   int
	Keep   int
}

type Coordinator struct {
	mu        sync.Mutex
	cfg       Config
	active    *model.VoteSession
	cooldowns map[string]time.Time
	now       func() time.Time

	// OnExpire is invoked (outside the lock) when the expiry timer, rather
	// than an explicit Resolve call, settles a session. Set before first use.
	OnExpire func(model.VoteSession, Outcome)
}

func New(cfg Config) *Coordinator {
	return NewWithNow(cfg, time.Now)
}

func NewWithNow(cfg Config, now func() time.Time) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		cooldowns: make(map[string]time.Time),
		now:       now,
	}
}

// Start opens a session against target with the initiator's kick ballot
// pre-recorded, and schedules auto-resolution at expiry.
func (c *Coordinator) Start(initiator, target model.Agent, reason string) (model.VoteSession, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" || len(reason) > c.cfg.MaxReasonLength {
		return model.VoteSession{}, ErrInvalidReason
	}
	if initiator.Status != model.StatusPassed {
		return model.VoteSession{}, ErrNotPassed
	}
	if initiator.ID == target.ID {
		return model.VoteSession{}, ErrSelfVote
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.active != nil && !c.active.Resolved {
		return model.VoteSession{}, ErrVoteActive
	}
	if until, ok := c.cooldowns[target.ID]; ok && now.Before(until) {
		return model.VoteSession{}, ErrTargetCooldown
	}

	session := &model.VoteSession{
		ID:            uuid.New().String(),
		InitiatorID:   initiator.ID,
		InitiatorName: initiator.DisplayName,
		TargetID:      target.ID,
		TargetName:    target.DisplayName,
		Reason:        reason,
		Ballots:       map[string]model.VoteChoice{initiator.ID: model.ChoiceKick},
		StartedAt:     now.UnixMilli(),
		ExpiresAt:     now.Add(c.cfg.Duration).UnixMilli(),
	}
	c.active = session
	c.cooldowns[target.ID] = now.Add(c.cfg.TargetCooldown)

	id := session.ID
	time.AfterFunc(c.cfg.Duration, func() {
		if out, session, ok := c.resolve(id); ok {
			if cb := c.OnExpire; cb != nil {
				cb(session, out)
			}
		}
	})

	return copySession(session), nil
}

// Cast records one immutable ballot on the matching active, unexpired session.
// Caller is responsible for verifying the voter has passed the challenge.
func (c *Coordinator) Cast(voterID, voteID string, choice model.VoteChoice) (model.VoteSession, error) {
	if choice != model.ChoiceKick && choice != model.ChoiceKeep {
		return model.VoteSession{}, ErrInvalidChoice
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.active
	if s == nil || s.ID != voteID || s.Resolved || c.now().UnixMilli() >= s.ExpiresAt {
		return model.VoteSession{}, ErrNoActiveVote
	}
	if voterID == s.TargetID {
		return model.VoteSession{}, ErrTargetBallot
	}
	if _, voted := s.Ballots[voterID]; voted {
		return model.VoteSession{}, ErrAlreadyVoted
	}

	s.Ballots[voterID] = choice
	return copySession(s), nil
}

// Resolve settles the matching session. Idempotent: once a session is
// resolved, further calls report false and change nothing.
func (c *Coordinator) Resolve(voteID string) (Outcome, model.VoteSession, bool) {
	return c.resolve(voteID)
}

func (c *Coordinator) resolve(voteID string) (Outcome, model.VoteSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.active
	if s == nil || s.ID != voteID || s.Resolved {
		return Outcome{}, model.VoteSession{}, false
	}

	kick, keep := 0, 0
	for _, choice := range s.Ballots {
		if choice == model.ChoiceKick {
			kick++
		} else {
			keep++
		}
	}

	out := Outcome{Kick: kick, Keep: keep}
	switch {
	case kick+keep < c.cfg.Quorum:
		out.Result = model.ResultInsufficient
	case kick > keep:
		out.Result = model.ResultKicked
	default:
		out.Result = model.ResultKept
	}

	s.Resolved = true
	s.Result = out.Result

	// Keep the resolved session readable briefly, then discard it. The
	// callback re-checks identity: a newer vote may have replaced it.
	time.AfterFunc(c.cfg.Grace, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.active != nil && c.active.ID == voteID && c.active.Resolved {
			c.active = nil
		}
	})

	return out, copySession(s), true
}

// Current returns a snapshot of the active or recently resolved session.
func (c *Coordinator) Current() (model.VoteSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return model.VoteSession{}, false
	}
	return copySession(c.active), true
}

// CooldownRemaining reports how long before a new vote may target the agent.
func (c *Coordinator) CooldownRemaining(targetID string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	until, ok := c.cooldowns[targetID]
	if !ok {
		return 0
	}
	remaining := until.Sub(c.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

func copySession(s *model.VoteSession) model.VoteSession {
	out := *s
	out.Ballots = make(map[string]model.VoteChoice, len(s.Ballots))
	for id, choice := range s.Ballots {
		out.Ballots[id] = choice
	}
	return out
}
