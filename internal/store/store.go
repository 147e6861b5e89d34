// Package store is the persistence port. The coordinator talks only to the
// Store interface; whether the backing is durable (badger + bluge) or
// memory-only is decided once at startup. In-memory live state remains
// authoritative either way — store failures on the write path degrade
// durability, never live behavior.
package store

import (
	"context"
	"errors"

	"agent-lounge/internal/model"
)

var ErrNotFound = errors.New("store: not found")

// Page is one slice of a room's history, oldest-first, with a cursor for
// walking further back.
type Page struct {
	Messages []model.Message
	HasMore  bool
	OldestID string
}

type Store interface {
	SaveMessage(ctx context.Context, msg model.Message) error
	// LoadMessages returns up to limit messages older than the before
	// cursor (a message id; empty means newest). Empty room spans all rooms.
	LoadMessages(ctx context.Context, room string, limit int, before string) (Page, error)
	SearchMessages(ctx context.Context, query, room string, limit int) ([]model.Message, error)
	CountMessages(ctx context.Context, room string) (int, error)

	SaveAgent(ctx context.Context, agent model.Agent) error
	LoadAllAgents(ctx context.Context) ([]model.Agent, error)
	UpdateAgentStatus(ctx context.Context, id string, status model.AgentStatus, passedAt int64) error
	UpdateAgentProfile(ctx context.Context, id string, bio, color, emoji string) error
	DeleteAgent(ctx context.Context, id string) error

	SaveRoom(ctx context.Context, room model.Room) error
	LoadAllRooms(ctx context.Context) ([]model.Room, error)
	UpdateRoom(ctx context.Context, name, description, prompt string) error
	DeleteRoom(ctx context.Context, name string) error

	// Durable reports whether writes survive a restart. Callers use it to
	// decide whether read failures are user-visible or silently empty.
	Durable() bool
	Close() error
}
