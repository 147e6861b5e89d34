// Package rooms tracks named rooms and their member sets. Rooms are created on
// first reference and are never auto-deleted when they empty out; descriptions
// and prompts persist independently of membership. Only an administrative
// delete removes a room.
package rooms

import (
	"errors"
	"sort"
	"sync"
	"time"

	"agent-lounge/internal/model"
)

var (
	ErrNotFound    = errors.New("room not found")
	ErrExists      = errors.New("room already exists")
	ErrDefaultRoom = errors.New("default room cannot be deleted")
)

type room struct {
	meta    model.Room
	members map[string]struct{}
}

type Directory struct {
	mu          sync.RWMutex
	rooms       map[string]*room
	defaultRoom string
	now         func() time.Time
}

func New(defaultRoom string) *Directory {
	return NewWithNow(defaultRoom, time.Now)
}

func NewWithNow(defaultRoom string, now func() time.Time) *Directory {
	d := &Directory{
		rooms:       make(map[string]*room),
		defaultRoom: defaultRoom,
		now:         now,
	}
	d.rooms[defaultRoom] = &room{
		meta: model.Room{
			Name:        defaultRoom,
			Description: "The lounge floor. Everyone starts here.",
			CreatedAt:   now().UnixMilli(),
		},
		members: make(map[string]struct{}),
	}
	return d
}

func (d *Directory) DefaultRoom() string { return d.defaultRoom }

// Join adds the agent to the room, creating the room on first reference.
// Reports whether the room was created. Idempotent for existing members.
func (d *Directory) Join(name, agentID string) (created bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[name]
	if !ok {
		r = &room{
			meta:    model.Room{Name: name, CreatorID: agentID, CreatedAt: d.now().UnixMilli()},
			members: make(map[string]struct{}),
		}
		d.rooms[name] = r
		created = true
	}
	r.members[agentID] = struct{}{}
	return created
}

// Leave removes the agent from the room; reports whether it was a member.
func (d *Directory) Leave(name, agentID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[name]
	if !ok {
		return false
	}
	if _, member := r.members[agentID]; !member {
		return false
	}
	delete(r.members, agentID)
	return true
}

// LeaveAll vacates every room the agent is in and returns their names, for
// downstream departure notices. Used on disconnect.
func (d *Directory) LeaveAll(agentID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var left []string
	for name, r := range d.rooms {
		if _, member := r.members[agentID]; member {
			delete(r.members, agentID)
			left = append(left, name)
		}
	}
	sort.Strings(left)
	return left
}

func (d *Directory) IsMember(name, agentID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.rooms[name]
	if !ok {
		return false
	}
	_, member := r.members[agentID]
	return member
}

func (d *Directory) Members(name string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.rooms[name]
	if !ok {
		return nil
	}
	members := make([]string, 0, len(r.members))
	for id := range r.members {
		members = append(members, id)
	}
	sort.Strings(members)
	return members
}

func (d *Directory) Get(name string) (model.Room, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.rooms[name]
	if !ok {
		return model.Room{}, false
	}
	return r.meta, true
}

func (d *Directory) List() []model.Room {
	d.mu.RLock()
	defer d.mu.RUnlock()

	list := make([]model.Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		list = append(list, r.meta)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

func (d *Directory) MemberCount(name string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.rooms[name]
	if !ok {
		return 0
	}
	return len(r.members)
}

// Create registers a room with metadata ahead of any member joining it.
// Administrative action; an existing room is an error.
func (d *Directory) Create(meta model.Room) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.rooms[meta.Name]; ok {
		return ErrExists
	}
	if meta.CreatedAt == 0 {
		meta.CreatedAt = d.now().UnixMilli()
	}
	d.rooms[meta.Name] = &room{meta: meta, members: make(map[string]struct{})}
	return nil
}

// Update replaces a room's description and prompt.
func (d *Directory) Update(name, description, prompt string) (model.Room, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rooms[name]
	if !ok {
		return model.Room{}, ErrNotFound
	}
	r.meta.Description = description
	r.meta.Prompt = prompt
	return r.meta, nil
}

// Delete removes a room entirely. The default room is protected.
func (d *Directory) Delete(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if name == d.defaultRoom {
		return ErrDefaultRoom
	}
	if _, ok := d.rooms[name]; !ok {
		return ErrNotFound
	}
	delete(d.rooms, name)
	return nil
}

// Restore loads persisted rooms at startup, keeping the seeded default room
// when the stored set lacks it.
func (d *Directory) Restore(list []model.Room) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, meta := range list {
		if existing, ok := d.rooms[meta.Name]; ok {
			existing.meta = meta
			continue
		}
		d.rooms[meta.Name] = &room{meta: meta, members: make(map[string]struct{})}
	}
}
