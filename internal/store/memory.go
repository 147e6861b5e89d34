package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"agent-lounge/internal/model"
)

// Memory is the fallback Store used when no data directory is configured.
// Everything lives in process memory and vanishes on restart.
type Memory struct {
	mu       sync.RWMutex
	messages []model.Message
	agents   map[string]model.Agent
	rooms    map[string]model.Room
}

func NewMemory() *Memory {
	return &Memory{
		agents: make(map[string]model.Agent),
		rooms:  make(map[string]model.Room),
	}
}

func (m *Memory) Durable() bool { return false }
func (m *Memory) Close() error  { return nil }

func (m *Memory) SaveMessage(_ context.Context, msg model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = append(m.messages, msg)
	return nil
}

func (m *Memory) LoadMessages(_ context.Context, room string, limit int, before string) (Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	filtered := m.filterByRoom(room)

	end := len(filtered)
	if before != "" {
		end = 0
		for i, msg := range filtered {
			if msg.ID == before {
				end = i
				break
			}
		}
	}

	start := end - limit
	if start < 0 {
		start = 0
	}

	page := Page{
		Messages: append([]model.Message(nil), filtered[start:end]...),
		HasMore:  start > 0,
	}
	if len(page.Messages) > 0 {
		page.OldestID = page.Messages[0].ID
	}
	return page, nil
}

func (m *Memory) SearchMessages(_ context.Context, query, room string, limit int) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	needle := strings.ToLower(query)
	var matches []model.Message
	for _, msg := range m.filterByRoom(room) {
		if strings.Contains(strings.ToLower(msg.Content), needle) {
			matches = append(matches, msg)
		}
	}
	// Keep the most recent matches, chronological within the result.
	if len(matches) > limit {
		matches = matches[len(matches)-limit:]
	}
	return matches, nil
}

func (m *Memory) CountMessages(_ context.Context, room string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if room == "" {
		return len(m.messages), nil
	}
	count := 0
	for _, msg := range m.messages {
		if msg.Room == room {
			count++
		}
	}
	return count, nil
}

// filterByRoom returns a copy ordered by (timestamp, id), matching the
// durable store's key order.
func (m *Memory) filterByRoom(room string) []model.Message {
	var filtered []model.Message
	for _, msg := range m.messages {
		if room == "" || msg.Room == room {
			filtered = append(filtered, msg)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].Timestamp != filtered[j].Timestamp {
			return filtered[i].Timestamp < filtered[j].Timestamp
		}
		return filtered[i].ID < filtered[j].ID
	})
	return filtered
}

func (m *Memory) SaveAgent(_ context.Context, agent model.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.agents[agent.ID] = agent
	return nil
}

func (m *Memory) LoadAllAgents(_ context.Context) ([]model.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]model.Agent, 0, len(m.agents))
	for _, agent := range m.agents {
		list = append(list, agent)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt < list[j].CreatedAt })
	return list, nil
}

func (m *Memory) UpdateAgentStatus(_ context.Context, id string, status model.AgentStatus, passedAt int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, ok := m.agents[id]
	if !ok {
		return ErrNotFound
	}
	agent.Status = status
	agent.PassedAt = passedAt
	m.agents[id] = agent
	return nil
}

func (m *Memory) UpdateAgentProfile(_ context.Context, id string, bio, color, emoji string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, ok := m.agents[id]
	if !ok {
		return ErrNotFound
	}
	agent.Bio = bio
	agent.Color = color
	agent.Emoji = emoji
	m.agents[id] = agent
	return nil
}

func (m *Memory) DeleteAgent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.agents, id)
	return nil
}

func (m *Memory) SaveRoom(_ context.Context, room model.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rooms[room.Name] = room
	return nil
}

func (m *Memory) LoadAllRooms(_ context.Context) ([]model.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]model.Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		list = append(list, room)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (m *Memory) UpdateRoom(_ context.Context, name, description, prompt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[name]
	if !ok {
		return ErrNotFound
	}
	room.Description = description
	room.Prompt = prompt
	m.rooms[name] = room
	return nil
}

func (m *Memory) DeleteRoom(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.rooms, name)
	return nil
}
