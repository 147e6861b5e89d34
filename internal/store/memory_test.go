package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"agent-lounge/internal/model"
)

func seedMessages(t *testing.T, s Store, room string, n int) []model.Message {
	t.Helper()
	msgs := make([]model.Message, 0, n)
	for i := 0; i < n; i++ {
		msg := model.Message{
			ID:         fmt.Sprintf("%s-msg-%03d", room, i),
			Room:       room,
			SenderID:   "agent-1",
			SenderName: "ada",
			Content:    fmt.Sprintf("note %d", i),
			Timestamp:  int64(1000 + i),
		}
		if err := s.SaveMessage(context.Background(), msg); err != nil {
			t.Fatalf("SaveMessage: %v", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func TestMemoryLoadMessagesLatestPage(t *testing.T) {
	s := NewMemory()
	msgs := seedMessages(t, s, "general", 10)

	page, err := s.LoadMessages(context.Background(), "general", 4, "")
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(page.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(page.Messages))
	}
	if page.Messages[0].ID != msgs[6].ID || page.Messages[3].ID != msgs[9].ID {
		t.Fatalf("wrong window: %s..%s", page.Messages[0].ID, page.Messages[3].ID)
	}
	if !page.HasMore {
		t.Fatal("expected HasMore")
	}
	if page.OldestID != msgs[6].ID {
		t.Fatalf("wrong OldestID %q", page.OldestID)
	}
}

func TestMemoryLoadMessagesBeforeCursor(t *testing.T) {
	s := NewMemory()
	msgs := seedMessages(t, s, "general", 10)

	page, err := s.LoadMessages(context.Background(), "general", 4, msgs[6].ID)
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(page.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(page.Messages))
	}
	if page.Messages[0].ID != msgs[2].ID || page.Messages[3].ID != msgs[5].ID {
		t.Fatalf("wrong window: %s..%s", page.Messages[0].ID, page.Messages[3].ID)
	}

	// Walk to the start of history.
	page, err = s.LoadMessages(context.Background(), "general", 4, msgs[2].ID)
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(page.Messages) != 2 || page.HasMore {
		t.Fatalf("expected final short page, got %d hasMore=%v", len(page.Messages), page.HasMore)
	}
	if page.Messages[0].ID != msgs[0].ID {
		t.Fatalf("wrong first message %q", page.Messages[0].ID)
	}
}

func TestMemoryLoadMessagesAllRooms(t *testing.T) {
	s := NewMemory()
	seedMessages(t, s, "general", 3)
	seedMessages(t, s, "dev", 3)

	page, err := s.LoadMessages(context.Background(), "", 10, "")
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(page.Messages) != 6 {
		t.Fatalf("expected 6 messages across rooms, got %d", len(page.Messages))
	}
	for i := 1; i < len(page.Messages); i++ {
		prev, cur := page.Messages[i-1], page.Messages[i]
		if cur.Timestamp < prev.Timestamp {
			t.Fatal("messages not in chronological order")
		}
		if cur.Timestamp == prev.Timestamp && cur.ID < prev.ID {
			t.Fatal("equal timestamps not ordered by id")
		}
	}
}

func TestMemoryLoadMessagesEmptyRoom(t *testing.T) {
	s := NewMemory()
	page, err := s.LoadMessages(context.Background(), "general", 5, "")
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(page.Messages) != 0 || page.HasMore || page.OldestID != "" {
		t.Fatalf("expected empty page, got %+v", page)
	}
}

func TestMemorySearchMessages(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	save := func(id, room, content string, ts int64) {
		err := s.SaveMessage(ctx, model.Message{ID: id, Room: room, SenderID: "a", Content: content, Timestamp: ts})
		if err != nil {
			t.Fatalf("SaveMessage: %v", err)
		}
	}
	save("m1", "general", "deploy finished", 1)
	save("m2", "general", "Deploy failed again", 2)
	save("m3", "dev", "deploy rollback", 3)

	hits, err := s.SearchMessages(ctx, "deploy", "general", 10)
	if err != nil {
		t.Fatalf("SearchMessages: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits in general, got %d", len(hits))
	}
	if hits[0].ID != "m1" || hits[1].ID != "m2" {
		t.Fatalf("wrong hit order: %s, %s", hits[0].ID, hits[1].ID)
	}

	hits, err = s.SearchMessages(ctx, "deploy", "", 10)
	if err != nil {
		t.Fatalf("SearchMessages: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits across rooms, got %d", len(hits))
	}
}

func TestMemoryAgentLifecycle(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	agent := model.Agent{ID: "a1", DisplayName: "ada", Status: model.StatusUnchallenged, CreatedAt: 100}
	if err := s.SaveAgent(ctx, agent); err != nil {
		t.Fatalf("SaveAgent: %v", err)
	}

	if err := s.UpdateAgentStatus(ctx, "a1", model.StatusPassed, 200); err != nil {
		t.Fatalf("UpdateAgentStatus: %v", err)
	}
	if err := s.UpdateAgentProfile(ctx, "a1", "builds things", "#ff8800", "🤖"); err != nil {
		t.Fatalf("UpdateAgentProfile: %v", err)
	}

	agents, err := s.LoadAllAgents(ctx)
	if err != nil {
		t.Fatalf("LoadAllAgents: %v", err)
	}
	if len(agents) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(agents))
	}
	got := agents[0]
	if got.Status != model.StatusPassed || got.PassedAt != 200 {
		t.Fatalf("status not updated: %+v", got)
	}
	if got.Bio != "builds things" || got.Color != "#ff8800" {
		t.Fatalf("profile not updated: %+v", got)
	}

	if err := s.UpdateAgentStatus(ctx, "missing", model.StatusPassed, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.DeleteAgent(ctx, "a1"); err != nil {
		t.Fatalf("DeleteAgent: %v", err)
	}
	agents, _ = s.LoadAllAgents(ctx)
	if len(agents) != 0 {
		t.Fatalf("expected no agents after delete, got %d", len(agents))
	}
}

func TestMemoryRoomLifecycle(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	if err := s.SaveRoom(ctx, model.Room{Name: "dev", Description: "dev talk", CreatedAt: 1}); err != nil {
		t.Fatalf("SaveRoom: %v", err)
	}
	if err := s.UpdateRoom(ctx, "dev", "dev chatter", "stay on topic"); err != nil {
		t.Fatalf("UpdateRoom: %v", err)
	}
	if err := s.UpdateRoom(ctx, "missing", "", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	rooms, err := s.LoadAllRooms(ctx)
	if err != nil {
		t.Fatalf("LoadAllRooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0].Description != "dev chatter" || rooms[0].Prompt != "stay on topic" {
		t.Fatalf("room not updated: %+v", rooms)
	}

	if err := s.DeleteRoom(ctx, "dev"); err != nil {
		t.Fatalf("DeleteRoom: %v", err)
	}
	rooms, _ = s.LoadAllRooms(ctx)
	if len(rooms) != 0 {
		t.Fatalf("expected no rooms after delete, got %d", len(rooms))
	}
}

func TestMemoryCountMessages(t *testing.T) {
	s := NewMemory()
	seedMessages(t, s, "general", 5)
	seedMessages(t, s, "dev", 2)

	n, err := s.CountMessages(context.Background(), "general")
	if err != nil || n != 5 {
		t.Fatalf("expected 5, got %d (%v)", n, err)
	}
	n, err = s.CountMessages(context.Background(), "")
	if err != nil || n != 7 {
		t.Fatalf("expected 7, got %d (%v)", n, err)
	}
}
