package rooms

import (
	"errors"
	"testing"

	"agent-lounge/internal/model"
)

func TestJoinCreatesOnFirstReference(t *testing.T) {
	d := New("general")

	created := d.Join("lab", "a1")
	if !created {
		t.Fatalf("expected room creation")
	}
	if created := d.Join("lab", "a2"); created {
		t.Fatalf("second join must not re-create")
	}
	// Idempotent for the same member.
	d.Join("lab", "a1")

	members := d.Members("lab")
	if len(members) != 2 || members[0] != "a1" || members[1] != "a2" {
		t.Fatalf("unexpected members %v", members)
	}
}

func TestLeaveAndEmptyRoomSurvives(t *testing.T) {
	d := New("general")
	d.Join("lab", "a1")

	if !d.Leave("lab", "a1") {
		t.Fatalf("expected leave to succeed")
	}
	if d.Leave("lab", "a1") {
		t.Fatalf("second leave must report false")
	}

	// Empty non-default rooms stay listed.
	if _, ok := d.Get("lab"); !ok {
		t.Fatalf("empty room must not be deleted")
	}
	if d.MemberCount("lab") != 0 {
		t.Fatalf("expected empty room")
	}
}

func TestLeaveAll(t *testing.T) {
	d := New("general")
	d.Join("general", "a1")
	d.Join("lab", "a1")
	d.Join("lab", "a2")

	left := d.LeaveAll("a1")
	if len(left) != 2 || left[0] != "general" || left[1] != "lab" {
		t.Fatalf("unexpected vacated rooms %v", left)
	}
	if d.IsMember("lab", "a1") {
		t.Fatalf("a1 still a member after LeaveAll")
	}
	if !d.IsMember("lab", "a2") {
		t.Fatalf("a2 should be unaffected")
	}
	if left := d.LeaveAll("a1"); left != nil {
		t.Fatalf("expected no rooms on second LeaveAll, got %v", left)
	}
}

func TestAdminLifecycle(t *testing.T) {
	d := New("general")

	if err := d.Create(model.Room{Name: "ops", Description: "operations", Prompt: "be terse"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := d.Create(model.Room{Name: "ops"}); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	room, err := d.Update("ops", "new desc", "new prompt")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if room.Description != "new desc" || room.Prompt != "new prompt" {
		t.Fatalf("update not applied: %+v", room)
	}

	if err := d.Delete("general"); !errors.Is(err, ErrDefaultRoom) {
		t.Fatalf("expected ErrDefaultRoom, got %v", err)
	}
	if err := d.Delete("ops"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := d.Delete("ops"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRestoreKeepsDefault(t *testing.T) {
	d := New("general")
	d.Restore([]model.Room{
		{Name: "general", Description: "persisted description"},
		{Name: "lab", Description: "science"},
	})

	got, _ := d.Get("general")
	if got.Description != "persisted description" {
		t.Fatalf("restore must update default room metadata, got %+v", got)
	}
	if _, ok := d.Get("lab"); !ok {
		t.Fatalf("expected restored room")
	}
	if len(d.List()) != 2 {
		t.Fatalf("unexpected room count %d", len(d.List()))
	}
}
