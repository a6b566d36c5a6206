package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentforge/agentforge/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentforge.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLogEventAssignsIncreasingIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id1, err := s.LogEvent(ctx, model.Event{AgentID: "a1", Kind: model.EventSpawned, Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}
	id2, err := s.LogEvent(ctx, model.Event{AgentID: "a1", Kind: model.EventStatusChange, Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}
	if id2 <= id1 {
		t.Errorf("expected increasing event ids, got %d then %d", id1, id2)
	}
}

func TestRecentEventsFiltersByAgentAndOrdersNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.LogEvent(ctx, model.Event{AgentID: "a1", Kind: model.EventSpawned, Timestamp: time.Now()})
	s.LogEvent(ctx, model.Event{AgentID: "a2", Kind: model.EventSpawned, Timestamp: time.Now()})
	s.LogEvent(ctx, model.Event{AgentID: "a1", Kind: model.EventKilled, Timestamp: time.Now()})

	events, err := s.RecentEvents(ctx, "a1", 10)
	if err != nil {
		t.Fatalf("RecentEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events for a1, got %d", len(events))
	}
	if events[0].Kind != model.EventKilled {
		t.Errorf("expected newest-first ordering, got %v first", events[0].Kind)
	}
}

func TestRecentEventsPreservesPayload(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.LogEvent(ctx, model.Event{
		AgentID:   "a1",
		Kind:      model.EventError,
		Payload:   map[string]interface{}{"message": "boom"},
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}

	events, err := s.RecentEvents(ctx, "a1", 1)
	if err != nil {
		t.Fatalf("RecentEvents() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Payload["message"] != "boom" {
		t.Errorf("payload round-trip failed: %+v", events[0].Payload)
	}
}

func TestSaveSnapshotUpsertsAtMostOnePerAgent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := model.Snapshot{
		AgentID:      "a1",
		Status:       model.StatusWorking,
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
	}
	if err := s.SaveSnapshot(ctx, base); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	updated := base
	updated.Status = model.StatusIdle
	updated.LastResponse = "done"
	if err := s.SaveSnapshot(ctx, updated); err != nil {
		t.Fatalf("SaveSnapshot() update error = %v", err)
	}

	snaps, err := s.LoadSnapshots(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshots() error = %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("expected exactly one snapshot for a1, got %d", len(snaps))
	}
	if snaps[0].Status != model.StatusIdle || snaps[0].LastResponse != "done" {
		t.Errorf("expected updated snapshot fields, got %+v", snaps[0])
	}
}

func TestDeleteSnapshotRemovesRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveSnapshot(ctx, model.Snapshot{AgentID: "a1", Status: model.StatusStopped, CreatedAt: time.Now(), LastActivity: time.Now()}); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	if err := s.DeleteSnapshot(ctx, "a1"); err != nil {
		t.Fatalf("DeleteSnapshot() error = %v", err)
	}
	snaps, err := s.LoadSnapshots(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshots() error = %v", err)
	}
	if len(snaps) != 0 {
		t.Errorf("expected no snapshots after delete, got %d", len(snaps))
	}
}
