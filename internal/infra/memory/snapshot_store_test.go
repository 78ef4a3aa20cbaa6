package memory

import (
	"testing"
	"time"

	"github.com/chypac/olimpiafa/internal/domain"
)

func TestSnapshotStoreCopiesMaps(t *testing.T) {
	store := NewSnapshotStore()
	answers := map[string]string{"q1": "4"}
	if err := store.Write(domain.Snapshot{ParticipantID: "demo-1", Answers: answers, SavedAt: time.Now()}); err != nil {
		t.Fatalf("write: %v", err)
	}

	answers["q1"] = "mutated"
	got, err := store.Read()
	if err != nil || got == nil {
		t.Fatalf("read: %+v err=%v", got, err)
	}
	if got.Answers["q1"] != "4" {
		t.Fatalf("expected stored snapshot isolated from caller maps, got %q", got.Answers["q1"])
	}
}

func TestSnapshotStoreSingleRecord(t *testing.T) {
	store := NewSnapshotStore()
	_ = store.Write(domain.Snapshot{ParticipantID: "demo-1", SavedAt: time.Now()})
	_ = store.Write(domain.Snapshot{ParticipantID: "demo-2", SavedAt: time.Now()})

	got, _ := store.Read()
	if got == nil || got.ParticipantID != "demo-2" {
		t.Fatalf("expected the latest snapshot to win, got %+v", got)
	}

	if err := store.Delete(); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := store.Read(); got != nil {
		t.Fatalf("expected empty store after delete, got %+v", got)
	}
}
