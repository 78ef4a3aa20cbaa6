package memory

import (
	"sync"

	"github.com/chypac/olimpiafa/internal/domain"
)

// SnapshotStore is an in-memory local store for tests and demo runs.
type SnapshotStore struct {
	mu   sync.Mutex
	snap *domain.Snapshot
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

func (s *SnapshotStore) Write(snapshot domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := snapshot
	copied.Answers = copyStringMap(snapshot.Answers)
	copied.Timers = copyIntMap(snapshot.Timers)
	s.snap = &copied
	return nil
}

func (s *SnapshotStore) Read() (*domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return nil, nil
	}
	copied := *s.snap
	copied.Answers = copyStringMap(s.snap.Answers)
	copied.Timers = copyIntMap(s.snap.Timers)
	return &copied, nil
}

func (s *SnapshotStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = nil
	return nil
}

func copyStringMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyIntMap(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
