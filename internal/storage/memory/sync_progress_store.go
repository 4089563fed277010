package memory

import (
	"context"
	"sync"

	"solana-nft-market/internal/storage"
)

// SyncProgressStore is an in-memory implementation of storage.SyncProgressStore.
type SyncProgressStore struct {
	mu       sync.RWMutex
	progress map[string]uint64 // program id -> slot
}

// NewSyncProgressStore creates a new in-memory sync progress store.
func NewSyncProgressStore() *SyncProgressStore {
	return &SyncProgressStore{
		progress: make(map[string]uint64),
	}
}

// GetLastSynced returns progress for a program.
func (s *SyncProgressStore) GetLastSynced(_ context.Context, programID string) (*storage.SyncProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slot, ok := s.progress[programID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.SyncProgress{ProgramID: programID, Slot: slot}, nil
}

// SetLastSynced saves progress. Older slots are ignored.
func (s *SyncProgressStore) SetLastSynced(_ context.Context, progress *storage.SyncProgress) error {
	if progress == nil || progress.ProgramID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.progress[progress.ProgramID]; ok && current >= progress.Slot {
		return nil
	}
	s.progress[progress.ProgramID] = progress.Slot
	return nil
}

var _ storage.SyncProgressStore = (*SyncProgressStore)(nil)
