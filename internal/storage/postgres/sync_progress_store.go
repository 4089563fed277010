package postgres

import (
	"context"
	"fmt"

	"solana-nft-market/internal/storage"
)

// SyncProgressStore is a PostgreSQL implementation of storage.SyncProgressStore.
type SyncProgressStore struct {
	pool *Pool
}

// NewSyncProgressStore creates a new PostgreSQL sync progress store.
func NewSyncProgressStore(pool *Pool) *SyncProgressStore {
	return &SyncProgressStore{pool: pool}
}

// GetLastSynced returns progress for a program.
func (s *SyncProgressStore) GetLastSynced(ctx context.Context, programID string) (*storage.SyncProgress, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT program_id, slot
		FROM sync_progress
		WHERE program_id = $1
	`, programID)

	var (
		progress storage.SyncProgress
		slot     int64
	)
	if err := row.Scan(&progress.ProgramID, &slot); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get sync progress: %w", err)
	}
	progress.Slot = uint64(slot)
	return &progress, nil
}

// SetLastSynced saves progress.
// Uses upsert; a lower slot than the stored one is ignored.
func (s *SyncProgressStore) SetLastSynced(ctx context.Context, progress *storage.SyncProgress) error {
	if progress == nil || progress.ProgramID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_progress (program_id, slot, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (program_id) DO UPDATE
		SET slot = GREATEST(sync_progress.slot, EXCLUDED.slot),
		    updated_at = NOW()
	`, progress.ProgramID, int64(progress.Slot))
	if err != nil {
		return fmt.Errorf("set sync progress: %w", err)
	}
	return nil
}

var _ storage.SyncProgressStore = (*SyncProgressStore)(nil)
