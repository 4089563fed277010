package storage

import "context"

// SyncProgress is the last cluster slot mirrored into the ledger.
type SyncProgress struct {
	ProgramID string // program whose accounts are mirrored
	Slot      uint64 // highest cluster slot applied
}

// SyncProgressStore persists mirror state so a restart resumes live updates
// without repeating the full account import.
type SyncProgressStore interface {
	// GetLastSynced returns progress for a program.
	// Returns ErrNotFound if nothing has been saved yet.
	GetLastSynced(ctx context.Context, programID string) (*SyncProgress, error)

	// SetLastSynced saves progress. Slots never move backwards.
	SetLastSynced(ctx context.Context, progress *SyncProgress) error
}
