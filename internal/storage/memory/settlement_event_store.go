package memory

import (
	"context"
	"sort"
	"sync"

	"solana-nft-market/internal/domain"
	"solana-nft-market/internal/storage"
)

// SettlementEventStore is an in-memory implementation of storage.SettlementEventStore.
type SettlementEventStore struct {
	mu     sync.RWMutex
	events []*domain.Settlement
	keys   map[string]struct{}
}

// NewSettlementEventStore creates a new in-memory settlement event store.
func NewSettlementEventStore() *SettlementEventStore {
	return &SettlementEventStore{
		keys: make(map[string]struct{}),
	}
}

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *SettlementEventStore) InsertBulk(_ context.Context, events []*domain.Settlement) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(events))

	// First pass: check for duplicates (existing + intra-batch)
	for _, e := range events {
		if e == nil || e.SettlementID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.keys[e.SettlementID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[e.SettlementID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[e.SettlementID] = struct{}{}
	}

	// Second pass: insert all
	for _, e := range events {
		copy := *e
		s.events = append(s.events, &copy)
		s.keys[e.SettlementID] = struct{}{}
	}

	return nil
}

// GetByMarketplace retrieves events for a marketplace, ordered by slot ASC.
func (s *SettlementEventStore) GetByMarketplace(_ context.Context, marketplace string) ([]*domain.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Settlement
	for _, e := range s.events {
		if e.Marketplace == marketplace {
			copy := *e
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Slot < result[j].Slot
	})

	return result, nil
}

// VolumeByMarketplace sums settled price per marketplace within [start, end].
func (s *SettlementEventStore) VolumeByMarketplace(_ context.Context, start, end int64) (map[string]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	volume := make(map[string]uint64)
	for _, e := range s.events {
		if e.UnixTimestamp >= start && e.UnixTimestamp <= end {
			volume[e.Marketplace] += e.Price
		}
	}
	return volume, nil
}

var _ storage.SettlementEventStore = (*SettlementEventStore)(nil)
