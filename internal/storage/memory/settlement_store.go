package memory

import (
	"context"
	"sort"
	"sync"

	"solana-nft-market/internal/domain"
	"solana-nft-market/internal/storage"
)

// SettlementStore is an in-memory implementation of storage.SettlementStore.
type SettlementStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Settlement // keyed by settlement_id
}

// NewSettlementStore creates a new in-memory settlement store.
func NewSettlementStore() *SettlementStore {
	return &SettlementStore{
		data: make(map[string]*domain.Settlement),
	}
}

// Insert adds a new settlement. Returns ErrDuplicateKey if settlement_id exists.
func (s *SettlementStore) Insert(_ context.Context, st *domain.Settlement) error {
	if st == nil || st.SettlementID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[st.SettlementID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *st
	s.data[st.SettlementID] = &copy
	return nil
}

// GetByID retrieves a settlement by its ID. Returns ErrNotFound if not exists.
func (s *SettlementStore) GetByID(_ context.Context, settlementID string) (*domain.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.data[settlementID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *st
	return &copy, nil
}

// GetByListing retrieves the settlements of a listing address.
func (s *SettlementStore) GetByListing(_ context.Context, listing string) ([]*domain.Settlement, error) {
	return s.filter(func(st *domain.Settlement) bool { return st.Listing == listing }), nil
}

// GetByTimeRange retrieves settlements with unix_timestamp in [start, end].
func (s *SettlementStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.Settlement, error) {
	return s.filter(func(st *domain.Settlement) bool {
		return st.UnixTimestamp >= start && st.UnixTimestamp <= end
	}), nil
}

// GetAll retrieves every settlement ordered by slot ASC.
func (s *SettlementStore) GetAll(_ context.Context) ([]*domain.Settlement, error) {
	return s.filter(func(*domain.Settlement) bool { return true }), nil
}

func (s *SettlementStore) filter(keep func(*domain.Settlement) bool) []*domain.Settlement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Settlement
	for _, st := range s.data {
		if keep(st) {
			copy := *st
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Slot != result[j].Slot {
			return result[i].Slot < result[j].Slot
		}
		return result[i].SettlementID < result[j].SettlementID
	})

	return result
}

var _ storage.SettlementStore = (*SettlementStore)(nil)
