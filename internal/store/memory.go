package store

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/iurnickita/collection/internal/model"
)

type MemoryStore struct {
	mu       sync.RWMutex
	payments map[string]*model.Payment
	// порядок вставки - "естественный" порядок выдачи
	order []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payments: make(map[string]*model.Payment),
	}
}

func (s *MemoryStore) PaymentPost(ctx context.Context, payment *model.Payment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.payments[payment.ID]; ok {
		return ErrAlreadyExists
	}
	s.payments[payment.ID] = payment.Clone()
	s.order = append(s.order, payment.ID)
	return nil
}

func (s *MemoryStore) FetchPayments(ctx context.Context, criteria model.PaymentSearchCriteria) ([]*model.Payment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.Payment
	for _, id := range s.order {
		payment := s.payments[id]
		if matches(payment, criteria) {
			result = append(result, payment.Clone())
		}
	}

	if criteria.NewestFirst {
		slices.SortStableFunc(result, func(a, b *model.Payment) int {
			return cmp.Compare(b.TransactionDate, a.TransactionDate)
		})
	}

	start := max(criteria.Offset, 0)
	if start > len(result) {
		return nil, nil
	}
	end := len(result)
	if criteria.Limit > 0 && start+criteria.Limit < end {
		end = start + criteria.Limit
	}
	return result[start:end], nil
}

func matches(payment *model.Payment, criteria model.PaymentSearchCriteria) bool {
	if criteria.TenantID != "" && payment.TenantID != criteria.TenantID {
		return false
	}
	if len(criteria.IDs) > 0 && !slices.Contains(criteria.IDs, payment.ID) {
		return false
	}
	if len(criteria.InstrumentStatus) > 0 && !slices.Contains(criteria.InstrumentStatus, payment.InstrumentStatus) {
		return false
	}
	if len(criteria.PaymentModes) > 0 && !slices.Contains(criteria.PaymentModes, payment.PaymentMode) {
		return false
	}
	if len(criteria.ConsumerCodes) > 0 {
		return slices.ContainsFunc(payment.ConsumerCodes(), func(code string) bool {
			return slices.Contains(criteria.ConsumerCodes, code)
		})
	}
	return true
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, payments []*model.Payment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// сначала проверка всей пачки, затем запись
	for _, payment := range payments {
		if _, ok := s.payments[payment.ID]; !ok {
			return ErrNoRows
		}
	}
	for _, payment := range payments {
		s.payments[payment.ID] = payment.Clone()
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
