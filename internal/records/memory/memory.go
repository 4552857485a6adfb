package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"gestionjm/internal/core"
	"gestionjm/internal/records"
)

// Store keeps every record in process memory. Records are returned in
// insertion order.
type Store struct {
	mu        sync.Mutex
	expenses  []core.Expense
	transfers []core.Transfer
	pins      map[core.UserID]string
}

var _ records.Repository = (*Store)(nil)

func New() *Store {
	return &Store{pins: map[core.UserID]string{}}
}

// NewFromFile seeds the store from a JSON snapshot. A missing file yields an
// empty store.
func NewFromFile(path string) (*Store, error) {
	s := New()
	if path == "" {
		return s, nil
	}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var snap core.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	s.expenses = snap.Expenses
	s.transfers = snap.Transfers
	return s, nil
}

func (s *Store) CreateExpense(_ context.Context, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expenseIndex(e.ID) >= 0 {
		return fmt.Errorf("expense %s: %w", e.ID, records.ErrDuplicate)
	}
	s.expenses = append(s.expenses, e)
	return nil
}

func (s *Store) UpdateExpense(_ context.Context, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.expenseIndex(e.ID)
	if i < 0 {
		return fmt.Errorf("expense %s: %w", e.ID, records.ErrNotFound)
	}
	s.expenses[i] = e
	return nil
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.expenseIndex(id)
	if i < 0 {
		return fmt.Errorf("expense %s: %w", id, records.ErrNotFound)
	}
	s.expenses = append(s.expenses[:i], s.expenses[i+1:]...)
	return nil
}

func (s *Store) GetExpense(_ context.Context, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.expenseIndex(id)
	if i < 0 {
		return core.Expense{}, fmt.Errorf("expense %s: %w", id, records.ErrNotFound)
	}
	return s.expenses[i], nil
}

func (s *Store) ListExpenses(_ context.Context) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Expense(nil), s.expenses...), nil
}

func (s *Store) ListExpensesByMonth(_ context.Context, year, month int) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Expense
	for _, e := range s.expenses {
		if e.Date.InMonth(year, month) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) CreateTransfer(_ context.Context, t core.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transferIndex(t.ID) >= 0 {
		return fmt.Errorf("transfer %s: %w", t.ID, records.ErrDuplicate)
	}
	s.transfers = append(s.transfers, t)
	return nil
}

func (s *Store) DeleteTransfer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.transferIndex(id)
	if i < 0 {
		return fmt.Errorf("transfer %s: %w", id, records.ErrNotFound)
	}
	s.transfers = append(s.transfers[:i], s.transfers[i+1:]...)
	return nil
}

func (s *Store) GetTransfer(_ context.Context, id string) (core.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.transferIndex(id)
	if i < 0 {
		return core.Transfer{}, fmt.Errorf("transfer %s: %w", id, records.ErrNotFound)
	}
	return s.transfers[i], nil
}

func (s *Store) ListTransfers(_ context.Context) ([]core.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Transfer(nil), s.transfers...), nil
}

func (s *Store) ListTransfersByMonth(_ context.Context, year, month int) ([]core.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transfer
	for _, t := range s.transfers {
		if t.Date.InMonth(year, month) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) GetPinHash(_ context.Context, user core.UserID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.pins[user]
	if !ok {
		return "", fmt.Errorf("pin for %s: %w", user, records.ErrNotFound)
	}
	return h, nil
}

func (s *Store) SetPinHash(_ context.Context, user core.UserID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pins[user] = hash
	return nil
}

func (s *Store) ReplaceAll(_ context.Context, snap core.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expenses = append([]core.Expense(nil), snap.Expenses...)
	s.transfers = append([]core.Transfer(nil), snap.Transfers...)
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) expenseIndex(id string) int {
	for i, e := range s.expenses {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) transferIndex(id string) int {
	for i, t := range s.transfers {
		if t.ID == id {
			return i
		}
	}
	return -1
}
