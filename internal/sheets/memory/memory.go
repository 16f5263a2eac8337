package memory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/sheets"
)

var (
	_ sheets.TransactionSource = (*Store)(nil)
	_ sheets.TransactionWriter = (*Store)(nil)
)

// SeedFile is the CSV read by NewFromFiles. Columns: user_id, date,
// category, description, amount, type. A header row is optional.
const SeedFile = "seed_transactions.csv"

// Store keeps transactions in memory, keyed by id.
type Store struct {
	mu    sync.RWMutex
	items map[string]core.Transaction
	order []string
}

func New(txs ...core.Transaction) *Store {
	s := &Store{items: make(map[string]core.Transaction)}
	_, _ = s.UpsertTransactions(context.Background(), txs)
	return s
}

// NewFromFiles seeds the store from base/seed_transactions.csv. A missing
// file yields an empty store; malformed rows are skipped.
func NewFromFiles(base string) (*Store, error) {
	f, err := os.Open(filepath.Join(base, SeedFile))
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	txs, err := readCSV(f)
	if err != nil {
		return nil, err
	}
	return New(txs...), nil
}

// ListTransactions returns the user's transactions in insertion order.
func (s *Store) ListTransactions(_ context.Context, userID string) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Transaction
	for _, id := range s.order {
		if t := s.items[id]; t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) UpsertTransactions(_ context.Context, txs []core.Transaction) (int, error) {
	for i, t := range txs {
		if err := t.Validate(); err != nil {
			return 0, fmt.Errorf("transaction %d: %w", i, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range txs {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if _, ok := s.items[t.ID]; !ok {
			s.order = append(s.order, t.ID)
		}
		s.items[t.ID] = t
	}
	return len(txs), nil
}

// Users lists the distinct user ids present, sorted.
func (s *Store) Users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]struct{}{}
	var out []string
	for _, t := range s.items {
		if _, ok := seen[t.UserID]; !ok {
			seen[t.UserID] = struct{}{}
			out = append(out, t.UserID)
		}
	}
	sort.Strings(out)
	return out
}

func readCSV(r io.Reader) ([]core.Transaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	var out []core.Transaction
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read seed csv: %w", err)
		}
		line++
		if len(rec) < 6 || (line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "user_id")) {
			continue
		}
		d, err := core.ParseDate(rec[1])
		if err != nil {
			continue
		}
		amt, err := core.ParseAmount(rec[4])
		if err != nil {
			continue
		}
		typ, err := core.ParseTransactionType(rec[5])
		if err != nil {
			continue
		}
		out = append(out, core.Transaction{
			ID:          fmt.Sprintf("seed-%d", line),
			UserID:      strings.TrimSpace(rec[0]),
			Date:        d,
			Category:    strings.TrimSpace(rec[2]),
			Description: strings.TrimSpace(rec[3]),
			Amount:      amt,
			Type:        typ,
		})
	}
	return out, nil
}
