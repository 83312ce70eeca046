// Package memory is an in-process account.Store for tests, demos and single
// instance deployments.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/MrEthical07/credcore/account"
)

// Store keeps records in maps guarded by a RWMutex. Returned records are
// copies.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]account.Record
	byEmail map[string]string
	now     func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		byID:    make(map[string]account.Record),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (s *Store) FindByEmail(_ context.Context, email string) (*account.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[account.NormalizeEmail(email)]
	if !ok {
		return nil, account.ErrNotFound
	}
	r := s.byID[id]
	return &r, nil
}

func (s *Store) FindByID(_ context.Context, id string) (*account.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.byID[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	return &r, nil
}

func (s *Store) FindByNationalID(_ context.Context, nationalID string) (*account.Record, error) {
	return s.scan(func(r account.Record) bool {
		return nationalID != "" && r.NationalID == strings.TrimSpace(nationalID)
	})
}

func (s *Store) FindByPhone(_ context.Context, phone string) (*account.Record, error) {
	return s.scan(func(r account.Record) bool {
		return phone != "" && r.Phone == strings.TrimSpace(phone)
	})
}

func (s *Store) scan(match func(account.Record) bool) (*account.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.byID {
		if match(r) {
			return &r, nil
		}
	}
	return nil, account.ErrNotFound
}

// Insert assigns a ULID when r.ID is empty.
func (s *Store) Insert(_ context.Context, r account.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.Email = account.NormalizeEmail(r.Email)
	if _, taken := s.byEmail[r.Email]; taken {
		return "", account.ErrDuplicate
	}
	for _, existing := range s.byID {
		if (r.NationalID != "" && existing.NationalID == r.NationalID) ||
			(r.Phone != "" && existing.Phone == r.Phone) {
			return "", account.ErrDuplicate
		}
	}
	if r.ID == "" {
		r.ID = ulid.Make().String()
	}
	if _, taken := s.byID[r.ID]; taken {
		return "", account.ErrDuplicate
	}

	now := s.now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	s.byID[r.ID] = r
	s.byEmail[r.Email] = r.ID
	return r.ID, nil
}

func (s *Store) Update(_ context.Context, id string, u account.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return account.ErrNotFound
	}
	oldEmail := r.Email
	u.Apply(&r)
	r.Email = account.NormalizeEmail(r.Email)

	if r.Email != oldEmail {
		if owner, taken := s.byEmail[r.Email]; taken && owner != id {
			return account.ErrDuplicate
		}
		delete(s.byEmail, oldEmail)
		s.byEmail[r.Email] = id
	}
	r.UpdatedAt = s.now()
	s.byID[id] = r
	return nil
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
