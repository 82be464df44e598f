package session

import (
	"context"
	"strconv"
	"sync"

	"eye-report/api/internal/report"
)

// Store keeps one report.Session per chat. Get returns a fresh session when none is stored.
// TryLock grants one handler per chat at a time; ok is false while another holds it.
type Store interface {
	Get(ctx context.Context, chatID int64) (*report.Session, error)
	Save(ctx context.Context, chatID int64, s *report.Session) error
	Delete(ctx context.Context, chatID int64) error
	TryLock(ctx context.Context, chatID int64) (unlock func(), ok bool, err error)
}

type MemoryStore struct {
	m     sync.Map // chatID -> *report.Session
	locks sync.Map // chatID -> *sync.Mutex
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Get(_ context.Context, chatID int64) (*report.Session, error) {
	if v, ok := m.m.Load(chatID); ok {
		if s, _ := v.(*report.Session); s != nil {
			return s, nil
		}
	}
	return report.NewSession(), nil
}

func (m *MemoryStore) Save(_ context.Context, chatID int64, s *report.Session) error {
	m.m.Store(chatID, s)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, chatID int64) error {
	m.m.Delete(chatID)
	return nil
}

func (m *MemoryStore) TryLock(_ context.Context, chatID int64) (func(), bool, error) {
	v, _ := m.locks.LoadOrStore(chatID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	if !mu.TryLock() {
		return nil, false, nil
	}
	return mu.Unlock, true, nil
}

func key(prefix string, chatID int64) string {
	return prefix + strconv.FormatInt(chatID, 10)
}
