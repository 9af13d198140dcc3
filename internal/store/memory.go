package store

import (
	"context"
	"sync"
	"time"

	"github.com/couchcryptid/storm-alert-service/internal/domain"
)

// Memory is an in-process AlertStore. State is lost on restart.
type Memory struct {
	mu     sync.Mutex
	alerts map[string]domain.Alert
	now    func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		alerts: make(map[string]domain.Alert),
		now:    domain.Now,
	}
}

func (m *Memory) TryInsert(_ context.Context, f domain.Feature) (InsertResult, error) {
	alert, rejected := Admit(f, m.now())
	if rejected != nil {
		return *rejected, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.alerts[alert.ID]; ok {
		return InsertResult{Outcome: AlreadyExists, Alert: existing}, nil
	}
	m.alerts[alert.ID] = alert
	return InsertResult{Outcome: Inserted, Alert: alert}, nil
}

func (m *Memory) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, a := range m.alerts {
		if a.Expires.Before(now) {
			delete(m.alerts, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) Count(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.alerts)), nil
}

// Close is a no-op.
func (m *Memory) Close(_ context.Context) error {
	return nil
}
