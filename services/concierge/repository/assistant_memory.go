package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kaytu-io/ai-concierge/services/concierge/model"
)

// AssistantMemory keeps assistants for the lifetime of the process.
type AssistantMemory struct {
	mu   sync.RWMutex
	data map[string]model.Assistant
}

func NewAssistantMemory() *AssistantMemory {
	return &AssistantMemory{
		data: make(map[string]model.Assistant),
	}
}

func (s *AssistantMemory) Get(_ context.Context, tenant string) (*model.Assistant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.data[tenant]
	if !ok {
		return nil, ErrAssistantNotFound
	}
	return &a, nil
}

func (s *AssistantMemory) Save(_ context.Context, a model.Assistant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if prev, ok := s.data[a.Tenant]; ok {
		a.ID = prev.ID
		a.CreatedAt = prev.CreatedAt
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	s.data[a.Tenant] = a
	return nil
}

func (s *AssistantMemory) Delete(_ context.Context, tenant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, tenant)
	return nil
}
