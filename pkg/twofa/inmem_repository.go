package twofa

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository implements Repository using in-memory storage
type InMemoryRepository struct {
	mu      sync.RWMutex
	configs map[uuid.UUID]Config // keyed by user ID, enforcing one config per user
}

// NewInMemoryRepository creates a new in-memory 2FA config repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		configs: make(map[uuid.UUID]Config),
	}
}

func (r *InMemoryRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.configs[userID]
	if !ok {
		return Config{}, ErrConfigNotFound
	}
	return cfg, nil
}

func (r *InMemoryRepository) Save(ctx context.Context, config Config) (Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := r.configs[config.UserID]; ok {
		config.ID = existing.ID
		config.CreatedAt = existing.CreatedAt
	} else {
		config.ID = uuid.New()
		config.CreatedAt = now
	}
	config.UpdatedAt = now
	r.configs[config.UserID] = config
	return config, nil
}

func (r *InMemoryRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.configs[userID]; !ok {
		return ErrConfigNotFound
	}
	delete(r.configs, userID)
	return nil
}
