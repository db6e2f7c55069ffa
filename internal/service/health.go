package service

import (
	"context"
	"fmt"
	"time"

	"github.com/taskbridge/marketplace/internal/store"
)

type HealthService struct {
	store store.Store
}

func NewHealthService(store store.Store) *HealthService {
	return &HealthService{store: store}
}

// Check reports whether the database answers within a second.
func (h *HealthService) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	return nil
}
