package store

import (
	"context"
	"fmt"

	"nameday/internal/logging"
	"nameday/internal/nameday"
)

// FallbackStore reads from primary and falls back to secondary when primary
// fails or holds nothing. Writes go to primary only.
type FallbackStore struct {
	primary   nameday.Store
	secondary nameday.Store
	logger    logging.Logger
}

// NewFallbackStore combines two stores.
func NewFallbackStore(primary, secondary nameday.Store, logger logging.Logger) *FallbackStore {
	return &FallbackStore{
		primary:   primary,
		secondary: secondary,
		logger:    logging.OrNop(logger),
	}
}

func (s *FallbackStore) Name() string {
	return fmt.Sprintf("%s+%s", s.primary.Name(), s.secondary.Name())
}

func (s *FallbackStore) Load(ctx context.Context) (nameday.Calendar, error) {
	cal, err := s.primary.Load(ctx)
	if err == nil && len(cal) > 0 {
		return cal, nil
	}
	if err != nil {
		s.logger.Warn("Load from %s failed, trying %s: %v", s.primary.Name(), s.secondary.Name(), err)
	} else {
		s.logger.Info("%s is empty, loading from %s", s.primary.Name(), s.secondary.Name())
	}

	fallback, ferr := s.secondary.Load(ctx)
	if ferr != nil {
		if err != nil {
			return nil, fmt.Errorf("%s: %w; %s: %v", s.primary.Name(), err, s.secondary.Name(), ferr)
		}
		return nil, ferr
	}
	return fallback, nil
}

func (s *FallbackStore) Save(ctx context.Context, cal nameday.Calendar) error {
	return s.primary.Save(ctx, cal)
}
