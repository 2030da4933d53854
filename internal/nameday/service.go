package nameday

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"nameday/internal/logging"
)

const defaultNameCacheSize = 512

// Store persists the calendar.
type Store interface {
	Name() string
	// Load returns the stored calendar; an absent calendar is empty, not an error.
	Load(ctx context.Context) (Calendar, error)
	Save(ctx context.Context, cal Calendar) error
}

// Source produces a fresh calendar from upstream.
type Source interface {
	Fetch(ctx context.Context) (Calendar, error)
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for "today".
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the service logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Service) { s.logger = logging.OrNop(logger) }
}

// WithNameCacheSize bounds the name lookup cache.
func WithNameCacheSize(size int) Option {
	return func(s *Service) { s.cacheSize = size }
}

// Service answers calendar queries from an in-memory snapshot that Refresh
// replaces atomically.
type Service struct {
	store     Store
	source    Source
	logger    logging.Logger
	now       func() time.Time
	cacheSize int

	mu    sync.RWMutex
	cal   Calendar
	names *lru.Cache[string, []NameMatch]

	refreshMu sync.Mutex
}

// NewService creates a service with an empty calendar; call Load to fill it.
func NewService(store Store, source Source, opts ...Option) *Service {
	s := &Service{
		store:     store,
		source:    source,
		logger:    logging.NewComponentLogger("nameday"),
		now:       time.Now,
		cacheSize: defaultNameCacheSize,
		cal:       Calendar{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cacheSize <= 0 {
		s.cacheSize = defaultNameCacheSize
	}
	s.names = s.newCache()
	return s
}

func (s *Service) newCache() *lru.Cache[string, []NameMatch] {
	// lru.New only errors on non-positive size which NewService guards.
	cache, _ := lru.New[string, []NameMatch](s.cacheSize)
	return cache
}

// Load replaces the snapshot with the stored calendar.
func (s *Service) Load(ctx context.Context) error {
	cal, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load calendar from %s: %w", s.store.Name(), err)
	}
	s.swap(cal)
	s.logger.Info("Loaded %d dates from %s store", len(cal), s.store.Name())
	return nil
}

// Calendar returns the current snapshot. Callers must not modify it.
func (s *Service) Calendar() Calendar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cal
}

// Today returns today's date key and names.
func (s *Service) Today() (string, []string) {
	key := TodayKey(s.now())
	return key, s.Calendar().Names(key)
}

// Date returns the names for a validated month and day.
func (s *Service) Date(month, day int) (string, []string, error) {
	if err := ValidateDate(month, day); err != nil {
		return "", nil, err
	}
	key := DateKey(month, day)
	return key, s.Calendar().Names(key), nil
}

// Name returns the dates a name is celebrated on. Results are cached per
// calendar snapshot.
func (s *Service) Name(name string) []NameMatch {
	s.mu.RLock()
	cal, cache := s.cal, s.names
	s.mu.RUnlock()

	cacheKey := strings.ToLower(name)
	if matches, ok := cache.Get(cacheKey); ok {
		return matches
	}
	matches := cal.FindName(name)
	cache.Add(cacheKey, matches)
	return matches
}

// Month returns the calendar entries of a validated month.
func (s *Service) Month(month int) (Calendar, error) {
	if err := ValidateMonth(month); err != nil {
		return nil, err
	}
	return s.Calendar().Month(month), nil
}

// Refresh fetches the calendar from the source, persists it and swaps it in.
// On any failure the current snapshot is kept.
func (s *Service) Refresh(ctx context.Context) (Calendar, error) {
	if s.source == nil {
		return nil, fmt.Errorf("refresh: no source configured")
	}
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	cal, err := s.source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	if len(cal) == 0 {
		return nil, fmt.Errorf("refresh: %w", ErrNoData)
	}
	if err := s.store.Save(ctx, cal); err != nil {
		return nil, fmt.Errorf("refresh: save to %s: %w", s.store.Name(), err)
	}
	s.swap(cal)
	s.logger.Info("Refreshed calendar: %d dates, %d names", cal.TotalDates(), cal.TotalNames())
	return cal, nil
}

func (s *Service) swap(cal Calendar) {
	if cal == nil {
		cal = Calendar{}
	}
	cache := s.newCache()
	s.mu.Lock()
	s.cal = cal
	s.names = cache
	s.mu.Unlock()
}
