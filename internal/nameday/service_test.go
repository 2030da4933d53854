package nameday

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu      sync.Mutex
	cal     Calendar
	saves   int
	loadErr error
	saveErr error
}

func (m *memoryStore) Name() string { return "memory" }

func (m *memoryStore) Load(context.Context) (Calendar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cal, m.loadErr
}

func (m *memoryStore) Save(_ context.Context, cal Calendar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.cal = cal
	return nil
}

type sourceFunc func(ctx context.Context) (Calendar, error)

func (f sourceFunc) Fetch(ctx context.Context) (Calendar, error) { return f(ctx) }

func newLoadedService(t *testing.T, src Source) (*Service, *memoryStore) {
	t.Helper()
	store := &memoryStore{cal: sampleCalendar()}
	clock := func() time.Time { return time.Date(2024, 7, 22, 9, 0, 0, 0, time.UTC) }
	svc := NewService(store, src, WithClock(clock))
	require.NoError(t, svc.Load(context.Background()))
	return svc, store
}

func TestServiceQueries(t *testing.T) {
	svc, _ := newLoadedService(t, nil)

	key, names := svc.Today()
	require.Equal(t, "07-22", key)
	require.Equal(t, []string{"Magdalena", "Madeleine"}, names)

	key, names, err := svc.Date(1, 3)
	require.NoError(t, err)
	require.Equal(t, "01-03", key)
	require.Len(t, names, 2)

	_, _, err = svc.Date(2, 30)
	require.ErrorIs(t, err, ErrInvalidDate)

	month, err := svc.Month(3)
	require.NoError(t, err)
	require.Len(t, month, 1)

	_, err = svc.Month(13)
	require.ErrorIs(t, err, ErrInvalidMonth)
}

func TestServiceRefreshSwapsAndPersists(t *testing.T) {
	fresh := Calendar{"07-22": {"Lena"}}
	svc, store := newLoadedService(t, sourceFunc(func(context.Context) (Calendar, error) {
		return fresh, nil
	}))

	// Warm the name cache against the old snapshot.
	require.Len(t, svc.Name("magdalena"), 1)

	cal, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, fresh, cal)
	require.Equal(t, 1, store.saves)
	require.Equal(t, fresh, svc.Calendar())
	require.Empty(t, svc.Name("magdalena"), "cache must not outlive the snapshot")
	require.Len(t, svc.Name("LENA"), 1)
}

func TestServiceRefreshFailureKeepsSnapshot(t *testing.T) {
	tests := []struct {
		name    string
		src     Source
		saveErr error
	}{
		{"fetch error", sourceFunc(func(context.Context) (Calendar, error) { return nil, errors.New("offline") }), nil},
		{"empty result", sourceFunc(func(context.Context) (Calendar, error) { return Calendar{}, nil }), nil},
		{"save error", sourceFunc(func(context.Context) (Calendar, error) { return Calendar{"01-01": {}}, nil }), errors.New("disk full")},
		{"no source", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newLoadedService(t, tt.src)
			store.saveErr = tt.saveErr

			_, err := svc.Refresh(context.Background())
			require.Error(t, err)
			require.Equal(t, sampleCalendar(), svc.Calendar())
		})
	}
}

func TestServiceLoadError(t *testing.T) {
	store := &memoryStore{loadErr: errors.New("unreachable")}
	svc := NewService(store, nil)

	require.Error(t, svc.Load(context.Background()))
	require.Empty(t, svc.Calendar())
}
