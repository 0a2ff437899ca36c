package observation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/franckalain/livestockweight/internal/cache"
	"github.com/franckalain/livestockweight/internal/models"
	"github.com/franckalain/livestockweight/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	items     map[string][]models.Observation
	listCalls int
	lastLimit int
	created   []models.Observation
	err       error
}

func (f *fakeSource) ListObservations(ctx context.Context, subjectID string, page, limit int) (*transport.Page, error) {
	f.listCalls++
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	items := f.items[subjectID]
	return &transport.Page{Items: items, Total: len(items)}, nil
}

func (f *fakeSource) CreateObservation(ctx context.Context, obs models.Observation) (*models.Observation, error) {
	if f.err != nil {
		return nil, f.err
	}
	obs.ID = "backend-id"
	f.created = append(f.created, obs)
	f.items[obs.SubjectID] = append(f.items[obs.SubjectID], obs)
	return &obs, nil
}

func newTestRepository(src *fakeSource) (*Repository, *clock.Mock, *cache.TTLCache[models.DashboardStats]) {
	clk := clock.NewMock()
	store := cache.NewMemoryStore(0)
	dashboard := cache.NewDashboardCache(store, clk, nil, 0)
	return NewRepository(src, cache.NewObservationCache(store, clk, nil, 0), dashboard, nil), clk, dashboard
}

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestListBySubject_CacheAside(t *testing.T) {
	src := &fakeSource{items: map[string][]models.Observation{
		"cow-1": {{ID: "o1", SubjectID: "cow-1", Timestamp: day(0), EstimatedWeightKg: 400}},
	}}
	repo, clk, _ := newTestRepository(src)
	ctx := context.Background()

	first, err := repo.ListBySubject(ctx, "cow-1")
	require.NoError(t, err)
	second, err := repo.ListBySubject(ctx, "cow-1")
	require.NoError(t, err)

	require.Len(t, second, len(first))
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.True(t, first[0].Timestamp.Equal(second[0].Timestamp))
	assert.Equal(t, 1, src.listCalls)
	assert.Equal(t, FullHistoryPageSize, src.lastLimit)

	clk.Add(cache.ObservationTTL + time.Millisecond)
	_, err = repo.ListBySubject(ctx, "cow-1")
	require.NoError(t, err)
	assert.Equal(t, 2, src.listCalls, "expired entry forces a refetch")
}

func TestListBySubject_ErrorIsNotCached(t *testing.T) {
	src := &fakeSource{items: map[string][]models.Observation{}, err: errors.New("boom")}
	repo, _, _ := newTestRepository(src)

	_, err := repo.ListBySubject(context.Background(), "cow-1")
	require.Error(t, err)

	src.err = nil
	items, err := repo.ListBySubject(context.Background(), "cow-1")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 2, src.listCalls)
}

func TestCreate_InvalidatesInsteadOfMerging(t *testing.T) {
	src := &fakeSource{items: map[string][]models.Observation{
		"cow-1": {{ID: "o1", SubjectID: "cow-1", Timestamp: day(0), EstimatedWeightKg: 400}},
	}}
	repo, _, dashboard := newTestRepository(src)
	ctx := context.Background()

	_, err := repo.ListBySubject(ctx, "cow-1")
	require.NoError(t, err)
	dashboard.SetDefault(cache.SubjectKey("cow-1"), models.DashboardStats{SubjectID: "cow-1"})

	created, err := repo.Create(ctx, models.Observation{SubjectID: "cow-1", Timestamp: day(10), EstimatedWeightKg: 430})
	require.NoError(t, err)
	assert.Equal(t, "backend-id", created.ID)

	_, ok := dashboard.Get(cache.SubjectKey("cow-1"))
	assert.False(t, ok, "dashboard stats are invalidated too")

	items, err := repo.ListBySubject(ctx, "cow-1")
	require.NoError(t, err)
	assert.Equal(t, 2, src.listCalls, "next read refetches")
	require.Len(t, items, 2)
	assert.Equal(t, "backend-id", items[1].ID)
}

func TestCreate_FailureKeepsCache(t *testing.T) {
	src := &fakeSource{items: map[string][]models.Observation{"cow-1": {}}}
	repo, _, _ := newTestRepository(src)
	ctx := context.Background()

	_, err := repo.ListBySubject(ctx, "cow-1")
	require.NoError(t, err)

	src.err = errors.New("unavailable")
	_, err = repo.Create(ctx, models.Observation{SubjectID: "cow-1", Timestamp: day(1)})
	require.Error(t, err)

	src.err = nil
	_, err = repo.ListBySubject(ctx, "cow-1")
	require.NoError(t, err)
	assert.Equal(t, 1, src.listCalls)
}

func TestFind(t *testing.T) {
	src := &fakeSource{items: map[string][]models.Observation{
		"cow-1": {
			{ID: "o1", SubjectID: "cow-1", Timestamp: day(0)},
			{ID: "o2", SubjectID: "cow-1", Timestamp: day(5)},
		},
	}}
	repo, _, _ := newTestRepository(src)

	obs, history, err := repo.Find(context.Background(), "cow-1", "o2")
	require.NoError(t, err)
	assert.Equal(t, "o2", obs.ID)
	assert.Len(t, history, 2)

	_, _, err = repo.Find(context.Background(), "cow-1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
