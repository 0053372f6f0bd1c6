package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/stacklok/toolhive-gateway/internal/endpoint"
	"github.com/stacklok/toolhive-gateway/internal/events"
	"github.com/stacklok/toolhive-gateway/internal/loader"
	"github.com/stacklok/toolhive-gateway/internal/store"
	"github.com/stacklok/toolhive-gateway/internal/store/inmemory"
	"github.com/stacklok/toolhive-gateway/internal/store/mocks"
)

// fakeDiscoverer returns whatever descriptors it currently holds
type fakeDiscoverer struct {
	mu          sync.Mutex
	descriptors []endpoint.Descriptor
	err         error
	gate        chan struct{}
	entered     chan struct{}
}

func (f *fakeDiscoverer) set(ds ...endpoint.Descriptor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.descriptors = ds
}

func (f *fakeDiscoverer) Load(context.Context) (*loader.Candidate, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &loader.Candidate{Descriptors: append([]endpoint.Descriptor(nil), f.descriptors...)}, nil
}

func desc(path, method, name string) endpoint.Descriptor {
	return endpoint.Descriptor{Path: path, Method: method, Name: name, Source: "test"}
}

func activeOnly() store.ListFilter {
	active := true
	return store.ListFilter{Active: &active}
}

func TestSyncCreatesRecordsWithDefaults(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := inmemory.New()
	disc := &fakeDiscoverer{}
	disc.set(desc("/api/foo", "GET", "Foo"))

	res, err := NewSyncer(disc, st).Sync(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Stats.Created)

	list, err := st.List(ctx, store.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list.Records, 1)
	rec := list.Records[0]
	assert.Equal(t, "/api/foo", rec.Path)
	assert.Equal(t, "GET", rec.Method)
	assert.Equal(t, store.StatusFree, rec.Status)
	assert.True(t, rec.IsActive)
}

func TestSyncIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := inmemory.New()
	disc := &fakeDiscoverer{}
	disc.set(desc("/api/foo", "GET, POST", "Foo"), desc("/api/bar", "", "Bar"))
	syncer := NewSyncer(disc, st)

	first, err := syncer.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Stats.Created)
	assert.Equal(t, 3, first.Stats.Discovered)

	second, err := syncer.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Stats.Created)
	assert.Equal(t, 0, second.Stats.Deactivated)
	assert.Equal(t, 3, second.Stats.Updated)
}

func TestSyncDeactivatesMissingAndPreservesOperatorFields(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := inmemory.New()
	disc := &fakeDiscoverer{}
	disc.set(desc("/api/foo", "GET", "Foo"), desc("/api/bar", "GET", "Bar"))
	syncer := NewSyncer(disc, st)

	_, err := syncer.Sync(ctx)
	require.NoError(t, err)

	vip := store.StatusVIP
	_, _, err = st.Upsert(ctx, store.RecordUpdate{Path: "/api/bar", Method: "GET", Status: &vip})
	require.NoError(t, err)

	// an operator-created record is never tombstoned by sync
	_, _, err = st.Upsert(ctx, store.RecordUpdate{Path: "/api/manual", Method: "GET"})
	require.NoError(t, err)

	disc.set(desc("/api/bar", "GET", "Bar renamed"))
	res, err := syncer.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.Deactivated)

	active, err := st.List(ctx, activeOnly())
	require.NoError(t, err)
	paths := make([]string, 0, len(active.Records))
	for _, r := range active.Records {
		paths = append(paths, r.Path)
	}
	assert.ElementsMatch(t, []string{"/api/bar", "/api/manual"}, paths)

	all, err := st.List(ctx, store.ListFilter{Search: "/api/"})
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total, "deactivated records are kept")

	for _, r := range all.Records {
		if r.Path == "/api/bar" {
			assert.Equal(t, store.StatusVIP, r.Status)
			assert.Equal(t, "Bar renamed", r.Name)
		}
		if r.Path == "/api/foo" {
			assert.False(t, r.IsActive)
			assert.True(t, r.Tombstoned)
		}
	}

	// rediscovery brings the tombstoned record back
	disc.set(desc("/api/bar", "GET", "Bar"), desc("/api/foo", "GET", "Foo"))
	res, err = syncer.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.Reactivated)
}

func TestSyncClassifiesMissingCategory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := inmemory.New()
	disc := &fakeDiscoverer{}
	withCategory := desc("/api/misc", "GET", "Misc")
	withCategory.Category = "custom"
	disc.set(desc("/api/x/unknown", "GET", "Mystery"), withCategory)

	_, err := NewSyncer(disc, st).Sync(ctx)
	require.NoError(t, err)

	list, err := st.List(ctx, store.ListFilter{})
	require.NoError(t, err)
	got := map[string]string{}
	for _, r := range list.Records {
		got[r.Path] = r.Category
	}
	assert.Equal(t, "custom", got["/api/misc"])
	assert.Equal(t, endpoint.Classify("/api/x/unknown", "Mystery", ""), got["/api/x/unknown"])
}

func TestSyncSkipsInvalidDescriptors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := inmemory.New()
	disc := &fakeDiscoverer{}
	disc.set(desc("no-slash", "GET", "Bad"), desc("/api/noname", "GET, POST", " "), desc("/api/ok", "GET", "Ok"))

	res, err := NewSyncer(disc, st).Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.Created)
	assert.Equal(t, 3, res.Stats.Skipped)
}

func TestSyncStoreFailuresAreSkipped(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	mockStore := mocks.NewMockCatalogStore(ctrl)

	disc := &fakeDiscoverer{}
	disc.set(desc("/api/a", "GET", "A"), desc("/api/b", "GET", "B"))

	mockStore.EXPECT().
		UpsertDiscovered(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, d store.DiscoveredEndpoint, _ time.Time) (store.UpsertOutcome, error) {
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline, "store calls carry a timeout")
			if d.Path == "/api/a" {
				return store.UpsertOutcome{}, context.DeadlineExceeded
			}
			return store.UpsertOutcome{Created: true}, nil
		}).Times(2)
	mockStore.EXPECT().ListSyncedActiveKeys(gomock.Any()).
		Return([]endpoint.Key{{Path: "/api/a", Method: "GET"}, {Path: "/api/gone", Method: "GET"}}, nil)
	mockStore.EXPECT().
		Tombstone(gomock.Any(), []endpoint.Key{{Path: "/api/gone", Method: "GET"}}, gomock.Any()).
		Return(0, errors.New("connection reset"))

	res, err := NewSyncer(disc, mockStore, WithStoreTimeout(time.Second)).Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Stats.Created)
	assert.Equal(t, 2, res.Stats.Skipped)
	assert.Equal(t, 0, res.Stats.Deactivated)
}

func TestSyncListFailureFailsPass(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	mockStore := mocks.NewMockCatalogStore(ctrl)
	mockStore.EXPECT().ListSyncedActiveKeys(gomock.Any()).Return(nil, errors.New("db down"))

	syncer := NewSyncer(&fakeDiscoverer{}, mockStore)
	res, err := syncer.Sync(context.Background())
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "db down")

	status := syncer.Status()
	require.NotNil(t, status.LastResult)
	assert.False(t, status.LastResult.Success)
}

func TestSyncDiscoveryFailure(t *testing.T) {
	t.Parallel()

	syncer := NewSyncer(&fakeDiscoverer{err: errors.New("boom")}, inmemory.New())
	res, err := syncer.Sync(context.Background())
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Nil(t, res.Stats)
}

func TestConcurrentSyncIsSkipped(t *testing.T) {
	t.Parallel()

	disc := &fakeDiscoverer{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	disc.set(desc("/api/foo", "GET", "Foo"))
	syncer := NewSyncer(disc, inmemory.New())

	done := make(chan *Result, 1)
	go func() {
		res, _ := syncer.Sync(context.Background())
		done <- res
	}()
	<-disc.entered
	assert.True(t, syncer.Status().SyncInProgress)

	res, err := syncer.Sync(context.Background())
	require.ErrorIs(t, err, ErrSyncInProgress)
	assert.True(t, res.Skipped)

	close(disc.gate)
	first := <-done
	assert.True(t, first.Success)
	assert.False(t, syncer.Status().SyncInProgress)
}

func TestSyncPublishesCompletion(t *testing.T) {
	t.Parallel()

	hub := events.NewHub()
	t.Cleanup(hub.Close)
	sub := hub.Subscribe()
	<-sub.Events() // connected

	disc := &fakeDiscoverer{}
	disc.set(desc("/api/foo", "GET", "Foo"))
	fakeClock := clocktesting.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	syncer := NewSyncer(disc, inmemory.New(), WithPublisher(hub), WithClock(fakeClock))
	_, err := syncer.Sync(context.Background())
	require.NoError(t, err)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, events.TypeEndpointSyncComplete, ev.Type)
		stats, ok := ev.Stats.(Stats)
		require.True(t, ok)
		assert.Equal(t, 1, stats.Created)
	case <-time.After(time.Second):
		t.Fatal("no sync_complete event")
	}

	status := syncer.Status()
	require.NotNil(t, status.LastResult)
	require.NotNil(t, status.LastResult.CompletedAt)
	assert.Equal(t, fakeClock.Now(), *status.LastResult.CompletedAt)

	stats, err := syncer.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}
