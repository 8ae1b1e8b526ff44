package syncengine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"misl/internal/api"
	"misl/internal/localstate"
	"misl/internal/model"
	"misl/internal/mutate"

	"github.com/stretchr/testify/require"
)

// fakeTransport keeps a server-side list and records calls. Set the error
// fields to inject failures.
type fakeTransport struct {
	mu       sync.Mutex
	list     model.List
	cached   bool
	getErr   error
	mutErr   error
	gate     chan struct{}
	inflight int
	maxSeen  int
	calls    []string
	gets     int
}

func (f *fakeTransport) GetList(ctx context.Context) (api.Fetched, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return api.Fetched{}, f.getErr
	}
	return api.Fetched{List: f.list.Clone(), Cached: f.cached}, nil
}

func (f *fakeTransport) mutation(name string, apply func(*model.List) error) error {
	f.mu.Lock()
	f.inflight++
	if f.inflight > f.maxSeen {
		f.maxSeen = f.inflight
	}
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight--
	f.calls = append(f.calls, name)
	if f.mutErr != nil {
		return f.mutErr
	}
	return apply(&f.list)
}

func (f *fakeTransport) AddEntry(ctx context.Context, lt model.ListType, e model.Entry) error {
	return f.mutation("add", func(l *model.List) error {
		_, err := mutate.Add(l, lt, e, time.Now())
		return err
	})
}

func (f *fakeTransport) ToggleEntry(ctx context.Context, lt model.ListType, index int, expected model.Entry) error {
	return f.mutation("toggle:"+expected.Name, func(l *model.List) error {
		_, err := mutate.Toggle(l, lt, index, expected, time.Now())
		return err
	})
}

func (f *fakeTransport) DeleteEntry(ctx context.Context, lt model.ListType, index int, expected model.Entry) error {
	return f.mutation("delete:"+expected.Name, func(l *model.List) error {
		_, err := mutate.Delete(l, lt, index, expected)
		return err
	})
}

func (f *fakeTransport) EditEntry(ctx context.Context, lt model.ListType, index int, old, next model.Entry) error {
	return f.mutation("edit:"+old.Name, func(l *model.List) error {
		_, err := mutate.Edit(l, lt, index, old, next, time.Now())
		return err
	})
}

func (f *fakeTransport) ReplaceCategories(ctx context.Context, cats []model.Category) error {
	return f.mutation("categories", func(l *model.List) error { return mutate.ReplaceCategories(l, cats) })
}

func (f *fakeTransport) ReplaceUnits(ctx context.Context, units []model.Unit) error {
	return f.mutation("units", func(l *model.List) error { return mutate.ReplaceUnits(l, units) })
}

func (f *fakeTransport) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

func (f *fakeTransport) set(fn func(f *fakeTransport)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type recorder struct {
	mu    sync.Mutex
	views []View
}

func (r *recorder) Render(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *recorder) last() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.views) == 0 {
		return View{}
	}
	return r.views[len(r.views)-1]
}

func (r *recorder) first() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.views) == 0 {
		return View{}
	}
	return r.views[0]
}

func sample() model.List {
	return model.List{
		Active: []model.Entry{
			{Category: "dairy", Name: "milk", Number: 1, Unit: "l"},
			{Category: "fruit", Name: "apple", Number: 3},
		},
		Inactive:   []model.Entry{{Category: "bakery", Name: "bread", Number: 1}},
		Categories: []model.Category{{Name: "dairy", Default: true}},
		Units:      []model.Unit{{Name: "kg"}},
	}
}

func newEngine(t *testing.T, tr *fakeTransport, opts Options) (*Engine, *recorder) {
	t.Helper()
	rec := &recorder{}
	opts.Transport = tr
	opts.Renderer = rec
	opts.AccessCode = "abcd"
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.RefreshDebounce == 0 {
		opts.RefreshDebounce = 10 * time.Millisecond
	}
	e, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e, rec
}

func TestEngine_ToggleIsOptimistic(t *testing.T) {
	tr := &fakeTransport{list: sample(), gate: make(chan struct{})}
	e, rec := newEngine(t, tr, Options{})
	require.NoError(t, e.Start(context.Background()))

	milk := sample().Active[0]
	done := make(chan error, 1)
	go func() { done <- e.Toggle(context.Background(), model.ListActive, 0, milk) }()

	require.Eventually(t, func() bool {
		v := rec.last()
		return len(v.List.Active) == 1 && len(v.List.Inactive) == 2 && v.Pending == 1
	}, time.Second, 5*time.Millisecond)

	gets := tr.getCount()
	tr.gate <- struct{}{}
	require.NoError(t, <-done)

	require.Eventually(t, func() bool { return tr.getCount() > gets }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		v := e.View()
		return v.Pending == 0 && len(v.List.Inactive) == 2 && !v.Offline
	}, time.Second, 5*time.Millisecond)
}

func TestEngine_SerializesMutations(t *testing.T) {
	tr := &fakeTransport{list: sample(), gate: make(chan struct{})}
	e, _ := newEngine(t, tr, Options{})
	require.NoError(t, e.Start(context.Background()))

	s := sample()
	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for _, op := range []func() error{
		func() error { return e.Toggle(context.Background(), model.ListActive, 0, s.Active[0]) },
		func() error { return e.Toggle(context.Background(), model.ListActive, 1, s.Active[1]) },
		func() error { return e.Delete(context.Background(), model.ListInactive, 0, s.Inactive[0]) },
	} {
		wg.Add(1)
		go func(op func() error) {
			defer wg.Done()
			errs <- op()
		}(op)
	}

	for i := 0; i < 3; i++ {
		tr.gate <- struct{}{}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	require.Equal(t, 1, tr.maxSeen)
	require.Len(t, tr.calls, 3)
	require.Empty(t, tr.list.Active)
}

func TestEngine_NetworkFailureKeepsOptimisticState(t *testing.T) {
	tr := &fakeTransport{list: sample()}
	e, rec := newEngine(t, tr, Options{})
	require.NoError(t, e.Start(context.Background()))

	tr.set(func(f *fakeTransport) {
		f.mutErr = &api.NetworkError{Op: "toggle entry", Err: errors.New("connection refused")}
	})
	err := e.Toggle(context.Background(), model.ListActive, 0, sample().Active[0])
	require.ErrorIs(t, err, api.ErrNetworkUnavailable)

	v := rec.last()
	require.True(t, v.Offline)
	require.Len(t, v.List.Active, 1)
	require.Len(t, v.List.Inactive, 2)

	err = e.Toggle(context.Background(), model.ListActive, 0, sample().Active[1])
	require.ErrorIs(t, err, ErrOffline)
}

func (f *fakeTransport) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func networkDown(op string) error {
	return &api.NetworkError{Op: op, Err: errors.New("connection refused")}
}

func TestEngine_NetworkFailureIsReplayedByRetryTimer(t *testing.T) {
	tr := &fakeTransport{list: sample()}
	e, _ := newEngine(t, tr, Options{RetryAfter: 100 * time.Millisecond})
	require.NoError(t, e.Start(context.Background()))

	tr.set(func(f *fakeTransport) { f.mutErr = networkDown("toggle entry") })
	err := e.Toggle(context.Background(), model.ListActive, 0, sample().Active[0])
	require.ErrorIs(t, err, api.ErrNetworkUnavailable)
	require.Equal(t, 1, e.View().Pending)
	tr.set(func(f *fakeTransport) { f.mutErr = nil })

	require.Eventually(t, func() bool {
		return len(tr.callLog()) == 2
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"toggle:milk", "toggle:milk"}, tr.callLog())

	require.Eventually(t, func() bool {
		v := e.View()
		return v.Pending == 0 && !v.Offline && len(v.List.Active) == 1 && len(v.List.Inactive) == 2
	}, time.Second, 5*time.Millisecond)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	require.Equal(t, "milk", tr.list.Inactive[1].Name)
}

func TestEngine_RefreshKeepsHeldMutation(t *testing.T) {
	tr := &fakeTransport{list: sample()}
	e, _ := newEngine(t, tr, Options{RetryAfter: time.Hour})
	require.NoError(t, e.Start(context.Background()))

	tr.set(func(f *fakeTransport) { f.mutErr = networkDown("toggle entry") })
	err := e.Toggle(context.Background(), model.ListActive, 0, sample().Active[0])
	require.ErrorIs(t, err, api.ErrNetworkUnavailable)
	tr.set(func(f *fakeTransport) { f.mutErr = nil })

	require.NoError(t, e.RefreshNow(context.Background()))
	v := e.View()
	require.Len(t, v.List.Active, 1, "live fetch must not drop the optimistic toggle")
	require.Len(t, v.List.Inactive, 2)

	require.Eventually(t, func() bool {
		v := e.View()
		return len(tr.callLog()) == 2 && v.Pending == 0 && !v.Offline
	}, time.Second, 5*time.Millisecond)
	v = e.View()
	require.Len(t, v.List.Active, 1)
	require.Len(t, v.List.Inactive, 2)
}

func TestEngine_HeldMutationsReplayInOrder(t *testing.T) {
	tr := &fakeTransport{list: sample(), gate: make(chan struct{})}
	e, _ := newEngine(t, tr, Options{RetryAfter: time.Hour})
	require.NoError(t, e.Start(context.Background()))

	s := sample()
	first := make(chan error, 1)
	go func() { first <- e.Toggle(context.Background(), model.ListActive, 0, s.Active[0]) }()
	require.Eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return tr.inflight == 1
	}, time.Second, 5*time.Millisecond)

	second := make(chan error, 1)
	go func() { second <- e.Toggle(context.Background(), model.ListActive, 0, s.Active[1]) }()
	require.Eventually(t, func() bool { return e.View().Pending == 2 }, time.Second, 5*time.Millisecond)

	tr.set(func(f *fakeTransport) { f.mutErr = networkDown("toggle entry") })
	tr.gate <- struct{}{}
	require.ErrorIs(t, <-first, api.ErrNetworkUnavailable)
	require.ErrorIs(t, <-second, ErrOffline)
	require.Equal(t, []string{"toggle:milk"}, tr.callLog())

	tr.set(func(f *fakeTransport) {
		f.mutErr = nil
		f.gate = nil
	})
	require.NoError(t, e.RefreshNow(context.Background()))
	require.Eventually(t, func() bool { return len(tr.callLog()) == 3 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"toggle:milk", "toggle:milk", "toggle:apple"}, tr.callLog())

	require.Eventually(t, func() bool {
		v := e.View()
		return v.Pending == 0 && !v.Offline && len(v.List.Active) == 0 && len(v.List.Inactive) == 3
	}, time.Second, 5*time.Millisecond)
}

func TestEngine_SubmitAfterShutdownReleasesPending(t *testing.T) {
	e := &Engine{
		opts: Options{
			Transport: &fakeTransport{},
			Renderer:  RendererFunc(func(View) {}),
			Now:       time.Now,
		},
		log:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		jobs: make(chan *job),
		done: make(chan struct{}),
	}
	e.local = sample()
	close(e.done)

	err := e.Toggle(context.Background(), model.ListActive, 0, sample().Active[0])
	require.ErrorIs(t, err, ErrClosed)
	require.Equal(t, 0, e.View().Pending)
}

func TestEngine_ApplicationErrorDiscardsOptimisticState(t *testing.T) {
	tr := &fakeTransport{list: sample()}
	e, _ := newEngine(t, tr, Options{})
	require.NoError(t, e.Start(context.Background()))

	tr.set(func(f *fakeTransport) {
		f.mutErr = &api.StatusError{Op: "toggle entry", Status: http.StatusBadRequest, Body: model.ErrorBody{Reason: "ItemNotFound"}}
	})
	err := e.Toggle(context.Background(), model.ListActive, 0, sample().Active[0])
	require.ErrorIs(t, err, api.ErrConflict)

	v := e.View()
	require.False(t, v.Offline)
	require.Len(t, v.List.Active, 2)
	require.Len(t, v.List.Inactive, 1)
}

func TestEngine_ValidationErrorIsNotSent(t *testing.T) {
	tr := &fakeTransport{list: sample()}
	e, _ := newEngine(t, tr, Options{})
	require.NoError(t, e.Start(context.Background()))

	err := e.Add(context.Background(), model.ListActive, model.Entry{Name: "no category"})
	var ve mutate.ValidationError
	require.ErrorAs(t, err, &ve)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	require.Empty(t, tr.calls)
}

func TestEngine_CachedResponseSchedulesOneRetry(t *testing.T) {
	tr := &fakeTransport{list: sample(), cached: true}
	e, _ := newEngine(t, tr, Options{RetryAfter: 100 * time.Millisecond})

	require.NoError(t, e.RefreshNow(context.Background()))
	require.NoError(t, e.RefreshNow(context.Background()))
	v := e.View()
	require.True(t, v.Offline)
	require.True(t, v.Cached)

	tr.set(func(f *fakeTransport) { f.cached = false })
	require.Eventually(t, func() bool { return tr.getCount() == 3 }, time.Second, 5*time.Millisecond)
	time.Sleep(250 * time.Millisecond)
	require.Equal(t, 3, tr.getCount())

	v = e.View()
	require.False(t, v.Offline)
	require.False(t, v.Cached)
}

func TestEngine_RefreshIsDebounced(t *testing.T) {
	tr := &fakeTransport{list: sample()}
	e, _ := newEngine(t, tr, Options{RefreshDebounce: 30 * time.Millisecond})

	for i := 0; i < 10; i++ {
		e.Refresh()
	}
	require.Eventually(t, func() bool { return tr.getCount() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 1, tr.getCount())
}

type memSnapshots struct {
	mu    sync.Mutex
	lists map[string]model.List
}

func (m *memSnapshots) LoadSnapshot(code string) (localstate.Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lists[code]
	return localstate.Snapshot{List: l}, ok, nil
}

func (m *memSnapshots) SaveSnapshot(code string, list model.List) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[code] = list
	return nil
}

func TestEngine_StartRendersSnapshotWhileOffline(t *testing.T) {
	snaps := &memSnapshots{lists: map[string]model.List{"abcd": sample()}}
	tr := &fakeTransport{getErr: &api.NetworkError{Op: "get list", Err: errors.New("no route to host")}}
	e, rec := newEngine(t, tr, Options{Snapshots: snaps})

	err := e.Start(context.Background())
	require.ErrorIs(t, err, api.ErrNetworkUnavailable)

	require.Len(t, rec.first().List.Active, 2)
	require.True(t, e.Offline())
	require.Len(t, e.View().List.Active, 2)
}

func TestEngine_RefreshPersistsSnapshot(t *testing.T) {
	snaps := &memSnapshots{lists: map[string]model.List{}}
	tr := &fakeTransport{list: sample()}
	e, _ := newEngine(t, tr, Options{Snapshots: snaps})

	require.NoError(t, e.RefreshNow(context.Background()))
	snaps.mu.Lock()
	defer snaps.mu.Unlock()
	require.Len(t, snaps.lists["abcd"].Active, 2)
}

func TestEngine_ClosedRejectsMutations(t *testing.T) {
	tr := &fakeTransport{list: sample()}
	e, _ := newEngine(t, tr, Options{})
	e.Close()
	err := e.Add(context.Background(), model.ListActive, model.Entry{Category: "a", Name: "b"})
	require.ErrorIs(t, err, ErrClosed)
}
