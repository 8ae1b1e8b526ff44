package syncengine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"misl/internal/api"
	"misl/internal/localstate"
	"misl/internal/model"
	"misl/internal/mutate"

	"github.com/oklog/ulid/v2"
)

var (
	ErrOffline = errors.New("offline: refresh before changing the list")
	ErrClosed  = errors.New("sync engine closed")
)

const (
	DefaultRefreshDebounce = 250 * time.Millisecond
	DefaultRetryAfter      = 60 * time.Second
)

// Transport is the list API as seen by the engine. *api.Client implements it.
type Transport interface {
	GetList(ctx context.Context) (api.Fetched, error)
	AddEntry(ctx context.Context, listType model.ListType, e model.Entry) error
	ToggleEntry(ctx context.Context, listType model.ListType, index int, expected model.Entry) error
	DeleteEntry(ctx context.Context, listType model.ListType, index int, expected model.Entry) error
	EditEntry(ctx context.Context, listType model.ListType, index int, old, next model.Entry) error
	ReplaceCategories(ctx context.Context, cats []model.Category) error
	ReplaceUnits(ctx context.Context, units []model.Unit) error
}

type Renderer interface {
	Render(View)
}

type RendererFunc func(View)

func (f RendererFunc) Render(v View) { f(v) }

// SnapshotStore persists the last server list per access code.
type SnapshotStore interface {
	LoadSnapshot(code string) (localstate.Snapshot, bool, error)
	SaveSnapshot(code string, list model.List) error
}

// View is what the renderer draws.
type View struct {
	List       model.List
	Offline    bool
	Cached     bool
	Pending    int
	Categories []string
	Units      []string
}

type Options struct {
	AccessCode string
	Transport  Transport
	Renderer   Renderer
	Snapshots  SnapshotStore
	Logger     *slog.Logger

	RefreshDebounce time.Duration
	// RetryAfter delays the re-fetch after a response served from cache or
	// a mutation that could not reach the server.
	RetryAfter time.Duration
	Now        func() time.Time
}

type job struct {
	id     string
	op     string
	call   func(ctx context.Context) error
	ctx    context.Context
	result chan error
	// answered is set once the caller has its result; a held job that is
	// replayed later reports only to the log.
	answered bool
}

// Engine owns the client's view of one list. Mutations are applied to a
// local copy right away and sent to the server one at a time, in order.
type Engine struct {
	opts Options
	log  *slog.Logger

	mu      sync.Mutex
	server  model.List
	local   model.List
	offline bool
	cached  bool
	pending int
	held    []*job
	retry   *time.Timer
	closed  bool

	renderMu  sync.Mutex
	refresher *debouncer

	jobs chan *job
	done chan struct{}
	wg   sync.WaitGroup
}

func New(opts Options) (*Engine, error) {
	if opts.Transport == nil {
		return nil, errors.New("syncengine: missing transport")
	}
	if opts.Renderer == nil {
		opts.Renderer = RendererFunc(func(View) {})
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = DefaultRetryAfter
	}
	if opts.RefreshDebounce <= 0 {
		opts.RefreshDebounce = DefaultRefreshDebounce
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	e := &Engine{
		opts: opts,
		log:  opts.Logger,
		jobs: make(chan *job, 64),
		done: make(chan struct{}),
	}
	e.server.Normalize()
	e.local.Normalize()
	e.refresher = newDebouncer(opts.RefreshDebounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := e.RefreshNow(ctx); err != nil {
			e.log.Debug("refresh failed", "err", err)
		}
	})
	e.wg.Add(1)
	go e.worker()
	return e, nil
}

// Start renders the persisted snapshot, if any, and fetches the list.
func (e *Engine) Start(ctx context.Context) error {
	if e.opts.Snapshots != nil {
		snap, ok, err := e.opts.Snapshots.LoadSnapshot(e.opts.AccessCode)
		if err != nil {
			e.log.Warn("snapshot load failed", "err", err)
		} else if ok {
			e.mu.Lock()
			e.server = snap.List.Clone()
			e.local = snap.List.Clone()
			e.mu.Unlock()
			e.render()
		}
	}
	return e.RefreshNow(ctx)
}

func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	if e.retry != nil {
		e.retry.Stop()
		e.retry = nil
	}
	e.mu.Unlock()
	e.refresher.Stop()
	close(e.done)
	e.wg.Wait()
}

func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewLocked()
}

func (e *Engine) Offline() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.offline
}

func (e *Engine) viewLocked() View {
	l := e.local.Clone()
	return View{
		List:       l,
		Offline:    e.offline,
		Cached:     e.cached,
		Pending:    e.pending,
		Categories: CategorySuggestions(l),
		Units:      UnitSuggestions(l),
	}
}

// render always draws the latest state, in order.
func (e *Engine) render() {
	e.renderMu.Lock()
	defer e.renderMu.Unlock()
	e.opts.Renderer.Render(e.View())
}

// Refresh requests a debounced fetch.
func (e *Engine) Refresh() {
	e.refresher.Notify()
}

// RefreshNow fetches the list and replaces the server snapshot. The local
// copy is replaced too unless mutations are still pending. A live answer
// sends mutations held back by a network failure again.
func (e *Engine) RefreshNow(ctx context.Context) error {
	got, err := e.opts.Transport.GetList(ctx)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		if errors.Is(err, api.ErrNetworkUnavailable) {
			e.offline = true
			if len(e.held) > 0 {
				e.armRetryLocked()
			}
		}
		e.mu.Unlock()
		e.render()
		return err
	}
	e.server = got.List.Clone()
	if e.pending == 0 {
		e.local = got.List.Clone()
	}
	var replay []*job
	if !got.Cached {
		replay, e.held = e.held, nil
	}
	e.cached = got.Cached
	// Stay offline until held mutations are queued again, so new ones
	// cannot overtake them.
	e.offline = got.Cached || len(replay) > 0
	switch {
	case got.Cached:
		e.armRetryLocked()
	case e.retry != nil:
		e.retry.Stop()
		e.retry = nil
	}
	e.mu.Unlock()

	if len(replay) > 0 {
		e.replay(replay)
	}

	if !got.Cached && e.opts.Snapshots != nil {
		if err := e.opts.Snapshots.SaveSnapshot(e.opts.AccessCode, got.List); err != nil {
			e.log.Warn("snapshot save failed", "err", err)
		}
	}
	e.render()
	return nil
}

// armRetryLocked schedules the single delayed re-fetch unless one is armed.
func (e *Engine) armRetryLocked() {
	if e.retry == nil && !e.closed {
		e.retry = time.AfterFunc(e.opts.RetryAfter, e.onRetry)
	}
}

// replay queues held mutations again in their original order.
func (e *Engine) replay(jobs []*job) {
	e.log.Info("replaying held mutations", "count", len(jobs))
	for _, j := range jobs {
		select {
		case e.jobs <- j:
		case <-e.done:
			return
		}
	}
	e.mu.Lock()
	if len(e.held) == 0 && !e.cached {
		e.offline = false
	}
	e.mu.Unlock()
	e.render()
}

func (e *Engine) onRetry() {
	e.mu.Lock()
	e.retry = nil
	closed := e.closed
	e.mu.Unlock()
	if !closed {
		e.refresher.Notify()
	}
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case j := <-e.jobs:
			if e.holdBehind(j) {
				continue
			}
			err := j.call(j.ctx)
			e.finish(j, err)
		case <-e.done:
			for {
				select {
				case j := <-e.jobs:
					e.mu.Lock()
					e.pending--
					e.mu.Unlock()
					e.answer(j, ErrClosed)
				default:
					return
				}
			}
		}
	}
}

// holdBehind parks j when earlier mutations are waiting for the network, so
// the server sees them in order.
func (e *Engine) holdBehind(j *job) bool {
	e.mu.Lock()
	if len(e.held) == 0 {
		e.mu.Unlock()
		return false
	}
	e.held = append(e.held, j)
	e.mu.Unlock()
	e.log.Debug("mutation held", "id", j.id, "op", j.op)
	e.answer(j, ErrOffline)
	return true
}

func (e *Engine) finish(j *job, err error) {
	network := errors.Is(err, api.ErrNetworkUnavailable)
	e.mu.Lock()
	switch {
	case err == nil:
		e.pending--
	case network:
		// The optimistic state stays and the job stays pending until a
		// live fetch replays it.
		e.offline = true
		e.held = append(e.held, j)
		e.armRetryLocked()
	default:
		e.pending--
		e.local = e.server.Clone()
	}
	e.mu.Unlock()

	switch {
	case network:
		e.log.Info("mutation held for retry", "id", j.id, "op", j.op, "err", err)
	case err != nil:
		e.log.Info("mutation failed", "id", j.id, "op", j.op, "err", err)
	default:
		e.log.Debug("mutation done", "id", j.id, "op", j.op)
	}
	e.render()
	if !network {
		e.refresher.Notify()
	}
	e.answer(j, err)
}

func (e *Engine) answer(j *job, err error) {
	if j.answered {
		return
	}
	j.answered = true
	j.result <- err
}

// submit applies the change locally, queues the network call and waits for it.
func (e *Engine) submit(ctx context.Context, op string, apply func(*model.List) error, call func(ctx context.Context) error) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.offline {
		e.mu.Unlock()
		return ErrOffline
	}
	next := e.local.Clone()
	if err := apply(&next); err != nil {
		if !errors.Is(err, mutate.ErrItemNotFound) {
			e.mu.Unlock()
			return err
		}
		// The server is the authority on whether the entry still exists.
		next = e.local
	}
	e.local = next
	e.pending++
	e.mu.Unlock()
	e.render()

	j := &job{
		id:     ulid.Make().String(),
		op:     op,
		call:   call,
		ctx:    context.WithoutCancel(ctx),
		result: make(chan error, 1),
	}
	e.log.Debug("mutation queued", "id", j.id, "op", op)
	select {
	case e.jobs <- j:
	case <-e.done:
		e.mu.Lock()
		e.pending--
		e.mu.Unlock()
		return ErrClosed
	}
	select {
	case err := <-j.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) Add(ctx context.Context, listType model.ListType, entry model.Entry) error {
	return e.submit(ctx, "add",
		func(l *model.List) error {
			_, err := mutate.Add(l, listType, entry, e.opts.Now())
			return err
		},
		func(ctx context.Context) error {
			return e.opts.Transport.AddEntry(ctx, listType, entry)
		})
}

func (e *Engine) Toggle(ctx context.Context, listType model.ListType, index int, expected model.Entry) error {
	return e.submit(ctx, "toggle",
		func(l *model.List) error {
			_, err := mutate.Toggle(l, listType, index, expected, e.opts.Now())
			return err
		},
		func(ctx context.Context) error {
			return e.opts.Transport.ToggleEntry(ctx, listType, index, expected)
		})
}

func (e *Engine) Delete(ctx context.Context, listType model.ListType, index int, expected model.Entry) error {
	return e.submit(ctx, "delete",
		func(l *model.List) error {
			_, err := mutate.Delete(l, listType, index, expected)
			return err
		},
		func(ctx context.Context) error {
			return e.opts.Transport.DeleteEntry(ctx, listType, index, expected)
		})
}

func (e *Engine) Edit(ctx context.Context, listType model.ListType, index int, old, next model.Entry) error {
	return e.submit(ctx, "edit",
		func(l *model.List) error {
			_, err := mutate.Edit(l, listType, index, old, next, e.opts.Now())
			return err
		},
		func(ctx context.Context) error {
			return e.opts.Transport.EditEntry(ctx, listType, index, old, next)
		})
}

func (e *Engine) SaveCategories(ctx context.Context, cats []model.Category) error {
	return e.submit(ctx, "categories",
		func(l *model.List) error { return mutate.ReplaceCategories(l, cats) },
		func(ctx context.Context) error { return e.opts.Transport.ReplaceCategories(ctx, cats) })
}

func (e *Engine) SaveUnits(ctx context.Context, units []model.Unit) error {
	return e.submit(ctx, "units",
		func(l *model.List) error { return mutate.ReplaceUnits(l, units) },
		func(ctx context.Context) error { return e.opts.Transport.ReplaceUnits(ctx, units) })
}
