package gesture

import (
	"context"
	"sync"
	"time"
)

// Driver runs a Controller with real long-press timers. Each armed timer
// owns a context; cancelling it is the only way a timer is disarmed.
type Driver struct {
	delay time.Duration

	mu     sync.Mutex
	ctrl   *Controller
	cancel context.CancelFunc
	closed bool

	intents chan Intent
	wg      sync.WaitGroup
}

func NewDriver(lookup Lookup, longPress time.Duration) *Driver {
	if longPress <= 0 {
		longPress = DefaultLongPress
	}
	return &Driver{
		delay:   longPress,
		ctrl:    NewController(lookup),
		intents: make(chan Intent, 16),
	}
}

// Intents delivers intents in the order they were decided.
func (d *Driver) Intents() <-chan Intent {
	return d.intents
}

func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ctrl.State()
}

func (d *Driver) Handle(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	step := d.ctrl.Handle(ev)
	if step.Disarm || step.Arm {
		d.disarmLocked()
	}
	if step.Arm {
		d.armLocked(step.Token)
	}
	if step.Intent != nil {
		d.emitLocked(*step.Intent)
	}
}

func (d *Driver) disarmLocked() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}

func (d *Driver) armLocked(token uint64) {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		t := time.NewTimer(d.delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		// A release handled while we waited for the lock wins.
		if ctx.Err() != nil || d.closed {
			return
		}
		if in, ok := d.ctrl.Fire(token); ok {
			d.cancel = nil
			d.emitLocked(in)
		}
	}()
}

// emitLocked must not block while holding the lock; intents beyond the
// buffer are dropped.
func (d *Driver) emitLocked(in Intent) {
	select {
	case d.intents <- in:
	default:
	}
}

// Close cancels any armed timer and closes the intent channel.
func (d *Driver) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.disarmLocked()
	d.mu.Unlock()
	d.wg.Wait()
	close(d.intents)
}
