package gesture

import (
	"time"

	"misl/internal/model"
)

const DefaultLongPress = 1000 * time.Millisecond

type State int

const (
	Idle State = iota
	Pressed
	LongPressFired
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pressed:
		return "pressed"
	case LongPressFired:
		return "long-press-fired"
	}
	return "unknown"
}

// Lookup returns the entry shown at a row, or false when there is none.
type Lookup func(side model.ListType, index int) (model.Entry, bool)

// Step is the outcome of one event. Arm asks the caller to start the
// long-press timer for Token; Disarm asks it to cancel any armed timer.
type Step struct {
	Intent *Intent
	Arm    bool
	Disarm bool
	Token  uint64
}

// Controller is the synchronous gesture state machine. It is not safe for
// concurrent use; Driver adds locking and real timers.
type Controller struct {
	lookup Lookup

	family   Family
	state    State
	pressed  Target
	entry    model.Entry
	suppress bool
	token    uint64
}

func NewController(lookup Lookup) *Controller {
	return &Controller{lookup: lookup}
}

func (c *Controller) State() State { return c.state }

// Family is the input family fixed by the first event, or FamilyUnknown.
func (c *Controller) Family() Family { return c.family }

func (c *Controller) reset() {
	c.state = Idle
	c.pressed = Target{}
	c.entry = model.Entry{}
}

func (c *Controller) Handle(ev Event) Step {
	if ev.Family == FamilyUnknown {
		return Step{}
	}
	if c.family == FamilyUnknown {
		c.family = ev.Family
	} else if ev.Family != c.family {
		return Step{}
	}

	switch ev.Kind {
	case Press:
		return c.press(ev.Target)
	case Move:
		if c.state == Pressed && !ev.Target.Same(c.pressed) {
			c.reset()
			return Step{Disarm: true}
		}
	case Scroll:
		if c.state == Pressed {
			c.reset()
			return Step{Disarm: true}
		}
	case Release:
		return c.release(ev.Target)
	}
	return Step{}
}

func (c *Controller) press(t Target) Step {
	disarm := c.state == Pressed
	c.reset()
	c.suppress = false
	if !t.Valid {
		return Step{Disarm: disarm}
	}
	e, ok := c.lookup(t.Side, t.Index)
	if !ok {
		return Step{Disarm: disarm}
	}
	c.token++
	c.state = Pressed
	c.pressed = t
	c.entry = e
	return Step{Arm: true, Disarm: disarm, Token: c.token}
}

func (c *Controller) release(t Target) Step {
	switch c.state {
	case LongPressFired:
		// The long press already produced its intent.
		c.suppress = false
		c.reset()
		return Step{}
	case Pressed:
		in := Intent{Kind: IntentRefresh}
		if t.Same(c.pressed) {
			in = Intent{Kind: IntentToggle, Side: c.pressed.Side, Index: c.pressed.Index, Entry: c.entry}
		}
		c.reset()
		return Step{Intent: &in, Disarm: true}
	}
	return Step{}
}

// Fire is called when the timer armed for token expires. Stale tokens are
// ignored.
func (c *Controller) Fire(token uint64) (Intent, bool) {
	if c.state != Pressed || token != c.token {
		return Intent{}, false
	}
	kind := IntentEdit
	if c.pressed.Side == model.ListInactive {
		kind = IntentDelete
	}
	in := Intent{Kind: kind, Side: c.pressed.Side, Index: c.pressed.Index, Entry: c.entry}
	c.state = LongPressFired
	c.suppress = true
	return in, true
}

// SuppressingRelease reports whether the next release will be swallowed.
func (c *Controller) SuppressingRelease() bool {
	return c.state == LongPressFired && c.suppress
}
