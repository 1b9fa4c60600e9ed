package quote

import (
	"context"
	"sync"
	"time"
)

// DefaultDebounce is the quiet period before an interactive re-quote fires.
const DefaultDebounce = 500 * time.Millisecond

// Debouncer runs at most one pending task. Scheduling a new task supersedes
// and cancels the previous one; Close cancels whatever is pending and makes
// later schedules no-ops.
type Debouncer struct {
	delay time.Duration

	mu     sync.Mutex
	gen    uint64
	timer  *time.Timer
	cancel context.CancelFunc
	closed bool
}

// Ticket identifies one scheduled task.
type Ticket struct {
	d   *Debouncer
	gen uint64
	ctx context.Context
}

// Context is cancelled when the task is superseded or the debouncer closes.
func (t Ticket) Context() context.Context {
	if t.ctx == nil {
		return context.Background()
	}
	return t.ctx
}

// Current reports whether the task is still the latest one scheduled.
func (t Ticket) Current() bool {
	if t.d == nil {
		return false
	}
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	return !t.d.closed && t.d.gen == t.gen
}

func NewDebouncer(delay time.Duration) *Debouncer {
	if delay < 0 {
		delay = 0
	}
	return &Debouncer{delay: delay}
}

// Schedule arms fn to run after the quiet period under a fresh ticket.
func (d *Debouncer) Schedule(parent context.Context, fn func(Ticket)) Ticket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return Ticket{}
	}
	d.stopLocked()
	d.gen++
	ctx, cancel := context.WithCancel(parent)
	d.cancel = cancel
	ticket := Ticket{d: d, gen: d.gen, ctx: ctx}
	d.timer = time.AfterFunc(d.delay, func() {
		if !ticket.Current() || ctx.Err() != nil {
			return
		}
		fn(ticket)
	})
	return ticket
}

// Cancel drops the pending task, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.gen++
}

func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.closed = true
}

func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}
