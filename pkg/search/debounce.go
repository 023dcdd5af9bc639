// Package search debounces search-as-you-type suggestion requests.
package search

import (
	"sync"
	"time"
)

// QuietPeriod is how long input must pause before suggestions are computed.
const QuietPeriod = 300 * time.Millisecond

// ComputeFunc produces suggestions for the settled search text.
type ComputeFunc func(text string) []string

// Result is delivered once per Type call. Superseded is set when a later
// keystroke cancelled the computation before it fired.
type Result struct {
	Text        string
	Suggestions []string
	Superseded  bool
}

// Box is a cancellable scheduled suggestion task. Every Type call cancels the
// pending task, if any, and schedules a new one QuietPeriod later, so only the
// final keystroke of a burst is computed.
type Box struct {
	quiet   time.Duration
	compute ComputeFunc

	mu      sync.Mutex
	gen     uint64
	timer   *time.Timer
	waiter  chan Result
	pending string // text of the keystroke waiter belongs to
	stopped bool
}

// NewBox creates a box with the given quiet period (QuietPeriod when <= 0).
func NewBox(quiet time.Duration, compute ComputeFunc) *Box {
	if quiet <= 0 {
		quiet = QuietPeriod
	}
	return &Box{quiet: quiet, compute: compute}
}

// Type records a keystroke. The returned channel receives exactly one Result.
func (b *Box) Type(text string) <-chan Result {
	ch := make(chan Result, 1)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.cancelLocked()
	if b.stopped {
		ch <- Result{Text: text, Superseded: true}
		return ch
	}

	b.gen++
	gen := b.gen
	b.waiter = ch
	b.pending = text
	b.timer = time.AfterFunc(b.quiet, func() { b.fire(gen, text) })
	return ch
}

// Stop cancels any pending computation; later Type calls resolve immediately as superseded.
func (b *Box) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelLocked()
	b.stopped = true
}

func (b *Box) fire(gen uint64, text string) {
	b.mu.Lock()
	if gen != b.gen || b.waiter == nil {
		// a newer keystroke or Stop won the race against this timer
		b.mu.Unlock()
		return
	}
	ch := b.waiter
	b.waiter = nil
	b.pending = ""
	b.timer = nil
	b.mu.Unlock()

	ch <- Result{Text: text, Suggestions: b.compute(text)}
}

func (b *Box) cancelLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if b.waiter != nil {
		b.waiter <- Result{Text: b.pending, Superseded: true}
		b.waiter = nil
		b.pending = ""
	}
}
