// SPDX-License-Identifier: MIT
/*
Package status implements the transient status line: at most one message is
live at a time, and a message shown with a timeout clears itself when the
timeout elapses unless a newer message has superseded it.

Channel is not safe for concurrent use. It is owned by the coordinator's
control goroutine; timer expiries are handed back to that goroutine through
the Dispatch function supplied at construction.
*/
package status

import (
	"time"

	"github.com/benbjohnson/clock"
)

// NoTimeout keeps a message until it is superseded.
const NoTimeout time.Duration = -1

// Message is the currently displayed status text.
type Message struct {
	Text   string
	Expiry time.Time // Zero when the message does not expire.
}

// Dispatch runs fn on the goroutine that owns the Channel.
type Dispatch func(fn func())

// Channel holds the live status message and its expiry timer.
type Channel struct {
	clock    clock.Clock
	dispatch Dispatch

	current    Message
	timer      *clock.Timer
	generation uint64

	onChange func(Message)
}

// New creates a Channel. A nil dispatch runs expiries directly on the timer
// goroutine, which is only safe when nothing else touches the Channel.
func New(clk clock.Clock, dispatch Dispatch) *Channel {
	if clk == nil {
		clk = clock.New()
	}
	if dispatch == nil {
		dispatch = func(fn func()) { fn() }
	}
	return &Channel{clock: clk, dispatch: dispatch}
}

// OnChange registers a callback invoked on the owning goroutine whenever
// the displayed message changes, including on expiry.
func (c *Channel) OnChange(fn func(Message)) {
	c.onChange = fn
}

// Show displays text, superseding and cancelling any previous message. A
// timeout of NoTimeout keeps the message until it is superseded. Any other
// non-positive timeout expires the message on the next timer tick.
func (c *Channel) Show(text string, timeout time.Duration) {
	c.cancel()
	c.generation++

	c.current = Message{Text: text}
	if timeout != NoTimeout {
		timeout = max(timeout, 0)
		c.current.Expiry = c.clock.Now().Add(timeout)
		gen := c.generation
		c.timer = c.clock.AfterFunc(timeout, func() {
			c.dispatch(func() { c.expire(gen) })
		})
	}
	c.changed()
}

// Clear removes the current message and cancels its expiry.
func (c *Channel) Clear() {
	c.Show("", NoTimeout)
}

// Current returns the displayed message.
func (c *Channel) Current() Message {
	return c.current
}

// Text returns the displayed text, empty when nothing is shown.
func (c *Channel) Text() string {
	return c.current.Text
}

// pending reports whether an expiry timer is armed.
func (c *Channel) pending() bool {
	return c.timer != nil
}

// expire clears the message if gen still identifies it. A timer that fired
// after being superseded finds a newer generation and does nothing.
func (c *Channel) expire(gen uint64) {
	if gen != c.generation {
		return
	}
	c.timer = nil
	c.current = Message{}
	c.changed()
}

func (c *Channel) cancel() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Channel) changed() {
	if c.onChange != nil {
		c.onChange(c.current)
	}
}
