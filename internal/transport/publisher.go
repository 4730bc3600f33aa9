// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"spectrum/internal/log"
)

// Publisher periodically fetches a frame and sends it to every transport.
// It runs in a separate goroutine managed by Start and Stop methods.
type Publisher struct {
	source     FrameSource
	transports []Transport
	interval   time.Duration
	clock      clock.Clock

	ticker   *clock.Ticker  // Ticker that triggers publishing.
	doneChan chan struct{}  // Channel used to signal the publisher goroutine to stop.
	stopOnce sync.Once      // Ensures the stop logic runs only once per Start/Stop cycle.
	wg       sync.WaitGroup // Waits for the publisher goroutine to finish during Stop.
	mu       sync.Mutex     // Protects access to ticker and doneChan during Start/Stop.

	sent   atomic.Uint64
	failed atomic.Uint64
}

// NewPublisher creates a publisher. If the provided interval is invalid
// (<= 0), it defaults to 33ms (~30Hz). A nil clock means the wall clock.
func NewPublisher(interval time.Duration, clk clock.Clock, source FrameSource, transports ...Transport) (*Publisher, error) {
	if source == nil {
		return nil, fmt.Errorf("publisher: frame source cannot be nil")
	}
	if len(transports) == 0 {
		return nil, fmt.Errorf("publisher: no transports")
	}
	if interval <= 0 {
		interval = 33 * time.Millisecond
		log.Warnf("Publisher: Invalid interval provided, defaulting to %s", interval)
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Publisher{
		source:     source,
		transports: transports,
		interval:   interval,
		clock:      clk,
	}, nil
}

// Start begins the periodic publishing process.
// It is safe to call Start multiple times; subsequent calls are no-ops if already started.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		log.Warnf("Publisher: Start called but already running.")
		return
	}

	p.ticker = p.clock.Ticker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{} // Reset stopOnce for this run

	// Capture local variables for the goroutine to avoid data races on p.ticker/p.doneChan
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Infof("Publisher: started (Interval: %s, Transports: %d)", p.interval, len(p.transports))
		for {
			select {
			case <-ticker.C:
				p.PublishOnce()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it to exit.
// It is safe to call Stop multiple times; subsequent calls are no-ops.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	log.Infof("Publisher: stopped after %d frames (%d send errors)", p.sent.Load(), p.failed.Load())
}

// PublishOnce sends the current frame to every transport. A failing
// transport does not prevent delivery to the others.
func (p *Publisher) PublishOnce() {
	frame := p.source()
	for _, t := range p.transports {
		if err := t.Send(frame); err != nil {
			p.failed.Add(1)
			log.Debugf("Publisher: send of frame %d failed: %v", frame.Sequence, err)
		}
	}
	p.sent.Add(1)
}

// Sent returns the number of frames published.
func (p *Publisher) Sent() uint64 { return p.sent.Load() }

// Close stops publishing and closes every transport.
func (p *Publisher) Close() error {
	p.Stop()
	var errs []error
	for _, t := range p.transports {
		errs = append(errs, t.Close())
	}
	return errors.Join(errs...)
}
