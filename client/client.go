package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sardine-ai/go-remote-flags/model"
	"github.com/sardine-ai/go-remote-flags/source"
	"github.com/sirupsen/logrus"
)

// ErrClosed is returned by operations on a closed Client.
var ErrClosed = errors.New("flag client closed")

// State is the state of the refresh controller.
type State int32

const (
	StateUnconfigured State = iota
	StateFetching
	StateIdle
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateFetching:
		return "fetching"
	case StateIdle:
		return "idle"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// published is one entry of the snapshot store. seq orders replacements.
type published struct {
	snapshot *model.Snapshot
	seq      uint64
}

// Client keeps the flags of one project/environment fresh and answers typed
// lookups against the latest snapshot. Create it with NewClient and release it
// with Close. Clients share no state with each other.
type Client struct {
	source  source.Source
	opts    *options
	log     logrus.FieldLogger
	metrics *metrics

	current atomic.Pointer[published]
	state   atomic.Int32

	mu      sync.Mutex // guards cfg, version, seq and closed
	cfg     *model.Config
	version uint64
	seq     uint64
	closed  bool

	observers registry

	wake      chan struct{}
	refreshes chan chan error
	results   chan fetchResult
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewClient creates an unconfigured Client reading flags from src and starts
// its refresh goroutine. Nothing is fetched until Configure is called. The
// goroutine stops when ctx is cancelled or Close is called.
func NewClient(ctx context.Context, src source.Source, opts ...Option) *Client {
	o := newOptions(opts)
	ctx, cancel := context.WithCancel(ctx)

	c := &Client{
		source:    src,
		opts:      o,
		log:       o.logger.WithField("source", src.GetName()),
		metrics:   newMetrics(o.registerer),
		wake:      make(chan struct{}, 1),
		refreshes: make(chan chan error),
		results:   make(chan fetchResult),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	if c.opts.onError == nil {
		c.opts.onError = func(err error) {
			c.log.WithError(err).Error("error refreshing flags")
		}
	}
	c.current.Store(&published{snapshot: model.EmptySnapshot})
	c.state.Store(int32(StateUnconfigured))

	go c.run(ctx)
	return c
}

// Configure validates cfg and makes it the active configuration. A fetch for
// the new configuration starts immediately; results of fetches issued under
// an earlier configuration are discarded. An invalid cfg is rejected with a
// *model.ConfigurationError and no fetch is attempted.
//
// Configure never blocks and may be called from a subscriber callback.
func (c *Client) Configure(cfg model.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.WithDefaults()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.cfg = &cfg
	c.version++
	version := c.version
	c.state.Store(int32(StateFetching))
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"env":     cfg.Environment,
		"version": version,
	}).Debug("configuration changed")

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

// Config returns the active configuration, or false when unconfigured.
func (c *Client) Config() (model.Config, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg == nil {
		return model.Config{}, false
	}
	return *c.cfg, true
}

// Refresh fetches the flags for the active configuration now and waits for
// the result. It returns the transport or payload error of the fetch, if any.
// Refresh must not be called from a subscriber callback or ErrorHandler.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	configured, closed := c.cfg != nil, c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !configured {
		return &model.ConfigurationError{Reason: "client is not configured"}
	}

	done := make(chan error, 1)
	select {
	case c.refreshes <- done:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current snapshot. It never blocks; before the first
// successful fetch it is empty.
func (c *Client) Snapshot() *model.Snapshot {
	return c.current.Load().snapshot
}

// State returns the state of the refresh controller.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Close stops the refresh goroutine and cancels any fetch in flight. No
// result is applied after Close returns; lookups keep answering from the last
// snapshot. Close is idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.state.Store(int32(StateStopped))
	c.mu.Unlock()
	c.cancel()
}

// Done is closed once the refresh goroutine has exited.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// commit publishes snap if version is still the active configuration and the
// client is open, then notifies subscribers. Only the refresh goroutine calls
// it, so notifications are delivered in commit order.
func (c *Client) commit(version uint64, snap *model.Snapshot) bool {
	c.mu.Lock()
	if c.closed || version != c.version {
		c.mu.Unlock()
		return false
	}
	c.seq++
	entry := &published{snapshot: snap, seq: c.seq}
	c.current.Store(entry)
	c.mu.Unlock()

	c.metrics.snapshotSize.Set(float64(snap.Len()))
	c.observers.notify(entry)
	return true
}

func (c *Client) activeConfig() (*model.Config, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg, c.version
}

func (c *Client) isCurrent(version uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && version == c.version
}

// setState moves to s unless the client closed or version was superseded.
func (c *Client) setState(version uint64, s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed && version == c.version {
		c.state.Store(int32(s))
	}
}
