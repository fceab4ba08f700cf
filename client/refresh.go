package client

import (
	"context"
	"errors"
	"time"

	"github.com/sardine-ai/go-remote-flags/model"
	"github.com/sardine-ai/go-remote-flags/source"
	"github.com/sirupsen/logrus"
	"github.com/zoobzio/clockz"
)

// errSuperseded is the outcome of a fetch that finished after a newer
// configuration took over. Refresh callers never see it: their waiters move
// to the newer fetch.
var errSuperseded = errors.New("fetch superseded by a newer configuration")

type fetchResult struct {
	id      uint64
	version uint64
	result  source.Result
	err     error
}

// pendingFetch is a fetch in flight and the Refresh calls waiting on it.
type pendingFetch struct {
	version uint64
	cancel  context.CancelFunc
	waiters []chan error
}

func (p *pendingFetch) finish(err error) {
	for _, w := range p.waiters {
		w <- err
	}
	p.waiters = nil
}

// run is the refresh goroutine. It is the only writer of the snapshot store:
// fetches run concurrently, but their results are applied here, one at a
// time, and only if they belong to the active configuration.
func (c *Client) run(ctx context.Context) {
	var (
		timer    clockz.Timer
		failures int
		nextID   uint64
		orphans  []chan error // waiters of superseded fetches
	)
	inflight := make(map[uint64]*pendingFetch)

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
		}
	}
	defer func() {
		stopTimer()
		for _, p := range inflight {
			p.cancel()
			p.finish(ErrClosed)
		}
		for _, w := range orphans {
			w <- ErrClosed
		}
		c.Close()
		close(c.done)
		c.log.Debug("refresh loop stopped")
	}()

	start := func(waiters []chan error) {
		stopTimer()
		nextID++
		waiters = append(waiters, orphans...)
		orphans = nil
		c.startFetch(ctx, nextID, inflight, waiters)
	}

	for {
		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C()
		}

		select {
		case <-ctx.Done():
			return

		case <-c.wake:
			start(nil)

		case done := <-c.refreshes:
			start([]chan error{done})

		case <-timerC:
			timer = nil
			start(nil)

		case res := <-c.results:
			p, tracked := inflight[res.id]
			delete(inflight, res.id)

			err := c.apply(res)
			if errors.Is(err, errSuperseded) {
				// A newer configuration's fetch is running or about to start;
				// it takes over the waiters and schedules the next refresh.
				if tracked {
					orphans = append(orphans, p.waiters...)
				}
				continue
			}
			if !tracked {
				continue
			}
			p.finish(err)

			var transportErr *model.TransportError
			if errors.As(err, &transportErr) {
				failures++
			} else {
				failures = 0
			}
			delay := c.nextDelay(failures)
			timer = c.opts.clock.NewTimer(delay)
			c.setState(res.version, StateIdle)
			c.log.WithField("next_refresh", delay).Debug("refresh scheduled")
		}
	}
}

// startFetch launches a fetch for the active configuration. Fetches issued
// under an older configuration are cancelled and their waiters move to the
// new fetch; a fetch already running for the active configuration absorbs
// the request instead of starting another.
func (c *Client) startFetch(ctx context.Context, id uint64, inflight map[uint64]*pendingFetch, waiters []chan error) {
	cfg, version := c.activeConfig()
	if cfg == nil {
		// Not configured: the fetch is skipped.
		for _, w := range waiters {
			w <- &model.ConfigurationError{Reason: "client is not configured"}
		}
		return
	}

	for oldID, p := range inflight {
		if p.version == version {
			p.waiters = append(p.waiters, waiters...)
			return
		}
		p.cancel()
		waiters = append(waiters, p.waiters...)
		delete(inflight, oldID)
	}

	validator := ""
	if current := c.Snapshot(); current.Version() == version {
		validator = current.Validator()
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	inflight[id] = &pendingFetch{version: version, cancel: cancel, waiters: waiters}
	c.setState(version, StateFetching)

	req := source.Request{Config: *cfg, Validator: validator}
	go func() {
		defer cancel()
		result, err := c.source.Fetch(fetchCtx, req)
		select {
		case c.results <- fetchResult{id: id, version: version, result: result, err: err}:
		case <-ctx.Done():
		}
	}()
}

// apply turns a fetch result into a store update or an error report. Results
// for a superseded configuration or a closed client are dropped unreported.
func (c *Client) apply(res fetchResult) error {
	log := c.log.WithField("version", res.version)

	if !c.isCurrent(res.version) {
		c.metrics.fetch(resultStale)
		log.Debug("discarding result of superseded fetch")
		return errSuperseded
	}
	if res.err != nil {
		if errors.Is(res.err, context.Canceled) {
			return res.err
		}
		c.metrics.fetch(resultTransportError)
		c.report(res.err)
		return res.err
	}
	if res.result.NotModified {
		c.metrics.fetch(resultNotModified)
		log.Debug("flags not modified")
		return nil
	}

	snap, err := model.DecodePayload(res.result.Payload, res.result.Validator)
	if err != nil {
		c.metrics.fetch(resultPayloadError)
		c.report(err)
		return err
	}
	snap = snap.WithVersion(res.version)

	changed := !snap.Equal(c.Snapshot())
	if !c.commit(res.version, snap) {
		c.metrics.fetch(resultStale)
		return errSuperseded
	}
	c.metrics.fetch(resultUpdated)
	log.WithFields(logrus.Fields{
		"flags":   snap.Len(),
		"changed": changed,
	}).Debug("flags updated")
	return nil
}

func (c *Client) report(err error) {
	c.opts.onError(err)
}

// nextDelay is the refresh interval, doubled for each consecutive transport
// failure and capped at the maximum backoff.
func (c *Client) nextDelay(failures int) time.Duration {
	delay := c.opts.refreshInterval
	for i := 0; i < failures && delay < c.opts.maxBackoff; i++ {
		delay *= 2
	}
	if delay > c.opts.maxBackoff {
		delay = c.opts.maxBackoff
	}
	return delay
}
