// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrLimiterClosed is returned for requests submitted to, or still queued
// in, a closed RateLimiter.
var ErrLimiterClosed = errors.New("search rate limiter closed")

// Outcome is the settled result of a queued search.
type Outcome struct {
	Response *Response
	Err      error
}

type pendingSearch struct {
	ctx    context.Context
	params Params
	out    chan Outcome
}

// RateLimiter serializes searches through a FIFO queue and keeps at least
// MinInterval between consecutive dispatches. One goroutine drains the
// queue, so the throttle is global across callers.
type RateLimiter struct {
	searcher    Searcher
	minInterval time.Duration
	logger      *zap.Logger

	mu     sync.Mutex
	queue  []*pendingSearch
	closed bool

	wake      chan struct{}
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	// lastDispatch is owned by the drain goroutine.
	lastDispatch time.Time
}

// NewRateLimiter starts a limiter in front of searcher. Call Close to stop
// its drain goroutine.
func NewRateLimiter(searcher Searcher, minInterval time.Duration, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &RateLimiter{
		searcher:    searcher,
		minInterval: minInterval,
		logger:      logger,
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	go l.drain()
	return l
}

// Submit enqueues a search and returns a channel that receives exactly one
// Outcome once the request has been dispatched and answered, or rejected.
func (l *RateLimiter) Submit(ctx context.Context, p Params) <-chan Outcome {
	out := make(chan Outcome, 1)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		out <- Outcome{Err: ErrLimiterClosed}
		return out
	}
	l.queue = append(l.queue, &pendingSearch{ctx: ctx, params: p, out: out})
	depth := len(l.queue)
	l.mu.Unlock()

	l.logger.Debug("search queued", zap.String("query", p.Query), zap.Int("depth", depth))
	select {
	case l.wake <- struct{}{}:
	default:
	}
	return out
}

// Search enqueues p and waits for its outcome.
func (l *RateLimiter) Search(ctx context.Context, p Params) (*Response, error) {
	o := <-l.Submit(ctx, p)
	return o.Response, o.Err
}

// BatchFailure pairs a failed request with its error.
type BatchFailure struct {
	Params Params
	Err    error
}

// BatchSuccess pairs a request with its response.
type BatchSuccess struct {
	Params   Params
	Response *Response
}

// BatchResult collects a batch's successes and failures separately.
type BatchResult struct {
	Successes []BatchSuccess
	Failures  []BatchFailure
}

// SearchBatch runs each request in order, one at a time. A failed request is
// recorded and the batch continues.
func (l *RateLimiter) SearchBatch(ctx context.Context, params []Params) BatchResult {
	var res BatchResult
	for _, p := range params {
		resp, err := l.Search(ctx, p)
		if err != nil {
			l.logger.Warn("batch search failed", zap.String("query", p.Query), zap.Error(err))
			res.Failures = append(res.Failures, BatchFailure{Params: p, Err: err})
			continue
		}
		res.Successes = append(res.Successes, BatchSuccess{Params: p, Response: resp})
	}
	return res
}

// Close stops the drain goroutine and rejects every request still queued.
// A dispatch already in flight completes first. Close is idempotent.
func (l *RateLimiter) Close() {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		close(l.done)
		<-l.stopped

		l.mu.Lock()
		queued := l.queue
		l.queue = nil
		l.mu.Unlock()
		for _, p := range queued {
			p.out <- Outcome{Err: ErrLimiterClosed}
		}
	})
}

func (l *RateLimiter) drain() {
	defer close(l.stopped)
	for {
		p, ok := l.next()
		if !ok {
			return
		}
		if err := p.ctx.Err(); err != nil {
			p.out <- Outcome{Err: err}
			continue
		}

		if !l.lastDispatch.IsZero() {
			if wait := l.minInterval - time.Since(l.lastDispatch); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-timer.C:
				case <-p.ctx.Done():
					timer.Stop()
					p.out <- Outcome{Err: p.ctx.Err()}
					continue
				case <-l.done:
					timer.Stop()
					p.out <- Outcome{Err: ErrLimiterClosed}
					return
				}
			}
		}

		l.lastDispatch = time.Now()
		resp, err := l.searcher.Search(p.ctx, p.params)
		p.out <- Outcome{Response: resp, Err: err}
	}
}

// next blocks until a request is queued or the limiter closes.
func (l *RateLimiter) next() (*pendingSearch, bool) {
	for {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return nil, false
		}
		if len(l.queue) > 0 {
			p := l.queue[0]
			l.queue = l.queue[1:]
			l.mu.Unlock()
			return p, true
		}
		l.mu.Unlock()

		select {
		case <-l.wake:
		case <-l.done:
		}
	}
}
