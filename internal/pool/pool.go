// Package pool implements the shared ConnectionPool: at most one open
// websocket per destination URL, reconnected with exponential backoff,
// multiplexed across every subscriber (Prober's ad-hoc probes aside —
// those open their own short-lived sockets; the pool is for the
// long-lived MonitorIngestor and Publisher destinations).
//
// It is built the way the teacher's RankCache manages its single
// ContextVM relay connection (rank.go: getRelay/dropRelay, reconnect on
// failure, singleflight to collapse duplicate in-flight requests),
// generalized from one destination to many.
package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/sync/singleflight"
)

// Config tunes reconnect backoff and publish deadlines.
type Config struct {
	MinBackoff     time.Duration
	MaxBackoff     time.Duration
	PublishTimeout time.Duration
}

// DefaultConfig matches spec.md §4.1: backoff min(1s*2^n, 60s), 10s
// publish deadline.
func DefaultConfig() Config {
	return Config{
		MinBackoff:     1 * time.Second,
		MaxBackoff:     60 * time.Second,
		PublishTimeout: 10 * time.Second,
	}
}

// PublishResult is one destination's outcome from a Publish call.
type PublishResult struct {
	Relay   string
	Success bool
	Error   string
}

// PublishReport is the aggregate result of publishing to every
// configured destination, allSettled-style: every destination reports
// independently, successes and failures alike.
type PublishReport struct {
	Results      []PublishResult
	SuccessCount int
}

type connState struct {
	mu          sync.Mutex
	relay       *nostr.Relay
	attempts    int
	nextAttempt time.Time
}

// ConnectionPool owns outbound websocket connections to relays. Nobody
// else opens outbound connections to a pooled destination.
type ConnectionPool struct {
	cfg   Config
	mu    sync.Mutex
	conns map[string]*connState

	publishFlight singleflight.Group
}

// New creates a ConnectionPool with the given config.
func New(cfg Config) *ConnectionPool {
	return &ConnectionPool{
		cfg:   cfg,
		conns: make(map[string]*connState),
	}
}

func (p *ConnectionPool) stateFor(url string) *connState {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.conns[url]
	if !ok {
		s = &connState{}
		p.conns[url] = s
	}
	return s
}

// nextBackoff computes min(minBackoff*2^attempts, maxBackoff).
func nextBackoff(attempts int, min, max time.Duration) time.Duration {
	d := min
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// getRelay returns the pooled connection for url, reconnecting if it is
// closed and backoff has elapsed.
func (p *ConnectionPool) getRelay(ctx context.Context, url string) (*nostr.Relay, error) {
	s := p.stateFor(url)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.relay != nil && s.relay.IsConnected() {
		return s.relay, nil
	}
	if s.relay != nil {
		s.relay.Close()
		s.relay = nil
	}

	if !s.nextAttempt.IsZero() && time.Now().Before(s.nextAttempt) {
		return nil, fmt.Errorf("pool: %s backing off until %s", url, s.nextAttempt.Format(time.RFC3339))
	}

	r, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		s.attempts++
		s.nextAttempt = time.Now().Add(nextBackoff(s.attempts, p.cfg.MinBackoff, p.cfg.MaxBackoff))
		return nil, fmt.Errorf("pool: connect %s: %w", url, err)
	}

	s.attempts = 0
	s.nextAttempt = time.Time{}
	s.relay = r
	return r, nil
}

// DropRelay forcibly closes and forgets the connection to url, causing
// the next getRelay/Publish/Subscribe to reconnect (subject to backoff).
func (p *ConnectionPool) DropRelay(url string) {
	s := p.stateFor(url)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.relay != nil {
		s.relay.Close()
		s.relay = nil
	}
}

// Publish sends event to every destination in parallel. Each send waits
// up to cfg.PublishTimeout for an OK frame; outcomes are independent
// (allSettled semantics) — one slow or dead destination never blocks
// another.
func (p *ConnectionPool) Publish(ctx context.Context, destinations []string, event nostr.Event) PublishReport {
	results := make([]PublishResult, len(destinations))

	var wg sync.WaitGroup
	for i, dest := range destinations {
		wg.Add(1)
		go func(i int, dest string) {
			defer wg.Done()
			results[i] = p.publishOne(ctx, dest, event)
		}(i, dest)
	}
	wg.Wait()

	report := PublishReport{Results: results}
	for _, r := range results {
		if r.Success {
			report.SuccessCount++
		}
	}
	return report
}

func (p *ConnectionPool) publishOne(ctx context.Context, dest string, event nostr.Event) PublishResult {
	key := dest + "|" + event.ID
	v, err, _ := p.publishFlight.Do(key, func() (any, error) {
		return p.doPublish(ctx, dest, event)
	})
	if err != nil {
		return classifyPublishError(dest, err)
	}
	return v.(PublishResult)
}

func (p *ConnectionPool) doPublish(ctx context.Context, dest string, event nostr.Event) (PublishResult, error) {
	relay, err := p.getRelay(ctx, dest)
	if err != nil {
		return PublishResult{}, err
	}

	pctx, cancel := context.WithTimeout(ctx, p.cfg.PublishTimeout)
	defer cancel()

	if err := relay.Publish(pctx, event); err != nil {
		return PublishResult{}, err
	}
	return PublishResult{Relay: dest, Success: true}, nil
}

func classifyPublishError(dest string, err error) PublishResult {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return PublishResult{Relay: dest, Success: false, Error: "timeout"}
	case strings.Contains(strings.ToLower(err.Error()), "closed"):
		return PublishResult{Relay: dest, Success: false, Error: "connection_closed"}
	default:
		return PublishResult{Relay: dest, Success: false, Error: err.Error()}
	}
}

// Subscribe opens (or reuses) the pooled connection to source and issues
// a subscription, the primitive MonitorIngestor builds on.
func (p *ConnectionPool) Subscribe(ctx context.Context, source string, filters nostr.Filters) (*nostr.Subscription, error) {
	relay, err := p.getRelay(ctx, source)
	if err != nil {
		return nil, err
	}
	sub, err := relay.Subscribe(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("pool: subscribe %s: %w", source, err)
	}
	return sub, nil
}

// CloseAll closes every pooled connection, used on shutdown.
func (p *ConnectionPool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.conns {
		s.mu.Lock()
		if s.relay != nil {
			s.relay.Close()
			s.relay = nil
		}
		s.mu.Unlock()
	}
}
