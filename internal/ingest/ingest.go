// Package ingest implements the MonitorIngestor: a long-running
// subscriber to telemetry events (kind 30166) on a configured set of
// upstream relays, spec.md §4.3.
package ingest

import (
	"context"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/relaywatch/scoutd/internal/model"
	"github.com/relaywatch/scoutd/internal/normalize"
	"github.com/relaywatch/scoutd/internal/pool"
	"github.com/relaywatch/scoutd/internal/signing"
	"github.com/relaywatch/scoutd/internal/store"
)

const telemetryKind = 30166

// Ingestor subscribes to telemetry-event feeds on N upstream relays,
// verifies signatures, parses them into metric records, and stores them.
type Ingestor struct {
	pool  *pool.ConnectionPool
	store store.DataStore

	trustSet map[string]struct{}

	mu   sync.Mutex
	subs map[string]*nostr.Subscription
}

// New builds an Ingestor. trustedMonitors, when non-empty, restricts
// ingestion to telemetry events signed by one of these pubkeys.
func New(p *pool.ConnectionPool, ds store.DataStore, trustedMonitors []string) *Ingestor {
	var set map[string]struct{}
	if len(trustedMonitors) > 0 {
		set = make(map[string]struct{}, len(trustedMonitors))
		for _, pk := range trustedMonitors {
			set[pk] = struct{}{}
		}
	}
	return &Ingestor{
		pool:     p,
		store:    ds,
		trustSet: set,
		subs:     make(map[string]*nostr.Subscription),
	}
}

// Run subscribes to every source in parallel and blocks until ctx is
// done. Each source reconnects independently with the pool's backoff on
// disconnect.
func (ing *Ingestor) Run(ctx context.Context, sources []string) {
	var wg sync.WaitGroup
	for _, source := range sources {
		wg.Add(1)
		go func(source string) {
			defer wg.Done()
			ing.runSource(ctx, source)
		}(source)
	}
	wg.Wait()
}

func (ing *Ingestor) runSource(ctx context.Context, source string) {
	filter := nostr.Filter{Kinds: []int{telemetryKind}, Limit: 1000}
	if len(ing.trustSet) > 0 {
		filter.Authors = ing.authors()
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		sub, err := ing.pool.Subscribe(ctx, source, nostr.Filters{filter})
		if err != nil {
			log.Printf("ingest: subscribe %s: %v", source, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		ing.mu.Lock()
		ing.subs[source] = sub
		ing.mu.Unlock()

		ing.consume(ctx, source, sub)

		ing.mu.Lock()
		delete(ing.subs, source)
		ing.mu.Unlock()
	}
}

func (ing *Ingestor) authors() []string {
	out := make([]string, 0, len(ing.trustSet))
	for pk := range ing.trustSet {
		out = append(out, pk)
	}
	return out
}

// consume drains one subscription's channels until it closes or ctx is
// done, per the ["EVENT"]/["EOSE"]/["NOTICE"]/["CLOSED"] frame grammar.
func (ing *Ingestor) consume(ctx context.Context, source string, sub *nostr.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			ing.handleEvent(ctx, ev)
		case <-sub.EndOfStoredEvents:
			// informational, per spec.md §4.3
		case reason, ok := <-sub.ClosedReason:
			if ok && reason != "" {
				log.Printf("ingest: %s subscription closed: %s", source, reason)
			}
			return
		}
	}
}

// handleEvent verifies, filters, and parses one incoming telemetry
// event, discarding it silently on any malformed-input condition per
// the error taxonomy.
func (ing *Ingestor) handleEvent(ctx context.Context, ev *nostr.Event) {
	if !signing.Verify(ev) {
		return
	}
	if ing.trustSet != nil {
		if _, ok := ing.trustSet[ev.PubKey]; !ok {
			return
		}
	}

	metric, ok := parseTelemetryEvent(ev)
	if !ok {
		return
	}

	if err := ing.store.StoreTelemetryMetric(ctx, metric); err != nil {
		log.Printf("ingest: store metric %s: %v", metric.EventID, err)
		return
	}
	if err := ing.store.UpdateMonitorStats(ctx, metric.MonitorPubkey, metric.RelayURL, metric.Timestamp); err != nil {
		log.Printf("ingest: update monitor stats %s: %v", metric.MonitorPubkey, err)
	}
}

// Stop closes every open subscription and the underlying pooled
// connections, per spec.md §5's cancellation contract: send CLOSE to
// each open connection, then close sockets and clear bookkeeping.
func (ing *Ingestor) Stop() {
	ing.mu.Lock()
	subs := ing.subs
	ing.subs = make(map[string]*nostr.Subscription)
	ing.mu.Unlock()

	for _, sub := range subs {
		sub.Unsub()
	}
	ing.pool.CloseAll()
}

// parseTelemetryEvent implements spec.md §4.3's tag parsing. A missing
// "d" tag rejects the whole event; an out-of-range rtt tag discards just
// that tag, not the event.
func parseTelemetryEvent(ev *nostr.Event) (model.TelemetryMetric, bool) {
	m := model.TelemetryMetric{
		EventID:       ev.ID,
		MonitorPubkey: ev.PubKey,
		Timestamp:     int64(ev.CreatedAt),
	}

	var hasD bool
	for _, tag := range ev.Tags {
		if len(tag) < 2 {
			continue
		}
		switch tag[0] {
		case "d":
			url, err := normalize.RelayURL(tag[1])
			if err != nil {
				continue
			}
			m.RelayURL = url
			hasD = true
		case "rtt-open":
			if v, ok := parseRTT(tag[1]); ok {
				m.RTTOpen = &v
			}
		case "rtt-read":
			if v, ok := parseRTT(tag[1]); ok {
				m.RTTRead = &v
			}
		case "rtt-write":
			if v, ok := parseRTT(tag[1]); ok {
				m.RTTWrite = &v
			}
		case "n":
			m.Network = tag[1]
		case "N":
			m.SupportedNIPs = append(m.SupportedNIPs, parseNIPList(tag[1:])...)
		case "g":
			m.Geohash = tag[1]
		}
	}

	if !hasD {
		return model.TelemetryMetric{}, false
	}
	return m, true
}

func parseRTT(raw string) (int64, bool) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	if v < 0 || v > 60000 {
		return 0, false
	}
	return v, true
}

// parseNIPList tolerates comma-separated values and repeated tag values
// alike, validating each to [1, 65535].
func parseNIPList(values []string) []int {
	var out []int
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			n, err := strconv.Atoi(part)
			if err != nil || n < 1 || n > 65535 {
				continue
			}
			out = append(out, n)
		}
	}
	return out
}
