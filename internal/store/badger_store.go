package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/relaywatch/scoutd/internal/model"
)

// BadgerStore is the DataStore implementation backed by an embedded
// badger KV engine, the same engine the teacher pulls in (transitively,
// through fiatjaf/eventstore/badger) to persist relay-local state. Here
// it is used directly: scoutd never stores raw nostr events, only the
// derived records the key scheme below encodes.
type BadgerStore struct {
	db  *badger.DB
	seq atomic.Uint64
}

// Open opens (creating if necessary) a badger database at path. Pass ""
// for an in-memory store, which is what tests use.
func Open(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts = opts.WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// --- key scheme ---
//
// probe/{url}\x00{20-digit zero-padded unix ts}\x00{seq}    -> ProbeResult
// telemetry/ev/{eventID}                                     -> TelemetryMetric
// telemetry/byurl/{url}\x00{eventID}                         -> "" (index)
// telemetry/latest/{monitorPubkey}\x00{url}                  -> TelemetryMetric
// monitor/stats/{pubkey}                                     -> MonitorStats (sans TrackedRelays set)
// monitor/tracked/{pubkey}\x00{url}                          -> "" (set membership)
// published/{url}                                            -> PublishedAssertionRecord

func probeKey(url string, ts int64, seq uint64) []byte {
	return []byte(fmt.Sprintf("probe/%s\x00%020d\x00%020d", url, ts, seq))
}

func probePrefix(url string) []byte {
	return []byte(fmt.Sprintf("probe/%s\x00", url))
}

func probeSeekKey(url string, ts int64) []byte {
	return []byte(fmt.Sprintf("probe/%s\x00%020d", url, ts))
}

func telemetryEventKey(eventID string) []byte {
	return []byte("telemetry/ev/" + eventID)
}

func telemetryByURLKey(url, eventID string) []byte {
	return []byte(fmt.Sprintf("telemetry/byurl/%s\x00%s", url, eventID))
}

func telemetryByURLPrefix(url string) []byte {
	return []byte(fmt.Sprintf("telemetry/byurl/%s\x00", url))
}

func telemetryLatestKey(monitorPubkey, url string) []byte {
	return []byte(fmt.Sprintf("telemetry/latest/%s\x00%s", monitorPubkey, url))
}

func telemetryLatestPrefix(monitorPubkey string) []byte {
	return []byte(fmt.Sprintf("telemetry/latest/%s\x00", monitorPubkey))
}

func monitorStatsKey(pubkey string) []byte {
	return []byte("monitor/stats/" + pubkey)
}

func monitorTrackedKey(pubkey, url string) []byte {
	return []byte(fmt.Sprintf("monitor/tracked/%s\x00%s", pubkey, url))
}

func monitorTrackedPrefix(pubkey string) []byte {
	return []byte(fmt.Sprintf("monitor/tracked/%s\x00", pubkey))
}

func publishedKey(url string) []byte {
	return []byte("published/" + url)
}

func (s *BadgerStore) StoreProbe(ctx context.Context, p model.ProbeResult) error {
	val, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("store: marshal probe: %w", err)
	}
	seq := s.seq.Add(1)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(probeKey(p.URL, p.Timestamp, seq), val)
	})
}

// StoreTelemetryMetric stores a metric keyed uniquely by EventID and
// updates the per-monitor latest-for-this-relay index used by percentile
// scoring. Re-storing the same EventID is a no-op success, matching the
// "keyed uniquely by eventId" invariant.
func (s *BadgerStore) StoreTelemetryMetric(ctx context.Context, m model.TelemetryMetric) error {
	val, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("store: marshal telemetry metric: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		evKey := telemetryEventKey(m.EventID)
		if _, err := txn.Get(evKey); err == nil {
			return nil // already stored, dedup on eventId
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		if err := txn.Set(evKey, val); err != nil {
			return err
		}
		if err := txn.Set(telemetryByURLKey(m.RelayURL, m.EventID), []byte{}); err != nil {
			return err
		}

		latestKey := telemetryLatestKey(m.MonitorPubkey, m.RelayURL)
		item, err := txn.Get(latestKey)
		if err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		if err == badger.ErrKeyNotFound {
			return txn.Set(latestKey, val)
		}
		var existing model.TelemetryMetric
		if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &existing) }); err != nil {
			return err
		}
		if m.Timestamp >= existing.Timestamp {
			return txn.Set(latestKey, val)
		}
		return nil
	})
}

func (s *BadgerStore) UpdateMonitorStats(ctx context.Context, monitorPubkey, relayURL string, seenAt int64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		trackedKey := monitorTrackedKey(monitorPubkey, relayURL)
		_, err := txn.Get(trackedKey)
		firstTimeTracked := err == badger.ErrKeyNotFound
		if err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		if firstTimeTracked {
			if err := txn.Set(trackedKey, []byte{}); err != nil {
				return err
			}
		}

		statsKey := monitorStatsKey(monitorPubkey)
		var stats model.MonitorStats
		item, err := txn.Get(statsKey)
		if err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		if err == nil {
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &stats) }); err != nil {
				return err
			}
		} else {
			stats.Pubkey = monitorPubkey
		}
		if seenAt > stats.LastSeen {
			stats.LastSeen = seenAt
		}
		stats.EventCount++
		stats.TrackedRelays = nil // not persisted inline; derived via the tracked/ prefix

		val, err := json.Marshal(stats)
		if err != nil {
			return err
		}
		return txn.Set(statsKey, val)
	})
}

func (s *BadgerStore) GetProbes(ctx context.Context, url string, window time.Duration) ([]model.ProbeResult, error) {
	cutoff := time.Now().Add(-window).Unix()
	var out []model.ProbeResult

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = probePrefix(url)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(probeSeekKey(url, cutoff)); it.ValidForPrefix(opts.Prefix); it.Next() {
			item := it.Item()
			var p model.ProbeResult
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &p) }); err != nil {
				return err
			}
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: get probes: %w", err)
	}
	return out, nil
}

func (s *BadgerStore) GetTelemetryStats(ctx context.Context, url string) (model.TelemetryStats, error) {
	var stats model.TelemetryStats
	stats.MonitorLatest = make(map[string]model.TelemetryMetric)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = telemetryByURLPrefix(url)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			eventID := key[len(telemetryByURLPrefix(url)):]

			evItem, err := txn.Get(telemetryEventKey(string(eventID)))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					continue
				}
				return err
			}
			var m model.TelemetryMetric
			if err := evItem.Value(func(v []byte) error { return json.Unmarshal(v, &m) }); err != nil {
				return err
			}
			stats.Metrics = append(stats.Metrics, m)

			if existing, ok := stats.MonitorLatest[m.MonitorPubkey]; !ok || m.Timestamp > existing.Timestamp {
				stats.MonitorLatest[m.MonitorPubkey] = m
			}
		}
		return nil
	})
	if err != nil {
		return model.TelemetryStats{}, fmt.Errorf("store: get telemetry stats: %w", err)
	}
	return stats, nil
}

func (s *BadgerStore) GetMonitorTrackedRelayCount(ctx context.Context, monitorPubkey string) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = monitorTrackedPrefix(monitorPubkey)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: count tracked relays: %w", err)
	}
	return count, nil
}

func (s *BadgerStore) GetMonitorLatestForAllRelays(ctx context.Context, monitorPubkey string) (map[string]model.TelemetryMetric, error) {
	out := make(map[string]model.TelemetryMetric)
	prefix := telemetryLatestPrefix(monitorPubkey)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			url := string(key[len(prefix):])

			var m model.TelemetryMetric
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &m) }); err != nil {
				return err
			}
			out[url] = m
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: get monitor latest: %w", err)
	}
	return out, nil
}

func (s *BadgerStore) GetLastPublishedAssertion(ctx context.Context, url string) (*model.PublishedAssertionRecord, error) {
	var rec model.PublishedAssertionRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(publishedKey(url))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error { return json.Unmarshal(v, &rec) })
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get last published assertion: %w", err)
	}
	return &rec, nil
}

// StorePublishedAssertion upserts the single published-record row for
// rec.RelayURL, per the "at most one published-record row" invariant.
func (s *BadgerStore) StorePublishedAssertion(ctx context.Context, rec model.PublishedAssertionRecord) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: marshal published assertion: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(publishedKey(rec.RelayURL), val)
	})
}
