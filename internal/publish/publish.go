// Package publish implements the Publisher: decide material change vs
// the last published record, sign, publish via the pool, and record
// history — spec.md §4.6.
package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/relaywatch/scoutd/internal/assertion"
	"github.com/relaywatch/scoutd/internal/model"
	"github.com/relaywatch/scoutd/internal/pool"
	"github.com/relaywatch/scoutd/internal/signing"
	"github.com/relaywatch/scoutd/internal/store"
)

// DefaultMaterialChangeThreshold resolves spec.md §9's documented
// inconsistency (3 in prose, 5 in the default builder) to a single
// configurable value, defaulting to the builder's 5.
const DefaultMaterialChangeThreshold = 5

// Outcome is the result of one publish attempt, surfaced as a
// structured value rather than an error per spec.md §7's taxonomy.
type Outcome struct {
	Skipped bool
	Reason  string

	Success      bool
	EventID      string
	Destinations []pool.PublishResult
}

// Publisher signs and publishes RelayAssertions, gating on material
// change against the last published record.
type Publisher struct {
	pool                    *pool.ConnectionPool
	store                   store.DataStore
	secretKeyHex            string
	downstreamRelays        []string
	materialChangeThreshold int
}

// New builds a Publisher. secretKey may be raw hex or bech32 nsec; it is
// normalized once here so an invalid key fails construction, not every
// publish call, per spec.md §4.6.
func New(p *pool.ConnectionPool, ds store.DataStore, secretKey string, downstreamRelays []string, materialChangeThreshold int) (*Publisher, error) {
	normalized, err := signing.NormalizeSecretKey(secretKey)
	if err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}
	if materialChangeThreshold <= 0 {
		materialChangeThreshold = DefaultMaterialChangeThreshold
	}
	return &Publisher{
		pool:                    p,
		store:                   ds,
		secretKeyHex:            normalized,
		downstreamRelays:        downstreamRelays,
		materialChangeThreshold: materialChangeThreshold,
	}, nil
}

// Publish signs and publishes a, unless the gate finds no material
// change relative to the last published record for a.RelayURL. a's
// Algorithm/AlgorithmURL fields (set by assertion.Build) travel with it
// into the published event's tags.
func (pub *Publisher) Publish(ctx context.Context, a model.RelayAssertion) (Outcome, error) {
	return pub.publish(ctx, a, false)
}

// ForcePublish publishes a unconditionally, bypassing the material-
// change gate.
func (pub *Publisher) ForcePublish(ctx context.Context, a model.RelayAssertion) (Outcome, error) {
	return pub.publish(ctx, a, true)
}

func (pub *Publisher) publish(ctx context.Context, a model.RelayAssertion, force bool) (Outcome, error) {
	last, err := pub.store.GetLastPublishedAssertion(ctx, a.RelayURL)
	if err != nil {
		return Outcome{}, fmt.Errorf("publish: load last record: %w", err)
	}

	if !force && !HasMaterialChange(last, a, pub.materialChangeThreshold) {
		return Outcome{Skipped: true, Reason: "no_material_change"}, nil
	}

	unsigned := assertion.ToUnsignedEvent(a, time.Now().Unix())
	signed, err := signing.Sign(&unsigned, pub.secretKeyHex)
	if err != nil {
		return Outcome{}, fmt.Errorf("publish: %w", err)
	}

	report := pub.pool.Publish(ctx, pub.downstreamRelays, *signed)
	outcome := Outcome{
		Success:      report.SuccessCount > 0,
		EventID:      signed.ID,
		Destinations: report.Results,
	}

	if outcome.Success {
		record := model.PublishedAssertionRecord{
			RelayURL:        a.RelayURL,
			Status:          a.Status,
			Score:           a.Score,
			Reliability:     a.Reliability,
			Quality:         a.Quality,
			Accessibility:   a.Accessibility,
			Confidence:      a.Confidence,
			OperatorPresent: a.OperatorPubkey != nil,
			EventID:         signed.ID,
			PublishedAt:     time.Now().Unix(),
		}
		if err := pub.store.StorePublishedAssertion(ctx, record); err != nil {
			// Storage errors are surfaced but do not unwind the publish
			// itself: the event is already on the wire. Not recording the
			// last-published snapshot means the next run will re-evaluate
			// and likely republish, which is the safe failure direction.
			return outcome, fmt.Errorf("publish: record history: %w", err)
		}
	}

	return outcome, nil
}

// PublishBatch applies Publish (or ForcePublish) sequentially to every
// assertion, deliberately serial to cap outbound publish rate.
func (pub *Publisher) PublishBatch(ctx context.Context, assertions []model.RelayAssertion, force bool) []Outcome {
	outcomes := make([]Outcome, len(assertions))
	for i, a := range assertions {
		var outcome Outcome
		var err error
		if force {
			outcome, err = pub.ForcePublish(ctx, a)
		} else {
			outcome, err = pub.Publish(ctx, a)
		}
		if err != nil {
			outcome.Reason = err.Error()
		}
		outcomes[i] = outcome
	}
	return outcomes
}

// HasMaterialChange implements spec.md §4.6 step 2's gate.
func HasMaterialChange(last *model.PublishedAssertionRecord, current model.RelayAssertion, threshold int) bool {
	if last == nil {
		return true
	}
	if last.Confidence != current.Confidence {
		return true
	}
	if last.Status != current.Status {
		return true
	}
	if last.OperatorPresent != (current.OperatorPubkey != nil) {
		return true
	}

	if absInt(last.Score-current.Score) >= threshold {
		return true
	}
	if absInt(last.Reliability-current.Reliability) >= threshold {
		return true
	}
	if absInt(last.Quality-current.Quality) >= threshold {
		return true
	}
	if absInt(last.Accessibility-current.Accessibility) >= threshold {
		return true
	}
	return false
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
