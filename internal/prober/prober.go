// Package prober implements the active relay prober: open a socket,
// fetch NIP-11 metadata, issue a short read query, and classify the
// relay — spec.md §4.2.
package prober

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip11"
	"golang.org/x/sync/errgroup"

	"github.com/relaywatch/scoutd/internal/model"
	"github.com/relaywatch/scoutd/internal/normalize"
)

// Config holds per-phase timeouts, each defaulting to 10s per spec.md §5.
type Config struct {
	ConnectTimeout time.Duration
	NIP11Timeout   time.Duration
	ReadTimeout    time.Duration
}

// DefaultConfig returns the spec's default 10s-per-phase timeouts.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 10 * time.Second,
		NIP11Timeout:   10 * time.Second,
		ReadTimeout:    10 * time.Second,
	}
}

// Prober actively probes relays. It opens its own short-lived sockets
// rather than going through the shared ConnectionPool, since a probe's
// connection is not meant to be kept warm for reuse.
type Prober struct {
	cfg Config
}

// New builds a Prober with cfg.
func New(cfg Config) *Prober {
	return &Prober{cfg: cfg}
}

// Probe performs one probe attempt against relayURL. Any failure in an
// individual phase is captured in the result rather than returned as an
// error — per the error taxonomy, a probe never fails the caller, it
// only ever records reachable=false and an Error string.
func (p *Prober) Probe(ctx context.Context, relayURL string) model.ProbeResult {
	now := time.Now()
	result := model.ProbeResult{Timestamp: now.Unix()}

	normalized, err := normalize.RelayURL(relayURL)
	if err != nil {
		result.URL = relayURL
		result.Reachable = false
		result.Error = fmt.Sprintf("normalize: %v", err)
		result.RelayType = model.RelayTypeUnknown
		result.AccessLevel = model.AccessUnknown
		return result
	}
	result.URL = normalized

	var (
		relay        *nostr.Relay
		connectErr   error
		connectMS    int64
		nip11        *model.NIP11Info
		nip11Err     error
		nip11MS      int64
	)

	var g errgroup.Group
	g.Go(func() error {
		start := time.Now()
		cctx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
		defer cancel()
		relay, connectErr = nostr.RelayConnect(cctx, normalized)
		connectMS = time.Since(start).Milliseconds()
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		nctx, cancel := context.WithTimeout(ctx, p.cfg.NIP11Timeout)
		defer cancel()
		nip11, nip11Err = fetchNIP11(nctx, normalized)
		nip11MS = time.Since(start).Milliseconds()
		return nil
	})
	_ = g.Wait() // neither goroutine returns a non-nil error; failures are captured above

	result.ConnectTime = &connectMS
	result.NIP11FetchTime = &nip11MS
	if nip11Err == nil {
		result.NIP11 = nip11
	}

	if connectErr != nil {
		result.Reachable = false
		result.Error = fmt.Sprintf("connect: %v", connectErr)
		result.AccessLevel = model.AccessUnknown
		result.RelayType = classifyRelayType(result.NIP11)
		return result
	}
	defer relay.Close()
	result.Reachable = true

	readMS, accessLevel, closedReason, readErr := p.issueReadQuery(ctx, relay)
	result.ReadTime = &readMS
	result.AccessLevel = accessLevel
	result.ClosedReason = closedReason
	if readErr != nil {
		result.Error = fmt.Sprintf("read: %v", readErr)
	}

	result.RelayType = classifyRelayType(result.NIP11)
	return result
}

// issueReadQuery sends a short REQ and times the first EVENT or EOSE.
func (p *Prober) issueReadQuery(ctx context.Context, relay *nostr.Relay) (readMS int64, access model.AccessLevel, closedReason string, err error) {
	start := time.Now()
	rctx, cancel := context.WithTimeout(ctx, p.cfg.ReadTimeout)
	defer cancel()

	sub, subErr := relay.Subscribe(rctx, nostr.Filters{{Kinds: []int{1}, Limit: 1}})
	if subErr != nil {
		return time.Since(start).Milliseconds(), model.AccessUnknown, "", subErr
	}
	defer sub.Unsub()

	select {
	case <-sub.Events:
		return time.Since(start).Milliseconds(), model.AccessOpen, "", nil
	case <-sub.EndOfStoredEvents:
		return time.Since(start).Milliseconds(), model.AccessOpen, "", nil
	case reason := <-sub.ClosedReason:
		return time.Since(start).Milliseconds(), classifyAccessFromClosedReason(reason), reason, nil
	case <-rctx.Done():
		return time.Since(start).Milliseconds(), model.AccessUnknown, "", rctx.Err()
	}
}

// classifyAccessFromClosedReason maps a CLOSED message's reason prefix
// to an AccessLevel per spec.md §4.2 step 3.
func classifyAccessFromClosedReason(reason string) model.AccessLevel {
	switch {
	case strings.HasPrefix(reason, "auth-required"):
		return model.AccessAuthRequired
	case strings.HasPrefix(reason, "payment-required"):
		return model.AccessPaymentRequired
	case strings.HasPrefix(reason, "restricted"):
		return model.AccessRestricted
	default:
		return model.AccessUnknown
	}
}

// classifyRelayType implements spec.md §4.2 step 4.
func classifyRelayType(info *model.NIP11Info) model.RelayType {
	if info == nil {
		return model.RelayTypeUnknown
	}
	if onlyNIP46(info.SupportedNIPs) {
		return model.RelayTypeNIP46
	}
	if info.Limitation != nil && info.Limitation.RestrictedWrites {
		return model.RelayTypeSpecialized
	}
	if len(info.SupportedNIPs) > 0 && len(info.SupportedNIPs) <= 3 {
		return model.RelayTypeSpecialized
	}
	return model.RelayTypeGeneral
}

func onlyNIP46(nips []int) bool {
	if len(nips) == 0 {
		return false
	}
	has46 := false
	for _, n := range nips {
		switch n {
		case 46:
			has46 = true
		default:
			return false
		}
	}
	return has46
}

// fetchNIP11 fetches and parses the relay's NIP-11 metadata document via
// the nip11 package, which owns the ws->http scheme translation and the
// "Accept: application/nostr+json" header the spec requires.
func fetchNIP11(ctx context.Context, relayURL string) (*model.NIP11Info, error) {
	doc, err := nip11.Fetch(ctx, relayURL)
	if err != nil {
		return nil, fmt.Errorf("fetch nip-11 %s: %w", relayURL, err)
	}
	return convertNIP11(doc), nil
}

// convertNIP11 maps the wire document's shape onto this module's own
// NIP11Info, the way the teacher's createRelayInfoDocument builds its own
// value type out of library pieces rather than passing the library's type
// straight through to its callers.
func convertNIP11(doc nip11.RelayInformationDocument) *model.NIP11Info {
	info := &model.NIP11Info{
		Name:           doc.Name,
		Description:    doc.Description,
		PubKey:         doc.Pubkey,
		Contact:        doc.Contact,
		PostedPolicy:   doc.PostingPolicy,
		SupportedNIPs:  convertSupportedNIPs(doc.SupportedNIPs),
		Software:       doc.Software,
		Version:        doc.Version,
		RelayCountries: doc.RelayCountries,
	}
	if doc.Limitation != nil {
		info.Limitation = &model.Limitation{
			MaxMessageLength: int64(doc.Limitation.MaxMessageLength),
			MaxSubscriptions: int64(doc.Limitation.MaxSubscriptions),
			MaxFilters:       int64(doc.Limitation.MaxFilters),
			MaxLimit:         int64(doc.Limitation.MaxLimit),
			MaxSubidLength:   int64(doc.Limitation.MaxSubidLength),
			MaxEventTags:     int64(doc.Limitation.MaxEventTags),
			MaxContentLength: int64(doc.Limitation.MaxContentLength),
			MinPowDifficulty: int64(doc.Limitation.MinPowDifficulty),
			AuthRequired:     doc.Limitation.AuthRequired,
			PaymentRequired:  doc.Limitation.PaymentRequired,
			RestrictedWrites: doc.Limitation.RestrictedWrites,
		}
	}
	if doc.Fees != nil {
		info.Fees = &model.Fees{
			Admission:    convertRelayFees(doc.Fees.Admission),
			Subscription: convertRelayFees(doc.Fees.Subscription),
			Publication:  convertRelayFees(doc.Fees.Publication),
		}
	}
	return info
}

func convertSupportedNIPs(raw []any) []int {
	if len(raw) == 0 {
		return nil
	}
	out := make([]int, 0, len(raw))
	for _, v := range raw {
		switch n := v.(type) {
		case int:
			out = append(out, n)
		case int64:
			out = append(out, int(n))
		case float64:
			out = append(out, int(n))
		}
	}
	return out
}

func convertRelayFees(fees []nip11.RelayFee) []map[string]any {
	if len(fees) == 0 {
		return nil
	}
	out := make([]map[string]any, 0, len(fees))
	for _, f := range fees {
		m := map[string]any{"amount": f.Amount}
		if f.Unit != "" {
			m["unit"] = f.Unit
		}
		if f.Period != 0 {
			m["period"] = f.Period
		}
		if len(f.Kinds) > 0 {
			m["kinds"] = f.Kinds
		}
		out = append(out, m)
	}
	return out
}
