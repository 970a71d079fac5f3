// Package trustlookup queries a ContextVM-style web-of-trust service over
// Nostr for a pubkey's trust score, and exposes it as a
// resolve.Resolver.TrustLookup callback so the Scorer's operator-quality
// term can fold in a corroborating trust score (spec.md §4.4's "w =
// corroborating trust score, if available").
//
// It is adapted from the teacher's RankCache (rank.go): same
// reconnect-on-failure relay handle, same singleflight-deduplicated
// JSON-RPC request/response correlation over kind 25910. What's dropped
// is the teacher's per-pubkey rate-limiting cache and background batch
// refresher — this system looks up one operator pubkey at a time, on
// demand, rather than continuously re-ranking every event author.
package trustlookup

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2"
	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/sync/singleflight"
)

const trustScoreKind = 25910

const cacheTTL = 6 * time.Hour

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type calculateTrustScoresParams struct {
	TargetPubkeys []string `json:"targetPubkeys"`
}

type toolCallParams struct {
	Name      string                      `json:"name"`
	Arguments *calculateTrustScoresParams `json:"arguments"`
}

type jsonRPCResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Result  struct {
		StructuredContent struct {
			TrustScores []struct {
				TargetPubkey string  `json:"targetPubkey"`
				Score        float64 `json:"score"`
			} `json:"trustScores"`
		} `json:"structuredContent"`
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type cacheEntry struct {
	score    int
	cachedAt time.Time
}

// Client looks up trust scores from a single ContextVM-style service
// relay, keeping one reusable connection open to it.
type Client struct {
	relayURL     string
	servicePubkey string
	secretKeyHex string

	relayMu sync.Mutex
	relay   *nostr.Relay

	flight singleflight.Group
	cache  *lru.Cache[string, cacheEntry]
}

// New builds a Client querying servicePubkey's trust-scoring tool over
// relayURL, signing outbound requests with secretKeyHex (already
// normalized hex, e.g. via internal/signing.NormalizeSecretKey).
func New(relayURL, servicePubkey, secretKeyHex string, cacheSize int) (*Client, error) {
	cache, err := lru.New[string, cacheEntry](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("trustlookup: new cache: %w", err)
	}
	return &Client{
		relayURL:      relayURL,
		servicePubkey: servicePubkey,
		secretKeyHex:  secretKeyHex,
		cache:         cache,
	}, nil
}

// Lookup resolves pubkey's trust score to a 0..100 scale, matching the
// resolve.Resolver.TrustLookup signature. A cache miss triggers a
// singleflight-deduplicated on-demand JSON-RPC round trip; any failure
// (unreachable service, malformed response) reports ok=false rather than
// propagating an error, since a missing trust score is treated as "no
// corroboration available", not a hard failure, by the operator-quality
// term.
func (c *Client) Lookup(ctx context.Context, pubkey string) (int, bool) {
	if entry, ok := c.cache.Get(pubkey); ok && time.Since(entry.cachedAt) < cacheTTL {
		return entry.score, true
	}

	v, err, _ := c.flight.Do(pubkey, func() (any, error) {
		return c.queryOne(ctx, pubkey)
	})
	if err != nil {
		return 0, false
	}
	score := v.(int)
	c.cache.Add(pubkey, cacheEntry{score: score, cachedAt: time.Now()})
	return score, true
}

func (c *Client) queryOne(ctx context.Context, pubkey string) (int, error) {
	req := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params: toolCallParams{
			Name:      "calculate_trust_scores",
			Arguments: &calculateTrustScoresParams{TargetPubkeys: []string{pubkey}},
		},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("trustlookup: marshal request: %w", err)
	}

	request := nostr.Event{
		Kind:      trustScoreKind,
		CreatedAt: nostr.Now(),
		Content:   string(body),
		Tags:      nostr.Tags{{"p", c.servicePubkey}},
	}
	if err := request.Sign(c.secretKeyHex); err != nil {
		return 0, fmt.Errorf("trustlookup: sign request: %w", err)
	}

	response, err := c.roundTrip(ctx, &request)
	if err != nil {
		return 0, err
	}

	var resp jsonRPCResponse
	if err := json.Unmarshal([]byte(response.Content), &resp); err != nil {
		return 0, fmt.Errorf("trustlookup: unmarshal response: %w", err)
	}
	if resp.Error != nil {
		return 0, fmt.Errorf("trustlookup: rpc error: %s", resp.Error.Message)
	}
	if resp.Result.IsError {
		return 0, fmt.Errorf("trustlookup: tool execution error")
	}
	for _, ts := range resp.Result.StructuredContent.TrustScores {
		if ts.TargetPubkey == pubkey {
			return clampScore(ts.Score), nil
		}
	}
	return 0, fmt.Errorf("trustlookup: no score returned for %s", pubkey)
}

func clampScore(rank float64) int {
	score := int(rank * 100)
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// roundTrip publishes request and waits for the correlated response,
// reusing the cached relay connection the way the teacher's
// contextVMResponse does.
func (c *Client) roundTrip(ctx context.Context, request *nostr.Event) (*nostr.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	relay, err := c.getRelay(ctx)
	if err != nil {
		return nil, err
	}

	if err := relay.Publish(ctx, *request); err != nil {
		c.dropRelay()
		return nil, fmt.Errorf("trustlookup: publish to %s: %w", c.relayURL, err)
	}

	filter := nostr.Filter{
		Kinds:   []int{trustScoreKind},
		Tags:    nostr.TagMap{"e": {request.ID}},
		Authors: []string{c.servicePubkey},
	}
	results, err := relay.QuerySync(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("trustlookup: query response: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("trustlookup: no response received")
	}
	if len(results) > 1 {
		log.Printf("trustlookup: received %d responses for request %s, using first", len(results), request.ID)
	}
	return results[0], nil
}

func (c *Client) getRelay(ctx context.Context) (*nostr.Relay, error) {
	c.relayMu.Lock()
	defer c.relayMu.Unlock()

	if c.relay != nil && c.relay.IsConnected() {
		return c.relay, nil
	}
	if c.relay != nil {
		c.relay.Close()
	}

	relay, err := nostr.RelayConnect(ctx, c.relayURL)
	if err != nil {
		return nil, fmt.Errorf("trustlookup: connect %s: %w", c.relayURL, err)
	}
	c.relay = relay
	return relay, nil
}

func (c *Client) dropRelay() {
	c.relayMu.Lock()
	defer c.relayMu.Unlock()
	if c.relay != nil {
		c.relay.Close()
		c.relay = nil
	}
}
