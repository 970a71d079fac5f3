// Package resolve turns NIP-11 and out-of-band hints into an
// OperatorResolution, the supplemental component the original spec
// names in its data model (§3) but never assigns to a component in its
// table (§4). It is consulted by assertion and scored by scorer.
package resolve

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2"

	"github.com/relaywatch/scoutd/internal/model"
)

// confidenceByMethod matches spec.md §4.4's operator-quality term: "let
// v = verification confidence (100/80/75/70/50/20 by method)".
var confidenceByMethod = map[model.VerificationMethod]int{
	model.VerifyNIP11Signed: 100,
	model.VerifyDNS:         80,
	model.VerifyWellKnown:   75,
	model.VerifyNIP11:       70,
	model.VerifyVouched:     50,
	model.VerifyClaimed:     20,
}

// ConfidenceFor returns the verification-method confidence used by both
// this package and the scorer's operator-quality term.
func ConfidenceFor(method model.VerificationMethod) int {
	return confidenceByMethod[method]
}

const resolutionTTL = 12 * time.Hour

type cacheEntry struct {
	res      model.OperatorResolution
	cachedAt time.Time
}

// Resolver resolves a relay's operator from whatever hints NIP-11
// exposes, cached with a TTL via golang-lru, the way the teacher caches
// trust ranks in RankCache.
type Resolver struct {
	cache *lru.Cache[string, cacheEntry]

	// TrustLookup optionally resolves a pubkey's web-of-trust score,
	// feeding the OperatorResolution.TrustScore field. Left nil by
	// default (no corroborating trust graph configured).
	TrustLookup func(ctx context.Context, pubkey string) (int, bool)
}

// New builds a Resolver with a cache sized for size distinct relays.
func New(size int) (*Resolver, error) {
	cache, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("resolve: new cache: %w", err)
	}
	return &Resolver{cache: cache}, nil
}

// Resolve derives an OperatorResolution for relayURL from its NIP-11
// metadata. Per spec.md's data model, confidence is the method's base
// confidence. When sources name different pubkeys, SourcesDisagree is
// set and the resolution reports the pubkey with the most sources; the
// confidence is not reduced for the disagreement.
func (r *Resolver) Resolve(ctx context.Context, relayURL string, nip11Pubkey, dnsPubkey, wellKnownPubkey string) model.OperatorResolution {
	if entry, ok := r.cache.Get(relayURL); ok && time.Since(entry.cachedAt) < resolutionTTL {
		return entry.res
	}

	res := r.resolveUncached(ctx, nip11Pubkey, dnsPubkey, wellKnownPubkey)
	r.cache.Add(relayURL, cacheEntry{res: res, cachedAt: time.Now()})
	return res
}

func (r *Resolver) resolveUncached(ctx context.Context, nip11Pubkey, dnsPubkey, wellKnownPubkey string) model.OperatorResolution {
	res := model.OperatorResolution{
		NIP11Pubkey:     nip11Pubkey,
		DNSPubkey:       dnsPubkey,
		WellKnownPubkey: wellKnownPubkey,
	}

	candidates := map[string][]model.VerificationMethod{}
	addCandidate := func(pubkey string, method model.VerificationMethod) {
		if pubkey == "" {
			return
		}
		candidates[pubkey] = append(candidates[pubkey], method)
	}
	addCandidate(dnsPubkey, model.VerifyDNS)
	addCandidate(wellKnownPubkey, model.VerifyWellKnown)
	addCandidate(nip11Pubkey, model.VerifyNIP11)

	if len(candidates) == 0 {
		return res
	}

	// Prefer the pubkey corroborated by the most independent sources;
	// ties broken by strongest single method.
	var best string
	var bestSources []model.VerificationMethod
	for pk, methods := range candidates {
		if len(methods) > len(bestSources) || (len(methods) == len(bestSources) && strongestMethod(methods) > strongestMethod(bestSources)) {
			best = pk
			bestSources = methods
		}
	}

	res.OperatorPubkey = &best
	res.Method = strongestMethodName(bestSources)
	res.Confidence = ConfidenceFor(res.Method)
	res.VerifiedAt = time.Now().Unix()
	res.SourcesDisagree = len(candidates) > 1
	for pk, methods := range candidates {
		if pk != best && len(methods) > 0 {
			res.CorroboratedSources = append(res.CorroboratedSources, pk)
		}
	}

	if r.TrustLookup != nil {
		if score, ok := r.TrustLookup(ctx, best); ok {
			res.TrustScore = &score
		}
	}

	return res
}

func strongestMethod(methods []model.VerificationMethod) int {
	best := -1
	for _, m := range methods {
		if c := ConfidenceFor(m); c > best {
			best = c
		}
	}
	return best
}

func strongestMethodName(methods []model.VerificationMethod) model.VerificationMethod {
	var best model.VerificationMethod
	bestScore := -1
	for _, m := range methods {
		if c := ConfidenceFor(m); c > bestScore {
			bestScore = c
			best = m
		}
	}
	return best
}
