package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2"

	"github.com/relaywatch/scoutd/internal/model"
	"github.com/relaywatch/scoutd/internal/ratelimit"
)

// Resolver resolves an IP address to jurisdiction info. The concrete
// HTTP client is external per spec.md §1; this type is the thin,
// rate-limited wrapper the rest of the system depends on.
type Resolver interface {
	Resolve(ctx context.Context, ip string) (model.JurisdictionInfo, error)
}

const cacheTTL = 24 * time.Hour

type cacheEntry struct {
	info    model.JurisdictionInfo
	cachedAt time.Time
}

// HTTPResolver calls a rate-limited external IP-geolocation API and
// caches results with a TTL, using golang-lru the way the rest of the
// system caches OperatorResolution.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
	limiter ratelimit.Limiter
	cache   *lru.Cache[string, cacheEntry]
}

// NewHTTPResolver builds a resolver against baseURL (a "?ip=" style
// geolocation endpoint), gated by limiter.
func NewHTTPResolver(baseURL string, limiter ratelimit.Limiter) (*HTTPResolver, error) {
	cache, err := lru.New[string, cacheEntry](4096)
	if err != nil {
		return nil, fmt.Errorf("geo: new cache: %w", err)
	}
	return &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: limiter,
		cache:   cache,
	}, nil
}

type apiResponse struct {
	CountryCode string `json:"country_code"`
	Region      string `json:"region"`
	City        string `json:"city"`
	ASN         int    `json:"asn"`
	ASOrg       string `json:"as_org"`
	IsHosting   bool   `json:"is_hosting"`
	IsTor       bool   `json:"is_tor"`
}

// Resolve looks up ip, serving from cache when fresh, otherwise blocking
// on the rate limiter before calling out.
func (r *HTTPResolver) Resolve(ctx context.Context, ip string) (model.JurisdictionInfo, error) {
	if entry, ok := r.cache.Get(ip); ok && time.Since(entry.cachedAt) < cacheTTL {
		return entry.info, nil
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return model.JurisdictionInfo{}, fmt.Errorf("geo: rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"?ip="+ip, nil)
	if err != nil {
		return model.JurisdictionInfo{}, fmt.Errorf("geo: build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return model.JurisdictionInfo{}, fmt.Errorf("geo: request %s: %w", ip, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.JurisdictionInfo{}, fmt.Errorf("geo: %s returned status %d", ip, resp.StatusCode)
	}

	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return model.JurisdictionInfo{}, fmt.Errorf("geo: decode response for %s: %w", ip, err)
	}

	info := model.JurisdictionInfo{
		IP:          ip,
		CountryCode: api.CountryCode,
		Region:      api.Region,
		City:        api.City,
		ASN:         api.ASN,
		ASOrg:       api.ASOrg,
		IsHosting:   api.IsHosting,
		IsTor:       api.IsTor,
	}
	if info.CountryCode == "" {
		info.CountryCode = "XX"
	}

	r.cache.Add(ip, cacheEntry{info: info, cachedAt: time.Now()})
	return info, nil
}

// ResolveBatch resolves every ip in order, inserting gap between requests
// as a belt-and-braces defense against the API's own limiter, in
// addition to the sliding-log limiter already gating Resolve.
func ResolveBatch(ctx context.Context, r Resolver, ips []string, gap time.Duration) (map[string]model.JurisdictionInfo, error) {
	out := make(map[string]model.JurisdictionInfo, len(ips))
	for i, ip := range ips {
		info, err := r.Resolve(ctx, ip)
		if err != nil {
			return out, fmt.Errorf("geo: resolve %s: %w", ip, err)
		}
		out[ip] = info

		if i < len(ips)-1 {
			timer := time.NewTimer(gap)
			select {
			case <-ctx.Done():
				timer.Stop()
				return out, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return out, nil
}
