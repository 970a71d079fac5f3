// Command scoutd runs the relay trust-scoring engine: probe a configured
// fleet of relays, ingest monitor telemetry, score reliability/quality/
// accessibility, and publish signed assertions to the configured
// downstream relays.
package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/relaywatch/scoutd/internal/assertion"
	"github.com/relaywatch/scoutd/internal/config"
	"github.com/relaywatch/scoutd/internal/geo"
	"github.com/relaywatch/scoutd/internal/ingest"
	"github.com/relaywatch/scoutd/internal/model"
	"github.com/relaywatch/scoutd/internal/pool"
	"github.com/relaywatch/scoutd/internal/prober"
	"github.com/relaywatch/scoutd/internal/publish"
	"github.com/relaywatch/scoutd/internal/ratelimit"
	"github.com/relaywatch/scoutd/internal/resolve"
	"github.com/relaywatch/scoutd/internal/scorer"
	"github.com/relaywatch/scoutd/internal/signing"
	"github.com/relaywatch/scoutd/internal/store"
	"github.com/relaywatch/scoutd/internal/trustlookup"
)

// Observability mirrors the teacher's atomic-counter pattern, scoped to
// this system's own operations instead of rate-limit/kind rejections.
type Observability struct {
	probesRun      atomic.Uint64
	scoresRun      atomic.Uint64
	assertionsSent atomic.Uint64
	publishSkipped atomic.Uint64
	errorsCount    atomic.Uint64
}

func main() {
	cfg := config.Load()
	obs := &Observability{}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ds, err := store.Open(cfg.StorePath)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer ds.Close()

	connPool := pool.New(pool.Config{
		MinBackoff:     cfg.ReconnectMinBackoff,
		MaxBackoff:     cfg.ReconnectMaxBackoff,
		PublishTimeout: cfg.PublishTimeout,
	})
	defer connPool.CloseAll()

	prb := prober.New(prober.Config{
		ConnectTimeout: cfg.ProbeConnectTimeout,
		NIP11Timeout:   cfg.ProbeNIP11Timeout,
		ReadTimeout:    cfg.ProbeReadTimeout,
	})

	ingestor := ingest.New(connPool, ds, cfg.TrustedMonitors)
	if len(cfg.UpstreamRelays) > 0 {
		go ingestor.Run(ctx, cfg.UpstreamRelays)
	}
	defer ingestor.Stop()

	freedom, alliance := geo.NewStaticTables()
	geoLimiter := ratelimit.New(cfg.GeoRateLimitPerMinute, time.Minute)
	geoResolver, err := geo.NewHTTPResolver(cfg.GeoAPIURL, geoLimiter)
	if err != nil {
		log.Fatalf("geo: %v", err)
	}

	operatorResolver, err := resolve.New(4096)
	if err != nil {
		log.Fatalf("resolve: %v", err)
	}
	if cfg.TrustRelay != "" && cfg.TrustServicePubkey != "" && cfg.PublishSecretKey != "" {
		secretHex, err := signing.NormalizeSecretKey(cfg.PublishSecretKey)
		if err != nil {
			log.Fatalf("trustlookup: %v", err)
		}
		trustClient, err := trustlookup.New(cfg.TrustRelay, cfg.TrustServicePubkey, secretHex, 4096)
		if err != nil {
			log.Fatalf("trustlookup: %v", err)
		}
		operatorResolver.TrustLookup = trustClient.Lookup
	}

	sc := scorer.New(ds, freedom, alliance, cfg.QualifyingMonitorMinRelays, 0)

	var publisher *publish.Publisher
	if cfg.PublishSecretKey != "" && len(cfg.DownstreamRelays) > 0 {
		publisher, err = publish.New(connPool, ds, cfg.PublishSecretKey, cfg.DownstreamRelays, cfg.MaterialChangeThreshold)
		if err != nil {
			log.Fatalf("publish: %v", err)
		}
	} else {
		log.Printf("scoutd: no publish secret key or downstream relays configured, running probe/score only")
	}

	algo := assertion.AlgorithmMeta{Version: cfg.AlgorithmVersion, URL: cfg.AlgorithmURL}

	if cfg.Debug {
		go func() {
			ticker := time.NewTicker(30 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					logObservability(obs)
				}
			}
		}()
	}

	go runProbeLoop(ctx, cfg, prb, ds, obs)
	go runScoreLoop(ctx, cfg, sc, ds, operatorResolver, geoResolver, publisher, algo, obs)

	<-ctx.Done()
	log.Printf("scoutd: shutting down")
}

// runProbeLoop periodically probes every fleet relay and records the
// result, per spec.md §4.2. Probes run concurrently but independently:
// one relay's failure to respond never blocks another's probe.
func runProbeLoop(ctx context.Context, cfg config.Config, prb *prober.Prober, ds store.DataStore, obs *Observability) {
	if len(cfg.FleetRelays) == 0 {
		return
	}
	ticker := time.NewTicker(cfg.ProbeInterval)
	defer ticker.Stop()

	probeOnce(ctx, cfg.FleetRelays, prb, ds, obs)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeOnce(ctx, cfg.FleetRelays, prb, ds, obs)
		}
	}
}

func probeOnce(ctx context.Context, relays []string, prb *prober.Prober, ds store.DataStore, obs *Observability) {
	for _, relayURL := range relays {
		go func(relayURL string) {
			result := prb.Probe(ctx, relayURL)
			obs.probesRun.Add(1)
			if err := ds.StoreProbe(ctx, result); err != nil {
				obs.errorsCount.Add(1)
				log.Printf("prober: store probe %s: %v", relayURL, err)
			}
		}(relayURL)
	}
}

// runScoreLoop periodically scores every fleet relay and, when a
// Publisher is configured, publishes the resulting assertion, per
// spec.md §4.4-§4.6.
func runScoreLoop(ctx context.Context, cfg config.Config, sc *scorer.Scorer, ds store.DataStore, operatorResolver *resolve.Resolver, geoResolver geo.Resolver, publisher *publish.Publisher, algo assertion.AlgorithmMeta, obs *Observability) {
	if len(cfg.FleetRelays) == 0 {
		return
	}
	ticker := time.NewTicker(cfg.ScoreInterval)
	defer ticker.Stop()

	scoreOnce(ctx, cfg, sc, ds, operatorResolver, geoResolver, publisher, algo, obs)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			scoreOnce(ctx, cfg, sc, ds, operatorResolver, geoResolver, publisher, algo, obs)
		}
	}
}

func scoreOnce(ctx context.Context, cfg config.Config, sc *scorer.Scorer, ds store.DataStore, operatorResolver *resolve.Resolver, geoResolver geo.Resolver, publisher *publish.Publisher, algo assertion.AlgorithmMeta, obs *Observability) {
	for _, relayURL := range cfg.FleetRelays {
		probes, err := ds.GetProbes(ctx, relayURL, 30*24*time.Hour)
		if err != nil {
			obs.errorsCount.Add(1)
			log.Printf("scorer: load probes %s: %v", relayURL, err)
			continue
		}

		var latestNIP11 *model.NIP11Info
		if len(probes) > 0 {
			latestNIP11 = probes[len(probes)-1].NIP11
		}

		var nip11Pubkey string
		if latestNIP11 != nil {
			nip11Pubkey = latestNIP11.PubKey
		}
		operator := operatorResolver.Resolve(ctx, relayURL, nip11Pubkey, "", "")

		jurisdiction := resolveJurisdiction(ctx, relayURL, geoResolver)

		result, err := sc.Score(ctx, relayURL, latestNIP11, operator, jurisdiction)
		if err != nil {
			obs.errorsCount.Add(1)
			log.Printf("scorer: score %s: %v", relayURL, err)
			continue
		}
		obs.scoresRun.Add(1)

		a := assertion.Build(relayURL, probes, result, operator, jurisdiction, algo)

		if publisher == nil {
			continue
		}
		outcome, err := publisher.Publish(ctx, a)
		if err != nil {
			obs.errorsCount.Add(1)
			log.Printf("publisher: publish %s: %v", relayURL, err)
			continue
		}
		if outcome.Skipped {
			obs.publishSkipped.Add(1)
			continue
		}
		if outcome.Success {
			obs.assertionsSent.Add(1)
		}
	}
}

// resolveJurisdiction looks up the jurisdiction of relayURL's host IP.
// DNS resolution itself is plain net.DefaultResolver per the teacher's
// standard-library-for-plumbing approach; only the geolocation API call
// is rate-limited and cached, per internal/geo.
func resolveJurisdiction(ctx context.Context, relayURL string, resolver geo.Resolver) model.JurisdictionInfo {
	host := hostOf(relayURL)
	if host == "" {
		return model.JurisdictionInfo{}
	}

	ips, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil || len(ips) == 0 {
		return model.JurisdictionInfo{}
	}

	info, err := resolver.Resolve(ctx, ips[0])
	if err != nil {
		log.Printf("geo: resolve %s: %v", relayURL, err)
		return model.JurisdictionInfo{}
	}
	return info
}

func hostOf(relayURL string) string {
	withoutScheme := relayURL
	if i := strings.Index(relayURL, "://"); i != -1 {
		withoutScheme = relayURL[i+3:]
	}
	host := withoutScheme
	if i := strings.IndexAny(host, "/:"); i != -1 {
		host = host[:i]
	}
	return host
}

func logObservability(obs *Observability) {
	log.Printf("observability: probes_run=%d scores_run=%d assertions_sent=%d publish_skipped=%d errors=%d",
		obs.probesRun.Load(), obs.scoresRun.Load(), obs.assertionsSent.Load(), obs.publishSkipped.Load(), obs.errorsCount.Load())
}
