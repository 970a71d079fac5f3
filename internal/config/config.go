// Package config loads process configuration from the environment,
// following the same best-effort .env + getEnv* pattern as the teacher's
// loadConfig in main.go.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every knob the scoring engine's components read at
// construction time.
type Config struct {
	// DownstreamRelays receive published assertions (kind 30385).
	DownstreamRelays []string
	// UpstreamRelays are where MonitorIngestor subscribes for telemetry
	// (kind 30166).
	UpstreamRelays []string
	// TrustedMonitors, when non-empty, restricts ingestion to telemetry
	// signed by one of these pubkeys.
	TrustedMonitors []string
	// FleetRelays is the set of relay URLs this instance actively probes
	// and scores. Separate from UpstreamRelays, which is where telemetry
	// about those (and other) relays is gathered from.
	FleetRelays []string

	ProbeInterval time.Duration
	ScoreInterval time.Duration

	// PublishSecretKey is the relay-scoring service's own signing key, in
	// raw-hex or bech32 (nsec) form.
	PublishSecretKey string

	// TrustRelay and TrustServicePubkey identify an optional ContextVM-
	// style web-of-trust service consulted for an operator pubkey's
	// corroborating trust score. Leaving TrustRelay empty disables the
	// lookup; the operator-quality term simply scores without w.
	TrustRelay        string
	TrustServicePubkey string

	// StorePath is the badger data directory. Empty means in-memory,
	// which is what tests use and what running with no volume mounted
	// degrades to.
	StorePath string

	// MaterialChangeThreshold is the minimum |delta| in any headline
	// score that forces a republish. spec.md documents both 3 and 5 as
	// defaults in different places (§4.6, §9 open question); this
	// config resolves that by picking one value, applied uniformly.
	MaterialChangeThreshold int

	ProbeConnectTimeout time.Duration
	ProbeNIP11Timeout   time.Duration
	ProbeReadTimeout    time.Duration

	PublishTimeout time.Duration

	ReconnectMinBackoff time.Duration
	ReconnectMaxBackoff time.Duration

	// GeoAPIURL is the IP-geolocation HTTP endpoint's base URL.
	GeoAPIURL string
	// GeoRateLimitPerMinute bounds the IP-geolocation client.
	GeoRateLimitPerMinute int
	// GeoBatchGap is the belt-and-braces inter-request delay for batch
	// jurisdiction resolution.
	GeoBatchGap time.Duration

	// QualifyingMonitorMinRelays is the "qualifying monitor" threshold
	// for latency-percentile scoring.
	QualifyingMonitorMinRelays int

	AlgorithmVersion string
	AlgorithmURL     string

	Debug bool
}

// Load reads configuration from the environment, applying the same
// defaults-with-validation approach as the teacher.
func Load() Config {
	_ = godotenv.Load()

	threshold := getEnvInt("MATERIAL_CHANGE_THRESHOLD", 5)
	if threshold < 0 {
		log.Fatal("MATERIAL_CHANGE_THRESHOLD must be >= 0")
	}

	cfg := Config{
		DownstreamRelays: getEnvList("DOWNSTREAM_RELAYS", nil),
		UpstreamRelays:   getEnvList("UPSTREAM_RELAYS", nil),
		TrustedMonitors:  getEnvList("TRUSTED_MONITORS", nil),
		FleetRelays:      getEnvList("FLEET_RELAYS", nil),

		ProbeInterval: getEnvDuration("PROBE_INTERVAL", 15*time.Minute),
		ScoreInterval: getEnvDuration("SCORE_INTERVAL", 30*time.Minute),

		PublishSecretKey: os.Getenv("PUBLISH_SECRET_KEY"),
		StorePath:        os.Getenv("STORE_PATH"),

		TrustRelay:         os.Getenv("TRUST_RELAY"),
		TrustServicePubkey: os.Getenv("TRUST_SERVICE_PUBKEY"),

		MaterialChangeThreshold: threshold,

		ProbeConnectTimeout: getEnvDuration("PROBE_CONNECT_TIMEOUT", 10*time.Second),
		ProbeNIP11Timeout:   getEnvDuration("PROBE_NIP11_TIMEOUT", 10*time.Second),
		ProbeReadTimeout:    getEnvDuration("PROBE_READ_TIMEOUT", 10*time.Second),

		PublishTimeout: getEnvDuration("PUBLISH_TIMEOUT", 10*time.Second),

		ReconnectMinBackoff: getEnvDuration("RECONNECT_MIN_BACKOFF", 1*time.Second),
		ReconnectMaxBackoff: getEnvDuration("RECONNECT_MAX_BACKOFF", 60*time.Second),

		GeoAPIURL:             getEnvString("GEO_API_URL", "https://ipapi.example.com/lookup"),
		GeoRateLimitPerMinute: getEnvInt("GEO_RATE_LIMIT_PER_MINUTE", 45),
		GeoBatchGap:           getEnvDuration("GEO_BATCH_GAP", 1300*time.Millisecond),

		QualifyingMonitorMinRelays: getEnvInt("QUALIFYING_MONITOR_MIN_RELAYS", 20),

		AlgorithmVersion: getEnvString("ALGORITHM_VERSION", "relaywatch-score-v1"),
		AlgorithmURL:     getEnvString("ALGORITHM_URL", "https://github.com/relaywatch/scoutd/blob/main/SPEC_FULL.md"),

		Debug: os.Getenv("DEBUG") != "",
	}

	return cfg
}

func getEnvString(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
		log.Printf("config: invalid value for %s: %s, using default: %d", key, v, defaultValue)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
		log.Printf("config: invalid value for %s: %s, using default: %s", key, v, defaultValue)
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
