// Package signing wraps the event-signing and signature-verification
// primitives spec.md treats as external collaborators
// (sign(unsigned, key) -> event, verify(event) -> bool), backed by
// go-nostr's Event.Sign/CheckSignature and nip19 key decoding.
package signing

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// NormalizeSecretKey accepts a private key in raw-hex or bech32 (nsec...)
// form and returns the 32-byte secret as lowercase hex. Invalid keys fail
// here, at construction, not per-publish, per spec.md §4.6.
func NormalizeSecretKey(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("signing: empty secret key")
	}

	if strings.HasPrefix(raw, "nsec1") {
		prefix, value, err := nip19.Decode(raw)
		if err != nil {
			return "", fmt.Errorf("signing: decode nsec: %w", err)
		}
		if prefix != "nsec" {
			return "", fmt.Errorf("signing: expected nsec, got %s", prefix)
		}
		sk, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("signing: unexpected nsec payload type")
		}
		raw = sk
	}

	if len(raw) != 64 {
		return "", fmt.Errorf("signing: secret key must be 32 bytes hex (got %d chars)", len(raw))
	}
	decoded, err := hex.DecodeString(raw)
	if err != nil || len(decoded) != 32 {
		return "", fmt.Errorf("signing: secret key is not valid 32-byte hex")
	}
	return strings.ToLower(raw), nil
}

// Sign signs an unsigned event in place and returns it, mirroring
// sign(unsigned, key) -> event.
func Sign(unsigned *nostr.Event, secretKeyHex string) (*nostr.Event, error) {
	if err := unsigned.Sign(secretKeyHex); err != nil {
		return nil, fmt.Errorf("signing: sign event: %w", err)
	}
	return unsigned, nil
}

// Verify checks an event's signature, mirroring verify(event) -> bool.
// Any error in the check (malformed id, malformed sig) is treated as a
// failed verification, not a crash.
func Verify(ev *nostr.Event) bool {
	ok, err := ev.CheckSignature()
	if err != nil {
		return false
	}
	return ok
}
