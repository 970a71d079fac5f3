package signing

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSecretKeyHex(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	got, err := NormalizeSecretKey(sk)
	require.NoError(t, err)
	require.Equal(t, sk, got)
}

func TestNormalizeSecretKeyRejectsGarbage(t *testing.T) {
	_, err := NormalizeSecretKey("not-a-key")
	require.Error(t, err)

	_, err = NormalizeSecretKey("")
	require.Error(t, err)
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)

	ev := &nostr.Event{
		PubKey:    pk,
		CreatedAt: nostr.Now(),
		Kind:      30385,
		Tags:      nostr.Tags{},
		Content:   "",
	}

	signed, err := Sign(ev, sk)
	require.NoError(t, err)
	require.True(t, Verify(signed))

	signed.Content = "tampered"
	require.False(t, Verify(signed))
}
