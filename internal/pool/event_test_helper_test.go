package pool

import "github.com/nbd-wtf/go-nostr"

func validTestEvent() nostr.Event {
	sk := nostr.GeneratePrivateKey()
	pk, _ := nostr.GetPublicKey(sk)
	ev := nostr.Event{
		PubKey:    pk,
		CreatedAt: nostr.Now(),
		Kind:      30385,
		Tags:      nostr.Tags{},
		Content:   "",
	}
	_ = ev.Sign(sk)
	return ev
}
