package normalize

import "testing"

func TestRelayURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases host", "WSS://Relay.Example.COM", "wss://relay.example.com"},
		{"strips trailing slash", "wss://relay.example.com/", "wss://relay.example.com"},
		{"strips default wss port", "wss://relay.example.com:443", "wss://relay.example.com"},
		{"strips default ws port", "ws://relay.example.com:80", "ws://relay.example.com"},
		{"keeps non-default port", "wss://relay.example.com:4848", "wss://relay.example.com:4848"},
		{"keeps path", "wss://relay.example.com/nostr", "wss://relay.example.com/nostr"},
		{"defaults missing scheme to wss", "relay.example.com", "wss://relay.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RelayURL(tt.in)
			if err != nil {
				t.Fatalf("RelayURL(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("RelayURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRelayURLIdempotent(t *testing.T) {
	inputs := []string{
		"WSS://Relay.Example.COM:443/",
		"ws://foo.bar:80/path/",
		"wss://already.normal.example",
	}
	for _, in := range inputs {
		once, err := RelayURL(in)
		if err != nil {
			t.Fatalf("RelayURL(%q) error: %v", in, err)
		}
		twice, err := RelayURL(once)
		if err != nil {
			t.Fatalf("RelayURL(%q) error: %v", once, err)
		}
		if once != twice {
			t.Errorf("normalize(normalize(%q)) = %q, want %q", in, twice, once)
		}
	}
}

func TestRelayURLRejectsMalformed(t *testing.T) {
	if _, err := RelayURL("wss://%zz"); err == nil {
		t.Error("expected error for malformed input")
	}
	if _, err := RelayURL(""); err == nil {
		t.Error("expected error for missing host")
	}
}
