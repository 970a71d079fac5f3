package scorer

import (
	"net"
	"regexp"
	"strings"

	"github.com/relaywatch/scoutd/internal/model"
)

// policyURLCandidateRegex finds URL-ish substrings in a relay's posted
// policy text, the same RE2 pattern the teacher's ContainsURL uses to
// scan note content for links — reused here to check whether a relay's
// posted_policy field actually points somewhere, rather than being a
// bare unlinked sentence.
var policyURLCandidateRegex = regexp.MustCompile(`(?i)(?:https?://|www\.)[^\s]+|(?:[a-z0-9-]+\.)+[a-z]{2,}(?:/[^\s]*)?`)

// linksToPolicyDocument reports whether text contains at least one
// plausible http(s) URL or bare domain, excluding localhost/private
// addresses, adapted from the teacher's ContainsURL/isAllowedURLCandidate
// (url.go) — that logic screened chat content for spam links; here it
// screens a relay's self-reported policy text for an actual reference.
func linksToPolicyDocument(text string) bool {
	if text == "" {
		return false
	}
	loc := policyURLCandidateRegex.FindStringIndex(text)
	if loc == nil {
		return false
	}
	candidate := strings.Trim(text[loc[0]:loc[1]], "()[]{}<>,.\"'`")
	return candidate != "" && hasResolvableHost(candidate)
}

func hasResolvableHost(candidate string) bool {
	s := candidate
	switch {
	case strings.HasPrefix(strings.ToLower(s), "http://"):
		s = s[len("http://"):]
	case strings.HasPrefix(strings.ToLower(s), "https://"):
		s = s[len("https://"):]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	host := s
	if h, _, err := net.SplitHostPort(s); err == nil {
		host = h
	}
	if host == "" {
		return false
	}
	hostLower := strings.ToLower(host)
	if hostLower == "localhost" || strings.HasSuffix(hostLower, ".local") {
		return false
	}
	if ip := net.ParseIP(host); ip != nil {
		return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified())
	}
	return strings.Contains(hostLower, ".")
}

// ComputePolicyClarityScore scores how much a relay documents about
// itself via NIP-11, per spec.md §4.4's additive-then-capped formula.
func ComputePolicyClarityScore(info *model.NIP11Info) int {
	if info == nil {
		return 50
	}

	hasName := strings.TrimSpace(info.Name) != ""
	hasDesc := strings.TrimSpace(info.Description) != ""
	hasContact := strings.TrimSpace(info.Contact) != ""

	score := 50
	switch {
	case hasName && hasDesc:
		score += 15
	case hasName || hasDesc:
		score += 8
	}
	if hasContact {
		score += 15
	}
	if strings.TrimSpace(info.Software) != "" || strings.TrimSpace(info.Version) != "" {
		score += 5
	}
	if info.Limitation != nil {
		score += 10
		score += info.Limitation.CountLimits()
	}
	if info.Limitation != nil && info.Limitation.PaymentRequired {
		if info.Fees != nil {
			score += 5
		} else {
			score -= 10
		}
	}
	if linksToPolicyDocument(info.PostedPolicy) {
		score += 5
	}

	// Caps are applied last and override any additive total above them.
	if !hasName && !hasDesc && score > 50 {
		score = 50
	}
	if !hasContact && score > 70 {
		score = 70
	}
	if info.Limitation == nil && score > 85 {
		score = 85
	}

	return clamp(score)
}

// ComputeSecurityScore scores transport security: wss is full credit,
// plaintext ws loses it entirely, anything else is neutral.
func ComputeSecurityScore(relayURL string) int {
	switch {
	case strings.HasPrefix(relayURL, "wss://"):
		return 100
	case strings.HasPrefix(relayURL, "ws://"):
		return 0
	default:
		return 50
	}
}

// ComputeOperatorScore blends the confidence of the operator resolution
// with any externally supplied web-of-trust score for that operator
// pubkey. An unresolved operator scores the neutral midpoint.
func ComputeOperatorScore(res model.OperatorResolution) int {
	if res.OperatorPubkey == nil {
		return 50
	}
	if res.TrustScore == nil {
		return clamp(res.Confidence)
	}
	return clampRound(float64(res.Confidence+*res.TrustScore) / 2)
}

// ComputeQuality combines policy clarity, security, and operator scores
// with the 60/25/15 weights from spec.md §4.4.
func ComputeQuality(policyClarity, security, operator int) int {
	return clampRound(0.60*float64(policyClarity) + 0.25*float64(security) + 0.15*float64(operator))
}
