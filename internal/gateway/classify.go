package gateway

import "strings"

// Normalized gateway statuses.
const (
	StatusAwaitingPairing = "awaiting-pairing"
	StatusOnline          = "online"
	StatusOffline         = "offline"
)

// classificationRules maps provider status substrings to normalized
// statuses. Order matters: "disconnected" must hit the offline rule before
// the "connect" rule can claim it.
var classificationRules = []struct {
	substr     string
	normalized string
}{
	{"qr", StatusAwaitingPairing},
	{"pair", StatusAwaitingPairing},
	{"scan", StatusAwaitingPairing},
	{"disconnect", StatusOffline},
	{"logout", StatusOffline},
	{"logged", StatusOffline},
	{"close", StatusOffline},
	{"error", StatusOffline},
	{"fail", StatusOffline},
	{"stop", StatusOffline},
	{"open", StatusOnline},
	{"connect", StatusOnline},
	{"ready", StatusOnline},
	{"online", StatusOnline},
}

// Classify normalizes a raw provider status string. Unknown statuses fall
// back on the ready flag.
func Classify(raw string, ready bool) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	for _, rule := range classificationRules {
		if strings.Contains(s, rule.substr) {
			return rule.normalized
		}
	}
	if ready {
		return StatusOnline
	}
	return StatusOffline
}
