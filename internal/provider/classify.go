package provider

import "strings"

// HTTP statuses carried by structured provider error events.
const (
	statusRateLimited  = 429
	statusUnauthorized = 401
)

var rateLimitPhrases = []string{
	"rate limit",
	"too many requests",
	"overloaded",
	"quota",
}

// quotaPhrases distinguishes a hard plan limit from transient backpressure
// when the rate-limit rule matched.
var quotaPhrases = []string{
	"quota",
	"usage limit",
	"exhausted",
}

var authPhrases = []string{
	"unauthorized",
	"authentication",
	"invalid api key",
	"log in",
	"not authenticated",
}

// planExhaustionPhrases are provider-specific strings that indicate the
// monthly plan is spent even without a rate-limit status.
var planExhaustionPhrases = []string{
	"usage limit reached",
	"monthly limit",
	"you've reached your",
	"claude.ai/settings/limits",
}

// Classify maps raw provider text plus an optional numeric status to an
// ErrorClass. Matching is case-insensitive; rules are evaluated in order
// and the first match wins. A zero status means "no structured status".
func Classify(text string, status int) ErrorClass {
	lower := strings.ToLower(text)

	if status == statusRateLimited || containsAny(lower, rateLimitPhrases) {
		if containsAny(lower, quotaPhrases) {
			return QuotaExhausted
		}
		return TransientRateLimit
	}

	if status == statusUnauthorized || containsAny(lower, authPhrases) {
		return AuthRequired
	}

	if containsAny(lower, planExhaustionPhrases) {
		return QuotaExhausted
	}

	return OtherError
}

func containsAny(lower string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
