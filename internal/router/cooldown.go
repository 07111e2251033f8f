package router

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	// Provider reset phrases name IANA zones; embed the zone database so
	// LoadLocation works on hosts without a system tzdata.
	_ "time/tzdata"
)

// Cooldown sources persisted in provider state.
const (
	SourceQuotaResetTime    = "quota_reset_time"
	SourceQuotaDefault      = "quota_default"
	SourceTransientExhaust  = "transient_retry_exhausted"
	reasonQuotaResetTime    = "quota-exhausted:provider-reset-time"
	reasonQuotaDefault      = "quota-exhausted:default-cooldown"
	reasonTransientExhaust  = "transient-rate-limit:retries-exhausted"
	maxCooldownExcerptChars = 240
)

// cooldownDecision is the tuple applied to a provider entering cooldown.
type cooldownDecision struct {
	until          time.Time
	source         string
	reason         string
	messageExcerpt string
}

// Accepted reset-time shapes, both requiring a parenthesized IANA zone:
//
//	resets [at] 6pm (America/Los_Angeles)
//	resets [at] 10:30 am (Europe/Paris)
//	resets [at] 18:00 (America/Los_Angeles)
var (
	resetTime12hPattern = regexp.MustCompile(
		`(?i)resets?\s+(?:at\s+)?(\d{1,2})(?::(\d{2}))?\s*(am|pm)\s*[.,:;\-·]?\s*\(([^)]+)\)`)
	resetTime24hPattern = regexp.MustCompile(
		`(?i)resets?\s+(?:at\s+)?([01]?\d|2[0-3]):([0-5]\d)\s*[.,:;\-·]?\s*\(([^)]+)\)`)
)

// quotaCooldown prefers the provider-stated reset time from the error
// message; when none parses, it falls back to now + defaultMinutes.
func quotaCooldown(errorMessage string, nowUTC time.Time, defaultMinutes int) cooldownDecision {
	excerpt := messageExcerpt(errorMessage)

	if until, ok := extractResetTimeUTC(errorMessage, nowUTC); ok && until.After(nowUTC) {
		return cooldownDecision{
			until:          until,
			source:         SourceQuotaResetTime,
			reason:         reasonQuotaResetTime,
			messageExcerpt: excerpt,
		}
	}

	return cooldownDecision{
		until:          nowUTC.Add(time.Duration(defaultMinutes) * time.Minute),
		source:         SourceQuotaDefault,
		reason:         reasonQuotaDefault,
		messageExcerpt: excerpt,
	}
}

// transientCooldown is applied after transient retries are exhausted.
func transientCooldown(nowUTC time.Time, cooldownMinutes int, errorMessage string) cooldownDecision {
	return cooldownDecision{
		until:          nowUTC.Add(time.Duration(cooldownMinutes) * time.Minute),
		source:         SourceTransientExhaust,
		reason:         reasonTransientExhaust,
		messageExcerpt: messageExcerpt(errorMessage),
	}
}

// messageExcerpt whitespace-normalizes the message and bounds it to 240
// characters with an ellipsis suffix when truncated.
func messageExcerpt(message string) string {
	normalized := strings.Join(strings.Fields(message), " ")
	if len(normalized) <= maxCooldownExcerptChars {
		return normalized
	}
	return normalized[:maxCooldownExcerptChars] + "..."
}

// extractResetTimeUTC parses a provider-stated reset wall-clock time and
// returns the next future UTC instant matching it in the stated zone.
func extractResetTimeUTC(message string, nowUTC time.Time) (time.Time, bool) {
	if message == "" {
		return time.Time{}, false
	}

	if m := resetTime12hPattern.FindStringSubmatch(message); m != nil {
		hour12, err := strconv.Atoi(m[1])
		if err != nil || hour12 < 1 || hour12 > 12 {
			return time.Time{}, false
		}
		minute := 0
		if m[2] != "" {
			minute, err = strconv.Atoi(m[2])
			if err != nil {
				return time.Time{}, false
			}
		}
		hour24 := hour12 % 12
		if strings.EqualFold(m[3], "pm") {
			hour24 += 12
		}
		return buildResetTimeUTC(nowUTC, strings.TrimSpace(m[4]), hour24, minute)
	}

	if m := resetTime24hPattern.FindStringSubmatch(message); m != nil {
		hour24, err1 := strconv.Atoi(m[1])
		minute, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			return time.Time{}, false
		}
		return buildResetTimeUTC(nowUTC, strings.TrimSpace(m[3]), hour24, minute)
	}

	return time.Time{}, false
}

// buildResetTimeUTC resolves the wall-clock time in the named zone,
// rolling to the next day when the instant has already passed.
func buildResetTimeUTC(nowUTC time.Time, tzName string, hour24, minute int) (time.Time, bool) {
	if hour24 < 0 || hour24 > 23 || minute < 0 || minute > 59 {
		return time.Time{}, false
	}

	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return time.Time{}, false
	}

	localNow := nowUTC.In(loc)
	localReset := time.Date(
		localNow.Year(), localNow.Month(), localNow.Day(),
		hour24, minute, 0, 0, loc,
	)
	if !localReset.After(localNow) {
		localReset = localReset.AddDate(0, 0, 1)
	}

	return localReset.UTC(), true
}
