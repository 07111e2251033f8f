package provider

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		status int
		want   ErrorClass
	}{
		{
			name:   "status 429 without quota phrase is transient",
			text:   "please slow down",
			status: 429,
			want:   TransientRateLimit,
		},
		{
			name:   "status 429 with quota phrase is exhaustion",
			text:   "quota exceeded for this billing period",
			status: 429,
			want:   QuotaExhausted,
		},
		{
			name: "rate limit text is transient",
			text: "Rate limit hit, retry shortly",
			want: TransientRateLimit,
		},
		{
			name: "too many requests is transient",
			text: "429 Too Many Requests",
			want: TransientRateLimit,
		},
		{
			name: "overloaded is transient",
			text: "the service is overloaded",
			want: TransientRateLimit,
		},
		{
			name: "rate limit with usage limit is exhaustion",
			text: "rate limit: usage limit reached until next month",
			want: QuotaExhausted,
		},
		{
			name: "rate limit with exhausted is exhaustion",
			text: "rate limit: capacity exhausted",
			want: QuotaExhausted,
		},
		{
			name:   "status 401 is auth",
			text:   "nope",
			status: 401,
			want:   AuthRequired,
		},
		{
			name: "unauthorized text is auth",
			text: "Unauthorized request",
			want: AuthRequired,
		},
		{
			name: "invalid api key is auth",
			text: "Invalid API key provided",
			want: AuthRequired,
		},
		{
			name: "not authenticated is auth",
			text: "You are not authenticated. Please log in.",
			want: AuthRequired,
		},
		{
			name: "plan exhaustion phrase without rate limit",
			text: "You've reached your plan allowance",
			want: QuotaExhausted,
		},
		{
			name: "settings limits url is exhaustion",
			text: "See claude.ai/settings/limits for details",
			want: QuotaExhausted,
		},
		{
			name: "monthly limit is exhaustion",
			text: "Monthly limit reached",
			want: QuotaExhausted,
		},
		{
			name: "anything else is other",
			text: "segmentation fault",
			want: OtherError,
		},
		{
			name: "empty text is other",
			want: OtherError,
		},
		{
			name: "matching is case-insensitive",
			text: "RATE LIMIT",
			want: TransientRateLimit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.text, tt.status); got != tt.want {
				t.Errorf("Classify(%q, %d) = %s, want %s", tt.text, tt.status, got, tt.want)
			}
		})
	}
}

func TestClassifyRuleOrder(t *testing.T) {
	// Rate-limit rule wins over auth when both match.
	got := Classify("unauthorized rate limit", 0)
	if got != TransientRateLimit {
		t.Errorf("rate-limit rule should be evaluated first, got %s", got)
	}
}
