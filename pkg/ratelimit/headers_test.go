package ratelimit

import (
	"net/http"
	"testing"
)

func TestObserveHeaders(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		wantRPS float64
	}{
		{
			name:    "tightens_from_header",
			header:  "0.5",
			wantRPS: 0.5,
		},
		{
			name:    "header_with_whitespace",
			header:  " 1.0 ",
			wantRPS: 1.0,
		},
		{
			name:    "missing_header_ignored",
			header:  "",
			wantRPS: 2,
		},
		{
			name:    "garbage_ignored",
			header:  "fast",
			wantRPS: 2,
		},
		{
			name:    "above_configured_capped",
			header:  "50",
			wantRPS: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newTestLimiter(t, map[string]Budget{"pricing": {RPS: 2, Burst: 1}})

			headers := http.Header{}
			if tt.header != "" {
				headers.Set(RateLimitHeader, tt.header)
			}

			l.ObserveHeaders("pricing", headers)

			if got := l.classes["pricing"].rps; got != tt.wantRPS {
				t.Errorf("rps = %v, want %v", got, tt.wantRPS)
			}
		})
	}
}
