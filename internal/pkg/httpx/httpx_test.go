package httpx

import (
	"net/http"
	"testing"
	"time"
)

func TestRetryableStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{http.StatusOK, false},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusRequestTimeout, true},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
		{599, true},
	}
	for _, tc := range cases {
		if got := RetryableStatus(tc.code); got != tc.want {
			t.Fatalf("RetryableStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestRetryAfter(t *testing.T) {
	fallback := 200 * time.Millisecond
	max := 5 * time.Second

	resp := &http.Response{Header: http.Header{}}
	if got := RetryAfter(resp, fallback, max); got != fallback {
		t.Fatalf("RetryAfter (no header) = %v, want %v", got, fallback)
	}

	resp.Header.Set("Retry-After", "2")
	if got := RetryAfter(resp, fallback, max); got != 2*time.Second {
		t.Fatalf("RetryAfter (seconds) = %v, want 2s", got)
	}

	resp.Header.Set("Retry-After", "30")
	if got := RetryAfter(resp, fallback, max); got != max {
		t.Fatalf("RetryAfter (capped) = %v, want %v", got, max)
	}

	resp.Header.Set("Retry-After", time.Now().Add(3*time.Second).UTC().Format(http.TimeFormat))
	got := RetryAfter(resp, fallback, max)
	if got <= 0 || got > 3*time.Second {
		t.Fatalf("RetryAfter (http-date) = %v, want (0, 3s]", got)
	}

	resp.Header.Set("Retry-After", "garbage")
	if got := RetryAfter(resp, fallback, max); got != fallback {
		t.Fatalf("RetryAfter (unparseable) = %v, want %v", got, fallback)
	}

	if got := RetryAfter(nil, fallback, max); got != fallback {
		t.Fatalf("RetryAfter (nil response) = %v, want %v", got, fallback)
	}
}

func TestJitterStaysNearBase(t *testing.T) {
	base := time.Second
	for i := 0; i < 50; i++ {
		got := Jitter(base)
		if got < 800*time.Millisecond || got > 1200*time.Millisecond {
			t.Fatalf("Jitter(%v) = %v, outside +/-20%%", base, got)
		}
	}
	if got := Jitter(0); got != 0 {
		t.Fatalf("Jitter(0) = %v, want 0", got)
	}
}
