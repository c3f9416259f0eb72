package failure

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"missing input", MissingInput("/tmp/a.png"), KindMissingInput},
		{"wrapped rate limit", fmt.Errorf("voice: %w", RateLimited("elevenlabs", time.Minute, nil)), KindRateLimited},
		{"encoding", Encoding("exit status 1", nil), KindEncoding},
		{"plain error", errors.New("boom"), KindProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(Provider("openai_image", errors.New("502"))) {
		t.Error("provider errors should be retryable")
	}
	if IsRetryable(MissingInput("x")) {
		t.Error("missing input must not be retried")
	}
	if IsRetryable(Encoding("bad", nil)) {
		t.Error("encoding errors must not be retried")
	}
	if IsRetryable(RateLimited("elevenlabs", time.Second, nil)) {
		t.Error("rate limits are re-queued, not retried")
	}
	if IsRetryable(nil) {
		t.Error("nil is not retryable")
	}
}

func TestRetryAfterOf(t *testing.T) {
	err := fmt.Errorf("scene 3: %w", RateLimited("elevenlabs", 30*time.Second, nil))
	d, ok := RetryAfterOf(err)
	if !ok || d != 30*time.Second {
		t.Errorf("RetryAfterOf() = %v, %v; want 30s, true", d, ok)
	}
	if _, ok := RetryAfterOf(Provider("x", nil)); ok {
		t.Error("provider error should not carry a retry hint")
	}
}

func TestErrorMessageIncludesPathAndCause(t *testing.T) {
	err := MissingInput("/media/scene_1.png")
	if got := err.Error(); got != "missing_input: input file not found (/media/scene_1.png)" {
		t.Errorf("unexpected message: %s", got)
	}

	cancelled := Cancelled(context.Canceled)
	if !errors.Is(cancelled, context.Canceled) {
		t.Error("Cancelled should unwrap to context.Canceled")
	}
}
