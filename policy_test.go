package outbox

import (
	"testing"
	"time"
)

func TestPolicyDecide(t *testing.T) {
	policy := Policy{MaxRetries: 3}

	if policy.Decide(2) != RetryLater {
		t.Fatalf("expected retry below threshold")
	}
	if policy.Decide(3) != DeadLetter {
		t.Fatalf("expected dead-letter at threshold")
	}
	if policy.Decide(4) != DeadLetter {
		t.Fatalf("expected dead-letter above threshold")
	}
}

func TestPolicyDecideDefaultMaxRetries(t *testing.T) {
	var policy Policy

	if policy.Decide(DefaultMaxRetries-1) != RetryLater {
		t.Fatalf("expected retry below default threshold")
	}
	if policy.Decide(DefaultMaxRetries) != DeadLetter {
		t.Fatalf("expected dead-letter at default threshold")
	}
}

func TestPolicyBackoffDisabled(t *testing.T) {
	var policy Policy
	if policy.Backoff(5) != 0 {
		t.Fatalf("expected zero backoff when disabled")
	}
}

func TestPolicyBackoffGrowsAndCaps(t *testing.T) {
	policy := Policy{BackoffBase: time.Second, BackoffCap: 10 * time.Second}

	if got := policy.Backoff(0); got != time.Second {
		t.Fatalf("expected 1s, got %v", got)
	}
	if got := policy.Backoff(2); got != 4*time.Second {
		t.Fatalf("expected 4s, got %v", got)
	}
	if got := policy.Backoff(10); got != 10*time.Second {
		t.Fatalf("expected cap, got %v", got)
	}
	if got := policy.Backoff(-1); got != time.Second {
		t.Fatalf("expected negative retry count to clamp to base, got %v", got)
	}
}

func TestPolicyBackoffJitterBounds(t *testing.T) {
	policy := Policy{BackoffBase: time.Second, BackoffCap: time.Minute, Jitter: true}

	for i := 0; i < 100; i++ {
		d := policy.Backoff(3)
		if d < 4*time.Second || d > 8*time.Second {
			t.Fatalf("jittered backoff out of bounds: %v", d)
		}
	}
}
