package backoff

import (
	"math/rand"
	"testing"
)

func TestComputeFixed(t *testing.T) {
	tests := []struct {
		name        string
		baseSeconds int
		maxSeconds  int
		attempts    int
		want        int
	}{
		{"base under max", 5, 10, 0, 5},
		{"ignores attempts", 5, 10, 100, 5},
		{"base exceeds max", 20, 10, 0, 10},
		{"zero base defaults to 1", 0, 10, 0, 1},
		{"zero max equals base", 5, 0, 0, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(PolicyFixed, tt.baseSeconds, tt.maxSeconds, tt.attempts, rand.New(rand.NewSource(42)))
			if got != tt.want {
				t.Errorf("Compute(fixed) = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestComputeLinear(t *testing.T) {
	tests := []struct {
		name     string
		attempts int
		want     int
	}{
		{"zero attempts", 0, 5},
		{"one attempt", 1, 5},
		{"two attempts", 2, 10},
		{"three attempts", 3, 15},
		{"negative attempts treated as zero", -1, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(PolicyLinear, 5, 100, tt.attempts, rand.New(rand.NewSource(42)))
			if got != tt.want {
				t.Errorf("Compute(linear, attempts=%d) = %d, want %d", tt.attempts, got, tt.want)
			}
		})
	}
	if got := Compute(PolicyLinear, 5, 20, 10, nil); got != 20 {
		t.Errorf("Compute(linear) not capped at max: got %d", got)
	}
}

func TestComputeExponential(t *testing.T) {
	tests := []struct {
		name     string
		attempts int
		want     int
	}{
		{"zero attempts", 0, 5},
		{"one attempt", 1, 10},
		{"two attempts", 2, 20},
		{"three attempts", 3, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(PolicyExponential, 5, 1000, tt.attempts, rand.New(rand.NewSource(42)))
			if got != tt.want {
				t.Errorf("Compute(exponential, attempts=%d) = %d, want %d", tt.attempts, got, tt.want)
			}
		})
	}
	if got := Compute(PolicyExponential, 5, 50, 10, nil); got != 50 {
		t.Errorf("Compute(exponential) not capped at max: got %d", got)
	}
}

func TestComputeJitterBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for attempts := 0; attempts < 8; attempts++ {
		ceiling := capped(5, 1000, attempts)

		got := Compute(PolicyExpEqualJitter, 5, 1000, attempts, rng)
		if got < ceiling/2 || got > ceiling {
			t.Errorf("equal jitter attempts=%d: got %d, want in [%d, %d]", attempts, got, ceiling/2, ceiling)
		}

		got = Compute(PolicyExpFullJitter, 5, 1000, attempts, rng)
		if got < 0 || got > ceiling {
			t.Errorf("full jitter attempts=%d: got %d, want in [0, %d]", attempts, got, ceiling)
		}
	}
}

func TestComputeUnknownPolicyFallsBackToFullJitter(t *testing.T) {
	got := Compute("unknown", 5, 1000, 2, rand.New(rand.NewSource(42)))
	if got < 0 || got > 20 {
		t.Errorf("Compute(unknown) = %d, want in [0, 20]", got)
	}
}

func TestComputeNilRng(t *testing.T) {
	if got := Compute(PolicyFixed, 5, 10, 0, nil); got != 5 {
		t.Errorf("Compute with nil rng = %d, want 5", got)
	}
	// Jitter policies must not panic without an rng either.
	if got := Compute(PolicyExpFullJitter, 0, 0, 0, nil); got < 0 || got > 1 {
		t.Errorf("Compute(full jitter, zeroes) = %d, want 0 or 1", got)
	}
}
