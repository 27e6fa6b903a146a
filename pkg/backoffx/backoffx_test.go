package backoffx_test

import (
	"testing"
	"time"

	"github.com/Abraxas-365/profilejobs/pkg/backoffx"
)

func TestLinear_CappedAndMonotonic(t *testing.T) {
	l := backoffx.NewLinear(500*time.Millisecond, 2*time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{3, 1500 * time.Millisecond},
		{4, 2 * time.Second},
		{10, 2 * time.Second},
		{1 << 30, 2 * time.Second},
	}
	for _, tt := range tests {
		if got := l.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 50; attempt++ {
		d := l.Delay(attempt)
		if d < prev {
			t.Fatalf("Delay(%d) = %v decreased from %v", attempt, d, prev)
		}
		prev = d
	}
}

func TestExponential_Doubles(t *testing.T) {
	e := backoffx.NewExponential(2*time.Second, 0)

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	for i, w := range want {
		if got := e.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestExponential_Cap(t *testing.T) {
	e := backoffx.NewExponential(time.Second, 5*time.Second)

	if got := e.Delay(3); got != 4*time.Second {
		t.Fatalf("Delay(3) = %v, want 4s", got)
	}
	if got := e.Delay(4); got != 5*time.Second {
		t.Fatalf("Delay(4) = %v, want cap 5s", got)
	}
	if got := e.Delay(200); got != 5*time.Second {
		t.Fatalf("Delay(200) = %v, want cap 5s", got)
	}
}
