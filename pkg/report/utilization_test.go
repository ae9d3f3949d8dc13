package report

import (
	"math"
	"testing"
	"time"
)

func TestShareOfTotal(t *testing.T) {
	cases := []struct {
		name  string
		value int64
		ok    bool
		total int64
		want  float64
	}{
		{"missing", 0, false, 100, 0},
		{"zeroTotal", 50, true, 0, 0},
		{"quarter", 25, true, 100, 25},
		{"negativeClamped", -10, true, 100, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShareOfTotal(tc.value, tc.ok, tc.total); math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("got %.4f want %.4f", got, tc.want)
			}
		})
	}
}

func TestCPUUtilization(t *testing.T) {
	// 500ms of CPU over a 1000ms window is 50%.
	if got := CPUUtilization(500*NanosPerMilli, true, 1000, NanosPerMilli); math.Abs(got-50) > 1e-9 {
		t.Fatalf("expected 50%%, got %.4f", got)
	}
	if got := CPUUtilization(500, false, 1000, 1); got != 0 {
		t.Fatalf("missing delta should be 0, got %.4f", got)
	}
	if got := CPUUtilization(500, true, 0, 1); got != 0 {
		t.Fatalf("zero window should be 0, got %.4f", got)
	}
	if got := CPUUtilization(250, true, 1000, 1); math.Abs(got-25) > 1e-9 {
		t.Fatalf("expected 25%%, got %.4f", got)
	}
}

func TestPerSecond(t *testing.T) {
	if got := PerSecond(2048, 2000); got != 1024 {
		t.Fatalf("expected 1024/s, got %.2f", got)
	}
	if got := PerSecond(2048, 0); got != 0 {
		t.Fatalf("zero window should be 0, got %.2f", got)
	}
}

func TestFormatBytes(t *testing.T) {
	cases := map[float64]string{
		0:               "0",
		512:             "512",
		1536:            "1.50k",
		3 * 1024 * 1024: "3.00m",
		-2048:           "-2.00k",
		5 * (1 << 40):   "5.00t",
	}
	for in, want := range cases {
		if got := FormatBytes(in); got != want {
			t.Fatalf("FormatBytes(%v) = %q, want %q", in, got, want)
		}
	}
	if got := FormatMB(300 << 20); got != "300m" {
		t.Fatalf("unexpected FormatMB: %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[time.Duration]string{
		42 * time.Second:              "42s",
		3*time.Minute + 4*time.Second: "3m04s",
		2*time.Hour + 5*time.Minute:   "2h05m",
		3*24*time.Hour + 4*time.Hour:  "3d04h",
		-time.Second:                  "0s",
	}
	for in, want := range cases {
		if got := FormatDuration(in); got != want {
			t.Fatalf("FormatDuration(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestShortName(t *testing.T) {
	if got := ShortName("main", 10, 4); got != "main" {
		t.Fatalf("short names should pass through, got %q", got)
	}
	if got := ShortName("ForkJoinPool.commonPool-worker-13", 20, 12); got != "ForkJoinPool...er-13" {
		t.Fatalf("unexpected trimmed name %q", got)
	}
	if got := PadRight("ab", 4); got != "ab  " {
		t.Fatalf("unexpected padding %q", got)
	}
	if got := PadRight("abcdef", 3); got != "abc" {
		t.Fatalf("unexpected truncation %q", got)
	}
}
