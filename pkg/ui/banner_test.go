package ui

import (
	"fmt"
	"regexp"
	"strings"
	"testing"
)

var ansi = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func plain(s string) string { return ansi.ReplaceAllString(s, "") }

// TestBannerPreview prints the banner so `go test ./pkg/ui -run TestBannerPreview` shows it.
func TestBannerPreview(t *testing.T) {
	fmt.Println(Banner())
}

func TestBannerIncludesWordmark(t *testing.T) {
	banner := plain(Banner())
	if !strings.Contains(banner, "threadtop") {
		t.Fatalf("banner missing threadtop wordmark: %q", banner)
	}
	if !strings.Contains(banner, "per-thread cpu & allocation lens") {
		t.Fatalf("banner missing tagline")
	}
	if !strings.HasSuffix(banner, "\n") {
		t.Fatalf("banner should end with a newline")
	}
}

func TestStylesKeepText(t *testing.T) {
	for _, fn := range []func(string) string{Notice, Focus, Header} {
		if got := plain(fn("hello")); got != "hello" {
			t.Fatalf("style altered text: %q", got)
		}
	}
}
