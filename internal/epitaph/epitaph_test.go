package epitaph

import (
	"strings"
	"testing"
	"time"
)

func TestSanitize(t *testing.T) {
	cases := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"  rest easy  ", "rest easy", true},
		{"<b>bold</b> move", "bold move", true},
		{"   ", "", false},
		{"<script></script>", "", false},
	}
	for _, tc := range cases {
		got, ok := Sanitize(tc.in)
		if got != tc.want || ok != tc.wantOK {
			t.Fatalf("Sanitize(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}

	long := strings.Repeat("é", MaxLength+20)
	got, ok := Sanitize(long)
	if !ok || len([]rune(got)) != MaxLength {
		t.Fatalf("expected %d characters, got %d", MaxLength, len([]rune(got)))
	}
}

func TestRandomIsStock(t *testing.T) {
	got := Random()
	for _, e := range auto {
		if e == got {
			return
		}
	}
	t.Fatalf("Random returned unknown epitaph %q", got)
}

func TestCauseOfDeathIsStableWithinTheHour(t *testing.T) {
	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 4, 14, 5, 0, 0, time.UTC)

	first := CauseOfDeath(created, 12, now)
	second := CauseOfDeath(created, 12, now.Add(10*time.Minute))
	if first != second {
		t.Fatalf("expected the same flavor within an hour, got %q and %q", first, second)
	}
	if strings.ContainsAny(first, "{}") {
		t.Fatalf("placeholders left in %q", first)
	}
}

func TestFormatAge(t *testing.T) {
	if got := formatAge(3*time.Hour + 20*time.Minute); got != "3h" {
		t.Fatalf("got %q", got)
	}
	if got := formatAge(50 * time.Hour); got != "2d 2h" {
		t.Fatalf("got %q", got)
	}
}
