package timeparsing

import (
	"testing"
	"time"
)

var now = time.Date(2026, 3, 11, 15, 30, 0, 0, time.UTC) // a Wednesday

func TestParseSinceDurationAndDates(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"36h", now.Add(-36 * time.Hour)},
		{"2026-03-01", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"2026-03-01 09:15", time.Date(2026, 3, 1, 9, 15, 0, 0, time.UTC)},
		{"2026-03-01T09:15:00Z", time.Date(2026, 3, 1, 9, 15, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseSince(tt.in, now)
		if err != nil {
			t.Errorf("ParseSince(%q) failed: %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseSince(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseSinceNaturalLanguage(t *testing.T) {
	got, err := ParseSince("yesterday", now)
	if err != nil {
		t.Fatalf("ParseSince(yesterday) failed: %v", err)
	}
	if d := StartOfDay(got); !d.Equal(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("yesterday = %v", got)
	}
}

func TestParseSinceRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "zzzz"} {
		if _, err := ParseSince(in, now); err == nil {
			t.Errorf("ParseSince(%q) succeeded", in)
		}
	}
}
