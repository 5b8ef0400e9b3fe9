package query

import (
	"fmt"
	"testing"
)

func TestNewParser(t *testing.T) {
	p := NewParser()
	if p == nil {
		t.Fatal("NewParser() returned nil")
	}
	if p.DefaultDuration() != DefaultDurationSec {
		t.Errorf("DefaultDuration() = %d, want %d", p.DefaultDuration(), DefaultDurationSec)
	}
	if got := NewParser(WithDefaultDuration(600)).DefaultDuration(); got != 600 {
		t.Errorf("WithDefaultDuration(600) = %d, want 600", got)
	}
	if got := NewParser(WithDefaultDuration(-1)).DefaultDuration(); got != DefaultDurationSec {
		t.Errorf("WithDefaultDuration(-1) = %d, want default", got)
	}
}

func TestParser_Parse(t *testing.T) {
	p := NewParser()

	tests := []struct {
		name     string
		phrase   string
		duration int
		want     int
		wantOK   bool
	}{
		{"plain_minutes", "10 minutes", 600, 600, true},
		{"ordinal_minute", "the 5th minute", 600, 300, true},
		{"ordinal_minute_in_question", "what happens in the 5th minute", 600, 300, true},
		{"minute_after_preposition", "skip to 12 minutes", 3600, 720, true},
		{"minutes_then_seconds", "5 min 30 sec", 600, 330, true},
		{"first_window_quirk", "first 10 minutes", 600, 0, true},
		{"last_minutes", "last 5 minutes", 600, 300, true},
		{"last_never_negative", "last 20 minutes", 600, 0, true},
		{"last_hours", "last 2 hours", 10800, 3600, true},
		{"after_hours", "after 2 hours", 10800, 7200, true},
		{"before_seconds", "before 90 seconds", 10800, 90, true},
		{"composite", "2hr 30min", 10800, 9000, true},
		{"composite_hours_only", "1h", 10800, 3600, true},
		{"composite_seconds_only", "45s", 10800, 45, true},
		{"decade_is_not_seconds", "what was said about the 1990s", 10800, 0, false},
		{"clock_long", "1:30:00", 10800, 5400, true},
		{"clock_short", "2:30", 10800, 9000, true},
		{"half_hour", "half an hour", 10800, 1800, true},
		{"quarter", "quarter", 10800, 900, true},
		{"middle", "the middle", 600, 300, true},
		{"midway_default_duration", "midway", 0, 5400, true},
		{"normalised", "  LAST   5 MINUTES ", 600, 300, true},
		{"no_match", "the intro", 600, 0, false},
		{"empty", "", 600, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Parse(tt.phrase, tt.duration); got != tt.want {
				t.Errorf("Parse(%q, %d) = %d, want %d", tt.phrase, tt.duration, got, tt.want)
			}
			got, ok := p.Resolve(tt.phrase, tt.duration)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Resolve(%q, %d) = (%d, %v), want (%d, %v)", tt.phrase, tt.duration, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParser_Parse_LastNMinutes(t *testing.T) {
	p := NewParser()
	for _, d := range []int{600, 3600, 10800} {
		for n := 1; n <= 60; n++ {
			phrase := fmt.Sprintf("last %d minutes", n)
			want := max(0, d-n*60)
			if got := p.Parse(phrase, d); got != want {
				t.Errorf("Parse(%q, %d) = %d, want %d", phrase, d, got, want)
			}
		}
	}
}

func TestParser_Explain(t *testing.T) {
	p := NewParser()

	tests := []struct {
		phrase   string
		wantRule string
	}{
		{"10 minutes", "unqualified_minute"},
		{"first 3 hours", "first_window"},
		{"last 3 hours", "last_window"},
		{"after 3 hours", "after_offset"},
		{"before 3 hours", "before_offset"},
		{"2hr 30min", "composite"},
		{"1:00:00", "clock"},
		{"half an hour", "literal"},
	}

	for _, tt := range tests {
		t.Run(tt.phrase, func(t *testing.T) {
			rule, _, ok := p.Explain(tt.phrase, 10800)
			if !ok {
				t.Fatalf("Explain(%q) did not match", tt.phrase)
			}
			if rule != tt.wantRule {
				t.Errorf("Explain(%q) rule = %q, want %q", tt.phrase, rule, tt.wantRule)
			}
		})
	}
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		sec  int
		want string
	}{
		{0, "0:00:00"},
		{150, "0:02:30"},
		{3723, "1:02:03"},
		{-5, "0:00:00"},
	}
	for _, tt := range tests {
		if got := FormatSeconds(tt.sec); got != tt.want {
			t.Errorf("FormatSeconds(%d) = %q, want %q", tt.sec, got, tt.want)
		}
	}
}
