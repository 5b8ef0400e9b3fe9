package query

import "testing"

func TestParser_ExtractPoint(t *testing.T) {
	p := NewParser()

	tests := []struct {
		name      string
		utterance string
		want      TimeReference
	}{
		{"at_clock_is_minutes_seconds", "at 2:30", Instant{Seconds: 150}},
		{"at_long_clock", "what happens at 1:02:03?", Instant{Seconds: 3723}},
		{"ordinal_minute", "what is said in the 5th minute", Minute{N: 5}},
		{"minute_mark", "around the 12 minute mark", Minute{N: 12}},
		{"minute_number", "summarize minute 7", Minute{N: 7}},
		{"at_minutes", "what did she say at 12 minutes", Minute{N: 12}},
		{"last_minute", "what did they say in the last minute?", RelativeLastMinute{}},
		{"none", "hello there", None{}},
		{"empty", "", None{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.ExtractPoint(tt.utterance)
			if got != tt.want {
				t.Errorf("ExtractPoint(%q) = %#v, want %#v", tt.utterance, got, tt.want)
			}
		})
	}
}

func TestParser_Extract_RangeBeatsPoint(t *testing.T) {
	p := NewParser()

	got := p.Extract("compare the first 5 minutes with the 8th minute", 3600)
	if got.Kind() != KindRange {
		t.Fatalf("Extract() kind = %v, want range", got.Kind())
	}
	if r := got.(Range); r.Start != 0 || r.End != 300 {
		t.Errorf("Extract() = %+v, want {0 300}", r)
	}

	if got := p.Extract("at 2:30", 3600); got != (Instant{Seconds: 150}) {
		t.Errorf("Extract(\"at 2:30\") = %#v, want Instant{150}", got)
	}
	if got := p.Extract("what is this about?", 3600); got.Kind() != KindNone {
		t.Errorf("Extract() kind = %v, want none", got.Kind())
	}
}

func TestTimeReference_String(t *testing.T) {
	tests := []struct {
		ref  TimeReference
		want string
	}{
		{None{}, "none"},
		{Instant{Seconds: 150}, "at 0:02:30"},
		{Minute{N: 3}, "minute 3"},
		{Range{Start: 3600, End: 5400}, "1:00:00 - 1:30:00"},
		{RelativeLastMinute{}, "last minute"},
	}
	for _, tt := range tests {
		if got := tt.ref.String(); got != tt.want {
			t.Errorf("%#v.String() = %q, want %q", tt.ref, got, tt.want)
		}
	}
}
