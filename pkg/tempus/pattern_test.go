package tempus

import (
	"errors"
	"testing"
	"time"
)

func TestParsePatternKinds(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		kind Kind
		at   time.Time
	}{
		{name: "immediately", raw: "@immediately", kind: KindImmediate},
		{name: "once rfc3339", raw: "@once 2030-01-01T00:00:00Z", kind: KindOnce, at: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)},
		{name: "once offset", raw: "@once 2030-01-01T02:00:00+02:00", kind: KindOnce, at: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)},
		{name: "once fractional", raw: "@once 2030-01-01T00:00:00.25Z", kind: KindOnce, at: time.Date(2030, 1, 1, 0, 0, 0, 250_000_000, time.UTC)},
		{name: "once no zone", raw: "@once 2030-01-01T12:30:15", kind: KindOnce, at: time.Date(2030, 1, 1, 12, 30, 15, 0, time.UTC)},
		{name: "once space separated", raw: "@once 2030-01-01 12:30", kind: KindOnce, at: time.Date(2030, 1, 1, 12, 30, 0, 0, time.UTC)},
		{name: "once date only", raw: "@once 2030-01-01", kind: KindOnce, at: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)},
		{name: "cron six fields", raw: "*/10 * * * * *", kind: KindRecurring},
		{name: "cron descriptor", raw: "@hourly", kind: KindRecurring},
		{name: "cron every", raw: "@every 5s", kind: KindRecurring},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parsePattern(tt.raw)
			if err != nil {
				t.Fatalf("parsePattern(%q) error: %v", tt.raw, err)
			}
			if got.kind != tt.kind {
				t.Fatalf("kind = %v, want %v", got.kind, tt.kind)
			}
			if tt.kind == KindOnce && !got.at.Equal(tt.at) {
				t.Fatalf("at = %v, want %v", got.at, tt.at)
			}
			if tt.kind == KindRecurring && got.cron == nil {
				t.Fatal("expected a cron schedule")
			}
		})
	}
}

func TestParsePatternInvalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want error
	}{
		{raw: "", want: ErrEmptyPattern},
		{raw: "   ", want: ErrEmptyPattern},
		{raw: "* * *", want: ErrInvalidPattern},
		{raw: "*/5 * * * *", want: ErrInvalidPattern},
		{raw: "@once ", want: ErrInvalidPattern},
		{raw: "@once tomorrow", want: ErrInvalidPattern},
		{raw: "@immediately ", want: ErrInvalidPattern},
		{raw: "@sometimes", want: ErrInvalidPattern},
	}
	for _, tt := range tests {
		_, err := parsePattern(tt.raw)
		if !errors.Is(err, tt.want) {
			t.Fatalf("parsePattern(%q) error = %v, want %v", tt.raw, err, tt.want)
		}
		if err := ValidatePattern(tt.raw); !errors.Is(err, tt.want) {
			t.Fatalf("ValidatePattern(%q) error = %v, want %v", tt.raw, err, tt.want)
		}
	}
}

func TestOncePatternRoundTrip(t *testing.T) {
	t.Parallel()
	at := time.Date(2031, 6, 2, 10, 0, 0, 0, time.FixedZone("X", 3600))
	p, err := parsePattern(OncePattern(at))
	if err != nil {
		t.Fatalf("parsePattern error: %v", err)
	}
	if p.kind != KindOnce || !p.at.Equal(at) {
		t.Fatalf("got %v at %v, want once at %v", p.kind, p.at, at)
	}
}

func TestNextOccurrences(t *testing.T) {
	t.Parallel()
	from := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	got, err := NextOccurrences("0 0 * * * *", from, 3)
	if err != nil {
		t.Fatalf("NextOccurrences error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, ts := range got {
		want := from.Add(time.Duration(i+1) * time.Hour)
		if !ts.Equal(want) {
			t.Fatalf("occurrence %d = %v, want %v", i, ts, want)
		}
	}

	once, err := NextOccurrences("@once 2030-02-01", from, 5)
	if err != nil {
		t.Fatalf("NextOccurrences once error: %v", err)
	}
	if len(once) != 1 {
		t.Fatalf("once occurrences = %d, want 1", len(once))
	}
}
