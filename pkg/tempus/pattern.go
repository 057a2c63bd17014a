package tempus

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// PatternImmediately schedules a single run as soon as possible.
const PatternImmediately = "@immediately"

const oncePrefix = "@once "

// Six fields, seconds first. Descriptors (@hourly, @every 5s, ...) are accepted too.
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Zone-less layouts are read as UTC.
var onceLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parsedPattern is the resolved form of a pattern string.
type parsedPattern struct {
	kind Kind
	at   time.Time     // KindOnce
	cron cron.Schedule // KindRecurring
}

func parsePattern(raw string) (parsedPattern, error) {
	if strings.TrimSpace(raw) == "" {
		return parsedPattern{}, ErrEmptyPattern
	}
	if raw == PatternImmediately {
		return parsedPattern{kind: KindImmediate}, nil
	}
	if strings.HasPrefix(raw, oncePrefix) {
		at, err := parseOnce(raw[len(oncePrefix):])
		if err != nil {
			return parsedPattern{}, fmt.Errorf("%w %q: %v", ErrInvalidPattern, raw, err)
		}
		return parsedPattern{kind: KindOnce, at: at}, nil
	}
	sched, err := cronParser.Parse(raw)
	if err != nil {
		return parsedPattern{}, fmt.Errorf("%w %q: %v", ErrInvalidPattern, raw, err)
	}
	return parsedPattern{kind: KindRecurring, cron: sched}, nil
}

func parseOnce(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, fmt.Errorf("timestamp required after %q", strings.TrimSpace(oncePrefix))
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range onceLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q (use ISO-8601, e.g. 2006-01-02T15:04:05Z)", v)
}

// first returns the initial next-due instant for an entry registered at now.
func (p parsedPattern) first(now time.Time) time.Time {
	switch p.kind {
	case KindImmediate:
		return now.UTC()
	case KindOnce:
		return p.at
	default:
		return p.cron.Next(now.UTC())
	}
}

// OncePattern formats the "@once" pattern for the given instant.
func OncePattern(at time.Time) string {
	return oncePrefix + at.UTC().Format(time.RFC3339Nano)
}

// ValidatePattern reports whether pattern would be accepted by Schedule.
func ValidatePattern(pattern string) error {
	_, err := parsePattern(pattern)
	return err
}

// NextOccurrences returns up to n upcoming due instants of pattern after from.
// One-shot patterns yield at most one instant.
func NextOccurrences(pattern string, from time.Time, n int) ([]time.Time, error) {
	p, err := parsePattern(pattern)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	from = from.UTC()
	switch p.kind {
	case KindImmediate:
		return []time.Time{from}, nil
	case KindOnce:
		return []time.Time{p.at}, nil
	}
	out := make([]time.Time, 0, n)
	t := from
	for i := 0; i < n; i++ {
		t = p.cron.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out, nil
}
