package tempus

import (
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Declaration is the schedule configuration of a typed job.
//
// At most one of Cron and Once may be set. With neither set the job runs
// once, immediately.
type Declaration struct {
	Cron    string
	Once    time.Time
	Overlap OverlapPolicy
}

// Pattern resolves the declaration into a pattern string.
func (d Declaration) Pattern() (string, error) {
	cronSet := strings.TrimSpace(d.Cron) != ""
	onceSet := !d.Once.IsZero()
	switch {
	case cronSet && onceSet:
		return "", ErrConflictingSchedule
	case onceSet:
		return OncePattern(d.Once), nil
	case cronSet:
		return d.Cron, nil
	default:
		return PatternImmediately, nil
	}
}

// Declarer is implemented by job types that carry their own schedule.
//
//	type Cleanup struct{ /* ... */ }
//
//	func (Cleanup) Declaration() tempus.Declaration {
//		return tempus.Declaration{Cron: "0 */5 * * * *", Overlap: tempus.OverlapSkip}
//	}
type Declarer interface {
	Declaration() Declaration
}

// DeclarationOf reads the declaration of t (or *t). Types that do not
// implement Declarer get the zero Declaration.
func DeclarationOf(t reflect.Type) (Declaration, error) {
	if t == nil {
		return Declaration{}, ErrNilType
	}
	var v reflect.Value
	switch t.Kind() {
	case reflect.Interface:
		return Declaration{}, nil
	case reflect.Pointer:
		v = reflect.New(t.Elem())
	default:
		v = reflect.New(t)
		if d, ok := v.Elem().Interface().(Declarer); ok {
			return d.Declaration(), nil
		}
	}
	if d, ok := v.Interface().(Declarer); ok {
		return d.Declaration(), nil
	}
	return Declaration{}, nil
}

// Register schedules the job type T using its declared metadata.
func Register[T any](s *Scheduler) (uuid.UUID, error) {
	return s.ScheduleType(reflect.TypeFor[T]())
}
