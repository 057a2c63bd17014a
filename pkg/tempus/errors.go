package tempus

import "errors"

// Registration errors. They are returned synchronously by the Schedule* calls,
// usually wrapped with more context; match them with errors.Is.
var (
	ErrEmptyPattern        = errors.New("tempus: no pattern was specified")
	ErrNilHandler          = errors.New("tempus: no handler was specified")
	ErrInvalidPattern      = errors.New("tempus: invalid pattern")
	ErrNilType             = errors.New("tempus: no job type was specified")
	ErrNotJob              = errors.New("tempus: type does not implement Job")
	ErrDuplicateType       = errors.New("tempus: job type is already scheduled")
	ErrConflictingSchedule = errors.New("tempus: cron and once declarations are mutually exclusive")
	ErrInvalidPolicy       = errors.New("tempus: unknown overlap policy")
)
