package query

import "time"

type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Snapshot is the observable state of one cache entry. Data keeps the last
// successful value while a refetch is loading or after it failed.
type Snapshot struct {
	Data      any
	Err       error
	Status    Status
	Stale     bool
	UpdatedAt time.Time
}

func (s Snapshot) IsLoading() bool { return s.Status == StatusLoading }

// Data returns the snapshot value as T.
func Data[T any](s Snapshot) (T, bool) {
	v, ok := s.Data.(T)
	return v, ok
}
