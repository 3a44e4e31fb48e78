package ports

import "time"

// Clock provides the wall-clock instant of the current call.
type Clock interface {
	Now() time.Time
}
