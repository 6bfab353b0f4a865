package eventsourcing

import "time"

// TimeFunc is a function that returns the current time.
// It can be overridden in tests to pin event timestamps.
var TimeFunc = time.Now

// Now returns the current time using the configured TimeFunc.
func Now() time.Time {
	return TimeFunc()
}
