// Package system provides the wall clock used outside tests.
package system

import "time"

// Clock reports the current time in UTC, the zone every job and archive
// timestamp is stored in.
type Clock struct{}

// New returns a Clock.
func New() Clock {
	return Clock{}
}

// Now implements jobs.Clock.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
