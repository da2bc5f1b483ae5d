// Package system provides the wall clock used outside of tests.
package system

import "time"

// Clock stamps index events and claim deadlines.
type Clock struct{}

// New returns the wall clock.
func New() *Clock {
	return &Clock{}
}

// Now reports wall time in UTC so event timestamps compare across hosts.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
