// Package pool provides a shared pool of reusable timers for the polling
// paths that would otherwise allocate one timer per wait.
package pool

import (
	"sync"
	"time"
)

var timerPool sync.Pool

// GetTimer returns a timer armed with duration d. Return it with PutTimer
// once the wait is over.
func GetTimer(d time.Duration) *time.Timer {
	if v := timerPool.Get(); v != nil {
		t := v.(*time.Timer)
		if t.Reset(d) {
			// the timer was still armed; drain a stale tick
			select {
			case <-t.C:
			default:
			}
		}
		return t
	}
	return time.NewTimer(d)
}

// PutTimer stops the timer and returns it to the pool. The timer must not be
// touched afterwards.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	timerPool.Put(t)
}
