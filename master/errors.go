package master

import (
	"errors"
	"fmt"
	"strings"

	"github.com/openecat/go-ecat/ecat"
)

var (
	// ErrNoDevicesFound indicates that a bus scan got no reply from any slave.
	ErrNoDevicesFound = errors.New("no devices found on the segment")

	// ErrNotOpen indicates that the master has no transport attached.
	ErrNotOpen = errors.New("master is not open")

	// ErrNotScanned indicates that an operation requires a completed bus scan.
	ErrNotScanned = errors.New("bus has not been scanned")

	// ErrNotMapped indicates that an operation requires a completed process-data mapping.
	ErrNotMapped = errors.New("process data has not been mapped")

	// ErrWatchdogRange indicates a watchdog time beyond the representable maximum.
	ErrWatchdogRange = errors.New("watchdog time is limited to 6553.5 ms")

	// ErrStateTimeout indicates that a slave did not reach the requested
	// application-layer state within the timeout. TransitionResult.Err wraps
	// it when any device missed the requested state.
	ErrStateTimeout = errors.New("state transition timeout")
)

// ConfigMapError is a failure of a device configuration callback during
// process-data mapping. It aborts mapping for the whole bus.
type ConfigMapError struct {
	Pos int
	Err error
}

func (e *ConfigMapError) Error() string {
	return fmt.Sprintf("config function of slave %d failed: %v", e.Pos, e.Err)
}

func (e *ConfigMapError) Unwrap() error { return e.Err }

// FailedTransition describes one device that missed a requested state.
type FailedTransition struct {
	Pos        int
	State      ecat.DeviceState
	StatusCode uint16
}

func (f *FailedTransition) String() string {
	return fmt.Sprintf("slave %d in %s (AL status 0x%04X: %s)",
		f.Pos, f.State, f.StatusCode, ecat.ALStatusCodeString(f.StatusCode))
}

// TransitionResult is the aggregate outcome of a bus-wide state request.
type TransitionResult struct {
	// AllReached is true when every device reached the requested state.
	AllReached bool
	// Failed lists the devices that did not, with their reported state and
	// AL status code.
	Failed []FailedTransition
}

// Err returns nil when every device reached the requested state, and an
// error wrapping ErrStateTimeout that lists the failed devices otherwise.
func (r *TransitionResult) Err() error {
	if r.AllReached {
		return nil
	}

	parts := make([]string, len(r.Failed))
	for i := range r.Failed {
		parts[i] = r.Failed[i].String()
	}

	return fmt.Errorf("%w: %s", ErrStateTimeout, strings.Join(parts, "; "))
}
