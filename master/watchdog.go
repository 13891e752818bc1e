package master

import (
	"fmt"
	"math"

	"github.com/openecat/go-ecat/ecat"
)

// WatchdogKind selects which of a device's watchdogs to configure.
type WatchdogKind int

const (
	// WatchdogPDI supervises the device-local application interface.
	WatchdogPDI WatchdogKind = iota
	// WatchdogProcessData supervises the arrival of output process data.
	WatchdogProcessData
)

func (k WatchdogKind) register() (uint16, error) {
	switch k {
	case WatchdogPDI:
		return ecat.RegWatchdogTimePDI, nil
	case WatchdogProcessData:
		return ecat.RegWatchdogTimeProcessData, nil
	default:
		return 0, fmt.Errorf("unknown watchdog kind %d", k)
	}
}

// SetWatchdog programs one of the device's watchdog times, given in
// milliseconds. Zero disables the watchdog.
//
// The time is quantized to the device's watchdog tick, derived from its
// divider register; with the default divider one tick is 100 us. When the
// requested time does not land on a tick boundary the next lower boundary is
// applied and a warning is logged. Times beyond the 16-bit tick counter
// return ErrWatchdogRange.
func (d *Device) SetWatchdog(kind WatchdogKind, timeMs float64) error {
	reg, err := kind.register()
	if err != nil {
		return err
	}
	if timeMs < 0 {
		return fmt.Errorf("negative watchdog time %v ms", timeMs)
	}

	tickNs, err := d.watchdogTickNs()
	if err != nil {
		return err
	}

	// truncate to the tick boundary below the requested time
	ticks := math.Floor(timeMs * 1e6 / float64(tickNs))
	if ticks > math.MaxUint16 {
		return ErrWatchdogRange
	}

	applied := ticks * float64(tickNs) / 1e6
	if applied != timeMs {
		d.m.logger.Warn("watchdog time truncated to tick boundary",
			"pos", d.pos, "requested_ms", timeMs, "applied_ms", applied)
	}

	_, err = d.m.fpwrU16(d.station, reg, uint16(ticks))

	return err
}

// Watchdog reads back one of the device's watchdog times in milliseconds.
func (d *Device) Watchdog(kind WatchdogKind) (float64, error) {
	reg, err := kind.register()
	if err != nil {
		return 0, err
	}

	tickNs, err := d.watchdogTickNs()
	if err != nil {
		return 0, err
	}

	ticks, wkc, err := d.m.fprdU16(d.station, reg)
	if err != nil {
		return 0, err
	}
	if wkc == 0 {
		return 0, ecat.ErrFrameTimeout
	}

	return float64(ticks) * float64(tickNs) / 1e6, nil
}

// watchdogTickNs derives the watchdog tick duration from the device's
// divider register.
func (d *Device) watchdogTickNs() (uint32, error) {
	div, wkc, err := d.m.fprdU16(d.station, ecat.RegWatchdogDivider)
	if err != nil {
		return 0, err
	}
	if wkc == 0 {
		return 0, ecat.ErrFrameTimeout
	}

	return (uint32(div) + 2) * ecat.WatchdogBaseNs, nil
}
