package master

import (
	"errors"
	"time"

	"github.com/openecat/go-ecat/ecat"
)

// WriteState requests an application-layer state on one device without
// waiting for the transition to complete. When the device currently reports
// an error, the error is acknowledged first, as slaves ignore state requests
// while the error indication is pending.
func (m *Master) WriteState(d *Device, state ecat.DeviceState) error {
	cur, code, err := m.readDeviceState(d)
	if err == nil && cur.HasError() {
		m.logger.Debug("acknowledging device error before transition",
			"pos", d.pos, "state", cur.String(), "code", code)
		if _, err := m.fpwrU16(d.station, ecat.RegALControl, uint16(cur.WithAck())); err != nil {
			return err
		}
	}

	_, err = m.fpwrU16(d.station, ecat.RegALControl, uint16(state.Base()))

	return err
}

// readDeviceState reads one device's AL status and status code and records
// them on the device. A device that does not answer reports StateNone.
func (m *Master) readDeviceState(d *Device) (ecat.DeviceState, uint16, error) {
	status, wkc, err := m.fprdU16(d.station, ecat.RegALStatus)
	if err != nil {
		if errors.Is(err, ecat.ErrFrameTimeout) {
			d.setState(ecat.StateNone, 0)
			return ecat.StateNone, 0, nil
		}
		return ecat.StateNone, 0, err
	}
	if wkc == 0 {
		d.setState(ecat.StateNone, 0)
		return ecat.StateNone, 0, nil
	}

	state := ecat.DeviceState(status)
	var code uint16
	if state.HasError() {
		code, _, err = m.fprdU16(d.station, ecat.RegALStatusCode)
		if err != nil && !errors.Is(err, ecat.ErrFrameTimeout) {
			return ecat.StateNone, 0, err
		}
	}
	d.setState(state, code)

	return state, code, nil
}

// ReadState refreshes the observed state of every device and returns the
// lowest state found on the bus. Devices that do not answer count as
// StateNone.
func (m *Master) ReadState() (ecat.DeviceState, error) {
	m.opMu.Lock()
	devices := make([]*Device, len(m.devices))
	copy(devices, m.devices)
	m.opMu.Unlock()

	if len(devices) == 0 {
		return ecat.StateNone, ErrNotScanned
	}

	lowest := ecat.StateOp
	for _, d := range devices {
		state, _, err := m.readDeviceState(d)
		if err != nil {
			return ecat.StateNone, err
		}
		if state.Base() < lowest.Base() || state == ecat.StateNone {
			lowest = state.Base()
		}
	}

	return lowest, nil
}

// stateCheck polls one device until it reaches the wanted base state or the
// timeout elapses, and returns the last observed state.
func (m *Master) stateCheck(d *Device, want ecat.DeviceState, timeout time.Duration) ecat.DeviceState {
	deadline := time.Now().Add(timeout)
	last := ecat.StateNone
	for {
		state, _, err := m.readDeviceState(d)
		if err == nil {
			last = state
			if state.Base() == want.Base() && !state.HasError() {
				return state
			}
		}
		if time.Now().After(deadline) {
			return last
		}
		time.Sleep(time.Millisecond)
	}
}

// RequestState requests an application-layer state on every device and waits
// for each to confirm. Devices transition independently: one device failing
// or timing out does not keep the others from reaching the target. The
// aggregate outcome is reported per device in the TransitionResult.
//
// Entering OP additionally requires a mapped process image and at least one
// exchanged cycle, since slaves refuse OP while their outputs were never
// written; callers normally run one ExchangeProcessData before requesting OP.
func (m *Master) RequestState(state ecat.DeviceState) (*TransitionResult, error) {
	m.opMu.Lock()
	devices := make([]*Device, len(m.devices))
	copy(devices, m.devices)
	m.opMu.Unlock()

	if len(devices) == 0 {
		return nil, ErrNotScanned
	}

	for _, d := range devices {
		if err := m.WriteState(d, state); err != nil {
			return nil, err
		}
	}

	result := &TransitionResult{AllReached: true}
	for _, d := range devices {
		got := m.stateCheck(d, state, m.cfg.settings.StateTimeout)
		if got.Base() == state.Base() && !got.HasError() {
			continue
		}

		result.AllReached = false
		result.Failed = append(result.Failed, FailedTransition{
			Pos:        d.pos,
			State:      got,
			StatusCode: d.ALStatusCode(),
		})
		m.logger.Warn("device missed requested state",
			"pos", d.pos, "requested", state.String(), "actual", got.String(),
			"status", ecat.ALStatusCodeString(d.ALStatusCode()))
	}

	if state.Base() == ecat.StateOp {
		m.inOp.Store(result.AllReached)
	} else {
		m.inOp.Store(false)
	}

	return result, nil
}
