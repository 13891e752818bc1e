package master

import (
	"fmt"

	"github.com/openecat/go-ecat/ecat"
)

// recoveryTask is the body of the supervisory loop. It stays idle until a
// cycle reports a degraded working counter while the bus is in OP, then walks
// every device and applies the recovery ladder: acknowledge errors, nudge
// SAFEOP devices back to OP, reconfigure devices that fell further, and flag
// devices that stopped answering as lost until they reappear.
func (m *Master) recoveryTask() bool {
	if !m.inOp.Load() || !m.doCheckState.Load() {
		return true
	}
	m.doCheckState.Store(false)

	m.opMu.Lock()
	devices := make([]*Device, len(m.devices))
	copy(devices, m.devices)
	m.opMu.Unlock()

	allOp := true
	for _, d := range devices {
		m.checkDevice(d)
		if d.Lost() || d.State().Base() != ecat.StateOp {
			allOp = false
		}
	}

	if allOp {
		m.logger.Info("all devices resumed OP")
	} else {
		// keep checking on the next tick
		m.doCheckState.Store(true)
	}

	return true
}

func (m *Master) checkDevice(d *Device) {
	state, code, err := m.readDeviceState(d)
	if err != nil {
		m.logger.Error("state read failed during recovery", "pos", d.pos, "error", err)
		return
	}

	switch {
	case state.Base() == ecat.StateOp && !state.HasError():
		// healthy

	case state == ecat.StateSafeOp|ecat.StateError:
		m.logger.Warn("device in SAFEOP with error, acknowledging",
			"pos", d.pos, "status", ecat.ALStatusCodeString(code))
		if err := m.WriteState(d, ecat.StateOp); err != nil {
			m.logger.Error("error acknowledge failed", "pos", d.pos, "error", err)
		}

	case state.Base() == ecat.StateSafeOp:
		m.logger.Warn("device dropped to SAFEOP, requesting OP", "pos", d.pos)
		if err := m.WriteState(d, ecat.StateOp); err != nil {
			m.logger.Error("state request failed", "pos", d.pos, "error", err)
		}

	case state != ecat.StateNone:
		// Answering but fell back further than SAFEOP: full reconfiguration.
		if err := m.reconfigDevice(d); err != nil {
			m.logger.Error("reconfiguration failed", "pos", d.pos, "error", err)
		} else {
			d.lost.Store(false)
			m.logger.Info("device reconfigured", "pos", d.pos)
		}

	case !d.lost.Load():
		// No answer at all. Confirm before declaring it lost.
		if recheck, _, err := m.readDeviceState(d); err == nil && recheck == ecat.StateNone {
			d.lost.Store(true)
			m.logger.Error("device lost", "pos", d.pos)
		}
	}

	if d.lost.Load() {
		if state != ecat.StateNone {
			d.lost.Store(false)
			m.logger.Info("device found", "pos", d.pos)
		} else if err := m.recoverDevice(d); err == nil {
			d.lost.Store(false)
			m.logger.Info("device recovered", "pos", d.pos)
		}
	}
}

// recoverDevice restores a device that rebooted and forgot its configured
// station address: it is re-addressed by bus position and then reconfigured.
func (m *Master) recoverDevice(d *Device) error {
	data, wkc, err := m.aprd(uint16(d.pos), ecat.RegStationAddr, 2)
	if err != nil {
		return err
	}
	if wkc == 0 {
		return fmt.Errorf("no device at position %d", d.pos)
	}

	current := uint16(data[0]) | uint16(data[1])<<8
	if current != d.station {
		var addr [2]byte
		addr[0] = byte(d.station)
		addr[1] = byte(d.station >> 8)
		if _, err := m.apwr(uint16(d.pos), ecat.RegStationAddr, addr[:]); err != nil {
			return err
		}
	}

	return m.reconfigDevice(d)
}

// reconfigDevice walks one device back up the state ladder: INIT, PREOP with
// the configuration callback re-applied, sync manager and FMMU setup, SAFEOP
// and, when the bus is operational, OP.
func (m *Master) reconfigDevice(d *Device) error {
	d.invalidateOD()

	if err := m.WriteState(d, ecat.StateInit); err != nil {
		return err
	}
	if got := m.stateCheck(d, ecat.StateInit, m.cfg.settings.StateTimeout); got.Base() != ecat.StateInit {
		return fmt.Errorf("device %d stuck in %s on the way to INIT", d.pos, got)
	}

	if err := m.WriteState(d, ecat.StatePreOp); err != nil {
		return err
	}
	if got := m.stateCheck(d, ecat.StatePreOp, m.cfg.settings.StateTimeout); got.Base() != ecat.StatePreOp {
		return fmt.Errorf("device %d stuck in %s on the way to PREOP", d.pos, got)
	}

	if d.ConfigFunc != nil {
		if err := d.ConfigFunc(d); err != nil {
			return &ConfigMapError{Pos: d.pos, Err: err}
		}
	}

	if err := m.programMapping(d); err != nil {
		return err
	}

	if err := m.WriteState(d, ecat.StateSafeOp); err != nil {
		return err
	}
	if got := m.stateCheck(d, ecat.StateSafeOp, m.cfg.settings.StateTimeout); got.Base() != ecat.StateSafeOp {
		return fmt.Errorf("device %d stuck in %s on the way to SAFEOP", d.pos, got)
	}

	if m.inOp.Load() {
		if err := m.WriteState(d, ecat.StateOp); err != nil {
			return err
		}
		if got := m.stateCheck(d, ecat.StateOp, m.cfg.settings.StateTimeout); got.Base() != ecat.StateOp {
			return fmt.Errorf("device %d stuck in %s on the way to OP", d.pos, got)
		}
	}

	return nil
}

// Reconfig re-runs the device's full bring-up: INIT through SAFEOP (and OP
// when the bus is operational), re-applying the configuration callback and
// the process-data mapping. The cached object directory is dropped.
func (d *Device) Reconfig() error {
	return d.m.reconfigDevice(d)
}

// Recover re-addresses a device that rebooted on the bus and then runs
// Reconfig. It only works while the device's bus position is unchanged.
func (d *Device) Recover() error {
	return d.m.recoverDevice(d)
}
