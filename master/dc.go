package master

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/openecat/go-ecat/ecat"
)

// dcSyncEnable activates the cyclic generation unit and the SYNC0 pulse.
const dcSyncEnable = 0x03

// ConfigDC aligns the distributed clocks of the segment. A broadcast write
// latches every device's receive time; the first device becomes the
// reference clock, every other device is programmed with its propagation
// delay along the forward path and a system time offset that zeroes its
// difference to the reference.
func (m *Master) ConfigDC() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if !m.scanned {
		return ErrNotScanned
	}

	if _, err := m.bwr(ecat.RegDCRecvTimeA, make([]byte, 4)); err != nil {
		return err
	}

	var refRecv uint32
	var refSys uint64
	for i, d := range m.devices {
		data, wkc, err := m.fprd(d.station, ecat.RegDCRecvTimeA, 4)
		if err != nil {
			return err
		}
		if wkc == 0 {
			return fmt.Errorf("device %d did not latch its receive time", d.pos)
		}
		recv := binary.LittleEndian.Uint32(data)

		sysData, _, err := m.fprd(d.station, ecat.RegDCSysTime, 8)
		if err != nil {
			return err
		}
		sys := binary.LittleEndian.Uint64(sysData)

		if i == 0 {
			refRecv, refSys = recv, sys
		}

		var delay [4]byte
		binary.LittleEndian.PutUint32(delay[:], recv-refRecv)
		if _, err := m.fpwr(d.station, ecat.RegDCSysDelay, delay[:]); err != nil {
			return err
		}

		var offset [8]byte
		binary.LittleEndian.PutUint64(offset[:], refSys-sys)
		if _, err := m.fpwr(d.station, ecat.RegDCSysTimeOffset, offset[:]); err != nil {
			return err
		}
	}

	m.logger.Info("distributed clocks configured", "devices", len(m.devices))

	return nil
}

// DCSync configures the device's distributed-clock SYNC0 pulse generator:
// active starts pulses with the given cycle time, the shift delays the first
// pulse relative to the cycle boundary. Inactive stops the generator.
// Devices without distributed-clock support ignore the registers; callers
// that depend on synchronization should verify the transition to SAFEOP
// afterwards.
func (d *Device) DCSync(active bool, cycleTime time.Duration, shift time.Duration) error {
	if active && (cycleTime <= 0 || cycleTime.Nanoseconds() > int64(^uint32(0))) {
		return fmt.Errorf("invalid SYNC0 cycle time %v", cycleTime)
	}

	// Stop the generator before reprogramming it.
	if _, err := d.m.fpwrU8(d.station, ecat.RegDCSyncAct, 0); err != nil {
		return err
	}
	if !active {
		return nil
	}

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(shift.Nanoseconds()))
	if _, err := d.m.fpwr(d.station, ecat.RegDCStartTime, buf[:]); err != nil {
		return err
	}

	binary.LittleEndian.PutUint32(buf[:], uint32(cycleTime.Nanoseconds()))
	if _, err := d.m.fpwr(d.station, ecat.RegDCCycle0, buf[:]); err != nil {
		return err
	}

	_, err := d.m.fpwrU8(d.station, ecat.RegDCSyncAct, dcSyncEnable)

	return err
}
