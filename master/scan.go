package master

import (
	"strings"

	"github.com/openecat/go-ecat/ecat"
)

// ConfigInit scans the segment: it counts the slaves, assigns configured
// station addresses in bus order, reads each slave's SII identity and mailbox
// bootstrap info and brings every slave to PREOP. It is idempotent; a rescan
// replaces the previous device collection and discards any mapping.
//
// Returns the number of devices found, or ErrNoDevicesFound for an empty
// segment.
func (m *Master) ConfigInit() (int, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	// Put the whole segment into INIT with errors acknowledged so the scan
	// starts from a known state regardless of what ran before.
	var ctl [2]byte
	ctl[0] = byte(ecat.StateInit | ecat.StateAck)
	if _, err := m.bwr(ecat.RegALControl, ctl[:]); err != nil {
		return 0, err
	}

	// The working counter of a broadcast read counts the slaves.
	_, wkc, err := m.brd(ecat.RegALStatus, 1)
	if err != nil {
		return 0, err
	}
	if wkc == 0 {
		return 0, ErrNoDevicesFound
	}
	count := int(wkc)
	m.logger.Info("bus scan", "devices", count)

	m.devices = nil
	m.mapped = false
	m.image = nil
	m.outSegs = nil
	m.inSegs = nil
	m.cycBuf = nil

	devices := make([]*Device, count)
	for i := 0; i < count; i++ {
		d := &Device{
			m:       m,
			pos:     i,
			station: m.cfg.stationBase + uint16(i),
			state:   ecat.StateInit,
		}
		devices[i] = d

		var addr [2]byte
		addr[0] = byte(d.station)
		addr[1] = byte(d.station >> 8)
		if _, err := m.apwr(uint16(i), ecat.RegStationAddr, addr[:]); err != nil {
			return 0, err
		}
	}

	for _, d := range devices {
		if err := m.readDeviceInfo(d); err != nil {
			return 0, err
		}
	}

	m.devices = devices
	m.scanned = true

	// PREOP enables the mailbox.
	for _, d := range devices {
		if err := m.WriteState(d, ecat.StatePreOp); err != nil {
			return 0, err
		}
	}
	for _, d := range devices {
		got := m.stateCheck(d, ecat.StatePreOp, m.cfg.settings.StateTimeout)
		if got.Base() != ecat.StatePreOp {
			m.logger.Warn("device did not reach PREOP during scan",
				"pos", d.pos, "state", got.String())
		}
	}

	for _, d := range devices {
		m.readDeviceName(d)
	}

	return count, nil
}

// readDeviceInfo reads a device's identity, mailbox bootstrap info and
// process-data sizes from the SII.
func (m *Master) readDeviceInfo(d *Device) error {
	var err error
	if d.identity.VendorID, err = m.eepromReadU32(d.station, ecat.SIIVendorID); err != nil {
		return err
	}
	if d.identity.ProductCode, err = m.eepromReadU32(d.station, ecat.SIIProductCode); err != nil {
		return err
	}
	if d.identity.Revision, err = m.eepromReadU32(d.station, ecat.SIIRevision); err != nil {
		return err
	}
	if d.identity.Serial, err = m.eepromReadU32(d.station, ecat.SIISerial); err != nil {
		return err
	}

	if d.mbx.rxAddr, err = m.eepromReadWord(d.station, ecat.SIIRxMailboxAddr); err != nil {
		return err
	}
	if d.mbx.rxSize, err = m.eepromReadWord(d.station, ecat.SIIRxMailboxSize); err != nil {
		return err
	}
	if d.mbx.txAddr, err = m.eepromReadWord(d.station, ecat.SIITxMailboxAddr); err != nil {
		return err
	}
	if d.mbx.txSize, err = m.eepromReadWord(d.station, ecat.SIITxMailboxSize); err != nil {
		return err
	}
	if d.hasMailbox() {
		if d.mbx.protos, err = m.eepromReadWord(d.station, ecat.SIIMailboxProto); err != nil {
			return err
		}
	}

	if d.outputBits, err = m.eepromReadWord(d.station, ecat.SIIOutputBits); err != nil {
		return err
	}
	if d.inputBits, err = m.eepromReadWord(d.station, ecat.SIIInputBits); err != nil {
		return err
	}

	m.logger.Debug("device info",
		"pos", d.pos, "station", d.station,
		"vendor", d.identity.VendorID, "product", d.identity.ProductCode,
		"outputBits", d.outputBits, "inputBits", d.inputBits,
		"mailbox", d.hasMailbox())

	return nil
}

// objDeviceName is the standard manufacturer device name object.
const objDeviceName uint16 = 0x1008

// readDeviceName fills the device name from its CoE dictionary. Failure is
// not an error; many devices have no dictionary.
func (m *Master) readDeviceName(d *Device) {
	if !d.SupportsCoE() {
		return
	}

	raw, err := d.SDOReadBytes(objDeviceName, 0)
	if err != nil {
		m.logger.Debug("device name read failed", "pos", d.pos, "error", err)
		return
	}
	d.name = strings.TrimRight(string(raw), "\x00")
}
