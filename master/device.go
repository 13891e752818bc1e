package master

import (
	"sync"
	"sync/atomic"

	"github.com/openecat/go-ecat/coe"
	"github.com/openecat/go-ecat/ecat"
	"github.com/openecat/go-ecat/eoe"
)

// Identity is the device identity read from the SII configuration area.
type Identity struct {
	VendorID    uint32
	ProductCode uint32
	Revision    uint32
	Serial      uint32
}

// mailboxInfo is the mailbox bootstrap info read from the SII. Sizes of zero
// mean the device has no mailbox.
type mailboxInfo struct {
	rxAddr uint16
	rxSize uint16
	txAddr uint16
	txSize uint16
	protos uint16
}

// ConfigFunc customizes one device between the bus scan and the process-data
// mapping, while the device sits in PREOP. It typically writes CoE startup
// parameters. A non-nil error aborts the whole mapping with a ConfigMapError.
type ConfigFunc func(d *Device) error

// Device is one slave on the segment. It is created by the bus scan and stays
// valid until the next scan or Close; a device that drops off the bus is
// flagged lost, not removed.
type Device struct {
	m   *Master
	pos int

	station  uint16
	identity Identity
	name     string

	mbx    mailboxInfo
	mbxCnt ecat.MailboxCounter
	eoeAsm eoe.Assembler
	eoeCnt eoe.FrameCounter

	// outputBits and inputBits are the process-data sizes from the SII.
	outputBits uint16
	inputBits  uint16

	// Offsets into the master's process image and into the logical address
	// space of the cyclic frame, filled by mapping.
	outputOffset  int
	outputLen     int
	inputOffset   int
	inputLen      int
	logicalOutOff int
	logicalInOff  int

	stateMu sync.Mutex
	state   ecat.DeviceState
	alCode  uint16

	lost atomic.Bool

	// ConfigFunc, when set before mapping, is called during ConfigMap.
	ConfigFunc ConfigFunc

	odMu     sync.Mutex
	odCache  []coe.Object
	odLoaded bool
}

// Pos returns the device's position on the bus, counted from the master.
func (d *Device) Pos() int { return d.pos }

// Station returns the configured station address assigned during the scan.
func (d *Device) Station() uint16 { return d.station }

// Identity returns the SII identity of the device.
func (d *Device) Identity() Identity { return d.identity }

// Name returns the device name read over CoE during the scan, or an empty
// string for devices without a CoE name object.
func (d *Device) Name() string { return d.name }

// State returns the last application-layer state observed by the master.
// It does not touch the bus; use Master.ReadState to refresh.
func (d *Device) State() ecat.DeviceState {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()

	return d.state
}

// ALStatusCode returns the AL status code captured with the last observed
// state. It is meaningful after a failed or error-flagged transition.
func (d *Device) ALStatusCode() uint16 {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()

	return d.alCode
}

func (d *Device) setState(s ecat.DeviceState, code uint16) {
	d.stateMu.Lock()
	d.state = s
	d.alCode = code
	d.stateMu.Unlock()
}

// Lost reports whether the supervisory loop currently considers the device
// absent from the bus.
func (d *Device) Lost() bool { return d.lost.Load() }

// OutputBits and InputBits return the device's process-data sizes in bits.
func (d *Device) OutputBits() int { return int(d.outputBits) }
func (d *Device) InputBits() int  { return int(d.inputBits) }

// Outputs returns the device's output slice of the process image. Writing to
// it sets the values commanded in the next cycle. It is nil before mapping
// and for devices without outputs.
func (d *Device) Outputs() []byte {
	if d.outputLen == 0 || d.m.image == nil {
		return nil
	}

	return d.m.image[d.outputOffset : d.outputOffset+d.outputLen]
}

// Inputs returns the device's input slice of the process image, refreshed by
// every completed cycle. It is nil before mapping and for devices without
// inputs.
func (d *Device) Inputs() []byte {
	if d.inputLen == 0 || d.m.image == nil {
		return nil
	}

	return d.m.image[d.inputOffset : d.inputOffset+d.inputLen]
}

// SupportsCoE reports whether the device's mailbox speaks the CAN application
// protocol.
func (d *Device) SupportsCoE() bool { return d.mbx.protos&ecat.MailboxProtoCoE != 0 }

// SupportsFoE reports whether the device's mailbox speaks file access.
func (d *Device) SupportsFoE() bool { return d.mbx.protos&ecat.MailboxProtoFoE != 0 }

// SupportsEoE reports whether the device's mailbox tunnels Ethernet.
func (d *Device) SupportsEoE() bool { return d.mbx.protos&ecat.MailboxProtoEoE != 0 }

// hasMailbox reports whether the SII declared mailbox buffers at all.
func (d *Device) hasMailbox() bool { return d.mbx.rxSize != 0 && d.mbx.txSize != 0 }

// ObjectDirectory returns the device's CoE object directory, read over SDO
// information services on first use and cached. Concurrent first calls share
// one bus read. The cache is invalidated by Reconfig.
func (d *Device) ObjectDirectory() ([]coe.Object, error) {
	d.odMu.Lock()
	defer d.odMu.Unlock()

	if d.odLoaded {
		return d.odCache, nil
	}

	od, err := coe.ReadObjectDirectory(d, d.m.cfg.settings.SdoReadTimeout)
	if err != nil {
		return nil, err
	}
	d.odCache = od
	d.odLoaded = true

	return od, nil
}

// invalidateOD drops the cached object directory.
func (d *Device) invalidateOD() {
	d.odMu.Lock()
	d.odCache = nil
	d.odLoaded = false
	d.odMu.Unlock()
}
