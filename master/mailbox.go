package master

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/openecat/go-ecat/coe"
	"github.com/openecat/go-ecat/ecat"
	"github.com/openecat/go-ecat/eoe"
	"github.com/openecat/go-ecat/foe"
)

// Device implements ecat.Mailbox on top of the register-level mailbox
// buffers declared in the SII.

// Send writes a request into the device's receive mailbox. A full mailbox
// rejects the write; it is retried until the mailbox timeout elapses.
func (d *Device) Send(req *ecat.MailboxFrame) error {
	if !d.hasMailbox() {
		return ecat.ErrMailboxUnsupported
	}

	if req.Counter == 0 {
		req.Counter = d.mbxCnt.Next()
	}
	buf, err := req.Encode(d.mbx.rxSize)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(d.m.cfg.settings.MailboxTimeout)
	for {
		wkc, err := d.m.fpwr(d.station, d.mbx.rxAddr, buf)
		if err != nil && !errors.Is(err, ecat.ErrFrameTimeout) {
			return err
		}
		if err == nil && wkc > 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return ecat.ErrMailboxTimeout
		}
		time.Sleep(d.m.cfg.settings.MailboxPollInterval)
	}
}

// Poll reads one pending frame from the device's send mailbox, waiting up to
// the timeout for one to appear.
func (d *Device) Poll(timeout time.Duration) (*ecat.MailboxFrame, error) {
	if !d.hasMailbox() {
		return nil, ecat.ErrMailboxUnsupported
	}

	deadline := time.Now().Add(timeout)
	for {
		buf, wkc, err := d.m.fprd(d.station, d.mbx.txAddr, int(d.mbx.txSize))
		if err != nil && !errors.Is(err, ecat.ErrFrameTimeout) {
			return nil, err
		}
		// wkc 0 or a zero length field both mean the send mailbox is empty
		if err == nil && wkc > 0 && len(buf) >= 2 && binary.LittleEndian.Uint16(buf[0:2]) != 0 {
			return ecat.DecodeMailboxFrame(buf)
		}
		if time.Now().After(deadline) {
			return nil, ecat.ErrMailboxTimeout
		}
		time.Sleep(d.m.cfg.settings.MailboxPollInterval)
	}
}

// Exchange sends a request and blocks until a response frame arrives in the
// send mailbox or the timeout elapses. The response is not guaranteed to
// answer the request: an emergency raised in between is returned instead, and
// the protocol layer on top decides how to treat it.
func (d *Device) Exchange(req *ecat.MailboxFrame, timeout time.Duration) (*ecat.MailboxFrame, error) {
	if err := d.Send(req); err != nil {
		return nil, err
	}

	return d.Poll(timeout)
}

// Capacity returns the payload capacity of one mailbox frame in either
// direction.
func (d *Device) Capacity() int {
	size := min(d.mbx.rxSize, d.mbx.txSize)
	if int(size) <= ecat.MailboxHeaderSize {
		return 0
	}

	return int(size) - ecat.MailboxHeaderSize
}

// Parameter access over the CAN application protocol. The calls block for at
// most the master's SDO timeouts; a device-raised emergency observed instead
// of the response surfaces as a *coe.Emergency error.

// SDORead reads the value of an object dictionary entry into buf and returns
// the number of bytes read.
func (d *Device) SDORead(index uint16, subindex uint8, buf []byte) (int, error) {
	return coe.Read(d, index, subindex, buf, d.m.cfg.settings.SdoReadTimeout)
}

// SDOReadBytes reads the value of an object dictionary entry into a freshly
// sized buffer.
func (d *Device) SDOReadBytes(index uint16, subindex uint8) ([]byte, error) {
	return coe.ReadBytes(d, index, subindex, d.m.cfg.settings.SdoReadTimeout)
}

// SDOWrite writes a value to an object dictionary entry.
func (d *Device) SDOWrite(index uint16, subindex uint8, data []byte) error {
	return coe.Write(d, index, subindex, data, d.m.cfg.settings.SdoWriteTimeout)
}

// File access. FoE transfers usually run with the device in BOOT state for
// firmware, or PREOP for ordinary files.

// FoERead reads the named file into buf and returns the number of bytes read.
func (d *Device) FoERead(name string, password uint32, buf []byte) (int, error) {
	return foe.Read(d, name, password, buf, d.m.cfg.settings.FoETimeout)
}

// FoEWrite writes data to the named file on the device.
func (d *Device) FoEWrite(name string, password uint32, data []byte) error {
	return foe.Write(d, name, password, data, d.m.cfg.settings.FoETimeout)
}

// Tunneled Ethernet.

// EoESetIP configures the device's virtual network port.
func (d *Device) EoESetIP(param *eoe.IPParam) error {
	return eoe.SetIP(d, param, d.m.cfg.settings.MailboxTimeout)
}

// EoEGetIP reads back the device's virtual network port configuration.
func (d *Device) EoEGetIP() (*eoe.IPParam, error) {
	return eoe.GetIP(d, d.m.cfg.settings.MailboxTimeout)
}

// SendEthernetFrame tunnels one Ethernet frame to the device, fragmenting as
// needed. It satisfies eoe.Port, so a Device can be attached to an
// eoe.Switch directly.
func (d *Device) SendEthernetFrame(frame []byte) error {
	return eoe.SendFrame(d, frame, d.eoeCnt.Next())
}

// MailboxEvent is one unsolicited frame drained from a device's send mailbox.
// Exactly one of the fields is set.
type MailboxEvent struct {
	// Emergency is a device-raised CoE emergency.
	Emergency *coe.Emergency
	// EthernetFrame is a fully reassembled tunneled Ethernet frame.
	EthernetFrame []byte
}

// MailboxReceive drains one pending unsolicited frame from the device's send
// mailbox. It returns (nil, nil) when the mailbox is empty or a tunneled
// fragment was consumed without completing a frame. Frames that belong to an
// in-flight request/response exchange should not be drained this way; call it
// only between parameter accesses.
func (d *Device) MailboxReceive() (*MailboxEvent, error) {
	frame, err := d.Poll(0)
	if err != nil {
		if errors.Is(err, ecat.ErrMailboxTimeout) {
			return nil, nil
		}
		return nil, err
	}

	switch frame.Type {
	case ecat.MailboxTypeCoE:
		if em, ok := coe.ParseEmergencyFrame(d.pos, frame); ok {
			d.m.logger.Warn("device emergency",
				"pos", d.pos, "code", em.ErrorCode, "register", em.ErrorReg)
			return &MailboxEvent{Emergency: em}, nil
		}
		d.m.logger.Debug("dropping unclaimed CoE frame", "pos", d.pos)
		return nil, nil

	case ecat.MailboxTypeEoE:
		full, err := eoe.FrameFromMailbox(&d.eoeAsm, frame)
		if err != nil {
			return nil, err
		}
		if full == nil {
			return nil, nil
		}
		return &MailboxEvent{EthernetFrame: full}, nil

	default:
		d.m.logger.Debug("dropping mailbox frame", "pos", d.pos, "type", frame.Type.String())
		return nil, nil
	}
}
