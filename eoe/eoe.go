// Package eoe implements Ethernet over EtherCAT: tunneling of Ethernet
// frames through a slave's mailbox channel, fragment reassembly, a learning
// switch that routes frames between slaves and the host, and the IP
// parameter service.
package eoe

import (
	"encoding/binary"
	"fmt"

	"github.com/openecat/go-ecat/ecat"
)

// EoE frame types carried in the header's type field.
const (
	TypeFragment  = 0x0
	TypeInitReq   = 0x2
	TypeInitResp  = 0x3
	TypeGetIPReq  = 0x4
	TypeGetIPResp = 0x5
)

// headerSize is the byte size of the EoE header preceding fragment data.
const headerSize = 4

// fragmentGranularity is the unit of the offset/size field; every fragment
// except the last must be a multiple of it.
const fragmentGranularity = 32

type header struct {
	Type         uint8
	Port         uint8
	LastFragment bool
	Fragment     uint8 // fragment number within the frame
	OffsetOrSize uint8 // complete size (fragment 0) or offset, in 32-byte units
	FrameNumber  uint8
}

func (h *header) encode(payload []byte) []byte {
	buf := make([]byte, headerSize+len(payload))

	info1 := uint16(h.Type)&0x0F | uint16(h.Port&0x0F)<<4
	if h.LastFragment {
		info1 |= 1 << 8
	}
	binary.LittleEndian.PutUint16(buf[0:2], info1)

	info2 := uint16(h.Fragment)&0x3F | uint16(h.OffsetOrSize)<<6 | uint16(h.FrameNumber&0x0F)<<12
	binary.LittleEndian.PutUint16(buf[2:4], info2)

	copy(buf[headerSize:], payload)

	return buf
}

func decodeHeader(data []byte) (*header, []byte, error) {
	if len(data) < headerSize {
		return nil, nil, fmt.Errorf("%w: EoE header truncated", ecat.ErrInvalidMailboxFrame)
	}

	info1 := binary.LittleEndian.Uint16(data[0:2])
	info2 := binary.LittleEndian.Uint16(data[2:4])

	return &header{
		Type:         uint8(info1 & 0x0F),
		Port:         uint8(info1 >> 4 & 0x0F),
		LastFragment: info1&(1<<8) != 0,
		Fragment:     uint8(info2 & 0x3F),
		OffsetOrSize: uint8(info2 >> 6 & 0x3F),
		FrameNumber:  uint8(info2 >> 12),
	}, data[headerSize:], nil
}

// SendFrame tunnels one Ethernet frame to the slave, fragmenting it to the
// mailbox capacity. Fragments carry no response; errors surface only from the
// mailbox writes.
func SendFrame(mbx ecat.Mailbox, frame []byte, frameNumber uint8) error {
	segMax := mbx.Capacity() - headerSize
	if segMax <= 0 {
		return ecat.ErrMailboxUnsupported
	}
	// All fragments but the last must be 32-byte aligned.
	segMax -= segMax % fragmentGranularity
	if segMax <= 0 {
		return fmt.Errorf("%w: mailbox too small for EoE", ecat.ErrMailboxUnsupported)
	}

	totalBlocks := uint8((len(frame) + fragmentGranularity - 1) / fragmentGranularity)

	for offset, fragment := 0, uint8(0); ; fragment++ {
		n := min(len(frame)-offset, segMax)
		last := offset+n == len(frame)

		h := header{
			Type:         TypeFragment,
			LastFragment: last,
			Fragment:     fragment,
			FrameNumber:  frameNumber,
		}
		if fragment == 0 {
			h.OffsetOrSize = totalBlocks
		} else {
			h.OffsetOrSize = uint8(offset / fragmentGranularity)
		}

		err := mbx.Send(&ecat.MailboxFrame{Type: ecat.MailboxTypeEoE, Data: h.encode(frame[offset : offset+n])})
		if err != nil {
			return err
		}

		if last {
			return nil
		}
		offset += n
	}
}

// Assembler reassembles fragmented tunneled frames received from one slave.
// Fragments of a new frame number discard any incomplete previous frame.
type Assembler struct {
	frameNumber uint8
	buf         []byte
	active      bool
}

// Add consumes one received EoE mailbox payload. It returns the complete
// Ethernet frame when the payload finishes one, or nil while fragments are
// still outstanding. Non-fragment payloads are ignored.
func (a *Assembler) Add(data []byte) ([]byte, error) {
	h, payload, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}
	if h.Type != TypeFragment {
		return nil, nil
	}

	if h.Fragment == 0 {
		a.buf = a.buf[:0]
		a.frameNumber = h.FrameNumber
		a.active = true
	} else if !a.active || h.FrameNumber != a.frameNumber {
		// Stray continuation of a frame we never saw the start of.
		a.active = false
		return nil, nil
	}

	a.buf = append(a.buf, payload...)

	if h.LastFragment {
		frame := make([]byte, len(a.buf))
		copy(frame, a.buf)
		a.active = false
		return frame, nil
	}

	return nil, nil
}

// FrameFromMailbox extracts a complete tunneled frame from a received mailbox
// frame using the given assembler, if the frame carries EoE fragment data.
func FrameFromMailbox(a *Assembler, frame *ecat.MailboxFrame) ([]byte, error) {
	if frame == nil || frame.Type != ecat.MailboxTypeEoE {
		return nil, nil
	}
	return a.Add(frame.Data)
}

// FrameCounter cycles the 4-bit frame number carried in fragment headers.
// The zero value is ready to use; it is not safe for concurrent use.
type FrameCounter struct {
	n uint8
}

// Next returns the next frame number in the 0..15 cycle.
func (c *FrameCounter) Next() uint8 {
	c.n = (c.n + 1) & 0x0F
	return c.n
}
