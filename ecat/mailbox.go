package ecat

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"
)

// MailboxType is the protocol discriminator carried in the low nibble of the
// mailbox header type field.
type MailboxType uint8

const (
	// MailboxTypeError is a mailbox-level error reply.
	MailboxTypeError MailboxType = 0x0
	// MailboxTypeEoE carries tunneled Ethernet frames.
	MailboxTypeEoE MailboxType = 0x2
	// MailboxTypeCoE carries CAN application protocol services (SDO, emergency).
	MailboxTypeCoE MailboxType = 0x3
	// MailboxTypeFoE carries file access services.
	MailboxTypeFoE MailboxType = 0x4
	// MailboxTypeSoE carries servo profile services.
	MailboxTypeSoE MailboxType = 0x5
)

func (t MailboxType) String() string {
	switch t {
	case MailboxTypeError:
		return "ERR"
	case MailboxTypeEoE:
		return "EoE"
	case MailboxTypeCoE:
		return "CoE"
	case MailboxTypeFoE:
		return "FoE"
	case MailboxTypeSoE:
		return "SoE"
	default:
		return "unknown"
	}
}

// MailboxHeaderSize is the byte size of the header preceding every mailbox payload.
const MailboxHeaderSize = 6

// MailboxError is a mailbox-level error reply, sent by a slave that rejects
// a request before any protocol handler sees it, typically because the
// requested protocol is not supported.
type MailboxError struct {
	Pos  int
	Code uint16
}

func (e *MailboxError) Error() string {
	return fmt.Sprintf("slave %d: mailbox error 0x%04X", e.Pos, e.Code)
}

// AsMailboxError decodes a received frame as a mailbox-level error reply.
func AsMailboxError(pos int, frame *MailboxFrame) (*MailboxError, bool) {
	if frame == nil || frame.Type != MailboxTypeError || len(frame.Data) < 4 {
		return nil, false
	}

	return &MailboxError{Pos: pos, Code: binary.LittleEndian.Uint16(frame.Data[2:4])}, true
}

// MailboxFrame is one mailbox transaction payload with its header fields.
//
// The counter cycles 1..7 and is used to match responses to requests and to
// detect repeated deliveries; 0 means the sender does not use sequence
// numbering.
type MailboxFrame struct {
	Address uint16
	Channel uint8
	Type    MailboxType
	Counter uint8
	Data    []byte
}

// Encode serializes the frame into a buffer of the given mailbox size.
// The payload is padded with zeros up to the mailbox size, as the slave
// consumes whole mailbox buffers.
func (m *MailboxFrame) Encode(mailboxSize uint16) ([]byte, error) {
	if int(mailboxSize) < MailboxHeaderSize+len(m.Data) {
		return nil, fmt.Errorf("%w: payload %d exceeds mailbox size %d",
			ErrInvalidMailboxFrame, len(m.Data), mailboxSize)
	}

	buf := make([]byte, mailboxSize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(m.Data)))
	binary.LittleEndian.PutUint16(buf[2:4], m.Address)
	buf[4] = m.Channel & 0x3F
	buf[5] = byte(m.Type)&0x0F | m.Counter<<4
	copy(buf[MailboxHeaderSize:], m.Data)

	return buf, nil
}

// DecodeMailboxFrame parses a mailbox buffer read from a slave.
func DecodeMailboxFrame(buf []byte) (*MailboxFrame, error) {
	if len(buf) < MailboxHeaderSize {
		return nil, fmt.Errorf("%w: header truncated", ErrInvalidMailboxFrame)
	}

	dataLen := int(binary.LittleEndian.Uint16(buf[0:2]))
	if MailboxHeaderSize+dataLen > len(buf) {
		return nil, fmt.Errorf("%w: length %d exceeds buffer %d",
			ErrInvalidMailboxFrame, dataLen, len(buf)-MailboxHeaderSize)
	}

	m := &MailboxFrame{
		Address: binary.LittleEndian.Uint16(buf[2:4]),
		Channel: buf[4] & 0x3F,
		Type:    MailboxType(buf[5] & 0x0F),
		Counter: buf[5] >> 4,
		Data:    make([]byte, dataLen),
	}
	copy(m.Data, buf[MailboxHeaderSize:MailboxHeaderSize+dataLen])

	return m, nil
}

// Mailbox is the per-slave transaction primitive the mailbox protocol
// packages (coe, foe, eoe) are built on. The master's Device type implements
// it on top of register-level mailbox buffer access.
//
// Exchange writes a request into the slave's receive mailbox and blocks until
// a response arrives in its send mailbox or the timeout elapses. Poll reads
// one pending frame from the send mailbox without sending anything first; it
// returns ErrFrameTimeout when the mailbox stays empty. Both fill in the
// header address and sequence counter.
type Mailbox interface {
	Exchange(req *MailboxFrame, timeout time.Duration) (*MailboxFrame, error)
	// Send writes a request without waiting for any response. Protocols use it
	// for frames that have no reply, like tunneled-Ethernet fragments and
	// terminating acknowledgements.
	Send(req *MailboxFrame) error
	Poll(timeout time.Duration) (*MailboxFrame, error)
	// Capacity returns the payload capacity of one mailbox frame, the mailbox
	// size minus the mailbox header. Protocols use it to size segments.
	Capacity() int
	// Pos returns the slave's bus position, used in error reporting.
	Pos() int
}

// MailboxCounter generates the 1..7 mailbox sequence counter. It is safe for
// concurrent use; each slave carries its own instance.
type MailboxCounter struct {
	n atomic.Uint32
}

// Next returns the next counter value in the cycle 1, 2, ... 7, 1, ...
func (c *MailboxCounter) Next() uint8 {
	return uint8(c.n.Add(1)%7) + 1
}
