// Package foe implements file access over EtherCAT: segmented reads and
// writes of slave-side files identified by name and a numeric password,
// carried over the slave's mailbox channel.
package foe

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/openecat/go-ecat/ecat"
)

// FoE opcodes.
const (
	OpRead  = 0x01
	OpWrite = 0x02
	OpData  = 0x03
	OpAck   = 0x04
	OpError = 0x05
	OpBusy  = 0x06
)

// headerSize is the byte size of the FoE header: opcode, reserved byte and a
// 4-byte field holding the password, packet number or error code.
const headerSize = 6

// FoE error codes.
const (
	ErrCodeNotDefined   uint32 = 0x8000
	ErrCodeNotFound     uint32 = 0x8001
	ErrCodeAccessDenied uint32 = 0x8002
	ErrCodeDiskFull     uint32 = 0x8003
	ErrCodeIllegal      uint32 = 0x8004
	ErrCodePacketNumber uint32 = 0x8005
	ErrCodeExists       uint32 = 0x8006
	ErrCodeNoUser       uint32 = 0x8007
	ErrCodeBootstrap    uint32 = 0x8008
	ErrCodeNotBootstrap uint32 = 0x8009
	ErrCodeNoRights     uint32 = 0x800A
	ErrCodeProgram      uint32 = 0x800B
)

// Error is a file-specific rejection reported by the slave.
type Error struct {
	Pos  int
	Code uint32
	Text string
}

func (e *Error) Error() string {
	if e.Text != "" {
		return fmt.Sprintf("slave %d: FoE error 0x%08X: %s", e.Pos, e.Code, e.Text)
	}
	return fmt.Sprintf("slave %d: FoE error 0x%08X", e.Pos, e.Code)
}

func encode(opcode uint8, field uint32, data []byte) []byte {
	buf := make([]byte, headerSize+len(data))
	buf[0] = opcode
	binary.LittleEndian.PutUint32(buf[2:6], field)
	copy(buf[headerSize:], data)
	return buf
}

// Read reads the named file from the slave into buf and returns the number of
// bytes read. The transfer is chunked across mailbox round trips; every
// received data packet is acknowledged with its packet number.
func Read(mbx ecat.Mailbox, name string, password uint32, buf []byte, timeout time.Duration) (int, error) {
	segMax := mbx.Capacity() - headerSize
	if segMax <= 0 {
		return 0, ecat.ErrMailboxUnsupported
	}

	resp, err := exchange(mbx, encode(OpRead, password, []byte(name)), timeout)
	if err != nil {
		return 0, err
	}

	total := 0
	for {
		op, field, data, err := decode(mbx.Pos(), resp)
		if err != nil {
			return 0, err
		}
		if op != OpData {
			return 0, fmt.Errorf("%w: unexpected FoE opcode 0x%02X", ecat.ErrInvalidMailboxFrame, op)
		}
		if total+len(data) > len(buf) {
			return 0, fmt.Errorf("%w: FoE read buffer full at %d bytes", ecat.ErrInvalidMailboxFrame, len(buf))
		}
		total += copy(buf[total:], data)

		// A short data packet terminates the transfer.
		if len(data) < segMax {
			err = mbx.Send(&ecat.MailboxFrame{Type: ecat.MailboxTypeFoE, Data: encode(OpAck, field, nil)})
			return total, err
		}

		resp, err = exchange(mbx, encode(OpAck, field, nil), timeout)
		if err != nil {
			return 0, err
		}
	}
}

// Write writes data to the named file on the slave, chunked across mailbox
// round trips with sequential packet numbers.
func Write(mbx ecat.Mailbox, name string, password uint32, data []byte, timeout time.Duration) error {
	segMax := mbx.Capacity() - headerSize
	if segMax <= 0 {
		return ecat.ErrMailboxUnsupported
	}

	resp, err := exchange(mbx, encode(OpWrite, password, []byte(name)), timeout)
	if err != nil {
		return err
	}
	if op, _, _, err := decode(mbx.Pos(), resp); err != nil {
		return err
	} else if op != OpAck {
		return fmt.Errorf("%w: unexpected FoE opcode 0x%02X", ecat.ErrInvalidMailboxFrame, op)
	}

	packet := uint32(1)
	for sent := 0; ; packet++ {
		n := min(len(data)-sent, segMax)
		resp, err = exchange(mbx, encode(OpData, packet, data[sent:sent+n]), timeout)
		if err != nil {
			return err
		}
		if op, _, _, err := decode(mbx.Pos(), resp); err != nil {
			return err
		} else if op != OpAck {
			return fmt.Errorf("%w: unexpected FoE opcode 0x%02X", ecat.ErrInvalidMailboxFrame, op)
		}
		sent += n

		if sent == len(data) {
			// A final full-size packet needs an empty terminating packet.
			if n == segMax {
				packet++
				resp, err = exchange(mbx, encode(OpData, packet, nil), timeout)
				if err != nil {
					return err
				}
				if op, _, _, err := decode(mbx.Pos(), resp); err != nil {
					return err
				} else if op != OpAck {
					return fmt.Errorf("%w: unexpected FoE opcode 0x%02X", ecat.ErrInvalidMailboxFrame, op)
				}
			}
			return nil
		}
	}
}

// exchange performs one FoE round trip, retrying while the slave reports busy.
func exchange(mbx ecat.Mailbox, payload []byte, timeout time.Duration) (*ecat.MailboxFrame, error) {
	resp, err := mbx.Exchange(&ecat.MailboxFrame{Type: ecat.MailboxTypeFoE, Data: payload}, timeout)
	if err != nil {
		return nil, err
	}

	for len(resp.Data) >= headerSize && resp.Type == ecat.MailboxTypeFoE && resp.Data[0] == OpBusy {
		resp, err = mbx.Poll(timeout)
		if err != nil {
			return nil, err
		}
	}

	return resp, nil
}

func decode(pos int, frame *ecat.MailboxFrame) (uint8, uint32, []byte, error) {
	if mbxErr, ok := ecat.AsMailboxError(pos, frame); ok {
		return 0, 0, nil, mbxErr
	}
	if frame.Type != ecat.MailboxTypeFoE {
		return 0, 0, nil, fmt.Errorf("%w: %s response to FoE request", ecat.ErrInvalidMailboxFrame, frame.Type)
	}
	if len(frame.Data) < headerSize {
		return 0, 0, nil, fmt.Errorf("%w: FoE header truncated", ecat.ErrInvalidMailboxFrame)
	}

	op := frame.Data[0]
	field := binary.LittleEndian.Uint32(frame.Data[2:6])
	data := frame.Data[headerSize:]

	if op == OpError {
		return 0, 0, nil, &Error{Pos: pos, Code: field, Text: string(data)}
	}

	return op, field, data, nil
}
