package ecat

import (
	"encoding/binary"
	"fmt"
)

// EtherType is the IEEE EtherType of EtherCAT frames.
const EtherType uint16 = 0x88A4

const (
	frameHeaderSize     = 2
	datagramHeaderSize  = 10
	datagramTrailerSize = 2

	// frameTypePDU identifies a frame carrying EtherCAT datagrams.
	frameTypePDU = 0x1

	// MaxFrameDataSize is the maximum total payload of all datagrams in one frame.
	MaxFrameDataSize = 1486

	// MaxDatagramData is the maximum payload of a single datagram.
	MaxDatagramData = MaxFrameDataSize - datagramHeaderSize - datagramTrailerSize
)

// Datagram is a single EtherCAT command inside a frame.
//
// Address holds ADP (position or station) in the low 16 bits and ADO (the
// physical memory offset) in the high 16 bits for physical commands, or a
// plain 32-bit logical address for logical commands. WorkingCounter is filled
// in by the slaves on the return path.
type Datagram struct {
	Command        CommandType
	Index          uint8
	Address        uint32
	More           bool
	Data           []byte
	WorkingCounter uint16
}

// NewPositionDatagram builds a datagram addressed by auto-increment position.
// The position is the negated bus position, so the slave at bus position pos
// observes zero after pos increments.
func NewPositionDatagram(cmd CommandType, pos uint16, offset uint16, data []byte) *Datagram {
	adp := uint16(-int16(pos))
	return &Datagram{
		Command: cmd,
		Address: uint32(adp) | uint32(offset)<<16,
		Data:    data,
	}
}

// NewStationDatagram builds a datagram addressed by configured station address.
func NewStationDatagram(cmd CommandType, station uint16, offset uint16, data []byte) *Datagram {
	return &Datagram{
		Command: cmd,
		Address: uint32(station) | uint32(offset)<<16,
		Data:    data,
	}
}

// NewBroadcastDatagram builds a broadcast datagram for the given memory offset.
func NewBroadcastDatagram(cmd CommandType, offset uint16, data []byte) *Datagram {
	return &Datagram{
		Command: cmd,
		Address: uint32(offset) << 16,
		Data:    data,
	}
}

// NewLogicalDatagram builds a datagram addressed by logical process-data address.
func NewLogicalDatagram(cmd CommandType, logAddr uint32, data []byte) *Datagram {
	return &Datagram{
		Command: cmd,
		Address: logAddr,
		Data:    data,
	}
}

// ADP returns the position/station half of a physical address.
func (d *Datagram) ADP() uint16 { return uint16(d.Address) }

// ADO returns the memory offset half of a physical address.
func (d *Datagram) ADO() uint16 { return uint16(d.Address >> 16) }

// LogicalAddr returns the address interpreted as a logical address.
func (d *Datagram) LogicalAddr() uint32 { return d.Address }

func (d *Datagram) encodedSize() int {
	return datagramHeaderSize + len(d.Data) + datagramTrailerSize
}

// EncodeFrame serializes the datagrams into a single EtherCAT frame.
// The More bit of every datagram except the last is set on the wire
// regardless of the value in the struct.
func EncodeFrame(dgs []*Datagram) ([]byte, error) {
	if len(dgs) == 0 {
		return nil, ErrEmptyFrame
	}

	size := 0
	for _, dg := range dgs {
		if len(dg.Data) > MaxDatagramData {
			return nil, fmt.Errorf("%w: %d bytes", ErrDatagramTooLarge, len(dg.Data))
		}
		size += dg.encodedSize()
	}
	if size > MaxFrameDataSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}

	buf := make([]byte, frameHeaderSize+size)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(size)&0x07FF|frameTypePDU<<12)

	off := frameHeaderSize
	for i, dg := range dgs {
		buf[off] = byte(dg.Command)
		buf[off+1] = dg.Index
		binary.LittleEndian.PutUint32(buf[off+2:off+6], dg.Address)

		lenField := uint16(len(dg.Data)) & 0x07FF
		if i < len(dgs)-1 {
			lenField |= 1 << 15 // more datagrams follow
		}
		binary.LittleEndian.PutUint16(buf[off+6:off+8], lenField)
		binary.LittleEndian.PutUint16(buf[off+8:off+10], 0) // irq

		copy(buf[off+10:], dg.Data)
		off += datagramHeaderSize + len(dg.Data)

		binary.LittleEndian.PutUint16(buf[off:off+2], dg.WorkingCounter)
		off += datagramTrailerSize
	}

	return buf, nil
}

// DecodeFrame parses an EtherCAT frame into its datagrams.
func DecodeFrame(buf []byte) ([]*Datagram, error) {
	if len(buf) < frameHeaderSize {
		return nil, fmt.Errorf("%w: frame header truncated", ErrInvalidFrame)
	}

	hdr := binary.LittleEndian.Uint16(buf[0:2])
	if hdr>>12 != frameTypePDU {
		return nil, fmt.Errorf("%w: unexpected frame type %d", ErrInvalidFrame, hdr>>12)
	}
	size := int(hdr & 0x07FF)
	if frameHeaderSize+size > len(buf) {
		return nil, fmt.Errorf("%w: frame length %d exceeds buffer %d", ErrInvalidFrame, size, len(buf)-frameHeaderSize)
	}

	var dgs []*Datagram
	off := frameHeaderSize
	end := frameHeaderSize + size
	for {
		if off+datagramHeaderSize > end {
			return nil, fmt.Errorf("%w: datagram header truncated", ErrInvalidFrame)
		}

		dg := &Datagram{
			Command: CommandType(buf[off]),
			Index:   buf[off+1],
			Address: binary.LittleEndian.Uint32(buf[off+2 : off+6]),
		}
		lenField := binary.LittleEndian.Uint16(buf[off+6 : off+8])
		dg.More = lenField&(1<<15) != 0
		dataLen := int(lenField & 0x07FF)

		off += datagramHeaderSize
		if off+dataLen+datagramTrailerSize > end {
			return nil, fmt.Errorf("%w: datagram data truncated", ErrInvalidFrame)
		}

		dg.Data = make([]byte, dataLen)
		copy(dg.Data, buf[off:off+dataLen])
		off += dataLen

		dg.WorkingCounter = binary.LittleEndian.Uint16(buf[off : off+2])
		off += datagramTrailerSize

		dgs = append(dgs, dg)
		if !dg.More {
			break
		}
	}

	return dgs, nil
}
