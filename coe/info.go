package coe

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/openecat/go-ecat/ecat"
)

// SDO Info opcodes.
const (
	InfoOpODListReq   = 0x01
	InfoOpODListResp  = 0x02
	InfoOpObjDescReq  = 0x03
	InfoOpObjDescResp = 0x04
	InfoOpEntryReq    = 0x05
	InfoOpEntryResp   = 0x06
	InfoOpError       = 0x07
)

const infoHeaderSize = 4

// odListTypeAll requests the complete list of object indexes.
const odListTypeAll uint16 = 0x0001

// Entry describes one subindex of an object directory object.
type Entry struct {
	Name         string
	DataType     DataType
	BitLength    uint16
	ObjectAccess uint16
}

// Object describes one object of a slave's object directory as reported by
// the SDO Info service. For VAR objects the type, bit length and access mask
// describe the object itself; for ARRAY and RECORD objects they describe
// subindex 0 and Entries carries the per-subindex detail.
type Object struct {
	Index        uint16
	Name         string
	ObjectCode   uint8
	DataType     DataType
	BitLength    uint16
	ObjectAccess uint16
	MaxSubindex  uint8
	Entries      map[uint8]Entry
}

// EncodeInfo builds a CoE SDO Info mailbox payload. It is exported for use by
// slave-side implementations and the test bus.
func EncodeInfo(opcode uint8, fragmentsLeft uint16, opData []byte) []byte {
	body := make([]byte, infoHeaderSize+len(opData))
	body[0] = opcode & 0x7F
	binary.LittleEndian.PutUint16(body[2:4], fragmentsLeft)
	copy(body[infoHeaderSize:], opData)
	return encodeHeader(ServiceSDOInfo, body)
}

// ReadObjectDirectory enumerates the slave's full object directory.
//
// Slaves that do not implement the SDO Info service fail with
// ErrInfoUnsupported.
func ReadObjectDirectory(mbx ecat.Mailbox, timeout time.Duration) ([]Object, error) {
	listReq := make([]byte, 2)
	binary.LittleEndian.PutUint16(listReq, odListTypeAll)

	opData, fragmentsLeft, err := exchangeInfo(mbx, InfoOpODListReq, InfoOpODListResp, listReq, timeout)
	if err != nil {
		return nil, err
	}
	if len(opData) < 2 {
		return nil, fmt.Errorf("%w: OD list response truncated", ecat.ErrInvalidMailboxFrame)
	}
	indexData := opData[2:] // skip the echoed list type

	// Long lists continue in back-to-back fragments.
	for fragmentsLeft > 0 {
		frame, err := mbx.Poll(timeout)
		if err != nil {
			return nil, err
		}
		opData, fragmentsLeft, err = decodeInfo(mbx.Pos(), frame, InfoOpODListResp)
		if err != nil {
			return nil, err
		}
		indexData = append(indexData, opData...)
	}

	objects := make([]Object, 0, len(indexData)/2)
	for i := 0; i+1 < len(indexData); i += 2 {
		index := binary.LittleEndian.Uint16(indexData[i : i+2])

		obj, err := readObjectDescription(mbx, index, timeout)
		if err != nil {
			return nil, err
		}

		if obj.ObjectCode == ObjectCodeVar {
			entry, err := readEntryDescription(mbx, index, 0, timeout)
			if err != nil {
				return nil, err
			}
			obj.DataType = entry.DataType
			obj.BitLength = entry.BitLength
			obj.ObjectAccess = entry.ObjectAccess
		} else {
			obj.Entries = make(map[uint8]Entry, obj.MaxSubindex+1)
			for sub := uint8(0); sub <= obj.MaxSubindex; sub++ {
				entry, err := readEntryDescription(mbx, index, sub, timeout)
				if err != nil {
					return nil, err
				}
				obj.Entries[sub] = *entry
			}
		}

		objects = append(objects, *obj)
	}

	return objects, nil
}

func readObjectDescription(mbx ecat.Mailbox, index uint16, timeout time.Duration) (*Object, error) {
	req := make([]byte, 2)
	binary.LittleEndian.PutUint16(req, index)

	opData, _, err := exchangeInfo(mbx, InfoOpObjDescReq, InfoOpObjDescResp, req, timeout)
	if err != nil {
		return nil, err
	}
	if len(opData) < 6 {
		return nil, fmt.Errorf("%w: object description truncated", ecat.ErrInvalidMailboxFrame)
	}

	return &Object{
		Index:       binary.LittleEndian.Uint16(opData[0:2]),
		DataType:    DataType(binary.LittleEndian.Uint16(opData[2:4])),
		MaxSubindex: opData[4],
		ObjectCode:  opData[5],
		Name:        string(opData[6:]),
	}, nil
}

func readEntryDescription(mbx ecat.Mailbox, index uint16, subindex uint8, timeout time.Duration) (*Entry, error) {
	req := make([]byte, 4)
	binary.LittleEndian.PutUint16(req[0:2], index)
	req[2] = subindex

	opData, _, err := exchangeInfo(mbx, InfoOpEntryReq, InfoOpEntryResp, req, timeout)
	if err != nil {
		return nil, err
	}
	if len(opData) < 10 {
		return nil, fmt.Errorf("%w: entry description truncated", ecat.ErrInvalidMailboxFrame)
	}

	return &Entry{
		DataType:     DataType(binary.LittleEndian.Uint16(opData[4:6])),
		BitLength:    binary.LittleEndian.Uint16(opData[6:8]),
		ObjectAccess: binary.LittleEndian.Uint16(opData[8:10]),
		Name:         string(opData[10:]),
	}, nil
}

// exchangeInfo performs one SDO Info round trip.
func exchangeInfo(mbx ecat.Mailbox, reqOp, respOp uint8, opData []byte, timeout time.Duration) ([]byte, uint16, error) {
	resp, err := mbx.Exchange(&ecat.MailboxFrame{
		Type: ecat.MailboxTypeCoE,
		Data: EncodeInfo(reqOp, 0, opData),
	}, timeout)
	if err != nil {
		return nil, 0, err
	}

	return decodeInfo(mbx.Pos(), resp, respOp)
}

func decodeInfo(pos int, resp *ecat.MailboxFrame, wantOp uint8) ([]byte, uint16, error) {
	if resp.Type == ecat.MailboxTypeError {
		return nil, 0, fmt.Errorf("%w: slave %d", ErrInfoUnsupported, pos)
	}
	if resp.Type != ecat.MailboxTypeCoE {
		return nil, 0, fmt.Errorf("%w: %s response to SDO info request", ecat.ErrInvalidMailboxFrame, resp.Type)
	}

	service, body, err := decodeHeader(resp.Data)
	if err != nil {
		return nil, 0, err
	}
	if service != ServiceSDOInfo || len(body) < infoHeaderSize {
		return nil, 0, fmt.Errorf("%w: not an SDO info response", ecat.ErrInvalidMailboxFrame)
	}

	opcode := body[0] & 0x7F
	fragmentsLeft := binary.LittleEndian.Uint16(body[2:4])
	opData := body[infoHeaderSize:]

	if opcode == InfoOpError {
		if len(opData) < 4 {
			return nil, 0, fmt.Errorf("%w: info error truncated", ecat.ErrInvalidMailboxFrame)
		}
		code := binary.LittleEndian.Uint32(opData[0:4])
		if code == AbortInvalidCommand || code == AbortNoDictionary {
			return nil, 0, fmt.Errorf("%w: slave %d", ErrInfoUnsupported, pos)
		}
		return nil, 0, &SdoInfoError{Pos: pos, AbortCode: code}
	}
	if opcode != wantOp {
		return nil, 0, fmt.Errorf("%w: unexpected info opcode 0x%02X", ecat.ErrInvalidMailboxFrame, opcode)
	}

	return opData, fragmentsLeft, nil
}
