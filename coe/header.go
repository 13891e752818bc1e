package coe

import (
	"encoding/binary"
	"fmt"

	"github.com/openecat/go-ecat/ecat"
)

// Service is the CoE service number carried in the high nibble of the CoE header.
type Service uint8

const (
	ServiceEmergency   Service = 0x1
	ServiceSDORequest  Service = 0x2
	ServiceSDOResponse Service = 0x3
	ServiceTxPDO       Service = 0x4
	ServiceRxPDO       Service = 0x5
	ServiceSDOInfo     Service = 0x8
)

// headerSize is the byte size of the CoE header preceding every service payload.
const headerSize = 2

// encodeHeader prepends a CoE header to the payload.
func encodeHeader(service Service, payload []byte) []byte {
	buf := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(service)<<12)
	copy(buf[headerSize:], payload)
	return buf
}

// decodeHeader splits a CoE mailbox payload into service and body.
func decodeHeader(data []byte) (Service, []byte, error) {
	if len(data) < headerSize {
		return 0, nil, fmt.Errorf("%w: CoE header truncated", ecat.ErrInvalidMailboxFrame)
	}
	service := Service(binary.LittleEndian.Uint16(data[0:2]) >> 12)
	return service, data[headerSize:], nil
}

// DataType is a CoE object dictionary data type number.
type DataType uint16

// Standard CoE data type numbers.
const (
	TypeBoolean       DataType = 0x0001
	TypeInteger8      DataType = 0x0002
	TypeInteger16     DataType = 0x0003
	TypeInteger32     DataType = 0x0004
	TypeUnsigned8     DataType = 0x0005
	TypeUnsigned16    DataType = 0x0006
	TypeUnsigned32    DataType = 0x0007
	TypeReal32        DataType = 0x0008
	TypeVisibleString DataType = 0x0009
	TypeOctetString   DataType = 0x000A
	TypeUnicodeString DataType = 0x000B
	TypeInteger64     DataType = 0x0015
	TypeUnsigned64    DataType = 0x001B
)

// Object access permission bits as reported by SDO Info.
const (
	AccessReadPreOp   uint16 = 0x0001
	AccessReadSafeOp  uint16 = 0x0002
	AccessReadOp      uint16 = 0x0004
	AccessWritePreOp  uint16 = 0x0008
	AccessWriteSafeOp uint16 = 0x0010
	AccessWriteOp     uint16 = 0x0020

	// AccessReadAll combines the read permission of every state.
	AccessReadAll = AccessReadPreOp | AccessReadSafeOp | AccessReadOp
	// AccessWriteAll combines the write permission of every state.
	AccessWriteAll = AccessWritePreOp | AccessWriteSafeOp | AccessWriteOp
)

// Object codes reported in an object description.
const (
	ObjectCodeVar    uint8 = 7
	ObjectCodeArray  uint8 = 8
	ObjectCodeRecord uint8 = 9
)
