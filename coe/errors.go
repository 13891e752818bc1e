package coe

import (
	"errors"
	"fmt"
)

var (
	// ErrInfoUnsupported indicates that the slave does not implement the SDO
	// Info service, so its object directory cannot be enumerated.
	ErrInfoUnsupported = errors.New("SDO info service not supported by slave")
)

// SdoError is a protocol-level rejection of an SDO transfer. It carries the
// standard abort code and its human-readable description.
type SdoError struct {
	Pos       int
	Index     uint16
	Subindex  uint8
	AbortCode uint32
}

func (e *SdoError) Error() string {
	return fmt.Sprintf("slave %d: SDO abort 0x%08X @ 0x%04X:%02X: %s",
		e.Pos, e.AbortCode, e.Index, e.Subindex, AbortDescription(e.AbortCode))
}

// Desc returns the standard description of the abort code.
func (e *SdoError) Desc() string { return AbortDescription(e.AbortCode) }

// Packet error codes.
const (
	// PacketErrorUnexpectedFrame indicates a response that does not belong to
	// the outstanding request.
	PacketErrorUnexpectedFrame = 1
	// PacketErrorDataContainerTooSmall indicates that the caller's buffer
	// cannot hold the returned value.
	PacketErrorDataContainerTooSmall = 3
)

// PacketError reports a malformed or mismatched transfer at the packet level,
// including the buffer-too-small condition on reads.
type PacketError struct {
	Pos       int
	Index     uint16
	Subindex  uint8
	ErrorCode int
}

func (e *PacketError) Error() string {
	return fmt.Sprintf("slave %d: packet error %d @ 0x%04X:%02X: %s",
		e.Pos, e.ErrorCode, e.Index, e.Subindex, e.Desc())
}

// Desc returns the description of the packet error code.
func (e *PacketError) Desc() string {
	switch e.ErrorCode {
	case PacketErrorUnexpectedFrame:
		return "Unexpected frame returned"
	case PacketErrorDataContainerTooSmall:
		return "Data container too small for type"
	default:
		return "Unknown packet error"
	}
}

// SdoInfoError is an error response of the SDO Info service.
type SdoInfoError struct {
	Pos       int
	AbortCode uint32
}

func (e *SdoInfoError) Error() string {
	return fmt.Sprintf("slave %d: SDO info error 0x%08X: %s",
		e.Pos, e.AbortCode, AbortDescription(e.AbortCode))
}

// Emergency is an unsolicited diagnostic message a slave may send at any
// time. It is surfaced as an error from the mailbox call that observed it.
type Emergency struct {
	Pos       int
	ErrorCode uint16
	ErrorReg  uint8
	B1        uint8
	W1        uint16
	W2        uint16
}

func (e *Emergency) Error() string {
	return fmt.Sprintf("slave %d: CoE emergency 0x%04X reg 0x%02X data [%02X %04X %04X]",
		e.Pos, e.ErrorCode, e.ErrorReg, e.B1, e.W1, e.W2)
}

// Standard SDO abort codes.
const (
	AbortToggleBit          uint32 = 0x05030000
	AbortTimeout            uint32 = 0x05040000
	AbortInvalidCommand     uint32 = 0x05040001
	AbortOutOfMemory        uint32 = 0x05040005
	AbortUnsupportedAccess  uint32 = 0x06010000
	AbortWriteOnly          uint32 = 0x06010001
	AbortReadOnly           uint32 = 0x06010002
	AbortObjectMissing      uint32 = 0x06020000
	AbortCannotMapPDO       uint32 = 0x06040041
	AbortPDOLengthExceeded  uint32 = 0x06040042
	AbortParamIncompatible  uint32 = 0x06040043
	AbortDeviceIncompatible uint32 = 0x06040047
	AbortHardware           uint32 = 0x06060000
	AbortLengthMismatch     uint32 = 0x06070010
	AbortLengthTooHigh      uint32 = 0x06070012
	AbortLengthTooLow       uint32 = 0x06070013
	AbortSubindexMissing    uint32 = 0x06090011
	AbortValueRange         uint32 = 0x06090030
	AbortValueTooHigh       uint32 = 0x06090031
	AbortValueTooLow        uint32 = 0x06090032
	AbortMaxLessThanMin     uint32 = 0x06090036
	AbortGeneral            uint32 = 0x08000000
	AbortTransfer           uint32 = 0x08000020
	AbortLocalControl       uint32 = 0x08000021
	AbortDeviceState        uint32 = 0x08000022
	AbortNoDictionary       uint32 = 0x08000023
)

var abortText = map[uint32]string{
	AbortToggleBit:          "Toggle bit not alternated",
	AbortTimeout:            "SDO protocol timeout",
	AbortInvalidCommand:     "Client/server command specifier not valid or unknown",
	AbortOutOfMemory:        "Out of memory",
	AbortUnsupportedAccess:  "Unsupported access to an object",
	AbortWriteOnly:          "Attempt to read a write only object",
	AbortReadOnly:           "Attempt to write a read only object",
	AbortObjectMissing:      "The object does not exist in the object directory",
	AbortCannotMapPDO:       "The object can not be mapped into the PDO",
	AbortPDOLengthExceeded:  "The number and length of the objects to be mapped would exceed the PDO length",
	AbortParamIncompatible:  "General parameter incompatibility reason",
	AbortDeviceIncompatible: "General internal incompatibility in the device",
	AbortHardware:           "Access failed due to a hardware error",
	AbortLengthMismatch:     "Data type does not match, length of service parameter does not match",
	AbortLengthTooHigh:      "Data type does not match, length of service parameter too high",
	AbortLengthTooLow:       "Data type does not match, length of service parameter too low",
	AbortSubindexMissing:    "Subindex does not exist",
	AbortValueRange:         "Value range of parameter exceeded",
	AbortValueTooHigh:       "Value of parameter written too high",
	AbortValueTooLow:        "Value of parameter written too low",
	AbortMaxLessThanMin:     "Maximum value is less than minimum value",
	AbortGeneral:            "General error",
	AbortTransfer:           "Data cannot be transferred or stored to the application",
	AbortLocalControl:       "Data cannot be transferred or stored to the application because of local control",
	AbortDeviceState:        "Data cannot be transferred or stored to the application because of the present device state",
	AbortNoDictionary:       "Object dictionary dynamic generation fails or no object dictionary is present",
}

// AbortDescription returns the standard description of an SDO abort code.
func AbortDescription(code uint32) string {
	if desc, ok := abortText[code]; ok {
		return desc
	}
	return fmt.Sprintf("Unknown abort code 0x%08X", code)
}
