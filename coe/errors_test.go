package coe

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openecat/go-ecat/ecat"
)

func TestAbortDescription(t *testing.T) {
	require := require.New(t)

	require.Equal("The object does not exist in the object directory", AbortDescription(AbortObjectMissing))
	require.Equal("Subindex does not exist", AbortDescription(AbortSubindexMissing))
	require.Equal("Attempt to write a read only object", AbortDescription(AbortReadOnly))
	require.Equal("Data cannot be transferred or stored to the application because of local control",
		AbortDescription(AbortLocalControl))
	require.Equal("Data cannot be transferred or stored to the application because of the present device state",
		AbortDescription(AbortDeviceState))
	require.Contains(AbortDescription(0xDEADBEEF), "0xDEADBEEF")
}

func TestSdoError(t *testing.T) {
	require := require.New(t)

	err := &SdoError{Pos: 2, Index: 0x1018, Subindex: 1, AbortCode: AbortObjectMissing}
	require.Equal("The object does not exist in the object directory", err.Desc())
	require.Contains(err.Error(), "slave 2")
	require.Contains(err.Error(), "0x1018")
	require.Contains(err.Error(), "0x06020000")
}

func TestPacketError(t *testing.T) {
	require := require.New(t)

	err := &PacketError{Pos: 0, Index: 0x6000, Subindex: 0, ErrorCode: PacketErrorDataContainerTooSmall}
	require.Equal("Data container too small for type", err.Desc())
	require.Contains(err.Error(), "0x6000")

	err = &PacketError{ErrorCode: PacketErrorUnexpectedFrame}
	require.Equal("Unexpected frame returned", err.Desc())
}

func TestEmergencyRoundTrip(t *testing.T) {
	require := require.New(t)

	em := &Emergency{ErrorCode: 0x4210, ErrorReg: 0x01, B1: 0x12, W1: 0x3456, W2: 0x789A}
	payload := EncodeEmergency(em)

	frame := &ecat.MailboxFrame{Type: ecat.MailboxTypeCoE, Data: payload}
	decoded, ok := ParseEmergencyFrame(5, frame)
	require.True(ok)
	require.Equal(5, decoded.Pos)
	require.Equal(uint16(0x4210), decoded.ErrorCode)
	require.Equal(uint8(0x01), decoded.ErrorReg)
	require.Equal(uint8(0x12), decoded.B1)
	require.Equal(uint16(0x3456), decoded.W1)
	require.Equal(uint16(0x789A), decoded.W2)

	// an SDO response is not an emergency
	sdo := &ecat.MailboxFrame{Type: ecat.MailboxTypeCoE, Data: encodeHeader(ServiceSDOResponse, make([]byte, 8))}
	_, ok = ParseEmergencyFrame(5, sdo)
	require.False(ok)
}
