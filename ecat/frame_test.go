package ecat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFrame(t *testing.T) {
	require := require.New(t)

	t.Run("Single Datagram", func(t *testing.T) {
		dg := NewStationDatagram(CmdFPRD, 0x1001, 0x0130, make([]byte, 2))
		dg.Index = 7

		frame, err := EncodeFrame([]*Datagram{dg})
		require.NoError(err)

		decoded, err := DecodeFrame(frame)
		require.NoError(err)
		require.Len(decoded, 1)
		require.Equal(CmdFPRD, decoded[0].Command)
		require.Equal(uint8(7), decoded[0].Index)
		require.Equal(uint16(0x1001), decoded[0].ADP())
		require.Equal(uint16(0x0130), decoded[0].ADO())
		require.False(decoded[0].More)
		require.Len(decoded[0].Data, 2)
	})

	t.Run("Multiple Datagrams Set More Bit", func(t *testing.T) {
		dgs := []*Datagram{
			NewBroadcastDatagram(CmdBRD, 0x0130, make([]byte, 1)),
			NewLogicalDatagram(CmdLRW, 0x10, []byte{1, 2, 3, 4}),
		}

		frame, err := EncodeFrame(dgs)
		require.NoError(err)

		decoded, err := DecodeFrame(frame)
		require.NoError(err)
		require.Len(decoded, 2)
		require.True(decoded[0].More)
		require.False(decoded[1].More)
		require.Equal(uint32(0x10), decoded[1].LogicalAddr())
		require.Equal([]byte{1, 2, 3, 4}, decoded[1].Data)
	})

	t.Run("Working Counter Round Trips", func(t *testing.T) {
		dg := NewBroadcastDatagram(CmdBRD, 0x0000, make([]byte, 1))
		dg.WorkingCounter = 3

		frame, err := EncodeFrame([]*Datagram{dg})
		require.NoError(err)

		decoded, err := DecodeFrame(frame)
		require.NoError(err)
		require.Equal(uint16(3), decoded[0].WorkingCounter)
	})

	t.Run("Empty Frame", func(t *testing.T) {
		_, err := EncodeFrame(nil)
		require.ErrorIs(err, ErrEmptyFrame)
	})

	t.Run("Oversized Datagram", func(t *testing.T) {
		dg := NewLogicalDatagram(CmdLRW, 0, make([]byte, MaxDatagramData+1))
		_, err := EncodeFrame([]*Datagram{dg})
		require.ErrorIs(err, ErrDatagramTooLarge)
	})

	t.Run("Oversized Frame", func(t *testing.T) {
		dgs := []*Datagram{
			NewLogicalDatagram(CmdLRW, 0, make([]byte, MaxDatagramData)),
			NewLogicalDatagram(CmdLRW, 0, make([]byte, MaxDatagramData)),
		}
		_, err := EncodeFrame(dgs)
		require.ErrorIs(err, ErrFrameTooLarge)
	})

	t.Run("Truncated Buffer", func(t *testing.T) {
		dg := NewBroadcastDatagram(CmdBRD, 0, make([]byte, 4))
		frame, err := EncodeFrame([]*Datagram{dg})
		require.NoError(err)

		_, err = DecodeFrame(frame[:len(frame)-3])
		require.ErrorIs(err, ErrInvalidFrame)
	})
}

func TestPositionAddressing(t *testing.T) {
	require := require.New(t)

	// the slave at bus position pos observes zero after pos increments
	dg := NewPositionDatagram(CmdAPRD, 3, 0x0010, make([]byte, 2))
	require.Equal(uint16(0xFFFD), dg.ADP())
	require.Equal(uint16(0x0010), dg.ADO())

	dg = NewPositionDatagram(CmdAPWR, 0, 0x0010, make([]byte, 2))
	require.Equal(uint16(0), dg.ADP())
}

func TestCommandType(t *testing.T) {
	require := require.New(t)

	require.Equal("LRW", CmdLRW.String())
	require.Equal("BRD", CmdBRD.String())
	require.True(CmdLRW.IsLogical())
	require.False(CmdFPRD.IsLogical())
	require.True(CmdBWR.IsBroadcast())
	require.False(CmdAPRD.IsBroadcast())
}
