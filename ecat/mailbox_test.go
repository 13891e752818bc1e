package ecat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMailboxFrame(t *testing.T) {
	require := require.New(t)

	t.Run("Encode Pads To Mailbox Size", func(t *testing.T) {
		m := &MailboxFrame{
			Address: 0x0000,
			Type:    MailboxTypeCoE,
			Counter: 3,
			Data:    []byte{0xAA, 0xBB},
		}

		buf, err := m.Encode(16)
		require.NoError(err)
		require.Len(buf, 16)

		decoded, err := DecodeMailboxFrame(buf)
		require.NoError(err)
		require.Equal(MailboxTypeCoE, decoded.Type)
		require.Equal(uint8(3), decoded.Counter)
		require.Equal([]byte{0xAA, 0xBB}, decoded.Data)
	})

	t.Run("Payload Exceeds Mailbox Size", func(t *testing.T) {
		m := &MailboxFrame{Type: MailboxTypeFoE, Data: make([]byte, 20)}
		_, err := m.Encode(16)
		require.ErrorIs(err, ErrInvalidMailboxFrame)
	})

	t.Run("Truncated Header", func(t *testing.T) {
		_, err := DecodeMailboxFrame([]byte{1, 2, 3})
		require.ErrorIs(err, ErrInvalidMailboxFrame)
	})

	t.Run("Length Exceeds Buffer", func(t *testing.T) {
		buf := make([]byte, MailboxHeaderSize)
		buf[0] = 200
		_, err := DecodeMailboxFrame(buf)
		require.ErrorIs(err, ErrInvalidMailboxFrame)
	})
}

func TestMailboxCounter(t *testing.T) {
	require := require.New(t)

	var c MailboxCounter
	seen := make([]uint8, 0, 14)
	for i := 0; i < 14; i++ {
		seen = append(seen, c.Next())
	}

	// cycles 1..7 without ever producing 0
	require.Equal([]uint8{2, 3, 4, 5, 6, 7, 1, 2, 3, 4, 5, 6, 7, 1}, seen)
	for _, v := range seen {
		require.NotZero(v)
		require.LessOrEqual(v, uint8(7))
	}
}

func TestMailboxTypeString(t *testing.T) {
	require := require.New(t)

	require.Equal("CoE", MailboxTypeCoE.String())
	require.Equal("FoE", MailboxTypeFoE.String())
	require.Equal("EoE", MailboxTypeEoE.String())
	require.Equal("ERR", MailboxTypeError.String())
}
