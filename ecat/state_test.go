package ecat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeviceState(t *testing.T) {
	require := require.New(t)

	t.Run("Base And Error Bit", func(t *testing.T) {
		s := StateSafeOp | StateError
		require.Equal(StateSafeOp, s.Base())
		require.True(s.HasError())
		require.False(StateSafeOp.HasError())
	})

	t.Run("Acknowledge", func(t *testing.T) {
		s := StateInit | StateError
		require.Equal(StateInit|StateAck, s.WithAck())
	})

	t.Run("String", func(t *testing.T) {
		require.Equal("INIT", StateInit.String())
		require.Equal("PREOP", StatePreOp.String())
		require.Equal("BOOT", StateBoot.String())
		require.Equal("SAFEOP", StateSafeOp.String())
		require.Equal("OP", StateOp.String())
		require.Equal("NONE", StateNone.String())
		require.Equal("SAFEOP+ERROR", (StateSafeOp | StateError).String())
	})
}

func TestALStatusCodeString(t *testing.T) {
	require := require.New(t)

	require.Equal("No error", ALStatusCodeString(ALStatusNoError))
	require.Equal("Invalid requested state change", ALStatusCodeString(ALStatusInvalidStateChange))
	require.Equal("Sync manager watchdog", ALStatusCodeString(ALStatusWatchdog))
	require.Contains(ALStatusCodeString(0x7777), "0x7777")
}
