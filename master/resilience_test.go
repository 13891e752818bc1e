package master_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openecat/go-ecat/ecat"
	"github.com/openecat/go-ecat/ecattest"
	"github.com/openecat/go-ecat/master"
)

func TestMailboxRetriesAfterDroppedFrame(t *testing.T) {
	require := require.New(t)

	slave := coeSlave()
	bus := ecattest.NewBus(slave)

	m, err := master.NewMaster()
	require.NoError(err)
	require.NoError(m.Open(bus))
	t.Cleanup(func() { _ = m.Close() })

	count, err := m.ConfigInit()
	require.NoError(err)
	require.Equal(1, count)

	// the next frame on the wire vanishes; the mailbox write retries it
	bus.DropFrames(1)

	val, err := m.Device(0).SDOReadBytes(0x2000, 0)
	require.NoError(err)
	require.Equal([]byte{0x78, 0x56, 0x34, 0x12}, val)
}

func TestExchangeReportsDroppedCycle(t *testing.T) {
	require := require.New(t)

	slave := ioSlave("a")
	bus := ecattest.NewBus(slave)

	m, err := master.NewMaster()
	require.NoError(err)
	require.NoError(m.Open(bus))
	t.Cleanup(func() { _ = m.Close() })

	_, err = m.ConfigInit()
	require.NoError(err)
	require.NoError(m.ConfigMap())

	bus.DropFrames(1)
	_, err = m.ExchangeProcessData()
	require.ErrorIs(err, ecat.ErrFrameTimeout)
	require.Zero(m.ActualWorkingCounter())

	// the next cycle goes through again
	wkc, err := m.ExchangeProcessData()
	require.NoError(err)
	require.Equal(3, wkc)
}
