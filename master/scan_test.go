package master_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openecat/go-ecat/ecat"
	"github.com/openecat/go-ecat/ecattest"
	"github.com/openecat/go-ecat/master"
)

func TestConfigInit(t *testing.T) {
	require := require.New(t)

	slaves := []*ecattest.SimSlave{
		ioSlave("coupler"),
		ecattest.NewSimSlave(
			ecattest.WithIdentity(testVendorID, 0x1111, 2, 7),
			ecattest.WithIO(8, 0),
			ecattest.WithName("DO-8"),
		),
		ecattest.NewSimSlave(
			ecattest.WithIdentity(testVendorID, 0x2222, 3, 8),
			ecattest.WithIO(0, 32),
		),
	}

	m := newTestMaster(t, slaves)
	count, err := m.ConfigInit()
	require.NoError(err)
	require.Equal(3, count)
	require.Len(m.Devices(), 3)

	d0 := m.Device(0)
	require.NotNil(d0)
	require.Equal(0, d0.Pos())
	require.Equal(uint16(0x1001), d0.Station())
	require.Equal(uint32(testVendorID), d0.Identity().VendorID)
	require.Equal(uint32(testProductCode), d0.Identity().ProductCode)
	require.Equal(uint32(42), d0.Identity().Serial)
	require.Equal("coupler", d0.Name())
	require.Equal(16, d0.OutputBits())
	require.Equal(16, d0.InputBits())
	require.True(d0.SupportsCoE())
	require.False(d0.SupportsFoE())
	require.Equal(ecat.StatePreOp, d0.State())

	d1 := m.Device(1)
	require.Equal(uint16(0x1002), d1.Station())
	require.Equal("DO-8", d1.Name())
	require.Equal(8, d1.OutputBits())
	require.Equal(0, d1.InputBits())

	// no name object, the scan leaves the name empty
	require.Equal("", m.Device(2).Name())

	require.Nil(m.Device(3))
	require.Nil(m.Device(-1))

	state, err := m.ReadState()
	require.NoError(err)
	require.Equal(ecat.StatePreOp, state)
}

func TestConfigInitEmptyBus(t *testing.T) {
	require := require.New(t)

	m := newTestMaster(t, nil)
	count, err := m.ConfigInit()
	require.ErrorIs(err, master.ErrNoDevicesFound)
	require.Zero(count)
	require.Empty(m.Devices())
}

func TestConfigInitRescan(t *testing.T) {
	require := require.New(t)

	m := scannedMaster(t, []*ecattest.SimSlave{ioSlave("a"), ioSlave("b")})
	first := m.Device(0)

	count, err := m.ConfigInit()
	require.NoError(err)
	require.Equal(2, count)

	// a rescan builds a fresh device collection
	require.NotSame(first, m.Device(0))
	require.Equal(ecat.StatePreOp, m.Device(0).State())
}

func TestConfigInitWithoutMailbox(t *testing.T) {
	require := require.New(t)

	slave := ecattest.NewSimSlave(
		ecattest.WithIdentity(testVendorID, 0x3333, 1, 1),
		ecattest.WithIO(8, 8),
		ecattest.WithoutMailbox(),
	)
	m := scannedMaster(t, []*ecattest.SimSlave{slave})

	d := m.Device(0)
	require.False(d.SupportsCoE())
	require.Equal("", d.Name())

	_, err := d.SDORead(0x1018, 1, make([]byte, 4))
	require.ErrorIs(err, ecat.ErrMailboxUnsupported)
}

func TestConfigInitStationBase(t *testing.T) {
	require := require.New(t)

	m := scannedMaster(t, []*ecattest.SimSlave{ioSlave("a")},
		master.WithStationBase(0x2000))
	require.Equal(uint16(0x2000), m.Device(0).Station())
}

func TestEEPROMRead(t *testing.T) {
	require := require.New(t)

	m := scannedMaster(t, []*ecattest.SimSlave{ioSlave("a")})

	vendorLow, err := m.Device(0).EEPROMRead(ecat.SIIVendorID)
	require.NoError(err)
	require.Equal(uint16(testVendorID&0xFFFF), vendorLow)

	// unseeded words read as zero
	blank, err := m.Device(0).EEPROMRead(0x7F)
	require.NoError(err)
	require.Zero(blank)
}
