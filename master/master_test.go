package master_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openecat/go-ecat/ecattest"
	"github.com/openecat/go-ecat/master"
)

const (
	testVendorID    = 0x0000059D
	testProductCode = 0x00004D2A
)

// ioSlave builds a CoE-capable slave with 16 output and 16 input bits.
func ioSlave(name string) *ecattest.SimSlave {
	return ecattest.NewSimSlave(
		ecattest.WithIdentity(testVendorID, testProductCode, 0x00010000, 42),
		ecattest.WithIO(16, 16),
		ecattest.WithName(name),
	)
}

// newTestMaster opens a master on a simulated bus and tears it down with the
// test.
func newTestMaster(t *testing.T, slaves []*ecattest.SimSlave, opts ...master.Option) *master.Master {
	t.Helper()

	m, err := master.NewMaster(opts...)
	require.NoError(t, err)
	require.NoError(t, m.Open(ecattest.NewBus(slaves...)))
	t.Cleanup(func() { _ = m.Close() })

	return m
}

// scannedMaster additionally runs the bus scan.
func scannedMaster(t *testing.T, slaves []*ecattest.SimSlave, opts ...master.Option) *master.Master {
	t.Helper()

	m := newTestMaster(t, slaves, opts...)
	count, err := m.ConfigInit()
	require.NoError(t, err)
	require.Len(t, slaves, count)

	return m
}

// mappedMaster additionally maps the process data.
func mappedMaster(t *testing.T, slaves []*ecattest.SimSlave, opts ...master.Option) *master.Master {
	t.Helper()

	m := scannedMaster(t, slaves, opts...)
	require.NoError(t, m.ConfigMap())

	return m
}

func TestNewMasterOptionValidation(t *testing.T) {
	tests := []struct {
		name string
		opt  master.Option
	}{
		{"cycle time too short", master.WithCycleTime(10 * time.Microsecond)},
		{"cycle time too long", master.WithCycleTime(2 * time.Second)},
		{"zero recovery interval", master.WithRecoveryInterval(0)},
		{"zero frame timeout", master.WithFrameTimeout(0)},
		{"zero state timeout", master.WithStateTimeout(0)},
		{"zero mailbox timeout", master.WithMailboxTimeout(0)},
		{"zero sdo timeout", master.WithSdoTimeouts(0, time.Second)},
		{"zero foe timeout", master.WithFoETimeout(0)},
		{"nil logger", master.WithLogger(nil)},
		{"zero station base", master.WithStationBase(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := master.NewMaster(tt.opt)
			require.Error(t, err)
		})
	}
}

func TestOperationsRequireOpenAndScan(t *testing.T) {
	require := require.New(t)

	m, err := master.NewMaster()
	require.NoError(err)

	_, err = m.ConfigInit()
	require.ErrorIs(err, master.ErrNotOpen)

	require.NoError(m.Open(ecattest.NewBus(ioSlave("a"))))
	defer m.Close()

	err = m.ConfigMap()
	require.ErrorIs(err, master.ErrNotScanned)

	_, err = m.ReadState()
	require.ErrorIs(err, master.ErrNotScanned)

	_, err = m.ConfigInit()
	require.NoError(err)

	err = m.SendProcessData()
	require.ErrorIs(err, master.ErrNotMapped)

	err = m.Run()
	require.ErrorIs(err, master.ErrNotMapped)
}

func TestCloseResetsBus(t *testing.T) {
	require := require.New(t)

	slaves := []*ecattest.SimSlave{ioSlave("a")}
	m := mappedMaster(t, slaves)

	require.NoError(m.Close())
	require.Empty(m.Devices())

	_, err := m.ConfigInit()
	require.ErrorIs(err, master.ErrNotOpen)
}
