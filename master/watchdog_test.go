package master_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openecat/go-ecat/ecattest"
	"github.com/openecat/go-ecat/logger"
	"github.com/openecat/go-ecat/master"
)

func TestSetWatchdog(t *testing.T) {
	m := scannedMaster(t, []*ecattest.SimSlave{ioSlave("a")})
	d := m.Device(0)

	t.Run("exact tick multiple", func(t *testing.T) {
		require := require.New(t)

		require.NoError(d.SetWatchdog(master.WatchdogProcessData, 100))
		got, err := d.Watchdog(master.WatchdogProcessData)
		require.NoError(err)
		require.InDelta(100, got, 1e-9)
	})

	t.Run("truncated to tick boundary", func(t *testing.T) {
		// the default divider gives a 100 µs tick; anything between two
		// tick boundaries stores the lower one
		tests := []struct {
			requested float64
			applied   float64
		}{
			{0.15, 0.1},
			{0.2555, 0.2},
		}
		for _, tt := range tests {
			require := require.New(t)

			require.NoError(d.SetWatchdog(master.WatchdogProcessData, tt.requested))
			got, err := d.Watchdog(master.WatchdogProcessData)
			require.NoError(err)
			require.InDelta(tt.applied, got, 1e-9)
		}
	})

	t.Run("pdi watchdog is independent", func(t *testing.T) {
		require := require.New(t)

		require.NoError(d.SetWatchdog(master.WatchdogPDI, 50))
		pdi, err := d.Watchdog(master.WatchdogPDI)
		require.NoError(err)
		require.InDelta(50, pdi, 1e-9)

		pd, err := d.Watchdog(master.WatchdogProcessData)
		require.NoError(err)
		require.InDelta(0.2, pd, 1e-9)
	})

	t.Run("disable with zero", func(t *testing.T) {
		require := require.New(t)

		require.NoError(d.SetWatchdog(master.WatchdogProcessData, 0))
		got, err := d.Watchdog(master.WatchdogProcessData)
		require.NoError(err)
		require.Zero(got)
	})

	t.Run("out of range", func(t *testing.T) {
		require := require.New(t)

		err := d.SetWatchdog(master.WatchdogProcessData, 7000)
		require.ErrorIs(err, master.ErrWatchdogRange)

		require.Error(d.SetWatchdog(master.WatchdogProcessData, -1))
	})
}

func TestSetWatchdogTruncationWarning(t *testing.T) {
	require := require.New(t)

	mockLogger := logger.NewMockLogger()
	mockLogger.On("Debug", mock.Anything, mock.Anything).Return()
	mockLogger.On("Info", mock.Anything, mock.Anything).Return()
	mockLogger.On("Warn", mock.Anything, mock.Anything).Return()
	mockLogger.On("Error", mock.Anything, mock.Anything).Return()

	m := scannedMaster(t, []*ecattest.SimSlave{ioSlave("a")}, master.WithLogger(mockLogger))
	d := m.Device(0)

	require.NoError(d.SetWatchdog(master.WatchdogProcessData, 100))
	mockLogger.AssertNotCalled(t, "Warn", "watchdog time truncated to tick boundary", mock.Anything)

	require.NoError(d.SetWatchdog(master.WatchdogProcessData, 0.2555))
	mockLogger.AssertCalled(t, "Warn", "watchdog time truncated to tick boundary", mock.Anything)
}

func TestDCSync(t *testing.T) {
	require := require.New(t)

	m := scannedMaster(t, []*ecattest.SimSlave{ioSlave("a")})
	d := m.Device(0)

	require.NoError(d.DCSync(true, time.Millisecond, 100*time.Microsecond))
	require.NoError(d.DCSync(false, 0, 0))

	// a cycle beyond 32-bit nanoseconds cannot be programmed
	require.Error(d.DCSync(true, 5*time.Second, 0))
}

func TestConfigDC(t *testing.T) {
	require := require.New(t)

	m := newTestMaster(t, []*ecattest.SimSlave{ioSlave("a"), ioSlave("b")})
	require.ErrorIs(m.ConfigDC(), master.ErrNotScanned)

	_, err := m.ConfigInit()
	require.NoError(err)
	require.NoError(m.ConfigDC())
}
