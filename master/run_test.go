package master_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openecat/go-ecat/ecat"
	"github.com/openecat/go-ecat/ecattest"
	"github.com/openecat/go-ecat/master"
)

func TestRequestStateOp(t *testing.T) {
	require := require.New(t)

	slaves := []*ecattest.SimSlave{ioSlave("a"), ioSlave("b")}
	m := mappedMaster(t, slaves)

	// prime the outputs once so the slaves accept OP
	_, err := m.ExchangeProcessData()
	require.NoError(err)

	result, err := m.RequestState(ecat.StateOp)
	require.NoError(err)
	require.True(result.AllReached)
	require.Empty(result.Failed)
	require.NoError(result.Err())

	require.Equal(ecat.StateOp, m.Device(0).State())
	require.Equal(ecat.StateOp, slaves[1].State())

	state, err := m.ReadState()
	require.NoError(err)
	require.Equal(ecat.StateOp, state)
}

func TestRequestStateFailedTransition(t *testing.T) {
	require := require.New(t)

	slaves := []*ecattest.SimSlave{ioSlave("a"), ioSlave("b")}
	m := mappedMaster(t, slaves, master.WithStateTimeout(50*time.Millisecond))
	_, err := m.ExchangeProcessData()
	require.NoError(err)

	slaves[1].FailTransition(ecat.StateOp, ecat.ALStatusInvalidOutputMapping)

	result, err := m.RequestState(ecat.StateOp)
	require.NoError(err)
	require.False(result.AllReached)
	require.Len(result.Failed, 1)

	failed := result.Failed[0]
	require.Equal(1, failed.Pos)
	require.True(failed.State.HasError())
	require.Equal(ecat.ALStatusInvalidOutputMapping, failed.StatusCode)
	require.Contains(failed.String(), "slave 1")

	require.ErrorIs(result.Err(), master.ErrStateTimeout)
	require.Contains(result.Err().Error(), "slave 1")

	// the healthy device still made it
	require.Equal(ecat.StateOp, m.Device(0).State())
}

func TestRequestStateBackToInit(t *testing.T) {
	require := require.New(t)

	m := mappedMaster(t, []*ecattest.SimSlave{ioSlave("a")})
	_, err := m.ExchangeProcessData()
	require.NoError(err)

	result, err := m.RequestState(ecat.StateOp)
	require.NoError(err)
	require.True(result.AllReached)

	result, err = m.RequestState(ecat.StateInit)
	require.NoError(err)
	require.True(result.AllReached)
	require.Equal(ecat.StateInit, m.Device(0).State())
}

func opMaster(t *testing.T, slaves []*ecattest.SimSlave, opts ...master.Option) *master.Master {
	t.Helper()

	m := mappedMaster(t, slaves, opts...)
	_, err := m.ExchangeProcessData()
	require.NoError(t, err)

	result, err := m.RequestState(ecat.StateOp)
	require.NoError(t, err)
	require.True(t, result.AllReached)

	return m
}

func TestRunCyclicExchange(t *testing.T) {
	require := require.New(t)

	slaves := []*ecattest.SimSlave{ioSlave("a")}
	m := opMaster(t, slaves,
		master.WithCycleTime(time.Millisecond),
		master.WithRecoveryInterval(2*time.Millisecond))

	m.Device(0).Outputs()[0] = 0x42
	slaves[0].SetInputs([]byte{0x24, 0x00})

	require.NoError(m.Run())

	require.Eventually(func() bool {
		return m.ActualWorkingCounter() == m.ExpectedWorkingCounter() &&
			slaves[0].Outputs(1)[0] == 0x42
	}, time.Second, 5*time.Millisecond)

	m.Stop()
	require.Equal(byte(0x24), m.Device(0).Inputs()[0])
}

func TestRecoveryAfterDeviceLoss(t *testing.T) {
	require := require.New(t)

	slaves := []*ecattest.SimSlave{ioSlave("a"), ioSlave("b")}
	m := opMaster(t, slaves,
		master.WithCycleTime(time.Millisecond),
		master.WithRecoveryInterval(2*time.Millisecond),
		master.WithStateTimeout(200*time.Millisecond))

	require.NoError(m.Run())
	defer m.Stop()

	d1 := m.Device(1)

	slaves[1].SetUnplugged(true)
	require.Eventually(d1.Lost, 2*time.Second, 5*time.Millisecond,
		"unplugged device was never flagged lost")

	// the device reboots: station address and configuration are gone
	slaves[1].Reboot()
	slaves[1].SetUnplugged(false)

	require.Eventually(func() bool {
		return !d1.Lost() && d1.State() == ecat.StateOp
	}, 2*time.Second, 5*time.Millisecond,
		"rebooted device was never brought back to OP")

	require.Eventually(func() bool {
		return m.ActualWorkingCounter() == m.ExpectedWorkingCounter()
	}, 2*time.Second, 5*time.Millisecond)

	require.Equal(ecat.StateOp, slaves[1].State())
}

func TestRecoveryReconfiguresFallenDevice(t *testing.T) {
	require := require.New(t)

	slaves := []*ecattest.SimSlave{ioSlave("a")}
	m := opMaster(t, slaves,
		master.WithCycleTime(time.Millisecond),
		master.WithRecoveryInterval(2*time.Millisecond),
		master.WithStateTimeout(200*time.Millisecond))

	require.NoError(m.Run())
	defer m.Stop()

	// the device spontaneously falls back to INIT with an error
	slaves[0].ForceState(ecat.StateInit|ecat.StateError, ecat.ALStatusWatchdog)

	require.Eventually(func() bool {
		return m.Device(0).State() == ecat.StateOp
	}, 2*time.Second, 5*time.Millisecond,
		"fallen device was never reconfigured back to OP")
}

func TestDeviceReconfig(t *testing.T) {
	require := require.New(t)

	slaves := []*ecattest.SimSlave{ioSlave("a")}
	m := opMaster(t, slaves)

	slaves[0].ForceState(ecat.StateSafeOp, 0)
	require.NoError(m.Device(0).Reconfig())
	require.Equal(ecat.StateOp, m.Device(0).State())
	require.Equal(ecat.StateOp, slaves[0].State())
}

func TestStopIsIdempotent(t *testing.T) {
	require := require.New(t)

	m := opMaster(t, []*ecattest.SimSlave{ioSlave("a")},
		master.WithCycleTime(time.Millisecond))
	require.NoError(m.Run())

	m.Stop()
	m.Stop()
}
