package master_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openecat/go-ecat/coe"
	"github.com/openecat/go-ecat/ecat"
	"github.com/openecat/go-ecat/ecattest"
	"github.com/openecat/go-ecat/master"
)

func TestConfigMap(t *testing.T) {
	require := require.New(t)

	slaves := []*ecattest.SimSlave{ioSlave("a"), ioSlave("b")}
	m := scannedMaster(t, slaves)
	require.NoError(m.ConfigMap())

	// 2 per written output block, 1 per read input block
	require.Equal(6, m.ExpectedWorkingCounter())

	d0, d1 := m.Device(0), m.Device(1)
	require.Len(d0.Outputs(), 2)
	require.Len(d0.Inputs(), 2)
	require.Len(d1.Outputs(), 2)
	require.Len(d1.Inputs(), 2)

	require.Equal(ecat.StateSafeOp, d0.State())
	require.Equal(ecat.StateSafeOp, d1.State())

	state, err := m.ReadState()
	require.NoError(err)
	require.Equal(ecat.StateSafeOp, state)
}

func TestExchangeProcessData(t *testing.T) {
	require := require.New(t)

	slaves := []*ecattest.SimSlave{ioSlave("a"), ioSlave("b")}
	m := mappedMaster(t, slaves)

	d0, d1 := m.Device(0), m.Device(1)
	d0.Outputs()[0] = 0xA5
	d0.Outputs()[1] = 0x01
	d1.Outputs()[0] = 0x5A
	slaves[0].SetInputs([]byte{0x11, 0x22})
	slaves[1].SetInputs([]byte{0x33, 0x44})

	wkc, err := m.ExchangeProcessData()
	require.NoError(err)
	require.Equal(6, wkc)
	require.Equal(6, m.ActualWorkingCounter())

	require.Equal([]byte{0xA5, 0x01}, slaves[0].Outputs(2))
	require.Equal([]byte{0x5A, 0x00}, slaves[1].Outputs(2))
	require.Equal([]byte{0x11, 0x22}, d0.Inputs())
	require.Equal([]byte{0x33, 0x44}, d1.Inputs())
}

func TestConfigOverlapMap(t *testing.T) {
	require := require.New(t)

	slaves := []*ecattest.SimSlave{
		ecattest.NewSimSlave(
			ecattest.WithIdentity(testVendorID, 1, 1, 1),
			ecattest.WithIO(16, 8),
		),
		ecattest.NewSimSlave(
			ecattest.WithIdentity(testVendorID, 2, 1, 2),
			ecattest.WithIO(0, 16),
		),
	}
	m := scannedMaster(t, slaves)
	require.NoError(m.ConfigOverlapMap())
	require.Equal(4, m.ExpectedWorkingCounter())

	d0, d1 := m.Device(0), m.Device(1)
	require.Len(d0.Outputs(), 2)
	require.Len(d0.Inputs(), 1)
	require.Empty(d1.Outputs())
	require.Len(d1.Inputs(), 2)

	d0.Outputs()[0] = 0xEE
	slaves[0].SetInputs([]byte{0x77})
	slaves[1].SetInputs([]byte{0x88, 0x99})

	wkc, err := m.ExchangeProcessData()
	require.NoError(err)
	require.Equal(4, wkc)
	require.Equal([]byte{0xEE, 0x00}, slaves[0].Outputs(2))
	require.Equal([]byte{0x77}, d0.Inputs())
	require.Equal([]byte{0x88, 0x99}, d1.Inputs())
}

func TestConfigMapConfigFuncFailure(t *testing.T) {
	require := require.New(t)

	boom := errors.New("bad parameter")
	m := scannedMaster(t, []*ecattest.SimSlave{ioSlave("a"), ioSlave("b")})
	m.Device(1).ConfigFunc = func(d *master.Device) error { return boom }

	err := m.ConfigMap()
	require.Error(err)

	var cfgErr *master.ConfigMapError
	require.ErrorAs(err, &cfgErr)
	require.Equal(1, cfgErr.Pos)
	require.ErrorIs(err, boom)

	// mapping aborted before touching the bus
	require.Equal(ecat.StatePreOp, m.Device(0).State())
	err = m.SendProcessData()
	require.ErrorIs(err, master.ErrNotMapped)
}

func TestConfigMapRunsConfigFunc(t *testing.T) {
	require := require.New(t)

	slave := ecattest.NewSimSlave(
		ecattest.WithIdentity(testVendorID, 1, 1, 1),
		ecattest.WithIO(16, 16),
		ecattest.WithObject(&ecattest.SimObject{
			Index:    0x8000,
			Name:     "Startup param",
			Code:     coe.ObjectCodeVar,
			DataType: coe.TypeUnsigned16,
			Access:   coe.AccessReadAll | coe.AccessWriteAll,
			Value:    []byte{0x00, 0x00},
		}),
	)
	m := scannedMaster(t, []*ecattest.SimSlave{slave})
	m.Device(0).ConfigFunc = func(d *master.Device) error {
		return d.SDOWrite(0x8000, 0, []byte{0x39, 0x05})
	}

	require.NoError(m.ConfigMap())

	val, ok := slave.Object(0x8000, 0)
	require.True(ok)
	require.Equal([]byte{0x39, 0x05}, val)
}
