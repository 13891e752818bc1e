package master_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openecat/go-ecat/ecat"
	"github.com/openecat/go-ecat/ecattest"
	"github.com/openecat/go-ecat/eoe"
	"github.com/openecat/go-ecat/foe"
)

func fileSlave(extra ...ecattest.SimOption) *ecattest.SimSlave {
	firmware := make([]byte, 300)
	for i := range firmware {
		firmware[i] = byte(255 - i)
	}

	opts := []ecattest.SimOption{
		ecattest.WithIdentity(testVendorID, testProductCode, 1, 1),
		ecattest.WithProtocols(ecat.MailboxProtoCoE | ecat.MailboxProtoFoE | ecat.MailboxProtoEoE),
		ecattest.WithFile("firmware.bin", firmware),
	}

	return ecattest.NewSimSlave(append(opts, extra...)...)
}

func TestFoERead(t *testing.T) {
	require := require.New(t)

	slave := fileSlave()
	m := scannedMaster(t, []*ecattest.SimSlave{slave})
	d := m.Device(0)
	require.True(d.SupportsFoE())

	want, ok := slave.File("firmware.bin")
	require.True(ok)

	buf := make([]byte, 512)
	n, err := d.FoERead("firmware.bin", 0, buf)
	require.NoError(err)
	require.Equal(300, n)
	require.Equal(want, buf[:n])
}

func TestFoEReadExactSegmentMultiple(t *testing.T) {
	require := require.New(t)

	// 232 bytes is exactly two full segments with the default mailbox size;
	// the transfer must terminate with an empty data packet.
	data := make([]byte, 232)
	for i := range data {
		data[i] = byte(i)
	}
	slave := fileSlave(ecattest.WithFile("even.bin", data))
	m := scannedMaster(t, []*ecattest.SimSlave{slave})

	buf := make([]byte, 512)
	n, err := m.Device(0).FoERead("even.bin", 0, buf)
	require.NoError(err)
	require.Equal(data, buf[:n])
}

func TestFoEWrite(t *testing.T) {
	require := require.New(t)

	slave := fileSlave()
	m := scannedMaster(t, []*ecattest.SimSlave{slave})

	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(i * 3)
	}
	require.NoError(m.Device(0).FoEWrite("app.bin", 0, data))

	got, ok := slave.File("app.bin")
	require.True(ok)
	require.Equal(data, got)
}

func TestFoENotFound(t *testing.T) {
	require := require.New(t)

	m := scannedMaster(t, []*ecattest.SimSlave{fileSlave()})

	_, err := m.Device(0).FoERead("missing.bin", 0, make([]byte, 64))
	require.Error(err)

	var foeErr *foe.Error
	require.ErrorAs(err, &foeErr)
	require.Equal(foe.ErrCodeNotFound, foeErr.Code)
	require.Contains(foeErr.Error(), "file not found")
}

func TestUnsupportedProtocolRejected(t *testing.T) {
	require := require.New(t)

	// default slaves only announce CoE; a file request draws a
	// mailbox-level error reply
	m := scannedMaster(t, []*ecattest.SimSlave{ioSlave("a")})

	_, err := m.Device(0).FoERead("firmware.bin", 0, make([]byte, 64))
	require.Error(err)

	var mbxErr *ecat.MailboxError
	require.ErrorAs(err, &mbxErr)
	require.Equal(0, mbxErr.Pos)
}

func TestEoEIPParameters(t *testing.T) {
	require := require.New(t)

	slave := fileSlave()
	m := scannedMaster(t, []*ecattest.SimSlave{slave})
	d := m.Device(0)
	require.True(d.SupportsEoE())

	// before configuration the slave reports empty parameters
	param, err := d.EoEGetIP()
	require.NoError(err)
	require.Nil(param.IP)

	want := &eoe.IPParam{
		MAC:     net.HardwareAddr{0x02, 0x00, 0x00, 0xAB, 0xCD, 0xEF},
		IP:      net.IPv4(192, 168, 10, 2).To4(),
		Netmask: net.IPv4(255, 255, 255, 0).To4(),
		Gateway: net.IPv4(192, 168, 10, 1).To4(),
		DNSName: "slave-2",
	}
	require.NoError(d.EoESetIP(want))

	got, err := d.EoEGetIP()
	require.NoError(err)
	require.Equal(want.MAC, got.MAC)
	require.Equal(want.IP, got.IP)
	require.Equal(want.Netmask, got.Netmask)
	require.Equal(want.Gateway, got.Gateway)
	require.Nil(got.DNS)
	require.Equal("slave-2", got.DNSName)
}

func TestSendEthernetFrame(t *testing.T) {
	require := require.New(t)

	slave := fileSlave()
	var received [][]byte
	slave.OnEthernetFrame = func(frame []byte) {
		received = append(received, append([]byte(nil), frame...))
	}

	m := scannedMaster(t, []*ecattest.SimSlave{slave})

	// large enough to need several mailbox fragments
	frame := make([]byte, 400)
	for i := range frame {
		frame[i] = byte(i ^ 0x5D)
	}
	require.NoError(m.Device(0).SendEthernetFrame(frame))
	require.Len(received, 1)
	require.Equal(frame, received[0])
}
