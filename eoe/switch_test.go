package eoe

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

// recordPort collects frames forwarded to one switch endpoint.
type recordPort struct {
	frames [][]byte
}

func (p *recordPort) SendEthernetFrame(frame []byte) error {
	p.frames = append(p.frames, frame)
	return nil
}

func macFrame(dst, src net.HardwareAddr) []byte {
	frame := make([]byte, 60)
	copy(frame[0:6], dst)
	copy(frame[6:12], src)
	frame[12] = 0x08
	return frame
}

var (
	macA      = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x0A}
	macB      = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x0B}
	macHost   = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0xFF}
	broadcast = net.HardwareAddr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
)

func TestSwitchLearnsAndForwards(t *testing.T) {
	require := require.New(t)

	sw := NewSwitch(nil)
	portA := &recordPort{}
	portB := &recordPort{}

	// Each port announces itself with any outbound frame.
	sw.Ingress(portA, macFrame(broadcast, macA))
	sw.Ingress(portB, macFrame(broadcast, macB))

	_, ok := sw.Lookup(macA)
	require.True(ok)

	frame := macFrame(macB, macA)
	sw.Ingress(portA, frame)

	// Port B joined after A's announcement, so it sees only the unicast.
	require.Len(portB.frames, 1)
	require.Equal(frame, portB.frames[0])
	require.Len(portA.frames, 1) // only the broadcast from B
}

func TestSwitchBroadcast(t *testing.T) {
	require := require.New(t)

	sw := NewSwitch(nil)
	portA := &recordPort{}
	portB := &recordPort{}
	sw.Ingress(portA, macFrame(broadcast, macA))
	sw.Ingress(portB, macFrame(broadcast, macB))

	var uplinked [][]byte
	sw.SetUplink(func(frame []byte) { uplinked = append(uplinked, frame) })

	frame := macFrame(broadcast, macA)
	sw.Ingress(portA, frame)

	require.Equal(frame, portB.frames[len(portB.frames)-1])
	require.Len(uplinked, 1)
	// never reflected back to the sender
	for _, f := range portA.frames {
		require.NotEqual(macA, net.HardwareAddr(f[6:12]))
	}
}

func TestSwitchUnknownUnicastGoesToUplink(t *testing.T) {
	require := require.New(t)

	sw := NewSwitch(nil)
	portA := &recordPort{}
	sw.Ingress(portA, macFrame(broadcast, macA))

	var uplinked [][]byte
	sw.SetUplink(func(frame []byte) { uplinked = append(uplinked, frame) })

	frame := macFrame(macHost, macA)
	sw.Ingress(portA, frame)

	require.Len(uplinked, 1)
	require.Equal(uint64(0), sw.Dropped())
}

func TestSwitchUnknownUnicastDroppedWithoutUplink(t *testing.T) {
	require := require.New(t)

	sw := NewSwitch(nil)
	portA := &recordPort{}
	sw.Ingress(portA, macFrame(broadcast, macA))

	sw.Ingress(portA, macFrame(macHost, macA))
	require.Equal(uint64(1), sw.Dropped())
}

func TestSwitchFromUplink(t *testing.T) {
	require := require.New(t)

	sw := NewSwitch(nil)
	portA := &recordPort{}
	sw.Ingress(portA, macFrame(broadcast, macA))

	frame := macFrame(macA, macHost)
	sw.FromUplink(frame)

	require.Equal(frame, portA.frames[len(portA.frames)-1])

	// Host frames to unknown destinations are dropped, not looped back.
	sw.FromUplink(macFrame(macB, macHost))
	require.Equal(uint64(1), sw.Dropped())
}
