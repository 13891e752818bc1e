// Package nic provides the raw network transport: EtherCAT frames sent and
// received on a physical adapter with libpcap, plus adapter enumeration.
package nic

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/openecat/go-ecat/ecat"
)

const (
	snapLen = 65536

	// pollInterval is the pcap read timeout; Receive loops on it until the
	// caller's deadline.
	pollInterval = time.Millisecond
)

// Slaves answer to any destination; the primary MAC convention is
// ff:ff:ff:ff:ff:ff.
var broadcastMAC = net.HardwareAddr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// Adapter describes one capture-capable network adapter on the host.
type Adapter struct {
	Name        string
	Description string
	MAC         net.HardwareAddr
}

// ListAdapters enumerates the adapters EtherCAT can run on.
func ListAdapters() ([]Adapter, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate adapters: %w", err)
	}

	adapters := make([]Adapter, 0, len(devs))
	for _, dev := range devs {
		a := Adapter{Name: dev.Name, Description: dev.Description}
		if iface, err := net.InterfaceByName(dev.Name); err == nil {
			a.MAC = iface.HardwareAddr
		}
		adapters = append(adapters, a)
	}

	return adapters, nil
}

// Transport drives EtherCAT frames over one network adapter. It implements
// ecat.Transport.
type Transport struct {
	handle *pcap.Handle
	srcMAC net.HardwareAddr
	closed atomic.Bool
}

// Open attaches to the named adapter in promiscuous mode and filters for
// EtherCAT traffic.
func Open(ifname string) (*Transport, error) {
	handle, err := pcap.OpenLive(ifname, snapLen, true, pollInterval)
	if err != nil {
		return nil, fmt.Errorf("failed to open adapter %s: %w", ifname, err)
	}
	if err := handle.SetBPFFilter(fmt.Sprintf("ether proto 0x%04x", ecat.EtherType)); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to set capture filter: %w", err)
	}

	t := &Transport{handle: handle, srcMAC: broadcastMAC}
	if iface, err := net.InterfaceByName(ifname); err == nil && len(iface.HardwareAddr) == 6 {
		t.srcMAC = iface.HardwareAddr
	}

	return t, nil
}

// Send wraps the frame in an Ethernet header and puts it on the wire.
func (t *Transport) Send(frame []byte) error {
	if t.closed.Load() {
		return ecat.ErrTransportClosed
	}

	eth := layers.Ethernet{
		SrcMAC:       t.srcMAC,
		DstMAC:       broadcastMAC,
		EthernetType: layers.EthernetType(ecat.EtherType),
	}

	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true},
		&eth, gopacket.Payload(frame)); err != nil {
		return fmt.Errorf("failed to serialize frame: %w", err)
	}

	return t.handle.WritePacketData(buf.Bytes())
}

// Receive fills buf with the payload of the next EtherCAT frame. Frames the
// adapter loops back from our own Send are skipped by source MAC; the slave
// ring rewrites the source, so returning frames always differ.
func (t *Transport) Receive(buf []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	for {
		if t.closed.Load() {
			return 0, ecat.ErrTransportClosed
		}

		data, _, err := t.handle.ReadPacketData()
		switch {
		case err == nil:
			if payload, ok := t.payload(data); ok {
				return copy(buf, payload), nil
			}
		case errors.Is(err, pcap.NextErrorTimeoutExpired):
			// fall through to the deadline check
		default:
			return 0, fmt.Errorf("failed to read from adapter: %w", err)
		}

		if time.Now().After(deadline) {
			return 0, ecat.ErrFrameTimeout
		}
	}
}

func (t *Transport) payload(data []byte) ([]byte, bool) {
	if len(data) < 14 {
		return nil, false
	}
	ethType := uint16(data[12])<<8 | uint16(data[13])
	if ethType != ecat.EtherType {
		return nil, false
	}
	if net.HardwareAddr(data[6:12]).String() == t.srcMAC.String() {
		// our own transmit echoed by the adapter
		return nil, false
	}

	return data[14:], true
}

// Close detaches from the adapter.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.handle.Close()

	return nil
}
