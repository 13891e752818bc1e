package eoe

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/openecat/go-ecat/logger"
)

// Port is one endpoint of the virtual switch, backed by a slave's mailbox.
type Port interface {
	// SendEthernetFrame tunnels one Ethernet frame to the endpoint.
	SendEthernetFrame(frame []byte) error
}

// UplinkFunc receives frames addressed to the host side (the application's
// virtual interface).
type UplinkFunc func(frame []byte)

// Switch routes tunneled Ethernet frames between slaves and the host. It
// learns the hardware address behind each port by observing the source
// addresses of received frames.
//
// Routing rules: frames to a learned unicast address are forwarded to that
// port; frames to a broadcast or multicast address are delivered to every
// other port and the uplink; frames to unknown unicast addresses are dropped.
type Switch struct {
	table   *xsync.MapOf[uint64, Port]
	mu      sync.RWMutex
	uplink  UplinkFunc
	logger  logger.Logger
	dropped atomic.Uint64
}

// NewSwitch creates an empty switch.
func NewSwitch(l logger.Logger) *Switch {
	if l == nil {
		l = logger.GetLogger()
	}
	return &Switch{
		table:  xsync.NewMapOf[uint64, Port](),
		logger: l,
	}
}

// SetUplink registers the host-side frame consumer.
func (s *Switch) SetUplink(fn UplinkFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uplink = fn
}

func (s *Switch) getUplink() UplinkFunc {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uplink
}

// Learn binds a hardware address to a port.
func (s *Switch) Learn(addr net.HardwareAddr, port Port) {
	if len(addr) != 6 {
		return
	}
	s.table.Store(macKey(addr), port)
}

// Lookup returns the port learned for a hardware address.
func (s *Switch) Lookup(addr net.HardwareAddr) (Port, bool) {
	if len(addr) != 6 {
		return nil, false
	}
	return s.table.Load(macKey(addr))
}

// Dropped returns the count of frames dropped for lack of a destination.
func (s *Switch) Dropped() uint64 { return s.dropped.Load() }

// Ingress handles a frame received from a slave port: the source address is
// learned, then the frame is routed.
func (s *Switch) Ingress(from Port, frame []byte) {
	if len(frame) < 14 {
		return
	}
	s.Learn(net.HardwareAddr(frame[6:12]), from)
	s.route(from, frame)
}

// FromUplink routes a host-originated frame to the slave side.
func (s *Switch) FromUplink(frame []byte) {
	if len(frame) < 14 {
		return
	}
	s.route(nil, frame)
}

func (s *Switch) route(from Port, frame []byte) {
	dst := net.HardwareAddr(frame[0:6])

	if dst[0]&0x01 != 0 { // broadcast or multicast
		s.table.Range(func(key uint64, port Port) bool {
			if port != from {
				if err := port.SendEthernetFrame(frame); err != nil {
					s.logger.Warn("EoE broadcast forward failed", "error", err)
				}
			}
			return true
		})
		if from != nil {
			if uplink := s.getUplink(); uplink != nil {
				uplink(frame)
			}
		}

		return
	}

	if port, ok := s.table.Load(macKey(dst)); ok {
		if port == from {
			return
		}
		if err := port.SendEthernetFrame(frame); err != nil {
			s.logger.Warn("EoE forward failed", "dst", dst.String(), "error", err)
		}

		return
	}

	if from != nil {
		if uplink := s.getUplink(); uplink != nil {
			uplink(frame)
			return
		}
	}

	s.dropped.Add(1)
	s.logger.Debug("EoE frame dropped, unknown destination", "dst", dst.String())
}

func macKey(addr net.HardwareAddr) uint64 {
	return uint64(addr[0])<<40 | uint64(addr[1])<<32 | uint64(addr[2])<<24 |
		uint64(addr[3])<<16 | uint64(addr[4])<<8 | uint64(addr[5])
}
