package master

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openecat/go-ecat/ecat"
	"github.com/openecat/go-ecat/logger"
)

// recvBufSize fits a full Ethernet frame including the L2 header.
const recvBufSize = 1518

// Master owns one EtherCAT segment: it scans the bus, maps process data,
// drives application-layer states and runs the cyclic exchange.
//
// Every bus-facing operation, cyclic exchange included, is serialized through
// one mutex because all traffic shares a single physical link and the
// datagram index matching assumes one outstanding frame at a time. Methods
// are safe to call from multiple goroutines.
type Master struct {
	cfg    *Config
	logger logger.Logger

	// mu serializes all frame round trips on the transport.
	mu        sync.Mutex
	transport ecat.Transport
	recvBuf   []byte
	idx       atomic.Uint32

	// opMu serializes the bring-up operations (scan, map, state requests)
	// against each other.
	opMu    sync.Mutex
	devices []*Device
	scanned bool
	mapped  bool

	// image is the process image seen by callers: outputs first, inputs after.
	// The segments describe how the image maps onto the logical address space
	// of the cyclic frame; with overlapped mapping the frame is smaller than
	// the image.
	image       []byte
	outputBytes int
	inputBytes  int
	frameLen    int
	outSegs     []pdSegment
	inSegs      []pdSegment
	cycBuf      []byte

	expectedWKC int32
	actualWKC   atomic.Int32

	inOp         atomic.Bool
	doCheckState atomic.Bool

	taskMgr *ecat.TaskManager
}

// pdSegment ties a span of the process image to its logical address in the
// cyclic frame. The receive path copies returned data only through the input
// segments so a torn frame cannot clobber commanded outputs.
type pdSegment struct {
	logical  int
	imageOff int
	length   int
}

// NewMaster creates a Master from the process-wide settings snapshot and the
// given options.
func NewMaster(opts ...Option) (*Master, error) {
	cfg := newConfig()
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	m := &Master{
		cfg:     cfg,
		logger:  cfg.logger,
		recvBuf: make([]byte, recvBufSize),
	}
	m.taskMgr = ecat.NewTaskManager(context.Background(), m.logger)

	return m, nil
}

// Open attaches the master to a transport. The transport is owned by the
// master afterwards and is closed by Close.
func (m *Master) Open(t ecat.Transport) error {
	if t == nil {
		return fmt.Errorf("transport is nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.transport != nil {
		return fmt.Errorf("master is already open")
	}
	m.transport = t

	return nil
}

// Close stops the cyclic and recovery loops, waits for them to terminate and
// closes the transport. The master can be reopened afterwards; scan and
// mapping results are discarded.
func (m *Master) Close() error {
	m.inOp.Store(false)
	m.taskMgr.Stop()
	m.taskMgr.Wait()

	m.mu.Lock()
	t := m.transport
	m.transport = nil
	m.mu.Unlock()

	m.opMu.Lock()
	m.devices = nil
	m.scanned = false
	m.mapped = false
	m.image = nil
	m.outSegs = nil
	m.inSegs = nil
	m.cycBuf = nil
	m.opMu.Unlock()

	if t == nil {
		return nil
	}

	return t.Close()
}

// Devices returns the devices found by the last scan in bus order.
func (m *Master) Devices() []*Device {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	out := make([]*Device, len(m.devices))
	copy(out, m.devices)

	return out
}

// Device returns the device at the given bus position, or nil when the
// position is out of range.
func (m *Master) Device(pos int) *Device {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if pos < 0 || pos >= len(m.devices) {
		return nil
	}

	return m.devices[pos]
}

// ExpectedWorkingCounter returns the working counter a fully healthy cycle
// produces, valid after mapping.
func (m *Master) ExpectedWorkingCounter() int {
	return int(atomic.LoadInt32(&m.expectedWKC))
}

// ActualWorkingCounter returns the working counter of the most recent cycle.
func (m *Master) ActualWorkingCounter() int {
	return int(m.actualWKC.Load())
}

// roundTrip sends the datagrams as one frame and blocks until the matching
// response returns or the frame timeout elapses. Response data and working
// counters are written back into the datagrams.
func (m *Master) roundTrip(dgs []*ecat.Datagram) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.roundTripLocked(dgs)
}

func (m *Master) roundTripLocked(dgs []*ecat.Datagram) error {
	if m.transport == nil {
		return ErrNotOpen
	}

	idx := uint8(m.idx.Add(1))
	for _, dg := range dgs {
		dg.Index = idx
	}

	frame, err := ecat.EncodeFrame(dgs)
	if err != nil {
		return err
	}
	if err := m.transport.Send(frame); err != nil {
		return err
	}

	deadline := time.Now().Add(m.cfg.settings.FrameTimeout)
	for {
		remain := time.Until(deadline)
		if remain <= 0 {
			return ecat.ErrFrameTimeout
		}

		n, err := m.transport.Receive(m.recvBuf, remain)
		if err != nil {
			return err
		}

		resp, err := ecat.DecodeFrame(m.recvBuf[:n])
		if err != nil {
			m.logger.Debug("dropping undecodable frame", "error", err)
			continue
		}
		// stale response from an earlier timed-out round trip
		if len(resp) != len(dgs) || resp[0].Index != idx {
			continue
		}

		for i, r := range resp {
			dgs[i].Data = r.Data
			dgs[i].WorkingCounter = r.WorkingCounter
		}

		return nil
	}
}

// Physical read/write primitives. Each is one datagram round trip and returns
// the working counter so callers can judge how many slaves responded.

func (m *Master) brd(offset uint16, length int) ([]byte, uint16, error) {
	dg := ecat.NewBroadcastDatagram(ecat.CmdBRD, offset, make([]byte, length))
	if err := m.roundTrip([]*ecat.Datagram{dg}); err != nil {
		return nil, 0, err
	}

	return dg.Data, dg.WorkingCounter, nil
}

func (m *Master) bwr(offset uint16, data []byte) (uint16, error) {
	dg := ecat.NewBroadcastDatagram(ecat.CmdBWR, offset, data)
	if err := m.roundTrip([]*ecat.Datagram{dg}); err != nil {
		return 0, err
	}

	return dg.WorkingCounter, nil
}

func (m *Master) aprd(pos uint16, offset uint16, length int) ([]byte, uint16, error) {
	dg := ecat.NewPositionDatagram(ecat.CmdAPRD, pos, offset, make([]byte, length))
	if err := m.roundTrip([]*ecat.Datagram{dg}); err != nil {
		return nil, 0, err
	}

	return dg.Data, dg.WorkingCounter, nil
}

func (m *Master) apwr(pos uint16, offset uint16, data []byte) (uint16, error) {
	dg := ecat.NewPositionDatagram(ecat.CmdAPWR, pos, offset, data)
	if err := m.roundTrip([]*ecat.Datagram{dg}); err != nil {
		return 0, err
	}

	return dg.WorkingCounter, nil
}

func (m *Master) fprd(station uint16, offset uint16, length int) ([]byte, uint16, error) {
	dg := ecat.NewStationDatagram(ecat.CmdFPRD, station, offset, make([]byte, length))
	if err := m.roundTrip([]*ecat.Datagram{dg}); err != nil {
		return nil, 0, err
	}

	return dg.Data, dg.WorkingCounter, nil
}

func (m *Master) fpwr(station uint16, offset uint16, data []byte) (uint16, error) {
	dg := ecat.NewStationDatagram(ecat.CmdFPWR, station, offset, data)
	if err := m.roundTrip([]*ecat.Datagram{dg}); err != nil {
		return 0, err
	}

	return dg.WorkingCounter, nil
}

// Typed register helpers.

func (m *Master) fprdU16(station uint16, offset uint16) (uint16, uint16, error) {
	data, wkc, err := m.fprd(station, offset, 2)
	if err != nil {
		return 0, 0, err
	}

	return binary.LittleEndian.Uint16(data), wkc, nil
}

func (m *Master) fpwrU16(station uint16, offset uint16, value uint16) (uint16, error) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], value)

	return m.fpwr(station, offset, buf[:])
}

func (m *Master) fpwrU8(station uint16, offset uint16, value uint8) (uint16, error) {
	return m.fpwr(station, offset, []byte{value})
}

// stationRead retries a station read until the slave answers or the timeout
// elapses. Slaves on a congested link may miss individual datagrams, so a
// zero working counter on a known-present station is retried rather than
// treated as loss.
func (m *Master) stationRead(station uint16, offset uint16, length int, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		data, wkc, err := m.fprd(station, offset, length)
		if err != nil && !errors.Is(err, ecat.ErrFrameTimeout) {
			return nil, err
		}
		if err == nil && wkc > 0 {
			return data, nil
		}
		if time.Now().After(deadline) {
			return nil, ecat.ErrFrameTimeout
		}
	}
}
