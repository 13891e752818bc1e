package ecattest

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/openecat/go-ecat/ecat"
	"github.com/openecat/go-ecat/internal/pool"
)

// Bus is an in-memory EtherCAT segment. It implements ecat.Transport: every
// sent frame is dispatched datagram by datagram through the attached slaves
// in bus order and the processed frame is queued for Receive, the way the
// physical ring returns it to the master.
type Bus struct {
	mu     sync.Mutex
	slaves []*SimSlave

	rx     chan []byte
	closed atomic.Bool

	// dropNext discards that many processed frames instead of returning them,
	// for timeout and retry tests.
	dropNext atomic.Int32
}

// NewBus builds a segment with the given slaves in bus order.
func NewBus(slaves ...*SimSlave) *Bus {
	return &Bus{
		slaves: slaves,
		rx:     make(chan []byte, 64),
	}
}

// DropFrames makes the bus swallow the next n response frames.
func (b *Bus) DropFrames(n int) {
	b.dropNext.Store(int32(n))
}

// Send processes one frame through the segment.
func (b *Bus) Send(frame []byte) error {
	if b.closed.Load() {
		return ecat.ErrTransportClosed
	}

	dgs, err := ecat.DecodeFrame(frame)
	if err != nil {
		return err
	}

	b.mu.Lock()
	for _, dg := range dgs {
		b.process(dg)
	}
	b.mu.Unlock()

	out, err := ecat.EncodeFrame(dgs)
	if err != nil {
		return err
	}

	if b.dropNext.Load() > 0 {
		b.dropNext.Add(-1)
		return nil
	}

	select {
	case b.rx <- out:
	default:
		// receiver gave up on earlier frames; drop the oldest
		select {
		case <-b.rx:
		default:
		}
		b.rx <- out
	}

	return nil
}

// Receive returns the next processed frame, or ecat.ErrFrameTimeout when
// none arrives in time.
func (b *Bus) Receive(buf []byte, timeout time.Duration) (int, error) {
	if b.closed.Load() {
		return 0, ecat.ErrTransportClosed
	}

	timer := pool.GetTimer(timeout)
	defer pool.PutTimer(timer)

	select {
	case frame := <-b.rx:
		return copy(buf, frame), nil
	case <-timer.C:
		return 0, ecat.ErrFrameTimeout
	}
}

// Close shuts the bus down. Pending frames are discarded.
func (b *Bus) Close() error {
	b.closed.Store(true)
	return nil
}

// process runs one datagram through the segment, accumulating the working
// counter the way slave hardware does.
func (b *Bus) process(dg *ecat.Datagram) {
	var wkc uint16

	switch dg.Command {
	case ecat.CmdBRD:
		for _, s := range b.slaves {
			if !s.present() {
				continue
			}
			tmp := make([]byte, len(dg.Data))
			s.physRead(dg.ADO(), tmp)
			for i := range dg.Data {
				dg.Data[i] |= tmp[i]
			}
			wkc++
		}

	case ecat.CmdBWR:
		for _, s := range b.slaves {
			if !s.present() {
				continue
			}
			s.physWrite(dg.ADO(), dg.Data)
			wkc++
		}

	case ecat.CmdBRW:
		for _, s := range b.slaves {
			if !s.present() {
				continue
			}
			s.physRead(dg.ADO(), dg.Data)
			s.physWrite(dg.ADO(), dg.Data)
			wkc++
		}

	case ecat.CmdAPRD, ecat.CmdAPWR, ecat.CmdAPRW:
		// Each passed slave increments the position field; the slave that
		// observes zero executes the command.
		adp := dg.ADP()
		for _, s := range b.slaves {
			if !s.present() {
				continue
			}
			if adp == 0 {
				if dg.Command != ecat.CmdAPWR {
					s.physRead(dg.ADO(), dg.Data)
				}
				if dg.Command != ecat.CmdAPRD {
					s.physWrite(dg.ADO(), dg.Data)
				}
				wkc++
			}
			adp++
		}

	case ecat.CmdFPRD, ecat.CmdFPWR, ecat.CmdFPRW:
		for _, s := range b.slaves {
			if !s.present() || s.station() != dg.ADP() {
				continue
			}
			if dg.Command != ecat.CmdFPWR {
				s.physRead(dg.ADO(), dg.Data)
			}
			if dg.Command != ecat.CmdFPRD {
				s.physWrite(dg.ADO(), dg.Data)
			}
			wkc++
		}

	case ecat.CmdLRD, ecat.CmdLWR, ecat.CmdLRW:
		for _, s := range b.slaves {
			if !s.present() {
				continue
			}
			wkc += s.processLogical(dg.Command, dg.LogicalAddr(), dg.Data)
		}
	}

	dg.WorkingCounter = wkc
}
