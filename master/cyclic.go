package master

import (
	"sync/atomic"

	"github.com/openecat/go-ecat/ecat"
)

// SendProcessData drives one process-data cycle on the wire: the commanded
// outputs are copied into the cyclic frame, exchanged with the segment
// through logical read-write datagrams and the returned data is held for
// ReceiveProcessData. The whole round trip happens here; ReceiveProcessData
// only applies the result, mirroring the send/receive split masters
// conventionally expose.
func (m *Master) SendProcessData() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	return m.sendProcessDataLocked()
}

func (m *Master) sendProcessDataLocked() error {
	if !m.mapped {
		return ErrNotMapped
	}

	for _, seg := range m.outSegs {
		copy(m.cycBuf[seg.logical:seg.logical+seg.length], m.image[seg.imageOff:seg.imageOff+seg.length])
	}

	// Large images span several logical datagrams in one frame, each covering
	// a contiguous chunk of the logical address space.
	var dgs []*ecat.Datagram
	for off := 0; off < m.frameLen; {
		n := min(m.frameLen-off, ecat.MaxDatagramData)
		dgs = append(dgs, ecat.NewLogicalDatagram(ecat.CmdLRW, ecat.LogicalBaseAddr+uint32(off), m.cycBuf[off:off+n]))
		off += n
	}

	if err := m.roundTrip(dgs); err != nil {
		m.actualWKC.Store(0)
		m.doCheckState.Store(true)
		return err
	}

	wkc := 0
	off := 0
	for _, dg := range dgs {
		copy(m.cycBuf[off:off+len(dg.Data)], dg.Data)
		off += len(dg.Data)
		wkc += int(dg.WorkingCounter)
	}
	// Chunks are contiguous, so every device's image falls into exactly one
	// datagram and the sum is the segment working counter.
	m.actualWKC.Store(int32(wkc))

	if int32(wkc) != atomic.LoadInt32(&m.expectedWKC) {
		m.doCheckState.Store(true)
	}

	return nil
}

// ReceiveProcessData publishes the last exchanged cycle into the process
// image and returns its working counter. Input data is copied only through
// the mapped input segments; commanded outputs are never touched.
func (m *Master) ReceiveProcessData() (int, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if !m.mapped {
		return 0, ErrNotMapped
	}

	for _, seg := range m.inSegs {
		copy(m.image[seg.imageOff:seg.imageOff+seg.length], m.cycBuf[seg.logical:seg.logical+seg.length])
	}

	return int(m.actualWKC.Load()), nil
}

// ExchangeProcessData is one full cycle: SendProcessData followed by
// ReceiveProcessData. It returns the working counter of the cycle; a
// counter below ExpectedWorkingCounter means some device did not take part
// and the supervisory loop will investigate.
func (m *Master) ExchangeProcessData() (int, error) {
	if err := m.SendProcessData(); err != nil {
		return 0, err
	}

	return m.ReceiveProcessData()
}

// Run starts the managed cyclic loop and the supervisory recovery loop. The
// cyclic loop exchanges process data every CycleTime; the recovery loop
// wakes every RecoveryInterval and checks the bus whenever a cycle reported
// a degraded working counter. Run returns immediately; Stop terminates both
// loops.
func (m *Master) Run() error {
	m.opMu.Lock()
	mapped := m.mapped
	m.opMu.Unlock()
	if !mapped {
		return ErrNotMapped
	}

	_, err := m.taskMgr.StartInterval("cyclic", m.cycleTask, m.cfg.settings.CycleTime, true)
	if err != nil {
		return err
	}

	_, err = m.taskMgr.StartInterval("recovery", m.recoveryTask, m.cfg.settings.RecoveryInterval, false)
	if err != nil {
		m.taskMgr.StopInterval("cyclic") //nolint:errcheck
		return err
	}

	return nil
}

// Stop terminates the loops started by Run and waits for them to finish the
// current iteration. The transport stays open.
func (m *Master) Stop() {
	m.taskMgr.Stop()
	m.taskMgr.Wait()
}

func (m *Master) cycleTask() bool {
	if err := m.SendProcessData(); err != nil {
		m.logger.Error("process data cycle failed", "error", err)
		return true
	}
	if _, err := m.ReceiveProcessData(); err != nil {
		m.logger.Error("process data receive failed", "error", err)
	}

	return true
}
