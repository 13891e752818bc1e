package master

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/openecat/go-ecat/ecat"
)

// Physical process-data buffer addresses inside the slave controller. SM2
// holds outputs, SM3 inputs.
const (
	pdOutputAddr uint16 = 0x1100
	pdInputAddr  uint16 = 0x1400

	smProcessOut = 2
	smProcessIn  = 3

	// Sync manager control: buffered mode, write access for outputs, read for
	// inputs, ECAT event enabled.
	smCtlOutputs uint8 = 0x64
	smCtlInputs  uint8 = 0x20
	smActivate   uint8 = 0x01

	// FMMU type bits seen from the slave: outputs are written into the slave,
	// inputs are read out of it.
	fmmuTypeRead  uint8 = 0x01
	fmmuTypeWrite uint8 = 0x02
)

// ConfigMap builds the process image: it runs the per-device configuration
// callbacks, assigns every device a span of the logical address space
// (outputs packed first, inputs after), programs sync managers and FMMUs and
// brings the bus to SAFEOP.
//
// A configuration callback returning an error aborts the whole mapping with a
// *ConfigMapError; the bus stays in PREOP and no image exists afterwards.
func (m *Master) ConfigMap() error {
	return m.configMap(false)
}

// ConfigOverlapMap is ConfigMap with outputs and inputs sharing the logical
// address space: each device occupies max(outputs, inputs) bytes of the
// cyclic frame instead of their sum. Callers still see separate output and
// input slices; only the frame on the wire shrinks. Required by devices that
// insist on reading and writing the same logical range.
func (m *Master) ConfigOverlapMap() error {
	return m.configMap(true)
}

func (m *Master) configMap(overlap bool) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if !m.scanned {
		return ErrNotScanned
	}

	// Config callbacks run first, while every device is still in PREOP. One
	// failure aborts before any image or register state is touched.
	for _, d := range m.devices {
		if d.ConfigFunc == nil {
			continue
		}
		if err := d.ConfigFunc(d); err != nil {
			return &ConfigMapError{Pos: d.pos, Err: err}
		}
	}

	m.buildImage(overlap)

	for _, d := range m.devices {
		if err := m.programMapping(d); err != nil {
			return err
		}
	}

	var expected int32
	for _, d := range m.devices {
		if d.outputLen > 0 {
			expected += 2
		}
		if d.inputLen > 0 {
			expected += 1
		}
	}
	atomic.StoreInt32(&m.expectedWKC, expected)
	m.mapped = true

	m.logger.Info("process data mapped",
		"outputBytes", m.outputBytes, "inputBytes", m.inputBytes,
		"frameBytes", m.frameLen, "expectedWKC", expected, "overlap", overlap)

	// SAFEOP starts the cyclic exchange with outputs held safe.
	for _, d := range m.devices {
		if err := m.WriteState(d, ecat.StateSafeOp); err != nil {
			return err
		}
	}
	for _, d := range m.devices {
		got := m.stateCheck(d, ecat.StateSafeOp, m.cfg.settings.StateTimeout)
		if got.Base() != ecat.StateSafeOp {
			m.logger.Warn("device did not reach SAFEOP after mapping",
				"pos", d.pos, "state", got.String())
		}
	}

	return nil
}

// buildImage assigns image offsets and logical frame addresses to every
// device and allocates the image and cyclic frame buffer.
func (m *Master) buildImage(overlap bool) {
	outBytes := 0
	inBytes := 0
	for _, d := range m.devices {
		d.outputLen = (int(d.outputBits) + 7) / 8
		d.inputLen = (int(d.inputBits) + 7) / 8
		outBytes += d.outputLen
		inBytes += d.inputLen
	}
	m.outputBytes = outBytes
	m.inputBytes = inBytes
	m.image = make([]byte, outBytes+inBytes)
	m.outSegs = nil
	m.inSegs = nil

	// Image layout is fixed: all outputs first, then all inputs.
	outOff := 0
	inOff := outBytes
	for _, d := range m.devices {
		d.outputOffset = outOff
		outOff += d.outputLen
		d.inputOffset = inOff
		inOff += d.inputLen
	}

	// Logical frame layout depends on the mode.
	logical := 0
	for _, d := range m.devices {
		if overlap {
			block := max(d.outputLen, d.inputLen)
			d.logicalOutOff = logical
			d.logicalInOff = logical
			logical += block
		} else {
			d.logicalOutOff = logical
			logical += d.outputLen
		}
	}
	if !overlap {
		for _, d := range m.devices {
			d.logicalInOff = logical
			logical += d.inputLen
		}
	}
	m.frameLen = logical
	m.cycBuf = make([]byte, logical)

	for _, d := range m.devices {
		if d.outputLen > 0 {
			m.outSegs = append(m.outSegs, pdSegment{
				logical: d.logicalOutOff, imageOff: d.outputOffset, length: d.outputLen,
			})
		}
		if d.inputLen > 0 {
			m.inSegs = append(m.inSegs, pdSegment{
				logical: d.logicalInOff, imageOff: d.inputOffset, length: d.inputLen,
			})
		}
	}
}

// programMapping writes one device's process-data sync managers and FMMUs.
func (m *Master) programMapping(d *Device) error {
	if d.outputLen > 0 {
		if err := m.writeSM(d, smProcessOut, pdOutputAddr, uint16(d.outputLen), smCtlOutputs); err != nil {
			return err
		}
		if err := m.writeFMMU(d, ecat.RegFMMU0, d.logicalOutOff, d.outputLen, pdOutputAddr, fmmuTypeWrite); err != nil {
			return err
		}
	}
	if d.inputLen > 0 {
		if err := m.writeSM(d, smProcessIn, pdInputAddr, uint16(d.inputLen), smCtlInputs); err != nil {
			return err
		}
		if err := m.writeFMMU(d, ecat.RegFMMU1, d.logicalInOff, d.inputLen, pdInputAddr, fmmuTypeRead); err != nil {
			return err
		}
	}

	return nil
}

func (m *Master) writeSM(d *Device, sm int, physAddr uint16, length uint16, control uint8) error {
	var buf [ecat.SMEntrySize]byte
	binary.LittleEndian.PutUint16(buf[0:2], physAddr)
	binary.LittleEndian.PutUint16(buf[2:4], length)
	buf[4] = control
	buf[6] = smActivate

	reg := ecat.RegSM0 + uint16(sm)*ecat.SMEntrySize
	_, err := m.fpwr(d.station, reg, buf[:])

	return err
}

func (m *Master) writeFMMU(d *Device, reg uint16, logical int, length int, physAddr uint16, fmmuType uint8) error {
	var buf [16]byte
	binary.LittleEndian.PutUint32(buf[0:4], ecat.LogicalBaseAddr+uint32(logical))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(length))
	buf[6] = 0 // logical start bit
	buf[7] = 7 // logical end bit
	binary.LittleEndian.PutUint16(buf[8:10], physAddr)
	buf[10] = 0 // physical start bit
	buf[11] = fmmuType
	buf[12] = 0x01 // activate

	_, err := m.fpwr(d.station, reg, buf[:])

	return err
}
