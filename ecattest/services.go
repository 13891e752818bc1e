package ecattest

import (
	"encoding/binary"
	"sort"

	"github.com/openecat/go-ecat/coe"
	"github.com/openecat/go-ecat/ecat"
	"github.com/openecat/go-ecat/foe"
)

// SDO information service.

const (
	infoHeaderSize  = 4
	infoOpODList    = 0x01
	infoOpODListRsp = 0x02
	infoOpObjReq    = 0x03
	infoOpObjRsp    = 0x04
	infoOpEntryReq  = 0x05
	infoOpEntryRsp  = 0x06
	infoOpError     = 0x07
)

func (s *SimSlave) queueInfo(opcode uint8, fragmentsLeft uint16, opData []byte) {
	s.queueTx(&ecat.MailboxFrame{
		Type: ecat.MailboxTypeCoE,
		Data: coe.EncodeInfo(opcode, fragmentsLeft, opData),
	})
}

func (s *SimSlave) queueInfoError(code uint32) {
	opData := make([]byte, 4)
	binary.LittleEndian.PutUint32(opData, code)
	s.queueInfo(infoOpError, 0, opData)
}

func (s *SimSlave) handleInfo(body []byte) {
	if !s.infoSupport {
		s.queueInfoError(coe.AbortInvalidCommand)
		return
	}
	if len(body) < infoHeaderSize {
		return
	}
	opcode := body[0] & 0x7F
	opData := body[infoHeaderSize:]

	switch opcode {
	case infoOpODList:
		s.serveODList()
	case infoOpObjReq:
		if len(opData) >= 2 {
			s.serveObjectDescription(binary.LittleEndian.Uint16(opData[0:2]))
		}
	case infoOpEntryReq:
		if len(opData) >= 3 {
			s.serveEntryDescription(binary.LittleEndian.Uint16(opData[0:2]), opData[2])
		}
	default:
		s.queueInfoError(coe.AbortInvalidCommand)
	}
}

func (s *SimSlave) sortedIndexes() []uint16 {
	indexes := make([]uint16, 0, len(s.objects))
	for idx := range s.objects {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	return indexes
}

func (s *SimSlave) serveODList() {
	indexes := s.sortedIndexes()

	raw := make([]byte, 2+2*len(indexes))
	binary.LittleEndian.PutUint16(raw[0:2], 0x0001) // echoed list type
	for i, idx := range indexes {
		binary.LittleEndian.PutUint16(raw[2+2*i:4+2*i], idx)
	}

	// long lists continue in back-to-back fragments
	capPerFrame := s.capacity() - 2 - infoHeaderSize
	var chunks [][]byte
	for off := 0; off < len(raw) || off == 0; {
		n := min(len(raw)-off, capPerFrame)
		chunks = append(chunks, raw[off:off+n])
		off += n
		if off >= len(raw) {
			break
		}
	}

	for i, chunk := range chunks {
		s.queueInfo(infoOpODListRsp, uint16(len(chunks)-1-i), chunk)
	}
}

func (s *SimSlave) serveObjectDescription(index uint16) {
	obj, ok := s.objects[index]
	if !ok {
		s.queueInfoError(coe.AbortObjectMissing)
		return
	}

	maxSub := uint8(0)
	for sub := range obj.Entries {
		if sub > maxSub {
			maxSub = sub
		}
	}

	opData := make([]byte, 6+len(obj.Name))
	binary.LittleEndian.PutUint16(opData[0:2], index)
	binary.LittleEndian.PutUint16(opData[2:4], uint16(obj.DataType))
	opData[4] = maxSub
	opData[5] = obj.Code
	copy(opData[6:], obj.Name)
	s.queueInfo(infoOpObjRsp, 0, opData)
}

func (s *SimSlave) serveEntryDescription(index uint16, subindex uint8) {
	obj, ok := s.objects[index]
	if !ok {
		s.queueInfoError(coe.AbortObjectMissing)
		return
	}

	var name string
	var dataType coe.DataType
	var bitLength int
	var access uint16

	if obj.Code == coe.ObjectCodeVar {
		if subindex != 0 {
			s.queueInfoError(coe.AbortSubindexMissing)
			return
		}
		name, dataType, access = obj.Name, obj.DataType, obj.Access
		bitLength = len(obj.Value) * 8
	} else {
		entry, ok := obj.Entries[subindex]
		if !ok {
			s.queueInfoError(coe.AbortSubindexMissing)
			return
		}
		name, dataType, access = entry.Name, entry.DataType, entry.Access
		bitLength = len(entry.Value) * 8
	}

	opData := make([]byte, 10+len(name))
	binary.LittleEndian.PutUint16(opData[0:2], index)
	opData[2] = subindex
	opData[3] = 0 // value info
	binary.LittleEndian.PutUint16(opData[4:6], uint16(dataType))
	binary.LittleEndian.PutUint16(opData[6:8], uint16(bitLength))
	binary.LittleEndian.PutUint16(opData[8:10], access)
	copy(opData[10:], name)
	s.queueInfo(infoOpEntryRsp, 0, opData)
}

// File access.

const foeHeaderSize = 6

func (s *SimSlave) queueFoE(opcode uint8, field uint32, data []byte) {
	body := make([]byte, foeHeaderSize+len(data))
	body[0] = opcode
	binary.LittleEndian.PutUint32(body[2:6], field)
	copy(body[foeHeaderSize:], data)
	s.queueTx(&ecat.MailboxFrame{Type: ecat.MailboxTypeFoE, Data: body})
}

func (s *SimSlave) foeSegMax() int {
	return s.capacity() - foeHeaderSize
}

func (s *SimSlave) handleFoE(body []byte) {
	if len(body) < foeHeaderSize {
		return
	}
	opcode := body[0]
	field := binary.LittleEndian.Uint32(body[2:6])
	data := body[foeHeaderSize:]

	switch opcode {
	case foe.OpRead:
		name := string(data)
		content, ok := s.files[name]
		if !ok {
			s.foe = foeSession{}
			s.queueFoE(foe.OpError, foe.ErrCodeNotFound, []byte("file not found"))
			return
		}
		s.foe = foeSession{reading: true, name: name, data: content}
		s.serveFoEData()

	case foe.OpAck:
		if s.foe.reading {
			s.serveFoEData()
		}

	case foe.OpWrite:
		s.foe = foeSession{writing: true, name: string(data)}
		s.queueFoE(foe.OpAck, 0, nil)

	case foe.OpData:
		if !s.foe.writing {
			s.queueFoE(foe.OpError, foe.ErrCodeIllegal, nil)
			return
		}
		s.foe.data = append(s.foe.data, data...)
		s.queueFoE(foe.OpAck, field, nil)
		if len(data) < s.foeSegMax() {
			s.files[s.foe.name] = s.foe.data
			s.foe = foeSession{}
		}

	case foe.OpError:
		s.foe = foeSession{}
	}
}

// serveFoEData queues the next data packet of a read session. A short (or
// empty) packet terminates the transfer on the master side.
func (s *SimSlave) serveFoEData() {
	segMax := s.foeSegMax()
	n := min(len(s.foe.data)-s.foe.offset, segMax)

	packet := uint32(s.foe.offset/segMax) + 1
	s.queueFoE(foe.OpData, packet, s.foe.data[s.foe.offset:s.foe.offset+n])
	s.foe.offset += n

	if n < segMax {
		s.foe = foeSession{}
	}
}

// Tunneled Ethernet.

const (
	eoeTypeFragment  = 0x0
	eoeTypeInitReq   = 0x2
	eoeTypeInitResp  = 0x3
	eoeTypeGetIPReq  = 0x4
	eoeTypeGetIPResp = 0x5

	eoeIPParamSize = 4 + 6 + 4*4 + 32
)

func (s *SimSlave) queueEoE(eoeType uint8, payload []byte) {
	body := make([]byte, 4+len(payload))
	// single complete fragment
	binary.LittleEndian.PutUint16(body[0:2], uint16(eoeType)&0x0F|1<<8)
	copy(body[4:], payload)
	s.queueTx(&ecat.MailboxFrame{Type: ecat.MailboxTypeEoE, Data: body})
}

func (s *SimSlave) handleEoE(frame *ecat.MailboxFrame) {
	if len(frame.Data) < 4 {
		return
	}
	eoeType := uint8(binary.LittleEndian.Uint16(frame.Data[0:2]) & 0x0F)

	switch eoeType {
	case eoeTypeFragment:
		full, err := s.eoeRx.Add(frame.Data)
		if err != nil || full == nil {
			return
		}
		if s.OnEthernetFrame != nil {
			s.OnEthernetFrame(full)
		}

	case eoeTypeInitReq:
		s.ipParam = append([]byte(nil), frame.Data[4:]...)
		result := make([]byte, 4) // zero: accepted
		s.queueEoE(eoeTypeInitResp, result)

	case eoeTypeGetIPReq:
		param := s.ipParam
		if len(param) < eoeIPParamSize {
			param = make([]byte, eoeIPParamSize)
		}
		s.queueEoE(eoeTypeGetIPResp, param)
	}
}
