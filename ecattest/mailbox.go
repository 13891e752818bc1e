package ecattest

import (
	"encoding/binary"

	"github.com/openecat/go-ecat/coe"
	"github.com/openecat/go-ecat/ecat"
	"github.com/openecat/go-ecat/eoe"
)

// SimObject is one object of a slave's simulated CoE dictionary. VAR objects
// carry their value directly; ARRAY and RECORD objects carry per-subindex
// entries.
type SimObject struct {
	Index    uint16
	Name     string
	Code     uint8
	DataType coe.DataType
	Access   uint16
	Value    []byte

	Entries map[uint8]*SimEntry

	// ReadOnly rejects downloads with the read-only abort code.
	ReadOnly bool
	// WriteAbort, when non-zero, rejects every download with this abort code.
	WriteAbort uint32
}

// SimEntry is one subindex of an ARRAY or RECORD object.
type SimEntry struct {
	Name     string
	DataType coe.DataType
	Access   uint16
	Value    []byte
}

type sdoUploadSession struct {
	active bool
	data   []byte
	offset int
}

type sdoDownloadSession struct {
	active   bool
	index    uint16
	subindex uint8
	total    int
	data     []byte
}

type foeSession struct {
	reading bool
	writing bool
	name    string
	data    []byte
	offset  int
}

type eoeAssembly = eoe.Assembler

const (
	sdoUploadInitReq       = 0x40
	sdoUploadSegmentReq    = 0x60
	sdoDownloadInitNormal  = 0x21
	sdoDownloadExpedited   = 0x23
	sdoDownloadInitResp    = 0x60
	sdoDownloadSegmentResp = 0x20
	sdoUploadInitNormal    = 0x41
	sdoUploadInitExpedited = 0x43
	sdoAbortReq            = 0x80
	sdoToggleBit           = 0x10
	sdoLastBit             = 0x01
)

// mailboxErrUnsupportedProtocol is the detail code of a mailbox error reply.
const mailboxErrUnsupportedProtocol uint16 = 0x0001

func (s *SimSlave) queueTx(frame *ecat.MailboxFrame) {
	s.txQueue = append(s.txQueue, frame)
}

func (s *SimSlave) readTxMailbox(buf []byte) {
	if len(s.txQueue) == 0 {
		for i := range buf {
			buf[i] = 0
		}
		return
	}

	frame := s.txQueue[0]
	s.txQueue = s.txQueue[1:]

	encoded, err := frame.Encode(s.txSize)
	if err != nil {
		for i := range buf {
			buf[i] = 0
		}
		return
	}
	copy(buf, encoded)
}

// capacity is the payload room of one mailbox frame.
func (s *SimSlave) capacity() int {
	return int(min(s.rxSize, s.txSize)) - ecat.MailboxHeaderSize
}

func (s *SimSlave) handleMailbox(raw []byte) {
	frame, err := ecat.DecodeMailboxFrame(raw)
	if err != nil {
		return
	}

	switch frame.Type {
	case ecat.MailboxTypeCoE:
		if s.protos&ecat.MailboxProtoCoE == 0 {
			s.queueMailboxError()
			return
		}
		s.handleCoE(frame.Data)

	case ecat.MailboxTypeFoE:
		if s.protos&ecat.MailboxProtoFoE == 0 {
			s.queueMailboxError()
			return
		}
		s.handleFoE(frame.Data)

	case ecat.MailboxTypeEoE:
		if s.protos&ecat.MailboxProtoEoE == 0 {
			s.queueMailboxError()
			return
		}
		s.handleEoE(frame)

	default:
		s.queueMailboxError()
	}
}

func (s *SimSlave) queueMailboxError() {
	body := make([]byte, 4)
	binary.LittleEndian.PutUint16(body[0:2], 0x01)
	binary.LittleEndian.PutUint16(body[2:4], mailboxErrUnsupportedProtocol)
	s.queueTx(&ecat.MailboxFrame{Type: ecat.MailboxTypeError, Data: body})
}

// CoE

func (s *SimSlave) handleCoE(data []byte) {
	if len(data) < 2 {
		return
	}
	service := coe.Service(binary.LittleEndian.Uint16(data[0:2]) >> 12)
	body := data[2:]

	switch service {
	case coe.ServiceSDORequest:
		// A fresh request invalidates responses the master never collected;
		// queued emergencies survive.
		s.dropStaleSDOResponses()
		s.handleSDO(body)
	case coe.ServiceSDOInfo:
		s.handleInfo(body)
	}
}

func (s *SimSlave) dropStaleSDOResponses() {
	kept := s.txQueue[:0]
	for _, f := range s.txQueue {
		if _, isEmcy := coe.ParseEmergencyFrame(0, f); isEmcy {
			kept = append(kept, f)
		}
	}
	s.txQueue = kept
}

func (s *SimSlave) queueSDO(body []byte) {
	// every SDO response body is at least 8 bytes on the wire
	for len(body) < 8 {
		body = append(body, 0)
	}
	payload := make([]byte, 2+len(body))
	binary.LittleEndian.PutUint16(payload[0:2], uint16(coe.ServiceSDOResponse)<<12)
	copy(payload[2:], body)
	s.queueTx(&ecat.MailboxFrame{Type: ecat.MailboxTypeCoE, Data: payload})
}

func (s *SimSlave) queueAbort(index uint16, subindex uint8, code uint32) {
	body := make([]byte, 8)
	body[0] = sdoAbortReq
	binary.LittleEndian.PutUint16(body[1:3], index)
	body[3] = subindex
	binary.LittleEndian.PutUint32(body[4:8], code)
	s.queueSDO(body)
}

// objectValue resolves an index/subindex to its value slot, or a non-zero
// abort code.
func (s *SimSlave) objectValue(index uint16, subindex uint8) (*[]byte, uint32) {
	obj, ok := s.objects[index]
	if !ok {
		return nil, coe.AbortObjectMissing
	}

	if obj.Code == coe.ObjectCodeVar {
		if subindex != 0 {
			return nil, coe.AbortSubindexMissing
		}
		return &obj.Value, 0
	}

	entry, ok := obj.Entries[subindex]
	if !ok {
		return nil, coe.AbortSubindexMissing
	}

	return &entry.Value, 0
}

func (s *SimSlave) handleSDO(body []byte) {
	if len(body) == 0 {
		return
	}
	cmd := body[0]

	switch {
	case cmd == sdoUploadInitReq:
		s.handleUploadInit(body)

	case cmd&0xEF == sdoUploadSegmentReq:
		s.handleUploadSegment(cmd & sdoToggleBit)

	case cmd&0xE3 == sdoDownloadExpedited:
		s.handleDownloadExpedited(body)

	case cmd == sdoDownloadInitNormal:
		s.handleDownloadNormal(body)

	case cmd&0xE0 == 0x00 && s.sdoDwn.active:
		s.handleDownloadSegment(body)

	case cmd == sdoAbortReq:
		s.sdoUp = sdoUploadSession{}
		s.sdoDwn = sdoDownloadSession{}

	default:
		s.queueAbort(0, 0, coe.AbortInvalidCommand)
	}
}

func (s *SimSlave) handleUploadInit(body []byte) {
	if len(body) < 4 {
		return
	}
	index := binary.LittleEndian.Uint16(body[1:3])
	subindex := body[3]

	val, abort := s.objectValue(index, subindex)
	if abort != 0 {
		s.queueAbort(index, subindex, abort)
		return
	}
	value := *val

	if len(value) <= 4 {
		resp := make([]byte, 8)
		resp[0] = sdoUploadInitExpedited | byte(4-len(value))<<2
		binary.LittleEndian.PutUint16(resp[1:3], index)
		resp[3] = subindex
		copy(resp[4:], value)
		s.queueSDO(resp)
		return
	}

	inlineMax := s.capacity() - 2 - 8
	inline := min(len(value), inlineMax)

	resp := make([]byte, 8+inline)
	resp[0] = sdoUploadInitNormal
	binary.LittleEndian.PutUint16(resp[1:3], index)
	resp[3] = subindex
	binary.LittleEndian.PutUint32(resp[4:8], uint32(len(value)))
	copy(resp[8:], value[:inline])
	s.queueSDO(resp)

	if inline < len(value) {
		s.sdoUp = sdoUploadSession{active: true, data: value, offset: inline}
	} else {
		s.sdoUp = sdoUploadSession{}
	}
}

func (s *SimSlave) handleUploadSegment(toggle byte) {
	if !s.sdoUp.active {
		s.queueAbort(0, 0, coe.AbortInvalidCommand)
		return
	}

	segMax := s.capacity() - 2 - 1
	n := min(len(s.sdoUp.data)-s.sdoUp.offset, segMax)

	resp := make([]byte, 1+n)
	resp[0] = toggle
	copy(resp[1:], s.sdoUp.data[s.sdoUp.offset:s.sdoUp.offset+n])
	s.sdoUp.offset += n

	if s.sdoUp.offset == len(s.sdoUp.data) {
		resp[0] |= sdoLastBit
		s.sdoUp = sdoUploadSession{}
	}
	s.queueSDO(resp)
}

func (s *SimSlave) handleDownloadExpedited(body []byte) {
	if len(body) < 8 {
		return
	}
	index := binary.LittleEndian.Uint16(body[1:3])
	subindex := body[3]
	n := 4 - int(body[0]>>2&0x3)

	s.storeDownload(index, subindex, append([]byte(nil), body[4:4+n]...))
}

func (s *SimSlave) handleDownloadNormal(body []byte) {
	if len(body) < 8 {
		return
	}
	index := binary.LittleEndian.Uint16(body[1:3])
	subindex := body[3]
	total := int(binary.LittleEndian.Uint32(body[4:8]))
	first := append([]byte(nil), body[8:]...)

	if len(first) >= total {
		s.storeDownload(index, subindex, first[:total])
		return
	}

	s.sdoDwn = sdoDownloadSession{active: true, index: index, subindex: subindex, total: total, data: first}

	resp := make([]byte, 8)
	resp[0] = sdoDownloadInitResp
	binary.LittleEndian.PutUint16(resp[1:3], index)
	resp[3] = subindex
	s.queueSDO(resp)
}

func (s *SimSlave) handleDownloadSegment(body []byte) {
	toggle := body[0] & sdoToggleBit
	last := body[0]&sdoLastBit != 0

	s.sdoDwn.data = append(s.sdoDwn.data, body[1:]...)

	if last {
		data := s.sdoDwn.data
		if len(data) > s.sdoDwn.total {
			data = data[:s.sdoDwn.total]
		}
		index, subindex := s.sdoDwn.index, s.sdoDwn.subindex
		s.sdoDwn = sdoDownloadSession{}
		s.storeDownloadSegmented(index, subindex, data, toggle)
		return
	}

	s.queueSDO([]byte{sdoDownloadSegmentResp | toggle})
}

func (s *SimSlave) storeDownloadSegmented(index uint16, subindex uint8, data []byte, toggle byte) {
	if abort := s.checkWrite(index, subindex); abort != 0 {
		s.queueAbort(index, subindex, abort)
		return
	}
	val, abort := s.objectValue(index, subindex)
	if abort != 0 {
		s.queueAbort(index, subindex, abort)
		return
	}
	*val = data
	s.queueSDO([]byte{sdoDownloadSegmentResp | toggle})
}

func (s *SimSlave) storeDownload(index uint16, subindex uint8, data []byte) {
	if abort := s.checkWrite(index, subindex); abort != 0 {
		s.queueAbort(index, subindex, abort)
		return
	}
	val, abort := s.objectValue(index, subindex)
	if abort != 0 {
		s.queueAbort(index, subindex, abort)
		return
	}
	*val = data

	resp := make([]byte, 8)
	resp[0] = sdoDownloadInitResp
	binary.LittleEndian.PutUint16(resp[1:3], index)
	resp[3] = subindex
	s.queueSDO(resp)
}

func (s *SimSlave) checkWrite(index uint16, subindex uint8) uint32 {
	obj, ok := s.objects[index]
	if !ok {
		return coe.AbortObjectMissing
	}
	if obj.WriteAbort != 0 {
		return obj.WriteAbort
	}
	if obj.ReadOnly {
		return coe.AbortReadOnly
	}
	return 0
}
