package coe

import (
	"encoding/binary"

	"github.com/openecat/go-ecat/ecat"
)

const emergencySize = 8

// parseEmergency decodes an emergency service body.
func parseEmergency(pos int, body []byte) (*Emergency, bool) {
	if len(body) < emergencySize {
		return nil, false
	}
	return &Emergency{
		Pos:       pos,
		ErrorCode: binary.LittleEndian.Uint16(body[0:2]),
		ErrorReg:  body[2],
		B1:        body[3],
		W1:        binary.LittleEndian.Uint16(body[4:6]),
		W2:        binary.LittleEndian.Uint16(body[6:8]),
	}, true
}

// ParseEmergencyFrame inspects a received mailbox frame and decodes it as a
// CoE emergency if it is one. The master's mailbox poll uses it to route
// unsolicited emergencies to the registered handler.
func ParseEmergencyFrame(pos int, frame *ecat.MailboxFrame) (*Emergency, bool) {
	if frame == nil || frame.Type != ecat.MailboxTypeCoE {
		return nil, false
	}
	service, body, err := decodeHeader(frame.Data)
	if err != nil || service != ServiceEmergency {
		return nil, false
	}
	return parseEmergency(pos, body)
}

// EncodeEmergency builds the CoE mailbox payload of an emergency message.
// Slaves (and the test bus) use it to emit emergencies.
func EncodeEmergency(e *Emergency) []byte {
	body := make([]byte, emergencySize)
	binary.LittleEndian.PutUint16(body[0:2], e.ErrorCode)
	body[2] = e.ErrorReg
	body[3] = e.B1
	binary.LittleEndian.PutUint16(body[4:6], e.W1)
	binary.LittleEndian.PutUint16(body[6:8], e.W2)
	return encodeHeader(ServiceEmergency, body)
}
