package coe

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/openecat/go-ecat/ecat"
)

// SDO command specifiers, request direction.
const (
	sdoDownloadInitNormal    = 0x21
	sdoDownloadInitExpedited = 0x23
	sdoUploadInit            = 0x40
	sdoUploadSegment         = 0x60
	sdoAbort                 = 0x80
)

// SDO command specifiers, response direction.
const (
	sdoDownloadInitResp    = 0x60
	sdoDownloadSegmentResp = 0x20
	sdoUploadInitNormal    = 0x41
	sdoUploadInitExpedited = 0x43
)

const (
	sdoToggleBit  = 0x10
	sdoLastBit    = 0x01
	sdoInitSize   = 8
	sdoExpMaxData = 4
)

// Read reads the value of an object by index and subindex into buf and
// returns the number of bytes read.
//
// It fails with *PacketError (code PacketErrorDataContainerTooSmall) when buf
// cannot hold the slave's value, with *SdoError when the slave rejects the
// access, and with *Emergency when a pending emergency message is observed
// instead of the response.
func Read(mbx ecat.Mailbox, index uint16, subindex uint8, buf []byte, timeout time.Duration) (int, error) {
	out, err := upload(mbx, index, subindex, buf, timeout)
	if err != nil {
		return 0, err
	}
	return len(out), nil
}

// ReadBytes reads the full value of an object into a freshly allocated buffer
// sized from the length the slave advertises in its response.
func ReadBytes(mbx ecat.Mailbox, index uint16, subindex uint8, timeout time.Duration) ([]byte, error) {
	return upload(mbx, index, subindex, nil, timeout)
}

// upload performs an SDO upload into buf and returns the value. A nil buf
// allocates one sized to the slave's advertised length, so the value comes
// back whole regardless of its size.
func upload(mbx ecat.Mailbox, index uint16, subindex uint8, buf []byte, timeout time.Duration) ([]byte, error) {
	req := make([]byte, sdoInitSize)
	req[0] = sdoUploadInit
	binary.LittleEndian.PutUint16(req[1:3], index)
	req[3] = subindex

	body, err := exchangeSDO(mbx, req, index, subindex, timeout)
	if err != nil {
		return nil, err
	}

	switch {
	case body[0]&sdoUploadInitExpedited == sdoUploadInitExpedited:
		// Expedited transfer: up to 4 bytes inline.
		n := sdoExpMaxData - int(body[0]>>2&0x3)
		if buf == nil {
			buf = make([]byte, n)
		}
		if n > len(buf) {
			return nil, &PacketError{Pos: mbx.Pos(), Index: index, Subindex: subindex, ErrorCode: PacketErrorDataContainerTooSmall}
		}
		if sdoInitSize > len(body) || n > sdoExpMaxData {
			return nil, fmt.Errorf("%w: expedited SDO response truncated", ecat.ErrInvalidMailboxFrame)
		}
		copy(buf, body[4:4+n])

		return buf[:n], nil

	case body[0] == sdoUploadInitNormal:
		// Normal transfer: total size followed by inline data, then segments.
		if len(body) < sdoInitSize {
			return nil, fmt.Errorf("%w: SDO response truncated", ecat.ErrInvalidMailboxFrame)
		}
		total := int(binary.LittleEndian.Uint32(body[4:8]))
		if buf == nil {
			buf = make([]byte, total)
		}
		if total > len(buf) {
			return nil, &PacketError{Pos: mbx.Pos(), Index: index, Subindex: subindex, ErrorCode: PacketErrorDataContainerTooSmall}
		}

		n := copy(buf[:total], body[sdoInitSize:])
		toggle := byte(0)
		for n < total {
			seg, last, err := uploadSegment(mbx, index, subindex, toggle, timeout)
			if err != nil {
				return nil, err
			}
			n += copy(buf[n:total], seg)
			if last {
				break
			}
			toggle ^= sdoToggleBit
		}
		if n < total {
			return nil, fmt.Errorf("%w: segmented upload ended early at %d of %d bytes",
				ecat.ErrInvalidMailboxFrame, n, total)
		}

		return buf[:total], nil

	default:
		return nil, &PacketError{Pos: mbx.Pos(), Index: index, Subindex: subindex, ErrorCode: PacketErrorUnexpectedFrame}
	}
}

// Write writes data to an object by index and subindex.
//
// Values of up to four bytes go out as an expedited download; longer values
// use a normal download, segmented when they exceed the mailbox capacity.
func Write(mbx ecat.Mailbox, index uint16, subindex uint8, data []byte, timeout time.Duration) error {
	if len(data) <= sdoExpMaxData {
		req := make([]byte, sdoInitSize)
		req[0] = sdoDownloadInitExpedited | byte(sdoExpMaxData-len(data))<<2
		binary.LittleEndian.PutUint16(req[1:3], index)
		req[3] = subindex
		copy(req[4:], data)

		body, err := exchangeSDO(mbx, req, index, subindex, timeout)
		if err != nil {
			return err
		}
		if body[0] != sdoDownloadInitResp {
			return &PacketError{Pos: mbx.Pos(), Index: index, Subindex: subindex, ErrorCode: PacketErrorUnexpectedFrame}
		}

		return nil
	}

	initMax := mbx.Capacity() - headerSize - sdoInitSize
	if initMax <= 0 {
		return ecat.ErrMailboxUnsupported
	}

	first := min(len(data), initMax)
	req := make([]byte, sdoInitSize+first)
	req[0] = sdoDownloadInitNormal
	binary.LittleEndian.PutUint16(req[1:3], index)
	req[3] = subindex
	binary.LittleEndian.PutUint32(req[4:8], uint32(len(data)))
	copy(req[sdoInitSize:], data[:first])

	body, err := exchangeSDO(mbx, req, index, subindex, timeout)
	if err != nil {
		return err
	}
	if body[0] != sdoDownloadInitResp {
		return &PacketError{Pos: mbx.Pos(), Index: index, Subindex: subindex, ErrorCode: PacketErrorUnexpectedFrame}
	}

	// Remainder goes out in segments with an alternating toggle bit.
	segMax := mbx.Capacity() - headerSize - 1
	toggle := byte(0)
	for sent := first; sent < len(data); {
		n := min(len(data)-sent, segMax)
		seg := make([]byte, 1+n)
		seg[0] = toggle
		if sent+n == len(data) {
			seg[0] |= sdoLastBit
		}
		copy(seg[1:], data[sent:sent+n])

		body, err := exchangeSDO(mbx, seg, index, subindex, timeout)
		if err != nil {
			return err
		}
		if body[0]&0xE0 != sdoDownloadSegmentResp || body[0]&sdoToggleBit != toggle&sdoToggleBit {
			return &SdoError{Pos: mbx.Pos(), Index: index, Subindex: subindex, AbortCode: AbortToggleBit}
		}

		sent += n
		toggle ^= sdoToggleBit
	}

	return nil
}

// uploadSegment requests the next segment of a segmented upload.
func uploadSegment(mbx ecat.Mailbox, index uint16, subindex uint8, toggle byte, timeout time.Duration) ([]byte, bool, error) {
	req := make([]byte, sdoInitSize)
	req[0] = sdoUploadSegment | toggle

	body, err := exchangeSDO(mbx, req, index, subindex, timeout)
	if err != nil {
		return nil, false, err
	}
	if body[0]&0xE0 != 0 || body[0]&sdoToggleBit != toggle {
		return nil, false, &SdoError{Pos: mbx.Pos(), Index: index, Subindex: subindex, AbortCode: AbortToggleBit}
	}

	return body[1:], body[0]&sdoLastBit != 0, nil
}

// exchangeSDO performs one SDO mailbox round trip and returns the response
// body after the CoE header. A pending emergency message observed instead of
// the response is raised as *Emergency. An SDO abort is raised as *SdoError.
func exchangeSDO(mbx ecat.Mailbox, payload []byte, index uint16, subindex uint8, timeout time.Duration) ([]byte, error) {
	resp, err := mbx.Exchange(&ecat.MailboxFrame{
		Type: ecat.MailboxTypeCoE,
		Data: encodeHeader(ServiceSDORequest, payload),
	}, timeout)
	if err != nil {
		return nil, err
	}
	if mbxErr, ok := ecat.AsMailboxError(mbx.Pos(), resp); ok {
		return nil, mbxErr
	}
	if resp.Type != ecat.MailboxTypeCoE {
		return nil, fmt.Errorf("%w: %s response to CoE request", ecat.ErrInvalidMailboxFrame, resp.Type)
	}

	service, body, err := decodeHeader(resp.Data)
	if err != nil {
		return nil, err
	}

	if service == ServiceEmergency {
		if emcy, ok := parseEmergency(mbx.Pos(), body); ok {
			return nil, emcy
		}
		return nil, fmt.Errorf("%w: malformed emergency payload", ecat.ErrInvalidMailboxFrame)
	}
	if service != ServiceSDOResponse {
		return nil, &PacketError{Pos: mbx.Pos(), Index: index, Subindex: subindex, ErrorCode: PacketErrorUnexpectedFrame}
	}
	if len(body) < sdoInitSize {
		return nil, fmt.Errorf("%w: SDO response truncated", ecat.ErrInvalidMailboxFrame)
	}

	if body[0] == sdoAbort {
		return nil, &SdoError{
			Pos:       mbx.Pos(),
			Index:     binary.LittleEndian.Uint16(body[1:3]),
			Subindex:  body[3],
			AbortCode: binary.LittleEndian.Uint32(body[4:8]),
		}
	}

	return body, nil
}
