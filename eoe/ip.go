package eoe

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/openecat/go-ecat/ecat"
)

// IPParam is the set of IP-layer parameters a slave's tunneled interface
// carries. Nil/empty fields are not transferred.
type IPParam struct {
	MAC     net.HardwareAddr
	IP      net.IP
	Netmask net.IP
	Gateway net.IP
	DNS     net.IP
	DNSName string
}

const (
	flagMAC     = 1 << 0
	flagIP      = 1 << 1
	flagNetmask = 1 << 2
	flagGateway = 1 << 3
	flagDNS     = 1 << 4
	flagDNSName = 1 << 5
)

const dnsNameSize = 32

// ipParamSize is the fixed encoded size: flags + mac + 4 addresses + name.
const ipParamSize = 4 + 6 + 4*4 + dnsNameSize

func (p *IPParam) encode() []byte {
	buf := make([]byte, ipParamSize)
	var flags uint32

	off := 4
	if len(p.MAC) == 6 {
		flags |= flagMAC
		copy(buf[off:off+6], p.MAC)
	}
	off += 6
	for i, addr := range []net.IP{p.IP, p.Netmask, p.Gateway, p.DNS} {
		if v4 := addr.To4(); v4 != nil {
			flags |= 1 << (i + 1)
			copy(buf[off:off+4], v4)
		}
		off += 4
	}
	if p.DNSName != "" {
		flags |= flagDNSName
		copy(buf[off:off+dnsNameSize], p.DNSName)
	}

	binary.LittleEndian.PutUint32(buf[0:4], flags)

	return buf
}

func decodeIPParam(body []byte) (*IPParam, error) {
	if len(body) < ipParamSize {
		return nil, fmt.Errorf("%w: IP parameter payload truncated", ecat.ErrInvalidMailboxFrame)
	}

	flags := binary.LittleEndian.Uint32(body[0:4])
	p := &IPParam{}

	off := 4
	if flags&flagMAC != 0 {
		p.MAC = net.HardwareAddr(append([]byte(nil), body[off:off+6]...))
	}
	off += 6
	addrs := []*net.IP{&p.IP, &p.Netmask, &p.Gateway, &p.DNS}
	for i, dst := range addrs {
		if flags&(1<<(i+1)) != 0 {
			*dst = net.IP(append([]byte(nil), body[off:off+4]...))
		}
		off += 4
	}
	if flags&flagDNSName != 0 {
		name := body[off : off+dnsNameSize]
		for len(name) > 0 && name[len(name)-1] == 0 {
			name = name[:len(name)-1]
		}
		p.DNSName = string(name)
	}

	return p, nil
}

// SetIP transfers IP parameters to the slave's tunneled interface.
func SetIP(mbx ecat.Mailbox, param *IPParam, timeout time.Duration) error {
	h := header{Type: TypeInitReq, LastFragment: true}
	resp, err := mbx.Exchange(&ecat.MailboxFrame{Type: ecat.MailboxTypeEoE, Data: h.encode(param.encode())}, timeout)
	if err != nil {
		return err
	}
	if mbxErr, ok := ecat.AsMailboxError(mbx.Pos(), resp); ok {
		return mbxErr
	}

	rh, body, err := decodeHeader(resp.Data)
	if err != nil {
		return err
	}
	if rh.Type != TypeInitResp || len(body) < 4 {
		return fmt.Errorf("%w: unexpected EoE init response", ecat.ErrInvalidMailboxFrame)
	}
	if result := binary.LittleEndian.Uint32(body[0:4]); result != 0 {
		return fmt.Errorf("slave %d: EoE set IP rejected with result 0x%08X", mbx.Pos(), result)
	}

	return nil
}

// GetIP reads the IP parameters of the slave's tunneled interface.
func GetIP(mbx ecat.Mailbox, timeout time.Duration) (*IPParam, error) {
	h := header{Type: TypeGetIPReq, LastFragment: true}
	resp, err := mbx.Exchange(&ecat.MailboxFrame{Type: ecat.MailboxTypeEoE, Data: h.encode(nil)}, timeout)
	if err != nil {
		return nil, err
	}
	if mbxErr, ok := ecat.AsMailboxError(mbx.Pos(), resp); ok {
		return nil, mbxErr
	}

	rh, body, err := decodeHeader(resp.Data)
	if err != nil {
		return nil, err
	}
	if rh.Type != TypeGetIPResp {
		return nil, fmt.Errorf("%w: unexpected EoE get IP response", ecat.ErrInvalidMailboxFrame)
	}

	return decodeIPParam(body)
}
