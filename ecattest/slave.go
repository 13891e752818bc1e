package ecattest

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/openecat/go-ecat/coe"
	"github.com/openecat/go-ecat/ecat"
)

// Default mailbox and process-data buffer layout in slave memory.
const (
	defaultRxMailboxAddr uint16 = 0x1000
	defaultTxMailboxAddr uint16 = 0x1080
	defaultMailboxSize   uint16 = 128

	outputBufferAddr uint16 = 0x1100
	inputBufferAddr  uint16 = 0x1400
)

const defaultWatchdogDivider uint16 = 2498

// SimSlave is one simulated slave: 64 KiB of addressable memory with the
// standard register semantics hooked in, an SII EEPROM image, an
// application-layer state machine and mailbox protocol servers.
//
// All methods are safe for concurrent use; the bus serializes datagram
// processing per segment.
type SimSlave struct {
	mu sync.Mutex

	mem    [0x10000]byte
	eeprom map[uint16]uint16

	rxAddr uint16
	rxSize uint16
	txAddr uint16
	txSize uint16
	protos uint16

	outputBits uint16
	inputBits  uint16

	txQueue []*ecat.MailboxFrame

	objects     map[uint16]*SimObject
	files       map[string][]byte
	infoSupport bool

	foe    foeSession
	sdoUp  sdoUploadSession
	sdoDwn sdoDownloadSession
	eoeRx  eoeAssembly

	ipParam []byte

	// OnEthernetFrame receives every complete tunneled Ethernet frame the
	// master sends to this slave.
	OnEthernetFrame func(frame []byte)

	unplugged atomic.Bool
	failTrans map[ecat.DeviceState]uint16
}

// SimOption configures a SimSlave.
type SimOption func(s *SimSlave)

// WithIdentity sets the SII identity words.
func WithIdentity(vendor, product, revision, serial uint32) SimOption {
	return func(s *SimSlave) {
		s.setEEPROMU32(ecat.SIIVendorID, vendor)
		s.setEEPROMU32(ecat.SIIProductCode, product)
		s.setEEPROMU32(ecat.SIIRevision, revision)
		s.setEEPROMU32(ecat.SIISerial, serial)
	}
}

// WithIO sets the process-data sizes in bits.
func WithIO(outputBits, inputBits uint16) SimOption {
	return func(s *SimSlave) {
		s.outputBits = outputBits
		s.inputBits = inputBits
	}
}

// WithoutMailbox removes the mailbox entirely.
func WithoutMailbox() SimOption {
	return func(s *SimSlave) {
		s.rxAddr, s.rxSize, s.txAddr, s.txSize, s.protos = 0, 0, 0, 0, 0
	}
}

// WithProtocols sets the supported mailbox protocol bits
// (ecat.MailboxProtoCoE and friends).
func WithProtocols(protos uint16) SimOption {
	return func(s *SimSlave) { s.protos = protos }
}

// WithMailboxSize overrides the default mailbox buffer size.
func WithMailboxSize(size uint16) SimOption {
	return func(s *SimSlave) {
		s.rxSize = size
		s.txSize = size
		s.txAddr = s.rxAddr + size
	}
}

// WithObject adds an object to the slave's CoE dictionary.
func WithObject(obj *SimObject) SimOption {
	return func(s *SimSlave) { s.objects[obj.Index] = obj }
}

// WithName installs the manufacturer device name object (0x1008).
func WithName(name string) SimOption {
	return WithObject(&SimObject{
		Index:    0x1008,
		Name:     "Device name",
		Code:     coe.ObjectCodeVar,
		DataType: coe.TypeVisibleString,
		Access:   coe.AccessReadAll,
		Value:    []byte(name),
	})
}

// WithoutSDOInfo disables the SDO information service; directory reads fail
// with the unsupported-command abort.
func WithoutSDOInfo() SimOption {
	return func(s *SimSlave) { s.infoSupport = false }
}

// WithFile seeds a file readable and writable over FoE.
func WithFile(name string, data []byte) SimOption {
	return func(s *SimSlave) { s.files[name] = data }
}

// NewSimSlave builds a slave with a CoE-capable mailbox and no process data
// unless configured otherwise.
func NewSimSlave(opts ...SimOption) *SimSlave {
	s := &SimSlave{
		eeprom:      make(map[uint16]uint16),
		infoSupport: true,
		objects:     make(map[uint16]*SimObject),
		files:       make(map[string][]byte),
		failTrans:   make(map[ecat.DeviceState]uint16),
		rxAddr:      defaultRxMailboxAddr,
		rxSize:      defaultMailboxSize,
		txAddr:      defaultTxMailboxAddr,
		txSize:      defaultMailboxSize,
		protos:      ecat.MailboxProtoCoE,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.setEEPROMWord(ecat.SIIRxMailboxAddr, s.rxAddr)
	s.setEEPROMWord(ecat.SIIRxMailboxSize, s.rxSize)
	s.setEEPROMWord(ecat.SIITxMailboxAddr, s.txAddr)
	s.setEEPROMWord(ecat.SIITxMailboxSize, s.txSize)
	s.setEEPROMWord(ecat.SIIMailboxProto, s.protos)
	s.setEEPROMWord(ecat.SIIOutputBits, s.outputBits)
	s.setEEPROMWord(ecat.SIIInputBits, s.inputBits)

	s.storeU16(ecat.RegALStatus, uint16(ecat.StateInit))
	s.storeU16(ecat.RegWatchdogDivider, defaultWatchdogDivider)

	return s
}

func (s *SimSlave) setEEPROMWord(word, value uint16) { s.eeprom[word] = value }

func (s *SimSlave) setEEPROMU32(word uint16, value uint32) {
	s.eeprom[word] = uint16(value)
	s.eeprom[word+1] = uint16(value >> 16)
}

func (s *SimSlave) storeU16(addr uint16, value uint16) {
	binary.LittleEndian.PutUint16(s.mem[addr:addr+2], value)
}

func (s *SimSlave) loadU16(addr uint16) uint16 {
	return binary.LittleEndian.Uint16(s.mem[addr : addr+2])
}

// Fault hooks.

// SetUnplugged detaches or reattaches the slave; an unplugged slave ignores
// every datagram.
func (s *SimSlave) SetUnplugged(v bool) { s.unplugged.Store(v) }

// Reboot simulates a power cycle: the slave returns to INIT with its
// configured station address and mailbox queue cleared, as after losing and
// regaining power.
func (s *SimSlave) Reboot() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.storeU16(ecat.RegStationAddr, 0)
	s.storeU16(ecat.RegALStatus, uint16(ecat.StateInit))
	s.storeU16(ecat.RegALStatusCode, 0)
	s.txQueue = nil
	s.foe = foeSession{}
	s.sdoUp = sdoUploadSession{}
	s.sdoDwn = sdoDownloadSession{}
}

// FailTransition makes every request for the given target state fail with
// the AL status code until cleared with code 0.
func (s *SimSlave) FailTransition(target ecat.DeviceState, alCode uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if alCode == 0 {
		delete(s.failTrans, target.Base())
	} else {
		s.failTrans[target.Base()] = alCode
	}
}

// ForceState overrides the reported application-layer state, optionally with
// the error flag set, to simulate a spontaneous drop.
func (s *SimSlave) ForceState(state ecat.DeviceState, alCode uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.storeU16(ecat.RegALStatus, uint16(state))
	s.storeU16(ecat.RegALStatusCode, alCode)
}

// State returns the slave's current application-layer state.
func (s *SimSlave) State() ecat.DeviceState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return ecat.DeviceState(s.loadU16(ecat.RegALStatus))
}

// PushEmergency queues an emergency message in the send mailbox.
func (s *SimSlave) PushEmergency(e *coe.Emergency) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queueTx(&ecat.MailboxFrame{Type: ecat.MailboxTypeCoE, Data: coe.EncodeEmergency(e)})
}

// Outputs returns a copy of the first n bytes of the output buffer as
// written by the cyclic exchange.
func (s *SimSlave) Outputs(n int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]byte, n)
	copy(out, s.mem[outputBufferAddr:int(outputBufferAddr)+n])

	return out
}

// SetInputs fills the input buffer served to the cyclic exchange.
func (s *SimSlave) SetInputs(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.mem[inputBufferAddr:], data)
}

// File returns the current content of a slave-side file.
func (s *SimSlave) File(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.files[name]

	return data, ok
}

// Object returns the value of a dictionary entry, for assertions after
// SDO downloads.
func (s *SimSlave) Object(index uint16, subindex uint8) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	val, abort := s.objectValue(index, subindex)
	if abort != 0 {
		return nil, false
	}

	return append([]byte(nil), *val...), true
}

// Bus-facing access.

func (s *SimSlave) present() bool { return !s.unplugged.Load() }

func (s *SimSlave) station() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadU16(ecat.RegStationAddr)
}

// physRead serves a physical memory read.
func (s *SimSlave) physRead(addr uint16, buf []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// reading the whole send mailbox pops the next queued frame
	if s.txSize != 0 && addr == s.txAddr && len(buf) == int(s.txSize) {
		s.readTxMailbox(buf)
		return
	}

	copy(buf, s.mem[addr:])
}

// physWrite serves a physical memory write and triggers the register
// side effects.
func (s *SimSlave) physWrite(addr uint16, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rxSize != 0 && addr == s.rxAddr && len(data) == int(s.rxSize) {
		s.handleMailbox(data)
		return
	}

	copy(s.mem[addr:], data)

	switch {
	case addr <= ecat.RegALControl && int(addr)+len(data) > int(ecat.RegALControl):
		s.handleALControl(s.loadU16(ecat.RegALControl))
	case addr <= ecat.RegEEPROMCtlStat && int(addr)+len(data) > int(ecat.RegEEPROMCtlStat):
		s.handleEEPROMCommand()
	}
}

// ladder maps states to their rank in the bring-up order.
func stateRank(s ecat.DeviceState) int {
	switch s.Base() {
	case ecat.StateInit, ecat.StateBoot:
		return 1
	case ecat.StatePreOp:
		return 2
	case ecat.StateSafeOp:
		return 3
	case ecat.StateOp:
		return 4
	default:
		return 0
	}
}

func (s *SimSlave) handleALControl(ctl uint16) {
	req := ecat.DeviceState(ctl)
	cur := ecat.DeviceState(s.loadU16(ecat.RegALStatus))

	if req&ecat.StateAck != 0 {
		cur = cur.Base()
		s.storeU16(ecat.RegALStatus, uint16(cur))
		s.storeU16(ecat.RegALStatusCode, 0)
	}

	target := req.Base()
	if target == ecat.StateNone || target == cur.Base() {
		return
	}
	// a pending error blocks further transitions until acknowledged
	if cur.HasError() {
		return
	}

	if code, ok := s.failTrans[target]; ok {
		s.storeU16(ecat.RegALStatus, uint16(cur.Base()|ecat.StateError))
		s.storeU16(ecat.RegALStatusCode, code)
		return
	}

	valid := true
	switch {
	case target == ecat.StateBoot:
		valid = cur.Base() == ecat.StateInit
	case stateRank(target) <= stateRank(cur):
		// downward transitions are always allowed
	case stateRank(target) == stateRank(cur)+1 && cur.Base() != ecat.StateBoot:
		// one step up the ladder
	default:
		valid = false
	}

	if !valid {
		s.storeU16(ecat.RegALStatus, uint16(cur.Base()|ecat.StateError))
		s.storeU16(ecat.RegALStatusCode, ecat.ALStatusInvalidStateChange)
		return
	}

	s.storeU16(ecat.RegALStatus, uint16(target))
	s.storeU16(ecat.RegALStatusCode, 0)
}

func (s *SimSlave) handleEEPROMCommand() {
	if s.loadU16(ecat.RegEEPROMCtlStat) != ecat.EEPROMReadCommand {
		return
	}

	word := uint16(binary.LittleEndian.Uint32(s.mem[ecat.RegEEPROMAddr : ecat.RegEEPROMAddr+4]))
	lo := s.eeprom[word]
	hi := s.eeprom[word+1]
	binary.LittleEndian.PutUint32(s.mem[ecat.RegEEPROMData:ecat.RegEEPROMData+4], uint32(lo)|uint32(hi)<<16)

	// command executes instantly; clear the busy/command bits
	s.storeU16(ecat.RegEEPROMCtlStat, 0)
}

// processLogical serves a logical datagram through the slave's FMMUs,
// returning the slave's working counter contribution.
func (s *SimSlave) processLogical(cmd ecat.CommandType, logAddr uint32, data []byte) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()

	// process data is only exchanged from SAFEOP up
	state := ecat.DeviceState(s.loadU16(ecat.RegALStatus)).Base()
	if state != ecat.StateSafeOp && state != ecat.StateOp {
		return 0
	}

	var wkc uint16
	for _, reg := range []uint16{ecat.RegFMMU0, ecat.RegFMMU1} {
		fmmuLog := binary.LittleEndian.Uint32(s.mem[reg : reg+4])
		fmmuLen := binary.LittleEndian.Uint16(s.mem[reg+4 : reg+6])
		fmmuPhys := binary.LittleEndian.Uint16(s.mem[reg+8 : reg+10])
		fmmuType := s.mem[reg+11]
		active := s.mem[reg+12]
		if active == 0 || fmmuLen == 0 {
			continue
		}

		lo := max(fmmuLog, logAddr)
		hi := min(fmmuLog+uint32(fmmuLen), logAddr+uint32(len(data)))
		if lo >= hi {
			continue
		}

		frameOff := lo - logAddr
		physOff := uint32(fmmuPhys) + (lo - fmmuLog)
		n := hi - lo

		if fmmuType&0x02 != 0 && cmd != ecat.CmdLRD {
			// outputs: frame into slave memory
			copy(s.mem[physOff:physOff+n], data[frameOff:frameOff+n])
			wkc += 2
		}
		if fmmuType&0x01 != 0 && cmd != ecat.CmdLWR {
			// inputs: slave memory into frame
			copy(data[frameOff:frameOff+n], s.mem[physOff:physOff+n])
			wkc++
		}
	}

	return wkc
}
