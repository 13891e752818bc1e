package ecat

// Physical memory offsets of the slave controller register set.
// Offsets follow the standard ESC register map; all multi-byte registers
// are little-endian.
const (
	// RegStationAddr holds the configured station address (2 bytes).
	RegStationAddr uint16 = 0x0010

	// RegDLStatus is the data-link status register (2 bytes).
	RegDLStatus uint16 = 0x0110

	// RegALControl requests an application-layer state change (2 bytes).
	RegALControl uint16 = 0x0120
	// RegALStatus reports the current application-layer state (2 bytes).
	RegALStatus uint16 = 0x0130
	// RegALStatusCode reports the reason of the last failed transition (2 bytes).
	RegALStatusCode uint16 = 0x0134

	// RegWatchdogDivider scales the 40 ns base clock into the watchdog tick (2 bytes).
	// The tick duration is (divider+2) * 40 ns; the default divider 2498 yields 100 us.
	RegWatchdogDivider uint16 = 0x0400
	// RegWatchdogTimePDI is the PDI (device-local processing) watchdog time in ticks (2 bytes).
	RegWatchdogTimePDI uint16 = 0x0410
	// RegWatchdogTimeProcessData is the process-data watchdog time in ticks (2 bytes).
	RegWatchdogTimeProcessData uint16 = 0x0420

	// RegEEPROMCtlStat is the SII EEPROM control/status register (2 bytes).
	RegEEPROMCtlStat uint16 = 0x0502
	// RegEEPROMAddr is the SII EEPROM word address register (4 bytes).
	RegEEPROMAddr uint16 = 0x0504
	// RegEEPROMData is the SII EEPROM read data register (4 bytes).
	RegEEPROMData uint16 = 0x0508

	// RegFMMU0 is the first fieldbus memory management unit block; each block
	// is 16 bytes. FMMU0 maps logical outputs, FMMU1 logical inputs.
	RegFMMU0 uint16 = 0x0600
	RegFMMU1 uint16 = 0x0610

	// RegSM0 is the first sync manager configuration block; each block is 8 bytes.
	RegSM0 uint16 = 0x0800

	// RegDCRecvTimeA latches the port-A receive time of a broadcast write (4 bytes).
	RegDCRecvTimeA uint16 = 0x0900
	// RegDCSysTime is the device's local copy of the system time in ns (8 bytes).
	RegDCSysTime uint16 = 0x0910
	// RegDCSysTimeOffset is added to the local clock to form the system time (8 bytes).
	RegDCSysTimeOffset uint16 = 0x0920
	// RegDCSysDelay is the frame propagation delay from the reference clock (4 bytes).
	RegDCSysDelay uint16 = 0x0928
	// RegDCSyncAct enables the distributed-clock sync pulse generator (1 byte).
	RegDCSyncAct uint16 = 0x0981
	// RegDCStartTime is the first pulse start time in ns (4 bytes).
	RegDCStartTime uint16 = 0x0990
	// RegDCCycle0 is the SYNC0 cycle time in ns (4 bytes).
	RegDCCycle0 uint16 = 0x09A0
)

// WatchdogBaseNs is the duration of one watchdog divider step in nanoseconds.
const WatchdogBaseNs = 40

// EEPROMReadCommand is written to RegEEPROMCtlStat to trigger a word read.
const EEPROMReadCommand uint16 = 0x0100

// SMEntrySize is the byte size of one sync manager configuration block.
const SMEntrySize = 8

// SII word addresses of the fixed configuration area every slave exposes.
// The identity fields are two words (32 bits) each.
const (
	SIIVendorID    uint16 = 0x08
	SIIProductCode uint16 = 0x0A
	SIIRevision    uint16 = 0x0C
	SIISerial      uint16 = 0x0E

	// Standard mailbox bootstrap info, one word each.
	SIIRxMailboxAddr uint16 = 0x18
	SIIRxMailboxSize uint16 = 0x19
	SIITxMailboxAddr uint16 = 0x1A
	SIITxMailboxSize uint16 = 0x1B

	// SIIMailboxProto is a bitmask of supported mailbox protocols.
	SIIMailboxProto uint16 = 0x1C

	// Process-data sizes in bits, one word each, for SII-based mapping.
	SIIOutputBits uint16 = 0x20
	SIIInputBits  uint16 = 0x21
)

// Mailbox protocol bits reported in the SIIMailboxProto word.
const (
	MailboxProtoCoE uint16 = 0x0004
	MailboxProtoFoE uint16 = 0x0008
	MailboxProtoEoE uint16 = 0x0002
)

// Logical addressing of process data starts here by convention.
const LogicalBaseAddr uint32 = 0x0000_0000
