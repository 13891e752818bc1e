package ecat

// CommandType identifies an EtherCAT datagram command.
//
// Position-addressed commands (APRD/APWR/APRW) carry an auto-increment
// address: every slave that forwards the datagram increments the address
// field, and the slave that observes zero executes the command. They are
// only used during discovery, before station addresses are assigned.
type CommandType uint8

const (
	// CmdNOP performs no operation.
	CmdNOP CommandType = iota
	// CmdAPRD is an auto-increment position read.
	CmdAPRD
	// CmdAPWR is an auto-increment position write.
	CmdAPWR
	// CmdAPRW is an auto-increment position read-write.
	CmdAPRW
	// CmdFPRD is a configured (station) address read.
	CmdFPRD
	// CmdFPWR is a configured (station) address write.
	CmdFPWR
	// CmdFPRW is a configured (station) address read-write.
	CmdFPRW
	// CmdBRD is a broadcast read; every slave ORs its data into the datagram.
	CmdBRD
	// CmdBWR is a broadcast write.
	CmdBWR
	// CmdBRW is a broadcast read-write.
	CmdBRW
	// CmdLRD is a logical memory read.
	CmdLRD
	// CmdLWR is a logical memory write.
	CmdLWR
	// CmdLRW is a logical memory read-write, the usual cyclic exchange command.
	CmdLRW
	// CmdARMW is an auto-increment read, multiple write.
	CmdARMW
	// CmdFRMW is a configured read, multiple write.
	CmdFRMW
)

// String returns the conventional short name of the command.
func (c CommandType) String() string {
	switch c {
	case CmdNOP:
		return "NOP"
	case CmdAPRD:
		return "APRD"
	case CmdAPWR:
		return "APWR"
	case CmdAPRW:
		return "APRW"
	case CmdFPRD:
		return "FPRD"
	case CmdFPWR:
		return "FPWR"
	case CmdFPRW:
		return "FPRW"
	case CmdBRD:
		return "BRD"
	case CmdBWR:
		return "BWR"
	case CmdBRW:
		return "BRW"
	case CmdLRD:
		return "LRD"
	case CmdLWR:
		return "LWR"
	case CmdLRW:
		return "LRW"
	case CmdARMW:
		return "ARMW"
	case CmdFRMW:
		return "FRMW"
	default:
		return "unknown"
	}
}

// IsLogical reports whether the command addresses logical process-data memory.
func (c CommandType) IsLogical() bool {
	return c == CmdLRD || c == CmdLWR || c == CmdLRW
}

// IsBroadcast reports whether the command is executed by every slave.
func (c CommandType) IsBroadcast() bool {
	return c == CmdBRD || c == CmdBWR || c == CmdBRW
}
