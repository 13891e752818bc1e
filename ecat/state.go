package ecat

import "fmt"

// DeviceState is the application-layer state of a slave as reported in its
// AL status register. The low nibble carries the base state; bit 4 is the
// error indication when read, and the acknowledge request when written.
type DeviceState uint8

const (
	// StateNone means the slave does not respond at all.
	StateNone DeviceState = 0x00
	// StateInit is the initial state after power-on.
	StateInit DeviceState = 0x01
	// StatePreOp allows mailbox communication but no process data.
	StatePreOp DeviceState = 0x02
	// StateBoot is the bootstrap state used for firmware download over FoE.
	StateBoot DeviceState = 0x03
	// StateSafeOp exchanges process data but keeps outputs in a safe state.
	StateSafeOp DeviceState = 0x04
	// StateOp is full operation: outputs are driven from the process image.
	StateOp DeviceState = 0x08

	// StateAck is ORed into a written state to acknowledge an error.
	StateAck DeviceState = 0x10
	// StateError is ORed into a reported state to indicate an error condition.
	StateError DeviceState = 0x10
)

// Base strips the error/acknowledge bit.
func (s DeviceState) Base() DeviceState { return s & 0x0F }

// HasError reports whether the error bit is set.
func (s DeviceState) HasError() bool { return s&StateError != 0 }

// WithAck returns the state with the acknowledge bit set.
func (s DeviceState) WithAck() DeviceState { return s.Base() | StateAck }

// String returns a human-readable state name, including the error flag.
func (s DeviceState) String() string {
	name := "unknown"
	switch s.Base() {
	case StateNone:
		name = "NONE"
	case StateInit:
		name = "INIT"
	case StatePreOp:
		name = "PREOP"
	case StateBoot:
		name = "BOOT"
	case StateSafeOp:
		name = "SAFEOP"
	case StateOp:
		name = "OP"
	}
	if s.HasError() {
		return name + "+ERROR"
	}
	return name
}

// AL status codes reported in RegALStatusCode after a failed transition.
const (
	ALStatusNoError              uint16 = 0x0000
	ALStatusUnspecified          uint16 = 0x0001
	ALStatusInvalidStateChange   uint16 = 0x0011
	ALStatusUnknownRequested     uint16 = 0x0012
	ALStatusBootstrapUnsupported uint16 = 0x0013
	ALStatusInvalidMailboxConfig uint16 = 0x0016
	ALStatusInvalidSMConfig      uint16 = 0x0017
	ALStatusWatchdog             uint16 = 0x001B
	ALStatusInvalidOutputMapping uint16 = 0x001D
	ALStatusInvalidInputMapping  uint16 = 0x001E
	ALStatusFatalSyncError       uint16 = 0x002C
)

var alStatusText = map[uint16]string{
	ALStatusNoError:              "No error",
	ALStatusUnspecified:          "Unspecified error",
	ALStatusInvalidStateChange:   "Invalid requested state change",
	ALStatusUnknownRequested:     "Unknown requested state",
	ALStatusBootstrapUnsupported: "Bootstrap not supported",
	ALStatusInvalidMailboxConfig: "Invalid mailbox configuration",
	ALStatusInvalidSMConfig:      "Invalid sync manager configuration",
	ALStatusWatchdog:             "Sync manager watchdog",
	ALStatusInvalidOutputMapping: "Invalid output configuration",
	ALStatusInvalidInputMapping:  "Invalid input configuration",
	ALStatusFatalSyncError:       "Fatal sync error",
}

// ALStatusCodeString returns the standard description of an AL status code.
func ALStatusCodeString(code uint16) string {
	if desc, ok := alStatusText[code]; ok {
		return desc
	}
	return fmt.Sprintf("Unknown AL status code 0x%04X", code)
}
