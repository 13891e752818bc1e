package ecat

import "errors"

var (
	// ErrTransportClosed indicates that a bus operation was attempted after the
	// transport has been torn down. Every outstanding and future operation on a
	// closed transport fails fast with this error.
	ErrTransportClosed = errors.New("transport closed")

	// ErrFrameTimeout indicates that no frame was received within the timeout.
	ErrFrameTimeout = errors.New("frame receive timeout")

	// ErrEmptyFrame indicates an attempt to encode a frame without datagrams.
	ErrEmptyFrame = errors.New("frame contains no datagrams")

	// ErrInvalidFrame indicates that a received buffer is not a well-formed
	// EtherCAT frame.
	ErrInvalidFrame = errors.New("invalid frame")

	// ErrDatagramTooLarge indicates that a datagram payload exceeds MaxDatagramData.
	ErrDatagramTooLarge = errors.New("datagram payload too large")

	// ErrFrameTooLarge indicates that the datagrams do not fit into one frame.
	ErrFrameTooLarge = errors.New("frame payload too large")
)

var (
	// ErrMailboxTimeout indicates that a mailbox round trip did not complete
	// within the configured timeout.
	ErrMailboxTimeout = errors.New("mailbox timeout")

	// ErrMailboxUnsupported indicates that the slave's mailbox configuration has
	// zero size for the requested service.
	ErrMailboxUnsupported = errors.New("mailbox protocol not supported by slave")

	// ErrInvalidMailboxFrame indicates a malformed mailbox header or payload.
	ErrInvalidMailboxFrame = errors.New("invalid mailbox frame")
)
