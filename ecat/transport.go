package ecat

import "time"

// Transport is the raw frame send/receive primitive the master drives.
//
// Implementations are not required to be safe for concurrent use; the master
// serializes every bus-facing operation through a single critical section,
// since cyclic exchange, mailbox transactions and state writes share one
// physical link.
//
// Receive fills buf with the next frame and returns its length, or
// ErrFrameTimeout when no frame arrives within the timeout. After Close, both
// Send and Receive must fail with ErrTransportClosed.
type Transport interface {
	Send(frame []byte) error
	Receive(buf []byte, timeout time.Duration) (int, error)
	Close() error
}
