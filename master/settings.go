package master

import (
	"sync"
	"time"
)

// Settings are the process-wide defaults every new Master starts from. A
// Master snapshots them at construction; later changes to the globals do not
// affect existing instances, only masters created afterwards.
type Settings struct {
	// FrameTimeout bounds one datagram round trip on the wire.
	FrameTimeout time.Duration
	// StateTimeout bounds the confirmation of a requested state transition.
	StateTimeout time.Duration
	// MailboxTimeout bounds one mailbox round trip.
	MailboxTimeout time.Duration
	// MailboxPollInterval is the pause between send-mailbox polls.
	MailboxPollInterval time.Duration
	// SdoReadTimeout and SdoWriteTimeout bound CoE parameter access calls.
	SdoReadTimeout  time.Duration
	SdoWriteTimeout time.Duration
	// FoETimeout bounds one file-transfer round trip.
	FoETimeout time.Duration
	// CycleTime is the period of the cyclic process-data exchange.
	CycleTime time.Duration
	// RecoveryInterval is the period of the supervisory recovery loop.
	RecoveryInterval time.Duration
}

var (
	settingsMu     sync.RWMutex
	globalSettings = Settings{
		FrameTimeout:        2 * time.Millisecond,
		StateTimeout:        2 * time.Second,
		MailboxTimeout:      700 * time.Millisecond,
		MailboxPollInterval: time.Millisecond,
		SdoReadTimeout:      700 * time.Millisecond,
		SdoWriteTimeout:     700 * time.Millisecond,
		FoETimeout:          2 * time.Second,
		CycleTime:           10 * time.Millisecond,
		RecoveryInterval:    10 * time.Millisecond,
	}
)

// GlobalSettings returns a snapshot of the current process-wide defaults.
func GlobalSettings() Settings {
	settingsMu.RLock()
	defer settingsMu.RUnlock()

	return globalSettings
}

// UpdateGlobalSettings mutates the process-wide defaults. Masters created
// before the call keep their snapshot.
func UpdateGlobalSettings(fn func(*Settings)) {
	settingsMu.Lock()
	defer settingsMu.Unlock()

	fn(&globalSettings)
}
