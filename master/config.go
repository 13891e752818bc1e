package master

import (
	"fmt"
	"time"

	"github.com/openecat/go-ecat/logger"
)

// Config holds the configuration of one Master instance. It starts from a
// snapshot of the process-wide Settings and is customized with functional
// options passed to NewMaster.
type Config struct {
	settings Settings

	// stationBase is the first configured station address; slave i gets
	// stationBase + i during the scan.
	stationBase uint16

	// logger provides the logger instance for master events and errors.
	logger logger.Logger
}

func newConfig() *Config {
	return &Config{
		settings:    GlobalSettings(),
		stationBase: 0x1001,
		logger:      logger.GetLogger(),
	}
}

// Option represents a functional option for configuring a Master.
type Option interface {
	apply(cfg *Config) error
}

type optFunc struct {
	name string
	fn   func(cfg *Config) error
}

func (o *optFunc) apply(cfg *Config) error { return o.fn(cfg) }

func newOptFunc(name string, fn func(cfg *Config) error) *optFunc {
	return &optFunc{name: name, fn: fn}
}

// WithLogger sets the logger used by the master and its devices.
func WithLogger(l logger.Logger) Option {
	return newOptFunc("WithLogger", func(cfg *Config) error {
		if l == nil {
			return fmt.Errorf("logger is nil")
		}
		cfg.logger = l
		return nil
	})
}

// WithCycleTime sets the period of the cyclic process-data exchange.
// It should be between 100 microseconds and 1 second.
func WithCycleTime(d time.Duration) Option {
	return newOptFunc("WithCycleTime", func(cfg *Config) error {
		if d < 100*time.Microsecond || d > time.Second {
			return fmt.Errorf("invalid cycle time: %v", d)
		}
		cfg.settings.CycleTime = d
		return nil
	})
}

// WithRecoveryInterval sets the period of the supervisory recovery loop.
func WithRecoveryInterval(d time.Duration) Option {
	return newOptFunc("WithRecoveryInterval", func(cfg *Config) error {
		if d < time.Millisecond || d > time.Minute {
			return fmt.Errorf("invalid recovery interval: %v", d)
		}
		cfg.settings.RecoveryInterval = d
		return nil
	})
}

// WithFrameTimeout sets the timeout of one datagram round trip.
func WithFrameTimeout(d time.Duration) Option {
	return newOptFunc("WithFrameTimeout", func(cfg *Config) error {
		if d <= 0 {
			return fmt.Errorf("invalid frame timeout: %v", d)
		}
		cfg.settings.FrameTimeout = d
		return nil
	})
}

// WithStateTimeout sets the timeout for confirming a requested state transition.
func WithStateTimeout(d time.Duration) Option {
	return newOptFunc("WithStateTimeout", func(cfg *Config) error {
		if d <= 0 {
			return fmt.Errorf("invalid state timeout: %v", d)
		}
		cfg.settings.StateTimeout = d
		return nil
	})
}

// WithMailboxTimeout sets the timeout of one mailbox round trip.
func WithMailboxTimeout(d time.Duration) Option {
	return newOptFunc("WithMailboxTimeout", func(cfg *Config) error {
		if d <= 0 {
			return fmt.Errorf("invalid mailbox timeout: %v", d)
		}
		cfg.settings.MailboxTimeout = d
		return nil
	})
}

// WithSdoTimeouts sets the timeouts of CoE parameter reads and writes.
func WithSdoTimeouts(read, write time.Duration) Option {
	return newOptFunc("WithSdoTimeouts", func(cfg *Config) error {
		if read <= 0 || write <= 0 {
			return fmt.Errorf("invalid SDO timeouts: read %v write %v", read, write)
		}
		cfg.settings.SdoReadTimeout = read
		cfg.settings.SdoWriteTimeout = write
		return nil
	})
}

// WithFoETimeout sets the timeout of one file-transfer round trip.
func WithFoETimeout(d time.Duration) Option {
	return newOptFunc("WithFoETimeout", func(cfg *Config) error {
		if d <= 0 {
			return fmt.Errorf("invalid FoE timeout: %v", d)
		}
		cfg.settings.FoETimeout = d
		return nil
	})
}

// WithStationBase sets the first configured station address assigned during a scan.
func WithStationBase(base uint16) Option {
	return newOptFunc("WithStationBase", func(cfg *Config) error {
		if base == 0 {
			return fmt.Errorf("station base must be non-zero")
		}
		cfg.stationBase = base
		return nil
	})
}
