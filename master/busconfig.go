package master

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to unmarshal from YAML strings like "10ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)

	return nil
}

// BusConfig is a declarative description of an expected bus, loaded from
// YAML. It verifies a scanned segment against the expected topology and
// installs startup parameters as device configuration callbacks.
type BusConfig struct {
	// Interface is the network adapter the bus hangs off, as accepted by the
	// transport layer.
	Interface string `yaml:"interface"`
	// CycleTime overrides the cyclic exchange period when set.
	CycleTime Duration `yaml:"cycle_time"`
	// Devices lists the expected devices in bus order.
	Devices []DeviceConfig `yaml:"devices"`
}

// DeviceConfig describes one expected device and its startup parameters.
type DeviceConfig struct {
	Position    int    `yaml:"position"`
	Name        string `yaml:"name"`
	VendorID    uint32 `yaml:"vendor_id"`
	ProductCode uint32 `yaml:"product_code"`

	// WatchdogMs, when set, programs the process-data watchdog during
	// configuration.
	WatchdogMs *float64 `yaml:"watchdog_ms"`

	// Parameters are written over CoE in order during configuration.
	Parameters []ParameterConfig `yaml:"parameters"`
}

// ParameterConfig is one startup parameter write.
type ParameterConfig struct {
	Index    uint16 `yaml:"index"`
	Subindex uint8  `yaml:"subindex"`
	Value    uint64 `yaml:"value"`
	// Size is the value size in bytes: 1, 2, 4 or 8.
	Size int `yaml:"size"`
}

func (p *ParameterConfig) encode() ([]byte, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, p.Value)
	switch p.Size {
	case 1, 2, 4, 8:
		return buf[:p.Size], nil
	default:
		return nil, fmt.Errorf("parameter 0x%04X:%d has unsupported size %d", p.Index, p.Subindex, p.Size)
	}
}

// LoadBusConfig reads a bus description from a YAML file.
func LoadBusConfig(path string) (*BusConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bus config: %w", err)
	}

	var cfg BusConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse bus config: %w", err)
	}
	for i := range cfg.Devices {
		for j := range cfg.Devices[i].Parameters {
			if _, err := cfg.Devices[i].Parameters[j].encode(); err != nil {
				return nil, err
			}
		}
	}

	return &cfg, nil
}

// Verify checks a scanned bus against the expected topology: every listed
// position must exist and match the configured identity. Extra devices on
// the bus are tolerated.
func (c *BusConfig) Verify(m *Master) error {
	for _, dc := range c.Devices {
		d := m.Device(dc.Position)
		if d == nil {
			return fmt.Errorf("expected device at position %d, bus has none", dc.Position)
		}
		id := d.Identity()
		if dc.VendorID != 0 && id.VendorID != dc.VendorID {
			return fmt.Errorf("device %d: vendor 0x%08X, expected 0x%08X",
				dc.Position, id.VendorID, dc.VendorID)
		}
		if dc.ProductCode != 0 && id.ProductCode != dc.ProductCode {
			return fmt.Errorf("device %d: product 0x%08X, expected 0x%08X",
				dc.Position, id.ProductCode, dc.ProductCode)
		}
	}

	return nil
}

// Apply installs the configured startup parameters and watchdog times as
// configuration callbacks on the scanned devices. The callbacks run during
// ConfigMap; a failing parameter write aborts the mapping.
func (c *BusConfig) Apply(m *Master) error {
	if err := c.Verify(m); err != nil {
		return err
	}

	for _, dc := range c.Devices {
		dc := dc
		m.Device(dc.Position).ConfigFunc = func(d *Device) error {
			for _, p := range dc.Parameters {
				val, err := p.encode()
				if err != nil {
					return err
				}
				if err := d.SDOWrite(p.Index, p.Subindex, val); err != nil {
					return fmt.Errorf("startup parameter 0x%04X:%d: %w", p.Index, p.Subindex, err)
				}
			}
			if dc.WatchdogMs != nil {
				if err := d.SetWatchdog(WatchdogProcessData, *dc.WatchdogMs); err != nil {
					return err
				}
			}
			return nil
		}
	}

	return nil
}
