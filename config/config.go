// Package config describes a board: which sensors are attached and how to
// reach them.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type SensorType string

const (
	TypeKX122    SensorType = "kx122"
	TypeAcoustic SensorType = "acoustic"
)

type Transport string

const (
	TransportSPI     Transport = "spi"
	TransportGobot   Transport = "gobot"
	TransportI2C     Transport = "i2c"
	TransportMCP2221 Transport = "mcp2221"
	TransportSerial  Transport = "serial"
)

const (
	DefaultPollInterval = 10 * time.Millisecond
	DefaultODR          = 100
	DefaultSPISpeed     = 10_000_000
	DefaultBaud         = 9600
	DefaultRange        = 8
	DefaultKX122Address = 0x1E
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Sensors      []Sensor      `yaml:"sensors"`
}

// Sensor is one attached device. Fields not used by the chosen transport are
// ignored.
type Sensor struct {
	Name      string     `yaml:"name"`
	Type      SensorType `yaml:"type"`
	Transport Transport  `yaml:"transport"`
	// spi: periph port name ("SPI0.0"); i2c: periph bus name ("1")
	Device string `yaml:"device,omitempty"`
	// gobot SPI bus and chip select numbers
	Bus     int   `yaml:"bus,omitempty"`
	Chip    int   `yaml:"chip,omitempty"`
	SpeedHz int64 `yaml:"speed_hz,omitempty"`
	Address byte  `yaml:"address,omitempty"`
	// host pin name for spi/gobot/i2c, GP index for mcp2221
	DRDYPin string `yaml:"drdy_pin,omitempty"`
	Port    string `yaml:"port,omitempty"`
	Baud    int    `yaml:"baud,omitempty"`
	ODR     uint32 `yaml:"odr,omitempty"`
	Range   int    `yaml:"range,omitempty"`
}

// Load reads a YAML board file, applies defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var c Config
	err := yaml.Unmarshal(data, &c)
	if err != nil {
		return nil, fmt.Errorf("could not parse config: %w", err)
	}
	c.SetDefaults()
	err = c.Validate()
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) SetDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	for i := range c.Sensors {
		s := &c.Sensors[i]
		if s.ODR == 0 {
			s.ODR = DefaultODR
		}
		if s.Name == "" {
			s.Name = fmt.Sprintf("%s-%d", s.Type, i)
		}
		switch s.Type {
		case TypeKX122:
			if s.Transport == "" {
				s.Transport = TransportSPI
			}
			if s.Range == 0 {
				s.Range = DefaultRange
			}
			if s.SpeedHz == 0 && (s.Transport == TransportSPI || s.Transport == TransportGobot) {
				s.SpeedHz = DefaultSPISpeed
			}
			if s.Address == 0 && (s.Transport == TransportI2C || s.Transport == TransportMCP2221) {
				s.Address = DefaultKX122Address
			}
		case TypeAcoustic:
			if s.Transport == "" {
				s.Transport = TransportSerial
			}
			if s.Baud == 0 {
				s.Baud = DefaultBaud
			}
		}
	}
}

func (c *Config) Validate() error {
	if c.PollInterval < 0 {
		return fmt.Errorf("%w: negative poll interval", ErrInvalidConfig)
	}
	names := make(map[string]struct{}, len(c.Sensors))
	for _, s := range c.Sensors {
		if _, dup := names[s.Name]; dup {
			return fmt.Errorf("%w: duplicate sensor name %q", ErrInvalidConfig, s.Name)
		}
		names[s.Name] = struct{}{}
		err := s.validate()
		if err != nil {
			return fmt.Errorf("%w: sensor %s: %w", ErrInvalidConfig, s.Name, err)
		}
	}
	return nil
}

func (s Sensor) validate() error {
	switch s.Type {
	case TypeKX122:
		switch s.Transport {
		case TransportSPI, TransportI2C:
			if s.Device == "" {
				return errors.New("device is required")
			}
		case TransportGobot, TransportMCP2221:
		default:
			return fmt.Errorf("transport %q is not supported for kx122", s.Transport)
		}
		if s.DRDYPin == "" {
			return errors.New("drdy_pin is required")
		}
		switch s.Range {
		case 2, 4, 8:
		default:
			return fmt.Errorf("range must be 2, 4 or 8, got %d", s.Range)
		}
	case TypeAcoustic:
		if s.Transport != TransportSerial {
			return fmt.Errorf("transport %q is not supported for acoustic", s.Transport)
		}
		if s.Port == "" {
			return errors.New("port is required")
		}
	default:
		return fmt.Errorf("unknown sensor type %q", s.Type)
	}
	return nil
}
