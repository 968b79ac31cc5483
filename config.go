package modbus

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// MasterConfig is a YAML master profile.
//
//	host: 192.168.1.10
//	protocol: tcp
//	timeout: 5s
//	endianness: little
//	points:
//	  - tag: flow
//	    function: 3
//	    reference: 100
//	    type: REAL
type MasterConfig struct {
	Host           string          `yaml:"host"`
	Port           int             `yaml:"port"`
	Protocol       string          `yaml:"protocol"`
	Client         string          `yaml:"client,omitempty"`
	ClientPort     int             `yaml:"client_port,omitempty"`
	UnitID         uint8           `yaml:"unit_id"`
	Timeout        time.Duration   `yaml:"timeout"`
	ConnectTimeout time.Duration   `yaml:"connect_timeout"`
	ReadTimeout    time.Duration   `yaml:"read_timeout"`
	WriteTimeout   time.Duration   `yaml:"write_timeout"`
	Endianness     Endianness      `yaml:"endianness"`
	LogLevel       string          `yaml:"log_level,omitempty"` // empty disables library logging
	Points         []RegisterPoint `yaml:"points,omitempty"`
	PointsCSV      string          `yaml:"points_csv,omitempty"` // relative to the profile
}

// DefaultConfig returns a profile holding the master defaults and no host.
func DefaultConfig() *MasterConfig {
	return &MasterConfig{
		Port:           DefaultPort,
		Protocol:       string(ProtocolTCP),
		Timeout:        DefaultTimeout,
		ConnectTimeout: DefaultConnectTimeout,
		ReadTimeout:    DefaultReadTimeout,
		WriteTimeout:   DefaultWriteTimeout,
		Endianness:     EndianLittle,
	}
}

// LoadConfig reads and validates a profile. Keys missing from the file keep
// their DefaultConfig values. Points from points_csv are appended to the
// inline points.
func LoadConfig(path string) (*MasterConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}
	if cfg.PointsCSV != "" {
		csvPath := cfg.PointsCSV
		if !filepath.IsAbs(csvPath) {
			csvPath = filepath.Join(filepath.Dir(path), csvPath)
		}
		f, err := os.Open(csvPath)
		if err != nil {
			return nil, fmt.Errorf("open points file: %w", err)
		}
		defer f.Close()
		points, err := ParsePointsCSV(f)
		if err != nil {
			return nil, fmt.Errorf("points file %s: %w", csvPath, err)
		}
		cfg.Points = append(cfg.Points, points...)
	}
	return cfg, nil
}

// ParseConfig decodes and validates a YAML profile.
func ParseConfig(data []byte) (*MasterConfig, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks the profile without touching the network.
func (c *MasterConfig) Validate() error {
	protocol, err := ParseProtocol(c.Protocol)
	if err != nil {
		return err
	}
	cc := ConnectionConfig{Protocol: protocol, Host: c.Host, Port: c.Port, Client: c.Client, ClientPort: c.ClientPort}
	if err := cc.Validate(); err != nil {
		return err
	}
	for name, d := range map[string]time.Duration{
		"timeout":         c.Timeout,
		"connect_timeout": c.ConnectTimeout,
		"read_timeout":    c.ReadTimeout,
		"write_timeout":   c.WriteTimeout,
	} {
		if d < 0 {
			return &ConfigError{Field: name, Reason: "must be >= 0"}
		}
	}
	if c.Timeout == 0 {
		return &ConfigError{Field: "timeout", Reason: "must be positive"}
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return &ConfigError{Field: "log_level", Reason: err.Error()}
		}
	}
	for i, p := range c.Points {
		if p.Tag == "" {
			return &ConfigError{Field: fmt.Sprintf("points[%d].tag", i), Reason: "is required"}
		}
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// NewMaster creates a master configured from the profile.
func (c *MasterConfig) NewMaster() (*ModbusMaster, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	protocol, _ := ParseProtocol(c.Protocol)
	m := NewModbusMaster(c.Host, protocol)
	m.Port = c.Port
	m.SetBind(c.Client, c.ClientPort)
	m.SetTimeout(c.Timeout)
	m.ConnectTimeout = c.ConnectTimeout
	m.SetSocketTimeout(c.ReadTimeout, c.WriteTimeout)
	m.SetEndianness(c.Endianness)
	return m, nil
}

// UnmarshalYAML accepts little|big|0|1.
func (e *Endianness) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseEndianness(value.Value)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// MarshalYAML writes the endianness by name.
func (e Endianness) MarshalYAML() (interface{}, error) {
	return e.String(), nil
}

// UnmarshalYAML accepts a function code number, decimal or 0x hex.
func (fc *FunctionCode) UnmarshalYAML(value *yaml.Node) error {
	n, err := strconv.ParseUint(value.Value, 0, 8)
	if err != nil {
		return &ConfigError{Field: "function", Reason: fmt.Sprintf("invalid function code %q", value.Value)}
	}
	*fc = FunctionCode(n)
	return nil
}
