package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	modbus "github.com/hootrhino/modbus-master"
)

type globalOptions struct {
	config     string
	host       string
	port       int
	protocol   string
	unit       uint8
	timeout    time.Duration
	endianness string
	verbose    bool
}

func (o *globalOptions) bind(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&o.config, "config", "", "Master profile YAML file")
	f.StringVar(&o.host, "host", "", "Device address (required unless set in --config)")
	f.IntVar(&o.port, "port", modbus.DefaultPort, "Device port")
	f.StringVar(&o.protocol, "protocol", "tcp", "Transport: tcp|udp")
	f.Uint8Var(&o.unit, "unit", 0, "Unit identifier")
	f.DurationVar(&o.timeout, "timeout", modbus.DefaultTimeout, "Response watchdog")
	f.StringVar(&o.endianness, "endianness", "little", "DINT/REAL word order: little|big")
	f.BoolVar(&o.verbose, "verbose", false, "Print library debug output and the status log")
}

// session is what every request command works with.
type session struct {
	master *modbus.ModbusMaster
	config *modbus.MasterConfig
	unit   uint8
	log    zerolog.Logger
}

// newSession loads the profile, if any, and lets explicitly set flags
// override it.
func (o *globalOptions) newSession(cmd *cobra.Command) (*session, error) {
	cfg := modbus.DefaultConfig()
	if o.config != "" {
		loaded, err := modbus.LoadConfig(o.config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if o.config == "" || flags.Changed("host") {
		cfg.Host = o.host
	}
	if o.config == "" || flags.Changed("port") {
		cfg.Port = o.port
	}
	if o.config == "" || flags.Changed("protocol") {
		cfg.Protocol = o.protocol
	}
	if o.config == "" || flags.Changed("unit") {
		cfg.UnitID = o.unit
	}
	if o.config == "" || flags.Changed("timeout") {
		cfg.Timeout = o.timeout
	}
	if o.config == "" || flags.Changed("endianness") {
		e, err := modbus.ParseEndianness(o.endianness)
		if err != nil {
			return nil, err
		}
		cfg.Endianness = e
	}

	master, err := cfg.NewMaster()
	if err != nil {
		return nil, err
	}
	log := newLogger(o.verbose)
	switch {
	case o.verbose:
		master.SetLogger(modbus.NewSimpleLogger(os.Stderr, modbus.LevelDebug, "modbus"))
	case cfg.LogLevel != "":
		level, _ := modbus.ParseLogLevel(cfg.LogLevel)
		master.SetLogger(modbus.NewSimpleLogger(os.Stderr, level, "modbus"))
	}
	log.Debug().
		Str("endpoint", fmt.Sprintf("%s://%s:%d", strings.ToLower(cfg.Protocol), cfg.Host, cfg.Port)).
		Uint8("unit", cfg.UnitID).
		Str("endianness", cfg.Endianness.String()).
		Msg("Master configured")
	return &session{master: master, config: cfg, unit: cfg.UnitID, log: log}, nil
}

// finish logs the status log of the call at debug level.
func (s *session) finish() {
	for _, line := range s.master.StatusEntries() {
		s.log.Debug().Msg(line)
	}
	state, _ := s.master.LastState()
	s.log.Debug().Str("state", state.String()).Msg("Call finished")
}

func parseUint16(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid 16-bit value %q: %w", s, err)
	}
	return uint16(v), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBools(s string) ([]bool, error) {
	parts := splitList(s)
	out := make([]bool, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseBool(p)
		if err != nil {
			return nil, fmt.Errorf("invalid coil value %q: %w", p, err)
		}
		out[i] = v
	}
	return out, nil
}

// parseValues pairs --values with --types. Missing types default to INT.
func parseValues(values, types string) ([]modbus.Value, error) {
	parts := splitList(values)
	nums := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid register value %q: %w", p, err)
		}
		nums[i] = v
	}
	tags := splitList(types)
	if len(tags) == 0 {
		tags = make([]string, len(nums))
		for i := range tags {
			tags[i] = string(modbus.TypeINT)
		}
	}
	return modbus.ValuesFromTags(nums, tags)
}
