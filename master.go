// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package modbus

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// Default master settings.
const (
	DefaultPort           = 502
	DefaultTimeout        = 5 * time.Second
	DefaultConnectTimeout = 1 * time.Second
	DefaultReadTimeout    = 300 * time.Millisecond
	DefaultWriteTimeout   = 1 * time.Second
)

// CallState is the position of a request in its exchange.
type CallState int

const (
	StateIdle CallState = iota
	StateConnecting
	StateSending
	StateAwaitingResponse
	StateValidating
	StateParsed
	StateFailed
)

var callStateNames = [...]string{
	StateIdle:             "Idle",
	StateConnecting:       "Connecting",
	StateSending:          "Sending",
	StateAwaitingResponse: "AwaitingResponse",
	StateValidating:       "Validating",
	StateParsed:           "Parsed",
	StateFailed:           "Failed",
}

func (s CallState) String() string {
	if s >= 0 && int(s) < len(callStateNames) {
		return callStateNames[s]
	}
	return fmt.Sprintf("CallState(%d)", int(s))
}

// ModbusMaster issues Modbus requests to one device over TCP or UDP. Every
// call opens its own connection and closes it before returning.
//
// The exported fields may be changed between calls; they must not be changed
// while a call is in flight.
type ModbusMaster struct {
	Host       string
	Port       int
	Client     string // local bind address, empty for any
	ClientPort int    // local bind port, 0 for any
	Protocol   Protocol

	Timeout        time.Duration // watchdog: max silence while waiting for a response
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration // per-read poll interval
	WriteTimeout   time.Duration

	// Endianness applies to DINT and REAL register values.
	Endianness Endianness

	// Dial creates the connection for each call. Nil means DialNet.
	Dial Dialer

	logger io.Writer
	status StatusLog

	mu              sync.Mutex
	lastPath        []CallState
	lastModbusError *ModbusError
}

// NewModbusMaster creates a master for host using protocol ("TCP" or "UDP").
// An unknown protocol is reported by the first call.
func NewModbusMaster(host string, protocol Protocol) *ModbusMaster {
	return &ModbusMaster{
		Host:           host,
		Port:           DefaultPort,
		Protocol:       protocol,
		Timeout:        DefaultTimeout,
		ConnectTimeout: DefaultConnectTimeout,
		ReadTimeout:    DefaultReadTimeout,
		WriteTimeout:   DefaultWriteTimeout,
		Endianness:     EndianLittle,
	}
}

// NewModbusMasterTCP creates a TCP master for host.
func NewModbusMasterTCP(host string) *ModbusMaster {
	return NewModbusMaster(host, ProtocolTCP)
}

// NewModbusMasterUDP creates a UDP master for host.
func NewModbusMasterUDP(host string) *ModbusMaster {
	return NewModbusMaster(host, ProtocolUDP)
}

// SetLogger sets the debug output of the master and its connections.
func (m *ModbusMaster) SetLogger(logger io.Writer) {
	m.logger = logger
}

// SetTimeout sets the response watchdog.
func (m *ModbusMaster) SetTimeout(d time.Duration) {
	m.Timeout = d
}

// SetSocketTimeout sets the per-read poll interval and the write timeout.
func (m *ModbusMaster) SetSocketTimeout(read, write time.Duration) {
	m.ReadTimeout = read
	m.WriteTimeout = write
}

// SetEndianness sets the word order of DINT and REAL values.
func (m *ModbusMaster) SetEndianness(e Endianness) {
	m.Endianness = e
}

// SetBind binds outgoing connections to a local address and port.
func (m *ModbusMaster) SetBind(client string, port int) {
	m.Client = client
	m.ClientPort = port
}

// Status returns the accumulated status log, one event per line.
func (m *ModbusMaster) Status() string {
	return m.status.String()
}

// StatusEntries returns the status log lines.
func (m *ModbusMaster) StatusEntries() []string {
	return m.status.Entries()
}

// ClearStatus empties the status log. Long running callers use it to keep
// the log from growing without bound.
func (m *ModbusMaster) ClearStatus() {
	m.status.Reset()
}

// LastState returns the terminal state of the last call and the states it
// went through.
func (m *ModbusMaster) LastState() (CallState, []CallState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.lastPath) == 0 {
		return StateIdle, nil
	}
	path := make([]CallState, len(m.lastPath))
	copy(path, m.lastPath)
	return path[len(path)-1], path
}

// LastModbusError returns the last exception reported by the device, or nil.
func (m *ModbusMaster) LastModbusError() *ModbusError {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastModbusError
}

// setLastModbusError sets and logs the last ModbusError.
func (m *ModbusMaster) setLastModbusError(err *ModbusError) {
	m.mu.Lock()
	m.lastModbusError = err
	m.mu.Unlock()
	if err != nil {
		m.logf("WARNING: modbus: cached ModbusError: %v\n", err)
	}
}

func (m *ModbusMaster) logf(format string, v ...interface{}) {
	if m.logger != nil {
		fmt.Fprintf(m.logger, format, v...)
	}
}

func (m *ModbusMaster) statusf(format string, v ...interface{}) {
	m.status.Add(fmt.Sprintf(format, v...))
}

func (m *ModbusMaster) connectionConfig() ConnectionConfig {
	return ConnectionConfig{
		Protocol:       m.Protocol,
		Host:           m.Host,
		Port:           m.Port,
		Client:         m.Client,
		ClientPort:     m.ClientPort,
		ConnectTimeout: m.ConnectTimeout,
		WriteTimeout:   m.WriteTimeout,
		Logger:         m.logger,
		Status:         m.status.Add,
	}
}

func (m *ModbusMaster) validate() error {
	if m.Endianness != EndianLittle && m.Endianness != EndianBig {
		return &ConfigError{Field: "endianness", Reason: fmt.Sprintf("unknown value %d, should be 0 or 1", int(m.Endianness))}
	}
	if m.Timeout <= 0 {
		return &ConfigError{Field: "timeout", Reason: "must be positive"}
	}
	return m.connectionConfig().Validate()
}

// callTrace records the states one call passes through.
type callTrace struct {
	path []CallState
}

func (c *callTrace) enter(s CallState) {
	c.path = append(c.path, s)
}

func (m *ModbusMaster) finishCall(fc FunctionCode, trace *callTrace, err error) {
	if err != nil {
		trace.enter(StateFailed)
		m.statusf("%s: FAILED (%s)", fc, Kind(err))
		m.logf("ERROR: modbus: %s failed: %v\n", fc, err)
	} else {
		m.statusf("%s: DONE", fc)
	}
	m.mu.Lock()
	m.lastPath = trace.path
	m.mu.Unlock()
}

// sendAndReceive runs one request/response cycle: build the request, open a
// connection, send, wait for the response, check it for an exception and
// parse it. The connection is closed before the result is returned, whatever
// the outcome.
func sendAndReceive[T any](m *ModbusMaster, fc FunctionCode, build func() ([]byte, error), parse func([]byte) (T, error)) (result T, err error) {
	trace := &callTrace{path: []CallState{StateIdle}}
	m.statusf("%s: START", fc)
	defer func() {
		if err != nil {
			err = fmt.Errorf("modbus: %s failed: %w", fc, err)
		}
	}()
	defer func() { m.finishCall(fc, trace, err) }()

	if err = m.validate(); err != nil {
		return result, err
	}
	packet, err := build()
	if err != nil {
		return result, err
	}

	dial := m.Dial
	if dial == nil {
		dial = DialNet
	}
	conn := dial(m.connectionConfig())
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			m.logf("WARNING: modbus: close failed: %v\n", cerr)
		}
	}()

	trace.enter(StateConnecting)
	if err = conn.Connect(); err != nil {
		return result, err
	}
	trace.enter(StateSending)
	m.logf("DEBUG: modbus: %s request to unit %d: % X\n", fc, unitOf(packet), packet)
	if err = conn.Send(packet); err != nil {
		return result, err
	}
	trace.enter(StateAwaitingResponse)
	response, err := conn.Receive(m.ReadTimeout, m.Timeout)
	if err != nil {
		return result, err
	}
	m.statusf("Packet: %x", response)
	m.logf("DEBUG: modbus: %s response: % X\n", fc, response)

	trace.enter(StateValidating)
	if err = defaultPackager.ValidateFrame(response); err != nil {
		return result, err
	}
	if err = responseCode(response); err != nil {
		var modbusErr *ModbusError
		if errors.As(err, &modbusErr) {
			m.setLastModbusError(modbusErr)
		}
		m.statusf("%v", err)
		return result, err
	}
	m.statusf("Modbus response error code: NOERROR")

	if result, err = parse(response); err != nil {
		return result, err
	}
	trace.enter(StateParsed)
	return result, nil
}

func unitOf(frame []byte) uint8 {
	if len(frame) < TCPHeaderLength {
		return 0
	}
	return frame[TCPHeaderLength-1]
}

// ReadCoils reads quantity coils starting at reference (FC1).
func (m *ModbusMaster) ReadCoils(unitID uint8, reference, quantity uint16) ([]bool, error) {
	return sendAndReceive(m, FuncCodeReadCoils,
		func() ([]byte, error) { return BuildReadCoils(unitID, reference, quantity) },
		func(frame []byte) ([]bool, error) { return ParseReadCoils(frame, quantity) })
}

// ReadInputDiscretes reads quantity discrete inputs starting at reference (FC2).
func (m *ModbusMaster) ReadInputDiscretes(unitID uint8, reference, quantity uint16) ([]bool, error) {
	return sendAndReceive(m, FuncCodeReadInputDiscretes,
		func() ([]byte, error) { return BuildReadInputDiscretes(unitID, reference, quantity) },
		func(frame []byte) ([]bool, error) { return ParseReadInputDiscretes(frame, quantity) })
}

// ReadMultipleRegisters reads quantity holding registers (FC3). The result
// holds two bytes per register in wire order; see RegisterInt and friends.
func (m *ModbusMaster) ReadMultipleRegisters(unitID uint8, reference, quantity uint16) ([]byte, error) {
	return sendAndReceive(m, FuncCodeReadMultipleRegisters,
		func() ([]byte, error) { return BuildReadMultipleRegisters(unitID, reference, quantity) },
		ParseReadMultipleRegisters)
}

// ReadMultipleInputRegisters reads quantity input registers (FC4).
func (m *ModbusMaster) ReadMultipleInputRegisters(unitID uint8, reference, quantity uint16) ([]byte, error) {
	return sendAndReceive(m, FuncCodeReadMultipleInputRegisters,
		func() ([]byte, error) { return BuildReadMultipleInputRegisters(unitID, reference, quantity) },
		ParseReadMultipleInputRegisters)
}

// WriteSingleCoil sets one coil (FC5).
func (m *ModbusMaster) WriteSingleCoil(unitID uint8, reference uint16, value bool) error {
	_, err := sendAndReceive(m, FuncCodeWriteSingleCoil,
		func() ([]byte, error) { return BuildWriteSingleCoil(unitID, reference, value) },
		parseAck)
	return err
}

// WriteSingleRegister writes one holding register (FC6).
func (m *ModbusMaster) WriteSingleRegister(unitID uint8, reference uint16, value int16) error {
	_, err := sendAndReceive(m, FuncCodeWriteSingleRegister,
		func() ([]byte, error) { return BuildWriteSingleRegister(unitID, reference, value) },
		parseAck)
	return err
}

// WriteMultipleCoils writes consecutive coils starting at reference (FC15).
func (m *ModbusMaster) WriteMultipleCoils(unitID uint8, reference uint16, values []bool) error {
	_, err := sendAndReceive(m, FuncCodeWriteMultipleCoils,
		func() ([]byte, error) { return BuildWriteMultipleCoils(unitID, reference, values) },
		parseAck)
	return err
}

// WriteMultipleRegister writes values to consecutive holding registers
// (FC16). DINT and REAL values take two registers each.
func (m *ModbusMaster) WriteMultipleRegister(unitID uint8, reference uint16, values []Value) error {
	_, err := sendAndReceive(m, FuncCodeWriteMultipleRegister,
		func() ([]byte, error) { return BuildWriteMultipleRegister(unitID, reference, values, m.Endianness) },
		parseAck)
	return err
}

// MaskWriteRegister modifies one holding register with an AND and an OR
// mask (FC22).
func (m *ModbusMaster) MaskWriteRegister(unitID uint8, reference, andMask, orMask uint16) error {
	_, err := sendAndReceive(m, FuncCodeMaskWriteRegister,
		func() ([]byte, error) { return BuildMaskWriteRegister(unitID, reference, andMask, orMask) },
		parseAck)
	return err
}

// ReadWriteRegisters writes values at writeReference, then reads quantity
// registers at readReference, in one transaction (FC23).
func (m *ModbusMaster) ReadWriteRegisters(unitID uint8, readReference, quantity, writeReference uint16, values []Value) ([]byte, error) {
	return sendAndReceive(m, FuncCodeReadWriteRegisters,
		func() ([]byte, error) {
			return BuildReadWriteRegisters(unitID, readReference, quantity, writeReference, values, m.Endianness)
		},
		ParseReadWriteRegisters)
}

// Fc1 is ReadCoils.
func (m *ModbusMaster) Fc1(unitID uint8, reference, quantity uint16) ([]bool, error) {
	return m.ReadCoils(unitID, reference, quantity)
}

// Fc2 is ReadInputDiscretes.
func (m *ModbusMaster) Fc2(unitID uint8, reference, quantity uint16) ([]bool, error) {
	return m.ReadInputDiscretes(unitID, reference, quantity)
}

// Fc3 is ReadMultipleRegisters.
func (m *ModbusMaster) Fc3(unitID uint8, reference, quantity uint16) ([]byte, error) {
	return m.ReadMultipleRegisters(unitID, reference, quantity)
}

// Fc4 is ReadMultipleInputRegisters.
func (m *ModbusMaster) Fc4(unitID uint8, reference, quantity uint16) ([]byte, error) {
	return m.ReadMultipleInputRegisters(unitID, reference, quantity)
}

// Fc5 is WriteSingleCoil.
func (m *ModbusMaster) Fc5(unitID uint8, reference uint16, value bool) error {
	return m.WriteSingleCoil(unitID, reference, value)
}

// Fc6 is WriteSingleRegister.
func (m *ModbusMaster) Fc6(unitID uint8, reference uint16, value int16) error {
	return m.WriteSingleRegister(unitID, reference, value)
}

// Fc15 is WriteMultipleCoils.
func (m *ModbusMaster) Fc15(unitID uint8, reference uint16, values []bool) error {
	return m.WriteMultipleCoils(unitID, reference, values)
}

// Fc16 is WriteMultipleRegister.
func (m *ModbusMaster) Fc16(unitID uint8, reference uint16, values []Value) error {
	return m.WriteMultipleRegister(unitID, reference, values)
}

// Fc22 is MaskWriteRegister.
func (m *ModbusMaster) Fc22(unitID uint8, reference, andMask, orMask uint16) error {
	return m.MaskWriteRegister(unitID, reference, andMask, orMask)
}

// Fc23 is ReadWriteRegisters.
func (m *ModbusMaster) Fc23(unitID uint8, readReference, quantity, writeReference uint16, values []Value) ([]byte, error) {
	return m.ReadWriteRegisters(unitID, readReference, quantity, writeReference, values)
}
