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
	"time"
)

// ErrorKind classifies a failure returned by the master so callers can decide
// whether to retry, alert or abort.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindConfig
	KindIO
	KindTimeout
	KindProtocol
	KindFormat
)

var kindNames = map[ErrorKind]string{
	KindUnknown:  "unknown",
	KindConfig:   "config",
	KindIO:       "io",
	KindTimeout:  "timeout",
	KindProtocol: "protocol",
	KindFormat:   "format",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Kind returns the failure class of err, looking through wrapped errors.
func Kind(err error) ErrorKind {
	var (
		cfgErr     *ConfigError
		ioErr      *IOError
		timeoutErr *TimeoutError
		modbusErr  *ModbusError
		formatErr  *FormatError
	)
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &cfgErr):
		return KindConfig
	case errors.As(err, &timeoutErr):
		return KindTimeout
	case errors.As(err, &ioErr):
		return KindIO
	case errors.As(err, &modbusErr):
		return KindProtocol
	case errors.As(err, &formatErr):
		return KindFormat
	}
	return KindUnknown
}

// ConfigError reports an invalid master configuration. It is returned before
// any network activity takes place.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("modbus: invalid configuration %s: %s", e.Field, e.Reason)
}

// IOError wraps socket creation, bind, connect, read and write failures.
type IOError struct {
	Op       string // "bind", "connect", "send", "receive"
	Endpoint string // protocol://host:port
	Err      error
}

func (e *IOError) Error() string {
	switch e.Op {
	case "connect", "bind":
		return fmt.Sprintf("Unable to create client socket to %s: %v", e.Endpoint, e.Err)
	case "receive":
		return fmt.Sprintf("Failed to read data from %s: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("modbus: %s %s failed: %v", e.Op, e.Endpoint, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// TimeoutError is returned when no response activity was seen within the
// watchdog window.
type TimeoutError struct {
	Window   time.Duration
	Endpoint string // host:port
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Watchdog time expired [ %g sec ]!!! Connection to %s is not established.", e.Window.Seconds(), e.Endpoint)
}

// Timeout reports true, matching the net.Error convention.
func (e *TimeoutError) Timeout() bool { return true }

// ExceptionCode is the failure code carried by a Modbus exception response.
type ExceptionCode uint8

const (
	ExceptionIllegalFunction                    ExceptionCode = 0x01
	ExceptionIllegalDataAddress                 ExceptionCode = 0x02
	ExceptionIllegalDataValue                   ExceptionCode = 0x03
	ExceptionSlaveDeviceFailure                 ExceptionCode = 0x04
	ExceptionAcknowledge                        ExceptionCode = 0x05
	ExceptionSlaveDeviceBusy                    ExceptionCode = 0x06
	ExceptionMemoryParityError                  ExceptionCode = 0x08
	ExceptionGatewayPathUnavailable             ExceptionCode = 0x0A
	ExceptionGatewayTargetDeviceFailedToRespond ExceptionCode = 0x0B
)

// getExceptionMessage returns the label of a Modbus failure code.
func getExceptionMessage(code ExceptionCode) string {
	switch code {
	case ExceptionIllegalFunction:
		return "ILLEGAL FUNCTION"
	case ExceptionIllegalDataAddress:
		return "ILLEGAL DATA ADDRESS"
	case ExceptionIllegalDataValue:
		return "ILLEGAL DATA VALUE"
	case ExceptionSlaveDeviceFailure:
		return "SLAVE DEVICE FAILURE"
	case ExceptionAcknowledge:
		return "ACKNOWLEDGE"
	case ExceptionSlaveDeviceBusy:
		return "SLAVE DEVICE BUSY"
	case ExceptionMemoryParityError:
		return "MEMORY PARITY ERROR"
	case ExceptionGatewayPathUnavailable:
		return "GATEWAY PATH UNAVAILABLE"
	case ExceptionGatewayTargetDeviceFailedToRespond:
		return "GATEWAY TARGET DEVICE FAILED TO RESPOND"
	default:
		return "UNDEFINED FAILURE CODE"
	}
}

// ModbusError is a device-reported exception response.
type ModbusError struct {
	FunctionCode  FunctionCode // request function code, high bit cleared
	ExceptionCode ExceptionCode
}

// Label returns the human-readable name of the exception code.
func (e *ModbusError) Label() string {
	return getExceptionMessage(e.ExceptionCode)
}

func (e *ModbusError) Error() string {
	return fmt.Sprintf("Modbus response error code: %d (%s)", e.ExceptionCode, e.Label())
}

// FormatError reports malformed codec input or a malformed response frame.
type FormatError struct {
	Msg string
}

func (e *FormatError) Error() string {
	return "modbus: format error: " + e.Msg
}

func formatErrorf(format string, v ...interface{}) *FormatError {
	return &FormatError{Msg: fmt.Sprintf(format, v...)}
}
