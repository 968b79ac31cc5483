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
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Protocol is the socket transport a master talks over.
type Protocol string

const (
	ProtocolTCP Protocol = "TCP"
	ProtocolUDP Protocol = "UDP"
)

const unknownProtocolReason = "Unknown socket protocol, should be 'TCP' or 'UDP'"

// ParseProtocol accepts "tcp" or "udp" in any case.
func ParseProtocol(s string) (Protocol, error) {
	p := Protocol(strings.ToUpper(strings.TrimSpace(s)))
	if err := p.validate(); err != nil {
		return "", err
	}
	return p, nil
}

func (p Protocol) validate() error {
	if p != ProtocolTCP && p != ProtocolUDP {
		return &ConfigError{Field: "protocol", Reason: unknownProtocolReason}
	}
	return nil
}

func (p Protocol) network() string {
	return strings.ToLower(string(p))
}

// ConnectionConfig holds everything needed to open one connection.
type ConnectionConfig struct {
	Protocol       Protocol
	Host           string
	Port           int
	Client         string // optional local bind address
	ClientPort     int    // optional local bind port
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	Logger         io.Writer    // optional debug output
	Status         func(string) // optional status event sink
}

// Address returns host:port of the remote device.
func (c ConnectionConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Endpoint returns the address with its scheme, e.g. tcp://127.0.0.1:502.
func (c ConnectionConfig) Endpoint() string {
	return c.Protocol.network() + "://" + c.Address()
}

func (c ConnectionConfig) bound() bool {
	return c.Client != "" || c.ClientPort != 0
}

// Validate checks the configuration without touching the network.
func (c ConnectionConfig) Validate() error {
	if err := c.Protocol.validate(); err != nil {
		return err
	}
	if c.Host == "" {
		return &ConfigError{Field: "host", Reason: "must not be empty"}
	}
	if c.Port < 0 || c.Port > 65535 {
		return &ConfigError{Field: "port", Reason: fmt.Sprintf("%d out of range 0..65535", c.Port)}
	}
	if c.ClientPort < 0 || c.ClientPort > 65535 {
		return &ConfigError{Field: "client_port", Reason: fmt.Sprintf("%d out of range 0..65535", c.ClientPort)}
	}
	return nil
}

// Connection is a single request/response channel to a device.
type Connection interface {
	Connect() error
	Send(packet []byte) error
	// Receive blocks until a complete response arrives or no data has been
	// seen for watchdog. Each read waits at most readPoll.
	Receive(readPoll, watchdog time.Duration) ([]byte, error)
	// Close releases the socket. It is safe to call more than once.
	Close() error
}

// Dialer creates an unconnected Connection for cfg.
type Dialer func(cfg ConnectionConfig) Connection

// DialNet is the default Dialer.
func DialNet(cfg ConnectionConfig) Connection {
	return NewNetConnection(cfg)
}

// NetConnection implements Connection over a TCP or UDP socket.
type NetConnection struct {
	cfg    ConnectionConfig
	conn   net.Conn
	logger *log.Logger
	mu     sync.Mutex
	closed bool
}

// NewNetConnection creates a NetConnection; no socket is opened until Connect.
func NewNetConnection(cfg ConnectionConfig) *NetConnection {
	var logger *log.Logger
	if cfg.Logger != nil {
		// Leveled writers such as SimpleLogger pick the level from the prefix.
		logger = log.New(cfg.Logger, "DEBUG: ["+string(cfg.Protocol)+"] ", 0)
	}
	return &NetConnection{cfg: cfg, logger: logger}
}

// log writes a log message if logger is configured
func (c *NetConnection) log(format string, v ...interface{}) {
	if c.logger != nil {
		c.logger.Printf(format, v...)
	}
}

func (c *NetConnection) status(line string) {
	if c.cfg.Status != nil {
		c.cfg.Status(line)
	}
}

func (c *NetConnection) localAddr() (net.Addr, error) {
	local := net.JoinHostPort(c.cfg.Client, strconv.Itoa(c.cfg.ClientPort))
	if c.cfg.Protocol == ProtocolUDP {
		return net.ResolveUDPAddr("udp", local)
	}
	return net.ResolveTCPAddr("tcp", local)
}

// Connect opens the socket, binding it first when a client address or port
// is configured.
func (c *NetConnection) Connect() error {
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &IOError{Op: "connect", Endpoint: c.cfg.Endpoint(), Err: net.ErrClosed}
	}

	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	if c.cfg.bound() {
		local, err := c.localAddr()
		if err != nil {
			return &IOError{Op: "bind", Endpoint: c.cfg.Endpoint(), Err: err}
		}
		dialer.LocalAddr = local
		c.status("Bound")
		c.log("Binding to %s", local)
	}

	conn, err := dialer.Dial(c.cfg.Protocol.network(), c.cfg.Address())
	if err != nil {
		return &IOError{Op: "connect", Endpoint: c.cfg.Endpoint(), Err: err}
	}
	c.conn = conn
	c.status("Connected")
	c.log("Connected %s -> %s", conn.LocalAddr(), conn.RemoteAddr())
	return nil
}

func (c *NetConnection) socket() (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn == nil {
		return nil, net.ErrClosed
	}
	return c.conn, nil
}

// Send writes the whole packet under the write timeout.
func (c *NetConnection) Send(packet []byte) error {
	conn, err := c.socket()
	if err != nil {
		return &IOError{Op: "send", Endpoint: c.cfg.Endpoint(), Err: err}
	}
	if c.cfg.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
			return &IOError{Op: "send", Endpoint: c.cfg.Endpoint(), Err: err}
		}
		defer conn.SetWriteDeadline(time.Time{})
	}

	written := 0
	for written < len(packet) {
		n, err := conn.Write(packet[written:])
		if err != nil {
			return &IOError{Op: "send", Endpoint: c.cfg.Endpoint(), Err: fmt.Errorf("write failed after %d bytes: %w", written, err)}
		}
		written += n
	}
	c.status("Send")
	c.log("Sent %d bytes", written)
	return nil
}

// Receive reads until a complete response is available. Over TCP reads are
// accumulated until the MBAP length field is satisfied; over UDP the first
// datagram is the response.
func (c *NetConnection) Receive(readPoll, watchdog time.Duration) ([]byte, error) {
	conn, err := c.socket()
	if err != nil {
		return nil, &IOError{Op: "receive", Endpoint: c.cfg.Endpoint(), Err: err}
	}
	defer conn.SetReadDeadline(time.Time{})

	c.status("Wait data ... ")
	var (
		frame        []byte
		chunk        = make([]byte, MaxTCPFrameLength)
		lastActivity = time.Now()
	)
	for {
		deadline := lastActivity.Add(watchdog)
		if readPoll > 0 {
			if poll := time.Now().Add(readPoll); poll.Before(deadline) {
				deadline = poll
			}
		}
		if err := conn.SetReadDeadline(deadline); err != nil {
			return nil, &IOError{Op: "receive", Endpoint: c.cfg.Endpoint(), Err: err}
		}

		n, err := conn.Read(chunk)
		if n > 0 {
			frame = append(frame, chunk[:n]...)
			lastActivity = time.Now()
			c.log("Read %d bytes, %d buffered", n, len(frame))
			if c.cfg.Protocol == ProtocolUDP {
				break
			}
			if want := frameLength(frame); want > 0 && len(frame) >= want {
				frame = frame[:want]
				break
			}
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				if time.Since(lastActivity) >= watchdog {
					c.log("Watchdog expired after %s", watchdog)
					return nil, &TimeoutError{Window: watchdog, Endpoint: c.cfg.Address()}
				}
				continue
			}
			return nil, &IOError{Op: "receive", Endpoint: c.cfg.Endpoint(), Err: err}
		}
	}
	c.status("Data received")
	return frame, nil
}

// Close closes the socket. Calling Close again is a no-op.
func (c *NetConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.status("Disconnected")
	c.log("Closing %s connection", c.cfg.Protocol)
	return err
}

// IsClosed returns whether Close has been called.
func (c *NetConnection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// LocalAddr returns the local address of an open connection, or nil.
func (c *NetConnection) LocalAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.LocalAddr()
}
