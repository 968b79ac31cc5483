package modbus

import (
	"encoding/hex"
	"io"
	"net"
	"sync"
	"testing"
	"time"
)

// mockServer answers every request with a canned response and records what
// the client sent. An empty response keeps the server silent.
type mockServer struct {
	t        *testing.T
	protocol Protocol
	response []byte
	split    int // TCP only: write the response in two parts at this offset

	listener net.Listener
	packet   net.PacketConn

	mu       sync.Mutex
	requests [][]byte
	remotes  []net.Addr

	clientClosed chan struct{}
}

func newMockServer(t *testing.T, protocol Protocol, response string) *mockServer {
	t.Helper()
	s := &mockServer{
		t:            t,
		protocol:     protocol,
		response:     mustHex(t, response),
		clientClosed: make(chan struct{}, 16),
	}
	var err error
	switch protocol {
	case ProtocolUDP:
		s.packet, err = net.ListenPacket("udp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("listen udp: %v", err)
		}
		go s.serveUDP()
		t.Cleanup(func() { s.packet.Close() })
	default:
		s.listener, err = net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("listen tcp: %v", err)
		}
		go s.acceptTCP()
		t.Cleanup(func() { s.listener.Close() })
	}
	return s
}

func (s *mockServer) port() int {
	if s.packet != nil {
		return s.packet.LocalAddr().(*net.UDPAddr).Port
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

// master returns a master pointed at the server with short timeouts.
func (s *mockServer) master() *ModbusMaster {
	m := NewModbusMaster("127.0.0.1", s.protocol)
	m.Port = s.port()
	m.SetTimeout(time.Second)
	m.SetSocketTimeout(50*time.Millisecond, 200*time.Millisecond)
	return m
}

func (s *mockServer) record(req []byte, remote net.Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	s.remotes = append(s.remotes, remote)
}

// requestHex returns request i without its transaction id.
func (s *mockServer) requestHex(i int) string {
	s.t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.requests) {
		s.t.Fatalf("server saw %d requests, want at least %d", len(s.requests), i+1)
	}
	return hex.EncodeToString(s.requests[i][2:])
}

func (s *mockServer) remote(i int) net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remotes[i]
}

func (s *mockServer) acceptTCP() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.serveTCP(conn)
	}
}

func (s *mockServer) serveTCP(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	header := make([]byte, 6)
	if _, err := io.ReadFull(conn, header); err != nil {
		return
	}
	body := make([]byte, frameLength(header)-len(header))
	if _, err := io.ReadFull(conn, body); err != nil {
		return
	}
	s.record(append(header, body...), conn.RemoteAddr())

	if len(s.response) > 0 {
		if s.split > 0 && s.split < len(s.response) {
			conn.Write(s.response[:s.split])
			time.Sleep(100 * time.Millisecond)
			conn.Write(s.response[s.split:])
		} else {
			conn.Write(s.response)
		}
	}

	// Returns once the client closes its end.
	io.Copy(io.Discard, conn)
	s.clientClosed <- struct{}{}
}

func (s *mockServer) serveUDP() {
	buf := make([]byte, MaxTCPFrameLength)
	for {
		n, addr, err := s.packet.ReadFrom(buf)
		if err != nil {
			return
		}
		req := make([]byte, n)
		copy(req, buf[:n])
		s.record(req, addr)
		if len(s.response) > 0 {
			s.packet.WriteTo(s.response, addr)
		}
	}
}

// waitClientClosed fails the test unless the client closed its TCP
// connection within a second.
func (s *mockServer) waitClientClosed() {
	s.t.Helper()
	select {
	case <-s.clientClosed:
	case <-time.After(time.Second):
		s.t.Fatal("client did not close the connection")
	}
}

// closedPort returns a local TCP port with nothing listening on it.
func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}
