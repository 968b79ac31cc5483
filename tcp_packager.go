package modbus

import (
	"encoding/binary"
	"math/rand/v2"
)

// Modbus TCP Protocol Constants
const (
	TCPHeaderLength       = 7                              // MBAP header length in bytes
	MaxPDULength          = 253                            // Maximum PDU length according to Modbus spec
	MaxTCPFrameLength     = TCPHeaderLength + MaxPDULength // Maximum complete frame length
	ProtocolIdentifierTCP = 0x0000
	MaxTransactionID      = 65000

	// offsets into a complete response frame
	offsetFunctionCode = 7
	offsetByteCount    = 8
	offsetData         = 9
)

// TCPPackager wraps PDUs into MBAP frames and checks response frames.
type TCPPackager struct {
	nextID func() uint16
}

// NewTCPPackager creates a TCPPackager drawing transaction ids at random.
func NewTCPPackager() *TCPPackager {
	return &TCPPackager{nextID: randomTransactionID}
}

// randomTransactionID returns an id in 0..MaxTransactionID. Responses are not
// matched against it; it only has to be a valid header field.
func randomTransactionID() uint16 {
	return uint16(rand.IntN(MaxTransactionID + 1))
}

// Pack packs a Modbus PDU into a complete MBAP frame.
// MBAP format: Transaction Identifier (2 bytes) + Protocol Identifier (2 bytes) + Length (2 bytes) + Unit Identifier (1 byte).
func (p *TCPPackager) Pack(unitID uint8, pdu []byte) ([]byte, error) {
	return p.PackWithTransactionID(p.nextID(), unitID, pdu)
}

// PackWithTransactionID is Pack with a caller-chosen transaction id.
func (p *TCPPackager) PackWithTransactionID(transactionID uint16, unitID uint8, pdu []byte) ([]byte, error) {
	if len(pdu) == 0 {
		return nil, formatErrorf("PDU cannot be empty")
	}
	if len(pdu) > MaxPDULength {
		return nil, formatErrorf("PDU length %d exceeds maximum %d bytes", len(pdu), MaxPDULength)
	}

	// Length field includes the Unit Identifier (1 byte) + PDU length
	length := uint16(len(pdu) + 1)

	frame := make([]byte, TCPHeaderLength+len(pdu))
	binary.BigEndian.PutUint16(frame[0:2], transactionID)
	binary.BigEndian.PutUint16(frame[2:4], ProtocolIdentifierTCP)
	binary.BigEndian.PutUint16(frame[4:6], length)
	frame[6] = unitID
	copy(frame[7:], pdu)

	return frame, nil
}

// Unpack splits a frame into transaction id, unit id and PDU.
func (p *TCPPackager) Unpack(frame []byte) (transactionID uint16, unitID uint8, pdu []byte, err error) {
	if len(frame) < TCPHeaderLength+1 {
		err = formatErrorf("invalid TCP frame length: %d bytes, minimum required: %d bytes", len(frame), TCPHeaderLength+1)
		return
	}
	transactionID = binary.BigEndian.Uint16(frame[0:2])
	unitID = frame[6]
	pdu = frame[TCPHeaderLength:]
	return
}

// frameLength returns the total frame size announced by an MBAP header, or
// 0 when fewer than 6 bytes are available.
func frameLength(header []byte) int {
	if len(header) < 6 {
		return 0
	}
	return 6 + int(binary.BigEndian.Uint16(header[4:6]))
}

// ValidateFrame performs basic validation on a response frame: it must hold a
// header and a function code. Protocol id and length fields are not checked.
func (p *TCPPackager) ValidateFrame(frame []byte) error {
	if len(frame) < TCPHeaderLength+1 {
		return formatErrorf("frame too short: %d bytes, minimum: %d bytes", len(frame), TCPHeaderLength+1)
	}
	if len(frame) > MaxTCPFrameLength {
		return formatErrorf("frame too long: %d bytes, maximum: %d bytes", len(frame), MaxTCPFrameLength)
	}
	return nil
}

// responseCode checks the function code byte of a response frame and turns
// an exception response into a *ModbusError.
func responseCode(frame []byte) error {
	fc := frame[offsetFunctionCode]
	if fc&0x80 == 0 {
		return nil
	}
	code := ExceptionCode(0)
	if len(frame) > offsetByteCount {
		code = ExceptionCode(frame[offsetByteCount])
	}
	return &ModbusError{FunctionCode: FunctionCode(fc & 0x7F), ExceptionCode: code}
}
