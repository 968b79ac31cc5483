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
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestTCPPackager_PackUnpack(t *testing.T) {
	p := NewTCPPackager()
	transactionID := uint16(0x1234)
	unitID := uint8(0x01)
	pdu := []byte{0x03, 0x00, 0x00, 0x00, 0x01}

	frame, err := p.PackWithTransactionID(transactionID, unitID, pdu)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	assertHex(t, "123400000006010300000001", frame)

	gotTID, gotUID, gotPDU, err := p.Unpack(frame)
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	if gotTID != transactionID {
		t.Errorf("transactionID mismatch: got %04x, want %04x", gotTID, transactionID)
	}
	if gotUID != unitID {
		t.Errorf("unitID mismatch: got %02x, want %02x", gotUID, unitID)
	}
	if !bytes.Equal(gotPDU, pdu) {
		t.Errorf("PDU mismatch: got %v, want %v", gotPDU, pdu)
	}
}

func TestTCPPackager_RandomTransactionID(t *testing.T) {
	p := NewTCPPackager()
	for i := 0; i < 1000; i++ {
		frame, err := p.Pack(0, []byte{0x03, 0x00, 0x00, 0x00, 0x01})
		if err != nil {
			t.Fatalf("Pack failed: %v", err)
		}
		if id := binary.BigEndian.Uint16(frame[0:2]); id > MaxTransactionID {
			t.Fatalf("transaction id %d exceeds %d", id, MaxTransactionID)
		}
		if length := binary.BigEndian.Uint16(frame[4:6]); int(length) != 1+5 {
			t.Fatalf("length field %d, want 6", length)
		}
	}
}

func TestTCPPackager_Pack_Invalid(t *testing.T) {
	p := NewTCPPackager()
	_, err := p.Pack(1, nil)
	if err == nil {
		t.Error("Pack should fail for empty PDU")
	}
	_, err = p.Pack(1, make([]byte, MaxPDULength+1))
	if err == nil {
		t.Error("Pack should fail for PDU exceeding max length")
	}
	assertKind(t, KindFormat, err)
	if _, err := p.Pack(1, make([]byte, MaxPDULength)); err != nil {
		t.Errorf("Pack should accept a PDU of exactly %d bytes: %v", MaxPDULength, err)
	}
}

func TestTCPPackager_Unpack_Invalid(t *testing.T) {
	p := NewTCPPackager()
	_, _, _, err := p.Unpack([]byte{1, 2, 3})
	if err == nil {
		t.Error("Unpack should fail for short frame")
	}
}

func TestTCPPackager_ValidateFrame(t *testing.T) {
	p := NewTCPPackager()
	frame, _ := p.Pack(1, []byte{0x03, 0x00})
	if err := p.ValidateFrame(frame); err != nil {
		t.Errorf("ValidateFrame failed for valid frame: %v", err)
	}
	if err := p.ValidateFrame([]byte{1, 2, 3}); err == nil {
		t.Error("ValidateFrame should fail for short frame")
	}
	if err := p.ValidateFrame(make([]byte, MaxTCPFrameLength+1)); err == nil {
		t.Error("ValidateFrame should fail for long frame")
	}
	// Protocol id is not checked.
	frame[2] = 0xFF
	frame[3] = 0xFF
	if err := p.ValidateFrame(frame); err != nil {
		t.Errorf("ValidateFrame should tolerate a foreign protocol id: %v", err)
	}
}

func TestFrameLength(t *testing.T) {
	if n := frameLength([]byte{0, 0, 0, 0, 0}); n != 0 {
		t.Errorf("frameLength of a partial header = %d, want 0", n)
	}
	if n := frameLength(mustHex(t, "89130000000400")); n != 10 {
		t.Errorf("frameLength = %d, want 10", n)
	}
}

func TestResponseCode(t *testing.T) {
	if err := responseCode(mustHex(t, "89130000000400010101")); err != nil {
		t.Errorf("normal response reported as error: %v", err)
	}

	err := responseCode(mustHex(t, "da8700000003008303"))
	var modbusErr *ModbusError
	if !errors.As(err, &modbusErr) {
		t.Fatalf("expected *ModbusError, got %v", err)
	}
	if modbusErr.FunctionCode != FuncCodeReadMultipleRegisters || modbusErr.ExceptionCode != ExceptionIllegalDataValue {
		t.Errorf("got fc %d code %d", modbusErr.FunctionCode, modbusErr.ExceptionCode)
	}
	if got := err.Error(); got != "Modbus response error code: 3 (ILLEGAL DATA VALUE)" {
		t.Errorf("unexpected message %q", got)
	}

	err = responseCode(mustHex(t, "da870000000300837f"))
	if got := err.Error(); got != "Modbus response error code: 127 (UNDEFINED FAILURE CODE)" {
		t.Errorf("unexpected message %q", got)
	}
}
