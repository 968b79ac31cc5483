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
	"testing"
)

// withoutTransactionID drops the random transaction id of a request frame.
func withoutTransactionID(t *testing.T, frame []byte, err error) []byte {
	t.Helper()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if len(frame) < TCPHeaderLength {
		t.Fatalf("frame too short: % x", frame)
	}
	return frame[2:]
}

func TestBuildRequests(t *testing.T) {
	coils32 := []bool{
		true, false, true, true, false, true, true, true,
		true, true, true, true, false, false, false, false,
		false, false, false, false, true, true, true, true,
		true, true, true, true, true, true, true, true,
	}
	testCases := []struct {
		name     string
		build    func() ([]byte, error)
		expected string
	}{
		{"FC1 one coil", func() ([]byte, error) { return BuildReadCoils(0, 256, 1) }, "00000006000101000001"},
		{"FC1 three coils", func() ([]byte, error) { return BuildReadCoils(0, 256, 3) }, "00000006000101000003"},
		{"FC2", func() ([]byte, error) { return BuildReadInputDiscretes(0, 256, 1) }, "00000006000201000001"},
		{"FC2 three inputs", func() ([]byte, error) { return BuildReadInputDiscretes(0, 256, 3) }, "00000006000201000003"},
		{"FC3 one word", func() ([]byte, error) { return BuildReadMultipleRegisters(0, 256, 1) }, "00000006000301000001"},
		{"FC3 three words", func() ([]byte, error) { return BuildReadMultipleRegisters(0, 268, 3) }, "000000060003010c0003"},
		{"FC3 over limit", func() ([]byte, error) { return BuildReadMultipleRegisters(0, 256, 140) }, "0000000600030100008c"},
		{"FC4 one word", func() ([]byte, error) { return BuildReadMultipleInputRegisters(0, 256, 1) }, "00000006000401000001"},
		{"FC4 three words", func() ([]byte, error) { return BuildReadMultipleInputRegisters(0, 268, 3) }, "000000060004010c0003"},
		{"FC5 on", func() ([]byte, error) { return BuildWriteSingleCoil(0, 4096, true) }, "0000000600051000ff00"},
		{"FC5 off", func() ([]byte, error) { return BuildWriteSingleCoil(0, 4096, false) }, "00000006000510000000"},
		{"FC6", func() ([]byte, error) { return BuildWriteSingleRegister(0, 4096, 15) }, "0000000600061000000f"},
		{"FC6 zero", func() ([]byte, error) { return BuildWriteSingleRegister(0, 4096, 0) }, "00000006000610000000"},
		{"FC15", func() ([]byte, error) { return BuildWriteMultipleCoils(0, 12288, []bool{true, false, true}) }, "00000008000f300000030105"},
		{"FC15 four bytes", func() ([]byte, error) { return BuildWriteMultipleCoils(0, 0, coils32) }, "0000000b000f0000002004ed0ff0ff"},
		{"FC16 mixed", func() ([]byte, error) {
			return BuildWriteMultipleRegister(0, 12288, []Value{Int(-1), DInt(100001), Real(1.3)}, EndianLittle)
		}, "000000110010300000050affff86a1000166663fa6"},
		{"FC16 big endian", func() ([]byte, error) {
			return BuildWriteMultipleRegister(1, 0, []Value{DInt(100001), Real(1.0)}, EndianBig)
		}, "0000000f01100000000408000186a13f800000"},
		{"FC22", func() ([]byte, error) { return BuildMaskWriteRegister(0, 12288, 0xFFFB, 0x0004) }, "0000000800163000fffb0004"},
		{"FC23", func() ([]byte, error) {
			return BuildReadWriteRegisters(0, 12288, 6, 12288, []Value{Int(10), Int(-1000), DInt(2000), Real(3.0)}, EndianLittle)
		}, "00000017001730000006300000060c000afc1807d0000000004040"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			frame, err := tc.build()
			assertHex(t, tc.expected, withoutTransactionID(t, frame, err))
		})
	}
}

func TestBuildWriteMultipleCoils_Limit(t *testing.T) {
	if _, err := BuildWriteMultipleCoils(0, 0, make([]bool, MaxWriteCoils)); err != nil {
		t.Fatalf("writing %d coils should be accepted: %v", MaxWriteCoils, err)
	}
	_, err := BuildWriteMultipleCoils(0, 0, make([]bool, MaxWriteCoils+1))
	assertKind(t, KindFormat, err)
}

func TestBuildWriteMultipleRegister_PayloadLimit(t *testing.T) {
	values := make([]Value, 64)
	for i := range values {
		values[i] = DInt(i)
	}
	// 256 bytes do not fit the byte count field.
	_, err := BuildWriteMultipleRegister(0, 0, values, EndianLittle)
	assertKind(t, KindFormat, err)

	_, err = BuildWriteMultipleRegister(0, 0, []Value{Int(1), nil}, EndianLittle)
	assertKind(t, KindFormat, err)
}

func TestPackUnpackBits(t *testing.T) {
	values := []bool{true, false, true, true, false, true, true, true, true}
	packed := packBits(values)
	assertHex(t, "ed01", packed)
	assertBoolsEqual(t, values, unpackBits(packed, uint16(len(values))))

	// A short payload yields what it holds.
	assertBoolsEqual(t, []bool{true, false, true, true, false, true, true, true}, unpackBits([]byte{0xED}, 12))
	if got := unpackBits(nil, 4); len(got) != 0 {
		t.Errorf("expected no bits, got %v", got)
	}
}

func TestParseResponses(t *testing.T) {
	coils, err := ParseReadCoils(mustHex(t, "89130000000400010101"), 1)
	if err != nil {
		t.Fatalf("ParseReadCoils failed: %v", err)
	}
	assertBoolsEqual(t, []bool{true}, coils)

	coils, err = ParseReadCoils(mustHex(t, "31be0000000400010103"), 3)
	if err != nil {
		t.Fatalf("ParseReadCoils failed: %v", err)
	}
	assertBoolsEqual(t, []bool{true, true, false}, coils)

	inputs, err := ParseReadInputDiscretes(mustHex(t, "b5110000000400020103"), 3)
	if err != nil {
		t.Fatalf("ParseReadInputDiscretes failed: %v", err)
	}
	assertBoolsEqual(t, []bool{true, true, false}, inputs)

	regs, err := ParseReadMultipleRegisters(mustHex(t, "8180000000050003020003"))
	if err != nil {
		t.Fatalf("ParseReadMultipleRegisters failed: %v", err)
	}
	assertBytesEqual(t, []byte{0, 3}, regs)

	regs, err = ParseReadMultipleInputRegisters(mustHex(t, "e4710000000900030693e000040000"))
	if err != nil {
		t.Fatalf("ParseReadMultipleInputRegisters failed: %v", err)
	}
	assertBytesEqual(t, []byte{147, 224, 0, 4, 0, 0}, regs)

	regs, err = ParseReadWriteRegisters(mustHex(t, "9aa80000000f00170c000afc1807d0000000004040"))
	if err != nil {
		t.Fatalf("ParseReadWriteRegisters failed: %v", err)
	}
	assertBytesEqual(t, []byte{0, 10, 252, 24, 7, 208, 0, 0, 0, 0, 64, 64}, regs)

	if _, err := parseAck(mustHex(t, "facf00000006001030000005")); err != nil {
		t.Errorf("parseAck failed: %v", err)
	}
}

func TestParseResponses_Short(t *testing.T) {
	_, err := ParseReadMultipleRegisters(mustHex(t, "81800000000500030400"))
	assertKind(t, KindFormat, err)

	_, err = ParseReadCoils(mustHex(t, "8913000000040001"), 1)
	assertKind(t, KindFormat, err)

	_, err = parseAck(mustHex(t, "facf0000"))
	assertKind(t, KindFormat, err)
}

func TestFunctionCodeString(t *testing.T) {
	testCases := []struct {
		fc       FunctionCode
		expected string
	}{
		{FuncCodeReadCoils, "readCoils"},
		{FuncCodeWriteMultipleRegister, "writeMultipleRegister"},
		{FuncCodeReadWriteRegisters, "readWriteRegisters"},
		{FunctionCode(0x2B), "function(0x2B)"},
	}
	for _, tc := range testCases {
		if got := tc.fc.String(); got != tc.expected {
			t.Errorf("FunctionCode(%d).String() = %q, want %q", tc.fc, got, tc.expected)
		}
	}
	if FunctionCode(0x2B).Supported() {
		t.Error("0x2B should not be supported")
	}
	if !FuncCodeMaskWriteRegister.Supported() {
		t.Error("FC22 should be supported")
	}
}
