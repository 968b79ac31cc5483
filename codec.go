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
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Endianness selects the word order used for 32-bit register values.
//
// EndianLittle emits the low 16-bit word first and the high word second, each
// word big-endian (the usual PLC "CDAB" mapping). EndianBig emits a straight
// big-endian 32-bit layout. 16-bit values are always big-endian.
type Endianness int

const (
	EndianLittle Endianness = 0
	EndianBig    Endianness = 1
)

func (e Endianness) String() string {
	switch e {
	case EndianLittle:
		return "little"
	case EndianBig:
		return "big"
	}
	return fmt.Sprintf("Endianness(%d)", int(e))
}

// ParseEndianness accepts "little"/"big" or "0"/"1".
func ParseEndianness(s string) (Endianness, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "little", "le", "cdab":
		return EndianLittle, nil
	case "1", "big", "be", "abcd":
		return EndianBig, nil
	}
	return 0, &ConfigError{Field: "endianness", Reason: fmt.Sprintf("unknown value %q, should be little|big|0|1", s)}
}

// EncodeByte encodes v as a single byte.
func EncodeByte(v int) ([]byte, error) {
	if v < 0 || v > math.MaxUint8 {
		return nil, formatErrorf("byte value %d out of range 0..255", v)
	}
	return []byte{byte(v)}, nil
}

// EncodeInt encodes v as a 16-bit big-endian two's complement word.
// Values 32768..65535 are accepted as raw register bit patterns.
func EncodeInt(v int) ([]byte, error) {
	if v < math.MinInt16 || v > math.MaxUint16 {
		return nil, formatErrorf("INT value %d out of range -32768..65535", v)
	}
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, uint16(v))
	return buf, nil
}

// EncodeDInt encodes v as 4 bytes; see Endianness for the word order.
func EncodeDInt(v int32, e Endianness) []byte {
	return encodeWords(uint32(v), e)
}

// EncodeReal encodes the IEEE-754 single precision bits of v as 4 bytes;
// see Endianness for the word order.
func EncodeReal(v float32, e Endianness) []byte {
	return encodeWords(math.Float32bits(v), e)
}

func encodeWords(bits uint32, e Endianness) []byte {
	buf := make([]byte, 4)
	if e == EndianBig {
		binary.BigEndian.PutUint32(buf, bits)
		return buf
	}
	binary.BigEndian.PutUint16(buf[0:2], uint16(bits))
	binary.BigEndian.PutUint16(buf[2:4], uint16(bits>>16))
	return buf
}

func checkWidth(b []byte, widths ...int) error {
	for _, w := range widths {
		if len(b) == w {
			return nil
		}
	}
	return formatErrorf("data must be an array of %v bytes, got %d", widths, len(b))
}

// BytesToUnsignedInt interprets exactly 2 or 4 bytes as a big-endian unsigned
// integer. No word swap is undone.
func BytesToUnsignedInt(b []byte) (uint32, error) {
	if err := checkWidth(b, 2, 4); err != nil {
		return 0, err
	}
	if len(b) == 2 {
		return uint32(binary.BigEndian.Uint16(b)), nil
	}
	return binary.BigEndian.Uint32(b), nil
}

// BytesToSignedInt interprets exactly 2 or 4 bytes as a big-endian two's
// complement integer.
func BytesToSignedInt(b []byte) (int32, error) {
	if err := checkWidth(b, 2, 4); err != nil {
		return 0, err
	}
	if len(b) == 2 {
		return int32(int16(binary.BigEndian.Uint16(b))), nil
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

// BytesToFloat interprets exactly 4 bytes as a big-endian IEEE-754 float.
func BytesToFloat(b []byte) (float32, error) {
	if err := checkWidth(b, 4); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b)), nil
}

// BytesFromInts converts wider integers to bytes, failing on any element
// outside 0..255.
func BytesFromInts(values []int) ([]byte, error) {
	out := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > math.MaxUint8 {
			return nil, formatErrorf("element %d (%d) is not a byte", i, v)
		}
		out[i] = byte(v)
	}
	return out, nil
}

// BytesToString interprets b as character codes. With swapPairs set, each
// pair of bytes is swapped first, which is how text stored in registers with
// the low byte first reads back. Decoding stops at the first NUL.
func BytesToString(b []byte, swapPairs bool) string {
	var sb strings.Builder
	n := len(b)
	for i := 0; i < n; i++ {
		j := i
		if swapPairs {
			j = i ^ 1
			if j >= n {
				j = i
			}
		}
		if b[j] == 0 {
			break
		}
		sb.WriteByte(b[j])
	}
	return sb.String()
}
