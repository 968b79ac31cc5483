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

// Register helpers turn the raw bytes returned by ReadMultipleRegisters,
// ReadMultipleInputRegisters and ReadWriteRegisters back into values. Index i
// counts registers, not bytes.

func registerSlice(data []byte, i, words int) ([]byte, error) {
	start := 2 * i
	if i < 0 || start+2*words > len(data) {
		return nil, formatErrorf("register %d (%d words) out of range for %d bytes", i, words, len(data))
	}
	return data[start : start+2*words], nil
}

// RegisterUint returns register i as an unsigned 16-bit value.
func RegisterUint(data []byte, i int) (uint16, error) {
	b, err := registerSlice(data, i, 1)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// RegisterInt returns register i as a signed 16-bit value.
func RegisterInt(data []byte, i int) (int16, error) {
	v, err := RegisterUint(data, i)
	return int16(v), err
}

// registerBits joins registers i and i+1. With EndianLittle the first
// register holds the low word.
func registerBits(data []byte, i int, e Endianness) (uint32, error) {
	b, err := registerSlice(data, i, 2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(reorderWords(b, e)), nil
}

// reorderWords returns 4 bytes in ABCD order.
func reorderWords(b []byte, e Endianness) []byte {
	if e == EndianBig {
		return b
	}
	return []byte{b[2], b[3], b[0], b[1]}
}

// RegisterDInt returns registers i and i+1 as a signed 32-bit value.
func RegisterDInt(data []byte, i int, e Endianness) (int32, error) {
	bits, err := registerBits(data, i, e)
	return int32(bits), err
}

// RegisterReal returns registers i and i+1 as a float.
func RegisterReal(data []byte, i int, e Endianness) (float32, error) {
	bits, err := registerBits(data, i, e)
	return math.Float32frombits(bits), err
}

// RegisterString decodes text stored one character per byte. Devices that
// store the low byte of each register first need swapPairs.
func RegisterString(data []byte, swapPairs bool) string {
	return strings.TrimSpace(BytesToString(data, swapPairs))
}

// RegisterPoint names a typed value held in one or two registers of a device.
type RegisterPoint struct {
	Tag        string       `yaml:"tag" json:"tag"`
	UnitID     uint8        `yaml:"unit_id" json:"unitId"`
	Function   FunctionCode `yaml:"function" json:"function"` // 3 or 4
	Reference  uint16       `yaml:"reference" json:"reference"`
	DataType   DataType     `yaml:"type" json:"type"`
	Endianness Endianness   `yaml:"endianness" json:"endianness"`
	Weight     float64      `yaml:"weight" json:"weight"` // scaling factor, 0 means 1
}

// Quantity returns the number of registers the point occupies.
func (p RegisterPoint) Quantity() uint16 {
	if p.dataType() == TypeINT {
		return 1
	}
	return 2
}

func (p RegisterPoint) dataType() DataType {
	return DataType(strings.ToUpper(string(p.DataType)))
}

// Validate checks the point definition.
func (p RegisterPoint) Validate() error {
	switch p.Function {
	case FuncCodeReadMultipleRegisters, FuncCodeReadMultipleInputRegisters:
	default:
		return &ConfigError{Field: "points." + p.Tag + ".function", Reason: fmt.Sprintf("%d is not a register read, use 3 or 4", p.Function)}
	}
	switch p.dataType() {
	case TypeINT, TypeDINT, TypeREAL:
	default:
		return &ConfigError{Field: "points." + p.Tag + ".type", Reason: fmt.Sprintf("unknown data type %q", p.DataType)}
	}
	if p.Endianness != EndianLittle && p.Endianness != EndianBig {
		return &ConfigError{Field: "points." + p.Tag + ".endianness", Reason: fmt.Sprintf("unknown value %d", p.Endianness)}
	}
	return nil
}

// Decode converts the registers read for the point into a scaled value.
func (p RegisterPoint) Decode(data []byte) (float64, error) {
	var raw float64
	switch p.dataType() {
	case TypeDINT:
		v, err := RegisterDInt(data, 0, p.Endianness)
		if err != nil {
			return 0, err
		}
		raw = float64(v)
	case TypeREAL:
		v, err := RegisterReal(data, 0, p.Endianness)
		if err != nil {
			return 0, err
		}
		raw = float64(v)
	default:
		v, err := RegisterInt(data, 0)
		if err != nil {
			return 0, err
		}
		raw = float64(v)
	}
	if p.Weight != 0 {
		raw *= p.Weight
	}
	return raw, nil
}

// ReadPoint reads and decodes one point.
func (m *ModbusMaster) ReadPoint(p RegisterPoint) (float64, error) {
	values, err := m.ReadPointGroup([]RegisterPoint{p})
	if err != nil {
		return 0, err
	}
	return values[0], nil
}

// FuzzyEqual compares two float64 values with a tolerance
func FuzzyEqual(a, b float64) bool {
	return math.Abs(a-b) < 0.0001
}
