package modbus

import (
	"fmt"
	"strings"
)

// DataType tags a register value: INT (16-bit), DINT (32-bit), REAL (float32).
type DataType string

const (
	TypeINT  DataType = "INT"
	TypeDINT DataType = "DINT"
	TypeREAL DataType = "REAL"
)

// Value is one entry of a multi-register write. The concrete types are Int,
// DInt and Real.
type Value interface {
	Type() DataType
	// Words is the number of 16-bit registers the value occupies.
	Words() int
	encode(e Endianness) []byte
}

// Int is a 16-bit signed register value.
type Int int16

func (v Int) Type() DataType { return TypeINT }
func (v Int) Words() int     { return 1 }
func (v Int) encode(Endianness) []byte {
	return []byte{byte(uint16(v) >> 8), byte(uint16(v))}
}

// DInt is a 32-bit signed value spanning two registers.
type DInt int32

func (v DInt) Type() DataType             { return TypeDINT }
func (v DInt) Words() int                 { return 2 }
func (v DInt) encode(e Endianness) []byte { return EncodeDInt(int32(v), e) }

// Real is an IEEE-754 float spanning two registers.
type Real float32

func (v Real) Type() DataType             { return TypeREAL }
func (v Real) Words() int                 { return 2 }
func (v Real) encode(e Endianness) []byte { return EncodeReal(float32(v), e) }

// EncodeValues concatenates the wire encoding of values.
func EncodeValues(values []Value, e Endianness) ([]byte, error) {
	out := make([]byte, 0, 4*len(values))
	for i, v := range values {
		if v == nil {
			return nil, formatErrorf("value %d is nil", i)
		}
		out = append(out, v.encode(e)...)
	}
	return out, nil
}

// ValuesFromTags pairs values with "INT"/"DINT"/"REAL" tags positionally.
// Unknown tags encode as INT. Both slices must have the same length.
func ValuesFromTags(values []float64, tags []string) ([]Value, error) {
	if len(values) != len(tags) {
		return nil, formatErrorf("%d values but %d data types", len(values), len(tags))
	}
	out := make([]Value, len(values))
	for i, raw := range values {
		switch DataType(strings.ToUpper(strings.TrimSpace(tags[i]))) {
		case TypeDINT:
			out[i] = DInt(int32(raw))
		case TypeREAL:
			out[i] = Real(float32(raw))
		default:
			if _, err := EncodeInt(int(raw)); err != nil {
				return nil, fmt.Errorf("value %d: %w", i, err)
			}
			out[i] = Int(int16(uint16(int(raw))))
		}
	}
	return out, nil
}
