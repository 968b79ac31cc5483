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
)

// FunctionCode selects a Modbus operation.
type FunctionCode uint8

const (
	FuncCodeReadCoils                  FunctionCode = 0x01
	FuncCodeReadInputDiscretes         FunctionCode = 0x02
	FuncCodeReadMultipleRegisters      FunctionCode = 0x03
	FuncCodeReadMultipleInputRegisters FunctionCode = 0x04
	FuncCodeWriteSingleCoil            FunctionCode = 0x05
	FuncCodeWriteSingleRegister        FunctionCode = 0x06
	FuncCodeWriteMultipleCoils         FunctionCode = 0x0F
	FuncCodeWriteMultipleRegister      FunctionCode = 0x10
	FuncCodeMaskWriteRegister          FunctionCode = 0x16
	FuncCodeReadWriteRegisters         FunctionCode = 0x17
)

// Protocol limits on request sizes.
const (
	MaxWriteCoils       = 0x07B0
	coilOn              = 0xFF00
	coilOff             = 0x0000
	byteCountFieldLimit = 0xFF
)

// functionNames doubles as the set of supported function codes.
var functionNames = map[FunctionCode]string{
	FuncCodeReadCoils:                  "readCoils",
	FuncCodeReadInputDiscretes:         "readInputDiscretes",
	FuncCodeReadMultipleRegisters:      "readMultipleRegisters",
	FuncCodeReadMultipleInputRegisters: "readMultipleInputRegisters",
	FuncCodeWriteSingleCoil:            "writeSingleCoil",
	FuncCodeWriteSingleRegister:        "writeSingleRegister",
	FuncCodeWriteMultipleCoils:         "writeMultipleCoils",
	FuncCodeWriteMultipleRegister:      "writeMultipleRegister",
	FuncCodeMaskWriteRegister:          "maskWriteRegister",
	FuncCodeReadWriteRegisters:         "readWriteRegisters",
}

func (fc FunctionCode) String() string {
	if name, ok := functionNames[fc]; ok {
		return name
	}
	return fmt.Sprintf("function(0x%02X)", uint8(fc))
}

// Supported reports whether the master implements fc.
func (fc FunctionCode) Supported() bool {
	_, ok := functionNames[fc]
	return ok
}

var defaultPackager = NewTCPPackager()

// buildRequestPDU constructs a Modbus request PDU from the function code and
// its body.
func buildRequestPDU(functionCode FunctionCode, data []byte) []byte {
	pdu := make([]byte, 1+len(data))
	pdu[0] = byte(functionCode)
	copy(pdu[1:], data)
	return pdu
}

func packRequest(unitID uint8, functionCode FunctionCode, body []byte) ([]byte, error) {
	frame, err := defaultPackager.Pack(unitID, buildRequestPDU(functionCode, body))
	if err != nil {
		return nil, fmt.Errorf("modbus: failed to build %s request: %w", functionCode, err)
	}
	return frame, nil
}

func words(values ...uint16) []byte {
	buf := make([]byte, 2*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(buf[2*i:], v)
	}
	return buf
}

// BuildReadCoils builds an FC1 request.
func BuildReadCoils(unitID uint8, reference, quantity uint16) ([]byte, error) {
	return packRequest(unitID, FuncCodeReadCoils, words(reference, quantity))
}

// BuildReadInputDiscretes builds an FC2 request.
func BuildReadInputDiscretes(unitID uint8, reference, quantity uint16) ([]byte, error) {
	return packRequest(unitID, FuncCodeReadInputDiscretes, words(reference, quantity))
}

// BuildReadMultipleRegisters builds an FC3 request.
func BuildReadMultipleRegisters(unitID uint8, reference, quantity uint16) ([]byte, error) {
	return packRequest(unitID, FuncCodeReadMultipleRegisters, words(reference, quantity))
}

// BuildReadMultipleInputRegisters builds an FC4 request.
func BuildReadMultipleInputRegisters(unitID uint8, reference, quantity uint16) ([]byte, error) {
	return packRequest(unitID, FuncCodeReadMultipleInputRegisters, words(reference, quantity))
}

// BuildWriteSingleCoil builds an FC5 request; true is sent as 0xFF00.
func BuildWriteSingleCoil(unitID uint8, reference uint16, value bool) ([]byte, error) {
	v := uint16(coilOff)
	if value {
		v = coilOn
	}
	return packRequest(unitID, FuncCodeWriteSingleCoil, words(reference, v))
}

// BuildWriteSingleRegister builds an FC6 request.
func BuildWriteSingleRegister(unitID uint8, reference uint16, value int16) ([]byte, error) {
	return packRequest(unitID, FuncCodeWriteSingleRegister, words(reference, uint16(value)))
}

// packBits groups eight booleans per byte, first boolean in bit 0. The last
// byte is zero padded.
func packBits(values []bool) []byte {
	out := make([]byte, (len(values)+7)/8)
	for i, v := range values {
		if v {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out
}

// unpackBits expands packed bytes into at most quantity booleans. Bits beyond
// quantity are dropped; a short payload yields a short result.
func unpackBits(data []byte, quantity uint16) []bool {
	n := int(quantity)
	if avail := 8 * len(data); n > avail {
		n = avail
	}
	out := make([]bool, n)
	for i := range n {
		out[i] = data[i/8]&(1<<(i%8)) != 0
	}
	return out
}

// BuildWriteMultipleCoils builds an FC15 request.
func BuildWriteMultipleCoils(unitID uint8, reference uint16, values []bool) ([]byte, error) {
	if len(values) > MaxWriteCoils {
		return nil, formatErrorf("cannot write %d coils, maximum is %d", len(values), MaxWriteCoils)
	}
	packed := packBits(values)
	body := append(words(reference, uint16(len(values))), byte(len(packed)))
	return packRequest(unitID, FuncCodeWriteMultipleCoils, append(body, packed...))
}

func registerPayload(values []Value, e Endianness) ([]byte, error) {
	payload, err := EncodeValues(values, e)
	if err != nil {
		return nil, err
	}
	if len(payload) > byteCountFieldLimit {
		return nil, formatErrorf("register payload of %d bytes does not fit the byte count field", len(payload))
	}
	return payload, nil
}

// BuildWriteMultipleRegister builds an FC16 request. DINT and REAL values are
// laid out according to e.
func BuildWriteMultipleRegister(unitID uint8, reference uint16, values []Value, e Endianness) ([]byte, error) {
	payload, err := registerPayload(values, e)
	if err != nil {
		return nil, err
	}
	body := append(words(reference, uint16(len(payload)/2)), byte(len(payload)))
	return packRequest(unitID, FuncCodeWriteMultipleRegister, append(body, payload...))
}

// BuildMaskWriteRegister builds an FC22 request. The device stores
// (current AND andMask) OR (orMask AND NOT andMask).
func BuildMaskWriteRegister(unitID uint8, reference, andMask, orMask uint16) ([]byte, error) {
	return packRequest(unitID, FuncCodeMaskWriteRegister, words(reference, andMask, orMask))
}

// BuildReadWriteRegisters builds an FC23 request.
func BuildReadWriteRegisters(unitID uint8, readReference, quantity, writeReference uint16, values []Value, e Endianness) ([]byte, error) {
	payload, err := registerPayload(values, e)
	if err != nil {
		return nil, err
	}
	body := append(words(readReference, quantity, writeReference, uint16(len(payload)/2)), byte(len(payload)))
	return packRequest(unitID, FuncCodeReadWriteRegisters, append(body, payload...))
}

// responsePayload returns the count-prefixed data section of a response frame.
func responsePayload(frame []byte) ([]byte, error) {
	if len(frame) <= offsetByteCount {
		return nil, formatErrorf("response of %d bytes has no byte count", len(frame))
	}
	count := int(frame[offsetByteCount])
	if len(frame) < offsetData+count {
		return nil, formatErrorf("response announces %d data bytes, only %d received", count, len(frame)-offsetData)
	}
	data := make([]byte, count)
	copy(data, frame[offsetData:offsetData+count])
	return data, nil
}

// ParseReadCoils decodes an FC1 response into quantity booleans, LSB first.
func ParseReadCoils(frame []byte, quantity uint16) ([]bool, error) {
	data, err := responsePayload(frame)
	if err != nil {
		return nil, err
	}
	return unpackBits(data, quantity), nil
}

// ParseReadInputDiscretes decodes an FC2 response.
func ParseReadInputDiscretes(frame []byte, quantity uint16) ([]bool, error) {
	return ParseReadCoils(frame, quantity)
}

// ParseReadMultipleRegisters returns the raw register bytes of an FC3
// response, two per register, in wire order.
func ParseReadMultipleRegisters(frame []byte) ([]byte, error) {
	return responsePayload(frame)
}

// ParseReadMultipleInputRegisters returns the raw register bytes of an FC4
// response.
func ParseReadMultipleInputRegisters(frame []byte) ([]byte, error) {
	return responsePayload(frame)
}

// ParseReadWriteRegisters returns the raw register bytes of an FC23 response.
func ParseReadWriteRegisters(frame []byte) ([]byte, error) {
	return responsePayload(frame)
}

// parseAck is the parser of every write function: the response code check is
// all there is.
func parseAck(frame []byte) (struct{}, error) {
	return struct{}{}, defaultPackager.ValidateFrame(frame)
}
