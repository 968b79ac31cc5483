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
	"io"
	"time"
)

// ModbusMasterApi defines the interface for Modbus master operations.
type ModbusMasterApi interface {
	// Master API
	LastModbusError() *ModbusError
	LastState() (CallState, []CallState)
	Status() string
	ClearStatus()
	SetLogger(io.Writer)
	SetTimeout(time.Duration)
	SetEndianness(Endianness)
	// Bit access
	ReadCoils(unitID uint8, reference, quantity uint16) ([]bool, error)          // FC1
	ReadInputDiscretes(unitID uint8, reference, quantity uint16) ([]bool, error) // FC2
	WriteSingleCoil(unitID uint8, reference uint16, value bool) error            // FC5
	WriteMultipleCoils(unitID uint8, reference uint16, values []bool) error      // FC15
	// Register access
	ReadMultipleRegisters(unitID uint8, reference, quantity uint16) ([]byte, error)      // FC3
	ReadMultipleInputRegisters(unitID uint8, reference, quantity uint16) ([]byte, error) // FC4
	WriteSingleRegister(unitID uint8, reference uint16, value int16) error               // FC6
	WriteMultipleRegister(unitID uint8, reference uint16, values []Value) error          // FC16
	MaskWriteRegister(unitID uint8, reference, andMask, orMask uint16) error             // FC22
	// FC23
	ReadWriteRegisters(unitID uint8, readReference, quantity, writeReference uint16, values []Value) ([]byte, error)
	// Typed points
	ReadPoint(p RegisterPoint) (float64, error)
	ReadPointGroup(group []RegisterPoint) ([]float64, error)
}

var _ ModbusMasterApi = (*ModbusMaster)(nil)
