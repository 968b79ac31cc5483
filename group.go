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
	"fmt"
	"sort"
)

// MaxReadRegisters is the largest quantity a single FC3/FC4 request may ask for.
const MaxReadRegisters = 125

// GroupPoints groups points by unit id, function code and logical continuity
// so that each group can be fetched with a single register read. Groups are
// ordered by unit id, function code and start reference.
func GroupPoints(points []RegisterPoint) [][]RegisterPoint {
	if len(points) == 0 {
		return [][]RegisterPoint{}
	}

	sorted := make([]RegisterPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.UnitID != b.UnitID {
			return a.UnitID < b.UnitID
		}
		if a.Function != b.Function {
			return a.Function < b.Function
		}
		return a.Reference < b.Reference
	})

	var result [][]RegisterPoint
	current := []RegisterPoint{sorted[0]}
	for _, curr := range sorted[1:] {
		if continues(current[len(current)-1], curr) && groupQuantity(current)+int(curr.Quantity()) <= MaxReadRegisters {
			current = append(current, curr)
			continue
		}
		result = append(result, current)
		current = []RegisterPoint{curr}
	}
	return append(result, current)
}

// continues reports whether next starts right after prev on the same unit
// and register table.
func continues(prev, next RegisterPoint) bool {
	return next.UnitID == prev.UnitID &&
		next.Function == prev.Function &&
		int(next.Reference) == int(prev.Reference)+int(prev.Quantity())
}

func groupQuantity(group []RegisterPoint) int {
	total := 0
	for _, p := range group {
		total += int(p.Quantity())
	}
	return total
}

// ReadPointGroup reads a group built by GroupPoints with one request and
// decodes every point of it, in group order.
func (m *ModbusMaster) ReadPointGroup(group []RegisterPoint) ([]float64, error) {
	if len(group) == 0 {
		return nil, nil
	}
	for i, p := range group {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if i > 0 && !continues(group[i-1], p) {
			return nil, &ConfigError{
				Field:  fmt.Sprintf("group[%d]", i),
				Reason: fmt.Sprintf("point %s does not follow %s on the same unit and function", p.Tag, group[i-1].Tag),
			}
		}
	}
	first := group[0]
	quantity := groupQuantity(group)
	if quantity > MaxReadRegisters {
		return nil, formatErrorf("group starting at %s spans %d registers, maximum is %d", first.Tag, quantity, MaxReadRegisters)
	}

	read := m.ReadMultipleRegisters
	if first.Function == FuncCodeReadMultipleInputRegisters {
		read = m.ReadMultipleInputRegisters
	}
	data, err := read(first.UnitID, first.Reference, uint16(quantity))
	if err != nil {
		return nil, err
	}

	values := make([]float64, len(group))
	for i, p := range group {
		offset := 2 * (int(p.Reference) - int(first.Reference))
		end := offset + 2*int(p.Quantity())
		if offset < 0 || end > len(data) {
			return nil, formatErrorf("point %s not covered by %d response bytes", p.Tag, len(data))
		}
		v, err := p.Decode(data[offset:end])
		if err != nil {
			return nil, fmt.Errorf("point %s: %w", p.Tag, err)
		}
		values[i] = v
	}
	return values, nil
}
