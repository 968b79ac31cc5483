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
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// pointCSVHeaders is the column order written by WritePointsCSV.
var pointCSVHeaders = []string{"tag", "unitId", "function", "reference", "type", "endianness", "weight"}

// ParsePointsCSV reads a point table. The header row names the columns; tag,
// function, reference and type are required, the others default to unit 0,
// little endian and no scaling.
func ParsePointsCSV(reader io.Reader) ([]RegisterPoint, error) {
	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.Comment = '#'

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty CSV file")
	}

	headerMap := make(map[string]int)
	for i, h := range records[0] {
		headerMap[strings.TrimSpace(h)] = i
	}
	for _, field := range []string{"tag", "function", "reference", "type"} {
		if _, exists := headerMap[field]; !exists {
			return nil, fmt.Errorf("missing required field in CSV header: %s", field)
		}
	}

	points := make([]RegisterPoint, 0, len(records)-1)
	for i, record := range records[1:] {
		row := i + 2
		point, err := parsePointRecord(record, headerMap)
		if err != nil {
			return nil, fmt.Errorf("error parsing row %d: %w", row, err)
		}
		if err := point.Validate(); err != nil {
			return nil, fmt.Errorf("validation error for row %d (Tag: %s): %w", row, point.Tag, err)
		}
		points = append(points, point)
	}
	return points, nil
}

func parsePointRecord(record []string, headerMap map[string]int) (RegisterPoint, error) {
	var point RegisterPoint

	getField := func(name string) string {
		if idx, exists := headerMap[name]; exists && idx < len(record) {
			return strings.TrimSpace(record[idx])
		}
		return ""
	}
	parseUintField := func(name string, bitSize int, required bool) (uint64, error) {
		s := getField(name)
		if s == "" {
			if required {
				return 0, fmt.Errorf("'%s' is required", name)
			}
			return 0, nil
		}
		v, err := strconv.ParseUint(s, 0, bitSize)
		if err != nil {
			return 0, fmt.Errorf("invalid '%s': %w", name, err)
		}
		return v, nil
	}

	point.Tag = getField("tag")
	if point.Tag == "" {
		return point, fmt.Errorf("'tag' is required")
	}
	unit, err := parseUintField("unitId", 8, false)
	if err != nil {
		return point, err
	}
	point.UnitID = uint8(unit)
	fc, err := parseUintField("function", 8, true)
	if err != nil {
		return point, err
	}
	point.Function = FunctionCode(fc)
	ref, err := parseUintField("reference", 16, true)
	if err != nil {
		return point, err
	}
	point.Reference = uint16(ref)
	point.DataType = DataType(strings.ToUpper(getField("type")))

	if s := getField("endianness"); s != "" {
		if point.Endianness, err = ParseEndianness(s); err != nil {
			return point, err
		}
	}
	if s := getField("weight"); s != "" {
		if point.Weight, err = strconv.ParseFloat(s, 64); err != nil {
			return point, fmt.Errorf("invalid 'weight': %w", err)
		}
	}
	return point, nil
}

// WritePointsCSV writes points in the format ParsePointsCSV reads.
func WritePointsCSV(points []RegisterPoint, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	if err := csvWriter.Write(pointCSVHeaders); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, p := range points {
		record := []string{
			p.Tag,
			strconv.Itoa(int(p.UnitID)),
			strconv.Itoa(int(p.Function)),
			strconv.Itoa(int(p.Reference)),
			string(p.DataType),
			p.Endianness.String(),
			strconv.FormatFloat(p.Weight, 'f', -1, 64),
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write point %s: %w", p.Tag, err)
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}
