// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ingest

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/poiesic/candirank/core"
)

const maxLineSize = 1 << 20

// Row is one parsed input line.
type Row struct {
	Item  core.Item
	ID    core.ID
	HasID bool // False when the line carried no id column
}

// ReadRows parses tab-separated rows from r. Blank lines are skipped.
func ReadRows(r io.Reader) ([]Row, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var rows []Row
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		row, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return rows, nil
}

// ParseLine parses a single "processed<TAB>original[<TAB>id]" line.
func ParseLine(line string) (Row, error) {
	fields := strings.Split(line, "\t")
	if len(fields) > 3 {
		return Row{}, fmt.Errorf("%w: expected at most 3 columns, got %d", ErrMalformedLine, len(fields))
	}

	var row Row
	row.Item.Text = fields[0]
	row.Item.Original = fields[0]
	if len(fields) > 1 {
		row.Item.Original = fields[1]
	}
	if row.Item.Text == "" {
		return Row{}, fmt.Errorf("%w: empty text", ErrMalformedLine)
	}
	if len(fields) == 3 {
		id, err := strconv.ParseUint(strings.TrimSpace(fields[2]), 10, 64)
		if err != nil {
			return Row{}, fmt.Errorf("%w: invalid id %q", ErrMalformedLine, fields[2])
		}
		row.ID = core.ID(id)
		row.HasID = true
	}
	return row, nil
}

// Texts returns the processed texts of rows.
func Texts(rows []Row) []string {
	out := make([]string, len(rows))
	for i := range rows {
		out[i] = rows[i].Item.Text
	}
	return out
}
