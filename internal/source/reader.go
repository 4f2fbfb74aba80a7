// Package source reads the raw registry exports and turns their loosely-typed
// rows into the coerced records the reconciliation engine consumes.
package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/saludmental/cohortload/internal/normalize"
)

// Table is one source file in memory: normalized headers plus sniffed cells.
// Row widths may be ragged; missing trailing fields read as CellMissing.
type Table struct {
	Source  string
	Headers []string
	Rows    [][]Cell
}

// ReadTable loads a CSV export. Headers are normalized immediately so all
// later column matching is case/diacritic/whitespace-insensitive.
func ReadTable(path, sourceTag string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s source: %w", sourceTag, err)
	}
	defer f.Close()
	return readTable(f, sourceTag)
}

func readTable(r io.Reader, sourceTag string) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("read %s source: file is empty", sourceTag)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", sourceTag, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "﻿")
	}

	t := &Table{Source: sourceTag, Headers: make([]string, len(header))}
	for i, h := range header {
		t.Headers[i] = normalize.Text(h)
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s row %d: %w", sourceTag, len(t.Rows)+2, err)
		}
		row := make([]Cell, len(rec))
		for i, raw := range rec {
			row[i] = sniffCell(raw)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// cell returns the cell at column idx, tolerating ragged rows.
func (t *Table) cell(row []Cell, idx int) Cell {
	if idx < 0 || idx >= len(row) {
		return Cell{Kind: CellMissing}
	}
	return row[idx]
}
