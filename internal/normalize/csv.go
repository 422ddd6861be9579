package normalize

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

type table struct {
	header []string
	rows   [][]string
}

// parseTable reads a header row followed by data rows. Ragged rows are allowed.
func parseTable(text string) (*table, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.LazyQuotes = true

	var t table
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		if blankRecord(rec) {
			continue
		}
		if t.header == nil {
			t.header = make([]string, len(rec))
			for i, h := range rec {
				t.header[i] = strings.TrimSpace(h)
			}
			continue
		}
		t.rows = append(t.rows, rec)
	}
	if t.header == nil {
		return nil, errors.New("parse csv: no header row")
	}
	return &t, nil
}

func blankRecord(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// tableSegments renders each data row as "field: value; field: value".
// Empty cells are dropped; cells past the header get a positional name.
func (n *Normalizer) tableSegments(t *table, facts map[string]string) []string {
	facts["row_count"] = strconv.Itoa(len(t.rows))
	facts["columns"] = strings.Join(t.header, ", ")

	rows := t.rows
	if n.maxCSVRows > 0 && len(rows) > n.maxCSVRows {
		rows = rows[:n.maxCSVRows]
		facts["truncated_rows"] = strconv.Itoa(len(t.rows) - n.maxCSVRows)
	}

	segments := make([]string, 0, len(rows))
	for i, rec := range rows {
		parts := make([]string, 0, len(rec))
		for j, cell := range rec {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			name := columnName(t.header, j)
			parts = append(parts, name+": "+cell)
			facts["row."+strconv.Itoa(i+1)+"."+name] = cell
		}
		if len(parts) == 0 {
			continue
		}
		seg := strings.Join(parts, "; ")
		if len([]rune(seg)) > n.maxSegmentChars {
			segments = append(segments, splitWords(seg, n.maxSegmentChars)...)
			continue
		}
		segments = append(segments, seg)
	}
	return segments
}

func columnName(header []string, i int) string {
	if i < len(header) && header[i] != "" {
		return header[i]
	}
	return "column_" + strconv.Itoa(i+1)
}
