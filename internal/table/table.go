package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Table is an ordered set of named columns over string cells.
// Column names are unique; every row has exactly one cell per column.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Parse decodes a CSV stream with a header row into a Table.
func Parse(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return Table{}, fmt.Errorf("empty file, expected a header row")
	}

	header := records[0]
	seen := make(map[string]struct{}, len(header))
	for _, name := range header {
		if _, dup := seen[name]; dup {
			return Table{}, fmt.Errorf("duplicate column %q", name)
		}
		seen[name] = struct{}{}
	}

	return Table{Columns: header, Rows: records[1:]}, nil
}

// RowCount returns the number of data rows.
func (t Table) RowCount() int { return len(t.Rows) }

// ColumnIndex returns the position of the named column, or -1.
func (t Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// TakeColumn removes the named column and returns its cells in row order.
// The second return is false when the column does not exist, in which case
// the table is unchanged.
func (t *Table) TakeColumn(name string) ([]string, bool) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, false
	}

	cells := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		cells[i] = row[idx]
		t.Rows[i] = append(row[:idx:idx], row[idx+1:]...)
	}
	t.Columns = append(t.Columns[:idx:idx], t.Columns[idx+1:]...)
	return cells, true
}

// Missing returns the members of want that are not columns of t,
// preserving the order of want.
func (t Table) Missing(want []string) []string {
	var missing []string
	for _, name := range want {
		if t.ColumnIndex(name) < 0 {
			missing = append(missing, name)
		}
	}
	return missing
}

// Select reduces and reorders the table to exactly the given columns.
// Every requested column must exist.
func (t *Table) Select(order []string) error {
	idx := make([]int, len(order))
	for i, name := range order {
		j := t.ColumnIndex(name)
		if j < 0 {
			return fmt.Errorf("column %q not present", name)
		}
		idx[i] = j
	}

	for r, row := range t.Rows {
		next := make([]string, len(idx))
		for i, j := range idx {
			next[i] = row[j]
		}
		t.Rows[r] = next
	}
	t.Columns = append([]string(nil), order...)
	return nil
}

// Matrix converts every cell to float64, one slice per row.
func (t Table) Matrix() ([][]float64, error) {
	out := make([][]float64, len(t.Rows))
	for r, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return nil, fmt.Errorf("row %d has %d cells, expected %d", r+1, len(row), len(t.Columns))
		}
		vals := make([]float64, len(row))
		for c, cell := range row {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: value %q is not numeric", r+1, t.Columns[c], cell)
			}
			vals[c] = v
		}
		out[r] = vals
	}
	return out, nil
}

// PrependColumn inserts a column at position 0. The cell count must match
// the row count.
func (t *Table) PrependColumn(name string, cells []string) error {
	if len(cells) != len(t.Rows) {
		return fmt.Errorf("column %q has %d cells for %d rows", name, len(cells), len(t.Rows))
	}
	t.Columns = append([]string{name}, t.Columns...)
	for i, row := range t.Rows {
		t.Rows[i] = append([]string{cells[i]}, row...)
	}
	return nil
}

// Head returns the first n rows (or fewer).
func (t Table) Head(n int) [][]string {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return t.Rows[:n]
}

// WriteCSV encodes the table with a header row.
func (t Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FromMatrix builds a table from float64 values, formatting cells the way
// strconv renders them (shortest round-trippable form).
func FromMatrix(columns []string, values [][]float64) Table {
	rows := make([][]string, len(values))
	for r, vals := range values {
		row := make([]string, len(vals))
		for c, v := range vals {
			row[c] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		rows[r] = row
	}
	return Table{Columns: append([]string(nil), columns...), Rows: rows}
}
