package excel

// RawTable is a sheet or CSV file as trimmed strings. Rows are padded to
// the header width.
type RawTable struct {
	Headers []string
	Rows    [][]string
}

// Column returns the position of a header
func (t *RawTable) Column(name string) (int, bool) {
	for i, h := range t.Headers {
		if h == name {
			return i, true
		}
	}
	return -1, false
}

// Values returns one column by position
func (t *RawTable) Values(idx int) []string {
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out
}
