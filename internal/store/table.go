package store

import (
	"bytes"
	"strings"
)

// tableState is the decoded content of a compacting table file: the
// current row per key plus the order keys were first inserted in. A
// key's position never changes once created; only its row can be
// replaced.
type tableState struct {
	order []string
	rows  map[string]Fields
}

// loadTable decodes existing table content. The first line is the stored
// header and is skipped; blank lines, rows that decode to nothing, and
// rows without a key are tolerated and dropped from the state.
func loadTable(content []byte, header []string, key KeyFunc) *tableState {
	st := &tableState{
		rows: make(map[string]Fields),
	}
	if len(content) == 0 {
		return st
	}

	for i, raw := range strings.Split(string(content), "\n") {
		if i == 0 {
			// header line
			continue
		}
		line := strings.TrimSuffix(raw, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		row, _ := decodeRow(header, line)
		k := key(row)
		if k == "" {
			continue
		}
		st.upsert(k, row)
	}

	return st
}

// upsert stores row as the complete new value for key, appending the key
// to the order list the first time it is seen. The previous row, if any,
// is discarded entirely.
func (st *tableState) upsert(k string, row Fields) {
	if _, ok := st.rows[k]; !ok {
		st.order = append(st.order, k)
	}
	st.rows[k] = row
}

// render encodes the header plus exactly one line per key, in insertion
// order, with a trailing newline.
func (st *tableState) render(header []string) []byte {
	var buf bytes.Buffer
	buf.WriteString(strings.Join(header, ","))
	buf.WriteByte('\n')
	for _, k := range st.order {
		buf.WriteString(encodeRow(header, st.rows[k]))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func (st *tableState) len() int {
	return len(st.order)
}
