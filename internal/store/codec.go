package store

import "strings"

// encodeRow renders one row against the header: fields in header order,
// absent fields as empty columns, joined by commas.
func encodeRow(header []string, row Fields) string {
	parts := make([]string, len(header))
	for i, name := range header {
		parts[i] = encodeField(row[name])
	}
	return strings.Join(parts, ",")
}

// encodeField quotes a value only when it contains a comma, a quote, or
// a line break; internal quotes are doubled.
func encodeField(v string) string {
	if !strings.ContainsAny(v, ",\"\n\r") {
		return v
	}
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

// decodeRow parses one line against the header and reports whether the
// line was well-formed. It never fails: malformed input (unterminated
// quote, stray quote, wrong field count) is decoded best-effort and only
// flagged. Empty values are treated as absent fields.
func decodeRow(header []string, line string) (Fields, bool) {
	values, clean := splitFields(line)
	if len(values) != len(header) {
		clean = false
	}
	if len(values) > len(header) {
		values = values[:len(header)]
	}
	row := make(Fields, len(values))
	for i, v := range values {
		if v == "" {
			continue
		}
		row[header[i]] = v
	}
	return row, clean
}

// splitFields splits a comma-delimited line honoring RFC4180-style
// quoting: an unescaped quote toggles quote mode, a doubled quote inside
// quote mode is a literal quote, and commas split fields only outside
// quote mode.
func splitFields(line string) ([]string, bool) {
	var (
		fields []string
		field  strings.Builder
		quoted bool
	)
	clean := true

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quoted:
			if c != '"' {
				field.WriteByte(c)
				continue
			}
			if i+1 < len(line) && line[i+1] == '"' {
				field.WriteByte('"')
				i++
			} else {
				quoted = false
			}
		case c == '"':
			if field.Len() > 0 {
				// quote opening mid-field, not our encoding
				clean = false
			}
			quoted = true
		case c == ',':
			fields = append(fields, field.String())
			field.Reset()
		default:
			field.WriteByte(c)
		}
	}

	if quoted {
		// unterminated quote
		clean = false
	}
	fields = append(fields, field.String())

	return fields, clean
}
