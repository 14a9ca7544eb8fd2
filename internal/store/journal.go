package store

import (
	"bytes"
	"encoding/json"
	"strings"
)

// journalKey extracts the key of one journal line: the first candidate
// field holding a non-empty JSON string. Lines that do not parse as a
// JSON object or carry no usable candidate field report ok = false and
// stay unindexed.
func journalKey(line string, candidates []string) (string, bool) {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		return "", false
	}
	for _, name := range candidates {
		if v, ok := obj[name]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// scanJournal builds the key index of existing journal content: the most
// recently seen line per key. Blank and unkeyed lines are skipped.
func scanJournal(content []byte, candidates []string) map[string]string {
	index := make(map[string]string)
	if len(content) == 0 {
		return index
	}
	for _, raw := range strings.Split(string(content), "\n") {
		line := strings.TrimSuffix(raw, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if k, ok := journalKey(line, candidates); ok {
			index[k] = line
		}
	}
	return index
}

// appendPayload renders the bytes a journal append writes: a separating
// newline when the existing content does not already end in one, the new
// lines joined by newlines, and a trailing newline.
func appendPayload(existing []byte, lines []string) []byte {
	var buf bytes.Buffer
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.WriteString(strings.Join(lines, "\n"))
	buf.WriteByte('\n')
	return buf.Bytes()
}

// compactLines rewrites journal content keeping, in original order,
// every unkeyed line plus only the last occurrence of each key.
func compactLines(content []byte, candidates []string) ([]byte, CompactStats) {
	type journalLine struct {
		text string
		key  string
	}

	var lines []journalLine
	last := make(map[string]int)
	for _, raw := range strings.Split(string(content), "\n") {
		line := strings.TrimSuffix(raw, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		k, ok := journalKey(line, candidates)
		if !ok {
			k = ""
		}
		lines = append(lines, journalLine{text: line, key: k})
		if k != "" {
			last[k] = len(lines) - 1
		}
	}

	var buf bytes.Buffer
	kept := 0
	for i, l := range lines {
		if l.key != "" && last[l.key] != i {
			continue
		}
		buf.WriteString(l.text)
		buf.WriteByte('\n')
		kept++
	}

	stats := CompactStats{
		Scanned: len(lines),
		Kept:    kept,
		Removed: len(lines) - kept,
	}
	return buf.Bytes(), stats
}
