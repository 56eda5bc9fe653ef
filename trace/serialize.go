package trace

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Serialize writes t's entries to w in the line-based textual format
// (§6):
//
//	SCHED <op-id>
//	BOOL <0|1>
//	INT <integer>
func (t *Trace) Serialize(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, e := range t.Entries() {
		var line string
		switch e.Kind {
		case Schedule:
			line = fmt.Sprintf("SCHED %d\n", e.OpID)
		case Boolean:
			v := 0
			if e.Bool {
				v = 1
			}
			line = fmt.Sprintf("BOOL %d\n", v)
		case Integer:
			line = fmt.Sprintf("INT %d\n", e.Int)
		default:
			return fmt.Errorf("trace: unknown entry kind %v", e.Kind)
		}
		if _, err := bw.WriteString(line); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Parse reads a textual trace from r (§6). The parser is
// whitespace-tolerant; lines starting with '#' (after trimming leading
// whitespace) are treated as comments and ignored, as are blank lines.
func Parse(r io.Reader) (*Trace, error) {
	t := New()
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("trace: line %d: expected \"KIND VALUE\", got %q", lineNo, line)
		}
		switch strings.ToUpper(fields[0]) {
		case "SCHED":
			id, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("trace: line %d: invalid op id: %w", lineNo, err)
			}
			t.entries = append(t.entries, Entry{Kind: Schedule, OpID: id})
		case "BOOL":
			v, err := strconv.Atoi(fields[1])
			if err != nil || (v != 0 && v != 1) {
				return nil, fmt.Errorf("trace: line %d: invalid boolean %q", lineNo, fields[1])
			}
			t.entries = append(t.entries, Entry{Kind: Boolean, Bool: v == 1})
		case "INT":
			v, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("trace: line %d: invalid integer: %w", lineNo, err)
			}
			t.entries = append(t.entries, Entry{Kind: Integer, Int: v})
		default:
			return nil, fmt.Errorf("trace: line %d: unknown entry kind %q", lineNo, fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return t, nil
}
