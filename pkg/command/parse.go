package command

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse reads the text form used by control clients:
//
//	SET RX_TUNE_FREQ D 144.2e6
//	SET TX_CW_TEXT S CQ CQ
//	GET RX_FE_FREQ
//	REP TX_STATE I 3
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Command{}, fmt.Errorf("parse %q: need at least a kind and a target", line)
	}

	var kind Kind
	switch strings.ToUpper(fields[0]) {
	case "GET":
		kind = Get
	case "SET":
		kind = Set
	case "REP", "REPORT":
		kind = Report
	default:
		return Command{}, fmt.Errorf("parse %q: unknown kind %q", line, fields[0])
	}

	target, err := ParseTarget(fields[1])
	if err != nil {
		return Command{}, fmt.Errorf("parse %q: %w", line, err)
	}

	if len(fields) == 2 {
		return New(kind, target), nil
	}
	if len(fields) == 3 {
		return Command{}, fmt.Errorf("parse %q: parameter type without data", line)
	}

	data := fields[3:]
	switch strings.ToUpper(fields[2]) {
	case "I":
		if len(data) > NumInts {
			return Command{}, fmt.Errorf("parse %q: at most %d integers", line, NumInts)
		}
		vals := make([]int32, len(data))
		for i, s := range data {
			v, err := strconv.ParseInt(s, 0, 32)
			if err != nil {
				return Command{}, fmt.Errorf("parse %q: %w", line, err)
			}
			vals[i] = int32(v)
		}
		return NewInt(kind, target, vals...), nil
	case "D":
		if len(data) > NumDoubles {
			return Command{}, fmt.Errorf("parse %q: at most %d doubles", line, NumDoubles)
		}
		vals := make([]float64, len(data))
		for i, s := range data {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return Command{}, fmt.Errorf("parse %q: %w", line, err)
			}
			vals[i] = v
		}
		return NewDouble(kind, target, vals...), nil
	case "S":
		return NewString(kind, target, skipFields(line, 3)), nil
	default:
		return Command{}, fmt.Errorf("parse %q: unknown parameter type %q", line, fields[2])
	}
}

// skipFields drops the first n whitespace-separated fields of line, keeping
// the spacing of whatever follows.
func skipFields(line string, n int) string {
	s := line
	for i := 0; i < n; i++ {
		s = strings.TrimLeft(s, " \t")
		idx := strings.IndexAny(s, " \t")
		if idx < 0 {
			return ""
		}
		s = s[idx:]
	}
	return strings.TrimLeft(s, " \t")
}
