package command

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"unicode/utf8"
)

// Kind says what a command asks for: read a parameter, change it, or report
// its current value.
type Kind int32

const (
	Get Kind = iota
	Set
	Report
)

func (k Kind) String() string {
	switch k {
	case Get:
		return "GET"
	case Set:
		return "SET"
	case Report:
		return "REP"
	default:
		return fmt.Sprintf("KIND(%d)", int32(k))
	}
}

func (k Kind) Valid() bool {
	return k >= Get && k <= Report
}

// ParmType tags which payload field carries the command's value.
type ParmType int32

const (
	ParmNone ParmType = iota
	ParmInt
	ParmDouble
	ParmString
)

func (p ParmType) String() string {
	switch p {
	case ParmInt:
		return "I"
	case ParmDouble:
		return "D"
	case ParmString:
		return "S"
	default:
		return "N"
	}
}

const (
	NumInts    = 4
	NumDoubles = 4
	// MaxStringLen is the size of the fixed string field on the wire.
	MaxStringLen = 64
)

// Command is the unit of work and status passed between stages and to UI
// clients. Commands are values; once handed to a mailbox they are never
// mutated.
type Command struct {
	Kind     Kind
	Target   Target
	ParmType ParmType
	Tag      int32
	ID       uint32
	Ints     [NumInts]int32
	Doubles  [NumDoubles]float64
	Str      string
}

var sequence uint32

func nextID() uint32 {
	return atomic.AddUint32(&sequence, 1)
}

// New builds a command with no payload.
func New(kind Kind, target Target) Command {
	return Command{
		Kind:   kind,
		Target: target,
		ID:     nextID(),
	}
}

// NewInt builds a command carrying up to NumInts integers.
func NewInt(kind Kind, target Target, vals ...int32) Command {
	c := New(kind, target)
	c.ParmType = ParmInt
	copy(c.Ints[:], vals)
	return c
}

// NewDouble builds a command carrying up to NumDoubles values.
func NewDouble(kind Kind, target Target, vals ...float64) Command {
	c := New(kind, target)
	c.ParmType = ParmDouble
	copy(c.Doubles[:], vals)
	return c
}

// NewString builds a command carrying a string, truncated to at most
// MaxStringLen bytes on a rune boundary.
func NewString(kind Kind, target Target, s string) Command {
	c := New(kind, target)
	c.ParmType = ParmString
	c.Str = truncate(s)
	return c
}

func truncate(s string) string {
	if len(s) <= MaxStringLen {
		return s
	}
	n := MaxStringLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// WithTag returns a copy of c with the tag field set.
func (c Command) WithTag(tag int32) Command {
	c.Tag = tag
	return c
}

// Int returns the first integer field.
func (c Command) Int() int32 {
	return c.Ints[0]
}

// Double returns the first double field.
func (c Command) Double() float64 {
	return c.Doubles[0]
}

// IsStop reports whether c is the broadcast shutdown request.
func (c Command) IsStop() bool {
	return c.Target == Stop
}

func (c Command) String() string {
	var b strings.Builder
	b.WriteString(c.Kind.String())
	b.WriteByte(' ')
	b.WriteString(c.Target.String())

	switch c.ParmType {
	case ParmInt:
		b.WriteString(" I")
		for _, v := range c.Ints {
			b.WriteByte(' ')
			b.WriteString(strconv.Itoa(int(v)))
		}
	case ParmDouble:
		b.WriteString(" D")
		for _, v := range c.Doubles {
			b.WriteByte(' ')
			b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
	case ParmString:
		b.WriteString(" S ")
		b.WriteString(c.Str)
	}
	return b.String()
}
