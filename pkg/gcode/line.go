// Package gcode tokenizes G-code lines and interpolates arc moves.
package gcode

import (
	"math"
	"strconv"
	"strings"

	"gcodeview/pkg/pool"
)

// Kind classifies a recognised command.
type Kind int

const (
	KindUnknown Kind = iota
	KindLinear            // G0, G1
	KindArcCW             // G2
	KindArcCCW            // G3
	KindAbsoluteExtrusion // M82
	KindRelativeExtrusion // M83
	KindLaserOn           // M3
	KindLaserOff          // M5
	KindAbsolute          // G90
	KindRelative          // G91
	KindDirectOn          // M101
	KindDirectOff         // M103
	KindSetPosition       // G92
	KindHome              // G28, $H
	KindTool              // Tn
	KindInches            // G20
	KindMillimeters       // G21
)

var kindNames = map[string]Kind{
	"G0":   KindLinear,
	"G1":   KindLinear,
	"G2":   KindArcCW,
	"G3":   KindArcCCW,
	"M82":  KindAbsoluteExtrusion,
	"M83":  KindRelativeExtrusion,
	"M3":   KindLaserOn,
	"M5":   KindLaserOff,
	"G90":  KindAbsolute,
	"G91":  KindRelative,
	"M101": KindDirectOn,
	"M103": KindDirectOff,
	"G92":  KindSetPosition,
	"G28":  KindHome,
	"$H":   KindHome,
	"G20":  KindInches,
	"G21":  KindMillimeters,
}

func (k Kind) String() string {
	switch k {
	case KindLinear:
		return "linear"
	case KindArcCW, KindArcCCW:
		return "arc"
	case KindUnknown:
		return "unknown"
	default:
		return "modal"
	}
}

// Param is one letter/value argument.
type Param struct {
	Letter byte // upper case
	Value  float64
}

// Command is one tokenized line.
type Command struct {
	Name   string // normalised, e.g. "G1" for "g01"
	Kind   Kind
	Tool   int // for KindTool
	Params []Param

	// Malformed holds argument tokens whose number could not be parsed.
	Malformed []string

	// Bare is set when the command had no argument tokens at all.
	Bare bool
}

// Get returns the last value given for letter.
func (c *Command) Get(letter byte) (float64, bool) {
	for i := len(c.Params) - 1; i >= 0; i-- {
		if c.Params[i].Letter == letter {
			return c.Params[i].Value, true
		}
	}
	return 0, false
}

// Has reports whether letter was given with a valid number.
func (c *Command) Has(letter byte) bool {
	_, ok := c.Get(letter)
	return ok
}

// Mentioned reports whether letter appears as an argument, with or without
// a usable number. G28 X names an axis without a value.
func (c *Command) Mentioned(letter byte) bool {
	if c.Has(letter) {
		return true
	}
	for _, tok := range c.Malformed {
		if tok[0] == letter || tok[0] == letter+('a'-'A') {
			return true
		}
	}
	return false
}

// StripComment removes everything from the first ';' or '('.
func StripComment(line string) string {
	if idx := strings.IndexAny(line, ";("); idx >= 0 {
		line = line[:idx]
	}
	return strings.TrimSpace(line)
}

// ParseLine tokenizes a line. It returns nil for blank or comment-only lines.
// Unknown commands come back with KindUnknown and no params.
func ParseLine(line string) *Command {
	toks := pool.GetStringSlice()
	defer pool.PutStringSlice(toks)
	*toks = pool.AppendFields(*toks, StripComment(line))
	fields := *toks
	if len(fields) == 0 {
		return nil
	}

	name := normaliseName(fields[0])
	cmd := &Command{Name: name, Bare: len(fields) == 1}
	if k, ok := kindNames[name]; ok {
		cmd.Kind = k
	} else if tool, ok := toolIndex(name); ok {
		cmd.Kind = KindTool
		cmd.Tool = tool
	} else {
		return cmd
	}

	for _, f := range fields[1:] {
		letter := f[0]
		if letter >= 'a' && letter <= 'z' {
			letter -= 'a' - 'A'
		}
		if letter < 'A' || letter > 'Z' {
			cmd.Malformed = append(cmd.Malformed, f)
			continue
		}
		v, err := strconv.ParseFloat(f[1:], 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			cmd.Malformed = append(cmd.Malformed, f)
			continue
		}
		cmd.Params = append(cmd.Params, Param{Letter: letter, Value: v})
	}
	return cmd
}

// normaliseName upper-cases the token and strips leading zeros from the
// number of G/M codes so G01 and G1 compare equal.
func normaliseName(tok string) string {
	tok = strings.ToUpper(tok)
	if len(tok) < 3 || (tok[0] != 'G' && tok[0] != 'M') || !isDigits(tok[1:]) {
		return tok
	}
	num := strings.TrimLeft(tok[1:], "0")
	if num == "" {
		num = "0"
	}
	return tok[:1] + num
}

func toolIndex(name string) (int, bool) {
	if len(name) < 2 || name[0] != 'T' || !isDigits(name[1:]) {
		return 0, false
	}
	n, err := strconv.Atoi(name[1:])
	if err != nil {
		return 0, false
	}
	return n, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
