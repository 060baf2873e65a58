package layout

import (
	"strconv"
	"strings"
)

// This file holds the unit helpers shared by layout and the canvas backend.

// Conversion constants between pt and mm.
const (
	PtToMm = 25.4 / 72
	MmToPt = 72 / 25.4
)

// Unit represents the unit a length was written with.
type Unit int

const (
	UnitNone Unit = iota // bare numbers, read as millimeters
	UnitMM
	UnitCM
	UnitIN
	UnitPT
	UnitPercent
)

var unitSuffixes = []struct {
	suffix string
	unit   Unit
}{
	{"mm", UnitMM},
	{"cm", UnitCM},
	{"in", UnitIN},
	{"pt", UnitPT},
	{"%", UnitPercent},
}

// Length preserves a numeric value with its unit.
type Length struct {
	Value float64
	Unit  Unit
}

// ParseLength parses strings such as "12pt", "18mm" or "50%".
func ParseLength(value string) (Length, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return Length{}, false
	}
	unit := UnitNone
	for _, s := range unitSuffixes {
		if strings.HasSuffix(v, s.suffix) {
			unit = s.unit
			v = strings.TrimSpace(strings.TrimSuffix(v, s.suffix))
			break
		}
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return Length{}, false
	}
	return Length{Value: f, Unit: unit}, true
}

// MM converts to millimeters; percentages resolve against reference.
func (l Length) MM(reference float64) float64 {
	switch l.Unit {
	case UnitCM:
		return l.Value * 10
	case UnitIN:
		return l.Value * 25.4
	case UnitPT:
		return l.Value * PtToMm
	case UnitPercent:
		return reference * l.Value / 100
	default:
		return l.Value
	}
}

// mm parses an absolute length; unparseable input yields 0.
func mm(value string) float64 {
	l, ok := ParseLength(value)
	if !ok || l.Unit == UnitPercent {
		return 0
	}
	return l.MM(0)
}

// dimension parses a length that may be a percentage of reference.
func dimension(value string, reference float64) float64 {
	l, ok := ParseLength(value)
	if !ok {
		return 0
	}
	return l.MM(reference)
}

// lineHeight resolves "1.2x" factors or absolute lengths against fontSize (mm).
func lineHeight(value string, fontSize float64) float64 {
	v := strings.TrimSpace(value)
	if strings.HasSuffix(v, "x") {
		if f, err := strconv.ParseFloat(strings.TrimSuffix(v, "x"), 64); err == nil && f > 0 {
			return fontSize * f
		}
	} else if lh := mm(v); lh > 0 {
		return lh
	}
	return fontSize * defaultLineFactor
}
