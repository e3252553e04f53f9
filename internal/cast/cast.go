// Package cast converts raw spreadsheet cell text into typed values according
// to the column's declared type tag.
package cast

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Failure reports a cell that could not be coerced to its declared tag.
type Failure struct {
	Tag    Tag
	Raw    string
	Reason string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("cannot cast %q as %s: %s", f.Raw, f.Tag, f.Reason)
}

// Coord is a two-component coordinate.
type Coord struct {
	X, Y float64
}

// Value is a typed cell value. The dynamic type held depends on Tag:
// float64 for number, int64 for integer, bool, string, Coord for Point,
// a decoded JSON tree for table, and int64 or string for reference tags.
type Value struct {
	Tag Tag
	v   any
}

// Interface returns the held Go value.
func (v Value) Interface() any { return v.v }

// JSON returns v in a form suitable for the record store.
func (v Value) JSON() any {
	if c, ok := v.v.(Coord); ok {
		return []any{c.X, c.Y}
	}
	return v.v
}

var (
	truthy = map[string]bool{"true": true, "1": true, "yes": true, "y": true, "是": true, "真": true}
	falsy  = map[string]bool{"false": true, "0": true, "no": true, "n": true, "否": true, "假": true}
)

// Cast converts raw into a Value of the given tag.
func Cast(raw string, tag Tag) (Value, error) {
	fail := func(format string, args ...any) (Value, error) {
		return Value{}, &Failure{Tag: tag, Raw: raw, Reason: fmt.Sprintf(format, args...)}
	}
	if !tag.Known() {
		return fail("unknown type tag")
	}

	text := strings.TrimSpace(raw)
	switch {
	case tag == String:
		return Value{Tag: tag, v: raw}, nil

	case tag == Number:
		f, err := parseFloat(text)
		if err != nil {
			return fail("%v", err)
		}
		return Value{Tag: tag, v: f}, nil

	case tag == Integer:
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return Value{Tag: tag, v: n}, nil
		}
		f, err := parseFloat(text)
		if err != nil {
			return fail("%v", err)
		}
		if f != math.Trunc(f) {
			return fail("fractional part in integer")
		}
		if f < math.MinInt64 || f >= math.MaxInt64 {
			return fail("integer out of range")
		}
		return Value{Tag: tag, v: int64(f)}, nil

	case tag == Boolean:
		lower := strings.ToLower(text)
		if truthy[lower] {
			return Value{Tag: tag, v: true}, nil
		}
		if falsy[lower] {
			return Value{Tag: tag, v: false}, nil
		}
		return fail("not a boolean token")

	case tag == Point:
		c, err := parsePoint(text)
		if err != nil {
			return fail("%v", err)
		}
		return Value{Tag: tag, v: c}, nil

	case tag == Table:
		tree, err := parseTable(text)
		if err != nil {
			return fail("%v", err)
		}
		return Value{Tag: tag, v: tree}, nil

	case tag.IsReference():
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return Value{Tag: tag, v: n}, nil
		}
		return Value{Tag: tag, v: text}, nil
	}
	return fail("unsupported type tag")
}

// CastText parses tagText with ParseTag and casts raw with the result.
func CastText(raw, tagText string) (Value, error) {
	tag, err := ParseTag(tagText)
	if err != nil {
		return Value{}, &Failure{Tag: Tag(tagText), Raw: raw, Reason: err.Error()}
	}
	return Cast(raw, tag)
}

// Render formats v back to cell text such that Cast(Render(v), v.Tag)
// yields an equal value.
func Render(v Value) string {
	switch x := v.v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	case Coord:
		return strconv.FormatFloat(x.X, 'g', -1, 64) + "," + strconv.FormatFloat(x.Y, 'g', -1, 64)
	case nil:
		return ""
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty numeric value")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return f, nil
}

// parsePoint accepts "x,y" with optional surrounding brackets or parentheses;
// semicolons and whitespace also separate the components.
func parsePoint(s string) (Coord, error) {
	s = strings.Trim(s, "()[]{} ")
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '，' || r == ' ' || r == '\t'
	})
	if len(parts) != 2 {
		return Coord{}, fmt.Errorf("expected 2 numeric components, got %d", len(parts))
	}
	x, err := parseFloat(parts[0])
	if err != nil {
		return Coord{}, fmt.Errorf("x: %w", err)
	}
	y, err := parseFloat(parts[1])
	if err != nil {
		return Coord{}, fmt.Errorf("y: %w", err)
	}
	return Coord{X: x, Y: y}, nil
}

func parseTable(s string) (any, error) {
	if s == "" {
		return nil, fmt.Errorf("empty table value")
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("malformed table: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("malformed table: trailing data")
	}
	switch tree.(type) {
	case map[string]any, []any:
		return tree, nil
	}
	return nil, fmt.Errorf("table must be an object or array")
}
