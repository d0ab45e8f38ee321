package namelist

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the closed set of value variants a namelist parameter
// can hold.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindList
	// KindLiteral carries source text the scanner could not classify
	// (e.g. Fortran repeat counts like 3*0.0). It renders verbatim.
	KindLiteral
)

// Value is a typed namelist parameter value.
type Value struct {
	Kind  Kind
	Str   string
	Int   int64
	Float float64
	Bool  bool
	List  []Value
}

func StringValue(s string) Value    { return Value{Kind: KindString, Str: s} }
func IntValue(i int64) Value        { return Value{Kind: KindInt, Int: i} }
func FloatValue(f float64) Value    { return Value{Kind: KindFloat, Float: f} }
func BoolValue(b bool) Value        { return Value{Kind: KindBool, Bool: b} }
func ListValue(vs ...Value) Value   { return Value{Kind: KindList, List: vs} }
func literalValue(s string) Value   { return Value{Kind: KindLiteral, Str: s} }

// Render produces the Fortran literal for the value.
func (v Value) Render() string {
	switch v.Kind {
	case KindString:
		return "'" + strings.ReplaceAll(v.Str, "'", "''") + "'"
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindBool:
		if v.Bool {
			return ".true."
		}
		return ".false."
	case KindList:
		parts := make([]string, len(v.List))
		for i, e := range v.List {
			parts[i] = e.Render()
		}
		return strings.Join(parts, ", ")
	default:
		return v.Str
	}
}

// parseScalar classifies one value token from namelist source.
func parseScalar(tok string) Value {
	tok = strings.TrimSpace(tok)
	if len(tok) >= 2 && (tok[0] == '\'' || tok[0] == '"') && tok[len(tok)-1] == tok[0] {
		inner := tok[1 : len(tok)-1]
		if tok[0] == '\'' {
			inner = strings.ReplaceAll(inner, "''", "'")
		}
		return StringValue(inner)
	}
	if b, ok := parseFortranBool(tok); ok {
		return BoolValue(b)
	}
	if i, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return IntValue(i)
	}
	if f, err := strconv.ParseFloat(strings.ReplaceAll(strings.ToLower(tok), "d", "e"), 64); err == nil {
		return FloatValue(f)
	}
	return literalValue(tok)
}

func parseFortranBool(tok string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(tok)) {
	case ".true.", ".t.", "t":
		return true, true
	case ".false.", ".f.", "f":
		return false, true
	}
	return false, false
}

// ParseBool reads any string a human would read as a boolean. It is the one
// coercion rule shared by the setup-option layer and the patch engine.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "1", ".true.", ".t.", "t":
		return true, nil
	case "false", "no", "off", "0", ".false.", ".f.", "f", "":
		return false, nil
	}
	return false, fmt.Errorf("cannot interpret %q as a boolean", s)
}

// ValueType names the declared type of a patch value.
type ValueType string

const (
	TypeString ValueType = "string"
	TypeInt    ValueType = "int"
	TypeFloat  ValueType = "float"
	TypeBool   ValueType = "bool"
	TypeEval   ValueType = "eval"
)

// Coerce converts literal text to a Value according to the declared type.
// An empty type defaults to string.
func Coerce(t ValueType, text string) (Value, error) {
	switch t {
	case "", TypeString:
		return StringValue(text), nil
	case TypeInt:
		i, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("cannot interpret %q as int: %w", text, err)
		}
		return IntValue(i), nil
	case TypeFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return Value{}, fmt.Errorf("cannot interpret %q as float: %w", text, err)
		}
		return FloatValue(f), nil
	case TypeBool:
		b, err := ParseBool(text)
		if err != nil {
			return Value{}, err
		}
		return BoolValue(b), nil
	case TypeEval:
		return Eval(text), nil
	}
	return Value{}, fmt.Errorf("unknown value type %q", t)
}

// Eval interprets literal text as a dynamically typed value. The coercion
// order is fixed: int, float, bool, quoted string, comma-separated list,
// bare string.
func Eval(text string) Value {
	s := strings.TrimSpace(text)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return IntValue(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return FloatValue(f)
	}
	if b, err := ParseBool(s); err == nil && s != "" {
		return BoolValue(b)
	}
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return StringValue(s[1 : len(s)-1])
	}
	if strings.Contains(s, ",") {
		parts := splitOutsideQuotes(s, ',')
		vs := make([]Value, 0, len(parts))
		for _, p := range parts {
			vs = append(vs, Eval(p))
		}
		return ListValue(vs...)
	}
	return StringValue(s)
}
