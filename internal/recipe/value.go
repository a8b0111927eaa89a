package recipe

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies which of the fixed set of state-variable types a Value holds.
type Kind int

const (
	KindNil Kind = iota
	KindBool
	KindString
	KindInt
	KindStringArray
)

// Value is a typed state variable value, one of bool, string, i64,
// array<string>, or nil (Starlark's None, used for absent optional-string
// variables such as installed_version before a package is installed).
type Value struct {
	kind Kind
	b    bool
	s    string
	i    int64
	arr  []string
}

func NilValue() Value                    { return Value{kind: KindNil} }
func BoolValue(b bool) Value             { return Value{kind: KindBool, b: b} }
func StringValue(s string) Value         { return Value{kind: KindString, s: s} }
func IntValue(i int64) Value             { return Value{kind: KindInt, i: i} }
func StringArrayValue(arr []string) Value {
	cp := make([]string, len(arr))
	copy(cp, arr)
	return Value{kind: KindStringArray, arr: cp}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNil() bool { return v.kind == KindNil }

func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) String() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

func (v Value) Int() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

func (v Value) StringArray() ([]string, bool) {
	if v.kind != KindStringArray {
		return nil, false
	}
	cp := make([]string, len(v.arr))
	copy(cp, v.arr)
	return cp, true
}

// Encode renders v back to the literal text written into a recipe file.
func (v Value) Encode() string {
	switch v.kind {
	case KindNil:
		return "None"
	case KindBool:
		if v.b {
			return "True"
		}
		return "False"
	case KindString:
		return encodeString(v.s)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindStringArray:
		parts := make([]string, len(v.arr))
		for i, s := range v.arr {
			parts[i] = encodeString(s)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return "None"
	}
}

func encodeString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// ParseValue parses the literal text to the right of "=" in a state-variable
// declaration into a typed Value. Comments have already been stripped by
// the caller (internal/recipe/io.go).
func ParseValue(text string) (Value, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Value{}, fmt.Errorf("empty value")
	}

	switch trimmed {
	case "None", "()":
		return NilValue(), nil
	case "True", "true":
		return BoolValue(true), nil
	case "False", "false":
		return BoolValue(false), nil
	}

	if strings.HasPrefix(trimmed, "\"") || strings.HasPrefix(trimmed, "'") {
		s, rest, err := parseQuotedString(trimmed)
		if err != nil {
			return Value{}, err
		}
		if strings.TrimSpace(rest) != "" {
			return Value{}, fmt.Errorf("unexpected trailing content after string: %q", rest)
		}
		return StringValue(s), nil
	}

	if strings.HasPrefix(trimmed, "[") {
		arr, err := parseStringArray(trimmed)
		if err != nil {
			return Value{}, err
		}
		return StringArrayValue(arr), nil
	}

	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return IntValue(n), nil
	}

	return Value{}, fmt.Errorf("unrecognized value literal: %q", trimmed)
}

// parseQuotedString parses a single quoted string starting at s[0], which
// must be a quote character, returning the unescaped content and whatever
// text remains in s after the closing quote.
func parseQuotedString(s string) (string, string, error) {
	quote := s[0]
	var b strings.Builder
	i := 1
	for i < len(s) {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '\\':
				b.WriteByte('\\')
			case '"':
				b.WriteByte('"')
			case '\'':
				b.WriteByte('\'')
			default:
				b.WriteByte(s[i+1])
			}
			i += 2
			continue
		}
		if c == quote {
			return b.String(), s[i+1:], nil
		}
		b.WriteByte(c)
		i++
	}
	return "", "", fmt.Errorf("unterminated string literal: %q", s)
}

// parseStringArray parses a bracketed, comma-separated list of quoted
// strings, e.g. ["a", "quoted\"x", "back\\slash"].
func parseStringArray(s string) ([]string, error) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "[") || !strings.HasSuffix(trimmed, "]") {
		return nil, fmt.Errorf("malformed array literal: %q", s)
	}
	inner := trimmed[1 : len(trimmed)-1]

	var result []string
	rest := strings.TrimSpace(inner)
	for rest != "" {
		if !(strings.HasPrefix(rest, "\"") || strings.HasPrefix(rest, "'")) {
			return nil, fmt.Errorf("array element is not a quoted string: %q", rest)
		}
		elem, tail, err := parseQuotedString(rest)
		if err != nil {
			return nil, err
		}
		result = append(result, elem)

		tail = strings.TrimSpace(tail)
		if tail == "" {
			break
		}
		if !strings.HasPrefix(tail, ",") {
			return nil, fmt.Errorf("expected comma between array elements, got %q", tail)
		}
		rest = strings.TrimSpace(tail[1:])
	}

	return result, nil
}
