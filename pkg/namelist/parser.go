package namelist

import (
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Parse reads and parses a namelist file.
func Parse(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read namelist %s: %w", path, err)
	}
	return ParseBytes(data, path)
}

// ParseBytes parses namelist source. The path parameter is used only for
// error messages.
func ParseBytes(data []byte, path string) (*Document, error) {
	doc := &Document{Path: path}
	lines := splitKeepEnds(string(data))
	counts := map[string]int{}

	var raw strings.Builder
	flushRaw := func() {
		if raw.Len() > 0 {
			doc.segments = append(doc.segments, segment{raw: raw.String()})
			raw.Reset()
		}
	}

	i := 0
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "&") {
			raw.WriteString(line)
			i++
			continue
		}

		// Block header.
		name := blockName(trimmed)
		if name == "" {
			return nil, &FormatError{Path: path, Line: i + 1, Reason: "block header '&' without a name"}
		}
		flushRaw()

		var braw strings.Builder
		var body strings.Builder
		braw.WriteString(line)
		headerRest := strings.TrimSpace(trimmed[1+len(name):])
		startLine := i + 1
		i++

		closed := false
		if rest, ok := cutTerminator(headerRest); ok {
			body.WriteString(rest)
			closed = true
		} else {
			body.WriteString(headerRest)
			body.WriteString("\n")
		}
		for !closed && i < len(lines) {
			l := lines[i]
			braw.WriteString(l)
			i++
			if rest, ok := cutTerminator(strings.TrimRight(l, "\r\n")); ok {
				body.WriteString(rest)
				closed = true
			} else {
				body.WriteString(l)
			}
		}
		if !closed {
			return nil, &FormatError{Path: path, Line: startLine, Reason: fmt.Sprintf("block &%s not terminated by '/'", name)}
		}

		params, err := parseAssignments(body.String(), path, startLine)
		if err != nil {
			return nil, err
		}
		seen := map[string]bool{}
		for _, p := range params {
			key := strings.ToLower(p.name)
			if seen[key] {
				return nil, &FormatError{Path: path, Line: startLine, Reason: fmt.Sprintf("duplicate parameter %q in block &%s", p.name, name)}
			}
			seen[key] = true
		}

		counts[strings.ToLower(name)]++
		doc.segments = append(doc.segments, segment{block: &Block{
			Name:     name,
			Instance: counts[strings.ToLower(name)],
			params:   params,
			raw:      braw.String(),
		}})
	}
	flushRaw()
	return doc, nil
}

func blockName(trimmed string) string {
	rest := trimmed[1:]
	end := 0
	for end < len(rest) && (isIdentRune(rune(rest[end]), end == 0)) {
		end++
	}
	return rest[:end]
}

// cutTerminator reports whether a block-terminating '/' occurs outside quotes
// in the line, returning the content preceding it.
func cutTerminator(line string) (string, bool) {
	var quote rune
	for i, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '!':
			return line, false
		case r == '/':
			return line[:i], true
		}
	}
	return line, false
}

// parseAssignments scans a block body for `name = value` pairs. Values run
// until the next assignment or the end of the body, so comma-separated arrays
// stay attached to their parameter.
func parseAssignments(body string, path string, lineBase int) ([]*param, error) {
	type asg struct {
		name          string
		identStart    int
		valueStart    int
		line          int
	}
	var asgs []asg

	var quote rune
	line := lineBase
	i := 0
	for i < len(body) {
		r := rune(body[i])
		switch {
		case r == '\n':
			line++
			i++
		case quote != 0:
			if r == quote {
				quote = 0
			}
			i++
		case r == '\'' || r == '"':
			quote = r
			i++
		case r == '!':
			for i < len(body) && body[i] != '\n' {
				i++
			}
		case isIdentRune(r, true):
			start := i
			for i < len(body) && isIdentRune(rune(body[i]), i == start) {
				i++
			}
			j := i
			for j < len(body) && (body[j] == ' ' || body[j] == '\t') {
				j++
			}
			if j < len(body) && body[j] == '=' {
				asgs = append(asgs, asg{name: body[start:i], identStart: start, valueStart: j + 1, line: line})
				i = j + 1
			}
		default:
			i++
		}
	}

	if len(asgs) == 0 {
		if strings.TrimSpace(stripComments(body)) != "" {
			return nil, &FormatError{Path: path, Line: lineBase, Reason: "block content without any 'name = value' assignment"}
		}
		return nil, nil
	}
	if lead := strings.TrimSpace(stripComments(body[:asgs[0].identStart])); lead != "" {
		return nil, &FormatError{Path: path, Line: lineBase, Reason: fmt.Sprintf("unexpected text %q before first assignment", lead)}
	}

	params := make([]*param, 0, len(asgs))
	for k, a := range asgs {
		end := len(body)
		if k+1 < len(asgs) {
			end = asgs[k+1].identStart
		}
		rawVal := strings.TrimSpace(stripComments(body[a.valueStart:end]))
		rawVal = strings.TrimRight(rawVal, ",")
		rawVal = strings.TrimSpace(rawVal)
		if rawVal == "" {
			return nil, &FormatError{Path: path, Line: a.line, Reason: fmt.Sprintf("parameter %q has no value", a.name)}
		}
		params = append(params, &param{name: a.name, raw: rawVal, value: parseValueText(rawVal)})
	}
	return params, nil
}

// parseValueText parses raw value text into a typed Value; comma-separated
// elements become a list.
func parseValueText(raw string) Value {
	parts := splitOutsideQuotes(raw, ',')
	if len(parts) == 1 {
		return parseScalar(parts[0])
	}
	vs := make([]Value, 0, len(parts))
	for _, p := range parts {
		vs = append(vs, parseScalar(p))
	}
	return ListValue(vs...)
}

func splitOutsideQuotes(s string, sep rune) []string {
	var out []string
	var quote rune
	start := 0
	for i, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == sep:
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func stripComments(s string) string {
	var b strings.Builder
	var quote rune
	skip := false
	for _, r := range s {
		if skip {
			if r == '\n' {
				skip = false
				b.WriteRune(r)
			}
			continue
		}
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '!':
			skip = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func splitKeepEnds(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func isIdentRune(r rune, first bool) bool {
	if unicode.IsLetter(r) || r == '_' {
		return true
	}
	if !first && (unicode.IsDigit(r) || r == '%' || r == '(' || r == ')') {
		return true
	}
	return false
}
