package shader

import (
	"fmt"
	"strings"
)

// directiveType is the keyword following '#' on a preprocessor line.
type directiveType string

const (
	directiveInclude directiveType = "include"
	directiveDefine  directiveType = "define"
	directiveUndef   directiveType = "undef"
	directiveIfdef   directiveType = "ifdef"
	directiveIfndef  directiveType = "ifndef"
	directiveIf      directiveType = "if"
	directiveElif    directiveType = "elif"
	directiveElse    directiveType = "else"
	directiveEndif   directiveType = "endif"
	directivePragma  directiveType = "pragma"
)

// directive is one parsed preprocessor line.
type directive struct {
	Type directiveType

	// Args holds the directive operands: the include path, the macro name and value,
	// or the raw condition expression for #if and #elif.
	Args []string

	// System is set for #include <path>, which skips the including file's directory.
	System bool

	Line int
}

// parseDirective attempts to parse a single source line as a preprocessor directive.
// Returns nil with no error for lines that are not directives. Unknown directives such
// as #error or #line are returned with their keyword so callers can pass them through.
//
// Parameters:
//   - line: the raw source line
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *directive: the parsed directive, or nil if the line is not a directive
//   - error: a descriptive error if the directive is malformed
func parseDirective(line string, lineNum int) (*directive, error) {
	trimmed := strings.TrimSpace(line)
	rest, ok := strings.CutPrefix(trimmed, "#")
	if !ok {
		return nil, nil
	}
	rest = strings.TrimSpace(rest)
	keyword, body, _ := strings.Cut(rest, " ")
	if i := strings.IndexAny(keyword, "\t<\""); i >= 0 {
		keyword, body = keyword[:i], keyword[i:]+" "+body
	}
	body = strings.TrimSpace(stripLineComment(body))
	d := &directive{Type: directiveType(keyword), Line: lineNum}

	switch d.Type {
	case directiveInclude:
		if len(body) < 2 {
			return nil, fmt.Errorf("line %d: #include requires a path", lineNum)
		}
		open, closing := body[0], byte('"')
		switch open {
		case '"':
		case '<':
			closing = '>'
			d.System = true
		default:
			return nil, fmt.Errorf("line %d: #include path must be quoted or bracketed", lineNum)
		}
		end := strings.IndexByte(body[1:], closing)
		if end < 0 {
			return nil, fmt.Errorf("line %d: unterminated #include path", lineNum)
		}
		d.Args = []string{body[1 : end+1]}
	case directiveDefine:
		fields := strings.Fields(body)
		if len(fields) == 0 {
			return nil, fmt.Errorf("line %d: #define requires a macro name", lineNum)
		}
		d.Args = []string{fields[0], strings.TrimSpace(strings.TrimPrefix(body, fields[0]))}
	case directiveUndef, directiveIfdef, directiveIfndef:
		fields := strings.Fields(body)
		if len(fields) != 1 {
			return nil, fmt.Errorf("line %d: #%s requires exactly one macro name", lineNum, d.Type)
		}
		d.Args = fields
	case directiveIf, directiveElif:
		if body == "" {
			return nil, fmt.Errorf("line %d: #%s requires a condition", lineNum, d.Type)
		}
		d.Args = []string{body}
	case directiveElse, directiveEndif:
	default:
		d.Args = []string{body}
	}
	return d, nil
}

func stripLineComment(s string) string {
	if i := strings.Index(s, "//"); i >= 0 {
		return s[:i]
	}
	return s
}

// evalCondition evaluates the small #if grammar the expanding preprocessor supports:
// integer literals, macro names (true when defined to a non-zero value), defined(NAME),
// defined NAME, and '!' negation, joined by && or ||.
func evalCondition(expr string, defines map[string]string) (bool, error) {
	expr = strings.TrimSpace(expr)
	if or := strings.Split(expr, "||"); len(or) > 1 {
		for _, term := range or {
			v, err := evalCondition(term, defines)
			if err != nil {
				return false, err
			}
			if v {
				return true, nil
			}
		}
		return false, nil
	}
	if and := strings.Split(expr, "&&"); len(and) > 1 {
		for _, term := range and {
			v, err := evalCondition(term, defines)
			if err != nil {
				return false, err
			}
			if !v {
				return false, nil
			}
		}
		return true, nil
	}
	if neg, ok := strings.CutPrefix(expr, "!"); ok {
		v, err := evalCondition(neg, defines)
		return !v, err
	}
	if strings.HasPrefix(expr, "(") && strings.HasSuffix(expr, ")") {
		return evalCondition(expr[1:len(expr)-1], defines)
	}
	if name, ok := strings.CutPrefix(expr, "defined"); ok {
		name = strings.TrimSpace(name)
		name = strings.TrimSuffix(strings.TrimPrefix(name, "("), ")")
		_, defined := defines[strings.TrimSpace(name)]
		return defined, nil
	}
	if isIdentifier(expr) {
		v, ok := defines[expr]
		if !ok {
			return false, nil
		}
		return v != "" && v != "0", nil
	}
	switch expr {
	case "0":
		return false, nil
	case "1":
		return true, nil
	}
	return false, fmt.Errorf("unsupported condition %q", expr)
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
