// pre_processor.go implements the shader source pre-processor. It resolves #include
// directives against the including file's directory and a list of include directories,
// records every file it reads, and evaluates #define/#ifdef/#if conditionals against
// the identity's macros.
//
// The pre-processor runs in one of two modes:
//   - expanding: active lines and included files are spliced into a single source
//     string, used by backends whose front end has no #include support (WGSL).
//   - scanning: conditionals are ignored and every #include reachable on any branch is
//     followed, used to compute the dependent-file set for external compilers that do
//     their own preprocessing. Scanning over-approximates dependencies, so a header
//     that is only included on an inactive branch still triggers a recompile.
package shader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	// includeDirs are searched, in order, after the including file's directory.
	includeDirs []string

	// scanOnly selects the scanning mode described in the file comment.
	scanOnly bool

	// defines maps macro names to their values during a Process call.
	defines map[string]string

	// files accumulates the absolute path of every file read, in first-read order.
	// Reset at the start of each Process invocation.
	files []string

	// once holds files that declared #pragma once, or every visited file in scanning mode.
	once map[string]bool

	// stack is the active include chain, used to report include cycles.
	stack []string
}

// PreProcessor resolves includes and conditionals in shader source and reports every
// file it read.
type PreProcessor interface {
	// Process reads the file at path and pre-processes it.
	//
	// The files list is reset at the start of each call and can be retrieved via
	// Files() after Process returns, including after a failed call.
	//
	// Parameters:
	//   - path: the source file to process
	//
	// Returns:
	//   - string: the expanded source, empty in scanning mode
	//   - error: a *SourceNotFoundError for unreadable files, or a *CompileDiagnosticError
	//     for malformed directives, unbalanced conditionals and include cycles
	Process(path string) (string, error)

	// Files returns the absolute paths of every file read during the most recent call
	// to Process, in first-read order. The processed file itself is always first.
	//
	// Returns:
	//   - []string: the files read during the last Process call
	Files() []string
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor in expanding mode.
//
// Parameters:
//   - includeDirs: directories searched for #include after the including file's directory
//   - macros: the initial macro definitions
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor(includeDirs []string, macros []Macro) PreProcessor {
	return newPreProcessor(includeDirs, macros, false)
}

// NewDependencyScanner creates a PreProcessor in scanning mode.
//
// Parameters:
//   - includeDirs: directories searched for #include after the including file's directory
//
// Returns:
//   - PreProcessor: a pre-processor that only collects dependent files
func NewDependencyScanner(includeDirs []string) PreProcessor {
	return newPreProcessor(includeDirs, nil, true)
}

func newPreProcessor(includeDirs []string, macros []Macro, scanOnly bool) *preProcessor {
	p := &preProcessor{
		includeDirs: append([]string(nil), includeDirs...),
		scanOnly:    scanOnly,
		defines:     make(map[string]string, len(macros)),
	}
	for _, m := range macros {
		p.defines[m.Name] = m.Value
	}
	return p
}

func (p *preProcessor) Process(path string) (string, error) {
	p.files = p.files[:0]
	p.once = make(map[string]bool)
	p.stack = p.stack[:0]

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &SourceNotFoundError{Path: path, Err: err}
	}
	var out strings.Builder
	if err := p.processFile(filepath.Clean(abs), "", &out); err != nil {
		return "", err
	}
	if p.scanOnly {
		return "", nil
	}
	return out.String(), nil
}

func (p *preProcessor) Files() []string {
	return slices.Clone(p.files)
}

// condFrame tracks one #if/#ifdef block.
type condFrame struct {
	parentActive bool
	active       bool
	taken        bool
	seenElse     bool
}

func (p *preProcessor) processFile(path, includedFrom string, out *strings.Builder) error {
	if p.once[path] {
		return nil
	}
	if slices.Contains(p.stack, path) {
		return &CompileDiagnosticError{ID: path, Diagnostic: fmt.Sprintf("include cycle: %s -> %s", strings.Join(p.stack, " -> "), path)}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return &SourceNotFoundError{Path: path, IncludedFrom: includedFrom, Err: err}
	}
	if !slices.Contains(p.files, path) {
		p.files = append(p.files, path)
	}
	if p.scanOnly {
		p.once[path] = true
	}
	p.stack = append(p.stack, path)
	defer func() { p.stack = p.stack[:len(p.stack)-1] }()

	var conds []condFrame
	active := func() bool {
		return len(conds) == 0 || conds[len(conds)-1].active
	}
	diag := func(line int, format string, args ...any) error {
		return &CompileDiagnosticError{ID: path, Diagnostic: fmt.Sprintf("%s:%d: %s", path, line, fmt.Sprintf(format, args...))}
	}

	// iterate through each line of the source and attempt to parse it as a directive, if it's a directive apply it, otherwise keep the line when its branch is active.
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, line := range lines {
		d, err := parseDirective(line, i+1)
		if err != nil {
			return diag(i+1, "%v", err)
		}
		if d == nil {
			if active() && !p.scanOnly {
				out.WriteString(line)
				out.WriteByte('\n')
			}
			continue
		}

		if p.scanOnly {
			if d.Type == directiveInclude {
				if err := p.include(d, path, out); err != nil && !errors.Is(err, ErrSourceNotFound) {
					return err
				}
			}
			continue
		}

		switch d.Type {
		case directiveIfdef, directiveIfndef, directiveIf:
			var cond bool
			switch d.Type {
			case directiveIfdef:
				_, cond = p.defines[d.Args[0]]
			case directiveIfndef:
				_, defined := p.defines[d.Args[0]]
				cond = !defined
			default:
				if cond, err = evalCondition(d.Args[0], p.defines); err != nil {
					return diag(d.Line, "%v", err)
				}
			}
			parent := active()
			conds = append(conds, condFrame{parentActive: parent, active: parent && cond, taken: cond})
		case directiveElif:
			if len(conds) == 0 {
				return diag(d.Line, "#elif without #if")
			}
			f := &conds[len(conds)-1]
			if f.seenElse {
				return diag(d.Line, "#elif after #else")
			}
			cond := false
			if !f.taken {
				if cond, err = evalCondition(d.Args[0], p.defines); err != nil {
					return diag(d.Line, "%v", err)
				}
			}
			f.active = f.parentActive && cond
			f.taken = f.taken || cond
		case directiveElse:
			if len(conds) == 0 {
				return diag(d.Line, "#else without #if")
			}
			f := &conds[len(conds)-1]
			if f.seenElse {
				return diag(d.Line, "duplicate #else")
			}
			f.seenElse = true
			f.active = f.parentActive && !f.taken
			f.taken = true
		case directiveEndif:
			if len(conds) == 0 {
				return diag(d.Line, "#endif without #if")
			}
			conds = conds[:len(conds)-1]
		case directiveDefine:
			if active() {
				p.defines[d.Args[0]] = d.Args[1]
			}
		case directiveUndef:
			if active() {
				delete(p.defines, d.Args[0])
			}
		case directiveInclude:
			if active() {
				if err := p.include(d, path, out); err != nil {
					return err
				}
			}
		case directivePragma:
			if active() && len(d.Args) == 1 && d.Args[0] == "once" {
				p.once[path] = true
			}
		default:
			if active() {
				out.WriteString(line)
				out.WriteByte('\n')
			}
		}
	}
	if len(conds) != 0 {
		return diag(len(lines), "unterminated conditional block")
	}
	return nil
}

func (p *preProcessor) include(d *directive, from string, out *strings.Builder) error {
	target, err := p.resolve(d.Args[0], filepath.Dir(from), d.System)
	if err != nil {
		return &SourceNotFoundError{Path: d.Args[0], IncludedFrom: from, Err: err}
	}
	return p.processFile(target, from, out)
}

// resolve finds an include target. Quoted includes search the including file's directory
// first; both forms then search the include directories in order.
func (p *preProcessor) resolve(name, fromDir string, system bool) (string, error) {
	if filepath.IsAbs(name) {
		return filepath.Clean(name), nil
	}
	candidates := make([]string, 0, len(p.includeDirs)+1)
	if !system {
		candidates = append(candidates, fromDir)
	}
	candidates = append(candidates, p.includeDirs...)
	for _, dir := range candidates {
		full := filepath.Join(dir, name)
		if st, err := os.Stat(full); err == nil && st.Mode().IsRegular() {
			abs, err := filepath.Abs(full)
			if err != nil {
				return "", err
			}
			return filepath.Clean(abs), nil
		}
	}
	return "", fmt.Errorf("%w: searched %s", os.ErrNotExist, strings.Join(candidates, ", "))
}
