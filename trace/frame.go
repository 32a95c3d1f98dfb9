package trace

import (
	"runtime"
	"strings"
)

// Frame is the source location of one function activation.
type Frame struct {
	// File is the source file path, as reported by the runtime.
	File string
	// Line is the line number the activation was entered at.
	Line int
	// Function is the bare function or method name.
	Function string
	// Type is the enclosing type for methods, empty otherwise.
	Type string
	// Module is the import path of the package the function belongs to.
	Module string
}

// Label joins the non-empty parts of module, type and function with dots.
func (f Frame) Label() string {
	parts := make([]string, 0, 3)
	for _, part := range []string{f.Module, f.Type, f.Function} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ".")
}

// Caller returns the Frame of the function that called Caller, skipping the
// given number of additional stack frames. It returns false if the stack is
// not that deep.
func Caller(skip int) (Frame, bool) {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Frame{}, false
	}
	f := FrameFromFunctionName(runtime.FuncForPC(pc).Name())
	f.File = file
	f.Line = line
	return f, true
}

// FrameFromFunctionName splits a fully qualified runtime function name such
// as "example.com/app/models.(*Page).Load" into module, type and function.
// File and Line are left empty.
func FrameFromFunctionName(name string) Frame {
	if name == "" {
		return Frame{}
	}
	name = stripTypeParams(name)

	// The package path ends at the first dot after the last slash.
	slash := strings.LastIndex(name, "/")
	dot := strings.Index(name[slash+1:], ".")
	if dot < 0 {
		return Frame{Function: name}
	}
	dot += slash + 1
	// Dots in the last path element are escaped, as in "gopkg.in/yaml%2ev2".
	module, rest := strings.ReplaceAll(name[:dot], "%2e", "."), name[dot+1:]

	// Pointer receivers: (*T).M
	if strings.HasPrefix(rest, "(*") {
		if end := strings.Index(rest, ")."); end > 0 {
			return Frame{Module: module, Type: rest[2:end], Function: rest[end+2:]}
		}
	}

	// Value receivers look like T.M, but so do closures (F.func1) and
	// nested closures (F.func1.2), which belong to the enclosing function.
	if first := strings.Index(rest, "."); first > 0 && !isClosureSuffix(rest[first+1:]) {
		return Frame{Module: module, Type: rest[:first], Function: rest[first+1:]}
	}
	return Frame{Module: module, Function: rest}
}

func isClosureSuffix(s string) bool {
	if strings.HasPrefix(s, "func") {
		return true
	}
	return s != "" && s[0] >= '0' && s[0] <= '9'
}

// stripTypeParams removes instantiation brackets, "pkg.F[...]" -> "pkg.F".
func stripTypeParams(name string) string {
	var b strings.Builder
	depth := 0
	for _, r := range name {
		switch {
		case r == '[':
			depth++
		case r == ']' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
