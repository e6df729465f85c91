package extract

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
	"strings"
)

// GoKeyword is a Go function whose string arguments are translatable.
// Specs follow the xgettext --keyword syntax:
//
//	"T"        single argument: T(msgid)
//	"N:1,2"    singular and plural: N(singular, plural, n)
//	"pkg.T"    only calls through the pkg selector
type GoKeyword struct {
	// FuncName is a bare name, matching any receiver or package, or "pkg.Func".
	FuncName string
	// MsgIDArg is the 1-based argument holding the term.
	MsgIDArg int
	// PluralArg is the 1-based argument of a plural form, 0 for none.
	PluralArg int
	// ContextArg is parsed for compatibility with xgettext specs; terms
	// have no context, so the argument is ignored.
	ContextArg int
}

// DefaultGoKeywords are the translation helpers scanned in Go sources.
var DefaultGoKeywords = []string{"_", "T", "Lt"}

// ParseGoKeyword parses an xgettext-style keyword spec.
func ParseGoKeyword(spec string) GoKeyword {
	kw := GoKeyword{MsgIDArg: 1}
	name, args, ok := strings.Cut(spec, ":")
	kw.FuncName = name
	if !ok {
		return kw
	}
	seen := false
	for _, arg := range strings.Split(args, ",") {
		arg = strings.TrimSpace(arg)
		if n, err := strconv.Atoi(strings.TrimSuffix(arg, "c")); err == nil && strings.HasSuffix(arg, "c") {
			kw.ContextArg = n
			continue
		}
		n, err := strconv.Atoi(arg)
		if err != nil {
			continue
		}
		if !seen {
			kw.MsgIDArg = n
			seen = true
		} else {
			kw.PluralArg = n
		}
	}
	return kw
}

// extractGo returns the terms of the Go source src, read from path.
func extractGo(path string, src []byte, keywords []GoKeyword) ([]literalCall, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, src, 0)
	if err != nil {
		return nil, err
	}
	byName := map[string][]GoKeyword{}
	for _, kw := range keywords {
		byName[kw.FuncName] = append(byName[kw.FuncName], kw)
	}

	var out []literalCall
	ast.Inspect(f, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		var name string
		switch fn := call.Fun.(type) {
		case *ast.Ident:
			name = fn.Name
		case *ast.SelectorExpr:
			name = fn.Sel.Name
			if ident, ok := fn.X.(*ast.Ident); ok {
				if _, found := byName[ident.Name+"."+fn.Sel.Name]; found {
					name = ident.Name + "." + fn.Sel.Name
				}
			}
		default:
			return true
		}
		line := fset.Position(call.Lparen).Line
		for _, kw := range byName[name] {
			for _, arg := range []int{kw.MsgIDArg, kw.PluralArg} {
				if s := stringArgAt(call, arg); s != "" {
					out = append(out, literalCall{Source: s, Line: line})
				}
			}
		}
		return true
	})
	return out, nil
}

// stringArgAt returns the string literal at 1-based argument position pos,
// or "" when the argument is missing or not constant.
func stringArgAt(call *ast.CallExpr, pos int) string {
	idx := pos - 1
	if idx < 0 || idx >= len(call.Args) {
		return ""
	}
	return stringFromExpr(call.Args[idx])
}

// stringFromExpr evaluates string literals and their concatenation.
func stringFromExpr(expr ast.Expr) string {
	switch e := expr.(type) {
	case *ast.BasicLit:
		if e.Kind == token.STRING {
			s, err := strconv.Unquote(e.Value)
			if err != nil {
				return ""
			}
			return s
		}
	case *ast.BinaryExpr:
		if e.Op == token.ADD {
			left := stringFromExpr(e.X)
			right := stringFromExpr(e.Y)
			if left != "" && right != "" {
				return left + right
			}
		}
	case *ast.ParenExpr:
		return stringFromExpr(e.X)
	}
	return ""
}
