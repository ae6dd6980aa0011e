package runtime

import (
	"fmt"

	"go.starlark.net/syntax"
)

// dangerousAttrs is the dunder deny-list: attribute accesses whose name
// matches exactly are rejected. Names that merely share a suffix pass.
var dangerousAttrs = map[string]struct{}{
	"__class__":        {},
	"__subclasses__":   {},
	"__globals__":      {},
	"__builtins__":     {},
	"__getattribute__": {},
	"__getattr__":      {},
	"__dict__":         {},
	"__bases__":        {},
	"__mro__":          {},
	"__reduce__":       {},
	"__reduce_ex__":    {},
	"__subclasshook__": {},
}

// forbiddenCalls are bare names that must never be called.
var forbiddenCalls = map[string]struct{}{
	"exec": {},
	"eval": {},
	"open": {},
}

// Vet statically checks the user code by walking its syntax tree. Import
// forms, calls to exec/eval/open by bare name, and dangerous dunder
// attribute accesses are all rejected with the reason. Code that does not
// parse is rejected too: it could never run anyway.
func Vet(src string) error {
	// The caller prefixes the diagnostic, so the parse error passes through
	// unwrapped.
	f, err := syntax.Parse("code.py", src, 0)
	if err != nil {
		return err
	}

	var vetErr error
	syntax.Walk(f, func(n syntax.Node) bool {
		if vetErr != nil {
			return false
		}
		switch n := n.(type) {
		case *syntax.LoadStmt:
			vetErr = fmt.Errorf("import statements are not allowed")
		case *syntax.CallExpr:
			if id, ok := n.Fn.(*syntax.Ident); ok {
				if _, bad := forbiddenCalls[id.Name]; bad {
					vetErr = fmt.Errorf("call to %q is not allowed", id.Name)
				}
			}
		case *syntax.DotExpr:
			if _, bad := dangerousAttrs[n.Name.Name]; bad {
				vetErr = fmt.Errorf("access to attribute %q is not allowed", n.Name.Name)
			}
		}
		return vetErr == nil
	})
	return vetErr
}
