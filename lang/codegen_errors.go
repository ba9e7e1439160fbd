package lang

import "github.com/pkg/errors"

func errUnsupportedNode(n Node) error {
	return errors.Errorf("lang: codegen: unsupported node %T at %v", n, n.Position())
}

func errUnresolvedLabel(label, kind string) error {
	if label == "" {
		return errors.Errorf("lang: codegen: %s outside any loop", kind)
	}
	return errors.Errorf("lang: codegen: %s references unknown label %q", kind, label)
}

func errUnknownBuiltin(name string) error {
	return errors.Errorf("lang: codegen: unknown builtin or undeclared function %q", name)
}

func errTooManyArgs() error {
	return errors.New("lang: codegen: more than 254 fixed arguments in one call")
}
