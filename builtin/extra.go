package builtin

import (
	"strings"

	"loom/value"
)

// registerStringBuiltins carries forward the teacher's string-helper surface
// (builtins/strings.go), adapted to the value package's Str/List types. Not
// load-bearing (spec §4.8 "rest of the catalog is out of scope at this
// altitude") but kept for ambient completeness.
func registerStringBuiltins(r *Registry) {
	r.register("strlen", func(ctx Context, args []value.Value) Result {
		s, ok := strArg(args, 0)
		if !ok {
			return Err(value.E_TYPE)
		}
		return Ret(value.Int(len(s)))
	})
	r.register("strsub", func(ctx Context, args []value.Value) Result {
		subject, ok := strArg(args, 0)
		what, ok2 := strArg(args, 1)
		with, ok3 := strArg(args, 2)
		if !ok || !ok2 || !ok3 {
			return Err(value.E_TYPE)
		}
		return Ret(value.Str(strings.ReplaceAll(subject, what, with)))
	})
	r.register("index", func(ctx Context, args []value.Value) Result {
		subject, ok := strArg(args, 0)
		what, ok2 := strArg(args, 1)
		if !ok || !ok2 {
			return Err(value.E_TYPE)
		}
		return Ret(value.Int(strings.Index(subject, what) + 1))
	})
	r.register("rindex", func(ctx Context, args []value.Value) Result {
		subject, ok := strArg(args, 0)
		what, ok2 := strArg(args, 1)
		if !ok || !ok2 {
			return Err(value.E_TYPE)
		}
		return Ret(value.Int(strings.LastIndex(subject, what) + 1))
	})
	r.register("strcmp", func(ctx Context, args []value.Value) Result {
		a, ok := strArg(args, 0)
		b, ok2 := strArg(args, 1)
		if !ok || !ok2 {
			return Err(value.E_TYPE)
		}
		return Ret(value.Int(strings.Compare(a, b)))
	})
	r.register("toupper", func(ctx Context, args []value.Value) Result {
		s, ok := strArg(args, 0)
		if !ok {
			return Err(value.E_TYPE)
		}
		return Ret(value.Str(strings.ToUpper(s)))
	})
	r.register("tolower", func(ctx Context, args []value.Value) Result {
		s, ok := strArg(args, 0)
		if !ok {
			return Err(value.E_TYPE)
		}
		return Ret(value.Str(strings.ToLower(s)))
	})
	r.register("tostr", func(ctx Context, args []value.Value) Result {
		var sb strings.Builder
		for _, a := range args {
			if s, ok := a.(value.Str); ok {
				sb.WriteString(string(s))
			} else {
				sb.WriteString(a.String())
			}
		}
		return Ret(value.Str(sb.String()))
	})
	r.register("toliteral", func(ctx Context, args []value.Value) Result {
		if len(args) == 0 {
			return Err(value.E_ARGS)
		}
		return Ret(value.Str(value.ToLiteral(args[0])))
	})
	r.register("explode", func(ctx Context, args []value.Value) Result {
		s, ok := strArg(args, 0)
		if !ok {
			return Err(value.E_TYPE)
		}
		sep := " "
		if v, ok := strArg(args, 1); ok {
			sep = v
		}
		parts := strings.Split(s, sep)
		out := make([]value.Value, len(parts))
		for i, p := range parts {
			out[i] = value.Str(p)
		}
		return Ret(value.NewList(out))
	})
}

// registerListMapBuiltins carries forward the teacher's collection-helper
// surface (builtins/lists.go, builtins/maps.go), adapted to value.List/Map's
// copy-on-write representation.
func registerListMapBuiltins(r *Registry) {
	r.register("length", func(ctx Context, args []value.Value) Result {
		if len(args) == 0 {
			return Err(value.E_ARGS)
		}
		n, err := value.Length(args[0])
		if err != nil {
			return Result{Err: err}
		}
		return Ret(value.Int(n))
	})
	r.register("listappend", func(ctx Context, args []value.Value) Result {
		if len(args) < 2 {
			return Err(value.E_ARGS)
		}
		l, ok := args[0].(value.List)
		if !ok {
			return Err(value.E_TYPE)
		}
		return Ret(l.Append(args[1]))
	})
	r.register("listinsert", func(ctx Context, args []value.Value) Result {
		if len(args) < 2 {
			return Err(value.E_ARGS)
		}
		l, ok := args[0].(value.List)
		if !ok {
			return Err(value.E_TYPE)
		}
		pos := l.Len() + 1
		if p, ok := intArg(args, 2); ok {
			pos = int(p)
		}
		return Ret(l.InsertAt(pos, args[1]))
	})
	r.register("listdelete", func(ctx Context, args []value.Value) Result {
		l, ok := args[0].(value.List)
		if !ok {
			return Err(value.E_TYPE)
		}
		idx, ok := intArg(args, 1)
		if !ok {
			return Err(value.E_TYPE)
		}
		out, ok := l.DeleteAt(int(idx))
		if !ok {
			return Err(value.E_RANGE)
		}
		return Ret(out)
	})
	r.register("listset", func(ctx Context, args []value.Value) Result {
		l, ok := args[0].(value.List)
		if !ok {
			return Err(value.E_TYPE)
		}
		idx, ok := intArg(args, 2)
		if !ok {
			return Err(value.E_TYPE)
		}
		out, ok := l.Set1(int(idx), args[1])
		if !ok {
			return Err(value.E_RANGE)
		}
		return Ret(out)
	})
	r.register("setadd", func(ctx Context, args []value.Value) Result {
		l, ok := args[0].(value.List)
		if !ok {
			return Err(value.E_TYPE)
		}
		if l.IndexOf(args[1], false) > 0 {
			return Ret(l)
		}
		return Ret(l.Append(args[1]))
	})
	r.register("setremove", func(ctx Context, args []value.Value) Result {
		l, ok := args[0].(value.List)
		if !ok {
			return Err(value.E_TYPE)
		}
		idx := l.IndexOf(args[1], false)
		if idx == 0 {
			return Ret(l)
		}
		out, _ := l.DeleteAt(int(idx))
		return Ret(out)
	})
	r.register("mapkeys", func(ctx Context, args []value.Value) Result {
		m, ok := args[0].(value.Map)
		if !ok {
			return Err(value.E_TYPE)
		}
		return Ret(value.NewList(m.Keys()))
	})
	r.register("mapvalues", func(ctx Context, args []value.Value) Result {
		m, ok := args[0].(value.Map)
		if !ok {
			return Err(value.E_TYPE)
		}
		pairs := m.Pairs()
		out := make([]value.Value, len(pairs))
		for i, p := range pairs {
			out[i] = p[1]
		}
		return Ret(value.NewList(out))
	})
	r.register("mapdelete", func(ctx Context, args []value.Value) Result {
		m, ok := args[0].(value.Map)
		if !ok {
			return Err(value.E_TYPE)
		}
		out, ok := m.Delete(args[1])
		if !ok {
			return Err(value.E_RANGE)
		}
		return Ret(out)
	})
}

// registerMathBuiltins carries forward the teacher's math-helper surface
// (builtins/math.go).
func registerMathBuiltins(r *Registry) {
	r.register("abs", func(ctx Context, args []value.Value) Result {
		if len(args) == 0 {
			return Err(value.E_ARGS)
		}
		switch v := args[0].(type) {
		case value.Int:
			if v < 0 {
				return Ret(-v)
			}
			return Ret(v)
		case value.Float:
			if v < 0 {
				return Ret(-v)
			}
			return Ret(v)
		}
		return Err(value.E_TYPE)
	})
	r.register("min", func(ctx Context, args []value.Value) Result {
		if len(args) == 0 {
			return Err(value.E_ARGS)
		}
		best := args[0]
		for _, a := range args[1:] {
			if value.Compare(a, best) < 0 {
				best = a
			}
		}
		return Ret(best)
	})
	r.register("max", func(ctx Context, args []value.Value) Result {
		if len(args) == 0 {
			return Err(value.E_ARGS)
		}
		best := args[0]
		for _, a := range args[1:] {
			if value.Compare(a, best) > 0 {
				best = a
			}
		}
		return Ret(best)
	})
	r.register("toint", func(ctx Context, args []value.Value) Result {
		switch v := args[0].(type) {
		case value.Int:
			return Ret(v)
		case value.Float:
			return Ret(value.Int(int64(v)))
		case value.Str:
			var n int64
			for i := 0; i < len(v); i++ {
				c := v[i]
				if c < '0' || c > '9' {
					break
				}
				n = n*10 + int64(c-'0')
			}
			return Ret(value.Int(n))
		}
		return Err(value.E_TYPE)
	})
	r.register("tofloat", func(ctx Context, args []value.Value) Result {
		switch v := args[0].(type) {
		case value.Int:
			return Ret(value.Float(v))
		case value.Float:
			return Ret(v)
		}
		return Err(value.E_TYPE)
	})
}
