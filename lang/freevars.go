package lang

// collectFreeVarsExpr/collectFreeVarsStmt find every identifier referenced
// under node that isn't bound by a parameter or local declaration enclosing
// it, for lambda capture analysis (spec §4.4.3). bound is cloned at each
// nested lexical scope so a name declared inside one branch doesn't falsely
// suppress a capture needed by a sibling branch using the same name from an
// outer scope.
func collectFreeVarsExpr(e Expr, bound map[string]bool, free map[string]bool) {
	if e == nil {
		return
	}
	switch n := e.(type) {
	case *LiteralExpr, *SymbolExpr, *IndexMarkerExpr:
		// no identifiers
	case *IdentifierExpr:
		if !bound[n.Name] {
			free[n.Name] = true
		}
	case *ListExpr:
		for _, el := range n.Elems {
			collectFreeVarsExpr(el, bound, free)
		}
	case *MapExpr:
		for _, entry := range n.Entries {
			collectFreeVarsExpr(entry.Key, bound, free)
			collectFreeVarsExpr(entry.Value, bound, free)
		}
	case *FlyweightExpr:
		collectFreeVarsExpr(n.Delegate, bound, free)
		for _, s := range n.Slots {
			collectFreeVarsExpr(s.Value, bound, free)
		}
		collectFreeVarsExpr(n.Contents, bound, free)
	case *ComprehensionExpr:
		inner := cloneSet(bound)
		inner[n.Var] = true
		collectFreeVarsExpr(n.Container, bound, free)
		collectFreeVarsExpr(n.RangeStart, bound, free)
		collectFreeVarsExpr(n.RangeEnd, bound, free)
		collectFreeVarsExpr(n.Result, inner, free)
	case *UnaryExpr:
		collectFreeVarsExpr(n.Operand, bound, free)
	case *BinaryExpr:
		collectFreeVarsExpr(n.Left, bound, free)
		collectFreeVarsExpr(n.Right, bound, free)
	case *LogicalExpr:
		collectFreeVarsExpr(n.Left, bound, free)
		collectFreeVarsExpr(n.Right, bound, free)
	case *TernaryExpr:
		collectFreeVarsExpr(n.Condition, bound, free)
		collectFreeVarsExpr(n.ThenExpr, bound, free)
		collectFreeVarsExpr(n.ElseExpr, bound, free)
	case *InExpr:
		collectFreeVarsExpr(n.Elem, bound, free)
		collectFreeVarsExpr(n.Seq, bound, free)
	case *ParenExpr:
		collectFreeVarsExpr(n.Expr, bound, free)
	case *IndexExpr:
		collectFreeVarsExpr(n.Expr, bound, free)
		collectFreeVarsExpr(n.Index, bound, free)
	case *RangeExpr:
		collectFreeVarsExpr(n.Expr, bound, free)
		collectFreeVarsExpr(n.Start, bound, free)
		collectFreeVarsExpr(n.End, bound, free)
	case *PropertyExpr:
		collectFreeVarsExpr(n.Expr, bound, free)
		collectFreeVarsExpr(n.Computed, bound, free)
	case *VerbCallExpr:
		collectFreeVarsExpr(n.Expr, bound, free)
		collectFreeVarsExpr(n.Computed, bound, free)
		for _, a := range n.Args {
			collectFreeVarsExpr(a, bound, free)
		}
	case *BuiltinCallExpr:
		if !bound[n.Name] {
			// Only a real reference if something in an enclosing scope
			// actually binds this name (a shadowing lambda/local); otherwise
			// it resolves to the builtin catalog at codegen time, not a
			// capture.
		} else {
			free[n.Name] = true
		}
		for _, a := range n.Args {
			collectFreeVarsExpr(a, bound, free)
		}
	case *CallExpr:
		collectFreeVarsExpr(n.Callee, bound, free)
		for _, a := range n.Args {
			collectFreeVarsExpr(a, bound, free)
		}
	case *SpliceExpr:
		collectFreeVarsExpr(n.Expr, bound, free)
	case *CatchExpr:
		collectFreeVarsExpr(n.Expr, bound, free)
		collectFreeVarsExpr(n.Default, bound, free)
	case *PassExpr:
		for _, a := range n.Args {
			collectFreeVarsExpr(a, bound, free)
		}
	case *AssignExpr:
		collectFreeVarsTarget(n.Target, bound, free)
		collectFreeVarsExpr(n.Value, bound, free)
	case *ScatterAssignExpr:
		collectFreeVarsExpr(n.Value, bound, free)
		for _, t := range n.Targets {
			collectFreeVarsExpr(t.Default, bound, free)
		}
	case *LambdaExpr:
		inner := cloneSet(bound)
		for _, p := range n.Params {
			inner[p.Name] = true
		}
		if n.Name != "" {
			inner[n.Name] = true
		}
		if n.ShortBody != nil {
			collectFreeVarsExpr(n.ShortBody, inner, free)
		}
		for _, s := range n.LongBody {
			collectFreeVarsStmt(s, inner, free)
		}
	}
}

func collectFreeVarsTarget(target Expr, bound map[string]bool, free map[string]bool) {
	switch t := target.(type) {
	case *IdentifierExpr:
		if !bound[t.Name] {
			free[t.Name] = true
		}
	case *PropertyExpr:
		collectFreeVarsExpr(t.Expr, bound, free)
		collectFreeVarsExpr(t.Computed, bound, free)
	case *IndexExpr:
		collectFreeVarsExpr(t.Expr, bound, free)
		collectFreeVarsExpr(t.Index, bound, free)
	case *RangeExpr:
		collectFreeVarsExpr(t.Expr, bound, free)
		collectFreeVarsExpr(t.Start, bound, free)
		collectFreeVarsExpr(t.End, bound, free)
	}
}

func collectFreeVarsStmt(s Stmt, bound map[string]bool, free map[string]bool) {
	if s == nil {
		return
	}
	switch n := s.(type) {
	case *ExprStmt:
		collectFreeVarsExpr(n.Expr, bound, free)
	case *IfStmt:
		collectFreeVarsExpr(n.Condition, bound, free)
		collectFreeVarsBlock(n.Body, bound, free)
		for _, ei := range n.ElseIfs {
			collectFreeVarsExpr(ei.Condition, bound, free)
			collectFreeVarsBlock(ei.Body, bound, free)
		}
		collectFreeVarsBlock(n.Else, bound, free)
	case *WhileStmt:
		collectFreeVarsExpr(n.Condition, bound, free)
		collectFreeVarsBlock(n.Body, bound, free)
	case *ForStmt:
		inner := cloneSet(bound)
		inner[n.Value] = true
		if n.Index != "" {
			inner[n.Index] = true
		}
		collectFreeVarsExpr(n.Container, bound, free)
		collectFreeVarsExpr(n.RangeStart, bound, free)
		collectFreeVarsExpr(n.RangeEnd, bound, free)
		collectFreeVarsBlock(n.Body, inner, free)
	case *ForkStmt:
		collectFreeVarsExpr(n.Delay, bound, free)
		collectFreeVarsBlock(n.Body, bound, free)
	case *TryStmt:
		collectFreeVarsBlock(n.Body, bound, free)
		for _, ex := range n.Excepts {
			inner := cloneSet(bound)
			if ex.ID != "" {
				inner[ex.ID] = true
			}
			collectFreeVarsBlock(ex.Body, inner, free)
		}
		collectFreeVarsBlock(n.Finally, bound, free)
	case *ReturnStmt:
		collectFreeVarsExpr(n.Value, bound, free)
	case *LetStmt:
		collectFreeVarsExpr(n.Value, bound, free)
		bound[n.Name] = true
	case *ConstStmt:
		collectFreeVarsExpr(n.Value, bound, free)
		bound[n.Name] = true
	case *GlobalStmt:
		collectFreeVarsExpr(n.Value, bound, free)
		bound[n.Name] = true
	case *FnStmt:
		inner := cloneSet(bound)
		for _, p := range n.Params {
			inner[p.Name] = true
		}
		inner[n.Name] = true
		collectFreeVarsBlock(n.Body, inner, free)
		bound[n.Name] = true
	case *LexicalBlockStmt:
		collectFreeVarsBlock(n.Body, bound, free)
	}
}

func collectFreeVarsBlock(body []Stmt, bound map[string]bool, free map[string]bool) {
	inner := cloneSet(bound)
	for _, s := range body {
		collectFreeVarsStmt(s, inner, free)
	}
}
