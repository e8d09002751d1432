package tinylang

import (
	"fmt"
	"strings"
)

// IREmitOptions controls the textual IR backend's output.
type IREmitOptions struct {
	EmitComments bool // prepend a header comment naming the compiler and target
}

// irEmitter lowers a Function body to the SSA-like instruction stream
// described by the IR grammar: integer-indexed temporaries %tN, labels
// LN, and source-variable slots %name allocated with alloca/store/load,
// the same convention LLVM IR uses for mutable locals.
type irEmitter struct {
	b        strings.Builder
	tempSeq  int
	labelSeq int
}

// EmitIR renders prog as the textual SSA-like intermediate representation.
func EmitIR(prog *Program, opts IREmitOptions) (string, error) {
	var out strings.Builder
	if opts.EmitComments {
		out.WriteString("; Generated by tinylang\n")
		out.WriteString("; Target: IR (human-readable)\n\n")
	}
	out.WriteString("declare void @print(i32)\n\n")
	for i, fn := range prog.Functions {
		if i > 0 {
			out.WriteString("\n")
		}
		text, err := emitIRFunction(fn)
		if err != nil {
			return "", err
		}
		out.WriteString(text)
	}
	return out.String(), nil
}

func emitIRFunction(fn *Function) (string, error) {
	e := &irEmitter{}
	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = fmt.Sprintf("%s %%%s.param", irType(p.Type), p.Name)
	}
	fmt.Fprintf(&e.b, "define %s @%s(%s) {\n", irType(fn.ReturnType), fn.Name, strings.Join(params, ", "))
	e.b.WriteString("entry:\n")
	for _, p := range fn.Params {
		fmt.Fprintf(&e.b, "  %%%s = alloca i32\n", p.Name)
		fmt.Fprintf(&e.b, "  store i32 %%%s.param, %%%s\n", p.Name, p.Name)
	}
	for _, stmt := range fn.Body.Stmts {
		if err := e.emitStmt(stmt); err != nil {
			return "", err
		}
	}
	e.b.WriteString("}\n")
	return e.b.String(), nil
}

func (e *irEmitter) newTemp() string {
	t := fmt.Sprintf("%%t%d", e.tempSeq)
	e.tempSeq++
	return t
}

func (e *irEmitter) newLabel() int {
	l := e.labelSeq
	e.labelSeq++
	return l
}

func (e *irEmitter) emitStmt(stmt Stmt) error {
	switch st := stmt.(type) {
	case *VarDeclStmt:
		fmt.Fprintf(&e.b, "  %%%s = alloca i32\n", st.Name)
		v, err := e.emitExpr(st.Init)
		if err != nil {
			return err
		}
		fmt.Fprintf(&e.b, "  store i32 %s, %%%s\n", v, st.Name)
		return nil
	case *AssignStmt:
		v, err := e.emitExpr(st.Expr)
		if err != nil {
			return err
		}
		fmt.Fprintf(&e.b, "  store i32 %s, %%%s\n", v, st.Name)
		return nil
	case *IfStmt:
		return e.emitIf(st)
	case *WhileStmt:
		return e.emitWhile(st)
	case *ReturnStmt:
		if st.Value == nil {
			e.b.WriteString("  ret void\n")
			return nil
		}
		v, err := e.emitExpr(st.Value)
		if err != nil {
			return err
		}
		fmt.Fprintf(&e.b, "  ret i32 %s\n", v)
		return nil
	case *ExprStmt:
		_, err := e.emitExpr(st.Expr)
		return err
	case *BlockStmt:
		for _, s := range st.Stmts {
			if err := e.emitStmt(s); err != nil {
				return err
			}
		}
		return nil
	}
	return NewError(stmt.pos(), ErrInvalidInput, "ir: unsupported statement")
}

// emitIf lowers an if/else the way the IR grammar's control-flow section
// prescribes: evaluate the condition, branch on it, emit the then-block
// ending in an unconditional jump to a shared end label, optionally the
// same for an else-block, then the end label.
func (e *irEmitter) emitIf(st *IfStmt) error {
	cond, err := e.emitExpr(st.Cond)
	if err != nil {
		return err
	}
	thenLabel := e.newLabel()
	elseLabel := e.newLabel()
	endLabel := e.newLabel()

	if st.Else != nil {
		fmt.Fprintf(&e.b, "  br i1 %s, label %%L%d, label %%L%d\n", cond, thenLabel, elseLabel)
	} else {
		fmt.Fprintf(&e.b, "  br i1 %s, label %%L%d, label %%L%d\n", cond, thenLabel, endLabel)
	}

	fmt.Fprintf(&e.b, "\nL%d:\n", thenLabel)
	for _, s := range st.Then.Stmts {
		if err := e.emitStmt(s); err != nil {
			return err
		}
	}
	fmt.Fprintf(&e.b, "  br label %%L%d\n", endLabel)

	if st.Else != nil {
		fmt.Fprintf(&e.b, "\nL%d:\n", elseLabel)
		for _, s := range st.Else.Stmts {
			if err := e.emitStmt(s); err != nil {
				return err
			}
		}
		fmt.Fprintf(&e.b, "  br label %%L%d\n", endLabel)
	}

	fmt.Fprintf(&e.b, "\nL%d:\n", endLabel)
	return nil
}

// emitWhile lowers while to a condition block re-entered on the back
// edge, a body block, and an end label, per the IR grammar.
func (e *irEmitter) emitWhile(st *WhileStmt) error {
	condLabel := e.newLabel()
	bodyLabel := e.newLabel()
	endLabel := e.newLabel()

	fmt.Fprintf(&e.b, "  br label %%L%d\n", condLabel)

	fmt.Fprintf(&e.b, "\nL%d:\n", condLabel)
	cond, err := e.emitExpr(st.Cond)
	if err != nil {
		return err
	}
	fmt.Fprintf(&e.b, "  br i1 %s, label %%L%d, label %%L%d\n", cond, bodyLabel, endLabel)

	fmt.Fprintf(&e.b, "\nL%d:\n", bodyLabel)
	for _, s := range st.Body.Stmts {
		if err := e.emitStmt(s); err != nil {
			return err
		}
	}
	fmt.Fprintf(&e.b, "  br label %%L%d\n", condLabel)

	fmt.Fprintf(&e.b, "\nL%d:\n", endLabel)
	return nil
}

func (e *irEmitter) emitExpr(expr Expr) (string, error) {
	switch ex := expr.(type) {
	case *IntLitExpr:
		t := e.newTemp()
		fmt.Fprintf(&e.b, "  %s = const i32 %d\n", t, ex.Value)
		return t, nil
	case *BoolLitExpr:
		t := e.newTemp()
		v := 0
		if ex.Value {
			v = 1
		}
		fmt.Fprintf(&e.b, "  %s = const i1 %d\n", t, v)
		return t, nil
	case *VarExpr:
		t := e.newTemp()
		fmt.Fprintf(&e.b, "  %s = load %%%s\n", t, ex.Name)
		return t, nil
	case *UnaryExpr:
		v, err := e.emitExpr(ex.Operand)
		if err != nil {
			return "", err
		}
		t := e.newTemp()
		fmt.Fprintf(&e.b, "  %s = xor i1 %s, 1\n", t, v)
		return t, nil
	case *CallExpr:
		if ex.Name == builtinPrint {
			arg, err := e.emitExpr(ex.Args[0])
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&e.b, "  call void @print(i32 %s)\n", arg)
			return "", nil
		}
		args := make([]string, len(ex.Args))
		for i, a := range ex.Args {
			v, err := e.emitExpr(a)
			if err != nil {
				return "", err
			}
			args[i] = fmt.Sprintf("i32 %s", v)
		}
		t := e.newTemp()
		fmt.Fprintf(&e.b, "  %s = call i32 @%s(%s)\n", t, ex.Name, strings.Join(args, ", "))
		return t, nil
	case *BinaryExpr:
		return e.emitBinary(ex)
	}
	return "", NewError(expr.pos(), ErrInvalidInput, "ir: unsupported expression")
}

func (e *irEmitter) emitBinary(ex *BinaryExpr) (string, error) {
	left, err := e.emitExpr(ex.Left)
	if err != nil {
		return "", err
	}
	right, err := e.emitExpr(ex.Right)
	if err != nil {
		return "", err
	}
	t := e.newTemp()
	if mnemonic, ok := irCompareMnemonic(ex.Op); ok {
		fmt.Fprintf(&e.b, "  %s = icmp %s i32 %s, %s\n", t, mnemonic, left, right)
		return t, nil
	}
	switch ex.Op {
	case OpAnd:
		fmt.Fprintf(&e.b, "  %s = and i1 %s, %s\n", t, left, right)
	case OpOr:
		fmt.Fprintf(&e.b, "  %s = or i1 %s, %s\n", t, left, right)
	default:
		fmt.Fprintf(&e.b, "  %s = %s i32 %s, %s\n", t, irArithOpcode(ex.Op), left, right)
	}
	return t, nil
}

func irCompareMnemonic(op BinaryOp) (string, bool) {
	switch op {
	case OpEq:
		return "eq", true
	case OpNe:
		return "ne", true
	case OpLt:
		return "lt", true
	case OpLe:
		return "le", true
	case OpGt:
		return "gt", true
	case OpGe:
		return "ge", true
	}
	return "", false
}

func irArithOpcode(op BinaryOp) string {
	switch op {
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	case OpDiv:
		return "div"
	case OpMod:
		return "mod"
	}
	panic("unreachable")
}

func irType(t TypeKind) string {
	switch t {
	case TypeInt:
		return "i32"
	case TypeBool:
		return "i1"
	case TypeVoid:
		return "void"
	}
	panic("unreachable")
}
