package engine

import (
	"context"
	"fmt"

	"github.com/roach88/tierfold/internal/ir"
)

// Interpreter is the baseline tier: it executes the source AST directly
// with JavaScript semantics. Static assertions are no-ops at runtime.
//
// An Interpreter holds no per-call state and is safe for concurrent use.
type Interpreter struct {
	// MaxLoopIterations bounds the loop iterations of one call. Zero or
	// less disables the bound.
	MaxLoopIterations int
}

// NewInterpreter creates an interpreter with the given loop budget.
func NewInterpreter(maxLoopIterations int) *Interpreter {
	return &Interpreter{MaxLoopIterations: maxLoopIterations}
}

// frame is the variable state of one call. Block scoping follows the graph
// builder: a let assigns the innermost visible binding or declares a new
// one in the current block.
type frame struct {
	fn     *ir.Function
	ctx    context.Context
	quota  *loopQuota
	scopes []map[string]int
	values []ir.Value
	ret    ir.Value
	done   bool
}

// Call runs fn on args. A function without a return statement returns
// undefined. Calls exceeding the loop budget return *LoopLimitError.
func (in *Interpreter) Call(ctx context.Context, fn *ir.Function, args []ir.Value) (ir.Value, error) {
	if len(args) != len(fn.Params) {
		return ir.Undefined(), NewArityError(fn.Name, len(args), len(fn.Params))
	}
	f := &frame{
		fn:     fn,
		ctx:    ctx,
		quota:  newLoopQuota(in.MaxLoopIterations),
		scopes: []map[string]int{make(map[string]int, len(fn.Params))},
		ret:    ir.Undefined(),
	}
	for i, p := range fn.Params {
		f.declare(p, args[i])
	}
	if err := f.run(fn.Body); err != nil {
		return ir.Undefined(), err
	}
	return f.ret, nil
}

func (f *frame) declare(name string, v ir.Value) {
	f.scopes[len(f.scopes)-1][name] = len(f.values)
	f.values = append(f.values, v)
}

func (f *frame) lookup(name string) (int, bool) {
	for i := len(f.scopes) - 1; i >= 0; i-- {
		if slot, ok := f.scopes[i][name]; ok {
			return slot, true
		}
	}
	return 0, false
}

func (f *frame) block(stmts []*ir.Stmt) error {
	outer := len(f.values)
	f.scopes = append(f.scopes, make(map[string]int))
	err := f.run(stmts)
	f.scopes = f.scopes[:len(f.scopes)-1]
	f.values = f.values[:outer]
	return err
}

func (f *frame) run(stmts []*ir.Stmt) error {
	for _, s := range stmts {
		if f.done {
			return nil
		}
		if err := f.stmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (f *frame) stmt(s *ir.Stmt) error {
	switch s.Kind {
	case ir.StmtAssert:
		return nil

	case ir.StmtLet:
		v, err := f.eval(s.Expr)
		if err != nil {
			return err
		}
		if slot, ok := f.lookup(s.Name); ok {
			f.values[slot] = v
		} else {
			f.declare(s.Name, v)
		}
		return nil

	case ir.StmtReturn:
		v, err := f.eval(s.Expr)
		if err != nil {
			return err
		}
		f.ret, f.done = v, true
		return nil

	case ir.StmtIf:
		cond, err := f.eval(s.Expr)
		if err != nil {
			return err
		}
		if cond.ToBoolean() {
			return f.block(s.Body)
		}
		return f.block(s.Else)

	case ir.StmtWhile:
		for {
			cond, err := f.eval(s.Expr)
			if err != nil {
				return err
			}
			if !cond.ToBoolean() {
				return nil
			}
			if err := f.quota.Check(f.fn.Name); err != nil {
				return err
			}
			if err := f.ctx.Err(); err != nil {
				return err
			}
			if err := f.block(s.Body); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("unknown statement kind %s at %s", s.Kind, s.Pos)
}

func (f *frame) eval(e *ir.Expr) (ir.Value, error) {
	switch e.Kind {
	case ir.ExprLiteral:
		return e.Value, nil
	case ir.ExprIdent:
		slot, ok := f.lookup(e.Name)
		if !ok {
			return ir.Undefined(), fmt.Errorf("%s: unbound variable %q", f.fn.Name, e.Name)
		}
		return f.values[slot], nil
	case ir.ExprOp:
		args := make([]ir.Value, len(e.Args))
		for i, a := range e.Args {
			v, err := f.eval(a)
			if err != nil {
				return ir.Undefined(), err
			}
			args[i] = v
		}
		v, ok := ir.Evaluate(e.Op, args...)
		if !ok {
			return ir.Undefined(), fmt.Errorf("%s: cannot evaluate %s with %d operands", f.fn.Name, e.Op, len(args))
		}
		return v, nil
	}
	return ir.Undefined(), fmt.Errorf("unknown expression kind %d", e.Kind)
}
