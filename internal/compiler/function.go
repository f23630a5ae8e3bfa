package compiler

import (
	"errors"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/tierfold/internal/ir"
)

// CompileFunction parses a CUE value into a source function.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the function struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`function: foo: { params: ["x"], body: [...] }`)
//	fn, err := CompileFunction(v.LookupPath(cue.ParsePath("function.foo")))
//
// The result has passed Validate.
func CompileFunction(v cue.Value) (*ir.Function, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	fn := &ir.Function{Pos: irPos(v.Pos())}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		// Quoted labels such as "my-fn" keep their quotes in String().
		fn.Name = strings.Trim(labels[len(labels)-1].String(), `"`)
	}

	c := &functionCompiler{positions: make(map[*ir.Stmt]token.Pos)}

	paramsVal := v.LookupPath(cue.ParsePath("params"))
	if paramsVal.Exists() {
		iter, err := paramsVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			name, err := iter.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			fn.Params = append(fn.Params, name)
		}
	}

	bodyVal := v.LookupPath(cue.ParsePath("body"))
	if !bodyVal.Exists() {
		return nil, &CompileError{
			Field:   "body",
			Message: "body is required",
			Pos:     v.Pos(),
		}
	}
	body, err := c.block(bodyVal, "body")
	if err != nil {
		return nil, err
	}
	fn.Body = body

	if errs := Validate(fn); len(errs) > 0 {
		ve := errs[0]
		pos := v.Pos()
		if p, ok := c.positions[ve.stmt]; ok {
			pos = p
		}
		return nil, &CompileError{
			Field:   ve.Field,
			Message: ve.Message,
			Code:    ve.Code,
			Pos:     pos,
		}
	}
	return fn, nil
}

// statementKeys are the fields that select a statement form. Exactly one
// must be present.
var statementKeys = []struct {
	key  string
	kind ir.StmtKind
}{
	{"assert", ir.StmtAssert},
	{"let", ir.StmtLet},
	{"while", ir.StmtWhile},
	{"if", ir.StmtIf},
	{"return", ir.StmtReturn},
}

type functionCompiler struct {
	positions map[*ir.Stmt]token.Pos
}

func (c *functionCompiler) block(v cue.Value, field string) ([]*ir.Stmt, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []*ir.Stmt
	for i := 0; iter.Next(); i++ {
		s, err := c.stmt(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (c *functionCompiler) stmt(v cue.Value, field string) (*ir.Stmt, error) {
	s := &ir.Stmt{Pos: irPos(v.Pos())}
	var head cue.Value
	for _, k := range statementKeys {
		kv := v.LookupPath(cue.MakePath(cue.Str(k.key)))
		if !kv.Exists() {
			continue
		}
		if s.Kind != 0 {
			return nil, &CompileError{
				Field:   field,
				Message: fmt.Sprintf("statement has both %s and %s", s.Kind, k.kind),
				Pos:     v.Pos(),
			}
		}
		s.Kind = k.kind
		head = kv
	}
	if s.Kind == 0 {
		return nil, &CompileError{
			Field:   field,
			Message: "statement must be one of assert, let, while, if, return",
			Pos:     v.Pos(),
		}
	}
	c.positions[s] = v.Pos()

	var err error
	switch s.Kind {
	case ir.StmtAssert, ir.StmtReturn:
		s.Expr, s.Text, err = c.expr(head, field+"."+s.Kind.String())

	case ir.StmtLet:
		if s.Name, err = head.String(); err != nil {
			return nil, formatCUEError(err)
		}
		value := v.LookupPath(cue.ParsePath("value"))
		if !value.Exists() {
			return nil, &CompileError{
				Field:   field + ".value",
				Message: fmt.Sprintf("let %s requires a value", s.Name),
				Pos:     v.Pos(),
			}
		}
		s.Expr, s.Text, err = c.expr(value, field+".value")

	case ir.StmtWhile:
		if s.Expr, s.Text, err = c.expr(head, field+".while"); err != nil {
			return nil, err
		}
		s.Body, err = c.optionalBlock(v, "do", field)

	case ir.StmtIf:
		if s.Expr, s.Text, err = c.expr(head, field+".if"); err != nil {
			return nil, err
		}
		if s.Body, err = c.optionalBlock(v, "then", field); err != nil {
			return nil, err
		}
		s.Else, err = c.optionalBlock(v, "else", field)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (c *functionCompiler) optionalBlock(v cue.Value, key, field string) ([]*ir.Stmt, error) {
	bv := v.LookupPath(cue.ParsePath(key))
	if !bv.Exists() {
		return nil, nil
	}
	return c.block(bv, field+"."+key)
}

// expr reads an expression string field. Numbers and booleans written as
// CUE values are accepted too.
func (c *functionCompiler) expr(v cue.Value, field string) (*ir.Expr, string, error) {
	var src string
	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, "", formatCUEError(err)
		}
		src = s
	case cue.IntKind, cue.FloatKind, cue.NumberKind, cue.BoolKind:
		// Written back in CUE syntax, which ParseExpr accepts.
		src = fmt.Sprint(v)
	default:
		return nil, "", &CompileError{
			Field:   field,
			Message: fmt.Sprintf("expression must be a string, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}

	e, err := ParseExpr(src, irPos(v.Pos()))
	if err != nil {
		var ee *ExprError
		if errors.As(err, &ee) {
			return nil, "", &CompileError{
				Field:   field,
				Message: fmt.Sprintf("%s in %q", ee.Message, src),
				Pos:     v.Pos(),
			}
		}
		return nil, "", err
	}
	return e, src, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Code    string // validation code, "" for structural errors
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, msg)
	}
	return fmt.Sprintf("%s: %s", e.Field, msg)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := cueerrors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}

func irPos(p token.Pos) ir.Pos {
	if !p.IsValid() {
		return ir.Pos{}
	}
	return ir.Pos{File: p.Filename(), Line: p.Line(), Column: p.Column()}
}
