package compiler

import (
	"fmt"
	"regexp"

	"github.com/roach88/tierfold/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrDuplicateParam     = "E101" // parameter listed twice
	ErrInvalidName        = "E102" // not an identifier, or names a constant
	ErrUnknownIdentifier  = "E103" // reference to a variable not in scope
	ErrMisplacedReturn    = "E104" // return not the last top-level statement
	ErrEmptyFunctionName  = "E105" // function has no name
	ErrMissingExpression  = "E106" // statement without its expression
	ErrUnsupportedOperand = "E107" // operator with the wrong operand count
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Pos     ir.Pos `json:"pos"`

	stmt *ir.Stmt
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("[%s] %s: %s: %s", e.Code, e.Pos, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// identPattern matches names usable as parameters and variables.
var identPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Validate checks a source function for scoping and shape errors.
// Returns all errors found (does not fail-fast).
//
// Scoping follows the graph builder: a let of a visible name assigns it,
// a let of a new name declares it in the enclosing block, and names
// declared in a block go out of scope when the block ends.
func Validate(fn *ir.Function) []ValidationError {
	v := &validator{}

	if fn.Name == "" {
		v.add(ValidationError{
			Field:   "name",
			Message: "function name is required",
			Code:    ErrEmptyFunctionName,
			Pos:     fn.Pos,
		})
	}

	top := map[string]bool{}
	for i, p := range fn.Params {
		field := fmt.Sprintf("params[%d]", i)
		v.checkName(p, field, fn.Pos, nil)
		if top[p] {
			v.add(ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate parameter %q", p),
				Code:    ErrDuplicateParam,
				Pos:     fn.Pos,
			})
		}
		top[p] = true
	}

	v.block(fn.Body, "body", []map[string]bool{top}, true)
	return v.errs
}

type validator struct {
	errs []ValidationError
}

func (v *validator) add(e ValidationError) { v.errs = append(v.errs, e) }

func (v *validator) checkName(name, field string, pos ir.Pos, s *ir.Stmt) {
	if _, ok := namedConstants[name]; ok || !identPattern.MatchString(name) {
		v.add(ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%q is not a valid variable name", name),
			Code:    ErrInvalidName,
			Pos:     pos,
			stmt:    s,
		})
	}
}

func visible(scopes []map[string]bool, name string) bool {
	for i := len(scopes) - 1; i >= 0; i-- {
		if scopes[i][name] {
			return true
		}
	}
	return false
}

func (v *validator) block(body []*ir.Stmt, field string, scopes []map[string]bool, top bool) {
	for i, s := range body {
		sf := fmt.Sprintf("%s[%d]", field, i)

		if s.Kind == ir.StmtReturn && (!top || i != len(body)-1) {
			v.add(ValidationError{
				Field:   sf,
				Message: "return must be the last statement of the function body",
				Code:    ErrMisplacedReturn,
				Pos:     s.Pos,
				stmt:    s,
			})
		}

		if s.Expr == nil {
			v.add(ValidationError{
				Field:   sf,
				Message: fmt.Sprintf("%s statement has no expression", s.Kind),
				Code:    ErrMissingExpression,
				Pos:     s.Pos,
				stmt:    s,
			})
		} else {
			v.expr(s.Expr, sf, scopes, s)
		}

		switch s.Kind {
		case ir.StmtLet:
			v.checkName(s.Name, sf+".let", s.Pos, s)
			if !visible(scopes, s.Name) {
				scopes[len(scopes)-1][s.Name] = true
			}
		case ir.StmtWhile:
			v.block(s.Body, sf+".do", append(scopes, map[string]bool{}), false)
		case ir.StmtIf:
			v.block(s.Body, sf+".then", append(scopes, map[string]bool{}), false)
			v.block(s.Else, sf+".else", append(scopes, map[string]bool{}), false)
		}
	}
}

func (v *validator) expr(e *ir.Expr, field string, scopes []map[string]bool, s *ir.Stmt) {
	switch e.Kind {
	case ir.ExprIdent:
		if !visible(scopes, e.Name) {
			pos := e.Pos
			if !pos.IsValid() {
				pos = s.Pos
			}
			v.add(ValidationError{
				Field:   field,
				Message: fmt.Sprintf("unknown identifier %q", e.Name),
				Code:    ErrUnknownIdentifier,
				Pos:     pos,
				stmt:    s,
			})
		}
	case ir.ExprOp:
		if len(e.Args) != e.Op.Arity() {
			v.add(ValidationError{
				Field:   field,
				Message: fmt.Sprintf("%s takes %d operands, got %d", e.Op, e.Op.Arity(), len(e.Args)),
				Code:    ErrUnsupportedOperand,
				Pos:     s.Pos,
				stmt:    s,
			})
			return
		}
		for _, a := range e.Args {
			v.expr(a, field, scopes, s)
		}
	}
}
