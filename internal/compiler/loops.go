package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/tierfold/internal/ir"
)

// LoopWarning flags a while loop whose condition the body can never
// change. Such a loop either never runs or runs until the interpreter's
// iteration limit.
//
// Loops are reported as warnings, not errors, because a loop the caller
// only reaches under an if may be intentional.
type LoopWarning struct {
	Function string `json:"function"`
	Field    string `json:"field"`
	Pos      ir.Pos `json:"pos"`
	Message  string `json:"message"`
	Level    string `json:"level"` // "warning" or "info"
}

func (w LoopWarning) String() string {
	return fmt.Sprintf("%s %s: %s.%s: %s", w.Level, w.Pos, w.Function, w.Field, w.Message)
}

// AnalyzeLoops reports loops whose condition does not depend on anything
// the loop body assigns. A function without such loops returns an empty
// list.
func AnalyzeLoops(fn *ir.Function) []LoopWarning {
	warnings := []LoopWarning{}
	var walk func(body []*ir.Stmt, field string)
	walk = func(body []*ir.Stmt, field string) {
		for i, s := range body {
			sf := fmt.Sprintf("%s[%d]", field, i)
			switch s.Kind {
			case ir.StmtWhile:
				if w, ok := checkLoop(s); ok {
					w.Function = fn.Name
					w.Field = sf
					warnings = append(warnings, w)
				}
				walk(s.Body, sf+".do")
			case ir.StmtIf:
				walk(s.Body, sf+".then")
				walk(s.Else, sf+".else")
			}
		}
	}
	walk(fn.Body, "body")
	return warnings
}

func checkLoop(s *ir.Stmt) (LoopWarning, bool) {
	reads := identifiers(s.Expr)
	if len(reads) == 0 {
		return LoopWarning{
			Pos:     s.Pos,
			Message: fmt.Sprintf("loop condition %q is constant", s.Text),
			Level:   "info",
		}, true
	}
	writes := assignedNames(s.Body)
	for _, r := range reads {
		if writes[r] {
			return LoopWarning{}, false
		}
	}
	return LoopWarning{
		Pos: s.Pos,
		Message: fmt.Sprintf("loop condition %q reads %s, which the body never assigns",
			s.Text, strings.Join(reads, ", ")),
		Level: "warning",
	}, true
}

// identifiers returns the sorted, distinct variable names e reads.
func identifiers(e *ir.Expr) []string {
	var names []string
	var walk func(*ir.Expr)
	walk = func(e *ir.Expr) {
		switch e.Kind {
		case ir.ExprIdent:
			names = append(names, e.Name)
		case ir.ExprOp:
			for _, a := range e.Args {
				walk(a)
			}
		}
	}
	walk(e)
	slices.Sort(names)
	return slices.Compact(names)
}

func assignedNames(body []*ir.Stmt) map[string]bool {
	names := make(map[string]bool)
	ir.Walk(body, func(s *ir.Stmt) {
		if s.Kind == ir.StmtLet {
			names[s.Name] = true
		}
	})
	return names
}
