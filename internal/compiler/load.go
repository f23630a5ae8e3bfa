package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/tierfold/internal/ir"
)

// Program is every function defined by one CUE instance, sorted by name.
type Program struct {
	Functions []*ir.Function
	Files     int
}

// Function returns the function with the given name.
func (p *Program) Function(name string) (*ir.Function, bool) {
	i, ok := slices.BinarySearchFunc(p.Functions, name, func(f *ir.Function, name string) int {
		return strings.Compare(f.Name, name)
	})
	if !ok {
		return nil, false
	}
	return p.Functions[i], true
}

// Names lists the function names in order.
func (p *Program) Names() []string {
	names := make([]string, len(p.Functions))
	for i, f := range p.Functions {
		names[i] = f.Name
	}
	return names
}

// LoadError is a failure to read a directory of CUE files, before any
// function is compiled.
type LoadError struct {
	Dir     string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Dir, e.Message)
}

// LoadDir loads the CUE package in dir and compiles every entry of its
// top-level `function` struct. Compile errors are collected, one per
// failing function; the functions that compiled are still returned.
func LoadDir(dir string) (*Program, []error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, []error{&LoadError{Dir: dir, Message: err.Error()}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Dir: dir, Message: "not a directory"}}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Dir: dir, Message: fmt.Sprintf("scanning: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Dir: dir, Message: "no CUE files found"}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Dir: dir, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Dir: dir, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}

	prog, errs := CompileProgram(value)
	if prog != nil {
		prog.Files = len(files)
	}
	return prog, errs
}

// CompileSource compiles CUE source text, for tests and inline scenarios.
func CompileSource(filename, src string) (*Program, []error) {
	v := cuecontext.New().CompileString(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}
	prog, errs := CompileProgram(v)
	if prog != nil {
		prog.Files = 1
	}
	return prog, errs
}

// CompileProgram compiles every field of v's `function` struct.
func CompileProgram(v cue.Value) (*Program, []error) {
	prog := &Program{}
	fnsVal := v.LookupPath(cue.ParsePath("function"))
	if !fnsVal.Exists() {
		return prog, []error{&CompileError{
			Field:   "function",
			Message: "no functions defined",
			Pos:     v.Pos(),
		}}
	}
	iter, err := fnsVal.Fields()
	if err != nil {
		return prog, []error{formatCUEError(err)}
	}

	var errs []error
	for iter.Next() {
		fn, err := CompileFunction(iter.Value())
		if err != nil {
			errs = append(errs, fmt.Errorf("function %s: %w", iter.Label(), err))
			continue
		}
		prog.Functions = append(prog.Functions, fn)
	}
	slices.SortFunc(prog.Functions, func(a, b *ir.Function) int {
		return strings.Compare(a.Name, b.Name)
	})
	return prog, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
