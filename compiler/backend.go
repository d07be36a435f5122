// Package compiler turns Petrel script source into bytecode: a lexer, a
// recursive-descent parser and a bytecode generator targeting the vm
// package's register machine.
package compiler

import (
	"github.com/petrel-browser/petrel/vm"
)

// Backend is the compilation pipeline behind a Context: source text in,
// CompiledFunction out. It implements vm.CompilerBackend.
type Backend struct{}

// NewBackend creates a compiler backend.
func NewBackend() *Backend {
	return &Backend{}
}

// Compile compiles a whole program into a top-level function.
func (b *Backend) Compile(source string) (*vm.CompiledFunction, error) {
	prog, err := Parse(source)
	if err != nil {
		return nil, vm.NewError(vm.ErrSyntax, "%s", err)
	}
	return GenerateProgram(prog)
}

// CompileExpression compiles a single expression into a function returning
// its value.
func (b *Backend) CompileExpression(source string) (*vm.CompiledFunction, error) {
	tokens, err := Tokenize(source)
	if err != nil {
		return nil, vm.NewError(vm.ErrSyntax, "%s", err)
	}
	expr, err := NewParser(tokens).ParseExpressionOnly()
	if err != nil {
		return nil, vm.NewError(vm.ErrSyntax, "%s", err)
	}
	return GenerateExpression(expr)
}
