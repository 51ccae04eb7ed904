package tree

import (
	"fmt"
)

// Cursor represents a path through YAML/JSON data structure
type Cursor struct {
	Nodes []string
}

// SyntaxError represents a syntax error in path parsing
type SyntaxError struct {
	Problem  string
	Position int
}

// Error returns the error message for SyntaxError
func (e SyntaxError) Error() string {
	return fmt.Sprintf("syntax error: %s at position %d", e.Problem, e.Position)
}