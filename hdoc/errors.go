package hdoc

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mindiply/hirardoc-sub000/internal/utils/ansi"
)

// ErrorType categorizes an HDocError the way spec section 7 taxonomizes
// failures: each primitive, path resolution, or replay failure raises
// exactly one of these, never a bare error.
type ErrorType string

const (
	// ReferenceError: a NodeId or Path does not resolve.
	ReferenceError ErrorType = "reference_error"
	// IntegrityError: back-pointer/forward-link disagreement, subtree not
	// found during re-id, non-root node with a nil parent, child missing
	// from its declared parent link.
	IntegrityError ErrorType = "integrity_error"
	// ShapeError: a path element's kind doesn't match the schema-declared
	// link kind (array index into a Set field, named member into a Single).
	ShapeError ErrorType = "shape_error"
	// RangeError: array index out of range, unknown commitId, reversed delta range.
	RangeError ErrorType = "range_error"
	// UniquenessError: inserting an id that is already live, or a duplicate in an array link.
	UniquenessError ErrorType = "uniqueness_error"
	// ConstraintError: unknown schema type/field, or an operation the schema disallows.
	ConstraintError ErrorType = "constraint_error"
	// ValidationError covers ambient API misuse that spec.md's taxonomy
	// doesn't itself name (malformed schema registration, nil overrides).
	ValidationError ErrorType = "validation_error"
)

// HDocError is the one error type every hdoc operation returns on failure.
type HDocError struct {
	Type    ErrorType
	Message string
	Path    string
	Cause   error
}

func (e *HDocError) Error() string {
	if e.Path != "" {
		return ansi.Sprintf("@R{%s} @c{at %s}: %s", string(e.Type), e.Path, e.Message)
	}
	return ansi.Sprintf("@R{%s}: %s", string(e.Type), e.Message)
}

func (e *HDocError) Unwrap() error {
	return e.Cause
}

func newErr(t ErrorType, path, format string, args ...interface{}) *HDocError {
	return &HDocError{Type: t, Message: fmt.Sprintf(format, args...), Path: path}
}

// NewReferenceError reports a NodeId or Path that does not resolve.
func NewReferenceError(path, format string, args ...interface{}) *HDocError {
	return newErr(ReferenceError, path, format, args...)
}

// NewIntegrityError reports a violated I1-I7 structural invariant.
func NewIntegrityError(path, format string, args ...interface{}) *HDocError {
	return newErr(IntegrityError, path, format, args...)
}

// NewShapeError reports a path element whose kind mismatches the schema.
func NewShapeError(path, format string, args ...interface{}) *HDocError {
	return newErr(ShapeError, path, format, args...)
}

// NewRangeError reports an out-of-range index or unknown commit id.
func NewRangeError(path, format string, args ...interface{}) *HDocError {
	return newErr(RangeError, path, format, args...)
}

// NewUniquenessError reports a duplicate id where one is disallowed.
func NewUniquenessError(path, format string, args ...interface{}) *HDocError {
	return newErr(UniquenessError, path, format, args...)
}

// NewConstraintError reports a schema violation (unknown type/field).
func NewConstraintError(path, format string, args ...interface{}) *HDocError {
	return newErr(ConstraintError, path, format, args...)
}

// NewValidationError reports ambient API misuse outside spec.md's own taxonomy.
func NewValidationError(format string, args ...interface{}) *HDocError {
	return newErr(ValidationError, "", format, args...)
}

// IsHDocError reports whether err is an *HDocError.
func IsHDocError(err error) bool {
	_, ok := err.(*HDocError)
	return ok
}

// ErrorTypeOf returns the ErrorType of err, or "" if err is not an *HDocError.
func ErrorTypeOf(err error) ErrorType {
	if e, ok := err.(*HDocError); ok {
		return e.Type
	}
	return ""
}

// MultiError aggregates several invariant violations from one validation
// pass (e.g. checking a whole document against I1-I7).
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	lines := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		lines = append(lines, fmt.Sprintf(" - %s", err))
	}
	sort.Strings(lines)
	return ansi.Sprintf("@R{%d} error(s) detected:\n%s", len(e.Errors), strings.Join(lines, "\n"))
}

// Count returns the number of aggregated errors.
func (e *MultiError) Count() int {
	return len(e.Errors)
}

// Append adds err to the set, flattening nested MultiErrors and ignoring nil.
func (e *MultiError) Append(err error) {
	if err == nil {
		return
	}
	if m, ok := err.(MultiError); ok {
		e.Errors = append(e.Errors, m.Errors...)
		return
	}
	e.Errors = append(e.Errors, err)
}

// AsError returns nil if no errors were appended, else the MultiError itself.
func (e *MultiError) AsError() error {
	if e.Count() == 0 {
		return nil
	}
	return *e
}

// assertConfig is the one piece of global mutable state the library
// tolerates, mirroring the teacher's own dontPrintWarning/SilenceWarnings
// pattern (spec.md section 7): diagnostics from non-fatal invariant checks
// route through it instead of always panicking.
var assertConfig = struct {
	outputFn         func(string)
	throwOnViolation bool
}{
	outputFn:         nil,
	throwOnViolation: true,
}

// SetAssertOutputFn installs the function invariant violations are reported
// to when ThrowOnViolation is false. A nil fn silences output.
func SetAssertOutputFn(fn func(string)) {
	assertConfig.outputFn = fn
}

// SetThrowOnViolation toggles whether a violated invariant panics (true,
// the default) or is merely reported via the configured output function
// (false) -- used by replay tools and diagnostics per spec.md section 7.
func SetThrowOnViolation(should bool) {
	assertConfig.throwOnViolation = should
}

// assertInvariant reports a violation of err according to the current
// assert configuration. No code in the package calls it; the primitives
// report violations as returned errors.
func assertInvariant(cond bool, err *HDocError) {
	if cond {
		return
	}
	if assertConfig.throwOnViolation {
		panic(err)
	}
	if assertConfig.outputFn != nil {
		assertConfig.outputFn(err.Error())
	}
}
