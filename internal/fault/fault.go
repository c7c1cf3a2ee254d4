// Package fault defines the typed error taxonomy shared by the engine, the
// repository, and the API layer. Callers distinguish failures with errors.As.
package fault

import "fmt"

// ValidationError indicates malformed input: bad date ordering, out-of-range
// progress, empty required fields.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

// NotFoundError indicates an unknown project/phase/stage/change request id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ConflictError indicates an operation incompatible with current state:
// removing a non-empty phase, reusing a consumed change request, resolving a
// terminal one.
type ConflictError struct {
	Msg string
}

func (e ConflictError) Error() string { return e.Msg }

// CycleError indicates a dependency edge whose addition would make the stage
// graph cyclic. The graph is left untouched.
type CycleError struct {
	PredecessorID string
	SuccessorID   string
}

func (e CycleError) Error() string {
	return fmt.Sprintf("dependency %s -> %s would create a cycle", e.PredecessorID, e.SuccessorID)
}

// AuthorizationError indicates the actor lacks a required capability or role.
// Capability lookups that time out fail closed with this error.
type AuthorizationError struct {
	ActorID    string
	Capability string
}

func (e AuthorizationError) Error() string {
	return fmt.Sprintf("actor %s lacks capability %s", e.ActorID, e.Capability)
}

// ConcurrencyError indicates a ledger sequence race. The engine retries the
// whole governed operation a bounded number of times before surfacing it.
type ConcurrencyError struct {
	Msg string
}

func (e ConcurrencyError) Error() string { return e.Msg }

// ConsistencyError is fatal: an atomic governed transaction would have
// partially committed. It is never retried; writes to the affected project
// halt until an operator intervenes.
type ConsistencyError struct {
	ProjectID string
	Msg       string
}

func (e ConsistencyError) Error() string {
	return fmt.Sprintf("project %s consistency violation: %s", e.ProjectID, e.Msg)
}

// Validationf builds a ValidationError.
func Validationf(format string, args ...any) ValidationError {
	return ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Conflictf builds a ConflictError.
func Conflictf(format string, args ...any) ConflictError {
	return ConflictError{Msg: fmt.Sprintf(format, args...)}
}
