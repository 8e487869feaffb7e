package sentinel

import "errors"

// Sentinel errors shared by stores and services. Feature packages wrap these
// with context so handlers can map them with errors.Is.
//
//   - ErrNotFound: entity does not exist for the tenant
//   - ErrInvalidAction: action is not defined for the entity's current state
//   - ErrForbidden: actor's role may not perform the operation
//   - ErrConflict: a concurrent writer won; safe to retry
//   - ErrConditionNotMet: a transition guard evaluated to false
//   - ErrInvalidDefinition: a workflow definition failed validation
//   - ErrInvalidInput: request payload is malformed or incomplete
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidAction     = errors.New("invalid action")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
	ErrConditionNotMet   = errors.New("condition not met")
	ErrInvalidDefinition = errors.New("invalid workflow definition")
	ErrInvalidInput      = errors.New("invalid input")
)
