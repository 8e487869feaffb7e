package engine

import (
	"errors"
	"fmt"

	"github.com/Altroz1812/wfm-sep-loanzen/pkg/sentinel"
)

// InvalidActionError reports an action with no transition out of the
// case's current stage.
type InvalidActionError struct {
	Action string
	Stage  string
}

func (e *InvalidActionError) Error() string {
	return fmt.Sprintf("invalid action '%s' for current stage '%s'", e.Action, e.Stage)
}

func (e *InvalidActionError) Unwrap() error {
	return sentinel.ErrInvalidAction
}

// Outcome labels a transition result for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, sentinel.ErrNotFound):
		return "not_found"
	case errors.Is(err, sentinel.ErrInvalidAction):
		return "invalid_action"
	case errors.Is(err, sentinel.ErrForbidden):
		return "forbidden"
	case errors.Is(err, sentinel.ErrConditionNotMet):
		return "condition_not_met"
	case errors.Is(err, sentinel.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

// Terminal reports whether retrying the same request can never succeed.
func Terminal(err error) bool {
	switch Outcome(err) {
	case "not_found", "invalid_action", "forbidden", "condition_not_met":
		return true
	}
	return false
}
