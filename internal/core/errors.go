package core

import "errors"

// Error taxonomy shared by the budget store and its callers. Validation
// errors are returned before any remote call; remote failures are wrapped
// with %w so callers can still reach the provider's reason.
var (
	ErrAuthRequired   = errors.New("authentication required")
	ErrNotFound       = errors.New("not found")
	ErrAccessDenied   = errors.New("access denied")
	ErrInvalidInput   = errors.New("invalid input")
	ErrNoActiveBudget = errors.New("no active budget")
)

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrEmptyName            = errors.New("empty name")
	ErrInvalidCategoryKind  = errors.New("invalid category kind")
	ErrInvalidOperationKind = errors.New("invalid operation kind")
	ErrMissingProfile       = errors.New("missing profile reference")
	ErrMissingCategory      = errors.New("missing category reference")
	ErrMissingGoal          = errors.New("missing goal reference")
	ErrSelfTransfer         = errors.New("transfer to the same profile")
)
