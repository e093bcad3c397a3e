package engine

import "fmt"

// Conflict codes returned when an entity is already past the requested
// transition.
const (
	CodeAlreadyTransferredSameTarget      = "already_transferred_same_target"
	CodeAlreadyTransferredDifferentTarget = "already_transferred_different_target"
	CodeAlreadyProcessed                  = "already_processed"
	CodeAlreadyReceived                   = "already_received"
	CodeAlreadyRejected                   = "already_rejected"
	CodeAppealNotPending                  = "appeal_not_pending"
	CodeAppealAlreadyOpen                 = "appeal_already_open"
	CodeSoleOwner                         = "sole_owner"
)

// Invariant codes returned when a request would break a domain rule.
const (
	CodeInvalidQuantity      = "invalid_quantity"
	CodeNotSlaughtered       = "not_slaughtered"
	CodeCarcassNotSplit      = "carcass_not_split"
	CodeQuantityConservation = "quantity_conservation"
)

// ValidationError covers malformed or incoherent input.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ConflictError means the entity already moved past the requested state.
// The code distinguishes duplicate submissions from genuine contention.
type ConflictError struct {
	Code    string
	Message string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// InvariantError means the request would violate a domain rule that no
// retry can fix without changing state first.
type InvariantError struct {
	Code    string
	Message string
}

func (e InvariantError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
