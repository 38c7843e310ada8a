package models

import "errors"

// ErrorKind groups duel errors by how a caller should react to them.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"  // rejected input, nothing persisted
	KindTransition  ErrorKind = "transition"  // illegal for the current state, no mutation
	KindConcurrency ErrorKind = "concurrency" // lost a race, safe to ignore or retry
	KindNotFound    ErrorKind = "not_found"
	KindFatal       ErrorKind = "fatal" // contract violation between components
)

// DuelError is the typed error returned by the duel engine. Code is stable and
// meant for machines; rendering text for users is the front-end's job.
type DuelError struct {
	Code string
	Kind ErrorKind
}

func (e *DuelError) Error() string { return e.Code }

func newErr(kind ErrorKind, code string) *DuelError {
	return &DuelError{Code: code, Kind: kind}
}

var (
	ErrInvalidStake       = newErr(KindValidation, "invalid_stake")
	ErrInvalidGameType    = newErr(KindValidation, "invalid_game_type")
	ErrInvalidFormat      = newErr(KindValidation, "invalid_format")
	ErrInvalidOutcome     = newErr(KindValidation, "invalid_outcome")
	ErrSelfDuel           = newErr(KindValidation, "self_duel")
	ErrMissingParticipant = newErr(KindValidation, "missing_participant")
	ErrTooManyActiveDuels = newErr(KindValidation, "too_many_active_duels")
	ErrCooldown           = newErr(KindValidation, "cooldown")

	ErrInvalidTransition = newErr(KindTransition, "invalid_transition")
	ErrNotTarget         = newErr(KindTransition, "not_target")
	ErrNotParticipant    = newErr(KindTransition, "not_participant")
	ErrNotActive         = newErr(KindTransition, "not_active")
	ErrNotYourTurn       = newErr(KindTransition, "not_your_turn")

	ErrBusy         = newErr(KindConcurrency, "busy")
	ErrAlreadyMoved = newErr(KindConcurrency, "already_moved")
	ErrConflict     = newErr(KindConcurrency, "conflict")

	ErrNotFound = newErr(KindNotFound, "not_found")

	ErrContractViolation = newErr(KindFatal, "contract_violation")
)

// KindOf returns the kind of a duel error anywhere in err's chain, or "" for
// infrastructure errors.
func KindOf(err error) ErrorKind {
	var de *DuelError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
