package matcherrors

import "errors"

// Protocol sentinel errors. Used by the store, match and ws packages
// to avoid circular imports; handlers map them to caller-only error
// messages, never broadcasts.
var (
	ErrMatchNotFound  = errors.New("match not found")
	ErrDuplicateID    = errors.New("match id already in use")
	ErrIDSpaceBusy    = errors.New("could not generate an unused match id")
	ErrAlreadyHosting = errors.New("connection is already hosting a match")
	ErrNotInMatch     = errors.New("connection is not part of this match")
	ErrInvalidSlot    = errors.New("score slot index out of range")
	ErrImageTooLarge  = errors.New("player image exceeds size limit")
	ErrEmptyName      = errors.New("player name is empty")
)
