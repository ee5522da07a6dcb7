package coordination

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidDateRange    = errors.New("end date is before start date")
	ErrDateRangeTooLong    = errors.New("date range too long")
	ErrNotFound            = errors.New("appointment not found")
	ErrNotJoinable         = errors.New("appointment is not open for voting")
	ErrAlreadyJoined       = errors.New("already joined")
	ErrCapacityExceeded    = errors.New("appointment is full")
	ErrNotParticipant      = errors.New("not a participant")
	ErrForbidden           = errors.New("only the creator may do this")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInviteCodeExhausted = errors.New("could not allocate a unique invite code")
)
