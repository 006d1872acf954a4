package escrow

import "errors"

// Every failure below is terminal for the requested operation: the caller got
// a precondition wrong (state, identity, index). Nothing is retried inside
// the engine and a failed operation leaves no partial mutation behind.
var (
	ErrClaimNotFound        = errors.New("claim not found")
	ErrDuplicateClaim       = errors.New("claim already exists")
	ErrClaimNotOpen         = errors.New("claim is not open")
	ErrInvalidStatus        = errors.New("invalid status for requested transition")
	ErrIndexOutOfRange      = errors.New("pool entry index out of range")
	ErrNotAuthorized        = errors.New("not authorized")
	ErrNotResolved          = errors.New("claim is not resolved")
	ErrPayoutAlreadyClaimed = errors.New("payout already claimed")
)
