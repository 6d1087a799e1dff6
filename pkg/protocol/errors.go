package protocol

// Machine-readable error codes returned by the HTTP surface. The pairing UI
// routes on these, so expired/consumed/payment conditions must stay distinct.
const (
	ErrInvalidRequest  = "INVALID_REQUEST"
	ErrUnauthorized    = "UNAUTHORIZED"
	ErrNotFound        = "NOT_FOUND"
	ErrExpired         = "EXPIRED"
	ErrAlreadyUsed     = "ALREADY_USED"
	ErrWrongState      = "WRONG_STATE"
	ErrPaymentRequired = "PAYMENT_REQUIRED"
	ErrRateLimited     = "RATE_LIMITED"
	ErrOriginDenied    = "ORIGIN_DENIED"
	ErrInternal        = "INTERNAL"
)
